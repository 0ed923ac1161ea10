package memstore

import (
	"time"

	"dogpark-economy/models"

	"github.com/google/uuid"
)

// The helpers below populate the host-owned activity tables, which the engine
// itself never writes.

func (s *Store) AddUser(externalUserID, username string, registeredAt time.Time) {
	defer s.lock()()
	s.state.users[externalUserID] = models.User{
		ID:             uuid.NewString(),
		ExternalUserID: externalUserID,
		Username:       username,
		RegisteredAt:   registeredAt,
		UpdatedAt:      registeredAt,
	}
}

func (s *Store) AddWalk(userID string, at time.Time) {
	defer s.lock()()
	s.state.walks = append(s.state.walks, models.Walk{ID: uuid.NewString(), UserID: userID, StartedAt: at})
}

func (s *Store) AddTraining(userID string, at time.Time) {
	defer s.lock()()
	s.state.trainings = append(s.state.trainings, models.TrainingSession{ID: uuid.NewString(), UserID: userID, CompletedAt: at})
}

// AddPost returns the new post id.
func (s *Store) AddPost(userID string, at time.Time) string {
	defer s.lock()()
	id := uuid.NewString()
	s.state.posts = append(s.state.posts, models.Post{ID: id, UserID: userID, CreatedAt: at})
	return id
}

func (s *Store) AddLike(postID, likerID string, at time.Time) {
	defer s.lock()()
	s.state.likes = append(s.state.likes, models.PostLike{ID: uuid.NewString(), PostID: postID, UserID: likerID, CreatedAt: at})
}

func (s *Store) AddEvent(organizerID string, at time.Time) {
	defer s.lock()()
	s.state.events = append(s.state.events, models.CommunityEvent{ID: uuid.NewString(), OrganizerID: organizerID, CreatedAt: at, StartsAt: at})
}
