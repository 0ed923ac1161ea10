// Package memstore is an in-memory store.Store.
//
// Transactions are serialised on one mutex and roll back by restoring a
// snapshot, so every unit of work is isolated. Unique constraints match the
// Postgres schema and report store.ErrDuplicate. Nested Transaction calls join
// the outer unit.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"dogpark-economy/geo"
	"dogpark-economy/models"
	"dogpark-economy/store"

	"github.com/google/uuid"
)

type state struct {
	ledger        []models.LedgerEntry
	progression   map[string]models.ProgressionState // by user id
	spawns        map[string]models.CollectibleSpawn
	collections   map[string]models.CollectionRecord // by spawn id
	achievements  []models.AchievementRecord
	badges        []models.Badge
	codes         map[string]models.ReferralCode // by id
	referrals     []models.ReferralRecord
	notifications []models.Notification
	users         map[string]models.User // by external user id

	walks     []models.Walk
	trainings []models.TrainingSession
	posts     []models.Post
	likes     []models.PostLike
	events    []models.CommunityEvent
}

func newState() *state {
	return &state{
		progression: map[string]models.ProgressionState{},
		spawns:      map[string]models.CollectibleSpawn{},
		collections: map[string]models.CollectionRecord{},
		codes:       map[string]models.ReferralCode{},
		users:       map[string]models.User{},
	}
}

func (st *state) clone() *state {
	return &state{
		ledger:        slices.Clone(st.ledger),
		progression:   maps.Clone(st.progression),
		spawns:        maps.Clone(st.spawns),
		collections:   maps.Clone(st.collections),
		achievements:  slices.Clone(st.achievements),
		badges:        slices.Clone(st.badges),
		codes:         maps.Clone(st.codes),
		referrals:     slices.Clone(st.referrals),
		notifications: slices.Clone(st.notifications),
		users:         maps.Clone(st.users),
		walks:         slices.Clone(st.walks),
		trainings:     slices.Clone(st.trainings),
		posts:         slices.Clone(st.posts),
		likes:         slices.Clone(st.likes),
		events:        slices.Clone(st.events),
	}
}

// Store is safe for concurrent use.
type Store struct {
	mu    *sync.Mutex
	state *state
	inTx  bool
}

func New() *Store {
	return &Store{mu: &sync.Mutex{}, state: newState()}
}

func (s *Store) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) Transaction(ctx context.Context, fn func(tx store.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	snapshot := s.state.clone()
	if err := fn(&Store{mu: s.mu, state: s.state, inTx: true}); err != nil {
		*s.state = *snapshot
		return err
	}
	return nil
}

func ensureID(id *string) {
	if *id == "" {
		*id = uuid.NewString()
	}
}

func duplicate(what string) error {
	return fmt.Errorf("%w: %s", store.ErrDuplicate, what)
}

func after(t, since time.Time) bool {
	return since.IsZero() || !t.Before(since)
}

// Ledger

func (s *Store) InsertLedgerEntry(_ context.Context, e *models.LedgerEntry) error {
	defer s.lock()()
	if e.Amount <= 0 {
		return errors.New("memstore: ledger amount must be positive")
	}
	ensureID(&e.ID)
	s.state.ledger = append(s.state.ledger, *e)
	return nil
}

func (s *Store) ListLedgerEntries(_ context.Context, userID string, limit, offset int) ([]models.LedgerEntry, int64, error) {
	defer s.lock()()
	var out []models.LedgerEntry
	for i := len(s.state.ledger) - 1; i >= 0; i-- {
		if e := s.state.ledger[i]; e.UserID == userID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, limit, offset), int64(len(out)), nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func (s *Store) ListLedgerEntriesBetween(_ context.Context, from, to time.Time) ([]models.LedgerEntry, error) {
	defer s.lock()()
	var out []models.LedgerEntry
	for _, e := range s.state.ledger {
		if !e.CreatedAt.Before(from) && e.CreatedAt.Before(to) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) SumLedger(_ context.Context, userID string, currency models.Currency) (store.LedgerTotals, error) {
	defer s.lock()()
	var t store.LedgerTotals
	for _, e := range s.state.ledger {
		if e.UserID != userID || e.Currency != currency {
			continue
		}
		switch e.Direction {
		case models.DirectionEarn:
			t.Earned += e.Amount
		case models.DirectionSpend:
			t.Spent += e.Amount
		}
	}
	return t, nil
}

// Progression

func (s *Store) EnsureProgression(_ context.Context, p *models.ProgressionState) error {
	defer s.lock()()
	if _, ok := s.state.progression[p.UserID]; ok {
		return nil
	}
	ensureID(&p.ID)
	s.state.progression[p.UserID] = *p
	return nil
}

func (s *Store) GetProgression(_ context.Context, userID string, _ bool) (*models.ProgressionState, error) {
	defer s.lock()()
	p, ok := s.state.progression[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (s *Store) SaveProgression(_ context.Context, p *models.ProgressionState) error {
	defer s.lock()()
	if existing, ok := s.state.progression[p.UserID]; ok {
		p.ID = existing.ID
		p.CreatedAt = existing.CreatedAt
	}
	ensureID(&p.ID)
	s.state.progression[p.UserID] = *p
	return nil
}

// Spawns

func (s *Store) InsertSpawn(_ context.Context, sp *models.CollectibleSpawn) error {
	defer s.lock()()
	ensureID(&sp.ID)
	if _, ok := s.state.spawns[sp.ID]; ok {
		return duplicate("collectible_spawns.id")
	}
	s.state.spawns[sp.ID] = *sp
	return nil
}

func (s *Store) GetSpawn(_ context.Context, id string, _ bool) (*models.CollectibleSpawn, error) {
	defer s.lock()()
	sp, ok := s.state.spawns[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &sp, nil
}

func activeAt(sp models.CollectibleSpawn, now time.Time) bool {
	return sp.IsActive && (sp.ExpiresAt == nil || sp.ExpiresAt.After(now))
}

func (s *Store) activeSpawns(now time.Time, keep func(models.CollectibleSpawn) bool) []models.CollectibleSpawn {
	var out []models.CollectibleSpawn
	for _, sp := range s.state.spawns {
		if activeAt(sp, now) && keep(sp) {
			out = append(out, sp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (s *Store) ListActiveSpawns(_ context.Context, now time.Time) ([]models.CollectibleSpawn, error) {
	defer s.lock()()
	return s.activeSpawns(now, func(models.CollectibleSpawn) bool { return true }), nil
}

func (s *Store) ListActiveSpawnsIn(_ context.Context, box geo.BoundingBox, now time.Time) ([]models.CollectibleSpawn, error) {
	defer s.lock()()
	return s.activeSpawns(now, func(sp models.CollectibleSpawn) bool {
		return box.Contains(geo.Point{Lat: sp.Latitude, Lng: sp.Longitude})
	}), nil
}

func (s *Store) DeactivateSpawn(_ context.Context, id string) (bool, error) {
	defer s.lock()()
	sp, ok := s.state.spawns[id]
	if !ok || !sp.IsActive {
		return false, nil
	}
	sp.IsActive = false
	s.state.spawns[id] = sp
	return true, nil
}

func (s *Store) DeactivateExpiredSpawns(_ context.Context, now time.Time) (int64, error) {
	defer s.lock()()
	var n int64
	for id, sp := range s.state.spawns {
		if sp.IsActive && sp.ExpiresAt != nil && sp.ExpiresAt.Before(now) {
			sp.IsActive = false
			s.state.spawns[id] = sp
			n++
		}
	}
	return n, nil
}

// Collections

func (s *Store) GetCollectionBySpawn(_ context.Context, spawnID string) (*models.CollectionRecord, error) {
	defer s.lock()()
	c, ok := s.state.collections[spawnID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

func (s *Store) InsertCollection(_ context.Context, c *models.CollectionRecord) error {
	defer s.lock()()
	if _, ok := s.state.collections[c.SpawnID]; ok {
		return duplicate("collection_records.spawn_id")
	}
	ensureID(&c.ID)
	s.state.collections[c.SpawnID] = *c
	return nil
}

// Achievements

func (s *Store) hasAchievement(userID, title string) bool {
	return slices.ContainsFunc(s.state.achievements, func(a models.AchievementRecord) bool {
		return a.UserID == userID && a.Title == title
	})
}

func (s *Store) HasAchievement(_ context.Context, userID, title string) (bool, error) {
	defer s.lock()()
	return s.hasAchievement(userID, title), nil
}

func (s *Store) InsertAchievementIfAbsent(_ context.Context, a *models.AchievementRecord) (bool, error) {
	defer s.lock()()
	if s.hasAchievement(a.UserID, a.Title) {
		return false, nil
	}
	ensureID(&a.ID)
	s.state.achievements = append(s.state.achievements, *a)
	return true, nil
}

func (s *Store) ListAchievements(_ context.Context, userID string) ([]models.AchievementRecord, error) {
	defer s.lock()()
	var out []models.AchievementRecord
	for _, a := range s.state.achievements {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *Store) InsertBadgeIfAbsent(_ context.Context, b *models.Badge) (bool, error) {
	defer s.lock()()
	if slices.ContainsFunc(s.state.badges, func(x models.Badge) bool {
		return x.UserID == b.UserID && x.Code == b.Code
	}) {
		return false, nil
	}
	ensureID(&b.ID)
	s.state.badges = append(s.state.badges, *b)
	return true, nil
}

func (s *Store) ListBadges(_ context.Context, userID string) ([]models.Badge, error) {
	defer s.lock()()
	var out []models.Badge
	for _, b := range s.state.badges {
		if b.UserID == userID {
			out = append(out, b)
		}
	}
	return out, nil
}

// Referrals

func (s *Store) findCode(match func(models.ReferralCode) bool) (*models.ReferralCode, error) {
	for _, c := range s.state.codes {
		if match(c) {
			return &c, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) GetReferralCodeByUser(_ context.Context, userID string) (*models.ReferralCode, error) {
	defer s.lock()()
	return s.findCode(func(c models.ReferralCode) bool { return c.UserID == userID })
}

func (s *Store) GetReferralCodeByCode(_ context.Context, code string, _ bool) (*models.ReferralCode, error) {
	defer s.lock()()
	return s.findCode(func(c models.ReferralCode) bool { return c.Code == code })
}

func (s *Store) codeClash(c *models.ReferralCode) error {
	for id, other := range s.state.codes {
		if id == c.ID {
			continue
		}
		if other.Code == c.Code {
			return duplicate("referral_codes.code")
		}
		if other.UserID == c.UserID {
			return duplicate("referral_codes.user_id")
		}
	}
	return nil
}

func (s *Store) InsertReferralCode(_ context.Context, c *models.ReferralCode) error {
	defer s.lock()()
	ensureID(&c.ID)
	if _, ok := s.state.codes[c.ID]; ok {
		return duplicate("referral_codes.id")
	}
	if err := s.codeClash(c); err != nil {
		return err
	}
	s.state.codes[c.ID] = *c
	return nil
}

func (s *Store) UpdateReferralCode(_ context.Context, c *models.ReferralCode, expectedCode string) (bool, error) {
	defer s.lock()()
	existing, ok := s.state.codes[c.ID]
	if !ok || existing.Code != expectedCode {
		return false, nil
	}
	if err := s.codeClash(c); err != nil {
		return false, err
	}
	c.UserID = existing.UserID
	c.CreatedAt = existing.CreatedAt
	s.state.codes[c.ID] = *c
	return true, nil
}

func (s *Store) IncrementReferralCodeUse(_ context.Context, id string) error {
	defer s.lock()()
	c, ok := s.state.codes[id]
	if !ok {
		return store.ErrNotFound
	}
	c.UsedCount++
	s.state.codes[id] = c
	return nil
}

func (s *Store) referralExists(referrerID, referredID string) bool {
	return slices.ContainsFunc(s.state.referrals, func(r models.ReferralRecord) bool {
		return r.ReferrerID == referrerID && r.ReferredID == referredID
	})
}

func (s *Store) ReferralExists(_ context.Context, referrerID, referredID string) (bool, error) {
	defer s.lock()()
	return s.referralExists(referrerID, referredID), nil
}

func (s *Store) InsertReferral(_ context.Context, r *models.ReferralRecord) error {
	defer s.lock()()
	if s.referralExists(r.ReferrerID, r.ReferredID) {
		return duplicate("referral_records(referrer_id, referred_id)")
	}
	ensureID(&r.ID)
	s.state.referrals = append(s.state.referrals, *r)
	return nil
}

// Notifications

func (s *Store) InsertNotification(_ context.Context, n *models.Notification) error {
	defer s.lock()()
	ensureID(&n.ID)
	s.state.notifications = append(s.state.notifications, *n)
	return nil
}

func (s *Store) ListNotifications(_ context.Context, userID string, limit int) ([]models.Notification, error) {
	defer s.lock()()
	var out []models.Notification
	for i := len(s.state.notifications) - 1; i >= 0; i-- {
		if n := s.state.notifications[i]; n.UserID == userID {
			out = append(out, n)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, limit, 0), nil
}

func (s *Store) ListNotificationsAfter(_ context.Context, userID string, after store.NotificationCursor) ([]models.Notification, error) {
	defer s.lock()()
	var out []models.Notification
	for _, n := range s.state.notifications {
		if n.UserID == userID && after.After(n) {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) MarkNotificationsViewed(_ context.Context, userID string) (int64, error) {
	defer s.lock()()
	var n int64
	for i := range s.state.notifications {
		if s.state.notifications[i].UserID == userID && !s.state.notifications[i].Viewed {
			s.state.notifications[i].Viewed = true
			n++
		}
	}
	return n, nil
}

// Users

func (s *Store) GetUser(_ context.Context, externalUserID string) (*models.User, error) {
	defer s.lock()()
	u, ok := s.state.users[externalUserID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

func (s *Store) UpsertUser(_ context.Context, u *models.User) error {
	defer s.lock()()
	if existing, ok := s.state.users[u.ExternalUserID]; ok {
		u.ID = existing.ID
	}
	ensureID(&u.ID)
	s.state.users[u.ExternalUserID] = *u
	return nil
}

func (s *Store) LatestUserUpdate(_ context.Context) (time.Time, error) {
	defer s.lock()()
	var latest time.Time
	for _, u := range s.state.users {
		if u.UpdatedAt.After(latest) {
			latest = u.UpdatedAt
		}
	}
	return latest, nil
}

func (s *Store) RegistrationRank(_ context.Context, externalUserID string) (int64, error) {
	defer s.lock()()
	u, ok := s.state.users[externalUserID]
	if !ok {
		return 0, nil
	}
	rank := int64(1)
	for _, other := range s.state.users {
		if other.RegisteredAt.Before(u.RegisteredAt) ||
			(other.RegisteredAt.Equal(u.RegisteredAt) && other.ExternalUserID < u.ExternalUserID) {
			rank++
		}
	}
	return rank, nil
}

// Activity

func (s *Store) ActivityCounts(_ context.Context, userID string, since time.Time) (store.ActivityCounts, error) {
	defer s.lock()()
	var c store.ActivityCounts
	for _, w := range s.state.walks {
		if w.UserID == userID && after(w.StartedAt, since) {
			c.Walks++
		}
	}
	for _, t := range s.state.trainings {
		if t.UserID == userID && after(t.CompletedAt, since) {
			c.Trainings++
		}
	}
	own := map[string]bool{}
	for _, p := range s.state.posts {
		if p.UserID == userID {
			own[p.ID] = true
			if after(p.CreatedAt, since) {
				c.Posts++
			}
		}
	}
	for _, l := range s.state.likes {
		if own[l.PostID] && after(l.CreatedAt, since) {
			c.LikesReceived++
		}
	}
	for _, col := range s.state.collections {
		if col.UserID == userID && after(col.CollectedAt, since) {
			c.Collectibles++
		}
	}
	for _, e := range s.state.events {
		if e.OrganizerID == userID && after(e.CreatedAt, since) {
			c.EventsOrganized++
		}
	}
	for _, r := range s.state.referrals {
		if r.ReferrerID == userID && r.Status == models.ReferralStatusCompleted && after(r.CreatedAt, since) {
			c.Referrals++
		}
	}
	return c, nil
}

func (s *Store) CollectionsByType(_ context.Context, userID string, since time.Time) (map[string]int64, error) {
	defer s.lock()()
	out := map[string]int64{}
	for _, col := range s.state.collections {
		if col.UserID == userID && after(col.CollectedAt, since) {
			out[col.SpawnType]++
		}
	}
	return out, nil
}

func (s *Store) ActivityTimes(_ context.Context, userID string, since time.Time) ([]time.Time, error) {
	defer s.lock()()
	var out []time.Time
	for _, w := range s.state.walks {
		if w.UserID == userID && after(w.StartedAt, since) {
			out = append(out, w.StartedAt)
		}
	}
	for _, t := range s.state.trainings {
		if t.UserID == userID && after(t.CompletedAt, since) {
			out = append(out, t.CompletedAt)
		}
	}
	return out, nil
}

var _ store.Store = (*Store)(nil)
