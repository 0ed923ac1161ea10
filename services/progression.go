package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"dogpark-economy/config"
	"dogpark-economy/metrics"
	"dogpark-economy/models"
	"dogpark-economy/store"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// ProgressionService maps cumulative experience to levels and tiers.
type ProgressionService struct {
	store    store.Store
	ledger   *LedgerService
	notifier Notifier
	economy  *config.Economy
	clock    clockwork.Clock
	log      *zap.Logger
}

func NewProgressionService(st store.Store, ledger *LedgerService, notifier Notifier, economy *config.Economy, clock clockwork.Clock, log *zap.Logger) *ProgressionService {
	return &ProgressionService{
		store:    st,
		ledger:   ledger,
		notifier: notifier,
		economy:  economy,
		clock:    clock,
		log:      orNop(log),
	}
}

// ExperienceResult describes one experience grant.
type ExperienceResult struct {
	UserID               string `json:"user_id"`
	ExperienceAdded      int64  `json:"experience_added"`
	CumulativeExperience int64  `json:"cumulative_experience"`
	PreviousLevel        int    `json:"previous_level"`
	LeveledUp            bool   `json:"leveled_up"`
	// NewLevel is set only when LeveledUp.
	NewLevel *config.LevelThreshold `json:"new_level,omitempty"`
	Level    config.LevelThreshold  `json:"level"`
}

func defaultProgression(userID string) *models.ProgressionState {
	return &models.ProgressionState{
		ID:     uuid.NewString(),
		UserID: userID,
		Level:  1,
		Tier:   1,
	}
}

// LevelFor returns the highest threshold whose minimum is at or below xp.
// The last row is treated as unbounded.
func (s *ProgressionService) LevelFor(xp int64) config.LevelThreshold {
	levels := s.economy.Levels
	for i := len(levels) - 1; i >= 0; i-- {
		if levels[i].MinExperience <= xp {
			return levels[i]
		}
	}
	return levels[0]
}

// ActionReward returns the experience configured for a named action.
func (s *ProgressionService) ActionReward(action string) (int64, bool) {
	xp, ok := s.economy.Experience[action]
	return xp, ok
}

// GrantExperience awards the experience configured for action.
func (s *ProgressionService) GrantExperience(ctx context.Context, userID, action string, extra map[string]string) (*ExperienceResult, error) {
	amount, ok := s.ActionReward(action)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	return s.AwardExperience(ctx, userID, amount, action, models.LedgerMetadata{Extra: extra})
}

// ReportActivity grants experience for an activity the user reports
// directly. Actions granted by their own pipeline (claims, referrals) are
// refused.
func (s *ProgressionService) ReportActivity(ctx context.Context, userID, action string, extra map[string]string) (*ExperienceResult, error) {
	if s.pipelineAction(action) {
		return nil, fmt.Errorf("%w: %q", ErrReservedAction, action)
	}
	return s.GrantExperience(ctx, userID, action, extra)
}

func (s *ProgressionService) pipelineAction(action string) bool {
	switch action {
	case TriggerCollectItem, s.economy.Referral.ReferrerAction, s.economy.Referral.ReferredAction:
		return true
	}
	return false
}

// AwardExperience grants an explicit amount, e.g. from an admin or a reward.
func (s *ProgressionService) AwardExperience(ctx context.Context, userID string, amount int64, reason string, meta models.LedgerMetadata) (*ExperienceResult, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	var res *ExperienceResult
	err := s.store.Transaction(ctx, func(tx store.Store) error {
		var err error
		res, err = s.grant(ctx, tx, userID, amount, reason, meta)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("grant experience to %s: %w", userID, err)
	}
	s.announce(ctx, res)
	return res, nil
}

// lockStates creates and row-locks the progression state of each user in id
// order. Transactions granting to several users call it first so they never
// wait on each other's rows in opposite order.
func (s *ProgressionService) lockStates(ctx context.Context, tx store.Store, userIDs ...string) error {
	ids := slices.Clone(userIDs)
	slices.Sort(ids)
	for _, id := range slices.Compact(ids) {
		if err := tx.EnsureProgression(ctx, defaultProgression(id)); err != nil {
			return err
		}
		if _, err := tx.GetProgression(ctx, id, true); err != nil {
			return err
		}
	}
	return nil
}

// grant does the transactional part of an experience grant. The caller owns
// tx and must call announce after commit.
func (s *ProgressionService) grant(ctx context.Context, tx store.Store, userID string, amount int64, reason string, meta models.LedgerMetadata) (*ExperienceResult, error) {
	if err := tx.EnsureProgression(ctx, defaultProgression(userID)); err != nil {
		return nil, err
	}
	prog, err := tx.GetProgression(ctx, userID, true)
	if err != nil {
		return nil, err
	}

	previous := s.LevelFor(prog.CumulativeExperience)
	prog.CumulativeExperience += amount
	level := s.LevelFor(prog.CumulativeExperience)
	leveledUp := level.Level > previous.Level

	prog.Level = level.Level
	prog.Tier = level.Tier
	now := s.clock.Now()
	if leveledUp {
		prog.LastLevelUpAt = &now
	}
	if err := tx.SaveProgression(ctx, prog); err != nil {
		return nil, err
	}

	meta.Progression = &models.ProgressionMetadata{
		PreviousLevel: previous.Level,
		NewLevel:      level.Level,
		LeveledUp:     leveledUp,
	}
	if _, err := s.ledger.Earn(ctx, tx, userID, models.CurrencyExperience, amount, reason, meta); err != nil {
		return nil, err
	}

	res := &ExperienceResult{
		UserID:               userID,
		ExperienceAdded:      amount,
		CumulativeExperience: prog.CumulativeExperience,
		PreviousLevel:        previous.Level,
		LeveledUp:            leveledUp,
		Level:                level,
	}
	if leveledUp {
		res.NewLevel = &level
		if _, err := tx.InsertAchievementIfAbsent(ctx, &models.AchievementRecord{
			ID:       uuid.NewString(),
			UserID:   userID,
			Title:    fmt.Sprintf("Level %d", level.Level),
			Type:     models.AchievementTypeLevel,
			EarnedAt: now,
		}); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// announce emits the post-commit side effects of a grant.
func (s *ProgressionService) announce(ctx context.Context, res *ExperienceResult) {
	if res == nil {
		return
	}
	s.log.Info("🎮 XP awarded",
		zap.String("user_id", res.UserID),
		zap.Int64("xp", res.ExperienceAdded),
		zap.Int64("total_xp", res.CumulativeExperience),
		zap.Int("level", res.Level.Level))
	if !res.LeveledUp {
		return
	}
	metrics.RecordLevelUp()
	s.notifier.Notify(ctx, &models.Notification{
		UserID: res.UserID,
		Kind:   models.NotificationLevelUp,
		Title:  fmt.Sprintf("Level %d reached!", res.Level.Level),
		Body:   fmt.Sprintf("You are now a %s (%s tier).", res.Level.Title, s.economy.TierName(res.Level.Tier)),
		Emoji:  "🏅",
	})
}

// ProgressView is the read model behind /user/progress.
type ProgressView struct {
	UserID               string     `json:"user_id"`
	Level                int        `json:"level"`
	Title                string     `json:"title"`
	Tier                 int        `json:"tier"`
	TierName             string     `json:"tier_name"`
	CumulativeExperience int64      `json:"xp"`
	NextLevelAt          *int64     `json:"next_level_at,omitempty"`
	ExperienceToNext     int64      `json:"xp_to_next_level"`
	Benefits             []string   `json:"benefits,omitempty"`
	LastLevelUpAt        *time.Time `json:"last_level_up_at,omitempty"`
}

func (s *ProgressionService) Progress(ctx context.Context, userID string) (*ProgressView, error) {
	prog, err := s.store.GetProgression(ctx, userID, false)
	if errors.Is(err, store.ErrNotFound) {
		prog = defaultProgression(userID)
	} else if err != nil {
		return nil, fmt.Errorf("get progression: %w", err)
	}

	level := s.LevelFor(prog.CumulativeExperience)
	view := &ProgressView{
		UserID:               userID,
		Level:                level.Level,
		Title:                level.Title,
		Tier:                 level.Tier,
		TierName:             s.economy.TierName(level.Tier),
		CumulativeExperience: prog.CumulativeExperience,
		Benefits:             level.Benefits,
		LastLevelUpAt:        prog.LastLevelUpAt,
	}
	for _, l := range s.economy.Levels {
		if l.Level > level.Level {
			next := l.MinExperience
			view.NextLevelAt = &next
			view.ExperienceToNext = next - prog.CumulativeExperience
			break
		}
	}
	return view, nil
}
