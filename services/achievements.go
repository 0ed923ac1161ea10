package services

import (
	"context"
	"fmt"
	"time"

	"dogpark-economy/config"
	"dogpark-economy/metrics"
	"dogpark-economy/models"
	"dogpark-economy/store"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// AchievementService grants achievements by re-evaluating every definition
// against a fresh stats snapshot.
type AchievementService struct {
	store       store.Store
	ledger      *LedgerService
	progression *ProgressionService
	notifier    Notifier
	economy     *config.Economy
	clock       clockwork.Clock
	log         *zap.Logger
}

func NewAchievementService(st store.Store, ledger *LedgerService, progression *ProgressionService, notifier Notifier, economy *config.Economy, clock clockwork.Clock, log *zap.Logger) *AchievementService {
	return &AchievementService{
		store:       st,
		ledger:      ledger,
		progression: progression,
		notifier:    notifier,
		economy:     economy,
		clock:       clock,
		log:         orNop(log),
	}
}

// GrantedAchievement is one achievement awarded by a check.
type GrantedAchievement struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Rarity     string `json:"rarity"`
	Experience int64  `json:"experience"`
	Currency   int64  `json:"currency"`
	Badge      string `json:"badge,omitempty"`
}

func evaluate(c config.Condition, stats UserStats) bool {
	switch c.Kind {
	case config.ConditionCount, config.ConditionValue:
		v := stats.Metric(c.Metric)
		if c.Operator == config.OperatorLTE {
			// 0 means unknown, e.g. a user missing from the mirror
			return v > 0 && v <= c.Target
		}
		return v >= c.Target
	case config.ConditionStreak:
		return stats.Metric(c.Metric+suffixStreak) >= c.Target
	case config.ConditionTime:
		return stats.Metric(c.Metric+timeframeSuffix(c.Timeframe)) >= c.Target
	default:
		// COMBINATION is reserved
		return false
	}
}

// CheckAchievements grants every definition the user newly satisfies, in
// table order. Errors are logged and swallowed; the caller's operation has
// already succeeded.
func (s *AchievementService) CheckAchievements(ctx context.Context, userID, trigger string) []GrantedAchievement {
	log := s.log.With(zap.String("user_id", userID), zap.String("trigger", trigger))

	stats, err := s.computeStats(ctx, userID)
	if err != nil {
		log.Warn("⚠️ achievement stats failed", zap.Error(err))
		return nil
	}

	var granted []GrantedAchievement
	for _, def := range s.economy.Achievements.Definitions {
		has, err := s.store.HasAchievement(ctx, userID, def.Title)
		if err != nil {
			log.Warn("⚠️ achievement lookup failed", zap.String("achievement", def.ID), zap.Error(err))
			continue
		}
		if has || !evaluate(def.Condition, stats) {
			continue
		}

		g, xp, err := s.grant(ctx, userID, def)
		if err != nil {
			log.Warn("⚠️ achievement grant failed", zap.String("achievement", def.ID), zap.Error(err))
			continue
		}
		if g == nil {
			// a concurrent check won the insert
			continue
		}
		if xp != nil {
			stats["level"] = int64(xp.Level.Level)
		}
		s.progression.announce(ctx, xp)
		s.notifier.Notify(ctx, &models.Notification{
			UserID: userID,
			Kind:   models.NotificationAchievement,
			Title:  fmt.Sprintf("Achievement unlocked: %s", def.Title),
			Body:   def.Description,
			Emoji:  "🏆",
		})
		metrics.RecordAchievement(def.ID)
		log.Info("🎖️ achievement granted", zap.String("achievement", def.ID))
		granted = append(granted, *g)
	}
	return granted
}

// grant writes the record, rewards and badge as one unit. A nil result with
// no error means the record already existed.
func (s *AchievementService) grant(ctx context.Context, userID string, def config.AchievementDefinition) (*GrantedAchievement, *ExperienceResult, error) {
	var (
		g  *GrantedAchievement
		xp *ExperienceResult
	)
	err := s.store.Transaction(ctx, func(tx store.Store) error {
		g, xp = nil, nil
		now := s.clock.Now()
		inserted, err := tx.InsertAchievementIfAbsent(ctx, &models.AchievementRecord{
			ID:            uuid.NewString(),
			UserID:        userID,
			Title:         def.Title,
			AchievementID: def.ID,
			Type:          def.Type,
			Rarity:        def.Rarity,
			EarnedAt:      now,
		})
		if err != nil || !inserted {
			return err
		}

		meta := models.LedgerMetadata{Achievement: &models.AchievementMetadata{AchievementID: def.ID, Title: def.Title}}
		reason := "achievement:" + def.ID
		if def.Rewards.Experience > 0 {
			if xp, err = s.progression.grant(ctx, tx, userID, def.Rewards.Experience, reason, meta); err != nil {
				return err
			}
		}
		if def.Rewards.Currency > 0 {
			if _, err := s.ledger.Earn(ctx, tx, userID, models.CurrencyBones, def.Rewards.Currency, reason, meta); err != nil {
				return err
			}
		}
		if def.Rewards.Badge != "" {
			if _, err := tx.InsertBadgeIfAbsent(ctx, &models.Badge{
				ID:            uuid.NewString(),
				UserID:        userID,
				Code:          def.Rewards.Badge,
				AchievementID: def.ID,
				AwardedAt:     now,
			}); err != nil {
				return err
			}
		}
		g = &GrantedAchievement{
			ID:         def.ID,
			Title:      def.Title,
			Rarity:     def.Rarity,
			Experience: def.Rewards.Experience,
			Currency:   def.Rewards.Currency,
			Badge:      def.Rewards.Badge,
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return g, xp, nil
}

// AchievementView is a definition with the user's earned state. Hidden
// definitions the user has not earned are masked.
type AchievementView struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Rarity      string         `json:"rarity"`
	Category    string         `json:"category"`
	Hidden      bool           `json:"hidden"`
	Earned      bool           `json:"earned"`
	EarnedAt    *time.Time     `json:"earned_at,omitempty"`
	Rewards     config.Rewards `json:"rewards"`
}

func (s *AchievementService) ListAchievements(ctx context.Context, userID string) ([]AchievementView, error) {
	records, err := s.store.ListAchievements(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list achievements: %w", err)
	}
	earned := make(map[string]time.Time, len(records))
	for _, r := range records {
		earned[r.Title] = r.EarnedAt
	}

	views := make([]AchievementView, 0, len(s.economy.Achievements.Definitions))
	for _, def := range s.economy.Achievements.Definitions {
		v := AchievementView{
			ID:          def.ID,
			Title:       def.Title,
			Description: def.Description,
			Rarity:      def.Rarity,
			Category:    def.Category,
			Hidden:      def.Hidden,
			Rewards:     def.Rewards,
		}
		if at, ok := earned[def.Title]; ok {
			v.Earned = true
			v.EarnedAt = &at
		} else if def.Hidden {
			v.Title = "???"
			v.Description = "Keep exploring to discover this achievement."
			v.Rewards = config.Rewards{}
		}
		views = append(views, v)
	}
	return views, nil
}

func (s *AchievementService) ListBadges(ctx context.Context, userID string) ([]models.Badge, error) {
	badges, err := s.store.ListBadges(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list badges: %w", err)
	}
	if badges == nil {
		badges = []models.Badge{}
	}
	return badges, nil
}
