package services

import (
	"context"
	"errors"
	"fmt"

	"dogpark-economy/metrics"
	"dogpark-economy/models"
	"dogpark-economy/store"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// AchievementChecker runs a best-effort achievement pass for a user.
type AchievementChecker interface {
	CheckAchievements(ctx context.Context, userID, trigger string) []GrantedAchievement
}

const TriggerCollectItem = "COLLECT_ITEM"

type ClaimRequest struct {
	UserID  string
	DogID   *string
	SpawnID string
}

type ClaimResult struct {
	Success     bool   `json:"success"`
	Code        Code   `json:"code"`
	Message     string `json:"message"`
	BonesEarned int64  `json:"bones_earned"`
	SpawnType   string `json:"spawn_type,omitempty"`
}

// ClaimService converts one spawn into one reward, exactly once.
type ClaimService struct {
	store        store.Store
	ledger       *LedgerService
	achievements AchievementChecker
	clock        clockwork.Clock
	log          *zap.Logger
}

func NewClaimService(st store.Store, ledger *LedgerService, achievements AchievementChecker, clock clockwork.Clock, log *zap.Logger) *ClaimService {
	return &ClaimService{store: st, ledger: ledger, achievements: achievements, clock: clock, log: orNop(log)}
}

// errClaimRaced aborts the claim transaction when another claim won.
var errClaimRaced = errors.New("spawn claimed concurrently")

func claimFailure(code Code, msg string) *ClaimResult {
	return &ClaimResult{Code: code, Message: msg}
}

// Claim checks, in order: the spawn exists, is active, has not expired and
// has no collection record. Business failures are returned as a result, not
// an error.
func (s *ClaimService) Claim(ctx context.Context, req ClaimRequest) (*ClaimResult, error) {
	var result *ClaimResult
	err := s.store.Transaction(ctx, func(tx store.Store) error {
		now := s.clock.Now()
		spawn, err := tx.GetSpawn(ctx, req.SpawnID, true)
		if errors.Is(err, store.ErrNotFound) {
			result = claimFailure(CodeNotFound, "This collectible doesn't exist.")
			return nil
		}
		if err != nil {
			return err
		}
		if !spawn.IsActive {
			result = claimFailure(CodeAlreadyCollected, "Someone already collected this one.")
			return nil
		}
		if spawn.ExpiredAt(now) {
			result = claimFailure(CodeExpired, "This collectible has expired.")
			return nil
		}
		if _, err := tx.GetCollectionBySpawn(ctx, spawn.ID); err == nil {
			result = claimFailure(CodeAlreadyCollected, "Someone already collected this one.")
			return nil
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		if err := tx.InsertCollection(ctx, &models.CollectionRecord{
			ID:          uuid.NewString(),
			UserID:      req.UserID,
			DogID:       req.DogID,
			SpawnID:     spawn.ID,
			SpawnType:   spawn.Type,
			Value:       spawn.Value,
			CollectedAt: now,
		}); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return errClaimRaced
			}
			return err
		}

		meta := models.LedgerMetadata{Claim: &models.ClaimMetadata{SpawnID: spawn.ID, SpawnType: spawn.Type, DogID: req.DogID}}
		if _, err := s.ledger.Earn(ctx, tx, req.UserID, models.CurrencyBones, spawn.Value, "collect:"+spawn.Type, meta); err != nil {
			return err
		}

		ok, err := tx.DeactivateSpawn(ctx, spawn.ID)
		if err != nil {
			return err
		}
		if !ok {
			return errClaimRaced
		}

		result = &ClaimResult{
			Success:     true,
			Code:        CodeOK,
			Message:     fmt.Sprintf("You found a %s worth %d bones!", spawn.Type, spawn.Value),
			BonesEarned: spawn.Value,
			SpawnType:   spawn.Type,
		}
		return nil
	})
	if errors.Is(err, errClaimRaced) {
		result, err = claimFailure(CodeAlreadyCollected, "Someone already collected this one."), nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim spawn %s: %w", req.SpawnID, err)
	}

	metrics.RecordClaim(string(result.Code))
	if !result.Success {
		s.log.Info("🚫 claim rejected",
			zap.String("user_id", req.UserID), zap.String("spawn_id", req.SpawnID), zap.String("code", string(result.Code)))
		return result, nil
	}

	s.log.Info("✅ spawn claimed",
		zap.String("user_id", req.UserID), zap.String("spawn_id", req.SpawnID), zap.Int64("bones", result.BonesEarned))
	if s.achievements != nil {
		s.achievements.CheckAchievements(ctx, req.UserID, TriggerCollectItem)
	}
	return result, nil
}
