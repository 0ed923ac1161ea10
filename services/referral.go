package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"dogpark-economy/config"
	"dogpark-economy/metrics"
	"dogpark-economy/models"
	"dogpark-economy/store"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// TriggerReferralSuccess is passed to the achievement check after a redemption.
const TriggerReferralSuccess = "REFERRAL_SUCCESS"

// ReferralService issues referral codes and rewards both sides of a
// successful referral.
type ReferralService struct {
	store        store.Store
	ledger       *LedgerService
	progression  *ProgressionService
	achievements AchievementChecker
	notifier     Notifier
	rand         Random
	cfg          config.ReferralConfig
	clock        clockwork.Clock
	log          *zap.Logger
}

func NewReferralService(st store.Store, ledger *LedgerService, progression *ProgressionService, achievements AchievementChecker, notifier Notifier, rnd Random, economy *config.Economy, clock clockwork.Clock, log *zap.Logger) *ReferralService {
	return &ReferralService{
		store:        st,
		ledger:       ledger,
		progression:  progression,
		achievements: achievements,
		notifier:     notifier,
		rand:         rnd,
		cfg:          economy.Referral,
		clock:        clock,
		log:          orNop(log),
	}
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (s *ReferralService) generate() string {
	var b strings.Builder
	b.Grow(s.cfg.CodeLength)
	for i := 0; i < s.cfg.CodeLength; i++ {
		b.WriteByte(s.cfg.Alphabet[s.rand.Intn(len(s.cfg.Alphabet))])
	}
	return b.String()
}

// CreateCode returns the user's usable code, or issues a fresh one. A code
// that stopped being usable is rotated in place.
func (s *ReferralService) CreateCode(ctx context.Context, userID string) (*models.ReferralCode, error) {
	existing, err := s.store.GetReferralCodeByUser(ctx, userID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("get referral code: %w", err)
	}
	if existing != nil && existing.Usable(s.clock.Now()) {
		return existing, nil
	}

	for attempt := 1; attempt <= s.cfg.MaxGenerationAttempts; attempt++ {
		candidate := s.generate()
		if _, err := s.store.GetReferralCodeByCode(ctx, candidate, false); err == nil {
			continue
		} else if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("check referral code: %w", err)
		}

		now := s.clock.Now()
		code := &models.ReferralCode{
			ID:        uuid.NewString(),
			UserID:    userID,
			Code:      candidate,
			IsActive:  true,
			ExpiresAt: now.Add(s.cfg.Validity()),
			MaxUses:   s.cfg.MaxUses,
		}
		if existing != nil {
			code.ID = existing.ID
			var rotated bool
			if rotated, err = s.store.UpdateReferralCode(ctx, code, existing.Code); err == nil && !rotated {
				// a concurrent request rotated the row first
				current, err := s.store.GetReferralCodeByUser(ctx, userID)
				if err != nil {
					return nil, fmt.Errorf("reload referral code: %w", err)
				}
				if current.Usable(now) {
					return current, nil
				}
				existing = current
				continue
			}
		} else {
			err = s.store.InsertReferralCode(ctx, code)
		}
		if err == nil {
			s.log.Info("🎟️ referral code issued", zap.String("user_id", userID), zap.String("code", code.Code), zap.Int("attempt", attempt))
			return code, nil
		}
		if !errors.Is(err, store.ErrDuplicate) {
			return nil, fmt.Errorf("save referral code: %w", err)
		}

		// either the code collided or a concurrent request created the
		// user's row first
		current, lookupErr := s.store.GetReferralCodeByUser(ctx, userID)
		if lookupErr == nil {
			if current.Usable(now) {
				return current, nil
			}
			existing = current
		}
	}
	return nil, fmt.Errorf("%w after %d attempts", ErrCodeGenerationExhausted, s.cfg.MaxGenerationAttempts)
}

// ReferrerInfo is the public display info of a code's owner.
type ReferrerInfo struct {
	UserID            string  `json:"user_id"`
	Name              string  `json:"name"`
	ProfilePictureURL *string `json:"profile_picture_url,omitempty"`
}

type ValidationResult struct {
	Valid    bool          `json:"valid"`
	Code     Code          `json:"code"`
	Message  string        `json:"message"`
	Referrer *ReferrerInfo `json:"referrer,omitempty"`
}

// check runs the redemption checks against a loaded code. viewerID may be
// empty when the viewer is anonymous.
func (s *ReferralService) check(ctx context.Context, st store.Store, code *models.ReferralCode, viewerID string) (Code, string, error) {
	now := s.clock.Now()
	switch {
	case !code.IsActive:
		return CodeInactive, "This referral code is no longer active.", nil
	case !code.ExpiresAt.After(now):
		return CodeExpired, "This referral code has expired.", nil
	case code.UsedCount >= code.MaxUses:
		return CodeExhausted, "This referral code has reached its limit.", nil
	case viewerID == "":
		return CodeOK, "", nil
	case viewerID == code.UserID:
		return CodeSelfReferral, "You can't use your own referral code.", nil
	}
	exists, err := st.ReferralExists(ctx, code.UserID, viewerID)
	if err != nil {
		return "", "", err
	}
	if exists {
		return CodeDuplicate, "You've already been referred by this user.", nil
	}
	return CodeOK, "", nil
}

// ValidateCode reports whether code could be redeemed by viewerID without
// changing anything.
func (s *ReferralService) ValidateCode(ctx context.Context, code, viewerID string) (*ValidationResult, error) {
	rc, err := s.store.GetReferralCodeByCode(ctx, normalizeCode(code), false)
	if errors.Is(err, store.ErrNotFound) {
		return &ValidationResult{Code: CodeNotFound, Message: "This referral code doesn't exist."}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get referral code: %w", err)
	}

	outcome, msg, err := s.check(ctx, s.store, rc, viewerID)
	if err != nil {
		return nil, fmt.Errorf("check referral code: %w", err)
	}
	res := &ValidationResult{Valid: outcome == CodeOK, Code: outcome, Message: msg}
	if res.Valid {
		res.Message = "Referral code is valid."
		info := &ReferrerInfo{UserID: rc.UserID}
		if u, err := s.store.GetUser(ctx, rc.UserID); err == nil {
			info.Name = u.Name()
			info.ProfilePictureURL = u.ProfilePictureURL
		}
		res.Referrer = info
	}
	return res, nil
}

type RedeemResult struct {
	Success        bool   `json:"success"`
	Code           Code   `json:"code"`
	Message        string `json:"message"`
	ReferrerID     string `json:"referrer_id,omitempty"`
	ReferrerReward int64  `json:"referrer_reward,omitempty"`
	ReferredReward int64  `json:"referred_reward,omitempty"`
}

var errReferralRaced = errors.New("referral recorded concurrently")

// Redeem completes a referral for referredID. Both parties receive bones
// and experience in the same transaction as the referral record.
func (s *ReferralService) Redeem(ctx context.Context, referredID, code string) (*RedeemResult, error) {
	var (
		result             *RedeemResult
		referrerXP, selfXP *ExperienceResult
	)
	err := s.store.Transaction(ctx, func(tx store.Store) error {
		rc, err := tx.GetReferralCodeByCode(ctx, normalizeCode(code), true)
		if errors.Is(err, store.ErrNotFound) {
			result = &RedeemResult{Code: CodeNotFound, Message: "This referral code doesn't exist."}
			return nil
		}
		if err != nil {
			return err
		}
		outcome, msg, err := s.check(ctx, tx, rc, referredID)
		if err != nil {
			return err
		}
		if outcome != CodeOK {
			result = &RedeemResult{Code: outcome, Message: msg}
			return nil
		}

		record := &models.ReferralRecord{
			ID:             uuid.NewString(),
			ReferrerID:     rc.UserID,
			ReferredID:     referredID,
			CodeID:         rc.ID,
			Status:         models.ReferralStatusCompleted,
			ReferrerReward: s.cfg.ReferrerReward,
			ReferredReward: s.cfg.ReferredReward,
			CreatedAt:      s.clock.Now(),
		}
		if err := tx.InsertReferral(ctx, record); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return errReferralRaced
			}
			return err
		}
		if err := tx.IncrementReferralCodeUse(ctx, rc.ID); err != nil {
			return err
		}

		if err := s.progression.lockStates(ctx, tx, rc.UserID, referredID); err != nil {
			return err
		}
		if referrerXP, err = s.reward(ctx, tx, record, rc.UserID, "referrer", s.cfg.ReferrerReward, s.cfg.ReferrerAction); err != nil {
			return err
		}
		if selfXP, err = s.reward(ctx, tx, record, referredID, "referred", s.cfg.ReferredReward, s.cfg.ReferredAction); err != nil {
			return err
		}

		result = &RedeemResult{
			Success:        true,
			Code:           CodeOK,
			Message:        fmt.Sprintf("Welcome to the pack! You earned %d bones.", s.cfg.ReferredReward),
			ReferrerID:     rc.UserID,
			ReferrerReward: s.cfg.ReferrerReward,
			ReferredReward: s.cfg.ReferredReward,
		}
		return nil
	})
	if errors.Is(err, errReferralRaced) {
		result, err = &RedeemResult{Code: CodeDuplicate, Message: "You've already been referred by this user."}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redeem referral code: %w", err)
	}

	metrics.RecordReferral(string(result.Code))
	if !result.Success {
		s.log.Info("🚫 referral rejected", zap.String("user_id", referredID), zap.String("code", string(result.Code)))
		return result, nil
	}

	s.log.Info("🤝 referral redeemed", zap.String("referrer_id", result.ReferrerID), zap.String("referred_id", referredID))
	s.notifier.Notify(ctx, &models.Notification{
		UserID: result.ReferrerID,
		Kind:   models.NotificationReferral,
		Title:  "A friend joined the pack!",
		Body:   fmt.Sprintf("Your referral earned you %d bones.", result.ReferrerReward),
		Emoji:  "🐕",
	})
	s.notifier.Notify(ctx, &models.Notification{
		UserID: referredID,
		Kind:   models.NotificationReferral,
		Title:  "Welcome bonus",
		Body:   fmt.Sprintf("You earned %d bones for joining with a referral.", result.ReferredReward),
		Emoji:  "🎁",
	})
	s.progression.announce(ctx, referrerXP)
	s.progression.announce(ctx, selfXP)
	if s.achievements != nil {
		s.achievements.CheckAchievements(ctx, result.ReferrerID, TriggerReferralSuccess)
	}
	return result, nil
}

func (s *ReferralService) reward(ctx context.Context, tx store.Store, record *models.ReferralRecord, userID, role string, bones int64, action string) (*ExperienceResult, error) {
	meta := models.LedgerMetadata{Referral: &models.ReferralMetadata{
		ReferralID: record.ID,
		ReferrerID: record.ReferrerID,
		ReferredID: record.ReferredID,
		Role:       role,
	}}
	if _, err := s.ledger.Earn(ctx, tx, userID, models.CurrencyBones, bones, "referral:"+role, meta); err != nil {
		return nil, err
	}
	xp, ok := s.progression.ActionReward(action)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	return s.progression.grant(ctx, tx, userID, xp, action, meta)
}
