// workers/user_sync_worker.go
package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"dogpark-economy/models"
	"dogpark-economy/store"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const profilesPath = "/api/v1/public/profiles"

// RemoteProfile matches the JSON the profile service returns.
type RemoteProfile struct {
	ExternalID        string    `json:"external_id"`
	Username          string    `json:"username"`
	FirstName         *string   `json:"first_name,omitempty"`
	ProfilePictureURL *string   `json:"profile_picture_url,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type profileChangesResponse struct {
	Users []RemoteProfile `json:"users"`
}

// UserSyncWorker mirrors profile rows into the local users table, which
// feeds referrer display info and registration-rank achievements.
type UserSyncWorker struct {
	users        store.UserStore
	interval     time.Duration
	baseURL      string
	serviceToken string
	httpClient   *http.Client
	clock        clockwork.Clock
	log          *zap.Logger

	maxRetries      uint64
	initialInterval time.Duration
}

func NewUserSyncWorker(users store.UserStore, baseURL, serviceToken string, interval time.Duration, clock clockwork.Clock, log *zap.Logger) *UserSyncWorker {
	if log == nil {
		log = zap.NewNop()
	}
	return &UserSyncWorker{
		users:        users,
		interval:     interval,
		baseURL:      baseURL,
		serviceToken: serviceToken,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		clock:           clock,
		log:             log,
		maxRetries:      3,
		initialInterval: 2 * time.Second,
	}
}

func (w *UserSyncWorker) Start(ctx context.Context) {
	w.log.Info("🔁 starting user sync worker", zap.String("source", w.baseURL), zap.Duration("interval", w.interval))
	go w.run(ctx)
}

func (w *UserSyncWorker) run(ctx context.Context) {
	if _, err := w.SyncOnce(ctx); err != nil {
		w.log.Warn("⚠️ initial user sync failed", zap.Error(err))
	}

	ticker := w.clock.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			if _, err := w.SyncOnce(ctx); err != nil {
				w.log.Error("❌ user sync batch failed", zap.Error(err))
			}
		case <-ctx.Done():
			w.log.Info("⏹️ user sync worker stopped")
			return
		}
	}
}

// SyncOnce fetches every profile changed since the newest local row and
// upserts it. It returns the number of rows written.
func (w *UserSyncWorker) SyncOnce(ctx context.Context) (int, error) {
	since, err := w.users.LatestUserUpdate(ctx)
	if err != nil {
		return 0, fmt.Errorf("latest user update: %w", err)
	}

	var profiles []RemoteProfile
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.initialInterval
	err = backoff.RetryNotify(
		func() error {
			var fetchErr error
			profiles, fetchErr = w.fetch(ctx, since)
			return fetchErr
		},
		backoff.WithContext(backoff.WithMaxRetries(b, w.maxRetries), ctx),
		func(err error, d time.Duration) {
			w.log.Warn("⚠️ profile fetch failed, retrying", zap.Error(err), zap.Duration("backoff", d))
		},
	)
	if err != nil {
		return 0, err
	}

	written := 0
	for _, p := range profiles {
		if p.ExternalID == "" {
			continue
		}
		u := &models.User{
			ID:                uuid.NewString(),
			ExternalUserID:    p.ExternalID,
			Username:          p.Username,
			DisplayName:       p.FirstName,
			ProfilePictureURL: p.ProfilePictureURL,
			RegisteredAt:      p.CreatedAt,
			UpdatedAt:         p.UpdatedAt,
		}
		if err := w.users.UpsertUser(ctx, u); err != nil {
			w.log.Warn("⚠️ failed to upsert user", zap.String("external_id", p.ExternalID), zap.Error(err))
			continue
		}
		written++
	}
	if written > 0 {
		w.log.Info("✅ users synced", zap.Int("received", len(profiles)), zap.Int("written", written))
	}
	return written, nil
}

func (w *UserSyncWorker) fetch(ctx context.Context, since time.Time) ([]RemoteProfile, error) {
	base, err := url.Parse(w.baseURL)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("invalid profile service URL %q: %w", w.baseURL, err))
	}
	endpoint := base.JoinPath(profilesPath)
	q := endpoint.Query()
	q.Set("since", since.UTC().Format(time.RFC3339))
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("build profile request: %w", err))
	}
	req.Header.Set("X-Service-Token", w.serviceToken)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("profile request failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		err := fmt.Errorf("profile service returned %d: %s", resp.StatusCode, body)
		if resp.StatusCode < http.StatusInternalServerError {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	var out profileChangesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode profile response: %w", err)
	}
	return out.Users, nil
}
