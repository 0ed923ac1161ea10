package workers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"dogpark-economy/store/memstore"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const profilesJSON = `{"users":[
	{"external_id":"u1","username":"biscuit","first_name":"Biscuit","created_at":"2025-01-02T03:04:05Z","updated_at":"2026-03-01T00:00:00Z"},
	{"external_id":"u2","username":"pepper","created_at":"2025-02-02T03:04:05Z","updated_at":"2026-03-02T00:00:00Z"},
	{"external_id":"","username":"ghost"}
]}`

func newWorker(t *testing.T, st *memstore.Store, url string) *UserSyncWorker {
	w := NewUserSyncWorker(st, url, "svc-token", time.Minute, clockwork.NewFakeClock(), zaptest.NewLogger(t))
	w.initialInterval = time.Millisecond
	return w
}

func TestSyncOnceUpsertsProfiles(t *testing.T) {
	var since atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, profilesPath, r.URL.Path)
		assert.Equal(t, "svc-token", r.Header.Get("X-Service-Token"))
		since.Store(r.URL.Query().Get("since"))
		fmt.Fprint(w, profilesJSON)
	}))
	defer srv.Close()

	ctx := context.Background()
	st := memstore.New()
	n, err := newWorker(t, st, srv.URL).SyncOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "0001-01-01T00:00:00Z", since.Load())

	u, err := st.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Biscuit", u.Name())
	rank, err := st.RegistrationRank(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, int64(2), rank)

	_, err = newWorker(t, st, srv.URL).SyncOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2026-03-02T00:00:00Z", since.Load(), "incremental sync starts at the newest mirrored row")
}

func TestSyncOnceRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "warming up", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, profilesJSON)
	}))
	defer srv.Close()

	n, err := newWorker(t, memstore.New(), srv.URL).SyncOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, int32(3), calls.Load())
}

func TestSyncOnceDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad token", http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := newWorker(t, memstore.New(), srv.URL).SyncOnce(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}
