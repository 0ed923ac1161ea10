package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	t.Setenv("ECONOMY_SERVICE_TOKEN", "secret")
	t.Setenv("STORE_DRIVER", StoreDriverMemory)

	cfg, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, "5300", cfg.Port)
	assert.Equal(t, 5*time.Minute, cfg.SpawnInterval)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.AllowedOrigins)
	assert.False(t, cfg.R2.Enabled())
	assert.False(t, cfg.ProfileSyncEnabled())
	assert.False(t, cfg.Development())
}

func TestParseReadsNestedR2(t *testing.T) {
	t.Setenv("ECONOMY_SERVICE_TOKEN", "secret")
	t.Setenv("DATABASE_URL", "postgres://localhost/economy")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("R2_ACCOUNT_ID", "acc")
	t.Setenv("R2_ACCESS_KEY_ID", "key")
	t.Setenv("R2_ACCESS_KEY_SECRET", "shh")
	t.Setenv("R2_BUCKET_NAME", "ledger")

	cfg, err := Parse()
	require.NoError(t, err)
	assert.Equal(t, StoreDriverPostgres, cfg.StoreDriver)
	assert.True(t, cfg.R2.Enabled())
	assert.Equal(t, "ledger", cfg.R2.Bucket)
	assert.Len(t, cfg.AllowedOrigins, 2)
}

func TestParseErrors(t *testing.T) {
	t.Run("missing token", func(t *testing.T) {
		t.Setenv("ECONOMY_SERVICE_TOKEN", "")
		t.Setenv("STORE_DRIVER", StoreDriverMemory)
		_, err := Parse()
		assert.Error(t, err)
	})
	t.Run("postgres without url", func(t *testing.T) {
		t.Setenv("ECONOMY_SERVICE_TOKEN", "secret")
		t.Setenv("STORE_DRIVER", StoreDriverPostgres)
		t.Setenv("DATABASE_URL", "")
		_, err := Parse()
		assert.Error(t, err)
	})
	t.Run("unknown driver", func(t *testing.T) {
		t.Setenv("ECONOMY_SERVICE_TOKEN", "secret")
		t.Setenv("STORE_DRIVER", "sqlite")
		_, err := Parse()
		assert.Error(t, err)
	})
}
