package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, StoreMySQL, cfg.StoreDriver)
	assert.Equal(t, 5*time.Second, cfg.PlaceOrderTimeout)
	assert.Equal(t, 4, cfg.WorkerCount)
	assert.Equal(t, 500*time.Millisecond, cfg.CacheRecheckDelay)
	assert.Empty(t, cfg.RedisAddr)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("PLACE_ORDER_TIMEOUT", "250ms")
	t.Setenv("WORKER_COUNT", "2")
	t.Setenv("CACHE_RECHECK_DELAY", "0s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StoreMemory, cfg.StoreDriver)
	assert.Equal(t, 250*time.Millisecond, cfg.PlaceOrderTimeout)
	assert.Equal(t, 2, cfg.WorkerCount)
	assert.Zero(t, cfg.CacheRecheckDelay)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")

	t.Run("driver", func(t *testing.T) {
		t.Setenv("STORE_DRIVER", "sqlite")
		_, err := Load()
		assert.ErrorContains(t, err, "STORE_DRIVER")
	})

	t.Run("duration", func(t *testing.T) {
		t.Setenv("PLACE_ORDER_TIMEOUT", "soon")
		_, err := Load()
		assert.ErrorContains(t, err, "PLACE_ORDER_TIMEOUT")
	})

	t.Run("workers", func(t *testing.T) {
		t.Setenv("WORKER_COUNT", "0")
		_, err := Load()
		assert.ErrorContains(t, err, "WORKER_COUNT")
	})
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	assert.ErrorContains(t, err, "JWT_SECRET")
}
