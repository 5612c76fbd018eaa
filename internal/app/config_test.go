package app

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("SESSION_SECRET", "session-secret")
	t.Setenv("CSRF_SECRET", "csrf-secret")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, cfg.RBACQueryTimeout)
	assert.True(t, cfg.RBACCacheEnabled)
	assert.Equal(t, 30*time.Second, cfg.RBACCacheTTL)
	assert.Equal(t, "/auth/login", cfg.RBACLoginPath)
	assert.Equal(t, "/403", cfg.RBACForbiddenPath)
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfigRequiresSecrets(t *testing.T) {
	t.Setenv("SESSION_SECRET", "")
	t.Setenv("CSRF_SECRET", "")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestLoadConfigRejectsZeroCacheTTL(t *testing.T) {
	t.Setenv("SESSION_SECRET", "s")
	t.Setenv("CSRF_SECRET", "c")
	t.Setenv("RBAC_CACHE_ENABLED", "true")
	t.Setenv("RBAC_CACHE_TTL", "0s")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, logLevel(&Config{LogLevel: "DEBUG"}))
	assert.Equal(t, slog.LevelWarn, logLevel(&Config{LogLevel: "warning"}))
	assert.Equal(t, slog.LevelInfo, logLevel(&Config{LogLevel: "verbose"}))
	assert.Equal(t, slog.LevelInfo, logLevel(nil))
}

func TestInTestMode(t *testing.T) {
	t.Setenv("STOREFRONT_TEST_MODE", "1")
	RefreshTestMode()
	assert.True(t, InTestMode())

	t.Setenv("STOREFRONT_TEST_MODE", "0")
	RefreshTestMode()
	assert.False(t, InTestMode())
}
