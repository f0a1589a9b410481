package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.AppEnv)
	assert.Equal(t, 8082, cfg.HTTPPort)
	assert.Equal(t, ":8082", cfg.Addr())
	assert.Equal(t, DriverMemory, cfg.StoreDriver)
	assert.Equal(t, 24*time.Hour, cfg.TokenTTL)
	assert.Equal(t, devSecret, cfg.JWTSecret)
	assert.False(t, cfg.SeedOnStart)
	assert.False(t, cfg.TrustProxy)
}

func TestLoadFromEnvAndDotenv(t *testing.T) {
	dir := t.TempDir()
	env := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(env, []byte("STORE_DRIVER=sqlite\nSQLITE_PATH=/tmp/gs.db\nHTTP_PORT=9000\n"), 0o600))

	// real environment wins over the file
	t.Setenv("HTTP_PORT", "9100")
	t.Setenv("TOKEN_TTL", "90m")
	t.Setenv("TRUST_PROXY", "true")
	unsetForTest(t, "SQLITE_PATH", "STORE_DRIVER")

	cfg, err := Load(env)
	require.NoError(t, err)
	assert.Equal(t, DriverSQLite, cfg.StoreDriver)
	assert.Equal(t, "/tmp/gs.db", cfg.SQLitePath)
	assert.Equal(t, 9100, cfg.HTTPPort)
	assert.Equal(t, 90*time.Minute, cfg.TokenTTL)
	assert.True(t, cfg.TrustProxy)
}

func TestLoadValidation(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.env")

	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "")
	_, err := Load(missing)
	assert.Error(t, err)

	t.Setenv("STORE_DRIVER", "mongo")
	_, err = Load(missing)
	assert.Error(t, err)

	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("APP_ENV", "prod")
	t.Setenv("JWT_SECRET", "")
	_, err = Load(missing)
	assert.Error(t, err)
}

// unsetForTest clears keys so godotenv can set them, and restores them when
// the test ends.
func unsetForTest(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}
