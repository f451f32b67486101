package core

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("POSTGRES_URL", "")
	t.Setenv("LOCKOUT_WINDOW", "")
	t.Setenv("LOCKOUT_THRESHOLD", "")
	t.Setenv("BCRYPT_COST", "")
	t.Setenv("BOOTSTRAP_ADMIN", "")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, DefaultLockoutThreshold, cfg.LockoutThreshold)
	require.Equal(t, 15*time.Minute, cfg.LockoutWindow)
	require.Equal(t, 12, cfg.BcryptCost)
	require.Equal(t, "sqlite://registry.db", cfg.DatabaseURL)
	require.True(t, cfg.BootstrapAdminEnabled)
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: "9000"
database_url: postgres://registry@db/registry
lockout_threshold: 3
lockout_window: 5m
allowed_origins:
  - http://localhost:5173
seed_demo_user: true
`), 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PORT", "9100")
	t.Setenv("LOCKOUT_WINDOW", "not-a-duration")
	t.Setenv("ALLOWED_ORIGINS", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("POSTGRES_URL", "")
	t.Setenv("LOCKOUT_THRESHOLD", "")
	t.Setenv("BCRYPT_COST", "")
	t.Setenv("SEED_DEMO_USER", "")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "9100", cfg.Port)
	require.Equal(t, "postgres://registry@db/registry", cfg.DatabaseURL)
	require.Equal(t, 3, cfg.LockoutThreshold)
	require.Equal(t, 5*time.Minute, cfg.LockoutWindow)
	require.Equal(t, []string{"http://localhost:5173"}, cfg.AllowedOrigins)
	require.True(t, cfg.SeedDemoUser)
	require.Equal(t, DefaultBcryptCost, cfg.BcryptCost)
}

func TestLoadBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: [unterminated"), 0o600))
	t.Setenv("CONFIG_FILE", path)

	_, err := Load()
	require.Error(t, err)

	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err = Load()
	require.Error(t, err)
}

func TestParseCSV(t *testing.T) {
	require.Equal(t, []string{"a", "b"}, parseCSV(" a, ,b ,"))
	require.Nil(t, parseCSV(""))
}
