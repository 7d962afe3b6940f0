package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaultsAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database:\n  driver: sqlite\n  sqlite_path: /tmp/a.db\n"), 0o644))

	t.Setenv("APP_SERVER_PORT", "9090")

	cfg, err := Load("ignored", path)
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.Equal(t, "/tmp/a.db", cfg.Database.GetDSN())
	require.Equal(t, 1, cfg.Capture.UpsertRetries)
	require.Equal(t, "log", cfg.Notification.Channel)
	require.Equal(t, 20.0, cfg.Server.RateLimitRPS)
	require.Equal(t, 40, cfg.Server.RateLimitBurst)
	require.Same(t, cfg, Get())
}

func TestGetDSNPostgres(t *testing.T) {
	c := DatabaseConfig{Driver: "postgres", Host: "db", Port: 5432, User: "u", Password: "p", DBName: "audits", SSLMode: "disable"}
	require.Equal(t, "host=db port=5432 user=u password=p dbname=audits sslmode=disable", c.GetDSN())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("missing", filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
