package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, time.Hour, cfg.Session.TTL())
	assert.Equal(t, time.Hour, cfg.Approvals.TTL())
	assert.Equal(t, 30*time.Second, cfg.Forward.Timeout())
	assert.Equal(t, 60, cfg.RateLimit.MaxCallsPerMinute)
	assert.Equal(t, "gateway:creds:", cfg.Redis.KeyPrefix)
}

func TestLoadEmptyPathYieldsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Server.Port, cfg.Server.Port)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
session:
  ttl_minutes: 15
forward:
  timeout_seconds: 5
  base_urls:
    github: https://github.internal
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 15*time.Minute, cfg.Session.TTL())
	assert.Equal(t, 5*time.Second, cfg.Forward.Timeout())
	assert.Equal(t, "https://github.internal", cfg.Forward.BaseURLs["github"])
	// Untouched sections keep their defaults.
	assert.Equal(t, time.Hour, cfg.Approvals.TTL())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ENROLLMENT_SECRETS_FILE", "/etc/gw/enrollments.json")
	t.Setenv("CREDENTIALS_FILE", "/etc/gw/creds.json")
	t.Setenv("POLICY_CONFIG_FILE", "/etc/gw/policies.json")
	t.Setenv("REDIS_ADDR", "redis:6379")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "/etc/gw/enrollments.json", cfg.Files.Enrollments)
	assert.Equal(t, "/etc/gw/creds.json", cfg.Files.Credentials)
	assert.Equal(t, "/etc/gw/policies.json", cfg.Files.Policies)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
}
