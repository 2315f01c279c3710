package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("ABSEN_CONFIG", filepath.Join(t.TempDir(), "missing.toml"))
	_, err := Load()
	require.Error(t, err, "an explicitly named config file must exist")

	t.Setenv("ABSEN_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("ABSEN_API_URL", "https://www.reihan.biz.id/api/v1")
	t.Setenv("ABSEN_HTTP_TIMEOUT", "20s")
	t.Setenv("ABSEN_PRIVILEGED_ROLES", "staff, admin ,guru")
	t.Setenv("ABSEN_STORAGE", "redis")
	t.Setenv("REDIS_ADDR", "127.0.0.1:6379")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("ACCESS_TOKEN_TTL_SECONDS", "3600")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://www.reihan.biz.id/api/v1", cfg.APIBaseURL)
	assert.Equal(t, 20*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, []string{"staff", "admin", "guru"}, cfg.PrivilegedRoles)
	assert.Equal(t, "redis", cfg.Storage.Backend)
	assert.Equal(t, "127.0.0.1:6379", cfg.Storage.RedisAddr)
	assert.Equal(t, 3, cfg.Storage.RedisDB)
	assert.Equal(t, time.Hour, cfg.DevAPI.AccessTokenTTL)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := `
api_base_url = "http://school.local/api/v1"
privileged_roles = ["admin"]
http_timeout = "5s"

[storage]
backend = "bolt"
bolt_path = "/var/lib/absen/slots.db"

[devapi]
login_shape = "data"
access_token_ttl = "30m"
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
	t.Setenv("ABSEN_CONFIG", path)
	t.Setenv("ABSEN_STORAGE", "")
	t.Setenv("ABSEN_API_URL", "")
	t.Setenv("DEVAPI_LOGIN_SHAPE", "token")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "http://school.local/api/v1", cfg.APIBaseURL)
	assert.Equal(t, []string{"admin"}, cfg.PrivilegedRoles)
	assert.Equal(t, 5*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, "bolt", cfg.Storage.Backend)
	assert.Equal(t, "/var/lib/absen/slots.db", cfg.Storage.BoltPath)
	assert.Equal(t, 30*time.Minute, cfg.DevAPI.AccessTokenTTL)
	assert.Equal(t, "token", cfg.DevAPI.LoginShape, "env overrides the file")
	assert.Equal(t, "http://127.0.0.1:8080", cfg.Origin, "unset keys keep defaults")
}
