package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mapEnv(values map[string]string) func(string) string {
	return func(key string) string { return values[key] }
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := load(mapEnv(map[string]string{"AYRENE_JWT_SECRET": "s3cret"}))
	require.NoError(t, err)

	assert.Equal(t, ":5000", cfg.HTTPAddr)
	assert.Equal(t, "admin@ayrene.com", cfg.Admin.Email)
	assert.Equal(t, "staff", cfg.Auth.DefaultRole)
	assert.Contains(t, cfg.CORS.Origins, "https://www.ayrene.com")
	assert.True(t, cfg.PolicyEnabled)
	assert.Empty(t, cfg.Postgres.DSN)
}

func TestLoadRequiresSecret(t *testing.T) {
	_, err := load(mapEnv(nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
}

func TestLoadEnvOverrides(t *testing.T) {
	cfg, err := load(mapEnv(map[string]string{
		"AYRENE_JWT_SECRET":       "s3cret",
		"AYRENE_HTTP_ADDR":        ":9000",
		"AYRENE_CORS_ORIGINS":     "https://a.example, https://b.example",
		"AYRENE_POLICY_ENABLED":   "false",
		"AYRENE_SHUTDOWN_TIMEOUT": "3s",
		"AYRENE_ASSIGNABLE_ROLES": "admin,manager,staff",
		"AYRENE_DEFAULT_ROLE":     "manager",
	}))
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.HTTPAddr)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.Origins)
	assert.False(t, cfg.PolicyEnabled)
	assert.Equal(t, 3*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "manager", cfg.Auth.DefaultRole)
}

func TestLoadRejectsBadNumbers(t *testing.T) {
	_, err := load(mapEnv(map[string]string{
		"AYRENE_JWT_SECRET":        "s3cret",
		"AYRENE_PG_MAX_OPEN_CONNS": "many",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PG_MAX_OPEN_CONNS")
}

func TestLoadRejectsUnassignableDefaultRole(t *testing.T) {
	_, err := load(mapEnv(map[string]string{
		"AYRENE_JWT_SECRET":   "s3cret",
		"AYRENE_DEFAULT_ROLE": "root",
	}))
	require.Error(t, err)
}

func TestLoadTrustedProxies(t *testing.T) {
	cfg, err := load(mapEnv(map[string]string{
		"AYRENE_JWT_SECRET":      "s3cret",
		"AYRENE_TRUSTED_PROXIES": "10.0.0.0/8, 192.0.2.7",
	}))
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.0/8", "192.0.2.7"}, cfg.TrustedProxies)

	_, err = load(mapEnv(map[string]string{
		"AYRENE_JWT_SECRET":      "s3cret",
		"AYRENE_TRUSTED_PROXIES": "lb.internal",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lb.internal")
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ayrene.yaml")
	content := []byte(`
http_addr: ":7000"
auth:
  jwt_secret: from-file
postgres:
  dsn: postgres://file
log:
  level: debug
  format: text
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, err := load(mapEnv(map[string]string{
		"AYRENE_CONFIG_FILE": path,
		"AYRENE_PG_DSN":      "postgres://env",
	}))
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.HTTPAddr)
	assert.Equal(t, "from-file", cfg.Auth.JWTSecret)
	assert.Equal(t, "postgres://env", cfg.Postgres.DSN)
	assert.Equal(t, "text", cfg.Log.Format)
	// defaults survive keys the file leaves out
	assert.Equal(t, "Super Admin", cfg.Admin.Name)
}
