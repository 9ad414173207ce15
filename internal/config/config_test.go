package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("TASKFLOW_DATABASE_DSN", "postgres://localhost/taskflow")
	t.Setenv("TASKFLOW_AUTH_SECRET", "0123456789abcdef0123")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, []string{"http://localhost:4200"}, cfg.HTTP.CORSOrigins)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.Invite.TTL)
	assert.Equal(t, "Task Manager", cfg.App.Name)
	assert.Equal(t, 15*time.Minute, cfg.Sweep.Interval)
	assert.Equal(t, "taskflow", cfg.NATS.SubjectPrefix)
	assert.Empty(t, cfg.NATS.URL)
}

func TestLoadEnvOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("TASKFLOW_HTTP_ADDR", ":9999")
	t.Setenv("TASKFLOW_HTTP_CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("TASKFLOW_AUTH_TOKEN_TTL", "1h")
	t.Setenv("TASKFLOW_SMTP_HOST", "smtp.example.com")
	t.Setenv("TASKFLOW_SMTP_FROM", "noreply@example.com")
	t.Setenv("TASKFLOW_SMTP_PORT", "2525")
	t.Setenv("TASKFLOW_APP_FRONTEND_URL", "https://app.example")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.HTTP.Addr)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.HTTP.CORSOrigins)
	assert.Equal(t, time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, 2525, cfg.SMTP.Port)
	assert.Equal(t, "https://app.example", cfg.App.FrontendURL)
}

func TestLoadYAMLFileThenEnv(t *testing.T) {
	setRequired(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "taskflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte("app:\n  name: Acme Tasks\nlog:\n  level: debug\n"), 0o600))
	t.Setenv("TASKFLOW_LOG_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Acme Tasks", cfg.App.Name)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadRejectsMissingSecret(t *testing.T) {
	t.Setenv("TASKFLOW_DATABASE_DSN", "postgres://localhost/taskflow")
	t.Setenv("TASKFLOW_AUTH_SECRET", "short")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth.secret")
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			HTTP:     HTTPConfig{Addr: ":8080", RateBurst: 1, RatePerSecond: 1},
			Database: DatabaseConfig{DSN: "postgres://x"},
			Auth:     AuthConfig{Secret: "0123456789abcdef", TokenTTL: time.Hour},
			Invite:   InviteConfig{TTL: time.Hour},
			App:      AppConfig{FrontendURL: "http://localhost:4200"},
		}
	}

	cfg := base()
	assert.NoError(t, cfg.Validate())

	cfg = base()
	cfg.Database.DSN = ""
	assert.ErrorContains(t, cfg.Validate(), "database.dsn")

	cfg = base()
	cfg.SMTP.Host = "smtp.example.com"
	assert.ErrorContains(t, cfg.Validate(), "smtp.from")

	cfg = base()
	cfg.App.FrontendURL = "not a url"
	assert.ErrorContains(t, cfg.Validate(), "frontend_url")
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "database.dsn", envKey("TASKFLOW_DATABASE_DSN"))
	assert.Equal(t, "app.frontend_url", envKey("TASKFLOW_APP_FRONTEND_URL"))
	assert.Equal(t, "http.cors_origins", envKey("TASKFLOW_HTTP_CORS_ORIGINS"))
}
