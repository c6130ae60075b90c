package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unsetenv clears key for the duration of the test.
func unsetenv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/trekpay")
	unsetenv(t, "JOB_POLL_INTERVAL", "JOB_MAX_RETRIES", "JOB_BACKOFF_MAX_DELAY", "REDIS_URL", "NOTIFY_OPS_EMAILS", "LOG_LEVEL")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "postgres://localhost:5432/trekpay", cfg.DB.URL)
	assert.Equal(t, 30*time.Second, cfg.Worker.Interval)
	assert.Equal(t, 10, cfg.Worker.BatchSize)
	assert.Equal(t, 5, cfg.Worker.MaxRetries)
	assert.Equal(t, time.Minute, cfg.Worker.BackoffBase)
	assert.Zero(t, cfg.Worker.BackoffMax)
	assert.Equal(t, "*/5 * * * *", cfg.Worker.ReaperCron)
	assert.Equal(t, 10*time.Minute, cfg.Worker.ClaimTimeout)
	assert.Equal(t, ":8081", cfg.App.ProbeAddr)
	assert.Equal(t, 15*time.Minute, cfg.Token.CacheTTL)
	assert.Equal(t, 8, cfg.Token.MinLength)
	assert.False(t, cfg.Redis.Enabled())
	assert.False(t, cfg.Notify.Enabled())
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_DotenvFile(t *testing.T) {
	unsetenv(t, "DATABASE_URL", "JOB_BATCH_SIZE", "NOTIFY_OPS_EMAILS")
	t.Setenv("JOB_MAX_RETRIES", "3")

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(
		"DATABASE_URL=postgres://db/trekpay\n"+
			"JOB_BATCH_SIZE=25\n"+
			"JOB_MAX_RETRIES=9\n"+
			"NOTIFY_OPS_EMAILS=a@trekpay.test,b@trekpay.test\n",
	), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres://db/trekpay", cfg.DB.URL)
	assert.Equal(t, 25, cfg.Worker.BatchSize)
	// The process environment wins over the file.
	assert.Equal(t, 3, cfg.Worker.MaxRetries)
	assert.Equal(t, []string{"a@trekpay.test", "b@trekpay.test"}, cfg.Notify.Recipients)
}

func TestLoad_MissingDatabaseURL(t *testing.T) {
	unsetenv(t, "DATABASE_URL")

	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.ErrorIs(t, err, ErrParse)
}

func TestValidate(t *testing.T) {
	base := Config{Worker: Worker{
		Timeout:      30 * time.Second,
		ClaimTimeout: 10 * time.Minute,
		BackoffBase:  time.Minute,
		MaxRetries:   5,
	}}
	require.NoError(t, base.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"claim timeout below handler timeout", func(c *Config) { c.Worker.ClaimTimeout = 10 * time.Second }, "JOB_CLAIM_TIMEOUT"},
		{"claim timeout within ledger grace", func(c *Config) { c.Worker.ClaimTimeout = 35 * time.Second }, "ledger timeout"},
		{"cap below base", func(c *Config) { c.Worker.BackoffMax = time.Second }, "JOB_BACKOFF_MAX_DELAY"},
		{"no retries", func(c *Config) { c.Worker.MaxRetries = 0 }, "JOB_MAX_RETRIES"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "unknown level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			assert.ErrorIs(t, err, ErrInvalid)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}
