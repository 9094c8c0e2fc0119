package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sternrassler/edc-client/pkg/client"
	"github.com/Sternrassler/edc-client/pkg/logging"
)

func setCredentials(t *testing.T) {
	t.Helper()
	t.Setenv("EDC_API_KEY", "env-api-key")
	t.Setenv("EDC_SECURITY_KEY", "env-security-key")
}

func TestLoad_Defaults(t *testing.T) {
	setCredentials(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, client.DefaultBaseURL, cfg.BaseURL)
	assert.Equal(t, "env-api-key", cfg.APIKey)
	assert.Equal(t, "env-security-key", cfg.SecurityKey)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, 3, cfg.Retries)
	assert.Equal(t, time.Second, cfg.BackoffFactor)
	assert.Equal(t, 10.0, cfg.RateLimit)
	assert.Equal(t, 5, cfg.RateBurst)
	assert.Equal(t, 5*time.Second, cfg.PollInterval)
	assert.Equal(t, 5*time.Minute, cfg.JobTimeout)
	assert.Empty(t, cfg.RedisURL)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_Environment(t *testing.T) {
	setCredentials(t)
	t.Setenv("EDC_BASE_URL", "https://edc.test.example.com")
	t.Setenv("EDC_STUDY_KEY", "STUDY1")
	t.Setenv("EDC_TIMEOUT", "45s")
	t.Setenv("EDC_RETRIES", "0")
	t.Setenv("EDC_POLL_INTERVAL", "250ms")
	t.Setenv("EDC_REDIS_URL", "redis://localhost:6379/0")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "https://edc.test.example.com", cfg.BaseURL)
	assert.Equal(t, "STUDY1", cfg.StudyKey)
	assert.Equal(t, 45*time.Second, cfg.Timeout)
	assert.Equal(t, 0, cfg.Retries)
	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "edc.yaml")
	content := []byte(`api_key: file-api-key
security_key: file-security-key
study_key: FILESTUDY
retries: 5
backoff_factor: 2s
log_level: debug
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	// Environment wins over the file.
	t.Setenv("EDC_RETRIES", "1")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "file-api-key", cfg.APIKey)
	assert.Equal(t, "FILESTUDY", cfg.StudyKey)
	assert.Equal(t, 1, cfg.Retries)
	assert.Equal(t, 2*time.Second, cfg.BackoffFactor)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_MissingConfigFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, client.ErrConfiguration))
}

func TestLoad_MissingCredentials(t *testing.T) {
	t.Setenv("EDC_API_KEY", "")
	t.Setenv("EDC_SECURITY_KEY", "")

	_, err := Load("")
	require.Error(t, err)
	assert.True(t, errors.Is(err, client.ErrConfiguration))
	assert.Contains(t, err.Error(), "api_key is required (set EDC_API_KEY)")
	assert.Contains(t, err.Error(), "security_key is required (set EDC_SECURITY_KEY)")
}

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		return Config{
			BaseURL:     client.DefaultBaseURL,
			APIKey:      "a",
			SecurityKey: "s",
			Timeout:     time.Second,
			JobTimeout:  time.Minute,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad url", func(c *Config) { c.BaseURL = "not a url" }, "base_url fails url"},
		{"zero timeout", func(c *Config) { c.Timeout = 0 }, "timeout fails gt=0"},
		{"negative retries", func(c *Config) { c.Retries = -1 }, "retries fails gte=0"},
		{"negative rate", func(c *Config) { c.RateLimit = -1 }, "rate_limit fails gte=0"},
		{"zero job timeout", func(c *Config) { c.JobTimeout = 0 }, "job_timeout fails gt=0"},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "log_level fails oneof"},
		{"bad redis url", func(c *Config) { c.RedisURL = "localhost" }, "redis_url fails url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, client.KindConfiguration, client.KindOf(err))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_Conversions(t *testing.T) {
	cfg := Config{
		BaseURL:       "https://edc.test.example.com",
		APIKey:        "a",
		SecurityKey:   "s",
		Timeout:       10 * time.Second,
		Retries:       2,
		BackoffFactor: 50 * time.Millisecond,
		RateLimit:     4,
		RateBurst:     2,
		PollInterval:  time.Second,
		JobTimeout:    time.Minute,
		LogLevel:      "debug",
		LogPretty:     true,
	}

	cc := cfg.ClientConfig()
	assert.Equal(t, "https://edc.test.example.com", cc.BaseURL)
	assert.Equal(t, "a", cc.APIKey)
	assert.Equal(t, "s", cc.SecurityKey)
	assert.Equal(t, 10*time.Second, cc.Timeout)
	assert.Equal(t, 2, cc.Retries)
	assert.Equal(t, 50*time.Millisecond, cc.BackoffFactor)
	assert.NotNil(t, cc.RetryPolicy)

	rc := cfg.RateLimitConfig()
	assert.Equal(t, 4.0, rc.RequestsPerSecond)
	assert.Equal(t, 2, rc.Burst)

	jc := cfg.JobsConfig()
	assert.Equal(t, time.Second, jc.PollInterval)
	assert.Equal(t, time.Minute, jc.Timeout)

	lc := cfg.LoggingConfig()
	assert.Equal(t, logging.LevelDebug, lc.Level)
	assert.True(t, lc.Pretty)
}
