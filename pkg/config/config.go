// Package config loads edc-client settings from defaults, an optional YAML
// file and EDC_* environment variables.
package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/Sternrassler/edc-client/pkg/client"
	"github.com/Sternrassler/edc-client/pkg/jobs"
	"github.com/Sternrassler/edc-client/pkg/logging"
	"github.com/Sternrassler/edc-client/pkg/ratelimit"
)

// EnvPrefix is prepended to every environment variable, e.g. EDC_API_KEY.
const EnvPrefix = "EDC"

// Configuration keys.
const (
	KeyBaseURL       = "base_url"
	KeyAPIKey        = "api_key"
	KeySecurityKey   = "security_key"
	KeyStudyKey      = "study_key"
	KeyTimeout       = "timeout"
	KeyRetries       = "retries"
	KeyBackoffFactor = "backoff_factor"
	KeyRateLimit     = "rate_limit"
	KeyRateBurst     = "rate_burst"
	KeyPollInterval  = "poll_interval"
	KeyJobTimeout    = "job_timeout"
	KeyRedisURL      = "redis_url"
	KeyLogLevel      = "log_level"
	KeyLogPretty     = "log_pretty"
)

// Config is the complete runtime configuration.
type Config struct {
	BaseURL     string `mapstructure:"base_url" validate:"required,url"`
	APIKey      string `mapstructure:"api_key" validate:"required"`
	SecurityKey string `mapstructure:"security_key" validate:"required"`

	// StudyKey is used when a call names no study.
	StudyKey string `mapstructure:"study_key"`

	Timeout       time.Duration `mapstructure:"timeout" validate:"gt=0"`
	Retries       int           `mapstructure:"retries" validate:"gte=0"`
	BackoffFactor time.Duration `mapstructure:"backoff_factor" validate:"gte=0"`

	// RateLimit is requests per second; 0 disables client-side limiting.
	RateLimit float64 `mapstructure:"rate_limit" validate:"gte=0"`
	RateBurst int     `mapstructure:"rate_burst" validate:"gte=0"`

	PollInterval time.Duration `mapstructure:"poll_interval" validate:"gte=0"`
	JobTimeout   time.Duration `mapstructure:"job_timeout" validate:"gt=0"`

	// RedisURL enables the shared list cache, e.g. redis://localhost:6379/0.
	RedisURL string `mapstructure:"redis_url" validate:"omitempty,url"`

	LogLevel  string `mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error disabled off"`
	LogPretty bool   `mapstructure:"log_pretty"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// SetDefaults registers the default of every key on v.
func SetDefaults(v *viper.Viper) {
	jobDefaults := jobs.DefaultConfig()
	rateDefaults := ratelimit.DefaultConfig()

	v.SetDefault(KeyBaseURL, client.DefaultBaseURL)
	v.SetDefault(KeyAPIKey, "")
	v.SetDefault(KeySecurityKey, "")
	v.SetDefault(KeyStudyKey, "")
	v.SetDefault(KeyTimeout, 30*time.Second)
	v.SetDefault(KeyRetries, 3)
	v.SetDefault(KeyBackoffFactor, time.Second)
	v.SetDefault(KeyRateLimit, rateDefaults.RequestsPerSecond)
	v.SetDefault(KeyRateBurst, rateDefaults.Burst)
	v.SetDefault(KeyPollInterval, jobDefaults.PollInterval)
	v.SetDefault(KeyJobTimeout, jobDefaults.Timeout)
	v.SetDefault(KeyRedisURL, "")
	v.SetDefault(KeyLogLevel, string(logging.LevelInfo))
	v.SetDefault(KeyLogPretty, false)
}

// NewViper returns a viper instance with defaults and EDC_* environment
// binding. configFile is read when non-empty.
func NewViper(configFile string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, &client.Error{
				Kind:    client.KindConfiguration,
				Message: fmt.Sprintf("read config file %s", configFile),
				Err:     err,
			}
		}
	}

	return v, nil
}

// Load reads and validates the configuration.
func Load(configFile string) (*Config, error) {
	v, err := NewViper(configFile)
	if err != nil {
		return nil, err
	}
	return FromViper(v)
}

// FromViper decodes and validates the configuration held by v. Callers that
// bind command-line flags into v use this instead of Load.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, &client.Error{Kind: client.KindConfiguration, Message: "decode config", Err: err}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the configuration and reports every invalid key.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &client.Error{Kind: client.KindConfiguration, Message: "validate config", Err: err}
	}

	problems := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			problems = append(problems, fmt.Sprintf("%s is required (set %s_%s)", fe.Field(), EnvPrefix, strings.ToUpper(fe.Field())))
		default:
			problems = append(problems, fmt.Sprintf("%s fails %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		}
	}

	return client.NewError(client.KindConfiguration, "invalid config: %s", strings.Join(problems, "; "))
}

// ClientConfig converts to the executor configuration.
func (c *Config) ClientConfig() client.Config {
	cfg := client.DefaultConfig(c.APIKey, c.SecurityKey)
	cfg.BaseURL = c.BaseURL
	cfg.Timeout = c.Timeout
	cfg.Retries = c.Retries
	cfg.BackoffFactor = c.BackoffFactor
	return cfg
}

// RateLimitConfig converts to the limiter configuration.
func (c *Config) RateLimitConfig() ratelimit.Config {
	return ratelimit.Config{
		RequestsPerSecond: c.RateLimit,
		Burst:             c.RateBurst,
	}
}

// JobsConfig converts to the poller configuration.
func (c *Config) JobsConfig() jobs.Config {
	return jobs.Config{
		PollInterval: c.PollInterval,
		Timeout:      c.JobTimeout,
	}
}

// LoggingConfig converts to the logger configuration.
func (c *Config) LoggingConfig() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.Level(c.LogLevel)
	cfg.Pretty = c.LogPretty
	return cfg
}
