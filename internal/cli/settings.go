package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/roach88/conformity/internal/engine"
)

// EnvPrefix prefixes the environment variables that override settings,
// e.g. CONFORMITY_MAX_CONCURRENT.
const EnvPrefix = "CONFORMITY"

// DefaultDatabase keeps configs in memory for the life of one command.
const DefaultDatabase = ":memory:"

// Settings holds the engine and storage settings of the CLI.
type Settings struct {
	MaxConcurrent    int           `mapstructure:"max_concurrent"`
	QueueLimit       int           `mapstructure:"queue_limit"`
	Workers          int           `mapstructure:"workers"`
	Sequential       bool          `mapstructure:"sequential"`
	Timeout          time.Duration `mapstructure:"timeout"`
	ResultCacheSize  int           `mapstructure:"result_cache_size"`
	ResultCacheTTL   time.Duration `mapstructure:"result_cache_ttl"`
	ContentCacheSize int           `mapstructure:"content_cache_size"`
	ContentCacheTTL  time.Duration `mapstructure:"content_cache_ttl"`
	DB               string        `mapstructure:"db"`
}

// newViper returns a viper instance with the settings defaults and the
// CONFORMITY_ environment binding.
func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	return v
}

func setDefaults(v *viper.Viper) {
	// Orchestrator defaults
	v.SetDefault("max_concurrent", engine.DefaultMaxConcurrent)
	v.SetDefault("queue_limit", engine.DefaultQueueLimit)
	v.SetDefault("workers", engine.DefaultWorkers)
	v.SetDefault("sequential", false)
	v.SetDefault("timeout", engine.DefaultTimeout.String())

	// Cache defaults
	v.SetDefault("result_cache_size", engine.DefaultResultCacheSize)
	v.SetDefault("result_cache_ttl", engine.DefaultResultCacheTTL.String())
	v.SetDefault("content_cache_size", engine.DefaultContentCacheSize)
	v.SetDefault("content_cache_ttl", engine.DefaultContentCacheTTL.String())

	// Storage defaults
	v.SetDefault("db", DefaultDatabase)
}

// LoadSettings reads the optional settings file into v and decodes the
// result. Precedence: flags bound to v, then environment, then the file,
// then defaults.
func LoadSettings(v *viper.Viper, file string) (*Settings, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read settings file: %w", err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
	}

	if err := s.validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	return &s, nil
}

func (s *Settings) validate() error {
	var errs []error
	if s.MaxConcurrent <= 0 {
		errs = append(errs, fmt.Errorf("max_concurrent must be positive, got %d", s.MaxConcurrent))
	}
	if s.QueueLimit < 0 {
		errs = append(errs, fmt.Errorf("queue_limit must not be negative, got %d", s.QueueLimit))
	}
	if s.Workers <= 0 {
		errs = append(errs, fmt.Errorf("workers must be positive, got %d", s.Workers))
	}
	if s.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("timeout must be positive, got %s", s.Timeout))
	}
	if s.ResultCacheSize <= 0 || s.ContentCacheSize <= 0 {
		errs = append(errs, errors.New("cache sizes must be positive"))
	}
	if s.DB == "" {
		errs = append(errs, errors.New("db must not be empty"))
	}
	return errors.Join(errs...)
}

// EngineOptions converts the settings to orchestrator options.
func (s *Settings) EngineOptions() []engine.Option {
	opts := []engine.Option{
		engine.WithMaxConcurrent(s.MaxConcurrent),
		engine.WithQueueLimit(s.QueueLimit),
		engine.WithWorkers(s.Workers),
		engine.WithDefaultTimeout(s.Timeout),
		engine.WithResultCache(s.ResultCacheSize, s.ResultCacheTTL),
		engine.WithContentCache(s.ContentCacheSize, s.ContentCacheTTL),
	}
	if s.Sequential {
		opts = append(opts, engine.WithSequential())
	}
	return opts
}
