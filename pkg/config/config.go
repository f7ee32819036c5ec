// Package config provides configuration loading and validation for the rbtree tool.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Sentinel validation errors.
var (
	ErrInvalidLogLevel    = errors.New("invalid log level")
	ErrInvalidLogFormat   = errors.New("invalid log format")
	ErrInvalidShards      = errors.New("allocator shards must be positive")
	ErrInvalidLimit       = errors.New("allocator limit must not be negative")
	ErrInvalidThreshold   = errors.New("hibernation threshold must not be negative")
	ErrInvalidOps         = errors.New("bench ops must be positive")
	ErrInvalidKeySpace    = errors.New("bench key space must be positive")
	ErrInvalidDeleteRatio = errors.New("bench delete ratio must be within [0, 1)")
	ErrInvalidSampleRatio = errors.New("telemetry sample ratio must be within [0, 1]")
)

// Default configuration values.
const (
	defaultShards               = 4
	defaultHibernationThreshold = 4096
	defaultOps                  = 100000
	defaultKeySpace             = 10000
	defaultSeed                 = 1
	defaultDeleteRatio          = 0.4
	defaultCheckEvery           = 1000
	defaultRounds               = 4
	defaultEnvPrefix            = "RBTREE"
)

// Log formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Config holds all configuration for the rbtree tool.
type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging"`
	Allocator AllocatorConfig `mapstructure:"allocator"`
	Bench     BenchConfig     `mapstructure:"bench"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// LoggingConfig holds logging-specific configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// AllocatorConfig holds the node allocator settings.
type AllocatorConfig struct {
	// HibernationThreshold is the storage size below which hibernation is skipped.
	HibernationThreshold int `mapstructure:"hibernation_threshold"`
	// Limit caps the live nodes over all shards. Zero means unbounded.
	Limit  int `mapstructure:"limit"`
	Shards int `mapstructure:"shards"`
}

// BenchConfig holds the defaults of the randomized workload.
type BenchConfig struct {
	Ops         int     `mapstructure:"ops"`
	KeySpace    int     `mapstructure:"key_space"`
	Seed        int64   `mapstructure:"seed"`
	DeleteRatio float64 `mapstructure:"delete_ratio"`
	CheckEvery  int     `mapstructure:"check_every"`
	Rounds      int     `mapstructure:"rounds"`
}

// TelemetryConfig holds OpenTelemetry export settings.
type TelemetryConfig struct {
	Environment     string        `mapstructure:"environment"`
	OTLPEndpoint    string        `mapstructure:"otlp_endpoint"`
	OTLPHeaders     string        `mapstructure:"otlp_headers"`
	OTLPInsecure    bool          `mapstructure:"otlp_insecure"`
	SampleRatio     float64       `mapstructure:"sample_ratio"`
	MetricsAddr     string        `mapstructure:"metrics_addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// SlogLevel converts the configured level name.
func (lc LoggingConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level

	err := level.UnmarshalText([]byte(lc.Level))
	if err != nil {
		return slog.LevelInfo, fmt.Errorf("%w: %q", ErrInvalidLogLevel, lc.Level)
	}

	return level, nil
}

// LoadConfig loads configuration from file and environment variables.
// An empty configPath searches for rbtree.yaml in the usual places; a missing
// file is not an error then.
func LoadConfig(configPath string) (*Config, error) {
	viperCfg := viper.New()

	setDefaults(viperCfg)

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName("rbtree")
		viperCfg.SetConfigType("yaml")
		viperCfg.AddConfigPath(".")
		viperCfg.AddConfigPath("./config")
		viperCfg.AddConfigPath("/etc/rbtree")
	}

	viperCfg.SetEnvPrefix(defaultEnvPrefix)
	viperCfg.AutomaticEnv()
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFoundErr viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFoundErr) {
			return nil, fmt.Errorf("failed to read config file: %w", readErr)
		}
	}

	var config Config

	unmarshalErr := viperCfg.Unmarshal(&config)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", unmarshalErr)
	}

	validateErr := validateConfig(&config)
	if validateErr != nil {
		return nil, fmt.Errorf("invalid configuration: %w", validateErr)
	}

	return &config, nil
}

func setDefaults(viperCfg *viper.Viper) {
	viperCfg.SetDefault("logging.level", "info")
	viperCfg.SetDefault("logging.format", FormatText)

	viperCfg.SetDefault("allocator.hibernation_threshold", defaultHibernationThreshold)
	viperCfg.SetDefault("allocator.limit", 0)
	viperCfg.SetDefault("allocator.shards", defaultShards)

	viperCfg.SetDefault("bench.ops", defaultOps)
	viperCfg.SetDefault("bench.key_space", defaultKeySpace)
	viperCfg.SetDefault("bench.seed", defaultSeed)
	viperCfg.SetDefault("bench.delete_ratio", defaultDeleteRatio)
	viperCfg.SetDefault("bench.check_every", defaultCheckEvery)
	viperCfg.SetDefault("bench.rounds", defaultRounds)

	viperCfg.SetDefault("telemetry.environment", "")
	viperCfg.SetDefault("telemetry.otlp_endpoint", "")
	viperCfg.SetDefault("telemetry.otlp_headers", "")
	viperCfg.SetDefault("telemetry.otlp_insecure", false)
	viperCfg.SetDefault("telemetry.sample_ratio", 0)
	viperCfg.SetDefault("telemetry.metrics_addr", "")
	viperCfg.SetDefault("telemetry.shutdown_timeout", "5s")
}

func validateConfig(config *Config) error {
	if _, err := config.Logging.SlogLevel(); err != nil {
		return err
	}

	if config.Logging.Format != FormatText && config.Logging.Format != FormatJSON {
		return fmt.Errorf("%w: %q", ErrInvalidLogFormat, config.Logging.Format)
	}

	if config.Allocator.Shards <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidShards, config.Allocator.Shards)
	}

	if config.Allocator.Limit < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidLimit, config.Allocator.Limit)
	}

	if config.Allocator.HibernationThreshold < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidThreshold, config.Allocator.HibernationThreshold)
	}

	if config.Bench.Ops <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidOps, config.Bench.Ops)
	}

	if config.Bench.KeySpace <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidKeySpace, config.Bench.KeySpace)
	}

	if config.Bench.DeleteRatio < 0 || config.Bench.DeleteRatio >= 1 {
		return fmt.Errorf("%w: %g", ErrInvalidDeleteRatio, config.Bench.DeleteRatio)
	}

	if config.Telemetry.SampleRatio < 0 || config.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("%w: %g", ErrInvalidSampleRatio, config.Telemetry.SampleRatio)
	}

	return nil
}
