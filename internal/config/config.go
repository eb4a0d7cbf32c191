package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds all runtime configuration for a tempo invocation.
// Values are populated from .tempo.yaml, TEMPO_* env vars, and CLI flags.
type Config struct {
	WorkDir         string        `mapstructure:"work_dir" validate:"required"`
	StoreDir        string        `mapstructure:"store_dir" validate:"required"`
	MaxAttempts     int           `mapstructure:"max_attempts" validate:"min=1"`
	RetryBackoff    time.Duration `mapstructure:"retry_backoff" validate:"min=0"`
	RetryBackoffMax time.Duration `mapstructure:"retry_backoff_max" validate:"min=0,gtefield=RetryBackoff"`
	UseGit          bool          `mapstructure:"use_git"`
	GitPath         string        `mapstructure:"git_path" validate:"required_if=UseGit true"`
	Reservations    bool          `mapstructure:"reservations"`
	Telemetry       bool          `mapstructure:"telemetry"`
	Verbose         bool          `mapstructure:"verbose"`
}

// Load reads configuration from viper, applying built-in defaults for any
// values not set by config file, environment, or flags.
func Load() (Config, error) {
	viper.SetDefault("work_dir", ".")
	viper.SetDefault("store_dir", ".tempo")
	viper.SetDefault("max_attempts", 3)
	viper.SetDefault("retry_backoff", 30*time.Second)
	viper.SetDefault("retry_backoff_max", 10*time.Minute)
	viper.SetDefault("use_git", true)
	viper.SetDefault("git_path", "git")
	viper.SetDefault("reservations", false)
	viper.SetDefault("telemetry", true)
	viper.SetDefault("verbose", false)

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// StorePath returns the store directory. A relative StoreDir is resolved
// against WorkDir.
func (c Config) StorePath() string {
	if filepath.IsAbs(c.StoreDir) {
		return c.StoreDir
	}
	return filepath.Join(c.WorkDir, c.StoreDir)
}
