package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	Detector DetectorConfig `mapstructure:"detector"`
	Recalc   RecalcConfig   `mapstructure:"recalc"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Server   ServerConfig   `mapstructure:"server"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// DetectorConfig holds the occurrence matching window policy
type DetectorConfig struct {
	LagMultiplier float64       `mapstructure:"lag_multiplier"`
	MinWindow     time.Duration `mapstructure:"min_window"`
	MaxWindow     time.Duration `mapstructure:"max_window"`
}

// RecalcConfig holds correlation recalculation configuration
type RecalcConfig struct {
	MinSamples int           `mapstructure:"min_samples"`
	Lookback   time.Duration `mapstructure:"lookback"`
}

// StorageConfig holds storage and persistence configuration
type StorageConfig struct {
	DBPath    string        `mapstructure:"db_path"`
	Retention time.Duration `mapstructure:"retention"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	DefaultRange    time.Duration `mapstructure:"default_range"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// TelegramConfig holds Telegram digest configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
	TopN           int           `mapstructure:"top_n"`
	Cooldown       time.Duration `mapstructure:"cooldown"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
// An empty path skips the file and uses defaults plus environment.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// FLARELINE_DETECTOR_MIN_WINDOW overrides detector.min_window
	v.SetEnvPrefix("FLARELINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// Detector defaults
	v.SetDefault("detector.lag_multiplier", 2.0)
	v.SetDefault("detector.min_window", "4h")
	v.SetDefault("detector.max_window", "48h")

	// Recalc defaults
	v.SetDefault("recalc.min_samples", 3)
	v.SetDefault("recalc.lookback", "720h")

	// Storage defaults
	v.SetDefault("storage.db_path", "./data/flareline.db")
	v.SetDefault("storage.retention", "8760h")

	// Server defaults
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.default_range", "168h")
	v.SetDefault("server.shutdown_timeout", "10s")

	// Telegram defaults
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")
	v.SetDefault("telegram.top_n", 5)
	v.SetDefault("telegram.cooldown", "24h")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	// Validate Detector config
	if c.Detector.LagMultiplier <= 0 {
		return fmt.Errorf("detector.lag_multiplier must be positive")
	}
	if c.Detector.MinWindow <= 0 {
		return fmt.Errorf("detector.min_window must be positive")
	}
	if c.Detector.MaxWindow < c.Detector.MinWindow {
		return fmt.Errorf("detector.max_window must not be less than detector.min_window")
	}

	// Validate Recalc config
	if c.Recalc.MinSamples < 1 {
		return fmt.Errorf("recalc.min_samples must be at least 1")
	}
	if c.Recalc.Lookback < 24*time.Hour {
		return fmt.Errorf("recalc.lookback must be at least 24 hours")
	}

	// Validate Storage config
	if c.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path is required")
	}
	if c.Storage.Retention < 0 {
		return fmt.Errorf("storage.retention must not be negative")
	}

	// Validate Server config
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Server.DefaultRange <= 0 {
		return fmt.Errorf("server.default_range must be positive")
	}

	// Validate Telegram config
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}
	if c.Telegram.MaxRetries < 1 {
		return fmt.Errorf("telegram.max_retries must be at least 1")
	}
	if c.Telegram.TopN < 1 {
		return fmt.Errorf("telegram.top_n must be at least 1")
	}

	// Validate Logging config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}
