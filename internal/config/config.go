package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	Database  DatabaseConfig
	Detection DetectionConfig
	Scoring   ScoringConfig
	Log       LogConfig
}

// DatabaseConfig holds sqlite settings.
type DatabaseConfig struct {
	Path string
}

// DetectionConfig holds the detector's policy constants. Thresholds are on
// the 0-100 similarity scale.
type DetectionConfig struct {
	WindowDays           int     `mapstructure:"window_days"`
	SimilarThreshold     float64 `mapstructure:"similar_threshold"`
	DuplicateThreshold   float64 `mapstructure:"duplicate_threshold"`
	AutoResolveThreshold float64 `mapstructure:"auto_resolve_threshold"`
}

// ScoringConfig holds the scorer's component weights. They should sum to 1;
// Load normalizes them if they do not.
type ScoringConfig struct {
	AmountWeight      float64 `mapstructure:"amount_weight"`
	MerchantWeight    float64 `mapstructure:"merchant_weight"`
	DateWeight        float64 `mapstructure:"date_weight"`
	DescriptionWeight float64 `mapstructure:"description_weight"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string
}

// Load reads configuration from file and env. Env var overrides use prefix
// EXPENSE_TRACKER_.
func Load() (Config, error) {
	v := viper.New()

	// default values
	v.SetDefault("database.path", filepath.Join(os.Getenv("HOME"), ".local", "share", "expense-tracker", "expenses.db"))
	v.SetDefault("detection.window_days", 7)
	v.SetDefault("detection.similar_threshold", 70.0)
	v.SetDefault("detection.duplicate_threshold", 90.0)
	v.SetDefault("detection.auto_resolve_threshold", 95.0)
	v.SetDefault("scoring.amount_weight", 0.35)
	v.SetDefault("scoring.merchant_weight", 0.30)
	v.SetDefault("scoring.date_weight", 0.20)
	v.SetDefault("scoring.description_weight", 0.15)
	v.SetDefault("log.level", "info")

	v.SetConfigType("toml")

	cfgPath := os.Getenv("EXPENSE_TRACKER_CONFIG")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), ".config", "expense-tracker"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("EXPENSE_TRACKER")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// read config file if present
	_ = v.ReadInConfig()

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) validate() error {
	d := c.Detection
	if d.WindowDays <= 0 {
		return fmt.Errorf("detection.window_days must be positive, got %d", d.WindowDays)
	}
	if !(d.SimilarThreshold <= d.DuplicateThreshold && d.DuplicateThreshold <= d.AutoResolveThreshold) {
		return fmt.Errorf("detection thresholds must be ordered similar <= duplicate <= auto_resolve, got %.1f/%.1f/%.1f",
			d.SimilarThreshold, d.DuplicateThreshold, d.AutoResolveThreshold)
	}
	s := &c.Scoring
	sum := s.AmountWeight + s.MerchantWeight + s.DateWeight + s.DescriptionWeight
	if sum <= 0 {
		return fmt.Errorf("scoring weights must sum to a positive value")
	}
	if sum != 1 {
		s.AmountWeight /= sum
		s.MerchantWeight /= sum
		s.DateWeight /= sum
		s.DescriptionWeight /= sum
	}
	return nil
}
