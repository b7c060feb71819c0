package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port             string  `mapstructure:"PORT"`
	Env              string  `mapstructure:"ENV"`
	DatabaseURL      string  `mapstructure:"DATABASE_URL"`
	DBMaxConns       int32   `mapstructure:"DB_MAX_CONNS"`
	DBMinConns       int32   `mapstructure:"DB_MIN_CONNS"`
	SweepInterval    int     `mapstructure:"SWEEP_INTERVAL_SECONDS"`
	DelayProbability float64 `mapstructure:"DELAY_PROBABILITY"`
	DelayMinFraction float64 `mapstructure:"DELAY_MIN_FRACTION"`
	DelayMaxFraction float64 `mapstructure:"DELAY_MAX_FRACTION"`
	LeadTimeDays     int     `mapstructure:"LEAD_TIME_DAYS"`
	AuthSigningKey   string  `mapstructure:"AUTH_SIGNING_KEY"`
	AuthIssuer       string  `mapstructure:"AUTH_ISSUER"`
	AuthAudience     string  `mapstructure:"AUTH_AUDIENCE"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("SWEEP_INTERVAL_SECONDS", 10)
	v.SetDefault("DELAY_PROBABILITY", 0.10)
	v.SetDefault("DELAY_MIN_FRACTION", 0.2)
	v.SetDefault("DELAY_MAX_FRACTION", 0.5)
	v.SetDefault("LEAD_TIME_DAYS", 1)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("SWEEP_INTERVAL_SECONDS")
	v.BindEnv("DELAY_PROBABILITY")
	v.BindEnv("DELAY_MIN_FRACTION")
	v.BindEnv("DELAY_MAX_FRACTION")
	v.BindEnv("LEAD_TIME_DAYS")
	v.BindEnv("AUTH_SIGNING_KEY")
	v.BindEnv("AUTH_ISSUER")
	v.BindEnv("AUTH_AUDIENCE")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// SweepIntervalDuration returns the sweep interval as a time.Duration.
// The interval is a tuning knob, not a correctness constraint.
func (c *Config) SweepIntervalDuration() time.Duration {
	return time.Duration(c.SweepInterval) * time.Second
}

// Validate checks that the configuration is safe to run. Outside development
// the server refuses to start without a JWT verification source, and the
// delay-injection parameters must describe a valid probability and fraction
// range.
func (c *Config) Validate() error {
	if !c.IsDev() && c.AuthSigningKey == "" && c.AuthIssuer == "" {
		return fmt.Errorf("AUTH_SIGNING_KEY or AUTH_ISSUER must be set when ENV=%q", c.Env)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL_SECONDS must be positive, got %d", c.SweepInterval)
	}
	if c.DelayProbability < 0 || c.DelayProbability > 1 {
		return fmt.Errorf("DELAY_PROBABILITY must be in [0,1], got %g", c.DelayProbability)
	}
	if c.DelayMinFraction < 0 || c.DelayMaxFraction < c.DelayMinFraction {
		return fmt.Errorf("delay fraction range [%g,%g] is invalid", c.DelayMinFraction, c.DelayMaxFraction)
	}
	if c.LeadTimeDays < 0 {
		return fmt.Errorf("LEAD_TIME_DAYS must be non-negative, got %d", c.LeadTimeDays)
	}
	return nil
}
