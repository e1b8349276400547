// Package config holds the two configuration layers of the trader: the
// process configuration loaded once at startup (YAML file plus
// environment), and the runtime tunables Store consumed by the engines.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/atmx/edge-trader/internal/model"
)

// Config is the process configuration.
type Config struct {
	Port         string        `yaml:"port"`
	DatabaseURL  string        `yaml:"database_url"`
	RedisURL     string        `yaml:"redis_url"`
	CacheTTL     time.Duration `yaml:"cache_ttl"`
	Mode         model.Mode    `yaml:"mode"`
	SeriesTicker string        `yaml:"series_ticker"`

	Alpha  AlphaConfig  `yaml:"alpha"`
	Kalshi KalshiConfig `yaml:"kalshi"`
}

// AlphaConfig configures the price feeds and their weights.
type AlphaConfig struct {
	LeadVenue  string        `yaml:"lead_venue"`
	StaleAfter time.Duration `yaml:"stale_after"`
	Venues     []VenueConfig `yaml:"venues"`
}

// VenueConfig is one price venue.
type VenueConfig struct {
	Name      string  `yaml:"name"`
	Weight    float64 `yaml:"weight"`
	URL       string  `yaml:"url"`
	Subscribe string  `yaml:"subscribe"`   // message sent after connect
	PriceKey  string  `yaml:"price_field"` // dotted path to the price in each message
}

// KalshiConfig configures the order venue.
type KalshiConfig struct {
	BaseURL        string        `yaml:"base_url"`
	KeyID          string        `yaml:"key_id"`
	PrivateKeyPath string        `yaml:"private_key_path"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxRetries     int           `yaml:"max_retries"`
	OrdersPerSec   float64       `yaml:"orders_per_sec"`
}

// Load reads an optional YAML file (empty path skips it), expands
// ${VAR} references, overlays environment variables, applies defaults
// and validates.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
			return nil, fmt.Errorf("parse config yaml: %w", err)
		}
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	set := func(dst *string, name string) {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
	set(&c.Port, "PORT")
	set(&c.DatabaseURL, "DATABASE_URL")
	set(&c.RedisURL, "REDIS_URL")
	set(&c.SeriesTicker, "SERIES_TICKER")
	set(&c.Kalshi.BaseURL, "KALSHI_BASE_URL")
	set(&c.Kalshi.KeyID, "KALSHI_API_KEY_ID")
	set(&c.Kalshi.PrivateKeyPath, "KALSHI_PRIVATE_KEY_PATH")
	if v := os.Getenv("TRADER_MODE"); v != "" {
		c.Mode = model.Mode(v)
	}
}

// Validate checks the loaded configuration.
func (c *Config) Validate() error {
	if !c.Mode.Valid() {
		return fmt.Errorf("mode must be %q or %q, got %q", model.ModePaper, model.ModeLive, c.Mode)
	}
	if len(c.Alpha.Venues) == 0 {
		return errors.New("alpha.venues must not be empty")
	}
	seen := make(map[string]bool, len(c.Alpha.Venues))
	lead := false
	for i, v := range c.Alpha.Venues {
		if v.Name == "" {
			return fmt.Errorf("alpha.venues[%d].name is required", i)
		}
		if seen[v.Name] {
			return fmt.Errorf("alpha.venues[%d].name %q is duplicated", i, v.Name)
		}
		seen[v.Name] = true
		if v.Weight <= 0 {
			return fmt.Errorf("alpha.venues[%d].weight must be > 0, got %v", i, v.Weight)
		}
		if v.Name == c.Alpha.LeadVenue {
			lead = true
		}
	}
	if !lead {
		return fmt.Errorf("alpha.lead_venue %q is not a configured venue", c.Alpha.LeadVenue)
	}
	if c.Mode == model.ModeLive && (c.Kalshi.KeyID == "" || c.Kalshi.PrivateKeyPath == "") {
		return errors.New("kalshi.key_id and kalshi.private_key_path are required in live mode")
	}
	if c.Kalshi.MaxRetries < 0 {
		return errors.New("kalshi.max_retries must be >= 0")
	}
	return nil
}

// Weights returns the venue weight table.
func (a AlphaConfig) Weights() map[string]float64 {
	w := make(map[string]float64, len(a.Venues))
	for _, v := range a.Venues {
		w[v.Name] = v.Weight
	}
	return w
}
