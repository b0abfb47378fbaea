// Package config loads chargelog configuration.
//
// Values are resolved in order: built-in defaults, an optional YAML file, then
// environment variables. Command-line flags are applied last by the cmd
// package.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Run modes.
const (
	RunOnce      = "once"
	RunScheduled = "scheduled"
)

// Scraper types. Standard, Fast and Rapid scrape availability for locations of
// that speed; Locations scrapes the location list.
const (
	TypeLocations = "Locations"
	TypeStandard  = "Standard"
	TypeFast      = "Fast"
	TypeRapid     = "Rapid"
)

var (
	ErrInvalidRunMode     = errors.New("config: invalid run mode")
	ErrInvalidScraperType = errors.New("config: invalid scraper type")
	ErrInvalidInterval    = errors.New("config: interval must be positive")
)

// Config is the complete configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
	Scraper  ScraperConfig  `yaml:"scraper"`
	API      APIConfig      `yaml:"api"`
}

// DatabaseConfig configures the SQLite store.
type DatabaseConfig struct {
	Path         string        `yaml:"path"`
	BusyTimeout  time.Duration `yaml:"busy_timeout"`
	MaxOpenConns int           `yaml:"max_open_conns"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string   `yaml:"level"`
	Format string   `yaml:"format"`
	Files  []string `yaml:"files"`
}

// ScraperConfig configures scraping and scheduling.
type ScraperConfig struct {
	Type                string        `yaml:"type"`
	RunMode             string        `yaml:"run_mode"`
	MinuteInterval      int           `yaml:"minute_interval"`
	LocationDayInterval int           `yaml:"location_day_interval"`
	MaxWorkers          int           `yaml:"max_workers"`
	SleepBetween        time.Duration `yaml:"sleep_between_requests"`
	LocationsURL        string        `yaml:"locations_url"`
	AvailabilityURL     string        `yaml:"availability_url"`
	Timeout             time.Duration `yaml:"timeout"`
}

// APIConfig configures the read-only HTTP API.
type APIConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:         "./data/db/charging.db",
			BusyTimeout:  30 * time.Second,
			MaxOpenConns: 4,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Scraper: ScraperConfig{
			Type:                TypeStandard,
			RunMode:             RunOnce,
			MinuteInterval:      9999,
			LocationDayInterval: 9999,
			MaxWorkers:          1,
			LocationsURL:        "https://clever.dk/api/chargers/locations",
			AvailabilityURL:     "https://clever.dk/api/chargers/location/{locationId}",
			Timeout:             30 * time.Second,
		},
		API: APIConfig{
			ListenAddr: ":8080",
		},
	}
}

// Load returns the configuration from path (optional) and the environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.Normalize()
	return cfg, nil
}

// applyEnv overrides cfg from environment variables.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	integer := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
		return nil
	}

	str("DB_PATH", &c.Database.Path)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	if v, ok := lookup("LOG_FILE"); ok && v != "" {
		c.Log.Files = append(c.Log.Files, v)
	}
	str("SCRAPER_TYPE", &c.Scraper.Type)
	str("RUN_MODE", &c.Scraper.RunMode)
	str("LOCATIONS_URL", &c.Scraper.LocationsURL)
	str("AVAILABILITY_URL", &c.Scraper.AvailabilityURL)
	str("API_LISTEN_ADDR", &c.API.ListenAddr)

	if v, ok := lookup("DB_BUSY_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("DB_BUSY_TIMEOUT: %w", err)
		}
		c.Database.BusyTimeout = d
	}
	if v, ok := lookup("SLEEP_IN_SECONDS"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("SLEEP_IN_SECONDS: %w", err)
		}
		c.Scraper.SleepBetween = time.Duration(f * float64(time.Second))
	}

	for key, dst := range map[string]*int{
		"MINUTE_INTERVAL":       &c.Scraper.MinuteInterval,
		"LOCATION_DAY_INTERVAL": &c.Scraper.LocationDayInterval,
		"MAX_WORKERS":           &c.Scraper.MaxWorkers,
	} {
		if err := integer(key, dst); err != nil {
			return err
		}
	}
	return nil
}

// Normalize capitalizes the scraper type and lower-cases the run mode.
func (c *Config) Normalize() {
	c.Scraper.Type = NormalizeType(c.Scraper.Type)
	c.Scraper.RunMode = strings.ToLower(strings.TrimSpace(c.Scraper.RunMode))
}

// Validate reports configuration the scheduler cannot act on.
func (c *Config) Validate() error {
	switch c.Scraper.RunMode {
	case RunOnce, RunScheduled:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidRunMode, c.Scraper.RunMode)
	}
	if !c.Scraper.IsAvailability() && c.Scraper.Type != TypeLocations {
		return fmt.Errorf("%w: %q", ErrInvalidScraperType, c.Scraper.Type)
	}
	if c.Scraper.MinuteInterval <= 0 || c.Scraper.LocationDayInterval <= 0 {
		return ErrInvalidInterval
	}
	if c.Database.Path == "" {
		return errors.New("config: database path is required")
	}
	return nil
}

// IsAvailability reports whether the scraper type names a charging speed.
func (s ScraperConfig) IsAvailability() bool {
	switch s.Type {
	case TypeStandard, TypeFast, TypeRapid:
		return true
	}
	return false
}

// NormalizeType capitalizes a scraper type: "rapid" becomes "Rapid".
func NormalizeType(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}
