// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the PickAssist service configuration.
//
// Configuration is a YAML file, created with defaults on first run, then
// overlaid with PICKASSIST_* environment variables and validated. No
// package-level instance is kept; callers pass the *Config they loaded.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/z-Vaughan/PickAssist/pkg/validation"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("sitecode", func(fl validator.FieldLevel) bool {
		return validation.ValidateSiteCode(fl.Field().String()) == nil
	})
	_ = validate.RegisterValidation("timezone", func(fl validator.FieldLevel) bool {
		_, err := time.LoadLocation(fl.Field().String())
		return err == nil
	})
}

// =============================================================================
// Types
// =============================================================================

// Config is the root configuration document.
type Config struct {
	Site        SiteConfig      `yaml:"site"`
	Shift       ShiftConfig     `yaml:"shift"`
	Endpoints   EndpointsConfig `yaml:"endpoints"`
	Fetch       FetchConfig     `yaml:"fetch"`
	Auth        AuthConfig      `yaml:"auth"`
	Schedule    ScheduleConfig  `yaml:"schedule"`
	Server      ServerConfig    `yaml:"server"`
	Logging     LoggingConfig   `yaml:"logging"`
	Storage     StorageConfig   `yaml:"storage"`
	Redis       RedisConfig     `yaml:"redis"`
	Influx      InfluxConfig    `yaml:"influx"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	VersionFile string          `yaml:"version_file"`
}

// SiteConfig identifies the warehouse.
type SiteConfig struct {
	Code         string `yaml:"code" validate:"required,sitecode"`
	Timezone     string `yaml:"timezone" validate:"required,timezone"`
	CatalogPath  string `yaml:"catalog_path"`
	WatchCatalog bool   `yaml:"watch_catalog"`
}

// ShiftConfig holds the shift hours in 24-hour form.
type ShiftConfig struct {
	StartHour int `yaml:"start_hour" validate:"gte=0,lte=23"`
	EndHour   int `yaml:"end_hour" validate:"gte=0,lte=23"`
}

// EndpointsConfig holds the upstream hosts. Paths and query strings are
// built by the sources package.
type EndpointsConfig struct {
	ConsoleHost     string `yaml:"console_host" validate:"required,hostname_rfc1123|hostname_port"`
	ProductivityURL string `yaml:"productivity_url" validate:"required,url"`
	ItemListURL     string `yaml:"item_list_url" validate:"required,url"`
	ProcessID       string `yaml:"process_id" validate:"required,numeric"`
}

// FetchConfig holds retry and pacing parameters.
type FetchConfig struct {
	MaxAttempts       int           `yaml:"max_attempts" validate:"gte=1,lte=10"`
	BaseDelay         time.Duration `yaml:"base_delay" validate:"gte=0"`
	RequestTimeout    time.Duration `yaml:"request_timeout" validate:"gt=0"`
	RequestsPerSecond float64       `yaml:"requests_per_second" validate:"gte=0"`
	Burst             int           `yaml:"burst" validate:"gte=0"`
}

// AuthConfig configures session validity and refresh.
type AuthConfig struct {
	Alias           string        `yaml:"alias"`
	FreshnessWindow time.Duration `yaml:"freshness_window" validate:"gt=0"`
	CookieFile      string        `yaml:"cookie_file"`
	MarkerURL       string        `yaml:"marker_url" validate:"omitempty,url"`
	Browser         BrowserConfig `yaml:"browser"`
}

// BrowserConfig configures the browser-driven cookie refresher.
type BrowserConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Headless    bool          `yaml:"headless"`
	ControlURL  string        `yaml:"control_url" validate:"omitempty,url"`
	WaitTimeout time.Duration `yaml:"wait_timeout" validate:"gte=0"`
}

// ScheduleConfig controls the cycle loop.
type ScheduleConfig struct {
	Interval     time.Duration `yaml:"interval" validate:"gt=0"`
	CycleTimeout time.Duration `yaml:"cycle_timeout" validate:"gt=0"`
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr" validate:"required_if=Enabled true"`
}

// LoggingConfig maps onto logging.Config.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Dir   string `yaml:"dir"`
	JSON  bool   `yaml:"json"`

	// Recent is how many entries at or above RecentLevel GET /v1/logs
	// keeps. 0 disables the endpoint.
	Recent      int    `yaml:"recent" validate:"gte=0"`
	RecentLevel string `yaml:"recent_level" validate:"omitempty,oneof=debug info warn error"`
}

// StorageConfig controls the on-disk snapshot store.
type StorageConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Path       string        `yaml:"path"`
	InMemory   bool          `yaml:"in_memory"`
	SyncWrites bool          `yaml:"sync_writes"`
	GCInterval time.Duration `yaml:"gc_interval" validate:"gte=0"`
}

// RedisConfig controls snapshot publishing.
type RedisConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Addr        string        `yaml:"addr" validate:"required_if=Enabled true"`
	Channel     string        `yaml:"channel"`
	Key         string        `yaml:"key"`
	TTL         time.Duration `yaml:"ttl" validate:"gte=0"`
	DialTimeout time.Duration `yaml:"dial_timeout" validate:"gte=0"`
}

// InfluxConfig controls per-cycle progress points.
type InfluxConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url" validate:"omitempty,url"`
	Token   string `yaml:"token"`
	Org     string `yaml:"org" validate:"required_if=Enabled true"`
	Bucket  string `yaml:"bucket" validate:"required_if=Enabled true"`
}

// TelemetryConfig controls OpenTelemetry export.
type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter" validate:"omitempty,oneof=stdout otlp"`
	Endpoint string `yaml:"endpoint"`
	Insecure bool   `yaml:"insecure"`
}

// =============================================================================
// Defaults
// =============================================================================

// DefaultConfig returns a configuration that validates and runs one
// site with every optional sink disabled.
func DefaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			Code:     "SAV7",
			Timezone: "America/New_York",
		},
		Shift: ShiftConfig{StartHour: 6, EndHour: 18},
		Endpoints: EndpointsConfig{
			ConsoleHost:     "picking-console.na.picking.aft.a2z.com",
			ProductivityURL: "https://fclm-portal.amazon.com/ppa/inspect/process",
			ItemListURL:     "http://rodeo-iad.amazon.com:80",
			ProcessID:       "100115",
		},
		Fetch: FetchConfig{
			MaxAttempts:    3,
			BaseDelay:      time.Second,
			RequestTimeout: 30 * time.Second,
		},
		Auth: AuthConfig{
			FreshnessWindow: time.Hour,
			Browser: BrowserConfig{
				Headless:    true,
				WaitTimeout: 2 * time.Minute,
			},
		},
		Schedule: ScheduleConfig{
			Interval:     5 * time.Minute,
			CycleTimeout: 3 * time.Minute,
		},
		Server:  ServerConfig{Enabled: true, Addr: ":8089"},
		Logging: LoggingConfig{Level: "info", Recent: 200, RecentLevel: "warn"},
		Storage: StorageConfig{
			Path:       "~/.pickassist/data",
			GCInterval: 10 * time.Minute,
		},
		Redis: RedisConfig{
			Addr:        "localhost:6379",
			Channel:     "pickassist:snapshots",
			Key:         "pickassist:latest",
			DialTimeout: 5 * time.Second,
		},
		Influx: InfluxConfig{
			URL:    "http://localhost:8086",
			Bucket: "pickassist",
		},
		Telemetry: TelemetryConfig{Exporter: "stdout"},
	}
}

// =============================================================================
// Loading
// =============================================================================

// DefaultPath returns ~/.pickassist/pickassist.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not find the user's home directory: %w", err)
	}
	return filepath.Join(home, ".pickassist", "pickassist.yaml"), nil
}

// Load reads path, creating it with DefaultConfig when absent.
//
// # Description
//
// The file is decoded over DefaultConfig so omitted keys keep their
// defaults. Environment overrides are applied after decoding and before
// validation. An empty path means DefaultPath().
//
// # Outputs
//
//   - *Config: validated configuration.
//   - error: unreadable file, bad YAML, or failed validation.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := createDefault(path); err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read the config file: %w", err)
	}
	return Parse(data, os.LookupEnv)
}

// Parse decodes YAML over DefaultConfig, applies overrides from lookup and
// validates the result.
func Parse(data []byte, lookup func(string) (string, bool)) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse the config: %w", err)
	}
	if lookup != nil {
		if err := cfg.applyEnv(lookup); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate runs struct validation.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func createDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// applyEnv overlays PICKASSIST_* variables.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := map[string]*string{
		"PICKASSIST_SITE":          &c.Site.Code,
		"PICKASSIST_TIMEZONE":      &c.Site.Timezone,
		"PICKASSIST_CATALOG":       &c.Site.CatalogPath,
		"PICKASSIST_ALIAS":         &c.Auth.Alias,
		"PICKASSIST_COOKIE_FILE":   &c.Auth.CookieFile,
		"PICKASSIST_LOG_LEVEL":     &c.Logging.Level,
		"PICKASSIST_SERVER_ADDR":   &c.Server.Addr,
		"PICKASSIST_REDIS_ADDR":    &c.Redis.Addr,
		"PICKASSIST_INFLUX_URL":    &c.Influx.URL,
		"PICKASSIST_INFLUX_TOKEN":  &c.Influx.Token,
		"PICKASSIST_OTLP_ENDPOINT": &c.Telemetry.Endpoint,
	}
	for key, dst := range str {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"PICKASSIST_SHIFT_START": &c.Shift.StartHour,
		"PICKASSIST_SHIFT_END":   &c.Shift.EndHour,
	}
	for key, dst := range ints {
		if v, ok := lookup(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = n
		}
	}

	if v, ok := lookup("PICKASSIST_INTERVAL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("PICKASSIST_INTERVAL: %w", err)
		}
		c.Schedule.Interval = d
	}
	return nil
}
