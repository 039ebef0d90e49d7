package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/docmerge/connectivity"
	"github.com/hazyhaar/docmerge/docmerge"
)

// Config is the docmerge server configuration.
type Config struct {
	Listen       string `yaml:"listen"`
	DBPath       string `yaml:"db_path"`
	EventsDBPath string `yaml:"events_db_path"`

	MaxRows     int    `yaml:"max_rows"`
	Workers     int    `yaml:"workers"`
	Escape      string `yaml:"escape"`
	MaxUploadMB int    `yaml:"max_upload_mb"`

	// RenderPDF enables the headless Chrome renderer for HTML batches.
	// ChromeURL points at an external Chrome; empty launches one locally.
	RenderPDF bool   `yaml:"render_pdf"`
	ChromeURL string `yaml:"chrome_url"`

	// EventRetentionDays purges older batch events at startup. 0 keeps all.
	EventRetentionDays int `yaml:"event_retention_days"`

	// Routes sends connectivity services elsewhere, e.g. docmerge_generate
	// to another docmerge over http.
	Routes []connectivity.Route `yaml:"routes"`

	LogLevel string `yaml:"log_level"`
}

// DefaultConfig returns a config that serves on :8090 with local databases.
func DefaultConfig() *Config {
	return &Config{
		Listen:       ":8090",
		DBPath:       "data/docmerge.db",
		EventsDBPath: "data/events.db",
		MaxRows:      100,
		Workers:      4,
		Escape:       string(docmerge.EscapeNone),
		MaxUploadMB:  32,
		LogLevel:     "info",
	}
}

// LoadConfig reads and parses a YAML config file. Returns DefaultConfig merged with the file.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// applyEnv overrides file values with DOCMERGE_LISTEN, DOCMERGE_DB and LOG_LEVEL.
func (c *Config) applyEnv() {
	if v := os.Getenv("DOCMERGE_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv("DOCMERGE_DB"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

// Validate checks that required fields are present and values are sane.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen is required")
	}
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	if c.EventsDBPath == "" {
		return fmt.Errorf("events_db_path is required")
	}
	if c.MaxRows == 0 {
		return fmt.Errorf("max_rows must be > 0 (negative disables the cap)")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be > 0")
	}
	if c.MaxUploadMB <= 0 {
		return fmt.Errorf("max_upload_mb must be > 0")
	}
	if c.EventRetentionDays < 0 {
		return fmt.Errorf("event_retention_days must be >= 0")
	}
	if _, err := docmerge.ParseEscape(c.Escape); err != nil {
		return err
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	for i, rt := range c.Routes {
		if rt.Service == "" || rt.Strategy == "" {
			return fmt.Errorf("routes[%d]: service and strategy are required", i)
		}
	}
	return nil
}

// MaxUploadBytes returns the upload cap in bytes.
func (c *Config) MaxUploadBytes() int64 { return int64(c.MaxUploadMB) * 1024 * 1024 }

// engineConfig maps the file config onto the engine.
func (c *Config) engineConfig(logger *slog.Logger) docmerge.Config {
	esc, _ := docmerge.ParseEscape(c.Escape)
	return docmerge.Config{
		MaxRows: c.MaxRows,
		Workers: c.Workers,
		Escape:  esc,
		Logger:  logger,
	}
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log_level %q (use debug, info, warn or error)", s)
	}
}
