// Package config handles collabd configuration loading.
//
// Configuration is layered: built-in defaults, then an optional YAML
// file, then environment variables. The environment always wins, so a
// container deployment can override a checked-in file without editing
// it. A .env file (loaded by main via godotenv) feeds the same
// environment layer.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variable names.
const (
	EnvBind             = "COLLAB_BIND"
	EnvObserverDir      = "COLLAB_OBSERVER_DIR"
	EnvObserverScanMS   = "COLLAB_OBSERVER_SCAN_MS"
	EnvObserverSeedOnly = "COLLAB_OBSERVER_SEED_ONLY"
	EnvLogLevel         = "COLLAB_LOG_LEVEL"
)

// Defaults.
const (
	DefaultBind        = "127.0.0.1:7878"
	DefaultObserverDir = "/tmp/frostwall-observer/frames"
	DefaultScanMS      = 800
)

// Config holds all collabd configuration.
type Config struct {
	Bind     string         `yaml:"bind"`
	LogLevel string         `yaml:"log_level"`
	Observer ObserverConfig `yaml:"observer"`
}

// ObserverConfig configures the frame directory ingestor.
type ObserverConfig struct {
	Dir    string `yaml:"dir"`
	ScanMS int    `yaml:"scan_ms"`
	// SeedOnly treats files present at the first scan as already known
	// instead of emitting them all (the default cold-start behavior).
	SeedOnly bool `yaml:"seed_only"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Bind:     DefaultBind,
		LogLevel: "info",
		Observer: ObserverConfig{
			Dir:    DefaultObserverDir,
			ScanMS: DefaultScanMS,
		},
	}
}

// DefaultSearchPaths returns the config file search order. An explicit
// path (from the -config flag) is checked first by FindConfig.
func DefaultSearchPaths() []string {
	paths := []string{"collabd.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "collabd", "config.yaml"))
	}
	paths = append(paths, "/etc/collabd/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must
// exist. Otherwise the search paths are tried in order; an empty return
// with nil error means no file was found, which is not an error since
// the environment alone fully configures the process.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}
	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", nil
}

// Load builds the configuration: defaults, optional YAML file, then
// environment overrides.
func Load(explicitPath string) (*Config, error) {
	cfg := Default()

	path, err := FindConfig(explicitPath)
	if err != nil {
		return nil, err
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays environment variables onto the config.
func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvBind); v != "" {
		c.Bind = v
	}
	if v := os.Getenv(EnvObserverDir); v != "" {
		c.Observer.Dir = v
	}
	if v := os.Getenv(EnvObserverScanMS); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil || ms <= 0 {
			return fmt.Errorf("%s must be a positive integer, got %q", EnvObserverScanMS, v)
		}
		c.Observer.ScanMS = ms
	}
	if v := os.Getenv(EnvObserverSeedOnly); v != "" {
		seed, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s must be a boolean, got %q", EnvObserverSeedOnly, v)
		}
		c.Observer.SeedOnly = seed
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	return nil
}

// ScanInterval returns the observer poll period as a duration.
func (c *Config) ScanInterval() time.Duration {
	if c.Observer.ScanMS <= 0 {
		return time.Duration(DefaultScanMS) * time.Millisecond
	}
	return time.Duration(c.Observer.ScanMS) * time.Millisecond
}

// SlogLevel maps the configured log level onto slog's levels. Unknown
// values fall back to info.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
