// Package config loads scheduler settings from TOML with environment
// overrides. File keys overlay the defaults only when present, so a partial
// file never zeroes a setting it does not mention.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/NetPo4ki/go-future/future"
)

const (
	EnvWorkers      = "FUTURE_WORKERS"
	EnvMaxWorkers   = "FUTURE_MAX_WORKERS"
	EnvLogLevel     = "FUTURE_LOG_LEVEL"
	EnvPanicAsError = "FUTURE_PANIC_AS_ERROR"
)

// Config is the resolved runtime configuration.
type Config struct {
	Name         string
	Workers      int
	MaxWorkers   int
	PanicAsError bool
	LogLevel     string
	// ShutdownGrace bounds Scheduler.Shutdown at service exit.
	ShutdownGrace time.Duration
}

// Default returns the configuration used when no file or environment is
// present: a fixed pool sized to the machine and info-level logging.
func Default() Config {
	return Config{
		Name:          "future",
		Workers:       0, // scheduler default, one per CPU
		MaxWorkers:    0,
		PanicAsError:  true,
		LogLevel:      "info",
		ShutdownGrace: 5 * time.Second,
	}
}

type fileConfig struct {
	Name          string `toml:"name"`
	Workers       int    `toml:"workers"`
	MaxWorkers    int    `toml:"max_workers"`
	PanicAsError  bool   `toml:"panic_as_error"`
	LogLevel      string `toml:"log_level"`
	ShutdownGrace string `toml:"shutdown_grace"`
}

// Load reads path and overlays its keys onto Default, then applies
// environment overrides on top.
func Load(path string) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}

	if meta.IsDefined("name") {
		name := strings.TrimSpace(raw.Name)
		if name != "" {
			cfg.Name = name
		}
	}
	if meta.IsDefined("workers") {
		if raw.Workers < 0 {
			return Config{}, fmt.Errorf("load config: workers must not be negative, got %d", raw.Workers)
		}
		cfg.Workers = raw.Workers
	}
	if meta.IsDefined("max_workers") {
		if raw.MaxWorkers < 0 {
			return Config{}, fmt.Errorf("load config: max_workers must not be negative, got %d", raw.MaxWorkers)
		}
		cfg.MaxWorkers = raw.MaxWorkers
	}
	if meta.IsDefined("panic_as_error") {
		cfg.PanicAsError = raw.PanicAsError
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.ToLower(strings.TrimSpace(raw.LogLevel))
	}
	if meta.IsDefined("shutdown_grace") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.ShutdownGrace))
		if err != nil {
			return Config{}, fmt.Errorf("parse shutdown_grace: %w", err)
		}
		cfg.ShutdownGrace = d
	}

	cfg.ApplyEnv()
	return cfg, nil
}

// ApplyEnv overrides cfg fields from the FUTURE_* environment variables.
// Malformed values are ignored.
func (c *Config) ApplyEnv() {
	if n, ok := parseInt(os.Getenv(EnvWorkers)); ok && n >= 0 {
		c.Workers = n
	}
	if n, ok := parseInt(os.Getenv(EnvMaxWorkers)); ok && n >= 0 {
		c.MaxWorkers = n
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		c.LogLevel = strings.ToLower(v)
	}
	if v, ok := parseBool(os.Getenv(EnvPanicAsError)); ok {
		c.PanicAsError = v
	}
}

// SchedulerOptions translates the configuration into scheduler options.
func (c Config) SchedulerOptions() []future.Option {
	opts := []future.Option{
		future.WithName(c.Name),
		future.WithPanicAsError(c.PanicAsError),
	}
	if c.MaxWorkers > 0 {
		opts = append(opts, future.WithMaxWorkers(c.MaxWorkers))
	} else if c.Workers > 0 {
		opts = append(opts, future.WithWorkers(c.Workers))
	}
	return opts
}

func parseInt(raw string) (int, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}

func parseBool(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
