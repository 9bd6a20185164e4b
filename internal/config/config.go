// Package config holds the engine configuration. Values come from flags
// with environment fallbacks; a local .env file is honored the way the rest
// of our deployments do it.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all the settings the engine recognizes.
type Config struct {
	Port int
	Env  string

	// GtfsDataPath is where the live archive is cached on disk.
	GtfsDataPath string
	// AllocatorCount sizes the RAPTOR scratch pool and caps query
	// concurrency.
	AllocatorCount int
	// WalkSpeedMps is the pedestrian speed for footpaths and
	// access/egress walks.
	WalkSpeedMps float64
	// FootpathRadiusM caps derived transfers at build time.
	FootpathRadiusM float64
	// AccessEgressRadiusM caps coordinate snapping at query time.
	AccessEgressRadiusM float64
	LogLevel            slog.Level
}

// Default returns the documented defaults.
func Default() Config {
	return Config{
		Port:                8080,
		Env:                 "development",
		GtfsDataPath:        "cache/gtfs.zip",
		AllocatorCount:      4,
		WalkSpeedMps:        1.4,
		FootpathRadiusM:     400,
		AccessEgressRadiusM: 1500,
		LogLevel:            slog.LevelInfo,
	}
}

// Load fills a Config from the environment on top of the defaults. A .env
// file is loaded into the environment first, ignored if missing.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	var err error

	if cfg.Port, err = intEnv("PORT", cfg.Port); err != nil {
		return cfg, err
	}
	cfg.Env = getenvDefault("ENV", cfg.Env)
	cfg.GtfsDataPath = getenvDefault("GTFS_DATA_PATH", cfg.GtfsDataPath)
	if cfg.AllocatorCount, err = intEnv("ALLOCATOR_COUNT", cfg.AllocatorCount); err != nil {
		return cfg, err
	}
	if cfg.WalkSpeedMps, err = floatEnv("WALK_SPEED_MPS", cfg.WalkSpeedMps); err != nil {
		return cfg, err
	}
	if cfg.FootpathRadiusM, err = floatEnv("FOOTPATH_RADIUS_M", cfg.FootpathRadiusM); err != nil {
		return cfg, err
	}
	if cfg.AccessEgressRadiusM, err = floatEnv("ACCESS_EGRESS_RADIUS_M", cfg.AccessEgressRadiusM); err != nil {
		return cfg, err
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		level, err := ParseLogLevel(v)
		if err != nil {
			return cfg, err
		}
		cfg.LogLevel = level
	}
	return cfg, cfg.Validate()
}

// Validate rejects configurations the engine cannot run with.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.AllocatorCount < 1 {
		return fmt.Errorf("allocator count must be at least 1, got %d", c.AllocatorCount)
	}
	if c.WalkSpeedMps <= 0 {
		return fmt.Errorf("walk speed must be positive, got %g", c.WalkSpeedMps)
	}
	if c.FootpathRadiusM <= 0 || c.AccessEgressRadiusM <= 0 {
		return fmt.Errorf("walk radii must be positive")
	}
	return nil
}

// ParseLogLevel maps the config value to a slog level.
func ParseLogLevel(s string) (slog.Level, error) {
	switch s {
	case "error":
		return slog.LevelError, nil
	case "warn":
		return slog.LevelWarn, nil
	case "info":
		return slog.LevelInfo, nil
	case "debug", "trace":
		return slog.LevelDebug, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func intEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("invalid %s: %q", key, v)
	}
	return n, nil
}

func floatEnv(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def, fmt.Errorf("invalid %s: %q", key, v)
	}
	return f, nil
}
