package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/aadithya-v/warden"
)

// config is the service configuration, read from WARDEN_* variables.
type config struct {
	Env         string
	Addr        string
	Store       string
	SQLitePath  string
	MySQLDSN    string
	PostgresDSN string
	RedisURL    string
	InternalKey string
	GeoIPPath   string
	Policy      warden.Policy
}

// loadConfig reads the environment, loading a .env file first outside production.
func loadConfig() (config, error) {
	if os.Getenv("WARDEN_ENV") != "production" {
		// a missing .env is fine
		_ = godotenv.Load()
	}

	cfg := config{
		Env:         envString("WARDEN_ENV", "development"),
		Addr:        envString("WARDEN_ADDR", ":8080"),
		Store:       envString("WARDEN_STORE", "sqlite"),
		SQLitePath:  envString("WARDEN_SQLITE_PATH", "warden.db"),
		MySQLDSN:    os.Getenv("WARDEN_MYSQL_DSN"),
		PostgresDSN: os.Getenv("WARDEN_POSTGRES_DSN"),
		RedisURL:    envString("WARDEN_REDIS_URL", "redis://localhost:6379/0"),
		InternalKey: os.Getenv("WARDEN_INTERNAL_KEY"),
		GeoIPPath:   os.Getenv("WARDEN_GEOIP_PATH"),
		Policy:      warden.DefaultPolicy(),
	}

	var err error
	if cfg.Policy.SessionDuration, err = envDuration("WARDEN_SESSION_DURATION_HOURS", time.Hour, cfg.Policy.SessionDuration); err != nil {
		return cfg, err
	}
	if cfg.Policy.CleanupInterval, err = envDuration("WARDEN_CLEANUP_INTERVAL_MINUTES", time.Minute, cfg.Policy.CleanupInterval); err != nil {
		return cfg, err
	}
	if cfg.Policy.RefreshThreshold, err = envDuration("WARDEN_REFRESH_THRESHOLD_MINUTES", time.Minute, cfg.Policy.RefreshThreshold); err != nil {
		return cfg, err
	}
	if cfg.Policy.MaxSessionsPerUser, err = envInt("WARDEN_MAX_SESSIONS_PER_USER", cfg.Policy.MaxSessionsPerUser); err != nil {
		return cfg, err
	}

	refresh, err := envBool("WARDEN_ENABLE_REFRESH", true)
	if err != nil {
		return cfg, err
	}
	cfg.Policy.DisableRefresh = !refresh

	switch cfg.Store {
	case "sqlite", "memory", "redis":
	case "mysql":
		if cfg.MySQLDSN == "" {
			return cfg, fmt.Errorf("WARDEN_MYSQL_DSN is required for the mysql store")
		}
	case "postgres":
		if cfg.PostgresDSN == "" {
			return cfg, fmt.Errorf("WARDEN_POSTGRES_DSN is required for the postgres store")
		}
	default:
		return cfg, fmt.Errorf("unknown WARDEN_STORE %q", cfg.Store)
	}

	return cfg, nil
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", key, v)
	}
	return n, nil
}

// envDuration reads a positive integer count of unit.
func envDuration(key string, unit, fallback time.Duration) (time.Duration, error) {
	n, err := envInt(key, 0)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return fallback, nil
	}
	return time.Duration(n) * unit, nil
}

func envBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean, got %q", key, v)
	}
	return b, nil
}
