// Package config loads hub-platform configuration from environment
// variables, optionally overridden by a yaml file named in HUB_CONFIG.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Incidents holds the timings and limits of the incident coordinator.
type Incidents struct {
	// AlertTimeoutSecs is how long a PREALERT waits before escalating to
	// ALERT when nobody disarms.
	AlertTimeoutSecs int `yaml:"alert_timeout_secs"`
	// CancelTimeoutSecs bounds the wait for a monitoring station answer to
	// a cancel request.
	CancelTimeoutSecs int `yaml:"cancel_timeout_secs"`
	// CancelCacheShards sets the shard count of the pending-cancel cache.
	CancelCacheShards int `yaml:"cancel_cache_shards"`
	// CancelCacheSweepSecs is the interval between expiry sweeps.
	CancelCacheSweepSecs int `yaml:"cancel_cache_sweep_secs"`
	// MaxIncidentsPerPlace caps history listing per place.
	MaxIncidentsPerPlace int `yaml:"max_incidents_per_place"`
	// MockAlertTimeoutSecs is the simulated PENDING to DISPATCHING delay.
	MockAlertTimeoutSecs int `yaml:"mock_alert_timeout_secs"`
	// MockDispatchTimeoutSecs is the simulated dispatch failure delay.
	MockDispatchTimeoutSecs int `yaml:"mock_dispatch_timeout_secs"`
}

// Config is the process configuration.
type Config struct {
	HTTPAddr       string    `yaml:"http_addr"`
	PostgresDSN    string    `yaml:"postgres_dsn"`
	JWTSecret      string    `yaml:"jwt_secret"`
	LogLevel       string    `yaml:"log_level"`
	DefaultPlaceID string    `yaml:"default_place_id"`
	StationBaseURL string    `yaml:"station_base_url"`
	StationToken   string    `yaml:"station_token"`
	Incidents      Incidents `yaml:"incidents"`
}

// Load reads configuration from env, then merges the yaml file named by
// HUB_CONFIG on top when present.
func Load() (Config, error) {
	cfg := Config{
		HTTPAddr:       getenvDefault("HTTP_ADDR", ":8080"),
		PostgresDSN:    os.Getenv("PG_DSN"),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		LogLevel:       getenvDefault("LOG_LEVEL", "info"),
		DefaultPlaceID: getenvDefault("DEFAULT_PLACE_ID", ""),
		StationBaseURL: os.Getenv("STATION_BASE_URL"),
		StationToken:   os.Getenv("STATION_TOKEN"),
		Incidents: Incidents{
			AlertTimeoutSecs:        getenvIntDefault("ALERT_TIMEOUT_SECS", 90),
			CancelTimeoutSecs:       getenvIntDefault("CANCEL_TIMEOUT_SECS", 300),
			CancelCacheShards:       getenvIntDefault("CANCEL_CACHE_SHARDS", 16),
			CancelCacheSweepSecs:    getenvIntDefault("CANCEL_CACHE_SWEEP_SECS", 10),
			MaxIncidentsPerPlace:    getenvIntDefault("MAX_INCIDENTS_PER_PLACE", 100),
			MockAlertTimeoutSecs:    getenvIntDefault("MOCK_ALERT_TIMEOUT_SECS", 30),
			MockDispatchTimeoutSecs: getenvIntDefault("MOCK_DISPATCH_TIMEOUT_SECS", 45),
		},
	}

	if path := os.Getenv("HUB_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the loaded values for internal consistency.
func (c Config) Validate() error {
	if c.HTTPAddr == "" {
		return errors.New("config: http addr required")
	}
	inc := c.Incidents
	for _, check := range []struct {
		name  string
		value int
	}{
		{"alert_timeout_secs", inc.AlertTimeoutSecs},
		{"cancel_timeout_secs", inc.CancelTimeoutSecs},
		{"cancel_cache_shards", inc.CancelCacheShards},
		{"cancel_cache_sweep_secs", inc.CancelCacheSweepSecs},
		{"max_incidents_per_place", inc.MaxIncidentsPerPlace},
		{"mock_alert_timeout_secs", inc.MockAlertTimeoutSecs},
		{"mock_dispatch_timeout_secs", inc.MockDispatchTimeoutSecs},
	} {
		if check.value <= 0 {
			return fmt.Errorf("config: %s must be positive", check.name)
		}
	}
	return nil
}

// AlertTimeout returns the PREALERT escalation delay as a duration.
func (i Incidents) AlertTimeout() time.Duration {
	return time.Duration(i.AlertTimeoutSecs) * time.Second
}

// CancelTimeout returns the cancel wait bound as a duration.
func (i Incidents) CancelTimeout() time.Duration {
	return time.Duration(i.CancelTimeoutSecs) * time.Second
}

// CancelCacheSweep returns the expiry sweep interval as a duration.
func (i Incidents) CancelCacheSweep() time.Duration {
	return time.Duration(i.CancelCacheSweepSecs) * time.Second
}

// MockAlertTimeout returns the simulated escalation delay as a duration.
func (i Incidents) MockAlertTimeout() time.Duration {
	return time.Duration(i.MockAlertTimeoutSecs) * time.Second
}

// MockDispatchTimeout returns the simulated dispatch deadline as a duration.
func (i Incidents) MockDispatchTimeout() time.Duration {
	return time.Duration(i.MockDispatchTimeoutSecs) * time.Second
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
