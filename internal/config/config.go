package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds service configuration loaded from YAML and env.
type Config struct {
	ServerPort string

	EPGBaseURL string
	EPGDomain  string
	EPGType    string
	EPGTimeout time.Duration

	RequestTimeout time.Duration

	MaxConcurrentFetches int
	CoalesceEnabled      bool
	CoalesceTimeout      time.Duration

	BreakerEnabled      bool
	BreakerMaxRequests  int
	BreakerInterval     time.Duration
	BreakerTimeout      time.Duration
	BreakerMinRequests  int
	BreakerFailureRatio float64

	RateLimitRPS   int
	RateLimitBurst int

	HealthWindow   time.Duration
	HealthErrorPct int

	WarmingEnabled   bool
	WarmingDaysAhead int
	WarmingInterval  time.Duration

	ShutdownTimeout               time.Duration
	ShutdownInFlightTimeout       time.Duration
	ShutdownInFlightCheckInterval time.Duration
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	EPG struct {
		BaseURL string `yaml:"base_url"`
		Domain  string `yaml:"domain"`
		Type    string `yaml:"type"`
		Timeout string `yaml:"timeout"`
	} `yaml:"epg"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Query struct {
		MaxConcurrentFetches int    `yaml:"max_concurrent_fetches"`
		CoalesceEnabled      *bool  `yaml:"coalesce_enabled"`
		CoalesceTimeout      string `yaml:"coalesce_timeout"`
	} `yaml:"query"`

	Breaker struct {
		Enabled      *bool   `yaml:"enabled"`
		MaxRequests  int     `yaml:"max_requests"`
		Interval     string  `yaml:"interval"`
		Timeout      string  `yaml:"timeout"`
		MinRequests  int     `yaml:"min_requests"`
		FailureRatio float64 `yaml:"failure_ratio"`
	} `yaml:"breaker"`

	Reliability struct {
		RateLimitRPS   int `yaml:"rate_limit_rps"`
		RateLimitBurst int `yaml:"rate_limit_burst"`
	} `yaml:"reliability"`

	Health struct {
		Window   string `yaml:"window"`
		ErrorPct int    `yaml:"error_pct"`
	} `yaml:"health"`

	Warming struct {
		Enabled   *bool  `yaml:"enabled"`
		DaysAhead int    `yaml:"days_ahead"`
		Interval  string `yaml:"interval"`
	} `yaml:"warming"`

	Shutdown struct {
		Timeout               string `yaml:"timeout"`
		InFlightTimeout       string `yaml:"inflight_timeout"`
		InFlightCheckInterval string `yaml:"inflight_check_interval"`
	} `yaml:"shutdown"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev).
// The provider base URL may be overridden with the EPG_BASE_URL env var.
// Call from project root.
func Load() (*Config, error) {
	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg := &Config{}

	cfg.ServerPort = fc.Server.Port
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}

	cfg.EPGBaseURL = strings.TrimSpace(os.Getenv("EPG_BASE_URL"))
	if cfg.EPGBaseURL == "" {
		cfg.EPGBaseURL = strings.TrimSpace(fc.EPG.BaseURL)
	}
	cfg.EPGDomain = fc.EPG.Domain
	cfg.EPGType = fc.EPG.Type
	cfg.EPGTimeout = parseDuration(fc.EPG.Timeout, 5*time.Second)

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 10*time.Second)

	cfg.MaxConcurrentFetches = fc.Query.MaxConcurrentFetches
	if cfg.MaxConcurrentFetches <= 0 {
		cfg.MaxConcurrentFetches = 4
	}
	if fc.Query.CoalesceEnabled != nil {
		cfg.CoalesceEnabled = *fc.Query.CoalesceEnabled
	}
	cfg.CoalesceTimeout = parseDuration(fc.Query.CoalesceTimeout, 10*time.Second)

	cfg.BreakerEnabled = true
	if fc.Breaker.Enabled != nil {
		cfg.BreakerEnabled = *fc.Breaker.Enabled
	}
	cfg.BreakerMaxRequests = fc.Breaker.MaxRequests
	if cfg.BreakerMaxRequests <= 0 {
		cfg.BreakerMaxRequests = 3
	}
	cfg.BreakerInterval = parseDuration(fc.Breaker.Interval, time.Minute)
	cfg.BreakerTimeout = parseDuration(fc.Breaker.Timeout, 2*time.Minute)
	cfg.BreakerMinRequests = fc.Breaker.MinRequests
	if cfg.BreakerMinRequests <= 0 {
		cfg.BreakerMinRequests = 10
	}
	cfg.BreakerFailureRatio = fc.Breaker.FailureRatio
	if cfg.BreakerFailureRatio <= 0 || cfg.BreakerFailureRatio > 1 {
		cfg.BreakerFailureRatio = 0.6
	}

	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 100
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 250
	}

	cfg.HealthWindow = parseDuration(fc.Health.Window, time.Minute)
	cfg.HealthErrorPct = fc.Health.ErrorPct
	if cfg.HealthErrorPct <= 0 {
		cfg.HealthErrorPct = 50
	}

	if fc.Warming.Enabled != nil {
		cfg.WarmingEnabled = *fc.Warming.Enabled
	}
	cfg.WarmingDaysAhead = fc.Warming.DaysAhead
	if cfg.WarmingDaysAhead < 0 {
		cfg.WarmingDaysAhead = 0
	}
	cfg.WarmingInterval = parseDurationOrZero(fc.Warming.Interval, 0)

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)
	cfg.ShutdownInFlightTimeout = parseDuration(fc.Shutdown.InFlightTimeout, 10*time.Second)
	cfg.ShutdownInFlightCheckInterval = parseDuration(fc.Shutdown.InFlightCheckInterval, 100*time.Millisecond)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseDuration parses a duration string and returns defaultVal if parsing
// fails or the result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on
// empty string or parse error. Zero or negative results pass through.
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate performs post-load validation of configuration values.
func validate(cfg *Config) error {
	if cfg.EPGBaseURL == "" {
		return fmt.Errorf("epg.base_url required (set config or EPG_BASE_URL env)")
	}
	u, err := url.Parse(cfg.EPGBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("epg.base_url must be an absolute URL, got %q", cfg.EPGBaseURL)
	}
	if cfg.EPGTimeout <= 0 {
		return fmt.Errorf("epg.timeout must be positive")
	}
	if cfg.RequestTimeout <= cfg.EPGTimeout {
		cfg.RequestTimeout = cfg.EPGTimeout + time.Second
	}
	if cfg.HealthErrorPct > 100 {
		return fmt.Errorf("health.error_pct must be between 1 and 100, got %d", cfg.HealthErrorPct)
	}
	return nil
}
