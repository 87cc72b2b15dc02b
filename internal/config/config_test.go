package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// writeConfig drops a config file into a fresh working directory and
// chdirs there so Load picks it up.
func writeConfig(t *testing.T, env, content string) {
	t.Helper()
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "config"), 0o755); err != nil {
		t.Fatalf("mkdir config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config", env+".yaml"), []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	prev, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatalf("chdir back: %v", err)
		}
	})
}

func TestLoadDefaults(t *testing.T) {
	writeConfig(t, "dev", `
epg:
  base_url: "https://epg.example.com/schedule"
  domain: "tv.example.com"
  type: "airing"
`)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ServerPort != "8080" {
		t.Errorf("ServerPort = %q, want 8080", cfg.ServerPort)
	}
	if cfg.EPGTimeout != 5*time.Second {
		t.Errorf("EPGTimeout = %v, want 5s", cfg.EPGTimeout)
	}
	if cfg.MaxConcurrentFetches != 4 {
		t.Errorf("MaxConcurrentFetches = %d, want 4", cfg.MaxConcurrentFetches)
	}
	if cfg.CoalesceEnabled {
		t.Error("CoalesceEnabled should default to false")
	}
	if !cfg.BreakerEnabled {
		t.Error("BreakerEnabled should default to true")
	}
	if cfg.BreakerFailureRatio != 0.6 {
		t.Errorf("BreakerFailureRatio = %v, want 0.6", cfg.BreakerFailureRatio)
	}
	if cfg.RateLimitRPS != 100 || cfg.RateLimitBurst != 250 {
		t.Errorf("rate limit = %d/%d, want 100/250", cfg.RateLimitRPS, cfg.RateLimitBurst)
	}
	if cfg.HealthWindow != time.Minute || cfg.HealthErrorPct != 50 {
		t.Errorf("health = %v/%d, want 1m/50", cfg.HealthWindow, cfg.HealthErrorPct)
	}
	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("ShutdownTimeout = %v, want 30s", cfg.ShutdownTimeout)
	}
}

func TestLoadExplicitValues(t *testing.T) {
	writeConfig(t, "dev", `
server:
  port: "9191"
epg:
  base_url: "https://epg.example.com/schedule"
  timeout: 2s
request:
  timeout: 8s
query:
  max_concurrent_fetches: 7
  coalesce_enabled: true
  coalesce_timeout: 3s
breaker:
  enabled: false
warming:
  enabled: true
  days_ahead: 3
  interval: 1h
`)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ServerPort != "9191" {
		t.Errorf("ServerPort = %q", cfg.ServerPort)
	}
	if cfg.EPGTimeout != 2*time.Second || cfg.RequestTimeout != 8*time.Second {
		t.Errorf("timeouts = %v/%v", cfg.EPGTimeout, cfg.RequestTimeout)
	}
	if cfg.MaxConcurrentFetches != 7 {
		t.Errorf("MaxConcurrentFetches = %d", cfg.MaxConcurrentFetches)
	}
	if !cfg.CoalesceEnabled || cfg.CoalesceTimeout != 3*time.Second {
		t.Errorf("coalesce = %v/%v", cfg.CoalesceEnabled, cfg.CoalesceTimeout)
	}
	if cfg.BreakerEnabled {
		t.Error("BreakerEnabled explicitly disabled")
	}
	if !cfg.WarmingEnabled || cfg.WarmingDaysAhead != 3 || cfg.WarmingInterval != time.Hour {
		t.Errorf("warming = %v/%d/%v", cfg.WarmingEnabled, cfg.WarmingDaysAhead, cfg.WarmingInterval)
	}
}

func TestLoadEnvOverridesBaseURL(t *testing.T) {
	writeConfig(t, "dev", `
epg:
  base_url: "https://file.example.com"
`)
	t.Setenv("EPG_BASE_URL", "https://env.example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.EPGBaseURL != "https://env.example.com" {
		t.Errorf("EPGBaseURL = %q, want env value", cfg.EPGBaseURL)
	}
}

func TestLoadEnvName(t *testing.T) {
	writeConfig(t, "prod", `
epg:
  base_url: "https://prod.example.com"
`)
	t.Setenv("ENV_NAME", "prod")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.EPGBaseURL != "https://prod.example.com" {
		t.Errorf("EPGBaseURL = %q", cfg.EPGBaseURL)
	}
}

func TestLoadMissingFile(t *testing.T) {
	prev, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatalf("chdir back: %v", err)
		}
	})
	if _, err := Load(); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing base url", "server:\n  port: \"8080\"\n"},
		{"relative base url", "epg:\n  base_url: \"/schedule\"\n"},
		{"error pct over 100", "epg:\n  base_url: \"https://x.example.com\"\nhealth:\n  error_pct: 150\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			writeConfig(t, "dev", tt.content)
			if _, err := Load(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestRequestTimeoutBumpedAboveProviderTimeout(t *testing.T) {
	writeConfig(t, "dev", `
epg:
  base_url: "https://epg.example.com"
  timeout: 20s
request:
  timeout: 5s
`)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RequestTimeout <= cfg.EPGTimeout {
		t.Errorf("RequestTimeout %v not raised above EPGTimeout %v", cfg.RequestTimeout, cfg.EPGTimeout)
	}
}
