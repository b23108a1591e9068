package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadEnvConfigDefaults(t *testing.T) {
	cfg, err := LoadEnvConfig()
	if err != nil {
		t.Fatalf("LoadEnvConfig() error: %v", err)
	}
	if cfg.Port != 2390 {
		t.Errorf("Port = %d, want 2390", cfg.Port)
	}
	if cfg.ScraperCacheTTL != 120*time.Second {
		t.Errorf("ScraperCacheTTL = %v, want 120s", cfg.ScraperCacheTTL)
	}
	if cfg.ScraperRateLimitPerMin != 30 {
		t.Errorf("ScraperRateLimitPerMin = %d, want 30", cfg.ScraperRateLimitPerMin)
	}
	if cfg.GeoProvider != GeoProviderIPAPI {
		t.Errorf("GeoProvider = %q, want %q", cfg.GeoProvider, GeoProviderIPAPI)
	}
	if cfg.AnonymityMode != AnonymityModeBasic {
		t.Errorf("AnonymityMode = %q, want basic", cfg.AnonymityMode)
	}
	if cfg.SchedulerEnabled {
		t.Error("SchedulerEnabled should default to false")
	}
	if cfg.SchedulerValidateEvery != 30 || cfg.SchedulerScrapeEvery != 60 {
		t.Errorf("scheduler intervals = %d/%d, want 30/60",
			cfg.SchedulerValidateEvery, cfg.SchedulerScrapeEvery)
	}
}

func TestLoadEnvConfigOverrides(t *testing.T) {
	t.Setenv("TRAWL_PORT", "8099")
	t.Setenv("SCRAPER_TIMEOUT_SEC", "5")
	t.Setenv("GEO_PROVIDER", "ipinfo")
	t.Setenv("ANONYMITY_DETECTION_MODE", "enhanced")
	t.Setenv("PROXY_SCHEDULER_ENABLED", "true")
	t.Setenv("PROXY_SCHEDULER_SCRAPE_QUANTITY", "50")

	cfg, err := LoadEnvConfig()
	if err != nil {
		t.Fatalf("LoadEnvConfig() error: %v", err)
	}
	if cfg.Port != 8099 {
		t.Errorf("Port = %d, want 8099", cfg.Port)
	}
	if cfg.ScraperTimeout != 5*time.Second {
		t.Errorf("ScraperTimeout = %v, want 5s", cfg.ScraperTimeout)
	}
	if cfg.GeoProvider != GeoProviderIPInfo {
		t.Errorf("GeoProvider = %q, want ipinfo", cfg.GeoProvider)
	}
	if cfg.AnonymityMode != AnonymityModeEnhanced {
		t.Errorf("AnonymityMode = %q, want enhanced", cfg.AnonymityMode)
	}
	if !cfg.SchedulerEnabled {
		t.Error("SchedulerEnabled should be true")
	}
	if cfg.SchedulerScrapeQuantity != 50 {
		t.Errorf("SchedulerScrapeQuantity = %d, want 50", cfg.SchedulerScrapeQuantity)
	}
}

func TestLoadEnvConfigInvalidValues(t *testing.T) {
	t.Setenv("TRAWL_PORT", "70000")
	t.Setenv("GEO_PROVIDER", "nope")
	t.Setenv("ANONYMITY_DETECTION_MODE", "stealth")
	t.Setenv("TRAWL_MAINTENANCE_SCHEDULE", "not a cron")

	_, err := LoadEnvConfig()
	if err == nil {
		t.Fatal("LoadEnvConfig() should fail")
	}
	for _, want := range []string{"TRAWL_PORT", "GEO_PROVIDER", "ANONYMITY_DETECTION_MODE", "TRAWL_MAINTENANCE_SCHEDULE"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %s, got: %v", want, err)
		}
	}
}

func TestLoadEnvConfigMMDBRequiresPath(t *testing.T) {
	t.Setenv("GEO_PROVIDER", "mmdb")

	_, err := LoadEnvConfig()
	if err == nil || !strings.Contains(err.Error(), "TRAWL_GEO_MMDB_PATH") {
		t.Fatalf("expected TRAWL_GEO_MMDB_PATH error, got: %v", err)
	}

	t.Setenv("TRAWL_GEO_MMDB_PATH", "/tmp/country.mmdb")
	if _, err := LoadEnvConfig(); err != nil {
		t.Fatalf("LoadEnvConfig() with mmdb path error: %v", err)
	}
}
