// Package config handles environment-based configuration loading.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// EnvConfig holds all environment-variable-driven settings.
type EnvConfig struct {
	// Server
	ListenAddress   string
	Port            int
	APIMaxBodyBytes int
	DataDir         string

	// Scraper
	ScraperTimeout         time.Duration
	ScraperMaxRetries      int
	ScraperCacheTTL        time.Duration
	ScraperRateLimitPerMin int
	SourcesFile            string

	// Validator
	GeoProvider          string
	GeoMMDBPath          string
	AnonymityMode        string
	AnonymityProbeURL    string
	ValidateConcurrency  int
	ValidateProbeTimeout time.Duration

	// Scheduler
	SchedulerEnabled         bool
	SchedulerValidateEvery   int // minutes
	SchedulerScrapeEvery     int // minutes
	SchedulerValidateMax     int
	SchedulerScrapeQuantity  int
	MaintenanceSchedule      string
	MaintenanceRetentionDays int
}

// Anonymity detection modes.
const (
	AnonymityModeBasic    = "basic"
	AnonymityModeEnhanced = "enhanced"
)

// Geolocation provider identifiers.
const (
	GeoProviderIPAPI  = "ip-api"
	GeoProviderIPAPIC = "ipapi"
	GeoProviderIPInfo = "ipinfo"
	GeoProviderMMDB   = "mmdb"
)

// LoadEnvConfig reads environment variables and returns a validated EnvConfig.
// Returns an error if any value is invalid.
func LoadEnvConfig() (*EnvConfig, error) {
	cfg := &EnvConfig{}
	var errs []string

	// --- Server ---
	cfg.ListenAddress = strings.TrimSpace(envStr("TRAWL_LISTEN_ADDRESS", "0.0.0.0"))
	cfg.Port = envInt("TRAWL_PORT", 2390, &errs)
	cfg.APIMaxBodyBytes = envInt("TRAWL_API_MAX_BODY_BYTES", 1<<20, &errs)
	cfg.DataDir = envStr("TRAWL_DATA_DIR", "/var/lib/trawl")

	// --- Scraper ---
	cfg.ScraperTimeout = time.Duration(envInt("SCRAPER_TIMEOUT_SEC", 10, &errs)) * time.Second
	cfg.ScraperMaxRetries = envInt("SCRAPER_MAX_RETRIES", 2, &errs)
	cfg.ScraperCacheTTL = time.Duration(envInt("SCRAPER_CACHE_TTL_SEC", 120, &errs)) * time.Second
	cfg.ScraperRateLimitPerMin = envInt("SCRAPER_RATE_LIMIT_PER_MIN", 30, &errs)
	cfg.SourcesFile = envStr("TRAWL_SOURCES_FILE", "")

	// --- Validator ---
	cfg.GeoProvider = strings.ToLower(envStr("GEO_PROVIDER", GeoProviderIPAPI))
	cfg.GeoMMDBPath = envStr("TRAWL_GEO_MMDB_PATH", "")
	cfg.AnonymityMode = strings.ToLower(envStr("ANONYMITY_DETECTION_MODE", AnonymityModeBasic))
	cfg.AnonymityProbeURL = envStr("TRAWL_ANONYMITY_PROBE_URL", "http://httpbin.org/headers")
	cfg.ValidateConcurrency = envInt("TRAWL_VALIDATE_CONCURRENCY", 20, &errs)
	cfg.ValidateProbeTimeout = envDuration("TRAWL_VALIDATE_PROBE_TIMEOUT", 10*time.Second, &errs)

	// --- Scheduler ---
	cfg.SchedulerEnabled = envBool("PROXY_SCHEDULER_ENABLED", false, &errs)
	cfg.SchedulerValidateEvery = envInt("PROXY_SCHEDULER_VALIDATE_EVERY_MINUTES", 30, &errs)
	cfg.SchedulerScrapeEvery = envInt("PROXY_SCHEDULER_SCRAPE_EVERY_MINUTES", 60, &errs)
	cfg.SchedulerValidateMax = envInt("PROXY_SCHEDULER_VALIDATE_MAX_COUNT", 200, &errs)
	cfg.SchedulerScrapeQuantity = envInt("PROXY_SCHEDULER_SCRAPE_QUANTITY", 200, &errs)
	cfg.MaintenanceSchedule = envStr("TRAWL_MAINTENANCE_SCHEDULE", "0 4 * * *")
	cfg.MaintenanceRetentionDays = envInt("TRAWL_MAINTENANCE_RETENTION_DAYS", 7, &errs)

	// --- Validation ---
	if cfg.ListenAddress == "" {
		errs = append(errs, "TRAWL_LISTEN_ADDRESS must not be empty")
	}
	validatePort("TRAWL_PORT", cfg.Port, &errs)
	validatePositive("TRAWL_API_MAX_BODY_BYTES", cfg.APIMaxBodyBytes, &errs)

	if cfg.ScraperTimeout <= 0 {
		errs = append(errs, "SCRAPER_TIMEOUT_SEC must be positive")
	}
	if cfg.ScraperMaxRetries < 0 {
		errs = append(errs, "SCRAPER_MAX_RETRIES must be non-negative")
	}
	if cfg.ScraperCacheTTL <= 0 {
		errs = append(errs, "SCRAPER_CACHE_TTL_SEC must be positive")
	}
	validatePositive("SCRAPER_RATE_LIMIT_PER_MIN", cfg.ScraperRateLimitPerMin, &errs)

	switch cfg.GeoProvider {
	case GeoProviderIPAPI, GeoProviderIPAPIC, GeoProviderIPInfo, GeoProviderMMDB:
	default:
		errs = append(errs, fmt.Sprintf(
			"GEO_PROVIDER: invalid value %q (allowed: %s, %s, %s, %s)",
			cfg.GeoProvider, GeoProviderIPAPI, GeoProviderIPAPIC, GeoProviderIPInfo, GeoProviderMMDB,
		))
	}
	if cfg.GeoProvider == GeoProviderMMDB && strings.TrimSpace(cfg.GeoMMDBPath) == "" {
		errs = append(errs, "TRAWL_GEO_MMDB_PATH: required when GEO_PROVIDER is mmdb")
	}
	if cfg.AnonymityMode != AnonymityModeBasic && cfg.AnonymityMode != AnonymityModeEnhanced {
		errs = append(errs, fmt.Sprintf(
			"ANONYMITY_DETECTION_MODE: invalid value %q (allowed: %s, %s)",
			cfg.AnonymityMode, AnonymityModeBasic, AnonymityModeEnhanced,
		))
	}
	validatePositive("TRAWL_VALIDATE_CONCURRENCY", cfg.ValidateConcurrency, &errs)
	if cfg.ValidateProbeTimeout <= 0 {
		errs = append(errs, "TRAWL_VALIDATE_PROBE_TIMEOUT must be positive")
	}

	validatePositive("PROXY_SCHEDULER_VALIDATE_EVERY_MINUTES", cfg.SchedulerValidateEvery, &errs)
	validatePositive("PROXY_SCHEDULER_SCRAPE_EVERY_MINUTES", cfg.SchedulerScrapeEvery, &errs)
	validatePositive("PROXY_SCHEDULER_VALIDATE_MAX_COUNT", cfg.SchedulerValidateMax, &errs)
	validatePositive("PROXY_SCHEDULER_SCRAPE_QUANTITY", cfg.SchedulerScrapeQuantity, &errs)
	if _, err := cron.ParseStandard(cfg.MaintenanceSchedule); err != nil {
		errs = append(errs, fmt.Sprintf("TRAWL_MAINTENANCE_SCHEDULE: invalid cron expression %q: %v", cfg.MaintenanceSchedule, err))
	}
	validatePositive("TRAWL_MAINTENANCE_RETENTION_DAYS", cfg.MaintenanceRetentionDays, &errs)

	if len(errs) > 0 {
		return nil, fmt.Errorf("config validation failed:\n  %s", strings.Join(errs, "\n  "))
	}

	return cfg, nil
}

// --- helpers ---

func envStr(key, defaultVal string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int, errs *[]string) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid integer %q", key, v))
		return defaultVal
	}
	return n
}

func envBool(key string, defaultVal bool, errs *[]string) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid boolean %q", key, v))
		return defaultVal
	}
	return b
}

func envDuration(key string, defaultVal time.Duration, errs *[]string) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid duration %q", key, v))
		return defaultVal
	}
	return d
}

func validatePort(name string, value int, errs *[]string) {
	if value < 1 || value > 65535 {
		*errs = append(*errs, fmt.Sprintf("%s: port must be 1-65535, got %d", name, value))
	}
}

func validatePositive(name string, value int, errs *[]string) {
	if value <= 0 {
		*errs = append(*errs, fmt.Sprintf("%s: must be positive, got %d", name, value))
	}
}
