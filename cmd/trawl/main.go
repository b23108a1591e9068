package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/trawlhq/trawl/internal/api"
	"github.com/trawlhq/trawl/internal/buildinfo"
	"github.com/trawlhq/trawl/internal/config"
	"github.com/trawlhq/trawl/internal/jobs"
	"github.com/trawlhq/trawl/internal/scheduler"
	"github.com/trawlhq/trawl/internal/scraper"
	"github.com/trawlhq/trawl/internal/service"
	"github.com/trawlhq/trawl/internal/store"
	"github.com/trawlhq/trawl/internal/validator"
	"github.com/trawlhq/trawl/internal/webhook"
)

func main() {
	log.Printf("trawl %s (commit %s, built %s)", buildinfo.Version, buildinfo.GitCommit, buildinfo.BuildTime)

	// 1. Load and validate environment config
	envCfg, err := config.LoadEnvConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}

	// 2. Open the catalog store
	if err := os.MkdirAll(envCfg.DataDir, 0o755); err != nil {
		log.Fatalf("create data dir: %v", err)
	}
	db, err := store.OpenDB(filepath.Join(envCfg.DataDir, "catalog.db"))
	if err != nil {
		log.Fatalf("open catalog db: %v", err)
	}
	defer db.Close()
	if err := store.MigrateCatalogDB(db); err != nil {
		log.Fatalf("migrate catalog db: %v", err)
	}
	proxies := store.NewProxyRepo(db)
	webhooks := store.NewWebhookRepo(db)

	// 3. Wire the scrape pipeline
	sources := scraper.DefaultSources()
	if envCfg.SourcesFile != "" {
		extra, err := scraper.LoadExtraSources(envCfg.SourcesFile)
		if err != nil {
			log.Fatalf("load extra sources: %v", err)
		}
		sources = append(sources, extra...)
	}
	coord := scraper.NewCoordinator(sources, scraper.Config{
		CacheTTL:        envCfg.ScraperCacheTTL,
		RateLimitPerMin: envCfg.ScraperRateLimitPerMin,
		DefaultTimeout:  envCfg.ScraperTimeout,
		DefaultRetries:  envCfg.ScraperMaxRetries,
	})

	// 4. Wire the validation pipeline
	builder, err := validator.NewSingboxBuilder()
	if err != nil {
		log.Fatalf("outbound builder: %v", err)
	}
	defer builder.Close()
	geo, err := validator.NewGeoResolver(envCfg.GeoProvider, envCfg.GeoMMDBPath)
	if err != nil {
		log.Fatalf("geo resolver: %v", err)
	}
	anon := validator.NewAnonymityChecker(envCfg.AnonymityProbeURL, envCfg.AnonymityMode)
	v := validator.New(&validator.OutboundTransportFactory{Builder: builder}, anon, geo)
	writer := &validator.ResultWriter{Proxies: proxies}

	// 5. Jobs, webhooks, scheduler
	registry := jobs.NewRegistry()
	fanout := webhook.NewFanout(webhooks)
	runner := &jobs.Runner{
		Registry:    registry,
		Coordinator: coord,
		Validator:   v,
		Writer:      writer,
		Proxies:     proxies,
		Notifier:    fanout,
	}
	sched := scheduler.New(runner, registry, proxies, scheduler.Config{
		Enabled:             envCfg.SchedulerEnabled,
		ValidateIntervalMin: envCfg.SchedulerValidateEvery,
		ScrapeIntervalMin:   envCfg.SchedulerScrapeEvery,
		ValidateBatchSize:   envCfg.SchedulerValidateMax,
		ScrapeQuantity:      envCfg.SchedulerScrapeQuantity,
	}, validator.BatchOptions{
		Options: validator.Options{
			Timeout: envCfg.ValidateProbeTimeout,
		},
		Concurrency: envCfg.ValidateConcurrency,
	})
	if envCfg.SchedulerEnabled {
		sched.Start()
	}
	defer sched.Stop()

	// 6. Catalog maintenance
	maint := cron.New()
	retention := time.Duration(envCfg.MaintenanceRetentionDays) * 24 * time.Hour
	if _, err := maint.AddFunc(envCfg.MaintenanceSchedule, func() {
		cutoff := time.Now().Add(-retention).UnixNano()
		n, err := proxies.DeleteStaleInvalid(cutoff)
		if err != nil {
			log.Printf("[maintenance] purge stale invalid proxies: %v", err)
			return
		}
		log.Printf("[maintenance] purged %d stale invalid proxies", n)
	}); err != nil {
		log.Fatalf("maintenance schedule: %v", err)
	}
	maint.Start()
	defer maint.Stop()

	// 7. Create and start API server
	cp := &service.ControlPlaneService{
		Proxies:     proxies,
		Webhooks:    webhooks,
		Coordinator: coord,
		Validator:   v,
		Writer:      writer,
		Registry:    registry,
		Runner:      runner,
		Scheduler:   sched,
		EnvCfg:      envCfg,
	}
	srv := api.NewServer(envCfg.ListenAddress, envCfg.Port, cp, int64(envCfg.APIMaxBodyBytes))

	go func() {
		log.Printf("trawl API server starting on %s:%d", envCfg.ListenAddress, envCfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("API server error: %v", err)
		}
	}()

	// 8. Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Printf("Received signal %s, shutting down...", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	log.Println("Server stopped")
}
