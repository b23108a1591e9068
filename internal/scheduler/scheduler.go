// Package scheduler runs periodic scrape and validate jobs.
package scheduler

import (
	"log"
	"math"
	"sync"
	"time"

	"github.com/trawlhq/trawl/internal/jobs"
	"github.com/trawlhq/trawl/internal/model"
	"github.com/trawlhq/trawl/internal/scraper"
	"github.com/trawlhq/trawl/internal/store"
	"github.com/trawlhq/trawl/internal/validator"
)

const tickInterval = 5 * time.Second

// Config is the scheduler's mutable configuration. Intervals are in
// minutes; all numeric fields must be positive.
type Config struct {
	Enabled             bool `json:"enabled"`
	ValidateIntervalMin int  `json:"validate_interval_min"`
	ScrapeIntervalMin   int  `json:"scrape_interval_min"`
	ValidateBatchSize   int  `json:"validate_batch_size"`
	ScrapeQuantity      int  `json:"scrape_quantity"`
}

// ConfigUpdate is a partial config change. Numeric fields apply only
// when positive.
type ConfigUpdate struct {
	Enabled             *bool `json:"enabled"`
	ValidateIntervalMin *int  `json:"validate_interval_min"`
	ScrapeIntervalMin   *int  `json:"scrape_interval_min"`
	ValidateBatchSize   *int  `json:"validate_batch_size"`
	ScrapeQuantity      *int  `json:"scrape_quantity"`
}

// JobStarter enqueues background jobs. *jobs.Runner implements it.
type JobStarter interface {
	StartScrape(req scraper.ScrapeRequest) *jobs.Job
	StartValidate(candidates []model.Candidate, opts validator.BatchOptions) *jobs.Job
}

// Scheduler is a single long-lived loop that ticks every 5 seconds and
// enqueues work when an interval has elapsed. Jobs run off the loop.
type Scheduler struct {
	starter      JobStarter
	registry     *jobs.Registry
	proxies      *store.ProxyRepo
	validateOpts validator.BatchOptions

	mu                sync.Mutex
	cfg               Config
	running           bool
	lastValidateAt    *time.Time
	lastScrapeAt      *time.Time
	lastValidateJobID string
	lastScrapeJobID   string
	stop              chan struct{}

	tick time.Duration
	now  func() time.Time
}

func New(starter JobStarter, registry *jobs.Registry, proxies *store.ProxyRepo, cfg Config, validateOpts validator.BatchOptions) *Scheduler {
	return &Scheduler{
		starter:      starter,
		registry:     registry,
		proxies:      proxies,
		validateOpts: validateOpts,
		cfg:          cfg,
		tick:         tickInterval,
		now:          time.Now,
	}
}

// Start launches the tick loop. Calling Start on a running scheduler is
// a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stop = make(chan struct{})
	go s.loop(s.stop)
	log.Printf("[scheduler] started (tick %s)", s.tick)
}

// Stop asks the loop to exit on its next wake. In-flight jobs continue
// to completion. Stopping a stopped scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	close(s.stop)
	log.Printf("[scheduler] stopped")
}

func (s *Scheduler) loop(stop chan struct{}) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.tickOnce()
		}
	}
}

// tickOnce evaluates both intervals and enqueues due jobs. Timestamps
// are recorded strictly after the job is enqueued.
func (s *Scheduler) tickOnce() {
	s.mu.Lock()
	cfg := s.cfg
	lastScrape := s.lastScrapeAt
	lastValidate := s.lastValidateAt
	s.mu.Unlock()

	if !cfg.Enabled {
		return
	}
	now := s.now()

	if cfg.ScrapeIntervalMin > 0 && due(now, lastScrape, cfg.ScrapeIntervalMin) {
		job := s.starter.StartScrape(scraper.ScrapeRequest{Quantity: cfg.ScrapeQuantity})
		s.mu.Lock()
		t := now
		s.lastScrapeAt = &t
		s.lastScrapeJobID = job.ID()
		s.mu.Unlock()
		log.Printf("[scheduler] enqueued scrape job %s", job.ID())
	}

	if cfg.ValidateIntervalMin > 0 && due(now, lastValidate, cfg.ValidateIntervalMin) {
		records, err := s.proxies.SelectForValidation(cfg.ValidateBatchSize, false, nil)
		if err != nil {
			log.Printf("[scheduler] select for validation: %v", err)
			return
		}
		// An empty catalog still counts as a run; no job is enqueued.
		if len(records) == 0 {
			s.mu.Lock()
			t := now
			s.lastValidateAt = &t
			s.mu.Unlock()
			return
		}
		candidates := make([]model.Candidate, 0, len(records))
		for i := range records {
			rec := &records[i]
			candidates = append(candidates, model.Candidate{
				IP:       rec.IP,
				Port:     rec.Port,
				Protocol: rec.Protocol,
			})
		}
		job := s.starter.StartValidate(candidates, s.validateOpts)
		s.mu.Lock()
		t := now
		s.lastValidateAt = &t
		s.lastValidateJobID = job.ID()
		s.mu.Unlock()
		log.Printf("[scheduler] enqueued validate job %s (%d proxies)", job.ID(), len(candidates))
	}
}

func due(now time.Time, last *time.Time, intervalMin int) bool {
	if last == nil {
		return true
	}
	return now.Sub(*last) >= time.Duration(intervalMin)*time.Minute
}

// StatusSnapshot is the control-plane view of the scheduler.
type StatusSnapshot struct {
	Config              Config         `json:"config"`
	Running             bool           `json:"running"`
	LastValidateAt      *time.Time     `json:"last_validate_at,omitempty"`
	LastScrapeAt        *time.Time     `json:"last_scrape_at,omitempty"`
	LastValidateJobID   string         `json:"last_validate_job_id,omitempty"`
	LastScrapeJobID     string         `json:"last_scrape_job_id,omitempty"`
	LastValidateMetrics map[string]any `json:"last_validate_metrics,omitempty"`
	LastScrapeMetrics   map[string]any `json:"last_scrape_metrics,omitempty"`
}

// Status reports config, liveness, last-run timestamps, and metrics
// derived from the most recent jobs still present in the registry.
func (s *Scheduler) Status() StatusSnapshot {
	s.mu.Lock()
	snap := StatusSnapshot{
		Config:            s.cfg,
		Running:           s.running,
		LastValidateAt:    s.lastValidateAt,
		LastScrapeAt:      s.lastScrapeAt,
		LastValidateJobID: s.lastValidateJobID,
		LastScrapeJobID:   s.lastScrapeJobID,
	}
	s.mu.Unlock()

	if snap.LastValidateJobID != "" {
		if job, ok := s.registry.Get(snap.LastValidateJobID); ok && job.Status == jobs.StatusCompleted {
			snap.LastValidateMetrics = validateMetrics(job)
		}
	}
	if snap.LastScrapeJobID != "" {
		if job, ok := s.registry.Get(snap.LastScrapeJobID); ok && job.Status == jobs.StatusCompleted {
			snap.LastScrapeMetrics = scrapeMetrics(job)
		}
	}
	return snap
}

func validateMetrics(job jobs.Snapshot) map[string]any {
	m := map[string]any{}
	if job.DurationSeconds != nil {
		m["duration_seconds"] = *job.DurationSeconds
	}
	tested, _ := job.Result["total_tested"].(int)
	valid, _ := job.Result["valid"].(int)
	m["total_tested"] = tested
	m["valid"] = valid
	if tested > 0 {
		m["success_rate"] = math.Round(float64(valid)/float64(tested)*100) / 100
	} else {
		m["success_rate"] = 0.0
	}
	return m
}

func scrapeMetrics(job jobs.Snapshot) map[string]any {
	m := map[string]any{}
	if job.DurationSeconds != nil {
		m["duration_seconds"] = *job.DurationSeconds
	}
	if v, ok := job.Result["total_found"]; ok {
		m["total_found"] = v
	}
	if v, ok := job.Result["saved"]; ok {
		m["saved"] = v
	}
	if v, ok := job.Result["by_source"]; ok {
		m["by_source"] = v
	}
	return m
}

// UpdateConfig applies a partial update. Numeric fields are taken only
// when positive; toggling enabled starts or pauses the loop.
func (s *Scheduler) UpdateConfig(u ConfigUpdate) Config {
	s.mu.Lock()
	if u.ValidateIntervalMin != nil && *u.ValidateIntervalMin > 0 {
		s.cfg.ValidateIntervalMin = *u.ValidateIntervalMin
	}
	if u.ScrapeIntervalMin != nil && *u.ScrapeIntervalMin > 0 {
		s.cfg.ScrapeIntervalMin = *u.ScrapeIntervalMin
	}
	if u.ValidateBatchSize != nil && *u.ValidateBatchSize > 0 {
		s.cfg.ValidateBatchSize = *u.ValidateBatchSize
	}
	if u.ScrapeQuantity != nil && *u.ScrapeQuantity > 0 {
		s.cfg.ScrapeQuantity = *u.ScrapeQuantity
	}
	var startLoop bool
	if u.Enabled != nil {
		s.cfg.Enabled = *u.Enabled
		startLoop = *u.Enabled && !s.running
	}
	cfg := s.cfg
	s.mu.Unlock()

	// Disabling only pauses the ticks; the loop itself keeps running.
	if startLoop {
		s.Start()
	}
	return cfg
}
