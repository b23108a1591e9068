package scheduler

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/trawlhq/trawl/internal/jobs"
	"github.com/trawlhq/trawl/internal/model"
	"github.com/trawlhq/trawl/internal/scraper"
	"github.com/trawlhq/trawl/internal/store"
	"github.com/trawlhq/trawl/internal/validator"
)

// fakeStarter records enqueued work and completes the jobs inline with
// canned results.
type fakeStarter struct {
	reg            *jobs.Registry
	scrapes        []scraper.ScrapeRequest
	validates      [][]model.Candidate
	scrapeResult   map[string]any
	validateResult map[string]any
}

func (f *fakeStarter) StartScrape(req scraper.ScrapeRequest) *jobs.Job {
	f.scrapes = append(f.scrapes, req)
	j := f.reg.Create(jobs.KindScrape)
	j.Complete(f.scrapeResult)
	return j
}

func (f *fakeStarter) StartValidate(candidates []model.Candidate, opts validator.BatchOptions) *jobs.Job {
	f.validates = append(f.validates, candidates)
	j := f.reg.Create(jobs.KindValidate)
	j.Complete(f.validateResult)
	return j
}

func newTestRepo(t *testing.T) *store.ProxyRepo {
	t.Helper()
	db, err := store.OpenDB(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := store.MigrateCatalogDB(db); err != nil {
		t.Fatalf("MigrateCatalogDB: %v", err)
	}
	return store.NewProxyRepo(db)
}

func newTestScheduler(t *testing.T, cfg Config) (*Scheduler, *fakeStarter, *store.ProxyRepo) {
	t.Helper()
	reg := jobs.NewRegistry()
	starter := &fakeStarter{
		reg:            reg,
		scrapeResult:   map[string]any{"total_found": 2, "saved": 2, "by_source": map[string]int{"fake": 2}},
		validateResult: map[string]any{"total_tested": 4, "valid": 3, "invalid": 1},
	}
	repo := newTestRepo(t)
	s := New(starter, reg, repo, cfg, validator.BatchOptions{})
	return s, starter, repo
}

func TestTickEnqueuesScrapeOncePerInterval(t *testing.T) {
	s, starter, _ := newTestScheduler(t, Config{
		Enabled:           true,
		ScrapeIntervalMin: 1,
		ScrapeQuantity:    2,
	})
	current := time.Unix(10000, 0)
	s.now = func() time.Time { return current }

	s.tickOnce() // first tick: never ran, due immediately
	if len(starter.scrapes) != 1 {
		t.Fatalf("scrapes = %d, want 1", len(starter.scrapes))
	}
	if starter.scrapes[0].Quantity != 2 {
		t.Fatalf("quantity = %d, want 2", starter.scrapes[0].Quantity)
	}

	// Within the interval nothing new is enqueued.
	current = current.Add(30 * time.Second)
	s.tickOnce()
	s.tickOnce()
	if len(starter.scrapes) != 1 {
		t.Fatalf("scrapes = %d, want still 1", len(starter.scrapes))
	}

	current = current.Add(30 * time.Second)
	s.tickOnce()
	if len(starter.scrapes) != 2 {
		t.Fatalf("scrapes = %d, want 2 after a full minute", len(starter.scrapes))
	}

	st := s.Status()
	if st.LastScrapeAt == nil || !st.LastScrapeAt.Equal(current) {
		t.Fatalf("last_scrape_at = %v, want %v", st.LastScrapeAt, current)
	}
}

func TestTickDisabledDoesNothing(t *testing.T) {
	s, starter, _ := newTestScheduler(t, Config{
		Enabled:             false,
		ScrapeIntervalMin:   1,
		ValidateIntervalMin: 1,
	})
	s.tickOnce()
	if len(starter.scrapes) != 0 || len(starter.validates) != 0 {
		t.Fatal("disabled scheduler must not enqueue work")
	}
}

func TestTickSelectsValidationBatch(t *testing.T) {
	s, starter, repo := newTestScheduler(t, Config{
		Enabled:             true,
		ValidateIntervalMin: 1,
		ValidateBatchSize:   2,
	})
	for _, ip := range []string{"1.1.1.1", "2.2.2.2", "3.3.3.3"} {
		if _, err := repo.Upsert(ip, 8080, model.ProtocolHTTP, nil, nil); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}

	s.tickOnce()
	if len(starter.validates) != 1 {
		t.Fatalf("validates = %d, want 1", len(starter.validates))
	}
	batch := starter.validates[0]
	if len(batch) != 2 {
		t.Fatalf("batch size = %d, want capped at 2", len(batch))
	}
	if batch[0].Protocol != model.ProtocolHTTP || batch[0].Port != 8080 {
		t.Fatalf("candidate = %+v", batch[0])
	}
}

func TestTickSkipsValidationOnEmptyCatalog(t *testing.T) {
	s, starter, _ := newTestScheduler(t, Config{
		Enabled:             true,
		ValidateIntervalMin: 1,
		ValidateBatchSize:   10,
	})
	current := time.Unix(10000, 0)
	s.now = func() time.Time { return current }

	s.tickOnce()
	if len(starter.validates) != 0 {
		t.Fatalf("validates = %d, want no job for an empty catalog", len(starter.validates))
	}

	// The run is still recorded, so the next tick inside the interval
	// does not re-select.
	st := s.Status()
	if st.LastValidateAt == nil || !st.LastValidateAt.Equal(current) {
		t.Fatalf("last_validate_at = %v, want %v", st.LastValidateAt, current)
	}
	if st.LastValidateJobID != "" {
		t.Fatalf("last_validate_job_id = %q, want empty", st.LastValidateJobID)
	}
}

func TestStatusDerivesMetricsFromRegistry(t *testing.T) {
	s, _, repo := newTestScheduler(t, Config{
		Enabled:             true,
		ScrapeIntervalMin:   1,
		ValidateIntervalMin: 1,
		ScrapeQuantity:      2,
		ValidateBatchSize:   4,
	})
	if _, err := repo.Upsert("1.1.1.1", 8080, model.ProtocolHTTP, nil, nil); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	s.tickOnce()

	st := s.Status()
	if st.LastScrapeMetrics == nil {
		t.Fatal("scrape metrics missing")
	}
	if st.LastScrapeMetrics["total_found"] != 2 || st.LastScrapeMetrics["saved"] != 2 {
		t.Fatalf("scrape metrics = %v", st.LastScrapeMetrics)
	}
	if st.LastValidateMetrics == nil {
		t.Fatal("validate metrics missing")
	}
	if st.LastValidateMetrics["success_rate"] != 0.75 {
		t.Fatalf("success_rate = %v, want 0.75", st.LastValidateMetrics["success_rate"])
	}
}

func TestUpdateConfigPositiveFieldsOnly(t *testing.T) {
	s, _, _ := newTestScheduler(t, Config{
		ValidateIntervalMin: 30,
		ScrapeIntervalMin:   60,
		ValidateBatchSize:   200,
		ScrapeQuantity:      200,
	})

	newInterval, zero := 15, 0
	enabled := true
	cfg := s.UpdateConfig(ConfigUpdate{
		Enabled:             &enabled,
		ValidateIntervalMin: &newInterval,
		ScrapeQuantity:      &zero, // non-positive, ignored
	})
	defer s.Stop()

	if cfg.ValidateIntervalMin != 15 {
		t.Fatalf("validate_interval_min = %d, want 15", cfg.ValidateIntervalMin)
	}
	if cfg.ScrapeQuantity != 200 {
		t.Fatalf("scrape_quantity = %d, want unchanged 200", cfg.ScrapeQuantity)
	}
	if !cfg.Enabled {
		t.Fatal("enabled should be set")
	}
	if !s.Status().Running {
		t.Fatal("enabling should start the loop")
	}

	disabled := false
	s.UpdateConfig(ConfigUpdate{Enabled: &disabled})
	if s.Status().Config.Enabled {
		t.Fatal("enabled should be cleared")
	}
}

func TestStartStopIdempotent(t *testing.T) {
	s, _, _ := newTestScheduler(t, Config{Enabled: true, ScrapeIntervalMin: 1})
	s.Start()
	s.Start()
	if !s.Status().Running {
		t.Fatal("expected running")
	}
	s.Stop()
	s.Stop()
	if s.Status().Running {
		t.Fatal("expected stopped")
	}
}
