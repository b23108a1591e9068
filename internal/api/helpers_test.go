package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/trawlhq/trawl/internal/config"
	"github.com/trawlhq/trawl/internal/jobs"
	"github.com/trawlhq/trawl/internal/model"
	"github.com/trawlhq/trawl/internal/netutil"
	"github.com/trawlhq/trawl/internal/scheduler"
	"github.com/trawlhq/trawl/internal/scraper"
	"github.com/trawlhq/trawl/internal/service"
	"github.com/trawlhq/trawl/internal/store"
	"github.com/trawlhq/trawl/internal/validator"
)

// stubSource is a canned adapter for control-plane tests.
type stubSource struct {
	id  string
	out []model.Candidate
}

func (s *stubSource) ID() string { return s.id }

func (s *stubSource) Fetch(ctx context.Context, dl netutil.Downloader, opts scraper.FetchOptions) ([]model.Candidate, error) {
	return s.out, nil
}

type nullDownloader struct{}

func (nullDownloader) Download(ctx context.Context, url string) ([]byte, error) {
	return nil, nil
}

// directTransports bypasses the proxy so probes hit httptest servers.
type directTransports struct{}

func (directTransports) Transport(c model.Candidate) (http.RoundTripper, func(), error) {
	return http.DefaultTransport, func() {}, nil
}

type testEnv struct {
	handler  http.Handler
	proxies  *store.ProxyRepo
	webhooks *store.WebhookRepo
	registry *jobs.Registry
}

func newTestEnv(t *testing.T, sources ...scraper.Source) *testEnv {
	t.Helper()

	db, err := store.OpenDB(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := store.MigrateCatalogDB(db); err != nil {
		t.Fatalf("MigrateCatalogDB: %v", err)
	}
	proxies := store.NewProxyRepo(db)
	webhooks := store.NewWebhookRepo(db)

	if len(sources) == 0 {
		sources = []scraper.Source{&stubSource{id: "fake"}}
	}
	coord := scraper.NewCoordinator(sources, scraper.Config{
		CacheTTL:        time.Minute,
		RateLimitPerMin: 30,
	})
	coord.DownloaderFactory = func(time.Duration, int) netutil.Downloader { return nullDownloader{} }

	v := validator.New(directTransports{}, nil, nil)
	writer := &validator.ResultWriter{Proxies: proxies}
	registry := jobs.NewRegistry()
	runner := &jobs.Runner{
		Registry:    registry,
		Coordinator: coord,
		Validator:   v,
		Writer:      writer,
		Proxies:     proxies,
	}
	sched := scheduler.New(runner, registry, proxies, scheduler.Config{
		ValidateIntervalMin: 30,
		ScrapeIntervalMin:   60,
		ValidateBatchSize:   200,
		ScrapeQuantity:      200,
	}, validator.BatchOptions{})
	t.Cleanup(sched.Stop)

	cp := &service.ControlPlaneService{
		Proxies:     proxies,
		Webhooks:    webhooks,
		Coordinator: coord,
		Validator:   v,
		Writer:      writer,
		Registry:    registry,
		Runner:      runner,
		Scheduler:   sched,
		EnvCfg: &config.EnvConfig{
			ValidateConcurrency:  4,
			ValidateProbeTimeout: 2 * time.Second,
		},
	}

	srv := NewServer("127.0.0.1", 0, cp, 1<<20)
	return &testEnv{
		handler:  srv.Handler(),
		proxies:  proxies,
		webhooks: webhooks,
		registry: registry,
	}
}

func (e *testEnv) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func okServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv
}
