package scraper

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/zeebo/xxh3"

	"github.com/trawlhq/trawl/internal/model"
	"github.com/trawlhq/trawl/internal/netutil"
)

// Config tunes the coordinator's caching and upstream pacing.
type Config struct {
	CacheTTL        time.Duration
	CacheMaxKeys    int
	RateLimitPerMin int
	DefaultTimeout  time.Duration
	DefaultRetries  int
	UserAgent       string
}

// ScrapeRequest describes one coordinated scrape.
type ScrapeRequest struct {
	Country   string
	Protocols []model.Protocol
	Sources   []string // empty means all known sources
	Quantity  int
	Timeout   time.Duration // zero means Config.DefaultTimeout
	Retries   int           // negative means Config.DefaultRetries
}

// Coordinator fans a scrape out to the selected source adapters with a
// short-TTL result cache and per-source rate caps.
type Coordinator struct {
	cfg     Config
	sources []Source
	byID    map[string]Source
	order   []string
	cache   *resultCache
	limiter *rateLimiter

	// DownloaderFactory is swappable for tests. The default builds a direct
	// downloader wrapped with backoff retries.
	DownloaderFactory func(timeout time.Duration, retries int) netutil.Downloader
}

// NewCoordinator creates a Coordinator over the given adapter set.
func NewCoordinator(sources []Source, cfg Config) *Coordinator {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 120 * time.Second
	}
	if cfg.CacheMaxKeys <= 0 {
		cfg.CacheMaxKeys = 256
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 10 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "trawl/1.0"
	}

	c := &Coordinator{
		cfg:     cfg,
		sources: sources,
		byID:    make(map[string]Source, len(sources)),
		cache:   newResultCache(cfg.CacheMaxKeys, cfg.CacheTTL),
		limiter: newRateLimiter(cfg.RateLimitPerMin),
	}
	for _, s := range sources {
		c.byID[s.ID()] = s
		c.order = append(c.order, s.ID())
	}
	c.DownloaderFactory = func(timeout time.Duration, retries int) netutil.Downloader {
		direct := netutil.NewDirectDownloader(
			func() time.Duration { return timeout },
			func() string { return cfg.UserAgent },
		)
		return netutil.NewRetryDownloader(direct, retries)
	}
	return c
}

// SourceIDs returns the known adapter ids in dispatch order.
func (c *Coordinator) SourceIDs() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// HasSource reports whether id names a known adapter.
func (c *Coordinator) HasSource(id string) bool {
	_, ok := c.byID[id]
	return ok
}

// Scrape runs the pipeline: cache lookup, rate-limit gate, parallel adapter
// dispatch, cache fill, order-stable dedup, truncation to Quantity.
func (c *Coordinator) Scrape(ctx context.Context, req ScrapeRequest) ([]model.Candidate, error) {
	ids := req.Sources
	if len(ids) == 0 {
		ids = c.order
	}
	for _, id := range ids {
		if _, ok := c.byID[id]; !ok {
			return nil, fmt.Errorf("unknown source %q", id)
		}
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.cfg.DefaultTimeout
	}
	retries := req.Retries
	if retries < 0 {
		retries = c.cfg.DefaultRetries
	}
	opts := FetchOptions{Country: req.Country, Protocols: req.Protocols, Quantity: req.Quantity}

	// Phase 1: serve what we can from cache, collect the rest for dispatch.
	results := make(map[string][]model.Candidate, len(ids))
	var dispatch []string
	for _, id := range ids {
		key := cacheKey(id, req.Country, req.Protocols)
		if cached, ok := c.cache.get(key); ok {
			results[id] = cached
			continue
		}
		if !c.limiter.allow(id) {
			log.Printf("[scraper] source %s over rate limit, skipping this cycle", id)
			continue
		}
		dispatch = append(dispatch, id)
	}

	// Phase 2: parallel dispatch. Adapter failures contribute empty results.
	if len(dispatch) > 0 {
		dl := c.DownloaderFactory(timeout, retries)
		var mu sync.Mutex
		var wg sync.WaitGroup
		for _, id := range dispatch {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				found, err := c.byID[id].Fetch(ctx, dl, opts)
				if err != nil {
					log.Printf("[scraper] source %s failed: %v", id, err)
					return
				}
				c.cache.set(cacheKey(id, req.Country, req.Protocols), found)
				mu.Lock()
				results[id] = found
				mu.Unlock()
			}(id)
		}
		wg.Wait()
	}

	// Phase 3: concatenate in iteration order, dedup by identity, truncate.
	seen := make(map[uint64]struct{})
	var out []model.Candidate
	for _, id := range ids {
		for _, cand := range results[id] {
			if req.Quantity > 0 && len(out) >= req.Quantity {
				return out, nil
			}
			key := identityHash(cand)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, cand)
		}
	}
	return out, nil
}

// identityHash collapses (ip, port, protocol) into the dedup key.
func identityHash(c model.Candidate) uint64 {
	return xxh3.HashString(fmt.Sprintf("%s:%d/%s", c.IP, c.Port, c.Protocol))
}
