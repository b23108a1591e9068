package scraper

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/maypok86/otter"
	"github.com/zeebo/xxh3"

	"github.com/trawlhq/trawl/internal/model"
)

// maxCachedPerKey bounds how many candidates one cache entry may hold.
const maxCachedPerKey = 1000

// resultCache memoizes per-source scrape results for a short TTL so repeated
// scrapes within the window do not hit upstreams again.
type resultCache struct {
	cache otter.Cache[uint64, []model.Candidate]
}

func newResultCache(maxKeys int, ttl time.Duration) *resultCache {
	cache, err := otter.MustBuilder[uint64, []model.Candidate](maxKeys).
		Cost(func(_ uint64, _ []model.Candidate) uint32 { return 1 }).
		WithTTL(ttl).
		Build()
	if err != nil {
		panic("scraper: failed to create result cache: " + err.Error())
	}
	return &resultCache{cache: cache}
}

// cacheKey hashes (source, country, sorted protocols) into one cache slot.
func cacheKey(sourceID, country string, protocols []model.Protocol) uint64 {
	sorted := make([]string, 0, len(protocols))
	for _, p := range protocols {
		sorted = append(sorted, string(p))
	}
	slices.Sort(sorted)
	return xxh3.HashString(fmt.Sprintf("%s|%s|%s", sourceID, strings.ToUpper(country), strings.Join(sorted, ",")))
}

func (c *resultCache) get(key uint64) ([]model.Candidate, bool) {
	return c.cache.Get(key)
}

func (c *resultCache) set(key uint64, candidates []model.Candidate) {
	if len(candidates) > maxCachedPerKey {
		candidates = candidates[:maxCachedPerKey]
	}
	c.cache.Set(key, slices.Clone(candidates))
}
