package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/trawlhq/trawl/internal/model"
	"github.com/trawlhq/trawl/internal/scraper"
	"github.com/trawlhq/trawl/internal/store"
	"github.com/trawlhq/trawl/internal/validator"
)

const exportPageSize = 100_000

// ScrapeParams are the inputs of a synchronous scrape.
type ScrapeParams struct {
	Quantity   int
	Country    string
	Protocols  []string
	Sources    []string
	TimeoutSec float64
	Retries    *int
}

// ScrapeOutcome is the synchronous scrape response payload.
type ScrapeOutcome struct {
	TotalFound      int
	Proxies         []model.ProxyRecord
	ExecutionTimeMs int64
}

// Scrape runs a scrape inline, persists every candidate, and returns the
// stored records.
func (s *ControlPlaneService) Scrape(ctx context.Context, p ScrapeParams) (*ScrapeOutcome, error) {
	if p.Quantity <= 0 {
		return nil, invalidArg("quantity must be positive")
	}
	protocols, verr := parseProtocols(p.Protocols)
	if verr != nil {
		return nil, verr
	}
	for _, src := range p.Sources {
		if !s.Coordinator.HasSource(src) {
			return nil, invalidArg(fmt.Sprintf("unknown source %q", src))
		}
	}
	if p.TimeoutSec < 0 {
		return nil, invalidArg("timeout must be non-negative")
	}
	if p.Retries != nil && *p.Retries < 0 {
		return nil, invalidArg("retries must be non-negative")
	}

	req := scraper.ScrapeRequest{
		Country:   p.Country,
		Protocols: protocols,
		Sources:   p.Sources,
		Quantity:  p.Quantity,
		Timeout:   time.Duration(p.TimeoutSec * float64(time.Second)),
		Retries:   -1,
	}
	if p.Retries != nil {
		req.Retries = *p.Retries
	}

	start := time.Now()
	candidates, err := s.Coordinator.Scrape(ctx, req)
	if err != nil {
		return nil, internal("scrape failed", err)
	}

	stored := make([]model.ProxyRecord, 0, len(candidates))
	for _, c := range candidates {
		var country, source *string
		if c.Country != "" {
			country = &c.Country
		}
		if c.Source != "" {
			source = &c.Source
		}
		rec, err := s.Proxies.Upsert(c.IP, c.Port, c.Protocol, country, source)
		if err != nil {
			return nil, internal("persist scraped proxy", err)
		}
		stored = append(stored, rec)
	}

	return &ScrapeOutcome{
		TotalFound:      len(candidates),
		Proxies:         stored,
		ExecutionTimeMs: time.Since(start).Milliseconds(),
	}, nil
}

// ValidateParams are the inputs of a synchronous validation.
type ValidateParams struct {
	Lines            []string
	TestURLs         []string
	TimeoutSec       float64
	CheckAnonymity   bool
	CheckGeolocation bool
	ConcurrentTests  int
	TestAllURLs      bool
}

// ValidateOutcome is the synchronous validation response payload.
type ValidateOutcome struct {
	TotalTested     int
	ValidProxies    int
	InvalidProxies  int
	Results         []model.ValidationResult
	ExecutionTimeMs int64
}

// Validate probes the supplied proxy lines inline and persists the
// outcomes. Unparseable lines are silently dropped.
func (s *ControlPlaneService) Validate(ctx context.Context, p ValidateParams) (*ValidateOutcome, error) {
	if len(p.Lines) == 0 {
		return nil, invalidArg("proxies must not be empty")
	}
	if p.TimeoutSec < 0 {
		return nil, invalidArg("timeout must be non-negative")
	}
	if p.ConcurrentTests < 0 {
		return nil, invalidArg("concurrent_tests must be non-negative")
	}

	candidates, _ := validator.ParseLines(p.Lines)

	opts := s.batchOptions(p.TestURLs, p.TimeoutSec, p.TestAllURLs, p.CheckAnonymity, p.CheckGeolocation, p.ConcurrentTests)
	start := time.Now()
	results, summary := s.Validator.ValidateBatch(ctx, candidates, opts, nil)
	for i, res := range results {
		// A storage failure skips that record only.
		if err := s.Writer.Write(candidates[i], res); err != nil {
			log.Printf("[service] persist validation for %s: %v", candidates[i].Addr(), err)
		}
	}

	return &ValidateOutcome{
		TotalTested:     summary.TotalTested,
		ValidProxies:    summary.Valid,
		InvalidProxies:  summary.Invalid,
		Results:         results,
		ExecutionTimeMs: time.Since(start).Milliseconds(),
	}, nil
}

func (s *ControlPlaneService) batchOptions(testURLs []string, timeoutSec float64, testAll, anonymity, geo bool, concurrency int) validator.BatchOptions {
	timeout := s.EnvCfg.ValidateProbeTimeout
	if timeoutSec > 0 {
		timeout = time.Duration(timeoutSec * float64(time.Second))
	}
	if concurrency <= 0 {
		concurrency = s.EnvCfg.ValidateConcurrency
	}
	return validator.BatchOptions{
		Options: validator.Options{
			TestURLs:         testURLs,
			Timeout:          timeout,
			TestAllURLs:      testAll,
			CheckAnonymity:   anonymity,
			CheckGeolocation: geo,
		},
		Concurrency: concurrency,
	}
}

// ListParams mirror the /proxies query parameters.
type ListParams struct {
	Page      int
	PerPage   int
	ValidOnly bool
	Country   string
	Protocol  string
	Anonymity string
	OrderBy   string
	Order     string
}

// ListOutcome is one page of catalog records.
type ListOutcome struct {
	Total   int
	Page    int
	PerPage int
	Proxies []model.ProxyRecord
}

// List returns one catalog page. Unrecognized order_by values fall back
// to the store default ordering.
func (s *ControlPlaneService) List(p ListParams) (*ListOutcome, error) {
	filter, verr := buildFilter(p.ValidOnly, p.Country, p.Protocol, p.Anonymity)
	if verr != nil {
		return nil, verr
	}
	if p.Order != "" && !strings.EqualFold(p.Order, "asc") && !strings.EqualFold(p.Order, "desc") {
		return nil, invalidArg("order must be asc or desc")
	}
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PerPage < 1 {
		p.PerPage = 50
	}

	rows, total, err := s.Proxies.List(filter, p.Page, p.PerPage, p.OrderBy, p.Order)
	if err != nil {
		return nil, internal("list proxies", err)
	}
	return &ListOutcome{Total: total, Page: p.Page, PerPage: p.PerPage, Proxies: rows}, nil
}

// Export returns every record matching the filter, in the requested order.
func (s *ControlPlaneService) Export(p ListParams) ([]model.ProxyRecord, error) {
	filter, verr := buildFilter(p.ValidOnly, p.Country, p.Protocol, p.Anonymity)
	if verr != nil {
		return nil, verr
	}
	rows, _, err := s.Proxies.List(filter, 1, exportPageSize, p.OrderBy, p.Order)
	if err != nil {
		return nil, internal("export proxies", err)
	}
	return rows, nil
}

// RandomParams mirror the /proxies/random query parameters.
type RandomParams struct {
	Protocol          string
	Country           string
	Anonymity         string
	MaxResponseTimeMs *float64
}

// Random picks a uniformly random valid proxy matching the filters.
func (s *ControlPlaneService) Random(p RandomParams) (model.ProxyRecord, error) {
	if p.Protocol != "" && !model.Protocol(p.Protocol).IsValid() {
		return model.ProxyRecord{}, invalidArg(fmt.Sprintf("unknown protocol %q", p.Protocol))
	}
	if verr := checkAnonymity(p.Anonymity); verr != nil {
		return model.ProxyRecord{}, verr
	}
	if p.MaxResponseTimeMs != nil && *p.MaxResponseTimeMs <= 0 {
		return model.ProxyRecord{}, invalidArg("max_response_time must be positive")
	}

	rec, err := s.Proxies.PickRandom(store.RandomFilter{
		Protocol:          model.Protocol(p.Protocol),
		Country:           p.Country,
		Anonymity:         p.Anonymity,
		MaxResponseTimeMs: p.MaxResponseTimeMs,
	})
	if errors.Is(err, sql.ErrNoRows) {
		return model.ProxyRecord{}, notFound("no proxy matches the given filters")
	}
	if err != nil {
		return model.ProxyRecord{}, internal("pick random proxy", err)
	}
	return rec, nil
}

// Stats returns the catalog aggregate snapshot.
func (s *ControlPlaneService) Stats() (store.Stats, error) {
	stats, err := s.Proxies.Stats()
	if err != nil {
		return store.Stats{}, internal("compute stats", err)
	}
	return stats, nil
}

// GetProxy returns one record by id.
func (s *ControlPlaneService) GetProxy(id string) (model.ProxyRecord, error) {
	rec, err := s.Proxies.Get(id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ProxyRecord{}, notFound("proxy not found")
	}
	if err != nil {
		return model.ProxyRecord{}, internal("get proxy", err)
	}
	return rec, nil
}

// PatchProxy updates country and/or anonymity of one record.
func (s *ControlPlaneService) PatchProxy(id string, country, anonymity *string) (model.ProxyRecord, error) {
	if country == nil && anonymity == nil {
		return model.ProxyRecord{}, invalidArg("nothing to update: provide country and/or anonymity")
	}
	if country != nil {
		c := strings.ToUpper(strings.TrimSpace(*country))
		if len(c) != 2 {
			return model.ProxyRecord{}, invalidArg("country must be a 2-letter ISO code")
		}
		country = &c
	}
	if anonymity != nil {
		if verr := checkAnonymity(*anonymity); verr != nil {
			return model.ProxyRecord{}, verr
		}
	}

	rec, err := s.Proxies.UpdateMeta(id, country, anonymity)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ProxyRecord{}, notFound("proxy not found")
	}
	if err != nil {
		return model.ProxyRecord{}, internal("update proxy", err)
	}
	return rec, nil
}

// DeleteProxies removes records, optionally only the invalid ones.
func (s *ControlPlaneService) DeleteProxies(invalidOnly bool) (int64, error) {
	n, err := s.Proxies.Delete(invalidOnly)
	if err != nil {
		return 0, internal("delete proxies", err)
	}
	return n, nil
}

// ImportParams are the /proxies/import inputs.
type ImportParams struct {
	Lines          []string
	AutoValidate   bool
	ValidationURLs []string
}

// ImportOutcome reports import counters and, when validation was
// scheduled, the job to poll.
type ImportOutcome struct {
	Imported          int
	Duplicates        int
	ValidationStarted bool
	JobID             string
}

// Import parses and upserts proxy lines. Every parseable line counts as
// imported, whether or not the row already existed; unparseable lines
// count under duplicates.
func (s *ControlPlaneService) Import(p ImportParams) (*ImportOutcome, error) {
	if len(p.Lines) == 0 {
		return nil, invalidArg("proxies must not be empty")
	}

	candidates, parseErrs := validator.ParseLines(p.Lines)
	out := &ImportOutcome{Duplicates: len(parseErrs)}
	for _, c := range candidates {
		var country, source *string
		if c.Country != "" {
			country = &c.Country
		}
		if c.Source != "" {
			source = &c.Source
		}
		if _, err := s.Proxies.Upsert(c.IP, c.Port, c.Protocol, country, source); err != nil {
			return nil, internal("import proxy", err)
		}
		out.Imported++
	}

	if p.AutoValidate && len(p.ValidationURLs) > 0 && len(candidates) > 0 {
		opts := s.batchOptions(p.ValidationURLs, 0, false, false, false, 0)
		job := s.Runner.StartValidate(candidates, opts)
		out.ValidationStarted = true
		out.JobID = job.ID()
	}
	return out, nil
}

func parseProtocols(raw []string) ([]model.Protocol, *ServiceError) {
	protocols := make([]model.Protocol, 0, len(raw))
	for _, p := range raw {
		proto := model.Protocol(strings.ToLower(strings.TrimSpace(p)))
		if !proto.IsValid() {
			return nil, invalidArg(fmt.Sprintf("unknown protocol %q", p))
		}
		protocols = append(protocols, proto)
	}
	return protocols, nil
}

func buildFilter(validOnly bool, country, protocol, anonymity string) (store.ListFilter, *ServiceError) {
	if protocol != "" && !model.Protocol(protocol).IsValid() {
		return store.ListFilter{}, invalidArg(fmt.Sprintf("unknown protocol %q", protocol))
	}
	if verr := checkAnonymity(anonymity); verr != nil {
		return store.ListFilter{}, verr
	}
	return store.ListFilter{
		ValidOnly: validOnly,
		Country:   country,
		Protocol:  model.Protocol(protocol),
		Anonymity: anonymity,
	}, nil
}

func checkAnonymity(a string) *ServiceError {
	if a != "" && !model.Anonymity(a).IsValid() {
		return invalidArg(fmt.Sprintf("unknown anonymity %q", a))
	}
	return nil
}
