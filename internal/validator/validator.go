package validator

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/trawlhq/trawl/internal/model"
)

const defaultProbeTimeout = 10 * time.Second

// Options controls a single validation pass.
type Options struct {
	TestURLs         []string
	Timeout          time.Duration
	TestAllURLs      bool // all URLs must succeed instead of any
	CheckAnonymity   bool
	CheckGeolocation bool
}

// DefaultTestURLs are probed when the caller supplies none.
var DefaultTestURLs = []string{
	"http://httpbin.org/ip",
	"https://www.google.com",
}

// Validator probes candidate proxies through per-candidate transports.
type Validator struct {
	Transports TransportFactory
	Anonymity  *AnonymityChecker
	Geo        *GeoResolver
	UserAgent  string
}

func New(transports TransportFactory, anonymity *AnonymityChecker, geo *GeoResolver) *Validator {
	return &Validator{
		Transports: transports,
		Anonymity:  anonymity,
		Geo:        geo,
		UserAgent:  "trawl/1.0",
	}
}

// Validate probes the candidate against every test URL concurrently and
// aggregates the outcomes. A transport build failure marks the candidate
// invalid but still returns a structured result rather than an error.
func (v *Validator) Validate(ctx context.Context, c model.Candidate, opts Options) model.ValidationResult {
	result := model.ValidationResult{
		Proxy:       c.Addr(),
		Protocol:    c.Protocol,
		TestResults: make(map[string]model.URLTestOutcome),
	}

	urls := opts.TestURLs
	if len(urls) == 0 {
		urls = DefaultTestURLs
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}

	rt, release, err := v.Transports.Transport(c)
	if err != nil {
		msg := err.Error()
		result.Error = &msg
		for _, u := range urls {
			result.TestResults[u] = model.URLTestOutcome{}
		}
		v.resolveCountry(ctx, c, opts, &result)
		return result
	}
	defer release()

	client := &http.Client{Transport: rt, Timeout: timeout}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, u := range urls {
		wg.Add(1)
		go func(url string) {
			defer wg.Done()
			outcome := v.probeURL(ctx, client, url)
			mu.Lock()
			result.TestResults[url] = outcome
			mu.Unlock()
		}(u)
	}
	wg.Wait()

	// The average covers every timed probe, including failed ones.
	succeeded, timed := 0, 0
	var totalMs int64
	for _, outcome := range result.TestResults {
		if outcome.Success {
			succeeded++
		}
		if outcome.ResponseTimeMs != nil {
			timed++
			totalMs += *outcome.ResponseTimeMs
		}
	}
	if opts.TestAllURLs {
		result.Valid = succeeded == len(urls)
	} else {
		result.Valid = succeeded > 0
	}
	if timed > 0 {
		avg := totalMs / int64(timed)
		result.AvgResponseTimeMs = &avg
	}

	// Anonymity goes through the proxy, so for a dead candidate the check
	// simply errors out and leaves the field unset.
	if opts.CheckAnonymity && v.Anonymity != nil {
		if level, err := v.Anonymity.Check(ctx, client); err == nil {
			s := string(level)
			result.Anonymity = &s
		}
	}
	v.resolveCountry(ctx, c, opts, &result)
	return result
}

// resolveCountry queries the provider chain by candidate IP. The lookup
// does not go through the proxy, so it runs whether or not the candidate
// probed valid.
func (v *Validator) resolveCountry(ctx context.Context, c model.Candidate, opts Options, result *model.ValidationResult) {
	if !opts.CheckGeolocation || v.Geo == nil {
		return
	}
	if country, err := v.Geo.Country(ctx, c.IP); err == nil && country != "" {
		result.Country = &country
	}
}

// probeURL issues a single GET through the proxy. Only a 200 counts as a
// success; the elapsed time is recorded even for failed probes so the
// caller can see how long the attempt took.
func (v *Validator) probeURL(ctx context.Context, client *http.Client, url string) model.URLTestOutcome {
	var outcome model.URLTestOutcome

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return outcome
	}
	if v.UserAgent != "" {
		req.Header.Set("User-Agent", v.UserAgent)
	}

	start := time.Now()
	resp, err := client.Do(req)
	elapsed := time.Since(start).Milliseconds()
	outcome.ResponseTimeMs = &elapsed
	if err != nil {
		return outcome
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	outcome.StatusCode = &resp.StatusCode
	outcome.Success = resp.StatusCode == http.StatusOK
	return outcome
}

// ParseLines parses one proxy per line, collecting parse failures by line
// number. Blank lines are skipped.
func ParseLines(lines []string) ([]model.Candidate, []error) {
	var (
		candidates []model.Candidate
		errs       []error
	)
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		c, err := model.ParseProxyLine(line)
		if err != nil {
			errs = append(errs, fmt.Errorf("line %d: %w", i+1, err))
			continue
		}
		candidates = append(candidates, c)
	}
	return candidates, errs
}
