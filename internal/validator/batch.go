package validator

import (
	"context"
	"fmt"
	"sync"

	"github.com/trawlhq/trawl/internal/model"
	"github.com/trawlhq/trawl/internal/store"
)

// BatchOptions extends Options with fan-out control.
type BatchOptions struct {
	Options
	Concurrency int
}

// BatchSummary aggregates a batch run.
type BatchSummary struct {
	TotalTested            int
	Valid                  int
	Invalid                int
	AvgResponseTimeMsValid *int64 // mean over valid results, nil when none
}

// ValidateBatch validates candidates with bounded concurrency, preserving
// input order in the returned slice. progress is invoked after each
// candidate finishes; it may be nil.
func (v *Validator) ValidateBatch(ctx context.Context, candidates []model.Candidate, opts BatchOptions, progress func(done, total int)) ([]model.ValidationResult, BatchSummary) {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 20
	}

	results := make([]model.ValidationResult, len(candidates))
	sem := make(chan struct{}, concurrency)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		done int
	)
	for i, c := range candidates {
		wg.Add(1)
		go func(i int, c model.Candidate) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			results[i] = v.Validate(ctx, c, opts.Options)

			mu.Lock()
			done++
			n := done
			mu.Unlock()
			if progress != nil {
				progress(n, len(candidates))
			}
		}(i, c)
	}
	wg.Wait()

	summary := BatchSummary{TotalTested: len(results)}
	var totalMs, validWithAvg int64
	for _, res := range results {
		if res.Valid {
			summary.Valid++
			if res.AvgResponseTimeMs != nil {
				totalMs += *res.AvgResponseTimeMs
				validWithAvg++
			}
		} else {
			summary.Invalid++
		}
	}
	if validWithAvg > 0 {
		avg := totalMs / validWithAvg
		summary.AvgResponseTimeMsValid = &avg
	}
	return results, summary
}

// ResultWriter persists validation outcomes into the proxy catalog.
type ResultWriter struct {
	Proxies *store.ProxyRepo
}

// Write upserts the candidate's catalog row and records the validation
// outcome on it. A resolved country overrides the stored one.
func (w *ResultWriter) Write(c model.Candidate, res model.ValidationResult) error {
	var country, source *string
	if c.Country != "" {
		country = &c.Country
	}
	if res.Country != nil {
		country = res.Country
	}
	if c.Source != "" {
		source = &c.Source
	}

	rec, err := w.Proxies.Upsert(c.IP, c.Port, c.Protocol, country, source)
	if err != nil {
		return fmt.Errorf("upsert %s: %w", c.Addr(), err)
	}

	var avgMs *float64
	if res.AvgResponseTimeMs != nil {
		f := float64(*res.AvgResponseTimeMs)
		avgMs = &f
	}
	if err := w.Proxies.SetValidation(rec.ID, res.Valid, res.Anonymity, avgMs); err != nil {
		return fmt.Errorf("record validation for %s: %w", c.Addr(), err)
	}
	return nil
}
