package jobs

import (
	"context"
	"log"

	"github.com/trawlhq/trawl/internal/model"
	"github.com/trawlhq/trawl/internal/scraper"
	"github.com/trawlhq/trawl/internal/store"
	"github.com/trawlhq/trawl/internal/validator"
)

// Event names emitted when jobs finish.
const (
	EventProxiesScraped   = "proxies_scraped"
	EventProxiesValidated = "proxies_validated"
)

// Notifier fans a named event out to subscribers. Called from the job
// worker after the job reaches a terminal state.
type Notifier interface {
	Notify(event string, payload map[string]any)
}

// Runner executes scrape and validate jobs off the caller's goroutine.
type Runner struct {
	Registry    *Registry
	Coordinator *scraper.Coordinator
	Validator   *validator.Validator
	Writer      *validator.ResultWriter
	Proxies     *store.ProxyRepo
	Notifier    Notifier // optional
}

// StartScrape creates a scrape job and runs it in the background.
// Jobs are not cancellable, so the worker runs on its own context.
func (r *Runner) StartScrape(req scraper.ScrapeRequest) *Job {
	job := r.Registry.Create(KindScrape)
	go r.runScrape(context.Background(), job, req)
	return job
}

func (r *Runner) runScrape(ctx context.Context, job *Job, req scraper.ScrapeRequest) {
	candidates, err := r.Coordinator.Scrape(ctx, req)
	if err != nil {
		log.Printf("[jobs] scrape job %s failed: %v", job.ID(), err)
		job.Fail(err.Error())
		return
	}
	job.SetProgress(0.5)

	saved := 0
	bySource := map[string]int{}
	for i, c := range candidates {
		var country, source *string
		if c.Country != "" {
			country = &c.Country
		}
		if c.Source != "" {
			source = &c.Source
		}
		if _, err := r.Proxies.Upsert(c.IP, c.Port, c.Protocol, country, source); err != nil {
			log.Printf("[jobs] scrape job %s: persist %s: %v", job.ID(), c.Addr(), err)
		} else {
			saved++
			key := c.Source
			if key == "" {
				key = "unknown"
			}
			bySource[key]++
		}
		if len(candidates) > 0 {
			job.SetProgress(0.5 + 0.5*float64(i+1)/float64(len(candidates)))
		}
	}

	result := map[string]any{
		"total_found": len(candidates),
		"saved":       saved,
		"by_source":   bySource,
	}
	job.Complete(result)
	if r.Notifier != nil {
		r.Notifier.Notify(EventProxiesScraped, map[string]any{
			"job_id":      job.ID(),
			"total_found": len(candidates),
			"saved":       saved,
			"by_source":   bySource,
		})
	}
}

// StartValidate creates a validate job over the given candidates and
// runs it in the background.
func (r *Runner) StartValidate(candidates []model.Candidate, opts validator.BatchOptions) *Job {
	job := r.Registry.Create(KindValidate)
	go r.runValidate(context.Background(), job, candidates, opts)
	return job
}

func (r *Runner) runValidate(ctx context.Context, job *Job, candidates []model.Candidate, opts validator.BatchOptions) {
	results, summary := r.Validator.ValidateBatch(ctx, candidates, opts, func(done, total int) {
		job.SetProgress(float64(done) / float64(total))
	})

	// Persist outcomes; a failed write skips that record only.
	for i, res := range results {
		if err := r.Writer.Write(candidates[i], res); err != nil {
			log.Printf("[jobs] validate job %s: %v", job.ID(), err)
		}
	}

	result := map[string]any{
		"total_tested": summary.TotalTested,
		"valid":        summary.Valid,
		"invalid":      summary.Invalid,
	}
	if summary.AvgResponseTimeMsValid != nil {
		result["avg_response_time_ms_valid"] = *summary.AvgResponseTimeMsValid
	}
	job.Complete(result)
	if r.Notifier != nil {
		r.Notifier.Notify(EventProxiesValidated, map[string]any{
			"job_id":       job.ID(),
			"total_tested": summary.TotalTested,
			"valid":        summary.Valid,
			"invalid":      summary.Invalid,
		})
	}
}
