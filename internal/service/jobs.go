package service

import (
	"fmt"

	"github.com/trawlhq/trawl/internal/jobs"
	"github.com/trawlhq/trawl/internal/scheduler"
	"github.com/trawlhq/trawl/internal/scraper"
	"github.com/trawlhq/trawl/internal/validator"
)

// ScheduleParams describe an asynchronous job submission. The fields
// mirror the synchronous endpoints of the respective type.
type ScheduleParams struct {
	Type string

	// scrape
	Quantity  int
	Country   string
	Protocols []string
	Sources   []string

	// validate
	Lines            []string
	TestURLs         []string
	TimeoutSec       float64
	CheckAnonymity   bool
	CheckGeolocation bool
	ConcurrentTests  int
	TestAllURLs      bool
}

// ScheduledJob is the immediate response to a job submission.
type ScheduledJob struct {
	JobID      string
	Status     jobs.Status
	PollingURL string
}

// ScheduleJob submits a scrape or validate job and returns its handle.
func (s *ControlPlaneService) ScheduleJob(p ScheduleParams) (*ScheduledJob, error) {
	var job *jobs.Job
	switch p.Type {
	case "scrape":
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
		job = s.Runner.StartScrape(scraper.ScrapeRequest{
			Country:   p.Country,
			Protocols: protocols,
			Sources:   p.Sources,
			Quantity:  p.Quantity,
			Retries:   -1,
		})

	case "validate":
		if len(p.Lines) == 0 {
			return nil, invalidArg("proxies must not be empty")
		}
		candidates, _ := validator.ParseLines(p.Lines)
		opts := s.batchOptions(p.TestURLs, p.TimeoutSec, p.TestAllURLs, p.CheckAnonymity, p.CheckGeolocation, p.ConcurrentTests)
		job = s.Runner.StartValidate(candidates, opts)

	default:
		return nil, invalidArg(fmt.Sprintf("unknown job type %q (allowed: scrape, validate)", p.Type))
	}

	return &ScheduledJob{
		JobID:      job.ID(),
		Status:     jobs.StatusProcessing,
		PollingURL: "/jobs/" + job.ID(),
	}, nil
}

// GetJob returns the current snapshot of a job.
func (s *ControlPlaneService) GetJob(id string) (jobs.Snapshot, error) {
	snap, ok := s.Registry.Get(id)
	if !ok {
		return jobs.Snapshot{}, notFound("job not found")
	}
	return snap, nil
}

// SchedulerStatus returns the scheduler snapshot with derived metrics.
func (s *ControlPlaneService) SchedulerStatus() scheduler.StatusSnapshot {
	return s.Scheduler.Status()
}

// SchedulerUpdate applies a partial config change and starts or pauses
// the loop accordingly.
func (s *ControlPlaneService) SchedulerUpdate(u scheduler.ConfigUpdate) (scheduler.Config, error) {
	if u.Enabled == nil && u.ValidateIntervalMin == nil && u.ScrapeIntervalMin == nil &&
		u.ValidateBatchSize == nil && u.ScrapeQuantity == nil {
		return scheduler.Config{}, invalidArg("empty update")
	}
	return s.Scheduler.UpdateConfig(u), nil
}
