// Package jobs tracks asynchronous work items for the control plane.
package jobs

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v4"
)

// Kind is the class of work a job performs.
type Kind string

const (
	KindScrape   Kind = "scrape"
	KindValidate Kind = "validate"
	KindGenerate Kind = "generate"
)

// Status is a job's lifecycle state.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Job is a mutable work record. It is owned by exactly one worker; the
// registry hands out read-only snapshots to everyone else.
type Job struct {
	id        string
	kind      Kind
	createdAt time.Time
	now       func() time.Time

	mu              sync.Mutex
	status          Status
	progress        float64 // fraction in [0,1]
	durationSeconds *float64
	result          map[string]any
	err             *string
}

func (j *Job) ID() string { return j.id }

// SetProgress advances the progress fraction. Progress never decreases
// and is clamped to [0,1].
func (j *Job) SetProgress(p float64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if p > 1 {
		p = 1
	}
	if p > j.progress {
		j.progress = p
	}
}

// Complete marks the job finished with the given result payload.
func (j *Job) Complete(result map[string]any) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status != StatusProcessing {
		return
	}
	j.status = StatusCompleted
	j.progress = 1
	j.result = result
	d := j.now().Sub(j.createdAt).Seconds()
	j.durationSeconds = &d
}

// Fail marks the job failed with an error message.
func (j *Job) Fail(msg string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status != StatusProcessing {
		return
	}
	j.status = StatusFailed
	j.err = &msg
	d := j.now().Sub(j.createdAt).Seconds()
	j.durationSeconds = &d
}

// Snapshot is a point-in-time view of a job.
type Snapshot struct {
	JobID           string         `json:"job_id"`
	Kind            Kind           `json:"type"`
	Status          Status         `json:"status"`
	Progress        float64        `json:"progress"`
	CreatedAt       time.Time      `json:"created_at"`
	ETASeconds      *float64       `json:"eta_seconds,omitempty"`
	DurationSeconds *float64       `json:"duration_seconds,omitempty"`
	Result          map[string]any `json:"result,omitempty"`
	Error           *string        `json:"error,omitempty"`
}

func (j *Job) snapshot() Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()

	s := Snapshot{
		JobID:           j.id,
		Kind:            j.kind,
		Status:          j.status,
		Progress:        j.progress,
		CreatedAt:       j.createdAt,
		DurationSeconds: j.durationSeconds,
		Result:          j.result,
		Error:           j.err,
	}
	if j.status == StatusProcessing && j.progress > 0 && j.progress < 1 {
		elapsed := j.now().Sub(j.createdAt).Seconds()
		eta := elapsed / j.progress * (1 - j.progress)
		s.ETASeconds = &eta
	}
	return s
}

// Registry is an in-memory job map. Records live for the process lifetime.
type Registry struct {
	jobs *xsync.Map[string, *Job]
	now  func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		jobs: xsync.NewMap[string, *Job](),
		now:  time.Now,
	}
}

// Create registers a new processing job and returns it for the worker
// to own.
func (r *Registry) Create(kind Kind) *Job {
	j := &Job{
		id:        uuid.NewString(),
		kind:      kind,
		createdAt: r.now(),
		now:       r.now,
		status:    StatusProcessing,
	}
	r.jobs.Store(j.id, j)
	return j
}

// Get returns a snapshot of the job with the given id.
func (r *Registry) Get(id string) (Snapshot, bool) {
	j, ok := r.jobs.Load(id)
	if !ok {
		return Snapshot{}, false
	}
	return j.snapshot(), true
}
