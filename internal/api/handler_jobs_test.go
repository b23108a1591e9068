package api

import (
	"net/http"
	"testing"
	"time"

	"github.com/trawlhq/trawl/internal/model"
)

type jobView struct {
	JobID           string         `json:"job_id"`
	Type            string         `json:"type"`
	Status          string         `json:"status"`
	Progress        float64        `json:"progress"`
	ETASeconds      *float64       `json:"eta_seconds"`
	DurationSeconds *float64       `json:"duration_seconds"`
	Result          map[string]any `json:"result"`
	Error           *string        `json:"error"`
}

// pollJob polls GET /jobs/{id} until the job leaves processing.
func pollJob(t *testing.T, env *testEnv, id string) jobView {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		rec := env.do(t, http.MethodGet, "/jobs/"+id, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("poll status = %d: %s", rec.Code, rec.Body.String())
		}
		view := decode[jobView](t, rec)
		if view.Status != "processing" {
			return view
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("job did not finish in time")
	return jobView{}
}

func TestScheduleScrapeAndPoll(t *testing.T) {
	env := newTestEnv(t, &stubSource{id: "fake", out: []model.Candidate{
		{IP: "7.7.7.7", Port: 8080, Protocol: model.ProtocolHTTP, Source: "fake"},
	}})

	rec := env.do(t, http.MethodPost, "/proxies/schedule", map[string]any{
		"type": "scrape", "quantity": 10,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("schedule status = %d: %s", rec.Code, rec.Body.String())
	}
	sched := decode[struct {
		JobID      string `json:"job_id"`
		Status     string `json:"status"`
		PollingURL string `json:"polling_url"`
	}](t, rec)
	if sched.JobID == "" || sched.Status != "processing" {
		t.Fatalf("schedule response = %+v", sched)
	}
	if sched.PollingURL != "/jobs/"+sched.JobID {
		t.Fatalf("polling_url = %q", sched.PollingURL)
	}

	view := pollJob(t, env, sched.JobID)
	if view.Status != "completed" {
		t.Fatalf("status = %q, error = %v", view.Status, view.Error)
	}
	if view.Progress != 1 {
		t.Fatalf("progress = %v, want 1", view.Progress)
	}
	if view.DurationSeconds == nil {
		t.Fatal("duration_seconds missing on completed job")
	}
	if view.ETASeconds != nil {
		t.Fatal("eta_seconds must be absent once terminal")
	}
	if view.Result["total_found"].(float64) != 1 || view.Result["saved"].(float64) != 1 {
		t.Fatalf("result = %v", view.Result)
	}

	if _, err := env.proxies.FindByIdentity("7.7.7.7", 8080, model.ProtocolHTTP); err != nil {
		t.Fatalf("scraped row not stored: %v", err)
	}
}

func TestScheduleValidateAndPoll(t *testing.T) {
	env := newTestEnv(t)
	ok := okServer(t)

	rec := env.do(t, http.MethodPost, "/proxies/schedule", map[string]any{
		"type":      "validate",
		"proxies":   []string{"8.8.8.8:3128"},
		"test_urls": []string{ok.URL},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("schedule status = %d: %s", rec.Code, rec.Body.String())
	}
	sched := decode[struct {
		JobID string `json:"job_id"`
	}](t, rec)

	view := pollJob(t, env, sched.JobID)
	if view.Status != "completed" {
		t.Fatalf("status = %q, error = %v", view.Status, view.Error)
	}
	if view.Result["total_tested"].(float64) != 1 || view.Result["valid"].(float64) != 1 {
		t.Fatalf("result = %v", view.Result)
	}

	stored, err := env.proxies.FindByIdentity("8.8.8.8", 3128, model.ProtocolHTTP)
	if err != nil {
		t.Fatalf("FindByIdentity: %v", err)
	}
	if !stored.Valid {
		t.Fatal("validated row should be marked valid")
	}
}

func TestScheduleRejectsBadType(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/proxies/schedule", map[string]any{"type": "generate"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	rec = env.do(t, http.MethodPost, "/proxies/schedule", map[string]any{"type": "validate"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty proxies: status = %d, want 400", rec.Code)
	}
}

func TestGetUnknownJob(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/jobs/no-such-job", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestSchedulerStatusAndUpdate(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/proxies/scheduler/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status endpoint = %d", rec.Code)
	}
	status := decode[struct {
		Config struct {
			Enabled             bool `json:"enabled"`
			ValidateIntervalMin int  `json:"validate_interval_min"`
		} `json:"config"`
		Running bool `json:"running"`
	}](t, rec)
	if status.Config.ValidateIntervalMin != 30 {
		t.Fatalf("config = %+v", status.Config)
	}

	rec = env.do(t, http.MethodPost, "/proxies/scheduler/update", map[string]any{
		"validate_interval_min": 5,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update = %d: %s", rec.Code, rec.Body.String())
	}
	upd := decode[struct {
		Success bool `json:"success"`
		Config  struct {
			ValidateIntervalMin int `json:"validate_interval_min"`
		} `json:"config"`
	}](t, rec)
	if !upd.Success || upd.Config.ValidateIntervalMin != 5 {
		t.Fatalf("update response = %+v", upd)
	}

	rec = env.do(t, http.MethodPost, "/proxies/scheduler/update", map[string]any{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty update = %d, want 400", rec.Code)
	}
}
