package api

import (
	"net/http"

	"github.com/trawlhq/trawl/internal/scheduler"
	"github.com/trawlhq/trawl/internal/service"
)

// HandleScheduleJob returns a handler for POST /proxies/schedule. The
// body carries the fields of the matching synchronous endpoint plus a
// type discriminator.
func HandleScheduleJob(cp *service.ControlPlaneService) http.HandlerFunc {
	type body struct {
		Type string `json:"type"`

		// scrape fields
		Quantity  int      `json:"quantity"`
		Country   string   `json:"country"`
		Protocols []string `json:"protocols"`
		Sources   []string `json:"sources"`

		// validate fields
		Proxies          []string `json:"proxies"`
		TestURLs         []string `json:"test_urls"`
		Timeout          float64  `json:"timeout"`
		CheckAnonymity   bool     `json:"check_anonymity"`
		CheckGeolocation bool     `json:"check_geolocation"`
		ConcurrentTests  int      `json:"concurrent_tests"`
		TestAllURLs      bool     `json:"test_all_urls"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var b body
		if err := DecodeBody(r, &b); err != nil {
			writeDecodeBodyError(w, err)
			return
		}
		out, err := cp.ScheduleJob(service.ScheduleParams{
			Type:             b.Type,
			Quantity:         b.Quantity,
			Country:          b.Country,
			Protocols:        b.Protocols,
			Sources:          b.Sources,
			Lines:            b.Proxies,
			TestURLs:         b.TestURLs,
			TimeoutSec:       b.Timeout,
			CheckAnonymity:   b.CheckAnonymity,
			CheckGeolocation: b.CheckGeolocation,
			ConcurrentTests:  b.ConcurrentTests,
			TestAllURLs:      b.TestAllURLs,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{
			"job_id":      out.JobID,
			"status":      out.Status,
			"polling_url": out.PollingURL,
		})
	}
}

// HandleGetJob returns a handler for GET /jobs/{id}.
func HandleGetJob(cp *service.ControlPlaneService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := cp.GetJob(PathParam(r, "id"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, snap)
	}
}

// HandleSchedulerStatus returns a handler for GET /proxies/scheduler/status.
func HandleSchedulerStatus(cp *service.ControlPlaneService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, cp.SchedulerStatus())
	}
}

// HandleSchedulerUpdate returns a handler for POST /proxies/scheduler/update.
func HandleSchedulerUpdate(cp *service.ControlPlaneService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var u scheduler.ConfigUpdate
		if err := DecodeBody(r, &u); err != nil {
			writeDecodeBodyError(w, err)
			return
		}
		cfg, err := cp.SchedulerUpdate(u)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"config":  cfg,
		})
	}
}
