package api

import (
	"net/http"
	"strings"

	"github.com/trawlhq/trawl/internal/service"
)

// HandleScrapeProxies returns a handler for POST /proxies/scrape.
// The scrape runs inline and the inserted records are returned.
func HandleScrapeProxies(cp *service.ControlPlaneService) http.HandlerFunc {
	type body struct {
		Quantity  int      `json:"quantity"`
		Country   string   `json:"country"`
		Protocols []string `json:"protocols"`
		Sources   []string `json:"sources"`
		Timeout   float64  `json:"timeout"`
		Retries   *int     `json:"retries"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var b body
		if err := DecodeBody(r, &b); err != nil {
			writeDecodeBodyError(w, err)
			return
		}
		out, err := cp.Scrape(r.Context(), service.ScrapeParams{
			Quantity:   b.Quantity,
			Country:    b.Country,
			Protocols:  b.Protocols,
			Sources:    b.Sources,
			TimeoutSec: b.Timeout,
			Retries:    b.Retries,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{
			"success":           true,
			"total_found":       out.TotalFound,
			"proxies":           renderProxies(out.Proxies),
			"execution_time_ms": out.ExecutionTimeMs,
		})
	}
}

// HandleValidateProxies returns a handler for POST /proxies/validate.
// Validation runs inline; results are persisted and returned.
func HandleValidateProxies(cp *service.ControlPlaneService) http.HandlerFunc {
	type body struct {
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
		out, err := cp.Validate(r.Context(), service.ValidateParams{
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
			"success":           true,
			"total_tested":      out.TotalTested,
			"valid_proxies":     out.ValidProxies,
			"invalid_proxies":   out.InvalidProxies,
			"results":           out.Results,
			"execution_time_ms": out.ExecutionTimeMs,
		})
	}
}

func listParamsFromQuery(r *http.Request) (service.ListParams, error) {
	pg, err := ParsePagination(r)
	if err != nil {
		return service.ListParams{}, err
	}
	validOnly, err := ParseBoolQuery(r, "valid_only")
	if err != nil {
		return service.ListParams{}, err
	}
	q := r.URL.Query()
	p := service.ListParams{
		Page:      pg.Page,
		PerPage:   pg.PerPage,
		Country:   q.Get("country"),
		Protocol:  q.Get("protocol"),
		Anonymity: q.Get("anonymity"),
		OrderBy:   q.Get("order_by"),
		Order:     q.Get("order"),
	}
	if validOnly != nil {
		p.ValidOnly = *validOnly
	}
	return p, nil
}

// HandleListProxies returns a handler for GET /proxies.
func HandleListProxies(cp *service.ControlPlaneService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := listParamsFromQuery(r)
		if err != nil {
			writeInvalidArgument(w, err.Error())
			return
		}
		out, err := cp.List(params)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		totalPages := 0
		if out.Total > 0 {
			totalPages = (out.Total + out.PerPage - 1) / out.PerPage
		}
		WriteJSON(w, http.StatusOK, map[string]any{
			"total":       out.Total,
			"page":        out.Page,
			"per_page":    out.PerPage,
			"total_pages": totalPages,
			"proxies":     renderProxies(out.Proxies),
		})
	}
}

// HandleRandomProxy returns a handler for GET /proxies/random.
func HandleRandomProxy(cp *service.ControlPlaneService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		maxRT, err := ParseFloatQuery(r, "max_response_time")
		if err != nil {
			writeInvalidArgument(w, err.Error())
			return
		}
		q := r.URL.Query()
		rec, serr := cp.Random(service.RandomParams{
			Protocol:          q.Get("protocol"),
			Country:           q.Get("country"),
			Anonymity:         q.Get("anonymity"),
			MaxResponseTimeMs: maxRT,
		})
		if serr != nil {
			writeServiceError(w, serr)
			return
		}
		WriteJSON(w, http.StatusOK, renderProxy(rec))
	}
}

// HandleProxyStats returns a handler for GET /proxies/stats.
func HandleProxyStats(cp *service.ControlPlaneService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := cp.Stats()
		if err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, stats)
	}
}

// HandleExportProxies returns a handler for GET /proxies/export.
// format=json yields full objects; format=csv yields one ip:port per
// line as text/plain.
func HandleExportProxies(cp *service.ControlPlaneService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		format := strings.ToLower(r.URL.Query().Get("format"))
		if format == "" {
			format = "json"
		}
		if format != "json" && format != "csv" {
			writeInvalidArgument(w, "format: must be json or csv")
			return
		}
		params, err := listParamsFromQuery(r)
		if err != nil {
			writeInvalidArgument(w, err.Error())
			return
		}
		rows, serr := cp.Export(params)
		if serr != nil {
			writeServiceError(w, serr)
			return
		}

		if format == "csv" {
			var sb strings.Builder
			for i := range rows {
				sb.WriteString(rows[i].Addr())
				sb.WriteByte('\n')
			}
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(sb.String()))
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{
			"total":   len(rows),
			"proxies": renderProxies(rows),
		})
	}
}

// HandleGetProxy returns a handler for GET /proxies/{id}.
func HandleGetProxy(cp *service.ControlPlaneService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, err := cp.GetProxy(PathParam(r, "id"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, renderProxy(rec))
	}
}

// HandlePatchProxy returns a handler for PATCH /proxies/{id}.
// Only country and anonymity are updatable.
func HandlePatchProxy(cp *service.ControlPlaneService) http.HandlerFunc {
	type body struct {
		Country   *string `json:"country"`
		Anonymity *string `json:"anonymity"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var b body
		if err := DecodeBody(r, &b); err != nil {
			writeDecodeBodyError(w, err)
			return
		}
		rec, err := cp.PatchProxy(PathParam(r, "id"), b.Country, b.Anonymity)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, renderProxy(rec))
	}
}

// HandleDeleteProxies returns a handler for DELETE /proxies.
func HandleDeleteProxies(cp *service.ControlPlaneService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		invalidOnly, err := ParseBoolQuery(r, "invalid_only")
		if err != nil {
			writeInvalidArgument(w, err.Error())
			return
		}
		only := invalidOnly != nil && *invalidOnly
		n, serr := cp.DeleteProxies(only)
		if serr != nil {
			writeServiceError(w, serr)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{
			"success":       true,
			"deleted_count": n,
		})
	}
}

// HandleImportProxies returns a handler for POST /proxies/import.
func HandleImportProxies(cp *service.ControlPlaneService) http.HandlerFunc {
	type body struct {
		Proxies        []string `json:"proxies"`
		AutoValidate   bool     `json:"auto_validate"`
		ValidationURLs []string `json:"validation_urls"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var b body
		if err := DecodeBody(r, &b); err != nil {
			writeDecodeBodyError(w, err)
			return
		}
		out, err := cp.Import(service.ImportParams{
			Lines:          b.Proxies,
			AutoValidate:   b.AutoValidate,
			ValidationURLs: b.ValidationURLs,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}
		resp := map[string]any{
			"success":            true,
			"imported":           out.Imported,
			"duplicates":         out.Duplicates,
			"validation_started": out.ValidationStarted,
		}
		if out.ValidationStarted {
			resp["polling_url"] = "/jobs/" + out.JobID
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}
