package api

import (
	"net/http"

	"github.com/trawlhq/trawl/internal/service"
)

// HandleRegisterWebhook returns a handler for POST /webhooks/register.
func HandleRegisterWebhook(cp *service.ControlPlaneService) http.HandlerFunc {
	type body struct {
		URL       string   `json:"url"`
		Events    []string `json:"events"`
		SecretKey *string  `json:"secret_key"`
		Active    *bool    `json:"active"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var b body
		if err := DecodeBody(r, &b); err != nil {
			writeDecodeBodyError(w, err)
			return
		}
		hook, err := cp.RegisterWebhook(service.RegisterWebhookParams{
			URL:       b.URL,
			Events:    b.Events,
			SecretKey: b.SecretKey,
			Active:    b.Active,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, renderWebhook(hook))
	}
}

// HandleListWebhooks returns a handler for GET /webhooks.
func HandleListWebhooks(cp *service.ControlPlaneService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		skip, err := ParseIntQuery(r, "skip", 0)
		if err != nil {
			writeInvalidArgument(w, err.Error())
			return
		}
		limit, err := ParseIntQuery(r, "limit", 100)
		if err != nil {
			writeInvalidArgument(w, err.Error())
			return
		}
		hooks, total, serr := cp.ListWebhooks(skip, limit)
		if serr != nil {
			writeServiceError(w, serr)
			return
		}
		views := make([]webhookView, 0, len(hooks))
		for _, h := range hooks {
			views = append(views, renderWebhook(h))
		}
		WriteJSON(w, http.StatusOK, map[string]any{
			"total":    total,
			"webhooks": views,
		})
	}
}

// HandleDeleteWebhook returns a handler for DELETE /webhooks/{id}.
// The removed record is returned.
func HandleDeleteWebhook(cp *service.ControlPlaneService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hook, err := cp.DeleteWebhook(PathParam(r, "id"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, renderWebhook(hook))
	}
}
