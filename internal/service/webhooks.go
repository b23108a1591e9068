package service

import (
	"database/sql"
	"errors"
	"net/url"
	"strings"

	"github.com/trawlhq/trawl/internal/model"
)

// RegisterWebhookParams are the /webhooks/register inputs.
type RegisterWebhookParams struct {
	URL       string
	Events    []string
	SecretKey *string
	Active    *bool // default true
}

// RegisterWebhook stores a new subscriber.
func (s *ControlPlaneService) RegisterWebhook(p RegisterWebhookParams) (model.Webhook, error) {
	u, err := url.Parse(strings.TrimSpace(p.URL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return model.Webhook{}, invalidArg("url must be an absolute http(s) URL")
	}
	if len(p.Events) == 0 {
		return model.Webhook{}, invalidArg("events must not be empty")
	}
	for _, e := range p.Events {
		if strings.TrimSpace(e) == "" {
			return model.Webhook{}, invalidArg("events must not contain empty names")
		}
	}
	active := true
	if p.Active != nil {
		active = *p.Active
	}

	hook, err := s.Webhooks.Insert(u.String(), p.Events, p.SecretKey, active)
	if err != nil {
		return model.Webhook{}, internal("register webhook", err)
	}
	return hook, nil
}

// ListWebhooks returns a window of subscribers plus the total count.
func (s *ControlPlaneService) ListWebhooks(skip, limit int) ([]model.Webhook, int, error) {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = 100
	}
	hooks, total, err := s.Webhooks.List(skip, limit)
	if err != nil {
		return nil, 0, internal("list webhooks", err)
	}
	return hooks, total, nil
}

// DeleteWebhook removes a subscriber and returns the removed record.
func (s *ControlPlaneService) DeleteWebhook(id string) (model.Webhook, error) {
	hook, err := s.Webhooks.Delete(id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Webhook{}, notFound("webhook not found")
	}
	if err != nil {
		return model.Webhook{}, internal("delete webhook", err)
	}
	return hook, nil
}
