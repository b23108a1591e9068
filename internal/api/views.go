package api

import (
	"math"
	"time"

	"github.com/trawlhq/trawl/internal/model"
)

// proxyItem is the wire projection of a catalog record. Timestamps are
// ISO-8601 UTC; latency is integer milliseconds.
type proxyItem struct {
	ID                string         `json:"id"`
	IP                string         `json:"ip"`
	Port              uint16         `json:"port"`
	Protocol          model.Protocol `json:"protocol"`
	Country           *string        `json:"country,omitempty"`
	Source            *string        `json:"source,omitempty"`
	Valid             bool           `json:"valid"`
	Anonymity         *string        `json:"anonymity,omitempty"`
	LastChecked       *string        `json:"last_checked,omitempty"`
	AvgResponseTimeMs *int64         `json:"avg_response_time_ms,omitempty"`
}

func isoTime(ns int64) string {
	return time.Unix(0, ns).UTC().Format(time.RFC3339)
}

func renderProxy(rec model.ProxyRecord) proxyItem {
	item := proxyItem{
		ID:        rec.ID,
		IP:        rec.IP,
		Port:      rec.Port,
		Protocol:  rec.Protocol,
		Country:   rec.Country,
		Source:    rec.Source,
		Valid:     rec.Valid,
		Anonymity: rec.Anonymity,
	}
	if rec.LastCheckedNs != nil {
		s := isoTime(*rec.LastCheckedNs)
		item.LastChecked = &s
	}
	if rec.AvgResponseTimeMs != nil {
		ms := int64(math.Round(*rec.AvgResponseTimeMs))
		item.AvgResponseTimeMs = &ms
	}
	return item
}

func renderProxies(recs []model.ProxyRecord) []proxyItem {
	items := make([]proxyItem, 0, len(recs))
	for _, rec := range recs {
		items = append(items, renderProxy(rec))
	}
	return items
}

// webhookView is the wire projection of a webhook record.
type webhookView struct {
	ID              string   `json:"id"`
	URL             string   `json:"url"`
	Events          []string `json:"events"`
	SecretKey       *string  `json:"secret_key,omitempty"`
	Active          bool     `json:"active"`
	CreatedAt       string   `json:"created_at"`
	LastTriggeredAt *string  `json:"last_triggered_at,omitempty"`
	Failures        int      `json:"failures"`
}

func renderWebhook(hook model.Webhook) webhookView {
	v := webhookView{
		ID:        hook.ID,
		URL:       hook.URL,
		Events:    hook.Events,
		SecretKey: hook.SecretKey,
		Active:    hook.Active,
		CreatedAt: isoTime(hook.CreatedAtNs),
		Failures:  hook.Failures,
	}
	if hook.LastTriggeredNs != nil {
		s := isoTime(*hook.LastTriggeredNs)
		v.LastTriggeredAt = &s
	}
	return v
}
