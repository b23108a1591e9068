// Package webhook delivers event notifications to registered subscribers.
package webhook

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/trawlhq/trawl/internal/model"
	"github.com/trawlhq/trawl/internal/store"
)

const deliveryTimeout = 5 * time.Second

// Fanout posts event payloads to every active subscriber of the event.
// Deliveries run concurrently; a slow or failing subscriber never delays
// the others.
type Fanout struct {
	Webhooks *store.WebhookRepo
	Client   *http.Client
	now      func() time.Time
}

func NewFanout(webhooks *store.WebhookRepo) *Fanout {
	return &Fanout{
		Webhooks: webhooks,
		Client:   &http.Client{Timeout: deliveryTimeout},
		now:      time.Now,
	}
}

// Notify sends payload to every active subscriber of event and waits for
// the deliveries to finish. Errors are reflected in per-webhook failure
// counters, never returned.
func (f *Fanout) Notify(event string, payload map[string]any) {
	hooks, err := f.Webhooks.ActiveForEvent(event)
	if err != nil {
		log.Printf("[webhook] list subscribers for %s: %v", event, err)
		return
	}
	if len(hooks) == 0 {
		return
	}

	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[webhook] encode payload for %s: %v", event, err)
		return
	}

	var wg sync.WaitGroup
	for _, hook := range hooks {
		wg.Add(1)
		go func(hook model.Webhook) {
			defer wg.Done()
			f.deliver(event, hook, body)
		}(hook)
	}
	wg.Wait()
}

func (f *Fanout) deliver(event string, hook model.Webhook, body []byte) {
	req, err := http.NewRequest(http.MethodPost, hook.URL, bytes.NewReader(body))
	if err != nil {
		f.recordFailure(hook.ID, event, err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Event", event)
	if hook.SecretKey != nil && *hook.SecretKey != "" {
		req.Header.Set("X-Webhook-Signature", Sign(*hook.SecretKey, body))
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		f.recordFailure(hook.ID, event, err)
		return
	}
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		f.recordFailure(hook.ID, event, nil)
		return
	}
	if err := f.Webhooks.MarkTriggered(hook.ID, f.now().UnixNano()); err != nil {
		log.Printf("[webhook] mark triggered %s: %v", hook.ID, err)
	}
}

func (f *Fanout) recordFailure(id, event string, err error) {
	if err != nil {
		log.Printf("[webhook] deliver %s to %s: %v", event, id, err)
	}
	if err := f.Webhooks.IncrementFailures(id); err != nil {
		log.Printf("[webhook] increment failures %s: %v", id, err)
	}
}

// Sign computes the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
