package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/trawlhq/trawl/internal/model"
)

// WebhookRepo provides CRUD for webhook subscribers.
type WebhookRepo struct {
	db *sql.DB
	mu sync.Mutex
}

// NewWebhookRepo creates a WebhookRepo for the given catalog.db connection.
func NewWebhookRepo(db *sql.DB) *WebhookRepo {
	return &WebhookRepo{db: db}
}

const webhookColumns = "id, url, events_json, secret_key, active, created_at_ns, last_triggered_at_ns, failures"

func scanWebhook(row interface{ Scan(...any) error }) (model.Webhook, error) {
	var wh model.Webhook
	var eventsJSON string
	if err := row.Scan(&wh.ID, &wh.URL, &eventsJSON, &wh.SecretKey, &wh.Active,
		&wh.CreatedAtNs, &wh.LastTriggeredNs, &wh.Failures); err != nil {
		return wh, err
	}
	if err := json.Unmarshal([]byte(eventsJSON), &wh.Events); err != nil {
		return wh, fmt.Errorf("unmarshal webhook %s events: %w", wh.ID, err)
	}
	return wh, nil
}

// Insert registers a new webhook and returns the stored record.
func (r *WebhookRepo) Insert(url string, events []string, secretKey *string, active bool) (model.Webhook, error) {
	eventsJSON, err := json.Marshal(events)
	if err != nil {
		return model.Webhook{}, fmt.Errorf("marshal webhook events: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	wh := model.Webhook{
		ID:          uuid.NewString(),
		URL:         url,
		Events:      slices.Clone(events),
		SecretKey:   secretKey,
		Active:      active,
		CreatedAtNs: time.Now().UnixNano(),
	}
	_, err = r.db.Exec(`
		INSERT INTO webhooks (id, url, events_json, secret_key, active, created_at_ns, failures)
		VALUES (?, ?, ?, ?, ?, ?, 0)
	`, wh.ID, wh.URL, string(eventsJSON), wh.SecretKey, wh.Active, wh.CreatedAtNs)
	if err != nil {
		return model.Webhook{}, fmt.Errorf("insert webhook: %w", err)
	}
	return wh, nil
}

// Get returns one webhook by id, or sql.ErrNoRows.
func (r *WebhookRepo) Get(id string) (model.Webhook, error) {
	row := r.db.QueryRow("SELECT "+webhookColumns+" FROM webhooks WHERE id = ?", id)
	return scanWebhook(row)
}

// List returns one offset/limit window of webhooks plus the total count.
func (r *WebhookRepo) List(offset, limit int) ([]model.Webhook, int, error) {
	var total int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM webhooks").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count webhooks: %w", err)
	}

	rows, err := r.db.Query(
		"SELECT "+webhookColumns+" FROM webhooks ORDER BY created_at_ns ASC LIMIT ? OFFSET ?",
		limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list webhooks: %w", err)
	}
	defer rows.Close()

	result := []model.Webhook{}
	for rows.Next() {
		wh, err := scanWebhook(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, wh)
	}
	return result, total, rows.Err()
}

// Delete removes a webhook and returns the removed record, or sql.ErrNoRows.
func (r *WebhookRepo) Delete(id string) (model.Webhook, error) {
	wh, err := r.Get(id)
	if err != nil {
		return model.Webhook{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.db.Exec("DELETE FROM webhooks WHERE id = ?", id); err != nil {
		return model.Webhook{}, fmt.Errorf("delete webhook %s: %w", id, err)
	}
	return wh, nil
}

// ActiveForEvent returns active webhooks subscribed to the event.
func (r *WebhookRepo) ActiveForEvent(event string) ([]model.Webhook, error) {
	rows, err := r.db.Query("SELECT "+webhookColumns+" FROM webhooks WHERE active = 1 ORDER BY created_at_ns ASC")
	if err != nil {
		return nil, fmt.Errorf("query active webhooks: %w", err)
	}
	defer rows.Close()

	var result []model.Webhook
	for rows.Next() {
		wh, err := scanWebhook(rows)
		if err != nil {
			return nil, err
		}
		if slices.Contains(wh.Events, event) {
			result = append(result, wh)
		}
	}
	return result, rows.Err()
}

// MarkTriggered records a successful delivery.
func (r *WebhookRepo) MarkTriggered(id string, atNs int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec("UPDATE webhooks SET last_triggered_at_ns = ? WHERE id = ?", atNs, id)
	return err
}

// IncrementFailures records a failed delivery.
func (r *WebhookRepo) IncrementFailures(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec("UPDATE webhooks SET failures = failures + 1 WHERE id = ?", id)
	return err
}
