package store

import (
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestWebhookRepo(t *testing.T) *WebhookRepo {
	t.Helper()
	db, err := OpenDB(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := MigrateCatalogDB(db); err != nil {
		t.Fatalf("MigrateCatalogDB: %v", err)
	}
	return NewWebhookRepo(db)
}

func TestWebhookInsertListDelete(t *testing.T) {
	repo := newTestWebhookRepo(t)

	first, err := repo.Insert("http://a.example/hook", []string{"proxies_scraped"}, strPtr("s3cret"), true)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, err := repo.Insert("http://b.example/hook", []string{"proxies_validated"}, nil, true); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	hooks, total, err := repo.List(0, 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 2 || len(hooks) != 2 {
		t.Fatalf("List = %d rows, total %d, want 2/2", len(hooks), total)
	}
	if hooks[0].ID != first.ID {
		t.Fatalf("List order: first = %s, want oldest %s", hooks[0].ID, first.ID)
	}

	hooks, _, err = repo.List(1, 10)
	if err != nil {
		t.Fatalf("List offset: %v", err)
	}
	if len(hooks) != 1 {
		t.Fatalf("List offset=1 rows = %d, want 1", len(hooks))
	}

	removed, err := repo.Delete(first.ID)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if removed.URL != first.URL {
		t.Fatalf("Delete returned %q, want %q", removed.URL, first.URL)
	}
	if _, err := repo.Delete(first.ID); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("Delete again = %v, want sql.ErrNoRows", err)
	}
}

func TestWebhookActiveForEvent(t *testing.T) {
	repo := newTestWebhookRepo(t)

	a, _ := repo.Insert("http://a.example", []string{"proxies_scraped", "proxies_validated"}, nil, true)
	_, _ = repo.Insert("http://b.example", []string{"proxies_validated"}, nil, true)
	_, _ = repo.Insert("http://c.example", []string{"proxies_scraped"}, nil, false) // inactive

	hooks, err := repo.ActiveForEvent("proxies_scraped")
	if err != nil {
		t.Fatalf("ActiveForEvent: %v", err)
	}
	if len(hooks) != 1 || hooks[0].ID != a.ID {
		t.Fatalf("ActiveForEvent = %+v, want only %s", hooks, a.ID)
	}
}

func TestWebhookCounters(t *testing.T) {
	repo := newTestWebhookRepo(t)
	wh, _ := repo.Insert("http://a.example", []string{"e"}, nil, true)

	now := time.Now().UnixNano()
	if err := repo.MarkTriggered(wh.ID, now); err != nil {
		t.Fatalf("MarkTriggered: %v", err)
	}
	if err := repo.IncrementFailures(wh.ID); err != nil {
		t.Fatalf("IncrementFailures: %v", err)
	}
	if err := repo.IncrementFailures(wh.ID); err != nil {
		t.Fatalf("IncrementFailures: %v", err)
	}

	got, err := repo.Get(wh.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.LastTriggeredNs == nil || *got.LastTriggeredNs != now {
		t.Fatalf("last_triggered_at_ns = %v, want %d", got.LastTriggeredNs, now)
	}
	if got.Failures != 2 {
		t.Fatalf("failures = %d, want 2", got.Failures)
	}
}
