package netutil

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testDownloader(client *http.Client) *DirectDownloader {
	d := NewDirectDownloader(
		func() time.Duration { return 5 * time.Second },
		func() string { return "trawl-test/1.0" },
	)
	if client != nil {
		d.Client = client
	}
	return d
}

func TestDirectDownloaderOK(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Write([]byte("payload"))
	}))
	defer srv.Close()

	body, err := testDownloader(srv.Client()).Download(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if string(body) != "payload" {
		t.Fatalf("body = %q, want %q", body, "payload")
	}
	if gotUA != "trawl-test/1.0" {
		t.Fatalf("user-agent = %q, want trawl-test/1.0", gotUA)
	}
}

func TestDirectDownloaderStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := testDownloader(srv.Client()).Download(context.Background(), srv.URL)
	var statusErr *HTTPStatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("error = %v, want HTTPStatusError", err)
	}
	if statusErr.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", statusErr.StatusCode)
	}
}

func TestDirectDownloaderBadURL(t *testing.T) {
	_, err := testDownloader(nil).Download(context.Background(), "http://bad url/")
	var nonRetryable *NonRetryableError
	if !errors.As(err, &nonRetryable) {
		t.Fatalf("error = %v, want NonRetryableError", err)
	}
}

type scriptedDownloader struct {
	calls int
	errs  []error
	body  []byte
}

func (s *scriptedDownloader) Download(ctx context.Context, url string) ([]byte, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	return s.body, nil
}

func noSleep(ctx context.Context, d time.Duration) error { return nil }

func TestRetryDownloaderRecovers(t *testing.T) {
	inner := &scriptedDownloader{
		errs: []error{
			&HTTPStatusError{StatusCode: 502, URL: "u"},
			errors.New("connection reset"),
			nil,
		},
		body: []byte("ok"),
	}
	r := NewRetryDownloader(inner, 2)
	r.Sleep = noSleep

	body, err := r.Download(context.Background(), "http://example.com")
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if string(body) != "ok" {
		t.Fatalf("body = %q, want ok", body)
	}
	if inner.calls != 3 {
		t.Fatalf("calls = %d, want 3", inner.calls)
	}
}

func TestRetryDownloaderExhausts(t *testing.T) {
	boom := errors.New("timeout")
	inner := &scriptedDownloader{errs: []error{boom, boom, boom, boom}}
	r := NewRetryDownloader(inner, 2)
	r.Sleep = noSleep

	_, err := r.Download(context.Background(), "http://example.com")
	if !errors.Is(err, boom) {
		t.Fatalf("error = %v, want last attempt error", err)
	}
	if inner.calls != 3 {
		t.Fatalf("calls = %d, want 3 (1 + 2 retries)", inner.calls)
	}
}

func TestRetryDownloaderSkipsClientErrors(t *testing.T) {
	inner := &scriptedDownloader{errs: []error{&HTTPStatusError{StatusCode: 404, URL: "u"}, nil}}
	r := NewRetryDownloader(inner, 3)
	r.Sleep = noSleep

	if _, err := r.Download(context.Background(), "http://example.com"); err == nil {
		t.Fatal("expected error for 404")
	}
	if inner.calls != 1 {
		t.Fatalf("calls = %d, want 1 (no retry on 4xx)", inner.calls)
	}
}

func TestRetryDownloaderBackoffSchedule(t *testing.T) {
	boom := errors.New("transient")
	inner := &scriptedDownloader{errs: []error{boom, boom, boom}}
	r := NewRetryDownloader(inner, 2)

	var slept []time.Duration
	r.Sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	_, _ = r.Download(context.Background(), "http://example.com")
	want := []time.Duration{500 * time.Millisecond, time.Second}
	if len(slept) != len(want) {
		t.Fatalf("sleeps = %v, want %v", slept, want)
	}
	for i := range want {
		if slept[i] != want[i] {
			t.Fatalf("sleep[%d] = %v, want %v", i, slept[i], want[i])
		}
	}
}
