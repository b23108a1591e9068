package netutil

import (
	"context"
	"errors"
	"time"
)

// RetryDownloader decorates a Downloader with exponential backoff retries.
// Attempt n sleeps BackoffBase * 2^n before retrying (0.5s, 1s, 2s, ...).
type RetryDownloader struct {
	Inner       Downloader
	MaxRetries  int
	BackoffBase time.Duration
	// Sleep is swappable for tests; nil means time.Sleep behavior
	// honoring ctx cancellation.
	Sleep func(ctx context.Context, d time.Duration) error
}

// NewRetryDownloader wraps inner with maxRetries backoff retries.
func NewRetryDownloader(inner Downloader, maxRetries int) *RetryDownloader {
	return &RetryDownloader{
		Inner:       inner,
		MaxRetries:  maxRetries,
		BackoffBase: 500 * time.Millisecond,
	}
}

// Download fetches the URL, retrying transient failures. The last error is
// returned once retries are exhausted.
func (r *RetryDownloader) Download(ctx context.Context, url string) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	var lastErr error
	for attempt := 0; attempt <= r.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := r.sleep(ctx, r.BackoffBase*(1<<(attempt-1))); err != nil {
				return nil, lastErr
			}
		}

		body, err := r.Inner.Download(ctx, url)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !shouldRetry(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

func (r *RetryDownloader) sleep(ctx context.Context, d time.Duration) error {
	if r.Sleep != nil {
		return r.Sleep(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func shouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var nonRetryable *NonRetryableError
	if errors.As(err, &nonRetryable) {
		return false
	}

	// Server-side errors are worth retrying; client errors are not.
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= 500 || statusErr.StatusCode == 429
	}
	return true
}
