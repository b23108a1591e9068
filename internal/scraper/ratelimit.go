package scraper

import (
	"time"

	"github.com/puzpuzpuz/xsync/v4"
)

// rateWindow is one source's counter for a single integer minute.
type rateWindow struct {
	minute int64
	count  int
}

// rateLimiter enforces a per-source calls-per-minute cap. The window slides
// by integer minute: the counter resets whenever the minute advances.
type rateLimiter struct {
	perMinute int
	windows   *xsync.Map[string, rateWindow]
	now       func() time.Time // swappable for tests
}

func newRateLimiter(perMinute int) *rateLimiter {
	return &rateLimiter{
		perMinute: perMinute,
		windows:   xsync.NewMap[string, rateWindow](),
		now:       time.Now,
	}
}

// allow reports whether sourceID may make another upstream call this minute,
// incrementing its counter when allowed.
func (l *rateLimiter) allow(sourceID string) bool {
	if l.perMinute <= 0 {
		return true
	}
	minute := l.now().Unix() / 60

	allowed := false
	l.windows.Compute(sourceID, func(old rateWindow, loaded bool) (rateWindow, xsync.ComputeOp) {
		if !loaded || old.minute != minute {
			allowed = true
			return rateWindow{minute: minute, count: 1}, xsync.UpdateOp
		}
		if old.count >= l.perMinute {
			allowed = false
			return old, xsync.CancelOp
		}
		allowed = true
		return rateWindow{minute: minute, count: old.count + 1}, xsync.UpdateOp
	})
	return allowed
}
