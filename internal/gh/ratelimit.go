package gh

import (
	"sync"
	"time"

	"github.com/google/go-github/v57/github"
)

// RateLimits is a point-in-time view of the GitHub API quota as observed
// from response headers.
type RateLimits struct {
	Remaining int
	Limit     int
	Reset     time.Time
}

// rateTracker records the most recent rate-limit headers seen on any
// response. It is owned by the client rather than being process-wide state;
// reads are best-effort and only gate pacing, not correctness.
type rateTracker struct {
	mu     sync.Mutex
	limits RateLimits
}

// newRateTracker starts with an optimistic authenticated-quota placeholder
// so the first request is never throttled preemptively.
func newRateTracker() *rateTracker {
	return &rateTracker{
		limits: RateLimits{Remaining: 5000, Limit: 5000},
	}
}

// update records the rate information carried by a go-github response.
func (t *rateTracker) update(resp *github.Response) {
	if resp == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if resp.Rate.Limit > 0 {
		t.limits.Limit = resp.Rate.Limit
		t.limits.Remaining = resp.Rate.Remaining
	}
	if !resp.Rate.Reset.IsZero() {
		t.limits.Reset = resp.Rate.Reset.Time
	}
}

// snapshot returns the latest observed limits.
func (t *rateTracker) snapshot() RateLimits {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.limits
}
