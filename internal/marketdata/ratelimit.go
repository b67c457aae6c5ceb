package marketdata

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// SourceLimiter enforces a per-source request budget over a sliding window.
// Requests beyond the budget are rejected, not queued; the caller moves on
// to the next source in the cascade.
type SourceLimiter struct {
	mu          sync.Mutex
	window      time.Duration
	maxRequests int

	windowStart time.Time
	count       int
	blocked     int64

	// Token bucket smooths bursts so a full budget cannot be spent in one
	// tick against a provider that meters per second.
	pacer *rate.Limiter
}

// RateLimitStatus is the externally visible window state.
type RateLimitStatus struct {
	Count     int       `json:"count"`
	Max       int       `json:"max"`
	ResetAt   time.Time `json:"reset_at"`
	Blocked   int64     `json:"blocked"`
	Throttled bool      `json:"is_throttled"`
}

func NewSourceLimiter(window time.Duration, maxRequests int) *SourceLimiter {
	if window <= 0 {
		window = time.Minute
	}
	if maxRequests <= 0 {
		maxRequests = 30
	}
	return &SourceLimiter{
		window:      window,
		maxRequests: maxRequests,
		windowStart: time.Now(),
		pacer:       rate.NewLimiter(rate.Limit(float64(maxRequests)/window.Seconds()), maxRequests),
	}
}

// Allow reports whether one more request fits the current window and counts
// it if so. A rejected request increments the blocked counter.
func (l *SourceLimiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if now.Sub(l.windowStart) >= l.window {
		l.windowStart = now
		l.count = 0
	}

	if l.count >= l.maxRequests || !l.pacer.Allow() {
		l.blocked++
		return false
	}

	l.count++
	return true
}

// Status returns the current window state.
func (l *SourceLimiter) Status() RateLimitStatus {
	l.mu.Lock()
	defer l.mu.Unlock()

	return RateLimitStatus{
		Count:     l.count,
		Max:       l.maxRequests,
		ResetAt:   l.windowStart.Add(l.window),
		Blocked:   l.blocked,
		Throttled: l.count >= l.maxRequests,
	}
}
