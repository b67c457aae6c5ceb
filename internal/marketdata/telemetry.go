package marketdata

import (
	"sync"
	"time"
)

// SourceStats tracks fetch outcomes for one price source.
type SourceStats struct {
	Requests      int64     `json:"requests"`
	Successes     int64     `json:"successes"`
	Failures      int64     `json:"failures"`
	LastError     string    `json:"last_error,omitempty"`
	LastSuccessAt time.Time `json:"last_success_at,omitempty"`
	LastFailureAt time.Time `json:"last_failure_at,omitempty"`
}

// Telemetry aggregates per-source counters and rate-limit window state.
// It is mutated on every fetch attempt and intentionally not persisted:
// a restart starts the counters from zero.
type Telemetry struct {
	mu          sync.RWMutex
	sources     map[string]*SourceStats
	fallbackUse int64
	sanityFlags int64
}

// TelemetrySnapshot is the JSON view served to the UI layer.
type TelemetrySnapshot struct {
	Sources     map[string]SourceStats     `json:"sources"`
	RateLimits  map[string]RateLimitStatus `json:"rate_limits"`
	FallbackUse int64                      `json:"fallback_use"`
	SanityFlags int64                      `json:"sanity_flags"`
}

func NewTelemetry() *Telemetry {
	return &Telemetry{sources: make(map[string]*SourceStats)}
}

func (t *Telemetry) stats(source string) *SourceStats {
	s, ok := t.sources[source]
	if !ok {
		s = &SourceStats{}
		t.sources[source] = s
	}
	return s
}

func (t *Telemetry) RecordSuccess(source string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.stats(source)
	s.Requests++
	s.Successes++
	s.LastSuccessAt = time.Now()
}

func (t *Telemetry) RecordFailure(source string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.stats(source)
	s.Requests++
	s.Failures++
	if err != nil {
		s.LastError = err.Error()
	}
	s.LastFailureAt = time.Now()
}

func (t *Telemetry) RecordFallback() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fallbackUse++
}

func (t *Telemetry) RecordSanityFlag() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sanityFlags++
}

// Snapshot copies current counters together with the limiters' window state.
func (t *Telemetry) Snapshot(limiters map[string]*SourceLimiter) TelemetrySnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := TelemetrySnapshot{
		Sources:     make(map[string]SourceStats, len(t.sources)),
		RateLimits:  make(map[string]RateLimitStatus, len(limiters)),
		FallbackUse: t.fallbackUse,
		SanityFlags: t.sanityFlags,
	}
	for name, s := range t.sources {
		out.Sources[name] = *s
	}
	for name, l := range limiters {
		out.RateLimits[name] = l.Status()
	}
	return out
}

// Throttled reports whether any source is currently at its window budget.
func Throttled(limiters map[string]*SourceLimiter) bool {
	for _, l := range limiters {
		if l.Status().Throttled {
			return true
		}
	}
	return false
}
