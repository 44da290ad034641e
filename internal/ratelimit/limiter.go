package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Decision is the outcome of a rate limiter check.
type Decision string

const (
	Allowed   Decision = "allowed"
	Throttled Decision = "throttled"
)

// Limiter counts requests per (session, endpoint) over a trailing window.
// Entries older than the window are expired on every check, so a throttled
// session returns to Allowed as soon as the oldest counted request leaves
// the window. Premium bypass is the caller's responsibility: it must be an
// explicit capability check before CheckAndRecord is ever called.
type Limiter struct {
	mu        sync.Mutex
	window    time.Duration
	threshold int
	entries   map[limiterKey][]time.Time
	now       func() time.Time
}

type limiterKey struct {
	sessionID string
	endpoint  string
}

func NewLimiter(window time.Duration, threshold int) *Limiter {
	if window <= 0 {
		window = 45 * time.Second
	}
	if threshold <= 0 {
		threshold = 12
	}
	return &Limiter{
		window:    window,
		threshold: threshold,
		entries:   make(map[limiterKey][]time.Time),
		now:       time.Now,
	}
}

// CheckAndRecord returns Allowed and records the request when the session is
// under threshold for the endpoint, and Throttled otherwise. Throttled
// requests are not recorded, so a burst cannot extend its own penalty.
func (l *Limiter) CheckAndRecord(sessionID, endpoint string) Decision {
	key := limiterKey{sessionID: sessionID, endpoint: endpoint}
	now := l.now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	kept := pruneBefore(l.entries[key], cutoff)
	if len(kept) >= l.threshold {
		l.entries[key] = kept
		return Throttled
	}
	l.entries[key] = append(kept, now)
	return Allowed
}

// StartJanitor periodically drops keys whose entries have all expired.
func (l *Limiter) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.collect()
			}
		}
	}()
}

func (l *Limiter) collect() {
	cutoff := l.now().Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()
	for key, stamps := range l.entries {
		kept := pruneBefore(stamps, cutoff)
		if len(kept) == 0 {
			delete(l.entries, key)
			continue
		}
		l.entries[key] = kept
	}
}

// TrackedKeys reports how many (session, endpoint) pairs currently hold
// unexpired entries.
func (l *Limiter) TrackedKeys() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func pruneBefore(stamps []time.Time, cutoff time.Time) []time.Time {
	idx := 0
	for idx < len(stamps) && !stamps[idx].After(cutoff) {
		idx++
	}
	if idx == 0 {
		return stamps
	}
	return append([]time.Time(nil), stamps[idx:]...)
}
