package ratelimit

import (
	"context"
	"time"
)

const (
	DefaultLimit  = 20
	DefaultWindow = time.Hour
)

// Decision is the outcome of counting one request against a key.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Store counts requests per key in fixed windows. The window for a key starts
// with its first request and every request inside it counts, allowed or not.
type Store interface {
	Allow(ctx context.Context, key string) (Decision, error)
	Close() error
}

// StatsReporter is implemented by stores that can describe their state.
type StatsReporter interface {
	Stats() map[string]interface{}
}

// window is the per-key state shared by the store implementations.
type window struct {
	count   int
	resetAt time.Time
}

// hit counts one request at now and reports the decision for limit.
func (w window) hit(now time.Time, limit int, length time.Duration) (window, Decision) {
	if !now.Before(w.resetAt) {
		w = window{resetAt: now.Add(length)}
	}
	w.count++

	remaining := limit - w.count
	if remaining < 0 {
		remaining = 0
	}
	return w, Decision{
		Allowed:   w.count <= limit,
		Remaining: remaining,
		ResetAt:   w.resetAt,
	}
}

func normalize(limit int, length time.Duration) (int, time.Duration) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if length <= 0 {
		length = DefaultWindow
	}
	return limit, length
}
