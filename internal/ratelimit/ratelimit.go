// Package ratelimit enforces the shared provider credit budget. Every
// time-series or quote call costs credits against a one-minute window;
// callers block until the window has room.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Limiter tracks credit consumption in a one-minute window shared by all
// callers in the process. Interactive acquisitions may use the full budget;
// background acquisitions leave a reserve untouched so live requests are
// never starved by queued backfill work.
type Limiter struct {
	mu          sync.Mutex
	limit       int
	reserve     int
	window      time.Duration
	windowStart time.Time
	used        int
}

// New creates a Limiter granting at most perMinute credits per window.
// Background callers stop at perMinute-reserve.
func New(perMinute, reserve int) *Limiter {
	if perMinute < 1 {
		perMinute = 1
	}
	if reserve < 0 || reserve >= perMinute {
		reserve = 0
	}
	return &Limiter{
		limit:   perMinute,
		reserve: reserve,
		window:  time.Minute,
	}
}

// Acquire blocks until cost credits are granted or ctx is done. Interactive
// callers may consume the entire window budget.
func (l *Limiter) Acquire(ctx context.Context, cost int) error {
	return l.acquire(ctx, cost, l.limit)
}

// AcquireBackground blocks until cost credits are granted against the
// reduced background ceiling, or ctx is done.
func (l *Limiter) AcquireBackground(ctx context.Context, cost int) error {
	return l.acquire(ctx, cost, l.limit-l.reserve)
}

func (l *Limiter) acquire(ctx context.Context, cost, ceiling int) error {
	if cost < 1 {
		cost = 1
	}
	if cost > ceiling {
		return fmt.Errorf("ratelimit: cost %d exceeds window budget %d", cost, ceiling)
	}

	for {
		l.mu.Lock()
		now := time.Now()
		if l.windowStart.IsZero() || now.Sub(l.windowStart) >= l.window {
			l.windowStart = now
			l.used = 0
		}
		if l.used+cost <= ceiling {
			l.used += cost
			l.mu.Unlock()
			return nil
		}
		wait := l.window - now.Sub(l.windowStart)
		l.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Used reports credits consumed in the current window.
func (l *Limiter) Used() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.windowStart.IsZero() && time.Since(l.windowStart) >= l.window {
		return 0
	}
	return l.used
}

type backgroundKey struct{}

// WithBackground marks ctx as belonging to background work. Provider clients
// consult this to charge credits against the reduced background ceiling.
func WithBackground(ctx context.Context) context.Context {
	return context.WithValue(ctx, backgroundKey{}, true)
}

// IsBackground reports whether ctx was marked by WithBackground.
func IsBackground(ctx context.Context) bool {
	b, _ := ctx.Value(backgroundKey{}).(bool)
	return b
}

// Wait acquires cost credits at the priority carried by ctx.
func (l *Limiter) Wait(ctx context.Context, cost int) error {
	if IsBackground(ctx) {
		return l.AcquireBackground(ctx, cost)
	}
	return l.Acquire(ctx, cost)
}
