// Package ratelimit bounds outbound model calls process-wide.
package ratelimit

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Limiter caps the number of in-flight calls and optionally enforces a
// minimum spacing between call starts. One Limiter is shared by every job.
type Limiter struct {
	slots       *semaphore.Weighted
	pace        *rate.Limiter
	maxInFlight int64
	minInterval time.Duration
}

// NewLimiterParams configures a Limiter.
//
// MaxConcurrent below 1 is treated as 1. A zero MinInterval disables pacing.
type NewLimiterParams struct {
	MaxConcurrent int64
	MinInterval   time.Duration
}

func NewLimiter(params NewLimiterParams) *Limiter {
	maxInFlight := params.MaxConcurrent
	if maxInFlight < 1 {
		maxInFlight = 1
	}

	l := &Limiter{
		slots:       semaphore.NewWeighted(maxInFlight),
		maxInFlight: maxInFlight,
		minInterval: params.MinInterval,
	}
	if params.MinInterval > 0 {
		l.pace = rate.NewLimiter(rate.Every(params.MinInterval), 1)
	}
	return l
}

// Acquire blocks until a slot is free and, with pacing enabled, until the
// minimum interval since the previous admitted call has passed. The returned
// release func must be called exactly once when the call is finished.
func (l *Limiter) Acquire(ctx context.Context) (func(), error) {
	if err := l.slots.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	if l.pace != nil {
		if err := l.pace.Wait(ctx); err != nil {
			l.slots.Release(1)
			return nil, err
		}
	}
	return func() { l.slots.Release(1) }, nil
}

// Do runs fn while holding a slot.
func (l *Limiter) Do(ctx context.Context, fn func(context.Context) error) error {
	release, err := l.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx)
}

// MaxConcurrent reports the configured slot count.
func (l *Limiter) MaxConcurrent() int64 {
	return l.maxInFlight
}

// MinInterval reports the configured pacing interval.
func (l *Limiter) MinInterval() time.Duration {
	return l.minInterval
}
