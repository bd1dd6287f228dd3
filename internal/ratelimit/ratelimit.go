// Package ratelimit paces calls to slow external services.
package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limiter blocks until the next call may proceed.
type Limiter interface {
	Wait(ctx context.Context) error
}

// Interval allows one call per interval. The first call never waits.
func Interval(d time.Duration) Limiter {
	if d <= 0 {
		return Unlimited()
	}
	return rate.NewLimiter(rate.Every(d), 1)
}

// Unlimited never blocks.
func Unlimited() Limiter {
	return rate.NewLimiter(rate.Inf, 0)
}
