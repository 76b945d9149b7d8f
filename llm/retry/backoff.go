// Package retry provides the exponential backoff policy shared by the
// invocation gateway.
package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// Policy configures bounded exponential backoff.
type Policy struct {
	MaxRetries   int           // maximum retry count (0 disables retries)
	InitialDelay time.Duration // delay before the first retry
	MaxDelay     time.Duration // upper bound for any single delay
	Multiplier   float64       // exponential growth factor
	Jitter       bool          // randomize each delay by ±25%
}

// DefaultPolicy matches the upstream client defaults: three retries
// starting at two seconds, doubling each attempt.
func DefaultPolicy() *Policy {
	return &Policy{
		MaxRetries:   3,
		InitialDelay: 2 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// Normalize clamps nonsensical values to usable ones.
func (p *Policy) Normalize() {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = 1 * time.Second
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 30 * time.Second
	}
	if p.Multiplier < 1.0 {
		p.Multiplier = 2.0
	}
}

// Delay computes the backoff delay for the given attempt (1-based).
func (p *Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	if p.Jitter {
		jitter := delay * 0.25
		delay = delay + (rand.Float64()*2-1)*jitter
	}
	if delay < float64(p.InitialDelay) {
		delay = float64(p.InitialDelay)
	}
	return time.Duration(delay)
}

// Wait sleeps for the attempt's delay, honoring context cancellation.
func (p *Policy) Wait(ctx context.Context, attempt int) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("retry canceled: %w", ctx.Err())
	case <-time.After(p.Delay(attempt)):
		return nil
	}
}
