package infra

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// DefaultPollInterval is how often WaitForSlot re-checks the window.
const DefaultPollInterval = time.Second

// RateLimitConfig bounds admissions to MaxRequests per Window.
type RateLimitConfig struct {
	MaxRequests int
	Window      time.Duration
}

// Validate checks that both bounds are positive.
func (c RateLimitConfig) Validate() error {
	if c.MaxRequests <= 0 {
		return fmt.Errorf("rate limit: max requests must be > 0, got %d", c.MaxRequests)
	}
	if c.Window <= 0 {
		return fmt.Errorf("rate limit: window must be > 0, got %s", c.Window)
	}
	return nil
}

// RateLimiter is a sliding-window admission controller. It keeps the
// timestamps of recent admissions and prunes those older than the window
// on each check. One instance per provider; instances never share state.
type RateLimiter struct {
	mu     sync.Mutex
	cfg    RateLimitConfig
	stamps []time.Time
	poll   time.Duration
	now    func() time.Time
}

// RateLimiterOption configures a RateLimiter.
type RateLimiterOption func(*RateLimiter)

// WithPollInterval overrides the WaitForSlot poll interval.
func WithPollInterval(d time.Duration) RateLimiterOption {
	return func(rl *RateLimiter) {
		if d > 0 {
			rl.poll = d
		}
	}
}

// WithClock overrides the limiter clock, for tests.
func WithClock(now func() time.Time) RateLimiterOption {
	return func(rl *RateLimiter) { rl.now = now }
}

// NewRateLimiter creates a limiter that admits at most maxRequests per window.
func NewRateLimiter(maxRequests int, window time.Duration, opts ...RateLimiterOption) (*RateLimiter, error) {
	cfg := RateLimitConfig{MaxRequests: maxRequests, Window: window}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rl := &RateLimiter{
		cfg:    cfg,
		stamps: make([]time.Time, 0, maxRequests),
		poll:   DefaultPollInterval,
		now:    time.Now,
	}
	for _, o := range opts {
		o(rl)
	}
	return rl, nil
}

// Config returns the limiter bounds.
func (rl *RateLimiter) Config() RateLimitConfig { return rl.cfg }

// CheckLimit admits one call if the window has capacity. It never blocks.
func (rl *RateLimiter) CheckLimit() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.prune(now)
	if len(rl.stamps) >= rl.cfg.MaxRequests {
		return false
	}
	rl.stamps = append(rl.stamps, now)
	return true
}

// WaitForSlot blocks until CheckLimit admits the caller or ctx is done.
func (rl *RateLimiter) WaitForSlot(ctx context.Context) error {
	if rl.CheckLimit() {
		return nil
	}
	ticker := time.NewTicker(rl.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if rl.CheckLimit() {
				return nil
			}
		}
	}
}

// InFlight returns how many admissions are inside the current window.
func (rl *RateLimiter) InFlight() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.prune(rl.now())
	return len(rl.stamps)
}

// prune drops timestamps at or before now-window. Must be called with mu held.
func (rl *RateLimiter) prune(now time.Time) {
	cutoff := now.Add(-rl.cfg.Window)
	i := 0
	for i < len(rl.stamps) && !rl.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		rl.stamps = append(rl.stamps[:0], rl.stamps[i:]...)
	}
}
