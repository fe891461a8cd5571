package infra

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"net"
	"time"
)

// RetryOptions controls Retry. Retries is the number of extra attempts after
// the first one.
type RetryOptions struct {
	Retries   int
	BaseDelay time.Duration
	MaxDelay  time.Duration

	// ShouldRetry decides whether err is transient. Nil means IsRetryableHTTP.
	ShouldRetry func(err error) bool

	// OnRetry is called before each backoff sleep. It is informational only.
	OnRetry func(attempt int, delay time.Duration, err error)

	// Jitter returns a value in [0, 1). Nil uses math/rand/v2.
	Jitter func() float64
}

// DefaultRetryOptions is the canonical policy for HTTP-backed providers.
func DefaultRetryOptions() RetryOptions {
	return RetryOptions{
		Retries:   3,
		BaseDelay: time.Second,
		MaxDelay:  10 * time.Second,
	}
}

// Backoff returns min(maxDelay, base * 2^attempt * jitter) with jitter in [0.5, 1.0).
// r must be in [0, 1).
func Backoff(attempt int, base, maxDelay time.Duration, r float64) time.Duration {
	jitter := 0.5 + r/2
	d := float64(base) * math.Pow(2, float64(attempt)) * jitter
	if maxDelay > 0 && d > float64(maxDelay) {
		return maxDelay
	}
	return time.Duration(d)
}

// Retry runs op until it succeeds, ShouldRetry rejects the error, the
// retry budget is spent or ctx is done. It returns the last error observed.
func Retry[T any](ctx context.Context, op func(ctx context.Context) (T, error), opts RetryOptions) (T, error) {
	shouldRetry := opts.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = IsRetryableHTTP
	}
	jitter := opts.Jitter
	if jitter == nil {
		jitter = rand.Float64
	}

	if opts.Retries < 0 {
		opts.Retries = 0
	}

	var (
		zero    T
		lastErr error
	)
	for attempt := 0; attempt <= opts.Retries; attempt++ {
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err

		if attempt == opts.Retries || !shouldRetry(err) || ctx.Err() != nil {
			break
		}

		delay := Backoff(attempt, opts.BaseDelay, opts.MaxDelay, jitter())
		if opts.OnRetry != nil {
			opts.OnRetry(attempt+1, delay, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, lastErr
		case <-timer.C:
		}
	}
	return zero, lastErr
}

// IsRetryableHTTP retries 5xx responses, transport failures and timeouts.
// 4xx responses are permanent. Context cancellation is never retried.
func IsRetryableHTTP(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var he *HTTPError
	if errors.As(err, &he) {
		return he.StatusCode >= 500
	}
	var de *DecodeError
	if errors.As(err, &de) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	// http.Client wraps transport failures in *url.Error, which is a net.Error.
	var ne net.Error
	return errors.As(err, &ne)
}
