// Package retry provides exponential backoff with full jitter and HTTP status
// classification shared by transports and the delivery pipeline.
package retry

import (
	"context"
	"math"
	"math/rand"
	"net/http"
	"sync"
	"time"
)

// Policy controls how many times an operation is attempted and how long to
// wait between attempts.
type Policy struct {
	MaxAttempts int           // total attempts including the first; <1 means 1
	BaseDelay   time.Duration // delay before the second attempt, before jitter
	MaxDelay    time.Duration // cap on any single delay
	MinDelay    time.Duration // floor after jitter, avoids busy-looping

	mu   sync.Mutex
	rand *rand.Rand
}

// DefaultPolicy returns the pipeline defaults: 4 attempts, 500ms base, 30s cap.
func DefaultPolicy() *Policy {
	return &Policy{
		MaxAttempts: 4,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    30 * time.Second,
		MinDelay:    50 * time.Millisecond,
	}
}

// Delay returns the backoff before the given retry (attempt 1 is the first
// retry). Uses full jitter: random(0, min(MaxDelay, BaseDelay * 2^(attempt-1))).
func (p *Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	expDelay := float64(p.BaseDelay) * math.Pow(2, float64(attempt-1))
	if p.MaxDelay > 0 && expDelay > float64(p.MaxDelay) {
		expDelay = float64(p.MaxDelay)
	}

	p.mu.Lock()
	if p.rand == nil {
		p.rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	jittered := time.Duration(p.rand.Float64() * expDelay)
	p.mu.Unlock()

	if jittered < p.MinDelay {
		jittered = p.MinDelay
	}
	return jittered
}

func (p *Policy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// Do runs fn until it succeeds, returns an error retryable rejects, the
// attempt cap is reached, or ctx is done. It reports how many attempts ran
// and the last error.
func (p *Policy) Do(ctx context.Context, retryable func(error) bool, fn func(ctx context.Context) error) (int, error) {
	var lastErr error
	max := p.attempts()
	for attempt := 0; attempt < max; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(p.Delay(attempt))
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return attempt, lastErr
			}
		}
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return attempt, lastErr
			}
			return attempt, err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return attempt + 1, nil
		}
		if !retryable(lastErr) {
			return attempt + 1, lastErr
		}
	}
	return max, lastErr
}

// IsRetryableStatus returns true if the HTTP status code indicates a
// transient server error that should be retried.
// Retries: 408, 429, 500, 502, 503, 504. Everything else is final.
func IsRetryableStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
