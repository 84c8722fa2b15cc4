// ABOUTME: Backoff pacing for the realtime connection.
// ABOUTME: User writes are never retried; only the event stream reconnects.
package pocketbase

import (
	"context"
	"errors"
	"net"
	"time"
)

// RetryConfig controls reconnect pacing.
type RetryConfig struct {
	InitialWait time.Duration // wait before first reconnect (default: 500ms)
	MaxWait     time.Duration // maximum wait between reconnects (default: 30s)
	Multiplier  float64       // backoff multiplier (default: 2.0)
}

// DefaultRetryConfig returns sensible defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialWait: 500 * time.Millisecond,
		MaxWait:     30 * time.Second,
		Multiplier:  2.0,
	}
}

// Retryable reports whether a stream failure is worth reconnecting after.
// Network failures and server errors are; rejected credentials are not.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= 500 || apiErr.Status == 429
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return !errors.Is(err, context.Canceled)
}

type backoff struct {
	cfg  RetryConfig
	wait time.Duration
}

func newBackoff(cfg RetryConfig) *backoff {
	return &backoff{cfg: cfg, wait: cfg.InitialWait}
}

// next returns the delay before the next attempt and grows the wait.
func (b *backoff) next() time.Duration {
	d := b.wait
	mult := b.cfg.Multiplier
	if mult < 1 {
		mult = 1
	}
	b.wait = time.Duration(float64(b.wait) * mult)
	if b.cfg.MaxWait > 0 && b.wait > b.cfg.MaxWait {
		b.wait = b.cfg.MaxWait
	}
	return d
}

func (b *backoff) reset() { b.wait = b.cfg.InitialWait }

// sleep waits for d or until ctx is done. It reports whether the wait
// completed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
