// Package executor runs external calls behind a shared pacing limiter and
// retries rate-limited attempts with exponential backoff.
package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"golang.org/x/time/rate"

	"github.com/kelsos/realms-tvl/internal/logger"
	"github.com/kelsos/realms-tvl/internal/metrics"
)

var (
	// ErrRateLimited marks an upstream "too many requests" response.
	ErrRateLimited = errors.New("rate limited")
	// ErrRetriesExhausted is returned once every retry was rate limited.
	ErrRetriesExhausted = errors.New("retries exhausted")
)

// rateLimitSignal is implemented by errors that know their own HTTP status.
type rateLimitSignal interface {
	RateLimited() bool
}

// IsRateLimited reports whether err signals a rate-limit response.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	var signal rateLimitSignal
	if errors.As(err, &signal) {
		return signal.RateLimited()
	}
	// Status codes are only trusted from typed errors; base58 addresses can
	// contain "429".
	return strings.Contains(strings.ToLower(err.Error()), "too many requests")
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the default SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Options configures an Executor.
type Options struct {
	// Interval is the minimum spacing between dispatched calls. Zero disables pacing.
	Interval time.Duration
	// Burst allows short bursts above the pacing interval.
	Burst int
	// MaxRetries is the number of retries after the first rate-limited attempt.
	MaxRetries int
	// InitialBackoff is the first retry delay; each next delay doubles.
	InitialBackoff time.Duration
	// Jitter randomizes each delay by ±Jitter of its nominal value.
	Jitter float64
	// Sleep overrides the backoff wait, mainly for tests.
	Sleep SleepFunc
}

// DefaultOptions mirrors the upstream provider limits: 500ms pacing,
// five retries starting at 500ms.
func DefaultOptions() Options {
	return Options{
		Interval:       500 * time.Millisecond,
		Burst:          1,
		MaxRetries:     5,
		InitialBackoff: 500 * time.Millisecond,
		Jitter:         0.1,
	}
}

// Executor paces and retries external calls. One Executor is shared by every
// call site so the pacing budget is global to the process.
type Executor struct {
	limiter *rate.Limiter
	opts    Options
	sleep   SleepFunc
}

// New creates an Executor.
func New(opts Options) *Executor {
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = 500 * time.Millisecond
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}

	limit := rate.Inf
	if opts.Interval > 0 {
		limit = rate.Every(opts.Interval)
	}

	sleep := opts.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	return &Executor{
		limiter: rate.NewLimiter(limit, opts.Burst),
		opts:    opts,
		sleep:   sleep,
	}
}

func (e *Executor) newBackOff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = e.opts.InitialBackoff
	bo.Multiplier = 2
	bo.RandomizationFactor = e.opts.Jitter
	bo.MaxInterval = time.Hour
	bo.MaxElapsedTime = 0
	bo.Reset()
	return bo
}

// Execute runs op under the pacing limiter. Rate-limited failures are retried
// up to MaxRetries times; any other failure is returned after one attempt.
func (e *Executor) Execute(ctx context.Context, site string, op func(ctx context.Context) error) error {
	bo := e.newBackOff()

	for attempt := 0; ; attempt++ {
		if err := e.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%s: waiting for rate limiter: %w", site, err)
		}

		err := op(ctx)
		if err == nil {
			metrics.ObserveCall(site, "ok")
			return nil
		}

		if !IsRateLimited(err) {
			metrics.ObserveCall(site, "error")
			return err
		}

		if attempt >= e.opts.MaxRetries {
			metrics.ObserveCall(site, "exhausted")
			return fmt.Errorf("%s: %w after %d attempts: %w", site, ErrRetriesExhausted, attempt+1, err)
		}

		delay := bo.NextBackOff()
		metrics.ObserveRetry(site)
		logger.Warn("%s: rate limited, retrying in %s (attempt %d/%d)", site, delay, attempt+1, e.opts.MaxRetries)

		if err := e.sleep(ctx, delay); err != nil {
			return fmt.Errorf("%s: retry wait interrupted: %w", site, err)
		}
	}
}

// Call is Execute for operations returning a value.
func Call[T any](ctx context.Context, e *Executor, site string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := e.Execute(ctx, site, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
