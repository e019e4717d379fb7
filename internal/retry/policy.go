package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/Rajchodisetti/weekly-portfolio/internal/observ"
)

// ErrExhausted marks an error returned after the whole retry budget was spent.
// The last operation error stays reachable through errors.Is/As.
var ErrExhausted = errors.New("retries exhausted")

// Policy retries an operation on retryable failures with exponential backoff.
// The delay before retry n (n from 0) is InitialDelay * BackoffFactor^n, capped
// at MaxDelay when MaxDelay > 0.
type Policy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	BackoffFactor float64
	MaxDelay      time.Duration

	// Retryable classifies failures. Nil retries every error except
	// context.Canceled. Nothing is retried once ctx is done.
	Retryable func(error) bool

	// Sleep waits between attempts; nil uses a timer bound to ctx.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Default is 3 retries with 1s, 2s, 4s delays.
func Default() Policy {
	return Policy{MaxRetries: 3, InitialDelay: time.Second, BackoffFactor: 2, MaxDelay: 30 * time.Second}
}

// Light is for cheap calls such as existence checks: 250ms, 500ms, 1s.
func Light() Policy {
	return Policy{MaxRetries: 3, InitialDelay: 250 * time.Millisecond, BackoffFactor: 2, MaxDelay: 5 * time.Second}
}

// Delay returns the backoff before retry number attempt (0-based).
func (p Policy) Delay(attempt int) time.Duration {
	factor := p.BackoffFactor
	if factor < 1 {
		factor = 1
	}
	d := float64(p.InitialDelay) * math.Pow(factor, float64(attempt))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	return time.Duration(d)
}

func (p Policy) retryable(err error) bool {
	if p.Retryable == nil {
		return !errors.Is(err, context.Canceled)
	}
	return p.Retryable(err)
}

// Do runs op until it succeeds, fails with a non-retryable error, or the budget
// is spent. attempt passed to op is 0 for the first call.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context, attempt int) error) error {
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	for attempt := 0; ; attempt++ {
		err := op(ctx, attempt)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || !p.retryable(err) {
			if attempt > 0 {
				observ.IncCounter("retry_attempts_total", map[string]string{"outcome": "permanent"})
			}
			return err
		}
		if attempt >= p.MaxRetries {
			observ.IncCounter("retry_attempts_total", map[string]string{"outcome": "exhausted"})
			observ.Warn("retry_exhausted", map[string]any{
				"attempts": attempt + 1,
				"error":    err.Error(),
			})
			return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempt+1, err)
		}

		delay := p.Delay(attempt)
		observ.IncCounter("retry_attempts_total", map[string]string{"outcome": "retry"})
		observ.Log("retry_backoff", map[string]any{
			"attempt":  attempt + 1,
			"delay_ms": delay.Milliseconds(),
			"error":    err.Error(),
		})
		if serr := sleep(ctx, delay); serr != nil {
			return fmt.Errorf("retry aborted during backoff: %w (last error: %v)", serr, err)
		}
	}
}

// DoValue is Do for operations that produce a value.
func DoValue[T any](ctx context.Context, p Policy, op func(ctx context.Context, attempt int) (T, error)) (T, error) {
	var out T
	err := p.Do(ctx, func(ctx context.Context, attempt int) error {
		v, err := op(ctx, attempt)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
