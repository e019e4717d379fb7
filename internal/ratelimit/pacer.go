package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/Rajchodisetti/weekly-portfolio/internal/observ"
)

// Pacer enforces a minimum spacing between calls to the same provider. Each
// provider gets a burst-1 limiter, so a second call is never dispatched sooner
// than the interval after the first. Providers are paced independently.
type Pacer struct {
	mu        sync.Mutex
	intervals map[string]time.Duration
	limiters  map[string]*rate.Limiter
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
}

type Option func(*Pacer)

// WithClock replaces the wall clock and the sleep used while waiting.
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(p *Pacer) {
		if now != nil {
			p.now = now
		}
		if sleep != nil {
			p.sleep = sleep
		}
	}
}

// New creates a pacer for the given provider intervals. Providers missing from the
// map, or with a zero interval, are not paced.
func New(intervals map[string]time.Duration, opts ...Option) *Pacer {
	p := &Pacer{
		intervals: make(map[string]time.Duration),
		limiters:  make(map[string]*rate.Limiter),
		now:       time.Now,
		sleep:     Sleep,
	}
	for _, o := range opts {
		o(p)
	}
	for name, d := range intervals {
		p.SetInterval(name, d)
	}
	return p
}

// SetInterval (re)configures one provider. Its pacing history is reset.
func (p *Pacer) SetInterval(provider string, d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if d <= 0 {
		delete(p.intervals, provider)
		delete(p.limiters, provider)
		return
	}
	p.intervals[provider] = d
	p.limiters[provider] = rate.NewLimiter(rate.Every(d), 1)
}

func (p *Pacer) Interval(provider string) time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.intervals[provider]
}

// Acquire blocks until provider may be called and returns how long it waited.
// A cancelled context returns the slot and the context error.
func (p *Pacer) Acquire(ctx context.Context, provider string) (time.Duration, error) {
	p.mu.Lock()
	lim, ok := p.limiters[provider]
	if !ok {
		p.mu.Unlock()
		return 0, ctx.Err()
	}
	now := p.now()
	r := lim.ReserveN(now, 1)
	p.mu.Unlock()

	if !r.OK() {
		return 0, context.DeadlineExceeded
	}
	// limiter arithmetic is float64; snap to whole milliseconds
	wait := r.DelayFrom(now).Round(time.Millisecond)
	if wait > 0 {
		observ.Debug("rate_limiter_wait", map[string]any{
			"provider": provider,
			"wait_ms":  wait.Milliseconds(),
		})
		if err := p.sleep(ctx, wait); err != nil {
			r.CancelAt(p.now())
			return 0, err
		}
	}
	observ.RecordDuration("rate_limiter_wait", wait, map[string]string{"provider": provider})
	return wait, nil
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
