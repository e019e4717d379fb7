package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock advances only when the pacer sleeps or the test calls Advance.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 8, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.Advance(d)
	return nil
}

func TestPacerSpacesConsecutiveCalls(t *testing.T) {
	clock := newFakeClock()
	p := New(map[string]time.Duration{"alphavantage": 12 * time.Second}, WithClock(clock.Now, clock.Sleep))
	ctx := context.Background()

	wait, err := p.Acquire(ctx, "alphavantage")
	require.NoError(t, err)
	assert.Zero(t, wait, "first call passes immediately")
	first := clock.Now()

	clock.Advance(3 * time.Second)

	wait, err = p.Acquire(ctx, "alphavantage")
	require.NoError(t, err)
	second := clock.Now()

	assert.Equal(t, 9*time.Second, wait)
	assert.GreaterOrEqual(t, second.Sub(first), 12*time.Second)
}

func TestPacerNoWaitAfterInterval(t *testing.T) {
	clock := newFakeClock()
	p := New(map[string]time.Duration{"finnhub": 12 * time.Second}, WithClock(clock.Now, clock.Sleep))

	_, err := p.Acquire(context.Background(), "finnhub")
	require.NoError(t, err)
	clock.Advance(20 * time.Second)

	wait, err := p.Acquire(context.Background(), "finnhub")
	require.NoError(t, err)
	assert.Zero(t, wait)
}

func TestPacerIndependentProviders(t *testing.T) {
	clock := newFakeClock()
	p := New(map[string]time.Duration{
		"alphavantage": 12 * time.Second,
		"marketstack":  2 * time.Second,
	}, WithClock(clock.Now, clock.Sleep))
	ctx := context.Background()

	_, err := p.Acquire(ctx, "alphavantage")
	require.NoError(t, err)

	wait, err := p.Acquire(ctx, "marketstack")
	require.NoError(t, err)
	assert.Zero(t, wait, "other providers keep their own cadence")

	wait, err = p.Acquire(ctx, "marketstack")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, wait)

	wait, err = p.Acquire(ctx, "alphavantage")
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, wait)
}

func TestPacerUnpacedProviders(t *testing.T) {
	clock := newFakeClock()
	p := New(map[string]time.Duration{"mock": 0}, WithClock(clock.Now, clock.Sleep))

	for i := 0; i < 3; i++ {
		wait, err := p.Acquire(context.Background(), "mock")
		require.NoError(t, err)
		assert.Zero(t, wait)
		wait, err = p.Acquire(context.Background(), "unknown")
		require.NoError(t, err)
		assert.Zero(t, wait)
	}
	assert.Zero(t, p.Interval("mock"))
}

func TestPacerCancelledWait(t *testing.T) {
	clock := newFakeClock()
	p := New(map[string]time.Duration{"alphavantage": 12 * time.Second}, WithClock(clock.Now, clock.Sleep))

	_, err := p.Acquire(context.Background(), "alphavantage")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Acquire(ctx, "alphavantage")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPacerWallClock(t *testing.T) {
	if testing.Short() {
		t.Skip("sleeps in real time")
	}
	p := New(map[string]time.Duration{"p": 50 * time.Millisecond})
	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := p.Acquire(context.Background(), "p")
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}
