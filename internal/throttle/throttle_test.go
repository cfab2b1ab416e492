package throttle_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shpitdev/listing-enricher/internal/throttle"
)

func TestRange_Pick(t *testing.T) {
	r := throttle.Range{Min: 2 * time.Second, Max: 5 * time.Second}

	assert.Equal(t, 2*time.Second, r.Pick(0))
	assert.Equal(t, 3500*time.Millisecond, r.Pick(0.5))
	assert.Less(t, r.Pick(0.9999), 5*time.Second)

	fixed := throttle.Range{Min: time.Second, Max: time.Second}
	assert.Equal(t, time.Second, fixed.Pick(0.7))
}

func TestRange_Validate(t *testing.T) {
	require.NoError(t, throttle.Range{Min: 3 * time.Second, Max: 7 * time.Second}.Validate())
	require.Error(t, throttle.Range{Min: 7 * time.Second, Max: 3 * time.Second}.Validate())
	require.Error(t, throttle.Range{Min: -time.Second}.Validate())
}

func TestDelayer_WaitUsesRandomWithinRange(t *testing.T) {
	var slept []time.Duration
	d := throttle.New(0,
		throttle.WithRand(func() float64 { return 0.25 }),
		throttle.WithSleep(func(_ context.Context, dur time.Duration) error {
			slept = append(slept, dur)
			return nil
		}),
	)

	require.NoError(t, d.Wait(context.Background(), throttle.Range{Min: time.Second, Max: 5 * time.Second}))
	require.NoError(t, d.Wait(context.Background(), throttle.Range{Min: 3 * time.Second, Max: 7 * time.Second}))
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, slept)
}

func TestSleep_HonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := throttle.Sleep(ctx, time.Hour)
	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestDelayer_RateLimitCancellation(t *testing.T) {
	d := throttle.New(1, throttle.WithSleep(func(context.Context, time.Duration) error { return nil }))

	// First token is available immediately.
	require.NoError(t, d.Wait(context.Background(), throttle.Range{}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.Error(t, d.Wait(ctx, throttle.Range{}))
}
