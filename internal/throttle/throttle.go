// Package throttle spaces out outbound navigations with randomized pauses and a
// global rate limit.
package throttle

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"golang.org/x/time/rate"
)

// Range is an inclusive delay window.
type Range struct {
	Min time.Duration
	Max time.Duration
}

func (r Range) Validate() error {
	if r.Min < 0 || r.Max < 0 {
		return fmt.Errorf("delay range must not be negative: %s..%s", r.Min, r.Max)
	}
	if r.Max < r.Min {
		return fmt.Errorf("delay range max %s is below min %s", r.Max, r.Min)
	}
	return nil
}

// Pick maps f in [0,1) onto the range.
func (r Range) Pick(f float64) time.Duration {
	if r.Max <= r.Min {
		return r.Min
	}
	return r.Min + time.Duration(f*float64(r.Max-r.Min))
}

func (r Range) String() string {
	return fmt.Sprintf("%s..%s", r.Min, r.Max)
}

// Delayer pauses before navigations. It is not safe for concurrent use; the scraper
// is single-threaded.
type Delayer struct {
	limiter *rate.Limiter
	rnd     func() float64
	sleep   func(context.Context, time.Duration) error
}

type Option func(*Delayer)

// WithRand replaces the random source used to pick delays.
func WithRand(f func() float64) Option {
	return func(d *Delayer) { d.rnd = f }
}

// WithSleep replaces the sleep function. Tests use it to record delays.
func WithSleep(f func(context.Context, time.Duration) error) Option {
	return func(d *Delayer) { d.sleep = f }
}

// New returns a Delayer. maxPerMinute <= 0 disables the rate limit.
func New(maxPerMinute float64, opts ...Option) *Delayer {
	d := &Delayer{
		rnd:   rand.Float64,
		sleep: Sleep,
	}
	if maxPerMinute > 0 {
		d.limiter = rate.NewLimiter(rate.Limit(maxPerMinute/60), 1)
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Wait blocks for a random delay within r, then for a rate limiter token.
// It returns ctx.Err() if the context ends first.
func (d *Delayer) Wait(ctx context.Context, r Range) error {
	if err := d.sleep(ctx, r.Pick(d.rnd())); err != nil {
		return err
	}
	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Sleep pauses for dur or until ctx is done.
func Sleep(ctx context.Context, dur time.Duration) error {
	if dur <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(dur)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
