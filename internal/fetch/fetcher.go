// Package fetch loads listing pages through a browser session, clears anti-bot
// challenges and detects the total page count.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/shpitdev/listing-enricher/internal/captcha"
	"github.com/shpitdev/listing-enricher/internal/core"
	"github.com/shpitdev/listing-enricher/internal/metrics"
	"github.com/shpitdev/listing-enricher/internal/retry"
	"github.com/shpitdev/listing-enricher/internal/throttle"
)

// DefaultTotalPages is used when a page carries no pagination control.
const DefaultTotalPages = 105

// Driver is the slice of a browser session the fetcher needs.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	HTML(ctx context.Context) (string, error)
	Eval(ctx context.Context, script string) error
}

type PageCounter interface {
	TotalPages(html string) (int, bool)
}

type Detector interface {
	Detect(pageURL, html string) (captcha.Challenge, bool)
}

type Solver interface {
	Solve(ctx context.Context, ch captcha.Challenge) (string, error)
}

type Waiter interface {
	Wait(ctx context.Context, r throttle.Range) error
}

type Config struct {
	URLTemplate       string
	DefaultTotalPages int
	Headless          bool

	// PageDelay is the randomized pause before each page navigation.
	PageDelay throttle.Range
	// SettleDelay is the pause after injecting a token or waiting out an interstitial.
	SettleDelay time.Duration

	NavigationTimeout time.Duration
	NavigationRetries int
	BackoffInitial    time.Duration
	BackoffMax        time.Duration
}

type Fetcher struct {
	cfg      Config
	driver   Driver
	counter  PageCounter
	detector Detector
	solver   Solver
	operator Operator
	waiter   Waiter
	sleep    func(context.Context, time.Duration) error
	metrics  *metrics.Metrics
	log      *zap.Logger

	total int
}

var _ core.PageFetcher = (*Fetcher)(nil)

type Option func(*Fetcher)

// WithSolver enables automated solving.
func WithSolver(s Solver) Option { return func(f *Fetcher) { f.solver = s } }

// WithOperator enables manual solving in non-headless mode.
func WithOperator(o Operator) Option { return func(f *Fetcher) { f.operator = o } }

func WithWaiter(w Waiter) Option { return func(f *Fetcher) { f.waiter = w } }

func WithSleep(s func(context.Context, time.Duration) error) Option {
	return func(f *Fetcher) { f.sleep = s }
}

func WithMetrics(m *metrics.Metrics) Option { return func(f *Fetcher) { f.metrics = m } }

func WithLogger(l *zap.Logger) Option { return func(f *Fetcher) { f.log = l } }

func New(cfg Config, driver Driver, counter PageCounter, detector Detector, opts ...Option) (*Fetcher, error) {
	if strings.TrimSpace(cfg.URLTemplate) == "" {
		return nil, errors.New("url template is required")
	}
	if driver == nil || counter == nil || detector == nil {
		return nil, errors.New("driver, page counter and captcha detector are required")
	}
	if cfg.DefaultTotalPages <= 0 {
		cfg.DefaultTotalPages = DefaultTotalPages
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = 3 * time.Second
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}
	f := &Fetcher{
		cfg:      cfg,
		driver:   driver,
		counter:  counter,
		detector: detector,
		sleep:    throttle.Sleep,
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.waiter == nil {
		f.waiter = throttle.New(0)
	}
	return f, nil
}

// FetchPage navigates to page n and returns its rendered snapshot.
func (f *Fetcher) FetchPage(ctx context.Context, n int) (*core.Page, error) {
	if n < 1 {
		return nil, fmt.Errorf("invalid page number %d", n)
	}
	pageURL := PageURL(f.cfg.URLTemplate, n)

	if err := f.waiter.Wait(ctx, f.cfg.PageDelay); err != nil {
		return nil, err
	}

	attempts, err := f.navigate(ctx, pageURL)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &core.NavigationError{URL: pageURL, Page: n, Attempts: attempts, Err: err}
	}

	html, err := f.driver.HTML(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &core.NavigationError{URL: pageURL, Page: n, Attempts: attempts, Err: fmt.Errorf("snapshot: %w", err)}
	}

	html, err = f.clearChallenge(ctx, n, pageURL, html)
	if err != nil {
		return nil, err
	}

	if f.total == 0 {
		if total, ok := f.counter.TotalPages(html); ok {
			f.total = total
			f.log.Info("detected total pages", zap.Int("total", total))
		} else {
			f.total = f.cfg.DefaultTotalPages
			f.log.Warn("pagination control not found, using default total", zap.Int("total", f.total))
		}
	}
	f.metrics.PageFetched()

	return &core.Page{Number: n, URL: pageURL, HTML: html, TotalPages: f.total}, nil
}

func (f *Fetcher) navigate(ctx context.Context, pageURL string) (int, error) {
	_, attempts, err := retry.Do(ctx, retry.Options{
		MaxRetries:        f.cfg.NavigationRetries,
		AttemptTimeout:    f.cfg.NavigationTimeout,
		BackoffInitial:    f.cfg.BackoffInitial,
		BackoffMax:        f.cfg.BackoffMax,
		BackoffJitterFrac: 0.2,
		RetryAll:          true,
		OnRetry: func(attempt int, err error, sleep time.Duration) {
			f.log.Warn("navigation failed, retrying",
				zap.String("url", pageURL),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", sleep),
				zap.Error(err),
			)
		},
	}, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, f.driver.Navigate(ctx, pageURL)
	})
	return attempts, err
}

// clearChallenge returns the page markup once no challenge is present.
func (f *Fetcher) clearChallenge(ctx context.Context, n int, pageURL, html string) (string, error) {
	ch, ok := f.detector.Detect(pageURL, html)
	if !ok {
		return html, nil
	}
	f.metrics.Captcha("detected")
	f.log.Warn("captcha detected", zap.Int("page", n), zap.String("kind", string(ch.Kind)), zap.String("marker", ch.Marker))

	// Interstitials without a widget often clear themselves.
	if ch.Kind == captcha.KindUnknown {
		next, cleared, err := f.recheck(ctx, pageURL)
		if err != nil {
			return "", err
		}
		if cleared {
			f.metrics.Captcha("cleared")
			return next, nil
		}
	}

	switch {
	case f.solver != nil && ch.Solvable():
		return f.solve(ctx, pageURL, ch)
	case !f.cfg.Headless && f.operator != nil:
		if err := f.operator.AwaitManualSolve(ctx, pageURL); err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			f.metrics.Captcha("blocked")
			return "", fmt.Errorf("%w: %v", &core.CaptchaBlockedError{URL: pageURL, Page: n}, err)
		}
		next, cleared, err := f.recheck(ctx, pageURL)
		if err != nil {
			return "", err
		}
		if !cleared {
			f.metrics.Captcha("blocked")
			return "", &core.CaptchaBlockedError{URL: pageURL, Page: n}
		}
		f.metrics.Captcha("manual")
		return next, nil
	case f.solver != nil:
		f.metrics.Captcha("failed")
		return "", &core.CaptchaSolveError{URL: pageURL, Err: fmt.Errorf("challenge kind=%s has no site key", ch.Kind)}
	default:
		f.metrics.Captcha("blocked")
		return "", &core.CaptchaBlockedError{URL: pageURL, Page: n}
	}
}

func (f *Fetcher) solve(ctx context.Context, pageURL string, ch captcha.Challenge) (string, error) {
	token, err := f.solver.Solve(ctx, ch)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		f.metrics.Captcha("failed")
		return "", &core.CaptchaSolveError{URL: pageURL, Err: err}
	}
	if err := f.driver.Eval(ctx, captcha.InjectionScript(token)); err != nil {
		f.metrics.Captcha("failed")
		return "", &core.CaptchaSolveError{URL: pageURL, Err: fmt.Errorf("inject token: %w", err)}
	}
	next, cleared, err := f.recheck(ctx, pageURL)
	if err != nil {
		return "", err
	}
	if !cleared {
		f.metrics.Captcha("failed")
		return "", &core.CaptchaSolveError{URL: pageURL, Err: errors.New("challenge still present after token injection")}
	}
	f.metrics.Captcha("solved")
	f.log.Info("captcha solved", zap.String("url", pageURL))
	return next, nil
}

func (f *Fetcher) recheck(ctx context.Context, pageURL string) (string, bool, error) {
	if err := f.sleep(ctx, f.cfg.SettleDelay); err != nil {
		return "", false, err
	}
	html, err := f.driver.HTML(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return "", false, ctx.Err()
		}
		return "", false, fmt.Errorf("snapshot after challenge: %w", err)
	}
	if _, still := f.detector.Detect(pageURL, html); still {
		return "", false, nil
	}
	return html, true, nil
}
