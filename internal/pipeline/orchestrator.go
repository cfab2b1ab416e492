// Package pipeline sequences page fetching, extraction, contact resolution and batched
// persistence across the pages of a listing category.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/shpitdev/listing-enricher/internal/core"
	"github.com/shpitdev/listing-enricher/internal/listing"
	"github.com/shpitdev/listing-enricher/internal/metrics"
	"github.com/shpitdev/listing-enricher/internal/throttle"
)

// ErrInterrupted is returned by Run when the operator stopped the run.
var ErrInterrupted = errors.New("run interrupted")

// Writer is the batch writer the orchestrator feeds.
type Writer interface {
	Start(ctx context.Context, startPage int) error
	Add(ctx context.Context, rec listing.EnrichedListing) (bool, error)
	Flush(ctx context.Context) error
	Threshold() int
	Pending() int
	Written() int
}

// Waiter pauses between listings.
type Waiter interface {
	Wait(ctx context.Context, r throttle.Range) error
}

// Config is fixed for the lifetime of one run.
type Config struct {
	StartPage int
	// MaxPages bounds the number of pages this run processes. Zero means no bound.
	MaxPages int

	// ListingDelay is the randomized pause between listings.
	ListingDelay throttle.Range

	// CaptchaRetries is how many times a blocked page is fetched again after
	// CaptchaCooldown.
	CaptchaRetries  int
	CaptchaCooldown time.Duration

	// FlushRetryDelay is the pause before the single retry of a failed flush.
	FlushRetryDelay time.Duration
	// FinalFlushTimeout bounds the flush attempted after an interruption or abort.
	FinalFlushTimeout time.Duration

	// DebugDir receives the markup of pages that failed extraction.
	DebugDir string
}

// Orchestrator drives one run: fetch a page, extract its listings, resolve contacts
// one listing at a time and hand the records to the writer. It is not safe for
// concurrent use.
type Orchestrator struct {
	cfg       Config
	fetcher   core.PageFetcher
	extractor core.ListingExtractor
	resolver  core.ContactResolver
	writer    Writer

	waiter  Waiter
	sleep   func(context.Context, time.Duration) error
	metrics *metrics.Metrics
	log     *zap.Logger
	hook    func(from, to State)

	state        State
	pendingSince int
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

func WithWaiter(w Waiter) Option { return func(o *Orchestrator) { o.waiter = w } }

func WithSleep(s func(context.Context, time.Duration) error) Option {
	return func(o *Orchestrator) { o.sleep = s }
}

func WithMetrics(m *metrics.Metrics) Option { return func(o *Orchestrator) { o.metrics = m } }

func WithLogger(l *zap.Logger) Option { return func(o *Orchestrator) { o.log = l } }

// WithTransitionHook observes every state change.
func WithTransitionHook(h func(from, to State)) Option { return func(o *Orchestrator) { o.hook = h } }

func New(cfg Config, fetcher core.PageFetcher, extractor core.ListingExtractor, resolver core.ContactResolver, writer Writer, opts ...Option) (*Orchestrator, error) {
	if fetcher == nil || extractor == nil || resolver == nil || writer == nil {
		return nil, errors.New("fetcher, extractor, resolver and writer are required")
	}
	if cfg.StartPage < 1 {
		return nil, fmt.Errorf("invalid start page %d", cfg.StartPage)
	}
	if cfg.MaxPages < 0 || cfg.CaptchaRetries < 0 {
		return nil, errors.New("max pages and captcha retries must not be negative")
	}
	if cfg.FlushRetryDelay <= 0 {
		cfg.FlushRetryDelay = 5 * time.Second
	}
	if cfg.FinalFlushTimeout <= 0 {
		cfg.FinalFlushTimeout = 30 * time.Second
	}
	o := &Orchestrator{
		cfg:       cfg,
		fetcher:   fetcher,
		extractor: extractor,
		resolver:  resolver,
		writer:    writer,
		sleep:     throttle.Sleep,
		log:       zap.NewNop(),
		state:     StateInit,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.waiter == nil {
		o.waiter = throttle.New(0)
	}
	return o, nil
}

// State is the current state. It is only meaningful between or after runs.
func (o *Orchestrator) State() State { return o.state }

func (o *Orchestrator) transition(to State) {
	from := o.state
	if from == to {
		return
	}
	o.state = to
	o.log.Debug("state", zap.String("from", string(from)), zap.String("to", string(to)))
	if o.hook != nil {
		o.hook(from, to)
	}
}

// Run scrapes from the start page until the last page, an empty page, a fatal error or
// cancellation of ctx. It returns nil after Done, ErrInterrupted after cancellation and
// the fatal error after an abort.
func (o *Orchestrator) Run(ctx context.Context) (Summary, error) {
	sum := Summary{ResumePage: o.cfg.StartPage}
	page := o.cfg.StartPage

	if err := o.writer.Start(ctx, o.cfg.StartPage); err != nil {
		if ctx.Err() != nil {
			return o.interrupt(ctx, sum, page)
		}
		return o.abort(ctx, sum, page, err)
	}

	last := 0
	for {
		if last > 0 && page > last {
			break
		}
		if ctx.Err() != nil {
			return o.interrupt(ctx, sum, page)
		}

		o.transition(StateFetchingPage)
		p, err := o.fetch(ctx, page)
		if err != nil {
			if ctx.Err() != nil {
				return o.interrupt(ctx, sum, page)
			}
			return o.abort(ctx, sum, page, err)
		}
		if last == 0 {
			last = o.lastPage(p.TotalPages)
			o.log.Info("page range", zap.Int("first", o.cfg.StartPage), zap.Int("last", last), zap.Int("detected_total", p.TotalPages))
			if page > last {
				o.log.Info("start page is past the last page, nothing to do", zap.Int("start_page", page))
				break
			}
		}

		o.transition(StateExtracting)
		listings, err := o.extractor.Extract(p)
		if err != nil {
			o.dumpPage(p)
			return o.abort(ctx, sum, page, err)
		}
		o.metrics.Extracted(len(listings))
		o.log.Info("extracted listings", zap.Int("page", page), zap.Int("count", len(listings)))
		if len(listings) == 0 {
			o.log.Info("no listings on page, stopping", zap.Int("page", page))
			break
		}

		o.transition(StateResolving)
		for i, l := range listings {
			if i > 0 {
				if err := o.waiter.Wait(ctx, o.cfg.ListingDelay); err != nil {
					return o.interrupt(ctx, sum, page)
				}
			}
			rec := o.resolver.Resolve(ctx, l)
			if ctx.Err() != nil {
				// A lookup cut short by cancellation is incomplete; drop it.
				return o.interrupt(ctx, sum, page)
			}
			o.metrics.Contact(rec.Outcome.String())
			o.log.Info("resolved listing",
				zap.Int("page", page),
				zap.Int("index", i+1),
				zap.Int("of", len(listings)),
				zap.String("name", rec.Name),
				zap.String("outcome", rec.Outcome.String()),
			)

			if err := o.add(ctx, page, rec); err != nil {
				if ctx.Err() != nil {
					return o.interrupt(ctx, sum, page)
				}
				return o.abort(ctx, sum, page, err)
			}
			sum.Listings++
		}

		sum.Pages++
		page++
	}

	if o.writer.Pending() > 0 {
		o.transition(StateFlushing)
		if err := o.flushWithRetry(ctx); err != nil {
			if ctx.Err() != nil {
				return o.interrupt(ctx, sum, page)
			}
			return o.finish(sum, StateAborted, page, err)
		}
	}
	return o.finish(sum, StateDone, 0, nil)
}

func (o *Orchestrator) lastPage(total int) int {
	if total < 1 {
		total = 1
	}
	if o.cfg.MaxPages > 0 {
		if capped := o.cfg.StartPage + o.cfg.MaxPages - 1; capped < total {
			return capped
		}
	}
	return total
}

// fetch loads a page, waiting out a blocked challenge up to CaptchaRetries times.
func (o *Orchestrator) fetch(ctx context.Context, page int) (*core.Page, error) {
	for attempt := 0; ; attempt++ {
		p, err := o.fetcher.FetchPage(ctx, page)
		var blocked *core.CaptchaBlockedError
		if err == nil || !errors.As(err, &blocked) || attempt >= o.cfg.CaptchaRetries {
			return p, err
		}
		o.metrics.Captcha("cooldown")
		o.log.Warn("page blocked by captcha, cooling down",
			zap.Int("page", page),
			zap.Int("attempt", attempt+1),
			zap.Duration("cooldown", o.cfg.CaptchaCooldown),
		)
		if err := o.sleep(ctx, o.cfg.CaptchaCooldown); err != nil {
			return nil, err
		}
	}
}

func (o *Orchestrator) add(ctx context.Context, page int, rec listing.EnrichedListing) error {
	if o.writer.Pending() == 0 {
		o.pendingSince = page
	}
	if o.writer.Pending()+1 < o.writer.Threshold() {
		_, err := o.writer.Add(ctx, rec)
		return err
	}

	o.transition(StateFlushing)
	_, err := o.writer.Add(ctx, rec)
	if err != nil {
		var pe *core.PersistenceError
		if !errors.As(err, &pe) || ctx.Err() != nil {
			return err
		}
		o.log.Warn("flush failed, retrying once", zap.Duration("delay", o.cfg.FlushRetryDelay), zap.Error(err))
		if serr := o.sleep(ctx, o.cfg.FlushRetryDelay); serr != nil {
			return serr
		}
		if err := o.writer.Flush(ctx); err != nil {
			return err
		}
	}
	o.transition(StateResolving)
	return nil
}

func (o *Orchestrator) flushWithRetry(ctx context.Context) error {
	err := o.writer.Flush(ctx)
	if err == nil || ctx.Err() != nil {
		return err
	}
	o.log.Warn("flush failed, retrying once", zap.Duration("delay", o.cfg.FlushRetryDelay), zap.Error(err))
	if serr := o.sleep(ctx, o.cfg.FlushRetryDelay); serr != nil {
		return serr
	}
	return o.writer.Flush(ctx)
}

// finalFlush persists what is buffered after the run context is gone.
func (o *Orchestrator) finalFlush(ctx context.Context) {
	if o.writer.Pending() == 0 {
		return
	}
	o.transition(StateFlushing)
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.FinalFlushTimeout)
	defer cancel()
	if err := o.writer.Flush(fctx); err != nil {
		o.log.Error("final flush failed", zap.Int("lost_rows", o.writer.Pending()), zap.Error(err))
	}
}

func (o *Orchestrator) interrupt(ctx context.Context, sum Summary, page int) (Summary, error) {
	o.log.Warn("interrupted, flushing buffered rows", zap.Int("page", page), zap.Int("pending", o.writer.Pending()))
	o.finalFlush(ctx)
	return o.finish(sum, StateInterrupted, page, ErrInterrupted)
}

func (o *Orchestrator) abort(ctx context.Context, sum Summary, page int, cause error) (Summary, error) {
	o.log.Error("aborting run", zap.Int("page", page), zap.Error(cause))
	var pe *core.PersistenceError
	if !errors.As(cause, &pe) {
		o.finalFlush(ctx)
	}
	return o.finish(sum, StateAborted, page, cause)
}

func (o *Orchestrator) finish(sum Summary, state State, page int, err error) (Summary, error) {
	o.transition(state)
	sum.State = state
	sum.Written = o.writer.Written()
	sum.Lost = o.writer.Pending()
	switch {
	case state == StateDone:
		sum.ResumePage = 0
	case sum.Lost > 0:
		sum.ResumePage = o.pendingSince
	default:
		sum.ResumePage = page
	}
	o.metrics.Finished(string(state))
	o.log.Info("run finished",
		zap.String("state", string(state)),
		zap.Int("pages", sum.Pages),
		zap.Int("listings", sum.Listings),
		zap.Int("written", sum.Written),
		zap.Int("lost", sum.Lost),
		zap.Int("resume_page", sum.ResumePage),
	)
	return sum, err
}

func (o *Orchestrator) dumpPage(p *core.Page) {
	if o.cfg.DebugDir == "" || p == nil {
		return
	}
	if err := os.MkdirAll(o.cfg.DebugDir, 0755); err != nil {
		o.log.Warn("create debug dir", zap.Error(err))
		return
	}
	path := filepath.Join(o.cfg.DebugDir, fmt.Sprintf("page-%03d.html", p.Number))
	if err := os.WriteFile(path, []byte(p.HTML), 0644); err != nil {
		o.log.Warn("write debug page", zap.Error(err))
		return
	}
	o.log.Info("saved page markup for selector debugging", zap.String("path", path))
}
