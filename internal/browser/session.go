// Package browser owns the single Chrome session a run drives, through chromedp.
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// maskWebdriver runs before any page script so navigator.webdriver reads as undefined.
const maskWebdriver = `Object.defineProperty(navigator, 'webdriver', {get: () => undefined});
window.chrome = window.chrome || {runtime: {}};
Object.defineProperty(navigator, 'languages', {get: () => ['en-US', 'en']});`

type Options struct {
	Headless  bool
	ExecPath  string
	UserAgent string

	WindowWidth  int
	WindowHeight int

	// ExtraHeaders are sent with every request the browser makes.
	ExtraHeaders map[string]any

	// ScrollPause is the pause after each scroll step used to trigger lazy content.
	ScrollPause time.Duration

	Logger *zap.Logger
}

// Session is one browser tab reused for every navigation of a run. It is not safe for
// concurrent use.
type Session struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	opts        Options
	log         *zap.Logger
}

func allocatorOptions(o Options) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", o.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-notifications", true),
		chromedp.WindowSize(o.WindowWidth, o.WindowHeight),
	)
	if ua := strings.TrimSpace(o.UserAgent); ua != "" {
		opts = append(opts, chromedp.UserAgent(ua))
	}
	if p := strings.TrimSpace(o.ExecPath); p != "" {
		opts = append(opts, chromedp.ExecPath(p))
	}
	return opts
}

// Open starts Chrome and prepares the tab. The session lives until Close or until parent
// is cancelled.
func Open(parent context.Context, o Options) (*Session, error) {
	if o.WindowWidth <= 0 || o.WindowHeight <= 0 {
		o.WindowWidth, o.WindowHeight = 1920, 1080
	}
	if o.ScrollPause <= 0 {
		o.ScrollPause = 2 * time.Second
	}
	log := o.Logger
	if log == nil {
		log = zap.NewNop()
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(parent, allocatorOptions(o)...)
	sugar := log.Sugar()
	ctx, cancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(sugar.Debugf),
		chromedp.WithErrorf(sugar.Debugf),
	)

	s := &Session{ctx: ctx, cancel: cancel, allocCancel: allocCancel, opts: o, log: log}

	setup := chromedp.Tasks{
		network.Enable(),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(maskWebdriver).Do(ctx)
			return err
		}),
	}
	if len(o.ExtraHeaders) > 0 {
		setup = append(setup, network.SetExtraHTTPHeaders(network.Headers(o.ExtraHeaders)))
	}
	if err := chromedp.Run(ctx, setup); err != nil {
		s.Close()
		return nil, fmt.Errorf("start browser: %w", err)
	}
	log.Info("browser session started", zap.Bool("headless", o.Headless))
	return s, nil
}

// Close shuts the browser down.
func (s *Session) Close() {
	if s == nil {
		return
	}
	if s.cancel != nil {
		s.cancel()
	}
	if s.allocCancel != nil {
		s.allocCancel()
	}
}

// Navigate loads url, waits for the body and scrolls half-way and back.
func (s *Session) Navigate(ctx context.Context, url string) error {
	runCtx, cancel := bridge(s.ctx, ctx)
	defer cancel()

	err := chromedp.Run(runCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return s.scroll(runCtx)
}

func (s *Session) scroll(ctx context.Context) error {
	return chromedp.Run(ctx,
		chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight / 2)`, nil),
		chromedp.Sleep(s.opts.ScrollPause),
		chromedp.Evaluate(`window.scrollTo(0, 0)`, nil),
		chromedp.Sleep(s.opts.ScrollPause/2),
	)
}

// WaitFor waits up to timeout for selector. It reports whether the selector appeared.
func (s *Session) WaitFor(ctx context.Context, selector string, timeout time.Duration) bool {
	runCtx, cancel := bridge(s.ctx, ctx)
	defer cancel()
	waitCtx, waitCancel := context.WithTimeout(runCtx, timeout)
	defer waitCancel()
	return chromedp.Run(waitCtx, chromedp.WaitReady(selector, chromedp.ByQuery)) == nil
}

// HTML snapshots the rendered document.
func (s *Session) HTML(ctx context.Context) (string, error) {
	runCtx, cancel := bridge(s.ctx, ctx)
	defer cancel()

	var html string
	if err := chromedp.Run(runCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("snapshot html: %w", err)
	}
	return html, nil
}

// Eval runs script in the page and discards its result.
func (s *Session) Eval(ctx context.Context, script string) error {
	runCtx, cancel := bridge(s.ctx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, chromedp.Evaluate(script, nil))
}

// Listing wraps the session so each navigation also waits (bounded) for the listing
// markup to render.
func (s *Session) Listing(selector string, timeout time.Duration) *ListingTab {
	return &ListingTab{Session: s, selector: selector, timeout: timeout}
}

type ListingTab struct {
	*Session
	selector string
	timeout  time.Duration
}

func (t *ListingTab) Navigate(ctx context.Context, url string) error {
	if err := t.Session.Navigate(ctx, url); err != nil {
		return err
	}
	if t.selector != "" && t.timeout > 0 && !t.WaitFor(ctx, t.selector, t.timeout) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		t.log.Warn("listing markup did not appear, proceeding anyway",
			zap.String("url", url),
			zap.Duration("waited", t.timeout),
		)
	}
	return nil
}

// bridge derives a context from the browser context that also honours ctx's deadline
// and cancellation. chromedp actions must run on a context carrying the browser.
func bridge(browserCtx, ctx context.Context) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithCancelCause(browserCtx)
	var stopDeadline context.CancelFunc = func() {}
	if dl, ok := ctx.Deadline(); ok {
		var c context.Context
		c, stopDeadline = context.WithDeadline(runCtx, dl)
		runCtx = c
	}
	stop := context.AfterFunc(ctx, func() { cancel(context.Cause(ctx)) })
	return runCtx, func() {
		stop()
		stopDeadline()
		cancel(errors.New("browser action done"))
	}
}
