package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/shpitdev/listing-enricher/internal/browser"
	"github.com/shpitdev/listing-enricher/internal/captcha"
	"github.com/shpitdev/listing-enricher/internal/config"
	"github.com/shpitdev/listing-enricher/internal/contact"
	"github.com/shpitdev/listing-enricher/internal/extract"
	"github.com/shpitdev/listing-enricher/internal/fetch"
	"github.com/shpitdev/listing-enricher/internal/logging"
	"github.com/shpitdev/listing-enricher/internal/metrics"
	"github.com/shpitdev/listing-enricher/internal/pipeline"
	"github.com/shpitdev/listing-enricher/internal/search"
	"github.com/shpitdev/listing-enricher/internal/store"
	"github.com/shpitdev/listing-enricher/internal/throttle"
	"github.com/shpitdev/listing-enricher/internal/useragent"
	"github.com/shpitdev/listing-enricher/pkg/redact"
)

func runScrape(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	common := newCommonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return exitConfig
	}

	cfg, err := common.load()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %s\n", redact.Secrets(err.Error()))
		return exitConfig
	}
	if err := cfg.ValidateRun(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %s\n", redact.Secrets(err.Error()))
		return exitConfig
	}

	log, closeLog, err := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile})
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %s\n", redact.Secrets(err.Error()))
		return exitConfig
	}
	defer closeLog()
	log = logging.WithRun(log, logging.NewRunID())
	log.Info("starting run", cfg.Fields()...)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	orch, cleanup, err := wire(ctx, cfg, m, log)
	if err != nil {
		log.Error("setup failed", zap.String("error", redact.Secrets(err.Error())))
		_, _ = fmt.Fprintf(os.Stderr, "setup failed: %s\n", redact.Secrets(err.Error()))
		var cerr configError
		if errors.As(err, &cerr) {
			return exitConfig
		}
		return exitFailed
	}
	defer cleanup()

	sum, runErr := orch.Run(ctx)

	if cfg.MetricsTextfile != "" {
		if err := m.WriteTextfile(cfg.MetricsTextfile); err != nil {
			log.Warn("write metrics textfile", zap.Error(err))
		}
	}

	_, _ = fmt.Fprintf(os.Stdout, "state=%s pages=%d listings=%d written=%d lost=%d\n",
		sum.State, sum.Pages, sum.Listings, sum.Written, sum.Lost)

	switch {
	case runErr == nil:
		return exitOK
	case errors.Is(runErr, pipeline.ErrInterrupted):
		_, _ = fmt.Fprintf(os.Stderr, "interrupted; resume with --start-page %d\n", sum.ResumePage)
		return exitInterrupted
	default:
		_, _ = fmt.Fprintf(os.Stderr, "run aborted: %s\nresume with --start-page %d\n", redact.Secrets(runErr.Error()), sum.ResumePage)
		return exitFailed
	}
}

// configError marks setup failures caused by configuration rather than the environment.
type configError struct{ err error }

func (e configError) Error() string { return e.err.Error() }
func (e configError) Unwrap() error { return e.err }

// wire builds the run's components. The returned cleanup closes the browser.
func wire(ctx context.Context, cfg config.Config, m *metrics.Metrics, log *zap.Logger) (*pipeline.Orchestrator, func(), error) {
	profile, err := extract.LoadProfile(cfg.ProfilePath)
	if err != nil {
		return nil, nil, configError{err}
	}
	ext, err := extract.New(profile, log.Named("extract"))
	if err != nil {
		return nil, nil, configError{err}
	}
	detector := captcha.NewDetector(profile.Captcha)
	delayer := throttle.New(cfg.MaxRequestsPerMinute)

	dest, err := store.Open(ctx, store.Config{
		Kind:            cfg.Output,
		SpreadsheetID:   cfg.SpreadsheetID,
		Sheet:           cfg.Sheet,
		CredentialsFile: cfg.CredentialsFile,
		Endpoint:        cfg.SheetsEndpoint,
		Retries:         cfg.StoreRetries,
		Path:            cfg.OutputPath,
		Logger:          log.Named("store"),
	})
	if err != nil {
		return nil, nil, configError{err}
	}
	writer := store.NewBatchWriter(dest,
		store.WithThreshold(cfg.BatchSize),
		store.WithMetrics(m),
		store.WithLogger(log.Named("store")),
	)

	var solver *captcha.Client
	if cfg.CaptchaAPIKey != "" {
		solver, err = captcha.NewClient(captcha.ClientConfig{
			APIKey:       cfg.CaptchaAPIKey,
			BaseURL:      cfg.CaptchaBaseURL,
			PollInterval: cfg.CaptchaPollInterval,
			Timeout:      cfg.CaptchaTimeout,
			Logger:       log.Named("captcha"),
		})
		if err != nil {
			return nil, nil, configError{err}
		}
	}

	ua := useragent.Picker{}
	sess, err := browser.Open(ctx, browser.Options{
		Headless:     cfg.Headless,
		ExecPath:     cfg.ChromePath,
		UserAgent:    ua.UserAgent(),
		WindowWidth:  cfg.WindowWidth,
		WindowHeight: cfg.WindowHeight,
		ExtraHeaders: ua.Extra(),
		Logger:       log.Named("browser"),
	})
	if err != nil {
		return nil, nil, err
	}
	fail := func(err error) (*pipeline.Orchestrator, func(), error) {
		sess.Close()
		return nil, nil, err
	}

	fetchOpts := []fetch.Option{
		fetch.WithWaiter(delayer),
		fetch.WithMetrics(m),
		fetch.WithLogger(log.Named("fetch")),
	}
	if solver != nil {
		fetchOpts = append(fetchOpts, fetch.WithSolver(solver))
	}
	if !cfg.Headless && cfg.ManualSolve {
		fetchOpts = append(fetchOpts, fetch.WithOperator(fetch.NewConsoleOperator(os.Stdin, os.Stdout)))
	}
	fetcher, err := fetch.New(fetch.Config{
		URLTemplate:       cfg.URLTemplate,
		DefaultTotalPages: cfg.DefaultTotalPages,
		Headless:          cfg.Headless,
		PageDelay:         cfg.PageDelay(),
		SettleDelay:       cfg.SettleDelay,
		NavigationTimeout: cfg.NavigationTimeout,
		NavigationRetries: cfg.NavigationRetries,
		BackoffInitial:    cfg.BackoffInitial,
		BackoffMax:        cfg.BackoffMax,
	}, sess.Listing(profile.Results, cfg.ListingWaitTimeout), ext, detector, fetchOpts...)
	if err != nil {
		return fail(configError{err})
	}

	resolverOpts := []contact.Option{
		contact.WithWaiter(delayer),
		contact.WithMetrics(m),
		contact.WithLogger(log.Named("contact")),
	}
	switch cfg.SearchBackend {
	case config.SearchBrowser:
		sb, err := search.NewBrowser(sess, detector, cfg.SearchURL, log.Named("search"))
		if err != nil {
			return fail(err)
		}
		resolverOpts = append(resolverOpts, contact.WithSearch(sb))
	case config.SearchGemini:
		g, err := search.NewGemini(ctx, search.GeminiConfig{
			APIKey:  cfg.GeminiAPIKey,
			Model:   cfg.GeminiModel,
			BaseURL: cfg.GeminiBaseURL,
			Retries: cfg.SearchRetries,
			Timeout: cfg.WebsiteTimeout * 2,
			Logger:  log.Named("search"),
		})
		if err != nil {
			return fail(configError{err})
		}
		resolverOpts = append(resolverOpts, contact.WithSearch(g))
	}
	if cfg.ProfileLookup {
		resolverOpts = append(resolverOpts, contact.WithProfileLookup(
			fetch.NewProfileWebsites(sess, ext.SkipHost, delayer, cfg.WebsiteDelay()),
		))
	}
	resolver := contact.NewResolver(contact.Config{
		WebsiteDelay: cfg.WebsiteDelay(),
		SearchDelay:  cfg.SearchDelay(),
	}, contact.NewHTTPSiteFetcher(cfg.WebsiteTimeout, nil), resolverOpts...)

	orch, err := pipeline.New(pipeline.Config{
		StartPage:       cfg.StartPage,
		MaxPages:        cfg.MaxPages,
		ListingDelay:    cfg.ListingDelay(),
		CaptchaRetries:  cfg.CaptchaRetries,
		CaptchaCooldown: cfg.CaptchaCooldown,
		DebugDir:        cfg.DebugDir,
	}, fetcher, ext, resolver, writer,
		pipeline.WithWaiter(delayer),
		pipeline.WithMetrics(m),
		pipeline.WithLogger(log.Named("pipeline")),
	)
	if err != nil {
		return fail(configError{err})
	}
	return orch, sess.Close, nil
}
