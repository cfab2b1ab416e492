package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shpitdev/listing-enricher/internal/captcha"
	"github.com/shpitdev/listing-enricher/internal/extract"
	"github.com/shpitdev/listing-enricher/internal/store"
	"github.com/shpitdev/listing-enricher/pkg/redact"
)

func runCheck(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	common := newCommonFlags(fs)
	timeout := fs.Duration("timeout", 30*time.Second, "Overall timeout for the checks")
	if err := fs.Parse(args); err != nil {
		return exitConfig
	}

	cfg, err := common.load()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %s\n", redact.Secrets(err.Error()))
		return exitConfig
	}
	if err := cfg.Validate(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %s\n", redact.Secrets(err.Error()))
		return exitConfig
	}
	if err := cfg.ValidateOutput(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %s\n", redact.Secrets(err.Error()))
		return exitConfig
	}

	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	failed := false
	report := func(name string, err error, detail string) {
		if err != nil {
			failed = true
			_, _ = fmt.Fprintf(os.Stdout, "FAIL  %-9s %s\n", name, redact.Secrets(err.Error()))
			return
		}
		_, _ = fmt.Fprintf(os.Stdout, "ok    %-9s %s\n", name, detail)
	}

	if _, err := extract.LoadProfile(cfg.ProfilePath); err != nil {
		report("selectors", err, "")
	} else {
		src := "built-in"
		if cfg.ProfilePath != "" {
			src = cfg.ProfilePath
		}
		report("selectors", nil, src)
	}

	switch cfg.Output {
	case store.KindSheets:
		s, err := store.NewSheets(ctx, store.SheetsConfig{
			SpreadsheetID:   cfg.SpreadsheetID,
			Sheet:           cfg.Sheet,
			CredentialsFile: cfg.CredentialsFile,
			Endpoint:        cfg.SheetsEndpoint,
			Retries:         -1,
		})
		if err != nil {
			report("output", err, "")
			break
		}
		info, err := s.Info(ctx)
		report("output", err, fmt.Sprintf("spreadsheet %q tabs=%v", info.Title, info.Sheets))
	default:
		dir := filepath.Dir(cfg.OutputPath)
		st, err := os.Stat(dir)
		if err == nil && !st.IsDir() {
			err = fmt.Errorf("%s is not a directory", dir)
		}
		if os.IsNotExist(err) {
			// Created on first write.
			err = nil
		}
		report("output", err, fmt.Sprintf("%s file %s", cfg.Output, cfg.OutputPath))
	}

	if cfg.CaptchaAPIKey == "" {
		_, _ = fmt.Fprintf(os.Stdout, "skip  %-9s no CAPTCHA_API_KEY; challenges need a visible browser\n", "captcha")
	} else {
		c, err := captcha.NewClient(captcha.ClientConfig{APIKey: cfg.CaptchaAPIKey, BaseURL: cfg.CaptchaBaseURL})
		if err != nil {
			report("captcha", err, "")
		} else {
			bal, err := c.Balance(ctx)
			report("captcha", err, fmt.Sprintf("balance %.2f", bal))
		}
	}

	if failed {
		return exitFailed
	}
	return exitOK
}
