package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/shpitdev/listing-enricher/internal/captcha"
	"github.com/shpitdev/listing-enricher/internal/core"
	"github.com/shpitdev/listing-enricher/internal/extract"
)

func runExtract(args []string, out io.Writer) int {
	fs := flag.NewFlagSet("extract", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	htmlPath := fs.String("html", "", "Saved results page (required)")
	profilePath := fs.String("profile", "", "Selector profile YAML (default: built-in)")
	pageURL := fs.String("url", "", "URL the page was saved from; resolves relative profile links")
	if err := fs.Parse(args); err != nil {
		return exitConfig
	}
	if *htmlPath == "" {
		_, _ = fmt.Fprintln(os.Stderr, "extract requires --html")
		return exitConfig
	}

	profile, err := extract.LoadProfile(*profilePath)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		return exitConfig
	}
	ext, err := extract.New(profile, zap.NewNop())
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		return exitConfig
	}
	b, err := os.ReadFile(*htmlPath)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "read page: %v\n", err)
		return exitFailed
	}
	html := string(b)

	if ch, ok := captcha.NewDetector(profile.Captcha).Detect(*pageURL, html); ok {
		_, _ = fmt.Fprintf(out, "captcha: kind=%s marker=%q sitekey=%q\n", ch.Kind, ch.Marker, ch.SiteKey)
	}
	if total, ok := ext.TotalPages(html); ok {
		_, _ = fmt.Fprintf(out, "total pages: %d\n", total)
	} else {
		_, _ = fmt.Fprintln(out, "total pages: not found")
	}

	listings, err := ext.Extract(&core.Page{Number: 1, URL: *pageURL, HTML: html})
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "extract: %v\n", err)
		return exitFailed
	}
	_, _ = fmt.Fprintf(out, "listings: %d\n", len(listings))
	for i, l := range listings {
		_, _ = fmt.Fprintf(out, "%3d. %s\n", i+1, extract.Describe(l))
		if l.ProfileURL != "" {
			_, _ = fmt.Fprintf(out, "     profile: %s\n", l.ProfileURL)
		}
	}
	return exitOK
}
