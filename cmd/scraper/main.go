package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/shpitdev/listing-enricher/internal/version"
)

// Exit codes.
const (
	exitOK          = 0
	exitFailed      = 1
	exitConfig      = 2
	exitInterrupted = 130
)

func main() {
	ctx := context.Background()

	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(exitConfig)
	}

	switch os.Args[1] {
	case "help", "-h", "--help":
		usage(os.Stdout)
		return
	case "version", "--version":
		_, _ = fmt.Fprintln(os.Stdout, version.Current)
		return
	case "run":
		os.Exit(runScrape(ctx, os.Args[2:]))
	case "check":
		os.Exit(runCheck(ctx, os.Args[2:]))
	case "extract":
		os.Exit(runExtract(os.Args[2:], os.Stdout))
	default:
		_, _ = fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		usage(os.Stderr)
		os.Exit(exitConfig)
	}
}

func usage(w io.Writer) {
	_, _ = fmt.Fprintf(w, `scraper %s: paginated listing scraper with contact enrichment

Usage:
  scraper <command> [flags]

Commands:
  run      Scrape every results page, enrich each listing and append rows to the output
  check    Verify the output destination and the captcha-solving account
  extract  Parse a saved results page and print the listings (selector maintenance)
  version  Print the version

Examples:
  scraper run --url 'https://www.example.com/c.Plumbing.Elizabeth.NJ.-12060.html' --spreadsheet-id 1AbC...
  scraper run --start-page 42 --headless=false
  scraper check --config scraper.yaml
  scraper extract --html debug/page-003.html

Configuration is read from defaults, then scraper.yaml (or --config), then .env and the
environment (SCRAPER_<KEY>), then flags. Run 'scraper run -h' for the flag list.

Environment (credentials):
  GOOGLE_APPLICATION_CREDENTIALS  Service-account JSON for the spreadsheet
  CAPTCHA_API_KEY                 Captcha-solving service key (optional)
  GEMINI_API_KEY                  Gemini key for search_backend=gemini

Exit codes:
  0 done, 1 aborted, 2 configuration error, 130 interrupted (resume with --start-page)

`, version.Current)
}
