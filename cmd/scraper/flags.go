package main

import (
	"flag"
	"fmt"
	"strings"

	"github.com/shpitdev/listing-enricher/internal/config"
)

// commonFlags are accepted by every subcommand. Only flags given on the command line
// override the loaded configuration.
type commonFlags struct {
	fs      *flag.FlagSet
	cfgFile string
	envFile string
	keys    map[string]string
}

func newCommonFlags(fs *flag.FlagSet) *commonFlags {
	c := &commonFlags{fs: fs, keys: make(map[string]string)}
	fs.StringVar(&c.cfgFile, "config", "", "YAML config file (default: ./scraper.yaml when present)")
	fs.StringVar(&c.envFile, "env-file", "", "dotenv file loaded before reading the environment (default: ./.env when present)")

	c.str("url", "url_template", "Results URL; {page} is replaced by the page number")
	c.str("start-page", "start_page", "Page to start from; >1 resumes without clearing the output")
	c.str("max-pages", "max_pages", "Stop after this many pages (0 = all)")
	c.str("headless", "headless", "Run Chrome headless (true/false)")
	c.str("chrome-path", "chrome_path", "Chrome/Chromium executable")
	c.str("profile", "profile_path", "Selector profile YAML overriding the built-in one")
	c.str("output", "output", "Output kind: sheets, csv or xlsx")
	c.str("spreadsheet-id", "spreadsheet_id", "Google spreadsheet id")
	c.str("sheet", "sheet", "Sheet (tab) name; default is the first tab")
	c.str("credentials", "credentials_file", "Service-account JSON for the spreadsheet")
	c.str("sheets-endpoint", "sheets_endpoint", "Sheets API base URL override (mock server)")
	c.str("output-path", "output_path", "Output file for csv/xlsx")
	c.str("batch-size", "batch_size", "Rows buffered before each append")
	c.str("captcha-api-key", "captcha_api_key", "Captcha-solving service key")
	c.str("search", "search_backend", "Phone search fallback: browser, gemini or none")
	c.str("profile-lookup", "profile_lookup", "Open listing profiles to find missing websites (true/false)")
	c.str("debug-dir", "debug_dir", "Directory for markup of pages that fail extraction")
	c.str("metrics-textfile", "metrics_textfile", "Write Prometheus metrics here at the end of the run")
	c.str("log-level", "log_level", "debug, info, warn or error")
	c.str("log-format", "log_format", "json or console")
	c.str("log-file", "log_file", "Also write JSON logs to this rotated file")
	return c
}

func (c *commonFlags) str(name, key, usage string) {
	c.keys[name] = key
	c.fs.String(name, "", fmt.Sprintf("%s (env: %s_%s)", usage, config.EnvPrefix, strings.ToUpper(key)))
}

// load resolves the configuration with explicitly set flags applied last.
func (c *commonFlags) load() (config.Config, error) {
	overrides := map[string]any{}
	c.fs.Visit(func(f *flag.Flag) {
		if key, ok := c.keys[f.Name]; ok {
			overrides[key] = f.Value.String()
		}
	})
	return config.Load(config.LoadOptions{
		ConfigFile: c.cfgFile,
		EnvFile:    c.envFile,
		Overrides:  overrides,
	})
}
