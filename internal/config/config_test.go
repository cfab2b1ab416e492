package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shpitdev/listing-enricher/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load(config.LoadOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1, cfg.StartPage)
	assert.Equal(t, 105, cfg.DefaultTotalPages)
	assert.Equal(t, 10, cfg.BatchSize)
	assert.True(t, cfg.Headless)
	assert.Equal(t, 45*time.Second, cfg.NavigationTimeout)
	assert.Equal(t, 5*time.Second, cfg.CaptchaPollInterval)
	assert.Equal(t, 120*time.Second, cfg.CaptchaTimeout)
	assert.Equal(t, "sheets", cfg.Output)
	assert.Equal(t, "browser", cfg.SearchBackend)
	require.NoError(t, cfg.Validate())
	require.Error(t, cfg.ValidateRun())
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("SCRAPER_URL_TEMPLATE", "https://listings.test/c/plumbers?page={page}")
	t.Setenv("SCRAPER_START_PAGE", "7")
	t.Setenv("SCRAPER_HEADLESS", "false")
	t.Setenv("SCRAPER_PAGE_DELAY_MIN", "500ms")
	t.Setenv("SCRAPER_PAGE_DELAY_MAX", "1s")
	t.Setenv("SCRAPER_OUTPUT", "Google Sheets")
	t.Setenv("SCRAPER_SPREADSHEET_ID", "sheet-1")
	t.Setenv("CAPTCHA_API_KEY", "captcha-secret")
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "/secrets/sa.json")

	cfg, err := config.Load(config.LoadOptions{})
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.StartPage)
	assert.False(t, cfg.Headless)
	assert.Equal(t, 500*time.Millisecond, cfg.PageDelay().Min)
	assert.Equal(t, time.Second, cfg.PageDelay().Max)
	assert.Equal(t, "sheets", cfg.Output)
	assert.Equal(t, "captcha-secret", cfg.CaptchaAPIKey)
	assert.Equal(t, "/secrets/sa.json", cfg.CredentialsFile)
	require.NoError(t, cfg.ValidateRun())
}

func TestLoad_PrefixedKeyWinsOverBare(t *testing.T) {
	t.Setenv("CAPTCHA_API_KEY", "bare")
	t.Setenv("SCRAPER_CAPTCHA_API_KEY", "prefixed")

	cfg, err := config.Load(config.LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, "prefixed", cfg.CaptchaAPIKey)
}

func TestLoad_FileThenEnvThenOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scraper.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
url_template: https://listings.test/c/roofers
max_pages: 3
batch_size: 25
output: csv
output_path: out/listings.csv
listing_delay_min: 0s
listing_delay_max: 0s
`), 0644))

	t.Setenv("SCRAPER_MAX_PAGES", "4")

	cfg, err := config.Load(config.LoadOptions{
		ConfigFile: path,
		Overrides:  map[string]any{"start_page": "2"},
	})
	require.NoError(t, err)

	assert.Equal(t, "https://listings.test/c/roofers", cfg.URLTemplate)
	assert.Equal(t, 4, cfg.MaxPages)
	assert.Equal(t, 25, cfg.BatchSize)
	assert.Equal(t, 2, cfg.StartPage)
	assert.Equal(t, "csv", cfg.Output)
	assert.Zero(t, cfg.ListingDelay().Max)
	require.NoError(t, cfg.ValidateRun())
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := config.Load(config.LoadOptions{ConfigFile: filepath.Join(t.TempDir(), "nope.yaml")})
	require.Error(t, err)
}

func TestLoad_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("SCRAPER_DEBUG_DIR=/tmp/scraper-debug\n"), 0644))
	t.Cleanup(func() { _ = os.Unsetenv("SCRAPER_DEBUG_DIR") })

	cfg, err := config.Load(config.LoadOptions{EnvFile: path})
	require.NoError(t, err)
	assert.Equal(t, "/tmp/scraper-debug", cfg.DebugDir)

	_, err = config.Load(config.LoadOptions{EnvFile: filepath.Join(t.TempDir(), "missing.env")})
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func(t *testing.T) config.Config {
		t.Helper()
		cfg, err := config.Load(config.LoadOptions{Overrides: map[string]any{
			"url_template":   "https://listings.test/c/plumbers",
			"spreadsheet_id": "sheet-1",
		}})
		require.NoError(t, err)
		require.NoError(t, cfg.ValidateRun())
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"start page zero", func(c *config.Config) { c.StartPage = 0 }},
		{"negative max pages", func(c *config.Config) { c.MaxPages = -1 }},
		{"zero batch", func(c *config.Config) { c.BatchSize = 0 }},
		{"inverted delay", func(c *config.Config) { c.PageDelayMin, c.PageDelayMax = 5*time.Second, time.Second }},
		{"unknown search backend", func(c *config.Config) { c.SearchBackend = "bing" }},
		{"gemini without key", func(c *config.Config) { c.SearchBackend = "gemini"; c.GeminiAPIKey = "" }},
		{"relative url", func(c *config.Config) { c.URLTemplate = "listings.test/c/plumbers" }},
		{"missing url", func(c *config.Config) { c.URLTemplate = "" }},
		{"sheets without id", func(c *config.Config) { c.SpreadsheetID = "" }},
		{"csv without path", func(c *config.Config) { c.Output = "csv" }},
		{"unknown output", func(c *config.Config) { c.Output = "parquet" }},
		{"bad log format", func(c *config.Config) { c.LogFormat = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base(t)
			tt.mutate(&cfg)
			require.Error(t, cfg.ValidateRun())
		})
	}
}

func TestFields_OmitSecrets(t *testing.T) {
	cfg, err := config.Load(config.LoadOptions{Overrides: map[string]any{"captcha_api_key": "super-secret"}})
	require.NoError(t, err)
	for _, f := range cfg.Fields() {
		assert.NotEqual(t, "super-secret", f.String)
	}
}
