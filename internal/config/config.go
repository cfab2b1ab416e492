// Package config loads the run configuration from defaults, an optional YAML file,
// .env, the environment and CLI overrides, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/shpitdev/listing-enricher/internal/store"
	"github.com/shpitdev/listing-enricher/internal/throttle"
)

const EnvPrefix = "SCRAPER"

// DefaultConfigName is looked up in the working directory when no file is given.
const DefaultConfigName = "scraper"

// Config is the validated, read-only configuration of one run.
type Config struct {
	URLTemplate       string `mapstructure:"url_template"`
	StartPage         int    `mapstructure:"start_page"`
	MaxPages          int    `mapstructure:"max_pages"`
	DefaultTotalPages int    `mapstructure:"default_total_pages"`
	ProfilePath       string `mapstructure:"profile_path"`
	DebugDir          string `mapstructure:"debug_dir"`

	Headless           bool          `mapstructure:"headless"`
	ChromePath         string        `mapstructure:"chrome_path"`
	WindowWidth        int           `mapstructure:"window_width"`
	WindowHeight       int           `mapstructure:"window_height"`
	NavigationTimeout  time.Duration `mapstructure:"navigation_timeout"`
	NavigationRetries  int           `mapstructure:"navigation_retries"`
	BackoffInitial     time.Duration `mapstructure:"backoff_initial"`
	BackoffMax         time.Duration `mapstructure:"backoff_max"`
	ListingWaitTimeout time.Duration `mapstructure:"listing_wait_timeout"`
	SettleDelay        time.Duration `mapstructure:"settle_delay"`
	ManualSolve        bool          `mapstructure:"manual_solve"`

	PageDelayMin         time.Duration `mapstructure:"page_delay_min"`
	PageDelayMax         time.Duration `mapstructure:"page_delay_max"`
	ListingDelayMin      time.Duration `mapstructure:"listing_delay_min"`
	ListingDelayMax      time.Duration `mapstructure:"listing_delay_max"`
	WebsiteDelayMin      time.Duration `mapstructure:"website_delay_min"`
	WebsiteDelayMax      time.Duration `mapstructure:"website_delay_max"`
	SearchDelayMin       time.Duration `mapstructure:"search_delay_min"`
	SearchDelayMax       time.Duration `mapstructure:"search_delay_max"`
	MaxRequestsPerMinute float64       `mapstructure:"max_requests_per_minute"`

	WebsiteTimeout time.Duration `mapstructure:"website_timeout"`
	ProfileLookup  bool          `mapstructure:"profile_lookup"`
	SearchBackend  string        `mapstructure:"search_backend"`
	SearchURL      string        `mapstructure:"search_url"`
	SearchRetries  int           `mapstructure:"search_retries"`
	GeminiAPIKey   string        `mapstructure:"gemini_api_key"`
	GeminiModel    string        `mapstructure:"gemini_model"`
	GeminiBaseURL  string        `mapstructure:"gemini_base_url"`

	CaptchaAPIKey       string        `mapstructure:"captcha_api_key"`
	CaptchaBaseURL      string        `mapstructure:"captcha_base_url"`
	CaptchaPollInterval time.Duration `mapstructure:"captcha_poll_interval"`
	CaptchaTimeout      time.Duration `mapstructure:"captcha_timeout"`
	CaptchaRetries      int           `mapstructure:"captcha_retries"`
	CaptchaCooldown     time.Duration `mapstructure:"captcha_cooldown"`

	Output          string `mapstructure:"output"`
	SpreadsheetID   string `mapstructure:"spreadsheet_id"`
	Sheet           string `mapstructure:"sheet"`
	CredentialsFile string `mapstructure:"credentials_file"`
	SheetsEndpoint  string `mapstructure:"sheets_endpoint"`
	OutputPath      string `mapstructure:"output_path"`
	BatchSize       int    `mapstructure:"batch_size"`
	StoreRetries    int    `mapstructure:"store_retries"`

	LogLevel        string `mapstructure:"log_level"`
	LogFormat       string `mapstructure:"log_format"`
	LogFile         string `mapstructure:"log_file"`
	MetricsTextfile string `mapstructure:"metrics_textfile"`
}

const (
	SearchBrowser = "browser"
	SearchGemini  = "gemini"
	SearchNone    = "none"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("url_template", "")
	v.SetDefault("start_page", 1)
	v.SetDefault("max_pages", 0)
	v.SetDefault("default_total_pages", 105)
	v.SetDefault("profile_path", "")
	v.SetDefault("debug_dir", "")

	v.SetDefault("headless", true)
	v.SetDefault("chrome_path", "")
	v.SetDefault("window_width", 1920)
	v.SetDefault("window_height", 1080)
	v.SetDefault("navigation_timeout", 45*time.Second)
	v.SetDefault("navigation_retries", 2)
	v.SetDefault("backoff_initial", 2*time.Second)
	v.SetDefault("backoff_max", 30*time.Second)
	v.SetDefault("listing_wait_timeout", 15*time.Second)
	v.SetDefault("settle_delay", 3*time.Second)
	v.SetDefault("manual_solve", true)

	v.SetDefault("page_delay_min", 3*time.Second)
	v.SetDefault("page_delay_max", 8*time.Second)
	v.SetDefault("listing_delay_min", 2*time.Second)
	v.SetDefault("listing_delay_max", 5*time.Second)
	v.SetDefault("website_delay_min", 1*time.Second)
	v.SetDefault("website_delay_max", 3*time.Second)
	v.SetDefault("search_delay_min", 2*time.Second)
	v.SetDefault("search_delay_max", 4*time.Second)
	v.SetDefault("max_requests_per_minute", 0)

	v.SetDefault("website_timeout", 15*time.Second)
	v.SetDefault("profile_lookup", false)
	v.SetDefault("search_backend", SearchBrowser)
	v.SetDefault("search_url", "")
	v.SetDefault("search_retries", 2)
	v.SetDefault("gemini_api_key", "")
	v.SetDefault("gemini_model", "gemini-2.5-flash")
	v.SetDefault("gemini_base_url", "")

	v.SetDefault("captcha_api_key", "")
	v.SetDefault("captcha_base_url", "")
	v.SetDefault("captcha_poll_interval", 5*time.Second)
	v.SetDefault("captcha_timeout", 120*time.Second)
	v.SetDefault("captcha_retries", 1)
	v.SetDefault("captcha_cooldown", 60*time.Second)

	v.SetDefault("output", store.KindSheets)
	v.SetDefault("spreadsheet_id", "")
	v.SetDefault("sheet", "")
	v.SetDefault("credentials_file", "")
	v.SetDefault("sheets_endpoint", "")
	v.SetDefault("output_path", "")
	v.SetDefault("batch_size", store.DefaultThreshold)
	v.SetDefault("store_retries", 3)

	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("log_file", "")
	v.SetDefault("metrics_textfile", "")
}

// Unprefixed variables commonly set by other tooling.
var extraEnv = map[string]string{
	"captcha_api_key":  "CAPTCHA_API_KEY",
	"gemini_api_key":   "GEMINI_API_KEY",
	"gemini_model":     "GEMINI_MODEL",
	"credentials_file": "GOOGLE_APPLICATION_CREDENTIALS",
}

type LoadOptions struct {
	// ConfigFile is an explicit YAML file. It must exist when set.
	ConfigFile string
	// EnvFile is loaded into the process environment without overriding existing
	// variables. Empty means ".env"; a missing default file is ignored.
	EnvFile string
	// Overrides are applied last, keyed by config key (CLI flags).
	Overrides map[string]any
}

// Load resolves the configuration. It does not validate; call Validate or ValidateRun.
func Load(o LoadOptions) (Config, error) {
	if err := loadEnvFile(o.EnvFile); err != nil {
		return Config{}, err
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	for key, env := range extraEnv {
		if err := v.BindEnv(key, EnvPrefix+"_"+strings.ToUpper(key), env); err != nil {
			return Config{}, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	if f := strings.TrimSpace(o.ConfigFile); f != "" {
		v.SetConfigFile(f)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", f, err)
		}
	} else {
		v.SetConfigName(DefaultConfigName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	for key, val := range o.Overrides {
		v.Set(key, val)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalize()
	return cfg, nil
}

func loadEnvFile(path string) error {
	explicit := strings.TrimSpace(path) != ""
	if !explicit {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		if explicit {
			return fmt.Errorf("env file: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func (c *Config) normalize() {
	c.URLTemplate = strings.TrimSpace(c.URLTemplate)
	c.SearchBackend = strings.ToLower(strings.TrimSpace(c.SearchBackend))
	c.CaptchaAPIKey = strings.TrimSpace(c.CaptchaAPIKey)
	c.GeminiAPIKey = strings.TrimSpace(c.GeminiAPIKey)
	c.SpreadsheetID = strings.TrimSpace(c.SpreadsheetID)
	if kind, err := store.NormalizeKind(c.Output); err == nil {
		c.Output = kind
	}
}

// Validate checks values every subcommand relies on.
func (c Config) Validate() error {
	var errs []error
	if c.StartPage < 1 {
		errs = append(errs, fmt.Errorf("start_page must be >= 1 (got %d)", c.StartPage))
	}
	if c.MaxPages < 0 {
		errs = append(errs, fmt.Errorf("max_pages must be >= 0 (got %d)", c.MaxPages))
	}
	if c.DefaultTotalPages < 1 {
		errs = append(errs, fmt.Errorf("default_total_pages must be >= 1 (got %d)", c.DefaultTotalPages))
	}
	if c.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("batch_size must be >= 1 (got %d)", c.BatchSize))
	}
	if c.NavigationRetries < 0 || c.CaptchaRetries < 0 || c.SearchRetries < 0 {
		errs = append(errs, errors.New("retry counts must be >= 0"))
	}
	if c.NavigationTimeout <= 0 || c.WebsiteTimeout <= 0 || c.CaptchaTimeout <= 0 {
		errs = append(errs, errors.New("navigation_timeout, website_timeout and captcha_timeout must be > 0"))
	}
	if c.MaxRequestsPerMinute < 0 {
		errs = append(errs, fmt.Errorf("max_requests_per_minute must be >= 0 (got %v)", c.MaxRequestsPerMinute))
	}
	for name, r := range map[string]throttle.Range{
		"page_delay":    c.PageDelay(),
		"listing_delay": c.ListingDelay(),
		"website_delay": c.WebsiteDelay(),
		"search_delay":  c.SearchDelay(),
	} {
		if err := r.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	switch c.SearchBackend {
	case SearchBrowser, SearchNone:
	case SearchGemini:
		if c.GeminiAPIKey == "" {
			errs = append(errs, errors.New("search_backend=gemini requires GEMINI_API_KEY"))
		}
		if strings.TrimSpace(c.GeminiModel) == "" {
			errs = append(errs, errors.New("search_backend=gemini requires gemini_model"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown search_backend %q (want browser, gemini or none)", c.SearchBackend))
	}
	switch strings.ToLower(strings.TrimSpace(c.LogFormat)) {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("unknown log_format %q (want json or console)", c.LogFormat))
	}
	return errors.Join(errs...)
}

// ValidateOutput checks the destination settings.
func (c Config) ValidateOutput() error {
	kind, err := store.NormalizeKind(c.Output)
	if err != nil {
		return err
	}
	switch kind {
	case store.KindSheets:
		if c.SpreadsheetID == "" {
			return errors.New("spreadsheet_id is required for output=sheets")
		}
	default:
		if strings.TrimSpace(c.OutputPath) == "" {
			return fmt.Errorf("output_path is required for output=%s", kind)
		}
	}
	return nil
}

// ValidateRun checks everything the scrape pipeline needs.
func (c Config) ValidateRun() error {
	var errs []error
	if err := c.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.URLTemplate == "" {
		errs = append(errs, errors.New("url_template is required"))
	} else if !strings.HasPrefix(c.URLTemplate, "http://") && !strings.HasPrefix(c.URLTemplate, "https://") {
		errs = append(errs, fmt.Errorf("url_template must be an http(s) URL (got %q)", c.URLTemplate))
	}
	if err := c.ValidateOutput(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c Config) PageDelay() throttle.Range {
	return throttle.Range{Min: c.PageDelayMin, Max: c.PageDelayMax}
}

func (c Config) ListingDelay() throttle.Range {
	return throttle.Range{Min: c.ListingDelayMin, Max: c.ListingDelayMax}
}

func (c Config) WebsiteDelay() throttle.Range {
	return throttle.Range{Min: c.WebsiteDelayMin, Max: c.WebsiteDelayMax}
}

func (c Config) SearchDelay() throttle.Range {
	return throttle.Range{Min: c.SearchDelayMin, Max: c.SearchDelayMax}
}

// Fields summarizes the configuration for the startup log line, without secrets.
func (c Config) Fields() []zap.Field {
	return []zap.Field{
		zap.String("url_template", c.URLTemplate),
		zap.Int("start_page", c.StartPage),
		zap.Int("max_pages", c.MaxPages),
		zap.Bool("headless", c.Headless),
		zap.String("output", c.Output),
		zap.Int("batch_size", c.BatchSize),
		zap.String("search_backend", c.SearchBackend),
		zap.Bool("captcha_solver", c.CaptchaAPIKey != ""),
		zap.Bool("profile_lookup", c.ProfileLookup),
		zap.Stringer("page_delay", c.PageDelay()),
		zap.Stringer("listing_delay", c.ListingDelay()),
	}
}
