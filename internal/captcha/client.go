package captcha

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/shpitdev/listing-enricher/internal/core"
	"github.com/shpitdev/listing-enricher/pkg/httperr"
	"github.com/shpitdev/listing-enricher/pkg/redact"
)

const (
	DefaultBaseURL      = "https://2captcha.com"
	DefaultPollInterval = 5 * time.Second
	DefaultTimeout      = 120 * time.Second

	notReady = "CAPCHA_NOT_READY"
)

// ErrSolveTimeout is returned when no token arrives within the configured timeout.
var ErrSolveTimeout = errors.New("captcha: solving timed out")

// APIError is an error code returned by the solving service.
type APIError struct {
	Op   string
	Code string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("captcha service: op=%s code=%s", e.Op, e.Code)
}

type ClientConfig struct {
	APIKey string

	// BaseURL overrides the service URL. Useful for compatible services and testing.
	BaseURL      string
	PollInterval time.Duration
	Timeout      time.Duration

	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client talks to the in.php/res.php JSON API.
type Client struct {
	apiKey       string
	baseURL      string
	pollInterval time.Duration
	timeout      time.Duration
	http         *http.Client
	log          *zap.Logger
}

func NewClient(cfg ClientConfig) (*Client, error) {
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, fmt.Errorf("captcha api key is required")
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("invalid captcha base url: %w", err)
	}
	c := &Client{
		apiKey:       key,
		baseURL:      base,
		pollInterval: cfg.PollInterval,
		timeout:      cfg.Timeout,
		http:         cfg.HTTPClient,
		log:          cfg.Logger,
	}
	if c.pollInterval <= 0 {
		c.pollInterval = DefaultPollInterval
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 30 * time.Second}
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	return c, nil
}

// response is the service's JSON envelope. request is a string for task IDs, tokens and
// error codes, and may be a bare number for balance queries.
type response struct {
	Status  int         `json:"status"`
	Request flexibleStr `json:"request"`
}

type flexibleStr string

func (f *flexibleStr) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexibleStr(s)
		return nil
	}
	*f = flexibleStr(string(b))
	return nil
}

// Solve submits the challenge and polls until a token is ready.
func (c *Client) Solve(ctx context.Context, ch Challenge) (string, error) {
	if !ch.Solvable() {
		return "", fmt.Errorf("captcha: challenge kind=%s has no site key", ch.Kind)
	}

	form := url.Values{}
	form.Set("key", c.apiKey)
	form.Set("pageurl", ch.PageURL)
	form.Set("json", "1")
	switch ch.Kind {
	case KindTurnstile:
		form.Set("method", "turnstile")
		form.Set("sitekey", ch.SiteKey)
	case KindRecaptchaV2:
		form.Set("method", "userrecaptcha")
		form.Set("googlekey", ch.SiteKey)
	case KindHCaptcha:
		form.Set("method", "hcaptcha")
		form.Set("sitekey", ch.SiteKey)
	default:
		return "", fmt.Errorf("captcha: unsupported challenge kind %q", ch.Kind)
	}

	submitted, err := c.call(ctx, "submit", http.MethodPost, c.baseURL+"/in.php", form)
	if err != nil {
		return "", err
	}
	if submitted.Status != 1 {
		return "", &APIError{Op: "submit", Code: string(submitted.Request)}
	}
	id := string(submitted.Request)
	c.log.Info("captcha submitted", zap.String("kind", string(ch.Kind)), zap.String("task", id))

	solveCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	q := url.Values{}
	q.Set("key", c.apiKey)
	q.Set("action", "get")
	q.Set("id", id)
	q.Set("json", "1")
	for {
		t := time.NewTimer(c.pollInterval)
		select {
		case <-solveCtx.Done():
			t.Stop()
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", ErrSolveTimeout
		case <-t.C:
		}

		res, err := c.call(solveCtx, "poll", http.MethodGet, c.baseURL+"/res.php?"+q.Encode(), nil)
		if err != nil {
			if ctx.Err() == nil && solveCtx.Err() != nil {
				return "", ErrSolveTimeout
			}
			return "", err
		}
		switch {
		case res.Status == 1:
			c.log.Info("captcha solved", zap.String("task", id), zap.Duration("elapsed", time.Since(start)))
			return string(res.Request), nil
		case string(res.Request) == notReady:
			c.log.Debug("captcha not ready", zap.String("task", id), zap.Duration("elapsed", time.Since(start)))
		default:
			return "", &APIError{Op: "poll", Code: string(res.Request)}
		}
	}
}

// Balance returns the account balance.
func (c *Client) Balance(ctx context.Context) (float64, error) {
	q := url.Values{}
	q.Set("key", c.apiKey)
	q.Set("action", "getbalance")
	q.Set("json", "1")
	res, err := c.call(ctx, "balance", http.MethodGet, c.baseURL+"/res.php?"+q.Encode(), nil)
	if err != nil {
		return 0, err
	}
	if res.Status != 1 {
		return 0, &APIError{Op: "balance", Code: string(res.Request)}
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(string(res.Request)), 64)
	if err != nil {
		return 0, fmt.Errorf("captcha: parse balance %q: %w", res.Request, err)
	}
	return v, nil
}

func (c *Client) call(ctx context.Context, op, method, endpoint string, form url.Values) (response, error) {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return response{}, err
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// url.Error embeds the request URL, which carries the key.
		return response{}, fmt.Errorf("captcha %s: %s", op, redact.Secrets(err.Error()))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return response{}, fmt.Errorf("captcha %s: read body: %w", op, err)
	}
	if resp.StatusCode/100 != 2 {
		herr := httperr.New("captcha "+op, resp, raw)
		if herr.Retryable() {
			return response{}, &core.TransientError{Err: herr}
		}
		return response{}, herr
	}

	var out response
	if err := json.Unmarshal(raw, &out); err != nil {
		return response{}, fmt.Errorf("captcha %s: decode response: %w", op, err)
	}
	return out, nil
}
