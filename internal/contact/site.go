package contact

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shpitdev/listing-enricher/internal/core"
	"github.com/shpitdev/listing-enricher/internal/useragent"
	"github.com/shpitdev/listing-enricher/pkg/httperr"
)

const maxBodyBytes = 2 << 20

// HTTPSiteFetcher loads business websites with a plain HTTP client and browser-like,
// rotated headers.
type HTTPSiteFetcher struct {
	client *http.Client
	picker useragent.Picker
}

func NewHTTPSiteFetcher(timeout time.Duration, client *http.Client) *HTTPSiteFetcher {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &HTTPSiteFetcher{client: client}
}

func (f *HTTPSiteFetcher) Fetch(ctx context.Context, url string) (string, error) {
	url = strings.TrimSpace(url)
	if !strings.HasPrefix(strings.ToLower(url), "http") {
		return "", fmt.Errorf("not an http url: %q", url)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header = f.picker.Headers()

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		herr := httperr.New("website "+url, resp, snippet)
		if herr.Retryable() {
			return "", &core.TransientError{Err: herr}
		}
		return "", herr
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "html") && !strings.Contains(ct, "text") {
		return "", fmt.Errorf("website %s: unsupported content type %q", url, ct)
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("website %s: read body: %w", url, err)
	}
	return string(b), nil
}
