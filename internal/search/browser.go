// Package search implements the phone-number fallback lookup used when a listing's
// website has no phone.
package search

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/shpitdev/listing-enricher/internal/captcha"
	"github.com/shpitdev/listing-enricher/internal/contact"
)

const DefaultGoogleURL = "https://www.google.com"

// Driver is the slice of the browser session the results-page backend needs.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	HTML(ctx context.Context) (string, error)
}

type Detector interface {
	Detect(pageURL, html string) (captcha.Challenge, bool)
}

// Browser loads a search results page in the shared browser session and takes the
// first phone number on it. A challenge on the results page yields no phone, not an
// error.
type Browser struct {
	driver   Driver
	detector Detector
	baseURL  string
	log      *zap.Logger
}

var _ contact.SearchEngine = (*Browser)(nil)

func NewBrowser(driver Driver, detector Detector, baseURL string, log *zap.Logger) (*Browser, error) {
	if driver == nil || detector == nil {
		return nil, errors.New("search: driver and detector are required")
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultGoogleURL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Browser{driver: driver, detector: detector, baseURL: baseURL, log: log}, nil
}

// ResultsURL is the results page for query.
func (b *Browser) ResultsURL(query string) string {
	q := url.Values{}
	q.Set("q", query)
	q.Set("hl", "en")
	return b.baseURL + "/search?" + q.Encode()
}

func (b *Browser) SearchPhone(ctx context.Context, query string) (string, error) {
	u := b.ResultsURL(query)
	if err := b.driver.Navigate(ctx, u); err != nil {
		return "", err
	}
	html, err := b.driver.HTML(ctx)
	if err != nil {
		return "", err
	}
	if ch, blocked := b.detector.Detect(u, html); blocked {
		b.log.Warn("captcha on search results, skipping", zap.String("marker", ch.Marker))
		return "", nil
	}
	return contact.Scan(html).Phone, nil
}
