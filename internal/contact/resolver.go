// Package contact finds a phone number or email address for a listing, from its
// website first and a search engine second.
package contact

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/shpitdev/listing-enricher/internal/core"
	"github.com/shpitdev/listing-enricher/internal/listing"
	"github.com/shpitdev/listing-enricher/internal/metrics"
	"github.com/shpitdev/listing-enricher/internal/throttle"
)

// SiteFetcher returns the markup of a business website.
type SiteFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// SearchEngine looks a business up and returns the first phone number in the results,
// or "" when there is none.
type SearchEngine interface {
	SearchPhone(ctx context.Context, query string) (string, error)
}

// ProfileLookup finds a website on a listing's on-site profile page.
type ProfileLookup interface {
	WebsiteFromProfile(ctx context.Context, profileURL string) (string, error)
}

type Waiter interface {
	Wait(ctx context.Context, r throttle.Range) error
}

// Config holds the pauses the resolver takes before outbound requests.
type Config struct {
	// WebsiteDelay is the randomized pause before each website request.
	WebsiteDelay throttle.Range
	// SearchDelay is the randomized pause before each search query.
	SearchDelay throttle.Range
}

// Resolver finds a phone number or email for a listing.
type Resolver struct {
	cfg      Config
	site     SiteFetcher
	search   SearchEngine
	profiles ProfileLookup
	waiter   Waiter
	metrics  *metrics.Metrics
	log      *zap.Logger
}

var _ core.ContactResolver = (*Resolver)(nil)

type Option func(*Resolver)

// WithSearch enables the search-engine fallback.
func WithSearch(s SearchEngine) Option { return func(r *Resolver) { r.search = s } }

// WithProfileLookup lets listings without a website borrow one from their profile page.
func WithProfileLookup(p ProfileLookup) Option { return func(r *Resolver) { r.profiles = p } }

func WithWaiter(w Waiter) Option { return func(r *Resolver) { r.waiter = w } }

func WithMetrics(m *metrics.Metrics) Option { return func(r *Resolver) { r.metrics = m } }

func WithLogger(l *zap.Logger) Option { return func(r *Resolver) { r.log = l } }

func NewResolver(cfg Config, site SiteFetcher, opts ...Option) *Resolver {
	r := &Resolver{cfg: cfg, site: site, log: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	if r.waiter == nil {
		r.waiter = throttle.New(0)
	}
	return r
}

// Resolve never fails. The website is fetched once; its phone wins, then a phone from
// the search engine, then an email from the website.
func (r *Resolver) Resolve(ctx context.Context, l listing.Listing) listing.EnrichedListing {
	log := r.log.With(zap.String("business", l.Name))

	if !l.HasWebsite() && r.profiles != nil && strings.TrimSpace(l.ProfileURL) != "" {
		site, err := r.profiles.WebsiteFromProfile(ctx, l.ProfileURL)
		switch {
		case err != nil:
			log.Debug("profile lookup failed", zap.Error(err))
		case site != "":
			log.Debug("website found on profile", zap.String("website", site))
			l.Website = site
		}
	}

	var onSite Found
	if l.HasWebsite() && r.site != nil {
		onSite = r.scanWebsite(ctx, log, l.Website)
	}

	phone := onSite.Phone
	if phone == "" {
		phone = r.searchPhone(ctx, log, l)
	}

	email := ""
	if phone == "" {
		email = onSite.Email
	}

	out := listing.Enrich(l, phone, email)
	r.metrics.Contact(out.Outcome.String())
	log.Info("contact resolved",
		zap.String("outcome", out.Outcome.String()),
		zap.Bool("website", l.HasWebsite()),
	)
	return out
}

func (r *Resolver) scanWebsite(ctx context.Context, log *zap.Logger, url string) Found {
	if err := r.waiter.Wait(ctx, r.cfg.WebsiteDelay); err != nil {
		return Found{}
	}
	html, err := r.site.Fetch(ctx, url)
	if err != nil {
		log.Warn("website fetch failed", zap.String("website", url), zap.Error(err))
		return Found{}
	}
	return Scan(html)
}

func (r *Resolver) searchPhone(ctx context.Context, log *zap.Logger, l listing.Listing) string {
	if r.search == nil || ctx.Err() != nil {
		return ""
	}
	query := Query(l)
	if query == "" {
		return ""
	}
	if err := r.waiter.Wait(ctx, r.cfg.SearchDelay); err != nil {
		return ""
	}
	phone, err := r.search.SearchPhone(ctx, query)
	if err != nil {
		r.metrics.Search("error")
		log.Warn("phone search failed", zap.String("query", query), zap.Error(err))
		return ""
	}
	phone = NormalizePhone(phone)
	if phone == "" {
		r.metrics.Search("miss")
	} else {
		r.metrics.Search("hit")
	}
	return phone
}

// Query is the search text for a listing: name, address when known, and "phone number".
func Query(l listing.Listing) string {
	name := strings.TrimSpace(l.Name)
	if name == "" {
		return ""
	}
	parts := []string{name}
	if addr := strings.TrimSpace(l.Address); addr != "" {
		parts = append(parts, addr)
	}
	parts = append(parts, "phone number")
	return strings.Join(parts, " ")
}
