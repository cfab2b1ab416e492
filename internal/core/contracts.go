package core

import (
	"context"

	"github.com/shpitdev/listing-enricher/internal/listing"
)

// Page is a loaded listing page: the rendered markup snapshot taken after navigation.
type Page struct {
	Number int
	URL    string
	HTML   string

	// TotalPages is the page count detected on the first fetch of the run.
	TotalPages int
}

// PageFetcher loads listing pages through a browser session.
type PageFetcher interface {
	FetchPage(ctx context.Context, number int) (*Page, error)
}

// ListingExtractor parses a loaded page into listing records.
type ListingExtractor interface {
	Extract(page *Page) ([]listing.Listing, error)
}

// ContactResolver enriches one listing with contact details. It never fails.
type ContactResolver interface {
	Resolve(ctx context.Context, l listing.Listing) listing.EnrichedListing
}

// ResolveFunc adapts a function to the ContactResolver interface.
type ResolveFunc func(ctx context.Context, l listing.Listing) listing.EnrichedListing

func (f ResolveFunc) Resolve(ctx context.Context, l listing.Listing) listing.EnrichedListing {
	return f(ctx, l)
}
