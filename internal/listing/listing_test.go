package listing_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shpitdev/listing-enricher/internal/listing"
)

func TestEnrich_PhoneWins(t *testing.T) {
	l := listing.Listing{Name: "Acme Cooling"}

	got := listing.Enrich(l, "(908) 555-0100", "info@acme.test")
	assert.Equal(t, listing.OutcomePhoneFound, got.Outcome)
	assert.Equal(t, "(908) 555-0100", got.Phone)
	assert.Empty(t, got.Email)

	got = listing.Enrich(l, "", "info@acme.test")
	assert.Equal(t, listing.OutcomeEmailFound, got.Outcome)
	assert.Equal(t, "info@acme.test", got.Email)

	got = listing.Enrich(l, " ", "")
	assert.Equal(t, listing.OutcomeNoneFound, got.Outcome)
	assert.Equal(t, "none_found", got.Outcome.String())
}

func TestRow(t *testing.T) {
	rec := listing.EnrichedListing{
		Listing: listing.Listing{
			Name:    " Acme Cooling ",
			Rating:  listing.Float(4.5),
			Reviews: listing.Int(1203),
			Address: "12 Elm St, Elizabeth, NJ 07201",
			Website: "https://acme.test",
		},
		Phone: "(908) 555-0100",
	}

	row := rec.Row()
	require.Len(t, row, len(listing.Header()))
	assert.Equal(t, []string{
		"Acme Cooling",
		"4.5",
		"1203",
		"12 Elm St, Elizabeth, NJ 07201",
		"https://acme.test",
		"(908) 555-0100",
		"",
	}, row)
}

func TestRow_AbsentOptionalFields(t *testing.T) {
	row := listing.EnrichedListing{Listing: listing.Listing{Name: "Solo HVAC", Address: "Elizabeth, NJ"}}.Row()
	assert.Equal(t, []string{"Solo HVAC", "", "", "Elizabeth, NJ", "", "", ""}, row)
}

func TestHeader(t *testing.T) {
	assert.Equal(t, []string{"business name", "star rating", "# of reviews", "address", "website", "Phone Number", "Email"}, listing.Header())
}
