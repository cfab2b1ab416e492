package listing

import "strings"

// Listing is one business card scraped from a listing page, before contact enrichment.
type Listing struct {
	Name    string
	Rating  *float64
	Reviews *int
	Address string
	Website string

	// ProfileURL is the on-site profile link of the business, when the card has one.
	ProfileURL string
}

// HasWebsite reports whether the listing carries a website to visit.
func (l Listing) HasWebsite() bool {
	return strings.TrimSpace(l.Website) != ""
}

// Outcome is the result of contact resolution.
type Outcome int

const (
	OutcomeNoneFound Outcome = iota
	OutcomePhoneFound
	OutcomeEmailFound
)

func (o Outcome) String() string {
	switch o {
	case OutcomePhoneFound:
		return "phone_found"
	case OutcomeEmailFound:
		return "email_found"
	default:
		return "none_found"
	}
}

// EnrichedListing is a Listing plus the contact details found for it.
type EnrichedListing struct {
	Listing
	Phone   string
	Email   string
	Outcome Outcome
}

// Enrich builds an EnrichedListing and derives its Outcome. A phone always wins: when
// phone is set the email is dropped, since email lookup must not run in that case.
func Enrich(l Listing, phone, email string) EnrichedListing {
	phone = strings.TrimSpace(phone)
	email = strings.TrimSpace(email)
	switch {
	case phone != "":
		return EnrichedListing{Listing: l, Phone: phone, Outcome: OutcomePhoneFound}
	case email != "":
		return EnrichedListing{Listing: l, Email: email, Outcome: OutcomeEmailFound}
	default:
		return EnrichedListing{Listing: l, Outcome: OutcomeNoneFound}
	}
}

func Float(v float64) *float64 { return &v }

func Int(v int) *int { return &v }
