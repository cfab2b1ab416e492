package listing

import (
	"strconv"
	"strings"
)

// Header returns the fixed output header. Column order is part of the output contract.
func Header() []string {
	return []string{
		"business name",
		"star rating",
		"# of reviews",
		"address",
		"website",
		"Phone Number",
		"Email",
	}
}

// Row flattens the record into the Header() ordering. Absent values become "".
func (e EnrichedListing) Row() []string {
	rating := ""
	if e.Rating != nil {
		rating = strconv.FormatFloat(*e.Rating, 'f', -1, 64)
	}
	reviews := ""
	if e.Reviews != nil {
		reviews = strconv.Itoa(*e.Reviews)
	}
	return []string{
		strings.TrimSpace(e.Name),
		rating,
		reviews,
		strings.TrimSpace(e.Address),
		strings.TrimSpace(e.Website),
		strings.TrimSpace(e.Phone),
		strings.TrimSpace(e.Email),
	}
}

// Rows flattens records in order.
func Rows(records []EnrichedListing) [][]string {
	out := make([][]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.Row())
	}
	return out
}
