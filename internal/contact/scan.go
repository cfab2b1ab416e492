package contact

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/shpitdev/listing-enricher/internal/htmltext"
)

// Found is what a page scan turned up.
type Found struct {
	Phone string
	Email string
}

// Scan looks for contact details in a page. tel: and mailto: links are checked before
// the visible text; the first match of each kind wins.
func Scan(html string) Found {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Found{Phone: FindPhone(html), Email: FindEmail(html)}
	}

	var f Found
	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		lower := strings.ToLower(href)
		switch {
		case f.Phone == "" && strings.HasPrefix(lower, "tel:"):
			f.Phone = NormalizePhone(unescape(href[len("tel:"):]))
		case f.Email == "" && strings.HasPrefix(lower, "mailto:"):
			f.Email = NormalizeEmail(unescape(href[len("mailto:"):]))
		}
		return f.Phone == "" || f.Email == ""
	})
	if f.Phone != "" && f.Email != "" {
		return f
	}

	text := htmltext.Document(doc)
	if f.Phone == "" {
		f.Phone = FindPhone(text)
	}
	if f.Email == "" {
		f.Email = FindEmail(text)
	}
	return f
}

func unescape(s string) string {
	if u, err := url.PathUnescape(s); err == nil {
		return u
	}
	return s
}
