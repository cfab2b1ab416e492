package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/shpitdev/listing-enricher/internal/htmltext"
)

var (
	pageOfRe   = regexp.MustCompile(`(?i)\bpage\s+\d+\s+of\s+(\d+)\b`)
	hrefPageRe = regexp.MustCompile(`[?&]page=(\d+)\b`)
	intLabelRe = regexp.MustCompile(`^\d+$`)
)

// TotalPages finds the highest page number announced on a results page. It reads a
// "Page X of Y" indicator first, then the largest numeric label or page=N link inside the
// pagination control. ok is false when neither is present.
func (e *Extractor) TotalPages(html string) (total int, ok bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return 0, false
	}
	return e.TotalPagesDocument(doc)
}

func (e *Extractor) TotalPagesDocument(doc *goquery.Document) (int, bool) {
	nav := doc.Find(e.p.Pagination)
	if e.p.Pagination != "" && nav.Length() > 0 {
		if n := pageOf(htmltext.Visible(nav)); n > 0 {
			return n, true
		}
		best := 0
		nav.Find("a, button, li, span").Each(func(_ int, s *goquery.Selection) {
			if label := strings.TrimSpace(s.Text()); intLabelRe.MatchString(label) {
				if n, err := strconv.Atoi(label); err == nil && n > best {
					best = n
				}
			}
			if m := hrefPageRe.FindStringSubmatch(s.AttrOr("href", "")); m != nil {
				if n, err := strconv.Atoi(m[1]); err == nil && n > best {
					best = n
				}
			}
		})
		if best > 0 {
			return best, true
		}
	}
	if n := pageOf(htmltext.Visible(doc.Find("body"))); n > 0 {
		return n, true
	}
	return 0, false
}

func pageOf(text string) int {
	m := pageOfRe.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return n
}
