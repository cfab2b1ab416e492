// Package extract turns rendered listing pages into listing records using a selector
// profile.
package extract

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/shpitdev/listing-enricher/internal/core"
	"github.com/shpitdev/listing-enricher/internal/htmltext"
	"github.com/shpitdev/listing-enricher/internal/listing"
)

const (
	minNameLen   = 3
	maxNameLen   = 99
	minAddrLen   = 10
	signatureLen = 100
	maxRating    = 5.0

	streetTypes = `(?:Street|St|Avenue|Ave|Road|Rd|Boulevard|Blvd|Drive|Dr|Lane|Ln|Court|Ct|Way|Place|Pl|Highway|Hwy|Parkway|Pkwy)\b\.?`
)

var (
	// "4.5 out of 5 stars" must yield 4.5, so the scale form is tried first.
	ratingRes = []*regexp.Regexp{
		regexp.MustCompile(`(\d+(?:\.\d+)?)\s*out\s*of\s*\d+`),
		regexp.MustCompile(`(\d+(?:\.\d+)?)\s*[Ss]tars?\b`),
		regexp.MustCompile(`[Rr]ating[:\s]*(\d+(?:\.\d+)?)`),
	}
	reviewsRes = []*regexp.Regexp{
		regexp.MustCompile(`(?:^|[^\d.,])(\d{1,3}(?:,\d{3})+|\d+)\s*[Rr]eviews?\b`),
		regexp.MustCompile(`(?:^|[^\d.,])(\d{1,3}(?:,\d{3})+|\d+)\s*[Rr]atings?\b`),
	}
	addressRes = []*regexp.Regexp{
		regexp.MustCompile(`\b\d{1,6}\s+(?:[A-Z0-9][A-Za-z0-9.'-]*\s+){0,4}` + streetTypes + `[\s,]+[A-Za-z][A-Za-z\s]*,\s*[A-Z]{2}\s+\d{5}(?:-\d{4})?`),
		regexp.MustCompile(`\b\d{1,6}\s+(?:[A-Z0-9][A-Za-z0-9.'-]*\s+){0,4}` + streetTypes + `[\s,]+[A-Za-z][A-Za-z\s]*,\s*[A-Z]{2}\b`),
	}
)

// Extractor implements core.ListingExtractor over a Profile.
type Extractor struct {
	p         Profile
	skipNames []*regexp.Regexp
	log       *zap.Logger
}

func New(p Profile, log *zap.Logger) (*Extractor, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	e := &Extractor{p: p, log: log}
	for _, name := range p.SkipNames {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		// Whole-word match: "ad" must not drop "Bradley Heating".
		e.skipNames = append(e.skipNames, regexp.MustCompile(`(?i)\b`+regexp.QuoteMeta(name)+`\b`))
	}
	return e, nil
}

// Extract parses page.HTML. It fails only when the results region is missing; cards
// without a usable name are dropped.
func (e *Extractor) Extract(page *core.Page) ([]listing.Listing, error) {
	if page == nil || strings.TrimSpace(page.HTML) == "" {
		n := 0
		if page != nil {
			n = page.Number
		}
		return nil, &core.ExtractionError{Page: n, Reason: "empty page markup"}
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		return nil, &core.ExtractionError{Page: page.Number, Reason: "parse markup: " + err.Error()}
	}
	return e.ExtractDocument(page.Number, page.URL, doc)
}

func (e *Extractor) ExtractDocument(pageNum int, pageURL string, doc *goquery.Document) ([]listing.Listing, error) {
	root := doc.Find(e.p.Results).First()
	if root.Length() == 0 {
		return nil, &core.ExtractionError{Page: pageNum, Selector: e.p.Results, Reason: "listing container not found"}
	}
	base, _ := url.Parse(pageURL)

	cards := e.cards(root)
	seen := make(map[string]struct{}, len(cards))
	out := make([]listing.Listing, 0, len(cards))
	for _, card := range cards {
		text := htmltext.Visible(card)
		sig := htmltext.Truncate(strings.ReplaceAll(text, " ", ""), signatureLen)
		if sig == "" {
			continue
		}
		if _, dup := seen[sig]; dup {
			continue
		}
		seen[sig] = struct{}{}

		l, ok := e.listing(card, text, base)
		if !ok {
			e.log.Debug("card dropped", zap.Int("page", pageNum), zap.String("text", htmltext.Truncate(text, 80)))
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

func (e *Extractor) cards(root *goquery.Selection) []*goquery.Selection {
	var out []*goquery.Selection
	nested := func(n *html.Node) bool {
		for _, c := range out {
			if c.Get(0) == n || c.Contains(n) {
				return true
			}
		}
		return false
	}

	if e.p.CardAnchor != "" {
		root.Find(e.p.CardAnchor).Each(func(_ int, a *goquery.Selection) {
			href := a.AttrOr("href", "")
			if e.skipName(htmltext.Visible(a)) || skipHref(href) {
				return
			}
			card := e.anchorCard(root, a, profileKey(href))
			if card == nil || nested(card.Get(0)) {
				return
			}
			out = append(out, card)
		})
	}
	if len(out) > 0 {
		return out
	}

	for _, sel := range e.p.Cards {
		root.Find(sel).Each(func(_ int, s *goquery.Selection) {
			if !nested(s.Get(0)) {
				out = append(out, s)
			}
		})
		if len(out) > 0 {
			return out
		}
	}
	return out
}

// anchorCard climbs from a profile link to the widest ancestor inside root that links to
// no other profile.
func (e *Extractor) anchorCard(root, a *goquery.Selection, key string) *goquery.Selection {
	var card *goquery.Selection
	a.ParentsFiltered(e.p.CardAnchorParent).EachWithBreak(func(_ int, p *goquery.Selection) bool {
		if !root.Contains(p.Get(0)) {
			return false
		}
		only := true
		p.Find(e.p.CardAnchor).EachWithBreak(func(_ int, other *goquery.Selection) bool {
			if k := profileKey(other.AttrOr("href", "")); k != key && !skipHref(other.AttrOr("href", "")) {
				only = false
			}
			return only
		})
		if !only {
			return false
		}
		card = p
		return true
	})
	return card
}

func (e *Extractor) listing(card *goquery.Selection, text string, base *url.URL) (listing.Listing, bool) {
	name := e.name(card)
	if name == "" || e.skipName(name) {
		return listing.Listing{}, false
	}
	l := listing.Listing{
		Name:       name,
		Rating:     e.rating(card, text),
		Reviews:    e.reviews(card, text),
		Address:    e.address(card, text),
		Website:    e.website(card),
		ProfileURL: e.profileURL(card, base),
	}
	return l, true
}

func (e *Extractor) name(card *goquery.Selection) string {
	for _, sel := range e.p.Name {
		name := ""
		card.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			t := htmltext.Visible(s)
			if n := utf8.RuneCountInString(t); n < minNameLen || n > maxNameLen || e.skipName(t) {
				return true
			}
			name = t
			return false
		})
		if name != "" {
			return name
		}
	}
	return ""
}

func (e *Extractor) rating(card *goquery.Selection, text string) *float64 {
	var candidates []string
	if e.p.Rating != "" {
		card.Find(e.p.Rating).Each(func(_ int, s *goquery.Selection) {
			candidates = append(candidates, s.AttrOr("aria-label", ""), htmltext.Visible(s))
		})
	}
	candidates = append(candidates, text)
	for _, c := range candidates {
		if c == "" {
			continue
		}
		for _, re := range ratingRes {
			m := re.FindStringSubmatch(c)
			if m == nil {
				continue
			}
			v, err := strconv.ParseFloat(m[1], 64)
			if err != nil || v < 0 || v > maxRating {
				return nil
			}
			return listing.Float(v)
		}
	}
	return nil
}

func (e *Extractor) reviews(card *goquery.Selection, text string) *int {
	var candidates []string
	if e.p.Reviews != "" {
		card.Find(e.p.Reviews).Each(func(_ int, s *goquery.Selection) {
			candidates = append(candidates, htmltext.Visible(s))
		})
	}
	candidates = append(candidates, text)
	for _, c := range candidates {
		for _, re := range reviewsRes {
			m := re.FindStringSubmatch(c)
			if m == nil {
				continue
			}
			v, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", ""))
			if err != nil || v < 0 {
				return nil
			}
			return listing.Int(v)
		}
	}
	return nil
}

func (e *Extractor) address(card *goquery.Selection, text string) string {
	if e.p.Address != "" {
		addr := ""
		card.Find(e.p.Address).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			t := htmltext.Visible(s)
			if utf8.RuneCountInString(t) < minAddrLen {
				return true
			}
			addr = t
			return false
		})
		if addr != "" {
			return addr
		}
	}
	for _, re := range addressRes {
		if m := re.FindString(text); m != "" {
			return strings.Trim(htmltext.Collapse(m), " ,")
		}
	}
	return ""
}

func (e *Extractor) website(card *goquery.Selection) string {
	site := ""
	card.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		u, err := url.Parse(href)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return true
		}
		if e.skipHost(u.Hostname()) {
			return true
		}
		site = href
		return false
	})
	return site
}

func (e *Extractor) profileURL(card *goquery.Selection, base *url.URL) string {
	if e.p.ProfileLink == "" {
		return ""
	}
	href := strings.TrimSpace(card.Find(e.p.ProfileLink).First().AttrOr("href", ""))
	if href == "" {
		return ""
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	return u.String()
}

func (e *Extractor) skipName(s string) bool {
	for _, re := range e.skipNames {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// SkipHost reports whether host belongs to the listing site itself or a social network.
func (e *Extractor) SkipHost(host string) bool { return e.skipHost(host) }

func (e *Extractor) skipHost(host string) bool {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	for _, h := range e.p.SkipHosts {
		h = strings.ToLower(strings.TrimSpace(h))
		if h == "" {
			continue
		}
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

func skipHref(href string) bool {
	h := strings.ToLower(href)
	for _, k := range []string{"signup", "register", "join"} {
		if strings.Contains(h, k) {
			return true
		}
	}
	return false
}

func profileKey(href string) string {
	if i := strings.IndexAny(href, "?#"); i >= 0 {
		href = href[:i]
	}
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(href)), "/")
}

// Describe formats a listing on one line.
func Describe(l listing.Listing) string {
	rating, reviews := "-", "-"
	if l.Rating != nil {
		rating = strconv.FormatFloat(*l.Rating, 'f', -1, 64)
	}
	if l.Reviews != nil {
		reviews = strconv.Itoa(*l.Reviews)
	}
	return fmt.Sprintf("%s | rating=%s reviews=%s | %s | %s", l.Name, rating, reviews, l.Address, l.Website)
}
