// Package captcha detects anti-bot challenges in rendered pages and clears them through
// a 2Captcha-compatible solving service.
package captcha

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/shpitdev/listing-enricher/internal/htmltext"
)

type Kind string

const (
	KindTurnstile   Kind = "turnstile"
	KindRecaptchaV2 Kind = "recaptcha_v2"
	KindHCaptcha    Kind = "hcaptcha"
	KindUnknown     Kind = "unknown"
)

// Markers are the DOM signals that identify a challenge page.
type Markers struct {
	// Selectors match challenge widgets, iframes and forms.
	Selectors []string `yaml:"selectors"`
	// Titles are lowercase substrings of <title> used by block pages.
	Titles []string `yaml:"titles"`
	// Phrases are lowercase substrings of the visible body text.
	Phrases []string `yaml:"phrases"`
}

// Challenge describes a detected challenge.
type Challenge struct {
	Kind    Kind
	SiteKey string
	PageURL string

	// Marker is the selector, title or phrase that matched.
	Marker string
}

// Solvable reports whether the challenge carries what a solving service needs.
func (c Challenge) Solvable() bool {
	return c.Kind != KindUnknown && strings.TrimSpace(c.SiteKey) != ""
}

type Detector struct {
	markers Markers
}

func NewDetector(m Markers) *Detector {
	return &Detector{markers: m}
}

// Detect inspects a rendered page. It returns false when no marker matches or the markup
// cannot be parsed.
func (d *Detector) Detect(pageURL, html string) (Challenge, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Challenge{}, false
	}
	return d.DetectDocument(pageURL, doc)
}

func (d *Detector) DetectDocument(pageURL string, doc *goquery.Document) (Challenge, bool) {
	marker := ""
	for _, sel := range d.markers.Selectors {
		if doc.Find(sel).Length() > 0 {
			marker = sel
			break
		}
	}
	if marker == "" {
		title := strings.ToLower(strings.TrimSpace(doc.Find("title").First().Text()))
		for _, t := range d.markers.Titles {
			if t != "" && strings.Contains(title, strings.ToLower(t)) {
				marker = "title:" + t
				break
			}
		}
	}
	if marker == "" && len(d.markers.Phrases) > 0 {
		text := strings.ToLower(htmltext.Document(doc))
		for _, p := range d.markers.Phrases {
			if p != "" && strings.Contains(text, strings.ToLower(p)) {
				marker = "text:" + p
				break
			}
		}
	}
	if marker == "" {
		return Challenge{}, false
	}

	kind, key := classify(doc)
	return Challenge{Kind: kind, SiteKey: key, PageURL: pageURL, Marker: marker}, true
}

func classify(doc *goquery.Document) (Kind, string) {
	if w := doc.Find(".cf-turnstile[data-sitekey]").First(); w.Length() > 0 {
		return KindTurnstile, w.AttrOr("data-sitekey", "")
	}
	if w := doc.Find(".g-recaptcha[data-sitekey]").First(); w.Length() > 0 {
		return KindRecaptchaV2, w.AttrOr("data-sitekey", "")
	}
	if w := doc.Find(".h-captcha[data-sitekey]").First(); w.Length() > 0 {
		return KindHCaptcha, w.AttrOr("data-sitekey", "")
	}

	kind := KindUnknown
	key := ""
	doc.Find("iframe[src]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		src := s.AttrOr("src", "")
		k := iframeKind(src)
		if k == KindUnknown {
			return true
		}
		kind = k
		key = siteKeyFromURL(src)
		return key == ""
	})
	if kind != KindUnknown {
		return kind, key
	}

	if w := doc.Find("[data-sitekey]").First(); w.Length() > 0 {
		return KindRecaptchaV2, w.AttrOr("data-sitekey", "")
	}
	return KindUnknown, ""
}

func iframeKind(src string) Kind {
	s := strings.ToLower(src)
	switch {
	case strings.Contains(s, "challenges.cloudflare.com") || strings.Contains(s, "turnstile"):
		return KindTurnstile
	case strings.Contains(s, "recaptcha"):
		return KindRecaptchaV2
	case strings.Contains(s, "hcaptcha"):
		return KindHCaptcha
	default:
		return KindUnknown
	}
}

func siteKeyFromURL(src string) string {
	u, err := url.Parse(src)
	if err != nil {
		return ""
	}
	q := u.Query()
	for _, name := range []string{"k", "sitekey"} {
		if v := strings.TrimSpace(q.Get(name)); v != "" {
			return v
		}
	}
	// hCaptcha carries the key in the fragment.
	if frag, err := url.ParseQuery(u.Fragment); err == nil {
		if v := strings.TrimSpace(frag.Get("sitekey")); v != "" {
			return v
		}
	}
	return ""
}
