package contact

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	// Separators tolerate whitespace around one dot or dash: page text is joined at
	// inline element boundaries, so "(908) <span>555</span>-0100" reads "(908) 555 -0100".
	phoneRe = regexp.MustCompile(`(?:\+?1\s*[.\-]?\s*)?\(?(\d{3})\)?\s*[.\-]?\s*(\d{3})\s*[.\-]?\s*(\d{4})`)
	emailRe = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)

	placeholderEmail = []string{"example.com", "test.com", "placeholder", "domain.com", "email.com", "yourdomain", "sentry.io", "wixpress.com"}
	fileSuffixes     = []string{".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp", ".avif", ".css", ".js"}
)

// FindPhone returns the first North American number in text as (AAA) BBB-CCCC.
func FindPhone(text string) string {
	for _, m := range phoneRe.FindAllStringSubmatchIndex(text, -1) {
		start, end := m[0], m[1]
		if start > 0 && isDigitByte(text[start-1]) {
			continue
		}
		if end < len(text) && isDigitByte(text[end]) {
			continue
		}
		area, exchange, line := text[m[2]:m[3]], text[m[4]:m[5]], text[m[6]:m[7]]
		if p := formatPhone(area, exchange, line); p != "" {
			return p
		}
	}
	return ""
}

// NormalizePhone formats a free-form number such as a tel: href. It returns "" when
// the digits are not a valid North American number.
func NormalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	d := b.String()
	if len(d) == 11 && d[0] == '1' {
		d = d[1:]
	}
	if len(d) != 10 {
		return ""
	}
	return formatPhone(d[:3], d[3:6], d[6:])
}

func formatPhone(area, exchange, line string) string {
	// NANP area codes and exchanges never start with 0 or 1.
	if area[0] < '2' || exchange[0] < '2' {
		return ""
	}
	return "(" + area + ") " + exchange + "-" + line
}

// FindEmail returns the first plausible business address in text.
func FindEmail(text string) string {
	for _, m := range emailRe.FindAllString(text, -1) {
		if e := NormalizeEmail(m); e != "" {
			return e
		}
	}
	return ""
}

// NormalizeEmail trims and validates a candidate address, rejecting placeholders and
// asset file names like logo@2x.png.
func NormalizeEmail(raw string) string {
	e := strings.TrimSpace(raw)
	if i := strings.IndexByte(e, '?'); i >= 0 {
		e = e[:i]
	}
	e = strings.TrimRight(e, ".")
	if !emailRe.MatchString(e) || emailRe.FindString(e) != e {
		return ""
	}
	lower := strings.ToLower(e)
	for _, p := range placeholderEmail {
		if strings.Contains(lower, p) {
			return ""
		}
	}
	for _, s := range fileSuffixes {
		if strings.HasSuffix(lower, s) {
			return ""
		}
	}
	return e
}

func isDigitByte(b byte) bool { return b >= '0' && b <= '9' }
