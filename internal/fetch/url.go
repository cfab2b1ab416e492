package fetch

import (
	"net/url"
	"strconv"
	"strings"
)

const pagePlaceholder = "{page}"

// PageURL builds the URL of listing page n. A {page} placeholder in template is
// substituted; otherwise page 1 is template itself and later pages add page=N.
func PageURL(template string, n int) string {
	template = strings.TrimSpace(template)
	if strings.Contains(template, pagePlaceholder) {
		return strings.ReplaceAll(template, pagePlaceholder, strconv.Itoa(n))
	}
	if n <= 1 {
		return template
	}
	u, err := url.Parse(template)
	if err != nil {
		sep := "?"
		if strings.Contains(template, "?") {
			sep = "&"
		}
		return template + sep + "page=" + strconv.Itoa(n)
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(n))
	u.RawQuery = q.Encode()
	return u.String()
}
