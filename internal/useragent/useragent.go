package useragent

import (
	"math/rand/v2"
	"net/http"
)

// Chrome is the desktop Chrome user-agent pool shared by the browser session and the
// plain HTTP website client.
var Chrome = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
}

var languages = []string{
	"en-US,en;q=0.9",
	"en-US,en;q=0.8",
	"en-US,en;q=0.9,es;q=0.7",
}

const accept = "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8"

// Picker chooses from the pools. The zero value uses math/rand/v2.
type Picker struct {
	IntN func(n int) int
}

func (p Picker) intN(n int) int {
	if p.IntN != nil {
		return p.IntN(n)
	}
	return rand.IntN(n)
}

// UserAgent returns one entry of Chrome.
func (p Picker) UserAgent() string {
	return Chrome[p.intN(len(Chrome))]
}

// Headers returns a fresh browser-like header set with a rotated user agent and
// Accept-Language. Accept-Encoding is left to the transport.
func (p Picker) Headers() http.Header {
	h := http.Header{}
	h.Set("User-Agent", p.UserAgent())
	h.Set("Accept", accept)
	h.Set("Accept-Language", languages[p.intN(len(languages))])
	h.Set("Upgrade-Insecure-Requests", "1")
	return h
}

// Extra returns the rotated headers the browser session sends on top of its own.
func (p Picker) Extra() map[string]any {
	return map[string]any{
		"Accept-Language": languages[p.intN(len(languages))],
	}
}
