package captcha_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shpitdev/listing-enricher/internal/captcha"
)

var testMarkers = captcha.Markers{
	Selectors: []string{".cf-turnstile", ".g-recaptcha", ".h-captcha", "iframe[src*='recaptcha']", "iframe[src*='challenges.cloudflare.com']", "form#challenge-form"},
	Titles:    []string{"just a moment", "access denied"},
	Phrases:   []string{"verify you are human"},
}

func TestDetector_Detect(t *testing.T) {
	tests := []struct {
		name     string
		html     string
		want     bool
		wantKind captcha.Kind
		wantKey  string
	}{
		{
			name: "clean_listing_page",
			html: `<html><head><title>HVAC Pros near Elizabeth</title></head><body><main><div class="card">Acme</div></main>
<script src="https://www.google.com/recaptcha/api.js"></script></body></html>`,
			want: false,
		},
		{
			name:     "turnstile_widget",
			html:     `<html><body><div class="cf-turnstile" data-sitekey="0x4AAAA"></div></body></html>`,
			want:     true,
			wantKind: captcha.KindTurnstile,
			wantKey:  "0x4AAAA",
		},
		{
			name:     "recaptcha_widget",
			html:     `<html><body><form><div class="g-recaptcha" data-sitekey="6LcKEY"></div></form></body></html>`,
			want:     true,
			wantKind: captcha.KindRecaptchaV2,
			wantKey:  "6LcKEY",
		},
		{
			name:     "recaptcha_iframe_key",
			html:     `<html><body><iframe src="https://www.google.com/recaptcha/api2/anchor?ar=1&k=6LcIFRAME&co=x"></iframe></body></html>`,
			want:     true,
			wantKind: captcha.KindRecaptchaV2,
			wantKey:  "6LcIFRAME",
		},
		{
			name:     "cloudflare_title_only",
			html:     `<html><head><title>Just a moment...</title></head><body>Checking your browser</body></html>`,
			want:     true,
			wantKind: captcha.KindUnknown,
		},
		{
			name:     "phrase",
			html:     `<html><body><p>Please   verify you are HUMAN to continue</p></body></html>`,
			want:     true,
			wantKind: captcha.KindUnknown,
		},
		{
			name: "phrase_in_script_ignored",
			html: `<html><body><script>var msg = "verify you are human";</script><p>ok</p></body></html>`,
			want: false,
		},
	}

	d := captcha.NewDetector(testMarkers)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch, ok := d.Detect("https://www.example.org/list", tt.html)
			require.Equal(t, tt.want, ok)
			if !tt.want {
				return
			}
			assert.Equal(t, tt.wantKind, ch.Kind)
			assert.Equal(t, tt.wantKey, ch.SiteKey)
			assert.Equal(t, "https://www.example.org/list", ch.PageURL)
			assert.NotEmpty(t, ch.Marker)
			assert.Equal(t, tt.wantKey != "", ch.Solvable())
		})
	}
}

func TestInjectionScript_QuotesToken(t *testing.T) {
	js := captcha.InjectionScript(`tok"en</script>`)
	assert.Contains(t, js, `"tok\"en</script>"`)
	assert.Contains(t, js, "cf-turnstile-response")
	assert.Contains(t, js, "g-recaptcha-response")
}
