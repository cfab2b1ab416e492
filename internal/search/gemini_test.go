package search

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/shpitdev/listing-enricher/internal/core"
)

type tempNetErr struct{}

func (tempNetErr) Error() string   { return "temp net err" }
func (tempNetErr) Timeout() bool   { return true }
func (tempNetErr) Temporary() bool { return true }

func TestClassifyErr(t *testing.T) {
	tests := []struct {
		name          string
		in            error
		wantTransient bool
	}{
		{name: "nil", in: nil, wantTransient: false},
		{name: "api_429", in: genai.APIError{Code: 429}, wantTransient: true},
		{name: "api_503", in: genai.APIError{Code: 503}, wantTransient: true},
		{name: "api_400", in: genai.APIError{Code: 400}, wantTransient: false},
		{name: "net_timeout", in: tempNetErr{}, wantTransient: true},
		{name: "wrapped_api_429", in: errors.New(genai.APIError{Code: 429}.Error()), wantTransient: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyErr(tt.in)
			var te *core.TransientError
			isTransient := errors.As(got, &te)
			if isTransient != tt.wantTransient {
				t.Fatalf("transient=%v want=%v (err=%T %v)", isTransient, tt.wantTransient, got, got)
			}
		})
	}
}

func geminiServer(t *testing.T, answer string) (*httptest.Server, *[]string) {
	t.Helper()
	var bodies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, ":generateContent") {
			http.NotFound(w, r)
			return
		}
		b, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(b))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":`+answer+`}]},"finishReason":"STOP"}]}`)
	}))
	t.Cleanup(srv.Close)
	return srv, &bodies
}

func TestGemini_SearchPhone_StructuredAnswer(t *testing.T) {
	srv, bodies := geminiServer(t, `"{\"phone\":\"+1 908-555-0100\",\"source_url\":\"https://acme.example/contact\"}"`)

	g, err := NewGemini(context.Background(), GeminiConfig{APIKey: "k", Model: "test-model", BaseURL: srv.URL})
	require.NoError(t, err)

	phone, err := g.SearchPhone(context.Background(), "Acme Plumbing Newark NJ phone number")
	require.NoError(t, err)
	assert.Equal(t, "(908) 555-0100", phone)

	require.Len(t, *bodies, 1)
	assert.Contains(t, (*bodies)[0], "Acme Plumbing Newark NJ phone number")
	assert.Contains(t, (*bodies)[0], "googleSearch")
}

func TestGemini_SearchPhone_ProseFallback(t *testing.T) {
	srv, _ := geminiServer(t, `"The listed number is 908.555.0100 according to their site."`)

	g, err := NewGemini(context.Background(), GeminiConfig{APIKey: "k", Model: "test-model", BaseURL: srv.URL})
	require.NoError(t, err)

	phone, err := g.SearchPhone(context.Background(), "Acme")
	require.NoError(t, err)
	assert.Equal(t, "(908) 555-0100", phone)
}

func TestGemini_SearchPhone_EmptyAnswer(t *testing.T) {
	srv, _ := geminiServer(t, `"{\"phone\":\"\",\"source_url\":\"\"}"`)

	g, err := NewGemini(context.Background(), GeminiConfig{APIKey: "k", Model: "test-model", BaseURL: srv.URL})
	require.NoError(t, err)

	phone, err := g.SearchPhone(context.Background(), "Acme")
	require.NoError(t, err)
	assert.Empty(t, phone)
}

func TestNewGemini_Validation(t *testing.T) {
	_, err := NewGemini(context.Background(), GeminiConfig{Model: "m"})
	require.Error(t, err)
	_, err = NewGemini(context.Background(), GeminiConfig{APIKey: "k"})
	require.Error(t, err)
}
