//go:build gemini_e2e

package search

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestGemini_RealAPI(t *testing.T) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		t.Fatalf("GEMINI_API_KEY is required for gemini_e2e tests")
	}
	model := os.Getenv("GEMINI_MODEL")
	if model == "" {
		t.Fatalf("GEMINI_MODEL is required for gemini_e2e tests")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	g, err := NewGemini(ctx, GeminiConfig{
		APIKey:  apiKey,
		Model:   model,
		BaseURL: os.Getenv("GEMINI_BASE_URL"),
		Retries: 2,
	})
	if err != nil {
		t.Fatalf("NewGemini: %v", err)
	}

	// A long-listed public number keeps the assertion about format, not content.
	phone, err := g.SearchPhone(ctx, "Empire State Building New York NY phone number")
	if err != nil {
		t.Fatalf("SearchPhone: %v", err)
	}
	t.Logf("phone=%q", phone)
	if phone != "" && len(phone) != len("(212) 736-3100") {
		t.Fatalf("unexpected phone format %q", phone)
	}
}
