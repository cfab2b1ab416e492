package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/shpitdev/listing-enricher/internal/contact"
	"github.com/shpitdev/listing-enricher/internal/core"
	"github.com/shpitdev/listing-enricher/internal/retry"
)

type GeminiConfig struct {
	APIKey string
	Model  string

	// BaseURL overrides the Gemini API base URL. Useful for proxies/testing.
	BaseURL string

	// Retries bounds extra attempts on rate limits and server errors.
	Retries int
	Timeout time.Duration

	Logger *zap.Logger
}

// Gemini asks a Gemini model with Google Search grounding for the business's phone.
type Gemini struct {
	client  *genai.Client
	model   string
	retries int
	timeout time.Duration
	log     *zap.Logger
}

var _ contact.SearchEngine = (*Gemini)(nil)

func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("gemini model is required")
	}

	cc := &genai.ClientConfig{
		APIKey:  strings.TrimSpace(cfg.APIKey),
		Backend: genai.BackendGeminiAPI,
	}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		cc.HTTPOptions.BaseURL = strings.TrimSpace(cfg.BaseURL)
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, err
	}
	g := &Gemini{
		client:  client,
		model:   strings.TrimSpace(cfg.Model),
		retries: cfg.Retries,
		timeout: cfg.Timeout,
		log:     cfg.Logger,
	}
	if g.timeout <= 0 {
		g.timeout = 30 * time.Second
	}
	if g.log == nil {
		g.log = zap.NewNop()
	}
	return g, nil
}

type phoneAnswer struct {
	Phone     string `json:"phone"`
	SourceURL string `json:"source_url"`
}

var answerSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"phone":      {Type: genai.TypeString},
		"source_url": {Type: genai.TypeString},
	},
	Required: []string{"phone", "source_url"},
}

func (g *Gemini) SearchPhone(ctx context.Context, query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", errors.New("empty query")
	}

	resp, _, err := retry.Do(ctx, retry.Options{
		MaxRetries:        g.retries,
		AttemptTimeout:    g.timeout,
		BackoffInitial:    time.Second,
		BackoffMax:        8 * time.Second,
		BackoffJitterFrac: 0.2,
	}, func(ctx context.Context) (*genai.GenerateContentResponse, error) {
		resp, err := g.client.Models.GenerateContent(
			ctx,
			g.model,
			genai.Text(buildPrompt(query)),
			&genai.GenerateContentConfig{
				Tools: []*genai.Tool{
					{GoogleSearch: &genai.GoogleSearch{}},
				},
				CandidateCount:   1,
				ResponseMIMEType: "application/json",
				ResponseSchema:   answerSchema,
			},
		)
		if err != nil {
			return nil, classifyErr(err)
		}
		return resp, nil
	})
	if err != nil {
		return "", err
	}

	text := resp.Text()
	var parsed phoneAnswer
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		// Grounded answers are sometimes prose; take whatever number it contains.
		return contact.FindPhone(text), nil
	}
	phone := contact.NormalizePhone(parsed.Phone)
	if phone != "" {
		g.log.Debug("gemini phone answer",
			zap.String("source", strings.TrimSpace(parsed.SourceURL)),
			zap.Strings("grounding", extractSources(resp)),
		)
	}
	return phone, nil
}

func buildPrompt(query string) string {
	return strings.TrimSpace(`
You are a business directory lookup tool. Use web search to find the public business phone number for the business described below.

Return ONLY a single JSON object with these keys:
- phone (string; North American format, e.g. (908) 555-0100)
- source_url (string; the page where you found it)

Rules:
- If you cannot find a phone number, set both fields to an empty string.
- Do not guess or invent numbers.
- Do not include extra keys.

Business: ` + query + `
`)
}

func classifyErr(err error) error {
	// Wrap transient failures so retry.Do backs off and tries again.
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == 429 || apiErr.Code/100 == 5 {
			return &core.TransientError{Err: err}
		}
		return err
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &core.TransientError{Err: err}
	}
	return err
}

func extractSources(resp *genai.GenerateContentResponse) []string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return nil
	}
	c := resp.Candidates[0]
	if c.GroundingMetadata == nil {
		return nil
	}

	seen := map[string]struct{}{}
	var out []string
	for _, chunk := range c.GroundingMetadata.GroundingChunks {
		if chunk == nil || chunk.Web == nil {
			continue
		}
		uri := strings.TrimSpace(chunk.Web.URI)
		if uri == "" {
			continue
		}
		if _, ok := seen[uri]; ok {
			continue
		}
		seen[uri] = struct{}{}
		out = append(out, uri)
	}
	return out
}
