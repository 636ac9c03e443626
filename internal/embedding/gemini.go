package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/josinaldojr/compliance-assistant/internal/apperr"
	"github.com/josinaldojr/compliance-assistant/internal/rag"
)

const (
	DefaultModel      = "text-embedding-004"
	DefaultDimensions = 768

	serviceName = "gemini"
	apiKeyEnv   = "GEMINI_API_KEY"
)

type Config struct {
	APIKey     string
	Model      string
	Dimensions int
	// BaseURL overrides the Gemini API endpoint (proxies, tests).
	BaseURL    string
	HTTPClient *http.Client
}

// GeminiEmbedder wraps the Gemini embedding API. Without an API key it is
// still constructed, but reports IsConfigured() == false.
type GeminiEmbedder struct {
	client *genai.Client
	model  string
	dims   int
	logger *zap.Logger
}

func NewGeminiEmbedder(ctx context.Context, cfg Config, logger *zap.Logger) (*GeminiEmbedder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = DefaultDimensions
	}

	e := &GeminiEmbedder{model: cfg.Model, dims: cfg.Dimensions, logger: logger}
	if strings.TrimSpace(cfg.APIKey) == "" {
		logger.Info("embedding provider not configured, vector retrieval disabled")
		return e, nil
	}

	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	c, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	e.client = c
	return e, nil
}

func (g *GeminiEmbedder) IsConfigured() bool {
	return g != nil && g.client != nil
}

func (g *GeminiEmbedder) Dimensions() int {
	return g.dims
}

// Embed makes exactly one upstream call; retries are the caller's business.
func (g *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if !g.IsConfigured() {
		return nil, apperr.Missing(apiKeyEnv)
	}
	clean := normalizeWhitespace(text)
	if clean == "" {
		return nil, apperr.Empty("text")
	}

	resp, err := g.client.Models.EmbedContent(
		ctx,
		g.model,
		genai.Text(clean),
		&genai.EmbedContentConfig{
			OutputDimensionality: genai.Ptr(int32(g.dims)),
		},
	)
	if err != nil {
		g.logger.Warn("gemini embed failed", zap.String("model", g.model), zap.Error(err))
		return nil, toUpstream(err)
	}

	if resp == nil || len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil {
		return nil, apperr.Upstream(serviceName, 0, "no embeddings returned", nil)
	}

	values := resp.Embeddings[0].Values
	if len(values) != g.dims {
		return nil, apperr.Upstream(serviceName, 0,
			fmt.Sprintf("unexpected embedding size %d (expected %d)", len(values), g.dims), nil)
	}

	out := make([]float32, g.dims)
	for i, v := range values {
		out[i] = float32(v)
	}
	return out, nil
}

func toUpstream(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if msg == "" {
			msg = http.StatusText(apiErr.Code)
		}
		return apperr.Upstream(serviceName, apiErr.Code, msg, err)
	}
	return apperr.Upstream(serviceName, 0, "", err)
}

func normalizeWhitespace(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		if r == ' ' || r == '\n' || r == '\r' || r == '\t' {
			if !space {
				b.WriteRune(' ')
				space = true
			}
		} else {
			b.WriteRune(r)
			space = false
		}
	}
	return b.String()
}

var _ rag.Embedder = (*GeminiEmbedder)(nil)
