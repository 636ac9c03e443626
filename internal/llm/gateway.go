package llm

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"go.uber.org/zap"
)

// Gateway owns the single completion client for the process. The client is
// built from configuration once and reused until Reset.
type Gateway struct {
	mu     sync.Mutex
	lookup func(string) string
	hc     *http.Client
	logger *zap.Logger

	cfg    Config
	client Client
}

type GatewayOption func(*Gateway)

// WithHTTPClient replaces the HTTP client. Its Timeout is left alone.
func WithHTTPClient(hc *http.Client) GatewayOption {
	return func(g *Gateway) { g.hc = hc }
}

func WithLogger(logger *zap.Logger) GatewayOption {
	return func(g *Gateway) { g.logger = logger }
}

// NewGateway resolves configuration immediately, so a misconfigured
// deployment fails at startup with an *apperr.ConfigurationError.
func NewGateway(lookup func(string) string, opts ...GatewayOption) (*Gateway, error) {
	g := &Gateway{lookup: lookup, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(g)
	}
	if _, err := g.Client(); err != nil {
		return nil, err
	}
	return g, nil
}

// Client returns the memoized client, building it on first use.
func (g *Gateway) Client() (Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.client != nil {
		return g.client, nil
	}

	cfg, err := ResolveConfig(g.lookup)
	if err != nil {
		return nil, err
	}

	hc := g.hc
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}

	c, err := NewClient(cfg, hc)
	if err != nil {
		return nil, err
	}

	g.cfg, g.client = cfg, c
	g.logger.Info("llm client ready",
		zap.String("provider", string(cfg.Provider)),
		zap.String("model", cfg.Model))
	return c, nil
}

// Reset drops the memoized client; the next Client call re-reads configuration.
func (g *Gateway) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.client = nil
	g.cfg = Config{}
}

// Config returns the configuration the current client was built from.
func (g *Gateway) Config() Config {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cfg
}

func (g *Gateway) Complete(ctx context.Context, req Request) (*Response, error) {
	c, err := g.Client()
	if err != nil {
		return nil, err
	}
	return c.Complete(ctx, req)
}

// NewClient builds the backend for cfg.Provider.
func NewClient(cfg Config, hc *http.Client) (Client, error) {
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	switch cfg.Provider {
	case ProviderOpenAI:
		return newOpenAIClient(cfg, hc), nil
	case ProviderAnthropic:
		return newAnthropicClient(cfg, hc), nil
	default:
		return nil, fmt.Errorf("llm: unsupported provider %q", cfg.Provider)
	}
}
