package embedding

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/josinaldojr/compliance-assistant/internal/apperr"
)

func newTestEmbedder(t *testing.T, handler http.HandlerFunc) (*GeminiEmbedder, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	e, err := NewGeminiEmbedder(context.Background(), Config{
		APIKey:     "test-key",
		Dimensions: 3,
		BaseURL:    srv.URL,
		HTTPClient: srv.Client(),
	}, zap.NewNop())
	require.NoError(t, err)
	return e, &calls
}

func TestGeminiEmbedder_NotConfigured(t *testing.T) {
	e, err := NewGeminiEmbedder(context.Background(), Config{}, nil)
	require.NoError(t, err)

	assert.False(t, e.IsConfigured())
	assert.Equal(t, DefaultDimensions, e.Dimensions())

	_, err = e.Embed(context.Background(), "what is a PEP?")
	require.Error(t, err)
	assert.True(t, apperr.IsConfiguration(err))
	assert.Contains(t, err.Error(), "GEMINI_API_KEY")
}

func TestGeminiEmbedder_EmptyInput(t *testing.T) {
	e, calls := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("upstream must not be called for empty input")
	})

	for _, text := range []string{"", "   ", "\n\t "} {
		_, err := e.Embed(context.Background(), text)
		require.Error(t, err)
		assert.True(t, apperr.IsEmptyInput(err))
	}
	assert.Equal(t, int32(0), calls.Load())
}

func TestGeminiEmbedder_Success(t *testing.T) {
	var body map[string]any
	e, calls := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"embeddings":[{"values":[0.1,0.2,0.3]}]}`))
	})

	vec, err := e.Embed(context.Background(), "  enhanced   due\ndiligence  ")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
	assert.Equal(t, int32(1), calls.Load())
	assert.Contains(t, mustJSON(t, body), "enhanced due diligence")
}

func TestGeminiEmbedder_UpstreamError(t *testing.T) {
	e, calls := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":400,"message":"API key not valid. Please pass a valid API key.","status":"INVALID_ARGUMENT"}}`))
	})

	_, err := e.Embed(context.Background(), "sanctions")
	require.Error(t, err)
	assert.True(t, apperr.IsUpstream(err))
	assert.False(t, apperr.IsConfiguration(err))
	assert.Equal(t, int32(1), calls.Load(), "no retries")

	var ue *apperr.UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, "gemini", ue.Service)
	assert.Equal(t, http.StatusBadRequest, ue.StatusCode)
	assert.Equal(t, "API key not valid. Please pass a valid API key.", ue.Message)
}

func TestGeminiEmbedder_NoVectors(t *testing.T) {
	e, _ := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"embeddings":[]}`))
	})

	_, err := e.Embed(context.Background(), "cdd")
	require.Error(t, err)
	assert.True(t, apperr.IsUpstream(err))
	assert.Equal(t, "no embeddings returned", err.Error())
}

func TestGeminiEmbedder_WrongDimensions(t *testing.T) {
	e, _ := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"embeddings":[{"values":[0.1,0.2]}]}`))
	})

	_, err := e.Embed(context.Background(), "cdd")
	require.Error(t, err)
	assert.True(t, apperr.IsUpstream(err))
}

func TestNormalizeWhitespace(t *testing.T) {
	assert.Equal(t, "a b c", normalizeWhitespace("  a \n\n b\t\tc "))
	assert.Equal(t, "", normalizeWhitespace(" \r\n "))
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}
