package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/josinaldojr/compliance-assistant/internal/apperr"
)

const maxErrorBody = 64 << 10

// postJSON sends body to url and decodes a 2xx response into out. Any other
// status becomes an *apperr.UpstreamError carrying the provider's own error
// message when the body has one.
func postJSON(ctx context.Context, hc *http.Client, service, url string, headers map[string]string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%s: encode request: %w", service, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%s: build request: %w", service, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := hc.Do(req)
	if err != nil {
		return apperr.Upstream(service, 0, "", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return apperr.Upstream(service, resp.StatusCode, upstreamMessage(resp.StatusCode, raw), nil)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperr.Upstream(service, resp.StatusCode, "invalid response payload", err)
	}
	return nil
}

// upstreamMessage pulls error.message (or a bare string error) out of a
// provider error body, falling back to the HTTP status text.
func upstreamMessage(status int, raw []byte) string {
	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && len(envelope.Error) > 0 {
		var structured struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(envelope.Error, &structured) == nil && strings.TrimSpace(structured.Message) != "" {
			return structured.Message
		}
		var plain string
		if json.Unmarshal(envelope.Error, &plain) == nil && strings.TrimSpace(plain) != "" {
			return plain
		}
	}
	if text := http.StatusText(status); text != "" {
		return text
	}
	return fmt.Sprintf("status %d", status)
}
