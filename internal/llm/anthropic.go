package llm

import (
	"context"
	"net/http"
	"strings"

	"github.com/josinaldojr/compliance-assistant/internal/apperr"
)

const anthropicVersion = "2023-06-01"

type anthropicClient struct {
	cfg Config
	hc  *http.Client
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      *struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func newAnthropicClient(cfg Config, hc *http.Client) *anthropicClient {
	return &anthropicClient{cfg: cfg, hc: hc}
}

func (c *anthropicClient) Name() string { return string(ProviderAnthropic) }

func (c *anthropicClient) Complete(ctx context.Context, req Request) (*Response, error) {
	system, msgs := splitSystem(req.Messages)
	if len(msgs) == 0 {
		return nil, apperr.Empty("messages")
	}

	body := anthropicRequest{
		Model:       c.cfg.Model,
		System:      system,
		Messages:    msgs,
		MaxTokens:   req.maxTokens(),
		Temperature: req.temperature(),
	}
	headers := map[string]string{
		"x-api-key":         c.cfg.APIKey,
		"anthropic-version": anthropicVersion,
	}

	var out anthropicResponse
	if err := postJSON(ctx, c.hc, c.Name(), c.cfg.BaseURL+"/v1/messages", headers, body, &out); err != nil {
		return nil, err
	}

	var text strings.Builder
	for _, block := range out.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, apperr.Upstream(c.Name(), http.StatusOK, "empty completion", nil)
	}

	resp := &Response{
		Text:         text.String(),
		FinishReason: anthropicFinishReason(out.StopReason),
	}
	if out.Usage != nil {
		resp.Usage = &Usage{
			PromptTokens:     out.Usage.InputTokens,
			CompletionTokens: out.Usage.OutputTokens,
			TotalTokens:      out.Usage.InputTokens + out.Usage.OutputTokens,
		}
	}
	return resp, nil
}

// splitSystem pulls every system message out of the list and joins them with
// a blank line, preserving their relative order. Assistant turns before the
// first user turn are dropped; the Messages API requires a user turn first.
func splitSystem(in []Message) (string, []anthropicMessage) {
	var system []string
	msgs := make([]anthropicMessage, 0, len(in))
	for _, m := range in {
		if m.Role == RoleSystem {
			system = append(system, m.Content)
			continue
		}
		if len(msgs) == 0 && m.Role == RoleAssistant {
			continue
		}
		msgs = append(msgs, anthropicMessage{Role: string(m.Role), Content: m.Content})
	}
	return strings.Join(system, "\n\n"), msgs
}

func anthropicFinishReason(r string) string {
	switch r {
	case "end_turn", "stop_sequence":
		return FinishStop
	case "max_tokens":
		return FinishLength
	case "tool_use":
		return FinishToolCalls
	case "refusal":
		return FinishContentFilter
	default:
		return FinishUnknown
	}
}
