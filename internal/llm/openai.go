package llm

import (
	"context"
	"net/http"

	"github.com/josinaldojr/compliance-assistant/internal/apperr"
)

type openAIClient struct {
	cfg Config
	hc  *http.Client
}

type openAIRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

func newOpenAIClient(cfg Config, hc *http.Client) *openAIClient {
	return &openAIClient{cfg: cfg, hc: hc}
}

func (c *openAIClient) Name() string { return string(ProviderOpenAI) }

// Complete sends the messages as-is; system messages stay inline.
func (c *openAIClient) Complete(ctx context.Context, req Request) (*Response, error) {
	if len(req.Messages) == 0 {
		return nil, apperr.Empty("messages")
	}

	body := openAIRequest{
		Model:       c.cfg.Model,
		Messages:    req.Messages,
		MaxTokens:   req.maxTokens(),
		Temperature: req.temperature(),
	}
	headers := map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}

	var out openAIResponse
	if err := postJSON(ctx, c.hc, c.Name(), c.cfg.BaseURL+"/chat/completions", headers, body, &out); err != nil {
		return nil, err
	}

	if len(out.Choices) == 0 || out.Choices[0].Message.Content == "" {
		return nil, apperr.Upstream(c.Name(), http.StatusOK, "empty completion", nil)
	}

	resp := &Response{
		Text:         out.Choices[0].Message.Content,
		FinishReason: openAIFinishReason(out.Choices[0].FinishReason),
	}
	if out.Usage != nil {
		resp.Usage = &Usage{
			PromptTokens:     out.Usage.PromptTokens,
			CompletionTokens: out.Usage.CompletionTokens,
			TotalTokens:      out.Usage.TotalTokens,
		}
	}
	return resp, nil
}

func openAIFinishReason(r string) string {
	switch r {
	case "stop":
		return FinishStop
	case "length":
		return FinishLength
	case "content_filter":
		return FinishContentFilter
	case "tool_calls", "function_call":
		return FinishToolCalls
	default:
		return FinishUnknown
	}
}
