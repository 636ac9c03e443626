package llm

import "context"

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

const (
	DefaultMaxTokens   = 2048
	DefaultTemperature = 0.3
)

// Normalized finish reasons.
const (
	FinishStop          = "stop"
	FinishLength        = "length"
	FinishContentFilter = "content_filter"
	FinishToolCalls     = "tool_calls"
	FinishUnknown       = "unknown"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request is the provider-neutral completion request. Zero MaxTokens and nil
// Temperature take the defaults.
type Request struct {
	Messages    []Message
	MaxTokens   int
	Temperature *float64
}

type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

type Response struct {
	Text         string `json:"text"`
	FinishReason string `json:"finishReason"`
	Usage        *Usage `json:"usage,omitempty"`
}

// Client is one request, one response. No retries, no streaming.
type Client interface {
	Name() string
	Complete(ctx context.Context, req Request) (*Response, error)
}

func (r Request) maxTokens() int {
	if r.MaxTokens > 0 {
		return r.MaxTokens
	}
	return DefaultMaxTokens
}

func (r Request) temperature() float64 {
	if r.Temperature != nil {
		return *r.Temperature
	}
	return DefaultTemperature
}

// Float returns a pointer to v, for Request.Temperature.
func Float(v float64) *float64 {
	return &v
}
