package llm

import (
	"fmt"
	"strings"
	"time"

	"github.com/josinaldojr/compliance-assistant/internal/apperr"
)

type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
)

const (
	EnvProvider         = "LLM_PROVIDER"
	EnvModel            = "LLM_MODEL"
	EnvTimeout          = "LLM_TIMEOUT"
	EnvOpenAIKey        = "OPENAI_API_KEY"
	EnvOpenAIBaseURL    = "OPENAI_BASE_URL"
	EnvAnthropicKey     = "ANTHROPIC_API_KEY"
	EnvAnthropicBaseURL = "ANTHROPIC_BASE_URL"

	defaultOpenAIBaseURL    = "https://api.openai.com/v1"
	defaultAnthropicBaseURL = "https://api.anthropic.com"
	defaultTimeout          = 60 * time.Second
)

type Config struct {
	Provider Provider
	Model    string
	APIKey   string
	BaseURL  string
	Timeout  time.Duration
}

// ResolveConfig reads gateway settings through lookup (os.Getenv in
// production). The error names the first missing setting: provider, then
// model, then the selected provider's credential.
func ResolveConfig(lookup func(string) string) (Config, error) {
	get := func(k string) string { return strings.TrimSpace(lookup(k)) }

	rawProvider := get(EnvProvider)
	if rawProvider == "" {
		return Config{}, apperr.Missing(EnvProvider)
	}

	cfg := Config{Provider: Provider(strings.ToLower(rawProvider)), Timeout: defaultTimeout}

	var keyEnv, baseEnv, defaultBase string
	switch cfg.Provider {
	case ProviderOpenAI:
		keyEnv, baseEnv, defaultBase = EnvOpenAIKey, EnvOpenAIBaseURL, defaultOpenAIBaseURL
	case ProviderAnthropic:
		keyEnv, baseEnv, defaultBase = EnvAnthropicKey, EnvAnthropicBaseURL, defaultAnthropicBaseURL
	default:
		return Config{}, apperr.Invalid(EnvProvider,
			fmt.Sprintf("has unsupported value %q (want %q or %q)", rawProvider, ProviderOpenAI, ProviderAnthropic))
	}

	if cfg.Model = get(EnvModel); cfg.Model == "" {
		return Config{}, apperr.Missing(EnvModel)
	}
	if cfg.APIKey = get(keyEnv); cfg.APIKey == "" {
		return Config{}, apperr.Invalid(keyEnv, fmt.Sprintf("is not set (required when %s=%s)", EnvProvider, cfg.Provider))
	}

	cfg.BaseURL = strings.TrimSuffix(get(baseEnv), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBase
	}

	if raw := get(EnvTimeout); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return Config{}, apperr.Invalid(EnvTimeout, fmt.Sprintf("must be a positive duration, got %q", raw))
		}
		cfg.Timeout = d
	}

	return cfg, nil
}
