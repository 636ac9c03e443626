package llm

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josinaldojr/compliance-assistant/internal/apperr"
)

func env(kv map[string]string) func(string) string {
	return func(k string) string { return kv[k] }
}

func TestResolveConfig_MissingValues(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		setting string
	}{
		{
			name:    "provider unset",
			env:     map[string]string{EnvModel: "gpt-4o-mini", EnvOpenAIKey: "sk-test"},
			setting: EnvProvider,
		},
		{
			name:    "model unset",
			env:     map[string]string{EnvProvider: "openai", EnvOpenAIKey: "sk-test"},
			setting: EnvModel,
		},
		{
			name:    "openai credential unset",
			env:     map[string]string{EnvProvider: "openai", EnvModel: "gpt-4o-mini", EnvAnthropicKey: "other"},
			setting: EnvOpenAIKey,
		},
		{
			name:    "anthropic credential unset",
			env:     map[string]string{EnvProvider: "anthropic", EnvModel: "claude-sonnet-4-5", EnvOpenAIKey: "sk-test"},
			setting: EnvAnthropicKey,
		},
		{
			name:    "unknown provider",
			env:     map[string]string{EnvProvider: "mistral", EnvModel: "m"},
			setting: EnvProvider,
		},
		{
			name:    "bad timeout",
			env:     map[string]string{EnvProvider: "openai", EnvModel: "m", EnvOpenAIKey: "k", EnvTimeout: "soon"},
			setting: EnvTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ResolveConfig(env(tt.env))
			require.Error(t, err)

			var ce *apperr.ConfigurationError
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, tt.setting, ce.Setting)
			assert.Contains(t, err.Error(), tt.setting)
		})
	}
}

func TestResolveConfig_Defaults(t *testing.T) {
	cfg, err := ResolveConfig(env(map[string]string{
		EnvProvider:  " OpenAI ",
		EnvModel:     "gpt-4o-mini",
		EnvOpenAIKey: "sk-test",
	}))
	require.NoError(t, err)

	assert.Equal(t, ProviderOpenAI, cfg.Provider)
	assert.Equal(t, "gpt-4o-mini", cfg.Model)
	assert.Equal(t, defaultOpenAIBaseURL, cfg.BaseURL)
	assert.Equal(t, defaultTimeout, cfg.Timeout)
}

func TestResolveConfig_Overrides(t *testing.T) {
	cfg, err := ResolveConfig(env(map[string]string{
		EnvProvider:         "anthropic",
		EnvModel:            "claude-sonnet-4-5",
		EnvAnthropicKey:     "ak-test",
		EnvAnthropicBaseURL: "http://proxy.local/",
		EnvTimeout:          "15s",
	}))
	require.NoError(t, err)

	assert.Equal(t, ProviderAnthropic, cfg.Provider)
	assert.Equal(t, "ak-test", cfg.APIKey)
	assert.Equal(t, "http://proxy.local", cfg.BaseURL)
	assert.Equal(t, 15*time.Second, cfg.Timeout)
}
