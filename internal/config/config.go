package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	DatabaseURL string // empty selects the in-memory excerpt store

	LogLevel  string
	LogFormat string

	CORSAllowedOrigins []string

	EmbeddingAPIKey     string
	EmbeddingModel      string
	EmbeddingDimensions int

	SimilarityThreshold float64
	RelevantLimit       int
	AllLimit            int
	TopicKeywordsFile   string

	PromptSourceTokenBudget int
	AssistantTimeout        time.Duration

	// DevFirms seeds the in-memory firm directory, "id:Name:Jurisdiction" entries
	// separated by commas.
	DevFirms []DevFirm
}

type DevFirm struct {
	ID           string
	Name         string
	Jurisdiction string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:                    getEnv("PORT", "8080"),
		DatabaseURL:             getEnv("DATABASE_URL", ""),
		LogLevel:                getEnv("LOG_LEVEL", "info"),
		LogFormat:               getEnv("LOG_FORMAT", "json"),
		CORSAllowedOrigins:      getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000", "http://127.0.0.1:3000"}),
		EmbeddingAPIKey:         firstEnv("GEMINI_API_KEY", "GOOGLE_API_KEY"),
		EmbeddingModel:          getEnv("EMBEDDING_MODEL", "text-embedding-004"),
		EmbeddingDimensions:     getEnvAsInt("EMBEDDING_DIMENSIONS", 768),
		SimilarityThreshold:     getEnvAsFloat("RETRIEVAL_SIMILARITY_THRESHOLD", 0.5),
		RelevantLimit:           getEnvAsInt("RETRIEVAL_LIMIT", 10),
		AllLimit:                getEnvAsInt("RETRIEVAL_ALL_LIMIT", 20),
		TopicKeywordsFile:       getEnv("TOPIC_KEYWORDS_FILE", ""),
		PromptSourceTokenBudget: getEnvAsInt("PROMPT_SOURCE_TOKEN_BUDGET", 12000),
		AssistantTimeout:        getEnvAsDuration("ASSISTANT_TIMEOUT", 45*time.Second),
	}

	firms, err := parseDevFirms(getEnv("DEV_FIRMS", ""))
	if err != nil {
		return nil, err
	}
	cfg.DevFirms = firms

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("RETRIEVAL_SIMILARITY_THRESHOLD must be between 0 and 1, got %v", c.SimilarityThreshold)
	}
	if c.RelevantLimit <= 0 {
		return fmt.Errorf("RETRIEVAL_LIMIT must be positive, got %d", c.RelevantLimit)
	}
	if c.AllLimit <= 0 {
		return fmt.Errorf("RETRIEVAL_ALL_LIMIT must be positive, got %d", c.AllLimit)
	}
	if c.EmbeddingDimensions <= 0 {
		return fmt.Errorf("EMBEDDING_DIMENSIONS must be positive, got %d", c.EmbeddingDimensions)
	}
	if c.PromptSourceTokenBudget <= 0 {
		return fmt.Errorf("PROMPT_SOURCE_TOKEN_BUDGET must be positive, got %d", c.PromptSourceTokenBudget)
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.LogFormat)
	}
	return nil
}

// UsesMemoryStore reports whether no database is configured.
func (c *Config) UsesMemoryStore() bool {
	return c.DatabaseURL == ""
}

func parseDevFirms(raw string) ([]DevFirm, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var firms []DevFirm
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 3)
		if len(parts) < 2 || strings.TrimSpace(parts[0]) == "" || strings.TrimSpace(parts[1]) == "" {
			return nil, fmt.Errorf("DEV_FIRMS entry %q must be id:Name[:Jurisdiction]", entry)
		}
		f := DevFirm{ID: strings.TrimSpace(parts[0]), Name: strings.TrimSpace(parts[1])}
		if len(parts) == 3 {
			f.Jurisdiction = strings.TrimSpace(parts[2])
		}
		firms = append(firms, f)
	}
	return firms, nil
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

func getEnvAsInt(key string, def int) int {
	v, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return def
	}
	return v
}

func getEnvAsFloat(key string, def float64) float64 {
	v, err := strconv.ParseFloat(getEnv(key, ""), 64)
	if err != nil {
		return def
	}
	return v
}

func getEnvAsDuration(key string, def time.Duration) time.Duration {
	v, err := time.ParseDuration(getEnv(key, ""))
	if err != nil {
		return def
	}
	return v
}

func getEnvAsList(key string, def []string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return def
	}
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
