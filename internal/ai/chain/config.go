package chain

import (
	"os"
	"strings"
	"time"
)

const defaultTimeout = 15 * time.Second

// AIConfig holds the model provider settings. Only the OpenAI provider reads the key,
// model and URL fields.
type AIConfig struct {
	Provider         string
	OpenAIKey        string
	OpenAIEmbedModel string
	OpenAIChatModel  string
	OpenAIBaseURL    string
	// Timeout bounds client creation and each chat call.
	Timeout time.Duration
}

// LoadAIConfigFromEnv is the only place the package reads the environment. provider, when
// non-empty, overrides AI_PROVIDER (the service passes its own ai_provider setting).
func LoadAIConfigFromEnv(provider string) AIConfig {
	cfg := AIConfig{
		Provider:         strings.ToLower(envOr("AI_PROVIDER", ProviderMock)),
		OpenAIKey:        os.Getenv("OPENAI_API_KEY"),
		OpenAIEmbedModel: envOr("OPENAI_EMBED_MODEL", "text-embedding-3-small"),
		OpenAIChatModel:  envOr("OPENAI_CHAT_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL:    strings.TrimRight(envOr("OPENAI_BASE_URL", "https://api.openai.com/v1"), "/"),
		Timeout:          defaultTimeout,
	}
	if p := strings.TrimSpace(provider); p != "" {
		cfg.Provider = strings.ToLower(p)
	}
	if d, err := time.ParseDuration(os.Getenv("AI_TIMEOUT")); err == nil && d > 0 {
		cfg.Timeout = d
	}
	return cfg
}

func (c AIConfig) timeout() time.Duration {
	if c.Timeout <= 0 {
		return defaultTimeout
	}
	return c.Timeout
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
