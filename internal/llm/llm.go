package llm

import (
	"fmt"
	"time"
)

const defaultTimeout = 30 * time.Second

// OpenAI-compatible providers and their base URLs
var openAICompatibleProviders = map[string]string{
	"deepseek":   "https://api.deepseek.com",
	"mistral":    "https://api.mistral.ai/v1",
	"groq":       "https://api.groq.com/openai/v1",
	"together":   "https://api.together.xyz/v1",
	"fireworks":  "https://api.fireworks.ai/inference/v1",
	"perplexity": "https://api.perplexity.ai",
}

var defaultModels = map[string]string{
	"deepseek": "deepseek-chat",
	"openai":   "gpt-4o-mini",
	"kimi":     "kimi-k2-0711-preview",
	"ollama":   "qwen2:0.5b",
	"claude":   "claude-sonnet-4-20250514",
}

func New(cfg Config) (Completer, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	model := cfg.Model
	if model == "" {
		model = defaultModels[cfg.Provider]
	}

	switch cfg.Provider {
	case "claude":
		return newClaude(cfg.APIKey, cfg.BaseURL, model, timeout), nil
	case "openai":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "https://api.openai.com/v1"
		}

		return newOpenAICompatible(cfg.APIKey, baseURL, model, timeout), nil
	case "kimi":
		return newOpenAICompatible(cfg.APIKey, "https://api.moonshot.ai/v1", model, timeout), nil
	case "ollama":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}

		// Ollama's OpenAI-compatible endpoint
		return newOpenAICompatible("ollama", baseURL+"/v1", model, timeout), nil
	default:
		if baseURL, ok := openAICompatibleProviders[cfg.Provider]; ok {
			if cfg.BaseURL != "" {
				baseURL = cfg.BaseURL
			}
			return newOpenAICompatible(cfg.APIKey, baseURL, model, timeout), nil
		}
		return nil, fmt.Errorf("unknown provider: %s", cfg.Provider)
	}
}

// IsKnownProvider checks if a provider is recognized
func IsKnownProvider(provider string) bool {
	switch provider {
	case "claude", "openai", "kimi", "ollama":
		return true
	default:
		_, ok := openAICompatibleProviders[provider]
		return ok
	}
}

// NeedsAPIKey reports whether the provider authenticates with a key.
func NeedsAPIKey(provider string) bool {
	return provider != "ollama"
}
