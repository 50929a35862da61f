// Package factory builds providers from model configurations.
package factory

import (
	"fmt"

	"github.com/studyhall/studyhall-backend/internal/models"
	"github.com/studyhall/studyhall-backend/internal/providers"
	"github.com/studyhall/studyhall-backend/internal/providers/anthropic"
	"github.com/studyhall/studyhall-backend/internal/providers/gemini"
	"github.com/studyhall/studyhall-backend/internal/providers/openai"
)

const (
	openRouterBaseURL = "https://openrouter.ai/api/v1"
	deepSeekBaseURL   = "https://api.deepseek.com/v1"
)

// CreateProvider creates a provider instance for a model configuration.
// OpenRouter and DeepSeek speak the OpenAI wire format, so they share the
// OpenAI implementation with their own base URLs; "custom" covers any
// OpenAI-compatible endpoint such as a local Ollama server.
func CreateProvider(cfg models.ModelConfig) (providers.Provider, error) {
	switch cfg.Provider {
	case models.ProviderOpenAI:
		return openai.NewProvider(cfg)

	case models.ProviderOpenRouter:
		if cfg.BaseURL == "" {
			cfg.BaseURL = openRouterBaseURL
		}
		return openai.NewProvider(cfg)

	case models.ProviderDeepSeek:
		if cfg.BaseURL == "" {
			cfg.BaseURL = deepSeekBaseURL
		}
		return openai.NewProvider(cfg)

	case models.ProviderAnthropic:
		return anthropic.NewProvider(cfg)

	case models.ProviderGemini:
		return gemini.NewProvider(cfg)

	case models.ProviderCustom:
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("custom provider %s requires a base URL", cfg.ID)
		}
		return openai.NewProvider(cfg)

	default:
		return nil, fmt.Errorf("unknown provider type: %s", cfg.Provider)
	}
}
