package models

import "time"

// Supported provider wire formats.
const (
	ProviderOpenAI     = "openai"
	ProviderAnthropic  = "anthropic"
	ProviderOpenRouter = "openrouter"
	ProviderDeepSeek   = "deepseek"
	ProviderGemini     = "gemini"
	ProviderCustom     = "custom"
)

// ModelConfig describes one selectable LLM configuration: which provider to
// call, with what credentials and limits. The API key is never serialized.
type ModelConfig struct {
	ID           string     `json:"id" db:"id"`
	Name         string     `json:"name" db:"name"`
	DisplayName  string     `json:"displayName" db:"display_name"`
	Provider     string     `json:"provider" db:"provider"`
	APIKey       string     `json:"-" db:"api_key"`
	BaseURL      string     `json:"baseUrl,omitempty" db:"base_url"`
	ModelID      string     `json:"modelId" db:"model_id"`
	MaxTokens    int        `json:"maxTokens" db:"max_tokens"`
	Temperature  float32    `json:"temperature" db:"temperature"`
	SystemPrompt string     `json:"systemPrompt,omitempty" db:"system_prompt"`
	IsActive     bool       `json:"isActive" db:"is_active"`
	IsDefault    bool       `json:"isDefault" db:"is_default"`
	Description  string     `json:"description,omitempty" db:"description"`
	UsageCount   int        `json:"usageCount" db:"usage_count"`
	LastUsed     *time.Time `json:"lastUsed,omitempty" db:"last_used"`
}
