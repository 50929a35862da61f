package anthropic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyhall/studyhall-backend/internal/models"
	"github.com/studyhall/studyhall-backend/internal/providers"
)

func testProvider(t *testing.T) *Provider {
	p, err := NewProvider(models.ModelConfig{
		ID:       "claude-3-haiku",
		Provider: models.ProviderAnthropic,
		APIKey:   "test-key",
		ModelID:  "claude-3-haiku-20240307",
	})
	require.NoError(t, err)
	return p
}

func TestConvertRequest_SeparatesSystemPrompt(t *testing.T) {
	p := testProvider(t)

	req := p.convertRequest(providers.CompletionRequest{
		Model: "claude-3-haiku-20240307",
		Messages: []providers.Message{
			{Role: models.RoleSystem, Content: "Be brief."},
			{Role: models.RoleUser, Content: "Hi"},
			{Role: models.RoleAssistant, Content: "Hello!"},
		},
		MaxTokens: 1000,
	})

	assert.Equal(t, "Be brief.", req.System)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, models.RoleUser, req.Messages[0].Role)
	assert.Equal(t, "Hi", req.Messages[0].Content[0].Text)
	assert.Equal(t, 1000, req.MaxTokens)
}

func TestConvertRequest_DefaultMaxTokens(t *testing.T) {
	p := testProvider(t)

	req := p.convertRequest(providers.CompletionRequest{
		Messages: []providers.Message{{Role: models.RoleUser, Content: "Hi"}},
	})
	assert.Equal(t, defaultMaxTokens, req.MaxTokens)
	assert.Nil(t, req.Temperature)
}

func TestConvertResponse_JoinsTextBlocksAndSumsUsage(t *testing.T) {
	p := testProvider(t)

	resp := p.convertResponse(&AnthropicResponse{
		Content: []AnthropicContent{
			{Type: "text", Text: "Hello "},
			{Type: "text", Text: "world"},
		},
		Usage: AnthropicUsage{InputTokens: 12, OutputTokens: 5},
	})

	assert.Equal(t, "Hello world", resp.Content)
	assert.Equal(t, 12, resp.Usage.PromptTokens)
	assert.Equal(t, 5, resp.Usage.CompletionTokens)
	assert.Equal(t, 17, resp.Usage.TotalTokens)
}

func TestNewProvider_RequiresAPIKey(t *testing.T) {
	_, err := NewProvider(models.ModelConfig{Provider: models.ProviderAnthropic})
	assert.Error(t, err)
}
