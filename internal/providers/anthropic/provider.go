// Package anthropic implements the Anthropic messages wire format: system
// prompt carried in a separate field, message content as typed blocks.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/studyhall/studyhall-backend/internal/models"
	"github.com/studyhall/studyhall-backend/internal/providers"
)

const (
	defaultAPIURL    = "https://api.anthropic.com/v1/messages"
	anthropicVersion = "2023-06-01"
	defaultMaxTokens = 4096
)

// Provider implements the Anthropic provider
type Provider struct {
	config models.ModelConfig
	apiURL string
	client *http.Client
}

// AnthropicRequest represents a request to Anthropic's API
type AnthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []AnthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature *float32           `json:"temperature,omitempty"`
	System      string             `json:"system,omitempty"`
}

// AnthropicMessage represents a message in Anthropic format
type AnthropicMessage struct {
	Role    string             `json:"role"`
	Content []AnthropicContent `json:"content"`
}

// AnthropicContent represents content in a message
type AnthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// AnthropicResponse represents a response from Anthropic's API
type AnthropicResponse struct {
	ID         string             `json:"id"`
	Type       string             `json:"type"`
	Role       string             `json:"role"`
	Content    []AnthropicContent `json:"content"`
	Model      string             `json:"model"`
	StopReason string             `json:"stop_reason,omitempty"`
	Usage      AnthropicUsage     `json:"usage"`
}

// AnthropicUsage represents token usage
type AnthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// NewProvider creates a new Anthropic provider
func NewProvider(cfg models.ModelConfig) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("Anthropic API key is required")
	}

	apiURL := defaultAPIURL
	if cfg.BaseURL != "" {
		apiURL = strings.TrimSuffix(cfg.BaseURL, "/") + "/messages"
	}

	return &Provider{
		config: cfg,
		apiURL: apiURL,
		client: &http.Client{Timeout: 60 * time.Second},
	}, nil
}

// Name returns the provider name
func (p *Provider) Name() string {
	return models.ProviderAnthropic
}

// Complete performs a chat completion
func (p *Provider) Complete(ctx context.Context, req providers.CompletionRequest) (*providers.CompletionResponse, error) {
	body, err := json.Marshal(p.convertRequest(req))
	if err != nil {
		return nil, providers.Classify(p.Name(), err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, bytes.NewReader(body))
	if err != nil {
		return nil, providers.Classify(p.Name(), err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.config.APIKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, providers.Classify(p.Name(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, providers.Classify(p.Name(), fmt.Errorf("Anthropic API error: %s - %s", resp.Status, string(bodyBytes)))
	}

	var anthropicResp AnthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&anthropicResp); err != nil {
		return nil, providers.Classify(p.Name(), err)
	}

	return p.convertResponse(&anthropicResp), nil
}

// ValidateConfig validates the provider configuration
func (p *Provider) ValidateConfig() error {
	if p.config.APIKey == "" {
		return errors.New("API key is required")
	}
	return nil
}

// convertRequest converts internal request to Anthropic request. System
// messages move to the dedicated field; Anthropic rejects them inline.
func (p *Provider) convertRequest(req providers.CompletionRequest) AnthropicRequest {
	anthropicReq := AnthropicRequest{
		Model:     req.Model,
		MaxTokens: defaultMaxTokens,
	}
	if req.MaxTokens > 0 {
		anthropicReq.MaxTokens = req.MaxTokens
	}
	if req.Temperature > 0 {
		t := req.Temperature
		anthropicReq.Temperature = &t
	}

	messages := []AnthropicMessage{}
	for _, msg := range req.Messages {
		if msg.Role == models.RoleSystem {
			anthropicReq.System = msg.Content
			continue
		}
		messages = append(messages, AnthropicMessage{
			Role:    msg.Role,
			Content: []AnthropicContent{{Type: "text", Text: msg.Content}},
		})
	}
	anthropicReq.Messages = messages

	return anthropicReq
}

// convertResponse converts Anthropic response to internal response
func (p *Provider) convertResponse(resp *AnthropicResponse) *providers.CompletionResponse {
	var text strings.Builder
	for _, content := range resp.Content {
		if content.Type == "text" {
			text.WriteString(content.Text)
		}
	}

	return &providers.CompletionResponse{
		Content: text.String(),
		Usage: providers.Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
	}
}
