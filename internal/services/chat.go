package services

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/studyhall/studyhall-backend/internal/models"
	"github.com/studyhall/studyhall-backend/internal/providers"
	"github.com/studyhall/studyhall-backend/internal/repository"
)

// promptWindowSize caps how many recent messages go out with each request.
// This bounds request size and cost, not correctness.
const promptWindowSize = 20

// ModelInfo is the sanitized model summary attached to conversation views.
type ModelInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	Provider    string `json:"provider"`
}

// ConversationView pairs a conversation with display info for its model.
type ConversationView struct {
	*models.Conversation
	Model *ModelInfo `json:"model,omitempty"`
}

// SendResult is the outcome of one chat turn.
type SendResult struct {
	Conversation *models.Conversation `json:"conversation"`
	Model        *ModelInfo           `json:"model"`
	Response     string               `json:"response"`
	Tokens       int                  `json:"tokens"`
}

// ChatService executes chat turns: it resolves the model, appends the user
// message, calls the provider with a bounded prompt window and writes the
// reply back through the repository.
type ChatService struct {
	repo     repository.ConversationRepository
	registry *ModelRegistry
	log      *logrus.Logger
}

// NewChatService creates a new chat service
func NewChatService(repo repository.ConversationRepository, registry *ModelRegistry, log *logrus.Logger) *ChatService {
	return &ChatService{
		repo:     repo,
		registry: registry,
		log:      log,
	}
}

// CreateConversation starts a conversation. An empty modelID selects the
// default model.
func (s *ChatService) CreateConversation(ctx context.Context, userID, modelID, title string) (*ConversationView, error) {
	var model *models.ModelConfig
	var err error
	if modelID == "" {
		model, err = s.registry.Default()
	} else {
		model, err = s.registry.Resolve(modelID)
	}
	if err != nil {
		return nil, err
	}

	conv, err := s.repo.Create(ctx, userID, model.ID, title)
	if err != nil {
		return nil, err
	}
	return s.view(conv), nil
}

// SendMessage runs one full chat turn and returns the updated conversation.
func (s *ChatService) SendMessage(ctx context.Context, conversationID, userID, text, modelOverride string) (*SendResult, error) {
	conv, err := s.repo.Get(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}

	model, err := s.resolveModel(conv, modelOverride)
	if err != nil {
		return nil, err
	}

	// The user turn stays cache-only until the assistant reply flushes both
	// appends in a single remote write.
	conv, err = s.repo.AddMessage(ctx, conversationID, models.RoleUser, text, 0, false)
	if err != nil {
		return nil, err
	}

	window := buildPromptWindow(conv.Messages, model.SystemPrompt)

	resp, usedModel, err := s.complete(ctx, model, window)
	if err != nil {
		return nil, err
	}

	tokens := resp.Usage.CompletionTokens
	conv, err = s.repo.AddMessage(ctx, conversationID, models.RoleAssistant, resp.Content, tokens, true)
	if err != nil {
		return nil, err
	}

	s.registry.MarkUsed(ctx, usedModel.ID)

	return &SendResult{
		Conversation: conv,
		Model:        modelInfo(usedModel),
		Response:     resp.Content,
		Tokens:       tokens,
	}, nil
}

// resolveModel picks the model for this turn: the explicit override when one
// is given, else the conversation's stored model, else the default. An
// invalid override falls back to the default model rather than failing the
// turn, as long as the default differs from what the conversation already
// uses.
func (s *ChatService) resolveModel(conv *models.Conversation, override string) (*models.ModelConfig, error) {
	if override != "" && override != conv.ModelID {
		model, err := s.registry.Resolve(override)
		if err == nil {
			return model, nil
		}
		s.log.WithError(err).WithField("model", override).Warn("Requested model unavailable, falling back to default")
		def, defErr := s.registry.Default()
		if defErr == nil && def.ID != conv.ModelID {
			return def, nil
		}
		return nil, err
	}

	if conv.ModelID != "" {
		model, err := s.registry.Resolve(conv.ModelID)
		if err == nil {
			return model, nil
		}
		s.log.WithError(err).WithField("model", conv.ModelID).Warn("Conversation model unavailable, using default")
	}
	return s.registry.Default()
}

// complete calls the provider for the chosen model. On failure it makes
// exactly one attempt with a fallback model; if that also fails the original
// error is returned.
func (s *ChatService) complete(ctx context.Context, model *models.ModelConfig, window []providers.Message) (*providers.CompletionResponse, *models.ModelConfig, error) {
	resp, err := s.call(ctx, model, window)
	if err == nil {
		return resp, model, nil
	}

	s.log.WithError(err).WithField("model", model.DisplayName).Warn("Primary model failed")

	fallback, fbErr := s.registry.Fallback(model.ID)
	if fbErr != nil {
		return nil, nil, err
	}

	s.log.WithField("model", fallback.DisplayName).Info("Trying fallback model")
	resp, retryErr := s.call(ctx, fallback, window)
	if retryErr != nil {
		s.log.WithError(retryErr).WithField("model", fallback.DisplayName).Error("Fallback model also failed")
		return nil, nil, err
	}
	return resp, fallback, nil
}

func (s *ChatService) call(ctx context.Context, model *models.ModelConfig, window []providers.Message) (*providers.CompletionResponse, error) {
	provider := s.registry.Provider(model.ID)
	if provider == nil {
		return nil, ErrModelNotFound
	}
	return provider.Complete(ctx, providers.CompletionRequest{
		Model:       model.ModelID,
		Messages:    window,
		MaxTokens:   model.MaxTokens,
		Temperature: model.Temperature,
	})
}

// GetConversation returns a conversation with its model display info.
func (s *ChatService) GetConversation(ctx context.Context, conversationID, userID string) (*ConversationView, error) {
	conv, err := s.repo.Get(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	return s.view(conv), nil
}

// ListConversations returns the user's conversation summaries, paginated.
func (s *ChatService) ListConversations(ctx context.Context, userID string, page, pageSize int) ([]models.ConversationSummary, error) {
	return s.repo.ListForUser(ctx, userID, page, pageSize)
}

// UpdateTitle renames a conversation.
func (s *ChatService) UpdateTitle(ctx context.Context, conversationID, userID, title string) (*ConversationView, error) {
	conv, err := s.repo.UpdateTitle(ctx, conversationID, userID, title)
	if err != nil {
		return nil, err
	}
	return s.view(conv), nil
}

// DeleteConversation soft-deletes a conversation.
func (s *ChatService) DeleteConversation(ctx context.Context, conversationID, userID string) error {
	_, err := s.repo.Deactivate(ctx, conversationID, userID)
	return err
}

// GetPublicURL returns the conversation's shareable link, if one can be
// produced.
func (s *ChatService) GetPublicURL(ctx context.Context, conversationID, userID string) (string, error) {
	return s.repo.GetPublicURL(ctx, conversationID, userID)
}

// ListBackups lists the stored copies of a conversation.
func (s *ChatService) ListBackups(ctx context.Context, conversationID, userID string) ([]models.ConversationBackup, error) {
	return s.repo.ListBackups(ctx, conversationID, userID)
}

// ListModels returns selectable models for the UI.
func (s *ChatService) ListModels() []models.ModelConfig {
	return s.registry.List()
}

func (s *ChatService) view(conv *models.Conversation) *ConversationView {
	v := &ConversationView{Conversation: conv}
	if model, err := s.registry.Resolve(conv.ModelID); err == nil {
		v.Model = modelInfo(model)
	}
	return v
}

func modelInfo(m *models.ModelConfig) *ModelInfo {
	return &ModelInfo{
		ID:          m.ID,
		Name:        m.Name,
		DisplayName: m.DisplayName,
		Provider:    m.Provider,
	}
}

// buildPromptWindow assembles the outbound message list: the system prompt
// when configured, then the most recent turns in chronological order.
func buildPromptWindow(messages []models.Message, systemPrompt string) []providers.Message {
	window := make([]providers.Message, 0, promptWindowSize+1)
	if strings.TrimSpace(systemPrompt) != "" {
		window = append(window, providers.Message{Role: models.RoleSystem, Content: systemPrompt})
	}

	recent := messages
	if len(recent) > promptWindowSize {
		recent = recent[len(recent)-promptWindowSize:]
	}
	for _, msg := range recent {
		window = append(window, providers.Message{Role: msg.Role, Content: msg.Content})
	}
	return window
}
