package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyhall/studyhall-backend/internal/models"
	"github.com/studyhall/studyhall-backend/internal/providers"
	"github.com/studyhall/studyhall-backend/internal/repository"
)

// fakeProvider returns a canned reply or a canned failure.
type fakeProvider struct {
	name    string
	reply   string
	tokens  int
	err     error
	calls   int
	lastReq providers.CompletionRequest
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) Complete(ctx context.Context, req providers.CompletionRequest) (*providers.CompletionResponse, error) {
	p.calls++
	p.lastReq = req
	if p.err != nil {
		return nil, p.err
	}
	return &providers.CompletionResponse{
		Content: p.reply,
		Usage:   providers.Usage{CompletionTokens: p.tokens, TotalTokens: p.tokens},
	}, nil
}

func (p *fakeProvider) ValidateConfig() error { return nil }

// fakeConvRepo keeps conversations in a map, enough for orchestrator tests.
type fakeConvRepo struct {
	convs  map[string]*models.Conversation
	nextID int
}

func newFakeConvRepo() *fakeConvRepo {
	return &fakeConvRepo{convs: map[string]*models.Conversation{}}
}

func (r *fakeConvRepo) Create(ctx context.Context, userID, modelID, title string) (*models.Conversation, error) {
	r.nextID++
	if title == "" {
		title = models.DefaultConversationTitle
	}
	conv := &models.Conversation{
		ID:       fmt.Sprintf("c%d", r.nextID),
		UserID:   userID,
		ModelID:  modelID,
		Title:    title,
		IsActive: true,
	}
	r.convs[conv.ID] = conv
	return conv.Clone(), nil
}

func (r *fakeConvRepo) AddMessage(ctx context.Context, conversationID, role, content string, tokens int, persist bool) (*models.Conversation, error) {
	conv, ok := r.convs[conversationID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	conv.Messages = append(conv.Messages, models.Message{Role: role, Content: content, Tokens: tokens})
	conv.TotalTokens += tokens
	return conv.Clone(), nil
}

func (r *fakeConvRepo) Get(ctx context.Context, conversationID, userID string) (*models.Conversation, error) {
	conv, ok := r.convs[conversationID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if conv.UserID != userID {
		return nil, repository.ErrAccessDenied
	}
	return conv.Clone(), nil
}

func (r *fakeConvRepo) ListForUser(ctx context.Context, userID string, page, pageSize int) ([]models.ConversationSummary, error) {
	return []models.ConversationSummary{}, nil
}

func (r *fakeConvRepo) UpdateTitle(ctx context.Context, conversationID, userID, newTitle string) (*models.Conversation, error) {
	conv, err := r.Get(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	r.convs[conversationID].Title = newTitle
	conv.Title = newTitle
	return conv, nil
}

func (r *fakeConvRepo) Deactivate(ctx context.Context, conversationID, userID string) (*models.Conversation, error) {
	conv, err := r.Get(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	r.convs[conversationID].IsActive = false
	return conv, nil
}

func (r *fakeConvRepo) GetPublicURL(ctx context.Context, conversationID, userID string) (string, error) {
	return "", nil
}

func (r *fakeConvRepo) ListBackups(ctx context.Context, conversationID, userID string) ([]models.ConversationBackup, error) {
	return []models.ConversationBackup{}, nil
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

// testRegistry builds a registry with injected fake providers.
func testRegistry(configs []models.ModelConfig, provs map[string]providers.Provider) *ModelRegistry {
	r := &ModelRegistry{
		models:    map[string]*models.ModelConfig{},
		providers: providers.NewRegistry(),
		log:       quietLogger(),
	}
	for i := range configs {
		cp := configs[i]
		r.models[cp.ID] = &cp
		r.order = append(r.order, cp.ID)
		if p, ok := provs[cp.ID]; ok {
			r.providers.Register(cp.ID, p)
		}
	}
	return r
}

func activeModel(id, provider string) models.ModelConfig {
	return models.ModelConfig{
		ID:           id,
		Name:         id,
		DisplayName:  id,
		Provider:     provider,
		ModelID:      id,
		MaxTokens:    4000,
		Temperature:  0.7,
		SystemPrompt: "You are a helpful AI assistant.",
		IsActive:     true,
	}
}

func TestSendMessage_HappyPath(t *testing.T) {
	repo := newFakeConvRepo()
	primary := &fakeProvider{name: "openai", reply: "4", tokens: 7}
	registry := testRegistry(
		[]models.ModelConfig{activeModel("gpt-4", models.ProviderOpenAI)},
		map[string]providers.Provider{"gpt-4": primary},
	)
	svc := NewChatService(repo, registry, quietLogger())

	conv, err := svc.CreateConversation(context.Background(), "u1", "gpt-4", "")
	require.NoError(t, err)

	result, err := svc.SendMessage(context.Background(), conv.ID, "u1", "What is 2+2?", "")
	require.NoError(t, err)

	assert.Equal(t, "4", result.Response)
	assert.Equal(t, 7, result.Tokens)
	assert.Equal(t, "gpt-4", result.Model.ID)
	require.Len(t, result.Conversation.Messages, 2)
	assert.Equal(t, models.RoleUser, result.Conversation.Messages[0].Role)
	assert.Equal(t, models.RoleAssistant, result.Conversation.Messages[1].Role)
	assert.Equal(t, 7, result.Conversation.TotalTokens)
	assert.Equal(t, 1, registry.models["gpt-4"].UsageCount)
}

func TestSendMessage_PromptWindowIncludesSystemPrompt(t *testing.T) {
	repo := newFakeConvRepo()
	primary := &fakeProvider{name: "openai", reply: "ok"}
	registry := testRegistry(
		[]models.ModelConfig{activeModel("gpt-4", models.ProviderOpenAI)},
		map[string]providers.Provider{"gpt-4": primary},
	)
	svc := NewChatService(repo, registry, quietLogger())

	conv, err := svc.CreateConversation(context.Background(), "u1", "gpt-4", "")
	require.NoError(t, err)

	_, err = svc.SendMessage(context.Background(), conv.ID, "u1", "Hello", "")
	require.NoError(t, err)

	require.NotEmpty(t, primary.lastReq.Messages)
	assert.Equal(t, models.RoleSystem, primary.lastReq.Messages[0].Role)
	assert.Equal(t, "You are a helpful AI assistant.", primary.lastReq.Messages[0].Content)
	assert.Equal(t, "Hello", primary.lastReq.Messages[len(primary.lastReq.Messages)-1].Content)
}

func TestSendMessage_PromptWindowBounded(t *testing.T) {
	repo := newFakeConvRepo()
	primary := &fakeProvider{name: "openai", reply: "ok"}
	registry := testRegistry(
		[]models.ModelConfig{activeModel("gpt-4", models.ProviderOpenAI)},
		map[string]providers.Provider{"gpt-4": primary},
	)
	svc := NewChatService(repo, registry, quietLogger())

	conv, err := svc.CreateConversation(context.Background(), "u1", "gpt-4", "")
	require.NoError(t, err)

	for i := 0; i < 30; i++ {
		_, err := repo.AddMessage(context.Background(), conv.ID, models.RoleUser, fmt.Sprintf("msg %d", i), 0, false)
		require.NoError(t, err)
	}

	_, err = svc.SendMessage(context.Background(), conv.ID, "u1", "latest", "")
	require.NoError(t, err)

	// System prompt plus at most 20 recent turns.
	assert.Len(t, primary.lastReq.Messages, promptWindowSize+1)
	assert.Equal(t, "latest", primary.lastReq.Messages[promptWindowSize].Content)
}

func TestSendMessage_FallbackPrefersCustomProvider(t *testing.T) {
	repo := newFakeConvRepo()
	primaryErr := providers.Classify("openai", fmt.Errorf("quota exceeded"))
	primary := &fakeProvider{name: "openai", err: primaryErr}
	other := &fakeProvider{name: "anthropic", reply: "should not be used"}
	local := &fakeProvider{name: "custom", reply: "local says hi", tokens: 3}
	registry := testRegistry(
		[]models.ModelConfig{
			activeModel("gpt-4", models.ProviderOpenAI),
			activeModel("claude-3-opus", models.ProviderAnthropic),
			activeModel("ollama-local", models.ProviderCustom),
		},
		map[string]providers.Provider{"gpt-4": primary, "claude-3-opus": other, "ollama-local": local},
	)
	svc := NewChatService(repo, registry, quietLogger())

	conv, err := svc.CreateConversation(context.Background(), "u1", "gpt-4", "")
	require.NoError(t, err)

	result, err := svc.SendMessage(context.Background(), conv.ID, "u1", "Hi", "")
	require.NoError(t, err)

	assert.Equal(t, "local says hi", result.Response)
	assert.Equal(t, "ollama-local", result.Model.ID)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, local.calls)
	assert.Equal(t, 0, other.calls)
}

func TestSendMessage_FallbackFailurePropagatesOriginalError(t *testing.T) {
	repo := newFakeConvRepo()
	primaryErr := providers.Classify("openai", fmt.Errorf("quota exceeded"))
	fallbackErr := providers.Classify("custom", fmt.Errorf("connection refused"))
	primary := &fakeProvider{name: "openai", err: primaryErr}
	local := &fakeProvider{name: "custom", err: fallbackErr}
	registry := testRegistry(
		[]models.ModelConfig{
			activeModel("gpt-4", models.ProviderOpenAI),
			activeModel("ollama-local", models.ProviderCustom),
		},
		map[string]providers.Provider{"gpt-4": primary, "ollama-local": local},
	)
	svc := NewChatService(repo, registry, quietLogger())

	conv, err := svc.CreateConversation(context.Background(), "u1", "gpt-4", "")
	require.NoError(t, err)

	_, err = svc.SendMessage(context.Background(), conv.ID, "u1", "Hi", "")
	require.Error(t, err)
	assert.Equal(t, primaryErr, err)
	assert.Equal(t, 1, local.calls)
}

func TestSendMessage_NoFallbackAvailable(t *testing.T) {
	repo := newFakeConvRepo()
	primaryErr := providers.Classify("openai", fmt.Errorf("quota exceeded"))
	primary := &fakeProvider{name: "openai", err: primaryErr}
	registry := testRegistry(
		[]models.ModelConfig{activeModel("gpt-4", models.ProviderOpenAI)},
		map[string]providers.Provider{"gpt-4": primary},
	)
	svc := NewChatService(repo, registry, quietLogger())

	conv, err := svc.CreateConversation(context.Background(), "u1", "gpt-4", "")
	require.NoError(t, err)

	_, err = svc.SendMessage(context.Background(), conv.ID, "u1", "Hi", "")
	assert.Equal(t, primaryErr, err)
	assert.Equal(t, 1, primary.calls)
}

func TestSendMessage_ModelOverride(t *testing.T) {
	repo := newFakeConvRepo()
	a := &fakeProvider{name: "openai", reply: "from a"}
	b := &fakeProvider{name: "anthropic", reply: "from b"}
	registry := testRegistry(
		[]models.ModelConfig{
			activeModel("gpt-4", models.ProviderOpenAI),
			activeModel("claude-3-opus", models.ProviderAnthropic),
		},
		map[string]providers.Provider{"gpt-4": a, "claude-3-opus": b},
	)
	svc := NewChatService(repo, registry, quietLogger())

	conv, err := svc.CreateConversation(context.Background(), "u1", "gpt-4", "")
	require.NoError(t, err)

	result, err := svc.SendMessage(context.Background(), conv.ID, "u1", "Hi", "claude-3-opus")
	require.NoError(t, err)
	assert.Equal(t, "from b", result.Response)
	assert.Equal(t, 0, a.calls)
}

func TestSendMessage_InvalidOverrideFallsBackToDefault(t *testing.T) {
	repo := newFakeConvRepo()
	def := activeModel("gpt-4", models.ProviderOpenAI)
	def.IsDefault = true
	primary := &fakeProvider{name: "openai", reply: "default replied"}
	registry := testRegistry(
		[]models.ModelConfig{
			def,
			activeModel("claude-3-opus", models.ProviderAnthropic),
		},
		map[string]providers.Provider{"gpt-4": primary},
	)
	svc := NewChatService(repo, registry, quietLogger())

	conv, err := svc.CreateConversation(context.Background(), "u1", "claude-3-opus", "")
	require.NoError(t, err)

	result, err := svc.SendMessage(context.Background(), conv.ID, "u1", "Hi", "no-such-model")
	require.NoError(t, err)
	assert.Equal(t, "default replied", result.Response)
	assert.Equal(t, "gpt-4", result.Model.ID)
}

func TestSendMessage_UnknownConversation(t *testing.T) {
	registry := testRegistry([]models.ModelConfig{activeModel("gpt-4", models.ProviderOpenAI)}, nil)
	svc := NewChatService(newFakeConvRepo(), registry, quietLogger())

	_, err := svc.SendMessage(context.Background(), "missing", "u1", "Hi", "")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestSendMessage_ForeignConversationDenied(t *testing.T) {
	repo := newFakeConvRepo()
	registry := testRegistry([]models.ModelConfig{activeModel("gpt-4", models.ProviderOpenAI)}, nil)
	svc := NewChatService(repo, registry, quietLogger())

	conv, err := svc.CreateConversation(context.Background(), "u1", "gpt-4", "")
	require.NoError(t, err)

	_, err = svc.SendMessage(context.Background(), conv.ID, "u2", "Hi", "")
	assert.ErrorIs(t, err, repository.ErrAccessDenied)
}

func TestCreateConversation_DefaultModel(t *testing.T) {
	repo := newFakeConvRepo()
	def := activeModel("gpt-4", models.ProviderOpenAI)
	def.IsDefault = true
	registry := testRegistry([]models.ModelConfig{def}, nil)
	svc := NewChatService(repo, registry, quietLogger())

	conv, err := svc.CreateConversation(context.Background(), "u1", "", "")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4", conv.ModelID)
	require.NotNil(t, conv.Model)
	assert.Equal(t, "gpt-4", conv.Model.ID)
}

func TestCreateConversation_UnknownModel(t *testing.T) {
	registry := testRegistry([]models.ModelConfig{activeModel("gpt-4", models.ProviderOpenAI)}, nil)
	svc := NewChatService(newFakeConvRepo(), registry, quietLogger())

	_, err := svc.CreateConversation(context.Background(), "u1", "nope", "")
	assert.ErrorIs(t, err, ErrModelNotFound)
}

func TestCreateConversation_InactiveModel(t *testing.T) {
	inactive := activeModel("gpt-4", models.ProviderOpenAI)
	inactive.IsActive = false
	registry := testRegistry([]models.ModelConfig{inactive}, nil)
	svc := NewChatService(newFakeConvRepo(), registry, quietLogger())

	_, err := svc.CreateConversation(context.Background(), "u1", "gpt-4", "")
	assert.ErrorIs(t, err, ErrModelInactive)
}
