package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/studyhall/studyhall-backend/internal/config"
	"github.com/studyhall/studyhall-backend/internal/models"
	"github.com/studyhall/studyhall-backend/internal/providers"
	"github.com/studyhall/studyhall-backend/internal/providers/factory"
	"github.com/studyhall/studyhall-backend/internal/repository"
)

var (
	ErrModelNotFound  = errors.New("model not found")
	ErrModelInactive  = errors.New("model is not active")
	ErrNoActiveModels = errors.New("no active models configured")
	ErrInvalidModel   = errors.New("invalid model configuration")
)

const defaultSystemPrompt = "You are a helpful AI assistant."

// ModelRegistry holds the selectable model configurations and their provider
// instances. Models are seeded from environment configuration at startup,
// then merged with admin-managed rows when a database store is present.
type ModelRegistry struct {
	mu        sync.RWMutex
	models    map[string]*models.ModelConfig
	order     []string
	providers *providers.Registry
	store     repository.ModelStore
	log       *logrus.Logger
}

// NewModelRegistry builds the registry. store may be nil.
func NewModelRegistry(cfg *config.Config, store repository.ModelStore, log *logrus.Logger) *ModelRegistry {
	r := &ModelRegistry{
		models:    make(map[string]*models.ModelConfig),
		providers: providers.NewRegistry(),
		store:     store,
		log:       log,
	}

	for _, m := range seedModels(cfg) {
		r.add(m)
	}

	if store != nil {
		stored, err := store.List(context.Background())
		if err != nil {
			log.WithError(err).Warn("Failed to load models from database, using environment models only")
		} else {
			for i := range stored {
				r.add(stored[i])
			}
		}
	}

	if cfg.DefaultModel != "" {
		r.setDefault(cfg.DefaultModel)
	}

	if len(r.order) == 0 {
		log.Warn("No LLM API keys configured, no models available")
	} else {
		for _, id := range r.order {
			m := r.models[id]
			entry := log.WithFields(logrus.Fields{"model": m.DisplayName, "provider": m.Provider})
			if m.IsDefault {
				entry = entry.WithField("default", true)
			}
			entry.Info("Registered LLM model")
		}
	}

	return r
}

// add registers a model and builds its provider. Database rows override
// environment seeds with the same ID.
func (r *ModelRegistry) add(m models.ModelConfig) {
	provider, err := factory.CreateProvider(m)
	if err != nil {
		r.log.WithError(err).WithField("model", m.ID).Warn("Skipping model, provider construction failed")
		return
	}

	if _, exists := r.models[m.ID]; !exists {
		r.order = append(r.order, m.ID)
	}
	cp := m
	r.models[m.ID] = &cp
	r.providers.Register(m.ID, provider)
}

func (r *ModelRegistry) setDefault(id string) {
	if _, ok := r.models[id]; !ok {
		r.log.WithField("model", id).Warn("Configured default model is not registered")
		return
	}
	for _, m := range r.models {
		m.IsDefault = m.ID == id
	}
}

// Upsert registers or replaces a model configuration at runtime and writes
// it through to the store when one is configured. Missing tuning fields get
// the same defaults the environment seeds use.
func (r *ModelRegistry) Upsert(ctx context.Context, m models.ModelConfig) (*models.ModelConfig, error) {
	if m.ID == "" || m.Provider == "" {
		return nil, ErrInvalidModel
	}
	if m.Name == "" {
		m.Name = m.ID
	}
	if m.DisplayName == "" {
		m.DisplayName = m.ID
	}
	if m.ModelID == "" {
		m.ModelID = m.ID
	}
	if m.MaxTokens <= 0 {
		m.MaxTokens = 4000
	}
	if m.Temperature <= 0 {
		m.Temperature = 0.7
	}
	if m.SystemPrompt == "" {
		m.SystemPrompt = defaultSystemPrompt
	}

	provider, err := factory.CreateProvider(m)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidModel, err)
	}

	r.mu.Lock()
	if _, exists := r.models[m.ID]; !exists {
		r.order = append(r.order, m.ID)
	}
	cp := m
	r.models[m.ID] = &cp
	r.providers.Register(m.ID, provider)
	if m.IsDefault {
		r.setDefault(m.ID)
	}
	r.mu.Unlock()

	if r.store != nil {
		if err := r.store.Upsert(ctx, &cp); err != nil {
			r.log.WithError(err).WithField("model", m.ID).Warn("Failed to persist model configuration")
		}
	}

	r.log.WithFields(logrus.Fields{
		"model":    m.ID,
		"provider": m.Provider,
	}).Info("Model configuration upserted")

	out := cp
	return &out, nil
}

// List returns active models, default first. API keys never leave the
// registry; ModelConfig omits them from serialization.
func (r *ModelRegistry) List() []models.ModelConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.ModelConfig, 0, len(r.order))
	for _, id := range r.order {
		m := r.models[id]
		if m.IsActive {
			out = append(out, *m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].IsDefault && !out[j].IsDefault
	})
	return out
}

// Resolve returns the model with the given ID if it exists and is active.
func (r *ModelRegistry) Resolve(id string) (*models.ModelConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.models[id]
	if !ok {
		return nil, ErrModelNotFound
	}
	if !m.IsActive {
		return nil, ErrModelInactive
	}
	cp := *m
	return &cp, nil
}

// Default returns the configured default model, or the first active one.
func (r *ModelRegistry) Default() (*models.ModelConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var first *models.ModelConfig
	for _, id := range r.order {
		m := r.models[id]
		if !m.IsActive {
			continue
		}
		if m.IsDefault {
			cp := *m
			return &cp, nil
		}
		if first == nil {
			first = m
		}
	}
	if first == nil {
		return nil, ErrNoActiveModels
	}
	cp := *first
	return &cp, nil
}

// Fallback picks the model to retry with after excludeID failed. Locally
// hosted models are preferred since they cannot hit quota or billing limits.
func (r *ModelRegistry) Fallback(excludeID string) (*models.ModelConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var candidate *models.ModelConfig
	for _, id := range r.order {
		m := r.models[id]
		if m.ID == excludeID || !m.IsActive {
			continue
		}
		if m.Provider == models.ProviderCustom {
			cp := *m
			return &cp, nil
		}
		if candidate == nil {
			candidate = m
		}
	}
	if candidate == nil {
		return nil, ErrNoActiveModels
	}
	cp := *candidate
	return &cp, nil
}

// Provider returns the provider instance registered for a model ID.
func (r *ModelRegistry) Provider(modelID string) providers.Provider {
	return r.providers.Get(modelID)
}

// MarkUsed bumps the model's usage counters, in memory and in the store
// when one is configured.
func (r *ModelRegistry) MarkUsed(ctx context.Context, modelID string) {
	r.mu.Lock()
	if m, ok := r.models[modelID]; ok {
		m.UsageCount++
		now := time.Now().UTC()
		m.LastUsed = &now
	}
	r.mu.Unlock()

	if r.store != nil {
		if err := r.store.RecordUsage(ctx, modelID); err != nil {
			r.log.WithError(err).WithField("model", modelID).Warn("Failed to record model usage")
		}
	}
}

// seedModels derives the model list from configured API keys. A provider's
// models appear only when its key is set to a real value.
func seedModels(cfg *config.Config) []models.ModelConfig {
	var out []models.ModelConfig

	seed := func(id, displayName, provider, apiKey, baseURL, modelID string, maxTokens int, isDefault bool, description string) {
		out = append(out, models.ModelConfig{
			ID:           id,
			Name:         id,
			DisplayName:  displayName,
			Provider:     provider,
			APIKey:       apiKey,
			BaseURL:      baseURL,
			ModelID:      modelID,
			MaxTokens:    maxTokens,
			Temperature:  0.7,
			SystemPrompt: defaultSystemPrompt,
			IsActive:     true,
			IsDefault:    isDefault,
			Description:  description,
		})
	}

	if k := cfg.LLM.OpenAIKey; k != "" {
		seed("gpt-4", "GPT-4", models.ProviderOpenAI, k, "", "gpt-4", 8000, false, "OpenAI GPT-4")
		seed("gpt-4-turbo", "GPT-4 Turbo", models.ProviderOpenAI, k, "", "gpt-4-turbo-preview", 4000, false, "OpenAI GPT-4 Turbo")
		seed("gpt-3.5-turbo", "GPT-3.5 Turbo", models.ProviderOpenAI, k, "", "gpt-3.5-turbo", 4000, false, "OpenAI GPT-3.5 Turbo")
	}

	if k := cfg.LLM.AnthropicKey; k != "" {
		seed("claude-3-opus", "Claude 3 Opus", models.ProviderAnthropic, k, "", "claude-3-opus-20240229", 4000, false, "Anthropic Claude 3 Opus")
		seed("claude-3-sonnet", "Claude 3 Sonnet", models.ProviderAnthropic, k, "", "claude-3-sonnet-20240229", 4000, false, "Anthropic Claude 3 Sonnet")
		seed("claude-3-haiku", "Claude 3 Haiku", models.ProviderAnthropic, k, "", "claude-3-haiku-20240307", 4000, false, "Anthropic Claude 3 Haiku")
	}

	if k := cfg.LLM.OpenRouterKey; k != "" {
		seed("openrouter-gpt-4o-mini", "GPT-4o Mini (OpenRouter)", models.ProviderOpenRouter, k, "", "openai/gpt-4o-mini", 4000, true, "GPT-4o Mini via OpenRouter")
		seed("openrouter-llama-3.1-8b", "Llama 3.1 8B (OpenRouter)", models.ProviderOpenRouter, k, "", "meta-llama/llama-3.1-8b-instruct:free", 4000, false, "Llama 3.1 8B via OpenRouter")
		seed("openrouter-claude-3-opus", "Claude 3 Opus (OpenRouter)", models.ProviderOpenRouter, k, "", "anthropic/claude-3-opus", 4000, false, "Claude 3 Opus via OpenRouter")
	}

	if k := cfg.LLM.DeepSeekKey; k != "" {
		seed("deepseek-chat", "DeepSeek Chat", models.ProviderDeepSeek, k, "", "deepseek-chat", 4000, false, "DeepSeek Chat")
	}

	if k := cfg.LLM.GeminiKey; k != "" {
		seed("gemini-pro", "Gemini Pro", models.ProviderGemini, k, "", "gemini-pro", 4000, false, "Google Gemini Pro")
	}

	if base := cfg.LLM.OllamaBaseURL; base != "" {
		seed("ollama-local", "Local Model (Ollama)", models.ProviderCustom, "ollama", base, "llama3", 4000, false, "Locally hosted model via Ollama")
	}

	return out
}
