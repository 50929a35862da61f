package services

import (
	"context"
	"encoding/json"
	"testing"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyhall/studyhall-backend/internal/config"
	"github.com/studyhall/studyhall-backend/internal/models"
)

type fakeModelStore struct {
	rows    []models.ModelConfig
	upserts []models.ModelConfig
	usage   []string
}

func (f *fakeModelStore) List(ctx context.Context) ([]models.ModelConfig, error) {
	return f.rows, nil
}

func (f *fakeModelStore) Upsert(ctx context.Context, m *models.ModelConfig) error {
	f.upserts = append(f.upserts, *m)
	return nil
}

func (f *fakeModelStore) RecordUsage(ctx context.Context, id string) error {
	f.usage = append(f.usage, id)
	return nil
}

func TestSeedModels_OnlyConfiguredProviders(t *testing.T) {
	cfg := &config.Config{}
	cfg.LLM.AnthropicKey = "sk-ant-real"

	seeded := seedModels(cfg)
	require.NotEmpty(t, seeded)
	for _, m := range seeded {
		assert.Equal(t, models.ProviderAnthropic, m.Provider)
	}
}

func TestSeedModels_EmptyWithoutKeys(t *testing.T) {
	assert.Empty(t, seedModels(&config.Config{}))
}

func TestSeedModels_OllamaEntry(t *testing.T) {
	cfg := &config.Config{}
	cfg.LLM.OllamaBaseURL = "http://localhost:11434/v1"

	seeded := seedModels(cfg)
	require.Len(t, seeded, 1)
	assert.Equal(t, models.ProviderCustom, seeded[0].Provider)
	assert.Equal(t, "http://localhost:11434/v1", seeded[0].BaseURL)
}

func TestRegistry_DefaultSelection(t *testing.T) {
	cfg := &config.Config{}
	cfg.LLM.OpenAIKey = "sk-real"
	cfg.LLM.OpenRouterKey = "sk-or-real"

	r := NewModelRegistry(cfg, nil, quietLogger())

	def, err := r.Default()
	require.NoError(t, err)
	assert.Equal(t, "openrouter-gpt-4o-mini", def.ID)

	// List puts the default first.
	list := r.List()
	require.NotEmpty(t, list)
	assert.Equal(t, def.ID, list[0].ID)
}

func TestRegistry_ConfiguredDefaultOverride(t *testing.T) {
	cfg := &config.Config{}
	cfg.LLM.OpenAIKey = "sk-real"
	cfg.LLM.OpenRouterKey = "sk-or-real"
	cfg.DefaultModel = "gpt-4"

	r := NewModelRegistry(cfg, nil, quietLogger())

	def, err := r.Default()
	require.NoError(t, err)
	assert.Equal(t, "gpt-4", def.ID)
}

func TestRegistry_Resolve(t *testing.T) {
	cfg := &config.Config{}
	cfg.LLM.OpenAIKey = "sk-real"

	r := NewModelRegistry(cfg, nil, quietLogger())

	m, err := r.Resolve("gpt-4")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4", m.ModelID)

	_, err = r.Resolve("no-such-model")
	assert.ErrorIs(t, err, ErrModelNotFound)
}

func TestRegistry_FallbackPrefersCustom(t *testing.T) {
	cfg := &config.Config{}
	cfg.LLM.OpenAIKey = "sk-real"
	cfg.LLM.AnthropicKey = "sk-ant-real"
	cfg.LLM.OllamaBaseURL = "http://localhost:11434/v1"

	r := NewModelRegistry(cfg, nil, quietLogger())

	fb, err := r.Fallback("gpt-4")
	require.NoError(t, err)
	assert.Equal(t, models.ProviderCustom, fb.Provider)
}

func TestRegistry_FallbackWithoutCustomPicksAnother(t *testing.T) {
	cfg := &config.Config{}
	cfg.LLM.OpenAIKey = "sk-real"
	cfg.LLM.AnthropicKey = "sk-ant-real"

	r := NewModelRegistry(cfg, nil, quietLogger())

	fb, err := r.Fallback("gpt-4")
	require.NoError(t, err)
	assert.NotEqual(t, "gpt-4", fb.ID)
}

func TestRegistry_FallbackNothingLeft(t *testing.T) {
	cfg := &config.Config{}
	cfg.LLM.DeepSeekKey = "sk-real"

	r := NewModelRegistry(cfg, nil, quietLogger())

	_, err := r.Fallback("deepseek-chat")
	assert.ErrorIs(t, err, ErrNoActiveModels)
}

func TestRegistry_Upsert(t *testing.T) {
	cfg := &config.Config{}
	cfg.LLM.OpenAIKey = "sk-real"
	store := &fakeModelStore{}

	r := NewModelRegistry(cfg, store, quietLogger())

	saved, err := r.Upsert(context.Background(), models.ModelConfig{
		ID:       "local-llama",
		Provider: models.ProviderCustom,
		APIKey:   "ollama",
		BaseURL:  "http://localhost:11434/v1",
		IsActive: true,
	})
	require.NoError(t, err)

	// Missing tuning fields are filled with the seed defaults.
	assert.Equal(t, "local-llama", saved.Name)
	assert.Equal(t, "local-llama", saved.ModelID)
	assert.Equal(t, 4000, saved.MaxTokens)
	assert.InDelta(t, 0.7, saved.Temperature, 0.001)

	m, err := r.Resolve("local-llama")
	require.NoError(t, err)
	assert.Equal(t, models.ProviderCustom, m.Provider)

	require.Len(t, store.upserts, 1)
	assert.Equal(t, "local-llama", store.upserts[0].ID)
}

func TestRegistry_UpsertNewDefault(t *testing.T) {
	cfg := &config.Config{}
	cfg.LLM.OpenRouterKey = "sk-or-real"

	r := NewModelRegistry(cfg, nil, quietLogger())

	_, err := r.Upsert(context.Background(), models.ModelConfig{
		ID:        "local-llama",
		Provider:  models.ProviderCustom,
		APIKey:    "ollama",
		BaseURL:   "http://localhost:11434/v1",
		IsActive:  true,
		IsDefault: true,
	})
	require.NoError(t, err)

	def, err := r.Default()
	require.NoError(t, err)
	assert.Equal(t, "local-llama", def.ID)

	// The previous default is demoted.
	prev, err := r.Resolve("openrouter-gpt-4o-mini")
	require.NoError(t, err)
	assert.False(t, prev.IsDefault)
}

func TestRegistry_UpsertRejectsInvalid(t *testing.T) {
	r := NewModelRegistry(&config.Config{}, nil, quietLogger())

	_, err := r.Upsert(context.Background(), models.ModelConfig{Provider: models.ProviderOpenAI})
	assert.ErrorIs(t, err, ErrInvalidModel)

	// A custom provider without an endpoint cannot be constructed.
	_, err = r.Upsert(context.Background(), models.ModelConfig{
		ID:       "broken",
		Provider: models.ProviderCustom,
		APIKey:   "k",
	})
	assert.ErrorIs(t, err, ErrInvalidModel)
}

func TestRegistry_LogsEffectiveDefault(t *testing.T) {
	cfg := &config.Config{}
	cfg.LLM.OpenAIKey = "sk-real"
	cfg.LLM.OpenRouterKey = "sk-or-real"
	cfg.DefaultModel = "gpt-4"

	log, hook := logtest.NewNullLogger()
	NewModelRegistry(cfg, nil, log)

	var defaults []string
	for _, e := range hook.AllEntries() {
		if e.Message != "Registered LLM model" {
			continue
		}
		if v, ok := e.Data["default"]; ok && v == true {
			defaults = append(defaults, e.Data["model"].(string))
		}
	}
	require.Len(t, defaults, 1)
	assert.Equal(t, "GPT-4", defaults[0])
}

func TestRegistry_MarkUsed(t *testing.T) {
	cfg := &config.Config{}
	cfg.LLM.OpenAIKey = "sk-real"

	r := NewModelRegistry(cfg, nil, quietLogger())
	r.MarkUsed(context.Background(), "gpt-4")

	m, err := r.Resolve("gpt-4")
	require.NoError(t, err)
	assert.Equal(t, 1, m.UsageCount)
	assert.NotNil(t, m.LastUsed)
}

func TestRegistry_ListNeverExposesKeys(t *testing.T) {
	cfg := &config.Config{}
	cfg.LLM.OpenAIKey = "sk-super-secret"

	r := NewModelRegistry(cfg, nil, quietLogger())
	data, err := json.Marshal(r.List())
	require.NoError(t, err)
	assert.NotContains(t, string(data), "sk-super-secret")
}
