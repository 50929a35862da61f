package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/studyhall/studyhall-backend/internal/models"
	"github.com/studyhall/studyhall-backend/internal/repository"
)

// ModelStore implements repository.ModelStore using PostgreSQL. It backs
// the admin-managed part of the model registry; env-seeded models never
// touch it.
type ModelStore struct {
	db *sqlx.DB
}

// NewModelStore creates a new PostgreSQL model store.
func NewModelStore(db *sqlx.DB) repository.ModelStore {
	return &ModelStore{db: db}
}

// List returns all stored model configurations.
func (s *ModelStore) List(ctx context.Context) ([]models.ModelConfig, error) {
	var configs []models.ModelConfig
	query := `
		SELECT id, name, display_name, provider, api_key, base_url, model_id,
		       max_tokens, temperature, system_prompt, is_active, is_default,
		       description, usage_count, last_used
		FROM llm_models
		ORDER BY is_default DESC, display_name ASC
	`
	if err := s.db.SelectContext(ctx, &configs, query); err != nil {
		return nil, fmt.Errorf("list llm models: %w", err)
	}
	return configs, nil
}

// Upsert inserts or updates one model configuration. A model marked as
// default demotes any previous default.
func (s *ModelStore) Upsert(ctx context.Context, m *models.ModelConfig) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("upsert llm model: %w", err)
	}
	defer tx.Rollback()

	if m.IsDefault {
		if _, err := tx.ExecContext(ctx, `UPDATE llm_models SET is_default = FALSE WHERE id <> $1`, m.ID); err != nil {
			return fmt.Errorf("clear default model: %w", err)
		}
	}

	query := `
		INSERT INTO llm_models (id, name, display_name, provider, api_key, base_url, model_id,
		                        max_tokens, temperature, system_prompt, is_active, is_default,
		                        description, usage_count, last_used)
		VALUES (:id, :name, :display_name, :provider, :api_key, :base_url, :model_id,
		        :max_tokens, :temperature, :system_prompt, :is_active, :is_default,
		        :description, :usage_count, :last_used)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			display_name = EXCLUDED.display_name,
			provider = EXCLUDED.provider,
			api_key = EXCLUDED.api_key,
			base_url = EXCLUDED.base_url,
			model_id = EXCLUDED.model_id,
			max_tokens = EXCLUDED.max_tokens,
			temperature = EXCLUDED.temperature,
			system_prompt = EXCLUDED.system_prompt,
			is_active = EXCLUDED.is_active,
			is_default = EXCLUDED.is_default,
			description = EXCLUDED.description
	`
	if _, err := tx.NamedExecContext(ctx, query, m); err != nil {
		return fmt.Errorf("upsert llm model: %w", err)
	}
	return tx.Commit()
}

// RecordUsage bumps the usage counter and last-used timestamp.
func (s *ModelStore) RecordUsage(ctx context.Context, id string) error {
	query := `UPDATE llm_models SET usage_count = usage_count + 1, last_used = $1 WHERE id = $2`
	if _, err := s.db.ExecContext(ctx, query, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("record model usage: %w", err)
	}
	return nil
}
