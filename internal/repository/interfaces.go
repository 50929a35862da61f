package repository

import (
	"context"

	"github.com/studyhall/studyhall-backend/internal/models"
)

// ConversationRepository mediates between the in-memory cache, the remote
// object store and callers. Reads are cache-first; writes go through the
// cache unconditionally and to the remote store on a best-effort basis.
type ConversationRepository interface {
	// Create builds and stores a new conversation. It never fails on remote
	// unavailability; the returned record's Degraded flag reports whether
	// the remote persist succeeded.
	Create(ctx context.Context, userID, modelID, title string) (*models.Conversation, error)

	// AddMessage appends one turn. The persist flag defers the remote write
	// so a caller doing two sequential appends can flush once.
	AddMessage(ctx context.Context, conversationID, role, content string, tokens int, persist bool) (*models.Conversation, error)

	// Get returns the conversation, enforcing ownership.
	Get(ctx context.Context, conversationID, userID string) (*models.Conversation, error)

	// ListForUser returns summaries newest-first. An unreachable store or a
	// user with no conversations yields an empty slice, never an error.
	ListForUser(ctx context.Context, userID string, page, pageSize int) ([]models.ConversationSummary, error)

	UpdateTitle(ctx context.Context, conversationID, userID, newTitle string) (*models.Conversation, error)

	// Deactivate soft-deletes: the conversation drops out of listings but
	// stays readable by its owner.
	Deactivate(ctx context.Context, conversationID, userID string) (*models.Conversation, error)

	// GetPublicURL returns the shareable link for a persisted conversation,
	// issuing one on demand. Empty string when none can be produced.
	GetPublicURL(ctx context.Context, conversationID, userID string) (string, error)

	// ListBackups lists the stored JSON objects in the conversation's
	// remote folder.
	ListBackups(ctx context.Context, conversationID, userID string) ([]models.ConversationBackup, error)
}

// ModelStore persists admin-managed model configurations. Optional: when no
// database is configured the registry runs on env-seeded models alone.
type ModelStore interface {
	List(ctx context.Context) ([]models.ModelConfig, error)
	Upsert(ctx context.Context, m *models.ModelConfig) error
	RecordUsage(ctx context.Context, id string) error
}
