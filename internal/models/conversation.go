package models

import (
	"time"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// DefaultConversationTitle is the title given to a conversation before the
// first user message provides a better one.
const DefaultConversationTitle = "New Conversation"

// Message is one turn within a conversation. Immutable once appended.
type Message struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Tokens    int       `json:"tokens"`
	Timestamp time.Time `json:"timestamp"`
}

// ConversationMetadata tags the serialized record with its format version
// and origin.
type ConversationMetadata struct {
	Version string `json:"version"`
	Source  string `json:"source"`
}

// Conversation is the durable chat record persisted as a single JSON object
// in the remote store. Messages are append-only; TotalTokens always equals
// the sum of per-message token counts.
type Conversation struct {
	ID            string               `json:"id"`
	UserID        string               `json:"userId"`
	ModelID       string               `json:"modelId"`
	Title         string               `json:"title"`
	Messages      []Message            `json:"messages"`
	CreatedAt     time.Time            `json:"createdAt"`
	UpdatedAt     time.Time            `json:"updatedAt"`
	LastMessageAt *time.Time           `json:"lastMessageAt"`
	TotalTokens   int                  `json:"totalTokens"`
	IsActive      bool                 `json:"isActive"`
	Metadata      ConversationMetadata `json:"metadata"`

	// Remote bookkeeping, filled in once the record has been persisted.
	RemoteHandle string `json:"remoteHandle,omitempty"`
	PublicURL    string `json:"publicUrl,omitempty"`
	FolderPath   string `json:"folderPath,omitempty"`

	// Degraded is set when the last persist attempt did not reach the
	// remote store and the in-memory copy is the only durable one.
	Degraded bool `json:"-"`
}

// Clone returns a deep copy so cached conversations are never aliased by
// callers.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Messages = make([]Message, len(c.Messages))
	copy(cp.Messages, c.Messages)
	if c.LastMessageAt != nil {
		t := *c.LastMessageAt
		cp.LastMessageAt = &t
	}
	return &cp
}

// ConversationSummary is the list-view projection: no message bodies.
type ConversationSummary struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	ModelID       string     `json:"modelId"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
	LastMessageAt *time.Time `json:"lastMessageAt"`
	MessageCount  int        `json:"messageCount"`
	TotalTokens   int        `json:"totalTokens"`
	IsActive      bool       `json:"isActive"`
}

// Summary projects a conversation into its list-view form.
func (c *Conversation) Summary() ConversationSummary {
	return ConversationSummary{
		ID:            c.ID,
		Title:         c.Title,
		ModelID:       c.ModelID,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
		LastMessageAt: c.LastMessageAt,
		MessageCount:  len(c.Messages),
		TotalTokens:   c.TotalTokens,
		IsActive:      c.IsActive,
	}
}

// ConversationBackup describes one stored object in a conversation's remote
// folder.
type ConversationBackup struct {
	Name      string    `json:"name"`
	Handle    string    `json:"handle"`
	Size      int64     `json:"size"`
	Timestamp time.Time `json:"timestamp"`
}
