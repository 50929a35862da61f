// Package mega implements the conversation repository on top of the MEGA
// object store client, with a process-lifetime write-through cache. The
// cache serves reads when the remote store is slow, absent or failing;
// during an outage it is the de facto source of truth, and the next
// successful write re-establishes remote durability.
package mega

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/studyhall/studyhall-backend/internal/megastore"
	"github.com/studyhall/studyhall-backend/internal/models"
	"github.com/studyhall/studyhall-backend/internal/repository"
)

// ObjectName is the single file stored per conversation folder.
const ObjectName = "conversation_data.json"

const maxDerivedTitleLen = 50

// ObjectStore is the slice of the megastore client the repository needs.
type ObjectStore interface {
	Enabled() bool
	UploadBuffer(ctx context.Context, segments []string, name string, data []byte) (*megastore.UploadResult, error)
	UpdateObject(ctx context.Context, handle string, segments []string, name string, data []byte) (*megastore.UploadResult, error)
	DownloadJSON(ctx context.Context, handle string, v interface{}) error
	ListFolder(ctx context.Context, segments []string) ([]megastore.Entry, error)
	IssuePublicLink(ctx context.Context, handle string) (string, error)
}

// ConversationRepository implements repository.ConversationRepository.
type ConversationRepository struct {
	store ObjectStore
	log   *logrus.Logger

	mu    sync.RWMutex
	cache map[string]*models.Conversation

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex
}

// NewConversationRepository creates a repository owning its own cache map.
// Construct once per process and pass by reference; there is no package
// state.
func NewConversationRepository(store ObjectStore, log *logrus.Logger) *ConversationRepository {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &ConversationRepository{
		store: store,
		log:   log,
		cache: make(map[string]*models.Conversation),
		locks: make(map[string]*sync.Mutex),
	}
}

func userSegments(userID string) []string {
	return []string{"users", userID, "userdata_files"}
}

func conversationSegments(userID, conversationID string) []string {
	return append(userSegments(userID), conversationID)
}

// convLock serializes mutations per conversation ID, so two requests in the
// same process cannot interleave append-update-persist sequences.
func (r *ConversationRepository) convLock(id string) *sync.Mutex {
	r.lockMu.Lock()
	defer r.lockMu.Unlock()
	l, ok := r.locks[id]
	if !ok {
		l = &sync.Mutex{}
		r.locks[id] = l
	}
	return l
}

func (r *ConversationRepository) cacheGet(id string) *models.Conversation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cache[id].Clone()
}

func (r *ConversationRepository) cachePut(conv *models.Conversation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache[conv.ID] = conv.Clone()
}

// Create builds the initial record and persists it best-effort. Remote
// failure is reflected in the Degraded flag, never in an error: creating a
// conversation must not block on store availability.
func (r *ConversationRepository) Create(ctx context.Context, userID, modelID, title string) (*models.Conversation, error) {
	if title == "" {
		title = models.DefaultConversationTitle
	}
	now := time.Now().UTC()
	conv := &models.Conversation{
		ID:        uuid.New().String(),
		UserID:    userID,
		ModelID:   modelID,
		Title:     title,
		Messages:  []models.Message{},
		CreatedAt: now,
		UpdatedAt: now,
		IsActive:  true,
		Metadata: models.ConversationMetadata{
			Version: "1.0",
			Source:  "mega-drive-storage",
		},
	}

	r.persistRemote(ctx, conv)
	r.cachePut(conv)

	r.log.WithFields(logrus.Fields{
		"conversation": conv.ID,
		"user":         userID,
		"degraded":     conv.Degraded,
	}).Info("conversation created")
	return conv.Clone(), nil
}

// AddMessage appends one immutable turn and updates the running totals. The
// cache is written unconditionally; the remote store only when persist is
// true, which lets the orchestrator flush a user/assistant pair with a
// single remote round trip.
func (r *ConversationRepository) AddMessage(ctx context.Context, conversationID, role, content string, tokens int, persist bool) (*models.Conversation, error) {
	lock := r.convLock(conversationID)
	lock.Lock()
	defer lock.Unlock()

	conv := r.cacheGet(conversationID)
	if conv == nil {
		// Mutations go through Get first, which loads and caches the owner's
		// record. An ID the cache has never seen carries no owner, so there
		// is no user folder to load it from.
		return nil, repository.ErrNotFound
	}

	now := time.Now().UTC()
	msg := models.Message{
		ID:        uuid.New().String(),
		Role:      role,
		Content:   content,
		Tokens:    tokens,
		Timestamp: now,
	}

	hadUserMessage := false
	for _, m := range conv.Messages {
		if m.Role == models.RoleUser {
			hadUserMessage = true
			break
		}
	}

	conv.Messages = append(conv.Messages, msg)
	conv.TotalTokens += tokens
	conv.LastMessageAt = &now
	conv.UpdatedAt = now

	if role == models.RoleUser && !hadUserMessage && conv.Title == models.DefaultConversationTitle {
		conv.Title = deriveTitle(content)
	}

	if persist {
		r.persistRemote(ctx, conv)
	}
	r.cachePut(conv)

	return conv.Clone(), nil
}

// Get serves cache hits immediately and falls back to a remote load keyed by
// the owner's folder path. Ownership is enforced here, not upstream.
func (r *ConversationRepository) Get(ctx context.Context, conversationID, userID string) (*models.Conversation, error) {
	if conv := r.cacheGet(conversationID); conv != nil {
		if conv.UserID != userID {
			return nil, repository.ErrAccessDenied
		}
		return conv, nil
	}

	conv, err := r.loadRemote(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.UserID != userID {
		return nil, repository.ErrAccessDenied
	}
	r.cachePut(conv)
	return conv.Clone(), nil
}

// ListForUser merges the remote folder listing with cache-only records (the
// ones created during an outage), sorts newest-first and paginates. Remote
// trouble degrades to whatever the cache knows; it never errors.
func (r *ConversationRepository) ListForUser(ctx context.Context, userID string, page, pageSize int) ([]models.ConversationSummary, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	type candidate struct {
		id        string
		createdAt time.Time
	}
	seen := make(map[string]bool)
	var candidates []candidate

	entries, err := r.store.ListFolder(ctx, userSegments(userID))
	if err != nil {
		r.log.WithError(err).WithField("user", userID).Warn("could not list remote conversations, serving cache only")
	}
	for _, e := range entries {
		if !e.Dir {
			continue
		}
		seen[e.Name] = true
		candidates = append(candidates, candidate{id: e.Name, createdAt: e.Timestamp})
	}

	r.mu.RLock()
	for id, conv := range r.cache {
		if conv.UserID == userID && !seen[id] {
			candidates = append(candidates, candidate{id: id, createdAt: conv.CreatedAt})
		}
	}
	r.mu.RUnlock()

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].createdAt.After(candidates[j].createdAt)
	})

	// Deactivated and foreign records are dropped before pagination; a page
	// is short only when the user genuinely runs out of conversations.
	summaries := []models.ConversationSummary{}
	for _, cand := range candidates {
		conv := r.cacheGet(cand.id)
		if conv == nil {
			loaded, err := r.loadRemote(ctx, userID, cand.id)
			if err != nil {
				r.log.WithError(err).WithField("conversation", cand.id).Warn("skipping unreadable conversation in listing")
				continue
			}
			r.cachePut(loaded)
			conv = loaded
		}
		if conv.UserID != userID || !conv.IsActive {
			continue
		}
		summaries = append(summaries, conv.Summary())
	}

	start := (page - 1) * pageSize
	if start >= len(summaries) {
		return []models.ConversationSummary{}, nil
	}
	end := start + pageSize
	if end > len(summaries) {
		end = len(summaries)
	}
	return summaries[start:end], nil
}

// UpdateTitle is a load-mutate-persist with the same ownership check as Get.
func (r *ConversationRepository) UpdateTitle(ctx context.Context, conversationID, userID, newTitle string) (*models.Conversation, error) {
	lock := r.convLock(conversationID)
	lock.Lock()
	defer lock.Unlock()

	conv, err := r.Get(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	conv.Title = strings.TrimSpace(newTitle)
	conv.UpdatedAt = time.Now().UTC()

	r.persistRemote(ctx, conv)
	r.cachePut(conv)
	return conv.Clone(), nil
}

// Deactivate soft-deletes: excluded from listings, still readable by owner.
func (r *ConversationRepository) Deactivate(ctx context.Context, conversationID, userID string) (*models.Conversation, error) {
	lock := r.convLock(conversationID)
	lock.Lock()
	defer lock.Unlock()

	conv, err := r.Get(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	conv.IsActive = false
	conv.UpdatedAt = time.Now().UTC()

	r.persistRemote(ctx, conv)
	r.cachePut(conv)
	return conv.Clone(), nil
}

// GetPublicURL returns the cached link, or asks the store to issue one for
// an already-persisted conversation. Empty string when the conversation has
// never reached the remote store.
func (r *ConversationRepository) GetPublicURL(ctx context.Context, conversationID, userID string) (string, error) {
	conv, err := r.Get(ctx, conversationID, userID)
	if err != nil {
		return "", err
	}
	if conv.PublicURL != "" {
		return conv.PublicURL, nil
	}
	if conv.RemoteHandle == "" {
		return "", nil
	}

	url, linkErr := r.store.IssuePublicLink(ctx, conv.RemoteHandle)
	if linkErr != nil || url == "" {
		r.log.WithError(linkErr).WithField("conversation", conversationID).Warn("could not issue public link")
		return "", nil
	}

	lock := r.convLock(conversationID)
	lock.Lock()
	defer lock.Unlock()
	if cached := r.cacheGet(conversationID); cached != nil {
		conv = cached
	}
	conv.PublicURL = url
	r.persistRemote(ctx, conv)
	r.cachePut(conv)
	return url, nil
}

// ListBackups returns the JSON objects stored in the conversation folder.
func (r *ConversationRepository) ListBackups(ctx context.Context, conversationID, userID string) ([]models.ConversationBackup, error) {
	if _, err := r.Get(ctx, conversationID, userID); err != nil {
		return nil, err
	}

	entries, err := r.store.ListFolder(ctx, conversationSegments(userID, conversationID))
	if err != nil {
		r.log.WithError(err).WithField("conversation", conversationID).Warn("could not list conversation backups")
		return []models.ConversationBackup{}, nil
	}

	backups := []models.ConversationBackup{}
	for _, e := range entries {
		if e.Dir || !strings.HasSuffix(e.Name, ".json") {
			continue
		}
		backups = append(backups, models.ConversationBackup{
			Name:      e.Name,
			Handle:    e.Handle,
			Size:      e.Size,
			Timestamp: e.Timestamp,
		})
	}
	return backups, nil
}

// persistRemote flushes the full record to the remote store. A failed
// attempt leaves the in-memory version authoritative and marks the record
// degraded; recovery happens opportunistically on the next write.
func (r *ConversationRepository) persistRemote(ctx context.Context, conv *models.Conversation) {
	data, err := json.MarshalIndent(conv, "", "  ")
	if err != nil {
		r.log.WithError(err).WithField("conversation", conv.ID).Error("could not serialize conversation")
		conv.Degraded = true
		return
	}

	segments := conversationSegments(conv.UserID, conv.ID)
	var res *megastore.UploadResult
	var storeErr error
	if conv.RemoteHandle != "" {
		res, storeErr = r.store.UpdateObject(ctx, conv.RemoteHandle, segments, ObjectName, data)
	} else {
		res, storeErr = r.store.UploadBuffer(ctx, segments, ObjectName, data)
	}

	if storeErr != nil || res == nil {
		conv.Degraded = true
		r.log.WithError(storeErr).WithField("conversation", conv.ID).Warn("conversation persist degraded to cache only")
		return
	}

	conv.Degraded = false
	conv.RemoteHandle = res.Handle
	if res.FolderPath != "" {
		conv.FolderPath = res.FolderPath
	}
	if res.PublicURL != "" {
		conv.PublicURL = res.PublicURL
	}
	r.log.WithFields(logrus.Fields{
		"conversation": conv.ID,
		"strategy":     res.Strategy,
	}).Debug("conversation persisted")
}

// loadRemote walks to the owner's conversation folder and decodes the
// record. Any store-level failure surfaces as ErrNotFound; the caller
// cannot distinguish "gone" from "unreachable" and should not need to.
func (r *ConversationRepository) loadRemote(ctx context.Context, userID, conversationID string) (*models.Conversation, error) {
	entries, err := r.store.ListFolder(ctx, conversationSegments(userID, conversationID))
	if err != nil {
		r.log.WithError(err).WithField("conversation", conversationID).Warn("remote load failed")
		return nil, repository.ErrNotFound
	}

	for _, e := range entries {
		if e.Dir || e.Name != ObjectName {
			continue
		}
		var conv models.Conversation
		if err := r.store.DownloadJSON(ctx, e.Handle, &conv); err != nil {
			r.log.WithError(err).WithField("conversation", conversationID).Warn("remote conversation unreadable")
			return nil, repository.ErrNotFound
		}
		conv.RemoteHandle = e.Handle
		return &conv, nil
	}
	return nil, repository.ErrNotFound
}

func deriveTitle(content string) string {
	title := strings.TrimSpace(content)
	if title == "" {
		return models.DefaultConversationTitle
	}
	runes := []rune(title)
	if len(runes) > maxDerivedTitleLen {
		return string(runes[:maxDerivedTitleLen]) + "..."
	}
	return title
}
