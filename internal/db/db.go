package db

import (
	"context"
	"time"
)

// Store is the optional persistence interface for chat and ticket history.
// It is only wired up when database.enabled is true; otherwise NoopStore
// is used so the rest of the engine never has to branch on whether
// persistence is configured.
type Store interface {
	ConversationStore

	// Close releases database resources.
	Close() error

	// Ping verifies the connection is alive.
	Ping(ctx context.Context) error
}

// ─── Conversation store ───────────────────────────────────────────────────────

// ConversationRecord is a persisted conversation session — a single chat or
// support-ticket thread that accumulates query/response turns over time.
type ConversationRecord struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MessageRecord is a single message in a conversation: either the original
// query, the classifier's category, or a tool/engine response.
type MessageRecord struct {
	ID             int64     `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"` // query | classification | plan | response
	Content        string    `json:"content"`
	Metadata       string    `json:"metadata"` // JSON blob, e.g. correlation id
	Timestamp      time.Time `json:"timestamp"`
}

// ConversationStore persists multi-turn query/response history.
type ConversationStore interface {
	// SaveConversation creates or updates a conversation.
	SaveConversation(ctx context.Context, rec *ConversationRecord) error

	// GetConversation retrieves a conversation by ID.
	GetConversation(ctx context.Context, id string) (*ConversationRecord, error)

	// ListConversations returns conversations newest first.
	ListConversations(ctx context.Context, limit, offset int) ([]*ConversationRecord, error)

	// AppendMessage adds a message to a conversation.
	AppendMessage(ctx context.Context, msg *MessageRecord) error

	// GetMessages returns messages for a conversation, oldest first.
	GetMessages(ctx context.Context, conversationID string, limit int) ([]*MessageRecord, error)

	// DeleteConversation removes a conversation and all its messages.
	DeleteConversation(ctx context.Context, id string) error
}
