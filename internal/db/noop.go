package db

import (
	"context"
	"fmt"
)

// noopStore implements Store as a no-op so the rest of the engine can depend
// on a Store unconditionally even when database.enabled is false.
type noopStore struct{}

// NewNoopStore returns a Store that rejects every write with a descriptive
// error, returns empty results for the list reads, and returns the same
// error from GetConversation. Used when persistence is disabled in
// configuration.
func NewNoopStore() Store { return noopStore{} }

var errPersistenceDisabled = fmt.Errorf("persistence disabled: set database.enabled to use conversation history")

func (noopStore) SaveConversation(ctx context.Context, rec *ConversationRecord) error {
	return errPersistenceDisabled
}

func (noopStore) GetConversation(ctx context.Context, id string) (*ConversationRecord, error) {
	return nil, errPersistenceDisabled
}

func (noopStore) ListConversations(ctx context.Context, limit, offset int) ([]*ConversationRecord, error) {
	return nil, nil
}

func (noopStore) AppendMessage(ctx context.Context, msg *MessageRecord) error {
	return errPersistenceDisabled
}

func (noopStore) GetMessages(ctx context.Context, conversationID string, limit int) ([]*MessageRecord, error) {
	return nil, nil
}

func (noopStore) DeleteConversation(ctx context.Context, id string) error {
	return errPersistenceDisabled
}

func (noopStore) Close() error { return nil }

func (noopStore) Ping(ctx context.Context) error { return nil }
