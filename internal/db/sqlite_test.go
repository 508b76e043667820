package db

import (
	"context"
	"testing"
	"time"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// ─── Conversations ────────────────────────────────────────────────────────────

func TestConversationCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv := &ConversationRecord{
		ID:        "conv-001",
		Title:     "impact analysis of payment-service config",
		CreatedAt: time.Now().Round(time.Second),
		UpdatedAt: time.Now().Round(time.Second),
	}

	if err := s.SaveConversation(ctx, conv); err != nil {
		t.Fatalf("SaveConversation: %v", err)
	}

	got, err := s.GetConversation(ctx, "conv-001")
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if got.Title != conv.Title {
		t.Errorf("expected title %q, got %q", conv.Title, got.Title)
	}

	conv.Title = "updated title"
	conv.UpdatedAt = time.Now().Round(time.Second)
	if err := s.SaveConversation(ctx, conv); err != nil {
		t.Fatalf("SaveConversation update: %v", err)
	}
	got, err = s.GetConversation(ctx, "conv-001")
	if err != nil {
		t.Fatalf("GetConversation after update: %v", err)
	}
	if got.Title != "updated title" {
		t.Errorf("expected updated title, got %q", got.Title)
	}
}

func TestConversationMessages(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv := &ConversationRecord{
		ID:        "conv-msg-001",
		Title:     "Test",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := s.SaveConversation(ctx, conv); err != nil {
		t.Fatalf("SaveConversation: %v", err)
	}

	messages := []*MessageRecord{
		{ConversationID: "conv-msg-001", Role: "query", Content: "where is retry.max-attempts used?", Metadata: "{}", Timestamp: time.Now()},
		{ConversationID: "conv-msg-001", Role: "classification", Content: "CONFIG_IMPACT", Metadata: "{}", Timestamp: time.Now().Add(time.Second)},
		{ConversationID: "conv-msg-001", Role: "response", Content: "3 references found", Metadata: "{}", Timestamp: time.Now().Add(2 * time.Second)},
	}

	for _, m := range messages {
		if err := s.AppendMessage(ctx, m); err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
	}

	got, err := s.GetMessages(ctx, "conv-msg-001", 10)
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("expected 3 messages, got %d", len(got))
	}
	if got[0].Role != "query" {
		t.Errorf("first message should be query, got %s", got[0].Role)
	}
	if got[1].Role != "classification" {
		t.Errorf("second message should be classification, got %s", got[1].Role)
	}
}

func TestListConversations(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		c := &ConversationRecord{
			ID:        "c-" + string(rune('0'+i)),
			Title:     "Conv",
			CreatedAt: time.Now().Add(time.Duration(i) * time.Second),
			UpdatedAt: time.Now().Add(time.Duration(i) * time.Second),
		}
		if err := s.SaveConversation(ctx, c); err != nil {
			t.Fatalf("SaveConversation: %v", err)
		}
	}

	list, err := s.ListConversations(ctx, 10, 0)
	if err != nil {
		t.Fatalf("ListConversations: %v", err)
	}
	if len(list) != 4 {
		t.Errorf("expected 4 conversations, got %d", len(list))
	}
}

func TestDeleteConversation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv := &ConversationRecord{
		ID: "del-conv", Title: "t",
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	if err := s.SaveConversation(ctx, conv); err != nil {
		t.Fatalf("SaveConversation: %v", err)
	}

	// Add a message — should cascade delete.
	if err := s.AppendMessage(ctx, &MessageRecord{
		ConversationID: "del-conv", Role: "query", Content: "hello",
		Metadata: "{}", Timestamp: time.Now(),
	}); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}

	if err := s.DeleteConversation(ctx, "del-conv"); err != nil {
		t.Fatalf("DeleteConversation: %v", err)
	}
	_, err := s.GetConversation(ctx, "del-conv")
	if err == nil {
		t.Error("expected error for deleted conversation, got nil")
	}

	msgs, err := s.GetMessages(ctx, "del-conv", 10)
	if err != nil {
		t.Fatalf("GetMessages after delete: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("expected 0 messages after conversation delete, got %d", len(msgs))
	}
}

// ─── Persistence health ───────────────────────────────────────────────────────

func TestPing(t *testing.T) {
	s := newTestStore(t)
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func TestIdempotentMigration(t *testing.T) {
	// Running migrations twice should not error.
	s, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	if err := s.(*sqliteStore).migrate(); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	_ = s.Close()
}

func TestNoopStore(t *testing.T) {
	s := NewNoopStore()
	ctx := context.Background()

	if err := s.SaveConversation(ctx, &ConversationRecord{ID: "x"}); err == nil {
		t.Error("expected error from noop store SaveConversation")
	}
	list, err := s.ListConversations(ctx, 10, 0)
	if err != nil || list != nil {
		t.Errorf("expected empty, nil-error result from noop store, got %v, %v", list, err)
	}
	if err := s.Ping(ctx); err != nil {
		t.Errorf("Ping on noop store should not error, got %v", err)
	}
}
