package llmclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func TestCompleteSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Prompt == "" {
			t.Fatalf("expected prompt in request body")
		}
		env := chatEnvelope{Result: true}
		env.Data.Choices = []chatChoice{{}}
		env.Data.Choices[0].Message.Content = "CODE_SEARCH|0.92|vector_search"
		json.NewEncoder(w).Encode(env)
	}))
	defer srv.Close()

	c := New(Config{ChatCompletionURL: srv.URL, Model: "m", ModelVersion: "v"})
	content, err := c.Complete(context.Background(), "classify: where is retry logic?", 0.0, 64)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if !strings.HasPrefix(content, "CODE_SEARCH|") {
		t.Fatalf("unexpected content: %q", content)
	}
}

func TestCompleteProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(chatEnvelope{Result: false, Error: "model overloaded"})
	}))
	defer srv.Close()

	c := New(Config{ChatCompletionURL: srv.URL})
	_, err := c.Complete(context.Background(), "prompt", 0, 10)
	if err == nil || !strings.Contains(err.Error(), "model overloaded") {
		t.Fatalf("expected provider error, got %v", err)
	}
}

func TestCompleteRetriesOn5xxThenSucceeds(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		env := chatEnvelope{Result: true}
		env.Data.Choices = []chatChoice{{}}
		env.Data.Choices[0].Message.Content = "GENERAL|0.5|"
		json.NewEncoder(w).Encode(env)
	}))
	defer srv.Close()

	c := New(Config{ChatCompletionURL: srv.URL})
	content, err := c.Complete(context.Background(), "prompt", 0, 10)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if content != "GENERAL|0.5|" {
		t.Fatalf("unexpected content: %q", content)
	}
	if atomic.LoadInt32(&attempts) != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestEmbedFlatArrayShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[0.1,0.2,0.3]}`))
	}))
	defer srv.Close()

	c := New(Config{EmbeddingURL: srv.URL})
	vec, err := c.Embed(context.Background(), "some source text")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 3 || vec[0] != 0.1 {
		t.Fatalf("unexpected vector: %v", vec)
	}
}

func TestEmbedNestedObjectShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"embedding":[0.4,0.5]}]}`))
	}))
	defer srv.Close()

	c := New(Config{EmbeddingURL: srv.URL})
	vec, err := c.Embed(context.Background(), "some source text")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 2 || vec[1] != 0.5 {
		t.Fatalf("unexpected vector: %v", vec)
	}
}

func TestEmbedExhaustsRetriesOnPersistentFailure(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(Config{EmbeddingURL: srv.URL})
	_, err := c.Embed(context.Background(), "text")
	if err == nil {
		t.Fatalf("expected error after exhausting retries")
	}
	if atomic.LoadInt32(&attempts) != 3 {
		t.Fatalf("expected 3 attempts (default policy), got %d", attempts)
	}
}

func TestEmbedEmptyVectorIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	c := New(Config{EmbeddingURL: srv.URL})
	_, err := c.Embed(context.Background(), "text")
	if err == nil {
		t.Fatalf("expected error for empty embedding data")
	}
}
