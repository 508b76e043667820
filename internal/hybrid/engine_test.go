package hybrid

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	classifierpkg "github.com/kubilitics/hqee/internal/classifier"
	"github.com/kubilitics/hqee/internal/executor"
	"github.com/kubilitics/hqee/internal/knowledgegraph"
	"github.com/kubilitics/hqee/internal/llmclient"
	"github.com/kubilitics/hqee/pkg/types"
)

type fakeTool struct {
	name    string
	execute func(ctx context.Context, params map[string]interface{}) (types.ToolResponse, error)
}

func (f *fakeTool) Name() string                { return f.name }
func (f *fakeTool) Schema() []executor.ParamSpec { return nil }
func (f *fakeTool) Execute(ctx context.Context, params map[string]interface{}) (types.ToolResponse, error) {
	return f.execute(ctx, params)
}

// classificationServer returns a test chat-completion endpoint that always
// classifies as category, optionally requiring tools.
func classificationServer(t *testing.T, line string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		type chatChoice struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		}
		env := struct {
			Result bool `json:"result"`
			Data   struct {
				Choices []chatChoice `json:"choices"`
			} `json:"data"`
		}{Result: true}
		env.Data.Choices = []chatChoice{{}}
		env.Data.Choices[0].Message.Content = line
		json.NewEncoder(w).Encode(env)
	}))
}

func newTestClassifier(t *testing.T, line string) (*classifierpkg.Classifier, func()) {
	t.Helper()
	srv := classificationServer(t, line)
	llm := llmclient.New(llmclient.Config{ChatCompletionURL: srv.URL})
	return classifierpkg.New(llm, classifierpkg.Config{MaxTokens: 64}, nil), srv.Close
}

func newTestExecutor(t *testing.T, tools ...*fakeTool) *executor.Executor {
	t.Helper()
	reg := executor.NewRegistry()
	for _, tool := range tools {
		if err := reg.Register(tool); err != nil {
			t.Fatalf("register %s: %v", tool.name, err)
		}
	}
	return executor.New(reg, executor.Config{}, nil)
}

func TestProcessStaticPathSucceeds(t *testing.T) {
	classifier, closeSrv := newTestClassifier(t, "CODE_SEARCH|0.9|vector_search")
	defer closeSrv()

	ex := newTestExecutor(t, &fakeTool{name: "vector_search", execute: func(ctx context.Context, params map[string]interface{}) (types.ToolResponse, error) {
		return types.ToolResponse{Success: true, Data: map[string]interface{}{"count": 1}}, nil
	}})
	defer ex.Shutdown(context.Background())

	engine := New(classifier, ex, nil, nil, Config{})
	result := engine.Process(context.Background(), "where is retry logic?")

	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	if result.FallbackUsed {
		t.Fatalf("expected no fallback on a successful static path")
	}
}

func TestProcessFallsBackToStaticOnRequiredToolFailure(t *testing.T) {
	classifier, closeSrv := newTestClassifier(t, "CALL_PATH|0.9|vector_search,knowledge_graph_query")
	defer closeSrv()

	attempt := 0
	vectorSearch := &fakeTool{name: "vector_search", execute: func(ctx context.Context, params map[string]interface{}) (types.ToolResponse, error) {
		attempt++
		if attempt == 1 {
			return types.ToolResponse{}, executor.NewToolError(types.ErrExecutionTimeout, context.DeadlineExceeded)
		}
		return types.ToolResponse{Success: true, Data: map[string]interface{}{"count": 1}}, nil
	}}
	ex := newTestExecutor(t, vectorSearch)
	defer ex.Shutdown(context.Background())

	engine := New(classifier, ex, nil, nil, Config{FallbackToStatic: true, EnableDynamicTools: true})
	result := engine.Process(context.Background(), "what calls Foo?")

	if !result.Success {
		t.Fatalf("expected the fallback attempt to succeed, got %+v", result)
	}
	if !result.FallbackUsed {
		t.Fatalf("expected FallbackUsed=true")
	}
}

func TestProcessDoesNotFallBackWhenAlreadyStaticVectorOnly(t *testing.T) {
	classifier, closeSrv := newTestClassifier(t, "CODE_SEARCH|0.9|vector_search")
	defer closeSrv()

	ex := newTestExecutor(t, &fakeTool{name: "vector_search", execute: func(ctx context.Context, params map[string]interface{}) (types.ToolResponse, error) {
		return types.ToolResponse{}, executor.NewToolError(types.ErrExecutionError, context.DeadlineExceeded)
	}})
	defer ex.Shutdown(context.Background())

	engine := New(classifier, ex, nil, nil, Config{FallbackToStatic: true})
	result := engine.Process(context.Background(), "where is retry logic?")

	if result.Success {
		t.Fatalf("expected failure since the static plan itself failed")
	}
	if result.FallbackUsed {
		t.Fatalf("did not expect a fallback retry when the primary plan was already the static vector-only plan")
	}
}

const sampleWidgetSource = `package com.example.widgets;

public class Widget {
    public int area() {
        return 0;
    }
}
`

func TestProcessEnrichesWithKnowledgeGraphEntities(t *testing.T) {
	classifier, closeSrv := newTestClassifier(t, "CODE_STRUCTURE|0.9|vector_search")
	defer closeSrv()

	dir := t.TempDir()
	writeFile(t, dir, "Widget.java", sampleWidgetSource)

	graph := knowledgegraph.New(filepath.Join(dir, "graph.bin"), nil)
	if err := graph.Build(context.Background(), dir, true); err != nil {
		t.Fatalf("Build: %v", err)
	}

	var sawEntities []types.CodeEntity
	ex := newTestExecutor(t, &fakeTool{name: "vector_search", execute: func(ctx context.Context, params map[string]interface{}) (types.ToolResponse, error) {
		if raw, ok := params["knowledge_graph_entities"].([]types.CodeEntity); ok {
			sawEntities = raw
		}
		return types.ToolResponse{Success: true, Data: map[string]interface{}{}}, nil
	}})
	defer ex.Shutdown(context.Background())

	engine := New(classifier, ex, graph, nil, Config{UseKnowledgeGraph: true})
	result := engine.Process(context.Background(), "Widget")

	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	if len(result.KnowledgeGraphEntities) == 0 {
		t.Errorf("expected enrichment to find the Widget entity")
	}
	if len(sawEntities) == 0 {
		t.Errorf("expected the tool to see knowledge_graph_entities merged into its parameters")
	}
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
