package executor

import (
	"context"
	"testing"
	"time"

	"github.com/kubilitics/hqee/internal/cache"
	"github.com/kubilitics/hqee/pkg/types"
)

type fakeTool struct {
	name    string
	execute func(ctx context.Context, params map[string]interface{}) (types.ToolResponse, error)
}

func (f *fakeTool) Name() string         { return f.name }
func (f *fakeTool) Schema() []ParamSpec  { return nil }
func (f *fakeTool) Execute(ctx context.Context, params map[string]interface{}) (types.ToolResponse, error) {
	return f.execute(ctx, params)
}

func succeedingTool(name string, data map[string]interface{}) *fakeTool {
	return &fakeTool{name: name, execute: func(ctx context.Context, params map[string]interface{}) (types.ToolResponse, error) {
		return types.ToolResponse{Success: true, Data: data}, nil
	}}
}

func TestExecutePlanEmptyQueryFailsValidation(t *testing.T) {
	reg := NewRegistry()
	ex := New(reg, Config{}, nil)
	defer ex.Shutdown(context.Background())

	resp := ex.ExecutePlan(context.Background(), types.ExecutionPlan{})
	if resp.Success {
		t.Fatalf("expected failure for empty query")
	}
	if resp.ToolErrors["request"] != types.ErrInvalidParameters {
		t.Fatalf("expected INVALID_PARAMETERS, got %+v", resp.ToolErrors)
	}
}

func TestExecutePlanEmptyStepsSucceeds(t *testing.T) {
	reg := NewRegistry()
	ex := New(reg, Config{}, nil)
	defer ex.Shutdown(context.Background())

	resp := ex.ExecutePlan(context.Background(), types.ExecutionPlan{Query: "q"})
	if !resp.Success {
		t.Fatalf("expected success for empty plan")
	}
}

func TestExecutePlanRunsStepsInPriorityOrder(t *testing.T) {
	reg := NewRegistry()
	var order []string
	reg.Register(&fakeTool{name: "a", execute: func(ctx context.Context, params map[string]interface{}) (types.ToolResponse, error) {
		order = append(order, "a")
		return types.ToolResponse{Success: true}, nil
	}})
	reg.Register(&fakeTool{name: "b", execute: func(ctx context.Context, params map[string]interface{}) (types.ToolResponse, error) {
		order = append(order, "b")
		return types.ToolResponse{Success: true}, nil
	}})
	ex := New(reg, Config{}, nil)
	defer ex.Shutdown(context.Background())

	plan := types.ExecutionPlan{
		Query: "q",
		Steps: []types.ExecutionStep{
			{Tool: "b", Priority: 1, Required: true},
			{Tool: "a", Priority: 0, Required: true},
		},
	}
	resp := ex.ExecutePlan(context.Background(), plan)
	if !resp.Success {
		t.Fatalf("expected success, got %+v", resp)
	}
	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Fatalf("expected priority order [a b], got %v", order)
	}
}

func TestExecutePlanMissingRequiredToolFailsImmediately(t *testing.T) {
	reg := NewRegistry()
	reg.Register(succeedingTool("vector_search", nil))
	ex := New(reg, Config{}, nil)
	defer ex.Shutdown(context.Background())

	plan := types.ExecutionPlan{
		Query: "q",
		Steps: []types.ExecutionStep{
			{Tool: "missing_tool", Priority: 0, Required: true},
			{Tool: "vector_search", Priority: 1, Required: true},
		},
	}
	resp := ex.ExecutePlan(context.Background(), plan)
	if resp.Success {
		t.Fatalf("expected failure when required tool is missing")
	}
	if _, ran := resp.ToolResponses["vector_search"]; ran {
		t.Fatalf("later step should not have run after required failure")
	}
}

func TestExecutePlanOptionalStepFailureDoesNotFailRequest(t *testing.T) {
	reg := NewRegistry()
	reg.Register(succeedingTool("vector_search", map[string]interface{}{"hits": 1}))
	ex := New(reg, Config{}, nil)
	defer ex.Shutdown(context.Background())

	plan := types.ExecutionPlan{
		Query: "q",
		Steps: []types.ExecutionStep{
			{Tool: "vector_search", Priority: 0, Required: true},
			{Tool: "cross_repo_tracer", Priority: 2, Required: false},
		},
	}
	resp := ex.ExecutePlan(context.Background(), plan)
	if !resp.Success {
		t.Fatalf("expected overall success despite missing optional tool, got %+v", resp)
	}
	if resp.ToolErrors["cross_repo_tracer"] != types.ErrInvalidParameters {
		t.Fatalf("expected optional tool error recorded, got %+v", resp.ToolErrors)
	}
}

func TestExecutePlanRequiredStepTimesOut(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&fakeTool{name: "slow", execute: func(ctx context.Context, params map[string]interface{}) (types.ToolResponse, error) {
		select {
		case <-time.After(200 * time.Millisecond):
			return types.ToolResponse{Success: true}, nil
		case <-ctx.Done():
			return types.ToolResponse{}, ctx.Err()
		}
	}})
	ex := New(reg, Config{RetryMaxRetries: 1}, nil)
	defer ex.Shutdown(context.Background())

	plan := types.ExecutionPlan{
		Query: "q",
		Steps: []types.ExecutionStep{{Tool: "slow", Priority: 0, Required: true}},
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	resp := ex.ExecutePlan(ctx, plan)
	if resp.Success {
		t.Fatalf("expected timeout failure")
	}
	if resp.ToolErrors["slow"] != types.ErrExecutionTimeout {
		t.Fatalf("expected EXECUTION_TIMEOUT, got %+v", resp.ToolErrors)
	}
}

func TestExecutePlanHarvestsContextForDownstreamSteps(t *testing.T) {
	reg := NewRegistry()
	reg.Register(succeedingTool("vector_search", map[string]interface{}{"top_id": "abc"}))
	var seenTopID interface{}
	reg.Register(&fakeTool{name: "config_impact_analyzer", execute: func(ctx context.Context, params map[string]interface{}) (types.ToolResponse, error) {
		seenTopID = params["vector_search_top_id"]
		return types.ToolResponse{Success: true}, nil
	}})
	ex := New(reg, Config{}, nil)
	defer ex.Shutdown(context.Background())

	plan := types.ExecutionPlan{
		Query:   "q",
		Context: map[string]interface{}{},
		Steps: []types.ExecutionStep{
			{Tool: "vector_search", Priority: 0, Required: true},
			{Tool: "config_impact_analyzer", Priority: 1, Required: false},
		},
	}
	resp := ex.ExecutePlan(context.Background(), plan)
	if !resp.Success {
		t.Fatalf("expected success, got %+v", resp)
	}
	if seenTopID != "abc" {
		t.Fatalf("expected downstream step to see harvested context, got %v", seenTopID)
	}
}

func TestExecutePlanServesRepeatCallsFromCache(t *testing.T) {
	reg := NewRegistry()
	calls := 0
	reg.Register(&fakeTool{name: "vector_search", execute: func(ctx context.Context, params map[string]interface{}) (types.ToolResponse, error) {
		calls++
		return types.ToolResponse{Success: true, Data: map[string]interface{}{"hits": calls}}, nil
	}})
	ex := New(reg, Config{}, nil)
	ex.SetCache(cache.NewCache(cache.Config{}))
	defer ex.Shutdown(context.Background())

	plan := types.ExecutionPlan{
		Query: "q",
		Steps: []types.ExecutionStep{{Tool: "vector_search", Priority: 0, Required: true, Parameters: map[string]interface{}{"query": "foo"}}},
	}
	first := ex.ExecutePlan(context.Background(), plan)
	second := ex.ExecutePlan(context.Background(), plan)

	if calls != 1 {
		t.Fatalf("expected the tool to run once and the second call to be served from cache, got %d calls", calls)
	}
	if first.ToolResponses["vector_search"].Data["hits"] != second.ToolResponses["vector_search"].Data["hits"] {
		t.Fatalf("expected identical cached response, got %+v and %+v", first, second)
	}
}

func TestExecutePlanCacheMissOnDifferentParameters(t *testing.T) {
	reg := NewRegistry()
	calls := 0
	reg.Register(&fakeTool{name: "vector_search", execute: func(ctx context.Context, params map[string]interface{}) (types.ToolResponse, error) {
		calls++
		return types.ToolResponse{Success: true}, nil
	}})
	ex := New(reg, Config{}, nil)
	ex.SetCache(cache.NewCache(cache.Config{}))
	defer ex.Shutdown(context.Background())

	run := func(query string) {
		plan := types.ExecutionPlan{
			Query: "q",
			Steps: []types.ExecutionStep{{Tool: "vector_search", Priority: 0, Required: true, Parameters: map[string]interface{}{"query": query}}},
		}
		ex.ExecutePlan(context.Background(), plan)
	}
	run("foo")
	run("bar")

	if calls != 2 {
		t.Fatalf("expected distinct parameters to bypass the cache, got %d calls", calls)
	}
}

func TestRegistryRejectsDuplicateNames(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(succeedingTool("vector_search", nil)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := reg.Register(succeedingTool("vector_search", nil)); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
}

func TestRegistryListIsSortedByName(t *testing.T) {
	reg := NewRegistry()
	reg.Register(succeedingTool("zeta", nil))
	reg.Register(succeedingTool("alpha", nil))

	list := reg.List()
	if len(list) != 2 || list[0].Name != "alpha" || list[1].Name != "zeta" {
		t.Fatalf("expected sorted list, got %+v", list)
	}
}
