package planner

import (
	"testing"

	"github.com/kubilitics/hqee/pkg/types"
)

func TestBuildPlanStaticOnlyVectorSearch(t *testing.T) {
	path := types.AnalysisPath{
		PathType:      types.PathStatic,
		Confidence:    0.85,
		RequiredTools: []string{"vector_search"},
		Query:         "where is TaskProcessor.execute defined",
	}

	plan := BuildPlan(path, Config{EnableDynamicTools: true})

	if len(plan.Steps) != 1 {
		t.Fatalf("expected 1 step, got %d: %+v", len(plan.Steps), plan.Steps)
	}
	step := plan.Steps[0]
	if step.Tool != "vector_search" || !step.Required || step.Priority != 0 {
		t.Fatalf("unexpected vector_search step: %+v", step)
	}
	if step.Parameters["limit"] != DefaultQueryLimit {
		t.Fatalf("expected default limit, got %v", step.Parameters["limit"])
	}
}

func TestBuildPlanHybridAppendsDynamicTools(t *testing.T) {
	path := types.AnalysisPath{
		PathType:      types.PathHybrid,
		Confidence:    0.9,
		RequiredTools: []string{"vector_search", "config_impact_analyzer"},
		Query:         "what changes if I set spring.datasource.url",
	}

	plan := BuildPlan(path, Config{EnableDynamicTools: true})

	if len(plan.Steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(plan.Steps))
	}
	if plan.Steps[1].Tool != "config_impact_analyzer" || plan.Steps[1].Required {
		t.Fatalf("unexpected second step: %+v", plan.Steps[1])
	}
	if plan.Steps[1].Priority != 3 {
		t.Fatalf("expected priority 3, got %d", plan.Steps[1].Priority)
	}
}

func TestBuildPlanCrossRepoGetsPriorityTwo(t *testing.T) {
	path := types.AnalysisPath{
		PathType:      types.PathHybrid,
		RequiredTools: []string{"vector_search", "cross_repo_tracer"},
		Query:         "TODO(security)",
	}

	plan := BuildPlan(path, Config{EnableDynamicTools: true})

	if len(plan.Steps) != 2 || plan.Steps[1].Tool != "cross_repo_tracer" || plan.Steps[1].Priority != 2 {
		t.Fatalf("unexpected plan: %+v", plan.Steps)
	}
}

func TestBuildPlanDynamicToolsDisabledEmitsOnlyVectorSearch(t *testing.T) {
	path := types.AnalysisPath{
		PathType:      types.PathHybrid,
		RequiredTools: []string{"vector_search", "cross_repo_tracer"},
		Query:         "anything",
	}

	plan := BuildPlan(path, Config{EnableDynamicTools: false})

	if len(plan.Steps) != 1 {
		t.Fatalf("expected dynamic tools disabled to emit only vector_search, got %+v", plan.Steps)
	}
}

func TestBuildPlanKnowledgeGraphFlagFromPath(t *testing.T) {
	path := types.AnalysisPath{
		PathType: types.PathStatic,
		Query:    "class hierarchy of AbstractTask",
		Flags:    map[string]bool{"use_knowledge_graph": true},
	}

	plan := BuildPlan(path, Config{})

	if plan.Context["requires_knowledge_graph"] != true {
		t.Fatalf("expected requires_knowledge_graph flag set, got %+v", plan.Context)
	}
}

func TestBuildPlanDeduplicatesRequiredTools(t *testing.T) {
	path := types.AnalysisPath{
		PathType:      types.PathHybrid,
		RequiredTools: []string{"vector_search", "vector_search", "knowledge_graph_query"},
		Query:         "dup",
	}

	plan := BuildPlan(path, Config{EnableDynamicTools: true})

	if len(plan.Steps) != 2 {
		t.Fatalf("expected dedup to 2 steps, got %+v", plan.Steps)
	}
}
