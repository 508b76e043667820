// Package planner turns an analysis path and planning configuration into an ordered,
// priority-tagged execution plan. It is a pure function: no I/O, no shared
// state, no external dependency surface to exercise.
package planner

import "github.com/kubilitics/hqee/pkg/types"

// Config carries the planning-relevant subset of the hybrid configuration.
type Config struct {
	EnableDynamicTools bool
	UseKnowledgeGraph  bool
	QueryLimit         int
}

// DefaultQueryLimit is the default vector_search result limit.
const DefaultQueryLimit = 10

// BuildPlan constructs an execution plan from an analysis path and
// planning configuration.
//
// Rules: vector_search always runs first (priority 0, required); when
// dynamic tools are enabled and the path is HYBRID or DYNAMIC, each
// required tool besides vector_search is appended as an optional step
// (cross_repo_tracer at priority 2, everything else at priority 3); knowledge-graph enrichment is flagged in shared context when
// requested globally or by the path.
func BuildPlan(path types.AnalysisPath, cfg Config) types.ExecutionPlan {
	limit := cfg.QueryLimit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}

	plan := types.ExecutionPlan{
		Query:    path.Query,
		PathType: path.PathType,
		Context:  map[string]interface{}{},
	}

	plan.Steps = append(plan.Steps, types.ExecutionStep{
		Tool: "vector_search",
		Parameters: map[string]interface{}{
			"query": path.Query,
			"limit": limit,
		},
		Priority: 0,
		Required: true,
	})

	dynamic := cfg.EnableDynamicTools && (path.PathType == types.PathHybrid || path.PathType == types.PathDynamic)
	if dynamic {
		seen := map[string]bool{"vector_search": true}
		for _, tool := range path.RequiredTools {
			if seen[tool] {
				continue
			}
			seen[tool] = true

			priority := 3
			if tool == "cross_repo_tracer" {
				priority = 2
			}

			plan.Steps = append(plan.Steps, types.ExecutionStep{
				Tool: tool,
				Parameters: map[string]interface{}{
					"query": path.Query,
				},
				Priority: priority,
				Required: false,
			})
		}
	}

	if cfg.UseKnowledgeGraph || path.Flags["use_knowledge_graph"] {
		plan.Context["requires_knowledge_graph"] = true
	}

	return plan
}
