package executor

import (
	"context"
	"fmt"

	"github.com/kubilitics/hqee/internal/configimpact"
	"github.com/kubilitics/hqee/internal/crossrepo"
	"github.com/kubilitics/hqee/internal/knowledgegraph"
	"github.com/kubilitics/hqee/internal/vectorstore"
	"github.com/kubilitics/hqee/pkg/types"
)

// VectorSearchTool embeds a query and returns the most similar stored
// entities. It is the one tool every execution plan includes.
type VectorSearchTool struct {
	Store *vectorstore.Store
}

func (t *VectorSearchTool) Name() string { return "vector_search" }

func (t *VectorSearchTool) Schema() []ParamSpec {
	return []ParamSpec{
		{Name: "query", Type: "string", Required: true},
		{Name: "limit", Type: "int", Default: 10},
		{Name: "min_similarity", Type: "float", Default: 0.0},
		{Name: "namespaces", Type: "[]string"},
	}
}

func (t *VectorSearchTool) Execute(ctx context.Context, params map[string]interface{}) (types.ToolResponse, error) {
	query := paramString(params, "query", "")
	if query == "" {
		return missingParam("query")
	}

	if t.Store.IsDegraded() {
		data := map[string]interface{}{
			"results":  []vectorstore.SimilarityResult{},
			"count":    0,
			"degraded": true,
		}
		return types.ToolResponse{Success: true, Message: "vector store is degraded; skipping embedding attempt", Data: data}, nil
	}

	vector, err := t.Store.GenerateEmbedding(ctx, query)
	if err != nil {
		return types.ToolResponse{}, fmt.Errorf("vector_search: embed query: %w", err)
	}

	limit := paramInt(params, "limit", 10)
	minSimilarity := paramFloat64(params, "min_similarity", 0.0)
	namespaces := paramStringSlice(params, "namespaces")

	results := t.Store.FindSimilar(ctx, vector, limit, minSimilarity, namespaces)

	data := map[string]interface{}{
		"results":  results,
		"count":    len(results),
		"degraded": false,
	}
	return types.ToolResponse{Success: true, Message: "vector search complete", Data: data}, nil
}

// CrossRepoTracerTool runs a bounded parallel literal/regex search across
// every discovered repository.
type CrossRepoTracerTool struct {
	Searcher *crossrepo.Searcher
}

func (t *CrossRepoTracerTool) Name() string { return "cross_repo_tracer" }

func (t *CrossRepoTracerTool) Schema() []ParamSpec {
	return []ParamSpec{
		{Name: "query", Type: "string", Required: true},
		{Name: "regex", Type: "bool", Default: false},
		{Name: "case_sensitive", Type: "bool", Default: false},
		{Name: "extensions", Type: "[]string"},
		{Name: "repositories", Type: "[]string"},
	}
}

func (t *CrossRepoTracerTool) Execute(ctx context.Context, params map[string]interface{}) (types.ToolResponse, error) {
	term := paramString(params, "query", "")
	if term == "" {
		return missingParam("query")
	}

	req := crossrepo.Request{
		Term:          term,
		Regex:         paramBool(params, "regex", false),
		CaseSensitive: paramBool(params, "case_sensitive", false),
		Extensions:    paramStringSlice(params, "extensions"),
		Repositories:  paramStringSlice(params, "repositories"),
	}

	result, err := t.Searcher.Search(ctx, req)
	if err != nil {
		return types.ToolResponse{}, fmt.Errorf("cross_repo_tracer: %w", err)
	}

	data := map[string]interface{}{
		"references":     result.References,
		"repos_scanned":  result.ReposScanned,
		"repos_matched":  result.ReposMatched,
		"elapsed_millis": result.ElapsedMillis,
	}
	return types.ToolResponse{Success: true, Message: "cross-repository search complete", Data: data}, nil
}

// ConfigImpactAnalyzerTool rates the blast radius of changing a
// configuration property.
type ConfigImpactAnalyzerTool struct {
	Analyzer *configimpact.Analyzer
}

func (t *ConfigImpactAnalyzerTool) Name() string { return "config_impact_analyzer" }

func (t *ConfigImpactAnalyzerTool) Schema() []ParamSpec {
	return []ParamSpec{
		{Name: "property", Type: "string", Required: true},
	}
}

func (t *ConfigImpactAnalyzerTool) Execute(ctx context.Context, params map[string]interface{}) (types.ToolResponse, error) {
	property := paramString(params, "property", paramString(params, "query", ""))
	if property == "" {
		return missingParam("property")
	}

	result, err := t.Analyzer.Analyze(ctx, property)
	if err != nil {
		return types.ToolResponse{}, fmt.Errorf("config_impact_analyzer: %w", err)
	}

	data := map[string]interface{}{
		"references":         result.References,
		"severity":           result.Severity,
		"database_overrides": result.DatabaseOverrides,
		"file_defaults":      result.FileDefaults,
	}
	return types.ToolResponse{Success: true, Message: "config impact analysis complete", Data: data}, nil
}

// KnowledgeGraphQueryTool answers either a ranked entity search or a
// bounded-depth relationship traversal from a known entity.
type KnowledgeGraphQueryTool struct {
	Graph *knowledgegraph.Graph
}

func (t *KnowledgeGraphQueryTool) Name() string { return "knowledge_graph_query" }

func (t *KnowledgeGraphQueryTool) Schema() []ParamSpec {
	return []ParamSpec{
		{Name: "query", Type: "string"},
		{Name: "entity_id", Type: "string"},
		{Name: "depth", Type: "int", Default: 2},
		{Name: "limit", Type: "int", Default: 10},
	}
}

func (t *KnowledgeGraphQueryTool) Execute(ctx context.Context, params map[string]interface{}) (types.ToolResponse, error) {
	if !t.Graph.IsAvailable() {
		return types.ToolResponse{}, NewToolError(types.ErrExecutionError, fmt.Errorf("knowledge_graph_query: graph not yet built"))
	}

	if entityID := paramString(params, "entity_id", ""); entityID != "" {
		depth := paramInt(params, "depth", 2)
		related := t.Graph.FindRelated(entityID, depth)
		data := map[string]interface{}{"related": related, "count": len(related)}
		return types.ToolResponse{Success: true, Message: "knowledge graph traversal complete", Data: data}, nil
	}

	query := paramString(params, "query", "")
	if query == "" {
		return missingParam("query")
	}
	limit := paramInt(params, "limit", 10)
	entities := t.Graph.Search(query, limit)
	data := map[string]interface{}{"entities": entities, "count": len(entities)}
	return types.ToolResponse{Success: true, Message: "knowledge graph search complete", Data: data}, nil
}
