// Package hybrid implements the six-step orchestration that turns a raw
// query into a QueryResult: classify, plan, enrich, execute, harvest, and
// fall back to a direct vector search when the primary plan does not
// succeed. Panics are not recovered.
package hybrid

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kubilitics/hqee/internal/audit"
	"github.com/kubilitics/hqee/internal/classifier"
	"github.com/kubilitics/hqee/internal/executor"
	"github.com/kubilitics/hqee/internal/knowledgegraph"
	"github.com/kubilitics/hqee/internal/metrics"
	"github.com/kubilitics/hqee/internal/planner"
	"github.com/kubilitics/hqee/pkg/types"
)

// maxEnrichmentEntities bounds how many knowledge-graph entities the
// enrichment step seeds into the plan context, per §4.6's "up to 5".
const maxEnrichmentEntities = 5

// enrichmentDepth is the relationship-traversal depth used when expanding
// each seeded entity, per §4.6's "1-hop relations".
const enrichmentDepth = 1

// Config carries the orchestration-relevant subset of the hybrid
// configuration section.
type Config struct {
	EnableDynamicTools      bool
	MaxExecutionTimeSeconds int
	FallbackToStatic        bool
	UseKnowledgeGraph       bool
	QueryLimit              int
}

// ProgressEvent is one step of query processing, published to anyone
// subscribed via Subscribe for a given correlation ID.
type ProgressEvent struct {
	CorrelationID string    `json:"correlation_id"`
	Stage         string    `json:"stage"` // classify/plan/enrich/execute/harvest/fallback/done
	Detail        string    `json:"detail,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// Stages published over the lifetime of one Process call.
const (
	StageClassify = "classify"
	StagePlan     = "plan"
	StageEnrich   = "enrich"
	StageExecute  = "execute"
	StageHarvest  = "harvest"
	StageFallback = "fallback"
	StageDone     = "done"
)

// Subscriber receives progress events in real time; its channel is closed
// once the query it was opened for finishes.
type Subscriber struct {
	Ch chan ProgressEvent
}

// Engine is the hybrid query execution engine: it classifies a query,
// plans a tool sequence, optionally enriches the plan with knowledge-graph
// context, executes it, and falls back to a direct vector search on
// failure.
type Engine struct {
	classifier *classifier.Classifier
	executor   *executor.Executor
	graph      *knowledgegraph.Graph
	logger     audit.Logger
	cfg        Config

	subsMu      sync.Mutex
	subscribers map[string][]*Subscriber
}

// New builds an Engine from its already-constructed collaborators.
func New(c *classifier.Classifier, ex *executor.Executor, graph *knowledgegraph.Graph, logger audit.Logger, cfg Config) *Engine {
	return &Engine{
		classifier:  c,
		executor:    ex,
		graph:       graph,
		logger:      logger,
		cfg:         cfg,
		subscribers: make(map[string][]*Subscriber),
	}
}

// Subscribe registers a channel to receive progress events for queries
// sharing correlationID. The caller must have already minted correlationID
// (e.g. via audit.GenerateCorrelationID) and will pass it to Process
// through the context.
func (e *Engine) Subscribe(correlationID string) *Subscriber {
	sub := &Subscriber{Ch: make(chan ProgressEvent, 16)}
	e.subsMu.Lock()
	e.subscribers[correlationID] = append(e.subscribers[correlationID], sub)
	e.subsMu.Unlock()
	return sub
}

func (e *Engine) publish(id, stage, detail string) {
	e.subsMu.Lock()
	subs := e.subscribers[id]
	e.subsMu.Unlock()
	ev := ProgressEvent{CorrelationID: id, Stage: stage, Detail: detail, Timestamp: time.Now()}
	for _, s := range subs {
		select {
		case s.Ch <- ev:
		default:
		}
	}
}

func (e *Engine) closeSubscribers(id string) {
	e.subsMu.Lock()
	subs := e.subscribers[id]
	delete(e.subscribers, id)
	e.subsMu.Unlock()
	for _, s := range subs {
		close(s.Ch)
	}
}

// Process runs the full classify→plan→enrich→execute→harvest pipeline for
// one query, falling back to a direct vector_search plan if the primary
// attempt fails and fallback is enabled.
func (e *Engine) Process(ctx context.Context, query string) types.QueryResult {
	correlationID := audit.GetCorrelationID(ctx)
	if correlationID == "" {
		correlationID = audit.GenerateCorrelationID()
		ctx = audit.WithCorrelationID(ctx, correlationID)
	}
	defer e.closeSubscribers(correlationID)

	start := time.Now()
	if e.logger != nil {
		e.logger.LogQueryReceived(ctx, correlationID, query)
	}

	if e.cfg.MaxExecutionTimeSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(e.cfg.MaxExecutionTimeSeconds)*time.Second)
		defer cancel()
	}

	result, pathType := e.runOnce(ctx, correlationID, query)

	if !result.Success && e.cfg.FallbackToStatic && !isStaticVectorOnly(result.RequestedTools) {
		e.publish(correlationID, StageFallback, "primary plan failed, retrying with static vector search")
		if e.logger != nil {
			e.logger.LogFallbackTriggered(ctx, correlationID, result.ErrorMessage)
		}
		metrics.HybridFallbacksTotal.Inc()

		fallback := e.runStaticFallback(ctx, query)
		fallback.FallbackUsed = true
		result = fallback
	}

	status := "ok"
	switch {
	case result.FallbackUsed:
		status = "fallback"
	case !result.Success:
		status = "error"
	}
	metrics.HybridQueriesTotal.WithLabelValues(pathType, status).Inc()

	e.publish(correlationID, StageDone, "")
	if e.logger != nil {
		if result.Success {
			e.logger.LogQueryCompleted(ctx, correlationID, time.Since(start))
		} else {
			e.logger.LogQueryFailed(ctx, correlationID, fmt.Errorf("%s", result.ErrorMessage))
		}
	}
	return result
}

// runOnce executes the classify→plan→enrich→execute→harvest sequence
// exactly once, with no fallback retry. It returns the result alongside
// the classified path type, since Process needs the latter for metrics
// after a possible fallback replaces the result.
func (e *Engine) runOnce(ctx context.Context, correlationID, query string) (types.QueryResult, string) {
	e.publish(correlationID, StageClassify, "")
	path := e.classifier.Classify(ctx, query)

	e.publish(correlationID, StagePlan, path.PathType)
	plan := planner.BuildPlan(path, planner.Config{
		EnableDynamicTools: e.cfg.EnableDynamicTools,
		UseKnowledgeGraph:  e.cfg.UseKnowledgeGraph,
		QueryLimit:         e.cfg.QueryLimit,
	})

	var kgEntities []types.CodeEntity
	var kgRelationships []types.CodeRelationship
	if requiresKG, _ := plan.Context["requires_knowledge_graph"].(bool); requiresKG && e.graph != nil && e.graph.IsAvailable() {
		e.publish(correlationID, StageEnrich, "")
		kgEntities, kgRelationships = e.enrich(query)
		plan.Context["knowledge_graph_entities"] = kgEntities
		plan.Context["knowledge_graph_relationships"] = kgRelationships
	}

	e.publish(correlationID, StageExecute, "")
	resp := e.executor.ExecutePlan(ctx, plan)

	e.publish(correlationID, StageHarvest, "")
	return harvest(query, path, resp, kgEntities, kgRelationships), path.PathType
}

// ProcessPlan executes a caller-supplied execution plan directly, skipping
// classification and planning. Used when an MCP request arrives with its
// own execution_plan instead of a bare query.
func (e *Engine) ProcessPlan(ctx context.Context, plan types.ExecutionPlan) types.QueryResult {
	if e.cfg.MaxExecutionTimeSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(e.cfg.MaxExecutionTimeSeconds)*time.Second)
		defer cancel()
	}
	resp := e.executor.ExecutePlan(ctx, plan)
	path := types.AnalysisPath{PathType: plan.PathType, RequiredTools: requiredToolNames(plan)}
	return harvest(plan.Query, path, resp, nil, nil)
}

func requiredToolNames(plan types.ExecutionPlan) []string {
	var names []string
	for _, step := range plan.Steps {
		if step.Required {
			names = append(names, step.Tool)
		}
	}
	return names
}

// runStaticFallback runs the minimal always-safe plan: vector_search alone,
// required, with no dynamic enrichment.
func (e *Engine) runStaticFallback(ctx context.Context, query string) types.QueryResult {
	path := types.AnalysisPath{
		PathType:      types.PathStatic,
		Confidence:    1,
		RequiredTools: []string{"vector_search"},
		Flags:         map[string]bool{},
		Query:         query,
	}
	plan := planner.BuildPlan(path, planner.Config{QueryLimit: e.cfg.QueryLimit})
	resp := e.executor.ExecutePlan(ctx, plan)
	return harvest(query, path, resp, nil, nil)
}

// enrich seeds the plan context with up to maxEnrichmentEntities
// knowledge-graph entities matching the query, plus each seed's
// one-hop relationships.
func (e *Engine) enrich(query string) ([]types.CodeEntity, []types.CodeRelationship) {
	entities := e.graph.Search(query, maxEnrichmentEntities)

	seenRel := make(map[string]bool)
	var relationships []types.CodeRelationship
	for _, entity := range entities {
		for _, related := range e.graph.FindRelated(entity.ID, enrichmentDepth) {
			key := fmt.Sprintf("%s|%s|%s", related.Relationship.SourceID, related.Relationship.TargetID, related.Relationship.Type)
			if seenRel[key] {
				continue
			}
			seenRel[key] = true
			relationships = append(relationships, related.Relationship)
		}
	}
	return entities, relationships
}

// harvest converts a tool-executor response into the engine's public
// QueryResult shape.
func harvest(query string, path types.AnalysisPath, resp executor.Response, entities []types.CodeEntity, relationships []types.CodeRelationship) types.QueryResult {
	result := types.QueryResult{
		Query:                       query,
		Success:                     resp.Success,
		ToolResponses:               resp.ToolResponses,
		ToolErrors:                  resp.ToolErrors,
		RequestedTools:              path.RequiredTools,
		KnowledgeGraphEntities:      entities,
		KnowledgeGraphRelationships: relationships,
		CompletedSteps:              resp.CompletedSteps,
		TotalSteps:                  resp.TotalSteps,
		PoolActive:                  int(resp.Pool.Active),
		PoolSize:                    resp.Pool.PoolSize,
		PoolQueueDepth:              resp.Pool.QueueDepth,
	}
	if !resp.Success {
		result.ErrorMessage = summarizeFailure(resp)
	}
	return result
}

func summarizeFailure(resp executor.Response) string {
	for tool, category := range resp.ToolErrors {
		return fmt.Sprintf("tool %q failed: %s", tool, category)
	}
	return "execution failed"
}

func isStaticVectorOnly(tools []string) bool {
	return len(tools) == 1 && tools[0] == "vector_search"
}
