package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Hybrid query execution engine metrics for production monitoring.
var (
	// Query classification metrics
	ClassificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hqee_classifications_total",
			Help: "Total number of query classifications performed",
		},
		[]string{"category", "status"}, // status: ok/fallback
	)

	ClassificationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hqee_classification_duration_seconds",
			Help:    "Query classification duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms to ~10s
		},
	)

	// Tool executor metrics
	ToolExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hqee_tool_executions_total",
			Help: "Total number of tool executions",
		},
		[]string{"tool", "status"}, // status: success/error taxonomy code
	)

	ToolExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hqee_tool_execution_duration_seconds",
			Help:    "Tool execution duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms to ~10s
		},
		[]string{"tool"},
	)

	ToolRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hqee_tool_retries_total",
			Help: "Total number of tool execution retry attempts",
		},
		[]string{"tool"},
	)

	ToolPoolActiveWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hqee_tool_pool_active_workers",
			Help: "Current number of active tool-executor worker goroutines",
		},
	)

	ToolPoolQueuedTasks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hqee_tool_pool_queued_tasks",
			Help: "Current number of tool executions waiting in the pool queue",
		},
	)

	// Vector store metrics
	EmbeddingRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hqee_embedding_requests_total",
			Help: "Total number of embedding generation requests",
		},
		[]string{"status"}, // status: success/failure
	)

	EmbeddingRequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hqee_embedding_request_duration_seconds",
			Help:    "Embedding generation HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		},
	)

	VectorStoreDegraded = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hqee_vector_store_degraded",
			Help: "Whether a namespace's embedding pipeline is in the degraded state (1=degraded, 0=healthy)",
		},
		[]string{"namespace"},
	)

	ANNSearchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hqee_ann_search_duration_seconds",
			Help:    "Approximate nearest-neighbor search duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 10), // 1ms to ~1s
		},
		[]string{"namespace"},
	)

	// Knowledge graph metrics
	KnowledgeGraphEntities = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hqee_knowledge_graph_entities",
			Help: "Current number of entities in the knowledge graph",
		},
	)

	KnowledgeGraphRelationships = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hqee_knowledge_graph_relationships",
			Help: "Current number of relationships in the knowledge graph",
		},
	)

	KnowledgeGraphRebuildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hqee_knowledge_graph_rebuild_duration_seconds",
			Help:    "Knowledge graph rebuild duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~1min
		},
	)

	// Cross-repository search metrics
	CrossRepoSearchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hqee_cross_repo_search_duration_seconds",
			Help:    "Cross-repository search duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~1min
		},
	)

	CrossRepoMatchesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hqee_cross_repo_matches_total",
			Help: "Total number of cross-repository search matches found",
		},
	)

	CrossRepoReposScanned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hqee_cross_repo_repos_scanned_total",
			Help: "Total number of repositories scanned by cross-repository search",
		},
	)

	// Configuration-impact analysis metrics
	ConfigImpactReferencesFound = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hqee_config_impact_references_total",
			Help: "Total number of configuration-property references found",
		},
		[]string{"severity"}, // HIGH/MEDIUM/LOW
	)

	// Hybrid orchestration metrics
	HybridQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hqee_hybrid_queries_total",
			Help: "Total number of hybrid queries processed",
		},
		[]string{"strategy", "status"}, // strategy: classified path type STATIC/HYBRID/DYNAMIC, status: ok/fallback/error
	)

	HybridFallbacksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hqee_hybrid_fallbacks_total",
			Help: "Total number of times the orchestrator fell back to the static plan",
		},
	)

	// Tool-result cache metrics
	ToolCacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hqee_tool_cache_hits_total",
			Help: "Total number of tool executions served from cache",
		},
		[]string{"tool"},
	)

	ToolCacheMissesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hqee_tool_cache_misses_total",
			Help: "Total number of tool executions that missed the cache",
		},
		[]string{"tool"},
	)
)
