// Package types defines the data model shared across the hybrid query
// execution engine: analysis paths, execution plans, tool responses, query
// results, and the vector-store/knowledge-graph record shapes.
package types

import "time"

// AnalysisPath is the classifier's verdict on how to answer a query.
type AnalysisPath struct {
	PathType      string   `json:"path_type"` // STATIC | HYBRID | DYNAMIC
	Confidence    float64  `json:"confidence"`
	RequiredTools []string `json:"required_tools"`
	Flags         map[string]bool `json:"flags"`
	Query         string   `json:"query"`
}

const (
	PathStatic  = "STATIC"
	PathHybrid  = "HYBRID"
	PathDynamic = "DYNAMIC"
)

// ExecutionStep is one tool invocation in an execution plan.
type ExecutionStep struct {
	Tool       string                 `json:"tool"`
	Parameters map[string]interface{} `json:"parameters"`
	Priority   int                    `json:"priority"` // lower runs earlier
	Required   bool                   `json:"required"`
}

// ExecutionPlan is an ordered, priority-tagged sequence of tool steps plus a
// shared mutable context written by each step for downstream steps.
type ExecutionPlan struct {
	Query    string                 `json:"query"`
	PathType string                 `json:"path_type"`
	Steps    []ExecutionStep        `json:"steps"`
	Context  map[string]interface{} `json:"context"`
}

// ToolResponse is the outcome of a single tool invocation.
type ToolResponse struct {
	Success        bool                   `json:"success"`
	Message        string                 `json:"message"`
	Data           map[string]interface{} `json:"data,omitempty"`
	Errors         []string               `json:"errors,omitempty"`
	ErrorCategories []string              `json:"error_categories,omitempty"`
}

// Error taxonomy categories, stable across every failed ToolResponse.
const (
	ErrExecutionTimeout    = "EXECUTION_TIMEOUT"
	ErrSystemOverloaded    = "SYSTEM_OVERLOADED"
	ErrExecutionInterrupted = "EXECUTION_INTERRUPTED"
	ErrInvalidParameters   = "INVALID_PARAMETERS"
	ErrResourceExhaustion  = "RESOURCE_EXHAUSTION"
	ErrExecutionError      = "EXECUTION_ERROR"
)

// QueryResult is the hybrid engine's final answer to a query.
type QueryResult struct {
	Query          string                    `json:"query"`
	Success        bool                      `json:"success"`
	FallbackUsed   bool                      `json:"fallback_used"`
	ErrorMessage   string                    `json:"error_message,omitempty"`
	ToolResponses  map[string]ToolResponse   `json:"tool_responses"`
	ToolErrors     map[string]string         `json:"tool_errors,omitempty"`
	RequestedTools []string                  `json:"requested_tools"`
	KnowledgeGraphEntities      []CodeEntity       `json:"knowledge_graph_entities,omitempty"`
	KnowledgeGraphRelationships []CodeRelationship `json:"knowledge_graph_relationships,omitempty"`
	CompletedSteps int `json:"completed_steps"`
	TotalSteps     int `json:"total_steps"`
	PoolActive     int `json:"pool_active"`
	PoolSize       int `json:"pool_size"`
	PoolQueueDepth int `json:"pool_queue_depth"`
}

// EmbeddingMetadata describes the provenance of a stored embedding.
type EmbeddingMetadata struct {
	SourceID         string `json:"source_id"`
	EntityType       string `json:"entity_type"` // class/interface/enum/exception/xml/...
	FilePath         string `json:"file_path"`
	StartLine        int    `json:"start_line"`
	EndLine          int    `json:"end_line"`
	OriginalContent  string `json:"original_content"`
	Language         string `json:"language"`
	Description      string `json:"description,omitempty"`
	Purpose          string `json:"purpose,omitempty"`
	Capabilities     string `json:"capabilities,omitempty"`
	UsageExamples    string `json:"usage_examples,omitempty"`
}

// EmbeddingRecord is one stored vector plus its metadata and namespace.
type EmbeddingRecord struct {
	ID        string            `json:"id"`
	Vector    []float32         `json:"vector"`
	Metadata  EmbeddingMetadata `json:"metadata"`
	Namespace string            `json:"namespace"`
}

// EmbeddingFailure tracks a failed embedding-generation attempt, keyed by
// the stable hash of the source text.
type EmbeddingFailure struct {
	TextHash     string    `json:"text_hash"`
	Preview      string    `json:"preview"`
	FailureCount int       `json:"failure_count"`
	LastAt       time.Time `json:"last_at"`
	LastError    string    `json:"last_error"`
}

// Namespace is a logical partition of the vector store, typically one per
// repository.
type Namespace struct {
	Name string `json:"name"`
}

// CodeEntity is a knowledge-graph node: a package/class/interface/method/field.
type CodeEntity struct {
	ID         string `json:"id"`
	SimpleName string `json:"simple_name"`
	FQN        string `json:"fqn"`
	Type       string `json:"type"` // class/interface/method/field/package
	FilePath   string `json:"file_path"`
	StartLine  int    `json:"start_line"`
	EndLine    int    `json:"end_line"`
}

// Knowledge-graph entity types.
const (
	EntityPackage   = "package"
	EntityClass     = "class"
	EntityInterface = "interface"
	EntityMethod    = "method"
	EntityField     = "field"
)

// CodeRelationship is a knowledge-graph edge between two entities.
type CodeRelationship struct {
	SourceID   string            `json:"source_id"`
	TargetID   string            `json:"target_id"`
	Type       string            `json:"type"` // CONTAINS/EXTENDS/IMPLEMENTS/CALLS/REFERENCES
	Properties map[string]string `json:"properties,omitempty"`
}

// Knowledge-graph relationship types.
const (
	RelContains   = "CONTAINS"
	RelExtends    = "EXTENDS"
	RelImplements = "IMPLEMENTS"
	RelCalls      = "CALLS"
	RelReferences = "REFERENCES"
)

// CodeReference is one match emitted by the cross-repository searcher.
type CodeReference struct {
	Repository string   `json:"repository"`
	FilePath   string   `json:"file_path"`
	Line       int      `json:"line"`
	MatchedLine string  `json:"matched_line"`
	Context    []string `json:"context"`
}

// CrossRepoResult aggregates a cross-repository search.
type CrossRepoResult struct {
	References    []CodeReference `json:"references"`
	ElapsedMillis int64           `json:"elapsed_millis"`
	ReposScanned  int             `json:"repos_scanned"`
	ReposMatched  int             `json:"repos_matched"`
}

// ConfigPropertyReference is one place a configuration property is read,
// bound, or conditionally switches on.
type ConfigPropertyReference struct {
	Property      string `json:"property"`
	ContainingFQN string `json:"containing_fqn"`
	ComponentType string `json:"component_type"` // Controller/Service/Repository/Configuration/Component/Other
	Critical      bool   `json:"critical"`
	Line          int    `json:"line"`
	Member        string `json:"member"`
	AccessPattern string `json:"access_pattern"` // direct/fallback/conditional/binding
	Kind          string `json:"kind"`
}

// Config-impact reference kinds.
const (
	RefAnnotationInjection = "annotation_injection"
	RefEnvironmentLookup   = "environment_lookup"
	RefPropertyBagLookup   = "property_bag_lookup"
	RefPrefixBinding       = "prefix_binding"
	RefConditionalActivation = "conditional_activation"
)

// ConfigImpactResult is the outcome of a configuration-property impact scan.
type ConfigImpactResult struct {
	Property          string                    `json:"property"`
	References        []ConfigPropertyReference `json:"references"`
	Severity          string                    `json:"severity"` // HIGH/MEDIUM/LOW
	DatabaseOverrides []string                  `json:"database_overrides,omitempty"`
	FileDefaults      map[string]string         `json:"file_defaults,omitempty"`
}

// Config-impact severities.
const (
	SeverityHigh   = "HIGH"
	SeverityMedium = "MEDIUM"
	SeverityLow    = "LOW"
)
