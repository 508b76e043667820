// Package classifier maps a natural-language query to an analysis path by
// delegating semantic judgment to the upstream chat-completion endpoint.
package classifier

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/kubilitics/hqee/internal/audit"
	"github.com/kubilitics/hqee/internal/llmclient"
	"github.com/kubilitics/hqee/internal/metrics"
	"github.com/kubilitics/hqee/pkg/types"
)

// Categories the upstream model is instructed to return.
const (
	CategoryCodeSearch    = "CODE_SEARCH"
	CategoryCallPath      = "CALL_PATH"
	CategoryConfigImpact  = "CONFIG_IMPACT"
	CategoryErrorChain    = "ERROR_CHAIN"
	CategoryCrossRepo     = "CROSS_REPO"
	CategoryCodeStructure = "CODE_STRUCTURE"
	CategoryGeneral       = "GENERAL"
)

// fallbackPath is returned whenever classification fails in any way; the
// classifier never fails the request.
func fallbackPath(query string) types.AnalysisPath {
	return types.AnalysisPath{
		PathType:      types.PathStatic,
		Confidence:    0.5,
		RequiredTools: []string{"vector_search"},
		Flags:         map[string]bool{},
		Query:         query,
	}
}

// defaultToolsByCategory injects a tool set when the model omits one.
var defaultToolsByCategory = map[string][]string{
	CategoryCodeSearch:    {"vector_search"},
	CategoryCallPath:      {"vector_search", "knowledge_graph_query"},
	CategoryConfigImpact:  {"vector_search", "config_impact_analyzer"},
	CategoryErrorChain:    {"vector_search", "knowledge_graph_query"},
	CategoryCrossRepo:     {"vector_search", "cross_repo_tracer"},
	CategoryCodeStructure: {"vector_search"},
	CategoryGeneral:       {"vector_search"},
}

// hybridCategories classify to HYBRID instead of STATIC.
var hybridCategories = map[string]bool{
	CategoryCallPath:     true,
	CategoryConfigImpact: true,
	CategoryErrorChain:   true,
	CategoryCrossRepo:    true,
}

// Config carries the classifier's deterministic prompting parameters.
type Config struct {
	Temperature float64
	MaxTokens   int
}

// Classifier decides which retrieval strategies apply to a query.
type Classifier struct {
	llm    *llmclient.Client
	cfg    Config
	logger audit.Logger
}

// New builds a Classifier over the given LLM client.
func New(llm *llmclient.Client, cfg Config, logger audit.Logger) *Classifier {
	return &Classifier{llm: llm, cfg: cfg, logger: logger}
}

// Classify maps a query to an analysis path. It never returns an error: on
// any parse or transport failure it returns the static fallback path.
func (c *Classifier) Classify(ctx context.Context, query string) types.AnalysisPath {
	start := time.Now()
	correlationID := audit.GetCorrelationID(ctx)

	raw, err := c.llm.Complete(ctx, classificationPrompt(query), c.cfg.Temperature, c.cfg.MaxTokens)
	if err != nil {
		metrics.ClassificationsTotal.WithLabelValues("fallback", "fallback").Inc()
		metrics.ClassificationDuration.Observe(time.Since(start).Seconds())
		if c.logger != nil {
			c.logger.LogQueryFailed(ctx, correlationID, err)
		}
		return fallbackPath(query)
	}

	path, ok := parseClassification(raw, query)
	metrics.ClassificationDuration.Observe(time.Since(start).Seconds())
	if !ok {
		metrics.ClassificationsTotal.WithLabelValues("fallback", "fallback").Inc()
		return fallbackPath(query)
	}

	metrics.ClassificationsTotal.WithLabelValues(path.PathType, "ok").Inc()
	if c.logger != nil {
		c.logger.LogQueryClassified(ctx, correlationID, path.PathType, path.Confidence)
	}
	return path
}

func classificationPrompt(query string) string {
	return "Classify the following support-engineer query into exactly one category " +
		"and return a single line formatted as CATEGORY|confidence|comma_tools.\n" +
		"Categories: CODE_SEARCH, CALL_PATH, CONFIG_IMPACT, ERROR_CHAIN, CROSS_REPO, CODE_STRUCTURE, GENERAL.\n" +
		"Query: " + query
}

// parseClassification parses the model's "CATEGORY|confidence|comma_tools"
// line into an AnalysisPath.
func parseClassification(raw, query string) (types.AnalysisPath, bool) {
	line := strings.TrimSpace(raw)
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = line[:idx]
	}
	parts := strings.SplitN(line, "|", 3)
	if len(parts) < 2 {
		return types.AnalysisPath{}, false
	}

	category := strings.ToUpper(strings.TrimSpace(parts[0]))
	if _, known := defaultToolsByCategory[category]; !known {
		return types.AnalysisPath{}, false
	}

	confidence, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil || confidence < 0 || confidence > 1 {
		return types.AnalysisPath{}, false
	}

	var tools []string
	if len(parts) == 3 {
		for _, t := range strings.Split(parts[2], ",") {
			t = strings.TrimSpace(t)
			if t != "" {
				tools = append(tools, t)
			}
		}
	}
	if len(tools) == 0 {
		tools = defaultToolsByCategory[category]
	}

	pathType := types.PathStatic
	if hybridCategories[category] {
		pathType = types.PathHybrid
	}

	flags := map[string]bool{}
	if category == CategoryCodeStructure {
		flags["use_knowledge_graph"] = true
	}

	return types.AnalysisPath{
		PathType:      pathType,
		Confidence:    confidence,
		RequiredTools: tools,
		Flags:         flags,
		Query:         query,
	}, true
}
