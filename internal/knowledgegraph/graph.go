// Package knowledgegraph builds and queries a compact model of code
// structure: entities (packages, types, methods) and the relationships
// between them (containment, inheritance, implementation). The graph is
// kept in concurrent in-memory maps and serialized to a single binary file
// on change and on shutdown.
package knowledgegraph

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"sort"
	"sync"
	"time"

	"github.com/kubilitics/hqee/internal/audit"
	"github.com/kubilitics/hqee/internal/metrics"
	"github.com/kubilitics/hqee/pkg/types"
)

// Graph holds the entity and relationship maps and the file path they
// serialize to. Zero value is not usable; construct with New.
type Graph struct {
	mu                sync.RWMutex
	entities          map[string]types.CodeEntity
	relationships     map[string][]types.CodeRelationship // keyed by SourceID
	persistPath       string
	logger            audit.Logger
	ready             bool
	fuzzyPathFallback bool
}

// New constructs an empty graph bound to persistPath. Call Load before use
// to pick up a prior save, if any.
func New(persistPath string, logger audit.Logger) *Graph {
	return &Graph{
		entities:      make(map[string]types.CodeEntity),
		relationships: make(map[string][]types.CodeRelationship),
		persistPath:   persistPath,
		logger:        logger,
	}
}

// SetFuzzyPathResolution enables or disables the content-based fallback in
// FindByFilePath. Disabled by default; callers thread this from
// knowledge-graph.enable-fuzzy-path-resolution.
func (g *Graph) SetFuzzyPathResolution(enabled bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fuzzyPathFallback = enabled
}

// EntityID is a stable hash of a fully-qualified name, entity type, and
// file path. The same declaration always hashes to the same id across
// rebuilds, so re-running Build on an unchanged tree is idempotent.
func EntityID(fqn, entityType, filePath string) string {
	h := sha1.New()
	h.Write([]byte(fqn))
	h.Write([]byte{0})
	h.Write([]byte(entityType))
	h.Write([]byte{0})
	h.Write([]byte(filePath))
	return hex.EncodeToString(h.Sum(nil))
}

// IsAvailable reports whether init (Build or Load) has completed, regardless
// of whether any entities were found.
func (g *Graph) IsAvailable() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.ready
}

func (g *Graph) markReady() {
	g.mu.Lock()
	g.ready = true
	g.mu.Unlock()
}

func (g *Graph) addEntity(e types.CodeEntity) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.entities[e.ID] = e
}

func (g *Graph) addRelationship(r types.CodeRelationship) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.relationships[r.SourceID] = append(g.relationships[r.SourceID], r)
}

// EntityCount returns the number of entities currently held.
func (g *Graph) EntityCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.entities)
}

// RelationshipCount returns the number of relationships currently held.
func (g *Graph) RelationshipCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n := 0
	for _, rels := range g.relationships {
		n += len(rels)
	}
	return n
}

func (g *Graph) recordRebuild(ctx context.Context, start time.Time) {
	entityCount := g.EntityCount()
	relCount := g.RelationshipCount()
	metrics.KnowledgeGraphEntities.Set(float64(entityCount))
	metrics.KnowledgeGraphRelationships.Set(float64(relCount))
	metrics.KnowledgeGraphRebuildDuration.Observe(time.Since(start).Seconds())
	if g.logger != nil {
		g.logger.LogKnowledgeGraphRebuilt(ctx, entityCount, relCount, time.Since(start))
	}
}

// sortedEntityIDs returns entity ids in a deterministic order, used by
// Search and tests so output is stable.
func (g *Graph) sortedEntityIDs() []string {
	ids := make([]string, 0, len(g.entities))
	for id := range g.entities {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
