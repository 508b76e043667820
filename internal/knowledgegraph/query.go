package knowledgegraph

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/kubilitics/hqee/pkg/types"
)

// RelatedEntity pairs a reachable relationship with the hop count at which
// it was first discovered.
type RelatedEntity struct {
	Relationship types.CodeRelationship
	Depth        int
}

// FindRelated returns every relationship reachable from entityID within
// depth hops, traversing both outbound edges (entityID is SourceID) and
// inbound edges (entityID is TargetID, reconstructed at traversal time
// since the graph only stores the forward direction). A relationship
// already reached at a lower depth is not repeated for a cycle.
func (g *Graph) FindRelated(entityID string, depth int) []RelatedEntity {
	if depth <= 0 {
		return nil
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	inbound := g.inboundIndexLocked()

	visited := map[string]bool{entityID: true}
	seenRel := map[string]bool{}
	var results []RelatedEntity

	frontier := []string{entityID}
	for d := 1; d <= depth && len(frontier) > 0; d++ {
		var next []string
		for _, id := range frontier {
			for _, rel := range g.relationships[id] {
				key := rel.SourceID + "|" + rel.TargetID + "|" + rel.Type
				if !seenRel[key] {
					seenRel[key] = true
					results = append(results, RelatedEntity{Relationship: rel, Depth: d})
				}
				if !visited[rel.TargetID] {
					visited[rel.TargetID] = true
					next = append(next, rel.TargetID)
				}
			}
			for _, rel := range inbound[id] {
				key := rel.SourceID + "|" + rel.TargetID + "|" + rel.Type
				if !seenRel[key] {
					seenRel[key] = true
					results = append(results, RelatedEntity{Relationship: rel, Depth: d})
				}
				if !visited[rel.SourceID] {
					visited[rel.SourceID] = true
					next = append(next, rel.SourceID)
				}
			}
		}
		frontier = next
	}
	return results
}

// inboundIndexLocked builds a reverse adjacency index on demand. Callers
// must hold g.mu (read or write).
func (g *Graph) inboundIndexLocked() map[string][]types.CodeRelationship {
	inbound := make(map[string][]types.CodeRelationship)
	for _, rels := range g.relationships {
		for _, rel := range rels {
			inbound[rel.TargetID] = append(inbound[rel.TargetID], rel)
		}
	}
	return inbound
}

// Search returns up to max entities whose simple name or fully-qualified
// name contains query (case-insensitive), preferring prefix matches over
// interior matches, then falling back to FQN alphabetical order.
func (g *Graph) Search(query string, max int) []types.CodeEntity {
	g.mu.RLock()
	defer g.mu.RUnlock()

	needle := strings.ToLower(query)
	type scored struct {
		entity types.CodeEntity
		rank   int
	}
	var matches []scored
	for _, id := range g.sortedEntityIDs() {
		e := g.entities[id]
		name := strings.ToLower(e.SimpleName)
		fqn := strings.ToLower(e.FQN)
		if !strings.Contains(name, needle) && !strings.Contains(fqn, needle) {
			continue
		}
		rank := 2
		if strings.HasPrefix(name, needle) || strings.HasPrefix(fqn, needle) {
			rank = 0
		} else if strings.Contains(name, needle) {
			rank = 1
		}
		matches = append(matches, scored{entity: e, rank: rank})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].rank != matches[j].rank {
			return matches[i].rank < matches[j].rank
		}
		return matches[i].entity.FQN < matches[j].entity.FQN
	})

	if max > 0 && len(matches) > max {
		matches = matches[:max]
	}
	out := make([]types.CodeEntity, len(matches))
	for i, m := range matches {
		out[i] = m.entity
	}
	return out
}

// FindByFilePath normalizes path separators and returns every entity whose
// FilePath matches exactly. If nothing matches and fuzzy path resolution is
// enabled, it falls back to re-associating the path by trailing-segment
// overlap against every entity's stored path, an approximation of
// content-based resolution cheap enough to run without a stored snippet.
func (g *Graph) FindByFilePath(path string) []types.CodeEntity {
	normalized := filepath.ToSlash(path)

	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []types.CodeEntity
	for _, id := range g.sortedEntityIDs() {
		e := g.entities[id]
		if filepath.ToSlash(e.FilePath) == normalized {
			out = append(out, e)
		}
	}
	if len(out) > 0 || !g.fuzzyPathFallback {
		return out
	}

	return g.findByFuzzyPathLocked(normalized)
}

// findByFuzzyPathLocked re-associates an unmatched path with the entities
// whose own path shares the longest run of trailing segments (e.g. the
// file's base name, then its parent directory, and so on). Callers must
// hold g.mu for reading. Correctness degrades on large corpora with many
// same-named files; it exists only as a best-effort fallback behind
// knowledge-graph.enable-fuzzy-path-resolution.
func (g *Graph) findByFuzzyPathLocked(normalized string) []types.CodeEntity {
	want := strings.Split(normalized, "/")
	if len(want) == 0 || want[len(want)-1] == "" {
		return nil
	}
	baseName := want[len(want)-1]

	bestOverlap := 0
	var out []types.CodeEntity
	for _, id := range g.sortedEntityIDs() {
		e := g.entities[id]
		have := strings.Split(filepath.ToSlash(e.FilePath), "/")
		if len(have) == 0 || have[len(have)-1] != baseName {
			continue
		}

		overlap := trailingSegmentOverlap(want, have)
		switch {
		case overlap > bestOverlap:
			bestOverlap = overlap
			out = []types.CodeEntity{e}
		case overlap == bestOverlap:
			out = append(out, e)
		}
	}
	return out
}

// trailingSegmentOverlap counts how many path segments a and b share when
// compared from the end.
func trailingSegmentOverlap(a, b []string) int {
	n := 0
	for i, j := len(a)-1, len(b)-1; i >= 0 && j >= 0 && a[i] == b[j]; i, j = i-1, j-1 {
		n++
	}
	return n
}
