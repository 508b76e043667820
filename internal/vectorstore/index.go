package vectorstore

import (
	"math"
	"sort"
	"sync"
)

// ScoredID is one ANN search hit.
type ScoredID struct {
	ID         string
	Similarity float64
}

type annNode struct {
	id        string
	vector    []float32
	neighbors []string
}

// ANNIndex is an HNSW-like single-layer navigable small-world graph over
// cosine similarity. M bounds connections per node; efConstruction bounds
// the candidate list kept while inserting; ef bounds it while searching.
// Both walks visit every node reachable from the entry point. The index is rebuilt from persisted vectors on startup, never
// persisted itself.
type ANNIndex struct {
	mu             sync.RWMutex
	m              int
	efConstruction int
	ef             int
	nodes          map[string]*annNode
	entryPoint     string
}

// NewANNIndex builds an empty index with the given HNSW-like parameters.
func NewANNIndex(m, efConstruction, ef int) *ANNIndex {
	if m <= 0 {
		m = 16
	}
	if efConstruction <= 0 {
		efConstruction = 200
	}
	if ef <= 0 {
		ef = 50
	}
	return &ANNIndex{
		m:              m,
		efConstruction: efConstruction,
		ef:             ef,
		nodes:          make(map[string]*annNode),
	}
}

// Add inserts or replaces a vector under id, wiring it into the graph via a
// greedy-search-then-connect-M-nearest-neighbors pass.
func (idx *ANNIndex) Add(id string, vector []float32) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	node := &annNode{id: id, vector: vector}
	idx.nodes[id] = node

	if idx.entryPoint == "" {
		idx.entryPoint = id
		return
	}
	if idx.entryPoint == id {
		return
	}

	candidates := idx.greedySearchLocked(vector, idx.efConstruction, id)
	if len(candidates) > idx.m {
		candidates = candidates[:idx.m]
	}

	for _, c := range candidates {
		node.neighbors = appendUnique(node.neighbors, c.ID)
		neighbor := idx.nodes[c.ID]
		if neighbor == nil {
			continue
		}
		neighbor.neighbors = appendUnique(neighbor.neighbors, id)
		idx.trimNeighborsLocked(neighbor)
	}
}

func appendUnique(list []string, id string) []string {
	for _, existing := range list {
		if existing == id {
			return list
		}
	}
	return append(list, id)
}

// trimNeighborsLocked keeps only the M most-similar neighbors of n.
func (idx *ANNIndex) trimNeighborsLocked(n *annNode) {
	if len(n.neighbors) <= idx.m {
		return
	}
	type scored struct {
		id  string
		sim float64
	}
	scoredList := make([]scored, 0, len(n.neighbors))
	for _, nid := range n.neighbors {
		other := idx.nodes[nid]
		if other == nil {
			continue
		}
		scoredList = append(scoredList, scored{nid, cosineSimilarity(n.vector, other.vector)})
	}
	sort.Slice(scoredList, func(i, j int) bool { return scoredList[i].sim > scoredList[j].sim })
	if len(scoredList) > idx.m {
		scoredList = scoredList[:idx.m]
	}
	trimmed := make([]string, len(scoredList))
	for i, s := range scoredList {
		trimmed[i] = s.id
	}
	n.neighbors = trimmed
}

// Delete removes id from the graph, repairing neighbor references and
// picking a new entry point if necessary.
func (idx *ANNIndex) Delete(id string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	node, ok := idx.nodes[id]
	if !ok {
		return
	}
	for _, nid := range node.neighbors {
		if neighbor := idx.nodes[nid]; neighbor != nil {
			neighbor.neighbors = removeID(neighbor.neighbors, id)
		}
	}
	delete(idx.nodes, id)

	if idx.entryPoint == id {
		idx.entryPoint = ""
		for otherID := range idx.nodes {
			idx.entryPoint = otherID
			break
		}
	}
}

func removeID(list []string, id string) []string {
	out := list[:0]
	for _, existing := range list {
		if existing != id {
			out = append(out, existing)
		}
	}
	return out
}

// Search returns up to k ids nearest to query with similarity >= minSimilarity.
func (idx *ANNIndex) Search(query []float32, k int, minSimilarity float64) []ScoredID {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	ef := idx.ef
	if k > ef {
		ef = k
	}
	results := idx.greedySearchLocked(query, ef, "")

	out := make([]ScoredID, 0, len(results))
	for _, r := range results {
		if r.Similarity >= minSimilarity {
			out = append(out, r)
		}
	}
	if len(out) > k {
		out = out[:k]
	}
	return out
}

// greedySearchLocked performs a breadth-first walk of every node reachable
// from the entry point, keeping the ef most similar as candidates and
// skipping excludeID (used during insert so a node never connects to
// itself). Callers must hold idx.mu.
func (idx *ANNIndex) greedySearchLocked(query []float32, ef int, excludeID string) []ScoredID {
	if idx.entryPoint == "" || len(idx.nodes) == 0 {
		return nil
	}

	visited := map[string]bool{}
	var results []ScoredID

	start := idx.entryPoint
	if start == excludeID {
		for id := range idx.nodes {
			if id != excludeID {
				start = id
				break
			}
		}
	}
	if start == "" || idx.nodes[start] == nil {
		return nil
	}

	frontier := []string{start}
	visited[start] = true

	for len(frontier) > 0 {
		currentID := frontier[0]
		frontier = frontier[1:]
		if currentID == excludeID {
			continue
		}
		current := idx.nodes[currentID]
		if current == nil {
			continue
		}
		sim := cosineSimilarity(query, current.vector)
		results = insertSorted(results, ScoredID{ID: currentID, Similarity: sim}, ef)

		for _, nid := range current.neighbors {
			if visited[nid] || nid == excludeID {
				continue
			}
			visited[nid] = true
			frontier = append(frontier, nid)
		}
	}

	return results
}

// insertSorted inserts s into a descending-by-similarity slice, capping its
// length at maxLen.
func insertSorted(results []ScoredID, s ScoredID, maxLen int) []ScoredID {
	i := sort.Search(len(results), func(i int) bool { return results[i].Similarity < s.Similarity })
	results = append(results, ScoredID{})
	copy(results[i+1:], results[i:])
	results[i] = s
	if len(results) > maxLen {
		results = results[:maxLen]
	}
	return results
}

// cosineSimilarity returns the normalized dot product of a and b. Vectors
// of mismatched length or zero magnitude are treated as dissimilar (0).
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Size returns the number of indexed vectors.
func (idx *ANNIndex) Size() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.nodes)
}
