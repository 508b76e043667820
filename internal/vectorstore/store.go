// Package vectorstore generates embeddings via the upstream LLM provider,
// persists them namespaced on disk, maintains an HNSW-like ANN index per
// namespace, and serves cosine-similarity top-k queries.
package vectorstore

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/kubilitics/hqee/internal/llmclient"
	"github.com/kubilitics/hqee/internal/metrics"
	"github.com/kubilitics/hqee/pkg/types"
)

const (
	namespacesFile = "namespaces.json"
	failuresFile   = "embedding_failures.json"
	metadataFile   = "embedding_metadata.json"
)

// namespaceState owns one namespace's metadata map and ANN index.
type namespaceState struct {
	mu       sync.RWMutex
	name     string
	metadata map[string]types.EmbeddingMetadata
	index    *ANNIndex
}

// Config carries the vector-store sizing surface (mirrors
// config.Config.VectorStore).
type Config struct {
	Dimension      int
	DataDir        string
	MaxConnections int
	EfConstruction int
	Ef             int
}

// Store owns every namespace, the embedding client, and the process-wide
// continuous-failure registry.
type Store struct {
	mu         sync.RWMutex
	cfg        Config
	namespaces map[string]*namespaceState
	llm        *llmclient.Client
	failures   *failureRegistry
}

// New constructs a Store. Callers must call Load before using it.
func New(cfg Config, llm *llmclient.Client, degradedThreshold int) *Store {
	return &Store{
		cfg:        cfg,
		namespaces: make(map[string]*namespaceState),
		llm:        llm,
		failures:   newFailureRegistry(degradedThreshold),
	}
}

// Load reads namespaces.json and embedding_failures.json from the data
// directory, then rebuilds each namespace's ANN index from its persisted
// vector files. Missing files are treated as an empty store (first run).
func (s *Store) Load(ctx context.Context) error {
	if s.cfg.DataDir == "" {
		return fmt.Errorf("vectorstore: data dir not configured")
	}
	if err := os.MkdirAll(s.cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("vectorstore: create data dir: %w", err)
	}

	names, err := readJSONSlice[string](filepath.Join(s.cfg.DataDir, namespacesFile))
	if err != nil {
		return fmt.Errorf("vectorstore: load namespaces: %w", err)
	}

	failures, err := readJSONSlice[types.EmbeddingFailure](filepath.Join(s.cfg.DataDir, failuresFile))
	if err != nil {
		return fmt.Errorf("vectorstore: load embedding failures: %w", err)
	}
	s.failures.restore(failures)

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, name := range names {
		ns, err := s.loadNamespaceLocked(name)
		if err != nil {
			return fmt.Errorf("vectorstore: load namespace %q: %w", name, err)
		}
		s.namespaces[name] = ns
	}
	return nil
}

func (s *Store) loadNamespaceLocked(name string) (*namespaceState, error) {
	ns := &namespaceState{
		name:     name,
		metadata: make(map[string]types.EmbeddingMetadata),
		index:    NewANNIndex(s.cfg.MaxConnections, s.cfg.EfConstruction, s.cfg.Ef),
	}

	type metaRecord struct {
		ID       string                  `json:"id"`
		Metadata types.EmbeddingMetadata `json:"metadata"`
	}
	records, err := readJSONSlice[metaRecord](filepath.Join(s.namespaceDir(name), metadataFile))
	if err != nil {
		return nil, err
	}

	indexed := 0
	for _, rec := range records {
		vector, err := s.readVectorFile(name, rec.ID)
		if err != nil {
			log.Printf("vectorstore: pruning metadata for %s/%s: vector file unreadable: %v", name, rec.ID, err)
			continue
		}
		if len(vector) != s.cfg.Dimension {
			return nil, fmt.Errorf("vectorstore: %s/%s has dimension %d, configured dimension is %d", name, rec.ID, len(vector), s.cfg.Dimension)
		}
		ns.metadata[rec.ID] = rec.Metadata
		ns.index.Add(rec.ID, vector)
		indexed++
	}
	if indexed != len(ns.metadata) {
		log.Printf("vectorstore: namespace %s metadata/index count mismatch: %d metadata, %d indexed", name, len(ns.metadata), indexed)
	}
	return ns, nil
}

func (s *Store) namespaceDir(name string) string {
	return filepath.Join(s.cfg.DataDir, name)
}

func (s *Store) vectorFilePath(namespace, id string) string {
	return filepath.Join(s.namespaceDir(namespace), id+".vec")
}

func (s *Store) readVectorFile(namespace, id string) ([]float32, error) {
	data, err := os.ReadFile(s.vectorFilePath(namespace, id))
	if err != nil {
		return nil, err
	}
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("vector file %s has invalid length %d", id, len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		bits := binary.LittleEndian.Uint32(data[i*4 : i*4+4])
		vec[i] = math.Float32frombits(bits)
	}
	return vec, nil
}

func (s *Store) writeVectorFile(namespace, id string, vector []float32) error {
	if err := os.MkdirAll(s.namespaceDir(namespace), 0o755); err != nil {
		return err
	}
	data := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(data[i*4:i*4+4], math.Float32bits(v))
	}
	return os.WriteFile(s.vectorFilePath(namespace, id), data, 0o644)
}

// StoreEmbedding creates the namespace if needed, writes the vector file,
// updates metadata, and inserts into the ANN index. If the vector write
// fails, neither metadata nor the index are touched. If persisting the
// metadata fails, the in-memory metadata entry is kept, the index is not
// touched, and the call returns an error. The index insert itself cannot
// fail.
func (s *Store) StoreEmbedding(ctx context.Context, id string, vector []float32, metadata types.EmbeddingMetadata, namespace string) error {
	if len(vector) != s.cfg.Dimension {
		return fmt.Errorf("vectorstore: vector has dimension %d, expected %d", len(vector), s.cfg.Dimension)
	}

	ns := s.getOrCreateNamespace(namespace)

	ns.mu.Lock()
	if _, exists := ns.metadata[id]; exists {
		ns.mu.Unlock()
		return fmt.Errorf("vectorstore: id %q already exists in namespace %q", id, namespace)
	}
	ns.mu.Unlock()

	if err := s.writeVectorFile(namespace, id, vector); err != nil {
		return fmt.Errorf("vectorstore: write vector file: %w", err)
	}

	ns.mu.Lock()
	ns.metadata[id] = metadata
	if err := s.persistNamespaceMetadataLocked(ns); err != nil {
		ns.mu.Unlock()
		return fmt.Errorf("vectorstore: persist metadata: %w", err)
	}
	ns.mu.Unlock()

	ns.index.Add(id, vector)
	return nil
}

func (s *Store) getOrCreateNamespace(name string) *namespaceState {
	s.mu.Lock()
	ns, ok := s.namespaces[name]
	var names []string
	if !ok {
		ns = &namespaceState{
			name:     name,
			metadata: make(map[string]types.EmbeddingMetadata),
			index:    NewANNIndex(s.cfg.MaxConnections, s.cfg.EfConstruction, s.cfg.Ef),
		}
		s.namespaces[name] = ns
		names = make([]string, 0, len(s.namespaces))
		for n := range s.namespaces {
			names = append(names, n)
		}
	}
	s.mu.Unlock()

	if names != nil {
		sort.Strings(names)
		if err := writeJSONSlice(filepath.Join(s.cfg.DataDir, namespacesFile), names); err != nil {
			log.Printf("vectorstore: persist namespace list: %v", err)
		}
	}
	return ns
}

// SimilarityResult is one hit from FindSimilar.
type SimilarityResult struct {
	ID         string
	Namespace  string
	Similarity float64
	Metadata   types.EmbeddingMetadata
}

// FindSimilar queries each requested namespace (or every namespace if none
// given), merges the results, sorts by similarity descending, and
// truncates to maxResults. An id with no backing metadata is skipped.
func (s *Store) FindSimilar(ctx context.Context, query []float32, maxResults int, minSimilarity float64, namespaces []string) []SimilarityResult {
	start := time.Now()

	targets := namespaces
	s.mu.RLock()
	if len(targets) == 0 {
		for name := range s.namespaces {
			targets = append(targets, name)
		}
	}
	s.mu.RUnlock()

	var merged []SimilarityResult
	for _, name := range targets {
		s.mu.RLock()
		ns, ok := s.namespaces[name]
		s.mu.RUnlock()
		if !ok {
			continue
		}

		hits := ns.index.Search(query, maxResults, minSimilarity)
		ns.mu.RLock()
		for _, hit := range hits {
			meta, found := ns.metadata[hit.ID]
			if !found {
				log.Printf("vectorstore: find_similar: missing metadata for id %s in namespace %s, skipping", hit.ID, name)
				continue
			}
			merged = append(merged, SimilarityResult{ID: hit.ID, Namespace: name, Similarity: hit.Similarity, Metadata: meta})
		}
		ns.mu.RUnlock()
		metrics.ANNSearchDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}

	sort.Slice(merged, func(i, j int) bool { return merged[i].Similarity > merged[j].Similarity })
	if len(merged) > maxResults {
		merged = merged[:maxResults]
	}
	return merged
}

// DeleteEmbedding removes id from the index, metadata, and on-disk storage.
func (s *Store) DeleteEmbedding(ctx context.Context, id, namespace string) error {
	s.mu.RLock()
	ns, ok := s.namespaces[namespace]
	s.mu.RUnlock()
	if !ok {
		return nil
	}

	ns.index.Delete(id)

	ns.mu.Lock()
	delete(ns.metadata, id)
	err := s.persistNamespaceMetadataLocked(ns)
	ns.mu.Unlock()
	if err != nil {
		return fmt.Errorf("vectorstore: persist metadata after delete: %w", err)
	}

	if err := os.Remove(s.vectorFilePath(namespace, id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("vectorstore: remove vector file: %w", err)
	}
	return nil
}

// GenerateEmbedding requests an embedding vector for text from the
// upstream LLM provider, tracking the process-wide continuous-failure
// counter on the outcome.
func (s *Store) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	return s.generateEmbedding(ctx, s.llm, s.failures, text)
}

// IsDegraded reports whether the continuous-failure counter has crossed
// the configured threshold. Callers should skip embedding attempts while
// degraded.
func (s *Store) IsDegraded() bool {
	return s.failures.isDegraded()
}

func (s *Store) persistNamespaceMetadataLocked(ns *namespaceState) error {
	type metaRecord struct {
		ID       string                  `json:"id"`
		Metadata types.EmbeddingMetadata `json:"metadata"`
	}
	records := make([]metaRecord, 0, len(ns.metadata))
	for id, meta := range ns.metadata {
		records = append(records, metaRecord{ID: id, Metadata: meta})
	}
	if err := os.MkdirAll(s.namespaceDir(ns.name), 0o755); err != nil {
		return err
	}
	return writeJSONSlice(filepath.Join(s.namespaceDir(ns.name), metadataFile), records)
}

// PersistFailures flushes the failure registry to disk. Callers invoke
// this periodically and on shutdown.
func (s *Store) PersistFailures() error {
	return writeJSONSlice(filepath.Join(s.cfg.DataDir, failuresFile), s.failures.snapshot())
}

func readJSONSlice[T any](path string) ([]T, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []T
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func writeJSONSlice[T any](path string, values []T) error {
	if values == nil {
		values = []T{}
	}
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
