package vectorstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/kubilitics/hqee/internal/llmclient"
	"github.com/kubilitics/hqee/internal/metrics"
	"github.com/kubilitics/hqee/pkg/types"
)

// DefaultDegradedThreshold is the continuous-failure count that flips the
// store into degraded mode.
const DefaultDegradedThreshold = 5

// failureRegistry is the process-wide continuous-failure counter and
// per-text-hash failure ledger. Retries happen inside the LLM client;
// only a final failure reaches this registry (retry vs circuit-break, per
// the spec's design note: retries are per-call, this counter is the
// store-level circuit breaker, and they compose — a final failure after
// retries is the only thing that feeds the counter).
type failureRegistry struct {
	mu         sync.Mutex
	byHash     map[string]*types.EmbeddingFailure
	continuous int
	threshold  int
}

func newFailureRegistry(threshold int) *failureRegistry {
	if threshold <= 0 {
		threshold = DefaultDegradedThreshold
	}
	return &failureRegistry{byHash: make(map[string]*types.EmbeddingFailure), threshold: threshold}
}

func textHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func preview(text string) string {
	const maxLen = 120
	if len(text) <= maxLen {
		return text
	}
	return text[:maxLen]
}

// recordFailure increments the continuous-failure counter and updates the
// per-hash failure record, returning whether the store is now degraded.
func (r *failureRegistry) recordFailure(text string, cause error) (degraded bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	hash := textHash(text)
	entry, ok := r.byHash[hash]
	if !ok {
		entry = &types.EmbeddingFailure{TextHash: hash, Preview: preview(text)}
		r.byHash[hash] = entry
	}
	entry.FailureCount++
	entry.LastAt = time.Now()
	entry.LastError = cause.Error()

	r.continuous++
	return r.continuous >= r.threshold
}

// recordSuccess resets the continuous-failure counter (it tracks
// *consecutive* failures only).
func (r *failureRegistry) recordSuccess() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.continuous = 0
}

func (r *failureRegistry) isDegraded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.continuous >= r.threshold
}

func (r *failureRegistry) snapshot() []types.EmbeddingFailure {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.EmbeddingFailure, 0, len(r.byHash))
	for _, f := range r.byHash {
		out = append(out, *f)
	}
	return out
}

func (r *failureRegistry) restore(failures []types.EmbeddingFailure) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range failures {
		cp := f
		r.byHash[f.TextHash] = &cp
	}
}

// generateEmbedding calls the upstream LLM embedding endpoint (which
// already retries transient failures internally) and records the outcome
// in the failure registry.
func (s *Store) generateEmbedding(ctx context.Context, llm *llmclient.Client, registry *failureRegistry, text string) ([]float32, error) {
	start := time.Now()
	vector, err := llm.Embed(ctx, text)
	metrics.EmbeddingRequestDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues("failure").Inc()
		degraded := registry.recordFailure(text, err)
		metrics.VectorStoreDegraded.WithLabelValues("_global").Set(boolToFloat(degraded))
		return nil, err
	}

	metrics.EmbeddingRequestsTotal.WithLabelValues("success").Inc()
	registry.recordSuccess()
	metrics.VectorStoreDegraded.WithLabelValues("_global").Set(0)
	return vector, nil
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
