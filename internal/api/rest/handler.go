// Package rest exposes the hybrid query execution engine over HTTP: the
// MCP process/tools endpoints, background embedding generation, a
// streaming progress WebSocket, and health probes.
package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/kubilitics/hqee/internal/audit"
	"github.com/kubilitics/hqee/internal/executor"
	"github.com/kubilitics/hqee/internal/hybrid"
	"github.com/kubilitics/hqee/internal/knowledgegraph"
	"github.com/kubilitics/hqee/internal/vectorstore"
	"github.com/kubilitics/hqee/pkg/types"
)

// Handler wires the HTTP surface to the engine's collaborators.
type Handler struct {
	Engine   *hybrid.Engine
	Registry *executor.Registry
	Vectors  *vectorstore.Store
	Graph    *knowledgegraph.Graph
	Logger   audit.Logger
}

// NewHandler builds a Handler from its already-constructed collaborators.
func NewHandler(engine *hybrid.Engine, registry *executor.Registry, vectors *vectorstore.Store, graph *knowledgegraph.Graph, logger audit.Logger) *Handler {
	return &Handler{Engine: engine, Registry: registry, Vectors: vectors, Graph: graph, Logger: logger}
}

// mcpProcessRequest is the body of POST /api/v1/mcp/process.
type mcpProcessRequest struct {
	Query         string               `json:"query"`
	ExecutionPlan *types.ExecutionPlan `json:"execution_plan,omitempty"`
	Context       map[string]interface{} `json:"context,omitempty"`
}

// mcpProcessResponse wraps a QueryResult with execution metadata.
type mcpProcessResponse struct {
	types.QueryResult
	Metadata processMetadata `json:"metadata"`
}

type processMetadata struct {
	CorrelationID string `json:"correlation_id"`
}

type errorBody struct {
	Error string `json:"error"`
}

// HandleProcess implements POST /api/v1/mcp/process.
func (h *Handler) HandleProcess(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req mcpProcessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	ctx := r.Context()
	correlationID := r.Header.Get("X-Correlation-ID")
	if correlationID == "" {
		correlationID = audit.GenerateCorrelationID()
	}
	ctx = audit.WithCorrelationID(ctx, correlationID)

	result := h.runProcess(ctx, req)

	resp := mcpProcessResponse{
		QueryResult: result,
		Metadata:    processMetadata{CorrelationID: correlationID},
	}

	status := http.StatusOK
	if !result.Success {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, resp)
}

// runProcess dispatches to ProcessPlan when the caller supplied an explicit
// plan, otherwise to the classify-plan-enrich-execute pipeline.
func (h *Handler) runProcess(ctx context.Context, req mcpProcessRequest) types.QueryResult {
	if req.ExecutionPlan != nil {
		plan := *req.ExecutionPlan
		if plan.Query == "" {
			plan.Query = req.Query
		}
		if plan.Context == nil {
			plan.Context = req.Context
		}
		return h.Engine.ProcessPlan(ctx, plan)
	}
	return h.Engine.Process(ctx, req.Query)
}

// HandleTools implements GET /api/v1/mcp/tools.
func (h *Handler) HandleTools(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tools": h.Registry.List()})
}

// generateEmbeddingsRequest is the body of POST /api/l3agent/generate-embeddings.
type generateEmbeddingsRequest struct {
	Path      string `json:"path"`
	Namespace string `json:"namespace"`
	Recursive bool   `json:"recursive"`
}

// HandleGenerateEmbeddings implements POST /api/l3agent/generate-embeddings.
// Embedding generation runs in the background; the call returns as soon as
// the path has been validated and the walk is scheduled.
func (h *Handler) HandleGenerateEmbeddings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req generateEmbeddingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}
	if info, err := os.Stat(req.Path); err != nil || !info.IsDir() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("path %q is not a readable directory", req.Path))
		return
	}
	namespace := req.Namespace
	if namespace == "" {
		namespace = "default"
	}

	go h.generateEmbeddingsForPath(req.Path, namespace, req.Recursive)
	go h.rebuildKnowledgeGraph(req.Path, req.Recursive)

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"status":    "started",
		"path":      req.Path,
		"namespace": namespace,
	})
}

// generateEmbeddingsForPath embeds every source file under root, one
// embedding per file. It runs detached from any request context since the
// HTTP handler has already responded by the time this executes.
func (h *Handler) generateEmbeddingsForPath(root, namespace string, recursive bool) {
	ctx := context.Background()
	entries, err := os.ReadDir(root)
	if err != nil {
		h.logEmbeddingWalkError(root, err)
		return
	}

	for _, entry := range entries {
		path := filepath.Join(root, entry.Name())
		if entry.IsDir() {
			if recursive {
				h.generateEmbeddingsForPath(path, namespace, recursive)
			}
			continue
		}
		h.embedFile(ctx, path, namespace)
	}
}

func (h *Handler) embedFile(ctx context.Context, path, namespace string) {
	content, err := os.ReadFile(path)
	if err != nil || len(content) == 0 {
		return
	}

	vector, err := h.Vectors.GenerateEmbedding(ctx, string(content))
	if err != nil {
		if h.Logger != nil {
			h.Logger.LogEmbeddingFailed(ctx, path, err)
		}
		return
	}

	metadata := types.EmbeddingMetadata{
		SourceID:        path,
		EntityType:      "file",
		FilePath:        path,
		OriginalContent: string(content),
		Language:        filepath.Ext(path),
	}
	if err := h.Vectors.StoreEmbedding(ctx, uuid.NewString(), vector, metadata, namespace); err != nil {
		log.Printf("generate-embeddings: store %s: %v", path, err)
	}
}

func (h *Handler) logEmbeddingWalkError(path string, err error) {
	log.Printf("generate-embeddings: read dir %s: %v", path, err)
}

// rebuildKnowledgeGraph extends entity/relationship extraction to the same
// path generate-embeddings was asked to cover, then persists the graph.
func (h *Handler) rebuildKnowledgeGraph(path string, recursive bool) {
	if h.Graph == nil {
		return
	}
	if err := h.Graph.Build(context.Background(), path, recursive); err != nil {
		log.Printf("generate-embeddings: knowledge graph build %s: %v", path, err)
		return
	}
	if err := h.Graph.Save(); err != nil {
		log.Printf("generate-embeddings: knowledge graph save: %v", err)
	}
}

// HandleHealth implements GET /health and /healthz.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// HandleProcessStream implements GET /ws/v1/mcp/process: the client sends
// one JSON mcpProcessRequest text message, then receives a ProgressEvent
// per pipeline stage followed by the final mcpProcessResponse.
func (h *Handler) HandleProcessStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("mcp process stream: upgrade: %v", err)
		return
	}
	defer conn.Close()

	_, payload, err := conn.ReadMessage()
	if err != nil {
		return
	}
	var req mcpProcessRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		conn.WriteJSON(errorBody{Error: fmt.Sprintf("invalid request: %v", err)})
		return
	}

	correlationID := audit.GenerateCorrelationID()
	ctx := audit.WithCorrelationID(r.Context(), correlationID)
	sub := h.Engine.Subscribe(correlationID)

	done := make(chan mcpProcessResponse, 1)
	go func() {
		result := h.runProcess(ctx, req)
		done <- mcpProcessResponse{QueryResult: result, Metadata: processMetadata{CorrelationID: correlationID}}
	}()

	for {
		select {
		case ev, ok := <-sub.Ch:
			if !ok {
				sub.Ch = nil
				continue
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case resp := <-done:
			conn.WriteJSON(resp)
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Error: message})
}
