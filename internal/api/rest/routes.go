package rest

// Routes:
//
// MCP:
//   POST /api/v1/mcp/process               Classify, plan, and execute a query (or run a caller-supplied plan)
//   GET  /api/v1/mcp/tools                 List registered tools with their parameter schemas
//   WS   /ws/v1/mcp/process                Streaming variant of /api/v1/mcp/process
//
// Embeddings:
//   POST /api/l3agent/generate-embeddings  Trigger background embedding generation for a path
//
// Health:
//   GET  /health                           Liveness/readiness probe
//   GET  /healthz                          Kubernetes-style health probe

import (
	"net/http"

	"github.com/kubilitics/hqee/internal/middleware"
)

// RegisterRoutes wires a Handler's methods onto mux, rate-limited by
// limiter. limiter may be nil, in which case requests pass through
// unlimited.
func RegisterRoutes(mux *http.ServeMux, h *Handler, limiter *middleware.RateLimiter) {
	wrap := func(fn http.HandlerFunc) http.HandlerFunc {
		if limiter == nil {
			return fn
		}
		return limiter.Middleware(fn)
	}

	mux.HandleFunc("/api/v1/mcp/process", wrap(h.HandleProcess))
	mux.HandleFunc("/api/v1/mcp/tools", wrap(h.HandleTools))
	mux.HandleFunc("/api/l3agent/generate-embeddings", wrap(h.HandleGenerateEmbeddings))
	mux.HandleFunc("/ws/v1/mcp/process", h.HandleProcessStream)

	mux.HandleFunc("/health", h.HandleHealth)
	mux.HandleFunc("/healthz", h.HandleHealth)
}
