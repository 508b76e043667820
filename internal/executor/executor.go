// Package executor runs an execution plan's steps on a bounded worker
// pool with per-step timeout, retry-with-backoff-and-jitter, required and
// optional semantics, and a stable error taxonomy.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/kubilitics/hqee/internal/audit"
	"github.com/kubilitics/hqee/internal/cache"
	"github.com/kubilitics/hqee/internal/metrics"
	"github.com/kubilitics/hqee/internal/retry"
	"github.com/kubilitics/hqee/pkg/types"
)

// Config is the tool-pool and retry sizing surface (mirrors
// config.Config.MCP).
type Config struct {
	MaxConcurrentExecutions     int
	ThreadPoolQueueCapacity     int
	ToolExecutionTimeoutSeconds int
	RetryMaxRetries             int
	RetryDelayMs                int
	RetryBackoffMultiplier      float64
	RetryMaxDelayMs             int
}

// Response is the tool executor's aggregate outcome for one request.
type Response struct {
	Success         bool
	ToolResponses   map[string]types.ToolResponse
	ToolErrors      map[string]string
	CompletedSteps  int
	TotalSteps      int
	Pool            Metrics
}

// Executor runs execution-plan steps against a tool registry.
type Executor struct {
	registry    *Registry
	cfg         Config
	pool        *pool
	retryPolicy retry.Policy
	logger      audit.Logger
	cache       cache.Cache
}

// New builds an Executor. The worker pool starts immediately with
// max(cores,4) workers (or cfg.MaxConcurrentExecutions if set) and a
// bounded queue.
func New(registry *Registry, cfg Config, logger audit.Logger) *Executor {
	workers := cfg.MaxConcurrentExecutions
	if workers <= 0 {
		workers = coreSize()
	}

	multiplier := cfg.RetryBackoffMultiplier
	if multiplier < 1 {
		multiplier = 2
	}
	maxRetries := cfg.RetryMaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	return &Executor{
		registry: registry,
		cfg:      cfg,
		pool:     newPool(workers, cfg.ThreadPoolQueueCapacity),
		retryPolicy: retry.Policy{
			MaxAttempts:       maxRetries,
			InitialDelay:      time.Duration(cfg.RetryDelayMs) * time.Millisecond,
			MaxDelay:          time.Duration(cfg.RetryMaxDelayMs) * time.Millisecond,
			BackoffMultiplier: multiplier,
			Jitter:            0.2,
		},
		logger: logger,
	}
}

// SetCache attaches a result cache. Left unset, the executor runs every
// step uncached; callers wire this in only when config.Cache.EnableCaching
// is true.
func (e *Executor) SetCache(c cache.Cache) {
	e.cache = c
}

// ExecutePlan runs a plan's steps in ascending priority-number order, so
// vector_search (priority 0, required) always runs before the optional
// enrichment tools the planner queues at priority 2 or 3.
func (e *Executor) ExecutePlan(ctx context.Context, plan types.ExecutionPlan) Response {
	resp := Response{
		ToolResponses: make(map[string]types.ToolResponse),
		ToolErrors:    make(map[string]string),
		Success:       true,
		TotalSteps:    len(plan.Steps),
	}

	if plan.Query == "" {
		resp.Success = false
		resp.ToolErrors["request"] = types.ErrInvalidParameters
		return resp
	}
	if len(plan.Steps) == 0 {
		return resp
	}

	steps := make([]types.ExecutionStep, len(plan.Steps))
	copy(steps, plan.Steps)
	sort.SliceStable(steps, func(i, j int) bool { return steps[i].Priority < steps[j].Priority })

	if plan.Context == nil {
		plan.Context = make(map[string]interface{})
	}

	correlationID := audit.GetCorrelationID(ctx)

	for _, step := range steps {
		tool, found := e.registry.Get(step.Tool)
		if !found {
			resp.ToolErrors[step.Tool] = types.ErrInvalidParameters
			if step.Required {
				resp.Success = false
				break
			}
			continue
		}

		start := time.Now()
		toolResp, err := e.runStepWithRetry(ctx, tool, step, plan.Context)
		duration := time.Since(start)
		metrics.ToolExecutionDuration.WithLabelValues(step.Tool).Observe(duration.Seconds())

		if err != nil {
			category := classify(err)
			metrics.ToolExecutionsTotal.WithLabelValues(step.Tool, category).Inc()
			resp.ToolErrors[step.Tool] = category
			if e.logger != nil {
				e.logger.LogToolFailed(ctx, correlationID, step.Tool, err)
			}
			if step.Required {
				resp.Success = false
				break
			}
			resp.CompletedSteps++
			continue
		}

		metrics.ToolExecutionsTotal.WithLabelValues(step.Tool, "success").Inc()
		if e.logger != nil {
			e.logger.LogToolExecuted(ctx, correlationID, step.Tool, duration)
		}

		resp.ToolResponses[step.Tool] = toolResp
		resp.CompletedSteps++
		harvestContext(plan.Context, step.Tool, toolResp)
	}

	resp.Pool = e.pool.Snapshot(e.poolSize())
	return resp
}

func (e *Executor) poolSize() int {
	workers := e.cfg.MaxConcurrentExecutions
	if workers <= 0 {
		return coreSize()
	}
	return workers
}

// harvestContext updates the shared plan context under "<tool>_results" and
// each data field re-keyed as "<tool>_<field>", so downstream steps can see
// upstream results.
func harvestContext(ctx map[string]interface{}, tool string, resp types.ToolResponse) {
	ctx[tool+"_results"] = resp.Data
	for field, value := range resp.Data {
		ctx[fmt.Sprintf("%s_%s", tool, field)] = value
	}
}

// runStepWithRetry invokes a tool under a per-step timeout, retrying
// retryable failures with exponential backoff and jitter. A successful
// result is served from and stored into the result cache when one is
// attached, keyed by tool name and its resolved parameters.
func (e *Executor) runStepWithRetry(ctx context.Context, tool Tool, step types.ExecutionStep, shared map[string]interface{}) (types.ToolResponse, error) {
	timeout := time.Duration(e.cfg.ToolExecutionTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	if e.pool.IsSaturated(e.poolSize()) {
		return types.ToolResponse{}, NewToolError(types.ErrSystemOverloaded, fmt.Errorf("executor: pool saturated: %d workers busy, queue at capacity %d", e.poolSize(), e.pool.Capacity()))
	}

	params := mergeParams(step.Parameters, shared)

	cacheKey, cacheable := e.toolCacheKey(step.Tool, params)
	if cacheable {
		if cached, found, err := e.cache.Get(ctx, cacheKey); err == nil && found {
			if resp, ok := cached.(types.ToolResponse); ok {
				metrics.ToolCacheHitsTotal.WithLabelValues(step.Tool).Inc()
				return resp, nil
			}
		}
		metrics.ToolCacheMissesTotal.WithLabelValues(step.Tool).Inc()
	}

	attempt := 0
	resp, err := retry.DoValue(ctx, e.retryPolicy, isRetryable, func() (types.ToolResponse, error) {
		if attempt > 0 {
			metrics.ToolRetriesTotal.WithLabelValues(step.Tool).Inc()
			if e.logger != nil {
				e.logger.LogToolRetried(ctx, audit.GetCorrelationID(ctx), step.Tool, attempt)
			}
		}
		attempt++

		stepCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		resultCh := make(chan stepResult, 1)
		e.pool.Submit(func() {
			toolResp, err := tool.Execute(stepCtx, params)
			resultCh <- stepResult{resp: toolResp, err: err}
		})

		select {
		case res := <-resultCh:
			if res.err != nil {
				return types.ToolResponse{}, res.err
			}
			return res.resp, nil
		case <-stepCtx.Done():
			return types.ToolResponse{}, NewToolError(types.ErrExecutionTimeout, stepCtx.Err())
		}
	})

	if err == nil && cacheable {
		e.cache.Set(ctx, cacheKey, resp, 0)
	}
	return resp, err
}

// toolCacheKey builds a deterministic cache key from a tool's name and
// resolved parameters. It reports cacheable=false when no cache is
// attached or params cannot be serialized (e.g. contain a channel or func).
func (e *Executor) toolCacheKey(tool string, params map[string]interface{}) (string, bool) {
	if e.cache == nil {
		return "", false
	}
	encoded, err := json.Marshal(params)
	if err != nil {
		return "", false
	}
	return tool + ":" + string(encoded), true
}

type stepResult struct {
	resp types.ToolResponse
	err  error
}

// mergeParams layers a step's own parameters over the shared plan context
// so a tool can read upstream results without the planner having to copy
// them forward explicitly.
func mergeParams(step map[string]interface{}, shared map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(step)+len(shared))
	for k, v := range shared {
		merged[k] = v
	}
	for k, v := range step {
		merged[k] = v
	}
	return merged
}

// Shutdown quiesces the tool pool: stop accepting work and wait for
// in-flight tasks to finish, or until ctx is done, whichever comes first.
// Go goroutines cannot be force-interrupted, so an impatient caller cancels
// ctx rather than calling Shutdown a second time.
func (e *Executor) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.pool.Shutdown()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
