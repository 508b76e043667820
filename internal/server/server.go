// Package server wires every HQEE collaborator into a runnable HTTP
// service: configuration, logging, the vector store, knowledge graph,
// cross-repo searcher, config-impact analyzer, classifier, tool executor,
// hybrid engine, and the REST/WebSocket surface in front of them.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kubilitics/hqee/internal/api/rest"
	"github.com/kubilitics/hqee/internal/audit"
	"github.com/kubilitics/hqee/internal/cache"
	"github.com/kubilitics/hqee/internal/classifier"
	"github.com/kubilitics/hqee/internal/config"
	"github.com/kubilitics/hqee/internal/configimpact"
	"github.com/kubilitics/hqee/internal/crossrepo"
	"github.com/kubilitics/hqee/internal/db"
	"github.com/kubilitics/hqee/internal/executor"
	"github.com/kubilitics/hqee/internal/hybrid"
	"github.com/kubilitics/hqee/internal/knowledgegraph"
	"github.com/kubilitics/hqee/internal/llmclient"
	"github.com/kubilitics/hqee/internal/middleware"
	"github.com/kubilitics/hqee/internal/vectorstore"
)

// degradedThreshold is the number of consecutive embedding-generation
// failures the store tolerates before marking itself degraded.
const degradedThreshold = 5

// Server is the HQEE process: every collaborator plus the HTTP listener
// that fronts them.
type Server struct {
	config *config.Config

	logger     audit.Logger
	llm        *llmclient.Client
	vectors    *vectorstore.Store
	graph      *knowledgegraph.Graph
	crossRepo  *crossrepo.Searcher
	configImp  *configimpact.Analyzer
	classifier *classifier.Classifier
	registry   *executor.Registry
	exec       *executor.Executor
	engine     *hybrid.Engine
	store      db.Store
	limiter    *middleware.RateLimiter

	httpServer *http.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.RWMutex
	running bool
}

// NewServer builds a Server and every component it depends on.
func NewServer(cfg *config.Config) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	ctx, cancel := context.WithCancel(context.Background())

	srv := &Server{
		config: cfg,
		ctx:    ctx,
		cancel: cancel,
	}

	if err := srv.initializeComponents(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize components: %w", err)
	}

	return srv, nil
}

func (s *Server) initializeComponents() error {
	logger, err := audit.NewLogger(&audit.Config{
		AuditLogPath: s.config.Logging.AuditLogPath,
		AppLogPath:   s.config.Logging.AppLogPath,
		MaxSize:      100,
		MaxBackups:   10,
		MaxAge:       30,
		Compress:     true,
		LogLevel:     s.config.Logging.Level,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize audit logger: %w", err)
	}
	s.logger = logger

	s.llm = llmclient.New(llmclient.Config{
		ChatCompletionURL: s.config.LLM.ChatCompletionURL,
		EmbeddingURL:      s.config.LLM.EmbeddingURL,
		AccessKey:         s.config.LLM.AccessKey,
		Model:             s.config.LLM.Model,
		ModelVersion:      s.config.LLM.ModelVersion,
	})

	s.vectors = vectorstore.New(vectorstore.Config{
		Dimension:      s.config.VectorStore.Dimension,
		DataDir:        s.config.VectorStore.DataDir,
		MaxConnections: s.config.VectorStore.MaxConnections,
		EfConstruction: s.config.VectorStore.EfConstruction,
		Ef:             s.config.VectorStore.Ef,
	}, s.llm, degradedThreshold)
	if err := s.vectors.Load(s.ctx); err != nil {
		return fmt.Errorf("failed to load vector store: %w", err)
	}

	s.graph = knowledgegraph.New(s.config.KnowledgeGraph.DataDir, s.logger)
	s.graph.SetFuzzyPathResolution(s.config.KnowledgeGraph.EnableFuzzyPathResolution)
	if err := s.graph.Load(s.ctx); err != nil {
		// A missing or corrupt persisted graph degrades knowledge-graph
		// enrichment; it does not prevent the server from serving queries.
		s.logger.LogKnowledgeGraphRebuilt(s.ctx, 0, 0, 0)
	}

	s.crossRepo = crossrepo.New(crossrepo.Config{
		RootDir:      s.config.CrossRepo.Roots,
		PoolSize:     s.config.CrossRepo.ThreadPoolSize,
		Deadline:     time.Duration(s.config.CrossRepo.SearchTimeoutSeconds) * time.Second,
		PerRepoCap:   s.config.CrossRepo.MaxReferencesPerRepo,
		ContextLines: s.config.CrossRepo.ContextLines,
	})

	s.configImp = configimpact.New(configimpact.Config{
		SourceRoot:        s.config.CrossRepo.Roots,
		PropertyFilePaths: []string{s.config.CrossRepo.Roots},
	})

	s.classifier = classifier.New(s.llm, classifier.Config{
		Temperature: s.config.LLM.ClassifyTemperature,
		MaxTokens:   s.config.LLM.ClassifyMaxTokens,
	}, s.logger)

	s.registry = executor.NewRegistry()
	s.registry.Register(&executor.VectorSearchTool{Store: s.vectors})
	s.registry.Register(&executor.CrossRepoTracerTool{Searcher: s.crossRepo})
	s.registry.Register(&executor.ConfigImpactAnalyzerTool{Analyzer: s.configImp})
	s.registry.Register(&executor.KnowledgeGraphQueryTool{Graph: s.graph})

	s.exec = executor.New(s.registry, executor.Config{
		MaxConcurrentExecutions:     s.config.MCP.MaxConcurrentExecutions,
		ThreadPoolQueueCapacity:     s.config.MCP.ThreadPoolQueueCapacity,
		ToolExecutionTimeoutSeconds: s.config.MCP.ToolExecutionTimeoutSeconds,
		RetryMaxRetries:             s.config.MCP.RetryMaxRetries,
		RetryDelayMs:                s.config.MCP.RetryDelayMs,
		RetryBackoffMultiplier:      s.config.MCP.RetryBackoffMultiplier,
		RetryMaxDelayMs:             s.config.MCP.RetryMaxDelayMs,
	}, s.logger)

	if s.config.Cache.EnableCaching {
		s.exec.SetCache(cache.NewCache(cache.Config{
			MaxSizeMB:  s.config.Cache.MaxSizeMB,
			TTLSeconds: s.config.Cache.TTLSeconds,
		}))
	}

	s.engine = hybrid.New(s.classifier, s.exec, s.graph, s.logger, hybrid.Config{
		EnableDynamicTools:      s.config.Hybrid.EnableDynamicTools,
		MaxExecutionTimeSeconds: s.config.Hybrid.MaxExecutionTimeSeconds,
		FallbackToStatic:        s.config.Hybrid.FallbackToStatic,
		UseKnowledgeGraph:       s.config.Hybrid.UseKnowledgeGraph,
	})

	if s.config.Database.Enabled {
		store, err := db.NewSQLiteStore(s.config.Database.SQLitePath)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		s.store = store
	} else {
		s.store = db.NewNoopStore()
	}

	s.limiter = middleware.NewRateLimiter(600)

	return nil
}

// Start brings up the HTTP listener. It returns once the listener goroutine
// has been launched; it does not block until shutdown (see Wait).
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.running = true
	s.mu.Unlock()

	mux := http.NewServeMux()
	s.registerHandlers(mux)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Server.Port),
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		var err error
		if s.config.Server.TLSEnabled {
			err = s.httpServer.ListenAndServeTLS(s.config.Server.TLSCertPath, s.config.Server.TLSKeyPath)
		} else {
			err = s.httpServer.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			fmt.Printf("http server error: %v\n", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP listener, cancels the server's
// context, and waits for its tracked goroutines to exit.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("server is not running")
	}
	s.running = false
	s.mu.Unlock()

	if s.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("error shutting down http server: %v\n", err)
		}
	}

	poolCtx, poolCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer poolCancel()
	if err := s.exec.Shutdown(poolCtx); err != nil {
		fmt.Printf("error shutting down tool executor: %v\n", err)
	}
	if s.store != nil {
		s.store.Close()
	}
	s.vectors.PersistFailures()
	if err := s.graph.Save(); err != nil {
		fmt.Printf("error persisting knowledge graph: %v\n", err)
	}
	s.logger.Sync()
	s.logger.Close()

	s.cancel()
	s.wg.Wait()
	return nil
}

// Wait blocks until the server's context is cancelled (via Stop).
func (s *Server) Wait() {
	<-s.ctx.Done()
}

// IsRunning reports whether the server is currently serving.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *Server) registerHandlers(mux *http.ServeMux) {
	handler := rest.NewHandler(s.engine, s.registry, s.vectors, s.graph, s.logger)
	rest.RegisterRoutes(mux, handler, s.limiter)
	mux.Handle("/metrics", promhttp.Handler())
}
