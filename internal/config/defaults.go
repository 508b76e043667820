package config

// DefaultConfig returns a configuration with all default values.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Server.Port = 8081
	cfg.Server.TLSEnabled = false

	cfg.LLM.ChatCompletionURL = "http://localhost:9000/v1/chat/completions"
	cfg.LLM.EmbeddingURL = "http://localhost:9000/v1/embeddings"
	cfg.LLM.Model = "default"
	cfg.LLM.ModelVersion = "1"
	cfg.LLM.ClassifyTemperature = 0.0
	cfg.LLM.ClassifyMaxTokens = 64

	cfg.VectorStore.Dimension = 3072
	cfg.VectorStore.DataDir = "/var/lib/hqee/vectors"
	cfg.VectorStore.MaxConnections = 16
	cfg.VectorStore.EfConstruction = 200
	cfg.VectorStore.Ef = 50

	cfg.Hybrid.EnableDynamicTools = true
	cfg.Hybrid.MaxExecutionTimeSeconds = 30
	cfg.Hybrid.FallbackToStatic = true
	cfg.Hybrid.UseKnowledgeGraph = false

	cfg.MCP.MaxConcurrentExecutions = 8
	cfg.MCP.ThreadPoolQueueCapacity = 100
	cfg.MCP.ToolExecutionTimeoutSeconds = 30
	cfg.MCP.RetryMaxRetries = 3
	cfg.MCP.RetryDelayMs = 200
	cfg.MCP.RetryBackoffMultiplier = 2.0
	cfg.MCP.RetryMaxDelayMs = 5000

	cfg.CrossRepo.Roots = "/var/lib/hqee/repos"
	cfg.CrossRepo.ContextLines = 2
	cfg.CrossRepo.MaxReferencesPerRepo = 1000
	cfg.CrossRepo.ThreadPoolSize = 4
	cfg.CrossRepo.SearchTimeoutSeconds = 60

	cfg.KnowledgeGraph.DataDir = "/var/lib/hqee/graph"
	cfg.KnowledgeGraph.EnableFuzzyPathResolution = false

	cfg.Database.Enabled = false
	cfg.Database.SQLitePath = "/var/lib/hqee/hqee.db"

	cfg.Cache.EnableCaching = true
	cfg.Cache.TTLSeconds = 300
	cfg.Cache.MaxSizeMB = 100

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"
	cfg.Logging.AppLogPath = "/var/log/hqee/app.log"
	cfg.Logging.AuditLogPath = "/var/log/hqee/audit.log"

	return cfg
}
