package config

import "context"

// Package config provides configuration management for the hybrid query
// execution engine.
//
// Responsibilities:
//   - Load configuration from YAML files and environment variables
//   - Validate configuration on startup
//   - Provide runtime access to all configuration
//   - Support configuration reloading (for some settings)
//   - Manage sensitive data (API keys, credentials)
//   - Establish reasonable defaults
//
// Configuration Sources (priority order, high to low):
//   1. Environment variables (HQEE_* prefix, highest priority)
//   2. YAML config files (default: /etc/hqee/config.yaml)
//   3. Built-in defaults (lowest priority)
//
// No configuration key is read from CLI flags; cmd/server's only flag,
// -config, selects the YAML file.
//
// Main Configuration Sections:
//
//   1. Server
//      - port: Listen port (default 8081)
//      - tls_enabled / tls_cert_path / tls_key_path
//
//   2. LLM (upstream chat-completion + embedding provider)
//      - chat_completion_url, embedding_url, access_key, model, model_version
//      - classify_temperature, classify_max_tokens
//
//   3. VectorStore
//      - dimension, data-dir, max-connections, ef-construction, ef
//
//   4. Hybrid
//      - enable-dynamic-tools, max-execution-time-seconds,
//        fallback-to-static, use-knowledge-graph
//
//   5. MCP (tool pool)
//      - max-concurrent-executions, thread-pool-queue-capacity,
//        tool-execution-timeout-seconds, retry.max-retries, retry.delay-ms
//
//   6. CrossRepo
//      - roots, context-lines, max-references-per-repo, thread-pool-size,
//        search-timeout-seconds
//
//   7. KnowledgeGraph
//      - data-dir, enable-fuzzy-path-resolution
//
//   8. Database
//      - enabled, sqlite-path
//
//   9. Cache
//      - enable-caching, ttl-seconds, max-size-mb
//
//  10. Logging
//      - level: "debug" | "info" | "warn" | "error"
//      - format: "json" | "text"
//      - audit-log-path, app-log-path

// Config struct contains all configuration fields.
type Config struct {
	Server struct {
		Port        int
		TLSEnabled  bool
		TLSCertPath string
		TLSKeyPath  string
	}

	LLM struct {
		ChatCompletionURL  string
		EmbeddingURL       string
		AccessKey          string
		Model              string
		ModelVersion       string
		ClassifyTemperature float64
		ClassifyMaxTokens  int
	}

	VectorStore struct {
		Dimension      int
		DataDir        string
		MaxConnections int
		EfConstruction int
		Ef             int
	}

	Hybrid struct {
		EnableDynamicTools       bool
		MaxExecutionTimeSeconds  int
		FallbackToStatic         bool
		UseKnowledgeGraph        bool
	}

	MCP struct {
		MaxConcurrentExecutions     int
		ThreadPoolQueueCapacity     int
		ToolExecutionTimeoutSeconds int
		RetryMaxRetries             int
		RetryDelayMs                int
		RetryBackoffMultiplier      float64
		RetryMaxDelayMs             int
	}

	CrossRepo struct {
		Roots                 string
		ContextLines           int
		MaxReferencesPerRepo   int
		ThreadPoolSize         int
		SearchTimeoutSeconds   int
	}

	KnowledgeGraph struct {
		DataDir                      string
		EnableFuzzyPathResolution    bool
	}

	Database struct {
		Enabled    bool
		SQLitePath string
	}

	Cache struct {
		EnableCaching bool
		TTLSeconds    int
		MaxSizeMB     int
	}

	Logging struct {
		Level       string
		Format      string
		AppLogPath  string
		AuditLogPath string
	}
}

// ConfigManager defines the interface for configuration access.
type ConfigManager interface {
	// Load loads configuration from all sources.
	Load(ctx context.Context) error

	// Get returns the current configuration.
	Get(ctx context.Context) *Config

	// Validate validates configuration is correct and complete.
	Validate(ctx context.Context) error

	// Watch watches for configuration changes and reloads (if supported).
	Watch(ctx context.Context) <-chan Config

	// Reload reloads configuration from sources (selective settings).
	Reload(ctx context.Context) error
}

// NewConfigManager creates a new configuration manager.
func NewConfigManager(configPath string) (ConfigManager, error) {
	mgr := &viperConfigManager{
		configPath: configPath,
		config:     DefaultConfig(),
		watchChan:  make(chan Config, 1),
	}
	return mgr, nil
}

// NewConfigManagerWithDefaults creates a config manager with default config path.
func NewConfigManagerWithDefaults() (ConfigManager, error) {
	return NewConfigManager("/etc/hqee/config.yaml")
}
