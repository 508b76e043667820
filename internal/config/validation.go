package config

import (
	"fmt"
	"os"
)

// ValidationError represents a single configuration validation failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the configuration for internal consistency and returns
// every violation found, rather than stopping at the first one.
func (c *Config) Validate() []error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, ValidationError{"server.port", "must be between 1 and 65535"})
	}
	if c.Server.TLSEnabled {
		if c.Server.TLSCertPath == "" {
			errs = append(errs, ValidationError{"server.tls_cert_path", "required when tls_enabled is true"})
		} else if _, err := os.Stat(c.Server.TLSCertPath); err != nil {
			errs = append(errs, ValidationError{"server.tls_cert_path", "file not found: " + c.Server.TLSCertPath})
		}
		if c.Server.TLSKeyPath == "" {
			errs = append(errs, ValidationError{"server.tls_key_path", "required when tls_enabled is true"})
		} else if _, err := os.Stat(c.Server.TLSKeyPath); err != nil {
			errs = append(errs, ValidationError{"server.tls_key_path", "file not found: " + c.Server.TLSKeyPath})
		}
	}

	if c.LLM.ChatCompletionURL == "" {
		errs = append(errs, ValidationError{"llm.chat_completion_url", "must not be empty"})
	}
	if c.LLM.EmbeddingURL == "" {
		errs = append(errs, ValidationError{"llm.embedding_url", "must not be empty"})
	}
	if c.LLM.ClassifyTemperature < 0 || c.LLM.ClassifyTemperature > 2 {
		errs = append(errs, ValidationError{"llm.classify_temperature", "must be between 0 and 2"})
	}
	if c.LLM.ClassifyMaxTokens <= 0 {
		errs = append(errs, ValidationError{"llm.classify_max_tokens", "must be positive"})
	}

	if c.VectorStore.Dimension <= 0 {
		errs = append(errs, ValidationError{"vector-store.dimension", "must be positive"})
	}
	if c.VectorStore.DataDir == "" {
		errs = append(errs, ValidationError{"vector-store.data-dir", "must not be empty"})
	}
	if c.VectorStore.MaxConnections <= 0 {
		errs = append(errs, ValidationError{"vector-store.max-connections", "must be positive"})
	}
	if c.VectorStore.EfConstruction <= 0 {
		errs = append(errs, ValidationError{"vector-store.ef-construction", "must be positive"})
	}
	if c.VectorStore.Ef <= 0 {
		errs = append(errs, ValidationError{"vector-store.ef", "must be positive"})
	}

	if c.Hybrid.MaxExecutionTimeSeconds <= 0 {
		errs = append(errs, ValidationError{"hybrid.max-execution-time-seconds", "must be positive"})
	}

	if c.MCP.MaxConcurrentExecutions <= 0 {
		errs = append(errs, ValidationError{"mcp.max-concurrent-executions", "must be positive"})
	}
	if c.MCP.ThreadPoolQueueCapacity <= 0 {
		errs = append(errs, ValidationError{"mcp.thread-pool-queue-capacity", "must be positive"})
	}
	if c.MCP.ToolExecutionTimeoutSeconds <= 0 {
		errs = append(errs, ValidationError{"mcp.tool-execution-timeout-seconds", "must be positive"})
	}
	if c.MCP.RetryMaxRetries < 0 {
		errs = append(errs, ValidationError{"mcp.retry.max-retries", "must not be negative"})
	}
	if c.MCP.RetryDelayMs < 0 {
		errs = append(errs, ValidationError{"mcp.retry.delay-ms", "must not be negative"})
	}
	if c.MCP.RetryBackoffMultiplier < 1 {
		errs = append(errs, ValidationError{"mcp.retry.backoff-multiplier", "must be at least 1"})
	}
	if c.MCP.RetryMaxDelayMs < c.MCP.RetryDelayMs {
		errs = append(errs, ValidationError{"mcp.retry.max-delay-ms", "must be >= retry.delay-ms"})
	}

	if c.CrossRepo.ContextLines < 0 {
		errs = append(errs, ValidationError{"crossrepo.context-lines", "must not be negative"})
	}
	if c.CrossRepo.MaxReferencesPerRepo <= 0 {
		errs = append(errs, ValidationError{"crossrepo.max-references-per-repo", "must be positive"})
	}
	if c.CrossRepo.ThreadPoolSize <= 0 {
		errs = append(errs, ValidationError{"crossrepo.thread-pool-size", "must be positive"})
	}
	if c.CrossRepo.SearchTimeoutSeconds <= 0 {
		errs = append(errs, ValidationError{"crossrepo.search-timeout-seconds", "must be positive"})
	}

	if c.KnowledgeGraph.DataDir == "" {
		errs = append(errs, ValidationError{"knowledge-graph.data-dir", "must not be empty"})
	}

	if c.Database.Enabled && c.Database.SQLitePath == "" {
		errs = append(errs, ValidationError{"database.sqlite-path", "required when database.enabled is true"})
	}

	if c.Cache.EnableCaching {
		if c.Cache.TTLSeconds < 0 {
			errs = append(errs, ValidationError{"cache.ttl-seconds", "must not be negative"})
		}
		if c.Cache.MaxSizeMB <= 0 {
			errs = append(errs, ValidationError{"cache.max-size-mb", "must be positive when caching is enabled"})
		}
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, ValidationError{"logging.level", "must be one of debug, info, warn, error"})
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		errs = append(errs, ValidationError{"logging.format", "must be one of json, text"})
	}

	return errs
}
