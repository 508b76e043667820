package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// viperConfigManager implements ConfigManager using Viper.
type viperConfigManager struct {
	configPath string
	config     *Config
	viper      *viper.Viper
	watchChan  chan Config
}

// Load loads configuration from all sources.
func (m *viperConfigManager) Load(ctx context.Context) error {
	m.viper = viper.New()

	m.viper.SetConfigFile(m.configPath)
	m.viper.SetConfigType("yaml")

	m.viper.SetEnvPrefix("HQEE")
	m.viper.AutomaticEnv()
	m.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	m.setDefaults()

	if err := m.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found is OK, we'll use defaults + env vars.
		} else if os.IsNotExist(err) {
			// OK, use defaults.
		} else {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := m.unmarshalConfig(); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.applyEnvOverrides()

	return nil
}

// Get returns the current configuration.
func (m *viperConfigManager) Get(ctx context.Context) *Config {
	return m.config
}

// Validate validates configuration is correct and complete.
func (m *viperConfigManager) Validate(ctx context.Context) error {
	errs := m.config.Validate()
	if len(errs) > 0 {
		var errMsgs []string
		for _, err := range errs {
			errMsgs = append(errMsgs, err.Error())
		}
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errMsgs, "\n  - "))
	}
	return nil
}

// Watch watches for configuration changes and reloads.
func (m *viperConfigManager) Watch(ctx context.Context) <-chan Config {
	m.viper.WatchConfig()
	m.viper.OnConfigChange(func(e fsnotify.Event) {
		if err := m.unmarshalConfig(); err != nil {
			return
		}
		select {
		case m.watchChan <- *m.config:
		default:
			// Channel full, skip this update.
		}
	})

	return m.watchChan
}

// Reload reloads configuration from sources.
func (m *viperConfigManager) Reload(ctx context.Context) error {
	if err := m.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := m.unmarshalConfig(); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.applyEnvOverrides()

	return nil
}

// setDefaults sets default values in viper.
func (m *viperConfigManager) setDefaults() {
	d := DefaultConfig()

	m.viper.SetDefault("server.port", d.Server.Port)
	m.viper.SetDefault("server.tls_enabled", d.Server.TLSEnabled)
	m.viper.SetDefault("server.tls_cert_path", d.Server.TLSCertPath)
	m.viper.SetDefault("server.tls_key_path", d.Server.TLSKeyPath)

	m.viper.SetDefault("llm.chat_completion_url", d.LLM.ChatCompletionURL)
	m.viper.SetDefault("llm.embedding_url", d.LLM.EmbeddingURL)
	m.viper.SetDefault("llm.model", d.LLM.Model)
	m.viper.SetDefault("llm.model_version", d.LLM.ModelVersion)
	m.viper.SetDefault("llm.classify_temperature", d.LLM.ClassifyTemperature)
	m.viper.SetDefault("llm.classify_max_tokens", d.LLM.ClassifyMaxTokens)

	m.viper.SetDefault("vector-store.dimension", d.VectorStore.Dimension)
	m.viper.SetDefault("vector-store.data-dir", d.VectorStore.DataDir)
	m.viper.SetDefault("vector-store.max-connections", d.VectorStore.MaxConnections)
	m.viper.SetDefault("vector-store.ef-construction", d.VectorStore.EfConstruction)
	m.viper.SetDefault("vector-store.ef", d.VectorStore.Ef)

	m.viper.SetDefault("hybrid.enable-dynamic-tools", d.Hybrid.EnableDynamicTools)
	m.viper.SetDefault("hybrid.max-execution-time-seconds", d.Hybrid.MaxExecutionTimeSeconds)
	m.viper.SetDefault("hybrid.fallback-to-static", d.Hybrid.FallbackToStatic)
	m.viper.SetDefault("hybrid.use-knowledge-graph", d.Hybrid.UseKnowledgeGraph)

	m.viper.SetDefault("mcp.max-concurrent-executions", d.MCP.MaxConcurrentExecutions)
	m.viper.SetDefault("mcp.thread-pool-queue-capacity", d.MCP.ThreadPoolQueueCapacity)
	m.viper.SetDefault("mcp.tool-execution-timeout-seconds", d.MCP.ToolExecutionTimeoutSeconds)
	m.viper.SetDefault("mcp.retry.max-retries", d.MCP.RetryMaxRetries)
	m.viper.SetDefault("mcp.retry.delay-ms", d.MCP.RetryDelayMs)
	m.viper.SetDefault("mcp.retry.backoff-multiplier", d.MCP.RetryBackoffMultiplier)
	m.viper.SetDefault("mcp.retry.max-delay-ms", d.MCP.RetryMaxDelayMs)

	m.viper.SetDefault("crossrepo.roots", d.CrossRepo.Roots)
	m.viper.SetDefault("crossrepo.context-lines", d.CrossRepo.ContextLines)
	m.viper.SetDefault("crossrepo.max-references-per-repo", d.CrossRepo.MaxReferencesPerRepo)
	m.viper.SetDefault("crossrepo.thread-pool-size", d.CrossRepo.ThreadPoolSize)
	m.viper.SetDefault("crossrepo.search-timeout-seconds", d.CrossRepo.SearchTimeoutSeconds)

	m.viper.SetDefault("knowledge-graph.data-dir", d.KnowledgeGraph.DataDir)
	m.viper.SetDefault("knowledge-graph.enable-fuzzy-path-resolution", d.KnowledgeGraph.EnableFuzzyPathResolution)

	m.viper.SetDefault("database.enabled", d.Database.Enabled)
	m.viper.SetDefault("database.sqlite-path", d.Database.SQLitePath)

	m.viper.SetDefault("cache.enable-caching", d.Cache.EnableCaching)
	m.viper.SetDefault("cache.ttl-seconds", d.Cache.TTLSeconds)
	m.viper.SetDefault("cache.max-size-mb", d.Cache.MaxSizeMB)

	m.viper.SetDefault("logging.level", d.Logging.Level)
	m.viper.SetDefault("logging.format", d.Logging.Format)
	m.viper.SetDefault("logging.app-log-path", d.Logging.AppLogPath)
	m.viper.SetDefault("logging.audit-log-path", d.Logging.AuditLogPath)
}

// unmarshalConfig unmarshals viper config into Config struct.
func (m *viperConfigManager) unmarshalConfig() error {
	cfg := &Config{}

	cfg.Server.Port = m.viper.GetInt("server.port")
	cfg.Server.TLSEnabled = m.viper.GetBool("server.tls_enabled")
	cfg.Server.TLSCertPath = m.viper.GetString("server.tls_cert_path")
	cfg.Server.TLSKeyPath = m.viper.GetString("server.tls_key_path")

	cfg.LLM.ChatCompletionURL = m.viper.GetString("llm.chat_completion_url")
	cfg.LLM.EmbeddingURL = m.viper.GetString("llm.embedding_url")
	cfg.LLM.Model = m.viper.GetString("llm.model")
	cfg.LLM.ModelVersion = m.viper.GetString("llm.model_version")
	cfg.LLM.ClassifyTemperature = m.viper.GetFloat64("llm.classify_temperature")
	cfg.LLM.ClassifyMaxTokens = m.viper.GetInt("llm.classify_max_tokens")

	cfg.VectorStore.Dimension = m.viper.GetInt("vector-store.dimension")
	cfg.VectorStore.DataDir = m.viper.GetString("vector-store.data-dir")
	cfg.VectorStore.MaxConnections = m.viper.GetInt("vector-store.max-connections")
	cfg.VectorStore.EfConstruction = m.viper.GetInt("vector-store.ef-construction")
	cfg.VectorStore.Ef = m.viper.GetInt("vector-store.ef")

	cfg.Hybrid.EnableDynamicTools = m.viper.GetBool("hybrid.enable-dynamic-tools")
	cfg.Hybrid.MaxExecutionTimeSeconds = m.viper.GetInt("hybrid.max-execution-time-seconds")
	cfg.Hybrid.FallbackToStatic = m.viper.GetBool("hybrid.fallback-to-static")
	cfg.Hybrid.UseKnowledgeGraph = m.viper.GetBool("hybrid.use-knowledge-graph")

	cfg.MCP.MaxConcurrentExecutions = m.viper.GetInt("mcp.max-concurrent-executions")
	cfg.MCP.ThreadPoolQueueCapacity = m.viper.GetInt("mcp.thread-pool-queue-capacity")
	cfg.MCP.ToolExecutionTimeoutSeconds = m.viper.GetInt("mcp.tool-execution-timeout-seconds")
	cfg.MCP.RetryMaxRetries = m.viper.GetInt("mcp.retry.max-retries")
	cfg.MCP.RetryDelayMs = m.viper.GetInt("mcp.retry.delay-ms")
	cfg.MCP.RetryBackoffMultiplier = m.viper.GetFloat64("mcp.retry.backoff-multiplier")
	cfg.MCP.RetryMaxDelayMs = m.viper.GetInt("mcp.retry.max-delay-ms")

	cfg.CrossRepo.Roots = m.viper.GetString("crossrepo.roots")
	cfg.CrossRepo.ContextLines = m.viper.GetInt("crossrepo.context-lines")
	cfg.CrossRepo.MaxReferencesPerRepo = m.viper.GetInt("crossrepo.max-references-per-repo")
	cfg.CrossRepo.ThreadPoolSize = m.viper.GetInt("crossrepo.thread-pool-size")
	cfg.CrossRepo.SearchTimeoutSeconds = m.viper.GetInt("crossrepo.search-timeout-seconds")

	cfg.KnowledgeGraph.DataDir = m.viper.GetString("knowledge-graph.data-dir")
	cfg.KnowledgeGraph.EnableFuzzyPathResolution = m.viper.GetBool("knowledge-graph.enable-fuzzy-path-resolution")

	cfg.Database.Enabled = m.viper.GetBool("database.enabled")
	cfg.Database.SQLitePath = m.viper.GetString("database.sqlite-path")

	cfg.Cache.EnableCaching = m.viper.GetBool("cache.enable-caching")
	cfg.Cache.TTLSeconds = m.viper.GetInt("cache.ttl-seconds")
	cfg.Cache.MaxSizeMB = m.viper.GetInt("cache.max-size-mb")

	cfg.Logging.Level = m.viper.GetString("logging.level")
	cfg.Logging.Format = m.viper.GetString("logging.format")
	cfg.Logging.AppLogPath = m.viper.GetString("logging.app-log-path")
	cfg.Logging.AuditLogPath = m.viper.GetString("logging.audit-log-path")

	m.config = cfg
	return nil
}

// applyEnvOverrides applies environment variable overrides for sensitive data.
func (m *viperConfigManager) applyEnvOverrides() {
	if key := os.Getenv("HQEE_LLM_ACCESS_KEY"); key != "" {
		m.config.LLM.AccessKey = key
	}
	if url := os.Getenv("HQEE_LLM_CHAT_COMPLETION_URL"); url != "" {
		m.config.LLM.ChatCompletionURL = url
	}
	if url := os.Getenv("HQEE_LLM_EMBEDDING_URL"); url != "" {
		m.config.LLM.EmbeddingURL = url
	}
	if portEnv := os.Getenv("HQEE_SERVER_PORT"); portEnv != "" {
		m.config.Server.Port = m.viper.GetInt("server.port")
	}
}
