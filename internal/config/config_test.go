package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Port != 8081 {
		t.Errorf("expected default port 8081, got %d", cfg.Server.Port)
	}
	if cfg.VectorStore.Dimension != 3072 {
		t.Errorf("expected default dimension 3072, got %d", cfg.VectorStore.Dimension)
	}
	if cfg.MCP.RetryMaxRetries != 3 {
		t.Errorf("expected default max retries 3, got %d", cfg.MCP.RetryMaxRetries)
	}
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Fatalf("expected default config to be valid, got errors: %v", errs)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.Port = 0
	cfg.VectorStore.Dimension = -1
	cfg.Logging.Level = "verbose"

	errs := cfg.Validate()
	if len(errs) != 3 {
		t.Fatalf("expected 3 validation errors, got %d: %v", len(errs), errs)
	}
}

func TestConfigValidateTLSRequiresPaths(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.TLSEnabled = true

	errs := cfg.Validate()
	if len(errs) == 0 {
		t.Fatal("expected validation errors when TLS enabled without cert/key paths")
	}
}

func TestConfigValidateDatabaseEnabledRequiresPath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Database.Enabled = true
	cfg.Database.SQLitePath = ""

	errs := cfg.Validate()
	found := false
	for _, err := range errs {
		if ve, ok := err.(ValidationError); ok && ve.Field == "database.sqlite-path" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected database.sqlite-path validation error")
	}
}

func TestLoadFromYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
server:
  port: 9090
vector-store:
  dimension: 1536
logging:
  level: debug
  format: text
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	mgr, err := NewConfigManager(configPath)
	if err != nil {
		t.Fatalf("NewConfigManager failed: %v", err)
	}

	ctx := context.Background()
	if err := mgr.Load(ctx); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	cfg := mgr.Get(ctx)
	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090 from yaml, got %d", cfg.Server.Port)
	}
	if cfg.VectorStore.Dimension != 1536 {
		t.Errorf("expected dimension 1536 from yaml, got %d", cfg.VectorStore.Dimension)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected logging level debug from yaml, got %s", cfg.Logging.Level)
	}
	// Unset values should still fall back to defaults.
	if cfg.MCP.MaxConcurrentExecutions != 8 {
		t.Errorf("expected default max concurrent executions 8, got %d", cfg.MCP.MaxConcurrentExecutions)
	}
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	mgr, err := NewConfigManager(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("NewConfigManager failed: %v", err)
	}

	ctx := context.Background()
	if err := mgr.Load(ctx); err != nil {
		t.Fatalf("Load should tolerate a missing config file, got: %v", err)
	}

	cfg := mgr.Get(ctx)
	if cfg.Server.Port != 8081 {
		t.Errorf("expected fallback to default port, got %d", cfg.Server.Port)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("HQEE_LLM_ACCESS_KEY", "secret-key-123")

	mgr, err := NewConfigManager(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("NewConfigManager failed: %v", err)
	}

	ctx := context.Background()
	if err := mgr.Load(ctx); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	cfg := mgr.Get(ctx)
	if cfg.LLM.AccessKey != "secret-key-123" {
		t.Errorf("expected access key override from env, got %q", cfg.LLM.AccessKey)
	}
}
