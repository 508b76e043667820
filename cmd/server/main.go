// Package main is the entry point for the hybrid query execution engine
// server.
//
// Responsibilities:
//   - Load and validate configuration from YAML (path given by -config) and
//     environment variables
//   - Build every collaborator (vector store, knowledge graph, cross-repo
//     searcher, config-impact analyzer, classifier, tool executor, hybrid
//     engine) and wire them behind the REST/WebSocket surface
//   - Serve health, metrics, and MCP endpoints
//   - Shut down gracefully on SIGINT/SIGTERM
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kubilitics/hqee/internal/config"
	"github.com/kubilitics/hqee/internal/server"
)

func main() {
	configPath := flag.String("config", "/etc/hqee/config.yaml", "path to the HQEE config file")
	flag.Parse()

	mgr, err := config.NewConfigManager(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create config manager: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	if err := mgr.Load(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := mgr.Validate(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	srv, err := server.NewServer(mgr.Get(ctx))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize server: %v\n", err)
		os.Exit(1)
	}

	if err := srv.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start server: %v\n", err)
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	if err := srv.Stop(); err != nil {
		fmt.Fprintf(os.Stderr, "error during shutdown: %v\n", err)
		os.Exit(1)
	}
}
