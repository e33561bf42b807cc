// ABOUTME: Main entry point for the rpcbridge stdio server
// ABOUTME: Loads configuration, boots the registry, and runs the serve loop

package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/harper/rpcbridge/internal/calllog"
	"github.com/harper/rpcbridge/internal/config"
	"github.com/harper/rpcbridge/internal/dispatch"
	"github.com/harper/rpcbridge/internal/jsonrpc"
	"github.com/harper/rpcbridge/internal/logger"
	"github.com/harper/rpcbridge/internal/protocol"
	"github.com/harper/rpcbridge/internal/registry"
	"github.com/harper/rpcbridge/internal/server"
	"github.com/harper/rpcbridge/internal/xmlrpc"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	// .env is optional; real environment wins.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger.SetVerbose(cfg.Server.Debug)

	// Ambient settings for handlers that read the environment.
	for key, value := range cfg.Server.Env {
		if err := os.Setenv(key, value); err != nil {
			logger.Warn("failed to set %s: %v", key, err)
		}
	}

	reg := registry.New()
	if err := server.RegisterBuiltins(reg); err != nil {
		log.Fatalf("failed to register builtin methods: %v", err)
	}

	disp := dispatch.New(reg, &dispatch.ExceptionMapper{Debug: cfg.Server.Debug})
	disp.Parallel = cfg.Server.ParallelBatches

	if cfg.CallLog.Path != "" {
		cl, err := calllog.Open(cfg.CallLog.Path)
		if err != nil {
			log.Fatalf("failed to open call log: %v", err)
		}
		defer func() { _ = cl.Close() }()
		disp.SetRecorder(cl)
	}

	var proto protocol.Protocol
	switch cfg.Server.Protocol {
	case config.ProtocolXML:
		proto = xmlrpc.New()
	default:
		proto = jsonrpc.New()
	}

	logger.Info("serving %s envelope on stdio", cfg.Server.Protocol)
	srv := server.New(proto, disp)
	if err := srv.Serve(context.Background(), os.Stdin, os.Stdout); err != nil {
		log.Fatalf("serve loop failed: %v", err)
	}
}
