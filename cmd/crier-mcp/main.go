// crier-mcp is a standalone MCP server for the crier publishing pipeline.
// It opens the crier database directly and serves one tenant's queue,
// generation and knowledge tools over stdio.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	crier "github.com/matthewjhunter/crier"
	"github.com/matthewjhunter/crier/internal/config"
	"github.com/matthewjhunter/crier/internal/logging"
)

func main() {
	configPath := flag.String("config", "./crier.yaml", "path to config file")
	tenant := flag.String("tenant", "default", "tenant the tools act for")
	withScheduler := flag.Bool("scheduler", false, "also run the periodic ticks in the background")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "crier-mcp: %v\n", err)
		os.Exit(1)
	}
	// Logs go to stderr; stdout carries the protocol.
	log := logging.NewLoggerWithService("crier-mcp", cfg.Log.Level)

	engine, err := crier.NewEngine(crier.EngineConfig{Config: cfg, Logger: log})
	if err != nil {
		log.WithError(err).Fatal("create crier engine")
	}
	defer engine.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *withScheduler {
		go func() {
			if err := engine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.WithError(err).Error("scheduler stopped")
			}
		}()
	}

	if err := newServer(engine, *tenant, log).run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("server error")
	}
}
