package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	crier "github.com/matthewjhunter/crier"
	"github.com/matthewjhunter/crier/internal/config"
	"github.com/matthewjhunter/crier/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	addr := flag.String("addr", "", "listen address (overrides config)")
	withScheduler := flag.Bool("scheduler", false, "also run the background ticks in this process")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "crier-api: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.API.Addr = *addr
	}
	if cfg.API.JWTSecret == "" {
		fmt.Fprintln(os.Stderr, "crier-api: api.jwt_secret (or CRIER_JWT_SECRET) is required")
		os.Exit(1)
	}

	log := logging.NewLoggerWithService("crier-api", cfg.Log.Level)
	engine, err := crier.NewEngine(crier.EngineConfig{Config: cfg, Logger: log})
	if err != nil {
		log.WithError(err).Fatal("failed to start engine")
	}
	defer engine.Close()

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:         cfg.API.Addr,
		Handler:      newRouter(engine, []byte(cfg.API.JWTSecret), log),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute, // generation can be slow
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *withScheduler {
		go func() {
			if err := engine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.WithError(err).Error("scheduler stopped")
			}
		}()
	}

	go func() {
		log.WithField("addr", cfg.API.Addr).Info("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server failed")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("shutdown error")
		return
	}
	log.Info("stopped")
}
