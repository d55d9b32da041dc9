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
	"go.uber.org/zap"

	poolcoach "github.com/menta2k/pool-coach"
	"github.com/menta2k/pool-coach/internal/backend"
	"github.com/menta2k/pool-coach/internal/config"
	"github.com/menta2k/pool-coach/internal/logger"
	"github.com/menta2k/pool-coach/internal/server"
	"github.com/menta2k/pool-coach/pkg/processing"
)

var (
	Version   = "dev"
	GitCommit = "unknown"
)

func main() {
	configPath := flag.String("config", "", "config file (YAML, JSON or TOML)")
	flag.Parse()

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
	} else {
		cfg, err = config.LoadDefaultPath()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	zl, err := logger.New(cfg.Log.Mode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync(zl)

	zl.Info("starting pool-coach server",
		zap.String("version", Version),
		zap.String("library", poolcoach.Version),
		zap.String("git_commit", GitCommit),
		zap.String("backend", cfg.Backend.Name))

	submitter, err := backend.New(cfg.Backend)
	if err != nil {
		zl.Fatal("backend setup failed", zap.Error(err))
	}
	defer backend.Close(submitter)

	coach := poolcoach.New(submitter, poolcoach.Options{
		MaxDimension: cfg.Preprocess.MaxDimension,
		Quality:      cfg.Preprocess.Quality,
		Processing: processing.Config{
			Format:       cfg.Preprocess.Format,
			MinDimension: cfg.Preprocess.MinDimension,
			MaxPixels:    cfg.Preprocess.MaxPixels,
		},
		Logger: zl,
	})

	gin.SetMode(cfg.Server.Mode)
	api := server.New(coach, server.Options{
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RequestTimeout: cfg.Backend.Timeout,
		SessionTTL:     cfg.Server.SessionTTL,
		Logger:         zl.Named("http"),
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      api.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in a goroutine
	go func() {
		zl.Info("server listening",
			zap.String("address", cfg.Server.Addr),
			zap.Duration("backend_timeout", cfg.Backend.Timeout))

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zl.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zl.Error("server forced to shutdown", zap.Error(err))
	}
	api.Close()

	zl.Info("server exited")
}
