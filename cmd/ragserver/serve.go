package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/codevoyager1984/math-agent/internal/app"
	"github.com/codevoyager1984/math-agent/internal/metrics"
	chiTransport "github.com/codevoyager1984/math-agent/internal/transport/chi"
	"github.com/codevoyager1984/math-agent/internal/version"
)

func newServeCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), flags)
		},
	}
}

func serve(ctx context.Context, flags *globalFlags) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	logger, err := newLogger(flags, &cfg, false)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting ragserver",
		zap.String("commit", version.Commit),
		zap.String("env", flags.env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("vector_store", cfg.VectorStore.Driver),
		zap.String("text_index", cfg.TextIndex.Driver),
	)

	engine, err := app.New(ctx, &cfg, logger)
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	metrics.RegisterHTTPMetrics()
	server := chiTransport.NewServer(engine, logger).WithQueryDefaults(engine.QueryDefaults())

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           chiTransport.NewRouter(server, cfg.Auth.APIKeys, logger),
		ReadHeaderTimeout: time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		ReadTimeout:       time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout:      time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(quit)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-quit:
		logger.Info("Received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
	return nil
}
