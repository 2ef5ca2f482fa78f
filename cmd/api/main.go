package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"portfolio/internal/app"
	"portfolio/internal/config"
	"portfolio/internal/database"
	"portfolio/internal/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

// run owns every resource it opens, so deferred cleanup runs on all exits.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(log)
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	log.Info("configuration loaded", "config", cfg)

	db, err := database.Connect(cfg.DatabaseURL, log)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer func() {
		if err := database.Close(db); err != nil {
			log.Warn("failed to close database", "error", err)
		}
	}()

	if err := database.Migrate(db, log); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	a, err := app.New(cfg, db, log)
	if err != nil {
		return fmt.Errorf("initialize app: %w", err)
	}

	srv := &http.Server{
		Addr:              app.Addr(cfg),
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("starting server", "addr", srv.Addr, "storage_root", a.Store.Root())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serveErr:
		return fmt.Errorf("listen: %w", err)
	case sig := <-quit:
		log.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	log.Info("server exited cleanly")
	return nil
}
