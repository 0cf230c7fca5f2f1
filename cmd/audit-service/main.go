// Audit service: consumes task-events and writes the audit trail, and
// serves the audit query endpoints.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	echo "github.com/labstack/echo/v5"

	"github.com/taskhive/taskhive/pkg/config"
	"github.com/taskhive/taskhive/pkg/consumers"
	"github.com/taskhive/taskhive/pkg/database"
	"github.com/taskhive/taskhive/pkg/events"
	"github.com/taskhive/taskhive/pkg/store"
	"github.com/taskhive/taskhive/pkg/version"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file, using existing environment", "error", err)
	}

	cfg := config.LoadConsumer("8002")
	ctx := context.Background()

	slog.Info("Starting audit service", "http_port", cfg.HTTPPort)

	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		slog.Error("Failed to load database config", "error", err)
		os.Exit(1)
	}
	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			slog.Error("Error closing database client", "error", err)
		}
	}()

	auditStore := store.NewAuditStore(dbClient.DB())
	writer := consumers.NewAuditWriter(auditStore)
	query := consumers.NewAuditQuery(auditStore)

	e := echo.New()
	e.GET("/dapr/subscribe", events.SubscribeHandler(writer.Subscriptions()))
	e.POST("/events/"+events.TopicTaskEvents, writer.Handle)
	e.GET("/audit/logs", query.LogsHandler)
	e.GET("/audit/stats", query.StatsHandler)
	e.GET("/health", func(c *echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "healthy",
			"service": version.AppName + "-audit",
			"version": version.GitCommit,
		})
	})

	httpServer := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           e,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Audit service listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}
	slog.Info("Shutdown complete")
}
