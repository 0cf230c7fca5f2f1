// TaskHive MCP tool server: exposes the task, tag, and reminder tool
// catalog to the chat agent over streamable HTTP.
package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/taskhive/taskhive/pkg/config"
	"github.com/taskhive/taskhive/pkg/dapr"
	"github.com/taskhive/taskhive/pkg/database"
	"github.com/taskhive/taskhive/pkg/events"
	"github.com/taskhive/taskhive/pkg/reminder"
	"github.com/taskhive/taskhive/pkg/services"
	"github.com/taskhive/taskhive/pkg/store"
	"github.com/taskhive/taskhive/pkg/toolserver"
	"github.com/taskhive/taskhive/pkg/version"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file, using existing environment", "error", err)
	}

	cfg := config.LoadToolServer()
	ctx := context.Background()

	slog.Info("Starting TaskHive tool server", "http_port", cfg.HTTPPort)

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

	// The tool server shares the core's service layer, so tool mutations
	// emit the same events the REST surface does.
	taskStore := store.NewTaskStore(dbClient.DB())
	tagStore := store.NewTagStore(dbClient.DB())
	reminderStore := store.NewReminderStore(dbClient.DB())

	sidecar := dapr.NewClient(config.LoadSidecar().BaseURL)
	publisher := events.NewPublisher(sidecar)

	taskService := services.NewTaskService(taskStore, tagStore, publisher)
	tagService := services.NewTagService(tagStore, taskStore)
	reminderEngine := reminder.NewEngine(reminderStore, taskStore, sidecar, publisher)

	tools := toolserver.NewServer(taskService, tagService, reminderEngine)

	mux := http.NewServeMux()
	mux.Handle("/mcp", tools.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status":  "healthy",
			"service": version.AppName + "-mcp",
			"version": version.GitCommit,
		})
	})

	httpServer := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Tool server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Tool server error", "error", err)
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
		slog.Error("Tool server shutdown error", "error", err)
	}
	slog.Info("Shutdown complete")
}
