// TaskHive core server: REST task management, the chat dispatcher, the
// reminder engine, and the Dapr job callback.
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

	"github.com/taskhive/taskhive/pkg/agent"
	"github.com/taskhive/taskhive/pkg/api"
	"github.com/taskhive/taskhive/pkg/auth"
	"github.com/taskhive/taskhive/pkg/config"
	"github.com/taskhive/taskhive/pkg/dapr"
	"github.com/taskhive/taskhive/pkg/database"
	"github.com/taskhive/taskhive/pkg/events"
	"github.com/taskhive/taskhive/pkg/llm"
	"github.com/taskhive/taskhive/pkg/mcp"
	"github.com/taskhive/taskhive/pkg/reminder"
	"github.com/taskhive/taskhive/pkg/services"
	"github.com/taskhive/taskhive/pkg/store"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file, using existing environment", "error", err)
	}

	cfg := config.LoadCore()
	ctx := context.Background()

	slog.Info("Starting TaskHive core server", "http_port", cfg.HTTPPort)

	// Database + migrations
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
	slog.Info("Connected to PostgreSQL database")

	// Stores and domain services
	taskStore := store.NewTaskStore(dbClient.DB())
	tagStore := store.NewTagStore(dbClient.DB())
	reminderStore := store.NewReminderStore(dbClient.DB())
	conversationStore := store.NewConversationStore(dbClient.DB())

	sidecar := dapr.NewClient(cfg.Sidecar.BaseURL)
	publisher := events.NewPublisher(sidecar)

	taskService := services.NewTaskService(taskStore, tagStore, publisher)
	tagService := services.NewTagService(tagStore, taskStore)
	conversationService := services.NewConversationService(conversationStore)
	reminderEngine := reminder.NewEngine(reminderStore, taskStore, sidecar, publisher)
	slog.Info("Services initialized")

	// Chat dispatcher: Gemini client + agent loop + tool-server dialer
	llmClient, err := llm.NewClient(ctx)
	if err != nil {
		slog.Error("Failed to initialize LLM client", "error", err)
		os.Exit(1)
	}
	runner := agent.NewRunner(llmClient)

	mcpDialer := &mcp.Dialer{ServerURL: cfg.MCPServerURL}
	dialer := services.ToolDialerFunc(func(ctx context.Context, userID string) (agent.ToolExecutor, error) {
		return mcpDialer.Dial(ctx, userID)
	})
	chatService := services.NewChatService(conversationStore, runner, dialer)
	slog.Info("Chat dispatcher initialized", "mcp_server_url", cfg.MCPServerURL)

	verifier := auth.NewVerifier(auth.NewJWKSCache(cfg.JWKSURL, cfg.JWKSTTL))

	httpServer := api.NewServer(verifier, chatService, taskService, tagService, conversationService, reminderEngine)
	httpServer.SetDBClient(dbClient)
	httpServer.SetSidecar(sidecar)

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.HTTPPort
		slog.Info("HTTP server listening", "addr", addr)
		if err := httpServer.Start(addr); err != nil && err != http.ErrServerClosed {
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
