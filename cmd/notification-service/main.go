// Notification service: consumes reminder-events and republishes due
// reminders as task-updates for the WebSocket broadcaster.
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
	"github.com/taskhive/taskhive/pkg/dapr"
	"github.com/taskhive/taskhive/pkg/events"
	"github.com/taskhive/taskhive/pkg/version"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file, using existing environment", "error", err)
	}

	cfg := config.LoadConsumer("8003")
	ctx := context.Background()

	slog.Info("Starting notification service", "http_port", cfg.HTTPPort)

	sidecar := dapr.NewClient(cfg.Sidecar.BaseURL)
	publisher := events.NewPublisher(sidecar)
	notifier := consumers.NewNotifier(publisher)

	e := echo.New()
	e.GET("/dapr/subscribe", events.SubscribeHandler(notifier.Subscriptions()))
	e.POST("/events/"+events.TopicReminderEvents, notifier.Handle)
	e.GET("/health", func(c *echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "healthy",
			"service": version.AppName + "-notifications",
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
		slog.Info("Notification service listening", "addr", httpServer.Addr)
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
