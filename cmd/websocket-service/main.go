// WebSocket service: fans task-updates out to every connection the
// owning user holds.
package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	echo "github.com/labstack/echo/v5"

	"github.com/taskhive/taskhive/pkg/auth"
	"github.com/taskhive/taskhive/pkg/config"
	"github.com/taskhive/taskhive/pkg/events"
	"github.com/taskhive/taskhive/pkg/version"
	"github.com/taskhive/taskhive/pkg/ws"
)

// updatesHandler turns delivered task-updates into broadcasts. Broadcast
// never fails the delivery: a user with no open sockets is a no-op.
func updatesHandler(manager *ws.Manager) echo.HandlerFunc {
	return func(c *echo.Context) error {
		body, err := io.ReadAll(c.Request().Body)
		if err != nil {
			return events.AckRetry(c)
		}

		var event events.TaskUpdateEvent
		if err := events.Decode(body, &event); err != nil {
			slog.Warn("Dropping malformed task update", "error", err)
			return events.AckDrop(c)
		}
		if event.UserID == "" {
			slog.Warn("Dropping task update without user id",
				"correlation_id", event.CorrelationID)
			return events.AckDrop(c)
		}

		manager.Broadcast(event)
		return events.AckSuccess(c)
	}
}

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file, using existing environment", "error", err)
	}

	cfg := config.LoadWebSocket()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	slog.Info("Starting WebSocket service", "http_port", cfg.HTTPPort)

	manager := ws.NewManager(cfg.WriteTimeout, cfg.HeartbeatInterval)
	go manager.RunHeartbeat(ctx)

	verifier := auth.NewVerifier(auth.NewJWKSCache(cfg.JWKSURL, cfg.JWKSTTL))

	subscriptions := []events.Subscription{events.NewSubscription(events.TopicTaskUpdates)}

	e := echo.New()
	e.GET("/ws/:user_id", ws.Handler(manager, verifier))
	e.GET("/dapr/subscribe", events.SubscribeHandler(subscriptions))
	e.POST("/events/"+events.TopicTaskUpdates, updatesHandler(manager))
	e.GET("/health", func(c *echo.Context) error {
		return c.JSON(http.StatusOK, map[string]any{
			"status":      "healthy",
			"service":     version.AppName + "-websocket",
			"version":     version.GitCommit,
			"connections": manager.ActiveConnections(),
		})
	})

	httpServer := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           e,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("WebSocket service listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("Shutdown signal received")
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// Close the sockets before the listener so clients see a going-away
	// frame instead of a dropped TCP connection.
	manager.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}
	slog.Info("Shutdown complete")
}
