// Package api exposes the HTTP surface: REST task management, the chat
// dispatcher endpoints, reminder scheduling, and the Dapr job callback.
package api

import (
	"context"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/taskhive/taskhive/pkg/database"
)

// Server wires the domain services behind an echo router.
type Server struct {
	echo       *echo.Echo
	httpServer *http.Server

	verifier      SubjectVerifier
	chat          ChatAPI
	tasks         TaskAPI
	tags          TagAPI
	conversations ConversationAPI
	reminders     ReminderAPI

	db      *database.Client
	sidecar SidecarHealth
}

// NewServer creates the API server and registers all routes.
func NewServer(
	verifier SubjectVerifier,
	chat ChatAPI,
	tasks TaskAPI,
	tags TagAPI,
	conversations ConversationAPI,
	reminders ReminderAPI,
) *Server {
	s := &Server{
		verifier:      verifier,
		chat:          chat,
		tasks:         tasks,
		tags:          tags,
		conversations: conversations,
		reminders:     reminders,
	}
	s.echo = s.buildRouter()
	return s
}

// SetDBClient provides the database handle used by the health endpoint.
func (s *Server) SetDBClient(db *database.Client) {
	s.db = db
}

// SetSidecar provides the Dapr sidecar probe used by the health endpoint.
func (s *Server) SetSidecar(sidecar SidecarHealth) {
	s.sidecar = sidecar
}

func (s *Server) buildRouter() *echo.Echo {
	e := echo.New()
	e.Use(requestLogger())
	e.Use(securityHeaders())

	// Unauthenticated surface: orchestrator probes and the sidecar's job
	// callback. The callback carries no user identity of its own; the
	// scheduled payload names the owning user.
	e.GET("/health", s.healthHandler)
	e.POST("/api/dapr/jobs/trigger", s.jobTriggerHandler)

	api := e.Group("/api")
	api.Use(requireUser(s.verifier))

	api.POST("/chat", s.chatHandler)
	api.POST("/chat/stream", s.chatStreamHandler)

	api.POST("/tasks", s.createTaskHandler)
	api.GET("/tasks", s.listTasksHandler)
	api.GET("/tasks/:id", s.getTaskHandler)
	api.PATCH("/tasks/:id", s.updateTaskHandler)
	api.PATCH("/tasks/:id/complete", s.completeTaskHandler)
	api.DELETE("/tasks/:id", s.deleteTaskHandler)

	api.POST("/tags", s.createTagHandler)
	api.GET("/tags", s.listTagsHandler)
	api.DELETE("/tags/:id", s.deleteTagHandler)

	api.GET("/conversations", s.listConversationsHandler)
	api.GET("/conversations/:id", s.getConversationHandler)
	api.DELETE("/conversations/:id", s.deleteConversationHandler)

	api.POST("/reminders", s.createReminderHandler)
	api.GET("/reminders", s.listRemindersHandler)
	api.GET("/reminders/upcoming", s.upcomingRemindersHandler)
	api.GET("/reminders/:id", s.getReminderHandler)
	api.PATCH("/reminders/:id", s.updateReminderHandler)
	api.DELETE("/reminders/:id", s.deleteReminderHandler)

	return e
}

// Echo exposes the router, mainly for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Start runs the HTTP server. Blocks until Shutdown or a listen error;
// returns http.ErrServerClosed after a clean shutdown.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.echo,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests up to the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
