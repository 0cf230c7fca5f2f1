// Package ws implements the WebSocket broadcaster: a connection manager
// keyed by authenticated user, fan-out of task-update events, and a
// heartbeat that garbage-collects dead sockets.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/taskhive/taskhive/pkg/events"
)

// Manager tracks live WebSocket connections per user. It is the only
// process-global mutable state in the broadcaster; all map access happens
// under mu. One Manager exists per process, created at startup and torn
// down via Shutdown.
type Manager struct {
	mu sync.RWMutex
	// userID → connection ID → connection
	users map[string]map[string]*Connection

	writeTimeout      time.Duration
	heartbeatInterval time.Duration
	logger            *slog.Logger
}

// Connection is one live client socket. The authenticated user id is bound
// at registration and never changes; broadcasts key purely on it.
type Connection struct {
	ID     string
	UserID string
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
}

// NewManager creates a Manager.
func NewManager(writeTimeout, heartbeatInterval time.Duration) *Manager {
	return &Manager{
		users:             make(map[string]map[string]*Connection),
		writeTimeout:      writeTimeout,
		heartbeatInterval: heartbeatInterval,
		logger:            slog.Default(),
	}
}

// HandleConnection runs the lifecycle of one accepted socket: register,
// greet, then serve the read loop until the client goes away. Blocks until
// the connection closes.
func (m *Manager) HandleConnection(parentCtx context.Context, userID string, conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(parentCtx)
	c := &Connection{
		ID:     uuid.New().String(),
		UserID: userID,
		conn:   conn,
		ctx:    ctx,
		cancel: cancel,
	}

	m.register(c)
	defer m.unregister(c)

	m.sendJSON(c, map[string]string{
		"type":          "connection.established",
		"connection_id": c.ID,
	})

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}

		var msg struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			m.logger.Warn("Invalid WebSocket message",
				"connection_id", c.ID, "error", err)
			continue
		}
		if msg.Type == "ping" {
			m.sendJSON(c, map[string]string{"type": "pong"})
		}
	}
}

// Broadcast fans one task-update event out to every connection of its
// target user. Connections in a non-connected state are evicted. No other
// user's sockets are ever touched: the lookup keys on the authenticated
// user id bound at registration, not on anything in the event.
func (m *Manager) Broadcast(event events.TaskUpdateEvent) {
	conns := m.connectionsFor(event.UserID)
	if len(conns) == 0 {
		return
	}

	payload, err := json.Marshal(map[string]any{
		"type":  "task_update",
		"event": event,
		"task": map[string]any{
			"id":      event.TaskID,
			"changes": event.Changes,
		},
		"timestamp": event.Timestamp,
	})
	if err != nil {
		m.logger.Error("Failed to encode task update", "error", err)
		return
	}

	for _, c := range conns {
		// source_client is carried but not used for echo suppression;
		// clients filter their own echoes.
		if err := m.sendRaw(c, payload); err != nil {
			m.logger.Warn("Evicting WebSocket client after failed send",
				"connection_id", c.ID, "user_id", c.UserID, "error", err)
			m.evict(c)
		}
	}
}

// RunHeartbeat pings every live socket each interval until ctx is done.
// Sockets that fail the ping are evicted. Run as a background goroutine.
func (m *Manager) RunHeartbeat(ctx context.Context) {
	ticker := time.NewTicker(m.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.pingAll(ctx)
		}
	}
}

// Shutdown closes every connection. Called once at process teardown.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	conns := make([]*Connection, 0)
	for _, userConns := range m.users {
		for _, c := range userConns {
			conns = append(conns, c)
		}
	}
	m.users = make(map[string]map[string]*Connection)
	m.mu.Unlock()

	for _, c := range conns {
		c.cancel()
		_ = c.conn.Close(websocket.StatusGoingAway, "server shutting down")
	}
}

// ActiveConnections returns the total number of live connections.
func (m *Manager) ActiveConnections() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := 0
	for _, userConns := range m.users {
		total += len(userConns)
	}
	return total
}

// connectionsFor snapshots a user's connections so sends happen without
// holding the lock; a slow client write must not stall register/unregister.
func (m *Manager) connectionsFor(userID string) []*Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	userConns := m.users[userID]
	if len(userConns) == 0 {
		return nil
	}
	conns := make([]*Connection, 0, len(userConns))
	for _, c := range userConns {
		conns = append(conns, c)
	}
	return conns
}

func (m *Manager) pingAll(ctx context.Context) {
	m.mu.RLock()
	conns := make([]*Connection, 0)
	for _, userConns := range m.users {
		for _, c := range userConns {
			conns = append(conns, c)
		}
	}
	m.mu.RUnlock()

	for _, c := range conns {
		pingCtx, cancel := context.WithTimeout(ctx, m.writeTimeout)
		err := c.conn.Ping(pingCtx)
		cancel()
		if err != nil {
			m.logger.Info("Evicting stale WebSocket client",
				"connection_id", c.ID, "user_id", c.UserID, "error", err)
			m.evict(c)
		}
	}
}

func (m *Manager) register(c *Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.users[c.UserID] == nil {
		m.users[c.UserID] = make(map[string]*Connection)
	}
	m.users[c.UserID][c.ID] = c
}

func (m *Manager) unregister(c *Connection) {
	m.mu.Lock()
	if userConns, ok := m.users[c.UserID]; ok {
		delete(userConns, c.ID)
		if len(userConns) == 0 {
			delete(m.users, c.UserID)
		}
	}
	m.mu.Unlock()

	c.cancel()
	_ = c.conn.Close(websocket.StatusNormalClosure, "")
}

func (m *Manager) evict(c *Connection) {
	m.unregister(c)
}

func (m *Manager) sendJSON(c *Connection, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		m.logger.Warn("Failed to marshal WebSocket message",
			"connection_id", c.ID, "error", err)
		return
	}
	if err := m.sendRaw(c, data); err != nil {
		m.logger.Warn("Failed to send WebSocket message",
			"connection_id", c.ID, "error", err)
	}
}

func (m *Manager) sendRaw(c *Connection, data []byte) error {
	writeCtx, cancel := context.WithTimeout(c.ctx, m.writeTimeout)
	defer cancel()
	return c.conn.Write(writeCtx, websocket.MessageText, data)
}
