// Package config assembles per-binary configuration from environment
// variables. Each binary loads its own struct; `.env` files are read by
// main via godotenv before these loaders run.
package config

import (
	"os"
	"time"
)

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if raw := os.Getenv(key); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			return d
		}
	}
	return defaultVal
}

// Sidecar locates the Dapr sidecar on loopback. Shared by every binary
// that publishes, schedules jobs, or invokes services.
type Sidecar struct {
	BaseURL string
}

// LoadSidecar reads DAPR_HTTP_PORT (default 3500).
func LoadSidecar() Sidecar {
	return Sidecar{
		BaseURL: "http://localhost:" + getEnvOrDefault("DAPR_HTTP_PORT", "3500"),
	}
}

// Core configures the main API server. Database settings load separately
// via database.LoadConfigFromEnv; Gemini settings are read by the LLM
// client itself.
type Core struct {
	HTTPPort     string
	JWKSURL      string
	JWKSTTL      time.Duration
	MCPServerURL string
	Sidecar      Sidecar
}

// LoadCore reads the core server environment.
func LoadCore() Core {
	return Core{
		HTTPPort:     getEnvOrDefault("HTTP_PORT", "8000"),
		JWKSURL:      os.Getenv("JWKS_URL"),
		JWKSTTL:      getEnvDuration("JWKS_CACHE_TTL", 5*time.Minute),
		MCPServerURL: getEnvOrDefault("MCP_SERVER_URL", "http://localhost:8001/mcp"),
		Sidecar:      LoadSidecar(),
	}
}

// ToolServer configures the standalone MCP tool server.
type ToolServer struct {
	HTTPPort string
}

// LoadToolServer reads the tool server environment.
func LoadToolServer() ToolServer {
	return ToolServer{
		HTTPPort: getEnvOrDefault("HTTP_PORT", "8001"),
	}
}

// Consumer configures an event-consumer binary: where it listens for
// sidecar deliveries and, for the recurring materializer, which Dapr app
// receives the next-occurrence create calls.
type Consumer struct {
	HTTPPort     string
	BackendAppID string
	Sidecar      Sidecar
}

// LoadConsumer reads a consumer binary's environment. defaultPort keeps
// the per-service conventions apart when several consumers share a pod
// spec template.
func LoadConsumer(defaultPort string) Consumer {
	return Consumer{
		HTTPPort:     getEnvOrDefault("HTTP_PORT", defaultPort),
		BackendAppID: getEnvOrDefault("BACKEND_APP_ID", "taskhive"),
		Sidecar:      LoadSidecar(),
	}
}

// WebSocket configures the broadcaster binary.
type WebSocket struct {
	HTTPPort          string
	JWKSURL           string
	JWKSTTL           time.Duration
	WriteTimeout      time.Duration
	HeartbeatInterval time.Duration
}

// LoadWebSocket reads the websocket service environment.
func LoadWebSocket() WebSocket {
	return WebSocket{
		HTTPPort:          getEnvOrDefault("HTTP_PORT", "8005"),
		JWKSURL:           os.Getenv("JWKS_URL"),
		JWKSTTL:           getEnvDuration("JWKS_CACHE_TTL", 5*time.Minute),
		WriteTimeout:      getEnvDuration("WS_WRITE_TIMEOUT", 5*time.Second),
		HeartbeatInterval: getEnvDuration("WS_HEARTBEAT_INTERVAL", 30*time.Second),
	}
}
