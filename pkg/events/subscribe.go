package events

import (
	"encoding/json"
	"fmt"
	"net/http"

	echo "github.com/labstack/echo/v5"
)

// Subscription describes one programmatic Dapr subscription: the sidecar
// calls GET /dapr/subscribe at startup and then POSTs events to Route.
type Subscription struct {
	PubSubName string `json:"pubsubname"`
	Topic      string `json:"topic"`
	Route      string `json:"route"`
}

// NewSubscription builds a subscription for a topic on the default pub/sub
// component, routed to /events/<topic>.
func NewSubscription(topic string) Subscription {
	return Subscription{
		PubSubName: PubSubName,
		Topic:      topic,
		Route:      "/events/" + topic,
	}
}

// SubscribeHandler serves the programmatic subscription list to the sidecar.
func SubscribeHandler(subs []Subscription) echo.HandlerFunc {
	return func(c *echo.Context) error {
		return c.JSON(http.StatusOK, subs)
	}
}

// Decode unwraps a delivered event into v. The sidecar wraps payloads in a
// CloudEvents envelope with the original JSON under "data"; raw payloads
// (tests, direct POSTs) are accepted too.
func Decode(body []byte, v any) error {
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Data) > 0 {
		body = envelope.Data
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("failed to decode event payload: %w", err)
	}
	return nil
}

// Ack responses for the sidecar. RETRY is paired with a 500 so the broker
// redelivers per its policy; consumers stay idempotent on redelivery.

// AckSuccess acknowledges an event as processed.
func AckSuccess(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "SUCCESS"})
}

// AckRetry asks the sidecar to redeliver the event.
func AckRetry(c *echo.Context) error {
	return c.JSON(http.StatusInternalServerError, map[string]string{"status": "RETRY"})
}

// AckDrop acknowledges an event without processing (malformed payloads).
func AckDrop(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "DROP"})
}
