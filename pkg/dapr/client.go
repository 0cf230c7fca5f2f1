// Package dapr is a thin HTTP client for the local Dapr sidecar: pub/sub
// publishing, the alpha Jobs API, service invocation, and health checks.
// The sidecar is treated as opaque: durability and redelivery are its
// responsibility, so no in-process retries happen here.
package dapr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Sidecar timeout budgets.
const (
	healthTimeout  = 2 * time.Second
	publishTimeout = 10 * time.Second
	jobsTimeout    = 10 * time.Second
	invokeTimeout  = 30 * time.Second
)

// jobTTL bounds how long an undelivered job survives past its due time.
const jobTTL = "1h"

// Client talks to the Dapr sidecar over loopback HTTP.
// Safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a sidecar client. baseURL defaults to the standard
// sidecar address when empty.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:3500"
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{},
	}
}

// Healthz checks sidecar liveness.
func (c *Client) Healthz(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1.0/healthz", nil)
	if err != nil {
		return fmt.Errorf("failed to build healthz request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("sidecar health check failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("sidecar unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// Publish sends a payload to a pub/sub topic. Single try, short timeout;
// the broker owns durability once the sidecar accepts the publish.
func (c *Client) Publish(ctx context.Context, pubsubName, topic string, payload any) error {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	url := fmt.Sprintf("%s/v1.0/publish/%s/%s", c.baseURL, pubsubName, topic)
	if err := c.post(ctx, url, payload); err != nil {
		return fmt.Errorf("publish to %s failed: %w", topic, err)
	}
	return nil
}

// ScheduleJob registers a one-shot job with the sidecar Jobs API.
// The job fires once at dueTime and is dropped after the TTL if undeliverable.
func (c *Client) ScheduleJob(ctx context.Context, name string, dueTime time.Time, data any) error {
	ctx, cancel := context.WithTimeout(ctx, jobsTimeout)
	defer cancel()

	body := map[string]any{
		"data":    data,
		"dueTime": dueTime.UTC().Format(time.RFC3339),
		"repeats": 0,
		"ttl":     jobTTL,
	}
	url := fmt.Sprintf("%s/v1.0-alpha1/jobs/%s", c.baseURL, name)
	if err := c.post(ctx, url, body); err != nil {
		return fmt.Errorf("schedule job %q failed: %w", name, err)
	}
	return nil
}

// DeleteJob cancels a scheduled job. A 404 is not an error: the job may
// have already fired or been dropped.
func (c *Client) DeleteJob(ctx context.Context, name string) error {
	ctx, cancel := context.WithTimeout(ctx, jobsTimeout)
	defer cancel()

	url := fmt.Sprintf("%s/v1.0-alpha1/jobs/%s", c.baseURL, name)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build delete request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("delete job %q failed: %w", name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("delete job %q: status %d", name, resp.StatusCode)
	}
	return nil
}

// InvokeMethod calls another app through sidecar service invocation.
// headers are forwarded verbatim (e.g. X-User-ID for identity propagation).
func (c *Client) InvokeMethod(ctx context.Context, appID, method string, payload any, headers map[string]string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, invokeTimeout)
	defer cancel()

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal invoke payload: %w", err)
	}

	url := fmt.Sprintf("%s/v1.0/invoke/%s/method/%s", c.baseURL, appID, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to build invoke request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("invoke %s/%s failed: %w", appID, method, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read invoke response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("invoke %s/%s: status %d: %s", appID, method, resp.StatusCode, respBody)
	}
	return respBody, nil
}

// post sends a JSON POST and checks for a 2xx response.
func (c *Client) post(ctx context.Context, url string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, body)
	}
	return nil
}
