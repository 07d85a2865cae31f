// Package provider is the boundary to the third-party generation services a
// paid action pays for. The concrete wire protocols live with each
// integration; this core only needs "submit a job, get a task id or an
// error".
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/dua-platform/credits-backend/internal/apperr"
)

type Result struct {
	TaskID string         `json:"task_id"`
	Raw    map[string]any `json:"raw,omitempty"`
}

type Provider interface {
	Submit(ctx context.Context, operation string, payload map[string]any) (Result, error)
}

// HTTPProvider posts jobs as JSON to a single endpoint. Retry/backoff policy
// belongs to the integration behind that endpoint, not here.
type HTTPProvider struct {
	baseURL string
	client  *http.Client
}

func NewHTTP(baseURL string, client *http.Client) *HTTPProvider {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPProvider{baseURL: baseURL, client: client}
}

func (p *HTTPProvider) Submit(ctx context.Context, operation string, payload map[string]any) (Result, error) {
	body, err := json.Marshal(map[string]any{
		"operation": operation,
		"payload":   payload,
	})
	if err != nil {
		return Result{}, fmt.Errorf("encode job: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/jobs", bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build job request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return Result{}, &apperr.UpstreamError{Status: http.StatusBadGateway, Message: "provider unreachable", Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Result{}, &apperr.UpstreamError{Status: resp.StatusCode, Message: string(msg)}
	}

	var res Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return Result{}, &apperr.UpstreamError{Status: resp.StatusCode, Message: "undecodable provider response", Cause: err}
	}
	return res, nil
}
