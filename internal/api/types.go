package api

import (
	"encoding/json"
	"time"
)

// CallRequest is the JSON body for POST /v1/call/{plugin}/{method} and
// POST /v1/queue/{plugin}/{method}.
type CallRequest struct {
	Params json.RawMessage `json:"params,omitempty"`
}

// CallResponse is returned by the synchronous call endpoint.
type CallResponse struct {
	ExchangeID string         `json:"exchange_id,omitempty"`
	Status     string         `json:"status"`
	Result     map[string]any `json:"result,omitempty"`
	Message    string         `json:"message,omitempty"`
	ExitCode   int            `json:"exit_code"`
	DurationMs int64          `json:"duration_ms"`
}

// QueuedResponse is returned when a call is accepted for async execution.
type QueuedResponse struct {
	CallID string `json:"call_id"`
	Status string `json:"status"`
	Plugin string `json:"plugin"`
	Method string `json:"method"`
}

// CallStatusResponse is returned by GET /v1/queue/{callID}.
type CallStatusResponse struct {
	CallID      string          `json:"call_id"`
	Plugin      string          `json:"plugin"`
	Method      string          `json:"method"`
	Status      string          `json:"status"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       *string         `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// PluginSummary is one row in GET /v1/plugins.
type PluginSummary struct {
	Name        string   `json:"name"`
	Version     string   `json:"version,omitempty"`
	Description string   `json:"description,omitempty"`
	Methods     []string `json:"methods"`
	Enabled     bool     `json:"enabled"`
}

// PluginListResponse is returned by GET /v1/plugins.
type PluginListResponse struct {
	Plugins []PluginSummary `json:"plugins"`
}

// PluginDetailResponse is returned by GET /v1/plugins/{plugin}.
type PluginDetailResponse struct {
	Name        string   `json:"name"`
	Version     string   `json:"version,omitempty"`
	Description string   `json:"description,omitempty"`
	Path        string   `json:"path"`
	Entrypoint  string   `json:"entrypoint"`
	Methods     []string `json:"methods"`
	Env         []string `json:"env,omitempty"`
	Timeout     string   `json:"timeout"`
	Enabled     bool     `json:"enabled"`
}

// ExchangeData is one journal entry in GET /v1/history.
type ExchangeData struct {
	ID         string    `json:"id"`
	Plugin     string    `json:"plugin"`
	Method     string    `json:"method"`
	Status     string    `json:"status"`
	ExitCode   int       `json:"exit_code"`
	DurationMs int64     `json:"duration_ms"`
	Message    string    `json:"message,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// HistoryResponse is returned by GET /v1/history.
type HistoryResponse struct {
	Exchanges []ExchangeData `json:"exchanges"`
}

// ErrorResponse is returned on errors.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	QueueDepth    int    `json:"queue_depth"`
	PluginsLoaded int    `json:"plugins_loaded"`
}
