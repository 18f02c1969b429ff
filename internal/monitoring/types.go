// Package monitoring records gateway telemetry.
package monitoring

import "time"

// TelemetryConfig controls event recording.
type TelemetryConfig struct {
	Enabled     bool
	LogPath     string
	LogToStdout bool
}

// RequestEvent is recorded for every request through the gateway.
type RequestEvent struct {
	RequestID    string    `json:"request_id"`
	Timestamp    time.Time `json:"timestamp"`
	Method       string    `json:"method"`
	Path         string    `json:"path"`
	ClientIP     string    `json:"client_ip"`
	Provider     string    `json:"provider,omitempty"`
	Model        string    `json:"model,omitempty"`
	UserID       string    `json:"user_id,omitempty"`
	StatusCode   int       `json:"status_code"`
	Streamed     bool      `json:"streamed"`
	PromptTokens int       `json:"prompt_tokens,omitempty"`
	Success      bool      `json:"success"`
	ErrorKind    string    `json:"error_kind,omitempty"`
	Error        string    `json:"error,omitempty"`
	LatencyMs    int64     `json:"latency_ms"`
}

// InitEvent is recorded once at startup with the effective configuration.
type InitEvent struct {
	Timestamp            time.Time      `json:"timestamp"`
	Event                string         `json:"event"`
	ServerPort           int            `json:"server_port"`
	ServerReadTimeoutMs  int64          `json:"server_read_timeout_ms"`
	ServerWriteTimeoutMs int64          `json:"server_write_timeout_ms"`
	ResearchLimit        int            `json:"research_limit"`
	RateLimitEnabled     bool           `json:"rate_limit_enabled"`
	TelemetryPath        string         `json:"telemetry_path,omitempty"`
	Providers            []InitProvider `json:"providers"`
}

// InitProvider describes one configured provider in the init event.
// Credentials are masked before logging.
type InitProvider struct {
	Name      string   `json:"name"`
	Endpoint  string   `json:"endpoint"`
	Models    []string `json:"models"`
	HasAPIKey bool     `json:"has_api_key"`
	MaskedKey string   `json:"masked_key,omitempty"`
}
