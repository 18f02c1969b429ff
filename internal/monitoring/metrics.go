// Package monitoring - metrics.go provides simple counters.
//
// DESIGN: Lightweight in-memory counters for operational metrics:
//   - requests/successes: total and successful request counts
//   - completions/streams: chat completions routed, of which streamed
//   - researches:          successful deep-research calls
//   - quota_rejections:    research calls rejected at the quota gate
//
// For production, export these to Prometheus or similar.
package monitoring

import (
	"fmt"
	"sync/atomic"
	"time"
)

// MetricsCollector collects operational metrics.
type MetricsCollector struct {
	startedAt time.Time

	requests  atomic.Int64
	successes atomic.Int64

	completions  atomic.Int64
	streams      atomic.Int64
	promptTokens atomic.Int64

	researches      atomic.Int64
	quotaRejections atomic.Int64
}

// NewMetricsCollector creates a new metrics collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{startedAt: time.Now()}
}

// RecordRequest records a request outcome.
func (mc *MetricsCollector) RecordRequest(success bool) {
	mc.requests.Add(1)
	if success {
		mc.successes.Add(1)
	}
}

// RecordCompletion records a chat completion routed upstream.
func (mc *MetricsCollector) RecordCompletion(streamed bool, promptTokens int) {
	mc.completions.Add(1)
	if streamed {
		mc.streams.Add(1)
	}
	mc.promptTokens.Add(int64(promptTokens))
}

// RecordResearch records a successful deep-research call.
func (mc *MetricsCollector) RecordResearch() { mc.researches.Add(1) }

// RecordQuotaRejection records a research call rejected at the quota gate.
func (mc *MetricsCollector) RecordQuotaRejection() { mc.quotaRejections.Add(1) }

// StartedAt returns when the metrics collector was created.
func (mc *MetricsCollector) StartedAt() time.Time { return mc.startedAt }

// FullStats returns all metrics in a structured format for the /stats endpoint.
func (mc *MetricsCollector) FullStats() StatsResponse {
	uptime := time.Since(mc.startedAt)
	requests := mc.requests.Load()
	successes := mc.successes.Load()

	return StatsResponse{
		Uptime:        formatDuration(uptime),
		UptimeSeconds: int64(uptime.Seconds()),
		StartedAt:     mc.startedAt.Format(time.RFC3339),
		Requests: RequestStats{
			Total:      requests,
			Successful: successes,
			Failed:     requests - successes,
		},
		Completions: CompletionStats{
			Total:        mc.completions.Load(),
			Streamed:     mc.streams.Load(),
			PromptTokens: mc.promptTokens.Load(),
		},
		Research: ResearchStats{
			Completed:       mc.researches.Load(),
			QuotaRejections: mc.quotaRejections.Load(),
		},
	}
}

// StatsResponse is the structured response for the /stats endpoint.
type StatsResponse struct {
	Uptime        string          `json:"uptime"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	StartedAt     string          `json:"started_at"`
	Requests      RequestStats    `json:"requests"`
	Completions   CompletionStats `json:"completions"`
	Research      ResearchStats   `json:"research"`
}

// RequestStats holds request count metrics.
type RequestStats struct {
	Total      int64 `json:"total"`
	Successful int64 `json:"successful"`
	Failed     int64 `json:"failed"`
}

// CompletionStats holds chat completion metrics.
type CompletionStats struct {
	Total        int64 `json:"total"`
	Streamed     int64 `json:"streamed"`
	PromptTokens int64 `json:"prompt_tokens"`
}

// ResearchStats holds deep-research metrics.
type ResearchStats struct {
	Completed       int64 `json:"completed"`
	QuotaRejections int64 `json:"quota_rejections"`
}

// formatDuration formats a duration as a human-readable string.
func formatDuration(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}
