package http

import (
	"time"

	"github.com/seoscope/keywordrun/internal/cache"
	"github.com/seoscope/keywordrun/internal/persistence"
	"github.com/seoscope/keywordrun/internal/source"
)

// ErrorResponse is the one error shape the API speaks. Code is the
// stable machine-readable identifier; no stack traces cross the
// boundary.
type ErrorResponse struct {
	Error     string    `json:"error"`
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// OptimizeResponse reports the outcome of one tuning cycle.
type OptimizeResponse struct {
	Status     string  `json:"status"`
	Delta      float64 `json:"delta"`
	Confidence float64 `json:"confidence"`
	TracingID  string  `json:"tracing_id"`
}

// FeedbackRequest is user-reported performance of a decided keyword.
type FeedbackRequest struct {
	TracingID string `json:"tracing_id" validate:"required"`
	Keyword   string `json:"keyword" validate:"max=200"`
	Rating    int    `json:"rating" validate:"required,gte=1,lte=5"`
	Converted bool   `json:"converted"`
	Comment   string `json:"comment" validate:"max=500"`
}

// FeedbackAck confirms a journaled feedback record.
type FeedbackAck struct {
	Status    string    `json:"status"`
	TracingID string    `json:"tracing_id"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthResponse is the component status map served by /health.
type HealthResponse struct {
	Status     string                     `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Uptime     string                     `json:"uptime"`
	Version    string                     `json:"version"`
	System     SystemInfo                 `json:"system"`
	Components map[string]ComponentHealth `json:"components"`
	Sources    []source.GuardStatus       `json:"sources,omitempty"`
	QueueDepth int                        `json:"queue_depth"`
}

// ComponentHealth is one component's slice of the health map.
type ComponentHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// SystemInfo carries process-level runtime figures.
type SystemInfo struct {
	GoVersion     string `json:"go_version"`
	NumGoroutines int    `json:"num_goroutines"`
	MemAlloc      uint64 `json:"mem_alloc_bytes"`
	MemSys        uint64 `json:"mem_sys_bytes"`
	NumGC         uint32 `json:"num_gc"`
}

// DashboardResponse aggregates process counters and, when a store is
// configured, the decision counts inside the requested window.
type DashboardResponse struct {
	GeneratedAt   time.Time      `json:"generated_at"`
	WindowMinutes int            `json:"window_minutes"`
	Pipeline      Snapshot       `json:"pipeline"`
	Cache         *cache.Stats   `json:"cache,omitempty"`
	Outcomes      *OutcomeWindow `json:"outcomes,omitempty"`
}

// OutcomeWindow is the persisted-decision view of a dashboard window.
type OutcomeWindow struct {
	From     time.Time        `json:"from"`
	To       time.Time        `json:"to"`
	Total    int64            `json:"total"`
	ByStatus map[string]int64 `json:"by_status"`
}

// AuditReport is the read-only decision audit over a trailing window.
type AuditReport struct {
	GeneratedAt time.Time                    `json:"generated_at"`
	WindowHours int                          `json:"window_hours"`
	From        time.Time                    `json:"from"`
	To          time.Time                    `json:"to"`
	Total       int64                        `json:"total"`
	ByStatus    map[string]int64             `json:"by_status"`
	Recent      []persistence.KeywordOutcome `json:"recent"`
}
