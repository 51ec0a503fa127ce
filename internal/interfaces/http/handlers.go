// Package http is the service shell around the scoring core: a
// gorilla/mux server exposing health, optimizer, experiment, feedback
// and audit surfaces, a Prometheus registry, and a WebSocket progress
// stream. The batch API itself stays in-process; nothing here can
// mutate a run.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/seoscope/keywordrun/internal/cache"
	"github.com/seoscope/keywordrun/internal/domain"
	"github.com/seoscope/keywordrun/internal/experiments"
	"github.com/seoscope/keywordrun/internal/ledger"
	"github.com/seoscope/keywordrun/internal/optimize"
	"github.com/seoscope/keywordrun/internal/persistence"
	"github.com/seoscope/keywordrun/internal/source"
)

// CycleRunner triggers one optimizer tuning cycle.
type CycleRunner interface {
	RunCycle(ctx context.Context) (*optimize.CycleResult, error)
}

// ExperimentStore is the slice of the experiment ledger the API needs.
type ExperimentStore interface {
	Create(def experiments.Definition) (*experiments.Experiment, error)
	List() ([]experiments.Experiment, error)
}

// QueueProbe exposes the worker pool backlog for throttling callers.
type QueueProbe interface {
	Depth() int
}

// Deps are the collaborators behind the endpoints. Every one of them is
// optional; an absent collaborator turns its surface into a 503 (or an
// empty view) instead of breaking the rest of the API.
type Deps struct {
	Repository  persistence.RepositoryHealth
	Outcomes    persistence.OutcomeStore
	Cache       cache.Cache
	Guards      func() []source.GuardStatus
	Optimizer   CycleRunner
	Experiments ExperimentStore
	Journal     *ledger.Writer
	Queue       QueueProbe
	Metrics     *Metrics
	Hub         *ProgressHub
	Version     string
	Logger      zerolog.Logger
}

// Handlers carries the endpoint implementations and their shared
// helpers.
type Handlers struct {
	deps      Deps
	validate  *validator.Validate
	startTime time.Time
	now       func() time.Time
	log       zerolog.Logger
}

// NewHandlers wires the endpoint set. A nil Metrics or Hub is replaced
// with a fresh instance so the server always has both.
func NewHandlers(deps Deps) *Handlers {
	if deps.Metrics == nil {
		deps.Metrics = NewMetrics()
	}
	if deps.Hub == nil {
		deps.Hub = NewProgressHub(deps.Logger)
	}
	return &Handlers{
		deps:      deps,
		validate:  validator.New(),
		startTime: time.Now(),
		now:       func() time.Time { return time.Now().UTC() },
		log:       deps.Logger.With().Str("component", "http").Logger(),
	}
}

// Metrics returns the registry so the hosting process can feed batch
// and cycle observations into it.
func (h *Handlers) Metrics() *Metrics { return h.deps.Metrics }

// Hub returns the progress hub so the hosting process can publish
// pipeline progress into the WebSocket stream.
func (h *Handlers) Hub() *ProgressHub { return h.deps.Hub }

// Optimize runs one tuning cycle and reports its outcome.
func (h *Handlers) Optimize(w http.ResponseWriter, r *http.Request) {
	if h.deps.Optimizer == nil {
		h.writeError(w, r, http.StatusServiceUnavailable, "optimizer_disabled", "no optimizer is configured")
		return
	}

	res, err := h.deps.Optimizer.RunCycle(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.deps.Metrics.ObserveCycle(res)

	h.writeJSON(w, http.StatusOK, OptimizeResponse{
		Status:     string(res.Status),
		Delta:      res.Delta,
		Confidence: res.Confidence,
		TracingID:  res.TracingID,
	})
}

// CreateExperiment registers a new A/B experiment for the external
// runner.
func (h *Handlers) CreateExperiment(w http.ResponseWriter, r *http.Request) {
	if h.deps.Experiments == nil {
		h.writeError(w, r, http.StatusServiceUnavailable, "experiments_disabled", "no experiment store is configured")
		return
	}

	var def experiments.Definition
	if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "bad_json", "request body is not valid JSON: "+err.Error())
		return
	}
	if err := h.validate.Struct(def); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid_experiment", err.Error())
		return
	}

	exp, err := h.deps.Experiments.Create(def)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, exp)
}

// ListExperiments returns the experiment index.
func (h *Handlers) ListExperiments(w http.ResponseWriter, r *http.Request) {
	if h.deps.Experiments == nil {
		h.writeError(w, r, http.StatusServiceUnavailable, "experiments_disabled", "no experiment store is configured")
		return
	}

	list, err := h.deps.Experiments.List()
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"experiments": list})
}

// Dashboard aggregates process counters plus the persisted decision
// counts inside the requested window. Registry counters cover the
// process lifetime; only the outcome window honors window_minutes.
func (h *Handlers) Dashboard(w http.ResponseWriter, r *http.Request) {
	minutes, err := queryInt(r, "window_minutes", 60)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, "bad_window", err.Error())
		return
	}

	var cacheStats *cache.Stats
	if h.deps.Cache != nil {
		st := h.deps.Cache.Stats(r.Context())
		h.deps.Metrics.SetCacheStats(st)
		cacheStats = &st
	}
	if h.deps.Queue != nil {
		h.deps.Metrics.SetQueueDepth(h.deps.Queue.Depth())
	}

	resp := DashboardResponse{
		GeneratedAt:   h.now(),
		WindowMinutes: minutes,
		Pipeline:      h.deps.Metrics.Snapshot(),
		Cache:         cacheStats,
	}

	if h.deps.Outcomes != nil {
		to := h.now()
		tr := persistence.TimeRange{From: to.Add(-time.Duration(minutes) * time.Minute), To: to}
		byStatus, err := h.deps.Outcomes.CountByStatus(r.Context(), tr)
		if err != nil {
			h.log.Warn().Err(err).Msg("counting window outcomes for the dashboard")
		} else {
			window := &OutcomeWindow{From: tr.From, To: tr.To, ByStatus: byStatus}
			for _, n := range byStatus {
				window.Total += n
			}
			resp.Outcomes = window
		}
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// CacheStats reports the result cache counters.
func (h *Handlers) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.deps.Cache == nil {
		h.writeJSON(w, http.StatusOK, cache.Stats{Backend: "none"})
		return
	}
	st := h.deps.Cache.Stats(r.Context())
	h.deps.Metrics.SetCacheStats(st)
	h.writeJSON(w, http.StatusOK, st)
}

// Feedback journals user-reported keyword performance.
func (h *Handlers) Feedback(w http.ResponseWriter, r *http.Request) {
	if h.deps.Journal == nil {
		h.writeError(w, r, http.StatusServiceUnavailable, "journal_disabled", "no journal is configured")
		return
	}

	var req FeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "bad_json", "request body is not valid JSON: "+err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid_feedback", err.Error())
		return
	}

	rec := ledger.Record{
		At:        h.now(),
		TracingID: req.TracingID,
		Kind:      ledger.KindPerformance,
		Level:     ledger.LevelInfo,
		Keyword:   req.Keyword,
		Outcome:   "feedback",
		Payload: map[string]interface{}{
			"rating":    req.Rating,
			"converted": req.Converted,
			"comment":   req.Comment,
			"source":    "api",
		},
	}
	if err := h.deps.Journal.Append(rec); err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusAccepted, FeedbackAck{
		Status:    "recorded",
		TracingID: req.TracingID,
		Timestamp: h.now(),
	})
}

// AuditReport summarizes persisted decisions over a trailing window.
func (h *Handlers) AuditReport(w http.ResponseWriter, r *http.Request) {
	if h.deps.Outcomes == nil {
		h.writeError(w, r, http.StatusServiceUnavailable, "persistence_disabled", "no outcome store is configured")
		return
	}

	hours, err := queryInt(r, "hours", 24)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, "bad_window", err.Error())
		return
	}

	to := h.now()
	tr := persistence.TimeRange{From: to.Add(-time.Duration(hours) * time.Hour), To: to}

	byStatus, err := h.deps.Outcomes.CountByStatus(r.Context(), tr)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	total, err := h.deps.Outcomes.Count(r.Context(), tr)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	recent, err := h.deps.Outcomes.Latest(r.Context(), 20)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, AuditReport{
		GeneratedAt: to,
		WindowHours: hours,
		From:        tr.From,
		To:          tr.To,
		Total:       total,
		ByStatus:    byStatus,
		Recent:      recent,
	})
}

// NotFound is the catch-all for unknown routes.
func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	h.writeError(w, r, http.StatusNotFound, "endpoint_not_found", "the requested endpoint does not exist")
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("encoding response body")
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	h.writeJSON(w, status, ErrorResponse{
		Error:     http.StatusText(status),
		Code:      code,
		Message:   message,
		RequestID: requestIDFrom(r.Context()),
		Timestamp: h.now(),
	})
}

// writeDomainError maps the error taxonomy onto HTTP statuses: input
// and config problems are the caller's, everything else is ours.
func (h *Handlers) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	code := "internal"

	var derr *domain.Error
	if errors.As(err, &derr) {
		code = derr.Code
		switch derr.Kind {
		case domain.KindInput, domain.KindConfig:
			status = http.StatusBadRequest
		}
	}
	h.writeError(w, r, status, code, err.Error())
}

func queryInt(r *http.Request, key string, fallback int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, domain.NewInputError("input/bad_query", key+" must be a positive integer")
	}
	return n, nil
}
