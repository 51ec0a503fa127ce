package pipeline

import (
	"time"

	"github.com/seoscope/keywordrun/internal/domain"
	"github.com/seoscope/keywordrun/internal/niche"
	"github.com/seoscope/keywordrun/internal/validate"
)

// Version identifies the scoring pipeline in reports and log events.
const Version = "1.4.0"

// BatchStatus is the terminal state of one orchestrated run.
type BatchStatus string

const (
	BatchCompleted BatchStatus = "completed"
	BatchCancelled BatchStatus = "cancelled"
	BatchFailed    BatchStatus = "failed"
)

// StageMetrics is the per-stage instrumentation the orchestrator records.
type StageMetrics struct {
	Stage      string    `json:"stage"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
	ElapsedMs  float64   `json:"elapsed_ms"`
	InputSize  int       `json:"input_size"`
	OutputSize int       `json:"output_size"`
	Errors     int       `json:"errors"`
}

// Report is the aggregate view of one batch: score distributions, trend
// counts, per-stage timings and the identity of the run.
type Report struct {
	TracingID        string                     `json:"tracing_id"`
	Version          string                     `json:"version"`
	GeneratedAt      time.Time                  `json:"generated_at"`
	Niche            string                     `json:"niche"`
	Strategy         Strategy                   `json:"strategy"`
	Input            int                        `json:"input"`
	Accepted         int                        `json:"accepted"`
	Pending          int                        `json:"pending"`
	Rejected         int                        `json:"rejected"`
	InvalidInput     int                        `json:"invalid_input"`
	CompositeBands   map[domain.QualityBand]int `json:"composite_bands"`
	ComplexityBands  map[domain.Band]int        `json:"complexity_bands"`
	CompetitiveBands map[domain.Band]int        `json:"competitive_bands"`
	Trending         int                        `json:"trending"`
	Emerging         int                        `json:"emerging"`
	StageElapsedMs   map[string]float64         `json:"stage_elapsed_ms"`
	StageErrors      int                        `json:"stage_errors"`
	ActiveModules    []string                   `json:"active_modules"`
}

// BatchResult is everything one orchestrated run returns: the enriched
// keywords in input order, their validations, the approved subset, the
// stage metrics and the report.
type BatchResult struct {
	TracingID   string                    `json:"tracing_id"`
	Status      BatchStatus               `json:"status"`
	Strategy    Strategy                  `json:"strategy"`
	Niche       string                    `json:"niche"`
	Detection   niche.Detection           `json:"detection"`
	Keywords    []*domain.EnrichedKeyword `json:"keywords"`
	Validations []validate.Result         `json:"validations"`
	Accepted    []*domain.EnrichedKeyword `json:"accepted"`
	Stages      []StageMetrics            `json:"stages"`
	Report      *Report                   `json:"report"`
	Elapsed     time.Duration             `json:"elapsed"`
}

// RebuildReport recomputes the aggregate view for a result whose keyword
// set was assembled outside a single run, such as a batch merged from
// cached entries. Unscored keywords are excluded from the distributions;
// a validation without criteria marks a candidate that never entered the
// stages and counts as invalid input.
func RebuildReport(res *BatchResult, at time.Time) *Report {
	report := &Report{
		TracingID:        res.TracingID,
		Version:          Version,
		GeneratedAt:      at,
		Niche:            res.Niche,
		Strategy:         res.Strategy,
		Input:            len(res.Keywords),
		CompositeBands:   make(map[domain.QualityBand]int),
		ComplexityBands:  make(map[domain.Band]int),
		CompetitiveBands: make(map[domain.Band]int),
		StageElapsedMs:   make(map[string]float64),
		ActiveModules: []string{
			StageSignificance, StageComplexity, StageCompetitive,
			StageTrend, StageComposite, StageValidation,
		},
	}

	for _, e := range res.Keywords {
		if e.ScoredAt.IsZero() {
			continue
		}
		report.CompositeBands[e.CompositeBand]++
		report.ComplexityBands[e.ComplexityBand]++
		report.CompetitiveBands[e.CompetitivenessBand]++
		switch e.TrendDirection {
		case domain.TrendRising:
			report.Trending++
		case domain.TrendEmerging:
			report.Emerging++
		}
	}

	for i := range res.Validations {
		v := &res.Validations[i]
		if len(v.Criteria) == 0 {
			report.InvalidInput++
			report.Rejected++
			continue
		}
		switch v.Status {
		case domain.StatusApproved:
			report.Accepted++
		case domain.StatusPending:
			report.Pending++
		case domain.StatusRejected:
			report.Rejected++
		}
	}

	for _, sm := range res.Stages {
		report.StageElapsedMs[sm.Stage] += sm.ElapsedMs
		report.StageErrors += sm.Errors
	}
	return report
}

// buildReport aggregates the batch into its report. An empty batch yields
// a well-formed report with zeroed counts and empty distributions.
func (o *Orchestrator) buildReport(res *BatchResult, items []*item, modules []string) *Report {
	report := &Report{
		TracingID:        res.TracingID,
		Version:          Version,
		GeneratedAt:      o.now(),
		Niche:            res.Niche,
		Strategy:         res.Strategy,
		Input:            len(items),
		CompositeBands:   make(map[domain.QualityBand]int),
		ComplexityBands:  make(map[domain.Band]int),
		CompetitiveBands: make(map[domain.Band]int),
		StageElapsedMs:   make(map[string]float64),
		ActiveModules:    modules,
	}

	for _, it := range items {
		if it.skipped {
			report.InvalidInput++
			report.Rejected++
			continue
		}
		e := it.enriched
		report.CompositeBands[e.CompositeBand]++
		report.ComplexityBands[e.ComplexityBand]++
		report.CompetitiveBands[e.CompetitivenessBand]++
		switch e.TrendDirection {
		case domain.TrendRising:
			report.Trending++
		case domain.TrendEmerging:
			report.Emerging++
		}
		if it.validation == nil {
			continue
		}
		switch it.validation.Status {
		case domain.StatusApproved:
			report.Accepted++
		case domain.StatusPending:
			report.Pending++
		case domain.StatusRejected:
			report.Rejected++
		}
	}

	for _, sm := range res.Stages {
		report.StageElapsedMs[sm.Stage] += sm.ElapsedMs
		report.StageErrors += sm.Errors
	}
	return report
}
