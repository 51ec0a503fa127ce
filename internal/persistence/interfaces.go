package persistence

import (
	"context"
	"time"
)

// TimeRange bounds a query window. Both endpoints are inclusive.
type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// KeywordOutcome is one scored candidate decision: the composite score, the
// validator's disposition and the exact parameter vector that produced them.
// Rows are written once at decision time and never updated, so a niche's
// history can be replayed for audits and optimizer training.
type KeywordOutcome struct {
	ID          int64              `json:"id" db:"id"`
	At          time.Time          `json:"at" db:"at"`
	TracingID   string             `json:"tracing_id" db:"tracing_id"`
	Term        string             `json:"term" db:"term"`
	Niche       string             `json:"niche" db:"niche"`
	Status      string             `json:"status" db:"status"`
	Composite   float64            `json:"composite" db:"composite"`
	Confidence  float64            `json:"confidence" db:"confidence"`
	Performance float64            `json:"performance" db:"performance"`
	Params      map[string]float64 `json:"params" db:"params"`
	CreatedAt   time.Time          `json:"created_at" db:"created_at"`
}

// AdjustmentRow is a persisted optimizer adjustment: the parameter vectors
// before and after, the performance either side of the change and the
// decision status. Unmeasured applied rows are the ones still waiting for
// the next cycle's observation.
type AdjustmentRow struct {
	ID                  int64              `json:"id" db:"id"`
	At                  time.Time          `json:"at" db:"at"`
	Niche               string             `json:"niche" db:"niche"`
	Status              string             `json:"status" db:"status"`
	PreviousParams      map[string]float64 `json:"previous_params" db:"previous_params"`
	NewParams           map[string]float64 `json:"new_params" db:"new_params"`
	PreviousPerformance float64            `json:"previous_performance" db:"previous_performance"`
	NewPerformance      float64            `json:"new_performance" db:"new_performance"`
	Delta               float64            `json:"delta" db:"delta"`
	Confidence          float64            `json:"confidence" db:"confidence"`
	Measured            bool               `json:"measured" db:"measured"`
	TracingID           string             `json:"tracing_id" db:"tracing_id"`
	CreatedAt           time.Time          `json:"created_at" db:"created_at"`
}

// OutcomeStore persists keyword decisions for audit queries and training
// windows. The file journal remains the pipeline default; this store is the
// service-deployment option.
type OutcomeStore interface {
	// Insert adds a single outcome row.
	Insert(ctx context.Context, outcome KeywordOutcome) error

	// InsertBatch adds one processing run's outcomes atomically.
	InsertBatch(ctx context.Context, outcomes []KeywordOutcome) error

	// ListByNiche retrieves a niche's outcomes within the window, newest first.
	ListByNiche(ctx context.Context, niche string, tr TimeRange, limit int) ([]KeywordOutcome, error)

	// ListByStatus retrieves outcomes with the given disposition, newest first.
	ListByStatus(ctx context.Context, status string, tr TimeRange, limit int) ([]KeywordOutcome, error)

	// GetByTracingID finds the outcome journaled under a tracing identifier.
	GetByTracingID(ctx context.Context, tracingID string) (*KeywordOutcome, error)

	// Latest returns the most recent outcomes across all niches.
	Latest(ctx context.Context, limit int) ([]KeywordOutcome, error)

	// Count returns the number of outcomes in the window.
	Count(ctx context.Context, tr TimeRange) (int64, error)

	// CountByStatus returns outcome counts grouped by disposition.
	CountByStatus(ctx context.Context, tr TimeRange) (map[string]int64, error)
}

// AdjustmentStore persists optimizer adjustment history.
type AdjustmentStore interface {
	// Insert adds an adjustment record.
	Insert(ctx context.Context, row AdjustmentRow) error

	// Window retrieves a niche's adjustments within the time range, oldest first.
	Window(ctx context.Context, niche string, tr TimeRange) ([]AdjustmentRow, error)

	// ListByNiche retrieves a niche's most recent adjustments, newest first.
	ListByNiche(ctx context.Context, niche string, limit int) ([]AdjustmentRow, error)

	// LastApplied returns the newest applied adjustment for the niche.
	LastApplied(ctx context.Context, niche string) (*AdjustmentRow, error)

	// CountByStatus returns adjustment counts grouped by decision status.
	CountByStatus(ctx context.Context, niche string, tr TimeRange) (map[string]int64, error)
}

// Repository aggregates the persistence interfaces behind one handle.
type Repository struct {
	Outcomes    OutcomeStore
	Adjustments AdjustmentStore
}

// HealthCheck reports store connectivity and pool state.
type HealthCheck struct {
	Healthy        bool           `json:"healthy"`
	Errors         []string       `json:"errors,omitempty"`
	ConnectionPool map[string]int `json:"connection_pool"`
	LastCheck      time.Time      `json:"last_check"`
	ResponseTimeMS int64          `json:"response_time_ms"`
}

// RepositoryHealth exposes store health for readiness probes.
type RepositoryHealth interface {
	// Health returns the current health snapshot.
	Health(ctx context.Context) HealthCheck

	// Ping tests basic connectivity to the store.
	Ping(ctx context.Context) error

	// Stats returns connection pool and query statistics.
	Stats(ctx context.Context) map[string]interface{}
}
