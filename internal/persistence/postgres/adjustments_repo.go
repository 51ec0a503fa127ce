package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/seoscope/keywordrun/internal/domain"
	"github.com/seoscope/keywordrun/internal/persistence"
)

// adjustmentsRepo implements AdjustmentStore on PostgreSQL.
type adjustmentsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewAdjustmentStore creates a PostgreSQL-backed adjustment store.
func NewAdjustmentStore(db *sqlx.DB, timeout time.Duration) persistence.AdjustmentStore {
	return &adjustmentsRepo{
		db:      db,
		timeout: timeout,
	}
}

// Insert adds an adjustment record.
func (r *adjustmentsRepo) Insert(ctx context.Context, row persistence.AdjustmentRow) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if !isAdjustmentStatus(row.Status) {
		return domain.NewInputError("input/unknown_status", "unknown adjustment status: "+row.Status)
	}

	prevJSON, err := json.Marshal(row.PreviousParams)
	if err != nil {
		return domain.WrapPersistenceError("persistence/encode_params", "encoding previous parameter vector", err)
	}
	newJSON, err := json.Marshal(row.NewParams)
	if err != nil {
		return domain.WrapPersistenceError("persistence/encode_params", "encoding new parameter vector", err)
	}

	query := `
		INSERT INTO parameter_adjustments (at, niche, status, previous_params, new_params,
			previous_performance, new_performance, delta, confidence, measured, tracing_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at`

	err = r.db.QueryRowxContext(ctx, query,
		row.At, row.Niche, row.Status, prevJSON, newJSON,
		row.PreviousPerformance, row.NewPerformance, row.Delta,
		row.Confidence, row.Measured, row.TracingID).
		Scan(&row.ID, &row.CreatedAt)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return domain.WrapPersistenceError("persistence/duplicate_adjustment", "adjustment already recorded for "+row.TracingID, err)
		}
		return domain.WrapPersistenceError("persistence/insert_adjustment", "inserting adjustment row", err)
	}

	return nil
}

// Window retrieves a niche's adjustments within the time range, oldest first.
func (r *adjustmentsRepo) Window(ctx context.Context, niche string, tr persistence.TimeRange) ([]persistence.AdjustmentRow, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT id, at, niche, status, previous_params, new_params,
			previous_performance, new_performance, delta, confidence, measured, tracing_id, created_at
		FROM parameter_adjustments
		WHERE niche = $1 AND at >= $2 AND at <= $3
		ORDER BY at ASC`

	rows, err := r.db.QueryxContext(ctx, query, niche, tr.From, tr.To)
	if err != nil {
		return nil, domain.WrapPersistenceError("persistence/query_adjustments", "querying adjustment window", err)
	}
	defer rows.Close()

	return r.scanAdjustments(rows)
}

// ListByNiche retrieves a niche's most recent adjustments, newest first.
func (r *adjustmentsRepo) ListByNiche(ctx context.Context, niche string, limit int) ([]persistence.AdjustmentRow, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT id, at, niche, status, previous_params, new_params,
			previous_performance, new_performance, delta, confidence, measured, tracing_id, created_at
		FROM parameter_adjustments
		WHERE niche = $1
		ORDER BY at DESC
		LIMIT $2`

	rows, err := r.db.QueryxContext(ctx, query, niche, limit)
	if err != nil {
		return nil, domain.WrapPersistenceError("persistence/query_adjustments", "querying adjustments by niche", err)
	}
	defer rows.Close()

	return r.scanAdjustments(rows)
}

// LastApplied returns the newest applied adjustment for the niche.
func (r *adjustmentsRepo) LastApplied(ctx context.Context, niche string) (*persistence.AdjustmentRow, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT id, at, niche, status, previous_params, new_params,
			previous_performance, new_performance, delta, confidence, measured, tracing_id, created_at
		FROM parameter_adjustments
		WHERE niche = $1 AND status = 'applied'
		ORDER BY at DESC
		LIMIT 1`

	row := r.db.QueryRowxContext(ctx, query, niche)

	adj, err := r.scanAdjustment(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, domain.WrapPersistenceError("persistence/query_adjustments", "querying last applied adjustment", err)
	}

	return adj, nil
}

// CountByStatus returns adjustment counts grouped by decision status.
func (r *adjustmentsRepo) CountByStatus(ctx context.Context, niche string, tr persistence.TimeRange) (map[string]int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT status, COUNT(*)
		FROM parameter_adjustments
		WHERE niche = $1 AND at >= $2 AND at <= $3
		GROUP BY status
		ORDER BY status`

	rows, err := r.db.QueryxContext(ctx, query, niche, tr.From, tr.To)
	if err != nil {
		return nil, domain.WrapPersistenceError("persistence/query_adjustments", "counting adjustments by status", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, domain.WrapPersistenceError("persistence/scan_adjustment", "scanning status count", err)
		}
		counts[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapPersistenceError("persistence/scan_adjustment", "iterating status counts", err)
	}

	return counts, nil
}

func (r *adjustmentsRepo) scanAdjustments(rows *sqlx.Rows) ([]persistence.AdjustmentRow, error) {
	var adjustments []persistence.AdjustmentRow

	for rows.Next() {
		var adj persistence.AdjustmentRow
		var prevJSON, newJSON []byte

		err := rows.Scan(
			&adj.ID, &adj.At, &adj.Niche, &adj.Status, &prevJSON, &newJSON,
			&adj.PreviousPerformance, &adj.NewPerformance, &adj.Delta,
			&adj.Confidence, &adj.Measured, &adj.TracingID, &adj.CreatedAt)
		if err != nil {
			return nil, domain.WrapPersistenceError("persistence/scan_adjustment", "scanning adjustment row", err)
		}

		if err := decodeParams(prevJSON, &adj.PreviousParams); err != nil {
			return nil, err
		}
		if err := decodeParams(newJSON, &adj.NewParams); err != nil {
			return nil, err
		}
		adjustments = append(adjustments, adj)
	}

	if err := rows.Err(); err != nil {
		return nil, domain.WrapPersistenceError("persistence/scan_adjustment", "iterating adjustment rows", err)
	}

	return adjustments, nil
}

func (r *adjustmentsRepo) scanAdjustment(row *sqlx.Row) (*persistence.AdjustmentRow, error) {
	var adj persistence.AdjustmentRow
	var prevJSON, newJSON []byte

	err := row.Scan(
		&adj.ID, &adj.At, &adj.Niche, &adj.Status, &prevJSON, &newJSON,
		&adj.PreviousPerformance, &adj.NewPerformance, &adj.Delta,
		&adj.Confidence, &adj.Measured, &adj.TracingID, &adj.CreatedAt)
	if err != nil {
		return nil, err
	}

	if err := decodeParams(prevJSON, &adj.PreviousParams); err != nil {
		return nil, err
	}
	if err := decodeParams(newJSON, &adj.NewParams); err != nil {
		return nil, err
	}

	return &adj, nil
}

// isAdjustmentStatus validates against the statuses the tuning cycle writes.
func isAdjustmentStatus(status string) bool {
	allowed := map[string]bool{
		"applied":                true,
		"skipped_not_needed":     true,
		"skipped_low_confidence": true,
		"rolled_back":            true,
		"failed":                 true,
	}
	return allowed[status]
}
