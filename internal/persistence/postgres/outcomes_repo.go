package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/seoscope/keywordrun/internal/domain"
	"github.com/seoscope/keywordrun/internal/persistence"
)

// outcomesRepo implements OutcomeStore on PostgreSQL.
type outcomesRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewOutcomeStore creates a PostgreSQL-backed outcome store.
func NewOutcomeStore(db *sqlx.DB, timeout time.Duration) persistence.OutcomeStore {
	return &outcomesRepo{
		db:      db,
		timeout: timeout,
	}
}

// Insert adds a single outcome row.
func (r *outcomesRepo) Insert(ctx context.Context, outcome persistence.KeywordOutcome) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if !domain.ValidationStatus(outcome.Status).Valid() {
		return domain.NewInputError("input/unknown_status", "unknown outcome status: "+outcome.Status)
	}

	paramsJSON, err := json.Marshal(outcome.Params)
	if err != nil {
		return domain.WrapPersistenceError("persistence/encode_params", "encoding parameter vector", err)
	}

	query := `
		INSERT INTO keyword_outcomes (at, tracing_id, term, niche, status, composite, confidence, performance, params)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at`

	err = r.db.QueryRowxContext(ctx, query,
		outcome.At, outcome.TracingID, outcome.Term, outcome.Niche,
		outcome.Status, outcome.Composite, outcome.Confidence,
		outcome.Performance, paramsJSON).
		Scan(&outcome.ID, &outcome.CreatedAt)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return domain.WrapPersistenceError("persistence/duplicate_outcome", "outcome already recorded for "+outcome.TracingID, err)
		}
		return domain.WrapPersistenceError("persistence/insert_outcome", "inserting outcome row", err)
	}

	return nil
}

// InsertBatch adds one processing run's outcomes atomically.
func (r *outcomesRepo) InsertBatch(ctx context.Context, outcomes []persistence.KeywordOutcome) error {
	if len(outcomes) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout*time.Duration(len(outcomes)/100+1))
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return domain.WrapPersistenceError("persistence/begin_tx", "beginning outcome batch", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO keyword_outcomes (at, tracing_id, term, niche, status, composite, confidence, performance, params)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`)
	if err != nil {
		return domain.WrapPersistenceError("persistence/prepare_insert", "preparing outcome insert", err)
	}
	defer stmt.Close()

	for _, outcome := range outcomes {
		if !domain.ValidationStatus(outcome.Status).Valid() {
			return domain.NewInputError("input/unknown_status", "unknown outcome status in batch: "+outcome.Status)
		}

		paramsJSON, err := json.Marshal(outcome.Params)
		if err != nil {
			return domain.WrapPersistenceError("persistence/encode_params", "encoding parameter vector", err)
		}

		_, err = stmt.ExecContext(ctx,
			outcome.At, outcome.TracingID, outcome.Term, outcome.Niche,
			outcome.Status, outcome.Composite, outcome.Confidence,
			outcome.Performance, paramsJSON)
		if err != nil {
			return domain.WrapPersistenceError("persistence/insert_outcome", "inserting outcome in batch", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.WrapPersistenceError("persistence/commit_tx", "committing outcome batch", err)
	}
	return nil
}

// ListByNiche retrieves a niche's outcomes within the window, newest first.
func (r *outcomesRepo) ListByNiche(ctx context.Context, niche string, tr persistence.TimeRange, limit int) ([]persistence.KeywordOutcome, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT id, at, tracing_id, term, niche, status, composite, confidence, performance, params, created_at
		FROM keyword_outcomes
		WHERE niche = $1 AND at >= $2 AND at <= $3
		ORDER BY at DESC
		LIMIT $4`

	rows, err := r.db.QueryxContext(ctx, query, niche, tr.From, tr.To, limit)
	if err != nil {
		return nil, domain.WrapPersistenceError("persistence/query_outcomes", "querying outcomes by niche", err)
	}
	defer rows.Close()

	return r.scanOutcomes(rows)
}

// ListByStatus retrieves outcomes with the given disposition, newest first.
func (r *outcomesRepo) ListByStatus(ctx context.Context, status string, tr persistence.TimeRange, limit int) ([]persistence.KeywordOutcome, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if !domain.ValidationStatus(status).Valid() {
		return nil, domain.NewInputError("input/unknown_status", "unknown outcome status: "+status)
	}

	query := `
		SELECT id, at, tracing_id, term, niche, status, composite, confidence, performance, params, created_at
		FROM keyword_outcomes
		WHERE status = $1 AND at >= $2 AND at <= $3
		ORDER BY at DESC
		LIMIT $4`

	rows, err := r.db.QueryxContext(ctx, query, status, tr.From, tr.To, limit)
	if err != nil {
		return nil, domain.WrapPersistenceError("persistence/query_outcomes", "querying outcomes by status", err)
	}
	defer rows.Close()

	return r.scanOutcomes(rows)
}

// GetByTracingID finds the outcome journaled under a tracing identifier.
func (r *outcomesRepo) GetByTracingID(ctx context.Context, tracingID string) (*persistence.KeywordOutcome, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT id, at, tracing_id, term, niche, status, composite, confidence, performance, params, created_at
		FROM keyword_outcomes
		WHERE tracing_id = $1
		ORDER BY at DESC
		LIMIT 1`

	row := r.db.QueryRowxContext(ctx, query, tracingID)

	outcome, err := r.scanOutcome(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, domain.WrapPersistenceError("persistence/query_outcomes", "querying outcome by tracing id", err)
	}

	return outcome, nil
}

// Latest returns the most recent outcomes across all niches.
func (r *outcomesRepo) Latest(ctx context.Context, limit int) ([]persistence.KeywordOutcome, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT id, at, tracing_id, term, niche, status, composite, confidence, performance, params, created_at
		FROM keyword_outcomes
		ORDER BY at DESC
		LIMIT $1`

	rows, err := r.db.QueryxContext(ctx, query, limit)
	if err != nil {
		return nil, domain.WrapPersistenceError("persistence/query_outcomes", "querying latest outcomes", err)
	}
	defer rows.Close()

	return r.scanOutcomes(rows)
}

// Count returns the number of outcomes in the window.
func (r *outcomesRepo) Count(ctx context.Context, tr persistence.TimeRange) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT COUNT(*)
		FROM keyword_outcomes
		WHERE at >= $1 AND at <= $2`

	var count int64
	err := r.db.QueryRowxContext(ctx, query, tr.From, tr.To).Scan(&count)
	if err != nil {
		return 0, domain.WrapPersistenceError("persistence/query_outcomes", "counting outcomes", err)
	}

	return count, nil
}

// CountByStatus returns outcome counts grouped by disposition.
func (r *outcomesRepo) CountByStatus(ctx context.Context, tr persistence.TimeRange) (map[string]int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT status, COUNT(*)
		FROM keyword_outcomes
		WHERE at >= $1 AND at <= $2
		GROUP BY status
		ORDER BY status`

	rows, err := r.db.QueryxContext(ctx, query, tr.From, tr.To)
	if err != nil {
		return nil, domain.WrapPersistenceError("persistence/query_outcomes", "counting outcomes by status", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, domain.WrapPersistenceError("persistence/scan_outcome", "scanning status count", err)
		}
		counts[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapPersistenceError("persistence/scan_outcome", "iterating status counts", err)
	}

	return counts, nil
}

func (r *outcomesRepo) scanOutcomes(rows *sqlx.Rows) ([]persistence.KeywordOutcome, error) {
	var outcomes []persistence.KeywordOutcome

	for rows.Next() {
		var outcome persistence.KeywordOutcome
		var paramsJSON []byte

		err := rows.Scan(
			&outcome.ID, &outcome.At, &outcome.TracingID, &outcome.Term,
			&outcome.Niche, &outcome.Status, &outcome.Composite,
			&outcome.Confidence, &outcome.Performance, &paramsJSON,
			&outcome.CreatedAt)
		if err != nil {
			return nil, domain.WrapPersistenceError("persistence/scan_outcome", "scanning outcome row", err)
		}

		if err := decodeParams(paramsJSON, &outcome.Params); err != nil {
			return nil, err
		}
		outcomes = append(outcomes, outcome)
	}

	if err := rows.Err(); err != nil {
		return nil, domain.WrapPersistenceError("persistence/scan_outcome", "iterating outcome rows", err)
	}

	return outcomes, nil
}

func (r *outcomesRepo) scanOutcome(row *sqlx.Row) (*persistence.KeywordOutcome, error) {
	var outcome persistence.KeywordOutcome
	var paramsJSON []byte

	err := row.Scan(
		&outcome.ID, &outcome.At, &outcome.TracingID, &outcome.Term,
		&outcome.Niche, &outcome.Status, &outcome.Composite,
		&outcome.Confidence, &outcome.Performance, &paramsJSON,
		&outcome.CreatedAt)
	if err != nil {
		return nil, err
	}

	if err := decodeParams(paramsJSON, &outcome.Params); err != nil {
		return nil, err
	}

	return &outcome, nil
}

// decodeParams unpacks a JSONB parameter vector. NULL and empty columns
// decode to an empty map so callers never see a nil vector.
func decodeParams(raw []byte, dst *map[string]float64) error {
	if len(raw) == 0 {
		*dst = make(map[string]float64)
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return domain.WrapPersistenceError("persistence/decode_params",
			fmt.Sprintf("decoding parameter vector of %d bytes", len(raw)), err)
	}
	if *dst == nil {
		*dst = make(map[string]float64)
	}
	return nil
}
