package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seoscope/keywordrun/internal/domain"
	"github.com/seoscope/keywordrun/internal/persistence"
)

var (
	outcomeAt      = time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)
	outcomeCreated = time.Date(2026, 3, 14, 10, 30, 1, 0, time.UTC)
)

var outcomeColumns = []string{
	"id", "at", "tracing_id", "term", "niche", "status",
	"composite", "confidence", "performance", "params", "created_at",
}

func newMockOutcomeStore(t *testing.T) (persistence.OutcomeStore, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	return NewOutcomeStore(sqlx.NewDb(mockDB, "sqlmock"), 5*time.Second), mock
}

func fixtureOutcome() persistence.KeywordOutcome {
	return persistence.KeywordOutcome{
		At:          outcomeAt,
		TracingID:   "kw_20260314103000000_a1b2",
		Term:        "best trail running shoes for beginners",
		Niche:       "ecommerce",
		Status:      "approved",
		Composite:   0.74,
		Confidence:  0.81,
		Performance: 0.69,
		Params:      map[string]float64{"specificity_threshold": 0.55},
	}
}

func TestOutcomeInsert(t *testing.T) {
	store, mock := newMockOutcomeStore(t)
	outcome := fixtureOutcome()

	mock.ExpectQuery("INSERT INTO keyword_outcomes").
		WithArgs(outcome.At, outcome.TracingID, outcome.Term, outcome.Niche,
			outcome.Status, outcome.Composite, outcome.Confidence,
			outcome.Performance, []byte(`{"specificity_threshold":0.55}`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).
			AddRow(int64(42), outcomeCreated))

	err := store.Insert(context.Background(), outcome)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutcomeInsertRejectsUnknownStatus(t *testing.T) {
	store, mock := newMockOutcomeStore(t)
	outcome := fixtureOutcome()
	outcome.Status = "maybe"

	err := store.Insert(context.Background(), outcome)
	require.Error(t, err)
	assert.Equal(t, "input/unknown_status", domain.CodeOf(err))
	assert.NoError(t, mock.ExpectationsWereMet(), "no SQL should run for an invalid status")
}

func TestOutcomeInsertWrapsDuplicate(t *testing.T) {
	store, mock := newMockOutcomeStore(t)
	outcome := fixtureOutcome()

	mock.ExpectQuery("INSERT INTO keyword_outcomes").
		WillReturnError(&pq.Error{Code: "23505"})

	err := store.Insert(context.Background(), outcome)
	require.Error(t, err)
	assert.Equal(t, "persistence/duplicate_outcome", domain.CodeOf(err))
	assert.Equal(t, domain.KindPersistence, domain.KindOf(err))
}

func TestOutcomeInsertBatch(t *testing.T) {
	store, mock := newMockOutcomeStore(t)

	first := fixtureOutcome()
	second := fixtureOutcome()
	second.TracingID = "kw_20260314103000001_c3d4"
	second.Term = "trail running shoes for flat feet"
	second.Status = "rejected"

	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO keyword_outcomes")
	prep.ExpectExec().
		WithArgs(first.At, first.TracingID, first.Term, first.Niche,
			first.Status, first.Composite, first.Confidence,
			first.Performance, []byte(`{"specificity_threshold":0.55}`)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	prep.ExpectExec().
		WithArgs(second.At, second.TracingID, second.Term, second.Niche,
			second.Status, second.Composite, second.Confidence,
			second.Performance, []byte(`{"specificity_threshold":0.55}`)).
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	err := store.InsertBatch(context.Background(), []persistence.KeywordOutcome{first, second})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutcomeInsertBatchEmpty(t *testing.T) {
	store, mock := newMockOutcomeStore(t)

	err := store.InsertBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet(), "an empty batch should not touch the database")
}

func TestOutcomeListByNiche(t *testing.T) {
	store, mock := newMockOutcomeStore(t)

	tr := persistence.TimeRange{
		From: outcomeAt.Add(-time.Hour),
		To:   outcomeAt.Add(time.Hour),
	}

	rows := sqlmock.NewRows(outcomeColumns).
		AddRow(int64(2), outcomeAt, "kw_20260314103000001_c3d4",
			"trail running shoes for flat feet", "ecommerce", "rejected",
			0.41, 0.52, 0.38, []byte(`{"min_words":3}`), outcomeCreated).
		AddRow(int64(1), outcomeAt.Add(-time.Minute), "kw_20260314102900000_a1b2",
			"best trail running shoes for beginners", "ecommerce", "approved",
			0.74, 0.81, 0.69, nil, outcomeCreated)

	mock.ExpectQuery("SELECT (.+) FROM keyword_outcomes").
		WithArgs("ecommerce", tr.From, tr.To, 50).
		WillReturnRows(rows)

	outcomes, err := store.ListByNiche(context.Background(), "ecommerce", tr, 50)
	require.NoError(t, err)
	require.Len(t, outcomes, 2)

	assert.Equal(t, int64(2), outcomes[0].ID)
	assert.Equal(t, "rejected", outcomes[0].Status)
	assert.Equal(t, map[string]float64{"min_words": 3}, outcomes[0].Params)
	assert.Equal(t, "approved", outcomes[1].Status)
	assert.NotNil(t, outcomes[1].Params, "NULL params decode to an empty map")
	assert.Empty(t, outcomes[1].Params)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutcomeListByStatusRejectsUnknownStatus(t *testing.T) {
	store, mock := newMockOutcomeStore(t)

	_, err := store.ListByStatus(context.Background(), "archived", persistence.TimeRange{}, 10)
	require.Error(t, err)
	assert.Equal(t, "input/unknown_status", domain.CodeOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutcomeGetByTracingID(t *testing.T) {
	store, mock := newMockOutcomeStore(t)

	rows := sqlmock.NewRows(outcomeColumns).
		AddRow(int64(7), outcomeAt, "kw_20260314103000000_a1b2",
			"best trail running shoes for beginners", "ecommerce", "approved",
			0.74, 0.81, 0.69, []byte(`{"specificity_threshold":0.55}`), outcomeCreated)

	mock.ExpectQuery("SELECT (.+) FROM keyword_outcomes").
		WithArgs("kw_20260314103000000_a1b2").
		WillReturnRows(rows)

	outcome, err := store.GetByTracingID(context.Background(), "kw_20260314103000000_a1b2")
	require.NoError(t, err)
	require.NotNil(t, outcome)
	assert.Equal(t, int64(7), outcome.ID)
	assert.Equal(t, 0.55, outcome.Params["specificity_threshold"])
}

func TestOutcomeGetByTracingIDMissing(t *testing.T) {
	store, mock := newMockOutcomeStore(t)

	mock.ExpectQuery("SELECT (.+) FROM keyword_outcomes").
		WithArgs("kw_unknown").
		WillReturnRows(sqlmock.NewRows(outcomeColumns))

	outcome, err := store.GetByTracingID(context.Background(), "kw_unknown")
	require.NoError(t, err, "a missing row is not an error")
	assert.Nil(t, outcome)
}

func TestOutcomeCount(t *testing.T) {
	store, mock := newMockOutcomeStore(t)

	tr := persistence.TimeRange{From: outcomeAt.Add(-24 * time.Hour), To: outcomeAt}

	mock.ExpectQuery("SELECT COUNT").
		WithArgs(tr.From, tr.To).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(128)))

	count, err := store.Count(context.Background(), tr)
	require.NoError(t, err)
	assert.Equal(t, int64(128), count)
}

func TestOutcomeCountByStatus(t *testing.T) {
	store, mock := newMockOutcomeStore(t)

	tr := persistence.TimeRange{From: outcomeAt.Add(-24 * time.Hour), To: outcomeAt}

	rows := sqlmock.NewRows([]string{"status", "count"}).
		AddRow("approved", int64(80)).
		AddRow("pending", int64(12)).
		AddRow("rejected", int64(36))

	mock.ExpectQuery("SELECT status, COUNT").
		WithArgs(tr.From, tr.To).
		WillReturnRows(rows)

	counts, err := store.CountByStatus(context.Background(), tr)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{
		"approved": 80,
		"pending":  12,
		"rejected": 36,
	}, counts)
}
