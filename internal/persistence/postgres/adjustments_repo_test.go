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
	adjustmentAt      = time.Date(2026, 3, 15, 2, 0, 0, 0, time.UTC)
	adjustmentCreated = time.Date(2026, 3, 15, 2, 0, 1, 0, time.UTC)
)

var adjustmentColumns = []string{
	"id", "at", "niche", "status", "previous_params", "new_params",
	"previous_performance", "new_performance", "delta", "confidence",
	"measured", "tracing_id", "created_at",
}

func newMockAdjustmentStore(t *testing.T) (persistence.AdjustmentStore, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	return NewAdjustmentStore(sqlx.NewDb(mockDB, "sqlmock"), 5*time.Second), mock
}

func fixtureAdjustment() persistence.AdjustmentRow {
	return persistence.AdjustmentRow{
		At:                  adjustmentAt,
		Niche:               "technology",
		Status:              "applied",
		PreviousParams:      map[string]float64{"specificity_threshold": 0.55},
		NewParams:           map[string]float64{"specificity_threshold": 0.61},
		PreviousPerformance: 0.58,
		NewPerformance:      0.66,
		Delta:               0.08,
		Confidence:          0.85,
		Measured:            false,
		TracingID:           "opt_20260315020000000_9f3e",
	}
}

func TestAdjustmentInsert(t *testing.T) {
	store, mock := newMockAdjustmentStore(t)
	row := fixtureAdjustment()

	mock.ExpectQuery("INSERT INTO parameter_adjustments").
		WithArgs(row.At, row.Niche, row.Status,
			[]byte(`{"specificity_threshold":0.55}`),
			[]byte(`{"specificity_threshold":0.61}`),
			row.PreviousPerformance, row.NewPerformance, row.Delta,
			row.Confidence, row.Measured, row.TracingID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).
			AddRow(int64(9), adjustmentCreated))

	err := store.Insert(context.Background(), row)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdjustmentInsertRejectsUnknownStatus(t *testing.T) {
	store, mock := newMockAdjustmentStore(t)
	row := fixtureAdjustment()
	row.Status = "reverted"

	err := store.Insert(context.Background(), row)
	require.Error(t, err)
	assert.Equal(t, "input/unknown_status", domain.CodeOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdjustmentInsertWrapsDuplicate(t *testing.T) {
	store, mock := newMockAdjustmentStore(t)

	mock.ExpectQuery("INSERT INTO parameter_adjustments").
		WillReturnError(&pq.Error{Code: "23505"})

	err := store.Insert(context.Background(), fixtureAdjustment())
	require.Error(t, err)
	assert.Equal(t, "persistence/duplicate_adjustment", domain.CodeOf(err))
}

func TestAdjustmentWindow(t *testing.T) {
	store, mock := newMockAdjustmentStore(t)

	tr := persistence.TimeRange{
		From: adjustmentAt.Add(-30 * 24 * time.Hour),
		To:   adjustmentAt,
	}

	rows := sqlmock.NewRows(adjustmentColumns).
		AddRow(int64(1), adjustmentAt.Add(-48*time.Hour), "technology", "applied",
			[]byte(`{"specificity_threshold":0.5}`), []byte(`{"specificity_threshold":0.55}`),
			0.52, 0.58, 0.06, 0.8, true, "opt_20260313020000000_11aa", adjustmentCreated).
		AddRow(int64(2), adjustmentAt.Add(-24*time.Hour), "technology", "skipped_low_confidence",
			[]byte(`{"specificity_threshold":0.55}`), []byte(`{"specificity_threshold":0.6}`),
			0.58, 0.0, 0.0, 0.6, true, "opt_20260314020000000_22bb", adjustmentCreated)

	mock.ExpectQuery("SELECT (.+) FROM parameter_adjustments").
		WithArgs("technology", tr.From, tr.To).
		WillReturnRows(rows)

	adjustments, err := store.Window(context.Background(), "technology", tr)
	require.NoError(t, err)
	require.Len(t, adjustments, 2)

	assert.True(t, adjustments[0].At.Before(adjustments[1].At), "window rows arrive oldest first")
	assert.Equal(t, "applied", adjustments[0].Status)
	assert.Equal(t, 0.55, adjustments[0].NewParams["specificity_threshold"])
	assert.Equal(t, "skipped_low_confidence", adjustments[1].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdjustmentListByNiche(t *testing.T) {
	store, mock := newMockAdjustmentStore(t)

	rows := sqlmock.NewRows(adjustmentColumns).
		AddRow(int64(3), adjustmentAt, "finance", "rolled_back",
			[]byte(`{"min_words":4}`), []byte(`{"min_words":3}`),
			0.7, 0.55, -0.15, 0.75, true, "opt_20260315020000000_33cc", adjustmentCreated)

	mock.ExpectQuery("SELECT (.+) FROM parameter_adjustments").
		WithArgs("finance", 20).
		WillReturnRows(rows)

	adjustments, err := store.ListByNiche(context.Background(), "finance", 20)
	require.NoError(t, err)
	require.Len(t, adjustments, 1)
	assert.Equal(t, "rolled_back", adjustments[0].Status)
	assert.Equal(t, -0.15, adjustments[0].Delta)
}

func TestAdjustmentLastApplied(t *testing.T) {
	store, mock := newMockAdjustmentStore(t)

	rows := sqlmock.NewRows(adjustmentColumns).
		AddRow(int64(5), adjustmentAt, "technology", "applied",
			[]byte(`{"specificity_threshold":0.55}`), []byte(`{"specificity_threshold":0.61}`),
			0.58, 0.0, 0.0, 0.85, false, "opt_20260315020000000_9f3e", adjustmentCreated)

	mock.ExpectQuery("SELECT (.+) FROM parameter_adjustments").
		WithArgs("technology").
		WillReturnRows(rows)

	adj, err := store.LastApplied(context.Background(), "technology")
	require.NoError(t, err)
	require.NotNil(t, adj)
	assert.Equal(t, int64(5), adj.ID)
	assert.False(t, adj.Measured, "the newest applied row may still be unmeasured")
}

func TestAdjustmentLastAppliedMissing(t *testing.T) {
	store, mock := newMockAdjustmentStore(t)

	mock.ExpectQuery("SELECT (.+) FROM parameter_adjustments").
		WithArgs("health").
		WillReturnRows(sqlmock.NewRows(adjustmentColumns))

	adj, err := store.LastApplied(context.Background(), "health")
	require.NoError(t, err, "a niche with no applied adjustments is not an error")
	assert.Nil(t, adj)
}

func TestAdjustmentCountByStatus(t *testing.T) {
	store, mock := newMockAdjustmentStore(t)

	tr := persistence.TimeRange{From: adjustmentAt.Add(-90 * 24 * time.Hour), To: adjustmentAt}

	rows := sqlmock.NewRows([]string{"status", "count"}).
		AddRow("applied", int64(14)).
		AddRow("rolled_back", int64(2)).
		AddRow("skipped_low_confidence", int64(9))

	mock.ExpectQuery("SELECT status, COUNT").
		WithArgs("technology", tr.From, tr.To).
		WillReturnRows(rows)

	counts, err := store.CountByStatus(context.Background(), "technology", tr)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{
		"applied":                14,
		"rolled_back":            2,
		"skipped_low_confidence": 9,
	}, counts)
}
