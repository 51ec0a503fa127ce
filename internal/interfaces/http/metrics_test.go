package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seoscope/keywordrun/internal/cache"
	"github.com/seoscope/keywordrun/internal/domain"
	"github.com/seoscope/keywordrun/internal/optimize"
	"github.com/seoscope/keywordrun/internal/pipeline"
	"github.com/seoscope/keywordrun/internal/validate"
)

func batchFixture(status pipeline.BatchStatus, strategy pipeline.Strategy, niche string) *pipeline.BatchResult {
	return &pipeline.BatchResult{
		TracingID: "kw_metrics",
		Status:    status,
		Strategy:  strategy,
		Niche:     niche,
		Validations: []validate.Result{
			{Status: domain.StatusApproved},
			{Status: domain.StatusPending},
		},
		Stages: []pipeline.StageMetrics{
			{Stage: "analysis", ElapsedMs: 10},
			{Stage: "scoring", ElapsedMs: 2, Errors: 1},
		},
	}
}

func TestObserveBatchFoldsIntoSnapshot(t *testing.T) {
	m := NewMetrics()

	m.ObserveBatch(batchFixture("completed", "cascade", "technology"))
	m.ObserveBatch(batchFixture("completed", "parallel", "technology"))
	m.ObserveBatch(batchFixture("failed", "cascade", ""))

	snap := m.Snapshot()

	assert.InDelta(t, 2, snap.Batches["completed"], 1e-9)
	assert.InDelta(t, 1, snap.Batches["failed"], 1e-9)
	assert.InDelta(t, 3, snap.Keywords["approved"], 1e-9)
	assert.InDelta(t, 3, snap.Keywords["pending"], 1e-9)
	assert.InDelta(t, 2, snap.Niches["technology"], 1e-9)
	assert.NotContains(t, snap.Niches, "", "empty niche labels are not recorded")

	stages := map[string]StageAverage{}
	for _, st := range snap.Stages {
		stages[st.Stage] = st
	}
	require.Contains(t, stages, "analysis")
	assert.Equal(t, uint64(3), stages["analysis"].Count)
	assert.InDelta(t, 10, stages["analysis"].AvgMs, 0.01)
}

func TestObserveCycle(t *testing.T) {
	m := NewMetrics()

	m.ObserveCycle(&optimize.CycleResult{Status: optimize.StatusApplied})
	m.ObserveCycle(&optimize.CycleResult{Status: optimize.StatusApplied})
	m.ObserveCycle(&optimize.CycleResult{Status: optimize.StatusFrozen})

	snap := m.Snapshot()
	assert.InDelta(t, 2, snap.Cycles["applied"], 1e-9)
	assert.InDelta(t, 1, snap.Cycles["frozen"], 1e-9)
}

func TestObserveNilIsSafe(t *testing.T) {
	m := NewMetrics()

	assert.NotPanics(t, func() {
		m.ObserveBatch(nil)
		m.ObserveCycle(nil)
	})
}

func TestGaugeSnapshot(t *testing.T) {
	m := NewMetrics()

	m.SetCacheStats(cache.Stats{Backend: "memory", HitRate: 0.75, Entries: 42})
	m.SetQueueDepth(3)

	snap := m.Snapshot()
	assert.InDelta(t, 0.75, snap.CacheHitRatio, 1e-9)
	assert.InDelta(t, 42, snap.CacheEntries, 1e-9)
	assert.InDelta(t, 3, snap.QueueDepth, 1e-9)
}

func TestMetricsHandlerExposition(t *testing.T) {
	m := NewMetrics()
	m.ObserveBatch(batchFixture("completed", "adaptive", "health"))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "keywordrun_batches_total")
	assert.Contains(t, body, "keywordrun_stage_duration_seconds")
	assert.Contains(t, body, `strategy="adaptive"`)
}

func TestSeparateRegistries(t *testing.T) {
	a := NewMetrics()
	b := NewMetrics()

	a.ObserveBatch(batchFixture("completed", "cascade", "technology"))

	assert.InDelta(t, 1, a.Snapshot().Batches["completed"], 1e-9)
	assert.Empty(t, b.Snapshot().Batches, "each instance owns its registry")
}
