package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seoscope/keywordrun/internal/domain"
	"github.com/seoscope/keywordrun/internal/ledger"
	"github.com/seoscope/keywordrun/internal/niche"
	"github.com/seoscope/keywordrun/internal/trend"
	"github.com/seoscope/keywordrun/internal/validate"
)

var batchTime = time.Date(2026, 3, 15, 10, 4, 5, 0, time.UTC)

func newTestOrchestrator(t *testing.T, cfg Config, deps Deps) *Orchestrator {
	t.Helper()
	if deps.Resolver == nil {
		r, err := niche.NewResolver(nil, zerolog.Nop())
		require.NoError(t, err)
		deps.Resolver = r
	}
	o, err := New(cfg, deps)
	require.NoError(t, err)
	o.now = func() time.Time { return batchTime }
	t.Cleanup(o.Close)
	return o
}

func kw(term string, volume int64, cpc, competition float64, intent domain.Intent) domain.Keyword {
	return domain.Keyword{Term: term, Volume: volume, CPC: cpc, Competition: competition, Intent: intent}
}

func criterion(t *testing.T, v validate.Result, name string) validate.CriterionCheck {
	t.Helper()
	for _, c := range v.Criteria {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("criterion %q not in result", name)
	return validate.CriterionCheck{}
}

func TestNewRequiresResolver(t *testing.T) {
	_, err := New(Config{}, Deps{Logger: zerolog.Nop()})
	require.Error(t, err)
	assert.Equal(t, "config/missing_resolver", domain.CodeOf(err))
}

func TestNewRejectsUnknownDefaultLocale(t *testing.T) {
	r, err := niche.NewResolver(nil, zerolog.Nop())
	require.NoError(t, err)

	_, err = New(Config{Locale: "zz"}, Deps{Resolver: r, Logger: zerolog.Nop()})
	require.Error(t, err)
	assert.Equal(t, "config/unknown_locale", domain.CodeOf(err))
}

func TestRunRejectsLowSignalKeyword(t *testing.T) {
	o := newTestOrchestrator(t, Config{}, Deps{Logger: zerolog.Nop()})

	res, err := o.Run(context.Background(), []domain.Keyword{
		kw("x", 10, 0.01, 0.99, domain.IntentInformational),
	}, Options{})
	require.NoError(t, err)

	assert.Equal(t, BatchCompleted, res.Status)
	assert.Equal(t, "generic", res.Niche)
	require.Len(t, res.Keywords, 1)
	require.Len(t, res.Validations, 1)
	assert.Empty(t, res.Accepted)

	e := res.Keywords[0]
	assert.InDelta(t, 0.275418, e.Composite, 1e-6)
	assert.InDelta(t, 0.292618, e.Confidence, 1e-6)
	assert.Equal(t, domain.QualityPoor, e.CompositeBand)
	assert.Equal(t, "kw_20260315100405000_2695", e.TracingID)

	v := res.Validations[0]
	assert.Equal(t, domain.StatusRejected, v.Status)
	assert.Equal(t, e.TracingID, v.TracingID)
	assert.True(t, v.Failed(validate.CriterionComposite))
	assert.Contains(t, criterion(t, v, validate.CriterionComposite).Message, "gap")

	assert.Equal(t, 1, res.Report.Rejected)
	assert.Equal(t, 1, res.Report.CompositeBands[domain.QualityPoor])
}

func TestRunAcceptsTechnologyKeyword(t *testing.T) {
	o := newTestOrchestrator(t, Config{}, Deps{Logger: zerolog.Nop()})

	res, err := o.Run(context.Background(), []domain.Keyword{
		kw("how to configure automatic backup on windows 11", 800, 2.8, 0.5, domain.IntentInformational),
	}, Options{Niche: "technology", Locale: "en"})
	require.NoError(t, err)

	assert.Equal(t, "technology", res.Niche)
	assert.True(t, res.Detection.Hinted)
	require.Len(t, res.Accepted, 1)

	e := res.Accepted[0]
	assert.GreaterOrEqual(t, e.Composite, 0.7)
	assert.InDelta(t, 0.712597, e.Composite, 1e-6)
	assert.InDelta(t, 0.76, e.Significance, 1e-9)
	assert.InDelta(t, 0.856, e.Specificity, 1e-9)
	assert.InDelta(t, 0.40, e.Similarity, 1e-9)
	assert.InDelta(t, 0.817078, e.Confidence, 1e-6)
	assert.Equal(t, domain.BandHigh, e.ComplexityBand)
	assert.Equal(t, domain.QualityGood, e.CompositeBand)
	assert.Equal(t, "technology", e.Niche)
	assert.Equal(t, batchTime, e.ScoredAt)
	assert.Len(t, e.WeightsApplied, 4)

	v := res.Validations[0]
	assert.Equal(t, domain.StatusApproved, v.Status)
	assert.InDelta(t, 1.0, v.Score, 1e-9)
	assert.Len(t, v.PassedCriteria, 5)

	assert.Equal(t, 1, res.Report.Accepted)
	assert.Equal(t, 1, res.Report.CompositeBands[domain.QualityGood])
}

func TestRunDetectsEcommerceThreshold(t *testing.T) {
	o := newTestOrchestrator(t, Config{}, Deps{Logger: zerolog.Nop()})

	res, err := o.Run(context.Background(), []domain.Keyword{
		kw("best price gaming notebook 2024", 1200, 2.5, 0.7, domain.IntentTransactional),
	}, Options{Locale: "en"})
	require.NoError(t, err)

	assert.Equal(t, "ecommerce", res.Niche)
	assert.False(t, res.Detection.Hinted)
	assert.InDelta(t, 0.6, res.Detection.Score, 1e-9)

	require.Len(t, res.Validations, 1)
	v := res.Validations[0]
	assert.Equal(t, domain.StatusPending, v.Status)
	assert.InDelta(t, 0.55, v.Score, 1e-9)

	// The ecommerce acceptance bar, not the generic 0.70.
	comp := criterion(t, v, validate.CriterionComposite)
	assert.False(t, comp.Passed)
	assert.InDelta(t, 0.65, comp.Expected, 1e-9)
	assert.InDelta(t, 0.635205, comp.Actual, 1e-6)

	assert.Equal(t, 1, res.Report.Pending)
	assert.Empty(t, res.Accepted)
}

func TestRunEmptyBatch(t *testing.T) {
	o := newTestOrchestrator(t, Config{}, Deps{Logger: zerolog.Nop()})

	res, err := o.Run(context.Background(), nil, Options{})
	require.NoError(t, err)

	assert.Equal(t, BatchCompleted, res.Status)
	assert.Empty(t, res.Keywords)
	assert.Empty(t, res.Validations)
	assert.Empty(t, res.Accepted)

	require.NotNil(t, res.Report)
	assert.Equal(t, 0, res.Report.Input)
	assert.NotNil(t, res.Report.CompositeBands)
	assert.NotNil(t, res.Report.StageElapsedMs)
	assert.Len(t, res.Report.ActiveModules, 6)
}

func TestRunSkipsInvalidCandidates(t *testing.T) {
	o := newTestOrchestrator(t, Config{}, Deps{Logger: zerolog.Nop()})

	res, err := o.Run(context.Background(), []domain.Keyword{
		kw("", 100, 1.0, 0.5, domain.IntentInformational),
		kw("smart tv 50 polegadas", 500, 1.0, 1.5, domain.IntentInformational),
		kw("melhor notebook custo beneficio", 900, 1.2, 0.45, domain.IntentInformational),
	}, Options{})
	require.NoError(t, err)

	require.Len(t, res.Keywords, 3)
	require.Len(t, res.Validations, 3, "skipped candidates still get a verdict")

	assert.Equal(t, domain.StatusRejected, res.Validations[0].Status)
	assert.NotEmpty(t, res.Validations[0].FailureReasons)
	assert.Equal(t, domain.StatusRejected, res.Validations[1].Status)
	assert.Len(t, res.Validations[2].Criteria, 5, "the valid candidate runs the full gauntlet")

	report := res.Report
	assert.Equal(t, 3, report.Input)
	assert.Equal(t, 2, report.InvalidInput)
	assert.Equal(t, 3, report.Accepted+report.Pending+report.Rejected,
		"every input is accounted for exactly once")

	require.NotEmpty(t, res.Stages)
	assert.Equal(t, 1, res.Stages[0].InputSize, "stages only see the live candidate")
}

func TestRunParallelMatchesCascade(t *testing.T) {
	o := newTestOrchestrator(t, Config{}, Deps{Logger: zerolog.Nop()})

	kws := []domain.Keyword{
		kw("x", 10, 0.01, 0.99, domain.IntentInformational),
		kw("how to configure automatic backup on windows 11", 800, 2.8, 0.5, domain.IntentInformational),
		kw("best price gaming notebook 2024", 1200, 2.5, 0.7, domain.IntentTransactional),
		kw("curso online de programacao para iniciantes", 600, 1.8, 0.4, domain.IntentInformational),
		kw("como investir em acoes em 2026", 400, 3.2, 0.6, domain.IntentInformational),
	}

	cascade, err := o.Run(context.Background(), kws, Options{Locale: "en", Strategy: StrategyCascade})
	require.NoError(t, err)
	parallel, err := o.Run(context.Background(), kws, Options{Locale: "en", Strategy: StrategyParallel})
	require.NoError(t, err)

	assert.Equal(t, cascade.Niche, parallel.Niche)
	require.Len(t, parallel.Keywords, len(cascade.Keywords))
	require.Len(t, parallel.Validations, len(cascade.Validations))

	for i := range cascade.Keywords {
		assert.Equal(t, kws[i].Term, cascade.Keywords[i].Term, "cascade preserves input order")
		assert.Equal(t, kws[i].Term, parallel.Keywords[i].Term, "parallel preserves input order")
		assert.InDelta(t, cascade.Keywords[i].Composite, parallel.Keywords[i].Composite, 1e-12)
		assert.Equal(t, cascade.Keywords[i].CompositeBand, parallel.Keywords[i].CompositeBand)
		assert.Equal(t, cascade.Validations[i].Status, parallel.Validations[i].Status)
	}
}

func TestRunCascadeProgressOrder(t *testing.T) {
	o := newTestOrchestrator(t, Config{}, Deps{Logger: zerolog.Nop()})

	type call struct {
		stage          string
		current, total int
	}
	var calls []call
	_, err := o.Run(context.Background(), []domain.Keyword{
		kw("melhor notebook custo beneficio", 900, 1.2, 0.45, domain.IntentInformational),
	}, Options{Progress: func(stage string, current, total int) {
		calls = append(calls, call{stage, current, total})
	}})
	require.NoError(t, err)

	want := []string{StageSignificance, StageComplexity, StageCompetitive, StageTrend, StageComposite, StageValidation}
	require.Len(t, calls, len(want))
	for i, c := range calls {
		assert.Equal(t, want[i], c.stage)
		assert.Equal(t, i+1, c.current)
		assert.Equal(t, len(want), c.total)
	}
}

func TestRunParallelProgressMonotone(t *testing.T) {
	o := newTestOrchestrator(t, Config{}, Deps{Logger: zerolog.Nop()})

	var mu sync.Mutex
	var stages []string
	var currents []int
	_, err := o.Run(context.Background(), []domain.Keyword{
		kw("melhor notebook custo beneficio", 900, 1.2, 0.45, domain.IntentInformational),
	}, Options{Strategy: StrategyParallel, Progress: func(stage string, current, total int) {
		mu.Lock()
		stages = append(stages, stage)
		currents = append(currents, current)
		mu.Unlock()
		assert.Equal(t, 6, total)
	}})
	require.NoError(t, err)

	require.Len(t, stages, 6)
	for i, c := range currents {
		assert.Equal(t, i+1, c, "progress counts up without gaps")
	}
	assert.ElementsMatch(t, []string{StageSignificance, StageComplexity, StageCompetitive, StageTrend}, stages[:4],
		"fan stages finish in any order")
	assert.Equal(t, StageComposite, stages[4])
	assert.Equal(t, StageValidation, stages[5])
}

func TestRunAdaptiveStrategy(t *testing.T) {
	o := newTestOrchestrator(t, Config{Strategy: StrategyAdaptive, AdaptiveThreshold: 2}, Deps{Logger: zerolog.Nop()})

	small, err := o.Run(context.Background(), []domain.Keyword{
		kw("melhor notebook custo beneficio", 900, 1.2, 0.45, domain.IntentInformational),
	}, Options{})
	require.NoError(t, err)
	assert.Equal(t, StrategyCascade, small.Strategy)

	large, err := o.Run(context.Background(), []domain.Keyword{
		kw("melhor notebook custo beneficio", 900, 1.2, 0.45, domain.IntentInformational),
		kw("como investir em acoes em 2026", 400, 3.2, 0.6, domain.IntentInformational),
	}, Options{})
	require.NoError(t, err)
	assert.Equal(t, StrategyParallel, large.Strategy)
}

func TestRunCancelledContextReturnsPartial(t *testing.T) {
	o := newTestOrchestrator(t, Config{}, Deps{Logger: zerolog.Nop()})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := o.Run(ctx, []domain.Keyword{
		kw("melhor notebook custo beneficio", 900, 1.2, 0.45, domain.IntentInformational),
	}, Options{})
	require.NoError(t, err, "cancellation is not a batch failure")

	assert.Equal(t, BatchCancelled, res.Status)
	assert.Len(t, res.Keywords, 1)
	assert.Empty(t, res.Validations)
	assert.Empty(t, res.Accepted)
	require.Len(t, res.Stages, 1)
	assert.Equal(t, 0, res.Stages[0].OutputSize)
}

func TestRunCountsEmergingTrends(t *testing.T) {
	store := trend.NewStore(0)
	base := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		store.Append("ssd nvme upgrade guide", domain.TrendSample{
			Date:        base.AddDate(0, 0, i*3),
			Volume:      int64(100 + i*20),
			CPC:         1.0,
			Competition: 0.5,
		})
	}
	o := newTestOrchestrator(t, Config{Locale: "en"}, Deps{Trends: store, Logger: zerolog.Nop()})

	res, err := o.Run(context.Background(), []domain.Keyword{
		kw("ssd nvme upgrade guide", 260, 1.0, 0.5, domain.IntentInformational),
	}, Options{})
	require.NoError(t, err)

	require.Len(t, res.Keywords, 1)
	assert.Equal(t, domain.TrendEmerging, res.Keywords[0].TrendDirection)
	assert.GreaterOrEqual(t, res.Keywords[0].Trend, 0.7)
	assert.Equal(t, 1, res.Report.Emerging)
	assert.Equal(t, 0, res.Report.Trending)
}

func TestRunJournalsOutcomes(t *testing.T) {
	dir := t.TempDir()
	w, err := ledger.NewWriter(ledger.Config{Dir: dir}, zerolog.Nop())
	require.NoError(t, err)

	r, err := niche.NewResolver(nil, zerolog.Nop())
	require.NoError(t, err)
	o, err := New(Config{Locale: "en"}, Deps{Resolver: r, Journal: w, Logger: zerolog.Nop()})
	require.NoError(t, err)
	t.Cleanup(o.Close)

	res, err := o.Run(context.Background(), []domain.Keyword{
		kw("how to configure automatic backup on windows 11", 800, 2.8, 0.5, domain.IntentInformational),
	}, Options{Niche: "technology"})
	require.NoError(t, err)
	assert.Equal(t, BatchCompleted, res.Status)
	require.NoError(t, w.Close())

	now := time.Now().UTC()
	rr, err := ledger.NewReader(dir, zerolog.Nop()).Read(ledger.Query{
		From: now.Add(-time.Hour),
		To:   now.Add(time.Hour),
	})
	require.NoError(t, err)
	require.NotEmpty(t, rr.Records)

	kinds := make(map[ledger.Kind]int)
	var accepted *ledger.Record
	for i, rec := range rr.Records {
		kinds[rec.Kind]++
		if rec.Kind == ledger.KindAcceptance {
			accepted = &rr.Records[i]
		}
	}
	assert.GreaterOrEqual(t, kinds[ledger.KindProcessing], 1)
	assert.GreaterOrEqual(t, kinds[ledger.KindPerformance], 1)

	require.NotNil(t, accepted, "approved keyword journals an acceptance event")
	assert.Equal(t, "how to configure automatic backup on windows 11", accepted.Keyword)
	assert.Equal(t, string(domain.StatusApproved), accepted.Outcome)

	params, ok := accepted.Payload["params"].(map[string]interface{})
	require.True(t, ok, "outcome rows carry the active parameter vector")
	assert.NotEmpty(t, params)
	assert.InDelta(t, 1.0, accepted.Payload["performance"].(float64), 1e-9)
	assert.InDelta(t, 0.712597, accepted.Payload["composite"].(float64), 1e-6)
}

func TestRunUnknownLocaleFallsBack(t *testing.T) {
	o := newTestOrchestrator(t, Config{}, Deps{Logger: zerolog.Nop()})

	res, err := o.Run(context.Background(), []domain.Keyword{
		kw("x", 10, 0.01, 0.99, domain.IntentInformational),
	}, Options{Locale: "de"})
	require.NoError(t, err)
	assert.Equal(t, BatchCompleted, res.Status)
	require.Len(t, res.Validations, 1)
	assert.Equal(t, domain.StatusRejected, res.Validations[0].Status)
}

func TestParseStrategy(t *testing.T) {
	for _, valid := range []string{"cascade", "parallel", "adaptive"} {
		s, err := ParseStrategy(valid)
		require.NoError(t, err)
		assert.True(t, s.Valid())
	}

	_, err := ParseStrategy("turbo")
	require.Error(t, err)
	assert.Equal(t, "input/unknown_strategy", domain.CodeOf(err))
}
