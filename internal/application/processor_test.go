package application

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seoscope/keywordrun/internal/cache"
	"github.com/seoscope/keywordrun/internal/domain"
	"github.com/seoscope/keywordrun/internal/niche"
	"github.com/seoscope/keywordrun/internal/persistence"
	"github.com/seoscope/keywordrun/internal/pipeline"
	"github.com/seoscope/keywordrun/internal/source"
)

func kw(term string, volume int64, cpc, competition float64, intent domain.Intent) domain.Keyword {
	return domain.Keyword{Term: term, Volume: volume, CPC: cpc, Competition: competition, Intent: intent}
}

var (
	techKw = kw("how to configure automatic backup on windows 11", 800, 2.8, 0.5, domain.IntentInformational)
	lowKw  = kw("x", 10, 0.01, 0.99, domain.IntentInformational)
	lowKw2 = kw("y", 5, 0.01, 0.9, domain.IntentInformational)

	techOpts = Options{Niche: "technology", Locale: "en"}
)

func newTestProcessor(t *testing.T, mut func(*ProcessorDeps)) (*Processor, *niche.Resolver) {
	t.Helper()
	resolver, err := niche.NewResolver(nil, zerolog.Nop())
	require.NoError(t, err)

	orch, err := pipeline.New(pipeline.Config{Locale: "en"}, pipeline.Deps{Resolver: resolver, Logger: zerolog.Nop()})
	require.NoError(t, err)
	t.Cleanup(orch.Close)

	deps := ProcessorDeps{Resolver: resolver, Pipeline: orch, Logger: zerolog.Nop()}
	if mut != nil {
		mut(&deps)
	}
	p, err := NewProcessor(deps)
	require.NoError(t, err)
	return p, resolver
}

func TestNewProcessorRequiresDeps(t *testing.T) {
	_, err := NewProcessor(ProcessorDeps{})
	require.Error(t, err)
	assert.Equal(t, "config/missing_resolver", domain.CodeOf(err))

	resolver, err := niche.NewResolver(nil, zerolog.Nop())
	require.NoError(t, err)
	_, err = NewProcessor(ProcessorDeps{Resolver: resolver})
	require.Error(t, err)
	assert.Equal(t, "config/missing_pipeline", domain.CodeOf(err))
}

func TestProcessWithoutCache(t *testing.T) {
	p, _ := newTestProcessor(t, nil)

	res, err := p.Process(context.Background(), []domain.Keyword{techKw, lowKw}, techOpts)
	require.NoError(t, err)

	assert.Equal(t, pipeline.BatchCompleted, res.Status)
	assert.Equal(t, "technology", res.Niche)
	require.Len(t, res.Keywords, 2)
	require.Len(t, res.Validations, 2)
	assert.Equal(t, domain.StatusApproved, res.Validations[0].Status)
	assert.Equal(t, domain.StatusRejected, res.Validations[1].Status)
	require.Len(t, res.Accepted, 1)
	assert.Equal(t, 2, res.Report.Input)
}

func TestProcessRejectsBadStrategy(t *testing.T) {
	p, _ := newTestProcessor(t, nil)

	_, err := p.Process(context.Background(), []domain.Keyword{techKw}, Options{Strategy: "warp"})
	require.Error(t, err)
	assert.Equal(t, "input/unknown_strategy", domain.CodeOf(err))
}

func TestProcessServesRepeatsFromCache(t *testing.T) {
	c := cache.NewMemory(cache.DefaultConfig(), zerolog.Nop())
	p, _ := newTestProcessor(t, func(d *ProcessorDeps) { d.Cache = c })
	ctx := context.Background()

	first, err := p.Process(ctx, []domain.Keyword{techKw}, techOpts)
	require.NoError(t, err)
	require.Len(t, first.Accepted, 1)

	second, err := p.Process(ctx, []domain.Keyword{techKw}, techOpts)
	require.NoError(t, err)

	assert.Equal(t, pipeline.BatchCompleted, second.Status)
	assert.Equal(t, "technology", second.Niche)
	assert.True(t, second.Detection.Hinted)
	require.Len(t, second.Keywords, 1)
	require.Len(t, second.Validations, 1)
	assert.Equal(t, domain.StatusApproved, second.Validations[0].Status)
	require.Len(t, second.Accepted, 1)
	assert.Equal(t, first.Keywords[0].Composite, second.Keywords[0].Composite)
	assert.Equal(t, 1, second.Report.Accepted)

	stats := c.Stats(ctx)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Sets)
}

func TestProcessMergeKeepsInputOrder(t *testing.T) {
	c := cache.NewMemory(cache.DefaultConfig(), zerolog.Nop())
	p, _ := newTestProcessor(t, func(d *ProcessorDeps) { d.Cache = c })
	ctx := context.Background()

	_, err := p.Process(ctx, []domain.Keyword{techKw}, techOpts)
	require.NoError(t, err)

	res, err := p.Process(ctx, []domain.Keyword{lowKw, techKw, lowKw2}, techOpts)
	require.NoError(t, err)

	require.Len(t, res.Keywords, 3)
	assert.Equal(t, "x", res.Keywords[0].Term)
	assert.Equal(t, techKw.Term, res.Keywords[1].Term)
	assert.Equal(t, "y", res.Keywords[2].Term)

	require.Len(t, res.Validations, 3)
	assert.Equal(t, domain.StatusRejected, res.Validations[0].Status)
	assert.Equal(t, domain.StatusApproved, res.Validations[1].Status)
	assert.Equal(t, domain.StatusRejected, res.Validations[2].Status)

	require.Len(t, res.Accepted, 1)
	assert.Equal(t, techKw.Term, res.Accepted[0].Term)

	assert.Equal(t, 3, res.Report.Input)
	assert.Equal(t, 1, res.Report.Accepted)
	assert.Equal(t, 2, res.Report.Rejected)

	assert.Equal(t, int64(1), c.Stats(ctx).Hits, "only the repeat candidate hits")
}

func TestProcessRevisionBumpBypassesCache(t *testing.T) {
	c := cache.NewMemory(cache.DefaultConfig(), zerolog.Nop())
	p, resolver := newTestProcessor(t, func(d *ProcessorDeps) { d.Cache = c })
	ctx := context.Background()

	first, err := p.Process(ctx, []domain.Keyword{techKw}, techOpts)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, first.Validations[0].Status)

	_, err = resolver.SetParameters("technology", map[string]float64{niche.ParamAcceptThreshold: 0.75})
	require.NoError(t, err)

	second, err := p.Process(ctx, []domain.Keyword{techKw}, techOpts)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, second.Validations[0].Status,
		"the tightened threshold applies because the old revision's entry is unreachable")

	stats := c.Stats(ctx)
	assert.Zero(t, stats.Hits)
	assert.Equal(t, int64(2), stats.Misses)
	assert.Equal(t, int64(2), stats.Sets)
}

type captureOutcomes struct {
	batches [][]persistence.KeywordOutcome
}

func (c *captureOutcomes) Insert(ctx context.Context, outcome persistence.KeywordOutcome) error {
	c.batches = append(c.batches, []persistence.KeywordOutcome{outcome})
	return nil
}

func (c *captureOutcomes) InsertBatch(ctx context.Context, outcomes []persistence.KeywordOutcome) error {
	c.batches = append(c.batches, outcomes)
	return nil
}

func (c *captureOutcomes) ListByNiche(ctx context.Context, niche string, tr persistence.TimeRange, limit int) ([]persistence.KeywordOutcome, error) {
	return nil, nil
}

func (c *captureOutcomes) ListByStatus(ctx context.Context, status string, tr persistence.TimeRange, limit int) ([]persistence.KeywordOutcome, error) {
	return nil, nil
}

func (c *captureOutcomes) GetByTracingID(ctx context.Context, tracingID string) (*persistence.KeywordOutcome, error) {
	return nil, nil
}

func (c *captureOutcomes) Latest(ctx context.Context, limit int) ([]persistence.KeywordOutcome, error) {
	return nil, nil
}

func (c *captureOutcomes) Count(ctx context.Context, tr persistence.TimeRange) (int64, error) {
	return 0, nil
}

func (c *captureOutcomes) CountByStatus(ctx context.Context, tr persistence.TimeRange) (map[string]int64, error) {
	return nil, nil
}

func TestProcessMirrorsOutcomes(t *testing.T) {
	store := &captureOutcomes{}
	p, _ := newTestProcessor(t, func(d *ProcessorDeps) { d.Outcomes = store })

	res, err := p.Process(context.Background(), []domain.Keyword{techKw, lowKw}, techOpts)
	require.NoError(t, err)
	require.Len(t, res.Validations, 2)

	require.Len(t, store.batches, 1)
	rows := store.batches[0]
	require.Len(t, rows, 2)

	assert.Equal(t, techKw.Term, rows[0].Term)
	assert.Equal(t, string(domain.StatusApproved), rows[0].Status)
	assert.Equal(t, "technology", rows[0].Niche)
	assert.InDelta(t, res.Keywords[0].Composite, rows[0].Composite, 1e-9)
	assert.Len(t, rows[0].Params, len(niche.ParameterKeys()))

	assert.Equal(t, "x", rows[1].Term)
	assert.Equal(t, string(domain.StatusRejected), rows[1].Status)
}

func TestProcessEmitsArtifacts(t *testing.T) {
	dir := t.TempDir()
	p, _ := newTestProcessor(t, func(d *ProcessorDeps) { d.ArtifactDir = dir })

	opts := techOpts
	opts.EmitReport = true
	res, err := p.Process(context.Background(), []domain.Keyword{techKw, lowKw}, opts)
	require.NoError(t, err)

	file, err := os.Open(filepath.Join(dir, "latest_accepted.jsonl"))
	require.NoError(t, err)
	defer file.Close()

	var lines int
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var e domain.EnrichedKeyword
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &e))
		assert.Equal(t, techKw.Term, e.Term)
		lines++
	}
	require.NoError(t, scanner.Err())
	assert.Equal(t, len(res.Accepted), lines)

	raw, err := os.ReadFile(filepath.Join(dir, "latest_report.json"))
	require.NoError(t, err)
	var report pipeline.Report
	require.NoError(t, json.Unmarshal(raw, &report))
	assert.Equal(t, pipeline.Version, report.Version)
	assert.Equal(t, res.TracingID, report.TracingID)
}

func TestProcessSource(t *testing.T) {
	p, _ := newTestProcessor(t, nil)
	src := source.NewStatic("fixture", []domain.Keyword{techKw, lowKw})

	res, err := p.ProcessSource(context.Background(), src, "technology", 1, Options{Locale: "en"})
	require.NoError(t, err)

	assert.Equal(t, "technology", res.Niche, "the fetch tag doubles as the niche hint")
	require.Len(t, res.Keywords, 1, "the fetch honors the limit")
	require.Len(t, res.Accepted, 1)
}
