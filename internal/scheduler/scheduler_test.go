package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seoscope/keywordrun/internal/domain"
	"github.com/seoscope/keywordrun/internal/ledger"
	"github.com/seoscope/keywordrun/internal/niche"
	"github.com/seoscope/keywordrun/internal/optimize"
)

type countingRunner struct {
	calls int32
	res   *optimize.CycleResult
	err   error
}

func (c *countingRunner) RunCycle(ctx context.Context) (*optimize.CycleResult, error) {
	atomic.AddInt32(&c.calls, 1)
	return c.res, c.err
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "schedule.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

const baseConfig = `
global:
  tick_seconds: 1
jobs:
  - name: nightly-tune
    schedule: 6h
    type: optimize.cycle
    description: nightly parameter tuning
    enabled: true
  - name: journal-sweep
    schedule: 24h
    type: ledger.cleanup
    enabled: false
`

func TestNewSchedulerParsesJobs(t *testing.T) {
	s, err := NewScheduler(writeConfig(t, baseConfig), Runners{}, zerolog.Nop())
	require.NoError(t, err)

	jobs := s.ListJobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, "nightly-tune", jobs[0].Name)
	assert.Equal(t, TypeOptimizeCycle, jobs[0].Type)
	assert.True(t, jobs[0].Enabled)
	assert.False(t, jobs[1].Enabled)

	st := s.Status()
	assert.False(t, st.Running)
	assert.Equal(t, 1, st.EnabledJobs)
	assert.Equal(t, 1, st.DisabledJobs)
	assert.Zero(t, st.Uptime)
	assert.True(t, st.NextRun.IsZero(), "next run is only known while running")
}

func TestNewSchedulerRejects(t *testing.T) {
	cases := []struct {
		name string
		body string
		code string
	}{
		{"malformed yaml", "jobs: [", "config/parse_schedule"},
		{"missing name", "jobs:\n  - schedule: 1h\n    type: optimize.cycle\n", "config/missing_job_name"},
		{"duplicate name", "jobs:\n  - name: a\n    schedule: 1h\n    type: optimize.cycle\n  - name: a\n    schedule: 2h\n    type: ledger.cleanup\n", "config/duplicate_job"},
		{"unknown type", "jobs:\n  - name: a\n    schedule: 1h\n    type: scan.hot\n", "config/unknown_job_type"},
		{"cron schedule", "jobs:\n  - name: a\n    schedule: '*/15 * * * *'\n    type: optimize.cycle\n", "config/bad_schedule"},
		{"zero schedule", "jobs:\n  - name: a\n    schedule: 0s\n    type: optimize.cycle\n", "config/bad_schedule"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewScheduler(writeConfig(t, tc.body), Runners{}, zerolog.Nop())
			require.Error(t, err)
			assert.Equal(t, tc.code, domain.CodeOf(err))
		})
	}

	t.Run("missing file", func(t *testing.T) {
		_, err := NewScheduler(filepath.Join(t.TempDir(), "nope.yaml"), Runners{}, zerolog.Nop())
		require.Error(t, err)
		assert.Equal(t, "config/read_schedule", domain.CodeOf(err))
	})
}

func TestRunJobUnknown(t *testing.T) {
	s, err := NewScheduler(writeConfig(t, baseConfig), Runners{}, zerolog.Nop())
	require.NoError(t, err)

	_, err = s.RunJob(context.Background(), "weekly-audit", false)
	require.Error(t, err)
	assert.Equal(t, "input/unknown_job", domain.CodeOf(err))
}

func TestRunOptimizeCycle(t *testing.T) {
	runner := &countingRunner{res: &optimize.CycleResult{Status: optimize.StatusApplied, Delta: 0.021}}
	s, err := NewScheduler(writeConfig(t, baseConfig), Runners{Optimizer: runner}, zerolog.Nop())
	require.NoError(t, err)

	res, err := s.RunJob(context.Background(), "nightly-tune", false)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Contains(t, res.Detail, "applied")
	assert.Contains(t, res.Detail, "+0.0210")
	assert.Equal(t, int32(1), atomic.LoadInt32(&runner.calls))
}

func TestRunOptimizeCycleFailure(t *testing.T) {
	runner := &countingRunner{err: domain.NewOptimizerError("optimizer/no_history", "no measured adjustments yet")}
	s, err := NewScheduler(writeConfig(t, baseConfig), Runners{Optimizer: runner}, zerolog.Nop())
	require.NoError(t, err)

	res, err := s.RunJob(context.Background(), "nightly-tune", false)
	require.NoError(t, err, "execution failures belong in the result")
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "no measured adjustments")
}

func TestRunOptimizeCycleWithoutRunner(t *testing.T) {
	s, err := NewScheduler(writeConfig(t, baseConfig), Runners{}, zerolog.Nop())
	require.NoError(t, err)

	res, err := s.RunJob(context.Background(), "nightly-tune", false)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "optimizer")
}

func TestRunLedgerCleanup(t *testing.T) {
	dir := t.TempDir()
	writer, err := ledger.NewWriter(ledger.Config{Dir: dir}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { writer.Close() })

	stale := filepath.Join(dir, "2020-01-01.jsonl")
	require.NoError(t, os.WriteFile(stale, []byte("{}\n"), 0o644))

	cfg := `
jobs:
  - name: journal-sweep
    schedule: 24h
    type: ledger.cleanup
    enabled: true
`
	s, err := NewScheduler(writeConfig(t, cfg), Runners{Journal: writer}, zerolog.Nop())
	require.NoError(t, err)

	dry, err := s.RunJob(context.Background(), "journal-sweep", true)
	require.NoError(t, err)
	assert.True(t, dry.Success)
	assert.True(t, dry.DryRun)
	assert.Contains(t, dry.Detail, "would remove")
	assert.FileExists(t, stale, "a dry run must not delete anything")

	res, err := s.RunJob(context.Background(), "journal-sweep", false)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Contains(t, res.Detail, "removed 1 day files")
	assert.NoFileExists(t, stale)
}

func TestRunNicheReload(t *testing.T) {
	resolver, err := niche.NewResolver(nil, zerolog.Nop())
	require.NoError(t, err)

	catalogPath := filepath.Join(t.TempDir(), "niches.yaml")
	require.NoError(t, os.WriteFile(catalogPath, []byte("niches:\n  technology:\n    accept_threshold: 0.8\n"), 0o644))

	cfg := `
jobs:
  - name: catalog-reload
    schedule: 1h
    type: niche.reload
    enabled: true
    config:
      catalog: ` + catalogPath + `
`
	s, err := NewScheduler(writeConfig(t, cfg), Runners{Resolver: resolver}, zerolog.Nop())
	require.NoError(t, err)

	dry, err := s.RunJob(context.Background(), "catalog-reload", true)
	require.NoError(t, err)
	assert.True(t, dry.Success)
	assert.Contains(t, dry.Detail, "catalog parses")
	assert.Zero(t, resolver.Revision("technology"), "a dry run must not swap configs")

	res, err := s.RunJob(context.Background(), "catalog-reload", false)
	require.NoError(t, err)
	assert.True(t, res.Success, res.Error)
	assert.Contains(t, res.Detail, "niche configs")
	assert.Equal(t, uint64(1), resolver.Revision("technology"))
}

func TestRunNicheReloadWithoutCatalog(t *testing.T) {
	resolver, err := niche.NewResolver(nil, zerolog.Nop())
	require.NoError(t, err)

	cfg := `
jobs:
  - name: catalog-reload
    schedule: 1h
    type: niche.reload
    enabled: true
`
	s, err := NewScheduler(writeConfig(t, cfg), Runners{Resolver: resolver}, zerolog.Nop())
	require.NoError(t, err)

	res, err := s.RunJob(context.Background(), "catalog-reload", false)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "catalog path")
}

func TestRunJobRecordsHistory(t *testing.T) {
	runner := &countingRunner{res: &optimize.CycleResult{Status: optimize.StatusSkippedNotNeeded}}
	s, err := NewScheduler(writeConfig(t, baseConfig), Runners{Optimizer: runner}, zerolog.Nop())
	require.NoError(t, err)

	_, err = s.RunJob(context.Background(), "nightly-tune", true)
	require.NoError(t, err)
	_, err = s.RunJob(context.Background(), "nightly-tune", false)
	require.NoError(t, err)

	results := s.Results()
	require.Len(t, results, 2)
	assert.True(t, results[0].DryRun)
	assert.False(t, results[1].DryRun)
	assert.Contains(t, results[1].Detail, "skipped_not_needed")
	assert.GreaterOrEqual(t, results[1].ElapsedMs, 0.0)

	st := s.Status()
	assert.False(t, st.LastRun.IsZero(), "a real run records the last-run time")
}

func TestStartRunsDueJobs(t *testing.T) {
	runner := &countingRunner{res: &optimize.CycleResult{Status: optimize.StatusSkippedNotNeeded}}

	cfg := `
global:
  tick_seconds: 1
jobs:
  - name: fast-tune
    schedule: 1ms
    type: optimize.cycle
    enabled: true
`
	s, err := NewScheduler(writeConfig(t, cfg), Runners{Optimizer: runner}, zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Start(ctx) }()

	require.Eventually(t, func() bool {
		return s.Status().Running
	}, 2*time.Second, 10*time.Millisecond)

	assert.False(t, s.Status().NextRun.IsZero())

	err = s.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, "input/already_running", domain.CodeOf(err))

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&runner.calls) >= 1
	}, 3*time.Second, 50*time.Millisecond, "the due job runs on the first tick")

	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)
	assert.False(t, s.Status().Running)
}
