package source

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seoscope/keywordrun/internal/domain"
)

func sampleKeywords() []domain.Keyword {
	return []domain.Keyword{
		{Term: "best trail running shoes for beginners", Volume: 720, CPC: 1.4, Competition: 0.31, Intent: domain.IntentTransactional},
		{Term: "how to waterproof hiking boots", Volume: 480, CPC: 0.6, Competition: 0.22, Intent: domain.IntentInformational},
		{Term: "trail runners vs hiking shoes", Volume: 960, CPC: 0.9, Competition: 0.35, Intent: domain.IntentInvestigative},
	}
}

func TestStaticFetchCapsAtLimit(t *testing.T) {
	src := NewStatic("fixture", sampleKeywords())

	got, err := src.Fetch(context.Background(), "ecommerce", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "best trail running shoes for beginners", got[0].Term)

	all, err := src.Fetch(context.Background(), "ecommerce", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3, "a non-positive limit returns everything")
}

func TestStaticFetchReturnsCopies(t *testing.T) {
	src := NewStatic("fixture", sampleKeywords())

	got, err := src.Fetch(context.Background(), "", 0)
	require.NoError(t, err)
	got[0].Term = "mutated"

	again, err := src.Fetch(context.Background(), "", 0)
	require.NoError(t, err)
	assert.Equal(t, "best trail running shoes for beginners", again[0].Term)
}

func TestStaticFetchHonorsCancellation(t *testing.T) {
	src := NewStatic("fixture", sampleKeywords())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := src.Fetch(ctx, "", 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFromFileArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "candidates.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
  {"term": "best budget standing desk", "volume": 590, "cpc": 2.1, "competition": 0.4, "intent": "transactional"},
  {"term": "standing desk height guide", "volume": 310, "cpc": 0.5, "competition": 0.18, "intent": "informational"}
]`), 0o644))

	src, err := FromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, src.Len())

	got, err := src.Fetch(context.Background(), "", 0)
	require.NoError(t, err)
	assert.Equal(t, "best budget standing desk", got[0].Term)
	assert.Equal(t, int64(590), got[0].Volume)
	assert.Equal(t, domain.IntentInformational, got[1].Intent)
}

func TestFromFileLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "candidates.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(
		`{"term": "best budget standing desk", "volume": 590, "cpc": 2.1, "competition": 0.4, "intent": "transactional"}

{"term": "standing desk height guide", "volume": 310, "cpc": 0.5, "competition": 0.18, "intent": "informational"}
`), 0o644))

	src, err := FromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, src.Len(), "blank lines are skipped")
}

func TestFromFileMissing(t *testing.T) {
	_, err := FromFile(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
	assert.Equal(t, "input/read_candidates", domain.CodeOf(err))
}

func TestFromFileBadLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "candidates.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(
		"{\"term\": \"fine\", \"volume\": 10}\n{broken"), 0o644))

	_, err := FromFile(path)
	require.Error(t, err)
	assert.Equal(t, "input/parse_candidates", domain.CodeOf(err))
	assert.Contains(t, err.Error(), "line 2")
}

type flakySource struct {
	calls int
	err   error
	out   []domain.Keyword
}

func (f *flakySource) Name() string { return "flaky" }

func (f *flakySource) Fetch(ctx context.Context, niche string, limit int) ([]domain.Keyword, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.out, nil
}

func TestResilientPassesThrough(t *testing.T) {
	inner := &flakySource{out: sampleKeywords()}
	guard := NewResilient(inner, DefaultGuardConfig(), zerolog.Nop())

	got, err := guard.Fetch(context.Background(), "ecommerce", 0)
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Equal(t, "flaky", guard.Name())

	status := guard.Status()
	assert.Equal(t, "closed", status.State)
	assert.Equal(t, uint32(1), status.Requests)
	assert.Zero(t, status.Failures)
}

func TestResilientKeepsCollectorErrors(t *testing.T) {
	sentinel := errors.New("quota exhausted")
	inner := &flakySource{err: sentinel}
	guard := NewResilient(inner, DefaultGuardConfig(), zerolog.Nop())

	_, err := guard.Fetch(context.Background(), "ecommerce", 0)
	assert.ErrorIs(t, err, sentinel, "collector errors pass through unwrapped")
}

func TestResilientTripsAfterConsecutiveFailures(t *testing.T) {
	cfg := DefaultGuardConfig()
	cfg.ConsecutiveFailures = 2
	inner := &flakySource{err: errors.New("upstream 500")}
	guard := NewResilient(inner, cfg, zerolog.Nop())

	ctx := context.Background()
	_, err := guard.Fetch(ctx, "ecommerce", 0)
	require.Error(t, err)
	_, err = guard.Fetch(ctx, "ecommerce", 0)
	require.Error(t, err)

	_, err = guard.Fetch(ctx, "ecommerce", 0)
	require.Error(t, err)
	assert.Equal(t, "stage/source_open", domain.CodeOf(err))
	assert.Equal(t, 2, inner.calls, "an open breaker never reaches the collector")
	assert.Equal(t, "open", guard.Status().State)
}

func TestResilientThrottleRespectsContext(t *testing.T) {
	cfg := DefaultGuardConfig()
	cfg.RPS = 1
	cfg.Burst = 1
	inner := &flakySource{out: sampleKeywords()}
	guard := NewResilient(inner, cfg, zerolog.Nop())

	_, err := guard.Fetch(context.Background(), "ecommerce", 0)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = guard.Fetch(ctx, "ecommerce", 0)
	require.Error(t, err)
	assert.Equal(t, "stage/source_throttled", domain.CodeOf(err))
	assert.Equal(t, 1, inner.calls)
}
