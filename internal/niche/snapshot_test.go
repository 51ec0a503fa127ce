package niche

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seoscope/keywordrun/internal/domain"
)

func newTestStore(t *testing.T) *SnapshotStore {
	t.Helper()
	return NewSnapshotStore(filepath.Join(t.TempDir(), "niches"), zerolog.Nop())
}

func TestSnapshotRoundTrip(t *testing.T) {
	store := newTestStore(t)

	cfg := DefaultCatalog()["technology"]
	cfg.AcceptThreshold = 0.72

	require.NoError(t, store.Save(cfg))

	_, err := os.Stat(store.Path("technology"))
	require.NoError(t, err)

	catalog, err := store.Load()
	require.NoError(t, err)
	require.Contains(t, catalog, "technology")

	got := catalog["technology"]
	assert.InDelta(t, 0.72, got.AcceptThreshold, 1e-9)
	assert.Equal(t, cfg.PositiveTerms, got.PositiveTerms)
	assert.Equal(t, 15*time.Minute, got.CacheTTL)
}

func TestSnapshotSaveAll(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.SaveAll(DefaultCatalog()))

	catalog, err := store.Load()
	require.NoError(t, err)
	assert.Len(t, catalog, 6)
	assert.Contains(t, catalog, Generic)
}

func TestSnapshotLoadMissingDir(t *testing.T) {
	store := NewSnapshotStore(filepath.Join(t.TempDir(), "absent"), zerolog.Nop())

	catalog, err := store.Load()
	require.NoError(t, err, "a missing snapshot directory is an empty catalog")
	assert.Empty(t, catalog)
}

func TestSnapshotLoadSkipsCorrupt(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Save(DefaultCatalog()["finance"]))
	require.NoError(t, os.WriteFile(filepath.Join(store.Dir(), "broken.json"), []byte("{not json"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(store.Dir(), "notes.txt"), []byte("ignored"), 0o644))

	catalog, err := store.Load()
	require.NoError(t, err, "one corrupt snapshot must not block the rest")
	assert.Len(t, catalog, 1)
	assert.Contains(t, catalog, "finance")
}

func TestSnapshotSaveRejectsInvalid(t *testing.T) {
	store := newTestStore(t)

	cfg := DefaultCatalog()[Generic]
	cfg.MinWords = 0
	err := store.Save(cfg)
	require.Error(t, err)
	assert.Equal(t, "config/word_bounds", domain.CodeOf(err))

	require.Error(t, store.Save(nil))
}

func TestSnapshotLoadFileValidates(t *testing.T) {
	store := newTestStore(t)

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"niche":"x","min_words":0,"max_words":5}`), 0o644))

	_, err := store.LoadFile(path)
	require.Error(t, err)
	assert.Equal(t, "config/word_bounds", domain.CodeOf(err))
}
