package niche

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/seoscope/keywordrun/internal/domain"
)

// watchDebounce coalesces the event bursts editors and atomic renames
// produce into one reload per file.
const watchDebounce = 200 * time.Millisecond

// Watcher feeds edited snapshot files back into the resolver. Each
// settled change to <dir>/<niche>.json is loaded, validated and swapped
// in via Replace; invalid edits are logged and the previous config
// stays active.
type Watcher struct {
	store    *SnapshotStore
	resolver *Resolver
	fs       *fsnotify.Watcher
	log      zerolog.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer

	done chan struct{}
	once sync.Once
}

// NewWatcher starts watching the store's directory, creating it first
// when absent. Close releases the watch.
func NewWatcher(store *SnapshotStore, resolver *Resolver, logger zerolog.Logger) (*Watcher, error) {
	if err := os.MkdirAll(store.Dir(), 0o755); err != nil {
		return nil, domain.WrapPersistenceError("persistence/create_snapshot_dir", "creating snapshot directory", err)
	}

	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, domain.WrapConfigError("config/watch_snapshots", "creating snapshot watcher", err)
	}
	if err := fs.Add(store.Dir()); err != nil {
		fs.Close()
		return nil, domain.WrapConfigError("config/watch_snapshots", "watching snapshot directory", err)
	}

	w := &Watcher{
		store:    store,
		resolver: resolver,
		fs:       fs,
		log:      logger.With().Str("component", "niche_watcher").Logger(),
		pending:  make(map[string]*time.Timer),
		done:     make(chan struct{}),
	}
	go w.run()

	w.log.Info().Str("dir", store.Dir()).Msg("watching niche snapshots")
	return w, nil
}

// Close stops the watcher. Reloads already debouncing may still fire.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		err = w.fs.Close()
	})
	return err
}

func (w *Watcher) run() {
	for {
		select {
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(ev.Name, ".json") {
				continue
			}
			if ev.Op.Has(fsnotify.Write) || ev.Op.Has(fsnotify.Create) || ev.Op.Has(fsnotify.Rename) {
				w.schedule(ev.Name)
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.log.Warn().Err(err).Msg("snapshot watcher error")
		case <-w.done:
			return
		}
	}
}

// schedule arms or resets the per-file debounce timer.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.pending[path]; ok {
		t.Reset(watchDebounce)
		return
	}
	w.pending[path] = time.AfterFunc(watchDebounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		w.reload(path)
	})
}

func (w *Watcher) reload(path string) {
	select {
	case <-w.done:
		return
	default:
	}

	cfg, err := w.store.LoadFile(path)
	if err != nil {
		w.log.Warn().Err(err).Str("file", filepath.Base(path)).Msg("ignoring invalid snapshot edit")
		return
	}
	if err := w.resolver.Replace(cfg); err != nil {
		w.log.Warn().Err(err).Str("niche", cfg.Niche).Msg("snapshot rejected by resolver")
		return
	}
	w.log.Info().Str("niche", cfg.Niche).Uint64("revision", w.resolver.Revision(cfg.Niche)).Msg("niche snapshot reloaded")
}
