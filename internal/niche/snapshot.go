package niche

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/seoscope/keywordrun/internal/domain"
)

// SnapshotStore persists niche configs as one JSON document per niche,
// <dir>/<niche>.json. Snapshots are the durable form of runtime
// adjustments: the resolver starts from them on the next boot and the
// watcher reloads them when edited in place.
type SnapshotStore struct {
	dir string
	log zerolog.Logger
}

// NewSnapshotStore creates a store rooted at dir. The directory is
// created lazily on the first save.
func NewSnapshotStore(dir string, logger zerolog.Logger) *SnapshotStore {
	return &SnapshotStore{
		dir: dir,
		log: logger.With().Str("component", "niche_snapshots").Logger(),
	}
}

// Dir returns the snapshot directory.
func (s *SnapshotStore) Dir() string { return s.dir }

// Path returns the snapshot file for a niche.
func (s *SnapshotStore) Path(niche string) string {
	return filepath.Join(s.dir, niche+".json")
}

// Save writes one niche's snapshot. The write goes through a temp file
// and a rename so the directory watcher never sees a half-written file.
func (s *SnapshotStore) Save(cfg *Config) error {
	if cfg == nil {
		return domain.NewConfigError("config/nil_config", "nil niche config")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return domain.WrapPersistenceError("persistence/create_snapshot_dir", "creating snapshot directory", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return domain.WrapPersistenceError("persistence/encode_snapshot", "encoding niche snapshot", err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(s.dir, cfg.Niche+".tmp-*")
	if err != nil {
		return domain.WrapPersistenceError("persistence/write_snapshot", "creating snapshot temp file", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return domain.WrapPersistenceError("persistence/write_snapshot", "writing snapshot temp file", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return domain.WrapPersistenceError("persistence/write_snapshot", "closing snapshot temp file", err)
	}
	if err := os.Rename(tmp.Name(), s.Path(cfg.Niche)); err != nil {
		os.Remove(tmp.Name())
		return domain.WrapPersistenceError("persistence/write_snapshot", "renaming snapshot into place", err)
	}

	s.log.Debug().Str("niche", cfg.Niche).Msg("niche snapshot saved")
	return nil
}

// SaveAll writes a snapshot for every niche in the catalog.
func (s *SnapshotStore) SaveAll(catalog map[string]*Config) error {
	tags := make([]string, 0, len(catalog))
	for tag := range catalog {
		tags = append(tags, tag)
	}
	sort.Strings(tags)

	for _, tag := range tags {
		if err := s.Save(catalog[tag]); err != nil {
			return err
		}
	}
	return nil
}

// Load reads every snapshot in the directory. A missing directory is an
// empty catalog, not an error; individual unreadable files are skipped
// with a warning so one corrupt snapshot cannot block startup.
func (s *SnapshotStore) Load() (map[string]*Config, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]*Config{}, nil
		}
		return nil, domain.WrapPersistenceError("persistence/read_snapshot_dir", "listing snapshot directory", err)
	}

	catalog := make(map[string]*Config)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		cfg, err := s.LoadFile(path)
		if err != nil {
			s.log.Warn().Err(err).Str("file", entry.Name()).Msg("skipping unreadable niche snapshot")
			continue
		}
		if want := strings.TrimSuffix(entry.Name(), ".json"); want != cfg.Niche {
			s.log.Warn().Str("file", entry.Name()).Str("niche", cfg.Niche).Msg("snapshot filename does not match its niche tag")
		}
		catalog[cfg.Niche] = cfg
	}
	return catalog, nil
}

// LoadFile reads and validates a single snapshot file.
func (s *SnapshotStore) LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.WrapPersistenceError("persistence/read_snapshot", "reading niche snapshot", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, domain.WrapConfigError("config/parse_snapshot", "parsing niche snapshot "+filepath.Base(path), err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
