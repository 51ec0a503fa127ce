package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/seoscope/keywordrun/internal/application"
	"github.com/seoscope/keywordrun/internal/cache"
	"github.com/seoscope/keywordrun/internal/infrastructure/db"
	"github.com/seoscope/keywordrun/internal/ledger"
	"github.com/seoscope/keywordrun/internal/niche"
	"github.com/seoscope/keywordrun/internal/optimize"
	"github.com/seoscope/keywordrun/internal/persistence"
	"github.com/seoscope/keywordrun/internal/pipeline"
	"github.com/seoscope/keywordrun/internal/trend"
)

// Default file locations. A fresh checkout works without any of them:
// the built-in niche catalog applies, the journal is created on first
// write and persistence stays disabled until configured.
const (
	defaultNichesPath     = "config/niches.yaml"
	defaultDBPath         = "config/database.yaml"
	defaultSchedulePath   = "config/schedule.yaml"
	defaultJournalDir     = "journal"
	defaultArtifactDir    = "out/keywords"
	defaultExperimentsDir = "experiments"
)

// stack is the component graph a command runs against. newStack builds
// the parts every command needs; the processor, database and optimizer
// are added by the commands that use them. Close releases whatever was
// built.
type stack struct {
	cfg      *application.Config
	resolver *niche.Resolver
	watcher  *niche.Watcher
	journal  *ledger.Writer
	reader   *ledger.Reader
	orch     *pipeline.Orchestrator
	cache    cache.Cache
	proc     *application.Processor
	db       *db.Manager
	log      zerolog.Logger
}

// newStack loads the application config and assembles the shared core:
// the niche resolver with catalog, snapshot overlay and config overrides
// applied, plus the journal writer and reader.
func newStack(cmd *cobra.Command) (*stack, error) {
	configPath, _ := cmd.Flags().GetString("config")
	nichesPath, _ := cmd.Flags().GetString("niches")

	logger := log.Logger
	cfg, err := application.LoadConfig(configPath, logger)
	if err != nil {
		return nil, err
	}

	catalog, err := loadCatalog(nichesPath)
	if err != nil {
		return nil, err
	}
	resolver, err := niche.NewResolver(catalog, logger)
	if err != nil {
		return nil, err
	}
	if catalog != nil {
		bounds, err := niche.LoadBounds(nichesPath)
		if err != nil {
			return nil, err
		}
		if err := resolver.SetBounds(bounds); err != nil {
			return nil, err
		}
	}

	s := &stack{cfg: cfg, resolver: resolver, log: logger}

	if dir := cfg.Niches.SnapshotDir; dir != "" {
		store := niche.NewSnapshotStore(dir, logger)
		snaps, err := store.Load()
		if err != nil {
			return nil, err
		}
		for _, nc := range snaps {
			if err := resolver.Replace(nc); err != nil {
				logger.Warn().Err(err).Str("niche", nc.Niche).Msg("skipping invalid niche snapshot")
			}
		}
		if cfg.Niches.Watch {
			watcher, err := niche.NewWatcher(store, resolver, logger)
			if err != nil {
				return nil, err
			}
			s.watcher = watcher
		}
	}
	cfg.ApplyNiches(resolver, logger)

	lcfg := cfg.Logger.Build()
	if lcfg.Dir == "" {
		lcfg.Dir = defaultJournalDir
	}
	journal, err := ledger.NewWriter(lcfg, logger)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.journal = journal
	s.reader = ledger.NewReader(journal.Dir(), logger)
	return s, nil
}

// loadCatalog reads the niche catalog file. The shipped default path is
// optional so a fresh checkout runs on the built-in catalog; a path the
// operator configured must exist.
func loadCatalog(path string) (map[string]*niche.Config, error) {
	if path == "" {
		return nil, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) && path == defaultNichesPath {
		return nil, nil
	}
	return niche.LoadCatalog(path)
}

// buildProcessor wires the orchestrator, the result cache and the batch
// API on top of the core. REDIS_ADDR switches the cache to Redis.
func (s *stack) buildProcessor(artifactDir string) error {
	pcfg, err := s.cfg.Pipeline.Build()
	if err != nil {
		return err
	}
	orch, err := pipeline.New(pcfg, pipeline.Deps{
		Resolver: s.resolver,
		Trends:   trend.NewStore(0),
		Journal:  s.journal,
		Logger:   s.log,
	})
	if err != nil {
		return err
	}
	s.orch = orch

	ccfg := cache.DefaultConfig()
	ccfg.Addr = os.Getenv("REDIS_ADDR")
	ccfg.Password = os.Getenv("REDIS_PASSWORD")
	s.cache = cache.New(ccfg, s.log)

	proc, err := application.NewProcessor(application.ProcessorDeps{
		Resolver:    s.resolver,
		Pipeline:    orch,
		Cache:       s.cache,
		Journal:     s.journal,
		Outcomes:    s.outcomes(),
		ArtifactDir: artifactDir,
		Logger:      s.log,
	})
	if err != nil {
		return err
	}
	s.proc = proc
	return nil
}

// openDatabase wires the Postgres mirror. The config file is optional;
// the PG_* environment alone can enable the connection, and without
// either the manager reports persistence as disabled.
func (s *stack) openDatabase(path string) error {
	dcfg, err := db.LoadConfig(path)
	if err != nil {
		return err
	}
	if err := dcfg.Validate(); err != nil {
		return err
	}
	manager, err := db.NewManager(dcfg)
	if err != nil {
		return err
	}
	s.db = manager
	return nil
}

// outcomes returns the keyword outcome store, or nil while persistence
// is disabled.
func (s *stack) outcomes() persistence.OutcomeStore {
	if s.db == nil || s.db.Repository() == nil {
		return nil
	}
	return s.db.Repository().Outcomes
}

// optimizerConfig returns the configured optimizer settings for a
// command to adjust before construction.
func (s *stack) optimizerConfig() optimize.Config {
	return s.cfg.Optimizer.Build()
}

// buildOptimizer constructs the tuning cycle runner against the shared
// resolver and journal.
func (s *stack) buildOptimizer(ocfg optimize.Config) (*optimize.Optimizer, error) {
	return optimize.New(ocfg, optimize.Deps{
		Resolver: s.resolver,
		Reader:   s.reader,
		Journal:  s.journal,
		Logger:   s.log,
	})
}

// Close releases the built components in dependency order: the pipeline
// drains before the cache and journal it writes through go away.
func (s *stack) Close() {
	if s.orch != nil {
		s.orch.Close()
	}
	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			s.log.Warn().Err(err).Msg("closing cache")
		}
	}
	if s.watcher != nil {
		if err := s.watcher.Close(); err != nil {
			s.log.Warn().Err(err).Msg("closing snapshot watcher")
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.log.Warn().Err(err).Msg("closing database")
		}
	}
	if s.journal != nil {
		if err := s.journal.Close(); err != nil {
			s.log.Warn().Err(err).Msg("closing journal")
		}
	}
}
