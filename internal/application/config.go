// Package application composes the pipeline, cache, journal and stores
// into the in-process batch API the CLI and HTTP layers drive.
package application

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/seoscope/keywordrun/internal/domain"
	"github.com/seoscope/keywordrun/internal/ledger"
	"github.com/seoscope/keywordrun/internal/niche"
	"github.com/seoscope/keywordrun/internal/optimize"
	"github.com/seoscope/keywordrun/internal/pipeline"
)

// Config is the application config file: one JSON document with a
// section per component. Missing sections fall back to each component's
// defaults; unknown top-level keys are warnings, not failures.
type Config struct {
	Pipeline  PipelineSection  `json:"pipeline"`
	Niches    NichesSection    `json:"niches"`
	Logger    LoggerSection    `json:"logger"`
	Optimizer OptimizerSection `json:"optimizer"`
	Validator ValidatorSection `json:"validator"`
}

// PipelineSection tunes the orchestrator. Durations are written as
// seconds so the file stays hand-editable.
type PipelineSection struct {
	Strategy            string `json:"strategy"`
	Workers             int    `json:"workers"`
	QueueSize           int    `json:"queue_size"`
	BatchTimeoutSeconds int    `json:"batch_timeout_seconds"`
	AdaptiveThreshold   int    `json:"adaptive_threshold"`
	Locale              string `json:"locale"`
}

// Build translates the section into the orchestrator config.
func (s PipelineSection) Build() (pipeline.Config, error) {
	cfg := pipeline.Config{
		Workers:           s.Workers,
		QueueSize:         s.QueueSize,
		BatchTimeout:      time.Duration(s.BatchTimeoutSeconds) * time.Second,
		AdaptiveThreshold: s.AdaptiveThreshold,
		Locale:            s.Locale,
	}
	if s.Strategy != "" {
		st, err := pipeline.ParseStrategy(s.Strategy)
		if err != nil {
			return cfg, domain.WrapConfigError("config/bad_strategy", fmt.Sprintf("pipeline.strategy %q", s.Strategy), err)
		}
		cfg.Strategy = st
	}
	return cfg, nil
}

// NichesSection points the resolver at its snapshot directory and
// carries parameter overrides applied over the shipped catalog.
type NichesSection struct {
	SnapshotDir string                        `json:"snapshot_dir"`
	Watch       bool                          `json:"watch"`
	Parameters  map[string]map[string]float64 `json:"parameters"`
}

// LoggerSection places the event journal.
type LoggerSection struct {
	Dir           string `json:"dir"`
	RetentionDays int    `json:"retention_days"`
}

// Build translates the section into the journal config.
func (s LoggerSection) Build() ledger.Config {
	return ledger.Config{Dir: s.Dir, RetentionDays: s.RetentionDays}
}

// OptimizerSection exposes the commonly tuned optimizer knobs; the rest
// keep their shipped defaults.
type OptimizerSection struct {
	Niche           string  `json:"niche"`
	WindowDays      int     `json:"window_days"`
	MinRows         int     `json:"min_rows"`
	ConfidenceFloor float64 `json:"confidence_floor"`
	ModelDir        string  `json:"model_dir"`
	Seed            int64   `json:"seed"`
}

// Build translates the section into the optimizer config.
func (s OptimizerSection) Build() optimize.Config {
	cfg := optimize.DefaultConfig()
	if s.Niche != "" {
		cfg.Niche = s.Niche
	}
	if s.WindowDays > 0 {
		cfg.Window = time.Duration(s.WindowDays) * 24 * time.Hour
	}
	if s.MinRows > 0 {
		cfg.MinRows = s.MinRows
	}
	if s.ConfidenceFloor > 0 {
		cfg.ConfidenceFloor = s.ConfidenceFloor
	}
	if s.ModelDir != "" {
		cfg.ModelDir = s.ModelDir
	}
	if s.Seed != 0 {
		cfg.Seed = s.Seed
	}
	return cfg
}

// ValidatorSection tightens or relaxes acceptance per niche without
// editing the niche snapshots.
type ValidatorSection struct {
	AcceptThresholds map[string]float64 `json:"accept_thresholds"`
}

// LoadConfig reads the application config file. An empty path returns
// an all-defaults config. Unknown top-level keys are logged and
// skipped; a section that fails to parse is a config error.
func LoadConfig(path string, log zerolog.Logger) (*Config, error) {
	cfg := &Config{}
	if path == "" {
		return cfg, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.WrapConfigError("config/read_app_config", "reading config file "+path, err)
	}
	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return nil, domain.WrapConfigError("config/parse_app_config", "parsing config file "+path, err)
	}

	for key, val := range top {
		var dst interface{}
		switch key {
		case "pipeline":
			dst = &cfg.Pipeline
		case "niches":
			dst = &cfg.Niches
		case "logger":
			dst = &cfg.Logger
		case "optimizer":
			dst = &cfg.Optimizer
		case "validator":
			dst = &cfg.Validator
		default:
			log.Warn().Str("key", key).Msg("ignoring unknown config key")
			continue
		}
		if err := json.Unmarshal(val, dst); err != nil {
			return nil, domain.WrapConfigError("config/parse_app_config", fmt.Sprintf("parsing config section %q", key), err)
		}
	}
	return cfg, nil
}

// ApplyNiches pushes the configured parameter and threshold overrides
// into the resolver. A broken override is logged and skipped, matching
// the adjustment-time error policy: the shipped catalog keeps working.
func (c *Config) ApplyNiches(resolver *niche.Resolver, log zerolog.Logger) {
	for tag, params := range c.Niches.Parameters {
		if len(params) == 0 {
			continue
		}
		if _, err := resolver.SetParameters(tag, params); err != nil {
			log.Warn().Err(err).Str("niche", tag).Msg("ignoring niche parameter override")
		}
	}
	for tag, threshold := range c.Validator.AcceptThresholds {
		params := map[string]float64{niche.ParamAcceptThreshold: threshold}
		if _, err := resolver.SetParameters(tag, params); err != nil {
			log.Warn().Err(err).Str("niche", tag).Msg("ignoring validator threshold override")
		}
	}
}
