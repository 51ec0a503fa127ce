// Package experiments keeps the A/B experiment ledger: two candidate
// parameter vectors, a sampling plan and, once the external runner has
// finished, the measured outcome. The runner itself lives outside this
// module; this store is the durable state it reads and writes.
package experiments

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/seoscope/keywordrun/internal/domain"
	"github.com/seoscope/keywordrun/internal/niche"
)

const (
	indexFile   = "index.json"
	resultsFile = "results.json"
)

// Status is an experiment's lifecycle state.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Definition describes one experiment: the two parameter vectors to
// compare and the sampling plan. Keys follow the tunable parameter
// names; values must sit inside their bounds.
type Definition struct {
	Name           string             `json:"name,omitempty" validate:"max=80"`
	Niche          string             `json:"niche,omitempty" validate:"max=40"`
	ConfigurationA map[string]float64 `json:"configuration_a" validate:"required,min=1"`
	ConfigurationB map[string]float64 `json:"configuration_b" validate:"required,min=1"`
	SampleSize     int                `json:"sample_size" validate:"required,gt=0"`
	DurationDays   int                `json:"duration_days" validate:"required,gt=0,lte=90"`
}

// Experiment is a stored definition plus its lifecycle fields.
type Experiment struct {
	ID        string    `json:"id"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	EndsAt    time.Time `json:"ends_at"`
	Definition
}

// Result is the measured outcome the runner reports back.
type Result struct {
	ExperimentID string    `json:"experiment_id"`
	Winner       string    `json:"winner"`
	PerformanceA float64   `json:"performance_a"`
	PerformanceB float64   `json:"performance_b"`
	SamplesA     int       `json:"samples_a"`
	SamplesB     int       `json:"samples_b"`
	CompletedAt  time.Time `json:"completed_at"`
}

type indexDoc struct {
	Experiments []Experiment `json:"experiments"`
}

type resultsDoc struct {
	Results []Result `json:"results"`
}

// Store is the file-backed experiment state: <dir>/index.json for the
// experiment list, <dir>/results.json for reported outcomes. All
// mutations rewrite the whole document through a temp file and rename.
type Store struct {
	mu     sync.Mutex
	dir    string
	bounds map[string]niche.Bound
	now    func() time.Time
	newID  func() string
	log    zerolog.Logger
}

// NewStore creates a store rooted at dir. The directory is created
// lazily on the first write.
func NewStore(dir string, logger zerolog.Logger) *Store {
	return &Store{
		dir:    dir,
		bounds: niche.DefaultBounds(),
		now:    func() time.Time { return time.Now().UTC() },
		newID:  func() string { return "exp_" + uuid.New().String()[:8] },
		log:    logger.With().Str("component", "experiments").Logger(),
	}
}

// Create validates a definition, assigns it an id and a measurement
// window, and appends it to the index as running.
func (s *Store) Create(def Definition) (*Experiment, error) {
	if err := s.validateDefinition(def); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.loadIndex()
	if err != nil {
		return nil, err
	}

	now := s.now()
	exp := Experiment{
		ID:         s.newID(),
		Status:     StatusRunning,
		CreatedAt:  now,
		EndsAt:     now.Add(time.Duration(def.DurationDays) * 24 * time.Hour),
		Definition: def,
	}
	idx.Experiments = append(idx.Experiments, exp)

	if err := s.saveDoc(indexFile, idx); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("experiment", exp.ID).
		Str("niche", exp.Niche).
		Int("sample_size", exp.SampleSize).
		Int("duration_days", exp.DurationDays).
		Msg("experiment created")
	return &exp, nil
}

// List returns every experiment in creation order.
func (s *Store) List() ([]Experiment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.loadIndex()
	if err != nil {
		return nil, err
	}
	return idx.Experiments, nil
}

// Get returns one experiment by id.
func (s *Store) Get(id string) (*Experiment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.loadIndex()
	if err != nil {
		return nil, err
	}
	for i := range idx.Experiments {
		if idx.Experiments[i].ID == id {
			exp := idx.Experiments[i]
			return &exp, nil
		}
	}
	return nil, domain.NewInputError("input/unknown_experiment", fmt.Sprintf("no experiment %q", id))
}

// Cancel stops a running experiment without recording a result.
func (s *Store) Cancel(id string) (*Experiment, error) {
	return s.transition(id, StatusCancelled, nil)
}

// Complete marks a running experiment finished and appends the runner's
// measured result.
func (s *Store) Complete(id string, res Result) (*Experiment, error) {
	switch res.Winner {
	case "a", "b", "inconclusive":
	default:
		return nil, domain.NewInputError("input/unknown_winner", fmt.Sprintf("winner must be a, b or inconclusive, got %q", res.Winner))
	}
	return s.transition(id, StatusCompleted, &res)
}

// Results returns every reported outcome in completion order.
func (s *Store) Results() ([]Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var doc resultsDoc
	if err := s.loadDoc(resultsFile, &doc); err != nil {
		return nil, err
	}
	return doc.Results, nil
}

func (s *Store) transition(id string, to Status, res *Result) (*Experiment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.loadIndex()
	if err != nil {
		return nil, err
	}

	var exp *Experiment
	for i := range idx.Experiments {
		if idx.Experiments[i].ID == id {
			exp = &idx.Experiments[i]
			break
		}
	}
	if exp == nil {
		return nil, domain.NewInputError("input/unknown_experiment", fmt.Sprintf("no experiment %q", id))
	}
	if exp.Status != StatusRunning {
		return nil, domain.NewInputError("input/experiment_finished", fmt.Sprintf("experiment %s is already %s", id, exp.Status))
	}
	exp.Status = to

	if res != nil {
		res.ExperimentID = id
		res.CompletedAt = s.now()

		var doc resultsDoc
		if err := s.loadDoc(resultsFile, &doc); err != nil {
			return nil, err
		}
		doc.Results = append(doc.Results, *res)
		if err := s.saveDoc(resultsFile, doc); err != nil {
			return nil, err
		}
	}

	if err := s.saveDoc(indexFile, idx); err != nil {
		return nil, err
	}

	s.log.Info().Str("experiment", id).Str("status", string(to)).Msg("experiment state changed")
	out := *exp
	return &out, nil
}

// validateDefinition checks the parameter vectors against the tunable
// bounds. Out-of-bound values are rejected, not clamped: an experiment
// exists to compare the exact configurations its author wrote down.
func (s *Store) validateDefinition(def Definition) error {
	if len(def.ConfigurationA) == 0 || len(def.ConfigurationB) == 0 {
		return domain.NewConfigError("config/missing_configuration", "both configuration_a and configuration_b are required")
	}
	if def.SampleSize <= 0 {
		return domain.NewConfigError("config/bad_sample_size", fmt.Sprintf("sample_size %d must be positive", def.SampleSize))
	}
	if def.DurationDays <= 0 {
		return domain.NewConfigError("config/bad_duration", fmt.Sprintf("duration_days %d must be positive", def.DurationDays))
	}
	for side, cfg := range map[string]map[string]float64{"configuration_a": def.ConfigurationA, "configuration_b": def.ConfigurationB} {
		for key, value := range cfg {
			bound, ok := s.bounds[key]
			if !ok {
				return domain.NewConfigError("config/unknown_parameter", fmt.Sprintf("%s: unknown tunable %q", side, key))
			}
			if !bound.Contains(value) {
				return domain.NewConfigError("config/parameter_bounds", fmt.Sprintf("%s: %s=%.4f outside [%.2f, %.2f]", side, key, value, bound.Min, bound.Max))
			}
		}
	}
	return nil
}

func (s *Store) loadIndex() (*indexDoc, error) {
	var idx indexDoc
	if err := s.loadDoc(indexFile, &idx); err != nil {
		return nil, err
	}
	return &idx, nil
}

func (s *Store) loadDoc(name string, out interface{}) error {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return domain.WrapPersistenceError("persistence/read_experiments", "reading "+name, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return domain.WrapPersistenceError("persistence/parse_experiments", "parsing "+name, err)
	}
	return nil
}

func (s *Store) saveDoc(name string, doc interface{}) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return domain.WrapPersistenceError("persistence/create_experiment_dir", "creating experiment directory", err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return domain.WrapPersistenceError("persistence/encode_experiments", "encoding "+name, err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(s.dir, name+".tmp-*")
	if err != nil {
		return domain.WrapPersistenceError("persistence/write_experiments", "creating temp file for "+name, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return domain.WrapPersistenceError("persistence/write_experiments", "writing temp file for "+name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return domain.WrapPersistenceError("persistence/write_experiments", "closing temp file for "+name, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, name)); err != nil {
		os.Remove(tmp.Name())
		return domain.WrapPersistenceError("persistence/write_experiments", "renaming "+name+" into place", err)
	}
	return nil
}
