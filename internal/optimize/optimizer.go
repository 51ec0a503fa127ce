// Package optimize retrains niche parameter vectors from journaled
// outcomes. Each cycle fits a bagged regression forest over recent
// parameter/performance rows, searches the fitted surface for a better
// vector, and swaps it in only when model quality and the historical
// success rate clear their gates. Applied changes are measured one cycle
// later and rolled back when observed performance degrades.
package optimize

import (
	"context"
	"encoding/gob"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/seoscope/keywordrun/internal/domain"
	"github.com/seoscope/keywordrun/internal/ledger"
	"github.com/seoscope/keywordrun/internal/niche"
)

const (
	predictorFile = "predictor.bin"
	scalerFile    = "scaler.bin"
	historyFile   = "adjustment_history.json"

	// minApplications is how many measured adjustments the success rate
	// needs before it moves confidence off the 0.5 prior.
	minApplications = 5
	// minSearchStep ends the proposal search once step halving reaches it.
	minSearchStep = 1e-3
)

// Config tunes one optimizer instance. A zero value optimizes the
// generic niche with the shipped gates.
type Config struct {
	Niche                string        `json:"niche"`
	Window               time.Duration `json:"window"`
	MinRows              int           `json:"min_rows"`
	RecentRows           int           `json:"recent_rows"`
	SuccessWindow        int           `json:"success_window"`
	TestFraction         float64       `json:"test_fraction"`
	R2Floor              float64       `json:"r2_floor"`
	MSECeiling           float64       `json:"mse_ceiling"`
	ConfidenceFloor      float64       `json:"confidence_floor"`
	DegradationThreshold float64       `json:"degradation_threshold"`
	MaxRollbacks         int           `json:"max_rollbacks"`
	SearchSweeps         int           `json:"search_sweeps"`
	SearchStep           float64       `json:"search_step"`
	ModelDir             string        `json:"model_dir"`
	Forest               ForestConfig  `json:"forest"`
	Seed                 int64         `json:"seed"`
}

// DefaultConfig returns the shipped optimizer settings: a 30 day
// training window, 30 row minimum, R² ≥ 0.7 and MSE ≤ 0.1 model gates,
// 0.7 confidence floor and rollback after a 0.1 performance drop.
func DefaultConfig() Config {
	return Config{
		Niche:                niche.Generic,
		Window:               30 * 24 * time.Hour,
		MinRows:              30,
		RecentRows:           10,
		SuccessWindow:        10,
		TestFraction:         0.2,
		R2Floor:              0.7,
		MSECeiling:           0.1,
		ConfidenceFloor:      0.7,
		DegradationThreshold: 0.1,
		MaxRollbacks:         3,
		SearchSweeps:         12,
		SearchStep:           0.08,
		ModelDir:             "models",
		Forest:               DefaultForestConfig(),
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Niche == "" {
		c.Niche = d.Niche
	}
	if c.Window <= 0 {
		c.Window = d.Window
	}
	if c.MinRows <= 0 {
		c.MinRows = d.MinRows
	}
	if c.RecentRows <= 0 {
		c.RecentRows = d.RecentRows
	}
	if c.SuccessWindow <= 0 {
		c.SuccessWindow = d.SuccessWindow
	}
	if c.TestFraction <= 0 || c.TestFraction >= 1 {
		c.TestFraction = d.TestFraction
	}
	if c.R2Floor <= 0 {
		c.R2Floor = d.R2Floor
	}
	if c.MSECeiling <= 0 {
		c.MSECeiling = d.MSECeiling
	}
	if c.ConfidenceFloor <= 0 {
		c.ConfidenceFloor = d.ConfidenceFloor
	}
	if c.DegradationThreshold <= 0 {
		c.DegradationThreshold = d.DegradationThreshold
	}
	if c.MaxRollbacks <= 0 {
		c.MaxRollbacks = d.MaxRollbacks
	}
	if c.SearchSweeps <= 0 {
		c.SearchSweeps = d.SearchSweeps
	}
	if c.SearchStep <= 0 {
		c.SearchStep = d.SearchStep
	}
	if c.ModelDir == "" {
		c.ModelDir = d.ModelDir
	}
	return c
}

// Deps are the optimizer collaborators. Resolver and Reader are
// required; Journal is optional.
type Deps struct {
	Resolver *niche.Resolver
	Reader   *ledger.Reader
	Journal  *ledger.Writer
	Logger   zerolog.Logger
}

// Optimizer runs the parameter tuning cycle for one niche. Cycles are
// serialized by an internal lock, so a scheduler tick and an HTTP
// trigger cannot interleave.
type Optimizer struct {
	mu       sync.Mutex
	cfg      Config
	resolver *niche.Resolver
	reader   *ledger.Reader
	journal  *ledger.Writer
	history  *History
	model    *Forest
	scaler   *StandardScaler
	now      func() time.Time
	log      zerolog.Logger
}

// New builds an optimizer, loading the adjustment history and any
// previously trained model from the model directory.
func New(cfg Config, deps Deps) (*Optimizer, error) {
	cfg = cfg.withDefaults()
	if deps.Resolver == nil {
		return nil, domain.NewConfigError("config/missing_resolver", "optimizer needs a niche resolver")
	}
	if deps.Reader == nil {
		return nil, domain.NewConfigError("config/missing_reader", "optimizer needs a journal reader")
	}
	history, err := LoadHistory(filepath.Join(cfg.ModelDir, historyFile))
	if err != nil {
		return nil, err
	}
	o := &Optimizer{
		cfg:      cfg,
		resolver: deps.Resolver,
		reader:   deps.Reader,
		journal:  deps.Journal,
		history:  history,
		now:      time.Now,
		log:      deps.Logger.With().Str("component", "optimizer").Str("niche", cfg.Niche).Logger(),
	}
	o.loadModel()
	return o, nil
}

// History exposes the adjustment log for reporting surfaces.
func (o *Optimizer) History() []AdjustmentRecord {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]AdjustmentRecord, len(o.history.Records))
	copy(out, o.history.Records)
	return out
}

// CycleResult summarizes one optimization cycle.
type CycleResult struct {
	Status     Status            `json:"status"`
	Delta      float64           `json:"delta"`
	Confidence float64           `json:"confidence"`
	TracingID  string            `json:"tracing_id"`
	Observed   float64           `json:"observed"`
	Predicted  float64           `json:"predicted"`
	Rows       int               `json:"rows"`
	R2         float64           `json:"r2"`
	MSE        float64           `json:"mse"`
	Rollbacks  int               `json:"rollbacks"`
	Frozen     bool              `json:"frozen"`
	Record     *AdjustmentRecord `json:"record,omitempty"`
}

// RunCycle executes one full tuning cycle: measure the pending
// adjustment, roll back on degradation, train, propose, and apply or
// skip. The returned error covers configuration and storage failures
// only; a cycle that decides not to adjust is a success with a
// descriptive status.
func (o *Optimizer) RunCycle(ctx context.Context) (*CycleResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	now := o.now().UTC()
	res := &CycleResult{TracingID: ledger.NewTracingID("opt", o.cfg.Niche, now)}
	log := o.log.With().Str("tracing_id", res.TracingID).Logger()

	if _, err := o.resolver.Parameters(o.cfg.Niche); err != nil {
		return nil, err
	}

	res.Rollbacks = o.history.ConsecutiveRollbacks(o.cfg.Niche)
	if res.Rollbacks >= o.cfg.MaxRollbacks {
		res.Status = StatusFrozen
		res.Frozen = true
		log.Warn().Int("rollbacks", res.Rollbacks).Msg("parameters frozen, skipping cycle")
		return res, nil
	}

	rr, err := o.reader.Read(ledger.Query{From: now.Add(-o.cfg.Window), To: now})
	if err != nil {
		return nil, err
	}
	ds := BuildDataset(rr.Records, niche.ParameterKeys(), o.cfg.Niche)
	res.Rows = ds.Len()

	observed, haveObserved := ds.Tail(o.cfg.RecentRows)
	res.Observed = observed

	if pending := o.history.PendingApplied(o.cfg.Niche); pending != nil && haveObserved {
		prevPerf := pending.PreviousPerformance
		prevParams := cloneParams(pending.PreviousParams)
		conf := pending.Confidence
		if _, err := o.history.Measure(o.cfg.Niche, observed); err != nil {
			log.Warn().Err(err).Msg("persisting adjustment measurement failed")
		}
		if prevPerf-observed > o.cfg.DegradationThreshold {
			return o.rollback(res, prevParams, prevPerf, observed, conf, now, log), nil
		}
		log.Info().Float64("observed", observed).Float64("previous", prevPerf).
			Msg("last adjustment held up")
	}

	if res.Rows < o.cfg.MinRows {
		res.Status = StatusInsufficientData
		log.Info().Int("rows", res.Rows).Int("min_rows", o.cfg.MinRows).
			Msg("not enough outcome rows to train")
		return res, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(o.seed(now)))
	train, test := ds.Split(o.cfg.TestFraction, rng)

	scaler, err := FitScaler(train.X)
	if err != nil {
		res.Status = StatusTrainingFailed
		log.Warn().Err(err).Msg("scaler fit failed")
		return res, nil
	}
	model, err := FitForest(scaler.TransformAll(train.X), train.Y, o.cfg.Forest, rng)
	if err != nil {
		res.Status = StatusTrainingFailed
		log.Warn().Err(err).Msg("forest fit failed")
		return res, nil
	}

	pred := model.PredictAll(scaler.TransformAll(test.X))
	res.R2 = RSquared(pred, test.Y)
	res.MSE = MeanSquaredError(pred, test.Y)
	if res.R2 < o.cfg.R2Floor || res.MSE > o.cfg.MSECeiling {
		res.Status = StatusTrainingFailed
		log.Warn().Float64("r2", res.R2).Float64("mse", res.MSE).
			Int("rows", res.Rows).Msg("held-out quality below the training gates")
		return res, nil
	}
	o.model, o.scaler = model, scaler
	o.saveModel(log)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	current, err := o.resolver.Parameters(o.cfg.Niche)
	if err != nil {
		return nil, err
	}
	proposal, predicted := o.propose(current)
	res.Predicted = predicted

	rate, applications := o.history.SuccessRate(o.cfg.Niche, o.cfg.SuccessWindow)
	conf := 0.5
	if applications >= minApplications {
		conf = 0.5 + 0.5*rate
	}
	res.Confidence = conf

	rec := AdjustmentRecord{
		At:                  now,
		Niche:               o.cfg.Niche,
		PreviousParams:      current,
		NewParams:           proposal,
		PreviousPerformance: observed,
		NewPerformance:      predicted,
		Delta:               predicted - observed,
		Confidence:          conf,
		Measured:            true,
		TracingID:           res.TracingID,
	}

	switch {
	case predicted <= observed:
		rec.Status = StatusSkippedNotNeeded
		log.Info().Float64("predicted", predicted).Float64("observed", observed).
			Msg("no proposal beats current performance")
	case conf < o.cfg.ConfidenceFloor:
		rec.Status = StatusSkippedLowConfidence
		log.Info().Float64("confidence", conf).Float64("floor", o.cfg.ConfidenceFloor).
			Int("applications", applications).Msg("proposal held back by low confidence")
	default:
		previous, err := o.resolver.SetParameters(o.cfg.Niche, proposal)
		if err != nil {
			// Warning and ignore: active parameters stay untouched.
			rec.Status = StatusFailed
			log.Warn().Err(err).Msg("proposed parameters rejected by resolver")
			break
		}
		applied, _ := o.resolver.Parameters(o.cfg.Niche)
		rec.Status = StatusApplied
		rec.PreviousParams = previous
		rec.NewParams = applied
		rec.Measured = false
		log.Info().Float64("predicted", predicted).Float64("observed", observed).
			Float64("confidence", conf).Msg("parameter adjustment applied")
		o.emit(ledger.Record{
			At:        now,
			TracingID: res.TracingID,
			Kind:      ledger.KindProcessing,
			Level:     ledger.LevelInfo,
			Outcome:   string(StatusApplied),
			Payload: map[string]interface{}{
				"niche":      o.cfg.Niche,
				"delta":      rec.Delta,
				"confidence": conf,
				"r2":         res.R2,
				"mse":        res.MSE,
			},
		})
	}

	if err := o.history.Append(rec); err != nil {
		log.Error().Err(err).Msg("recording adjustment failed")
	}
	res.Status = rec.Status
	res.Delta = rec.Delta
	res.Record = &rec
	return res, nil
}

// rollback reverts the niche to the parameters that preceded the last
// applied adjustment and freezes tuning when too many rollbacks pile up
// in a row.
func (o *Optimizer) rollback(res *CycleResult, prevParams map[string]float64, prevPerf, observed, conf float64, now time.Time, log zerolog.Logger) *CycleResult {
	previous, err := o.resolver.SetParameters(o.cfg.Niche, prevParams)
	if err != nil {
		res.Status = StatusFailed
		log.Error().Err(err).Msg("rollback rejected by resolver")
		return res
	}
	restored, _ := o.resolver.Parameters(o.cfg.Niche)

	rec := AdjustmentRecord{
		At:                  now,
		Niche:               o.cfg.Niche,
		PreviousParams:      previous,
		NewParams:           restored,
		PreviousPerformance: prevPerf,
		NewPerformance:      observed,
		Delta:               observed - prevPerf,
		Confidence:          conf,
		Status:              StatusRolledBack,
		Measured:            true,
		TracingID:           res.TracingID,
	}
	if err := o.history.Append(rec); err != nil {
		log.Error().Err(err).Msg("recording rollback failed")
	}

	res.Status = StatusRolledBack
	res.Delta = rec.Delta
	res.Confidence = conf
	res.Record = &rec
	res.Rollbacks = o.history.ConsecutiveRollbacks(o.cfg.Niche)

	if res.Rollbacks >= o.cfg.MaxRollbacks {
		res.Frozen = true
		msg := fmt.Sprintf("parameter tuning frozen after %d consecutive rollbacks", res.Rollbacks)
		log.Error().Int("rollbacks", res.Rollbacks).Msg(msg)
		o.emit(ledger.Record{
			At:        now,
			TracingID: res.TracingID,
			Kind:      ledger.KindError,
			Level:     ledger.LevelCritical,
			Outcome:   string(StatusFrozen),
			Error:     msg,
			Payload:   map[string]interface{}{"niche": o.cfg.Niche, "rollbacks": res.Rollbacks},
		})
		return res
	}

	log.Warn().Float64("drop", prevPerf-observed).Int("rollbacks", res.Rollbacks).
		Msg("adjustment rolled back")
	o.emit(ledger.Record{
		At:        now,
		TracingID: res.TracingID,
		Kind:      ledger.KindProcessing,
		Level:     ledger.LevelWarn,
		Outcome:   string(StatusRolledBack),
		Payload: map[string]interface{}{
			"niche":     o.cfg.Niche,
			"drop":      prevPerf - observed,
			"rollbacks": res.Rollbacks,
		},
	})
	return res
}

// propose hill-climbs the fitted surface from the current vector, one
// parameter at a time. Steps are fractions of each bound span, clamped
// to the bound, and halved whenever a full sweep stops improving.
func (o *Optimizer) propose(current map[string]float64) (map[string]float64, float64) {
	bounds := o.resolver.Bounds()
	keys := niche.ParameterKeys()

	point := cloneParams(current)
	eval := func(p map[string]float64) float64 {
		row := make([]float64, len(keys))
		for j, k := range keys {
			row[j] = p[k]
		}
		return o.model.Predict(o.scaler.Transform(row))
	}

	best := eval(point)
	step := o.cfg.SearchStep
	for sweep := 0; sweep < o.cfg.SearchSweeps && step >= minSearchStep; sweep++ {
		improved := false
		for _, k := range keys {
			b, ok := bounds[k]
			if !ok || b.Max <= b.Min {
				continue
			}
			span := b.Max - b.Min
			base := point[k]
			for _, dir := range []float64{1, -1} {
				cand := b.Clamp(base + dir*step*span)
				if cand == base {
					continue
				}
				point[k] = cand
				if v := eval(point); v > best {
					best = v
					improved = true
					break
				}
				point[k] = base
			}
		}
		if !improved {
			step *= 0.5
		}
	}
	return point, best
}

func (o *Optimizer) seed(now time.Time) int64 {
	if o.cfg.Seed != 0 {
		return o.cfg.Seed
	}
	return now.UnixNano()
}

// loadModel restores a previously trained predictor pair. Missing or
// unreadable files just mean training starts cold.
func (o *Optimizer) loadModel() {
	var f Forest
	if err := readGob(filepath.Join(o.cfg.ModelDir, predictorFile), &f); err != nil {
		return
	}
	var s StandardScaler
	if err := readGob(filepath.Join(o.cfg.ModelDir, scalerFile), &s); err != nil {
		return
	}
	o.model, o.scaler = &f, &s
	o.log.Debug().Int("trees", len(f.Trees)).Msg("restored trained model")
}

// saveModel persists the predictor pair. Failures are logged and
// swallowed: the in-memory model still serves this process.
func (o *Optimizer) saveModel(log zerolog.Logger) {
	if err := os.MkdirAll(o.cfg.ModelDir, 0o755); err != nil {
		log.Warn().Err(err).Msg("creating model directory failed")
		return
	}
	if err := writeGob(filepath.Join(o.cfg.ModelDir, predictorFile), o.model); err != nil {
		log.Warn().Err(err).Msg("persisting predictor failed")
		return
	}
	if err := writeGob(filepath.Join(o.cfg.ModelDir, scalerFile), o.scaler); err != nil {
		log.Warn().Err(err).Msg("persisting scaler failed")
	}
}

func (o *Optimizer) emit(rec ledger.Record) {
	if o.journal == nil {
		return
	}
	_ = o.journal.Append(rec)
}

func cloneParams(p map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

func writeGob(path string, v interface{}) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := gob.NewEncoder(f).Encode(v); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func readGob(path string, v interface{}) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return gob.NewDecoder(f).Decode(v)
}
