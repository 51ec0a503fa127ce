// Package pipeline drives candidate batches through the scoring stages
// under one of three scheduling strategies, instruments every stage, and
// journals the outcomes the optimizer later trains on.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/seoscope/keywordrun/internal/analyze"
	"github.com/seoscope/keywordrun/internal/domain"
	"github.com/seoscope/keywordrun/internal/ledger"
	"github.com/seoscope/keywordrun/internal/niche"
	"github.com/seoscope/keywordrun/internal/score"
	"github.com/seoscope/keywordrun/internal/trend"
	"github.com/seoscope/keywordrun/internal/validate"
)

// Strategy selects how stages are scheduled over a batch.
type Strategy string

const (
	// StrategyCascade runs stages sequentially over the whole batch.
	StrategyCascade Strategy = "cascade"
	// StrategyParallel overlaps the four input-only stages, then joins
	// for composite and validation.
	StrategyParallel Strategy = "parallel"
	// StrategyAdaptive picks cascade for small batches and parallel once
	// the batch clears the configured threshold.
	StrategyAdaptive Strategy = "adaptive"
)

// Valid reports whether s names a known strategy.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyCascade, StrategyParallel, StrategyAdaptive:
		return true
	}
	return false
}

// ParseStrategy converts a raw string into a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	st := Strategy(s)
	if !st.Valid() {
		return "", domain.NewInputError("input/unknown_strategy", fmt.Sprintf("unknown strategy %q", s))
	}
	return st, nil
}

// Config tunes the orchestrator. Zero fields fall back to defaults.
type Config struct {
	Strategy          Strategy      `json:"strategy"`
	Workers           int           `json:"workers"`
	QueueSize         int           `json:"queue_size"`
	BatchTimeout      time.Duration `json:"batch_timeout"`
	AdaptiveThreshold int           `json:"adaptive_threshold"`
	Locale            string        `json:"locale"`
}

// DefaultConfig returns the shipped pipeline settings: cascade scheduling,
// one worker per CPU and a five minute batch deadline.
func DefaultConfig() Config {
	return Config{
		Strategy:          StrategyCascade,
		Workers:           runtime.NumCPU(),
		BatchTimeout:      300 * time.Second,
		AdaptiveThreshold: 20,
		Locale:            "pt",
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if !c.Strategy.Valid() {
		c.Strategy = d.Strategy
	}
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.BatchTimeout <= 0 {
		c.BatchTimeout = d.BatchTimeout
	}
	if c.AdaptiveThreshold <= 0 {
		c.AdaptiveThreshold = d.AdaptiveThreshold
	}
	if c.Locale == "" {
		c.Locale = d.Locale
	}
	return c
}

// ProgressFunc receives (stage, completed, total) after each stage. The
// orchestrator invokes it synchronously; callers must not stall it.
type ProgressFunc func(stage string, current, total int)

// Options tune a single Run. Zero fields fall back to orchestrator config.
type Options struct {
	Niche     string
	Locale    string
	Strategy  Strategy
	TracingID string
	Progress  ProgressFunc
}

// Deps are the shared components a pipeline runs against. Resolver is
// required; a nil Trends store means every candidate scores neutral trend,
// and a nil Journal disables event logging.
type Deps struct {
	Resolver *niche.Resolver
	Trends   *trend.Store
	Journal  *ledger.Writer
	Logger   zerolog.Logger
}

// Orchestrator owns EnrichedKeyword instances for the duration of a run
// and drives them through the stages. Safe for concurrent Runs; niche
// snapshots are resolved per batch.
type Orchestrator struct {
	cfg      Config
	resolver *niche.Resolver
	trends   *trend.Store
	journal  *ledger.Writer
	pool     *WorkerPool

	complexity    *analyze.ComplexityAnalyzer
	competitive   *score.CompetitiveScorer
	composite     *score.CompositeScorer
	trendAnalyzer *trend.Analyzer
	validator     *validate.Validator

	sigMu sync.Mutex
	sigs  map[string]*analyze.SignificanceAnalyzer

	now func() time.Time
	log zerolog.Logger
}

// New wires the orchestrator. The default locale vocabulary is resolved
// eagerly so a bad locale fails here, not mid-batch.
func New(cfg Config, deps Deps) (*Orchestrator, error) {
	if deps.Resolver == nil {
		return nil, domain.NewConfigError("config/missing_resolver", "orchestrator requires a niche resolver")
	}
	cfg = cfg.withDefaults()
	trends := deps.Trends
	if trends == nil {
		trends = trend.NewStore(0)
	}
	o := &Orchestrator{
		cfg:           cfg,
		resolver:      deps.Resolver,
		trends:        trends,
		journal:       deps.Journal,
		pool:          NewWorkerPool(cfg.Workers, cfg.QueueSize),
		complexity:    analyze.NewComplexityAnalyzer(analyze.ComplexityConfig{}),
		competitive:   score.NewCompetitiveScorer(),
		composite:     score.NewCompositeScorer(domain.QualityThresholds{}),
		trendAnalyzer: trend.NewAnalyzer(trend.Config{}),
		validator:     validate.NewValidator(),
		sigs:          make(map[string]*analyze.SignificanceAnalyzer),
		now:           time.Now,
		log:           deps.Logger.With().Str("component", "pipeline").Logger(),
	}
	if _, err := o.significanceFor(cfg.Locale); err != nil {
		o.pool.Close()
		return nil, err
	}
	return o, nil
}

// Depth exposes queued plus running stage tasks for caller throttling.
func (o *Orchestrator) Depth() int { return o.pool.Depth() }

// Close drains the worker pool. Run must not be called afterwards.
func (o *Orchestrator) Close() { o.pool.Close() }

func (o *Orchestrator) significanceFor(locale string) (*analyze.SignificanceAnalyzer, error) {
	if locale == "" {
		locale = o.cfg.Locale
	}
	o.sigMu.Lock()
	defer o.sigMu.Unlock()
	if sig, ok := o.sigs[locale]; ok {
		return sig, nil
	}
	sig, err := analyze.NewSignificanceAnalyzer(analyze.SignificanceConfig{Locale: locale})
	if err != nil {
		return nil, err
	}
	o.sigs[locale] = sig
	return sig, nil
}

// Run scores one batch. Output order follows input order regardless of
// strategy. Cancellation or the batch deadline yields a partial result
// with status cancelled and a nil error; only a critical stage failure
// returns an error, alongside whatever was computed.
func (o *Orchestrator) Run(ctx context.Context, keywords []domain.Keyword, opts Options) (*BatchResult, error) {
	started := o.now()
	strategy := o.effectiveStrategy(opts.Strategy, len(keywords))
	batchTerm := joinTerms(keywords)

	tracingID := opts.TracingID
	if tracingID == "" {
		tracingID = ledger.NewTracingID("batch", batchTerm, started)
	}

	cfg, detection := o.resolver.Resolve(batchTerm, opts.Niche)

	res := &BatchResult{
		TracingID: tracingID,
		Status:    BatchCompleted,
		Strategy:  strategy,
		Niche:     cfg.Niche,
		Detection: detection,
	}

	log := o.log.With().Str("tracing_id", tracingID).Str("niche", cfg.Niche).Logger()
	log.Info().
		Int("batch_size", len(keywords)).
		Str("strategy", string(strategy)).
		Float64("detection_score", detection.Score).
		Msg("batch started")
	o.emit(ledger.Record{
		At:        started,
		TracingID: tracingID,
		Kind:      ledger.KindProcessing,
		Level:     ledger.LevelInfo,
		Payload: map[string]interface{}{
			"batch_size":      len(keywords),
			"strategy":        string(strategy),
			"niche":           cfg.Niche,
			"detection_score": detection.Score,
		},
	})

	if len(keywords) == 0 {
		res.Report = o.buildReport(res, nil, o.moduleNames())
		res.Elapsed = o.now().Sub(started)
		return res, nil
	}

	sig, err := o.significanceFor(opts.Locale)
	if err != nil {
		log.Warn().Err(err).Str("locale", opts.Locale).Msg("unknown locale, falling back to default")
		if sig, err = o.significanceFor(""); err != nil {
			return nil, err
		}
	}
	sem := analyze.NewSemanticAnalyzer(o.resolver.Corpus())

	runCtx, cancel := context.WithTimeout(ctx, o.cfg.BatchTimeout)
	defer cancel()

	items := o.admit(keywords, cfg, started, log)
	stages := o.plan(cfg, sig, sem, started)

	var runErr error
	if strategy == StrategyParallel {
		res.Stages, runErr = o.runParallel(runCtx, stages, items, opts.Progress)
	} else {
		res.Stages, runErr = o.runCascade(runCtx, stages, items, opts.Progress)
	}

	for _, it := range items {
		res.Keywords = append(res.Keywords, it.enriched)
		if it.validation != nil {
			res.Validations = append(res.Validations, *it.validation)
			if it.validation.Status == domain.StatusApproved {
				res.Accepted = append(res.Accepted, it.enriched)
			}
		}
	}

	if runErr != nil {
		if errors.Is(runErr, context.DeadlineExceeded) || errors.Is(runErr, context.Canceled) {
			res.Status = BatchCancelled
			log.Warn().Err(runErr).Msg("batch cancelled, returning partial results")
			runErr = nil
		} else {
			res.Status = BatchFailed
			log.Error().Err(runErr).Msg("batch aborted by critical stage")
			o.emit(ledger.Record{
				TracingID: tracingID,
				Kind:      ledger.KindError,
				Level:     ledger.LevelError,
				Error:     runErr.Error(),
				Payload:   map[string]interface{}{"code": domain.CodeOf(runErr)},
			})
		}
	}

	o.emitOutcomes(items, cfg)

	res.Report = o.buildReport(res, items, o.moduleNames())
	res.Elapsed = o.now().Sub(started)

	o.emit(ledger.Record{
		TracingID: tracingID,
		Kind:      ledger.KindPerformance,
		Level:     ledger.LevelInfo,
		Outcome:   string(res.Status),
		ElapsedMs: float64(res.Elapsed.Microseconds()) / 1000.0,
		Payload: map[string]interface{}{
			"accepted":     res.Report.Accepted,
			"pending":      res.Report.Pending,
			"rejected":     res.Report.Rejected,
			"stage_errors": res.Report.StageErrors,
		},
	})
	log.Info().
		Str("status", string(res.Status)).
		Int("accepted", res.Report.Accepted).
		Int("rejected", res.Report.Rejected).
		Dur("elapsed", res.Elapsed).
		Msg("batch finished")

	return res, runErr
}

func (o *Orchestrator) effectiveStrategy(override Strategy, batch int) Strategy {
	s := o.cfg.Strategy
	if override != "" {
		s = override
	}
	if s == StrategyAdaptive {
		if batch >= o.cfg.AdaptiveThreshold {
			return StrategyParallel
		}
		return StrategyCascade
	}
	return s
}

// admit validates inputs and wraps them for the stages. Invalid
// candidates are skipped with a synthesized rejected validation so the
// batch accounting still covers every input.
func (o *Orchestrator) admit(keywords []domain.Keyword, cfg *niche.Config, started time.Time, log zerolog.Logger) []*item {
	items := make([]*item, len(keywords))
	for i, k := range keywords {
		e := domain.NewEnriched(k)
		e.TracingID = ledger.NewTracingID("kw", k.Term, started)
		it := &item{enriched: e}
		if err := k.Validate(); err != nil {
			it.skipped = true
			it.validation = &validate.Result{
				Keyword:        k.Term,
				Status:         domain.StatusRejected,
				FailureReasons: []string{err.Error()},
				Niche:          cfg.Niche,
				TracingID:      e.TracingID,
			}
			log.Warn().Err(err).Str("keyword", k.Term).Msg("candidate skipped")
			o.emit(ledger.Record{
				TracingID: e.TracingID,
				Kind:      ledger.KindRejection,
				Level:     ledger.LevelWarn,
				Keyword:   k.Term,
				Outcome:   string(domain.StatusRejected),
				Error:     err.Error(),
				Payload:   map[string]interface{}{"code": domain.CodeOf(err)},
			})
		}
		items[i] = it
	}
	return items
}

func (o *Orchestrator) runCascade(ctx context.Context, stages []stage, items []*item, progress ProgressFunc) ([]StageMetrics, error) {
	metrics := make([]StageMetrics, 0, len(stages))
	for i, st := range stages {
		m, err := o.runStage(ctx, st, items)
		metrics = append(metrics, m)
		if err != nil {
			return metrics, err
		}
		notify(progress, st.name, i+1, len(stages))
	}
	return metrics, nil
}

func (o *Orchestrator) runParallel(ctx context.Context, stages []stage, items []*item, progress ProgressFunc) ([]StageMetrics, error) {
	fan := stages[:fanOutStages]
	join := stages[fanOutStages:]

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
		done     int
	)
	metrics := make([]StageMetrics, len(fan))
	for i, st := range fan {
		wg.Add(1)
		go func(i int, st stage) {
			defer wg.Done()
			m, err := o.runStage(ctx, st, items)
			mu.Lock()
			defer mu.Unlock()
			metrics[i] = m
			if err != nil && firstErr == nil {
				firstErr = err
			}
			done++
			notify(progress, st.name, done, len(stages))
		}(i, st)
	}
	wg.Wait()
	if firstErr != nil {
		return metrics, firstErr
	}

	// Ordering is restored by construction: every stage writes through
	// the item's input index, so the join stages see input order.
	for _, st := range join {
		m, err := o.runStage(ctx, st, items)
		metrics = append(metrics, m)
		if err != nil {
			return metrics, err
		}
		done++
		notify(progress, st.name, done, len(stages))
	}
	return metrics, nil
}

// runStage fans one stage across the live items via the worker pool. The
// context is checked at the stage boundary and before each submission;
// tripping it mid-stage leaves the remaining items untouched.
func (o *Orchestrator) runStage(ctx context.Context, st stage, items []*item) (StageMetrics, error) {
	m := StageMetrics{Stage: st.name, StartedAt: o.now(), InputSize: live(items)}
	if err := ctx.Err(); err != nil {
		m.EndedAt = m.StartedAt
		return m, err
	}

	var (
		wg       sync.WaitGroup
		applied  int64
		errCount int64
		fatalMu  sync.Mutex
		fatalErr error
		loopErr  error
	)
	for _, it := range items {
		if it.skipped {
			continue
		}
		if err := ctx.Err(); err != nil {
			loopErr = err
			break
		}
		it := it
		wg.Add(1)
		if err := o.pool.Submit(ctx, func() {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			outcome := st.apply(it)
			atomic.AddInt64(&applied, 1)
			if outcome.Status == domain.StageOK {
				return
			}
			atomic.AddInt64(&errCount, 1)
			it.markDegraded(st.name, outcome.Code)
			if outcome.Status == domain.StageFatal {
				fatalMu.Lock()
				if fatalErr == nil {
					fatalErr = outcome.Err
				}
				fatalMu.Unlock()
				return
			}
			o.log.Error().Err(outcome.Err).
				Str("stage", st.name).
				Str("keyword", it.enriched.Term).
				Msg("stage degraded, neutral signal kept")
			o.emit(ledger.Record{
				TracingID: it.enriched.TracingID,
				Kind:      ledger.KindError,
				Level:     ledger.LevelError,
				Keyword:   it.enriched.Term,
				Error:     outcome.Err.Error(),
				Payload:   map[string]interface{}{"stage": st.name, "code": outcome.Code},
			})
		}); err != nil {
			wg.Done()
			loopErr = err
			break
		}
	}
	wg.Wait()

	m.EndedAt = o.now()
	m.ElapsedMs = float64(m.EndedAt.Sub(m.StartedAt).Microseconds()) / 1000.0
	m.OutputSize = int(atomic.LoadInt64(&applied))
	m.Errors = int(atomic.LoadInt64(&errCount))
	if loopErr != nil {
		return m, loopErr
	}
	fatalMu.Lock()
	err := fatalErr
	fatalMu.Unlock()
	if err != nil && st.critical {
		return m, domain.WrapStageError("stage/"+st.name, "critical stage failed", err)
	}
	if err != nil {
		o.log.Error().Err(err).Str("stage", st.name).Msg("stage failed, batch continues degraded")
	}
	return m, nil
}

// emitOutcomes journals one decided event per validated candidate. The
// payload carries the active parameter vector and the validation score,
// which is the row format the optimizer trains on.
func (o *Orchestrator) emitOutcomes(items []*item, cfg *niche.Config) {
	if o.journal == nil {
		return
	}
	params := cfg.ParameterVector()
	paramsPayload := make(map[string]interface{}, len(params))
	for k, v := range params {
		paramsPayload[k] = v
	}
	for _, it := range items {
		if it.skipped || it.validation == nil {
			continue
		}
		v := it.validation
		kind, level := ledger.KindValidation, ledger.LevelInfo
		switch v.Status {
		case domain.StatusApproved:
			kind = ledger.KindAcceptance
		case domain.StatusRejected:
			kind, level = ledger.KindRejection, ledger.LevelWarn
		}
		payload := map[string]interface{}{
			"niche":       cfg.Niche,
			"composite":   it.enriched.Composite,
			"performance": v.Score,
			"params":      paramsPayload,
		}
		if len(v.FailureReasons) > 0 {
			payload["failed"] = v.FailureReasons
		}
		o.emit(ledger.Record{
			TracingID: v.TracingID,
			Kind:      kind,
			Level:     level,
			Keyword:   v.Keyword,
			Outcome:   string(v.Status),
			ElapsedMs: v.ElapsedMs,
			Payload:   payload,
		})
	}
}

func (o *Orchestrator) moduleNames() []string {
	return []string{StageSignificance, StageComplexity, StageCompetitive, StageTrend, StageComposite, StageValidation}
}

// emit appends to the journal when one is wired. Append retries and logs
// its own failures; a dead journal never fails the in-memory result.
func (o *Orchestrator) emit(rec ledger.Record) {
	if o.journal == nil {
		return
	}
	_ = o.journal.Append(rec)
}

func notify(progress ProgressFunc, stage string, current, total int) {
	if progress != nil {
		progress(stage, current, total)
	}
}

func live(items []*item) int {
	n := 0
	for _, it := range items {
		if !it.skipped {
			n++
		}
	}
	return n
}

func joinTerms(keywords []domain.Keyword) string {
	terms := make([]string, len(keywords))
	for i, k := range keywords {
		terms[i] = k.Term
	}
	return strings.Join(terms, " ")
}
