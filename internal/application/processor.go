package application

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/seoscope/keywordrun/internal/cache"
	"github.com/seoscope/keywordrun/internal/domain"
	"github.com/seoscope/keywordrun/internal/ledger"
	"github.com/seoscope/keywordrun/internal/niche"
	"github.com/seoscope/keywordrun/internal/persistence"
	"github.com/seoscope/keywordrun/internal/pipeline"
	"github.com/seoscope/keywordrun/internal/source"
	"github.com/seoscope/keywordrun/internal/validate"
)

// Options tune a single Process call. EmitReport additionally writes
// the accepted candidates and the report to the artifact directory.
type Options struct {
	Niche      string
	Locale     string
	Strategy   string
	Progress   pipeline.ProgressFunc
	EmitReport bool
}

// ProcessorDeps are the components a Processor runs against. Resolver
// and Pipeline are required. A nil Cache disables result reuse, a nil
// Outcomes store disables the database mirror, and an empty ArtifactDir
// disables artifact writing.
type ProcessorDeps struct {
	Resolver    *niche.Resolver
	Pipeline    *pipeline.Orchestrator
	Cache       cache.Cache
	Journal     *ledger.Writer
	Outcomes    persistence.OutcomeStore
	ArtifactDir string
	Logger      zerolog.Logger
}

// Processor is the in-process batch API: it probes the result cache,
// drives the misses through the orchestrator, merges everything back in
// input order, and mirrors fresh outcomes to the configured sinks.
type Processor struct {
	resolver    *niche.Resolver
	orch        *pipeline.Orchestrator
	cache       cache.Cache
	journal     *ledger.Writer
	outcomes    persistence.OutcomeStore
	artifactDir string

	now func() time.Time
	log zerolog.Logger
}

// NewProcessor wires the batch API.
func NewProcessor(deps ProcessorDeps) (*Processor, error) {
	if deps.Resolver == nil {
		return nil, domain.NewConfigError("config/missing_resolver", "processor requires a niche resolver")
	}
	if deps.Pipeline == nil {
		return nil, domain.NewConfigError("config/missing_pipeline", "processor requires an orchestrator")
	}
	return &Processor{
		resolver:    deps.Resolver,
		orch:        deps.Pipeline,
		cache:       deps.Cache,
		journal:     deps.Journal,
		outcomes:    deps.Outcomes,
		artifactDir: deps.ArtifactDir,
		now:         time.Now,
		log:         deps.Logger.With().Str("component", "processor").Logger(),
	}, nil
}

// Process scores one batch. Cached candidates skip the stages entirely;
// output order follows input order either way. The cache and the
// database mirror degrade to recomputing and to the journal, never to a
// failed batch.
func (p *Processor) Process(ctx context.Context, keywords []domain.Keyword, opts Options) (*pipeline.BatchResult, error) {
	var strategy pipeline.Strategy
	if opts.Strategy != "" {
		var err error
		if strategy, err = pipeline.ParseStrategy(opts.Strategy); err != nil {
			return nil, err
		}
	}

	entries := make([]*cache.Entry, len(keywords))
	missed := keywords
	batchNiche := ""
	var detection niche.Detection
	hits := 0

	if p.cache != nil && len(keywords) > 0 {
		detection = p.resolver.Detect(joinTerms(keywords), opts.Niche)
		batchNiche = detection.Niche
		rev := p.resolver.Revision(batchNiche)

		missed = make([]domain.Keyword, 0, len(keywords))
		for i, kw := range keywords {
			if entry, ok := p.cache.Get(ctx, kw.Term, batchNiche, rev); ok {
				entries[i] = entry
				hits++
				continue
			}
			missed = append(missed, kw)
		}
	}

	res, runErr := p.orch.Run(ctx, missed, pipeline.Options{
		Niche:    opts.Niche,
		Locale:   opts.Locale,
		Strategy: strategy,
		Progress: opts.Progress,
	})
	if res == nil {
		return nil, runErr
	}

	if res.Status == pipeline.BatchCompleted {
		p.storeFresh(ctx, res)
		p.storeOutcomes(ctx, res)
	}

	if hits > 0 {
		res = p.merge(res, keywords, entries, batchNiche, detection)
		p.log.Debug().
			Str("tracing_id", res.TracingID).
			Int("hits", hits).
			Int("missed", len(missed)).
			Msg("cache hits merged")
		if p.journal != nil {
			_ = p.journal.Append(ledger.Record{
				TracingID: res.TracingID,
				Kind:      ledger.KindProcessing,
				Level:     ledger.LevelDebug,
				Payload: map[string]interface{}{
					"cache_hits": hits,
					"niche":      batchNiche,
				},
			})
		}
	}

	if opts.EmitReport && p.artifactDir != "" {
		if _, err := WriteAccepted(p.artifactDir, res, p.log); err != nil {
			p.log.Warn().Err(err).Msg("writing accepted artifact")
		}
		if _, err := WriteReport(p.artifactDir, res.Report, p.log); err != nil {
			p.log.Warn().Err(err).Msg("writing report artifact")
		}
	}

	return res, runErr
}

// ProcessSource fetches candidates from src and scores them as one
// batch. The fetch niche doubles as the niche hint.
func (p *Processor) ProcessSource(ctx context.Context, src source.CandidateSource, tag string, limit int, opts Options) (*pipeline.BatchResult, error) {
	keywords, err := src.Fetch(ctx, tag, limit)
	if err != nil {
		return nil, err
	}
	if opts.Niche == "" {
		opts.Niche = tag
	}
	return p.Process(ctx, keywords, opts)
}

// merge reassembles the batch in input order from the cached entries and
// the freshly scored remainder. The fresh run's identity (tracing id,
// status, strategy, stage metrics) carries over; the niche is the one
// the cache probe resolved for the full batch.
func (p *Processor) merge(res *pipeline.BatchResult, keywords []domain.Keyword, entries []*cache.Entry, batchNiche string, detection niche.Detection) *pipeline.BatchResult {
	merged := &pipeline.BatchResult{
		TracingID: res.TracingID,
		Status:    res.Status,
		Strategy:  res.Strategy,
		Niche:     batchNiche,
		Detection: detection,
		Stages:    res.Stages,
		Elapsed:   res.Elapsed,
	}

	fresh, vIdx := 0, 0
	for i := range keywords {
		if entry := entries[i]; entry != nil {
			kw := entry.Enriched
			v := entry.Validation
			merged.Keywords = append(merged.Keywords, &kw)
			merged.Validations = append(merged.Validations, v)
			if v.Status == domain.StatusApproved {
				merged.Accepted = append(merged.Accepted, &kw)
			}
			continue
		}
		if fresh >= len(res.Keywords) {
			continue
		}
		e := res.Keywords[fresh]
		fresh++
		merged.Keywords = append(merged.Keywords, e)
		if vIdx < len(res.Validations) && res.Validations[vIdx].TracingID == e.TracingID {
			v := res.Validations[vIdx]
			vIdx++
			merged.Validations = append(merged.Validations, v)
			if v.Status == domain.StatusApproved {
				merged.Accepted = append(merged.Accepted, e)
			}
		}
	}

	merged.Report = pipeline.RebuildReport(merged, p.now())
	return merged
}

// eachScored pairs every fully scored keyword of a result with its
// validation. Skipped candidates never entered the stages and are left
// out.
func eachScored(res *pipeline.BatchResult, fn func(e *domain.EnrichedKeyword, v *validate.Result)) {
	vIdx := 0
	for _, e := range res.Keywords {
		if vIdx >= len(res.Validations) {
			return
		}
		if res.Validations[vIdx].TracingID != e.TracingID {
			continue
		}
		v := &res.Validations[vIdx]
		vIdx++
		if e.ScoredAt.IsZero() {
			continue
		}
		fn(e, v)
	}
}

func (p *Processor) storeFresh(ctx context.Context, res *pipeline.BatchResult) {
	if p.cache == nil || len(res.Keywords) == 0 {
		return
	}
	cfg, err := p.resolver.Get(res.Niche)
	if err != nil {
		return
	}
	rev := p.resolver.Revision(res.Niche)
	at := p.now()
	eachScored(res, func(e *domain.EnrichedKeyword, v *validate.Result) {
		entry := &cache.Entry{Enriched: *e, Validation: *v, CachedAt: at}
		p.cache.Set(ctx, entry, rev, cfg.CacheTTL)
	})
}

// storeOutcomes mirrors the journal's outcome events into the database
// when one is configured. The journal is the source of truth; a failed
// mirror write is a warning, not a failed batch.
func (p *Processor) storeOutcomes(ctx context.Context, res *pipeline.BatchResult) {
	if p.outcomes == nil || len(res.Validations) == 0 {
		return
	}
	cfg, err := p.resolver.Get(res.Niche)
	if err != nil {
		return
	}
	params := cfg.ParameterVector()
	at := p.now()

	var rows []persistence.KeywordOutcome
	eachScored(res, func(e *domain.EnrichedKeyword, v *validate.Result) {
		rows = append(rows, persistence.KeywordOutcome{
			At:          at,
			TracingID:   v.TracingID,
			Term:        v.Keyword,
			Niche:       res.Niche,
			Status:      string(v.Status),
			Composite:   e.Composite,
			Confidence:  e.Confidence,
			Performance: v.Score,
			Params:      params,
		})
	})
	if len(rows) == 0 {
		return
	}
	if err := p.outcomes.InsertBatch(ctx, rows); err != nil {
		p.log.Warn().Err(err).Int("rows", len(rows)).Msg("mirroring outcomes to database")
	}
}

func joinTerms(keywords []domain.Keyword) string {
	terms := make([]string, len(keywords))
	for i, k := range keywords {
		terms[i] = k.Term
	}
	return strings.Join(terms, " ")
}
