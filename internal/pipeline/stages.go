package pipeline

import (
	"strings"
	"sync"
	"time"

	"github.com/seoscope/keywordrun/internal/analyze"
	"github.com/seoscope/keywordrun/internal/domain"
	"github.com/seoscope/keywordrun/internal/niche"
	"github.com/seoscope/keywordrun/internal/score"
	"github.com/seoscope/keywordrun/internal/validate"
)

// Stage names in pipeline order.
const (
	StageSignificance = "significance"
	StageComplexity   = "complexity"
	StageCompetitive  = "competitive"
	StageTrend        = "trend"
	StageComposite    = "composite"
	StageValidation   = "validation"
)

// item tracks one candidate through the stages. The fan-out stages write
// disjoint fields, so the parallel strategy never has two goroutines on
// the same field; the mutex only guards the degraded markers.
type item struct {
	mu         sync.Mutex
	enriched   *domain.EnrichedKeyword
	sigText    string
	validation *validate.Result
	skipped    bool
}

func (it *item) markDegraded(stage, code string) {
	it.mu.Lock()
	it.enriched.MarkDegraded(stage, code)
	it.mu.Unlock()
}

// stage is one pipeline step. Critical stages abort the whole batch on a
// fatal outcome; the rest degrade the single candidate and move on.
type stage struct {
	name     string
	critical bool
	apply    func(it *item) domain.StageOutcome
}

// plan builds the per-run stage list. The first four stages read only the
// input keyword and can overlap; composite and validation join on their
// results. The semantic analyzer is rebuilt from the resolver corpus each
// run so vocabulary adjustments take effect on the next batch.
func (o *Orchestrator) plan(cfg *niche.Config, sig *analyze.SignificanceAnalyzer, sem *analyze.SemanticAnalyzer, started time.Time) []stage {
	return []stage{
		{name: StageSignificance, apply: func(it *item) domain.StageOutcome {
			res := sig.Analyze(it.enriched.Term)
			it.enriched.Significance = res.Score
			it.enriched.Specificity = res.Specificity
			it.sigText = strings.Join(res.SignificantTokens, " ")
			return domain.StageSuccess()
		}},
		{name: StageComplexity, apply: func(it *item) domain.StageOutcome {
			res := o.complexity.Analyze(it.enriched.Term)
			it.enriched.Complexity = res.Score
			it.enriched.ComplexityBand = res.Band
			return domain.StageSuccess()
		}},
		{name: StageCompetitive, apply: func(it *item) domain.StageOutcome {
			cs, err := o.competitive.Score(it.enriched.Keyword, cfg)
			if err != nil {
				it.enriched.Competitive = 0
				it.enriched.CompetitivenessBand = domain.BandLow
				return domain.StageDegrade(err)
			}
			it.enriched.Competitive = cs.Score
			it.enriched.CompetitivenessBand = cs.Band
			return domain.StageSuccess()
		}},
		{name: StageTrend, apply: func(it *item) domain.StageOutcome {
			analysis := o.trendAnalyzer.Analyze(o.trends.Snapshot(it.enriched.Term))
			it.enriched.Trend = analysis.Score
			it.enriched.TrendDirection = analysis.Direction
			return domain.StageSuccess()
		}},
		{name: StageComposite, critical: true, apply: func(it *item) domain.StageOutcome {
			e := it.enriched
			// Similarity runs over the significant tokens so stopwords
			// cannot dilute the vector.
			e.Similarity = sem.Similarity(it.sigText, cfg.Niche)
			cs, err := o.composite.Score(score.Components{
				Complexity:  e.Complexity,
				Specificity: e.Specificity,
				Competitive: e.Competitive,
				Trend:       e.Trend,
			}, cfg)
			if err != nil {
				return domain.StageFail(err)
			}
			e.Composite = cs.Score
			e.CompositeBand = cs.Band
			e.Confidence = cs.Confidence
			e.WeightsApplied = cs.Weights.Map()
			e.Niche = cfg.Niche
			e.ScoredAt = o.now()
			return domain.StageSuccess()
		}},
		{name: StageValidation, critical: true, apply: func(it *item) domain.StageOutcome {
			e := it.enriched
			res := o.validator.Validate(validate.Candidate{
				Term:        e.Term,
				Composite:   e.Composite,
				Specificity: e.Specificity,
				Similarity:  e.Similarity,
				Confidence:  e.Confidence,
			}, cfg)
			res.TracingID = e.TracingID
			res.ElapsedMs = float64(o.now().Sub(started).Microseconds()) / 1000.0
			it.validation = &res
			return domain.StageSuccess()
		}},
	}
}

// fanOutStages are the leading stages that only read the input keyword;
// the parallel strategy runs exactly these concurrently.
const fanOutStages = 4
