package domain

import (
	"fmt"
	"strings"
	"time"
)

// Intent classifies the search intent behind a keyword.
type Intent string

const (
	IntentInformational Intent = "informational"
	IntentTransactional Intent = "transactional"
	IntentNavigational  Intent = "navigational"
	IntentInvestigative Intent = "investigative"
)

// Valid reports whether the intent is one of the known values.
func (i Intent) Valid() bool {
	switch i {
	case IntentInformational, IntentTransactional, IntentNavigational, IntentInvestigative:
		return true
	}
	return false
}

// ParseIntent converts a raw string into an Intent, case-insensitively.
func ParseIntent(s string) (Intent, error) {
	intent := Intent(strings.ToLower(strings.TrimSpace(s)))
	if !intent.Valid() {
		return "", NewInputError("input/unknown_intent", fmt.Sprintf("unknown intent %q", s))
	}
	return intent, nil
}

// Keyword is a raw candidate search term with its market signals.
// Instances are immutable once constructed; derived attributes live on
// EnrichedKeyword, never here.
type Keyword struct {
	Term        string  `json:"term"`
	Volume      int64   `json:"volume"`
	CPC         float64 `json:"cpc"`
	Competition float64 `json:"competition"`
	Intent      Intent  `json:"intent"`
}

// Validate checks the input ranges the pipeline requires. Violations are
// InputErrors: the candidate is skipped, not the batch.
func (k Keyword) Validate() error {
	if strings.TrimSpace(k.Term) == "" {
		return NewInputError("input/empty_term", "keyword term is empty")
	}
	if k.Volume < 0 {
		return NewInputError("input/negative_volume", fmt.Sprintf("volume %d is negative for %q", k.Volume, k.Term))
	}
	if k.CPC < 0 {
		return NewInputError("input/negative_cpc", fmt.Sprintf("cpc %.4f is negative for %q", k.CPC, k.Term))
	}
	if k.Competition < 0 || k.Competition > 1 {
		return NewInputError("input/competition_range", fmt.Sprintf("competition %.4f outside [0,1] for %q", k.Competition, k.Term))
	}
	if !k.Intent.Valid() {
		return NewInputError("input/unknown_intent", fmt.Sprintf("unknown intent %q for %q", string(k.Intent), k.Term))
	}
	return nil
}

// Band buckets a score in [0,1] into the shared low..very_high scale used
// by the complexity and competitiveness dimensions.
type Band string

const (
	BandLow      Band = "low"
	BandMedium   Band = "medium"
	BandHigh     Band = "high"
	BandVeryHigh Band = "very_high"
)

// QualityBand buckets a composite score into the reporting scale.
type QualityBand string

const (
	QualityExcellent QualityBand = "excellent"
	QualityVeryGood  QualityBand = "very_good"
	QualityGood      QualityBand = "good"
	QualityRegular   QualityBand = "regular"
	QualityPoor      QualityBand = "poor"
)

// TrendDirection classifies the movement of a keyword's metric series.
type TrendDirection string

const (
	TrendRising    TrendDirection = "rising"
	TrendFalling   TrendDirection = "falling"
	TrendStable    TrendDirection = "stable"
	TrendSeasonal  TrendDirection = "seasonal"
	TrendEmerging  TrendDirection = "emerging"
	TrendDeclining TrendDirection = "declining"
)

// EnrichedKeyword wraps an input Keyword with every derived score the
// pipeline attaches. The orchestrator owns instances exclusively for the
// duration of a run.
type EnrichedKeyword struct {
	Keyword

	Significance float64 `json:"significance"`
	Specificity  float64 `json:"specificity"`

	Complexity     float64 `json:"complexity"`
	ComplexityBand Band    `json:"complexity_band"`

	Competitive         float64 `json:"competitive"`
	CompetitivenessBand Band    `json:"competitiveness_band"`

	Trend          float64        `json:"trend"`
	TrendDirection TrendDirection `json:"trend_direction"`

	Composite     float64     `json:"composite"`
	CompositeBand QualityBand `json:"composite_band"`

	Similarity float64 `json:"similarity"`

	WeightsApplied map[string]float64 `json:"weights_applied"`
	Confidence     float64            `json:"confidence"`

	// StageErrors maps a stage name to the error code that forced its
	// signal to a neutral value. Nil while every stage is clean.
	StageErrors map[string]string `json:"stage_errors,omitempty"`

	Niche     string    `json:"niche"`
	TracingID string    `json:"tracing_id"`
	ScoredAt  time.Time `json:"scored_at"`
}

// MarkDegraded records that a stage failed for this keyword and left a
// neutral signal in place.
func (e *EnrichedKeyword) MarkDegraded(stage, code string) {
	if e.StageErrors == nil {
		e.StageErrors = make(map[string]string)
	}
	e.StageErrors[stage] = code
}

// NewEnriched wraps a keyword for scoring. Scores start zeroed; the
// stages fill them in.
func NewEnriched(k Keyword) *EnrichedKeyword {
	return &EnrichedKeyword{
		Keyword:        k,
		TrendDirection: TrendStable,
		WeightsApplied: make(map[string]float64),
	}
}

// Clamp01 restricts a score to [0,1]. Every scalar score the pipeline
// emits passes through this bound.
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
