// Package validate runs the five-criterion acceptance check over scored
// candidates and maps the weighted outcome to a terminal status.
package validate

import (
	"fmt"
	"unicode"

	"github.com/seoscope/keywordrun/internal/domain"
	"github.com/seoscope/keywordrun/internal/niche"
	"github.com/seoscope/keywordrun/internal/text"
)

// Criterion names, in evaluation order.
const (
	CriterionComposite   = "composite_score"
	CriterionSpecificity = "specificity"
	CriterionSimilarity  = "semantic_similarity"
	CriterionFormat      = "basic_format"
	CriterionConfidence  = "score_confidence"
)

// Severity ranks how hard a criterion failure punishes the aggregate.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Criterion weights and severities are fixed; thresholds come from the
// niche config.
var criterionWeights = map[string]float64{
	CriterionComposite:   0.30,
	CriterionSpecificity: 0.25,
	CriterionSimilarity:  0.20,
	CriterionFormat:      0.15,
	CriterionConfidence:  0.10,
}

var criterionSeverities = map[string]Severity{
	CriterionComposite:   SeverityCritical,
	CriterionSpecificity: SeverityHigh,
	CriterionSimilarity:  SeverityHigh,
	CriterionFormat:      SeverityMedium,
	CriterionConfidence:  SeverityLow,
}

// Penalties applied on top of the lost weight when a criterion fails.
const (
	criticalPenalty = 0.5
	highPenalty     = 0.3
)

// Status mapping thresholds over the aggregate score.
const (
	approveFloor = 0.7
	pendingFloor = 0.5
)

// MaxSpecialChars bounds the punctuation a keyword may carry before the
// format criterion fails.
const MaxSpecialChars = 5

// MinUniqueRatio is the duplicate-token tolerance of the format check.
const MinUniqueRatio = 0.8

// CriterionCheck is the audit record of a single criterion.
type CriterionCheck struct {
	Name     string   `json:"name"`
	Passed   bool     `json:"passed"`
	Actual   float64  `json:"actual"`
	Expected float64  `json:"expected"`
	Weight   float64  `json:"weight"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// Result is the full validation outcome for one candidate. TracingID and
// ElapsedMs are stamped by the orchestrator, not by the validator.
type Result struct {
	Keyword        string                  `json:"keyword"`
	Status         domain.ValidationStatus `json:"status"`
	Score          float64                 `json:"score"`
	Criteria       []CriterionCheck        `json:"criteria"`
	FailureReasons []string                `json:"failure_reasons"`
	PassedCriteria []string                `json:"passed_criteria"`
	Niche          string                  `json:"niche"`
	TracingID      string                  `json:"tracing_id,omitempty"`
	ElapsedMs      float64                 `json:"elapsed_ms,omitempty"`
}

// Candidate carries the scored values the validator reads. The term is
// re-tokenized internally for the format criterion.
type Candidate struct {
	Term        string
	Composite   float64
	Specificity float64
	Similarity  float64
	Confidence  float64
}

// Validator evaluates candidates against niche thresholds.
type Validator struct {
	norm *text.Normalizer
}

// NewValidator returns a validator using the canonical normalizer.
func NewValidator() *Validator {
	return &Validator{norm: text.NewNormalizer(text.DefaultOptions())}
}

// Validate runs all five criteria and aggregates them into a status.
// Every criterion is always evaluated; the audit trail never
// short-circuits.
func (v *Validator) Validate(c Candidate, cfg *niche.Config) Result {
	result := Result{Keyword: c.Term, Niche: cfg.Niche}

	result.add(check(CriterionComposite, c.Composite, cfg.AcceptThreshold,
		fmt.Sprintf("composite %.4f vs acceptance threshold %.2f (gap %+.4f)", c.Composite, cfg.AcceptThreshold, c.Composite-cfg.AcceptThreshold)))

	result.add(check(CriterionSpecificity, c.Specificity, cfg.SpecificityThreshold,
		fmt.Sprintf("specificity %.4f vs threshold %.2f", c.Specificity, cfg.SpecificityThreshold)))

	result.add(check(CriterionSimilarity, c.Similarity, cfg.SimilarityThreshold,
		fmt.Sprintf("similarity %.4f vs threshold %.2f", c.Similarity, cfg.SimilarityThreshold)))

	result.add(v.checkFormat(c.Term, cfg))

	result.add(check(CriterionConfidence, c.Confidence, cfg.ConfidenceThreshold,
		fmt.Sprintf("confidence %.4f vs floor %.2f", c.Confidence, cfg.ConfidenceThreshold)))

	result.aggregate()
	return result
}

func check(name string, actual, expected float64, message string) CriterionCheck {
	return CriterionCheck{
		Name:     name,
		Passed:   actual >= expected,
		Actual:   actual,
		Expected: expected,
		Weight:   criterionWeights[name],
		Severity: criterionSeverities[name],
		Message:  message,
	}
}

// checkFormat verifies word count bounds, special character budget, and
// token uniqueness. Actual reports the word count; the message carries
// the sub-check that failed.
func (v *Validator) checkFormat(term string, cfg *niche.Config) CriterionCheck {
	tokens := text.Tokenize(v.norm.Normalize(term))
	words := len(tokens)

	specials := 0
	for _, r := range term {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsSpace(r) {
			specials++
		}
	}

	unique := make(map[string]struct{}, words)
	for _, tok := range tokens {
		unique[tok] = struct{}{}
	}
	uniqueRatio := 0.0
	if words > 0 {
		uniqueRatio = float64(len(unique)) / float64(words)
	}

	result := CriterionCheck{
		Name:     CriterionFormat,
		Actual:   float64(words),
		Expected: float64(cfg.MinWords),
		Weight:   criterionWeights[CriterionFormat],
		Severity: criterionSeverities[CriterionFormat],
	}

	switch {
	case words < cfg.MinWords || words > cfg.MaxWords:
		result.Message = fmt.Sprintf("word count %d outside [%d,%d]", words, cfg.MinWords, cfg.MaxWords)
	case specials > MaxSpecialChars:
		result.Message = fmt.Sprintf("%d special characters exceed limit %d", specials, MaxSpecialChars)
	case uniqueRatio < MinUniqueRatio:
		result.Message = fmt.Sprintf("unique token ratio %.2f below %.2f", uniqueRatio, MinUniqueRatio)
	default:
		result.Passed = true
		result.Message = fmt.Sprintf("word count %d within [%d,%d]", words, cfg.MinWords, cfg.MaxWords)
	}
	return result
}

func (r *Result) add(c CriterionCheck) {
	r.Criteria = append(r.Criteria, c)
	if c.Passed {
		r.PassedCriteria = append(r.PassedCriteria, c.Name)
	} else {
		r.FailureReasons = append(r.FailureReasons, fmt.Sprintf("%s: %s", c.Name, c.Message))
	}
}

// aggregate folds the criteria into the weighted score and maps it to a
// status. Failed criticals and highs subtract beyond their lost weight.
func (r *Result) aggregate() {
	score := 0.0
	for _, c := range r.Criteria {
		if c.Passed {
			score += c.Weight
			continue
		}
		switch c.Severity {
		case SeverityCritical:
			score -= criticalPenalty * c.Weight
		case SeverityHigh:
			score -= highPenalty * c.Weight
		}
	}
	r.Score = domain.Clamp01(score)

	switch {
	case r.Score >= approveFloor:
		r.Status = domain.StatusApproved
	case r.Score >= pendingFloor:
		r.Status = domain.StatusPending
	default:
		r.Status = domain.StatusRejected
	}
}

// Failed reports whether a named criterion is among the failures.
func (r *Result) Failed(name string) bool {
	for _, c := range r.Criteria {
		if c.Name == name {
			return !c.Passed
		}
	}
	return false
}
