package niche

import (
	"fmt"
	"math"
	"sort"

	"github.com/seoscope/keywordrun/internal/domain"
)

// Bound is the inclusive range a tunable parameter may take.
type Bound struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

// Contains reports whether v lies inside the bound.
func (b Bound) Contains(v float64) bool { return v >= b.Min && v <= b.Max }

// Clamp pulls v back inside the bound.
func (b Bound) Clamp(v float64) float64 {
	return math.Max(b.Min, math.Min(b.Max, v))
}

// Parameter keys of the tunable subset. The optimizer's vectors and the
// ledger's parameter records use exactly these names.
const (
	ParamMinWords             = "min_words"
	ParamMaxWords             = "max_words"
	ParamSpecificityThreshold = "specificity_threshold"
	ParamSimilarityThreshold  = "similarity_threshold"
	ParamConfidenceThreshold  = "confidence_threshold"
	ParamAcceptThreshold      = "accept_threshold"
	ParamWeightComplexity     = "weight_complexity"
	ParamWeightSpecificity    = "weight_specificity"
	ParamWeightCompetitive    = "weight_competitive"
	ParamWeightTrend          = "weight_trend"
)

// DefaultBounds returns the valid ranges for every tunable parameter.
func DefaultBounds() map[string]Bound {
	return map[string]Bound{
		ParamMinWords:             {Min: 1, Max: 6},
		ParamMaxWords:             {Min: 4, Max: 20},
		ParamSpecificityThreshold: {Min: 0.20, Max: 0.90},
		ParamSimilarityThreshold:  {Min: 0.05, Max: 0.90},
		ParamConfidenceThreshold:  {Min: 0.10, Max: 0.90},
		ParamAcceptThreshold:      {Min: 0.40, Max: 0.95},
		ParamWeightComplexity:     {Min: 0.05, Max: 0.60},
		ParamWeightSpecificity:    {Min: 0.05, Max: 0.60},
		ParamWeightCompetitive:    {Min: 0.05, Max: 0.60},
		ParamWeightTrend:          {Min: 0.05, Max: 0.60},
	}
}

// ParameterKeys lists the tunable keys in a stable order.
func ParameterKeys() []string {
	keys := make([]string, 0, len(DefaultBounds()))
	for k := range DefaultBounds() {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ParameterVector flattens the tunable subset of a config. The vector
// round-trips through ApplyParameters exactly.
func (c *Config) ParameterVector() map[string]float64 {
	return map[string]float64{
		ParamMinWords:             float64(c.MinWords),
		ParamMaxWords:             float64(c.MaxWords),
		ParamSpecificityThreshold: c.SpecificityThreshold,
		ParamSimilarityThreshold:  c.SimilarityThreshold,
		ParamConfidenceThreshold:  c.ConfidenceThreshold,
		ParamAcceptThreshold:      c.AcceptThreshold,
		ParamWeightComplexity:     c.Weights.Complexity,
		ParamWeightSpecificity:    c.Weights.Specificity,
		ParamWeightCompetitive:    c.Weights.Competitive,
		ParamWeightTrend:          c.Weights.Trend,
	}
}

// ApplyParameters returns a new snapshot with the vector applied. Each
// value is clamped to its bound, weights are renormalized, and the
// result is fully validated. Unknown keys are a config error.
func (c *Config) ApplyParameters(params map[string]float64, bounds map[string]Bound) (*Config, error) {
	out := c.Clone()
	for key, raw := range params {
		bound, ok := bounds[key]
		if !ok {
			return nil, domain.NewConfigError("config/unknown_parameter", fmt.Sprintf("niche %s: unknown tunable %q", c.Niche, key))
		}
		v := bound.Clamp(raw)
		switch key {
		case ParamMinWords:
			out.MinWords = int(math.Round(v))
		case ParamMaxWords:
			out.MaxWords = int(math.Round(v))
		case ParamSpecificityThreshold:
			out.SpecificityThreshold = v
		case ParamSimilarityThreshold:
			out.SimilarityThreshold = v
		case ParamConfidenceThreshold:
			out.ConfidenceThreshold = v
		case ParamAcceptThreshold:
			out.AcceptThreshold = v
		case ParamWeightComplexity:
			out.Weights.Complexity = v
		case ParamWeightSpecificity:
			out.Weights.Specificity = v
		case ParamWeightCompetitive:
			out.Weights.Competitive = v
		case ParamWeightTrend:
			out.Weights.Trend = v
		}
	}
	if out.MaxWords < out.MinWords {
		out.MaxWords = out.MinWords
	}
	normalized, err := out.Weights.Normalize()
	if err != nil {
		return nil, err
	}
	out.Weights = normalized
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}
