package score

import (
	"math"

	"github.com/seoscope/keywordrun/internal/domain"
	"github.com/seoscope/keywordrun/internal/niche"
)

// Components are the four per-candidate scores the composite blends.
type Components struct {
	Complexity  float64 `json:"complexity"`
	Specificity float64 `json:"specificity"`
	Competitive float64 `json:"competitive"`
	Trend       float64 `json:"trend"`
}

// slice returns the components in their canonical order.
func (c Components) slice() [4]float64 {
	return [4]float64{c.Complexity, c.Specificity, c.Competitive, c.Trend}
}

// CompositeScore is the blended result plus the weights that produced
// it and a dispersion-based confidence.
type CompositeScore struct {
	Components Components         `json:"components"`
	Weights    niche.Weights      `json:"weights"`
	Score      float64            `json:"score"`
	Band       domain.QualityBand `json:"band"`
	Confidence float64            `json:"confidence"`
}

// CompositeScorer blends component scores under niche weights.
// Weights are normalized before blending, never after.
type CompositeScorer struct {
	quality domain.QualityThresholds
}

// NewCompositeScorer builds a scorer with the given reporting scale; a
// zero value falls back to the default thresholds.
func NewCompositeScorer(quality domain.QualityThresholds) *CompositeScorer {
	if quality == (domain.QualityThresholds{}) {
		quality = domain.DefaultQualityThresholds()
	}
	return &CompositeScorer{quality: quality}
}

// Score blends the components with the niche's normalized weights.
func (s *CompositeScorer) Score(c Components, cfg *niche.Config) (CompositeScore, error) {
	weights, err := cfg.Weights.Normalize()
	if err != nil {
		return CompositeScore{}, err
	}

	blended := weights.Complexity*c.Complexity +
		weights.Specificity*c.Specificity +
		weights.Competitive*c.Competitive +
		weights.Trend*c.Trend

	result := CompositeScore{
		Components: c,
		Weights:    weights,
		Score:      domain.Clamp01(blended),
		Confidence: confidence(c.slice()),
	}
	result.Band = s.quality.Classify(result.Score)
	return result, nil
}

// confidence measures component agreement: 1 minus the coefficient of
// variation, clamped to [0.1, 1]. A zero mean leaves it undefined and
// reports the neutral 0.5.
func confidence(components [4]float64) float64 {
	mean := 0.0
	for _, v := range components {
		mean += v
	}
	mean /= float64(len(components))
	if mean == 0 {
		return 0.5
	}

	variance := 0.0
	for _, v := range components {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(components))

	conf := 1 - math.Sqrt(variance)/mean
	return math.Max(0.1, math.Min(1, conf))
}
