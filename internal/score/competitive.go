// Package score holds the market-facing scorers: the competitive
// normalizer over raw market signals and the composite blender that
// folds every component into the final keyword score.
package score

import (
	"math"

	"github.com/seoscope/keywordrun/internal/domain"
	"github.com/seoscope/keywordrun/internal/niche"
)

// CompetitiveScore is the normalized view of a keyword's market
// signals. Competition arrives inverted: lower competition scores
// higher.
type CompetitiveScore struct {
	VolumeNorm     float64                  `json:"volume_norm"`
	CPCNorm        float64                  `json:"cpc_norm"`
	CompetitionInv float64                  `json:"competition_inv"`
	Score          float64                  `json:"score"`
	Band           domain.Band              `json:"band"`
	Weights        niche.CompetitiveWeights `json:"weights"`
}

// CompetitiveScorer normalizes market signals against niche caps.
type CompetitiveScorer struct{}

// NewCompetitiveScorer returns a stateless scorer instance.
func NewCompetitiveScorer() *CompetitiveScorer {
	return &CompetitiveScorer{}
}

// Score blends the three signals under the niche's caps and weights.
// Volume is log-normalized so a single outlier cannot dominate.
func (s *CompetitiveScorer) Score(k domain.Keyword, cfg *niche.Config) (CompetitiveScore, error) {
	weights, err := cfg.CompetitiveWeights.Normalize()
	if err != nil {
		return CompetitiveScore{}, err
	}

	volumeNorm := math.Min(1, math.Log1p(float64(k.Volume))/math.Log1p(cfg.VolumeCap))
	cpcNorm := math.Min(1, k.CPC/cfg.CPCCap)
	compNorm := math.Min(1, k.Competition/cfg.CompetitionCap)

	result := CompetitiveScore{
		VolumeNorm:     volumeNorm,
		CPCNorm:        cpcNorm,
		CompetitionInv: 1 - compNorm,
		Weights:        weights,
	}
	result.Score = domain.Clamp01(
		weights.Volume*result.VolumeNorm +
			weights.CPC*result.CPCNorm +
			weights.Competition*result.CompetitionInv)
	result.Band = cfg.CompetitiveBands.Classify(result.Score)
	return result, nil
}
