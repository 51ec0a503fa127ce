package analyze

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/seoscope/keywordrun/internal/domain"
)

func TestComplexityTechnicalKeyword(t *testing.T) {
	analyzer := NewComplexityAnalyzer(DefaultComplexityConfig())

	result := analyzer.Analyze("how to configure automatic backup on windows 11")

	assert.InDelta(t, 1.0, result.Density, 1e-9, "all eight tokens distinct")
	assert.InDelta(t, 0.5, result.TechnicalRatio, 1e-9, "configure, automatic, backup, windows")
	assert.InDelta(t, 5.0/15.0, result.MeanLength, 1e-9)
	assert.InDelta(t, result.Density, result.Variety, 1e-9)

	// 0.3*1 + 0.3*0.5 + 0.2*(1/3) + 0.2*1
	assert.InDelta(t, 0.7166667, result.Score, 1e-6)
	assert.Equal(t, domain.BandHigh, result.Band)
	assert.Equal(t, 40, result.SignificantChars)
}

func TestComplexityRepeatedTokens(t *testing.T) {
	analyzer := NewComplexityAnalyzer(DefaultComplexityConfig())

	result := analyzer.Analyze("backup backup backup")
	assert.InDelta(t, 1.0/3.0, result.Density, 1e-9)
	assert.InDelta(t, 1.0, result.TechnicalRatio, 1e-9)
	assert.InDelta(t, 0.4, result.MeanLength, 1e-9)
	assert.InDelta(t, 0.5466667, result.Score, 1e-6)
	assert.Equal(t, domain.BandMedium, result.Band)
}

func TestComplexityEmptyInput(t *testing.T) {
	analyzer := NewComplexityAnalyzer(DefaultComplexityConfig())

	result := analyzer.Analyze("   ")
	assert.Zero(t, result.Score)
	assert.Equal(t, domain.BandLow, result.Band)
	assert.Zero(t, result.SignificantChars)
}

func TestComplexityBandThresholds(t *testing.T) {
	tests := []struct {
		score float64
		want  domain.Band
	}{
		{score: 0.0, want: domain.BandLow},
		{score: 0.29, want: domain.BandLow},
		{score: 0.3, want: domain.BandMedium},
		{score: 0.59, want: domain.BandMedium},
		{score: 0.6, want: domain.BandHigh},
		{score: 0.79, want: domain.BandHigh},
		{score: 0.8, want: domain.BandVeryHigh},
		{score: 1.0, want: domain.BandVeryHigh},
	}
	bands := DefaultComplexityConfig().Bands
	for _, tt := range tests {
		assert.Equal(t, tt.want, bands.Classify(tt.score), "score %.2f", tt.score)
	}
}

func TestComplexityConfigDefaults(t *testing.T) {
	analyzer := NewComplexityAnalyzer(ComplexityConfig{})
	result := analyzer.Analyze("database migration tutorial")
	assert.Greater(t, result.Score, 0.0, "zeroed config falls back to defaults")
	assert.Equal(t, DefaultComplexityConfig().MeanLengthCap, result.Config.MeanLengthCap)
}
