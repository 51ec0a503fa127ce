package domain

// BandThresholds are the upper bounds of the low..high buckets; a score
// at or above High classifies as very_high.
type BandThresholds struct {
	Low    float64 `json:"low" yaml:"low"`
	Medium float64 `json:"medium" yaml:"medium"`
	High   float64 `json:"high" yaml:"high"`
}

// Classify buckets a score in [0,1] against the thresholds.
func (t BandThresholds) Classify(score float64) Band {
	switch {
	case score < t.Low:
		return BandLow
	case score < t.Medium:
		return BandMedium
	case score < t.High:
		return BandHigh
	default:
		return BandVeryHigh
	}
}

// Valid reports whether the thresholds are ordered and inside [0,1].
func (t BandThresholds) Valid() bool {
	return t.Low >= 0 && t.Low < t.Medium && t.Medium < t.High && t.High <= 1
}

// QualityThresholds are the lower bounds of the composite reporting
// bands; a score below Regular classifies as poor.
type QualityThresholds struct {
	Excellent float64 `json:"excellent" yaml:"excellent"`
	VeryGood  float64 `json:"very_good" yaml:"very_good"`
	Good      float64 `json:"good" yaml:"good"`
	Regular   float64 `json:"regular" yaml:"regular"`
}

// DefaultQualityThresholds is the reporting scale used when configuration
// gives none.
func DefaultQualityThresholds() QualityThresholds {
	return QualityThresholds{Excellent: 0.85, VeryGood: 0.75, Good: 0.65, Regular: 0.50}
}

// Classify buckets a composite score against the thresholds.
func (t QualityThresholds) Classify(score float64) QualityBand {
	switch {
	case score >= t.Excellent:
		return QualityExcellent
	case score >= t.VeryGood:
		return QualityVeryGood
	case score >= t.Good:
		return QualityGood
	case score >= t.Regular:
		return QualityRegular
	default:
		return QualityPoor
	}
}
