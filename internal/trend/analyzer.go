// Package trend classifies the movement of a keyword's metric series
// and produces a short-horizon forecast. The analyzer holds per-series
// locks so concurrent stores and reads of the same keyword are safe.
package trend

import (
	"math"
	"time"

	"github.com/seoscope/keywordrun/internal/domain"
)

// Config tunes the direction classifier and scoring blend.
type Config struct {
	EmergingThreshold   float64 `json:"emerging_threshold" yaml:"emerging_threshold"`
	SignificantGrowth   float64 `json:"significant_growth" yaml:"significant_growth"`
	SignificantDecline  float64 `json:"significant_decline" yaml:"significant_decline"`
	StabilityBand       float64 `json:"stability_band" yaml:"stability_band"`
	SeasonalMinSamples  int     `json:"seasonal_min_samples" yaml:"seasonal_min_samples"`
	SeasonalCorrelation float64 `json:"seasonal_correlation" yaml:"seasonal_correlation"`
}

// DefaultConfig is the classifier the pipeline ships with.
func DefaultConfig() Config {
	return Config{
		EmergingThreshold:   0.5,
		SignificantGrowth:   0.2,
		SignificantDecline:  -0.15,
		StabilityBand:       0.05,
		SeasonalMinSamples:  12,
		SeasonalCorrelation: 0.7,
	}
}

// ForecastMethod tags the only forecasting model currently produced.
const ForecastMethod = "moving_average_3"

// Forecast is the next-period projection; absent when the series is too
// short, which is an expected outcome rather than an error.
type Forecast struct {
	Value    float64 `json:"value"`
	Interval float64 `json:"interval"`
	Method   string  `json:"method"`
}

// Analysis is the full trend read for one keyword series.
type Analysis struct {
	Direction          domain.TrendDirection `json:"direction"`
	Score              float64               `json:"score"`
	Confidence         float64               `json:"confidence"`
	VolumeGrowth       float64               `json:"volume_growth"`
	CPCGrowth          float64               `json:"cpc_growth"`
	CompetitionDelta   float64               `json:"competition_delta"`
	Seasonal           bool                  `json:"seasonal"`
	PatternConsistency float64               `json:"pattern_consistency"`
	SampleCount        int                   `json:"sample_count"`
	Forecast           *Forecast             `json:"forecast,omitempty"`
}

// Analyzer scores ordered sample series. Safe for concurrent use.
type Analyzer struct {
	cfg Config
	now func() time.Time
}

// NewAnalyzer builds an analyzer; zeroed config fields fall back to the
// defaults.
func NewAnalyzer(cfg Config) *Analyzer {
	def := DefaultConfig()
	if cfg.EmergingThreshold <= 0 {
		cfg.EmergingThreshold = def.EmergingThreshold
	}
	if cfg.SignificantGrowth <= 0 {
		cfg.SignificantGrowth = def.SignificantGrowth
	}
	if cfg.SignificantDecline >= 0 {
		cfg.SignificantDecline = def.SignificantDecline
	}
	if cfg.StabilityBand <= 0 {
		cfg.StabilityBand = def.StabilityBand
	}
	if cfg.SeasonalMinSamples <= 0 {
		cfg.SeasonalMinSamples = def.SeasonalMinSamples
	}
	if cfg.SeasonalCorrelation <= 0 {
		cfg.SeasonalCorrelation = def.SeasonalCorrelation
	}
	return &Analyzer{cfg: cfg, now: time.Now}
}

// Analyze reads an ordered series. Fewer than two samples yields the
// neutral stable result with score 0.5 and no forecast.
func (a *Analyzer) Analyze(samples []domain.TrendSample) Analysis {
	n := len(samples)
	if n < 2 {
		return Analysis{
			Direction:   domain.TrendStable,
			Score:       0.5,
			Confidence:  neutralConfidence(n),
			SampleCount: n,
		}
	}

	ordered := append([]domain.TrendSample(nil), samples...)
	domain.SortSamplesByDate(ordered)

	first, last := ordered[0], ordered[n-1]
	analysis := Analysis{
		SampleCount:        n,
		VolumeGrowth:       growth(float64(first.Volume), float64(last.Volume), 1),
		CPCGrowth:          growth(first.CPC, last.CPC, 0.01),
		CompetitionDelta:   last.Competition - first.Competition,
		PatternConsistency: stepConsistency(ordered),
	}
	analysis.Seasonal = a.seasonal(ordered)
	analysis.Direction = a.classify(analysis)
	analysis.Score = a.score(analysis)
	analysis.Confidence = a.confidence(ordered)
	analysis.Forecast = forecast(ordered)
	return analysis
}

// growth is the relative change from first to last with a floored
// denominator, so zero baselines yield finite values.
func growth(first, last, floor float64) float64 {
	return (last - first) / math.Max(first, floor)
}

func (a *Analyzer) classify(an Analysis) domain.TrendDirection {
	if an.Seasonal {
		return domain.TrendSeasonal
	}
	g := an.VolumeGrowth
	switch {
	case g >= a.cfg.EmergingThreshold:
		return domain.TrendEmerging
	case g >= a.cfg.SignificantGrowth:
		return domain.TrendRising
	case g <= a.cfg.SignificantDecline:
		return domain.TrendDeclining
	case math.Abs(g) <= a.cfg.StabilityBand:
		return domain.TrendStable
	default:
		return domain.TrendFalling
	}
}

// seasonal splits the series into contiguous halves and declares
// seasonality when the halves correlate strongly.
func (a *Analyzer) seasonal(samples []domain.TrendSample) bool {
	n := len(samples)
	if n < a.cfg.SeasonalMinSamples {
		return false
	}
	half := n / 2
	left := make([]float64, half)
	right := make([]float64, half)
	for i := 0; i < half; i++ {
		left[i] = float64(samples[i].Volume)
		right[i] = float64(samples[n-half+i].Volume)
	}
	return pearson(left, right) > a.cfg.SeasonalCorrelation
}

// score blends the four movement components with the fixed weights
// {0.4 growth, 0.2 cpc, 0.2 competition, 0.2 pattern}.
func (a *Analyzer) score(an Analysis) float64 {
	growthComponent := domain.Clamp01(0.5 + an.VolumeGrowth)
	cpcComponent := domain.Clamp01(0.5 + an.CPCGrowth)
	competitionComponent := domain.Clamp01(0.5 - an.CompetitionDelta)
	patternComponent := an.PatternConsistency
	if an.Seasonal {
		patternComponent = 1
	}
	return domain.Clamp01(0.4*growthComponent + 0.2*cpcComponent + 0.2*competitionComponent + 0.2*patternComponent)
}

// confidence = 0.4·sample coverage + 0.4·volume consistency + 0.2·recency.
func (a *Analyzer) confidence(samples []domain.TrendSample) float64 {
	n := len(samples)
	coverage := math.Min(1, float64(n)/30)

	mean := 0.0
	for _, s := range samples {
		mean += float64(s.Volume)
	}
	mean /= float64(n)
	consistency := 0.5
	if mean > 0 {
		variance := 0.0
		for _, s := range samples {
			d := float64(s.Volume) - mean
			variance += d * d
		}
		variance /= float64(n)
		consistency = domain.Clamp01(1 - math.Sqrt(variance)/mean)
	}

	days := a.now().Sub(samples[n-1].Date).Hours() / 24
	recency := math.Max(0, 1-days/30)

	return domain.Clamp01(0.4*coverage + 0.4*consistency + 0.2*recency)
}

func neutralConfidence(n int) float64 {
	if n == 0 {
		return 0
	}
	return 0.4 * math.Min(1, float64(n)/30)
}

// stepConsistency is the fraction of consecutive steps that move with
// the overall drift. A perfectly monotone series scores 1.
func stepConsistency(samples []domain.TrendSample) float64 {
	n := len(samples)
	overall := samples[n-1].Volume - samples[0].Volume
	agree := 0
	for i := 1; i < n; i++ {
		step := samples[i].Volume - samples[i-1].Volume
		switch {
		case overall > 0 && step > 0:
			agree++
		case overall < 0 && step < 0:
			agree++
		case overall == 0 && step == 0:
			agree++
		}
	}
	return float64(agree) / float64(n-1)
}

// forecast is the three-sample moving average with a dispersion
// interval; nil when fewer than three samples exist.
func forecast(samples []domain.TrendSample) *Forecast {
	n := len(samples)
	if n < 3 {
		return nil
	}
	window := samples[n-3:]
	mean := 0.0
	for _, s := range window {
		mean += float64(s.Volume)
	}
	mean /= 3

	variance := 0.0
	for _, s := range window {
		d := float64(s.Volume) - mean
		variance += d * d
	}
	variance /= 3

	return &Forecast{Value: mean, Interval: math.Sqrt(variance), Method: ForecastMethod}
}

// pearson is the sample correlation of two equal-length series; 0 when
// either side has no variance.
func pearson(x, y []float64) float64 {
	n := float64(len(x))
	if n == 0 || len(x) != len(y) {
		return 0
	}
	var sumX, sumY float64
	for i := range x {
		sumX += x[i]
		sumY += y[i]
	}
	meanX, meanY := sumX/n, sumY/n

	var cov, varX, varY float64
	for i := range x {
		dx, dy := x[i]-meanX, y[i]-meanY
		cov += dx * dy
		varX += dx * dx
		varY += dy * dy
	}
	if varX == 0 || varY == 0 {
		return 0
	}
	return cov / math.Sqrt(varX*varY)
}
