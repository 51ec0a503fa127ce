package analyze

import (
	"github.com/seoscope/keywordrun/internal/domain"
	"github.com/seoscope/keywordrun/internal/text"
)

// ComplexityConfig tunes the four-signal complexity blend.
type ComplexityConfig struct {
	WeightDensity   float64               `json:"weight_density" yaml:"weight_density"`
	WeightTechnical float64               `json:"weight_technical" yaml:"weight_technical"`
	WeightLength    float64               `json:"weight_length" yaml:"weight_length"`
	WeightVariety   float64               `json:"weight_variety" yaml:"weight_variety"`
	MeanLengthCap   float64               `json:"mean_length_cap" yaml:"mean_length_cap"`
	Bands           domain.BandThresholds `json:"bands" yaml:"bands"`
}

// DefaultComplexityConfig is the blend the pipeline ships with.
func DefaultComplexityConfig() ComplexityConfig {
	return ComplexityConfig{
		WeightDensity:   0.3,
		WeightTechnical: 0.3,
		WeightLength:    0.2,
		WeightVariety:   0.2,
		MeanLengthCap:   15,
		Bands:           domain.BandThresholds{Low: 0.3, Medium: 0.6, High: 0.8},
	}
}

// ComplexityResult carries the four sub-signals, the blended score, its
// band, and the reproducibility metadata.
type ComplexityResult struct {
	Density          float64          `json:"density"`
	TechnicalRatio   float64          `json:"technical_ratio"`
	MeanLength       float64          `json:"mean_length"`
	Variety          float64          `json:"variety"`
	Score            float64          `json:"score"`
	Band             domain.Band      `json:"band"`
	SignificantChars int              `json:"significant_chars"`
	NormalizedText   string           `json:"normalized_text"`
	Config           ComplexityConfig `json:"config"`
}

// ComplexityAnalyzer profiles how demanding a keyword's language is.
type ComplexityAnalyzer struct {
	cfg  ComplexityConfig
	norm *text.Normalizer
}

// NewComplexityAnalyzer builds the analyzer, falling back to defaults
// for zeroed weights or caps.
func NewComplexityAnalyzer(cfg ComplexityConfig) *ComplexityAnalyzer {
	def := DefaultComplexityConfig()
	if cfg.WeightDensity+cfg.WeightTechnical+cfg.WeightLength+cfg.WeightVariety == 0 {
		cfg.WeightDensity = def.WeightDensity
		cfg.WeightTechnical = def.WeightTechnical
		cfg.WeightLength = def.WeightLength
		cfg.WeightVariety = def.WeightVariety
	}
	if cfg.MeanLengthCap <= 0 {
		cfg.MeanLengthCap = def.MeanLengthCap
	}
	if !cfg.Bands.Valid() {
		cfg.Bands = def.Bands
	}
	return &ComplexityAnalyzer{cfg: cfg, norm: text.NewNormalizer(text.DefaultOptions())}
}

// Analyze scores raw keyword text. Empty input yields a zero result in
// the low band.
func (a *ComplexityAnalyzer) Analyze(raw string) ComplexityResult {
	normalized := a.norm.Normalize(raw)
	tokens := text.Tokenize(normalized)

	result := ComplexityResult{
		NormalizedText:   normalized,
		SignificantChars: text.SignificantChars(normalized),
		Config:           a.cfg,
		Band:             a.cfg.Bands.Classify(0),
	}
	if len(tokens) == 0 {
		return result
	}

	unique := make(map[string]struct{}, len(tokens))
	technical := 0
	runeTotal := 0
	for _, tok := range tokens {
		unique[tok] = struct{}{}
		runeTotal += len([]rune(tok))
		if _, ok := technicalVocabulary[tok]; ok {
			technical++
		}
	}

	total := float64(len(tokens))
	result.Density = float64(len(unique)) / total
	result.TechnicalRatio = float64(technical) / total
	meanLen := float64(runeTotal) / total
	result.MeanLength = domain.Clamp01(meanLen / a.cfg.MeanLengthCap)
	result.Variety = result.Density

	result.Score = domain.Clamp01(
		a.cfg.WeightDensity*result.Density +
			a.cfg.WeightTechnical*result.TechnicalRatio +
			a.cfg.WeightLength*result.MeanLength +
			a.cfg.WeightVariety*result.Variety)
	result.Band = a.cfg.Bands.Classify(result.Score)
	return result
}

// technicalVocabulary is the cross-locale complex-term set, stored
// pre-normalized. Terms here push the technical ratio up.
var technicalVocabulary = func() map[string]struct{} {
	terms := []string{
		// software and infrastructure
		"algorithm", "api", "authentication", "automatic", "backend", "backup", "bandwidth",
		"blockchain", "browser", "cache", "certificate", "cloud", "cluster", "compiler",
		"configure", "configuration", "container", "database", "debug", "deployment", "docker",
		"encryption", "endpoint", "firewall", "firmware", "framework", "frontend", "gateway",
		"hosting", "integration", "kernel", "kubernetes", "latency", "linux", "middleware",
		"migration", "monitoring", "network", "optimization", "protocol", "proxy", "query",
		"repository", "router", "runtime", "scalability", "server", "software", "storage",
		"synchronization", "terminal", "throughput", "virtualization", "windows",
		// analytics and academia
		"analysis", "analytics", "benchmark", "coefficient", "correlation", "dataset",
		"hypothesis", "inference", "metodologia", "methodology", "parametro", "parameter",
		"regression", "statistical", "variancia", "variance",
		// health and finance
		"cardiovascular", "cholesterol", "diagnostico", "diagnosis", "glicemia", "hipertensao",
		"hypertension", "imunidade", "metabolism", "metabolismo", "nutricional", "nutritional",
		"amortizacao", "amortization", "dividendos", "dividends", "financiamento", "liquidez",
		"liquidity", "portfolio", "rentabilidade", "volatility", "volatilidade",
		// pt/es technology
		"algoritmo", "aplicativo", "armazenamento", "automatico", "certificado", "cifrado",
		"codigo", "compilador", "configuracao", "configurar", "criptografia", "desempenho",
		"infraestrutura", "instalacao", "integracao", "monitoramento", "otimizacao", "rede",
		"respaldo", "seguranca", "servidor", "sincronizacao", "virtualizacao",
	}
	set := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		set[t] = struct{}{}
	}
	return set
}()
