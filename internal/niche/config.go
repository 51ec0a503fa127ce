// Package niche holds the per-niche parameter bundles and the resolver
// that detects which niche a keyword belongs to. Configs are immutable
// snapshots: adjustments produce a new snapshot, readers in flight keep
// the one they resolved.
package niche

import (
	"fmt"
	"math"
	"time"

	"github.com/seoscope/keywordrun/internal/domain"
)

// WeightSumTolerance bounds the drift allowed on a weight set before
// renormalization is considered failed.
const WeightSumTolerance = 1e-6

// Weights blends the four component scores into the composite.
type Weights struct {
	Complexity  float64 `json:"complexity" yaml:"complexity"`
	Specificity float64 `json:"specificity" yaml:"specificity"`
	Competitive float64 `json:"competitive" yaml:"competitive"`
	Trend       float64 `json:"trend" yaml:"trend"`
}

// Sum returns the raw total of the four weights.
func (w Weights) Sum() float64 {
	return w.Complexity + w.Specificity + w.Competitive + w.Trend
}

// Normalize scales the weights to sum to 1. Negative weights and a
// vanishing sum are config errors; rank order is always preserved.
func (w Weights) Normalize() (Weights, error) {
	if w.Complexity < 0 || w.Specificity < 0 || w.Competitive < 0 || w.Trend < 0 {
		return w, domain.NewConfigError("config/negative_weight", fmt.Sprintf("weights must be non-negative: %+v", w))
	}
	sum := w.Sum()
	if sum <= 0 {
		return w, domain.NewConfigError("config/zero_weight_sum", "weights sum to zero")
	}
	if math.Abs(sum-1) <= WeightSumTolerance {
		return w, nil
	}
	return Weights{
		Complexity:  w.Complexity / sum,
		Specificity: w.Specificity / sum,
		Competitive: w.Competitive / sum,
		Trend:       w.Trend / sum,
	}, nil
}

// Normalized reports whether the weights already sum to 1 within
// tolerance.
func (w Weights) Normalized() bool {
	return math.Abs(w.Sum()-1) <= WeightSumTolerance
}

// Map flattens the weights into the key set the ledger and optimizer
// share.
func (w Weights) Map() map[string]float64 {
	return map[string]float64{
		"complexity":  w.Complexity,
		"specificity": w.Specificity,
		"competitive": w.Competitive,
		"trend":       w.Trend,
	}
}

// CompetitiveWeights blends the three market signals into the
// competitive score.
type CompetitiveWeights struct {
	Volume      float64 `json:"volume" yaml:"volume"`
	CPC         float64 `json:"cpc" yaml:"cpc"`
	Competition float64 `json:"competition" yaml:"competition"`
}

// Normalize scales the competitive weights to sum to 1.
func (w CompetitiveWeights) Normalize() (CompetitiveWeights, error) {
	if w.Volume < 0 || w.CPC < 0 || w.Competition < 0 {
		return w, domain.NewConfigError("config/negative_weight", fmt.Sprintf("competitive weights must be non-negative: %+v", w))
	}
	sum := w.Volume + w.CPC + w.Competition
	if sum <= 0 {
		return w, domain.NewConfigError("config/zero_weight_sum", "competitive weights sum to zero")
	}
	if math.Abs(sum-1) <= WeightSumTolerance {
		return w, nil
	}
	return CompetitiveWeights{Volume: w.Volume / sum, CPC: w.CPC / sum, Competition: w.Competition / sum}, nil
}

// Config is the full parameter bundle for one niche. Treat instances as
// immutable; the resolver hands out copies, never its own pointers.
type Config struct {
	Niche                string                `json:"niche" yaml:"niche"`
	MinWords             int                   `json:"min_words" yaml:"min_words"`
	MaxWords             int                   `json:"max_words" yaml:"max_words"`
	SpecificityThreshold float64               `json:"specificity_threshold" yaml:"specificity_threshold"`
	SimilarityThreshold  float64               `json:"similarity_threshold" yaml:"similarity_threshold"`
	ConfidenceThreshold  float64               `json:"confidence_threshold" yaml:"confidence_threshold"`
	AcceptThreshold      float64               `json:"accept_threshold" yaml:"accept_threshold"`
	Weights              Weights               `json:"weights" yaml:"weights"`
	CompetitiveWeights   CompetitiveWeights    `json:"competitive_weights" yaml:"competitive_weights"`
	CompetitiveBands     domain.BandThresholds `json:"competitive_bands" yaml:"competitive_bands"`
	VolumeCap            float64               `json:"volume_cap" yaml:"volume_cap"`
	CPCCap               float64               `json:"cpc_cap" yaml:"cpc_cap"`
	CompetitionCap       float64               `json:"competition_cap" yaml:"competition_cap"`
	PositiveTerms        []string              `json:"positive_terms" yaml:"positive_terms"`
	NegativeTerms        []string              `json:"negative_terms" yaml:"negative_terms"`
	StageTimeout         time.Duration         `json:"stage_timeout" yaml:"stage_timeout"`
	CacheTTL             time.Duration         `json:"cache_ttl" yaml:"cache_ttl"`
}

// Clone returns a deep copy the caller may hold across adjustments.
func (c *Config) Clone() *Config {
	out := *c
	out.PositiveTerms = append([]string(nil), c.PositiveTerms...)
	out.NegativeTerms = append([]string(nil), c.NegativeTerms...)
	return &out
}

// Validate checks the invariants every snapshot must satisfy.
func (c *Config) Validate() error {
	if c.Niche == "" {
		return domain.NewConfigError("config/empty_niche", "niche tag is empty")
	}
	if c.MinWords < 1 || c.MaxWords < c.MinWords {
		return domain.NewConfigError("config/word_bounds", fmt.Sprintf("niche %s: word bounds [%d,%d] invalid", c.Niche, c.MinWords, c.MaxWords))
	}
	for name, v := range map[string]float64{
		"specificity_threshold": c.SpecificityThreshold,
		"similarity_threshold":  c.SimilarityThreshold,
		"confidence_threshold":  c.ConfidenceThreshold,
		"accept_threshold":      c.AcceptThreshold,
	} {
		if v < 0 || v > 1 {
			return domain.NewConfigError("config/threshold_range", fmt.Sprintf("niche %s: %s %.4f outside [0,1]", c.Niche, name, v))
		}
	}
	if !c.Weights.Normalized() {
		return domain.NewConfigError("config/weights_sum", fmt.Sprintf("niche %s: weights sum %.8f", c.Niche, c.Weights.Sum()))
	}
	if c.VolumeCap <= 0 || c.CPCCap <= 0 || c.CompetitionCap <= 0 {
		return domain.NewConfigError("config/caps", fmt.Sprintf("niche %s: caps must be positive", c.Niche))
	}
	if !c.CompetitiveBands.Valid() {
		return domain.NewConfigError("config/competitive_bands", fmt.Sprintf("niche %s: band thresholds unordered", c.Niche))
	}
	return nil
}

// Generic is the fallback niche every detection miss resolves to.
const Generic = "generic"

// DefaultCatalog returns the built-in parameter bundles, weights already
// normalized.
func DefaultCatalog() map[string]*Config {
	base := domain.BandThresholds{Low: 0.25, Medium: 0.50, High: 0.75}
	standard := CompetitiveWeights{Volume: 0.40, CPC: 0.30, Competition: 0.30}
	catalog := []*Config{
		{
			Niche: Generic, MinWords: 2, MaxWords: 10,
			SpecificityThreshold: 0.50, SimilarityThreshold: 0.30, ConfidenceThreshold: 0.50, AcceptThreshold: 0.70,
			Weights:            Weights{Complexity: 0.25, Specificity: 0.30, Competitive: 0.25, Trend: 0.20},
			CompetitiveWeights: standard, CompetitiveBands: base,
			VolumeCap: 10000, CPCCap: 2.5, CompetitionCap: 1.0,
			PositiveTerms: []string{
				"melhor", "como", "guia", "review", "dicas", "tutorial", "ideias",
				"exemplos", "lista", "top",
			},
			StageTimeout: 5 * time.Second, CacheTTL: 15 * time.Minute,
		},
		{
			Niche: "technology", MinWords: 3, MaxWords: 12,
			SpecificityThreshold: 0.55, SimilarityThreshold: 0.30, ConfidenceThreshold: 0.50, AcceptThreshold: 0.70,
			Weights:            Weights{Complexity: 0.30, Specificity: 0.30, Competitive: 0.20, Trend: 0.20},
			CompetitiveWeights: standard, CompetitiveBands: base,
			VolumeCap: 5000, CPCCap: 3.5, CompetitionCap: 1.0,
			PositiveTerms: []string{
				"software", "aplicativo", "app", "windows", "linux", "android",
				"servidor", "server", "backup", "configurar", "configure", "automatic",
				"instalar", "install", "rede", "network", "roteador", "router", "wifi", "cloud",
			},
			NegativeTerms: []string{"crack", "pirata", "keygen"},
			StageTimeout:  5 * time.Second, CacheTTL: 15 * time.Minute,
		},
		{
			Niche: "ecommerce", MinWords: 2, MaxWords: 8,
			SpecificityThreshold: 0.55, SimilarityThreshold: 0.35, ConfidenceThreshold: 0.50, AcceptThreshold: 0.65,
			Weights:            Weights{Complexity: 0.20, Specificity: 0.30, Competitive: 0.30, Trend: 0.20},
			CompetitiveWeights: CompetitiveWeights{Volume: 0.35, CPC: 0.35, Competition: 0.30},
			CompetitiveBands:   base,
			VolumeCap:          20000, CPCCap: 4.0, CompetitionCap: 1.0,
			PositiveTerms: []string{
				"price", "preco", "buy", "comprar", "cheap", "barato", "discount", "desconto",
				"frete", "loja", "produto", "oferta", "promocao", "gaming", "notebook", "smartphone",
			},
			NegativeTerms: []string{"gratis", "free"},
			StageTimeout:  5 * time.Second, CacheTTL: 10 * time.Minute,
		},
		{
			Niche: "health", MinWords: 3, MaxWords: 10,
			SpecificityThreshold: 0.60, SimilarityThreshold: 0.35, ConfidenceThreshold: 0.50, AcceptThreshold: 0.75,
			Weights:            Weights{Complexity: 0.30, Specificity: 0.25, Competitive: 0.20, Trend: 0.25},
			CompetitiveWeights: standard, CompetitiveBands: base,
			VolumeCap: 8000, CPCCap: 3.0, CompetitionCap: 1.0,
			PositiveTerms: []string{
				"saude", "nutricao", "vitamina", "dieta", "sintomas", "tratamento",
				"exercicio", "imunidade", "proteina", "emagrecer", "colesterol", "diabetes",
				"pressao", "treino", "medico", "remedio", "sono", "ansiedade",
			},
			NegativeTerms: []string{"milagre", "cura", "secreto"},
			StageTimeout:  5 * time.Second, CacheTTL: 20 * time.Minute,
		},
		{
			Niche: "education", MinWords: 3, MaxWords: 12,
			SpecificityThreshold: 0.55, SimilarityThreshold: 0.30, ConfidenceThreshold: 0.50, AcceptThreshold: 0.68,
			Weights:            Weights{Complexity: 0.35, Specificity: 0.30, Competitive: 0.15, Trend: 0.20},
			CompetitiveWeights: standard, CompetitiveBands: base,
			VolumeCap: 6000, CPCCap: 2.0, CompetitionCap: 1.0,
			PositiveTerms: []string{
				"curso", "cursos", "aula", "aulas", "estudar", "aprender", "faculdade",
				"universidade", "escola", "prova", "enem", "concurso", "apostila",
				"certificado", "diploma", "bolsa", "gratuito", "online",
			},
			StageTimeout: 5 * time.Second, CacheTTL: 30 * time.Minute,
		},
		{
			Niche: "finance", MinWords: 3, MaxWords: 10,
			SpecificityThreshold: 0.60, SimilarityThreshold: 0.35, ConfidenceThreshold: 0.50, AcceptThreshold: 0.72,
			Weights:            Weights{Complexity: 0.25, Specificity: 0.25, Competitive: 0.30, Trend: 0.20},
			CompetitiveWeights: standard, CompetitiveBands: base,
			VolumeCap: 12000, CPCCap: 6.0, CompetitionCap: 1.0,
			PositiveTerms: []string{
				"investimento", "investir", "acoes", "renda", "juros", "emprestimo",
				"financiamento", "cartao", "credito", "banco", "poupanca", "tesouro",
				"bitcoin", "aposentadoria", "seguro", "imposto", "dividendos",
			},
			NegativeTerms: []string{"garantido", "rapido", "facil"},
			StageTimeout:  5 * time.Second, CacheTTL: 15 * time.Minute,
		},
	}

	out := make(map[string]*Config, len(catalog))
	for _, cfg := range catalog {
		out[cfg.Niche] = cfg
	}
	return out
}
