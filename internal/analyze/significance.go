// Package analyze holds the per-keyword text analyzers: significance
// filtering, complexity profiling, and corpus similarity. Each analyzer
// is pure and safe for concurrent use once constructed.
package analyze

import (
	"math"
	"unicode"

	"github.com/seoscope/keywordrun/internal/domain"
	"github.com/seoscope/keywordrun/internal/text"
)

// Rejection reasons, applied in order with first match winning.
const (
	RejectTooShort = "too_short"
	RejectStopword = "stopword"
	RejectNumeric  = "numeric"
	RejectNonAlpha = "non_alpha"
)

// SignificanceConfig tunes the token filter.
type SignificanceConfig struct {
	Locale   string `json:"locale" yaml:"locale"`
	MinChars int    `json:"min_chars" yaml:"min_chars"`
}

// DefaultSignificanceConfig uses the pt vocabulary and a three-rune
// minimum token length.
func DefaultSignificanceConfig() SignificanceConfig {
	return SignificanceConfig{Locale: text.DefaultLocale, MinChars: 3}
}

// RejectedToken records a filtered token with the first rule it hit.
type RejectedToken struct {
	Token  string `json:"token"`
	Reason string `json:"reason"`
}

// SignificanceResult is the full output of the token filter plus the
// derived significance and specificity scores.
type SignificanceResult struct {
	SignificantTokens []string        `json:"significant_tokens"`
	TotalTokens       int             `json:"total_tokens"`
	UniqueTokens      int             `json:"unique_tokens"`
	UniqueSignificant int             `json:"unique_significant_tokens"`
	Score             float64         `json:"score"`
	Specificity       float64         `json:"specificity"`
	RejectedTokens    []RejectedToken `json:"rejected_tokens"`
	NormalizedText    string          `json:"normalized_text"`
}

// SignificanceAnalyzer filters keyword tokens against the locale
// vocabulary and scores the survivors by intent-term presence.
type SignificanceAnalyzer struct {
	cfg   SignificanceConfig
	norm  *text.Normalizer
	vocab *text.Vocabulary
}

// NewSignificanceAnalyzer builds the analyzer, resolving the locale
// vocabulary up front so per-keyword calls cannot fail.
func NewSignificanceAnalyzer(cfg SignificanceConfig) (*SignificanceAnalyzer, error) {
	if cfg.MinChars <= 0 {
		cfg.MinChars = 3
	}
	vocab, err := text.VocabularyFor(cfg.Locale)
	if err != nil {
		return nil, err
	}
	return &SignificanceAnalyzer{
		cfg:   cfg,
		norm:  text.NewNormalizer(text.DefaultOptions()),
		vocab: vocab,
	}, nil
}

// Analyze filters and scores raw keyword text. Empty input yields a
// zero-score result, never an error.
func (a *SignificanceAnalyzer) Analyze(raw string) SignificanceResult {
	normalized := a.norm.Normalize(raw)
	tokens := text.Tokenize(normalized)

	result := SignificanceResult{
		TotalTokens:    len(tokens),
		NormalizedText: normalized,
	}
	if len(tokens) == 0 {
		return result
	}

	unique := make(map[string]struct{}, len(tokens))
	uniqueSig := make(map[string]struct{}, len(tokens))
	intentHits := 0
	for _, tok := range tokens {
		unique[tok] = struct{}{}
		if reason, rejected := a.reject(tok); rejected {
			result.RejectedTokens = append(result.RejectedTokens, RejectedToken{Token: tok, Reason: reason})
			continue
		}
		result.SignificantTokens = append(result.SignificantTokens, tok)
		uniqueSig[tok] = struct{}{}
		if a.vocab.IsIntent(tok) {
			intentHits++
		}
	}

	result.UniqueTokens = len(unique)
	result.UniqueSignificant = len(uniqueSig)

	significant := len(result.SignificantTokens)
	denom := math.Max(float64(significant), 1)
	result.Score = domain.Clamp01(0.7*float64(significant)/denom + 0.3*float64(intentHits)/denom)
	result.Specificity = domain.Clamp01(0.6*result.Score + 0.4*math.Min(1, float64(result.TotalTokens)/6))
	return result
}

// reject applies the filter rules in their fixed order.
func (a *SignificanceAnalyzer) reject(token string) (string, bool) {
	if len([]rune(token)) < a.cfg.MinChars {
		return RejectTooShort, true
	}
	if a.vocab.IsStopword(token) {
		return RejectStopword, true
	}
	allDigits := true
	hasNonLetter := false
	for _, r := range token {
		if !unicode.IsDigit(r) {
			allDigits = false
		}
		if !unicode.IsLetter(r) {
			hasNonLetter = true
		}
	}
	if allDigits {
		return RejectNumeric, true
	}
	if hasNonLetter {
		return RejectNonAlpha, true
	}
	return "", false
}

// Locale reports which vocabulary the analyzer filters with.
func (a *SignificanceAnalyzer) Locale() string { return a.vocab.Locale() }
