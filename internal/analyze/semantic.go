package analyze

import (
	"math"

	"github.com/seoscope/keywordrun/internal/domain"
	"github.com/seoscope/keywordrun/internal/text"
)

// SemanticAnalyzer measures how close a keyword sits to a niche's
// reference corpus. Each corpus document is TF-IDF vectorized at
// construction; per-keyword calls only vectorize the keyword.
//
// The similarity doubles as the embedding score: every consumer reads
// the same value until a real embedding backend diverges from it.
type SemanticAnalyzer struct {
	norm *text.Normalizer
	idf  map[string]float64
	docs map[string]map[string]float64
	n    int
}

// NewSemanticAnalyzer vectorizes one reference document per corpus key.
// Documents are normalized with the pipeline's canonical transform, so
// callers may pass raw term lists.
func NewSemanticAnalyzer(corpus map[string][]string) *SemanticAnalyzer {
	a := &SemanticAnalyzer{
		norm: text.NewNormalizer(text.DefaultOptions()),
		idf:  make(map[string]float64),
		docs: make(map[string]map[string]float64, len(corpus)),
		n:    len(corpus),
	}

	counts := make(map[string]map[string]int, len(corpus))
	df := make(map[string]int)
	for key, terms := range corpus {
		tf := make(map[string]int)
		for _, term := range terms {
			for _, tok := range text.Tokenize(a.norm.Normalize(term)) {
				tf[tok]++
			}
		}
		counts[key] = tf
		for tok := range tf {
			df[tok]++
		}
	}

	for tok, d := range df {
		a.idf[tok] = math.Log(1 + float64(a.n)/float64(d))
	}
	for key, tf := range counts {
		vec := make(map[string]float64, len(tf))
		for tok, c := range tf {
			vec[tok] = float64(c) * a.idf[tok]
		}
		a.docs[key] = vec
	}
	return a
}

// Similarity returns the TF-IDF cosine between the keyword and the
// named corpus document, in [0,1]. Unknown documents and empty keywords
// score 0.
func (a *SemanticAnalyzer) Similarity(term, corpusKey string) float64 {
	doc, ok := a.docs[corpusKey]
	if !ok {
		return 0
	}

	tf := make(map[string]int)
	for _, tok := range text.Tokenize(a.norm.Normalize(term)) {
		tf[tok]++
	}
	if len(tf) == 0 {
		return 0
	}

	vec := make(map[string]float64, len(tf))
	for tok, c := range tf {
		idf, seen := a.idf[tok]
		if !seen {
			// Off-corpus tokens still count toward the keyword norm,
			// pulling similarity down.
			idf = math.Log(1 + float64(a.n))
		}
		vec[tok] = float64(c) * idf
	}
	return domain.Clamp01(cosine(vec, doc))
}

// BestMatch returns the corpus key with the highest similarity and that
// similarity. Empty corpus returns ("", 0).
func (a *SemanticAnalyzer) BestMatch(term string) (string, float64) {
	bestKey := ""
	bestScore := 0.0
	for key := range a.docs {
		if s := a.Similarity(term, key); s > bestScore || (s == bestScore && (bestKey == "" || key < bestKey)) {
			bestKey, bestScore = key, s
		}
	}
	if bestScore == 0 {
		return "", 0
	}
	return bestKey, bestScore
}

// cosine computes the cosine of two sparse vectors; 0 when either norm
// vanishes.
func cosine(a, b map[string]float64) float64 {
	var dot, normA, normB float64
	for tok, va := range a {
		normA += va * va
		if vb, ok := b[tok]; ok {
			dot += va * vb
		}
	}
	for _, vb := range b {
		normB += vb * vb
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
