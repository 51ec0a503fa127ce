package text

import (
	"fmt"
	"sort"

	"github.com/seoscope/keywordrun/internal/domain"
)

// DefaultLocale is the vocabulary used when the caller gives none.
const DefaultLocale = "pt"

// Vocabulary bundles the stopword and intent term sets for one locale.
// Entries are stored pre-normalized (lowercase, diacritics stripped) so
// lookups on normalized tokens hit directly. An intent term is never a
// stopword; the constructor enforces that.
type Vocabulary struct {
	locale   string
	stopword map[string]struct{}
	intent   map[string]struct{}
}

// VocabularyFor returns the vocabulary for a locale tag, or a config
// error when the locale has no registered sets.
func VocabularyFor(locale string) (*Vocabulary, error) {
	if locale == "" {
		locale = DefaultLocale
	}
	stop, ok := stopwords[locale]
	if !ok {
		return nil, domain.NewConfigError("config/unknown_locale", fmt.Sprintf("no vocabulary registered for locale %q", locale))
	}
	return &Vocabulary{
		locale:   locale,
		stopword: stop,
		intent:   intentTerms[locale],
	}, nil
}

// Locales lists the registered locale tags, sorted.
func Locales() []string {
	tags := make([]string, 0, len(stopwords))
	for tag := range stopwords {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// Locale returns the tag this vocabulary was built for.
func (v *Vocabulary) Locale() string { return v.locale }

// IsStopword reports whether a normalized token is a stopword.
func (v *Vocabulary) IsStopword(token string) bool {
	_, ok := v.stopword[token]
	return ok
}

// IsIntent reports whether a normalized token signals search intent.
func (v *Vocabulary) IsIntent(token string) bool {
	_, ok := v.intent[token]
	return ok
}

func setOf(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// Stopword sets exclude every intent term: question words like "como",
// "how" and "donde" carry signal and must survive filtering.
var stopwords = map[string]map[string]struct{}{
	"pt": setOf(
		"de", "a", "o", "que", "e", "do", "da", "em", "um", "para",
		"com", "nao", "uma", "os", "no", "se", "na", "por", "mais", "as",
		"dos", "das", "ao", "mas", "foi", "ele", "tem", "seu", "sua", "ou",
		"ser", "quando", "muito", "ha", "nos", "ja", "esta", "eu", "tambem", "so",
		"pelo", "pela", "ate", "isso", "ela", "entre", "era", "depois", "sem", "mesmo",
		"aos", "ter", "seus", "quem", "nas", "me", "esse", "eles", "essa", "num",
		"nem", "suas", "meu", "minha", "numa", "pelos", "elas", "seja", "este", "dele",
	),
	"en": setOf(
		"the", "a", "an", "and", "or", "but", "if", "then", "else", "for",
		"of", "at", "by", "in", "on", "to", "from", "with", "without", "is",
		"are", "was", "were", "be", "been", "being", "it", "its", "this", "that",
		"these", "those", "as", "so", "than", "too", "very", "can", "will", "just",
		"not", "no", "nor", "do", "does", "did", "have", "has", "had", "i",
		"you", "he", "she", "they", "we", "them", "his", "her", "their", "our",
		"your", "my", "me", "us", "am",
	),
	"es": setOf(
		"el", "la", "los", "las", "un", "una", "unos", "unas", "y", "o",
		"pero", "si", "de", "del", "al", "a", "en", "por", "para", "con",
		"sin", "es", "son", "era", "fue", "ser", "estar", "esta", "este", "esto",
		"estos", "estas", "que", "quien", "no", "ni", "se", "su", "sus", "mi",
		"mis", "tu", "tus", "lo", "le", "les", "nos", "me", "te", "ya",
		"muy", "mas", "tambien", "entre", "hasta", "desde", "cuando", "porque",
	),
}

var intentTerms = map[string]map[string]struct{}{
	"pt": setOf(
		"como", "melhor", "melhores", "guia", "tutorial", "review", "avaliacao", "comparacao",
		"dicas", "passo", "onde", "qual", "quais", "preco", "barato", "comprar", "vale", "pena",
	),
	"en": setOf(
		"how", "what", "why", "where", "which", "best", "top", "guide", "tutorial", "review",
		"comparison", "vs", "versus", "tips", "cheap", "buy", "price", "near",
	),
	"es": setOf(
		"como", "mejor", "mejores", "guia", "tutorial", "resena", "comparacion", "consejos",
		"donde", "cual", "cuales", "precio", "barato", "comprar", "opiniones",
	),
}
