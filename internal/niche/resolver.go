package niche

import (
	"fmt"
	"sort"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"github.com/seoscope/keywordrun/internal/domain"
	"github.com/seoscope/keywordrun/internal/text"
)

// DetectionThreshold is the minimum normalized match score a niche needs
// to beat the generic fallback.
const DetectionThreshold = 0.2

// HintBias is added to the score of a caller-supplied niche hint.
const HintBias = 0.3

// Detection reports how a keyword was matched to its niche.
type Detection struct {
	Niche   string  `json:"niche"`
	Score   float64 `json:"score"`
	Matches int     `json:"matches"`
	Hinted  bool    `json:"hinted"`
}

type termIndex struct {
	positive map[string]struct{}
	negative map[string]struct{}
}

// Resolver detects niches and hands out immutable config snapshots.
// Adjustments are copy-on-write: readers holding a snapshot never see a
// later write.
type Resolver struct {
	mu      sync.RWMutex
	catalog map[string]*Config
	index   map[string]termIndex
	bounds  map[string]Bound
	rev     map[string]uint64
	memo    *gocache.Cache
	norm    *text.Normalizer
	log     zerolog.Logger
}

// NewResolver validates the catalog and builds the detection index. The
// catalog must contain the generic fallback.
func NewResolver(catalog map[string]*Config, logger zerolog.Logger) (*Resolver, error) {
	if len(catalog) == 0 {
		catalog = DefaultCatalog()
	}
	if _, ok := catalog[Generic]; !ok {
		return nil, domain.NewConfigError("config/missing_generic", "catalog has no generic fallback niche")
	}

	r := &Resolver{
		catalog: make(map[string]*Config, len(catalog)),
		index:   make(map[string]termIndex, len(catalog)),
		bounds:  DefaultBounds(),
		rev:     make(map[string]uint64, len(catalog)),
		memo:    gocache.New(15*time.Minute, 5*time.Minute),
		norm:    text.NewNormalizer(text.DefaultOptions()),
		log:     logger.With().Str("component", "niche_resolver").Logger(),
	}
	for tag, cfg := range catalog {
		if tag != cfg.Niche {
			return nil, domain.NewConfigError("config/niche_tag_mismatch", fmt.Sprintf("catalog key %q holds config for %q", tag, cfg.Niche))
		}
		normalized, err := cfg.Weights.Normalize()
		if err != nil {
			return nil, err
		}
		snapshot := cfg.Clone()
		snapshot.Weights = normalized
		if err := snapshot.Validate(); err != nil {
			return nil, err
		}
		r.catalog[tag] = snapshot
		r.index[tag] = buildIndex(snapshot, r.norm)
		r.rev[tag] = 1
	}
	return r, nil
}

func buildIndex(cfg *Config, norm *text.Normalizer) termIndex {
	idx := termIndex{
		positive: make(map[string]struct{}, len(cfg.PositiveTerms)),
		negative: make(map[string]struct{}, len(cfg.NegativeTerms)),
	}
	for _, term := range cfg.PositiveTerms {
		for _, tok := range text.Tokenize(norm.Normalize(term)) {
			idx.positive[tok] = struct{}{}
		}
	}
	for _, term := range cfg.NegativeTerms {
		for _, tok := range text.Tokenize(norm.Normalize(term)) {
			idx.negative[tok] = struct{}{}
		}
	}
	return idx
}

// Niches lists the catalog tags, sorted.
func (r *Resolver) Niches() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tags := make([]string, 0, len(r.catalog))
	for tag := range r.catalog {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// Get returns a snapshot of the named niche's config.
func (r *Resolver) Get(niche string) (*Config, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.catalog[niche]
	if !ok {
		return nil, domain.NewConfigError("config/unknown_niche", fmt.Sprintf("unknown niche %q", niche))
	}
	return cfg.Clone(), nil
}

// Corpus returns the positive term lists keyed by niche, the reference
// documents the semantic analyzer vectorizes.
func (r *Resolver) Corpus() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string][]string, len(r.catalog))
	for tag, cfg := range r.catalog {
		out[tag] = append([]string(nil), cfg.PositiveTerms...)
	}
	return out
}

// Detect matches a keyword against every niche's term lists. The hint,
// when it names a known niche, gets a flat score bias; the best score at
// or above the detection threshold wins, otherwise generic.
func (r *Resolver) Detect(term, hint string) Detection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if hint != "" {
		if _, known := r.catalog[hint]; !known {
			r.log.Warn().Str("hint", hint).Msg("ignoring unknown niche hint")
			hint = ""
		}
	}

	tokens := text.Tokenize(r.norm.Normalize(term))
	if len(tokens) == 0 {
		return Detection{Niche: Generic}
	}

	best := Detection{Niche: Generic}
	for _, tag := range r.sortedTags() {
		if tag == Generic {
			continue
		}
		idx := r.index[tag]
		matches := 0
		for _, tok := range tokens {
			if _, ok := idx.positive[tok]; ok {
				matches++
			}
			if _, ok := idx.negative[tok]; ok {
				matches--
			}
		}
		if matches < 0 {
			matches = 0
		}
		score := float64(matches) / float64(len(tokens))
		hinted := tag == hint
		if hinted {
			score += HintBias
		}
		if score > best.Score || (score == best.Score && hinted && !best.Hinted) {
			best = Detection{Niche: tag, Score: score, Matches: matches, Hinted: hinted}
		}
	}

	if best.Score < DetectionThreshold {
		return Detection{Niche: Generic, Score: best.Score}
	}
	return best
}

// Resolve detects the niche for a keyword and returns its config
// snapshot together with the detection record. Detections are memoized
// per term+hint with the resolved niche's cache TTL; the config itself
// is always read fresh so parameter swaps are visible immediately.
func (r *Resolver) Resolve(term, hint string) (*Config, Detection) {
	key := term + "\x00" + hint
	if v, ok := r.memo.Get(key); ok {
		detection := v.(Detection)
		if cfg, err := r.Get(detection.Niche); err == nil {
			return cfg, detection
		}
	}

	detection := r.Detect(term, hint)
	cfg, err := r.Get(detection.Niche)
	if err != nil {
		// Catalog always holds generic; reaching this means the
		// detection raced a (disallowed) catalog removal.
		cfg, _ = r.Get(Generic)
		detection = Detection{Niche: Generic}
	}

	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = gocache.DefaultExpiration
	}
	r.memo.Set(key, detection, ttl)
	return cfg, detection
}

// Revision reports how many times a niche's config has been swapped
// since startup. Cache keys embed it so a parameter change invalidates
// every result cached under the previous vector. Unknown niches are 0.
func (r *Resolver) Revision(niche string) uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rev[niche]
}

func (r *Resolver) sortedTags() []string {
	tags := make([]string, 0, len(r.catalog))
	for tag := range r.catalog {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// Overrides carries the adjustable fields of a niche config. Nil fields
// are left untouched.
type Overrides struct {
	MinWords             *int                `json:"min_words,omitempty"`
	MaxWords             *int                `json:"max_words,omitempty"`
	SpecificityThreshold *float64            `json:"specificity_threshold,omitempty"`
	SimilarityThreshold  *float64            `json:"similarity_threshold,omitempty"`
	ConfidenceThreshold  *float64            `json:"confidence_threshold,omitempty"`
	AcceptThreshold      *float64            `json:"accept_threshold,omitempty"`
	Weights              *Weights            `json:"weights,omitempty"`
	CompetitiveWeights   *CompetitiveWeights `json:"competitive_weights,omitempty"`
	VolumeCap            *float64            `json:"volume_cap,omitempty"`
	CPCCap               *float64            `json:"cpc_cap,omitempty"`
	PositiveTerms        []string            `json:"positive_terms,omitempty"`
	NegativeTerms        []string            `json:"negative_terms,omitempty"`
	StageTimeout         *time.Duration      `json:"stage_timeout,omitempty"`
	CacheTTL             *time.Duration      `json:"cache_ttl,omitempty"`
}

// Adjust applies overrides to a niche and swaps in a new snapshot.
// Fields failing validation are logged and ignored; the remaining
// fields still apply. Only an unknown niche is an error.
func (r *Resolver) Adjust(niche string, o Overrides) (*Config, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.catalog[niche]
	if !ok {
		return nil, domain.NewConfigError("config/unknown_niche", fmt.Sprintf("unknown niche %q", niche))
	}
	next := current.Clone()

	reject := func(field string, reason string) {
		r.log.Warn().Str("niche", niche).Str("field", field).Str("reason", reason).Msg("rejecting niche adjustment field")
	}

	if o.MinWords != nil {
		if b := r.bounds[ParamMinWords]; b.Contains(float64(*o.MinWords)) {
			next.MinWords = *o.MinWords
		} else {
			reject("min_words", fmt.Sprintf("%d outside [%.0f,%.0f]", *o.MinWords, b.Min, b.Max))
		}
	}
	if o.MaxWords != nil {
		if b := r.bounds[ParamMaxWords]; b.Contains(float64(*o.MaxWords)) && *o.MaxWords >= next.MinWords {
			next.MaxWords = *o.MaxWords
		} else {
			reject("max_words", fmt.Sprintf("%d invalid against min %d", *o.MaxWords, next.MinWords))
		}
	}
	applyThreshold := func(field, key string, dst *float64, v *float64) {
		if v == nil {
			return
		}
		if b := r.bounds[key]; b.Contains(*v) {
			*dst = *v
		} else {
			reject(field, fmt.Sprintf("%.4f outside [%.2f,%.2f]", *v, r.bounds[key].Min, r.bounds[key].Max))
		}
	}
	applyThreshold("specificity_threshold", ParamSpecificityThreshold, &next.SpecificityThreshold, o.SpecificityThreshold)
	applyThreshold("similarity_threshold", ParamSimilarityThreshold, &next.SimilarityThreshold, o.SimilarityThreshold)
	applyThreshold("confidence_threshold", ParamConfidenceThreshold, &next.ConfidenceThreshold, o.ConfidenceThreshold)
	applyThreshold("accept_threshold", ParamAcceptThreshold, &next.AcceptThreshold, o.AcceptThreshold)

	if o.Weights != nil {
		if normalized, err := o.Weights.Normalize(); err == nil {
			next.Weights = normalized
		} else {
			reject("weights", err.Error())
		}
	}
	if o.CompetitiveWeights != nil {
		if normalized, err := o.CompetitiveWeights.Normalize(); err == nil {
			next.CompetitiveWeights = normalized
		} else {
			reject("competitive_weights", err.Error())
		}
	}
	if o.VolumeCap != nil {
		if *o.VolumeCap > 0 {
			next.VolumeCap = *o.VolumeCap
		} else {
			reject("volume_cap", "must be positive")
		}
	}
	if o.CPCCap != nil {
		if *o.CPCCap > 0 {
			next.CPCCap = *o.CPCCap
		} else {
			reject("cpc_cap", "must be positive")
		}
	}
	if o.PositiveTerms != nil {
		next.PositiveTerms = append([]string(nil), o.PositiveTerms...)
	}
	if o.NegativeTerms != nil {
		next.NegativeTerms = append([]string(nil), o.NegativeTerms...)
	}
	if o.StageTimeout != nil {
		if *o.StageTimeout > 0 {
			next.StageTimeout = *o.StageTimeout
		} else {
			reject("stage_timeout", "must be positive")
		}
	}
	if o.CacheTTL != nil {
		if *o.CacheTTL > 0 {
			next.CacheTTL = *o.CacheTTL
		} else {
			reject("cache_ttl", "must be positive")
		}
	}

	if err := next.Validate(); err != nil {
		return nil, err
	}
	r.catalog[niche] = next
	r.index[niche] = buildIndex(next, r.norm)
	r.rev[niche]++
	// Term list edits can move keywords between niches.
	r.memo.Flush()
	r.log.Info().Str("niche", niche).Uint64("revision", r.rev[niche]).Msg("niche config adjusted")
	return next.Clone(), nil
}

// Bounds returns a copy of the active parameter bounds.
func (r *Resolver) Bounds() map[string]Bound {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Bound, len(r.bounds))
	for k, b := range r.bounds {
		out[k] = b
	}
	return out
}

// SetBounds replaces the ranges future adjustments clamp against.
// Missing keys fall back to the built-in range; configs already applied
// are not revalidated.
func (r *Resolver) SetBounds(bounds map[string]Bound) error {
	next := DefaultBounds()
	for key, b := range bounds {
		if _, ok := next[key]; !ok {
			return domain.NewConfigError("config/unknown_bound", fmt.Sprintf("bound for unknown parameter %q", key))
		}
		if b.Min > b.Max {
			return domain.NewConfigError("config/inverted_bound", fmt.Sprintf("bound for %q has min %.3f above max %.3f", key, b.Min, b.Max))
		}
		next[key] = b
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bounds = next
	return nil
}

// Parameters returns the tunable vector of a niche.
func (r *Resolver) Parameters(niche string) (map[string]float64, error) {
	cfg, err := r.Get(niche)
	if err != nil {
		return nil, err
	}
	return cfg.ParameterVector(), nil
}

// SetParameters applies a full tunable vector to a niche, clamping each
// value to its bound, and returns the previous vector for rollback.
func (r *Resolver) SetParameters(niche string, params map[string]float64) (map[string]float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.catalog[niche]
	if !ok {
		return nil, domain.NewConfigError("config/unknown_niche", fmt.Sprintf("unknown niche %q", niche))
	}
	previous := current.ParameterVector()
	next, err := current.ApplyParameters(params, r.bounds)
	if err != nil {
		return nil, err
	}
	r.catalog[niche] = next
	r.index[niche] = buildIndex(next, r.norm)
	r.rev[niche]++
	r.log.Info().Str("niche", niche).Int("params", len(params)).Uint64("revision", r.rev[niche]).Msg("niche parameters swapped")
	return previous, nil
}

// Replace swaps in a complete config for a niche, adding it to the
// catalog when new. Hot reload uses this after a snapshot file edit.
func (r *Resolver) Replace(cfg *Config) error {
	if cfg == nil {
		return domain.NewConfigError("config/nil_config", "nil niche config")
	}

	normalized, err := cfg.Weights.Normalize()
	if err != nil {
		return err
	}
	next := cfg.Clone()
	next.Weights = normalized
	if err := next.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.catalog[next.Niche] = next
	r.index[next.Niche] = buildIndex(next, r.norm)
	r.rev[next.Niche]++
	r.memo.Flush()
	r.log.Info().Str("niche", next.Niche).Uint64("revision", r.rev[next.Niche]).Msg("niche config replaced")
	return nil
}
