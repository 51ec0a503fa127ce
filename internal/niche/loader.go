package niche

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/seoscope/keywordrun/internal/domain"
)

// catalogFile is the on-disk shape of the niche catalog. Entries overlay
// the built-in defaults field by field; absent fields keep the default.
// The bounds section narrows or widens the ranges tunable parameters may
// take; absent keys keep the built-in range.
type catalogFile struct {
	Niches map[string]nicheEntry `yaml:"niches"`
	Bounds map[string]Bound      `yaml:"bounds"`
}

type nicheEntry struct {
	MinWords             *int                `yaml:"min_words"`
	MaxWords             *int                `yaml:"max_words"`
	SpecificityThreshold *float64            `yaml:"specificity_threshold"`
	SimilarityThreshold  *float64            `yaml:"similarity_threshold"`
	ConfidenceThreshold  *float64            `yaml:"confidence_threshold"`
	AcceptThreshold      *float64            `yaml:"accept_threshold"`
	Weights              *Weights            `yaml:"weights"`
	CompetitiveWeights   *CompetitiveWeights `yaml:"competitive_weights"`
	CompetitiveBands     *struct {
		Low    float64 `yaml:"low"`
		Medium float64 `yaml:"medium"`
		High   float64 `yaml:"high"`
	} `yaml:"competitive_bands"`
	VolumeCap           *float64 `yaml:"volume_cap"`
	CPCCap              *float64 `yaml:"cpc_cap"`
	CompetitionCap      *float64 `yaml:"competition_cap"`
	PositiveTerms       []string `yaml:"positive_terms"`
	NegativeTerms       []string `yaml:"negative_terms"`
	StageTimeoutSeconds *int     `yaml:"stage_timeout_seconds"`
	CacheTTLMinutes     *int     `yaml:"cache_ttl_minutes"`
}

// LoadCatalog reads a YAML catalog file and overlays it on the built-in
// defaults. A missing file is a config error; an empty file yields the
// defaults unchanged.
func LoadCatalog(path string) (map[string]*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.WrapConfigError("config/read_catalog", fmt.Sprintf("reading niche catalog %s", path), err)
	}
	return parseCatalog(data)
}

// LoadBounds reads the bounds section of a catalog file and overlays it
// on the built-in parameter ranges. A file without a bounds section
// yields the defaults unchanged.
func LoadBounds(path string) (map[string]Bound, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.WrapConfigError("config/read_catalog", fmt.Sprintf("reading niche catalog %s", path), err)
	}
	return parseBounds(data)
}

func parseBounds(data []byte) (map[string]Bound, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, domain.WrapConfigError("config/parse_catalog", "parsing niche catalog YAML", err)
	}

	bounds := DefaultBounds()
	for key, b := range file.Bounds {
		if _, ok := bounds[key]; !ok {
			return nil, domain.NewConfigError("config/unknown_bound", fmt.Sprintf("bound for unknown parameter %q", key))
		}
		if b.Min > b.Max {
			return nil, domain.NewConfigError("config/inverted_bound", fmt.Sprintf("bound for %q has min %.3f above max %.3f", key, b.Min, b.Max))
		}
		bounds[key] = b
	}
	return bounds, nil
}

func parseCatalog(data []byte) (map[string]*Config, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, domain.WrapConfigError("config/parse_catalog", "parsing niche catalog YAML", err)
	}

	catalog := DefaultCatalog()
	for tag, entry := range file.Niches {
		base, ok := catalog[tag]
		if !ok {
			// New niches start from the generic template.
			base = catalog[Generic].Clone()
			base.Niche = tag
		}
		merged := mergeEntry(base, entry)
		if err := merged.Validate(); err != nil {
			return nil, err
		}
		catalog[tag] = merged
	}
	return catalog, nil
}

func mergeEntry(base *Config, entry nicheEntry) *Config {
	out := base.Clone()
	if entry.MinWords != nil {
		out.MinWords = *entry.MinWords
	}
	if entry.MaxWords != nil {
		out.MaxWords = *entry.MaxWords
	}
	if entry.SpecificityThreshold != nil {
		out.SpecificityThreshold = *entry.SpecificityThreshold
	}
	if entry.SimilarityThreshold != nil {
		out.SimilarityThreshold = *entry.SimilarityThreshold
	}
	if entry.ConfidenceThreshold != nil {
		out.ConfidenceThreshold = *entry.ConfidenceThreshold
	}
	if entry.AcceptThreshold != nil {
		out.AcceptThreshold = *entry.AcceptThreshold
	}
	if entry.Weights != nil {
		if normalized, err := entry.Weights.Normalize(); err == nil {
			out.Weights = normalized
		}
	}
	if entry.CompetitiveWeights != nil {
		if normalized, err := entry.CompetitiveWeights.Normalize(); err == nil {
			out.CompetitiveWeights = normalized
		}
	}
	if entry.CompetitiveBands != nil {
		out.CompetitiveBands = domain.BandThresholds{
			Low:    entry.CompetitiveBands.Low,
			Medium: entry.CompetitiveBands.Medium,
			High:   entry.CompetitiveBands.High,
		}
	}
	if entry.VolumeCap != nil {
		out.VolumeCap = *entry.VolumeCap
	}
	if entry.CPCCap != nil {
		out.CPCCap = *entry.CPCCap
	}
	if entry.CompetitionCap != nil {
		out.CompetitionCap = *entry.CompetitionCap
	}
	if entry.PositiveTerms != nil {
		out.PositiveTerms = append([]string(nil), entry.PositiveTerms...)
	}
	if entry.NegativeTerms != nil {
		out.NegativeTerms = append([]string(nil), entry.NegativeTerms...)
	}
	if entry.StageTimeoutSeconds != nil {
		out.StageTimeout = time.Duration(*entry.StageTimeoutSeconds) * time.Second
	}
	if entry.CacheTTLMinutes != nil {
		out.CacheTTL = time.Duration(*entry.CacheTTLMinutes) * time.Minute
	}
	return out
}
