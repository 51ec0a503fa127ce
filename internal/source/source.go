// Package source defines the boundary to the keyword ecosystem around
// the pipeline: collectors that supply raw candidates and exporters that
// consume the accepted ones. The module ships a static file-backed
// source for CLI runs; network collectors live outside and plug in
// through the same interface, usually wrapped in a Resilient guard.
package source

import (
	"context"

	"github.com/seoscope/keywordrun/internal/domain"
)

// CandidateSource supplies raw keyword candidates for a niche. Fetch
// returns at most limit candidates when limit is positive and the full
// set when it is not.
type CandidateSource interface {
	Name() string
	Fetch(ctx context.Context, niche string, limit int) ([]domain.Keyword, error)
}

// Exporter consumes the accepted results of a batch. Implementations
// own format and destination; CSV and spreadsheet writers live outside
// the module.
type Exporter interface {
	Name() string
	Export(ctx context.Context, niche string, accepted []*domain.EnrichedKeyword) error
}
