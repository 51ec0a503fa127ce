package ledger

import (
	"time"

	"github.com/seoscope/keywordrun/internal/domain"
)

// Kind classifies which part of the pipeline produced an event.
type Kind string

const (
	KindAnalysis    Kind = "analysis"
	KindComplexity  Kind = "complexity"
	KindCompetitive Kind = "competitive"
	KindValidation  Kind = "validation"
	KindRejection   Kind = "rejection"
	KindAcceptance  Kind = "acceptance"
	KindProcessing  Kind = "processing"
	KindError       Kind = "error"
	KindPerformance Kind = "performance"
	KindTrend       Kind = "trend"
)

// Valid reports whether k is a known event kind.
func (k Kind) Valid() bool {
	switch k {
	case KindAnalysis, KindComplexity, KindCompetitive, KindValidation,
		KindRejection, KindAcceptance, KindProcessing, KindError,
		KindPerformance, KindTrend:
		return true
	}
	return false
}

// ParseKind converts a raw string into a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", domain.NewInputError("input/unknown_kind", "unknown event kind: "+s)
	}
	return k, nil
}

// Level is the severity attached to an event.
type Level string

const (
	LevelDebug    Level = "debug"
	LevelInfo     Level = "info"
	LevelWarn     Level = "warn"
	LevelError    Level = "error"
	LevelCritical Level = "critical"
)

// Valid reports whether l is a known severity level.
func (l Level) Valid() bool {
	switch l {
	case LevelDebug, LevelInfo, LevelWarn, LevelError, LevelCritical:
		return true
	}
	return false
}

// ParseLevel converts a raw string into a Level.
func ParseLevel(s string) (Level, error) {
	l := Level(s)
	if !l.Valid() {
		return "", domain.NewInputError("input/unknown_level", "unknown event level: "+s)
	}
	return l, nil
}

// Record is a single event line in a daily journal file. Payload carries
// stage-specific detail; Outcome, Elapsed and Error are optional and omitted
// from the encoded line when unset.
type Record struct {
	At        time.Time              `json:"at"`
	TracingID string                 `json:"tracing_id"`
	Kind      Kind                   `json:"kind"`
	Level     Level                  `json:"level"`
	Keyword   string                 `json:"keyword,omitempty"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Outcome   string                 `json:"outcome,omitempty"`
	ElapsedMs float64                `json:"elapsed_ms,omitempty"`
	Error     string                 `json:"error,omitempty"`
}
