package optimize

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/seoscope/keywordrun/internal/domain"
)

// Status classifies the outcome of one optimization cycle.
type Status string

const (
	StatusApplied              Status = "applied"
	StatusSkippedNotNeeded     Status = "skipped_not_needed"
	StatusSkippedLowConfidence Status = "skipped_low_confidence"
	StatusRolledBack           Status = "rolled_back"
	StatusFailed               Status = "failed"

	// Cycle-only statuses. They describe a run that produced no
	// adjustment and are never written to the history file.
	StatusInsufficientData Status = "insufficient_data"
	StatusTrainingFailed   Status = "training_failed"
	StatusFrozen           Status = "frozen"
)

// AdjustmentRecord documents one parameter change decision. Applied
// records start unmeasured; the following cycle fills NewPerformance and
// Delta with what was actually observed and flips Measured.
type AdjustmentRecord struct {
	At                  time.Time          `json:"at"`
	Niche               string             `json:"niche"`
	PreviousParams      map[string]float64 `json:"previous_params"`
	NewParams           map[string]float64 `json:"new_params"`
	PreviousPerformance float64            `json:"previous_performance"`
	NewPerformance      float64            `json:"new_performance"`
	Delta               float64            `json:"delta"`
	Confidence          float64            `json:"confidence"`
	Status              Status             `json:"status"`
	Measured            bool               `json:"measured"`
	TracingID           string             `json:"tracing_id"`
}

// History is the persistent adjustment log backing rollback decisions
// and the confidence estimate.
type History struct {
	path    string
	Records []AdjustmentRecord
}

// LoadHistory reads the adjustment log at path. A missing file yields an
// empty history; a corrupt one is a persistence error.
func LoadHistory(path string) (*History, error) {
	h := &History{path: path}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return h, nil
		}
		return nil, domain.WrapPersistenceError("persistence/load_history", "reading adjustment history", err)
	}
	if err := json.Unmarshal(data, &h.Records); err != nil {
		return nil, domain.WrapPersistenceError("persistence/load_history", "decoding adjustment history", err)
	}
	return h, nil
}

// Save writes the full record list back to disk.
func (h *History) Save() error {
	data, err := json.MarshalIndent(h.Records, "", "  ")
	if err != nil {
		return domain.WrapPersistenceError("persistence/save_history", "encoding adjustment history", err)
	}
	if dir := filepath.Dir(h.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return domain.WrapPersistenceError("persistence/save_history", "creating history directory", err)
		}
	}
	if err := os.WriteFile(h.path, data, 0o644); err != nil {
		return domain.WrapPersistenceError("persistence/save_history", "writing adjustment history", err)
	}
	return nil
}

// Append adds one record and persists the log.
func (h *History) Append(rec AdjustmentRecord) error {
	h.Records = append(h.Records, rec)
	return h.Save()
}

// Last returns the newest record for niche, or nil.
func (h *History) Last(niche string) *AdjustmentRecord {
	for i := len(h.Records) - 1; i >= 0; i-- {
		if h.Records[i].Niche == niche {
			return &h.Records[i]
		}
	}
	return nil
}

// PendingApplied returns the newest applied record for niche that has
// not been measured yet, or nil. At most one such record exists because
// every cycle measures before it applies.
func (h *History) PendingApplied(niche string) *AdjustmentRecord {
	for i := len(h.Records) - 1; i >= 0; i-- {
		rec := &h.Records[i]
		if rec.Niche != niche {
			continue
		}
		if rec.Status == StatusApplied && !rec.Measured {
			return rec
		}
	}
	return nil
}

// Measure fills in the observed performance of the pending applied
// record and persists the log. Returns the updated record, or nil when
// nothing was pending.
func (h *History) Measure(niche string, observed float64) (*AdjustmentRecord, error) {
	rec := h.PendingApplied(niche)
	if rec == nil {
		return nil, nil
	}
	rec.NewPerformance = observed
	rec.Delta = observed - rec.PreviousPerformance
	rec.Measured = true
	if err := h.Save(); err != nil {
		return nil, err
	}
	return rec, nil
}

// SuccessRate reports the improvement rate over the last window measured
// applications, plus how many there were.
func (h *History) SuccessRate(niche string, window int) (rate float64, count int) {
	improved := 0
	for i := len(h.Records) - 1; i >= 0 && count < window; i-- {
		rec := h.Records[i]
		if rec.Niche != niche || rec.Status != StatusApplied || !rec.Measured {
			continue
		}
		count++
		if rec.Delta > 0 {
			improved++
		}
	}
	if count == 0 {
		return 0, 0
	}
	return float64(improved) / float64(count), count
}

// ConsecutiveRollbacks counts rollbacks since the last application that
// measurably improved performance. Skipped and failed cycles do not
// break the streak.
func (h *History) ConsecutiveRollbacks(niche string) int {
	streak := 0
	for i := len(h.Records) - 1; i >= 0; i-- {
		rec := h.Records[i]
		if rec.Niche != niche {
			continue
		}
		switch rec.Status {
		case StatusRolledBack:
			streak++
		case StatusApplied:
			if rec.Measured && rec.Delta > 0 {
				return streak
			}
		}
	}
	return streak
}
