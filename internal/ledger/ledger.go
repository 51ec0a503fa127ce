// Package ledger is the append-only event journal of the scoring pipeline.
// Events are written one JSON object per line into per-day files named
// logs/<yyyy-mm-dd>.jsonl, read back with window and kind/level filters, and
// summarized into quality and trend reports.
package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/seoscope/keywordrun/internal/domain"
)

const journalExt = ".jsonl"

// Config controls where the journal lives and how writes are retried.
type Config struct {
	Dir           string        `json:"dir"`
	RetentionDays int           `json:"retention_days"`
	WriteAttempts int           `json:"write_attempts"`
	WriteBackoff  time.Duration `json:"write_backoff"`
}

// DefaultConfig returns the journal defaults: 30 day retention and three
// write attempts spaced by exponential backoff from 100ms.
func DefaultConfig() Config {
	return Config{
		Dir:           "logs",
		RetentionDays: 30,
		WriteAttempts: 3,
		WriteBackoff:  100 * time.Millisecond,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Dir == "" {
		c.Dir = d.Dir
	}
	if c.RetentionDays <= 0 {
		c.RetentionDays = d.RetentionDays
	}
	if c.WriteAttempts <= 0 {
		c.WriteAttempts = d.WriteAttempts
	}
	if c.WriteBackoff <= 0 {
		c.WriteBackoff = d.WriteBackoff
	}
	return c
}

// Writer appends records to the journal. A single file handle is kept open
// for the current day and rotated at the day boundary under the writer lock,
// so events within one tracing id are totally ordered by write time.
type Writer struct {
	mu   sync.Mutex
	cfg  Config
	day  string
	file *os.File
	enc  *json.Encoder
	now  func() time.Time
	log  zerolog.Logger
}

// NewWriter creates the journal directory if needed and returns a writer.
func NewWriter(cfg Config, log zerolog.Logger) (*Writer, error) {
	cfg = cfg.withDefaults()
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, domain.WrapPersistenceError("persistence/create_journal_dir", "creating journal directory", err)
	}
	return &Writer{
		cfg: cfg,
		now: time.Now,
		log: log.With().Str("component", "ledger").Logger(),
	}, nil
}

// Dir returns the journal directory.
func (w *Writer) Dir() string { return w.cfg.Dir }

// Append writes one record to the day file matching the record timestamp.
// A zero timestamp is stamped with the writer clock. Failed writes are
// retried with exponential backoff; the final failure is logged at error
// level and returned as a persistence error, leaving in-memory pipeline
// results unaffected.
func (w *Writer) Append(rec Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if rec.At.IsZero() {
		rec.At = w.now()
	}
	rec.At = rec.At.UTC()

	var err error
	for attempt := 0; attempt < w.cfg.WriteAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(w.cfg.WriteBackoff << (attempt - 1))
		}
		if err = w.writeLocked(rec); err == nil {
			return nil
		}
		// Force a reopen on the next attempt in case the handle went bad.
		w.closeLocked()
	}

	w.log.Error().Err(err).
		Str("tracing_id", rec.TracingID).
		Str("kind", string(rec.Kind)).
		Int("attempts", w.cfg.WriteAttempts).
		Msg("journal append failed")
	return domain.WrapPersistenceError("persistence/append_record", "appending journal record", err)
}

func (w *Writer) writeLocked(rec Record) error {
	day := rec.At.Format("2006-01-02")
	if w.file == nil || day != w.day {
		if err := w.rotateLocked(day); err != nil {
			return err
		}
	}
	return w.enc.Encode(rec)
}

func (w *Writer) rotateLocked(day string) error {
	w.closeLocked()
	path := filepath.Join(w.cfg.Dir, day+journalExt)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	w.file = f
	w.enc = json.NewEncoder(f)
	w.day = day
	return nil
}

func (w *Writer) closeLocked() {
	if w.file != nil {
		w.file.Close()
		w.file = nil
		w.enc = nil
		w.day = ""
	}
}

// Close releases the current day file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	w.enc = nil
	w.day = ""
	return err
}

// Cleanup deletes journal files older than the retention window. Individual
// removal failures are logged and skipped so one bad file cannot block the
// rest of the sweep.
func (w *Writer) Cleanup() (removed int, err error) {
	w.mu.Lock()
	now := w.now().UTC()
	w.mu.Unlock()
	// Whole-day granularity: a file is removed only once its entire day falls
	// outside the retention window.
	cutoff := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).
		AddDate(0, 0, -w.cfg.RetentionDays)

	entries, err := os.ReadDir(w.cfg.Dir)
	if err != nil {
		return 0, domain.WrapPersistenceError("persistence/read_journal_dir", "listing journal directory", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		day, ok := journalDay(entry.Name())
		if !ok {
			continue
		}
		if !day.Before(cutoff) {
			continue
		}
		path := filepath.Join(w.cfg.Dir, entry.Name())
		if rmErr := os.Remove(path); rmErr != nil {
			w.log.Warn().Err(rmErr).Str("file", path).Msg("retention cleanup skipped file")
			continue
		}
		removed++
	}
	if removed > 0 {
		w.log.Info().Int("removed", removed).Int("retention_days", w.cfg.RetentionDays).
			Msg("journal retention cleanup")
	}
	return removed, nil
}

// journalDay parses the day out of a journal file name, rejecting anything
// that is not a <yyyy-mm-dd>.jsonl file.
func journalDay(name string) (time.Time, bool) {
	if filepath.Ext(name) != journalExt {
		return time.Time{}, false
	}
	day, err := time.Parse("2006-01-02", name[:len(name)-len(journalExt)])
	if err != nil {
		return time.Time{}, false
	}
	return day, true
}
