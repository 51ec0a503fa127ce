package ledger

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/seoscope/keywordrun/internal/domain"
)

// maxLineBytes bounds a single journal line; payloads are small maps, so
// anything beyond this is a corrupt line, not a legitimate record.
const maxLineBytes = 1 << 20

// Query selects records in the inclusive window [From, To]. Zero Kind or
// Level matches everything.
type Query struct {
	From  time.Time
	To    time.Time
	Kind  Kind
	Level Level
}

func (q Query) matches(rec Record) bool {
	if rec.At.Before(q.From) || rec.At.After(q.To) {
		return false
	}
	if q.Kind != "" && rec.Kind != q.Kind {
		return false
	}
	if q.Level != "" && rec.Level != q.Level {
		return false
	}
	return true
}

// ReadResult carries the matched records plus a count of journal lines that
// could not be decoded.
type ReadResult struct {
	Records      []Record
	SkippedLines int
}

// Reader scans per-day journal files. Readers receive copies; they never
// share state with the writer beyond the files themselves.
type Reader struct {
	dir string
	log zerolog.Logger
}

// NewReader returns a reader over the journal directory.
func NewReader(dir string, log zerolog.Logger) *Reader {
	if dir == "" {
		dir = DefaultConfig().Dir
	}
	return &Reader{
		dir: dir,
		log: log.With().Str("component", "ledger").Logger(),
	}
}

// Read scans every day file overlapping the query window and returns the
// matching records in write order. Lines that fail to decode are skipped and
// counted, never fatal; missing day files simply contribute nothing.
func (r *Reader) Read(q Query) (*ReadResult, error) {
	if q.To.Before(q.From) {
		return nil, domain.NewInputError("input/query_window", "query window end precedes start")
	}
	q.From = q.From.UTC()
	q.To = q.To.UTC()

	result := &ReadResult{}
	for _, day := range daysBetween(q.From, q.To) {
		if err := r.readDay(day, q, result); err != nil {
			return nil, err
		}
	}
	if result.SkippedLines > 0 {
		r.log.Warn().Int("skipped_lines", result.SkippedLines).
			Time("from", q.From).Time("to", q.To).
			Msg("journal read skipped undecodable lines")
	}
	return result, nil
}

func (r *Reader) readDay(day string, q Query, result *ReadResult) error {
	path := filepath.Join(r.dir, day+journalExt)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return domain.WrapPersistenceError("persistence/open_journal", "opening journal file", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			result.SkippedLines++
			continue
		}
		if q.matches(rec) {
			result.Records = append(result.Records, rec)
		}
	}
	if err := scanner.Err(); err != nil {
		return domain.WrapPersistenceError("persistence/scan_journal", "scanning journal file", err)
	}
	return nil
}

// daysBetween lists the day names covering [from, to], inclusive on both
// ends.
func daysBetween(from, to time.Time) []string {
	start := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	end := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	var days []string
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d.Format("2006-01-02"))
	}
	return days
}
