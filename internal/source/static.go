package source

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/seoscope/keywordrun/internal/domain"
)

// Static serves a fixed candidate list. It backs file-driven CLI runs
// and stands in for network collectors in tests.
type Static struct {
	name     string
	keywords []domain.Keyword
}

// NewStatic wraps a candidate slice as a source. The slice is copied so
// later edits by the caller do not leak into fetches.
func NewStatic(name string, keywords []domain.Keyword) *Static {
	kws := make([]domain.Keyword, len(keywords))
	copy(kws, keywords)
	return &Static{name: name, keywords: kws}
}

// FromFile loads candidates from a JSON array or a JSONL stream of
// keyword objects. Blank lines are skipped; a malformed line fails the
// load with its line number rather than silently dropping candidates.
func FromFile(path string) (*Static, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.WrapInputError("input/read_candidates", fmt.Sprintf("reading candidate file %s", path), err)
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return &Static{name: path}, nil
	}

	var keywords []domain.Keyword
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &keywords); err != nil {
			return nil, domain.WrapInputError("input/parse_candidates", fmt.Sprintf("parsing candidate array in %s", path), err)
		}
		return &Static{name: path, keywords: keywords}, nil
	}

	scanner := bufio.NewScanner(bytes.NewReader(trimmed))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}
		var kw domain.Keyword
		if err := json.Unmarshal(text, &kw); err != nil {
			return nil, domain.WrapInputError("input/parse_candidates", fmt.Sprintf("parsing candidate line %d in %s", line, path), err)
		}
		keywords = append(keywords, kw)
	}
	if err := scanner.Err(); err != nil {
		return nil, domain.WrapInputError("input/read_candidates", fmt.Sprintf("scanning candidate file %s", path), err)
	}

	return &Static{name: path, keywords: keywords}, nil
}

func (s *Static) Name() string { return s.name }

// Len reports how many candidates the source holds.
func (s *Static) Len() int { return len(s.keywords) }

// Fetch returns a copy of the candidate list, capped at limit when
// limit is positive. The niche argument is ignored; a static file is
// already niche-scoped by whoever assembled it.
func (s *Static) Fetch(ctx context.Context, niche string, limit int) ([]domain.Keyword, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n := len(s.keywords)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]domain.Keyword, n)
	copy(out, s.keywords[:n])
	return out, nil
}
