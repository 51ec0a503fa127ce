package trend

import (
	"sort"
	"sync"

	"github.com/seoscope/keywordrun/internal/domain"
)

// Store holds per-keyword sample series. Each series carries its own
// lock so appends and reads of different keywords never contend; reads
// return a snapshot taken under the series lock.
type Store struct {
	mu         sync.RWMutex
	series     map[string]*series
	maxSamples int
}

type series struct {
	mu      sync.Mutex
	samples []domain.TrendSample
}

// NewStore builds a store that keeps at most maxSamples per keyword,
// dropping the oldest on overflow. Zero or negative means 90.
func NewStore(maxSamples int) *Store {
	if maxSamples <= 0 {
		maxSamples = 90
	}
	return &Store{series: make(map[string]*series), maxSamples: maxSamples}
}

func (s *Store) get(term string) *series {
	s.mu.RLock()
	sr, ok := s.series[term]
	s.mu.RUnlock()
	if ok {
		return sr
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sr, ok = s.series[term]; ok {
		return sr
	}
	sr = &series{}
	s.series[term] = sr
	return sr
}

// Append adds samples to a keyword's series, keeping it date-ordered
// and trimmed to the retention cap.
func (s *Store) Append(term string, samples ...domain.TrendSample) {
	if len(samples) == 0 {
		return
	}
	sr := s.get(term)
	sr.mu.Lock()
	defer sr.mu.Unlock()
	sr.samples = append(sr.samples, samples...)
	domain.SortSamplesByDate(sr.samples)
	if excess := len(sr.samples) - s.maxSamples; excess > 0 {
		sr.samples = append([]domain.TrendSample(nil), sr.samples[excess:]...)
	}
}

// Snapshot returns a copy of a keyword's series, oldest first.
func (s *Store) Snapshot(term string) []domain.TrendSample {
	s.mu.RLock()
	sr, ok := s.series[term]
	s.mu.RUnlock()
	if !ok {
		return nil
	}
	sr.mu.Lock()
	defer sr.mu.Unlock()
	return append([]domain.TrendSample(nil), sr.samples...)
}

// Len reports the current sample count for a keyword.
func (s *Store) Len(term string) int {
	s.mu.RLock()
	sr, ok := s.series[term]
	s.mu.RUnlock()
	if !ok {
		return 0
	}
	sr.mu.Lock()
	defer sr.mu.Unlock()
	return len(sr.samples)
}

// Terms lists the tracked keywords, sorted.
func (s *Store) Terms() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	terms := make([]string, 0, len(s.series))
	for term := range s.series {
		terms = append(terms, term)
	}
	sort.Strings(terms)
	return terms
}
