package domain

import (
	"sort"
	"time"
)

// TrendSample is one observation of a keyword's market signals.
type TrendSample struct {
	Date        time.Time `json:"date"`
	Volume      int64     `json:"volume"`
	CPC         float64   `json:"cpc"`
	Competition float64   `json:"competition"`
}

// SortSamplesByDate orders samples oldest first, in place.
func SortSamplesByDate(samples []TrendSample) {
	sort.SliceStable(samples, func(i, j int) bool {
		return samples[i].Date.Before(samples[j].Date)
	})
}
