package ledger

import (
	"sort"
	"time"

	"github.com/seoscope/keywordrun/internal/domain"
)

const defaultTopKeywords = 10

// KeywordCount pairs a keyword with how many events mentioned it.
type KeywordCount struct {
	Keyword string `json:"keyword"`
	Count   int    `json:"count"`
}

// QualityReport summarizes a window of journal events.
type QualityReport struct {
	Total        int            `json:"total"`
	ByKind       map[Kind]int   `json:"by_kind"`
	ByLevel      map[Level]int  `json:"by_level"`
	Accepted     int            `json:"accepted"`
	Rejected     int            `json:"rejected"`
	ApprovalRate float64        `json:"approval_rate"`
	TopKeywords  []KeywordCount `json:"top_keywords"`
	SkippedLines int            `json:"skipped_lines"`
}

// BuildQualityReport is a pure function over a read: totals, per-kind and
// per-level counts, the acceptance ratio across decided keywords, and the
// most frequently seen keywords.
func BuildQualityReport(rr *ReadResult, topN int) *QualityReport {
	if topN <= 0 {
		topN = defaultTopKeywords
	}
	report := &QualityReport{
		ByKind:  make(map[Kind]int),
		ByLevel: make(map[Level]int),
	}
	if rr == nil {
		return report
	}
	report.SkippedLines = rr.SkippedLines

	byKeyword := make(map[string]int)
	for _, rec := range rr.Records {
		report.Total++
		report.ByKind[rec.Kind]++
		report.ByLevel[rec.Level]++
		switch rec.Kind {
		case KindAcceptance:
			report.Accepted++
		case KindRejection:
			report.Rejected++
		}
		if rec.Keyword != "" {
			byKeyword[rec.Keyword]++
		}
	}
	if decided := report.Accepted + report.Rejected; decided > 0 {
		report.ApprovalRate = float64(report.Accepted) / float64(decided)
	}

	for keyword, count := range byKeyword {
		report.TopKeywords = append(report.TopKeywords, KeywordCount{Keyword: keyword, Count: count})
	}
	sort.Slice(report.TopKeywords, func(i, j int) bool {
		if report.TopKeywords[i].Count != report.TopKeywords[j].Count {
			return report.TopKeywords[i].Count > report.TopKeywords[j].Count
		}
		return report.TopKeywords[i].Keyword < report.TopKeywords[j].Keyword
	})
	if len(report.TopKeywords) > topN {
		report.TopKeywords = report.TopKeywords[:topN]
	}
	return report
}

// DailyCount is the event total for one journal day.
type DailyCount struct {
	Day   string `json:"day"`
	Count int    `json:"count"`
}

// TrendReport shows event volume per day and whether the last seven days
// grew or shrank against the seven before them.
type TrendReport struct {
	Daily     []DailyCount          `json:"daily"`
	ThisWeek  int                   `json:"this_week"`
	LastWeek  int                   `json:"last_week"`
	Direction domain.TrendDirection `json:"direction"`
}

// BuildTrendReport buckets events per day and classifies the week-over-week
// movement relative to the reference time. Growth within five percent either
// way counts as stable.
func BuildTrendReport(rr *ReadResult, until time.Time) *TrendReport {
	report := &TrendReport{Direction: domain.TrendStable}
	if rr == nil {
		return report
	}
	until = until.UTC()
	weekAgo := until.AddDate(0, 0, -7)
	twoWeeksAgo := until.AddDate(0, 0, -14)

	byDay := make(map[string]int)
	for _, rec := range rr.Records {
		at := rec.At.UTC()
		byDay[at.Format("2006-01-02")]++
		if at.After(weekAgo) && !at.After(until) {
			report.ThisWeek++
		} else if at.After(twoWeeksAgo) && !at.After(weekAgo) {
			report.LastWeek++
		}
	}

	for day, count := range byDay {
		report.Daily = append(report.Daily, DailyCount{Day: day, Count: count})
	}
	sort.Slice(report.Daily, func(i, j int) bool { return report.Daily[i].Day < report.Daily[j].Day })

	switch {
	case report.LastWeek == 0:
		if report.ThisWeek > 0 {
			report.Direction = domain.TrendRising
		}
	default:
		growth := float64(report.ThisWeek-report.LastWeek) / float64(report.LastWeek)
		if growth > 0.05 {
			report.Direction = domain.TrendRising
		} else if growth < -0.05 {
			report.Direction = domain.TrendFalling
		}
	}
	return report
}
