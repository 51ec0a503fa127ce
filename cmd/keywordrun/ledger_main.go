package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/seoscope/keywordrun/internal/domain"
	"github.com/seoscope/keywordrun/internal/ledger"
)

// runJournalReport reads the journal window and prints quality and trend
// summaries, or the raw reports as JSON with --json.
func runJournalReport(cmd *cobra.Command, args []string) error {
	days, _ := cmd.Flags().GetInt("days")
	kindFlag, _ := cmd.Flags().GetString("kind")
	levelFlag, _ := cmd.Flags().GetString("level")
	topN, _ := cmd.Flags().GetInt("top")
	asJSON, _ := cmd.Flags().GetBool("json")

	s, err := newStack(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	q := ledger.Query{To: time.Now().UTC()}
	q.From = q.To.AddDate(0, 0, -days)
	if kindFlag != "" {
		kind, err := ledger.ParseKind(kindFlag)
		if err != nil {
			return err
		}
		q.Kind = kind
	}
	if levelFlag != "" {
		level, err := ledger.ParseLevel(levelFlag)
		if err != nil {
			return err
		}
		q.Level = level
	}

	rr, err := s.reader.Read(q)
	if err != nil {
		return err
	}

	quality := ledger.BuildQualityReport(rr, topN)
	trends := ledger.BuildTrendReport(rr, q.To)

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Quality *ledger.QualityReport `json:"quality"`
			Trend   *ledger.TrendReport   `json:"trend"`
		}{quality, trends})
	}

	printQualityReport(quality, days)
	printTrendReport(trends)
	return nil
}

func printQualityReport(quality *ledger.QualityReport, days int) {
	fmt.Printf("📜 Journal report (last %d days)\n\n", days)
	fmt.Printf("Total events: %d", quality.Total)
	if quality.SkippedLines > 0 {
		fmt.Printf(" (%d corrupt lines skipped)", quality.SkippedLines)
	}
	fmt.Printf("\n")
	fmt.Printf("Accepted: %d  Rejected: %d  Approval rate: %.1f%%\n\n",
		quality.Accepted, quality.Rejected, quality.ApprovalRate*100)

	if len(quality.ByKind) > 0 {
		fmt.Printf("Events by kind:\n")
		for _, kind := range sortedKinds(quality.ByKind) {
			fmt.Printf("  %-14s %d\n", kind, quality.ByKind[kind])
		}
		fmt.Printf("\n")
	}

	if len(quality.TopKeywords) > 0 {
		fmt.Printf("Most seen keywords:\n")
		for _, kc := range quality.TopKeywords {
			fmt.Printf("  %-30s %d\n", kc.Keyword, kc.Count)
		}
		fmt.Printf("\n")
	}
}

func printTrendReport(trends *ledger.TrendReport) {
	fmt.Printf("Weekly volume: %d this week, %d last week %s\n",
		trends.ThisWeek, trends.LastWeek, trendBadge(trends.Direction))
	for _, day := range trends.Daily {
		fmt.Printf("  %s  %d\n", day.Day, day.Count)
	}
}

func trendBadge(dir domain.TrendDirection) string {
	switch dir {
	case domain.TrendRising:
		return "📈"
	case domain.TrendFalling:
		return "📉"
	default:
		return "➡️"
	}
}

func sortedKinds(byKind map[ledger.Kind]int) []ledger.Kind {
	kinds := make([]ledger.Kind, 0, len(byKind))
	for kind := range byKind {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

func runJournalCleanup(cmd *cobra.Command, args []string) error {
	s, err := newStack(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	removed, err := s.journal.Cleanup()
	if err != nil {
		return err
	}
	fmt.Printf("🧹 Removed %d journal files past retention\n", removed)
	return nil
}
