package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/seoscope/keywordrun/internal/application"
	"github.com/seoscope/keywordrun/internal/domain"
	"github.com/seoscope/keywordrun/internal/niche"
	"github.com/seoscope/keywordrun/internal/pipeline"
	"github.com/seoscope/keywordrun/internal/source"
)

// addPipelineFlags registers the batch flags. The menu attaches the same
// set to its synthetic command so both paths stay identical.
func addPipelineFlags(fs *pflag.FlagSet) {
	fs.String("input", "", "Candidate file (JSON array or JSONL)")
	fs.String("niche", "", "Niche hint (auto-detected when empty)")
	fs.String("locale", "", "Stopword locale (default from config)")
	fs.String("strategy", "", "Execution strategy (cascade|parallel|adaptive)")
	fs.String("intent", "informational", "Intent assigned to bare keyword arguments")
	fs.Int("limit", 0, "Maximum candidates to score (0 = all)")
	fs.String("artifacts", defaultArtifactDir, "Artifact output directory (empty disables)")
	fs.String("db", defaultDBPath, "Database config file (YAML)")
	fs.Bool("progress", true, "Print per-stage progress")
}

// runPipeline scores one batch of candidates from a file or the argument
// list through the full stage sequence.
func runPipeline(cmd *cobra.Command, args []string) error {
	input, _ := cmd.Flags().GetString("input")
	nicheTag, _ := cmd.Flags().GetString("niche")
	locale, _ := cmd.Flags().GetString("locale")
	strategy, _ := cmd.Flags().GetString("strategy")
	intentFlag, _ := cmd.Flags().GetString("intent")
	limit, _ := cmd.Flags().GetInt("limit")
	artifactDir, _ := cmd.Flags().GetString("artifacts")
	dbPath, _ := cmd.Flags().GetString("db")
	showProgress, _ := cmd.Flags().GetBool("progress")

	var src source.CandidateSource
	switch {
	case input != "":
		st, err := source.FromFile(input)
		if err != nil {
			return err
		}
		src = st
	case len(args) > 0:
		intent, err := domain.ParseIntent(intentFlag)
		if err != nil {
			return err
		}
		src = source.NewStatic("args", keywordsFromArgs(args, intent))
	default:
		return domain.NewInputError("input/no_candidates", "no candidates: pass --input or keyword arguments")
	}

	s, err := newStack(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.openDatabase(dbPath); err != nil {
		return err
	}
	if err := s.buildProcessor(artifactDir); err != nil {
		return err
	}

	log.Info().
		Str("source", src.Name()).
		Str("niche", nicheTag).
		Str("strategy", strategy).
		Int("limit", limit).
		Msg("starting keyword batch")

	var progress pipeline.ProgressFunc
	if showProgress {
		progress = printStageProgress
	}

	res, runErr := s.proc.ProcessSource(context.Background(), src, nicheTag, limit, application.Options{
		Niche:      nicheTag,
		Locale:     locale,
		Strategy:   strategy,
		Progress:   progress,
		EmitReport: artifactDir != "",
	})
	if res == nil {
		return runErr
	}

	printBatchSummary(res)
	return runErr
}

// keywordsFromArgs turns bare terms into candidates with unknown metrics
// and the declared intent.
func keywordsFromArgs(args []string, intent domain.Intent) []domain.Keyword {
	kws := make([]domain.Keyword, 0, len(args))
	for _, term := range args {
		kws = append(kws, domain.Keyword{Term: term, Intent: intent})
	}
	return kws
}

func printStageProgress(stage string, current, total int) {
	fmt.Printf("  [%d/%d] %s\n", current, total, stage)
}

// printBatchSummary renders the batch outcome: disposition counts, the
// detected niche, per-stage timings and a sample of what was approved.
func printBatchSummary(res *pipeline.BatchResult) {
	switch res.Status {
	case pipeline.BatchCompleted:
		fmt.Printf("✅ Batch completed\n")
	case pipeline.BatchCancelled:
		fmt.Printf("⚠️  Batch cancelled\n")
	default:
		fmt.Printf("❌ Batch failed\n")
	}
	fmt.Printf("Tracing ID: %s\n", res.TracingID)
	fmt.Printf("Niche: %s%s\n", res.Niche, detectionNote(res.Detection))
	fmt.Printf("Strategy: %s\n", res.Strategy)
	fmt.Printf("Duration: %s\n", res.Elapsed)

	if report := res.Report; report != nil {
		fmt.Printf("Candidates: %d (approved %d, pending %d, rejected %d, invalid %d)\n",
			report.Input, report.Accepted, report.Pending, report.Rejected, report.InvalidInput)
		if report.Trending > 0 || report.Emerging > 0 {
			fmt.Printf("Trend signals: %d trending, %d emerging\n", report.Trending, report.Emerging)
		}
		if report.StageErrors > 0 {
			fmt.Printf("Stage errors: %d\n", report.StageErrors)
		}
	}

	if len(res.Stages) > 0 {
		fmt.Printf("\nStage timings:\n")
		fmt.Printf("%-14s %10s %6s %6s %7s\n", "STAGE", "ELAPSED", "IN", "OUT", "ERRORS")
		for _, st := range res.Stages {
			fmt.Printf("%-14s %8.1fms %6d %6d %7d\n", st.Stage, st.ElapsedMs, st.InputSize, st.OutputSize, st.Errors)
		}
	}

	if len(res.Accepted) > 0 {
		fmt.Printf("\nTop approved:\n")
		for i, e := range res.Accepted {
			if i >= 5 {
				fmt.Printf("  ... and %d more\n", len(res.Accepted)-i)
				break
			}
			fmt.Printf("  %-40s %.3f (%s)\n", e.Term, e.Composite, e.CompositeBand)
		}
	}
}

func detectionNote(d niche.Detection) string {
	switch {
	case d.Hinted:
		return " (hinted)"
	case d.Matches > 0:
		return fmt.Sprintf(" (detected, %d corpus matches)", d.Matches)
	}
	return ""
}
