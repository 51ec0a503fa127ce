package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/seoscope/keywordrun/internal/application"
	"github.com/seoscope/keywordrun/internal/optimize"
)

func runOptimize(cmd *cobra.Command, args []string) error {
	res, err := optimizeCycle(cmd)
	if err != nil {
		return err
	}
	if code := application.ExitForCycle(res.Status); code != application.ExitOK {
		os.Exit(code)
	}
	return nil
}

// optimizeCycle runs one learning cycle and prints the outcome. The menu
// calls this directly so a data-starved cycle reports instead of exiting.
func optimizeCycle(cmd *cobra.Command) (*optimize.CycleResult, error) {
	nicheTag, _ := cmd.Flags().GetString("niche")
	windowDays, _ := cmd.Flags().GetInt("window-days")
	minRows, _ := cmd.Flags().GetInt("min-rows")

	s, err := newStack(cmd)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	ocfg := s.optimizerConfig()
	if nicheTag != "" {
		ocfg.Niche = nicheTag
	}
	if windowDays > 0 {
		ocfg.Window = time.Duration(windowDays) * 24 * time.Hour
	}
	if minRows > 0 {
		ocfg.MinRows = minRows
	}

	opt, err := s.buildOptimizer(ocfg)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("niche", ocfg.Niche).
		Dur("window", ocfg.Window).
		Int("min_rows", ocfg.MinRows).
		Msg("starting optimizer cycle")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	res, err := opt.RunCycle(ctx)
	if err != nil {
		return nil, err
	}

	printCycleResult(res)
	return res, nil
}

func printCycleResult(res *optimize.CycleResult) {
	switch res.Status {
	case optimize.StatusApplied:
		fmt.Printf("✅ Threshold adjustment applied\n")
	case optimize.StatusSkippedNotNeeded:
		fmt.Printf("⏸️  No adjustment needed\n")
	case optimize.StatusSkippedLowConfidence:
		fmt.Printf("⏸️  Adjustment held (below confidence floor)\n")
	case optimize.StatusRolledBack:
		fmt.Printf("↩️  Adjustment rolled back\n")
	case optimize.StatusFrozen:
		fmt.Printf("🧊 Optimizer frozen for this niche\n")
	case optimize.StatusInsufficientData:
		fmt.Printf("⚠️  Not enough journal history to train\n")
	case optimize.StatusTrainingFailed:
		fmt.Printf("❌ Model training failed quality gates\n")
	default:
		fmt.Printf("❌ Cycle failed\n")
	}
	fmt.Printf("Tracing ID: %s\n", res.TracingID)
	fmt.Printf("Journal rows: %d\n", res.Rows)
	if res.Observed > 0 || res.Predicted > 0 {
		fmt.Printf("Approval rate: observed %.3f, predicted %.3f\n", res.Observed, res.Predicted)
	}
	if res.Status == optimize.StatusApplied {
		fmt.Printf("Delta: %+.4f (confidence %.2f)\n", res.Delta, res.Confidence)
	}
	if res.R2 != 0 || res.MSE != 0 {
		fmt.Printf("Model quality: R2 %.3f, MSE %.5f\n", res.R2, res.MSE)
	}
	if res.Rollbacks > 0 {
		fmt.Printf("Rollbacks in window: %d\n", res.Rollbacks)
	}
	if res.Frozen {
		fmt.Printf("Niche is frozen until rollback pressure clears\n")
	}
}
