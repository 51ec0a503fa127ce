package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/seoscope/keywordrun/internal/application"
)

const (
	appName = "KeywordRun"
	version = "v1.4.0"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	rootCmd := &cobra.Command{
		Use:     "keywordrun",
		Short:   "Long-tail keyword scoring and validation pipeline",
		Version: version,
		Long: `KeywordRun scores long-tail search keyword candidates through
significance, complexity, competitiveness and trend analysis, validates
them against niche-specific acceptance criteria, and tunes its own
parameters from the journaled outcomes.

Run 'keywordrun' in a terminal for the interactive menu. Subcommands and
flags cover non-interactive automation.`,
		Run: runDefaultEntry, // TTY detection and menu routing
	}

	rootCmd.PersistentFlags().String("config", "", "Application config file (JSON)")
	rootCmd.PersistentFlags().String("niches", defaultNichesPath, "Niche catalog file (YAML)")

	pipelineCmd := &cobra.Command{
		Use:   "pipeline [keyword ...]",
		Short: "Score a batch of keyword candidates",
		Long:  "Run candidates from a file or the argument list through the scoring stages and print the validation summary",
		RunE:  runPipeline,
	}
	addPipelineFlags(pipelineCmd.Flags())

	optimizeCmd := &cobra.Command{
		Use:   "optimize",
		Short: "Run one parameter optimization cycle",
		Long:  "Train on journaled outcomes, then apply, skip or roll back a niche parameter adjustment",
		RunE:  runOptimize,
	}
	optimizeCmd.Flags().String("niche", "", "Niche to tune (default from config)")
	optimizeCmd.Flags().Int("window-days", 0, "Training window in days (default from config)")
	optimizeCmd.Flags().Int("min-rows", 0, "Minimum outcome rows to train (default from config)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP observation server",
		Long:  "Serve /health, /metrics, /monitoring/dashboard, /optimize, /experiments, /feedback, /audit/report and the /ws/progress stream",
		RunE:  runServe,
	}
	serveCmd.Flags().String("host", "", "Bind host (default 127.0.0.1)")
	serveCmd.Flags().Int("port", 0, "Bind port (default 8080, or HTTP_PORT)")
	serveCmd.Flags().String("db", defaultDBPath, "Database config file (YAML)")
	serveCmd.Flags().String("schedule", "", "Run the job scheduler alongside the server (path to schedule YAML)")
	serveCmd.Flags().String("experiments", defaultExperimentsDir, "Experiment index directory")

	scheduleCmd := &cobra.Command{
		Use:   "schedule",
		Short: "Recurring maintenance job scheduler",
		Long:  "Manage the optimizer cycle, journal cleanup and niche reload jobs defined in the schedule file",
	}
	scheduleCmd.PersistentFlags().String("schedule", defaultSchedulePath, "Schedule config file (YAML)")

	scheduleListCmd := &cobra.Command{
		Use:   "list",
		Short: "List configured jobs",
		RunE:  runScheduleList,
	}

	scheduleRunCmd := &cobra.Command{
		Use:   "run [job-name]",
		Short: "Execute one job immediately",
		Args:  cobra.ExactArgs(1),
		RunE:  runScheduleRun,
	}
	scheduleRunCmd.Flags().Bool("dry-run", false, "Report what the job would do without changing state")

	scheduleStartCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the scheduler daemon",
		Long:  "Run enabled jobs on their intervals until interrupted",
		RunE:  runScheduleStart,
	}

	scheduleStatusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show scheduler status",
		RunE:  runScheduleStatus,
	}

	scheduleCmd.AddCommand(scheduleListCmd)
	scheduleCmd.AddCommand(scheduleRunCmd)
	scheduleCmd.AddCommand(scheduleStartCmd)
	scheduleCmd.AddCommand(scheduleStatusCmd)

	journalCmd := &cobra.Command{
		Use:   "journal",
		Short: "Event journal reports and maintenance",
	}

	journalReportCmd := &cobra.Command{
		Use:   "report",
		Short: "Summarize journaled quality and trend data",
		Long:  "Aggregate the per-day journal files into acceptance, per-kind and week-over-week volume views",
		RunE:  runJournalReport,
	}
	journalReportCmd.Flags().Int("days", 7, "Window size in days")
	journalReportCmd.Flags().String("kind", "", "Filter by record kind")
	journalReportCmd.Flags().String("level", "", "Filter by record level")
	journalReportCmd.Flags().Int("top", 10, "Top keywords to list")
	journalReportCmd.Flags().Bool("json", false, "Emit the reports as JSON")

	journalCleanupCmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove journal files past retention",
		RunE:  runJournalCleanup,
	}

	journalCmd.AddCommand(journalReportCmd)
	journalCmd.AddCommand(journalCleanupCmd)

	menuCmd := &cobra.Command{
		Use:   "menu",
		Short: "Interactive menu interface",
		Run:   runMenu,
	}

	rootCmd.AddCommand(menuCmd)
	rootCmd.AddCommand(pipelineCmd)
	rootCmd.AddCommand(optimizeCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(journalCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(application.ExitCode(err))
	}
}

// runDefaultEntry routes a bare invocation to the menu on a terminal and
// to usage guidance everywhere else.
func runDefaultEntry(cmd *cobra.Command, args []string) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Fprintf(os.Stderr, "The interactive menu requires a TTY terminal.\n")
		fmt.Fprintf(os.Stderr, "Use subcommands for non-interactive automation:\n\n")
		fmt.Fprintf(os.Stderr, "  keywordrun pipeline --input candidates.jsonl --niche technology\n")
		fmt.Fprintf(os.Stderr, "  keywordrun optimize --niche technology\n")
		fmt.Fprintf(os.Stderr, "  keywordrun serve --schedule config/schedule.yaml\n")
		fmt.Fprintf(os.Stderr, "  keywordrun --help\n")
		os.Exit(application.ExitConfig)
	}
	runMenu(cmd, args)
}

// runMenu starts the interactive menu interface.
func runMenu(cmd *cobra.Command, args []string) {
	ui := NewMenuUI(cmd.Root())
	if err := ui.Run(); err != nil {
		log.Error().Err(err).Msg("menu interface failed")
		os.Exit(1)
	}
}
