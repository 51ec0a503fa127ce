package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// MenuUI is the interactive interface for terminal sessions. Every action
// routes through the same run* functions the CLI subcommands use.
type MenuUI struct {
	root *cobra.Command
	in   *bufio.Reader
}

func NewMenuUI(root *cobra.Command) *MenuUI {
	return &MenuUI{root: root, in: bufio.NewReader(os.Stdin)}
}

// Run starts the interactive menu loop.
func (ui *MenuUI) Run() error {
	log.Info().Msg("Starting KeywordRun interactive menu")

	fmt.Print("\033[2J\033[H") // Clear screen
	ui.showBanner()

	for {
		choice := ui.getInput(mainMenu)
		if err := ui.handleMenuChoice(choice); err != nil {
			if err.Error() == "exit" {
				break
			}
			log.Error().Err(err).Msg("Menu action failed")
			ui.waitForEnter()
		}
	}

	log.Info().Msg("KeywordRun menu session ended")
	return nil
}

func (ui *MenuUI) showBanner() {
	fmt.Printf(`
 ╔═══════════════════════════════════════════════════════════╗
 ║                   🔑 %s %s                    ║
 ║           Long-Tail Keyword Scoring Pipeline              ║
 ╚═══════════════════════════════════════════════════════════╝

`, appName, version)
}

const mainMenu = `
╔══════════════ MAIN MENU ══════════════╗

 1. 🔍 Score - Run a keyword batch
 2. 🤖 Optimize - Threshold learning cycle
 3. 📈 Serve - HTTP endpoints
 4. 🕐 Schedule - Job management
 5. 📜 Journal - Quality & trend report
 6. 🧹 Cleanup - Expire old journal files
 7. 🌐 Niches - Catalog overview
 0. 🚪 Exit

╚═══════════════════════════════════════╝

Enter your choice (0-7): `

// handleMenuChoice routes menu selections to the shared run functions
func (ui *MenuUI) handleMenuChoice(choice string) error {
	switch choice {
	case "1":
		return ui.handleScore()
	case "2":
		return ui.handleOptimize()
	case "3":
		return ui.handleServe()
	case "4":
		return ui.handleSchedule()
	case "5":
		return ui.handleJournal()
	case "6":
		return ui.handleCleanup()
	case "7":
		return ui.handleNiches()
	case "0":
		return fmt.Errorf("exit")
	default:
		fmt.Printf("❌ Invalid choice: %s\n", choice)
		return nil
	}
}

func (ui *MenuUI) handleScore() error {
	file := ui.getInput("Candidate file (empty to type keywords): ")
	var args []string
	if file == "" {
		line := ui.getInput("Keywords (comma-separated): ")
		args = splitTerms(line)
		if len(args) == 0 {
			fmt.Println("❌ Nothing to score")
			ui.waitForEnter()
			return nil
		}
	}
	nicheTag := ui.getInput("Niche hint (empty = auto-detect): ")
	strategy := ui.getInput("Strategy cascade/parallel/adaptive (empty = config): ")

	cmd := ui.newPipelineCommand()
	if file != "" {
		if err := cmd.Flags().Set("input", file); err != nil {
			return err
		}
	}
	if nicheTag != "" {
		if err := cmd.Flags().Set("niche", nicheTag); err != nil {
			return err
		}
	}
	if strategy != "" {
		if err := cmd.Flags().Set("strategy", strategy); err != nil {
			return err
		}
	}

	fmt.Println("🔍 Scoring batch...")
	if err := runPipeline(cmd, args); err != nil {
		fmt.Printf("❌ Batch failed: %v\n", err)
		ui.waitForEnter()
		return err
	}
	fmt.Printf("📄 Artifacts: %s/latest_accepted.jsonl\n", defaultArtifactDir)
	ui.waitForEnter()
	return nil
}

func (ui *MenuUI) handleOptimize() error {
	nicheTag := ui.getInput("Niche to optimize (empty = config default): ")

	cmd := ui.newCommand()
	cmd.Flags().String("niche", "", "Niche to optimize")
	cmd.Flags().Int("window-days", 0, "Journal window in days")
	cmd.Flags().Int("min-rows", 0, "Minimum journal rows")
	if nicheTag != "" {
		if err := cmd.Flags().Set("niche", nicheTag); err != nil {
			return err
		}
	}

	fmt.Println("🤖 Running optimizer cycle...")
	if _, err := optimizeCycle(cmd); err != nil {
		fmt.Printf("❌ Cycle failed: %v\n", err)
		ui.waitForEnter()
		return err
	}
	ui.waitForEnter()
	return nil
}

func (ui *MenuUI) handleServe() error {
	cmd := ui.newCommand()
	cmd.Flags().String("host", "", "Bind host")
	cmd.Flags().Int("port", 0, "Bind port")
	cmd.Flags().String("db", defaultDBPath, "Database config file")
	cmd.Flags().String("schedule", "", "Scheduler config file")
	cmd.Flags().String("experiments", defaultExperimentsDir, "Experiment store directory")
	if port := ui.getInput("Port (empty = 8080): "); port != "" {
		if err := cmd.Flags().Set("port", port); err != nil {
			return err
		}
	}

	fmt.Println("📈 Starting server (Ctrl+C to stop)...")
	if err := runServe(cmd, nil); err != nil {
		fmt.Printf("❌ Server failed: %v\n", err)
		ui.waitForEnter()
		return err
	}
	ui.waitForEnter()
	return nil
}

func (ui *MenuUI) handleSchedule() error {
	choice := ui.getInput(`
╔════════════ SCHEDULE MENU ════════════╗

 1. 📋 List jobs
 2. ▶️  Run a job now
 3. 🧪 Dry-run a job
 0. ← Back to Main Menu

╚═══════════════════════════════════════╝

Enter choice: `)

	cmd := ui.newCommand()
	cmd.Flags().String("schedule", defaultSchedulePath, "Scheduler config file")
	cmd.Flags().Bool("dry-run", false, "Resolve the job without side effects")

	switch choice {
	case "1":
		if err := runScheduleList(cmd, nil); err != nil {
			return err
		}
	case "2", "3":
		jobName := ui.getInput("Job name: ")
		if jobName == "" {
			fmt.Println("❌ No job name given")
			break
		}
		if choice == "3" {
			if err := cmd.Flags().Set("dry-run", "true"); err != nil {
				return err
			}
		}
		if err := runScheduleRun(cmd, []string{jobName}); err != nil {
			return err
		}
	case "0":
		return nil
	}

	ui.waitForEnter()
	return nil
}

func (ui *MenuUI) handleJournal() error {
	cmd := ui.newCommand()
	cmd.Flags().Int("days", 7, "Window size in days")
	cmd.Flags().String("kind", "", "Filter by event kind")
	cmd.Flags().String("level", "", "Filter by level")
	cmd.Flags().Int("top", 10, "Top keyword count")
	cmd.Flags().Bool("json", false, "Emit JSON")
	if days := ui.getInput("Window in days (empty = 7): "); days != "" {
		if err := cmd.Flags().Set("days", days); err != nil {
			return err
		}
	}

	if err := runJournalReport(cmd, nil); err != nil {
		return err
	}
	ui.waitForEnter()
	return nil
}

func (ui *MenuUI) handleCleanup() error {
	if err := runJournalCleanup(ui.newCommand(), nil); err != nil {
		return err
	}
	ui.waitForEnter()
	return nil
}

func (ui *MenuUI) handleNiches() error {
	s, err := newStack(ui.newCommand())
	if err != nil {
		return err
	}
	defer s.Close()

	tags := s.resolver.Niches()
	fmt.Printf("🌐 Niche catalog (%d entries)\n\n", len(tags))
	for _, tag := range tags {
		cfg, err := s.resolver.Get(tag)
		if err != nil {
			continue
		}
		fmt.Printf("  %-14s accept ≥ %.2f  rev %d\n", tag, cfg.AcceptThreshold, s.resolver.Revision(tag))
	}
	ui.waitForEnter()
	return nil
}

// newCommand builds a synthetic command carrying the root's parsed
// persistent flags so the shared run functions see the same --config and
// --niches values the session was started with.
func (ui *MenuUI) newCommand() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.Flags().AddFlagSet(ui.root.PersistentFlags())
	return cmd
}

func (ui *MenuUI) newPipelineCommand() *cobra.Command {
	cmd := ui.newCommand()
	addPipelineFlags(cmd.Flags())
	return cmd
}

func (ui *MenuUI) getInput(prompt string) string {
	fmt.Print(prompt)
	line, err := ui.in.ReadString('\n')
	if err != nil {
		return ""
	}
	return strings.TrimSpace(line)
}

func (ui *MenuUI) waitForEnter() {
	fmt.Printf("\nPress Enter to continue...")
	ui.in.ReadString('\n')
}

func splitTerms(line string) []string {
	parts := strings.Split(line, ",")
	terms := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			terms = append(terms, t)
		}
	}
	return terms
}
