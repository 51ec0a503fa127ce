package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/seoscope/keywordrun/internal/scheduler"
)

// newScheduler builds the stack plus a scheduler from the --schedule
// config. The caller owns closing the returned stack.
func newScheduler(cmd *cobra.Command) (*scheduler.Scheduler, *stack, error) {
	schedulePath, _ := cmd.Flags().GetString("schedule")

	s, err := newStack(cmd)
	if err != nil {
		return nil, nil, err
	}

	opt, err := s.buildOptimizer(s.optimizerConfig())
	if err != nil {
		s.Close()
		return nil, nil, err
	}

	sched, err := scheduler.NewScheduler(schedulePath, scheduler.Runners{
		Optimizer: opt,
		Journal:   s.journal,
		Resolver:  s.resolver,
	}, s.log)
	if err != nil {
		s.Close()
		return nil, nil, err
	}
	return sched, s, nil
}

func runScheduleList(cmd *cobra.Command, args []string) error {
	sched, s, err := newScheduler(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	jobs := sched.ListJobs()
	fmt.Printf("📋 Scheduled jobs (%d)\n\n", len(jobs))
	fmt.Printf("%-16s %-10s %-16s %-8s %s\n", "JOB NAME", "SCHEDULE", "TYPE", "STATUS", "DESCRIPTION")
	for _, job := range jobs {
		status := "enabled"
		if !job.Enabled {
			status = "disabled"
		}
		fmt.Printf("%-16s %-10s %-16s %-8s %s\n", job.Name, job.Schedule, job.Type, status, job.Description)
	}
	return nil
}

func runScheduleRun(cmd *cobra.Command, args []string) error {
	jobName := args[0]
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	sched, s, err := newScheduler(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	result, err := sched.RunJob(ctx, jobName, dryRun)
	if err != nil {
		return err
	}

	if result.Success {
		fmt.Printf("✅ Job %q completed in %.0fms\n", result.JobName, result.ElapsedMs)
	} else {
		fmt.Printf("❌ Job %q failed: %s\n", result.JobName, result.Error)
	}
	if result.Detail != "" {
		fmt.Printf("Detail: %s\n", result.Detail)
	}
	if result.DryRun {
		fmt.Printf("Dry run: no state was changed\n")
	}

	if !result.Success {
		return fmt.Errorf("job %s failed: %s", jobName, result.Error)
	}
	return nil
}

// runScheduleStart runs the scheduler daemon in the foreground until
// SIGINT/SIGTERM.
func runScheduleStart(cmd *cobra.Command, args []string) error {
	sched, s, err := newScheduler(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	errCh := make(chan error, 1)
	go func() {
		errCh <- sched.Start(ctx)
	}()

	log.Info().Msg("scheduler daemon started")

	select {
	case <-quit:
		log.Info().Msg("shutdown signal received")
		cancel()
		<-errCh
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
	}

	log.Info().Msg("scheduler stopped")
	return nil
}

func runScheduleStatus(cmd *cobra.Command, args []string) error {
	sched, s, err := newScheduler(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	status := sched.Status()
	fmt.Printf("🕐 Scheduler status\n\n")
	fmt.Printf("Running: %t\n", status.Running)
	fmt.Printf("Enabled jobs: %d\n", status.EnabledJobs)
	fmt.Printf("Disabled jobs: %d\n", status.DisabledJobs)
	if !status.NextRun.IsZero() {
		fmt.Printf("Next run: %s\n", status.NextRun.Format(time.RFC3339))
	}
	if !status.LastRun.IsZero() {
		fmt.Printf("Last run: %s\n", status.LastRun.Format(time.RFC3339))
	}
	if status.Uptime > 0 {
		fmt.Printf("Uptime: %s\n", status.Uptime)
	}
	return nil
}
