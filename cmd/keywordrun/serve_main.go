package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/seoscope/keywordrun/internal/experiments"
	httpapi "github.com/seoscope/keywordrun/internal/interfaces/http"
	"github.com/seoscope/keywordrun/internal/scheduler"
)

// runServe starts the HTTP boundary and keeps the full stack alive until
// SIGINT/SIGTERM. With --schedule it also runs the job daemon in-process.
func runServe(cmd *cobra.Command, args []string) error {
	host, _ := cmd.Flags().GetString("host")
	port, _ := cmd.Flags().GetInt("port")
	dbPath, _ := cmd.Flags().GetString("db")
	schedulePath, _ := cmd.Flags().GetString("schedule")
	experimentsDir, _ := cmd.Flags().GetString("experiments")

	s, err := newStack(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.openDatabase(dbPath); err != nil {
		return err
	}
	if err := s.buildProcessor(defaultArtifactDir); err != nil {
		return err
	}

	scfg := httpapi.DefaultServerConfig()
	if host != "" {
		scfg.Host = host
	}
	if port > 0 {
		scfg.Port = port
	}

	opt, err := s.buildOptimizer(s.optimizerConfig())
	if err != nil {
		return err
	}

	exps := experiments.NewStore(experimentsDir, s.log)
	hub := httpapi.NewProgressHub(s.log)
	metrics := httpapi.NewMetrics()

	srv, err := httpapi.NewServer(scfg, httpapi.Deps{
		Repository:  s.db.Health(),
		Outcomes:    s.outcomes(),
		Cache:       s.cache,
		Optimizer:   opt,
		Experiments: exps,
		Journal:     s.journal,
		Queue:       s.orch,
		Metrics:     metrics,
		Hub:         hub,
		Version:     version,
		Logger:      s.log,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if schedulePath != "" {
		sched, err := scheduler.NewScheduler(schedulePath, scheduler.Runners{
			Optimizer: opt,
			Journal:   s.journal,
			Resolver:  s.resolver,
		}, s.log)
		if err != nil {
			return err
		}
		go func() {
			if err := sched.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("scheduler stopped")
			}
		}()
		log.Info().Str("config", schedulePath).Msg("job scheduler running in-process")
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	addr := srv.GetAddress()
	log.Info().Str("address", addr).Msg("server started")
	log.Info().Msgf("Health:   http://%s/health", addr)
	log.Info().Msgf("Metrics:  http://%s/metrics", addr)
	log.Info().Msgf("Progress: ws://%s/ws/progress", addr)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
		log.Info().Msg("shutdown signal received")
	case err := <-serverErr:
		return err
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	log.Info().Msg("server shutdown complete")
	return nil
}
