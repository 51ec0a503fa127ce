// Package scheduler runs the recurring maintenance jobs around the
// pipeline: optimizer tuning cycles, journal retention sweeps and niche
// catalog reloads, configured as a YAML job list.
package scheduler

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/seoscope/keywordrun/internal/domain"
	"github.com/seoscope/keywordrun/internal/ledger"
	"github.com/seoscope/keywordrun/internal/niche"
	"github.com/seoscope/keywordrun/internal/optimize"
)

// Job types dispatched by RunJob.
const (
	TypeOptimizeCycle = "optimize.cycle"
	TypeLedgerCleanup = "ledger.cleanup"
	TypeNicheReload   = "niche.reload"
)

const historyCap = 50

// Job is one scheduled maintenance task.
type Job struct {
	Name        string    `yaml:"name"`
	Schedule    string    `yaml:"schedule"` // Go duration: "15m", "6h", "24h"
	Type        string    `yaml:"type"`
	Description string    `yaml:"description"`
	Enabled     bool      `yaml:"enabled"`
	Config      JobConfig `yaml:"config"`
}

// JobConfig holds job-specific configuration.
type JobConfig struct {
	Catalog        string `yaml:"catalog"`         // niche.reload: catalog file path
	TimeoutSeconds int    `yaml:"timeout_seconds"` // per-run deadline, 0 means none
}

// Config is the scheduler configuration document.
type Config struct {
	Jobs   []Job        `yaml:"jobs"`
	Global GlobalConfig `yaml:"global"`
}

// GlobalConfig holds global scheduler settings.
type GlobalConfig struct {
	TickSeconds int `yaml:"tick_seconds"` // due-job poll cadence, default 30
}

// Status reports the scheduler's current state.
type Status struct {
	Running      bool          `json:"running"`
	EnabledJobs  int           `json:"enabled_jobs"`
	DisabledJobs int           `json:"disabled_jobs"`
	NextRun      time.Time     `json:"next_run,omitempty"`
	LastRun      time.Time     `json:"last_run,omitempty"`
	Uptime       time.Duration `json:"uptime"`
}

// JobResult records one job execution.
type JobResult struct {
	JobName   string    `json:"job_name"`
	Type      string    `json:"type"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
	ElapsedMs float64   `json:"elapsed_ms"`
	Success   bool      `json:"success"`
	Detail    string    `json:"detail,omitempty"`
	Error     string    `json:"error,omitempty"`
	DryRun    bool      `json:"dry_run,omitempty"`
}

// CycleRunner triggers one optimizer tuning cycle.
type CycleRunner interface {
	RunCycle(ctx context.Context) (*optimize.CycleResult, error)
}

// Runners are the collaborators jobs dispatch to. A job whose runner is
// absent fails at execution rather than being skipped silently.
type Runners struct {
	Optimizer CycleRunner
	Journal   *ledger.Writer
	Resolver  *niche.Resolver
}

// Scheduler manages the configured jobs.
type Scheduler struct {
	config    Config
	runners   Runners
	intervals map[string]time.Duration
	log       zerolog.Logger

	mu        sync.Mutex
	running   bool
	startTime time.Time
	lastRun   map[string]time.Time
	history   []JobResult
}

// NewScheduler loads and validates the job list.
func NewScheduler(configPath string, runners Runners, logger zerolog.Logger) (*Scheduler, error) {
	config, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}

	intervals := make(map[string]time.Duration, len(config.Jobs))
	for _, job := range config.Jobs {
		every, err := time.ParseDuration(job.Schedule)
		if err != nil || every <= 0 {
			return nil, domain.NewConfigError("config/bad_schedule",
				fmt.Sprintf("job %q schedule %q is not a positive duration", job.Name, job.Schedule))
		}
		intervals[job.Name] = every
	}

	return &Scheduler{
		config:    config,
		runners:   runners,
		intervals: intervals,
		lastRun:   map[string]time.Time{},
		log:       logger.With().Str("component", "scheduler").Logger(),
	}, nil
}

func loadConfig(configPath string) (Config, error) {
	var config Config

	data, err := os.ReadFile(configPath)
	if err != nil {
		return config, domain.WrapConfigError("config/read_schedule", "reading scheduler config", err)
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return config, domain.WrapConfigError("config/parse_schedule", "parsing scheduler config", err)
	}

	if config.Global.TickSeconds <= 0 {
		config.Global.TickSeconds = 30
	}

	seen := map[string]bool{}
	for _, job := range config.Jobs {
		if job.Name == "" {
			return config, domain.NewConfigError("config/missing_job_name", "every job needs a name")
		}
		if seen[job.Name] {
			return config, domain.NewConfigError("config/duplicate_job", fmt.Sprintf("job %q is defined twice", job.Name))
		}
		seen[job.Name] = true

		switch job.Type {
		case TypeOptimizeCycle, TypeLedgerCleanup, TypeNicheReload:
		default:
			return config, domain.NewConfigError("config/unknown_job_type",
				fmt.Sprintf("job %q has unknown type %q", job.Name, job.Type))
		}
	}

	return config, nil
}

// ListJobs returns all configured jobs.
func (s *Scheduler) ListJobs() []Job {
	return s.config.Jobs
}

// Status returns the current scheduler status. NextRun is only set
// while the daemon is running; intervals are measured from startup for
// jobs that have not run yet.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{Running: s.running}
	for _, job := range s.config.Jobs {
		if job.Enabled {
			st.EnabledJobs++
		} else {
			st.DisabledJobs++
		}
	}

	for _, last := range s.lastRun {
		if last.After(st.LastRun) {
			st.LastRun = last
		}
	}

	if s.running {
		st.Uptime = time.Since(s.startTime)
		for _, job := range s.config.Jobs {
			if !job.Enabled {
				continue
			}
			base := s.lastRun[job.Name]
			if base.IsZero() {
				base = s.startTime
			}
			next := base.Add(s.intervals[job.Name])
			if st.NextRun.IsZero() || next.Before(st.NextRun) {
				st.NextRun = next
			}
		}
	}

	return st
}

// Results returns the recent job results, oldest first.
func (s *Scheduler) Results() []JobResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JobResult, len(s.history))
	copy(out, s.history)
	return out
}

// Start runs the daemon loop until the context ends. Due jobs run
// sequentially so an optimizer cycle and a catalog reload cannot
// interleave.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return domain.NewInputError("input/already_running", "scheduler is already running")
	}
	s.running = true
	s.startTime = time.Now()
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	s.log.Info().Int("jobs", len(s.config.Jobs)).Int("tick_seconds", s.config.Global.TickSeconds).Msg("scheduler starting")

	ticker := time.NewTicker(time.Duration(s.config.Global.TickSeconds) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			s.runDue(ctx, now)
		}
	}
}

func (s *Scheduler) runDue(ctx context.Context, now time.Time) {
	for _, job := range s.config.Jobs {
		if !job.Enabled {
			continue
		}

		s.mu.Lock()
		base := s.lastRun[job.Name]
		if base.IsZero() {
			base = s.startTime
		}
		due := !now.Before(base.Add(s.intervals[job.Name]))
		s.mu.Unlock()

		if !due {
			continue
		}

		result, err := s.RunJob(ctx, job.Name, false)
		if err != nil {
			s.log.Error().Err(err).Str("job", job.Name).Msg("dispatching due job")
			continue
		}
		if !result.Success {
			s.log.Warn().Str("job", job.Name).Str("error", result.Error).Msg("scheduled job failed")
		}
	}
}

// RunJob executes a job immediately, ignoring its schedule. A dry run
// reports what the job would do without touching anything. Execution
// failures land in the result; the returned error covers only unknown
// job names.
func (s *Scheduler) RunJob(ctx context.Context, jobName string, dryRun bool) (*JobResult, error) {
	var job *Job
	for i := range s.config.Jobs {
		if s.config.Jobs[i].Name == jobName {
			job = &s.config.Jobs[i]
			break
		}
	}
	if job == nil {
		return nil, domain.NewInputError("input/unknown_job", fmt.Sprintf("unknown job %q", jobName))
	}

	if job.Config.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(job.Config.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	started := time.Now()
	result := &JobResult{
		JobName:   jobName,
		Type:      job.Type,
		StartedAt: started,
		Success:   true,
		DryRun:    dryRun,
	}

	s.log.Info().Str("job", jobName).Str("type", job.Type).Bool("dry_run", dryRun).Msg("executing job")

	switch job.Type {
	case TypeOptimizeCycle:
		s.runOptimizeCycle(ctx, result, dryRun)
	case TypeLedgerCleanup:
		s.runLedgerCleanup(result, dryRun)
	case TypeNicheReload:
		s.runNicheReload(job, result, dryRun)
	default:
		// Config validation rejects unknown types, so this only fires
		// on a job list mutated after load.
		result.Success = false
		result.Error = fmt.Sprintf("unknown job type: %s", job.Type)
	}

	result.EndedAt = time.Now()
	result.ElapsedMs = float64(result.EndedAt.Sub(started)) / float64(time.Millisecond)

	s.mu.Lock()
	if !dryRun {
		s.lastRun[jobName] = result.EndedAt
	}
	s.history = append(s.history, *result)
	if len(s.history) > historyCap {
		s.history = s.history[len(s.history)-historyCap:]
	}
	s.mu.Unlock()

	return result, nil
}

func (s *Scheduler) runOptimizeCycle(ctx context.Context, result *JobResult, dryRun bool) {
	if s.runners.Optimizer == nil {
		result.Success = false
		result.Error = "no optimizer runner configured"
		return
	}
	if dryRun {
		result.Detail = "would run one optimizer tuning cycle"
		return
	}

	res, err := s.runners.Optimizer.RunCycle(ctx)
	if err != nil {
		result.Success = false
		result.Error = err.Error()
		return
	}
	if res.Status == optimize.StatusApplied {
		result.Detail = fmt.Sprintf("cycle applied, delta %+.4f", res.Delta)
	} else {
		result.Detail = fmt.Sprintf("cycle %s", res.Status)
	}
}

func (s *Scheduler) runLedgerCleanup(result *JobResult, dryRun bool) {
	if s.runners.Journal == nil {
		result.Success = false
		result.Error = "no journal configured"
		return
	}
	if dryRun {
		result.Detail = "would remove day files past retention from " + s.runners.Journal.Dir()
		return
	}

	removed, err := s.runners.Journal.Cleanup()
	if err != nil {
		result.Success = false
		result.Error = err.Error()
		return
	}
	result.Detail = fmt.Sprintf("removed %d day files past retention", removed)
}

func (s *Scheduler) runNicheReload(job *Job, result *JobResult, dryRun bool) {
	if s.runners.Resolver == nil {
		result.Success = false
		result.Error = "no niche resolver configured"
		return
	}
	if job.Config.Catalog == "" {
		result.Success = false
		result.Error = "niche.reload needs a catalog path"
		return
	}

	catalog, err := niche.LoadCatalog(job.Config.Catalog)
	if err != nil {
		result.Success = false
		result.Error = err.Error()
		return
	}
	bounds, err := niche.LoadBounds(job.Config.Catalog)
	if err != nil {
		result.Success = false
		result.Error = err.Error()
		return
	}
	if dryRun {
		result.Detail = fmt.Sprintf("catalog parses, would replace %d niche configs", len(catalog))
		return
	}

	if err := s.runners.Resolver.SetBounds(bounds); err != nil {
		result.Success = false
		result.Error = err.Error()
		return
	}
	replaced := 0
	for _, cfg := range catalog {
		if err := s.runners.Resolver.Replace(cfg); err != nil {
			result.Success = false
			result.Error = err.Error()
			return
		}
		replaced++
	}
	result.Detail = fmt.Sprintf("reloaded %d niche configs", replaced)
}
