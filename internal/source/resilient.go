package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/seoscope/keywordrun/internal/domain"
)

// GuardConfig tunes the limiter and breaker wrapped around a collector.
type GuardConfig struct {
	RPS                 float64       `yaml:"rps" json:"rps"`
	Burst               int           `yaml:"burst" json:"burst"`
	MaxRequests         uint32        `yaml:"max_requests" json:"max_requests"`
	Interval            time.Duration `yaml:"interval" json:"interval"`
	Timeout             time.Duration `yaml:"timeout" json:"timeout"`
	ErrorRateThreshold  float64       `yaml:"error_rate_threshold" json:"error_rate_threshold"`
	ConsecutiveFailures uint32        `yaml:"consecutive_failures" json:"consecutive_failures"`
}

// DefaultGuardConfig matches the quota a free-tier suggest endpoint
// tolerates.
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		RPS:                 5,
		Burst:               10,
		MaxRequests:         3,
		Interval:            60 * time.Second,
		Timeout:             30 * time.Second,
		ErrorRateThreshold:  50.0,
		ConsecutiveFailures: 5,
	}
}

// Resilient guards a CandidateSource with a token bucket and a circuit
// breaker so a misbehaving collector throttles and then trips instead
// of stalling every batch behind it.
type Resilient struct {
	inner   CandidateSource
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	log     zerolog.Logger
}

// GuardStatus is the breaker view exposed to health endpoints.
type GuardStatus struct {
	Source    string  `json:"source"`
	State     string  `json:"state"`
	Requests  uint32  `json:"requests"`
	Failures  uint32  `json:"failures"`
	ErrorRate float64 `json:"error_rate"`
}

// NewResilient wraps inner with the guard described by cfg.
func NewResilient(inner CandidateSource, cfg GuardConfig, logger zerolog.Logger) *Resilient {
	log := logger.With().
		Str("component", "source_guard").
		Str("source", inner.Name()).
		Logger()

	settings := gobreaker.Settings{
		Name:        inner.Name(),
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests >= 10 {
				errorRate := float64(counts.TotalFailures) / float64(counts.Requests) * 100
				if errorRate >= cfg.ErrorRateThreshold {
					return true
				}
			}
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("source breaker state changed")
		},
	}

	return &Resilient{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker(settings),
		limiter: rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
		log:     log,
	}
}

func (r *Resilient) Name() string { return r.inner.Name() }

// Fetch waits for a rate slot, then runs the inner fetch through the
// breaker. Collector errors pass through untouched so callers keep the
// source's own taxonomy; only guard rejections are wrapped.
func (r *Resilient) Fetch(ctx context.Context, niche string, limit int) ([]domain.Keyword, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, domain.WrapStageError("stage/source_throttled", fmt.Sprintf("waiting for a fetch slot on %s", r.inner.Name()), err)
	}

	out, err := r.breaker.Execute(func() (interface{}, error) {
		return r.inner.Fetch(ctx, niche, limit)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, domain.WrapStageError("stage/source_open", fmt.Sprintf("source %s is tripped", r.inner.Name()), err)
		}
		return nil, err
	}
	return out.([]domain.Keyword), nil
}

// Status reports the breaker state and counts.
func (r *Resilient) Status() GuardStatus {
	counts := r.breaker.Counts()
	var errorRate float64
	if counts.Requests > 0 {
		errorRate = float64(counts.TotalFailures) / float64(counts.Requests) * 100
	}
	return GuardStatus{
		Source:    r.inner.Name(),
		State:     r.breaker.State().String(),
		Requests:  counts.Requests,
		Failures:  counts.TotalFailures,
		ErrorRate: errorRate,
	}
}
