package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/timmy/memedex/internal/logger"
	"github.com/timmy/memedex/internal/source"
)

// SchedulerConfig holds the periodic trigger intervals.
type SchedulerConfig struct {
	FetchInterval time.Duration
	RetryInterval time.Duration
	// FetchOnStartup schedules an immediate fetch run when the scheduler starts.
	FetchOnStartup bool
}

// Scheduler drives periodic fetch runs and retry sweeps. On-demand triggers
// race safely with scheduled ones: the pipeline's per-kind in-flight flags
// reject the loser.
type Scheduler struct {
	pipeline *Pipeline
	sources  []source.Source
	cron     *cron.Cron
	logger   *logger.Logger
	cfg      SchedulerConfig

	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler creates a Scheduler over the configured sources.
func NewScheduler(p *Pipeline, sources []source.Source, log *logger.Logger, cfg SchedulerConfig) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		pipeline: p,
		sources:  sources,
		cron:     cron.New(),
		logger:   log,
		cfg:      cfg,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start registers the periodic jobs and starts the cron loop.
func (s *Scheduler) Start() error {
	if s.cfg.FetchInterval > 0 {
		spec := fmt.Sprintf("@every %s", s.cfg.FetchInterval)
		if _, err := s.cron.AddFunc(spec, s.fetchJob); err != nil {
			return fmt.Errorf("failed to schedule fetch job: %w", err)
		}
	}
	if s.cfg.RetryInterval > 0 {
		spec := fmt.Sprintf("@every %s", s.cfg.RetryInterval)
		if _, err := s.cron.AddFunc(spec, s.retryJob); err != nil {
			return fmt.Errorf("failed to schedule retry job: %w", err)
		}
	}

	s.cron.Start()
	s.logger.WithFields(logger.Fields{
		"fetch_interval": s.cfg.FetchInterval.String(),
		"retry_interval": s.cfg.RetryInterval.String(),
	}).Info("Scheduler started")

	if s.cfg.FetchOnStartup {
		go s.fetchJob()
	}
	return nil
}

// Stop cancels the run context and waits for the cron loop to drain. An
// in-flight run finishes its current item before exiting.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.logger.Info("Scheduler stopped")
}

func (s *Scheduler) fetchJob() {
	if _, err := s.pipeline.RunFetch(s.ctx, s.sources); err != nil {
		if errors.Is(err, ErrRunActive) {
			s.logger.Info("Scheduled fetch skipped: run already active")
			return
		}
		s.logger.WithError(err).Error("Scheduled fetch run failed")
	}
}

func (s *Scheduler) retryJob() {
	if _, err := s.pipeline.RunRetry(s.ctx); err != nil {
		if errors.Is(err, ErrRunActive) {
			s.logger.Info("Scheduled retry sweep skipped: run already active")
			return
		}
		s.logger.WithError(err).Error("Scheduled retry sweep failed")
	}
}
