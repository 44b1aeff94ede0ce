// Package scheduler triggers orchestrator passes on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/JakeFAU/h1b-jobs-crawler/internal/crawler"
)

// DefaultSpec fires a pass every hour.
const DefaultSpec = "@every 1h"

// PassRunner runs one orchestrator pass.
type PassRunner interface {
	RunPass(ctx context.Context, req crawler.PassRequest) crawler.OrchestrationResult
}

// Config tunes the Scheduler.
type Config struct {
	Spec string
	// RunOnStart fires one pass as soon as Start is called.
	RunOnStart bool
	// PassTimeout bounds a single scheduled pass; zero means no bound.
	PassTimeout time.Duration
}

// Scheduler wraps robfig/cron. Ticks that land while a pass is still running are skipped.
type Scheduler struct {
	cron   *cron.Cron
	runner PassRunner
	cfg    Config
	logger *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New validates the cron spec and builds a Scheduler.
func New(runner PassRunner, cfg Config, logger *zap.Logger) (*Scheduler, error) {
	if runner == nil {
		return nil, errors.New("pass runner is required")
	}
	if cfg.Spec == "" {
		cfg.Spec = DefaultSpec
	}
	if _, err := cron.ParseStandard(cfg.Spec); err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", cfg.Spec, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("scheduler")
	cl := cronLogger{logger.Sugar()}
	return &Scheduler{
		cron:   cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		runner: runner,
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Start registers the pass job and starts the cron loop. Passes run under ctx until
// Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	if _, err := s.cron.AddFunc(s.cfg.Spec, func() { s.fire(runCtx) }); err != nil {
		cancel()
		return fmt.Errorf("add cron job: %w", err)
	}
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("scheduler started", zap.String("spec", s.cfg.Spec), zap.Bool("run_on_start", s.cfg.RunOnStart))
	if s.cfg.RunOnStart {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.fire(runCtx)
		}()
	}
	return nil
}

// Stop halts the schedule, cancels any in-flight pass and waits for it to return.
func (s *Scheduler) Stop() {
	done := s.cron.Stop()
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
	<-done.Done()
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) fire(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if s.cfg.PassTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.PassTimeout)
		defer cancel()
	}
	s.logger.Info("scheduled pass starting")
	res := s.runner.RunPass(ctx, crawler.PassRequest{})
	s.logger.Info("scheduled pass finished",
		zap.Bool("skipped", res.Skipped),
		zap.Int("runs", res.RunsExecuted),
		zap.Int("saved", res.TotalJobsSaved),
		zap.Int("errors", len(res.Errors)),
		zap.Duration("elapsed", res.ExecutionTime),
	)
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
