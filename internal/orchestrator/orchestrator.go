// Package orchestrator runs scraping passes: it selects due sources, drives each
// through its adapter and the processor, records runs, and sweeps stale data.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/h1b-jobs-crawler/internal/adapter"
	"github.com/JakeFAU/h1b-jobs-crawler/internal/crawler"
	"github.com/JakeFAU/h1b-jobs-crawler/internal/metrics"
	"github.com/JakeFAU/h1b-jobs-crawler/internal/progress"
)

// PassLockKey guards against overlapping passes.
const PassLockKey = "pass:lock"

const (
	defaultListingRetentionDays = 30
	defaultRunRetentionDays     = 7
	defaultPassLockTTL          = 2 * time.Hour
	defaultProcessTimeout       = 5 * time.Minute
	defaultMaxPages             = 3
	publishTimeout              = 10 * time.Second
	// maxErrorDetails caps scrape errors copied onto a run and into the pass result.
	maxErrorDetails = 10
)

// Pass states, logged as the pass moves through them.
const (
	StateLoadingSources = "LOADING_SOURCES"
	StateDueCheck       = "DUE_CHECK"
	StateRunning        = "RUNNING"
	StateCompleted      = "COMPLETED"
	StateFailed         = "FAILED"
	StateRetention      = "RETENTION_SWEEP"
	StateDone           = "DONE"
)

// Processor turns raw listings into saved ones and finalizes the run record.
type Processor interface {
	Process(ctx context.Context, raw []crawler.RawListing, runID, sourceID string) crawler.ProcessResult
}

// RobotsResetter drops cached robots.txt verdicts so each pass sees fresh files.
type RobotsResetter interface {
	Reset()
}

// Config wires an Orchestrator.
type Config struct {
	Repository crawler.Repository
	Registry   *adapter.Registry
	Processor  Processor
	Locker     crawler.Locker
	Clock      crawler.Clock
	Logger     *zap.Logger
	// Robots is optional.
	Robots RobotsResetter
	// Publisher is optional; summaries are published to Topic when both are set.
	Publisher crawler.Publisher
	Topic     string
	// Progress is optional and receives pass and source lifecycle events.
	Progress progress.Emitter

	Concurrency          int
	ListingRetentionDays int
	RunRetentionDays     int
	RespectRobots        bool
	// PassLockWait bounds how long a pass waits for another to finish. Zero skips
	// immediately when a pass is already running.
	PassLockWait   time.Duration
	PassLockTTL    time.Duration
	ProcessTimeout time.Duration
}

// Orchestrator coordinates scraping passes.
type Orchestrator struct {
	cfg    Config
	logger *zap.Logger
}

// New validates cfg and returns an Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	switch {
	case cfg.Repository == nil:
		return nil, errors.New("repository is required")
	case cfg.Registry == nil:
		return nil, errors.New("registry is required")
	case cfg.Processor == nil:
		return nil, errors.New("processor is required")
	case cfg.Locker == nil:
		return nil, errors.New("locker is required")
	case cfg.Clock == nil:
		return nil, errors.New("clock is required")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.ListingRetentionDays <= 0 {
		cfg.ListingRetentionDays = defaultListingRetentionDays
	}
	if cfg.RunRetentionDays <= 0 {
		cfg.RunRetentionDays = defaultRunRetentionDays
	}
	if cfg.PassLockTTL <= 0 {
		cfg.PassLockTTL = defaultPassLockTTL
	}
	if cfg.ProcessTimeout <= 0 {
		cfg.ProcessTimeout = defaultProcessTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{cfg: cfg, logger: logger.Named("orchestrator")}, nil
}

// IsDue reports whether a source last scraped at last is due again at now.
func IsDue(now time.Time, last *time.Time, freqHours int) bool {
	if last == nil || freqHours <= 0 {
		return true
	}
	return now.Sub(*last) >= time.Duration(freqHours)*time.Hour
}

// RunPass executes one pass. It never fails; every problem is recorded on a run
// record or in the returned result.
func (o *Orchestrator) RunPass(ctx context.Context, req crawler.PassRequest) crawler.OrchestrationResult {
	started := o.cfg.Clock.Now()
	result := crawler.OrchestrationResult{
		SourcesProcessed: []crawler.SourceSummary{},
		Errors:           []crawler.SourceError{},
		RobotsCompliance: map[string]crawler.RobotsCompliance{},
		StartedAt:        started,
	}

	lockCtx, cancel := context.WithTimeout(ctx, o.cfg.PassLockWait)
	release, err := o.cfg.Locker.Acquire(lockCtx, PassLockKey, o.cfg.PassLockTTL)
	cancel()
	if err != nil {
		o.logger.Info("pass skipped", zap.Error(err))
		result.Skipped = true
		metrics.ObservePass("skipped", 0)
		return result
	}
	defer release()

	if o.cfg.Robots != nil {
		o.cfg.Robots.Reset()
	}

	o.emit(progress.Event{Stage: progress.StagePassStart, PassStarted: started})
	o.transition(StateLoadingSources, zap.Bool("force_run", req.ForceRun), zap.Strings("source_ids", req.SourceIDs))
	sources, err := o.cfg.Repository.ListActiveSources(ctx, req.SourceIDs)
	if err != nil {
		o.transition(StateFailed, zap.Error(err))
		result.Errors = append(result.Errors, crawler.SourceError{Error: fmt.Sprintf("load sources: %v", err)})
		o.finish(ctx, &result, "failed")
		return result
	}

	runType := crawler.RunTypeScheduled
	if req.ForceRun {
		runType = crawler.RunTypeManual
	}

	o.transition(StateDueCheck, zap.Int("sources", len(sources)))
	outcomes := make([]sourceOutcome, len(sources))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Concurrency)
	for i, src := range sources {
		if !req.ForceRun && !IsDue(started, src.LastScrapedAt, src.ScrapingFrequencyHours) {
			o.logger.Info("source not due",
				zap.String("source_id", src.ID),
				zap.String("source", src.Name),
				zap.Timep("last_scraped_at", src.LastScrapedAt),
			)
			outcomes[i] = sourceOutcome{summary: crawler.SourceSummary{SourceID: src.ID, SourceName: src.Name, Skipped: true}}
			o.emit(progress.Event{Stage: progress.StageSourceSkipped, PassStarted: started, SourceID: src.ID})
			continue
		}
		g.Go(func() error {
			outcomes[i] = o.runSource(gctx, src, runType, started)
			return nil
		})
	}
	_ = g.Wait()

	for _, out := range outcomes {
		result.SourcesProcessed = append(result.SourcesProcessed, out.summary)
		result.Errors = append(result.Errors, out.errors...)
		if out.summary.Skipped {
			continue
		}
		if out.runCreated {
			result.RunsExecuted++
		}
		result.TotalJobsScraped += out.summary.JobsFound
		result.TotalJobsProcessed += out.summary.JobsProcessed
		result.TotalJobsSaved += out.summary.JobsSaved
		if out.robots != nil {
			result.RobotsCompliance[out.summary.SourceName] = *out.robots
		}
	}

	o.sweep(ctx, &result)
	o.finish(ctx, &result, "completed")
	return result
}

// sourceOutcome is what one source contributes to the pass result.
type sourceOutcome struct {
	summary    crawler.SourceSummary
	errors     []crawler.SourceError
	robots     *crawler.RobotsCompliance
	runCreated bool
}

func (o *Orchestrator) runSource(ctx context.Context, src crawler.Source, runType crawler.RunType, passStarted time.Time) (out sourceOutcome) {
	begin := time.Now()
	logger := o.logger.With(zap.String("source_id", src.ID), zap.String("source", src.Name), zap.String("type", src.Type))
	out.summary = crawler.SourceSummary{SourceID: src.ID, SourceName: src.Name}
	fail := func(msg string) {
		out.errors = append(out.errors, crawler.SourceError{SourceID: src.ID, Error: msg})
	}
	defer func() {
		elapsed := time.Since(begin)
		out.summary.ExecutionMilli = elapsed.Milliseconds()
		evt := progress.Event{
			Stage:       progress.StageSourceDone,
			PassStarted: passStarted,
			SourceID:    src.ID,
			RunID:       out.summary.RunID,
			Technique:   out.summary.TechniqueUsed,
			Found:       out.summary.JobsFound,
			Saved:       out.summary.JobsSaved,
			Errors:      out.summary.ErrorsCount,
			Dur:         elapsed,
		}
		if !out.runCreated || out.summary.Status == crawler.RunStatusFailed {
			evt.Stage = progress.StageSourceError
		}
		if len(out.errors) > 0 {
			evt.Note = out.errors[0].Error
		}
		o.emit(evt)
	}()

	// Run bookkeeping survives pass cancellation.
	store := context.WithoutCancel(ctx)

	defer func() {
		r := recover()
		if r == nil {
			return
		}
		logger.Error("source panicked", zap.Any("panic", r), zap.Stack("stack"))
		detail := fmt.Sprintf("panic: %v", r)
		if out.runCreated {
			o.failRun(store, logger, out.summary.RunID, []string{detail})
		}
		fail(fmt.Sprintf("%s: %s", src.Name, detail))
		out.summary.Status = crawler.RunStatusFailed
		out.summary.ErrorsCount++
		metrics.ObserveRun(src.Type, string(crawler.RunStatusFailed))
	}()

	runID, err := o.cfg.Repository.CreateRun(store, src.ID, runType)
	if err != nil {
		logger.Error("create run failed", zap.Error(err))
		fail(fmt.Sprintf("%s: create run: %v", src.Name, err))
		return out
	}
	out.runCreated = true
	out.summary.RunID = runID
	logger = logger.With(zap.String("run_id", runID))
	o.transition(StateRunning, zap.String("source_id", src.ID), zap.String("run_id", runID))
	o.emit(progress.Event{Stage: progress.StageSourceStart, PassStarted: passStarted, SourceID: src.ID, RunID: runID})

	a, err := o.cfg.Registry.Lookup(src.Type)
	if err != nil {
		o.failRun(store, logger, runID, []string{err.Error()})
		fail(fmt.Sprintf("%s: %v", src.Name, err))
		out.summary.Status = crawler.RunStatusFailed
		metrics.ObserveRun(src.Type, string(crawler.RunStatusFailed))
		return out
	}

	maxPages := src.MaxPages
	if maxPages <= 0 {
		maxPages = defaultMaxPages
	}
	scraped := a.Scrape(ctx, crawler.ScrapeRequest{
		SourceID:      src.ID,
		BaseURL:       src.BaseURL,
		Keywords:      src.Keywords,
		Location:      src.LocationHint,
		MaxPages:      maxPages,
		RespectRobots: o.cfg.RespectRobots,
		DelayFloorMs:  src.RequestDelayMs,
	})
	robots := scraped.RobotsCompliance
	out.robots = &robots
	out.summary.TechniqueUsed = scraped.TechniqueUsed
	out.summary.JobsFound = len(scraped.Listings)
	out.summary.PagesScraped = scraped.PagesScraped
	metrics.AddListings("scraped", len(scraped.Listings))

	found, pages := len(scraped.Listings), scraped.PagesScraped
	if err := o.cfg.Repository.UpdateRun(store, runID, crawler.RunUpdate{JobsFound: &found, PagesScraped: &pages}); err != nil {
		logger.Warn("update run counts failed", zap.Error(err))
	}

	if scraped.PagesScraped == 0 && len(scraped.Listings) == 0 && len(scraped.Errors) > 0 {
		o.failRun(store, logger, runID, scraped.Errors)
		fail(fmt.Sprintf("%s: %s", src.Name, strings.Join(scraped.Errors, "; ")))
		out.summary.Status = crawler.RunStatusFailed
		out.summary.ErrorsCount = len(scraped.Errors)
		o.transition(StateFailed, zap.String("source_id", src.ID), zap.String("run_id", runID))
		metrics.ObserveRun(src.Type, string(crawler.RunStatusFailed))
		return out
	}

	procCtx, cancel := context.WithTimeout(store, o.cfg.ProcessTimeout)
	processed := o.cfg.Processor.Process(procCtx, scraped.Listings, runID, src.ID)
	cancel()
	out.summary.JobsProcessed = processed.ProcessedCount
	out.summary.JobsSaved = processed.SavedCount
	out.summary.ErrorsCount = processed.ErrorsCount + len(scraped.Errors)
	if processed.ErrorsCount > 0 {
		fail(fmt.Sprintf("%s processing errors: %d", src.Name, processed.ErrorsCount))
	}
	if len(scraped.Errors) > 0 {
		o.recordScrapeErrors(store, logger, runID, scraped.Errors, processed)
		for _, e := range capErrors(scraped.Errors) {
			fail(fmt.Sprintf("%s: %s", src.Name, e))
		}
	}

	out.summary.Status = crawler.RunStatusCompleted
	if processed.TotalInput > 0 && processed.ErrorsCount == processed.TotalInput {
		out.summary.Status = crawler.RunStatusFailed
	}
	if out.summary.Status == crawler.RunStatusCompleted {
		if err := o.cfg.Repository.UpdateSourceLastScraped(store, src.ID, o.cfg.Clock.Now()); err != nil {
			logger.Warn("update last scraped failed", zap.Error(err))
		}
		o.transition(StateCompleted, zap.String("source_id", src.ID), zap.String("run_id", runID))
	} else {
		o.transition(StateFailed, zap.String("source_id", src.ID), zap.String("run_id", runID))
	}
	metrics.ObserveRun(src.Type, string(out.summary.Status))
	logger.Info("source finished",
		zap.Int("found", out.summary.JobsFound),
		zap.Int("pages", out.summary.PagesScraped),
		zap.Int("saved", out.summary.JobsSaved),
		zap.Int("scrape_errors", len(scraped.Errors)),
		zap.String("technique", scraped.TechniqueUsed),
	)
	return out
}

func (o *Orchestrator) failRun(ctx context.Context, logger *zap.Logger, runID string, details []string) {
	status := crawler.RunStatusFailed
	count := len(details)
	done := o.cfg.Clock.Now()
	err := o.cfg.Repository.UpdateRun(ctx, runID, crawler.RunUpdate{
		Status:       &status,
		ErrorsCount:  &count,
		ErrorDetails: append([]string{}, details...),
		CompletedAt:  &done,
	})
	if err != nil {
		logger.Error("mark run failed", zap.Error(err))
	}
}

// recordScrapeErrors folds adapter errors into the run the processor just finalized,
// which only carries processing errors.
func (o *Orchestrator) recordScrapeErrors(ctx context.Context, logger *zap.Logger, runID string, scrapeErrs []string, processed crawler.ProcessResult) {
	count := len(scrapeErrs) + processed.ErrorsCount
	details := capErrors(append(append([]string{}, scrapeErrs...), processed.Errors...))
	if err := o.cfg.Repository.UpdateRun(ctx, runID, crawler.RunUpdate{ErrorsCount: &count, ErrorDetails: details}); err != nil {
		logger.Warn("record scrape errors failed", zap.Error(err))
	}
}

func capErrors(errs []string) []string {
	if len(errs) > maxErrorDetails {
		return errs[:maxErrorDetails]
	}
	return errs
}

// sweep applies the retention windows. Failures are recorded but never end the pass.
func (o *Orchestrator) sweep(ctx context.Context, result *crawler.OrchestrationResult) {
	o.transition(StateRetention,
		zap.Int("listing_days", o.cfg.ListingRetentionDays),
		zap.Int("run_days", o.cfg.RunRetentionDays),
	)
	store := context.WithoutCancel(ctx)
	n, err := o.cfg.Repository.DeactivateListingsOlderThan(store, o.cfg.ListingRetentionDays)
	if err != nil {
		o.logger.Error("deactivate listings failed", zap.Error(err))
		result.Errors = append(result.Errors, crawler.SourceError{Error: fmt.Sprintf("retention: deactivate listings: %v", err)})
	}
	result.ListingsDeactivated = n

	n, err = o.cfg.Repository.DeleteRunsOlderThan(store, o.cfg.RunRetentionDays)
	if err != nil {
		o.logger.Error("delete runs failed", zap.Error(err))
		result.Errors = append(result.Errors, crawler.SourceError{Error: fmt.Sprintf("retention: delete runs: %v", err)})
	}
	result.RunsPurged = n
}

func (o *Orchestrator) finish(ctx context.Context, result *crawler.OrchestrationResult, outcome string) {
	result.ExecutionTime = o.cfg.Clock.Now().Sub(result.StartedAt)
	metrics.ObservePass(outcome, result.ExecutionTime)
	o.transition(StateDone,
		zap.Int("runs", result.RunsExecuted),
		zap.Int("scraped", result.TotalJobsScraped),
		zap.Int("saved", result.TotalJobsSaved),
		zap.Int("errors", len(result.Errors)),
		zap.Duration("elapsed", result.ExecutionTime),
	)
	o.emit(progress.Event{
		Stage:       progress.StagePassDone,
		PassStarted: result.StartedAt,
		Found:       result.TotalJobsScraped,
		Saved:       result.TotalJobsSaved,
		Errors:      len(result.Errors),
		Dur:         max(result.ExecutionTime, 0),
		Note:        outcome,
	})
	if o.cfg.Publisher == nil || o.cfg.Topic == "" {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if id, err := o.cfg.Publisher.Publish(pubCtx, o.cfg.Topic, result); err != nil {
		o.logger.Warn("publish summary failed", zap.String("topic", o.cfg.Topic), zap.Error(err))
	} else {
		o.logger.Debug("summary published", zap.String("topic", o.cfg.Topic), zap.String("message_id", id))
	}
}

func (o *Orchestrator) emit(evt progress.Event) {
	if o.cfg.Progress == nil {
		return
	}
	evt.TS = o.cfg.Clock.Now()
	o.cfg.Progress.Emit(evt)
}

func (o *Orchestrator) transition(state string, fields ...zap.Field) {
	o.logger.Info("state", append([]zap.Field{zap.String("state", state)}, fields...)...)
}
