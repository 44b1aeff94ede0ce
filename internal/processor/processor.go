// Package processor turns raw scraped listings into normalized, classified,
// deduplicated job records and persists them.
package processor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/JakeFAU/h1b-jobs-crawler/internal/crawler"
	"github.com/JakeFAU/h1b-jobs-crawler/internal/metrics"
)

const (
	// SponsorshipThreshold is the confidence above which a listing is flagged as sponsoring.
	SponsorshipThreshold = 0.6
	// FallbackConfidence is used when the classifier cannot produce a result.
	FallbackConfidence = 0.3
	// MaxReportedErrors caps ProcessResult.Errors; the run record keeps every error.
	MaxReportedErrors = 10

	defaultCurrency = "USD"
	defaultJobType  = "Full-time"
	defaultLockTTL  = 30 * time.Second
)

// Config holds processor dependencies.
type Config struct {
	Repository crawler.Repository
	Classifier crawler.Classifier
	Locker     crawler.Locker
	Clock      crawler.Clock
	Logger     *zap.Logger
	// LockTTL bounds how long an employer lock may be held.
	LockTTL time.Duration
}

// Processor is the job record pipeline.
type Processor struct {
	repo       crawler.Repository
	classifier crawler.Classifier
	locker     crawler.Locker
	clock      crawler.Clock
	validate   *validator.Validate
	lockTTL    time.Duration
	logger     *zap.Logger
}

// New validates cfg and builds a Processor.
func New(cfg Config) (*Processor, error) {
	if cfg.Repository == nil {
		return nil, errors.New("repository is required")
	}
	if cfg.Classifier == nil {
		return nil, errors.New("classifier is required")
	}
	if cfg.Locker == nil {
		return nil, errors.New("locker is required")
	}
	if cfg.Clock == nil {
		return nil, errors.New("clock is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := cfg.LockTTL
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &Processor{
		repo:       cfg.Repository,
		classifier: cfg.Classifier,
		locker:     cfg.Locker,
		clock:      cfg.Clock,
		validate:   validator.New(),
		lockTTL:    ttl,
		logger:     logger.Named("processor"),
	}, nil
}

// Process normalizes and saves raw listings. Failures are per listing and never stop
// the batch. When runID is set the run record receives the final counts.
func (p *Processor) Process(ctx context.Context, raw []crawler.RawListing, runID, sourceID string) crawler.ProcessResult {
	result := crawler.ProcessResult{TotalInput: len(raw), Errors: []string{}}
	var errs []string

	for _, item := range raw {
		saved, err := p.processOne(ctx, item, runID, sourceID)
		switch {
		case err != nil:
			errs = append(errs, fmt.Sprintf("%s: %v", item.Title, err))
			p.logger.Warn("listing failed",
				zap.String("title", item.Title),
				zap.String("employer", item.EmployerName),
				zap.Error(err),
			)
		case saved:
			result.ProcessedCount++
			result.SavedCount++
		default:
			result.ProcessedCount++
			result.SkippedDuplicates++
		}
	}

	result.ErrorsCount = len(errs)
	if len(errs) > MaxReportedErrors {
		result.Errors = append(result.Errors, errs[:MaxReportedErrors]...)
	} else {
		result.Errors = append(result.Errors, errs...)
	}

	metrics.AddListings("saved", result.SavedCount)
	metrics.AddListings("duplicate", result.SkippedDuplicates)
	metrics.AddListings("failed", result.ErrorsCount)

	if runID != "" {
		p.finishRun(ctx, runID, len(raw), result.SavedCount, errs)
	}
	p.logger.Info("batch processed",
		zap.String("run_id", runID),
		zap.Int("input", result.TotalInput),
		zap.Int("saved", result.SavedCount),
		zap.Int("duplicates", result.SkippedDuplicates),
		zap.Int("errors", result.ErrorsCount),
	)
	return result
}

// processOne reports whether a new listing was saved. A duplicate returns false, nil.
func (p *Processor) processOne(ctx context.Context, raw crawler.RawListing, runID, sourceID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := p.validate.Struct(raw); err != nil {
		return false, fmt.Errorf("invalid listing: %w", err)
	}

	class := p.classify(raw.Description, raw.Title, raw.EmployerName)
	salaryMin, salaryMax := ParseSalary(raw.Salary)
	loc := ParseLocation(raw.Location)
	industry := Industry(raw.Title)

	existing, err := p.repo.FindListing(ctx, raw.Title, raw.EmployerName)
	if err != nil {
		return false, fmt.Errorf("check duplicate: %w", err)
	}
	if existing != nil {
		p.logger.Debug("duplicate listing", zap.String("title", raw.Title), zap.String("employer", raw.EmployerName))
		return false, nil
	}

	employer, err := p.resolveEmployer(ctx, raw, loc, industry, class.Confidence)
	if err != nil {
		return false, err
	}

	now := p.clock.Now()
	posted := now
	if raw.PostedDate != nil {
		posted = *raw.PostedDate
	}
	jobType := raw.JobType
	if jobType == "" {
		jobType = defaultJobType
	}
	listing := crawler.Listing{
		Title:                raw.Title,
		EmployerID:           employer.ID,
		EmployerName:         raw.EmployerName,
		Description:          raw.Description,
		SalaryMin:            salaryMin,
		SalaryMax:            salaryMax,
		SalaryCurrency:       defaultCurrency,
		Location:             loc,
		Remote:               IsRemote(raw.Title, raw.Description, raw.Location),
		ExperienceLevel:      ExperienceLevel(raw.Title, raw.Description),
		Industry:             industry,
		JobType:              jobType,
		SponsorshipAvailable: class.Confidence > SponsorshipThreshold,
		Confidence:           class.Confidence,
		SourceURL:            raw.URL,
		SourceID:             sourceID,
		RunID:                runID,
		PostedDate:           posted,
		IsActive:             true,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := p.repo.UpsertListing(ctx, listing); err != nil {
		return false, fmt.Errorf("save listing: %w", err)
	}
	return true, nil
}

// classify never fails; a panicking classifier yields the fallback confidence.
func (p *Processor) classify(text, title, employer string) (res crawler.ClassificationResult) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("classifier panicked; using fallback", zap.Any("panic", r), zap.String("title", title))
			res = crawler.ClassificationResult{
				Confidence:      FallbackConfidence,
				PositiveMatches: []string{},
				NegativeMatches: []string{},
			}
		}
	}()
	return p.classifier.Classify(text, title, employer)
}

// resolveEmployer finds the employer by exact name or creates it. The name lock keeps
// concurrent batches from racing; ErrConflict covers writers that do not share it.
func (p *Processor) resolveEmployer(
	ctx context.Context,
	raw crawler.RawListing,
	loc crawler.Location,
	industry string,
	confidence float64,
) (crawler.Employer, error) {
	release, err := p.locker.Acquire(ctx, "employer:"+strings.ToLower(raw.EmployerName), p.lockTTL)
	if err != nil {
		return crawler.Employer{}, fmt.Errorf("lock employer %s: %w", raw.EmployerName, err)
	}
	defer release()

	found, err := p.repo.FindEmployerByName(ctx, raw.EmployerName)
	if err != nil {
		return crawler.Employer{}, fmt.Errorf("find employer %s: %w", raw.EmployerName, err)
	}
	if found != nil {
		return *found, nil
	}

	status := crawler.SponsorStatusPossible
	if confidence > SponsorshipThreshold {
		status = crawler.SponsorStatusActive
	}
	employer := crawler.Employer{
		Name:          raw.EmployerName,
		Location:      raw.Location,
		City:          loc.City,
		State:         loc.State,
		Country:       loc.Country,
		SponsorStatus: status,
		Industry:      industry,
		CreatedAt:     p.clock.Now(),
	}
	id, err := p.repo.CreateEmployer(ctx, employer)
	if errors.Is(err, crawler.ErrConflict) {
		found, err = p.repo.FindEmployerByName(ctx, raw.EmployerName)
		if err != nil {
			return crawler.Employer{}, fmt.Errorf("re-read employer %s: %w", raw.EmployerName, err)
		}
		if found == nil {
			return crawler.Employer{}, fmt.Errorf("employer %s vanished after conflict", raw.EmployerName)
		}
		return *found, nil
	}
	if err != nil {
		return crawler.Employer{}, fmt.Errorf("create employer %s: %w", raw.EmployerName, err)
	}
	employer.ID = id
	return employer, nil
}

func (p *Processor) finishRun(ctx context.Context, runID string, inputs, saved int, errs []string) {
	status := crawler.RunStatusCompleted
	if inputs > 0 && len(errs) == inputs {
		status = crawler.RunStatusFailed
	}
	errCount := len(errs)
	done := p.clock.Now()
	update := crawler.RunUpdate{
		Status:        &status,
		JobsProcessed: &inputs,
		JobsSaved:     &saved,
		ErrorsCount:   &errCount,
		ErrorDetails:  append([]string{}, errs...),
		CompletedAt:   &done,
	}
	if err := p.repo.UpdateRun(ctx, runID, update); err != nil {
		p.logger.Error("update run failed", zap.String("run_id", runID), zap.Error(err))
	}
}
