// Package postgres implements crawler.Repository on Postgres using pgx.
package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/h1b-jobs-crawler/internal/crawler"
)

//go:embed schema.sql
var schemaSQL string

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// Repository is the Postgres-backed crawler.Repository.
type Repository struct {
	pool  pool
	ids   crawler.IDGenerator
	clock crawler.Clock
}

// NewRepository connects a pool using cfg.
func NewRepository(ctx context.Context, cfg Config, ids crawler.IDGenerator, clock crawler.Clock) (*Repository, error) {
	if cfg.DSN == "" {
		return nil, errors.New("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return NewRepositoryWithPool(p, ids, clock)
}

// NewRepositoryWithPool wraps an existing pool (primarily for testing).
func NewRepositoryWithPool(p pool, ids crawler.IDGenerator, clock crawler.Clock) (*Repository, error) {
	if p == nil {
		return nil, errors.New("pool is required")
	}
	if ids == nil {
		return nil, errors.New("id generator is required")
	}
	if clock == nil {
		return nil, errors.New("clock is required")
	}
	return &Repository{pool: p, ids: ids, clock: clock}, nil
}

// Close releases the pool.
func (r *Repository) Close() {
	if r == nil || r.pool == nil {
		return
	}
	r.pool.Close()
}

// EnsureSchema creates the tables and indexes when missing.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Ping checks connectivity.
func (r *Repository) Ping(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// UpsertSource inserts or replaces a configured source, keeping its last scrape time.
func (r *Repository) UpsertSource(ctx context.Context, src crawler.Source) error {
	const q = `
INSERT INTO scraping_sources (
	id, name, type, base_url, is_active, scraping_frequency_hours,
	keywords, location_hint, request_delay_ms, max_pages
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (id) DO UPDATE SET
	name = EXCLUDED.name,
	type = EXCLUDED.type,
	base_url = EXCLUDED.base_url,
	is_active = EXCLUDED.is_active,
	scraping_frequency_hours = EXCLUDED.scraping_frequency_hours,
	keywords = EXCLUDED.keywords,
	location_hint = EXCLUDED.location_hint,
	request_delay_ms = EXCLUDED.request_delay_ms,
	max_pages = EXCLUDED.max_pages`
	keywords := src.Keywords
	if keywords == nil {
		keywords = []string{}
	}
	_, err := r.pool.Exec(ctx, q,
		src.ID, src.Name, src.Type, src.BaseURL, src.IsActive, src.ScrapingFrequencyHours,
		keywords, src.LocationHint, src.RequestDelayMs, src.MaxPages,
	)
	if err != nil {
		return fmt.Errorf("upsert source %s: %w", src.ID, err)
	}
	return nil
}

// ListActiveSources returns active sources ordered by ID, optionally restricted to ids.
func (r *Repository) ListActiveSources(ctx context.Context, ids []string) ([]crawler.Source, error) {
	const q = `
SELECT id, name, type, base_url, is_active, last_scraped_at, scraping_frequency_hours,
	keywords, location_hint, request_delay_ms, max_pages
FROM scraping_sources
WHERE is_active AND (cardinality($1::text[]) = 0 OR id = ANY($1::text[]))
ORDER BY id`
	if ids == nil {
		ids = []string{}
	}
	rows, err := r.pool.Query(ctx, q, ids)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	var out []crawler.Source
	for rows.Next() {
		var src crawler.Source
		if err := rows.Scan(
			&src.ID, &src.Name, &src.Type, &src.BaseURL, &src.IsActive, &src.LastScrapedAt,
			&src.ScrapingFrequencyHours, &src.Keywords, &src.LocationHint, &src.RequestDelayMs, &src.MaxPages,
		); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		out = append(out, src)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	return out, nil
}

// UpdateSourceLastScraped stamps a source.
func (r *Repository) UpdateSourceLastScraped(ctx context.Context, id string, ts time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE scraping_sources SET last_scraped_at = $1 WHERE id = $2`, ts, id)
	if err != nil {
		return fmt.Errorf("update source %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("source %s: %w", id, crawler.ErrNotFound)
	}
	return nil
}

// CreateRun inserts a running run record.
func (r *Repository) CreateRun(ctx context.Context, sourceID string, runType crawler.RunType) (string, error) {
	id, err := r.ids.NewID()
	if err != nil {
		return "", err
	}
	const q = `
INSERT INTO scraping_runs (id, source_id, run_type, status, started_at)
VALUES ($1,$2,$3,$4,$5)`
	if _, err := r.pool.Exec(ctx, q, id, sourceID, string(runType), string(crawler.RunStatusRunning), r.clock.Now()); err != nil {
		return "", fmt.Errorf("create run: %w", err)
	}
	return id, nil
}

// UpdateRun writes only the fields set on update.
func (r *Repository) UpdateRun(ctx context.Context, runID string, update crawler.RunUpdate) error {
	var (
		sets []string
		args []any
	)
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, col+" = $"+strconv.Itoa(len(args)))
	}
	if update.Status != nil {
		add("status", string(*update.Status))
	}
	if update.JobsFound != nil {
		add("jobs_found", *update.JobsFound)
	}
	if update.PagesScraped != nil {
		add("pages_scraped", *update.PagesScraped)
	}
	if update.JobsProcessed != nil {
		add("jobs_processed", *update.JobsProcessed)
	}
	if update.JobsSaved != nil {
		add("jobs_saved", *update.JobsSaved)
	}
	if update.ErrorsCount != nil {
		add("errors_count", *update.ErrorsCount)
	}
	if update.ErrorDetails != nil {
		details, err := json.Marshal(update.ErrorDetails)
		if err != nil {
			return fmt.Errorf("marshal error details: %w", err)
		}
		add("error_details", details)
	}
	if update.CompletedAt != nil {
		add("completed_at", *update.CompletedAt)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, runID)
	q := fmt.Sprintf("UPDATE scraping_runs SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))
	tag, err := r.pool.Exec(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("update run %s: %w", runID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("run %s: %w", runID, crawler.ErrNotFound)
	}
	return nil
}

// GetRun fetches one run record.
func (r *Repository) GetRun(ctx context.Context, runID string) (crawler.RunRecord, error) {
	const q = `
SELECT id, source_id, run_type, status, jobs_found, pages_scraped, jobs_processed,
	jobs_saved, errors_count, error_details, started_at, completed_at
FROM scraping_runs WHERE id = $1`
	var (
		run             crawler.RunRecord
		runType, status string
		details         []byte
	)
	err := r.pool.QueryRow(ctx, q, runID).Scan(
		&run.ID, &run.SourceID, &runType, &status, &run.JobsFound, &run.PagesScraped,
		&run.JobsProcessed, &run.JobsSaved, &run.ErrorsCount, &details, &run.StartedAt, &run.CompletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return crawler.RunRecord{}, fmt.Errorf("run %s: %w", runID, crawler.ErrNotFound)
	}
	if err != nil {
		return crawler.RunRecord{}, fmt.Errorf("get run %s: %w", runID, err)
	}
	run.RunType = crawler.RunType(runType)
	run.Status = crawler.RunStatus(status)
	if len(details) > 0 {
		if err := json.Unmarshal(details, &run.ErrorDetails); err != nil {
			return crawler.RunRecord{}, fmt.Errorf("decode error details: %w", err)
		}
	}
	return run, nil
}

// FindListing returns the active listing matching title and employer, or nil.
func (r *Repository) FindListing(ctx context.Context, title, employerName string) (*crawler.Listing, error) {
	const q = `
SELECT id, company_id, h1b_sponsorship_confidence, posted_date, created_at
FROM jobs WHERE title = $1 AND company_name = $2 AND is_active
LIMIT 1`
	l := crawler.Listing{Title: title, EmployerName: employerName, IsActive: true}
	err := r.pool.QueryRow(ctx, q, title, employerName).Scan(&l.ID, &l.EmployerID, &l.Confidence, &l.PostedDate, &l.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find listing: %w", err)
	}
	return &l, nil
}

// UpsertListing inserts listing or updates it by ID. A missing ID is generated.
func (r *Repository) UpsertListing(ctx context.Context, l crawler.Listing) error {
	if l.ID == "" {
		id, err := r.ids.NewID()
		if err != nil {
			return err
		}
		l.ID = id
	}
	const q = `
INSERT INTO jobs (
	id, title, company_id, company_name, description, salary_min, salary_max, salary_currency,
	location, city, state, country, remote_friendly, experience_level, industry, job_type,
	h1b_sponsorship_available, h1b_sponsorship_confidence, source_url, source_id, run_id,
	posted_date, is_active, created_at, updated_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25
)
ON CONFLICT (id) DO UPDATE SET
	description = EXCLUDED.description,
	salary_min = EXCLUDED.salary_min,
	salary_max = EXCLUDED.salary_max,
	remote_friendly = EXCLUDED.remote_friendly,
	h1b_sponsorship_available = EXCLUDED.h1b_sponsorship_available,
	h1b_sponsorship_confidence = EXCLUDED.h1b_sponsorship_confidence,
	is_active = EXCLUDED.is_active,
	updated_at = EXCLUDED.updated_at`
	_, err := r.pool.Exec(ctx, q,
		l.ID, l.Title, l.EmployerID, l.EmployerName, l.Description, l.SalaryMin, l.SalaryMax, l.SalaryCurrency,
		l.Location.Raw, l.Location.City, l.Location.State, l.Location.Country, l.Remote, l.ExperienceLevel,
		l.Industry, l.JobType, l.SponsorshipAvailable, l.Confidence, l.SourceURL, nullable(l.SourceID),
		nullable(l.RunID), l.PostedDate, l.IsActive, l.CreatedAt, l.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert listing: %w", err)
	}
	return nil
}

// FindEmployerByName returns the employer with exactly that name, or nil.
func (r *Repository) FindEmployerByName(ctx context.Context, name string) (*crawler.Employer, error) {
	const q = `
SELECT id, name, location, city, state, country, h1b_sponsor_status, industry, created_at
FROM companies WHERE name = $1`
	var e crawler.Employer
	err := r.pool.QueryRow(ctx, q, name).Scan(
		&e.ID, &e.Name, &e.Location, &e.City, &e.State, &e.Country, &e.SponsorStatus, &e.Industry, &e.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find employer: %w", err)
	}
	return &e, nil
}

// CreateEmployer inserts employer and returns its ID. A name already taken yields
// crawler.ErrConflict.
func (r *Repository) CreateEmployer(ctx context.Context, e crawler.Employer) (string, error) {
	id, err := r.ids.NewID()
	if err != nil {
		return "", err
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = r.clock.Now()
	}
	const q = `
INSERT INTO companies (id, name, location, city, state, country, h1b_sponsor_status, industry, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (name) DO NOTHING
RETURNING id`
	var got string
	err = r.pool.QueryRow(ctx, q,
		id, e.Name, e.Location, e.City, e.State, e.Country, e.SponsorStatus, e.Industry, e.CreatedAt,
	).Scan(&got)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("employer %q: %w", e.Name, crawler.ErrConflict)
	}
	if err != nil {
		return "", fmt.Errorf("create employer: %w", err)
	}
	return got, nil
}

// DeactivateListingsOlderThan marks listings posted before the cutoff inactive.
func (r *Repository) DeactivateListingsOlderThan(ctx context.Context, days int) (int64, error) {
	now := r.clock.Now()
	tag, err := r.pool.Exec(ctx,
		`UPDATE jobs SET is_active = FALSE, updated_at = $1 WHERE is_active AND posted_date < $2`,
		now, now.AddDate(0, 0, -days),
	)
	if err != nil {
		return 0, fmt.Errorf("deactivate listings: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteRunsOlderThan removes runs started before the cutoff.
func (r *Repository) DeleteRunsOlderThan(ctx context.Context, days int) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM scraping_runs WHERE started_at < $1`,
		r.clock.Now().AddDate(0, 0, -days),
	)
	if err != nil {
		return 0, fmt.Errorf("delete runs: %w", err)
	}
	return tag.RowsAffected(), nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
