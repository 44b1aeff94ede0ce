package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/h1b-jobs-crawler/internal/crawler"
)

// Repository is an in-memory crawler.Repository for local runs and tests.
type Repository struct {
	mu        sync.RWMutex
	ids       crawler.IDGenerator
	clock     crawler.Clock
	sources   map[string]crawler.Source
	runs      map[string]crawler.RunRecord
	listings  map[string]crawler.Listing
	employers map[string]crawler.Employer
	byName    map[string]string
}

// NewRepository creates an empty Repository seeded with sources.
func NewRepository(ids crawler.IDGenerator, clock crawler.Clock, sources ...crawler.Source) (*Repository, error) {
	if ids == nil {
		return nil, errors.New("id generator is required")
	}
	if clock == nil {
		return nil, errors.New("clock is required")
	}
	r := &Repository{
		ids:       ids,
		clock:     clock,
		sources:   make(map[string]crawler.Source),
		runs:      make(map[string]crawler.RunRecord),
		listings:  make(map[string]crawler.Listing),
		employers: make(map[string]crawler.Employer),
		byName:    make(map[string]string),
	}
	for _, src := range sources {
		if err := r.UpsertSource(context.Background(), src); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// UpsertSource inserts or replaces a source.
func (r *Repository) UpsertSource(_ context.Context, src crawler.Source) error {
	if strings.TrimSpace(src.ID) == "" {
		return errors.New("source id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[src.ID] = src
	return nil
}

// ListActiveSources returns active sources ordered by ID.
func (r *Repository) ListActiveSources(_ context.Context, ids []string) ([]crawler.Source, error) {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]crawler.Source, 0, len(r.sources))
	for _, src := range r.sources {
		if !src.IsActive || (len(want) > 0 && !want[src.ID]) {
			continue
		}
		src.Keywords = append([]string(nil), src.Keywords...)
		out = append(out, src)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// UpdateSourceLastScraped stamps a source.
func (r *Repository) UpdateSourceLastScraped(_ context.Context, id string, ts time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	src, ok := r.sources[id]
	if !ok {
		return fmt.Errorf("source %s: %w", id, crawler.ErrNotFound)
	}
	stamp := ts
	src.LastScrapedAt = &stamp
	r.sources[id] = src
	return nil
}

// CreateRun inserts a running run record.
func (r *Repository) CreateRun(_ context.Context, sourceID string, runType crawler.RunType) (string, error) {
	id, err := r.ids.NewID()
	if err != nil {
		return "", err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[id] = crawler.RunRecord{
		ID:        id,
		SourceID:  sourceID,
		RunType:   runType,
		Status:    crawler.RunStatusRunning,
		StartedAt: r.clock.Now(),
	}
	return id, nil
}

// UpdateRun applies update to an existing run.
func (r *Repository) UpdateRun(_ context.Context, runID string, update crawler.RunUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[runID]
	if !ok {
		return fmt.Errorf("run %s: %w", runID, crawler.ErrNotFound)
	}
	update.Apply(&run)
	r.runs[runID] = run
	return nil
}

// GetRun fetches a run by ID.
func (r *Repository) GetRun(_ context.Context, runID string) (crawler.RunRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, ok := r.runs[runID]
	if !ok {
		return crawler.RunRecord{}, fmt.Errorf("run %s: %w", runID, crawler.ErrNotFound)
	}
	run.ErrorDetails = append([]string(nil), run.ErrorDetails...)
	return run, nil
}

// FindListing returns the active listing with the given title and employer, if any.
func (r *Repository) FindListing(_ context.Context, title, employerName string) (*crawler.Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, l := range r.listings {
		if l.IsActive && l.Title == title && l.EmployerName == employerName {
			found := l
			return &found, nil
		}
	}
	return nil, nil
}

// UpsertListing stores listing, assigning an ID when it has none.
func (r *Repository) UpsertListing(_ context.Context, listing crawler.Listing) error {
	if listing.ID == "" {
		id, err := r.ids.NewID()
		if err != nil {
			return err
		}
		listing.ID = id
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.listings[listing.ID]; ok {
		listing.CreatedAt = prev.CreatedAt
	}
	r.listings[listing.ID] = listing
	return nil
}

// FindEmployerByName returns the employer with exactly that name, if any.
func (r *Repository) FindEmployerByName(_ context.Context, name string) (*crawler.Employer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byName[name]
	if !ok {
		return nil, nil
	}
	e := r.employers[id]
	return &e, nil
}

// CreateEmployer inserts employer. The name is unique.
func (r *Repository) CreateEmployer(_ context.Context, employer crawler.Employer) (string, error) {
	id, err := r.ids.NewID()
	if err != nil {
		return "", err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[employer.Name]; exists {
		return "", fmt.Errorf("employer %q: %w", employer.Name, crawler.ErrConflict)
	}
	employer.ID = id
	if employer.CreatedAt.IsZero() {
		employer.CreatedAt = r.clock.Now()
	}
	r.employers[id] = employer
	r.byName[employer.Name] = id
	return id, nil
}

// DeactivateListingsOlderThan marks listings posted before the cutoff inactive.
func (r *Repository) DeactivateListingsOlderThan(_ context.Context, days int) (int64, error) {
	cutoff := r.clock.Now().AddDate(0, 0, -days)
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, l := range r.listings {
		if l.IsActive && l.PostedDate.Before(cutoff) {
			l.IsActive = false
			l.UpdatedAt = r.clock.Now()
			r.listings[id] = l
			n++
		}
	}
	return n, nil
}

// DeleteRunsOlderThan removes runs started before the cutoff.
func (r *Repository) DeleteRunsOlderThan(_ context.Context, days int) (int64, error) {
	cutoff := r.clock.Now().AddDate(0, 0, -days)
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, run := range r.runs {
		if run.StartedAt.Before(cutoff) {
			delete(r.runs, id)
			n++
		}
	}
	return n, nil
}

// Ping always succeeds.
func (r *Repository) Ping(context.Context) error { return nil }

// Listings returns a snapshot of all stored listings ordered by title.
func (r *Repository) Listings() []crawler.Listing {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]crawler.Listing, 0, len(r.listings))
	for _, l := range r.listings {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out
}

// Employers returns a snapshot of all stored employers ordered by name.
func (r *Repository) Employers() []crawler.Employer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]crawler.Employer, 0, len(r.employers))
	for _, e := range r.employers {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Runs returns a snapshot of all run records ordered by start time.
func (r *Repository) Runs() []crawler.RunRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]crawler.RunRecord, 0, len(r.runs))
	for _, run := range r.runs {
		out = append(out, run)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}
