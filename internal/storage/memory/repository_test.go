package memory

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/h1b-jobs-crawler/internal/crawler"
)

type seqIDs struct{ n atomic.Int64 }

func (s *seqIDs) NewID() (string, error) { return fmt.Sprintf("id-%03d", s.n.Add(1)), nil }

type stepClock struct{ now time.Time }

func (c *stepClock) Now() time.Time { return c.now }

func newRepo(t *testing.T, sources ...crawler.Source) (*Repository, *stepClock) {
	t.Helper()
	clock := &stepClock{now: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
	repo, err := NewRepository(&seqIDs{}, clock, sources...)
	require.NoError(t, err)
	return repo, clock
}

func TestListActiveSources(t *testing.T) {
	t.Parallel()
	repo, _ := newRepo(t,
		crawler.Source{ID: "b", IsActive: true, Keywords: []string{"h1b"}},
		crawler.Source{ID: "a", IsActive: true},
		crawler.Source{ID: "c", IsActive: false},
	)
	ctx := context.Background()

	all, err := repo.ListActiveSources(ctx, nil)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].ID)
	assert.Equal(t, "b", all[1].ID)

	some, err := repo.ListActiveSources(ctx, []string{"b", "c"})
	require.NoError(t, err)
	require.Len(t, some, 1)
	assert.Equal(t, "b", some[0].ID)

	ts := time.Date(2026, 5, 1, 13, 0, 0, 0, time.UTC)
	require.NoError(t, repo.UpdateSourceLastScraped(ctx, "a", ts))
	all, _ = repo.ListActiveSources(ctx, []string{"a"})
	require.NotNil(t, all[0].LastScrapedAt)
	assert.Equal(t, ts, *all[0].LastScrapedAt)

	err = repo.UpdateSourceLastScraped(ctx, "missing", ts)
	assert.True(t, errors.Is(err, crawler.ErrNotFound))
}

func TestRunLifecycle(t *testing.T) {
	t.Parallel()
	repo, _ := newRepo(t)
	ctx := context.Background()

	id, err := repo.CreateRun(ctx, "src", crawler.RunTypeManual)
	require.NoError(t, err)

	run, err := repo.GetRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, crawler.RunStatusRunning, run.Status)
	assert.Equal(t, crawler.RunTypeManual, run.RunType)

	status := crawler.RunStatusCompleted
	found := 7
	require.NoError(t, repo.UpdateRun(ctx, id, crawler.RunUpdate{Status: &status, JobsFound: &found, ErrorDetails: []string{"x"}}))

	run, err = repo.GetRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, crawler.RunStatusCompleted, run.Status)
	assert.Equal(t, 7, run.JobsFound)
	assert.Equal(t, []string{"x"}, run.ErrorDetails)

	_, err = repo.GetRun(ctx, "nope")
	assert.True(t, errors.Is(err, crawler.ErrNotFound))
	assert.True(t, errors.Is(repo.UpdateRun(ctx, "nope", crawler.RunUpdate{}), crawler.ErrNotFound))
}

func TestEmployerUniqueName(t *testing.T) {
	t.Parallel()
	repo, _ := newRepo(t)
	ctx := context.Background()

	id, err := repo.CreateEmployer(ctx, crawler.Employer{Name: "Acme"})
	require.NoError(t, err)

	_, err = repo.CreateEmployer(ctx, crawler.Employer{Name: "Acme"})
	assert.True(t, errors.Is(err, crawler.ErrConflict))

	found, err := repo.FindEmployerByName(ctx, "Acme")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, id, found.ID)

	missing, err := repo.FindEmployerByName(ctx, "acme")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestListingsAndRetention(t *testing.T) {
	t.Parallel()
	repo, clock := newRepo(t)
	ctx := context.Background()
	now := clock.now

	require.NoError(t, repo.UpsertListing(ctx, crawler.Listing{Title: "Old", EmployerName: "A", IsActive: true, PostedDate: now.AddDate(0, 0, -31)}))
	require.NoError(t, repo.UpsertListing(ctx, crawler.Listing{Title: "New", EmployerName: "A", IsActive: true, PostedDate: now.AddDate(0, 0, -1)}))

	found, err := repo.FindListing(ctx, "Old", "A")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.NotEmpty(t, found.ID)

	n, err := repo.DeactivateListingsOlderThan(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	found, err = repo.FindListing(ctx, "Old", "A")
	require.NoError(t, err)
	assert.Nil(t, found, "inactive listings are not duplicates")

	oldRun, err := repo.CreateRun(ctx, "src", crawler.RunTypeScheduled)
	require.NoError(t, err)
	clock.now = now.AddDate(0, 0, 8)
	newRun, err := repo.CreateRun(ctx, "src", crawler.RunTypeScheduled)
	require.NoError(t, err)

	purged, err := repo.DeleteRunsOlderThan(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)
	_, err = repo.GetRun(ctx, oldRun)
	assert.True(t, errors.Is(err, crawler.ErrNotFound))
	_, err = repo.GetRun(ctx, newRun)
	assert.NoError(t, err)
}

func TestNewRepositoryValidates(t *testing.T) {
	t.Parallel()
	_, err := NewRepository(nil, &stepClock{})
	require.Error(t, err)
	_, err = NewRepository(&seqIDs{}, &stepClock{}, crawler.Source{})
	require.Error(t, err)
}
