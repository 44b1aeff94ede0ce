package crawler

import (
	"context"
	"io"
	"time"
)

// Repository is the persistent store the pipeline reads from and writes to.
type Repository interface {
	// ListActiveSources returns active sources, optionally restricted to ids.
	ListActiveSources(ctx context.Context, ids []string) ([]Source, error)
	// UpdateSourceLastScraped stamps a source after a successful run.
	UpdateSourceLastScraped(ctx context.Context, id string, ts time.Time) error
	// CreateRun inserts a running run record and returns its id.
	CreateRun(ctx context.Context, sourceID string, runType RunType) (string, error)
	// UpdateRun applies a partial update to a run record.
	UpdateRun(ctx context.Context, runID string, update RunUpdate) error
	// GetRun returns ErrNotFound when the run does not exist.
	GetRun(ctx context.Context, runID string) (RunRecord, error)
	// FindListing returns nil when no active listing matches title and employer.
	FindListing(ctx context.Context, title, employerName string) (*Listing, error)
	UpsertListing(ctx context.Context, listing Listing) error
	// FindEmployerByName returns nil when no employer has that exact name.
	FindEmployerByName(ctx context.Context, name string) (*Employer, error)
	// CreateEmployer returns ErrConflict when the name was taken concurrently.
	CreateEmployer(ctx context.Context, employer Employer) (string, error)
	DeactivateListingsOlderThan(ctx context.Context, days int) (int64, error)
	DeleteRunsOlderThan(ctx context.Context, days int) (int64, error)
	Ping(ctx context.Context) error
}

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// RobotsChecker answers robots.txt questions. It never fails; errors fold into the result.
type RobotsChecker interface {
	Check(ctx context.Context, rawURL, agent string) RobotsCompliance
}

// Pacer enforces minimum spacing between requests to the same host.
type Pacer interface {
	Wait(ctx context.Context, rawURL string, minGap time.Duration) error
}

// Classifier scores text for sponsorship likelihood.
type Classifier interface {
	Classify(text, title, employer string) ClassificationResult
}

// Locker provides named advisory locks.
type Locker interface {
	// Acquire returns a release func, or ErrLockHeld when the lock cannot be taken before ctx ends.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes pass summaries to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes digests for snapshot paths.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces record IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
