package crawler

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals that the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrUnsupportedSource is returned when no adapter is registered for a source type.
	ErrUnsupportedSource = errors.New("unsupported source type")
	// ErrRobotsDisallowed marks a scrape stopped by robots.txt.
	ErrRobotsDisallowed = errors.New("disallowed by robots.txt")
	// ErrConflict signals a unique-key collision on create.
	ErrConflict = errors.New("record already exists")
	// ErrLockHeld is returned when an advisory lock is owned elsewhere.
	ErrLockHeld = errors.New("lock held")
)

// HTTPStatusError reports a non-2xx response for one fetch attempt.
type HTTPStatusError struct {
	Status    int
	URL       string
	Technique string
}

func (e *HTTPStatusError) Error() string {
	if e.Technique == "" {
		return fmt.Sprintf("HTTP %d for %s", e.Status, e.URL)
	}
	return fmt.Sprintf("HTTP %d with technique %s", e.Status, e.Technique)
}

// Forbidden reports whether the response was a 403.
func (e *HTTPStatusError) Forbidden() bool {
	return e.Status == 403
}
