// Package adapter implements per-site-family scrapers that turn job board search
// pages into raw listings while honoring robots.txt and crawl delays.
package adapter

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/JakeFAU/h1b-jobs-crawler/internal/crawler"
)

// Source type identifiers.
const (
	TypeGenericBoard = "genericBoard"
	TypeVisaBoard    = "visaBoard"
)

// Adapter scrapes one site family. Scrape never fails; every problem is reported
// in ScrapeResult.Errors and whatever was collected is returned.
type Adapter interface {
	Name() string
	Scrape(ctx context.Context, req crawler.ScrapeRequest) crawler.ScrapeResult
}

// Registry resolves source types to adapters.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register binds a under name and any aliases. Lookups are case-insensitive.
func (r *Registry) Register(a Adapter, name string, aliases ...string) {
	for _, key := range append([]string{name}, aliases...) {
		r.adapters[strings.ToLower(key)] = a
	}
}

// Lookup returns the adapter for sourceType or an error wrapping crawler.ErrUnsupportedSource.
func (r *Registry) Lookup(sourceType string) (Adapter, error) {
	if a, ok := r.adapters[strings.ToLower(strings.TrimSpace(sourceType))]; ok {
		return a, nil
	}
	return nil, fmt.Errorf("%w: %q", crawler.ErrUnsupportedSource, sourceType)
}

// Types lists registered identifiers, sorted.
func (r *Registry) Types() []string {
	out := make([]string, 0, len(r.adapters))
	for k := range r.adapters {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// NewDefaultRegistry registers the generic and visa board adapters with their aliases.
func NewDefaultRegistry(deps Deps, generic GenericBoardConfig, visa VisaBoardConfig) *Registry {
	r := NewRegistry()
	r.Register(NewGenericBoard(deps, generic), TypeGenericBoard, "indeed")
	r.Register(NewVisaBoard(deps, visa), TypeVisaBoard, "myvisajobs")
	return r
}
