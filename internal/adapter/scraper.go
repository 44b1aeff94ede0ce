package adapter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/h1b-jobs-crawler/internal/crawler"
	"github.com/JakeFAU/h1b-jobs-crawler/internal/metrics"
)

// DisabledRobotsDelayMs is the delay reported when robots checks are turned off.
const DisabledRobotsDelayMs = 2000

const minRelevantDescription = 100

// Deps are the collaborators shared by all adapters.
type Deps struct {
	Fetcher crawler.Fetcher
	// Rendered is optional; the rendered technique is skipped without it.
	Rendered crawler.Fetcher
	Robots   crawler.RobotsChecker
	Pacer    crawler.Pacer
	// Snapshots is optional; search pages are archived when set.
	Snapshots crawler.BlobStore
	Hasher    crawler.Hasher
	Clock     crawler.Clock
	// Detector is optional; without it a 2xx body is always accepted.
	Detector RenderDetector
	// RobotsAgent is the product token matched against robots.txt user-agent lines.
	RobotsAgent string
	Logger      *zap.Logger
}

// RenderDetector flags 2xx bodies that only carry listings after JavaScript runs.
type RenderDetector interface {
	ShouldRender(resp crawler.FetchResponse) bool
}

// scraper holds the plumbing both board adapters share.
type scraper struct {
	name       string
	deps       Deps
	techniques []Technique
	minDelay   time.Duration
	logger     *zap.Logger
}

func newScraper(name string, deps Deps, techniques []Technique, minDelay time.Duration) scraper {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(techniques) == 0 {
		techniques = []Technique{DirectTechnique()}
	}
	return scraper{
		name:       name,
		deps:       deps,
		techniques: techniques,
		minDelay:   minDelay,
		logger:     logger.Named(name),
	}
}

// checkRobots consults robots.txt for searchURL when requested.
func (s *scraper) checkRobots(ctx context.Context, req crawler.ScrapeRequest, searchURL string) crawler.RobotsCompliance {
	if !req.RespectRobots || s.deps.Robots == nil {
		return crawler.RobotsCompliance{
			Allowed:      true,
			CrawlDelayMs: DisabledRobotsDelayMs,
			Reason:       "Robots check disabled",
		}
	}
	compliance := s.deps.Robots.Check(ctx, searchURL, s.deps.RobotsAgent)
	s.logger.Info("robots check",
		zap.String("url", searchURL),
		zap.Bool("allowed", compliance.Allowed),
		zap.Int("crawl_delay_ms", compliance.CrawlDelayMs),
		zap.String("reason", compliance.Reason),
	)
	return compliance
}

// blockedResult is the hard stop returned when robots.txt disallows the search path.
func blockedResult(compliance crawler.RobotsCompliance) crawler.ScrapeResult {
	return crawler.ScrapeResult{
		Listings:         []crawler.RawListing{},
		Errors:           []string{fmt.Sprintf("Scraping not allowed by robots.txt: %s", compliance.Reason)},
		RobotsCompliance: compliance,
		TechniqueUsed:    "blocked",
	}
}

// effectiveDelay is the largest of the robots delay, the adapter minimum and the source floor.
func (s *scraper) effectiveDelay(compliance crawler.RobotsCompliance, req crawler.ScrapeRequest) time.Duration {
	delay := time.Duration(compliance.CrawlDelayMs) * time.Millisecond
	if s.minDelay > delay {
		delay = s.minDelay
	}
	if floor := time.Duration(req.DelayFloorMs) * time.Millisecond; floor > delay {
		delay = floor
	}
	return delay
}

// fetchOutcome is the result of walking the technique ladder for one URL.
type fetchOutcome struct {
	response  crawler.FetchResponse
	technique string
	errors    []string
	ok        bool
}

// fetch tries each technique in order, waiting on the pacer before every attempt.
// A 403 or any other failure falls through to the next technique; a technique is
// never retried. A canceled context ends the ladder and is returned as an error.
// A 2xx script shell jumps straight to the rendered technique and is kept as the
// result if rendering fails.
func (s *scraper) fetch(ctx context.Context, rawURL string, delay time.Duration, techniques []Technique) (fetchOutcome, error) {
	var (
		out   fetchOutcome
		shell *fetchOutcome
	)
	for i := 0; i < len(techniques); i++ {
		tech := techniques[i]
		fetcher := s.deps.Fetcher
		if tech.Rendered {
			if s.deps.Rendered == nil {
				continue
			}
			fetcher = s.deps.Rendered
		}
		if s.deps.Pacer != nil {
			if err := s.deps.Pacer.Wait(ctx, rawURL, delay); err != nil {
				return out, err
			}
		}
		resp, err := fetcher.Fetch(ctx, crawler.FetchRequest{
			URL:       rawURL,
			Headers:   tech.Headers.Clone(),
			Technique: tech.Name,
		})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return out, fmt.Errorf("fetch %s: %w", rawURL, ctxErr)
			}
			metrics.ObserveFetch(rawURL, tech.Name, 0)
			s.logger.Debug("technique failed", zap.String("technique", tech.Name), zap.String("url", rawURL), zap.Error(err))
			out.errors = append(out.errors, fmt.Sprintf("Technique %s failed: %v", tech.Name, err))
			continue
		}
		metrics.ObserveFetch(rawURL, tech.Name, resp.StatusCode)
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			if next := s.promotion(techniques, i, resp); next > i {
				s.logger.Info("script shell; promoting to rendered", zap.String("technique", tech.Name), zap.String("url", rawURL))
				out.errors = append(out.errors, fmt.Sprintf("Technique %s returned a script shell", tech.Name))
				shell = &fetchOutcome{response: resp, technique: tech.Name, ok: true}
				i = next - 1
				continue
			}
			out.response = resp
			out.technique = tech.Name
			out.ok = true
			return out, nil
		}
		statusErr := &crawler.HTTPStatusError{Status: resp.StatusCode, URL: rawURL, Technique: tech.Name}
		if statusErr.Forbidden() {
			s.logger.Info("forbidden; trying next technique", zap.String("technique", tech.Name), zap.String("url", rawURL))
		}
		out.errors = append(out.errors, statusErr.Error())
	}
	if shell != nil {
		shell.errors = out.errors
		return *shell, nil
	}
	return out, nil
}

// promotion returns the index of the first rendered technique after i when resp from
// techniques[i] needs a render, or -1.
func (s *scraper) promotion(techniques []Technique, i int, resp crawler.FetchResponse) int {
	if techniques[i].Rendered || s.deps.Detector == nil || s.deps.Rendered == nil {
		return -1
	}
	if !s.deps.Detector.ShouldRender(resp) {
		return -1
	}
	for j := i + 1; j < len(techniques); j++ {
		if techniques[j].Rendered {
			return j
		}
	}
	return -1
}

// snapshot archives a fetched page when a blob store is configured.
func (s *scraper) snapshot(ctx context.Context, sourceID string, body []byte) {
	if s.deps.Snapshots == nil || s.deps.Hasher == nil || len(body) == 0 {
		return
	}
	digest, err := s.deps.Hasher.Hash(body)
	if err != nil {
		s.logger.Warn("snapshot hash failed", zap.Error(err))
		return
	}
	if sourceID == "" {
		sourceID = s.name
	}
	path := fmt.Sprintf("snapshots/%s/%s/%s.html", sourceID, s.now().Format("2006/01/02"), digest)
	if _, err := s.deps.Snapshots.PutObject(ctx, path, "text/html; charset=utf-8", bytes.NewReader(body)); err != nil {
		s.logger.Warn("snapshot write failed", zap.String("path", path), zap.Error(err))
	}
}

func (s *scraper) now() time.Time {
	if s.deps.Clock != nil {
		return s.deps.Clock.Now()
	}
	return time.Now().UTC()
}

// isRelevant is a cheap pre-filter ahead of classification.
func isRelevant(listing crawler.RawListing, keyword string) bool {
	desc := strings.ToLower(listing.Description)
	kw := strings.ToLower(keyword)
	for _, term := range []string{"h1b", "visa", "sponsor"} {
		if strings.Contains(desc, term) || strings.Contains(kw, term) {
			return true
		}
	}
	return len(listing.Description) > minRelevantDescription
}

// canceled reports whether err came from the scrape context ending.
func canceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
