package adapter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/h1b-jobs-crawler/internal/crawler"
)

const (
	visaDefaultBaseURL = "https://www.myvisajobs.com"
	visaMinDelay       = 2 * time.Second
	visaSearchPath     = "/Jobs/Search"
	visaDetailPrefix   = "/Jobs/Details/"
	unknownCompany     = "Unknown Company"
	unknownLocation    = "Location not specified"
)

var salaryRange = regexp.MustCompile(`\$[\d,]+(?:\s*-\s*\$[\d,]+)?`)

// VisaBoardConfig tunes the visa-specialized board adapter.
type VisaBoardConfig struct {
	BaseURL    string
	MinDelay   time.Duration
	Techniques []Technique
}

// VisaBoard scrapes a board that only lists visa-sponsoring employers. Result rows
// link to detail pages, which are fetched one at a time for the description.
type VisaBoard struct {
	scraper
	baseURL    string
	strategies []Strategy
}

// NewVisaBoard builds the adapter.
func NewVisaBoard(deps Deps, cfg VisaBoardConfig) *VisaBoard {
	minDelay := cfg.MinDelay
	if minDelay <= 0 {
		minDelay = visaMinDelay
	}
	techniques := cfg.Techniques
	if len(techniques) == 0 {
		techniques = []Technique{DirectTechnique()}
	}
	v := &VisaBoard{
		scraper: newScraper(TypeVisaBoard, deps, techniques, minDelay),
		baseURL: firstNonEmpty(cfg.BaseURL, visaDefaultBaseURL),
	}
	v.strategies = []Strategy{v.tableRows, v.jobCards}
	return v
}

// Name implements Adapter.
func (v *VisaBoard) Name() string { return TypeVisaBoard }

// Scrape walks keywords × pages (1-based). A page that cannot be fetched is recorded
// and skipped; paging continues.
func (v *VisaBoard) Scrape(ctx context.Context, req crawler.ScrapeRequest) crawler.ScrapeResult {
	base, err := url.Parse(firstNonEmpty(req.BaseURL, v.baseURL))
	if err != nil || base.Host == "" {
		return crawler.ScrapeResult{
			Listings: []crawler.RawListing{},
			Errors:   []string{fmt.Sprintf("invalid base url %q", firstNonEmpty(req.BaseURL, v.baseURL))},
		}
	}

	compliance := v.checkRobots(ctx, req, resolve(base, visaSearchPath))
	if !compliance.Allowed {
		return blockedResult(compliance)
	}
	delay := v.effectiveDelay(compliance, req)

	result := crawler.ScrapeResult{
		Listings:         []crawler.RawListing{},
		Errors:           []string{},
		RobotsCompliance: compliance,
	}

	for _, keyword := range req.Keywords {
		for page := 1; page <= req.MaxPages; page++ {
			if err := v.scrapePage(ctx, base, keyword, req, page, delay, &result); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("scrape canceled: %v", err))
				return result
			}
		}
	}
	return result
}

// scrapePage fetches one search page and its detail pages. It only returns an error
// when ctx ends; everything else lands in result.Errors.
func (v *VisaBoard) scrapePage(
	ctx context.Context,
	base *url.URL,
	keyword string,
	req crawler.ScrapeRequest,
	page int,
	delay time.Duration,
	result *crawler.ScrapeResult,
) error {
	searchURL := v.searchURL(base, keyword, page)
	outcome, err := v.fetch(ctx, searchURL, delay, v.techniques)
	result.Errors = append(result.Errors, outcome.errors...)
	if err != nil {
		return err
	}
	if !outcome.ok {
		return nil
	}
	result.TechniqueUsed = outcome.technique
	v.snapshot(ctx, req.SourceID, outcome.response.Body)

	parsed, err := parsePage(outcome.response.Body, base, keyword, req.Location)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("Error scraping page %d: %v", page, err))
		result.PagesScraped++
		return nil
	}
	stubs, strategy := firstMatch(v.strategies, parsed)
	for _, stub := range stubs {
		listing := stub.Listing
		if stub.DetailURL != "" {
			if err := v.amplify(ctx, stub.DetailURL, delay, &listing); err != nil {
				if canceled(err) {
					return err
				}
				result.Errors = append(result.Errors, fmt.Sprintf("Error fetching details for %s: %v", listing.Title, err))
			}
		}
		if listing.Description == "" {
			listing.Description = fmt.Sprintf("%s position at %s in %s. H1B visa sponsorship available.",
				listing.Title, listing.EmployerName, listing.Location)
		}
		if listing.H1BInfo == "" {
			listing.H1BInfo = "H1B sponsorship available"
		}
		if isRelevant(listing, keyword) {
			result.Listings = append(result.Listings, listing)
		}
	}
	result.TotalFound += len(stubs)
	result.PagesScraped++
	v.logger.Info("page scraped",
		zap.String("keyword", keyword),
		zap.Int("page", page),
		zap.Int("strategy", strategy),
		zap.Int("found", len(stubs)),
	)
	return nil
}

// amplify fills description and H1B details from the listing's detail page.
func (v *VisaBoard) amplify(ctx context.Context, detailURL string, delay time.Duration, listing *crawler.RawListing) error {
	outcome, err := v.fetch(ctx, detailURL, delay, []Technique{DirectTechnique()})
	if err != nil {
		return err
	}
	if !outcome.ok {
		return errors.New(strings.Join(outcome.errors, "; "))
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(outcome.response.Body))
	if err != nil {
		return fmt.Errorf("parse detail: %w", err)
	}
	root := doc.Selection
	if desc := text(root, ".description", "#description"); desc != "" {
		listing.Description = desc
	}
	if info := text(root, ".h1b", "span.visa"); info != "" {
		listing.H1BInfo = info
	}
	return nil
}

func (v *VisaBoard) searchURL(base *url.URL, keyword string, page int) string {
	q := url.Values{}
	q.Set("job_title", keyword)
	q.Set("location", "")
	q.Set("visa", "H1B")
	q.Set("page", strconv.Itoa(page))
	return resolve(base, visaSearchPath) + "?" + q.Encode()
}

// tableRows handles the results table; each row links to a detail page.
func (v *VisaBoard) tableRows(page Page) []Stub {
	var out []Stub
	page.Doc.Find("tr.job").Each(func(_ int, row *goquery.Selection) {
		link := row.Find(`a[href^="` + visaDetailPrefix + `"]`).First()
		href, ok := link.Attr("href")
		title := collapse(link.Text())
		if !ok || title == "" {
			return
		}
		listing := crawler.RawListing{
			Title:        title,
			EmployerName: firstNonEmpty(text(row, "td.company", "span.company", ".company"), unknownCompany),
			Location:     firstNonEmpty(text(row, "td.location", "span.location", ".location"), unknownLocation),
			URL:          resolve(page.BaseURL, href),
			JobType:      defaultJobType,
		}
		if m := salaryRange.FindString(row.Text()); m != "" {
			listing.Salary = m
		}
		out = append(out, Stub{Listing: listing, DetailURL: listing.URL})
	})
	return out
}

// jobCards handles the card layout; cards carry only a title.
func (v *VisaBoard) jobCards(page Page) []Stub {
	var out []Stub
	page.Doc.Find("div.job").Each(func(_ int, card *goquery.Selection) {
		title := text(card, "h1", "h2", "h3", "h4", "h5", "h6", "strong")
		if title == "" {
			return
		}
		out = append(out, Stub{Listing: crawler.RawListing{
			Title:        title,
			EmployerName: "H1B Sponsor Company",
			Location:     "Various Locations",
			Description:  fmt.Sprintf("%s position with H1B visa sponsorship available. Found on a specialized H1B job board.", title),
			URL:          resolve(page.BaseURL, "/jobs"),
			JobType:      defaultJobType,
			H1BInfo:      "H1B sponsorship confirmed",
		}})
	})
	return out
}
