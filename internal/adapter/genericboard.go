package adapter

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/h1b-jobs-crawler/internal/crawler"
)

const (
	genericDefaultBaseURL  = "https://www.indeed.com"
	genericMinDelay        = 3 * time.Second
	genericMaxPerPage      = 10
	genericMaxAlternative  = 5
	genericResultsPerPage  = 10
	genericDefaultLocation = "United States"
	defaultJobType         = "Full-time"
)

// GenericBoardConfig tunes the generic job board adapter.
type GenericBoardConfig struct {
	BaseURL    string
	MinDelay   time.Duration
	Techniques []Technique
	MaxPerPage int
}

// GenericBoard scrapes search-result cards from a general-purpose job board. Cards
// carry no description, so listings get a synthesized one instead of a detail fetch.
type GenericBoard struct {
	scraper
	baseURL    string
	maxPerPage int
	strategies []Strategy
}

// NewGenericBoard builds the adapter.
func NewGenericBoard(deps Deps, cfg GenericBoardConfig) *GenericBoard {
	minDelay := cfg.MinDelay
	if minDelay <= 0 {
		minDelay = genericMinDelay
	}
	maxPerPage := cfg.MaxPerPage
	if maxPerPage <= 0 {
		maxPerPage = genericMaxPerPage
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = genericDefaultBaseURL
	}
	g := &GenericBoard{
		scraper:    newScraper(TypeGenericBoard, deps, cfg.Techniques, minDelay),
		baseURL:    baseURL,
		maxPerPage: maxPerPage,
	}
	g.strategies = []Strategy{
		g.cardsByDataAttr,
		g.legacyCards,
		g.articleCards,
		g.alternativeExtraction,
	}
	return g
}

// Name implements Adapter.
func (g *GenericBoard) Name() string { return TypeGenericBoard }

// Scrape walks keywords × pages. A page that no technique can fetch ends paging for
// that keyword.
func (g *GenericBoard) Scrape(ctx context.Context, req crawler.ScrapeRequest) crawler.ScrapeResult {
	base, err := url.Parse(firstNonEmpty(req.BaseURL, g.baseURL))
	if err != nil || base.Host == "" {
		return crawler.ScrapeResult{
			Listings: []crawler.RawListing{},
			Errors:   []string{fmt.Sprintf("invalid base url %q", firstNonEmpty(req.BaseURL, g.baseURL))},
		}
	}
	location := firstNonEmpty(req.Location, genericDefaultLocation)

	compliance := g.checkRobots(ctx, req, resolve(base, "/jobs"))
	if !compliance.Allowed {
		return blockedResult(compliance)
	}
	delay := g.effectiveDelay(compliance, req)

	result := crawler.ScrapeResult{
		Listings:         []crawler.RawListing{},
		Errors:           []string{},
		RobotsCompliance: compliance,
	}
	today := g.now().Truncate(24 * time.Hour)

keywords:
	for _, keyword := range req.Keywords {
		for page := 0; page < req.MaxPages; page++ {
			searchURL := g.searchURL(base, keyword, location, page)
			outcome, err := g.fetch(ctx, searchURL, delay, g.techniques)
			result.Errors = append(result.Errors, outcome.errors...)
			if err != nil {
				if canceled(err) {
					result.Errors = append(result.Errors, fmt.Sprintf("scrape canceled: %v", err))
					break keywords
				}
				result.Errors = append(result.Errors, err.Error())
				break
			}
			if !outcome.ok {
				g.logger.Warn("all techniques failed; skipping remaining pages",
					zap.String("keyword", keyword),
					zap.Int("page", page+1),
				)
				break
			}
			result.TechniqueUsed = outcome.technique
			g.snapshot(ctx, req.SourceID, outcome.response.Body)

			parsed, err := parsePage(outcome.response.Body, base, keyword, location)
			if err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("page %d for %q: %v", page+1, keyword, err))
				result.PagesScraped++
				continue
			}
			stubs, strategy := firstMatch(g.strategies, parsed)
			for _, stub := range stubs {
				listing := stub.Listing
				if listing.PostedDate == nil {
					d := today
					listing.PostedDate = &d
				}
				if isRelevant(listing, keyword) {
					result.Listings = append(result.Listings, listing)
				}
			}
			result.TotalFound += len(stubs)
			result.PagesScraped++
			g.logger.Info("page scraped",
				zap.String("keyword", keyword),
				zap.Int("page", page+1),
				zap.String("technique", outcome.technique),
				zap.Int("strategy", strategy),
				zap.Int("found", len(stubs)),
			)
		}
	}
	return result
}

func (g *GenericBoard) searchURL(base *url.URL, keyword, location string, page int) string {
	q := url.Values{}
	q.Set("q", keyword)
	q.Set("l", location)
	q.Set("start", strconv.Itoa(page*genericResultsPerPage))
	q.Set("sort", "date")
	q.Set("fromage", "7")
	return resolve(base, "/jobs") + "?" + q.Encode()
}

func (g *GenericBoard) stub(page Page, id, title, company, location string) Stub {
	if location == "" {
		location = page.Location
	}
	return Stub{Listing: crawler.RawListing{
		Title:        title,
		EmployerName: company,
		Location:     location,
		Description: fmt.Sprintf(
			"%s position at %s. Located in %s. H1B visa sponsorship may be available - please verify with employer.",
			title, company, location,
		),
		URL:     resolve(page.BaseURL, "/viewjob?jk="+url.QueryEscape(id)),
		JobType: defaultJobType,
	}}
}

// cardsByDataAttr handles the current card layout keyed by data-jk.
func (g *GenericBoard) cardsByDataAttr(page Page) []Stub {
	var out []Stub
	page.Doc.Find("div[data-jk]").EachWithBreak(func(_ int, card *goquery.Selection) bool {
		id, _ := card.Attr("data-jk")
		title := attr(card, "title", "h2 span[title]", "h2 a[title]")
		company := text(card, `[data-testid="company-name"]`)
		if id == "" || title == "" || company == "" {
			return true
		}
		out = append(out, g.stub(page, id, title, company, text(card, `[data-testid="job-location"]`)))
		return len(out) < g.maxPerPage
	})
	return out
}

// legacyCards handles the older SerpJobCard layout.
func (g *GenericBoard) legacyCards(page Page) []Stub {
	var out []Stub
	page.Doc.Find(".jobsearch-SerpJobCard").EachWithBreak(func(_ int, card *goquery.Selection) bool {
		id, ok := card.Attr("data-jk")
		if !ok {
			id = attr(card, "data-jk", "[data-jk]")
		}
		title := attr(card, "title", "a[title]")
		company := text(card, ".companyName", ".company")
		if id == "" || title == "" || company == "" {
			return true
		}
		out = append(out, g.stub(page, id, title, company, text(card, ".companyLocation", ".location")))
		return len(out) < g.maxPerPage
	})
	return out
}

// articleCards handles the mobile layout.
func (g *GenericBoard) articleCards(page Page) []Stub {
	var out []Stub
	page.Doc.Find("article[data-jk]").EachWithBreak(func(_ int, card *goquery.Selection) bool {
		id, _ := card.Attr("data-jk")
		title := text(card, "h2 span", "h2")
		company := text(card, `[data-testid="company-name"]`, ".companyName", "span.company")
		if id == "" || title == "" || company == "" {
			return true
		}
		out = append(out, g.stub(page, id, title, company, text(card, `[data-testid="job-location"]`, ".companyLocation", "div")))
		return len(out) < g.maxPerPage
	})
	return out
}

// alternativeExtraction pairs page-wide title and company nodes when no card layout matched.
func (g *GenericBoard) alternativeExtraction(page Page) []Stub {
	var titles, companies []string
	page.Doc.Find("h2 span[title]").Each(func(_ int, s *goquery.Selection) {
		if v, ok := s.Attr("title"); ok && collapse(v) != "" {
			titles = append(titles, collapse(v))
		}
	})
	page.Doc.Find(`[data-testid="company-name"]`).Each(func(_ int, s *goquery.Selection) {
		if v := collapse(s.Text()); v != "" {
			companies = append(companies, v)
		}
	})
	n := min(len(titles), len(companies), genericMaxAlternative)
	out := make([]Stub, 0, n)
	for i := 0; i < n; i++ {
		q := url.Values{}
		q.Set("q", titles[i])
		q.Set("l", page.Location)
		out = append(out, Stub{Listing: crawler.RawListing{
			Title:        titles[i],
			EmployerName: companies[i],
			Location:     page.Location,
			Description:  fmt.Sprintf("%s opportunity at %s. H1B sponsorship status should be verified with employer.", titles[i], companies[i]),
			URL:          resolve(page.BaseURL, "/jobs") + "?" + q.Encode(),
			JobType:      defaultJobType,
		}})
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
