package adapter

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/h1b-jobs-crawler/internal/crawler"
)

const visaSearchPage = `<html><body><table>
<tr class="job">
  <td><a href="/Jobs/Details/1">Backend Engineer</a></td>
  <td class="company">Acme Corp</td>
  <td class="location">Seattle, WA</td>
  <td>$120,000 - $150,000</td>
</tr>
<tr class="job">
  <td><a href="/Jobs/Details/2">Second Role</a></td>
</tr>
<tr class="job"><td>no link here</td></tr>
</table></body></html>`

const visaDetailPage = `<html><body>
<div class="description">Build APIs for payments. H1B sponsorship offered.</div>
<span class="visa">H1B: Yes</span>
</body></html>`

func visaHandler(req crawler.FetchRequest) (crawler.FetchResponse, error) {
	switch {
	case strings.Contains(req.URL, "/Jobs/Search"):
		return htmlResponse(req, visaSearchPage), nil
	case strings.HasSuffix(req.URL, "/Jobs/Details/1"):
		return htmlResponse(req, visaDetailPage), nil
	default:
		return statusResponse(req, 500), nil
	}
}

func TestVisaBoardScrape(t *testing.T) {
	fetcher := &stubFetcher{handler: visaHandler}
	robots := allowAll(1000)
	pacer := &recordingPacer{}
	v := NewVisaBoard(Deps{Fetcher: fetcher, Robots: robots, Pacer: pacer}, VisaBoardConfig{BaseURL: "https://visa.test"})

	result := v.Scrape(context.Background(), crawler.ScrapeRequest{
		Keywords:      []string{"software engineer"},
		MaxPages:      1,
		RespectRobots: true,
	})

	assert.Equal(t, []string{"https://visa.test/Jobs/Search"}, robots.checked)
	assert.Equal(t, TechniqueDirect, result.TechniqueUsed)
	assert.Equal(t, 1, result.PagesScraped)
	assert.Equal(t, 2, result.TotalFound)
	require.Len(t, result.Listings, 2)

	first := result.Listings[0]
	assert.Equal(t, "Backend Engineer", first.Title)
	assert.Equal(t, "Acme Corp", first.EmployerName)
	assert.Equal(t, "Seattle, WA", first.Location)
	assert.Equal(t, "https://visa.test/Jobs/Details/1", first.URL)
	assert.Equal(t, "$120,000 - $150,000", first.Salary)
	assert.Equal(t, "Build APIs for payments. H1B sponsorship offered.", first.Description)
	assert.Equal(t, "H1B: Yes", first.H1BInfo)

	second := result.Listings[1]
	assert.Equal(t, "Unknown Company", second.EmployerName)
	assert.Equal(t, "Location not specified", second.Location)
	assert.Equal(t,
		"Second Role position at Unknown Company in Location not specified. H1B visa sponsorship available.",
		second.Description)
	assert.Equal(t, "H1B sponsorship available", second.H1BInfo)

	assert.Equal(t, []string{"Error fetching details for Second Role: HTTP 500 with technique direct"}, result.Errors)

	calls := fetcher.Calls()
	require.Len(t, calls, 3)
	assert.Contains(t, calls[0].URL, "visa=H1B")
	assert.Contains(t, calls[0].URL, "page=1")
	assert.Contains(t, calls[0].URL, "job_title=software+engineer")

	require.Len(t, pacer.calls, 3)
	for _, c := range pacer.calls {
		assert.Equal(t, 2*time.Second, c.Gap)
	}
}

func TestVisaBoardFailedPageContinues(t *testing.T) {
	fetcher := &stubFetcher{handler: func(req crawler.FetchRequest) (crawler.FetchResponse, error) {
		if strings.Contains(req.URL, "page=1") {
			return statusResponse(req, 503), nil
		}
		if strings.Contains(req.URL, "/Jobs/Search") {
			return htmlResponse(req, `<div class="job"><h3>Cloud Architect</h3></div>`), nil
		}
		return statusResponse(req, 404), nil
	}}
	v := NewVisaBoard(Deps{Fetcher: fetcher, Pacer: &recordingPacer{}}, VisaBoardConfig{BaseURL: "https://visa.test"})

	result := v.Scrape(context.Background(), crawler.ScrapeRequest{Keywords: []string{"architect"}, MaxPages: 2})

	assert.Equal(t, []string{"HTTP 503 with technique direct"}, result.Errors)
	assert.Equal(t, 1, result.PagesScraped)
	require.Len(t, result.Listings, 1)
	card := result.Listings[0]
	assert.Equal(t, "Cloud Architect", card.Title)
	assert.Equal(t, "H1B Sponsor Company", card.EmployerName)
	assert.Equal(t, "Various Locations", card.Location)
	assert.Equal(t, "H1B sponsorship confirmed", card.H1BInfo)
	assert.Equal(t, "https://visa.test/jobs", card.URL)
}

func TestVisaBoardRobotsBlocked(t *testing.T) {
	fetcher := &stubFetcher{handler: visaHandler}
	robots := &staticRobots{compliance: crawler.RobotsCompliance{Allowed: false, Reason: "nope"}}
	v := NewVisaBoard(Deps{Fetcher: fetcher, Robots: robots}, VisaBoardConfig{BaseURL: "https://visa.test"})

	result := v.Scrape(context.Background(), crawler.ScrapeRequest{Keywords: []string{"x"}, MaxPages: 1, RespectRobots: true})

	assert.Empty(t, fetcher.Calls())
	assert.Equal(t, "blocked", result.TechniqueUsed)
	assert.Equal(t, []string{"Scraping not allowed by robots.txt: nope"}, result.Errors)
}

func TestVisaBoardCanceledDuringDetails(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fetcher := &stubFetcher{handler: func(req crawler.FetchRequest) (crawler.FetchResponse, error) {
		if strings.Contains(req.URL, "/Jobs/Search") {
			cancel()
			return htmlResponse(req, visaSearchPage), nil
		}
		return crawler.FetchResponse{}, context.Canceled
	}}
	v := NewVisaBoard(Deps{Fetcher: fetcher}, VisaBoardConfig{BaseURL: "https://visa.test"})

	result := v.Scrape(ctx, crawler.ScrapeRequest{Keywords: []string{"x", "y"}, MaxPages: 3})

	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[len(result.Errors)-1], "scrape canceled")
	assert.Empty(t, result.Listings)
	assert.Len(t, fetcher.Calls(), 2)
}
