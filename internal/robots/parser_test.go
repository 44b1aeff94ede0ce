package robots

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleRobots = `
# sample
User-agent: H1BJobsBot
Disallow: /private
Allow: /private/jobs
Crawl-delay: 5
Sitemap: https://example.com/sitemap.xml

User-agent: *
Disallow: /admin   # trailing comment
Disallow:
Crawl-delay: 0.5
`

func TestParseBuildsBlocks(t *testing.T) {
	t.Parallel()

	blocks := Parse(sampleRobots)
	require.Len(t, blocks, 2)

	bot := blocks[0]
	assert.Equal(t, "H1BJobsBot", bot.UserAgent)
	assert.Equal(t, []string{"/private"}, bot.Disallow)
	assert.Equal(t, []string{"/private/jobs"}, bot.Allow)
	assert.Equal(t, 5000, bot.CrawlDelayMs)
	assert.Equal(t, []string{"https://example.com/sitemap.xml"}, bot.Sitemaps)

	wild := blocks[1]
	assert.Equal(t, "*", wild.UserAgent)
	assert.Equal(t, []string{"/admin"}, wild.Disallow, "empty disallow values are dropped")
	assert.Equal(t, 500, wild.CrawlDelayMs)
}

func TestParseIgnoresDirectivesBeforeUserAgent(t *testing.T) {
	t.Parallel()

	blocks := Parse("Disallow: /\nUser-agent: *\nAllow: /")
	require.Len(t, blocks, 1)
	assert.Empty(t, blocks[0].Disallow)
}

func TestSelectPrefersExactAgent(t *testing.T) {
	t.Parallel()

	blocks := Parse(sampleRobots)

	got, ok := Select(blocks, "h1bjobsbot")
	require.True(t, ok)
	assert.Equal(t, "H1BJobsBot", got.UserAgent)

	got, ok = Select(blocks, "OtherBot")
	require.True(t, ok)
	assert.Equal(t, "*", got.UserAgent)

	_, ok = Select(Parse("User-agent: Googlebot\nDisallow: /"), "OtherBot")
	assert.False(t, ok)
}

func TestEvaluate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		rules   Rules
		path    string
		allowed bool
		delay   int
		reason  string
	}{
		{
			name:    "root disallow blocks everything",
			rules:   Rules{Disallow: []string{"/"}},
			path:    "/jobs",
			allowed: false,
			delay:   DefaultCrawlDelayMs,
			reason:  "Path /jobs is disallowed by robots.txt rule: Disallow: /",
		},
		{
			name:    "prefix disallow",
			rules:   Rules{Disallow: []string{"/private"}, CrawlDelayMs: 3000},
			path:    "/private/x",
			allowed: false,
			delay:   3000,
			reason:  "Path /private/x is disallowed by robots.txt rule: Disallow: /private",
		},
		{
			name:    "longer allow overrides",
			rules:   Rules{Disallow: []string{"/private"}, Allow: []string{"/private/jobs"}},
			path:    "/private/jobs/1",
			allowed: true,
			delay:   DefaultCrawlDelayMs,
			reason:  "Path is allowed by robots.txt",
		},
		{
			name:    "equal length allow does not override",
			rules:   Rules{Disallow: []string{"/jobs"}, Allow: []string{"/jobs"}},
			path:    "/jobs",
			allowed: false,
			delay:   DefaultCrawlDelayMs,
			reason:  "Path /jobs is disallowed by robots.txt rule: Disallow: /jobs",
		},
		{
			name:    "unmatched path allowed",
			rules:   Rules{Disallow: []string{"/admin"}},
			path:    "/jobs",
			allowed: true,
			delay:   DefaultCrawlDelayMs,
			reason:  "Path is allowed by robots.txt",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := Evaluate(tc.rules, tc.path)
			assert.Equal(t, tc.allowed, got.Allowed)
			assert.Equal(t, tc.delay, got.CrawlDelayMs)
			assert.Equal(t, tc.reason, got.Reason)
		})
	}
}
