// Package robots fetches robots.txt files and answers allow/crawl-delay questions
// for a given path and user agent.
package robots

import (
	"bufio"
	"strconv"
	"strings"
)

// DefaultCrawlDelayMs applies when a matched block carries no crawl-delay.
const DefaultCrawlDelayMs = 1000

// Rules is one user-agent block.
type Rules struct {
	UserAgent    string
	Disallow     []string
	Allow        []string
	CrawlDelayMs int
	Sitemaps     []string
}

// Parse splits a robots.txt body into per-agent blocks in file order.
// Directives seen before the first user-agent line are ignored.
func Parse(body string) []Rules {
	var (
		blocks  []Rules
		current *Rules
	)
	scanner := bufio.NewScanner(strings.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		directive, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		directive = strings.ToLower(strings.TrimSpace(directive))
		value = strings.TrimSpace(stripComment(value))

		if directive == "user-agent" {
			blocks = append(blocks, Rules{UserAgent: value})
			current = &blocks[len(blocks)-1]
			continue
		}
		if current == nil {
			continue
		}
		switch directive {
		case "disallow":
			if value != "" {
				current.Disallow = append(current.Disallow, value)
			}
		case "allow":
			if value != "" {
				current.Allow = append(current.Allow, value)
			}
		case "crawl-delay":
			if secs, err := strconv.ParseFloat(value, 64); err == nil && secs >= 0 {
				current.CrawlDelayMs = int(secs * 1000)
			}
		case "sitemap":
			if value != "" {
				current.Sitemaps = append(current.Sitemaps, value)
			}
		}
	}
	return blocks
}

// Select picks the block for agent: exact case-insensitive match first, then "*".
func Select(blocks []Rules, agent string) (Rules, bool) {
	for _, b := range blocks {
		if strings.EqualFold(b.UserAgent, agent) {
			return b, true
		}
	}
	for _, b := range blocks {
		if b.UserAgent == "*" {
			return b, true
		}
	}
	return Rules{}, false
}

// Decision is the outcome of evaluating a path against a block.
type Decision struct {
	Allowed      bool
	CrawlDelayMs int
	Reason       string
}

// Evaluate applies longest-prefix semantics: a Disallow prefix blocks the path unless a
// strictly longer Allow prefix also matches. "Disallow: /" blocks everything.
func Evaluate(rules Rules, path string) Decision {
	delay := rules.CrawlDelayMs
	if delay <= 0 {
		delay = DefaultCrawlDelayMs
	}
	if path == "" {
		path = "/"
	}
	for _, d := range rules.Disallow {
		if d == "/" {
			return Decision{
				Allowed:      false,
				CrawlDelayMs: delay,
				Reason:       "Path " + path + " is disallowed by robots.txt rule: Disallow: /",
			}
		}
		if !strings.HasPrefix(path, d) {
			continue
		}
		if longestAllow(rules.Allow, path) > len(d) {
			continue
		}
		return Decision{
			Allowed:      false,
			CrawlDelayMs: delay,
			Reason:       "Path " + path + " is disallowed by robots.txt rule: Disallow: " + d,
		}
	}
	return Decision{Allowed: true, CrawlDelayMs: delay, Reason: "Path is allowed by robots.txt"}
}

func longestAllow(allows []string, path string) int {
	best := -1
	for _, a := range allows {
		if strings.HasPrefix(path, a) && len(a) > best {
			best = len(a)
		}
	}
	return best
}

func stripComment(v string) string {
	if i := strings.Index(v, "#"); i >= 0 {
		return v[:i]
	}
	return v
}
