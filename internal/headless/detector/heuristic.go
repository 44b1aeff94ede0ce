// Package detector decides when a plain HTTP response needs a headless render before
// job cards can be extracted.
package detector

import (
	"bytes"
	"strings"

	"github.com/JakeFAU/h1b-jobs-crawler/internal/crawler"
)

const defaultShellBytes = 2048

// Heuristic flags script shells and interstitial challenge pages.
type Heuristic struct {
	// ShellBytes is the size under which a script-heavy page counts as a shell.
	ShellBytes int
}

// NewHeuristic creates a new detector. A zero threshold uses 2 KiB.
func NewHeuristic(threshold int) *Heuristic {
	if threshold <= 0 {
		threshold = defaultShellBytes
	}
	return &Heuristic{ShellBytes: threshold}
}

// Client-rendered app roots that ship without server-rendered job cards.
var shellMarkers = [][]byte{
	[]byte(`id="__next"`),
	[]byte(`id="root"></div>`),
	[]byte(`id="app"></div>`),
	[]byte("data-reactroot=\"\"></div>"),
}

// Interstitials served with a 200 in place of search results.
var challengeMarkers = []string{
	"cf-browser-verification",
	"challenge-platform",
	"px-captcha",
	"g-recaptcha",
	"please enable javascript",
	"just a moment...",
}

// ShouldRender reports whether resp looks like a page whose listings only appear
// after JavaScript runs. Non-2xx responses are left to the technique ladder.
func (h *Heuristic) ShouldRender(resp crawler.FetchResponse) bool {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false
	}
	body := resp.Body
	if len(bytes.TrimSpace(body)) == 0 {
		return true
	}
	lower := strings.ToLower(string(body))
	for _, marker := range challengeMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	if len(body) < h.ShellBytes && scriptDensityHigh(lower) {
		return true
	}
	for _, marker := range shellMarkers {
		if bytes.Contains(body, marker) {
			return true
		}
	}
	return false
}

// scriptDensityHigh reports whether script elements cover a quarter or more of the
// lowercased document.
func scriptDensityHigh(lower string) bool {
	total := len(lower)
	if total == 0 {
		return false
	}
	const (
		openTag  = "<script"
		closeTag = "</script>"
	)
	covered := 0
	pos := 0
	for {
		rel := strings.Index(lower[pos:], openTag)
		if rel == -1 {
			break
		}
		start := pos + rel
		tagEnd := strings.IndexByte(lower[start:], '>')
		if tagEnd == -1 {
			covered += total - start
			break
		}
		contentStart := start + tagEnd + 1
		next := total
		if end := strings.Index(lower[contentStart:], closeTag); end != -1 {
			next = contentStart + end + len(closeTag)
		}
		covered += next - start
		pos = next
	}
	return covered*100/total >= 25
}
