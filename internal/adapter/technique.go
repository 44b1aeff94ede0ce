package adapter

import "net/http"

// Technique is one way of requesting a page. Techniques vary request headers only;
// the bot's User-Agent is never replaced.
type Technique struct {
	Name    string
	Headers http.Header
	// Rendered routes the request through the headless fetcher.
	Rendered bool
}

// Technique names.
const (
	TechniqueDirect         = "direct"
	TechniqueBrowserHeaders = "browser_headers"
	TechniqueRefererHeaders = "referer_headers"
	TechniqueRendered       = "rendered"
)

const acceptHTML = "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8"

// DirectTechnique sends only an Accept header.
func DirectTechnique() Technique {
	return Technique{
		Name:    TechniqueDirect,
		Headers: http.Header{"Accept": {acceptHTML}},
	}
}

// DefaultTechniques returns the header-variation ladder, optionally ending with a
// headless render.
func DefaultTechniques(includeRendered bool) []Technique {
	browser := http.Header{
		"Accept":                    {acceptHTML},
		"Accept-Language":           {"en-US,en;q=0.5"},
		"Upgrade-Insecure-Requests": {"1"},
		"Sec-Fetch-Dest":            {"document"},
		"Sec-Fetch-Mode":            {"navigate"},
		"Sec-Fetch-Site":            {"none"},
	}
	referer := browser.Clone()
	referer.Set("Referer", "https://www.google.com/")
	referer.Set("Cache-Control", "max-age=0")
	referer.Set("DNT", "1")

	out := []Technique{
		DirectTechnique(),
		{Name: TechniqueBrowserHeaders, Headers: browser},
		{Name: TechniqueRefererHeaders, Headers: referer},
	}
	if includeRendered {
		out = append(out, Technique{Name: TechniqueRendered, Headers: http.Header{"Accept-Language": {"en-US,en;q=0.5"}}, Rendered: true})
	}
	return out
}

// TechniquesByName filters DefaultTechniques to names, preserving the given order.
// Unknown names are ignored; an empty result falls back to the direct technique.
func TechniquesByName(names []string, includeRendered bool) []Technique {
	all := DefaultTechniques(true)
	byName := make(map[string]Technique, len(all))
	for _, t := range all {
		byName[t.Name] = t
	}
	var out []Technique
	for _, n := range names {
		t, ok := byName[n]
		if !ok || (t.Rendered && !includeRendered) {
			continue
		}
		out = append(out, t)
	}
	if len(out) == 0 {
		return []Technique{DirectTechnique()}
	}
	return out
}
