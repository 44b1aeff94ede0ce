package adapter

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/h1b-jobs-crawler/internal/crawler"
)

// Page is a parsed search results page.
type Page struct {
	Doc      *goquery.Document
	BaseURL  *url.URL
	Keyword  string
	Location string
}

// Stub is a listing found on a results page. DetailURL is set when the listing
// needs a second fetch to fill in its description.
type Stub struct {
	Listing   crawler.RawListing
	DetailURL string
}

// Strategy extracts stubs from one markup shape.
type Strategy func(Page) []Stub

// firstMatch runs strategies in order and returns the first non-empty result along
// with the index of the strategy that produced it (-1 when none matched).
func firstMatch(strategies []Strategy, page Page) ([]Stub, int) {
	for i, strategy := range strategies {
		if stubs := strategy(page); len(stubs) > 0 {
			return stubs, i
		}
	}
	return nil, -1
}

func parsePage(body []byte, base *url.URL, keyword, location string) (Page, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return Page{}, fmt.Errorf("parse html: %w", err)
	}
	return Page{Doc: doc, BaseURL: base, Keyword: keyword, Location: location}, nil
}

// text returns the collapsed text of the first element matching any selector.
func text(sel *goquery.Selection, selectors ...string) string {
	for _, s := range selectors {
		if v := collapse(sel.Find(s).First().Text()); v != "" {
			return v
		}
	}
	return ""
}

// attr returns the first non-empty attribute value across selectors.
func attr(sel *goquery.Selection, name string, selectors ...string) string {
	for _, s := range selectors {
		if v, ok := sel.Find(s).First().Attr(name); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func resolve(base *url.URL, ref string) string {
	if base == nil {
		return ref
	}
	u, err := base.Parse(ref)
	if err != nil {
		return ref
	}
	return u.String()
}
