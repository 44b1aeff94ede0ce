// Package classifier scores job text for H1B sponsorship likelihood using a
// weighted keyword table, loose regex bonuses and a known-sponsor allowlist.
package classifier

import (
	"math"
	"regexp"
	"sort"
	"strings"

	ahocorasick "github.com/cloudflare/ahocorasick"

	"github.com/JakeFAU/h1b-jobs-crawler/internal/crawler"
)

const negativePenalty = 0.3

// Classifier is a deterministic, side-effect free scorer. It is safe for concurrent use.
type Classifier struct {
	keywords []Keyword
	patterns []*regexp.Regexp
	sponsors []string
	matcher  *ahocorasick.Matcher
}

// New builds a Classifier from the default tables.
func New() *Classifier {
	return NewWithTables(DefaultKeywords, DefaultPatterns, KnownSponsors)
}

// NewWithTables builds a Classifier from custom tables. Phrases are lowercased.
func NewWithTables(keywords []Keyword, patterns []*regexp.Regexp, sponsors []string) *Classifier {
	kws := make([]Keyword, len(keywords))
	phrases := make([]string, len(keywords))
	for i, k := range keywords {
		k.Phrase = strings.ToLower(k.Phrase)
		kws[i] = k
		phrases[i] = k.Phrase
	}
	c := &Classifier{
		keywords: kws,
		patterns: patterns,
		sponsors: sponsors,
	}
	if len(phrases) > 0 {
		c.matcher = ahocorasick.NewStringMatcher(phrases)
	}
	return c
}

// Classify scores description text plus title, with an employer allowlist bonus.
func (c *Classifier) Classify(text, title, employer string) crawler.ClassificationResult {
	combined := strings.ToLower(text + " " + title)

	result := crawler.ClassificationResult{
		PositiveMatches: []string{},
		NegativeMatches: []string{},
	}
	var total float64

	for _, idx := range c.matchIndexes(combined) {
		kw := c.keywords[idx]
		total += kw.Weight
		switch kw.Category {
		case Explicit:
			result.Breakdown.Explicit++
			result.PositiveMatches = append(result.PositiveMatches, kw.Phrase)
		case Implicit:
			result.Breakdown.Implicit++
			result.PositiveMatches = append(result.PositiveMatches, kw.Phrase)
		case Negative:
			result.Breakdown.Negative++
			result.NegativeMatches = append(result.NegativeMatches, kw.Phrase)
		}
	}

	for _, p := range c.patterns {
		if p.MatchString(combined) {
			total += PatternBonus
			result.Breakdown.Implicit++
		}
	}

	if employer != "" {
		name := strings.ToLower(employer)
		for _, s := range c.sponsors {
			if strings.Contains(name, s) {
				total += EmployerBonus
				break
			}
		}
	}

	confidence := clamp((total+1)/2, 0, 1)
	if result.Breakdown.Negative > 0 && result.Breakdown.Explicit == 0 {
		confidence = math.Max(0, confidence-negativePenalty*float64(result.Breakdown.Negative))
	}

	result.Confidence = round2(confidence)
	result.Breakdown.TotalScore = total
	return result
}

// matchIndexes returns matched keyword indexes in table order.
func (c *Classifier) matchIndexes(text string) []int {
	if c.matcher == nil || text == "" {
		return nil
	}
	hits := c.matcher.MatchThreadSafe([]byte(text))
	seen := make(map[int]struct{}, len(hits))
	out := make([]int, 0, len(hits))
	for _, h := range hits {
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, h)
	}
	sort.Ints(out)
	return out
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
