package classifier

import "regexp"

// Category groups keyword entries for scoring.
type Category int

// Keyword categories.
const (
	Explicit Category = iota
	Implicit
	Negative
)

func (c Category) String() string {
	switch c {
	case Explicit:
		return "explicit"
	case Implicit:
		return "implicit"
	case Negative:
		return "negative"
	default:
		return "unknown"
	}
}

// Keyword is one weighted phrase. Phrases are lowercase.
type Keyword struct {
	Phrase   string
	Weight   float64
	Category Category
}

// DefaultKeywords is the built-in phrase table.
var DefaultKeywords = []Keyword{
	{"h1b sponsorship", 1.0, Explicit},
	{"visa sponsorship", 0.9, Explicit},
	{"will sponsor h1b", 1.0, Explicit},
	{"h1b visa", 0.8, Explicit},
	{"sponsor visa", 0.8, Explicit},
	{"immigration sponsorship", 0.9, Explicit},
	{"will sponsor work visa", 0.9, Explicit},
	{"h1b friendly", 1.0, Explicit},
	{"open to visa sponsorship", 0.8, Explicit},
	{"work visa support", 0.7, Explicit},
	{"visa assistance", 0.7, Explicit},

	{"work authorization", 0.6, Implicit},
	{"sponsorship available", 0.6, Implicit},
	{"international candidates", 0.5, Implicit},

	{"no sponsorship", -1.0, Negative},
	{"us citizens only", -1.0, Negative},
	{"no visa sponsorship", -1.0, Negative},
	{"must be authorized to work", -0.3, Negative},
}

// PatternBonus is added once per loose pattern that matches.
const PatternBonus = 0.3

// DefaultPatterns catch phrasing the keyword table misses. Each hit counts as implicit.
var DefaultPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)sponsor.*h[-\s]?1[-\s]?b`),
	regexp.MustCompile(`(?i)h[-\s]?1[-\s]?b.*sponsor`),
	regexp.MustCompile(`(?i)visa.*support`),
	regexp.MustCompile(`(?i)work.*visa`),
	regexp.MustCompile(`(?i)employment.*authorization`),
}

// EmployerBonus is added once when the employer is a known sponsor.
const EmployerBonus = 0.2

// KnownSponsors are lowercase employer name fragments.
var KnownSponsors = []string{
	"google", "microsoft", "amazon", "meta", "apple", "netflix",
	"uber", "tesla", "salesforce", "adobe", "oracle", "ibm",
}
