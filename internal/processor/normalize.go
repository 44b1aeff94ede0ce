package processor

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/JakeFAU/h1b-jobs-crawler/internal/crawler"
)

const defaultCountry = "United States"

var salaryToken = regexp.MustCompile(`\$?([\d,]+)`)

var remoteTerms = []string{"remote", "work from home", "telecommute", "distributed"}

// industryBuckets are checked in order against the lowercase title.
var industryBuckets = []struct {
	industry string
	terms    []string
}{
	{"Technology", []string{"software", "developer", "engineer"}},
	{"Data Science", []string{"data", "analytics", "scientist"}},
	{"Product Management", []string{"product", "manager"}},
	{"Finance", []string{"finance", "financial"}},
}

// ParseSalary extracts a range from free text. One number sets only the minimum;
// two or more set the smallest and largest. Tokens without digits are ignored.
func ParseSalary(raw string) (minSalary, maxSalary *int) {
	var nums []int
	for _, m := range salaryToken.FindAllStringSubmatch(raw, -1) {
		n, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", ""))
		if err != nil {
			continue
		}
		nums = append(nums, n)
	}
	switch len(nums) {
	case 0:
		return nil, nil
	case 1:
		return &nums[0], nil
	}
	lo, hi := nums[0], nums[0]
	for _, n := range nums[1:] {
		lo = min(lo, n)
		hi = max(hi, n)
	}
	return &lo, &hi
}

// ParseLocation splits "City, State[, ...]". Without a comma the whole string is the city.
func ParseLocation(raw string) crawler.Location {
	loc := crawler.Location{Raw: raw, Country: defaultCountry}
	parts := strings.Split(raw, ",")
	if len(parts) >= 2 {
		loc.City = strings.TrimSpace(parts[0])
		loc.State = strings.TrimSpace(parts[1])
		return loc
	}
	loc.City = strings.TrimSpace(raw)
	return loc
}

// IsRemote looks for remote-work phrasing in any of the fields.
func IsRemote(fields ...string) bool {
	for _, f := range fields {
		lower := strings.ToLower(f)
		for _, term := range remoteTerms {
			if strings.Contains(lower, term) {
				return true
			}
		}
	}
	return false
}

// ExperienceLevel buckets a posting by seniority words in its title and description.
func ExperienceLevel(title, description string) string {
	text := strings.ToLower(title + " " + description)
	switch {
	case containsAny(text, "senior", "lead", "principal"):
		return crawler.ExperienceSenior
	case containsAny(text, "junior", "entry", "new grad"):
		return crawler.ExperienceEntry
	default:
		return crawler.ExperienceMid
	}
}

// Industry maps a job title onto a coarse industry bucket.
func Industry(title string) string {
	lower := strings.ToLower(title)
	for _, b := range industryBuckets {
		if containsAny(lower, b.terms...) {
			return b.industry
		}
	}
	return "Other"
}

func containsAny(s string, terms ...string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}
