package crawler

import (
	"net/http"
	"time"
)

// RunStatus represents the lifecycle state of a scraping run.
type RunStatus string

// Run status values persisted on run records.
const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// RunType distinguishes forced passes from timer-driven ones.
type RunType string

// Run types recorded on run records.
const (
	RunTypeManual    RunType = "manual"
	RunTypeScheduled RunType = "scheduled"
)

// Experience levels inferred by the processor.
const (
	ExperienceEntry  = "Entry"
	ExperienceMid    = "Mid"
	ExperienceSenior = "Senior"
)

// Employer sponsor status hints.
const (
	SponsorStatusActive   = "Active"
	SponsorStatusPossible = "Possible"
)

// Source is a configured origin to scrape.
type Source struct {
	ID                     string     `json:"id" mapstructure:"id"`
	Name                   string     `json:"name" mapstructure:"name"`
	Type                   string     `json:"type" mapstructure:"type"`
	BaseURL                string     `json:"base_url" mapstructure:"base_url"`
	IsActive               bool       `json:"is_active" mapstructure:"is_active"`
	LastScrapedAt          *time.Time `json:"last_scraped_at,omitempty" mapstructure:"-"`
	ScrapingFrequencyHours int        `json:"scraping_frequency_hours" mapstructure:"scraping_frequency_hours"`
	Keywords               []string   `json:"keywords" mapstructure:"keywords"`
	LocationHint           string     `json:"location_hint" mapstructure:"location_hint"`
	RequestDelayMs         int        `json:"request_delay_ms" mapstructure:"request_delay_ms"`
	MaxPages               int        `json:"max_pages" mapstructure:"max_pages"`
}

// RawListing is an as-scraped record prior to normalization.
type RawListing struct {
	Title        string     `json:"title" validate:"required"`
	EmployerName string     `json:"employer_name" validate:"required"`
	Location     string     `json:"location"`
	Description  string     `json:"description"`
	Salary       string     `json:"salary,omitempty"`
	URL          string     `json:"url" validate:"omitempty,url"`
	PostedDate   *time.Time `json:"posted_date,omitempty"`
	JobType      string     `json:"job_type,omitempty"`
	H1BInfo      string     `json:"h1b_info,omitempty"`
}

// MatchBreakdown counts keyword hits by category.
type MatchBreakdown struct {
	Explicit   int     `json:"explicit"`
	Implicit   int     `json:"implicit"`
	Negative   int     `json:"negative"`
	TotalScore float64 `json:"total_score"`
}

// ClassificationResult is the classifier's verdict for one piece of text.
type ClassificationResult struct {
	Confidence      float64        `json:"confidence"`
	PositiveMatches []string       `json:"positive_matches"`
	NegativeMatches []string       `json:"negative_matches"`
	Breakdown       MatchBreakdown `json:"breakdown"`
}

// Employer is a resolved company.
type Employer struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Location      string    `json:"location"`
	City          string    `json:"city"`
	State         string    `json:"state"`
	Country       string    `json:"country"`
	SponsorStatus string    `json:"sponsor_status"`
	Industry      string    `json:"industry"`
	CreatedAt     time.Time `json:"created_at"`
}

// Location is a structured job location.
type Location struct {
	Raw     string `json:"raw"`
	City    string `json:"city"`
	State   string `json:"state"`
	Country string `json:"country"`
}

// Listing is a normalized, persisted job posting.
type Listing struct {
	ID                   string    `json:"id"`
	Title                string    `json:"title"`
	EmployerID           string    `json:"employer_id"`
	EmployerName         string    `json:"employer_name"`
	Description          string    `json:"description"`
	SalaryMin            *int      `json:"salary_min,omitempty"`
	SalaryMax            *int      `json:"salary_max,omitempty"`
	SalaryCurrency       string    `json:"salary_currency"`
	Location             Location  `json:"location"`
	Remote               bool      `json:"remote"`
	ExperienceLevel      string    `json:"experience_level"`
	Industry             string    `json:"industry"`
	JobType              string    `json:"job_type"`
	SponsorshipAvailable bool      `json:"h1b_sponsorship_available"`
	Confidence           float64   `json:"h1b_confidence"`
	SourceURL            string    `json:"source_url"`
	SourceID             string    `json:"source_id,omitempty"`
	RunID                string    `json:"run_id,omitempty"`
	PostedDate           time.Time `json:"posted_date"`
	IsActive             bool      `json:"is_active"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// RunRecord is provenance for one pass over one source.
type RunRecord struct {
	ID            string     `json:"id"`
	SourceID      string     `json:"source_id"`
	RunType       RunType    `json:"run_type"`
	Status        RunStatus  `json:"status"`
	JobsFound     int        `json:"jobs_found"`
	PagesScraped  int        `json:"pages_scraped"`
	JobsProcessed int        `json:"jobs_processed"`
	JobsSaved     int        `json:"jobs_saved"`
	ErrorsCount   int        `json:"errors_count"`
	ErrorDetails  []string   `json:"error_details,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// RunUpdate carries the fields to change on a run record. Nil fields are left untouched.
type RunUpdate struct {
	Status        *RunStatus
	JobsFound     *int
	PagesScraped  *int
	JobsProcessed *int
	JobsSaved     *int
	ErrorsCount   *int
	ErrorDetails  []string
	CompletedAt   *time.Time
}

// Apply copies the set fields of u onto run.
func (u RunUpdate) Apply(run *RunRecord) {
	if u.Status != nil {
		run.Status = *u.Status
	}
	if u.JobsFound != nil {
		run.JobsFound = *u.JobsFound
	}
	if u.PagesScraped != nil {
		run.PagesScraped = *u.PagesScraped
	}
	if u.JobsProcessed != nil {
		run.JobsProcessed = *u.JobsProcessed
	}
	if u.JobsSaved != nil {
		run.JobsSaved = *u.JobsSaved
	}
	if u.ErrorsCount != nil {
		run.ErrorsCount = *u.ErrorsCount
	}
	if u.ErrorDetails != nil {
		run.ErrorDetails = append([]string(nil), u.ErrorDetails...)
	}
	if u.CompletedAt != nil {
		ts := *u.CompletedAt
		run.CompletedAt = &ts
	}
}

// RobotsCompliance is the robots.txt verdict for a URL and agent.
type RobotsCompliance struct {
	Allowed      bool     `json:"allowed"`
	CrawlDelayMs int      `json:"crawl_delay_ms"`
	Reason       string   `json:"reason"`
	UserAgent    string   `json:"user_agent,omitempty"`
	RobotsURL    string   `json:"robots_url,omitempty"`
	Sitemaps     []string `json:"sitemaps,omitempty"`
}

// ScrapeRequest is the input to a source adapter.
type ScrapeRequest struct {
	SourceID      string
	BaseURL       string
	Keywords      []string
	Location      string
	MaxPages      int
	RespectRobots bool
	DelayFloorMs  int
}

// ScrapeResult is what an adapter collected for one source.
type ScrapeResult struct {
	Listings         []RawListing     `json:"listings"`
	TotalFound       int              `json:"total_found"`
	PagesScraped     int              `json:"pages_scraped"`
	Errors           []string         `json:"errors"`
	RobotsCompliance RobotsCompliance `json:"robots_compliance"`
	TechniqueUsed    string           `json:"technique_used,omitempty"`
}

// ProcessResult summarizes one processor batch.
type ProcessResult struct {
	// ProcessedCount is saved listings plus skipped duplicates; SavedCount alone is new rows.
	ProcessedCount    int      `json:"processed_count"`
	SavedCount        int      `json:"saved_count"`
	SkippedDuplicates int      `json:"skipped_duplicates"`
	TotalInput        int      `json:"total_input"`
	ErrorsCount       int      `json:"errors_count"`
	Errors            []string `json:"errors"`
}

// PassRequest selects which sources a pass covers.
type PassRequest struct {
	ForceRun  bool     `json:"force_run"`
	SourceIDs []string `json:"source_ids"`
}

// SourceSummary reports what happened to one source during a pass.
type SourceSummary struct {
	SourceID       string    `json:"source_id"`
	SourceName     string    `json:"source_name"`
	RunID          string    `json:"run_id,omitempty"`
	Status         RunStatus `json:"status,omitempty"`
	Skipped        bool      `json:"skipped"`
	JobsFound      int       `json:"jobs_found"`
	PagesScraped   int       `json:"pages_scraped"`
	JobsProcessed  int       `json:"jobs_processed"`
	JobsSaved      int       `json:"jobs_saved"`
	ErrorsCount    int       `json:"errors_count"`
	TechniqueUsed  string    `json:"technique_used,omitempty"`
	ExecutionMilli int64     `json:"execution_time_ms"`
}

// SourceError attributes an error message to a source.
type SourceError struct {
	SourceID string `json:"source_id"`
	Error    string `json:"error"`
}

// OrchestrationResult aggregates one orchestrator pass.
type OrchestrationResult struct {
	Skipped             bool                        `json:"skipped"`
	RunsExecuted        int                         `json:"runs_executed"`
	TotalJobsScraped    int                         `json:"total_jobs_scraped"`
	TotalJobsProcessed  int                         `json:"total_jobs_processed"`
	TotalJobsSaved      int                         `json:"total_jobs_saved"`
	SourcesProcessed    []SourceSummary             `json:"sources_processed"`
	Errors              []SourceError               `json:"errors"`
	RobotsCompliance    map[string]RobotsCompliance `json:"robots_compliance"`
	ListingsDeactivated int64                       `json:"listings_deactivated"`
	RunsPurged          int64                       `json:"runs_purged"`
	StartedAt           time.Time                   `json:"started_at"`
	ExecutionTime       time.Duration               `json:"execution_time_ns"`
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL       string
	Headers   http.Header
	Technique string
}

// FetchResponse is the raw result of a fetch.
type FetchResponse struct {
	URL          string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
}
