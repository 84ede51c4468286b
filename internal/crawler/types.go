package crawler

import (
	"net/http"
	"time"
)

// TaskStatus represents the lifecycle state of a crawl task.
type TaskStatus string

// Task status values persisted in the task store.
const (
	TaskStatusQueued    TaskStatus = "queued"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusSucceeded TaskStatus = "succeeded"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCanceled  TaskStatus = "canceled"
)

// Site is a registered target site. ID is assigned once at creation and
// never changes; Slug is replaced wholesale whenever the site is renamed.
type Site struct {
	ID        string    `json:"id"`
	Slug      string    `json:"slug"`
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Category is a listing page belonging to a site. Its slug is unique
// among the siblings under the same site.
type Category struct {
	ID        string    `json:"id"`
	SiteID    string    `json:"site_id"`
	Slug      string    `json:"slug"`
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TaskParameters captures per-task knobs requested by the client.
type TaskParameters struct {
	CategoryID       string `json:"category_id"`
	MaxPages         int    `json:"max_pages"`
	BudgetSeconds    int    `json:"budget_seconds"`
	HeadlessAllowed  bool   `json:"headless_allowed" mapstructure:"headless_allowed"`
	HeadlessProvided bool   `json:"-" mapstructure:"headless_provided"`
}

// Task is the metadata persisted for each submitted crawl task.
type Task struct {
	ID         string         `json:"id"`
	SiteID     string         `json:"site_id"`
	CategoryID string         `json:"category_id"`
	Status     TaskStatus     `json:"status"`
	Submitted  time.Time      `json:"submitted_at"`
	Started    *time.Time     `json:"started_at,omitempty"`
	Finished   *time.Time     `json:"finished_at,omitempty"`
	ErrorText  string         `json:"error_text,omitempty"`
	Parameters TaskParameters `json:"parameters"`
	Counters   TaskCounters   `json:"counters"`
}

// TaskCounters tracks progress stats per task.
type TaskCounters struct {
	PagesScraped int `json:"pages_scraped"`
	PagesFailed  int `json:"pages_failed"`
	ItemsFound   int `json:"items_found"`
	Retries      int `json:"retries"`
}

// PageRecord is persisted for each listing page fetched for a task.
type PageRecord struct {
	TaskID       string      `json:"task_id"`
	URL          string      `json:"url"`
	PageNumber   int         `json:"page_number"`
	StatusCode   int         `json:"status_code"`
	UsedHeadless bool        `json:"used_headless"`
	FetchedAt    time.Time   `json:"fetched_at"`
	DurationMs   int64       `json:"duration_ms"`
	ContentHash  string      `json:"content_hash"`
	Headers      http.Header `json:"headers"`
	BlobURI      string      `json:"blob_uri"`
	ItemCount    int         `json:"item_count"`
}

// ListingItem is one entry extracted from a category listing page.
type ListingItem struct {
	TaskID     string    `json:"task_id"`
	CategoryID string    `json:"category_id"`
	Position   int       `json:"position"`
	Title      string    `json:"title"`
	URL        string    `json:"url"`
	PageURL    string    `json:"page_url"`
	ScrapedAt  time.Time `json:"scraped_at"`
}

// Listing is the parsed form of one listing page.
type Listing struct {
	Entries     []ListingEntry
	NextPageURL string
}

// ListingEntry is a single parsed item before it is bound to a task.
type ListingEntry struct {
	Title string
	URL   string
}

// FetchRequest captures everything needed to fetch one listing page.
type FetchRequest struct {
	TaskID      string
	URL         string
	PageNumber  int
	UseHeadless bool
	Headers     http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL          string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
}

// TaskResult is returned by the API result endpoint.
type TaskResult struct {
	Task  Task          `json:"task"`
	Pages []PageRecord  `json:"pages"`
	Items []ListingItem `json:"items"`
}

// QueueItem wraps a task ready to run.
type QueueItem struct {
	TaskID    string
	SiteID    string
	StartURL  string
	Params    TaskParameters
	Attempt   int
	Submitted int64
}
