package crawler

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by stores when a record does not exist.
var ErrNotFound = errors.New("record not found")

// SiteStore persists site records.
type SiteStore interface {
	CreateSite(ctx context.Context, site Site) error
	GetSite(ctx context.Context, siteID string) (Site, error)
	GetSiteBySlug(ctx context.Context, slug string) (Site, error)
	UpdateSite(ctx context.Context, site Site) error
	DeleteSite(ctx context.Context, siteID string) error
	ListSites(ctx context.Context) ([]Site, error)
}

// CategoryStore persists category records.
type CategoryStore interface {
	CreateCategory(ctx context.Context, category Category) error
	GetCategory(ctx context.Context, categoryID string) (Category, error)
	UpdateCategory(ctx context.Context, category Category) error
	DeleteCategory(ctx context.Context, categoryID string) error
	ListCategories(ctx context.Context, siteID string) ([]Category, error)
}

// TaskStore persists task, page, and listing-item metadata.
type TaskStore interface {
	CreateTask(ctx context.Context, task Task) error
	UpdateTaskStatus(ctx context.Context, taskID string, status TaskStatus, errText string, counters TaskCounters) error
	RecordPage(ctx context.Context, page PageRecord) error
	RecordItems(ctx context.Context, items []ListingItem) error
	GetTask(ctx context.Context, taskID string) (Task, error)
	ListPages(ctx context.Context, taskID string) ([]PageRecord, error)
	ListItems(ctx context.Context, taskID string) ([]ListingItem, error)
}

// BlobStore writes raw page snapshots and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes task lifecycle events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Fetcher fetches one listing page and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// ListingParser extracts listing entries and the next-page link from a
// fetched page body.
type ListingParser interface {
	Parse(pageURL string, body []byte) (Listing, error)
}

// HeadlessDetector decides whether a headless fetch is warranted.
type HeadlessDetector interface {
	ShouldPromote(probe FetchResponse) bool
}

// Queue provides enqueue/dequeue semantics for crawl tasks.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// Hasher computes digests for deduplication/integrity.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces entity identifiers.
type IDGenerator interface {
	NewID() (string, error)
}
