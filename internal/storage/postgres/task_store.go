package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/nhannt-dev/crawler-tool/internal/crawler"
)

// TaskStore persists crawl tasks, page rows, and listing items.
type TaskStore struct {
	pool querier
}

// NewTaskStore creates a TaskStore on an existing pool.
func NewTaskStore(pool querier) (*TaskStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &TaskStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *TaskStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// CreateTask inserts a task row in its initial status.
func (s *TaskStore) CreateTask(ctx context.Context, task crawler.Task) error {
	params, err := json.Marshal(task.Parameters)
	if err != nil {
		return fmt.Errorf("marshal parameters: %w", err)
	}
	counters, err := json.Marshal(task.Counters)
	if err != nil {
		return fmt.Errorf("marshal counters: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO crawl_tasks (id, site_id, category_id, status, submitted_at, error_text, parameters, counters)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		task.ID, task.SiteID, task.CategoryID, string(task.Status), task.Submitted,
		task.ErrorText, params, counters,
	)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// UpdateTaskStatus updates status, error text, counters, and the
// started/finished markers derived from the transition.
func (s *TaskStore) UpdateTaskStatus(
	ctx context.Context,
	taskID string,
	status crawler.TaskStatus,
	errText string,
	counters crawler.TaskCounters,
) error {
	countersJSON, err := json.Marshal(counters)
	if err != nil {
		return fmt.Errorf("marshal counters: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
UPDATE crawl_tasks SET
	status = $2,
	error_text = $3,
	counters = $4,
	started_at = CASE WHEN $2 = 'running' AND started_at IS NULL THEN NOW() ELSE started_at END,
	finished_at = CASE WHEN $2 IN ('succeeded', 'failed', 'canceled') THEN NOW() ELSE finished_at END
WHERE id = $1`,
		taskID, string(status), errText, countersJSON,
	)
	if err != nil {
		return fmt.Errorf("update task status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return crawler.ErrNotFound
	}
	return nil
}

// RecordPage inserts a page row for a task.
func (s *TaskStore) RecordPage(ctx context.Context, page crawler.PageRecord) error {
	headers, err := json.Marshal(page.Headers)
	if err != nil {
		return fmt.Errorf("marshal headers: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO task_pages (task_id, url, page_number, status_code, used_headless, fetched_at, duration_ms, content_hash, headers, blob_uri, item_count)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		page.TaskID, page.URL, page.PageNumber, page.StatusCode, page.UsedHeadless,
		page.FetchedAt, page.DurationMs, page.ContentHash, headers, page.BlobURI, page.ItemCount,
	)
	if err != nil {
		return fmt.Errorf("insert page: %w", err)
	}
	return nil
}

// RecordItems inserts the listing items extracted from one page.
func (s *TaskStore) RecordItems(ctx context.Context, items []crawler.ListingItem) error {
	for _, item := range items {
		_, err := s.pool.Exec(ctx, `
INSERT INTO task_items (task_id, category_id, position, title, url, page_url, scraped_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			item.TaskID, item.CategoryID, item.Position, item.Title, item.URL, item.PageURL, item.ScrapedAt,
		)
		if err != nil {
			return fmt.Errorf("insert item: %w", err)
		}
	}
	return nil
}

// GetTask fetches a task by ID.
func (s *TaskStore) GetTask(ctx context.Context, taskID string) (crawler.Task, error) {
	var (
		task         crawler.Task
		status       string
		paramsJSON   []byte
		countersJSON []byte
	)
	err := s.pool.QueryRow(ctx, `
SELECT id, site_id, category_id, status, submitted_at, started_at, finished_at, error_text, parameters, counters
FROM crawl_tasks WHERE id = $1`, taskID).
		Scan(&task.ID, &task.SiteID, &task.CategoryID, &status, &task.Submitted,
			&task.Started, &task.Finished, &task.ErrorText, &paramsJSON, &countersJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return crawler.Task{}, crawler.ErrNotFound
	}
	if err != nil {
		return crawler.Task{}, fmt.Errorf("scan task: %w", err)
	}
	task.Status = crawler.TaskStatus(status)
	if err := json.Unmarshal(paramsJSON, &task.Parameters); err != nil {
		return crawler.Task{}, fmt.Errorf("unmarshal parameters: %w", err)
	}
	if err := json.Unmarshal(countersJSON, &task.Counters); err != nil {
		return crawler.Task{}, fmt.Errorf("unmarshal counters: %w", err)
	}
	return task, nil
}

// ListPages returns all page rows for a task in fetch order.
func (s *TaskStore) ListPages(ctx context.Context, taskID string) ([]crawler.PageRecord, error) {
	rows, err := s.pool.Query(ctx, `
SELECT task_id, url, page_number, status_code, used_headless, fetched_at, duration_ms, content_hash, headers, blob_uri, item_count
FROM task_pages WHERE task_id = $1 ORDER BY page_number`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	defer rows.Close()

	var pages []crawler.PageRecord
	for rows.Next() {
		var (
			page    crawler.PageRecord
			headers []byte
		)
		if err := rows.Scan(&page.TaskID, &page.URL, &page.PageNumber, &page.StatusCode,
			&page.UsedHeadless, &page.FetchedAt, &page.DurationMs, &page.ContentHash,
			&headers, &page.BlobURI, &page.ItemCount); err != nil {
			return nil, fmt.Errorf("scan page row: %w", err)
		}
		if len(headers) > 0 {
			if err := json.Unmarshal(headers, &page.Headers); err != nil {
				return nil, fmt.Errorf("unmarshal headers: %w", err)
			}
		}
		pages = append(pages, page)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pages: %w", err)
	}
	return pages, nil
}

// ListItems returns all listing items for a task in extraction order.
func (s *TaskStore) ListItems(ctx context.Context, taskID string) ([]crawler.ListingItem, error) {
	rows, err := s.pool.Query(ctx, `
SELECT task_id, category_id, position, title, url, page_url, scraped_at
FROM task_items WHERE task_id = $1 ORDER BY position`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var items []crawler.ListingItem
	for rows.Next() {
		var item crawler.ListingItem
		if err := rows.Scan(&item.TaskID, &item.CategoryID, &item.Position,
			&item.Title, &item.URL, &item.PageURL, &item.ScrapedAt); err != nil {
			return nil, fmt.Errorf("scan item row: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return items, nil
}
