package postgres

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/nhannt-dev/crawler-tool/internal/crawler"
)

func TestCreateTaskInsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewTaskStore(mock)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	task := crawler.Task{
		ID:         "987654321",
		SiteID:     "1",
		CategoryID: "10",
		Status:     crawler.TaskStatusQueued,
		Submitted:  now,
		Parameters: crawler.TaskParameters{CategoryID: "10", MaxPages: 5, BudgetSeconds: 30},
	}

	mock.ExpectExec("INSERT INTO crawl_tasks").
		WithArgs(task.ID, task.SiteID, task.CategoryID, "queued", task.Submitted, "",
			[]byte(`{"category_id":"10","max_pages":5,"budget_seconds":30,"headless_allowed":false}`),
			[]byte(`{"pages_scraped":0,"pages_failed":0,"items_found":0,"retries":0}`)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.CreateTask(context.Background(), task))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateTaskStatusNotFound(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewTaskStore(mock)
	require.NoError(t, err)

	mock.ExpectExec("UPDATE crawl_tasks SET").
		WithArgs("missing", "running", "", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = store.UpdateTaskStatus(context.Background(), "missing", crawler.TaskStatusRunning, "", crawler.TaskCounters{})
	require.ErrorIs(t, err, crawler.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetTaskUnmarshalsJSONColumns(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewTaskStore(mock)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	rows := pgxmock.NewRows([]string{
		"id", "site_id", "category_id", "status", "submitted_at",
		"started_at", "finished_at", "error_text", "parameters", "counters",
	}).AddRow(
		"987654321", "1", "10", "succeeded", now,
		(*time.Time)(nil), (*time.Time)(nil), "",
		[]byte(`{"category_id":"10","max_pages":5}`),
		[]byte(`{"pages_scraped":5,"items_found":120}`),
	)

	mock.ExpectQuery("SELECT id, site_id, category_id, status").
		WithArgs("987654321").
		WillReturnRows(rows)

	task, err := store.GetTask(context.Background(), "987654321")
	require.NoError(t, err)
	require.Equal(t, crawler.TaskStatusSucceeded, task.Status)
	require.Equal(t, 5, task.Parameters.MaxPages)
	require.Equal(t, 5, task.Counters.PagesScraped)
	require.Equal(t, 120, task.Counters.ItemsFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordPageInsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewTaskStore(mock)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	page := crawler.PageRecord{
		TaskID:      "987654321",
		URL:         "https://example.com/c/shoes?page=2",
		PageNumber:  2,
		StatusCode:  200,
		FetchedAt:   now,
		DurationMs:  412,
		ContentHash: "abc123",
		Headers:     http.Header{"Content-Type": {"text/html"}},
		BlobURI:     "gs://bucket/listings/987654321/abc123.html",
		ItemCount:   24,
	}

	mock.ExpectExec("INSERT INTO task_pages").
		WithArgs(page.TaskID, page.URL, page.PageNumber, page.StatusCode, false,
			page.FetchedAt, page.DurationMs, page.ContentHash,
			[]byte(`{"Content-Type":["text/html"]}`), page.BlobURI, page.ItemCount).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.RecordPage(context.Background(), page))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordItemsInsertsEachRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewTaskStore(mock)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	items := []crawler.ListingItem{
		{TaskID: "42", CategoryID: "10", Position: 1, Title: "First", URL: "https://example.com/p/1", PageURL: "https://example.com/c", ScrapedAt: now},
		{TaskID: "42", CategoryID: "10", Position: 2, Title: "Second", URL: "https://example.com/p/2", PageURL: "https://example.com/c", ScrapedAt: now},
	}
	for _, item := range items {
		mock.ExpectExec("INSERT INTO task_items").
			WithArgs(item.TaskID, item.CategoryID, item.Position, item.Title, item.URL, item.PageURL, item.ScrapedAt).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}

	require.NoError(t, store.RecordItems(context.Background(), items))
	require.NoError(t, mock.ExpectationsWereMet())
}
