// Package worker implements the crawl pipeline execution loop.
package worker

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nhannt-dev/crawler-tool/internal/crawler"
	"github.com/nhannt-dev/crawler-tool/internal/metrics"
)

// Config controls Worker behavior.
type Config struct {
	ContentType string
	BlobPrefix  string
	Topic       string
	// DefaultBudget bounds a task when the submitter did not set one.
	DefaultBudget time.Duration
	// MaxRetries is the number of additional fetch attempts per page.
	MaxRetries int
	// RetryBackoffBase is the delay before the first retry; each retry
	// doubles it.
	RetryBackoffBase time.Duration
}

// Worker consumes queue items and executes the fetch pipeline: probe fetch,
// optional headless promotion, listing parse, snapshot persist, item record.
type Worker struct {
	queue           crawler.Queue
	taskStore       crawler.TaskStore
	blobStore       crawler.BlobStore
	publisher       crawler.Publisher
	hasher          crawler.Hasher
	clock           crawler.Clock
	probeFetcher    crawler.Fetcher
	headlessFetcher crawler.Fetcher
	detector        crawler.HeadlessDetector
	parser          crawler.ListingParser
	cfg             Config
	logger          *zap.Logger
}

// New constructs a Worker.
func New(
	queue crawler.Queue,
	taskStore crawler.TaskStore,
	blobStore crawler.BlobStore,
	publisher crawler.Publisher,
	hasher crawler.Hasher,
	clock crawler.Clock,
	probe crawler.Fetcher,
	headless crawler.Fetcher,
	detector crawler.HeadlessDetector,
	parser crawler.ListingParser,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ContentType == "" {
		cfg.ContentType = "text/html; charset=utf-8"
	}
	if cfg.DefaultBudget <= 0 {
		cfg.DefaultBudget = 5 * time.Minute
	}
	return &Worker{
		queue:           queue,
		taskStore:       taskStore,
		blobStore:       blobStore,
		publisher:       publisher,
		hasher:          hasher,
		clock:           clock,
		probeFetcher:    probe,
		headlessFetcher: headless,
		detector:        detector,
		parser:          parser,
		cfg:             cfg,
		logger:          logger,
	}
}

// Run blocks, consuming queue items until the context finishes.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued task", zap.String("task_id", item.TaskID))
		w.processTask(ctx, item)
	}
}

func (w *Worker) processTask(ctx context.Context, item crawler.QueueItem) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	if w.probeFetcher == nil {
		w.failTask(ctx, item.TaskID, "no probe fetcher configured")
		return
	}

	task, err := w.taskStore.GetTask(ctx, item.TaskID)
	if err != nil {
		w.logger.Error("load task failed", zap.String("task_id", item.TaskID), zap.Error(err))
		return
	}
	if task.Status == crawler.TaskStatusCanceled {
		w.logger.Info("skipping canceled task", zap.String("task_id", item.TaskID))
		return
	}

	counters := crawler.TaskCounters{}
	if err := w.taskStore.UpdateTaskStatus(ctx, item.TaskID, crawler.TaskStatusRunning, "", counters); err != nil {
		w.logger.Error("update task status failed", zap.String("task_id", item.TaskID), zap.Error(err))
		return
	}

	taskCtx, cancel := context.WithTimeout(ctx, w.budget(item.Params))
	defer cancel()

	errText := w.crawlPages(taskCtx, item, &counters)

	status, errText := w.deriveFinalStatus(taskCtx, item.TaskID, counters, errText)
	if err := w.taskStore.UpdateTaskStatus(ctx, item.TaskID, status, errText, counters); err != nil {
		w.logger.Error("final task status update failed", zap.String("task_id", item.TaskID), zap.Error(err))
		return
	}
	metrics.ObserveTask(string(status))
	w.publishCompletion(ctx, item.TaskID, status, counters)
}

// crawlPages walks the listing pagination chain up to the page cap, returning
// the last error text encountered.
func (w *Worker) crawlPages(ctx context.Context, item crawler.QueueItem, counters *crawler.TaskCounters) string {
	maxPages := item.Params.MaxPages
	if maxPages <= 0 {
		maxPages = 1
	}

	errText := ""
	pageURL := item.StartURL
	for pageNumber := 1; pageNumber <= maxPages && pageURL != ""; pageNumber++ {
		if ctx.Err() != nil {
			return errText
		}
		if w.taskCanceled(ctx, item.TaskID) {
			return errText
		}

		nextURL, err := w.handlePage(ctx, item, pageURL, pageNumber, counters)
		if err != nil {
			errText = err.Error()
			return errText
		}
		pageURL = nextURL
	}
	return errText
}

func (w *Worker) taskCanceled(ctx context.Context, taskID string) bool {
	task, err := w.taskStore.GetTask(ctx, taskID)
	if err != nil {
		w.logger.Warn("cancel check failed", zap.String("task_id", taskID), zap.Error(err))
		return false
	}
	return task.Status == crawler.TaskStatusCanceled
}

func (w *Worker) handlePage(
	ctx context.Context,
	item crawler.QueueItem,
	pageURL string,
	pageNumber int,
	counters *crawler.TaskCounters,
) (string, error) {
	resp, err := w.fetchWithRetry(ctx, item, pageURL, pageNumber, counters)
	if err != nil {
		counters.PagesFailed++
		w.logger.Error("probe fetch failed",
			zap.String("task_id", item.TaskID),
			zap.String("url", pageURL),
			zap.Error(err))
		return "", err
	}

	finalResp := resp
	if promotedResp, promoted := w.maybePromote(ctx, item, pageURL, pageNumber, resp); promoted {
		finalResp = promotedResp
		metrics.ObserveHeadlessPromotion()
		w.logger.Info("headless promotion applied",
			zap.String("task_id", item.TaskID),
			zap.String("url", pageURL))
	}

	listing, err := w.parseListing(pageURL, finalResp)
	if err != nil {
		counters.PagesFailed++
		w.logger.Error("listing parse failed",
			zap.String("task_id", item.TaskID),
			zap.String("url", pageURL),
			zap.Error(err))
		return "", err
	}

	if err := w.persistPage(ctx, item, pageNumber, counters.ItemsFound, finalResp, listing); err != nil {
		counters.PagesFailed++
		w.logger.Error("persist page failed",
			zap.String("task_id", item.TaskID),
			zap.String("url", pageURL),
			zap.Error(err))
		return "", err
	}

	counters.PagesScraped++
	counters.ItemsFound += len(listing.Entries)
	metrics.ObserveCrawl(finalResp.URL, strconv.Itoa(finalResp.StatusCode), len(finalResp.Body), len(listing.Entries))
	metrics.ObserveFetch(fetchMode(finalResp), finalResp.Duration)
	w.logger.Debug("page processed",
		zap.String("task_id", item.TaskID),
		zap.String("url", pageURL),
		zap.Int("page", pageNumber),
		zap.Int("items", len(listing.Entries)))
	return listing.NextPageURL, nil
}

func (w *Worker) fetchWithRetry(
	ctx context.Context,
	item crawler.QueueItem,
	url string,
	pageNumber int,
	counters *crawler.TaskCounters,
) (crawler.FetchResponse, error) {
	backoff := w.cfg.RetryBackoffBase
	if backoff <= 0 {
		backoff = 250 * time.Millisecond
	}

	var lastErr error
	for attempt := 0; attempt <= w.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			counters.Retries++
			select {
			case <-ctx.Done():
				return crawler.FetchResponse{}, fmt.Errorf("retry wait: %w", ctx.Err())
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		resp, err := w.fetchProbe(ctx, item, url, pageNumber)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		w.logger.Warn("fetch attempt failed",
			zap.String("task_id", item.TaskID),
			zap.String("url", url),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}
	return crawler.FetchResponse{}, lastErr
}

func (w *Worker) fetchProbe(ctx context.Context, item crawler.QueueItem, url string, pageNumber int) (crawler.FetchResponse, error) {
	pageCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	resp, err := w.probeFetcher.Fetch(pageCtx, crawler.FetchRequest{
		TaskID:     item.TaskID,
		URL:        url,
		PageNumber: pageNumber,
	})
	if err != nil {
		return crawler.FetchResponse{}, fmt.Errorf("probe fetch: %w", err)
	}
	return resp, nil
}

func (w *Worker) maybePromote(
	ctx context.Context,
	item crawler.QueueItem,
	url string,
	pageNumber int,
	resp crawler.FetchResponse,
) (crawler.FetchResponse, bool) {
	if !item.Params.HeadlessAllowed || w.detector == nil || w.headlessFetcher == nil {
		return resp, false
	}
	if !w.detector.ShouldPromote(resp) {
		return resp, false
	}

	headlessCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	headlessResp, err := w.headlessFetcher.Fetch(headlessCtx, crawler.FetchRequest{
		TaskID:      item.TaskID,
		URL:         url,
		PageNumber:  pageNumber,
		UseHeadless: true,
	})
	if err != nil {
		w.logger.Warn("headless promotion failed",
			zap.String("task_id", item.TaskID),
			zap.String("url", url),
			zap.Error(err))
		return resp, false
	}
	headlessResp.UsedHeadless = true
	return headlessResp, true
}

func (w *Worker) parseListing(pageURL string, resp crawler.FetchResponse) (crawler.Listing, error) {
	if w.parser == nil {
		return crawler.Listing{}, nil
	}
	listing, err := w.parser.Parse(pageURL, resp.Body)
	if err != nil {
		return crawler.Listing{}, fmt.Errorf("parse listing: %w", err)
	}
	return listing, nil
}

// persistPage stores the raw page body, the page record, and the listing
// items. itemsSoFar is the number of items already recorded for the task, so
// positions keep counting across pages with uneven entry counts.
func (w *Worker) persistPage(
	ctx context.Context,
	item crawler.QueueItem,
	pageNumber int,
	itemsSoFar int,
	resp crawler.FetchResponse,
	listing crawler.Listing,
) error {
	hash, err := w.hasher.Hash(resp.Body)
	if err != nil {
		return fmt.Errorf("hash body: %w", err)
	}

	blobPath := w.buildBlobPath(item.TaskID, pageNumber, hash)
	uri, err := w.blobStore.PutObject(ctx, blobPath, w.cfg.ContentType, resp.Body)
	if err != nil {
		return fmt.Errorf("put object: %w", err)
	}

	page := crawler.PageRecord{
		TaskID:       item.TaskID,
		URL:          resp.URL,
		PageNumber:   pageNumber,
		StatusCode:   resp.StatusCode,
		UsedHeadless: resp.UsedHeadless,
		FetchedAt:    w.clock.Now(),
		DurationMs:   resp.Duration.Milliseconds(),
		ContentHash:  hash,
		Headers:      resp.Headers,
		BlobURI:      uri,
		ItemCount:    len(listing.Entries),
	}
	if err := w.taskStore.RecordPage(ctx, page); err != nil {
		return fmt.Errorf("record page: %w", err)
	}

	if len(listing.Entries) == 0 {
		return nil
	}
	items := make([]crawler.ListingItem, 0, len(listing.Entries))
	for i, entry := range listing.Entries {
		items = append(items, crawler.ListingItem{
			TaskID:     item.TaskID,
			CategoryID: item.Params.CategoryID,
			Position:   itemsSoFar + i + 1,
			Title:      entry.Title,
			URL:        entry.URL,
			PageURL:    resp.URL,
			ScrapedAt:  w.clock.Now(),
		})
	}
	if err := w.taskStore.RecordItems(ctx, items); err != nil {
		return fmt.Errorf("record items: %w", err)
	}
	return nil
}

func (w *Worker) publishCompletion(ctx context.Context, taskID string, status crawler.TaskStatus, counters crawler.TaskCounters) {
	if w.cfg.Topic == "" || w.publisher == nil {
		return
	}
	payload := map[string]any{
		"task_id":       taskID,
		"status":        string(status),
		"pages_scraped": counters.PagesScraped,
		"pages_failed":  counters.PagesFailed,
		"items_found":   counters.ItemsFound,
		"timestamp":     w.clock.Now().Format(time.RFC3339),
	}
	if _, err := w.publisher.Publish(ctx, w.cfg.Topic, payload); err != nil {
		w.logger.Error("publish completion failed", zap.String("task_id", taskID), zap.Error(err))
		return
	}
	w.logger.Info("task completion published",
		zap.String("task_id", taskID),
		zap.String("status", string(status)),
		zap.Int("pages_scraped", counters.PagesScraped),
		zap.Int("items_found", counters.ItemsFound),
	)
}

func (w *Worker) failTask(ctx context.Context, taskID, reason string) {
	w.logger.Error(reason, zap.String("task_id", taskID))
	if err := w.taskStore.UpdateTaskStatus(
		ctx,
		taskID,
		crawler.TaskStatusFailed,
		reason,
		crawler.TaskCounters{},
	); err != nil {
		w.logger.Error("fail task status update", zap.String("task_id", taskID), zap.Error(err))
	}
}

func fetchMode(resp crawler.FetchResponse) string {
	if resp.UsedHeadless {
		return "headless"
	}
	return "static"
}

func (w *Worker) budget(params crawler.TaskParameters) time.Duration {
	if params.BudgetSeconds > 0 {
		return time.Duration(params.BudgetSeconds) * time.Second
	}
	return w.cfg.DefaultBudget
}

func (w *Worker) buildBlobPath(taskID string, pageNumber int, hash string) string {
	prefix := strings.Trim(w.cfg.BlobPrefix, "/")
	if prefix == "" {
		return fmt.Sprintf("%s/page-%04d-%s.html", taskID, pageNumber, hash)
	}
	return fmt.Sprintf("%s/%s/page-%04d-%s.html", prefix, taskID, pageNumber, hash)
}

func (w *Worker) deriveFinalStatus(
	ctx context.Context,
	taskID string,
	counters crawler.TaskCounters,
	errText string,
) (crawler.TaskStatus, string) {
	if w.taskCanceled(context.WithoutCancel(ctx), taskID) {
		return crawler.TaskStatusCanceled, errText
	}

	if counters.PagesScraped == 0 && errText == "" {
		errText = "no pages were fetched"
	}

	if counters.PagesScraped == 0 {
		return crawler.TaskStatusFailed, errText
	}
	return crawler.TaskStatusSucceeded, errText
}
