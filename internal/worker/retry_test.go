package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nhannt-dev/crawler-tool/internal/crawler"
	"github.com/nhannt-dev/crawler-tool/internal/metrics"
)

type countingFetcher struct {
	mu       sync.Mutex
	attempts int
	fails    int
}

func (f *countingFetcher) Fetch(_ context.Context, req crawler.FetchRequest) (crawler.FetchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.attempts <= f.fails {
		return crawler.FetchResponse{}, errors.New("transient error")
	}
	return crawler.FetchResponse{
		StatusCode: 200,
		Body:       []byte("success"),
		URL:        req.URL,
	}, nil
}

func (f *countingFetcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts
}

func TestWorker_RetryLogic(t *testing.T) {
	t.Parallel()
	metrics.Init()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	queue := &fakeQueue{
		items: []crawler.QueueItem{{
			TaskID:   "task-retry",
			StartURL: "https://example.com",
			Params:   crawler.TaskParameters{MaxPages: 1},
		}},
	}
	taskStore := newFakeTaskStore()
	blobStore := newFakeBlobStore()
	hasher := &fakeHasher{hash: "abc123retry"}
	clock := &fakeClock{now: time.Now()}

	// Fails 2 times, succeeds on 3rd attempt
	fetcher := &countingFetcher{fails: 2}

	w := New(
		queue,
		taskStore,
		blobStore,
		nil,
		hasher,
		clock,
		fetcher,
		nil,
		nil,
		&fakeParser{},
		Config{
			ContentType:      "text/html",
			BlobPrefix:       "retry",
			MaxRetries:       3,
			RetryBackoffBase: 1 * time.Millisecond,
		},
		zap.NewNop(),
	)

	go w.Run(ctx)

	require.Eventually(t, func() bool {
		return taskStore.lastStatus() == crawler.TaskStatusSucceeded
	}, 2*time.Second, 10*time.Millisecond)

	require.Equal(t, 3, fetcher.count())
	require.Equal(t, 1, taskStore.lastCounters().PagesScraped)
	require.Equal(t, 2, taskStore.lastCounters().Retries)
	cancel()
}

func TestWorker_RetryExhausted(t *testing.T) {
	t.Parallel()
	metrics.Init()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	queue := &fakeQueue{
		items: []crawler.QueueItem{{
			TaskID:   "task-retry-fail",
			StartURL: "https://example.com",
			Params:   crawler.TaskParameters{MaxPages: 1},
		}},
	}
	taskStore := newFakeTaskStore()
	blobStore := newFakeBlobStore()
	hasher := &fakeHasher{hash: "abc123fail"}
	clock := &fakeClock{now: time.Now()}

	// Fails 5 times, max retries is 3
	fetcher := &countingFetcher{fails: 5}

	w := New(
		queue,
		taskStore,
		blobStore,
		nil,
		hasher,
		clock,
		fetcher,
		nil,
		nil,
		&fakeParser{},
		Config{
			ContentType:      "text/html",
			BlobPrefix:       "retry",
			MaxRetries:       3,
			RetryBackoffBase: 1 * time.Millisecond,
		},
		zap.NewNop(),
	)

	go w.Run(ctx)

	require.Eventually(t, func() bool {
		return taskStore.lastStatus() == crawler.TaskStatusFailed
	}, 2*time.Second, 10*time.Millisecond)

	// Initial attempt + 3 retries = 4 attempts
	require.Equal(t, 4, fetcher.count())
	require.Equal(t, 1, taskStore.lastCounters().PagesFailed)
	require.Equal(t, 3, taskStore.lastCounters().Retries)
	cancel()
}
