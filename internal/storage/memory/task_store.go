package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nhannt-dev/crawler-tool/internal/crawler"
)

// TaskStore provides an in-memory implementation for development/testing.
type TaskStore struct {
	mu    sync.RWMutex
	tasks map[string]crawler.Task
	pages map[string][]crawler.PageRecord
	items map[string][]crawler.ListingItem
}

// NewTaskStore constructs a TaskStore.
func NewTaskStore() *TaskStore {
	return &TaskStore{
		tasks: make(map[string]crawler.Task),
		pages: make(map[string][]crawler.PageRecord),
		items: make(map[string][]crawler.ListingItem),
	}
}

// CreateTask stores a new task in queued status.
func (s *TaskStore) CreateTask(_ context.Context, task crawler.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[task.ID]; exists {
		return errors.New("task already exists")
	}
	s.tasks[task.ID] = task
	return nil
}

// UpdateTaskStatus updates the status and counters for a task.
func (s *TaskStore) UpdateTaskStatus(
	_ context.Context,
	taskID string,
	status crawler.TaskStatus,
	errText string,
	counters crawler.TaskCounters,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[taskID]
	if !ok {
		return crawler.ErrNotFound
	}
	task.Status = status
	task.ErrorText = errText
	task.Counters = counters
	now := time.Now().UTC()
	if status == crawler.TaskStatusRunning && task.Started == nil {
		task.Started = pointerTime(now)
	}
	if isTerminal(status) {
		task.Finished = pointerTime(now)
	}
	s.tasks[taskID] = task
	return nil
}

// RecordPage appends a page row for a task.
func (s *TaskStore) RecordPage(_ context.Context, page crawler.PageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[page.TaskID] = append(s.pages[page.TaskID], page)
	return nil
}

// RecordItems appends listing items for a task.
func (s *TaskStore) RecordItems(_ context.Context, items []crawler.ListingItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range items {
		s.items[item.TaskID] = append(s.items[item.TaskID], item)
	}
	return nil
}

// GetTask fetches a task by ID.
func (s *TaskStore) GetTask(_ context.Context, taskID string) (crawler.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[taskID]
	if !ok {
		return crawler.Task{}, crawler.ErrNotFound
	}
	return task, nil
}

// ListPages returns all recorded pages for a task.
func (s *TaskStore) ListPages(_ context.Context, taskID string) ([]crawler.PageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pages := s.pages[taskID]
	out := make([]crawler.PageRecord, len(pages))
	copy(out, pages)
	return out, nil
}

// ListItems returns all recorded listing items for a task.
func (s *TaskStore) ListItems(_ context.Context, taskID string) ([]crawler.ListingItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := s.items[taskID]
	out := make([]crawler.ListingItem, len(items))
	copy(out, items)
	return out, nil
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}

func isTerminal(status crawler.TaskStatus) bool {
	switch status {
	case crawler.TaskStatusSucceeded, crawler.TaskStatusFailed, crawler.TaskStatusCanceled:
		return true
	default:
		return false
	}
}
