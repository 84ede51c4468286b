package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/nhannt-dev/crawler-tool/internal/crawler"
)

type taskRequest struct {
	CategoryID      string `json:"category_id"`
	MaxPages        *int   `json:"max_pages"`
	BudgetSeconds   *int   `json:"budget_seconds"`
	HeadlessAllowed *bool  `json:"headless_allowed"`
}

func (s *Server) submitTask(w http.ResponseWriter, r *http.Request) {
	var req taskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.CategoryID == "" {
		s.writeError(w, http.StatusBadRequest, "category_id is required")
		return
	}
	category, err := s.categories.GetCategory(r.Context(), req.CategoryID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	params := crawler.TaskParameters{
		CategoryID:       category.ID,
		MaxPages:         valueOrDefault(req.MaxPages, s.cfg.Crawler.MaxPagesDefault),
		BudgetSeconds:    valueOrDefault(req.BudgetSeconds, s.cfg.HTTP.TimeoutSeconds),
		HeadlessAllowed:  valueOrDefault(req.HeadlessAllowed, s.cfg.Headless.Enabled),
		HeadlessProvided: req.HeadlessAllowed != nil,
	}
	taskID, err := s.enqueueTask(r.Context(), category, params)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"task_id": taskID})
}

// enqueueTask persists the task record before handing it to the queue so
// a status poll issued right after the 202 always finds it.
func (s *Server) enqueueTask(ctx context.Context, category crawler.Category, params crawler.TaskParameters) (string, error) {
	taskID, err := s.newID()
	if err != nil {
		return "", err
	}
	now := s.clock.Now()
	task := crawler.Task{
		ID:         taskID,
		SiteID:     category.SiteID,
		CategoryID: category.ID,
		Status:     crawler.TaskStatusQueued,
		Submitted:  now,
		Parameters: params,
	}
	if err := s.tasks.CreateTask(ctx, task); err != nil {
		return "", fmt.Errorf("create task: %w", err)
	}
	queueCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	item := crawler.QueueItem{
		TaskID:    taskID,
		SiteID:    category.SiteID,
		StartURL:  category.URL,
		Params:    params,
		Attempt:   1,
		Submitted: now.Unix(),
	}
	if err := s.dispatcher.Enqueue(queueCtx, item); err != nil {
		// Leave the row behind as failed so the client can see why the
		// task never ran.
		if updErr := s.tasks.UpdateTaskStatus(ctx, taskID, crawler.TaskStatusFailed, err.Error(), crawler.TaskCounters{}); updErr != nil {
			s.logger.Warn("mark unqueued task failed", zap.String("task_id", taskID), zap.Error(updErr))
		}
		return "", fmt.Errorf("enqueue task: %w", err)
	}
	s.logger.Info("task submitted",
		zap.String("task_id", taskID),
		zap.String("category_id", category.ID),
		zap.String("start_url", category.URL),
	)
	return taskID, nil
}

func (s *Server) getTaskStatus(w http.ResponseWriter, r *http.Request) {
	task, err := s.tasks.GetTask(r.Context(), chi.URLParam(r, "task_id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"task": task})
}

func (s *Server) getTaskResult(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "task_id")
	task, err := s.tasks.GetTask(r.Context(), taskID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	pages, err := s.tasks.ListPages(r.Context(), taskID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	items, err := s.tasks.ListItems(r.Context(), taskID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, crawler.TaskResult{Task: task, Pages: pages, Items: items})
}

// cancelTask flips a task to canceled. Workers check the stored status
// between pages, so a running task stops at its next page boundary.
func (s *Server) cancelTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "task_id")
	task, err := s.tasks.GetTask(r.Context(), taskID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	switch task.Status {
	case crawler.TaskStatusSucceeded, crawler.TaskStatusFailed, crawler.TaskStatusCanceled:
		s.writeError(w, http.StatusConflict, fmt.Sprintf("task already %s", task.Status))
		return
	}
	if err := s.tasks.UpdateTaskStatus(r.Context(), taskID, crawler.TaskStatusCanceled, "canceled via API", task.Counters); err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"task_id": taskID, "status": string(crawler.TaskStatusCanceled)})
}
