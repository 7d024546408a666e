package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/NamiraNet/matchcounter/internal/search"
	workerpool "github.com/NamiraNet/matchcounter/internal/worker"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type Handler struct {
	searcher    *search.Searcher
	workerPool  *workerpool.WorkerPool
	store       JobStore
	limiter     *rate.Limiter
	allowedRoot string
	logger      *zap.Logger
	versionInfo VersionInfo

	running sync.WaitGroup
}

// NewHandler wires the API to a searcher and the pool it runs on. A nil
// limiter accepts every search request. A non-empty allowedRoot confines
// searches to that directory and everything below it.
func NewHandler(searcher *search.Searcher, pool *workerpool.WorkerPool, store JobStore, limiter *rate.Limiter, allowedRoot string, logger *zap.Logger, versionInfo VersionInfo) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if allowedRoot != "" {
		if resolved, err := filepath.EvalSymlinks(allowedRoot); err == nil {
			allowedRoot = resolved
		}
		if abs, err := filepath.Abs(allowedRoot); err == nil {
			allowedRoot = abs
		}
	}
	return &Handler{
		searcher:    searcher,
		workerPool:  pool,
		store:       store,
		limiter:     limiter,
		allowedRoot: allowedRoot,
		logger:      logger,
		versionInfo: versionInfo,
	}
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Keyword == "" {
		writeError(w, search.ErrEmptyKeyword.Error(), http.StatusBadRequest)
		return
	}
	if !h.allowed(req.Root) {
		writeError(w, "Root is outside the searchable tree", http.StatusForbidden)
		return
	}
	root, err := search.ValidateRoot(req.Root)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if h.limiter != nil && !h.limiter.Allow() {
		writeError(w, "Too many search requests", http.StatusTooManyRequests)
		return
	}

	job := NewJob(root, req.Keyword)
	if err := h.store.Save(r.Context(), job); err != nil {
		h.logger.Error("Failed to store job", zap.String("job_id", job.ID), zap.Error(err))
		writeError(w, "Failed to store job", http.StatusInternalServerError)
		return
	}

	// The job runs as a pool task so that awaiting the root directory helps
	// drain the queue rather than parking a goroutine outside the pool.
	h.running.Add(1)
	if _, err := workerpool.Submit(context.Background(), h.workerPool, "job "+job.ID, h.executeSearchJob(job)); err != nil {
		h.running.Done()
		h.logger.Error("Failed to submit search job", zap.String("job_id", job.ID), zap.Error(err))
		job.Fail(err)
		h.saveJob(job)
		writeError(w, "Failed to submit task", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	writeJSON(w, SearchResponse{JobID: job.ID})
}

// allowed reports whether root, after resolving links, lies inside the
// configured tree. A root that does not exist yet is judged by its lexical
// path; ValidateRoot rejects it afterwards.
func (h *Handler) allowed(root string) bool {
	if h.allowedRoot == "" {
		return true
	}
	path, err := filepath.Abs(root)
	if err != nil {
		return false
	}
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		path = resolved
	}
	rel, err := filepath.Rel(h.allowedRoot, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (h *Handler) executeSearchJob(job Job) workerpool.TaskFunc[struct{}] {
	return func(ctx context.Context) (struct{}, error) {
		defer h.running.Done()

		job.Start()
		h.saveJob(job)

		report, err := h.searcher.Search(ctx, job.Root, job.Keyword)
		if err != nil {
			h.logger.Error("Search job failed", zap.String("job_id", job.ID), zap.Error(err))
			job.Fail(err)
			h.saveJob(job)
			return struct{}{}, err
		}

		job.Complete(report)
		h.saveJob(job)
		h.logger.Info("Search job completed",
			zap.String("job_id", job.ID),
			zap.Int("count", report.Count),
			zap.Int("errors", len(report.Errors)),
			zap.Duration("duration", report.Duration))
		return struct{}{}, nil
	}
}

// Wait blocks until every accepted search job has finished. Child tasks of a
// running job still need the pool, so the pool must only be stopped after
// Wait returns.
func (h *Handler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.running.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Handler) saveJob(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.store.Save(ctx, job); err != nil {
		h.logger.Error("Failed to store job", zap.String("job_id", job.ID), zap.String("status", string(job.Status)), zap.Error(err))
	}
}

func (h *Handler) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	job, err := h.store.Load(r.Context(), id)
	if errors.Is(err, ErrJobNotFound) {
		writeError(w, "Job not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("Failed to load job", zap.String("job_id", id), zap.Error(err))
		writeError(w, "Failed to load job", http.StatusInternalServerError)
		return
	}
	writeJSON(w, job)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := h.workerPool.GetStats()
	status := "healthy"
	if !stats.IsRunning {
		status = "stopping"
	}

	build := h.versionInfo
	build.GoVersion = runtime.Version()
	build.Platform = runtime.GOOS + "/" + runtime.GOARCH

	writeJSON(w, HealthResponse{
		Status: status,
		Build:  build,
		WorkerPool: WorkerPoolStatus{
			Workers:        stats.Workers,
			IdleWorkers:    stats.IdleWorkers,
			ActiveTasks:    stats.ActiveTasks,
			PeakWorkers:    stats.PeakWorkers,
			PeakActive:     stats.PeakActive,
			MaxWorkers:     stats.MaxWorkers,
			TotalTasks:     stats.TotalTasks,
			CompletedTasks: stats.CompletedTasks,
			FailedTasks:    stats.FailedTasks,
			QueueLength:    stats.QueueLength,
			IsRunning:      stats.IsRunning,
			Uptime:         stats.Uptime.Round(time.Second).String(),
		},
	})
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(MessageResponse{
		Status:  code,
		Message: message,
	}); err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
