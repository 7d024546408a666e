package api

import (
	"time"

	"github.com/NamiraNet/matchcounter/internal/search"
	"github.com/google/uuid"
)

type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Job is a snapshot of one search submitted over the API. The result is only
// set once the whole tree has been counted.
type Job struct {
	ID        string          `json:"id"`
	Status    JobStatus       `json:"status"`
	Root      string          `json:"root"`
	Keyword   string          `json:"keyword"`
	Result    *search.Summary `json:"result,omitempty"`
	StartTime *time.Time      `json:"start_time,omitempty"`
	EndTime   *time.Time      `json:"end_time,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	Error     string          `json:"error,omitempty"`
}

type MessageResponse struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

type SearchRequest struct {
	Root    string `json:"root"`
	Keyword string `json:"keyword"`
}

type SearchResponse struct {
	JobID string `json:"job_id"`
}

type WorkerPoolStatus struct {
	Workers        int    `json:"workers"`
	IdleWorkers    int    `json:"idle_workers"`
	ActiveTasks    int    `json:"active_tasks"`
	PeakWorkers    int    `json:"peak_workers"`
	PeakActive     int    `json:"peak_active"`
	MaxWorkers     int    `json:"max_workers"`
	TotalTasks     int64  `json:"total_tasks"`
	CompletedTasks int64  `json:"completed_tasks"`
	FailedTasks    int64  `json:"failed_tasks"`
	QueueLength    int    `json:"queue_length"`
	IsRunning      bool   `json:"is_running"`
	Uptime         string `json:"uptime"`
}

type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

type HealthResponse struct {
	Status     string           `json:"status"`
	Build      VersionInfo      `json:"build"`
	WorkerPool WorkerPoolStatus `json:"worker_pool"`
}

func NewJob(root, keyword string) Job {
	return Job{
		ID:        uuid.NewString(),
		Status:    JobStatusPending,
		Root:      root,
		Keyword:   keyword,
		CreatedAt: time.Now(),
	}
}

func (j *Job) Start() {
	now := time.Now()
	j.Status = JobStatusRunning
	j.StartTime = &now
}

func (j *Job) Complete(report *search.Report) {
	now := time.Now()
	summary := report.Summary()
	j.Status = JobStatusCompleted
	j.Result = &summary
	j.EndTime = &now
}

func (j *Job) Fail(err error) {
	now := time.Now()
	j.Status = JobStatusFailed
	j.Error = err.Error()
	j.EndTime = &now
}

func (j Job) Done() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}
