package metrics

import (
	"errors"

	"github.com/NamiraNet/matchcounter/internal/search"
	workerpool "github.com/NamiraNet/matchcounter/internal/worker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "matchcounter"

// Metrics records search progress and pool task outcomes. It implements
// search.Observer and can be installed as a pool result handler.
type Metrics struct {
	DirectoriesScanned prometheus.Counter
	FilesScanned       prometheus.Counter
	FilesMatched       prometheus.Counter
	AbsorbedErrors     *prometheus.CounterVec
	TasksTotal         *prometheus.CounterVec
	TaskDuration       prometheus.Histogram
}

var _ search.Observer = (*Metrics)(nil)

func New(registerer prometheus.Registerer) *Metrics {
	f := promauto.With(registerer)
	return &Metrics{
		DirectoriesScanned: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "directories_scanned_total",
			Help:      "Directories listed by search tasks.",
		}),
		FilesScanned: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_scanned_total",
			Help:      "Regular files searched for a keyword.",
		}),
		FilesMatched: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_matched_total",
			Help:      "Files containing the searched keyword.",
		}),
		AbsorbedErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "absorbed_errors_total",
			Help:      "I/O failures counted as zero contribution.",
		}, []string{"kind"}),
		TasksTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pool_tasks_total",
			Help:      "Tasks executed by the worker pool.",
		}, []string{"status"}),
		TaskDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pool_task_duration_seconds",
			Help:      "Wall time of pool tasks, including time spent awaiting children.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
		}),
	}
}

func (m *Metrics) DirectoryScanned(string) {
	m.DirectoriesScanned.Inc()
}

func (m *Metrics) FileScanned(_ string, matched bool) {
	m.FilesScanned.Inc()
	if matched {
		m.FilesMatched.Inc()
	}
}

func (m *Metrics) ErrorAbsorbed(err error) {
	m.AbsorbedErrors.WithLabelValues(errorKind(err)).Inc()
}

// ObserveTask is a workerpool result handler.
func (m *Metrics) ObserveTask(r workerpool.Result) {
	status := "completed"
	if r.Error != nil {
		status = "failed"
	}
	m.TasksTotal.WithLabelValues(status).Inc()
	m.TaskDuration.Observe(r.Duration.Seconds())
}

func errorKind(err error) string {
	var listErr *search.ListingError
	var readErr *search.FileReadError
	switch {
	case errors.As(err, &listErr):
		return "listing"
	case errors.As(err, &readErr):
		return "read"
	default:
		return "other"
	}
}

// RegisterPool exposes live pool statistics as gauges read at scrape time.
func RegisterPool(registerer prometheus.Registerer, pool *workerpool.WorkerPool) {
	f := promauto.With(registerer)
	gauge := func(name, help string, value func(workerpool.WorkerPoolStats) float64) {
		f.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      name,
			Help:      help,
		}, func() float64 { return value(pool.GetStats()) })
	}

	gauge("workers", "Live worker goroutines.", func(s workerpool.WorkerPoolStats) float64 { return float64(s.Workers) })
	gauge("idle_workers", "Workers parked waiting for work.", func(s workerpool.WorkerPoolStats) float64 { return float64(s.IdleWorkers) })
	gauge("active_tasks", "Tasks currently executing.", func(s workerpool.WorkerPoolStats) float64 { return float64(s.ActiveTasks) })
	gauge("peak_workers", "Largest number of workers alive at once.", func(s workerpool.WorkerPoolStats) float64 { return float64(s.PeakWorkers) })
	gauge("peak_active_tasks", "Largest number of tasks executing at once.", func(s workerpool.WorkerPoolStats) float64 { return float64(s.PeakActive) })
	gauge("queue_length", "Tasks waiting for a worker.", func(s workerpool.WorkerPoolStats) float64 { return float64(s.QueueLength) })
}
