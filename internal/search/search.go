package search

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	workerpool "github.com/NamiraNet/matchcounter/internal/worker"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

type Options struct {
	// FollowSymlinks descends into linked directories and reads linked files.
	// Directories are deduplicated by real path, so link cycles terminate.
	FollowSymlinks bool
	// MaxOpenFiles bounds concurrent file reads across all tasks. Zero derives
	// the bound from the process descriptor limit.
	MaxOpenFiles int64
	MaxLineBytes int
	Logger       *zap.Logger
	Observer     Observer
}

// Searcher counts files containing a keyword, fanning the directory tree out
// over a shared worker pool. The pool is borrowed, not owned.
type Searcher struct {
	pool   *workerpool.WorkerPool
	opts   Options
	logger *zap.Logger
	files  *semaphore.Weighted
}

func NewSearcher(pool *workerpool.WorkerPool, opts Options) *Searcher {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Observer == nil {
		opts.Observer = MultiObserver()
	}
	if opts.MaxOpenFiles <= 0 {
		opts.MaxOpenFiles = DefaultMaxOpenFiles()
	}
	if opts.MaxLineBytes <= 0 {
		opts.MaxLineBytes = DefaultMaxLineBytes
	}

	return &Searcher{
		pool:   pool,
		opts:   opts,
		logger: opts.Logger,
		files:  semaphore.NewWeighted(opts.MaxOpenFiles),
	}
}

// DefaultMaxOpenFiles leaves half of the descriptor limit to the rest of the
// process.
func DefaultMaxOpenFiles() int64 {
	return int64(max(getSystemFDLimit()/2, 16))
}

// ValidateRoot resolves root to an absolute directory path.
func ValidateRoot(root string) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("failed to resolve root %q: %w", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("failed to access root: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrNotDirectory, abs)
	}
	return abs, nil
}

// Search submits the root directory task and blocks until the whole tree has
// been counted. Listing and read failures are absorbed into the report; only
// structural failures, such as a stopped pool, are returned as errors.
func (s *Searcher) Search(ctx context.Context, root, keyword string) (*Report, error) {
	if keyword == "" {
		return nil, ErrEmptyKeyword
	}
	abs, err := ValidateRoot(root)
	if err != nil {
		return nil, err
	}

	report := &Report{
		Root:      abs,
		Keyword:   keyword,
		StartedAt: time.Now(),
	}
	r := &run{
		searcher: s,
		keyword:  keyword,
		recorder: &recorder{
			keyword:  keyword,
			logger:   s.logger,
			observer: s.opts.Observer,
		},
		visited: &sync.Map{},
		files:   &sync.Map{},
	}

	s.logger.Debug("search started",
		zap.String("root", abs),
		zap.String("keyword", keyword),
		zap.Bool("follow_symlinks", s.opts.FollowSymlinks))

	h, err := r.submit(ctx, abs)
	if err != nil {
		return nil, fmt.Errorf("failed to submit root task: %w", err)
	}

	count, err := h.Await(ctx)
	if err != nil {
		if !IsAbsorbed(err) {
			return nil, fmt.Errorf("search of %s failed: %w", abs, err)
		}
		r.recorder.absorb(err)
		count = 0
	}

	report.Count = count
	report.Duration = time.Since(report.StartedAt)
	r.recorder.fill(report)

	stats := s.pool.GetStats()
	report.PeakWorkers = stats.PeakWorkers
	report.PeakActive = stats.PeakActive

	s.logger.Debug("search completed",
		zap.String("root", abs),
		zap.Int("count", report.Count),
		zap.Int("errors", len(report.Errors)),
		zap.Duration("duration", report.Duration))

	return report, nil
}
