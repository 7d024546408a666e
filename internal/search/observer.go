package search

import (
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Observer receives progress events from a running search. Implementations
// must be safe for concurrent use; events arrive from many workers at once.
type Observer interface {
	DirectoryScanned(path string)
	FileScanned(path string, matched bool)
	ErrorAbsorbed(err error)
}

type multiObserver []Observer

// MultiObserver fans events out to every non-nil observer.
func MultiObserver(observers ...Observer) Observer {
	var m multiObserver
	for _, o := range observers {
		if o != nil {
			m = append(m, o)
		}
	}
	return m
}

func (m multiObserver) DirectoryScanned(path string) {
	for _, o := range m {
		o.DirectoryScanned(path)
	}
}

func (m multiObserver) FileScanned(path string, matched bool) {
	for _, o := range m {
		o.FileScanned(path, matched)
	}
}

func (m multiObserver) ErrorAbsorbed(err error) {
	for _, o := range m {
		o.ErrorAbsorbed(err)
	}
}

// recorder collects what a single search run reports back to its caller.
type recorder struct {
	keyword  string
	logger   *zap.Logger
	observer Observer

	mu           sync.Mutex
	matches      []string
	errors       []error
	filesScanned int64
	dirsScanned  int64
	skipped      int64
}

func (r *recorder) directory(path string) {
	r.mu.Lock()
	r.dirsScanned++
	r.mu.Unlock()
	r.observer.DirectoryScanned(path)
}

func (r *recorder) file(path string, matched bool) {
	r.mu.Lock()
	r.filesScanned++
	if matched {
		r.matches = append(r.matches, path)
	}
	r.mu.Unlock()

	if matched {
		r.logger.Info("keyword found",
			zap.String("keyword", r.keyword),
			zap.String("path", path))
	}
	r.observer.FileScanned(path, matched)
}

func (r *recorder) skip(path, reason string) {
	r.mu.Lock()
	r.skipped++
	r.mu.Unlock()
	r.logger.Debug("entry skipped", zap.String("path", path), zap.String("reason", reason))
}

func (r *recorder) absorb(err error) {
	r.mu.Lock()
	r.errors = append(r.errors, err)
	r.mu.Unlock()

	r.logger.Warn("search error absorbed", zap.Error(err))
	r.observer.ErrorAbsorbed(err)
}

func (r *recorder) fill(report *Report) {
	r.mu.Lock()
	defer r.mu.Unlock()

	report.Matches = append([]string(nil), r.matches...)
	sort.Strings(report.Matches)
	report.Errors = append([]error(nil), r.errors...)
	report.FilesScanned = r.filesScanned
	report.DirsScanned = r.dirsScanned
	report.Skipped = r.skipped
}
