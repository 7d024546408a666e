package search

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	workerpool "github.com/NamiraNet/matchcounter/internal/worker"
	"go.uber.org/zap"
)

// run is the state shared by every task of one search: configuration and
// observability sinks, never the counts themselves.
type run struct {
	searcher *Searcher
	keyword  string
	recorder *recorder
	visited  *sync.Map
	files    *sync.Map
}

// dirTask searches one directory and, through the pool, all directories
// below it.
type dirTask struct {
	run  *run
	path string
}

func (r *run) newTask(path string) *dirTask {
	return &dirTask{run: r, path: path}
}

func (r *run) submit(ctx context.Context, path string) (*workerpool.Handle[int], error) {
	task := r.newTask(path)
	return workerpool.Submit(ctx, r.searcher.pool, "search "+path, task.execute)
}

func (t *dirTask) execute(ctx context.Context) (int, error) {
	s := t.run.searcher

	if s.opts.FollowSymlinks {
		resolved, err := filepath.EvalSymlinks(t.path)
		if err != nil {
			return 0, &ListingError{Path: t.path, Err: err}
		}
		if _, seen := t.run.visited.LoadOrStore(resolved, struct{}{}); seen {
			t.run.recorder.skip(t.path, "already visited")
			return 0, nil
		}
	}

	entries, err := os.ReadDir(t.path)
	if err != nil {
		return 0, &ListingError{Path: t.path, Err: err}
	}
	t.run.recorder.directory(t.path)

	count := 0
	var (
		handles    []*workerpool.Handle[int]
		structural error
	)

	for _, entry := range entries {
		path := filepath.Join(t.path, entry.Name())
		kind := entry.Type()

		if kind&fs.ModeSymlink != 0 {
			if !s.opts.FollowSymlinks {
				t.run.recorder.skip(path, "symlink")
				continue
			}
			info, err := os.Stat(path)
			if err != nil {
				t.run.recorder.absorb(&FileReadError{Path: path, Err: err})
				continue
			}
			kind = info.Mode().Type()
		}

		switch {
		case kind.IsDir():
			if structural != nil {
				continue
			}
			h, err := t.run.submit(ctx, path)
			if err != nil {
				structural = err
				s.logger.Error("failed to submit directory task",
					zap.String("path", path), zap.Error(err))
				continue
			}
			handles = append(handles, h)

		case kind.IsRegular():
			if s.opts.FollowSymlinks && !t.run.firstVisit(path) {
				continue
			}
			matched, err := t.searchFile(ctx, path)
			if err != nil {
				if !IsAbsorbed(err) {
					if structural == nil {
						structural = err
					}
					continue
				}
				t.run.recorder.absorb(err)
			}
			t.run.recorder.file(path, matched)
			if matched {
				count++
			}

		default:
			t.run.recorder.skip(path, "not a regular file")
		}
	}

	for _, h := range handles {
		n, err := h.Await(ctx)
		if err != nil {
			if IsAbsorbed(err) {
				t.run.recorder.absorb(err)
				continue
			}
			if structural == nil {
				structural = err
			}
			continue
		}
		count += n
	}

	if structural != nil {
		return 0, structural
	}
	return count, nil
}

// firstVisit reports whether the file behind path has not been searched yet
// in this run. Links and their targets resolve to the same real path.
func (r *run) firstVisit(path string) bool {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		// Let the read surface the error.
		return true
	}
	if _, seen := r.files.LoadOrStore(resolved, struct{}{}); seen {
		r.recorder.skip(path, "already searched")
		return false
	}
	return true
}

func (t *dirTask) searchFile(ctx context.Context, path string) (bool, error) {
	s := t.run.searcher
	if err := s.files.Acquire(ctx, 1); err != nil {
		return false, err
	}
	defer s.files.Release(1)

	return containsKeyword(path, t.run.keyword, s.opts.MaxLineBytes)
}
