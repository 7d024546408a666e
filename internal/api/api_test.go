package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/NamiraNet/matchcounter/internal/search"
	workerpool "github.com/NamiraNet/matchcounter/internal/worker"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/time/rate"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type testServer struct {
	handler *Handler
	router  http.Handler
	store   *MemoryJobStore
	pool    *workerpool.WorkerPool
}

func newTestServer(t *testing.T, limiter *rate.Limiter, gatherer prometheus.Gatherer, allowedRoot string) *testServer {
	t.Helper()
	pool := workerpool.NewWorkerPool(workerpool.WorkerPoolConfig{MaxWorkers: 2, IdleTimeout: time.Second})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, pool.Stop(ctx))
	})

	store := NewMemoryJobStore()
	searcher := search.NewSearcher(pool, search.Options{MaxOpenFiles: 4})
	h := NewHandler(searcher, pool, store, limiter, allowedRoot, nil, VersionInfo{Version: "test"})
	return &testServer{handler: h, router: NewRouter(h, gatherer), store: store, pool: pool}
}

func (s *testServer) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) submit(t *testing.T, root, keyword string) string {
	t.Helper()
	body, err := json.Marshal(SearchRequest{Root: root, Keyword: keyword})
	require.NoError(t, err)

	rec := s.do(http.MethodPost, "/search", string(body))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var resp SearchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.JobID)
	return resp.JobID
}

func (s *testServer) waitJob(t *testing.T, id string) Job {
	t.Helper()
	var job Job
	require.Eventually(t, func() bool {
		rec := s.do(http.MethodGet, "/job/"+id, "")
		if rec.Code != http.StatusOK {
			return false
		}
		job = Job{}
		return json.Unmarshal(rec.Body.Bytes(), &job) == nil && job.Done()
	}, 5*time.Second, 10*time.Millisecond)
	return job
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestSearchJobCompletes(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "private volatile int x;\n")
	writeFile(t, filepath.Join(root, "sub", "b.txt"), "nothing here\n")
	writeFile(t, filepath.Join(root, "sub", "deeper", "c.txt"), "line one\nvolatile\n")

	s := newTestServer(t, nil, nil, "")
	id := s.submit(t, root, "volatile")

	job := s.waitJob(t, id)
	assert.Equal(t, JobStatusCompleted, job.Status)
	require.NotNil(t, job.Result)
	assert.Equal(t, 2, job.Result.Count)
	assert.Equal(t, int64(3), job.Result.FilesScanned)
	assert.Empty(t, job.Error)
	assert.NotNil(t, job.StartTime)
	assert.NotNil(t, job.EndTime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.handler.Wait(ctx))
}

func TestSearchRequestValidation(t *testing.T) {
	s := newTestServer(t, nil, nil, "")
	root := t.TempDir()
	file := filepath.Join(root, "f.txt")
	writeFile(t, file, "x")

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", "{"},
		{"empty keyword", `{"root":"` + root + `","keyword":""}`},
		{"missing root", `{"root":"` + filepath.Join(root, "nope") + `","keyword":"x"}`},
		{"root is a file", `{"root":"` + file + `","keyword":"x"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(http.MethodPost, "/search", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var msg MessageResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msg))
			assert.Equal(t, http.StatusBadRequest, msg.Status)
		})
	}
	assert.Equal(t, int64(0), s.pool.GetStats().TotalTasks)
}

func TestSearchRateLimit(t *testing.T) {
	s := newTestServer(t, rate.NewLimiter(0, 1), nil, "")
	root := t.TempDir()

	// Rejected requests do not spend the single token.
	rec := s.do(http.MethodPost, "/search", "{")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = s.do(http.MethodPost, "/search", `{"root":"`+filepath.Join(root, "nope")+`","keyword":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	id := s.submit(t, root, "x")
	rec = s.do(http.MethodPost, "/search", `{"root":"`+root+`","keyword":"x"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	s.waitJob(t, id)
}

func TestSearchAllowedRoot(t *testing.T) {
	base := t.TempDir()
	allowed := filepath.Join(base, "allowed")
	writeFile(t, filepath.Join(allowed, "sub", "a.txt"), "secret\n")
	writeFile(t, filepath.Join(base, "private", "b.txt"), "secret\n")
	escape := filepath.Join(allowed, "escape")
	if err := os.Symlink(filepath.Join(base, "private"), escape); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	s := newTestServer(t, nil, nil, allowed)

	tests := []struct {
		name string
		root string
		code int
	}{
		{"allowed root", allowed, http.StatusAccepted},
		{"below allowed root", filepath.Join(allowed, "sub"), http.StatusAccepted},
		{"sibling tree", filepath.Join(base, "private"), http.StatusForbidden},
		{"parent", base, http.StatusForbidden},
		{"dot-dot escape", filepath.Join(allowed, "..", "private"), http.StatusForbidden},
		{"symlink escape", escape, http.StatusForbidden},
		{"missing outside", filepath.Join(base, "nope"), http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, err := json.Marshal(SearchRequest{Root: tt.root, Keyword: "secret"})
			require.NoError(t, err)
			rec := s.do(http.MethodPost, "/search", string(body))
			require.Equal(t, tt.code, rec.Code, rec.Body.String())

			if tt.code == http.StatusAccepted {
				var resp SearchResponse
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
				s.waitJob(t, resp.JobID)
			}
		})
	}
}

func TestSearchOnStoppedPool(t *testing.T) {
	s := newTestServer(t, nil, nil, "")
	s.pool.Shutdown()

	rec := s.do(http.MethodPost, "/search", `{"root":"`+t.TempDir()+`","keyword":"x"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestJobNotFound(t *testing.T) {
	s := newTestServer(t, nil, nil, "")
	rec := s.do(http.MethodGet, "/job/does-not-exist", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil, nil, "")
	rec := s.do(http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var health HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "test", health.Build.Version)
	assert.NotEmpty(t, health.Build.GoVersion)
	assert.Equal(t, 2, health.WorkerPool.MaxWorkers)
	assert.True(t, health.WorkerPool.IsRunning)
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, nil, nil, "")
	rec := s.do(http.MethodOptions, "/search", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsRoute(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "matchcounter_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	s := newTestServer(t, nil, reg, "")
	rec := s.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "matchcounter_test_total 1")

	without := newTestServer(t, nil, nil, "")
	assert.Equal(t, http.StatusNotFound, without.do(http.MethodGet, "/metrics", "").Code)
}

func TestMemoryJobStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryJobStore()

	_, err := store.Load(ctx, "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)

	job := NewJob("/src", "volatile")
	require.NoError(t, store.Save(ctx, job))

	job.Start()
	loaded, err := store.Load(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusPending, loaded.Status, "stored snapshots are copies")

	require.NoError(t, store.Save(ctx, job))
	loaded, err = store.Load(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusRunning, loaded.Status)
}

func TestRedisJobStoreUnavailable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	store := NewRedisJobStore(client, time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := store.Save(ctx, NewJob("/src", "volatile"))
	assert.Error(t, err)
	_, err = store.Load(ctx, "anything")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrJobNotFound)
}

func TestJobLifecycle(t *testing.T) {
	job := NewJob("/src", "volatile")
	assert.Equal(t, JobStatusPending, job.Status)
	assert.False(t, job.Done())

	job.Start()
	assert.Equal(t, JobStatusRunning, job.Status)

	job.Complete(&search.Report{Root: "/src", Keyword: "volatile", Count: 3})
	assert.True(t, job.Done())
	require.NotNil(t, job.Result)
	assert.Equal(t, 3, job.Result.Count)

	failed := NewJob("/src", "volatile")
	failed.Fail(workerpool.ErrWorkerPoolStopped)
	assert.Equal(t, JobStatusFailed, failed.Status)
	assert.Equal(t, workerpool.ErrWorkerPoolStopped.Error(), failed.Error)
}
