package metrics

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/NamiraNet/matchcounter/internal/search"
	workerpool "github.com/NamiraNet/matchcounter/internal/worker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserverCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.DirectoryScanned("/a")
	m.FileScanned("/a/x", true)
	m.FileScanned("/a/y", false)
	m.ErrorAbsorbed(&search.ListingError{Path: "/a/b", Err: os.ErrPermission})
	m.ErrorAbsorbed(&search.FileReadError{Path: "/a/z", Err: os.ErrNotExist})
	m.ErrorAbsorbed(errors.New("odd"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.DirectoriesScanned))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.FilesScanned))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FilesMatched))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AbsorbedErrors.WithLabelValues("listing")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AbsorbedErrors.WithLabelValues("read")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AbsorbedErrors.WithLabelValues("other")))
}

func TestPoolMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	pool := workerpool.NewWorkerPool(workerpool.WorkerPoolConfig{}, workerpool.WithResultHandler(m.ObserveTask))
	RegisterPool(reg, pool)

	ok, err := workerpool.Submit(context.Background(), pool, "ok", func(ctx context.Context) (int, error) { return 1, nil })
	require.NoError(t, err)
	bad, err := workerpool.Submit(context.Background(), pool, "bad", func(ctx context.Context) (int, error) {
		return 0, errors.New("bad")
	})
	require.NoError(t, err)
	_, _ = ok.Await(context.Background())
	_, _ = bad.Await(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, pool.Stop(ctx))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.TasksTotal.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TasksTotal.WithLabelValues("failed")))

	families, err := reg.Gather()
	require.NoError(t, err)
	values := map[string]float64{}
	for _, mf := range families {
		if mf.GetMetric()[0].GetGauge() != nil {
			values[mf.GetName()] = mf.GetMetric()[0].GetGauge().GetValue()
		}
	}
	assert.GreaterOrEqual(t, values["matchcounter_pool_peak_workers"], 1.0)
	assert.Equal(t, 0.0, values["matchcounter_pool_workers"])
	assert.Equal(t, 0.0, values["matchcounter_pool_queue_length"])
}
