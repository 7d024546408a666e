package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"WORKER_MAX", "SEARCH_FOLLOW_SYMLINKS", "REDIS_ADDR", "LOG_LEVEL", "SERVER_PORT"} {
		t.Setenv(key, "")
	}

	cfg := Load()

	assert.Equal(t, 0, cfg.Worker.MaxWorkers)
	assert.Equal(t, 60*time.Second, cfg.Worker.IdleTimeout)
	assert.False(t, cfg.Search.FollowSymlinks)
	assert.Equal(t, 1<<20, cfg.Search.MaxLineBytes)
	assert.Empty(t, cfg.Redis.Addr)
	assert.Equal(t, 30*time.Minute, cfg.Redis.ResultTTL)
	assert.Equal(t, "info", cfg.App.LogLevel)
	assert.Equal(t, "8080", cfg.Server.Port)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("WORKER_MAX", "4")
	t.Setenv("WORKER_IDLE_TIMEOUT", "5s")
	t.Setenv("SEARCH_ROOT", "/src")
	t.Setenv("SEARCH_KEYWORD", "volatile")
	t.Setenv("SEARCH_FOLLOW_SYMLINKS", "true")
	t.Setenv("SEARCH_MAX_OPEN_FILES", "64")
	t.Setenv("API_RATE_LIMIT", "2.5")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("API_ALLOWED_ROOT", "/srv/shared")

	cfg := Load()

	assert.Equal(t, 4, cfg.Worker.MaxWorkers)
	assert.Equal(t, 5*time.Second, cfg.Worker.IdleTimeout)
	assert.Equal(t, "/src", cfg.Search.Root)
	assert.Equal(t, "volatile", cfg.Search.Keyword)
	assert.True(t, cfg.Search.FollowSymlinks)
	assert.Equal(t, int64(64), cfg.Search.MaxOpenFiles)
	assert.InDelta(t, 2.5, cfg.API.RateLimit, 1e-9)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "/srv/shared", cfg.API.AllowedRoot)
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("WORKER_MAX", "many")
	t.Setenv("WORKER_IDLE_TIMEOUT", "soon")
	t.Setenv("SEARCH_FOLLOW_SYMLINKS", "perhaps")

	cfg := Load()

	assert.Equal(t, 0, cfg.Worker.MaxWorkers)
	assert.Equal(t, 60*time.Second, cfg.Worker.IdleTimeout)
	assert.False(t, cfg.Search.FollowSymlinks)
}
