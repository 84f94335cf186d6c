package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/a3tai/pdf-field-builder/internal/config"
	"github.com/a3tai/pdf-field-builder/internal/document"
)

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	original := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w
	defer func() { os.Stdout = original }()

	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
		w.Close()
	}()

	var buf bytes.Buffer
	_, _ = io.Copy(&buf, r)
	<-done
	return buf.String()
}

func TestPrintVersion(t *testing.T) {
	oldVersion, oldBuildTime, oldGitCommit := version, buildTime, gitCommit
	defer func() { version, buildTime, gitCommit = oldVersion, oldBuildTime, oldGitCommit }()

	version = "1.2.3"
	buildTime = "2026-01-15_10:30:00"
	gitCommit = "abc123"

	output := captureStdout(t, printVersion)
	for _, expected := range []string{
		"PDF Field Builder",
		"Version: 1.2.3",
		"Build Time: 2026-01-15_10:30:00",
		"Git Commit: abc123",
		"Built with:",
	} {
		assert.Contains(t, output, expected)
	}
}

func TestNewCache(t *testing.T) {
	cfg := config.DefaultConfig()

	cache, closer := newCache(cfg)
	assert.IsType(t, &document.MemoryCache{}, cache)
	assert.Nil(t, closer)

	cfg.Cache = config.CacheNone
	cache, closer = newCache(cfg)
	assert.Nil(t, cache)
	assert.Nil(t, closer)

	// The Redis client connects lazily, so no server is needed here.
	cfg.Cache = config.CacheRedis
	cache, closer = newCache(cfg)
	assert.IsType(t, &document.RedisCache{}, cache)
	require.NotNil(t, closer)
	assert.NoError(t, closer.Close())
}

func TestNewManager(t *testing.T) {
	cfg := config.DefaultConfig()

	manager, err := newManager(cfg, nil, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 0, manager.Len())

	cfg.APIURL = "://bad"
	_, err = newManager(cfg, nil, zap.NewNop())
	assert.Error(t, err)
}

func TestRun_ServerModeStopsOnCancel(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Mode = config.ModeServer
	cfg.Port = 0

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- run(ctx, cfg, zap.NewNop()) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancel")
	}
}
