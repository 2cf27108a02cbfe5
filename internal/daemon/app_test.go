// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package daemon

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/streamrec/internal/config"
)

func writeConfig(t *testing.T, path string, cfg config.AppConfig) {
	t.Helper()
	require.NoError(t, config.Save(path, cfg))
}

func getStatus(t *testing.T, a *App) StatusResponse {
	t.Helper()
	resp, err := http.Get("http://" + a.Server().Addr().String() + "/status")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var sr StatusResponse
	require.NoError(t, json.Unmarshal(b, &sr))
	return sr
}

func TestApp_RunReloadAndShutdown(t *testing.T) {
	origin := httptest.NewServer(http.NotFoundHandler())
	defer origin.Close()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	cfg := config.Defaults()
	cfg.DataDir = filepath.Join(dir, "data")
	cfg.Metrics.ListenAddr = "127.0.0.1:0"
	cfg.Streamers = []config.StreamerConfig{{Name: "alice", URL: origin.URL + "/alice"}}
	writeConfig(t, path, cfg)

	loader := config.NewLoader(path, "test")
	loaded, err := loader.Load()
	require.NoError(t, err)
	holder := config.NewConfigHolder(loaded, loader)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a, err := New(ctx, holder, Options{Version: "test", LogOutput: io.Discard})
	require.NoError(t, err)
	require.NotNil(t, a.store)

	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool { return a.Server().Addr() != nil }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return getStatus(t, a).Active == 1 }, 3*time.Second, 20*time.Millisecond)

	sr := getStatus(t, a)
	require.Len(t, sr.Platforms[config.DefaultPlatform], 1)
	assert.Equal(t, "alice", sr.Platforms[config.DefaultPlatform][0].Streamer.Name)

	url := origin.URL + "/alice"
	require.Eventually(t, func() bool {
		_, err := a.store.Streamer(context.Background(), url)
		return err == nil
	}, 3*time.Second, 20*time.Millisecond)

	cfg.Streamers = nil
	writeConfig(t, path, cfg)
	require.NoError(t, holder.Reload(context.Background()))
	require.Eventually(t, func() bool { return getStatus(t, a).Active == 0 }, 3*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("app did not stop")
	}
}

func TestNew_InvalidEngine(t *testing.T) {
	cfg := config.Defaults()
	cfg.DataDir = t.TempDir()
	cfg.Store.Path = ""
	cfg.Download.Engine = "bogus"
	holder := config.NewConfigHolder(cfg, config.NewLoader("", "test"))

	_, err := New(context.Background(), holder, Options{})
	assert.Error(t, err)
}
