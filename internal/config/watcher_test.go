package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func startWatcher(t *testing.T, path string) *Watcher {
	t.Helper()
	w := NewWatcher(path, Default(), zap.NewNop())
	w.debounce = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	// Let the watcher register the directory before writing.
	time.Sleep(100 * time.Millisecond)
	return w
}

func TestWatcher_DeliversChangedConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	w := startWatcher(t, path)

	require.NoError(t, os.WriteFile(path, []byte("presence:\n  show_status: true\n"), 0600))

	select {
	case cfg := <-w.Updates():
		assert.True(t, cfg.Presence.ShowStatus)
	case <-time.After(5 * time.Second):
		t.Fatal("no config update delivered")
	}
}

func TestWatcher_SkipsInvalidAndUnchanged(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	w := startWatcher(t, path)

	require.NoError(t, os.WriteFile(path, []byte("presence: ["), 0600))
	time.Sleep(200 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("transport:\n  mode: log\n"), 0600))
	time.Sleep(200 * time.Millisecond)

	select {
	case cfg := <-w.Updates():
		assert.Equal(t, TransportLog, cfg.Transport.Mode)
	case <-time.After(5 * time.Second):
		t.Fatal("no config update delivered")
	}

	// Rewriting identical content delivers nothing.
	require.NoError(t, os.WriteFile(path, []byte("transport:\n  mode: log\n"), 0600))
	select {
	case cfg := <-w.Updates():
		t.Fatalf("unexpected update: %+v", cfg)
	case <-time.After(300 * time.Millisecond):
	}
}
