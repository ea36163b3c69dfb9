package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSyncWatcher_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sync.yaml")
	require.NoError(t, os.WriteFile(path, []byte("motorA:\n  - In\n"), 0o644))

	w, err := NewSyncWatcher(path, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	results := make(chan map[string][]string, 4)
	go w.Watch(ctx, func(sync map[string][]string) {
		results <- sync
	})

	require.NoError(t, os.WriteFile(path, []byte("motorA:\n  - In\n  - Out\n"), 0o644))

	select {
	case sync := <-results:
		require.ElementsMatch(t, []string{"In", "Out"}, sync["motorA"])
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not observe the rewritten sync file")
	}
}

func TestSyncWatcher_IgnoresUnrelatedFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sync.yaml")
	require.NoError(t, os.WriteFile(path, []byte("motorA:\n  - In\n"), 0o644))

	w, err := NewSyncWatcher(path, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	results := make(chan map[string][]string, 4)
	go w.Watch(ctx, func(sync map[string][]string) {
		results <- sync
	})

	require.NoError(t, os.WriteFile(filepath.Join(dir, "unrelated.yaml"), []byte("x: 1\n"), 0o644))

	select {
	case sync := <-results:
		t.Fatalf("watcher fired on unrelated file: %v", sync)
	case <-time.After(300 * time.Millisecond):
	}
}
