package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/contract-analyzer/internal/service"
)

type fakeSubmitter struct {
	mu   sync.Mutex
	reqs []service.SubmitRequest
	err  error
}

func (f *fakeSubmitter) Submit(_ context.Context, req service.SubmitRequest) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return uuid.Nil, f.err
	}
	f.reqs = append(f.reqs, req)
	return uuid.New(), nil
}

func (f *fakeSubmitter) filenames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var names []string
	for _, r := range f.reqs {
		names = append(names, r.Filename)
	}
	sort.Strings(names)
	return names
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestIngestDirectory(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "msa.txt"), "master services agreement")
	writeFile(t, filepath.Join(root, "nested", "nda.pdf"), "%PDF-1.4 fake")
	writeFile(t, filepath.Join(root, "nested", "copy.txt"), "master services agreement")
	writeFile(t, filepath.Join(root, ".drafts", "draft.txt"), "draft")
	writeFile(t, filepath.Join(root, "notes.exe"), "binary")

	sub := &fakeSubmitter{}
	ing := NewIngestor(sub, "inbox", 1<<20, nil)

	results, stats, err := ing.IngestDirectory(context.Background(), root, true)
	require.NoError(t, err)
	assert.Len(t, results, 3)
	assert.Equal(t, uint32(3), stats.Matched)
	assert.Equal(t, uint32(3), stats.Succeeded)
	assert.Equal(t, uint32(1), stats.Deduplicated)
	assert.Zero(t, stats.Failed)
	assert.Len(t, sub.filenames(), 2, "identical content is submitted once")
	for _, r := range sub.reqs {
		assert.Equal(t, "inbox", r.OwnerRef)
	}
}

func TestIngestDirectoryRecordsFailures(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "a")
	writeFile(t, filepath.Join(root, "b.txt"), "b")

	ing := NewIngestor(&fakeSubmitter{err: errors.New("queue closed")}, "inbox", 0, nil)
	results, stats, err := ing.IngestDirectory(context.Background(), root, false)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), stats.Failed)
	for _, r := range results {
		assert.Equal(t, "queue closed", r.Err)
	}
}

func TestIngestPathRejectsUnsupportedExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tool.exe")
	writeFile(t, path, "x")
	_, err := NewIngestor(&fakeSubmitter{}, "inbox", 0, nil).IngestPath(context.Background(), path)
	assert.Error(t, err)
}

func TestDiscover(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "b.pdf"), "b")
	writeFile(t, filepath.Join(root, "a.html"), "a")
	writeFile(t, filepath.Join(root, ".hidden.pdf"), "h")
	writeFile(t, filepath.Join(root, "skip.zip"), "z")

	paths, err := Discover(root, true)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "a.html"), filepath.Join(root, "b.pdf")}, paths)

	single := filepath.Join(root, "skip.zip")
	paths, err = Discover(single, true)
	require.NoError(t, err)
	assert.Equal(t, []string{single}, paths, "an explicit file is always returned")
}

func TestWatchSubmitsNewFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "existing.txt"), "already here")

	sub := &fakeSubmitter{}
	ing := NewIngestor(sub, "inbox", 1<<20, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- ing.Watch(ctx, WatchConfig{Roots: []string{root}, InitialScan: true, Debounce: 50 * time.Millisecond})
	}()

	require.Eventually(t, func() bool { return len(sub.filenames()) == 1 }, 5*time.Second, 10*time.Millisecond)
	writeFile(t, filepath.Join(root, "dropped.txt"), "new contract")
	require.Eventually(t, func() bool { return len(sub.filenames()) == 2 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"dropped.txt", "existing.txt"}, sub.filenames())

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestStartWatcherRequiresRoots(t *testing.T) {
	_, _, err := StartWatcher(context.Background(), WatchConfig{}, nil)
	assert.Error(t, err)
}
