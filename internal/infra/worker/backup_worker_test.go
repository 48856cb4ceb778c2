package worker

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackupper struct {
	mu    sync.Mutex
	paths []string
	err   error
}

func (f *fakeBackupper) Backup(ctx context.Context, dest string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.paths = append(f.paths, dest)
	return os.WriteFile(dest, []byte("snapshot"), 0o644)
}

func (f *fakeBackupper) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.paths)
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func TestBackupWorkerKeepsNewest(t *testing.T) {
	dir := t.TempDir()
	repo := &fakeBackupper{}
	w := NewBackupWorker(repo, dir, time.Hour, 2, quietLogger())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	clock := time.Date(2024, 12, 1, 8, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return clock }
	for i := 0; i < 4; i++ {
		w.runOnce(context.Background())
		clock = clock.Add(time.Hour)
	}

	assert.Equal(t, 4, repo.count())
	assert.Equal(t, []string{
		"leads-20241201-100000.db",
		"leads-20241201-110000.db",
		"notes.txt",
	}, listDir(t, dir))
}

func TestBackupWorkerFailureKeepsExistingFiles(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "leads-20240101-000000.db")
	require.NoError(t, os.WriteFile(existing, []byte("old"), 0o644))

	w := NewBackupWorker(&fakeBackupper{err: errors.New("disk full")}, dir, time.Hour, 1, quietLogger())
	w.runOnce(context.Background())

	assert.FileExists(t, existing)
}

func TestNewBackupWorkerKeepsAtLeastOne(t *testing.T) {
	w := NewBackupWorker(&fakeBackupper{}, t.TempDir(), time.Hour, 0, quietLogger())
	assert.Equal(t, 1, w.keep)
}

func TestBackupWorkerStartRunsImmediatelyAndStops(t *testing.T) {
	repo := &fakeBackupper{}
	w := NewBackupWorker(repo, t.TempDir(), time.Hour, 3, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return repo.count() == 1 }, time.Second, 10*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("backup worker did not stop")
	}
}
