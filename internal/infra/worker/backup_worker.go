package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const backupPrefix = "leads-"

// Backupper writes a consistent snapshot of the lead database to dest.
type Backupper interface {
	Backup(ctx context.Context, dest string) error
}

// BackupWorker snapshots the database on a fixed interval and keeps only the
// newest snapshots.
type BackupWorker struct {
	repo     Backupper
	dir      string
	interval time.Duration
	keep     int
	logger   logrus.FieldLogger
	now      func() time.Time
}

func NewBackupWorker(repo Backupper, dir string, interval time.Duration, keep int, logger logrus.FieldLogger) *BackupWorker {
	if keep < 1 {
		keep = 1
	}
	return &BackupWorker{
		repo:     repo,
		dir:      dir,
		interval: interval,
		keep:     keep,
		logger:   logger,
		now:      time.Now,
	}
}

func (w *BackupWorker) Start(ctx context.Context) {
	w.logger.WithFields(logrus.Fields{
		"dir":      w.dir,
		"interval": w.interval.String(),
		"keep":     w.keep,
	}).Info("backup worker started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("backup worker stopped")
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

func (w *BackupWorker) runOnce(ctx context.Context) {
	path, err := w.snapshot(ctx)
	if err != nil {
		w.logger.WithError(err).Error("scheduled backup failed")
		return
	}
	w.logger.WithField("path", path).Info("scheduled backup written")

	removed, err := w.prune()
	if err != nil {
		w.logger.WithError(err).Warn("prune old backups failed")
		return
	}
	if removed > 0 {
		w.logger.WithField("removed", removed).Info("old backups pruned")
	}
}

func (w *BackupWorker) snapshot(ctx context.Context) (string, error) {
	name := backupPrefix + w.now().Format("20060102-150405") + ".db"
	path := filepath.Join(w.dir, name)
	if err := w.repo.Backup(ctx, path); err != nil {
		return "", err
	}
	return path, nil
}

// prune deletes scheduled backups beyond the newest keep. The timestamped
// names sort chronologically.
func (w *BackupWorker) prune() (int, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return 0, fmt.Errorf("read backup dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, backupPrefix) && strings.HasSuffix(name, ".db") {
			names = append(names, name)
		}
	}
	if len(names) <= w.keep {
		return 0, nil
	}

	sort.Strings(names)
	stale := names[:len(names)-w.keep]
	for _, name := range stale {
		if err := os.Remove(filepath.Join(w.dir, name)); err != nil {
			return 0, fmt.Errorf("remove %s: %w", name, err)
		}
	}
	return len(stale), nil
}
