package database

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var (
	ErrBackupUnsupported      = errors.New("backup is only supported for sqlite databases")
	ErrBackupNotFound         = errors.New("backup file not found")
	ErrInvalidBackupExtension = errors.New("backup file must use the .db, .sqlite or .sqlite3 extension")
	ErrInvalidSQLite          = errors.New("invalid sqlite backup")
	ErrRestoreCopyFailed      = errors.New("restore copy failed")
	ErrRestoreRollbackFailed  = errors.New("restore rollback failed")
)

var sqliteHeader = []byte("SQLite format 3\x00")

type RestoreResult struct {
	PreRestoreBackupPath string `json:"pre_restore_backup_path"`
	RestartRequired      bool   `json:"restart_required"`
}

func HasBackupExtension(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		return true
	}
	return false
}

// Backup writes a consistent snapshot of the live database to dest.
func (r *LeadRepository) Backup(ctx context.Context, dest string) error {
	if r.Dialect != DialectSQLite {
		return ErrBackupUnsupported
	}
	return Backup(ctx, r.DB, dest)
}

// Backup snapshots an open sqlite database into dest, replacing any file
// already there.
func Backup(ctx context.Context, db *sql.DB, dest string) error {
	if !HasBackupExtension(dest) {
		return ErrInvalidBackupExtension
	}

	if dir := filepath.Dir(dest); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("prepare backup directory: %w", err)
		}
	}

	// VACUUM INTO refuses to overwrite, so write beside dest and rename.
	tmp := dest + ".tmp"
	if err := os.Remove(tmp); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("clear temporary backup: %w", err)
	}

	if _, err := db.ExecContext(ctx, `VACUUM INTO ?`, tmp); err != nil {
		return fmt.Errorf("create backup: %w", err)
	}

	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("create backup: %w", err)
	}
	return nil
}

// ValidateSQLiteFile checks size, header and integrity of a backup file.
func ValidateSQLiteFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: read: %v", ErrInvalidSQLite, err)
	}
	if len(data) < 100 {
		return fmt.Errorf("%w: file too small", ErrInvalidSQLite)
	}
	if !bytes.Equal(data[:len(sqliteHeader)], sqliteHeader) {
		return fmt.Errorf("%w: unrecognized header", ErrInvalidSQLite)
	}

	db, err := sql.Open("sqlite3", "file:"+filepath.ToSlash(path)+"?mode=ro")
	if err != nil {
		return fmt.Errorf("%w: open: %v", ErrInvalidSQLite, err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRowContext(ctx, `PRAGMA quick_check(1)`).Scan(&result); err != nil {
		return fmt.Errorf("%w: integrity check: %v", ErrInvalidSQLite, err)
	}
	if !strings.EqualFold(result, "ok") {
		return fmt.Errorf("%w: integrity check failed (%s)", ErrInvalidSQLite, result)
	}
	return nil
}

// Restore replaces the database file at target with the backup at source.
// The current target is first copied to a pre-restore snapshot next to it;
// a failed copy is rolled back from that snapshot. The database must not be
// open while restoring.
func Restore(ctx context.Context, source, target string, now time.Time) (*RestoreResult, error) {
	if _, err := os.Stat(source); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrBackupNotFound
		}
		return nil, fmt.Errorf("stat backup: %w", err)
	}
	if !HasBackupExtension(source) {
		return nil, ErrInvalidBackupExtension
	}
	if err := ValidateSQLiteFile(ctx, source); err != nil {
		return nil, err
	}

	snapshot := filepath.Join(filepath.Dir(target), "pre-restore-backup-"+now.Format("20060102-150405")+".db")

	snapshotSource := target
	if _, err := os.Stat(target); errors.Is(err, fs.ErrNotExist) {
		snapshotSource = source
	}
	if err := copyFile(snapshotSource, snapshot); err != nil {
		return nil, fmt.Errorf("pre-restore snapshot: %w", err)
	}

	if err := restoreWithRollback(source, target, snapshot, copyFile); err != nil {
		return nil, err
	}

	return &RestoreResult{
		PreRestoreBackupPath: snapshot,
		RestartRequired:      true,
	}, nil
}

func restoreWithRollback(source, target, snapshot string, copyOp func(src, dst string) error) error {
	err := copyOp(source, target)
	if err == nil {
		return nil
	}

	if rbErr := copyOp(snapshot, target); rbErr != nil {
		return fmt.Errorf("%w: %v; %w: %v", ErrRestoreCopyFailed, err, ErrRestoreRollbackFailed, rbErr)
	}
	return fmt.Errorf("%w: %v; previous database rolled back", ErrRestoreCopyFailed, err)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
