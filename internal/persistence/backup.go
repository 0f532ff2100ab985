package persistence

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"docstudio/internal/document"
	"docstudio/internal/globalconst"
)

// ErrBackupRunning is returned when a backup of the same manager is already
// in progress.
var ErrBackupRunning = errors.New("backup already in progress")

// BackupManager writes point-in-time copies of a database's tables under
// <root>/_backups/<databaseId>/<timestamp>/ and reads them back.
type BackupManager struct {
	fs             FileSystem
	root           string
	keep           int
	backupLock     sync.Mutex
	backupRunning  bool
	lastBackupTime map[string]time.Time
	now            func() time.Time
}

// NewBackupManager creates a backup manager that retains the newest keep
// backups of each database. keep <= 0 retains all of them.
func NewBackupManager(fsys FileSystem, root string, keep int) *BackupManager {
	return &BackupManager{
		fs:             fsys,
		root:           root,
		keep:           keep,
		lastBackupTime: make(map[string]time.Time),
		now:            time.Now,
	}
}

// SetClock replaces the time source used to name backups.
func (bm *BackupManager) SetClock(now func() time.Time) {
	bm.backupLock.Lock()
	defer bm.backupLock.Unlock()
	bm.now = now
}

// SetRetention changes how many backups per database are kept.
func (bm *BackupManager) SetRetention(keep int) {
	bm.backupLock.Lock()
	defer bm.backupLock.Unlock()
	bm.keep = keep
}

// PerformBackup writes tables as one backup of databaseID and returns its name.
// The copy is read back and checked before it counts as done; a backup that
// fails verification is removed.
func (bm *BackupManager) PerformBackup(databaseID string, tables map[string][]document.Document) (string, error) {
	bm.backupLock.Lock()
	if bm.backupRunning {
		bm.backupLock.Unlock()
		slog.Warn("Backup skipped: another backup is already in progress.")
		return "", ErrBackupRunning
	}
	bm.backupRunning = true
	now := bm.now
	bm.backupLock.Unlock()
	defer func() {
		bm.backupLock.Lock()
		bm.backupRunning = false
		bm.backupLock.Unlock()
	}()

	name := now().UTC().Format(globalconst.BackupNameFormat)
	backupPath := filepath.Join(BackupDir(bm.root, databaseID), name)
	if exists, err := bm.fs.Exists(backupPath); err != nil {
		return "", err
	} else if exists {
		return "", fmt.Errorf("backup '%s' of database '%s' already exists", name, databaseID)
	}
	slog.Info("Starting new backup", "database", databaseID, "path", backupPath)

	if err := bm.fs.MkdirAll(backupPath); err != nil {
		return "", fmt.Errorf("error creating backup directory: %w", err)
	}
	if err := bm.writeTables(backupPath, tables); err != nil {
		bm.fs.RemoveAll(backupPath)
		return "", err
	}
	if err := bm.verifyBackup(backupPath, tables); err != nil {
		slog.Error("Backup verification failed", "path", backupPath, "error", err)
		bm.fs.RemoveAll(backupPath)
		return "", fmt.Errorf("backup verification failed: %w", err)
	}

	bm.backupLock.Lock()
	bm.lastBackupTime[databaseID] = now()
	bm.backupLock.Unlock()
	slog.Info("Backup completed successfully", "database", databaseID, "name", name, "tables", len(tables))

	bm.cleanOldBackups(databaseID)
	return name, nil
}

func (bm *BackupManager) writeTables(backupPath string, tables map[string][]document.Document) error {
	for _, table := range sortedTableNames(tables) {
		data, err := EncodeDocuments(tables[table], false)
		if err != nil {
			return fmt.Errorf("error encoding table '%s': %w", table, err)
		}
		if err := bm.fs.WriteFile(filepath.Join(backupPath, table+globalconst.TableFileExtension), data); err != nil {
			return fmt.Errorf("error writing table '%s': %w", table, err)
		}
	}
	return nil
}

// verifyBackup checks that every table file decodes with the expected
// number of documents.
func (bm *BackupManager) verifyBackup(backupPath string, tables map[string][]document.Document) error {
	for _, table := range sortedTableNames(tables) {
		data, err := bm.fs.ReadFile(filepath.Join(backupPath, table+globalconst.TableFileExtension))
		if err != nil {
			return err
		}
		docs, _, err := DecodeDocuments(data)
		if err != nil {
			return fmt.Errorf("table '%s': %w", table, err)
		}
		if len(docs) != len(tables[table]) {
			return fmt.Errorf("table '%s': expected %d documents, found %d", table, len(tables[table]), len(docs))
		}
	}
	return nil
}

// cleanOldBackups removes the oldest backups beyond the retention count.
func (bm *BackupManager) cleanOldBackups(databaseID string) {
	bm.backupLock.Lock()
	keep := bm.keep
	bm.backupLock.Unlock()
	if keep <= 0 {
		return
	}
	names, err := bm.ListBackups(databaseID)
	if err != nil {
		slog.Error("Failed to read backup directory for cleanup", "database", databaseID, "error", err)
		return
	}
	cleanedCount := 0
	for len(names) > keep {
		path := filepath.Join(BackupDir(bm.root, databaseID), names[0])
		if err := bm.fs.RemoveAll(path); err != nil {
			slog.Error("Failed to delete old backup", "path", path, "error", err)
			break
		}
		slog.Info("Old backup deleted", "path", path)
		names = names[1:]
		cleanedCount++
	}
	if cleanedCount > 0 {
		slog.Info("Backup cleanup finished", "database", databaseID, "deleted_count", cleanedCount)
	}
}

// ListBackups returns the backups of databaseID, oldest first.
func (bm *BackupManager) ListBackups(databaseID string) ([]string, error) {
	entries, err := bm.fs.ReadDir(BackupDir(bm.root, databaseID))
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if strings.HasSuffix(entry, globalconst.TempFileSuffix) {
			continue
		}
		names = append(names, entry)
	}
	sort.Strings(names)
	return names, nil
}

// LastBackupTime returns when databaseID was last backed up by this manager.
func (bm *BackupManager) LastBackupTime(databaseID string) (time.Time, bool) {
	bm.backupLock.Lock()
	defer bm.backupLock.Unlock()
	at, ok := bm.lastBackupTime[databaseID]
	return at, ok
}

func sortedTableNames(tables map[string][]document.Document) []string {
	names := make([]string, 0, len(tables))
	for name := range tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
