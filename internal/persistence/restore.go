package persistence

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"

	"docstudio/internal/document"
	"docstudio/internal/globalconst"
)

// ErrBackupNotFound is returned for backup names that do not exist.
var ErrBackupNotFound = errors.New("backup not found")

// LoadBackup reads the given tables from a backup of databaseID. A table
// the backup has no file for loads as empty.
func (bm *BackupManager) LoadBackup(databaseID, name string, tables []string) (map[string][]document.Document, error) {
	backupPath := filepath.Join(BackupDir(bm.root, databaseID), name)
	if filepath.Base(name) != name || name == "." || name == ".." {
		return nil, fmt.Errorf("%w: invalid name '%s'", ErrBackupNotFound, name)
	}
	exists, err := bm.fs.Exists(backupPath)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: '%s' of database '%s'", ErrBackupNotFound, name, databaseID)
	}

	slog.Info("Loading backup", "database", databaseID, "name", name)
	loaded := make(map[string][]document.Document, len(tables))
	for _, table := range tables {
		filePath := filepath.Join(backupPath, table+globalconst.TableFileExtension)
		data, err := bm.fs.ReadFile(filePath)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				slog.Warn("Table missing from backup, restoring it empty", "table", table, "backup", name)
				loaded[table] = []document.Document{}
				continue
			}
			return nil, err
		}
		docs, _, err := DecodeDocuments(data)
		if err != nil {
			return nil, &StorageError{Op: "decode", Path: filePath, Err: err}
		}
		loaded[table] = docs
	}
	return loaded, nil
}
