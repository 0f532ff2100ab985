package persistence

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"docstudio/internal/globalconst"
)

// FileSystem is the storage surface the core needs: whole-file reads,
// whole-file replacement, directory creation and existence checks.
type FileSystem interface {
	ReadFile(path string) ([]byte, error)
	WriteFile(path string, data []byte) error
	MkdirAll(path string) error
	Exists(path string) (bool, error)
	ReadDir(path string) ([]string, error)
	RemoveAll(path string) error
}

// StorageError reports a failed file-system operation. It unwraps to the
// underlying error so callers can still test for fs.ErrNotExist and friends.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s '%s': %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// DiskFS implements FileSystem on the local disk.
type DiskFS struct{}

// NewDiskFS returns the local-disk FileSystem.
func NewDiskFS() *DiskFS {
	return &DiskFS{}
}

// ReadFile reads the whole file at path.
func (DiskFS) ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &StorageError{Op: "read", Path: path, Err: err}
	}
	return data, nil
}

// WriteFile replaces the file at path. It writes a temporary file, syncs it
// and atomically renames it over the destination so a reader never sees a
// half-written table.
func (DiskFS) WriteFile(path string, data []byte) error {
	tempPath := path + globalconst.TempFileSuffix

	file, err := os.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, globalconst.FilePerm)
	if err != nil {
		return &StorageError{Op: "create temp", Path: tempPath, Err: err}
	}
	// Ensure the temporary file is closed, regardless of success or failure.
	defer file.Close()

	if _, err := file.Write(data); err != nil {
		os.Remove(tempPath)
		return &StorageError{Op: "write", Path: tempPath, Err: err}
	}
	if err := file.Sync(); err != nil {
		os.Remove(tempPath)
		return &StorageError{Op: "sync", Path: tempPath, Err: err}
	}
	// Explicitly close the file before renaming, especially important on Windows.
	file.Close()

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return &StorageError{Op: "rename", Path: path, Err: err}
	}
	return nil
}

// MkdirAll creates path and any missing parents.
func (DiskFS) MkdirAll(path string) error {
	if err := os.MkdirAll(path, globalconst.DirPerm); err != nil {
		return &StorageError{Op: "mkdir", Path: path, Err: err}
	}
	return nil
}

// Exists reports whether path exists.
func (DiskFS) Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, &StorageError{Op: "stat", Path: path, Err: err}
}

// ReadDir lists the entry names of a directory, sorted. A missing directory
// lists as empty.
func (DiskFS) ReadDir(path string) ([]string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, &StorageError{Op: "readdir", Path: path, Err: err}
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	return names, nil
}

// RemoveAll deletes path and everything below it.
func (DiskFS) RemoveAll(path string) error {
	if err := os.RemoveAll(path); err != nil {
		return &StorageError{Op: "remove", Path: path, Err: err}
	}
	return nil
}

// TablePath is the backing file of one table.
func TablePath(root, databaseID, table string) string {
	return filepath.Join(root, databaseID, table+globalconst.TableFileExtension)
}

// DatabaseDir is the storage directory of one database.
func DatabaseDir(root, databaseID string) string {
	return filepath.Join(root, databaseID)
}

// BackupDir holds every backup of one database.
func BackupDir(root, databaseID string) string {
	return filepath.Join(root, globalconst.BackupDirName, databaseID)
}
