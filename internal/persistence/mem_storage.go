package persistence

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// MemFS is an in-memory FileSystem. The shell uses it for throwaway sessions
// and tests use it to count writes and inject failures.
type MemFS struct {
	mu     sync.Mutex
	files  map[string][]byte
	dirs   map[string]struct{}
	writes map[string]int
	// WriteErr, when set, makes every WriteFile fail with it.
	WriteErr error
}

// NewMemFS creates an empty in-memory FileSystem.
func NewMemFS() *MemFS {
	return &MemFS{
		files:  make(map[string][]byte),
		dirs:   make(map[string]struct{}),
		writes: make(map[string]int),
	}
}

func (m *MemFS) ReadFile(path string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[filepath.Clean(path)]
	if !ok {
		return nil, &StorageError{Op: "read", Path: path, Err: fs.ErrNotExist}
	}
	return append([]byte(nil), data...), nil
}

func (m *MemFS) WriteFile(path string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteErr != nil {
		return &StorageError{Op: "write", Path: path, Err: m.WriteErr}
	}
	clean := filepath.Clean(path)
	if _, ok := m.dirs[filepath.Dir(clean)]; !ok {
		return &StorageError{Op: "write", Path: path, Err: fs.ErrNotExist}
	}
	m.files[clean] = append([]byte(nil), data...)
	m.writes[clean]++
	return nil
}

func (m *MemFS) MkdirAll(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for dir := filepath.Clean(path); ; dir = filepath.Dir(dir) {
		m.dirs[dir] = struct{}{}
		if parent := filepath.Dir(dir); parent == dir {
			break
		}
	}
	return nil
}

func (m *MemFS) Exists(path string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	clean := filepath.Clean(path)
	if _, ok := m.files[clean]; ok {
		return true, nil
	}
	_, ok := m.dirs[clean]
	return ok, nil
}

// ReadDir lists the direct children of path, sorted.
func (m *MemFS) ReadDir(path string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	clean := filepath.Clean(path)
	seen := make(map[string]struct{})
	collect := func(p string) {
		if p != clean && filepath.Dir(p) == clean {
			seen[filepath.Base(p)] = struct{}{}
		}
	}
	for p := range m.files {
		collect(p)
	}
	for p := range m.dirs {
		collect(p)
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// RemoveAll deletes path and everything below it.
func (m *MemFS) RemoveAll(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clean := filepath.Clean(path)
	prefix := clean + string(filepath.Separator)
	for p := range m.files {
		if p == clean || strings.HasPrefix(p, prefix) {
			delete(m.files, p)
		}
	}
	for p := range m.dirs {
		if p == clean || strings.HasPrefix(p, prefix) {
			delete(m.dirs, p)
		}
	}
	return nil
}

// Writes returns how many times path has been written.
func (m *MemFS) Writes(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes[filepath.Clean(path)]
}
