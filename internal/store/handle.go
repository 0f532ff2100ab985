// Package store owns the in-memory copy of one table and its backing file.
package store

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"docstudio/internal/document"
	"docstudio/internal/persistence"
)

// ErrClosed is returned by Mutate after Close.
var ErrClosed = errors.New("table handle is closed")

// Handle is the live copy of a single table. Reads see a consistent snapshot
// and every successful mutation is flushed to the backing file before Mutate
// returns.
type Handle struct {
	mu         sync.RWMutex
	fs         persistence.FileSystem
	path       string
	databaseID string
	table      string
	pretty     bool
	docs       []document.Document
	ids        *idIndex
	closed     bool
}

// Options tune how a Handle writes its file.
type Options struct {
	Pretty bool
}

// Open loads the table at path, creating the file with an empty array when it
// is missing. A file that holds null or nothing is treated as empty and
// rewritten in normalized form.
func Open(fsys persistence.FileSystem, path, databaseID, table string, opts Options) (*Handle, error) {
	h := &Handle{
		fs:         fsys,
		path:       path,
		databaseID: databaseID,
		table:      table,
		pretty:     opts.Pretty,
		docs:       []document.Document{},
	}

	exists, err := fsys.Exists(path)
	if err != nil {
		return nil, err
	}
	if !exists {
		h.ids = newIDIndex()
		if err := h.flushLocked(); err != nil {
			return nil, err
		}
		slog.Info("Table file created", "database", databaseID, "table", table, "path", path)
		return h, nil
	}

	data, err := fsys.ReadFile(path)
	if err != nil {
		return nil, err
	}
	docs, empty, err := persistence.DecodeDocuments(data)
	if err != nil {
		return nil, &persistence.StorageError{Op: "decode", Path: path, Err: err}
	}
	h.docs = docs
	h.ids = buildIDIndex(docs)
	if empty {
		if err := h.flushLocked(); err != nil {
			return nil, err
		}
	}
	if h.ids.len() != len(docs) {
		slog.Warn("Table has documents without a unique string _id", "database", databaseID, "table", table, "documents", len(docs), "indexed", h.ids.len())
	}
	slog.Info("Table loaded", "database", databaseID, "table", table, "documents", len(docs))
	return h, nil
}

// DatabaseID returns the id of the database the table belongs to.
func (h *Handle) DatabaseID() string { return h.databaseID }

// Table returns the table name.
func (h *Handle) Table() string { return h.table }

// Path returns the backing file path.
func (h *Handle) Path() string { return h.path }

// Read returns a deep copy of every document in table order.
func (h *Handle) Read() []document.Document {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return document.CloneAll(h.docs)
}

// Len returns the number of stored documents.
func (h *Handle) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.docs)
}

// Get returns a copy of the document with the given _id.
func (h *Handle) Get(id string) (document.Document, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	pos, ok := h.ids.lookup(id)
	if !ok {
		return nil, false
	}
	return document.Clone(h.docs[pos]), true
}

// Mutate runs fn against a working copy of the table under the write lock.
// If fn fails nothing changes. Otherwise the working copy replaces the table
// and is flushed once; a flush error is returned but the in-memory change is
// kept.
func (h *Handle) Mutate(fn func(rows *Rows) error) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return fmt.Errorf("%w: %s/%s", ErrClosed, h.databaseID, h.table)
	}

	rows := newRows(h.docs, h.ids)
	if err := fn(rows); err != nil {
		return err
	}
	if !rows.changed {
		return nil
	}
	h.docs = rows.docs
	h.ids = rows.index()
	return h.flushLocked()
}

// Close marks the handle unusable for further mutations. Reads keep working
// on the last state so in-flight callers are not broken.
func (h *Handle) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
}

func (h *Handle) flushLocked() error {
	data, err := persistence.EncodeDocuments(h.docs, h.pretty)
	if err != nil {
		return &persistence.StorageError{Op: "encode", Path: h.path, Err: err}
	}
	if err := h.fs.WriteFile(h.path, data); err != nil {
		slog.Error("Failed to flush table", "database", h.databaseID, "table", h.table, "error", err)
		return err
	}
	slog.Debug("Table flushed", "database", h.databaseID, "table", h.table, "documents", len(h.docs), "bytes", len(data))
	return nil
}
