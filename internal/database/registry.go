// Package database ties schemas, table handles and the query and
// aggregation engines together behind a registry of open databases and a
// CRUD service.
package database

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"docstudio/internal/aggregate"
	"docstudio/internal/document"
	"docstudio/internal/globalconst"
	"docstudio/internal/persistence"
	"docstudio/internal/schema"
	"docstudio/internal/store"

	"golang.org/x/sync/singleflight"
)

var (
	// ErrNotInitialized is returned for database ids that were never
	// initialized or have been closed. No I/O happens before it is returned.
	ErrNotInitialized = errors.New("database not initialized")
	// ErrDocumentNotFound is returned by updates that name a missing _id.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrDuplicateID is returned when a created document reuses an _id.
	ErrDuplicateID = errors.New("duplicate document id")
)

type handleKey struct {
	databaseID string
	table      string
}

type registeredDatabase struct {
	name      string
	generator *schema.Generator
}

// Info describes a registered database.
type Info struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Tables []string `json:"tables"`
}

// Registry owns every open database: its schema generator and the table
// handles opened so far. Handles are opened lazily and cached until the
// database is closed.
type Registry struct {
	mu        sync.RWMutex
	fs        persistence.FileSystem
	root      string
	storeOpts store.Options
	databases map[string]*registeredDatabase
	handles   map[handleKey]*store.Handle
	opening   singleflight.Group
	backups   *persistence.BackupManager
}

// NewRegistry creates a registry storing databases under root.
func NewRegistry(fsys persistence.FileSystem, root string, opts store.Options) *Registry {
	return &Registry{
		fs:        fsys,
		root:      root,
		storeOpts: opts,
		databases: make(map[string]*registeredDatabase),
		handles:   make(map[handleKey]*store.Handle),
		backups:   persistence.NewBackupManager(fsys, root, globalconst.DefaultBackupKeep),
	}
}

// Root returns the directory databases are stored under.
func (r *Registry) Root() string { return r.root }

// InitializeDatabase registers databaseID with the given tables, creating its
// directory and an empty file for every table that has none yet.
// Initializing an id again replaces its schemas and drops its open handles.
func (r *Registry) InitializeDatabase(databaseID, name string, tables []*schema.Table) error {
	if !schema.ValidName(databaseID) {
		return fmt.Errorf("invalid database id '%s'", databaseID)
	}
	gen, err := schema.NewGenerator(tables...)
	if err != nil {
		return fmt.Errorf("failed to build schemas for database '%s': %w", databaseID, err)
	}

	dir := persistence.DatabaseDir(r.root, databaseID)
	if err := r.fs.MkdirAll(dir); err != nil {
		return err
	}
	for _, t := range gen.Tables() {
		if err := r.ensureTableFile(databaseID, t.Name); err != nil {
			return err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.databases[databaseID]; exists {
		r.evictLocked(databaseID)
		slog.Info("Database re-initialized", "id", databaseID)
	}
	if name == "" {
		name = databaseID
	}
	r.databases[databaseID] = &registeredDatabase{name: name, generator: gen}
	slog.Info("Database initialized", "id", databaseID, "name", name, "tables", len(tables), "path", dir)
	return nil
}

func (r *Registry) ensureTableFile(databaseID, table string) error {
	path := persistence.TablePath(r.root, databaseID, table)
	exists, err := r.fs.Exists(path)
	if err != nil || exists {
		return err
	}
	data, err := persistence.EncodeDocuments(nil, r.storeOpts.Pretty)
	if err != nil {
		return err
	}
	if err := r.fs.WriteFile(path, data); err != nil {
		return err
	}
	slog.Debug("Table file seeded", "database", databaseID, "table", table)
	return nil
}

// DatabaseExists reports whether databaseID has a storage directory.
func (r *Registry) DatabaseExists(databaseID string) (bool, error) {
	if !schema.ValidName(databaseID) {
		return false, nil
	}
	return r.fs.Exists(persistence.DatabaseDir(r.root, databaseID))
}

// Databases returns the ids of all registered databases, sorted.
func (r *Registry) Databases() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.databases))
	for id := range r.databases {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Info describes a registered database.
func (r *Registry) Info(databaseID string) (Info, error) {
	r.mu.RLock()
	db, ok := r.databases[databaseID]
	r.mu.RUnlock()
	if !ok {
		return Info{}, fmt.Errorf("%w: '%s'", ErrNotInitialized, databaseID)
	}
	info := Info{ID: databaseID, Name: db.name}
	for _, t := range db.generator.Tables() {
		info.Tables = append(info.Tables, t.Name)
	}
	return info, nil
}

// CloseDatabase closes every handle of databaseID and forgets its schemas.
// Closing an unknown id does nothing.
func (r *Registry) CloseDatabase(databaseID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.databases[databaseID]; !ok {
		slog.Debug("Close of unregistered database ignored", "id", databaseID)
		return
	}
	r.evictLocked(databaseID)
	delete(r.databases, databaseID)
	slog.Info("Database closed", "id", databaseID)
}

// Close closes every registered database.
func (r *Registry) Close() {
	for _, id := range r.Databases() {
		r.CloseDatabase(id)
	}
}

func (r *Registry) evictLocked(databaseID string) {
	for key, h := range r.handles {
		if key.databaseID == databaseID {
			h.Close()
			delete(r.handles, key)
		}
	}
}

// Generator returns the schema generator of databaseID.
func (r *Registry) Generator(databaseID string) (*schema.Generator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	db, ok := r.databases[databaseID]
	if !ok {
		return nil, fmt.Errorf("%w: '%s'", ErrNotInitialized, databaseID)
	}
	return db.generator, nil
}

// Handle returns the open handle of a table, opening it on first use.
// The table file is read without holding the registry lock; concurrent
// first uses of the same table share one open.
func (r *Registry) Handle(databaseID, table string) (*store.Handle, error) {
	key := handleKey{databaseID: databaseID, table: table}

	r.mu.RLock()
	db, registered := r.databases[databaseID]
	h, open := r.handles[key]
	r.mu.RUnlock()
	if !registered {
		return nil, fmt.Errorf("%w: '%s'", ErrNotInitialized, databaseID)
	}
	if open {
		return h, nil
	}
	if _, ok := db.generator.Table(table); !ok {
		return nil, fmt.Errorf("%w: '%s' in database '%s'", schema.ErrUnknownTable, table, databaseID)
	}

	v, err, _ := r.opening.Do(databaseID+"/"+table, func() (any, error) {
		// Another caller may have finished opening it since the first lookup.
		r.mu.RLock()
		h, open := r.handles[key]
		r.mu.RUnlock()
		if open {
			return h, nil
		}

		h, err := store.Open(r.fs, persistence.TablePath(r.root, databaseID, table), databaseID, table, r.storeOpts)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		defer r.mu.Unlock()
		// The database may have been closed or re-initialized during the open.
		if current, ok := r.databases[databaseID]; !ok || current != db {
			h.Close()
			return nil, fmt.Errorf("%w: '%s'", ErrNotInitialized, databaseID)
		}
		r.handles[key] = h
		return h, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*store.Handle), nil
}

// Source gives $lookup stages read access to the tables of databaseID.
func (r *Registry) Source(databaseID string) aggregate.Source {
	return aggregate.SourceFunc(func(table string) ([]document.Document, error) {
		h, err := r.Handle(databaseID, table)
		if err != nil {
			return nil, err
		}
		return h.Read(), nil
	})
}

// Backups exposes the backup manager, mainly to tune retention.
func (r *Registry) Backups() *persistence.BackupManager { return r.backups }

// Backup snapshots every table of databaseID and returns the backup name.
// Each table is copied under its own read lock.
func (r *Registry) Backup(databaseID string) (string, error) {
	gen, err := r.Generator(databaseID)
	if err != nil {
		return "", err
	}
	tables := make(map[string][]document.Document)
	for _, t := range gen.Tables() {
		h, err := r.Handle(databaseID, t.Name)
		if err != nil {
			return "", err
		}
		tables[t.Name] = h.Read()
	}
	return r.backups.PerformBackup(databaseID, tables)
}

// ListBackups returns the backup names of databaseID, oldest first.
func (r *Registry) ListBackups(databaseID string) ([]string, error) {
	if _, err := r.Generator(databaseID); err != nil {
		return nil, err
	}
	return r.backups.ListBackups(databaseID)
}

// Restore replaces the contents of every table of databaseID with the named
// backup. Tables are replaced one after another; a failure leaves the
// tables restored so far in place.
func (r *Registry) Restore(databaseID, name string) error {
	gen, err := r.Generator(databaseID)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(gen.Tables()))
	for _, t := range gen.Tables() {
		names = append(names, t.Name)
	}
	loaded, err := r.backups.LoadBackup(databaseID, name, names)
	if err != nil {
		return err
	}
	for _, table := range names {
		h, err := r.Handle(databaseID, table)
		if err != nil {
			return err
		}
		docs := loaded[table]
		if err := h.Mutate(func(rows *store.Rows) error {
			rows.Replace(docs)
			return nil
		}); err != nil {
			return fmt.Errorf("failed to restore table '%s': %w", table, err)
		}
	}
	slog.Info("Database restored from backup", "id", databaseID, "backup", name)
	return nil
}
