// Package catalog is the catalog collaborator (§6): databases live under
// databasePath/database-<id>/, each collection directory holding its
// index-<iid>.json files and datafile. Grounded on the teacher's
// append-only binary database-entry log (catalog.go), extended with an
// in-memory collection registry per database since this spec's catalog
// must also answer lookupCollectionById/Name, createCollection,
// dropCollection, renameCollection and updateCollectionInfo.
package catalog

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	catalogerrors "github.com/voxstore/voxdb/internal/errors"
	"github.com/voxstore/voxdb/internal/logger"
	"github.com/voxstore/voxdb/internal/types"
)

const (
	idSize      = 8
	nameLenSize = 2
	statusSize  = 1
	entryHeader = idSize + nameLenSize + statusSize
)

// entry is one append-only record in the database log.
type entry struct {
	ID        uint64
	Name      string
	CreatedAt time.Time
	Status    types.DBStatus
}

// Catalog is the top-level database registry.
type Catalog struct {
	mu   sync.RWMutex
	file *os.File
	path string
	dir  string // database directory root, per §6

	entries map[uint64]*entry
	names   map[string]uint64

	databases map[uint64]*Database

	logger *logger.Logger
}

// NewCatalog opens a catalog backed by the append-only log at path, with
// per-database directories rooted at dir.
func NewCatalog(path, dir string, log *logger.Logger) *Catalog {
	return &Catalog{
		path:      path,
		dir:       dir,
		entries:   make(map[uint64]*entry),
		names:     make(map[string]uint64),
		databases: make(map[uint64]*Database),
		logger:    log,
	}
}

func (c *Catalog) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return err
	}

	file, err := os.OpenFile(c.path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("catalog: load: %w", err)
	}
	c.file = file

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("catalog: stat: %w", err)
	}
	if info.Size() == 0 {
		return nil
	}

	data, err := os.ReadFile(c.path)
	if err != nil {
		return fmt.Errorf("catalog: read: %w", err)
	}

	offset := 0
	for offset+entryHeader <= len(data) {
		id := binary.LittleEndian.Uint64(data[offset : offset+idSize])
		offset += idSize
		nameLen := int(binary.LittleEndian.Uint16(data[offset : offset+nameLenSize]))
		offset += nameLenSize
		status := types.DBStatus(data[offset])
		offset += statusSize

		if offset+nameLen > len(data) {
			break
		}
		name := string(data[offset : offset+nameLen])
		offset += nameLen

		e := &entry{ID: id, Name: name, CreatedAt: time.Now(), Status: status}
		c.entries[id] = e
		if status == types.DBActive {
			c.names[name] = id
		}
	}

	c.logger.Info("catalog loaded: %d database entries", len(c.entries))
	return nil
}

func (c *Catalog) writeEntry(e *entry) error {
	buf := make([]byte, entryHeader+len(e.Name))
	binary.LittleEndian.PutUint64(buf[0:], e.ID)
	binary.LittleEndian.PutUint16(buf[idSize:], uint16(len(e.Name)))
	buf[idSize+nameLenSize] = byte(e.Status)
	copy(buf[entryHeader:], e.Name)

	if _, err := c.file.Write(buf); err != nil {
		return fmt.Errorf("catalog: write entry: %w", err)
	}
	return nil
}

func (c *Catalog) databaseDir(id uint64) string {
	return filepath.Join(c.dir, fmt.Sprintf("database-%d", id))
}

// LookupDatabaseByID returns the open Database handle, opening it on
// demand from the persisted entry if needed.
func (c *Catalog) LookupDatabaseByID(id uint64) (*Database, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lookupLocked(id)
}

func (c *Catalog) lookupLocked(id uint64) (*Database, bool) {
	if db, ok := c.databases[id]; ok {
		return db, true
	}
	e, ok := c.entries[id]
	if !ok || e.Status != types.DBActive {
		return nil, false
	}
	db := newDatabase(e.ID, e.Name, c.databaseDir(e.ID), c.logger)
	c.databases[id] = db
	return db, true
}

// LookupDatabaseByName mirrors LookupDatabaseByID, by name.
func (c *Catalog) LookupDatabaseByName(name string) (*Database, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.names[name]
	if !ok {
		return nil, false
	}
	return c.lookupLocked(id)
}

// CreateDatabase creates a database with an explicit id, as required by the
// CREATE_DATABASE marker, which always names the id it wants (§4.5).
func (c *Catalog) CreateDatabase(id uint64, name string) (*Database, error) {
	if err := ValidateDBName(name); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[id]; ok && e.Status == types.DBActive {
		return nil, catalogerrors.ErrDatabaseExists
	}
	if _, ok := c.names[name]; ok {
		return nil, catalogerrors.ErrDatabaseExists
	}

	e := &entry{ID: id, Name: name, CreatedAt: time.Now(), Status: types.DBActive}
	if err := c.writeEntry(e); err != nil {
		return nil, err
	}
	c.entries[id] = e
	c.names[name] = id

	dir := c.databaseDir(id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("catalog: create database dir: %w", err)
	}

	db := newDatabase(id, name, dir, c.logger)
	c.databases[id] = db

	c.logger.Info("created database %q (id=%d)", name, id)
	return db, nil
}

func (c *Catalog) dropLocked(id uint64) error {
	e, ok := c.entries[id]
	if !ok || e.Status != types.DBActive {
		return catalogerrors.ErrDatabaseNotFound
	}

	e.Status = types.DBDeleted
	delete(c.names, e.Name)
	if err := c.writeEntry(e); err != nil {
		return err
	}
	delete(c.databases, id)

	if err := os.RemoveAll(c.databaseDir(id)); err != nil {
		return fmt.Errorf("catalog: remove database dir: %w", err)
	}

	c.logger.Info("dropped database %q (id=%d)", e.Name, id)
	return nil
}

func (c *Catalog) DropDatabaseByID(id uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropLocked(id)
}

func (c *Catalog) DropDatabaseByName(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.names[name]
	if !ok {
		return catalogerrors.ErrDatabaseNotFound
	}
	return c.dropLocked(id)
}

// DatabaseDir returns the on-disk directory for a database id, used by
// WaitForDeletion (§4.5) even when no in-memory handle is open.
func (c *Catalog) DatabaseDir(id uint64) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.databaseDir(id)
}

func (c *Catalog) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, db := range c.databases {
		db.Close()
	}
	if c.file != nil {
		return c.file.Close()
	}
	return nil
}
