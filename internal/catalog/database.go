package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	catalogerrors "github.com/voxstore/voxdb/internal/errors"
	"github.com/voxstore/voxdb/internal/logger"
	"github.com/voxstore/voxdb/internal/storage"
	"github.com/voxstore/voxdb/internal/tbjson"
)

// Database is one database's collection registry, opened lazily from the
// Catalog's entry log. It owns the storage.Collection handles the replayer
// and resource cache (C3) acquire via LookupCollectionByID/Name.
type Database struct {
	mu sync.RWMutex

	ID   uint64
	Name string
	Dir  string

	collections map[uint64]*storage.Collection
	byName      map[string]uint64

	forceSyncProperties bool

	logger *logger.Logger
}

func newDatabase(id uint64, name, dir string, log *logger.Logger) *Database {
	return &Database{
		ID:                  id,
		Name:                name,
		Dir:                 dir,
		collections:         make(map[uint64]*storage.Collection),
		byName:              make(map[string]uint64),
		forceSyncProperties: true,
		logger:              log,
	}
}

// ForceSyncProperties reports the database's durable-property-sync toggle,
// honored by CHANGE_COLLECTION replay (§4.5) and temporarily overridden by
// CREATE_COLLECTION when the Pass-1 snapshot shows the collection will be
// dropped later in the same run.
func (d *Database) ForceSyncProperties() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.forceSyncProperties
}

func (d *Database) SetForceSyncProperties(v bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.forceSyncProperties = v
}

func (d *Database) collectionDir(cid uint64) string {
	return filepath.Join(d.Dir, fmt.Sprintf("collection-%d", cid))
}

func (d *Database) LookupCollectionByID(cid uint64) (*storage.Collection, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.collections[cid]
	return c, ok
}

func (d *Database) LookupCollectionByName(name string) (*storage.Collection, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	cid, ok := d.byName[name]
	if !ok {
		return nil, false
	}
	c, ok := d.collections[cid]
	return c, ok
}

// CreateCollection creates (or reopens, on a duplicate CREATE_COLLECTION
// marker per Pass 2's idempotent-replay contract) a collection with id cid.
func (d *Database) CreateCollection(cid uint64, name string, volatile bool) (*storage.Collection, error) {
	if err := ValidateCollectionName(name); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if existing, ok := d.collections[cid]; ok {
		return existing, nil
	}
	if _, ok := d.byName[name]; ok {
		return nil, catalogerrors.ErrCollectionExists
	}

	dir := ""
	if !volatile {
		dir = d.collectionDir(cid)
	}
	c, err := storage.NewCollection(cid, name, dir, volatile, d.logger)
	if err != nil {
		return nil, err
	}

	d.collections[cid] = c
	d.byName[name] = cid
	d.logger.Info("database %q: created collection %q (cid=%d)", d.Name, name, cid)
	return c, nil
}

// DropCollection closes and removes a collection from the registry, and
// unlinks its on-disk directory.
func (d *Database) DropCollection(cid uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	c, ok := d.collections[cid]
	if !ok {
		return catalogerrors.ErrCollectionNotFound
	}

	if err := c.Close(); err != nil {
		return err
	}
	delete(d.collections, cid)
	delete(d.byName, c.Name)

	if !c.Volatile {
		dir := d.collectionDir(cid)
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("catalog: drop collection: %w", err)
		}
	}

	d.logger.Info("database %q: dropped collection %q (cid=%d)", d.Name, c.Name, cid)
	return nil
}

// RenameCollection updates the in-memory name index. The collection keeps
// its directory (collection-<id>/, not collection-<name>/), so no file move
// is required.
func (d *Database) RenameCollection(cid uint64, newName string) error {
	if err := ValidateCollectionName(newName); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	c, ok := d.collections[cid]
	if !ok {
		return catalogerrors.ErrCollectionNotFound
	}
	if _, taken := d.byName[newName]; taken {
		return catalogerrors.ErrCollectionExists
	}

	delete(d.byName, c.Name)
	c.Name = newName
	d.byName[newName] = cid
	return nil
}

// UpdateCollectionInfo applies a CHANGE_COLLECTION property update. Property
// storage itself belongs to the (out-of-scope) storage engine; this only
// confirms the target still exists, mirroring the catalog's role as the
// thing CHANGE_COLLECTION replay talks to (§4.5, §6).
func (d *Database) UpdateCollectionInfo(cid uint64, _ tbjson.Object) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if _, ok := d.collections[cid]; !ok {
		return catalogerrors.ErrCollectionNotFound
	}
	return nil
}

// CollectionDir exposes the on-disk collection directory even for a
// collection id not yet loaded, used by index file bookkeeping.
func (d *Database) CollectionDir(cid uint64) string {
	return d.collectionDir(cid)
}

func (d *Database) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, c := range d.collections {
		c.Close()
	}
}
