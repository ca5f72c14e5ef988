package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	storageerrors "github.com/voxstore/voxdb/internal/errors"
	"github.com/voxstore/voxdb/internal/logger"
	"github.com/voxstore/voxdb/internal/tbjson"
)

// documentVersion is one live or tombstoned document in a collection.
type documentVersion struct {
	Payload []byte
	Deleted bool
}

// Collection is the storage-engine collaborator's per-collection handle:
// documents keyed by "_key", a tickMax watermark (invariant I5), and the
// secondary indexes the index builder (C7) re-fills after replay.
//
// Grounded on docdb/internal/docdb/index.go's sharded version-index idea,
// simplified to one map since recovery never has concurrent writers (§5).
type Collection struct {
	mu sync.RWMutex

	ID       uint64
	Name     string
	Volatile bool
	IsSystem bool

	dataFile *DataFile // nil when Volatile
	docs     map[string]*documentVersion
	tickMax  uint64

	indexesEnabled bool
	indexes        map[uint64]*SecondaryIndex
	indexFiles     map[uint64]string
	indexDir       string

	logger *logger.Logger
}

// NewCollection opens (or creates) a collection's storage. dir is the
// on-disk collection directory that holds its datafile and index-<iid>.json
// files; for volatile collections dir may be empty and no datafile is
// created.
func NewCollection(id uint64, name, dir string, volatile bool, log *logger.Logger) (*Collection, error) {
	c := &Collection{
		ID:             id,
		Name:           name,
		Volatile:       volatile,
		IsSystem:       strings.HasPrefix(name, "_"),
		docs:           make(map[string]*documentVersion),
		indexesEnabled: true,
		indexes:        make(map[uint64]*SecondaryIndex),
		indexFiles:     make(map[uint64]string),
		indexDir:       dir,
		logger:         log,
	}

	if !volatile {
		if dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("storage: create collection dir: %w", err)
			}
		}
		df := NewDataFile(filepath.Join(dir, "documents.data"), log)
		if err := df.Open(); err != nil {
			return nil, err
		}
		c.dataFile = df
	}

	return c, nil
}

// CollectionID, CollectionName and IsVolatile are the read-only accessors
// the recovery engine calls; they exist alongside the exported
// ID/Name/Volatile fields.
func (c *Collection) CollectionID() uint64 { return c.ID }

func (c *Collection) CollectionName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Name
}

func (c *Collection) IsVolatile() bool { return c.Volatile }

// IsSystemCollection reports whether the collection's name marks it as a
// system collection (name[0] == '_'), computed once at open time per
// CREATE_COLLECTION step (c).
func (c *Collection) IsSystemCollection() bool { return c.IsSystem }

// Sync flushes the collection's datafile, used after CREATE_COLLECTION
// replay when forceSyncProperties is in effect (§4.5).
func (c *Collection) Sync() error {
	if c.dataFile == nil {
		return nil
	}
	return c.dataFile.Sync()
}

func (c *Collection) TickMax() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tickMax
}

func (c *Collection) bumpTickMax(tick uint64) {
	if tick > c.tickMax {
		c.tickMax = tick
	}
}

func keyOf(doc tbjson.Object) (string, error) {
	key, ok := doc.GetString("_key")
	if !ok || key == "" {
		return "", storageerrors.ErrInvalidPayload
	}
	return key, nil
}

// Insert performs an insert-or-unique-violation. tick is the marker tick
// driving the tickMax watermark (I5); callers are expected to have already
// checked TickMax() >= tick themselves (executeSingleOperation step 3), but
// Insert re-applies the bump defensively so direct callers stay correct.
func (c *Collection) Insert(tick uint64, doc tbjson.Object, payload []byte) error {
	key, err := keyOf(doc)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.docs[key]; ok && !existing.Deleted {
		return storageerrors.ErrUniqueConstraintViolated
	}

	if c.dataFile != nil {
		if _, err := c.dataFile.WriteNoSync(payload); err != nil {
			return err
		}
	}
	c.docs[key] = &documentVersion{Payload: payload}
	c.bumpTickMax(tick)

	if c.indexesEnabled {
		for _, idx := range c.indexes {
			idx.Add(key, doc)
		}
	}
	return nil
}

// Update overwrites an existing document's payload.
func (c *Collection) Update(tick uint64, doc tbjson.Object, payload []byte) error {
	key, err := keyOf(doc)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	previous, existed := c.docs[key]

	if c.dataFile != nil {
		if _, err := c.dataFile.WriteNoSync(payload); err != nil {
			return err
		}
	}
	c.docs[key] = &documentVersion{Payload: payload}
	c.bumpTickMax(tick)

	if c.indexesEnabled {
		if existed && !previous.Deleted {
			for _, idx := range c.indexes {
				idx.Remove(key)
			}
		}
		for _, idx := range c.indexes {
			idx.Add(key, doc)
		}
	}
	return nil
}

// Remove tombstones a document by key.
func (c *Collection) Remove(tick uint64, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	existing, ok := c.docs[key]
	if !ok || existing.Deleted {
		return storageerrors.ErrDatabaseNotFound // target already gone; caller treats as silent-skip kind
	}

	existing.Deleted = true
	c.bumpTickMax(tick)

	if c.indexesEnabled {
		for _, idx := range c.indexes {
			idx.Remove(key)
		}
	}
	return nil
}

// Get returns a live document's payload and TBJSON object.
func (c *Collection) Get(key string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.docs[key]
	if !ok || v.Deleted {
		return nil, false
	}
	return v.Payload, true
}

// DocCount returns the number of live (non-tombstoned) documents.
func (c *Collection) DocCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, v := range c.docs {
		if !v.Deleted {
			n++
		}
	}
	return n
}

// UseSecondaryIndexes toggles index maintenance, per C3's "disable on open,
// re-enable in C7" discipline.
func (c *Collection) UseSecondaryIndexes(enable bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.indexesEnabled = enable
}

// CreateIndex registers a new secondary index on field and persists its
// definition to index-<iid>.json, overwriting any previous file (§4.5).
func (c *Collection) CreateIndex(iid uint64, field string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.indexes[iid] = NewSecondaryIndex(field)

	path, err := c.writeIndexFileLocked(iid, field)
	if err != nil {
		return "", err
	}
	return path, nil
}

func (c *Collection) writeIndexFileLocked(iid uint64, field string) (string, error) {
	if c.indexDir == "" {
		return "", nil
	}
	path := filepath.Join(c.indexDir, fmt.Sprintf("index-%d.json", iid))
	data, err := tbjson.Encode(map[string]interface{}{"iid": iid, "field": field})
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("storage: write index file: %w", err)
	}
	c.indexFiles[iid] = path
	return path, nil
}

// DropIndex removes the index from the catalog and unlinks its file.
func (c *Collection) DropIndex(iid uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.indexes, iid)
	path, ok := c.indexFiles[iid]
	delete(c.indexFiles, iid)
	if !ok || path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("storage: remove index file: %w", err)
	}
	return nil
}

// FillIndexes bulk-rebuilds every registered secondary index from the live
// document set (C7).
func (c *Collection) FillIndexes() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, idx := range c.indexes {
		idx.Clear()
		for key, v := range c.docs {
			if v.Deleted {
				continue
			}
			obj, err := tbjson.Parse(v.Payload)
			if err != nil {
				return fmt.Errorf("storage: fill index: %w", err)
			}
			idx.Add(key, obj)
		}
	}
	return nil
}

func (c *Collection) Close() error {
	if c.dataFile == nil {
		return nil
	}
	return c.dataFile.Close()
}
