package recovery

import (
	"errors"
	"fmt"
	"os"
	"time"

	recoveryerrors "github.com/voxstore/voxdb/internal/errors"
	"github.com/voxstore/voxdb/internal/wal"
)

func ddlName(m *wal.Marker) (string, bool) {
	data, ok := m.Object.GetObject("data")
	if !ok {
		return "", false
	}
	return data.GetString("name")
}

// ddlCreateDatabase implements §4.5's CREATE_DATABASE steps: forget any drop
// recorded earlier in this pass, evict a same-id or same-name survivor (waiting for
// its directory to disappear each time), then create fresh.
func (e *Engine) ddlCreateDatabase(m *wal.Marker) error {
	dbID := m.DatabaseID
	name, _ := ddlName(m)

	delete(e.state.droppedDatabases, dbID)

	if _, ok := e.state.catalog.LookupDatabaseByID(dbID); ok {
		dropErr := e.state.catalog.DropDatabaseByID(dbID)
		if err := e.waitForDeletion(e.state.catalog.DatabaseDir(dbID), dropErr); err != nil {
			return err
		}
	}
	if existing, ok := e.state.catalog.LookupDatabaseByName(name); ok {
		dropErr := e.state.catalog.DropDatabaseByName(name)
		if err := e.waitForDeletion(e.state.catalog.DatabaseDir(existing.ID), dropErr); err != nil {
			return err
		}
	}

	_, err := e.state.catalog.CreateDatabase(dbID, name)
	return err
}

// ddlDropDatabase records the drop, releases any cached handle and asks the
// catalog to drop. Failures are best-effort per §4.5.
func (e *Engine) ddlDropDatabase(m *wal.Marker) error {
	dbID := m.DatabaseID
	e.state.droppedDatabases[dbID] = true
	e.state.releaseDatabase(dbID)

	if err := e.state.catalog.DropDatabaseByID(dbID); err != nil {
		e.logger.Warn("recovery: best-effort drop database %d failed: %v", dbID, err)
	}
	return nil
}

// ddlCreateCollection implements §4.5's five CREATE_COLLECTION steps.
func (e *Engine) ddlCreateCollection(m *wal.Marker) error {
	cid := m.CollectionID
	name, _ := ddlName(m)

	delete(e.state.droppedCollections, cid) // (a)

	db, err := e.state.useDatabase(m.DatabaseID)
	if err != nil {
		return err
	}

	if _, ok := db.LookupCollectionByID(cid); ok { // (b)
		if err := db.DropCollection(cid); err != nil {
			return err
		}
	}
	if existing, ok := db.LookupCollectionByName(name); ok && existing.CollectionID() != cid {
		if err := db.DropCollection(existing.CollectionID()); err != nil {
			return err
		}
	}

	volatile := false
	if data, ok := m.Object.GetObject("data"); ok {
		if v, ok := data.Get("isVolatile"); ok {
			if b, ok := v.(bool); ok {
				volatile = b
			}
		}
	}
	// (c) isSystem is derived from name and stored on the collection itself
	// by storage.NewCollection, rather than threaded through here.

	forceSync := db.ForceSyncProperties()
	if e.state.willBeDropped(cid) { // (e)
		db.SetForceSyncProperties(false)
		defer db.SetForceSyncProperties(forceSync)
	}

	col, err := db.CreateCollection(cid, name, volatile) // (d)
	if err != nil {
		return err
	}
	if db.ForceSyncProperties() {
		if err := col.Sync(); err != nil {
			return err
		}
	}

	e.state.registerCollection(m.DatabaseID, col)
	return nil
}

// ddlDropCollection records the drop, releases any cached handle, and drops
// through the database.
func (e *Engine) ddlDropCollection(m *wal.Marker) error {
	cid := m.CollectionID
	e.state.droppedCollections[cid] = true
	e.state.releaseCollection(cid)

	db, err := e.state.useDatabase(m.DatabaseID)
	if err != nil {
		return err
	}
	return db.DropCollection(cid)
}

// ddlRenameCollection: if the target name is already taken by a different
// collection, drop that collection first so the rename can proceed — the
// rename target is deterministic, so replaying this twice is a no-op the
// second time.
func (e *Engine) ddlRenameCollection(m *wal.Marker) error {
	cid := m.CollectionID
	newName, ok := ddlName(m)
	if !ok {
		return fmt.Errorf("%w: RENAME_COLLECTION missing data.name", recoveryerrors.ErrInvalidPayload)
	}

	db, err := e.state.useDatabase(m.DatabaseID)
	if err != nil {
		return err
	}

	if other, ok := db.LookupCollectionByName(newName); ok && other.CollectionID() != cid {
		if err := db.DropCollection(other.CollectionID()); err != nil {
			return err
		}
	}
	return db.RenameCollection(cid, newName)
}

// ddlChangeCollection applies a property change through the catalog,
// honoring the database's forceSyncProperties toggle.
func (e *Engine) ddlChangeCollection(m *wal.Marker) error {
	db, err := e.state.useDatabase(m.DatabaseID)
	if err != nil {
		return err
	}
	data, _ := m.Object.GetObject("data")
	if err := db.UpdateCollectionInfo(m.CollectionID, data); err != nil {
		return err
	}
	if db.ForceSyncProperties() {
		if col, ok := db.LookupCollectionByID(m.CollectionID); ok {
			return col.Sync()
		}
	}
	return nil
}

// ddlCreateIndex writes the index-<iid>.json definition file and flags the
// collection for C7's bulk fill; the fill itself happens after replay.
func (e *Engine) ddlCreateIndex(m *wal.Marker) error {
	db, err := e.state.useDatabase(m.DatabaseID)
	if err != nil {
		return err
	}
	col, err := e.state.useCollection(db, m.CollectionID)
	if err != nil {
		return err
	}

	field := ""
	if data, ok := m.Object.GetObject("data"); ok {
		field, _ = data.GetString("field")
	}

	if _, err := col.CreateIndex(m.IndexID, field); err != nil {
		return err
	}
	e.state.needsIndexRebuild[m.CollectionID] = true
	return nil
}

func (e *Engine) ddlDropIndex(m *wal.Marker) error {
	db, err := e.state.useDatabase(m.DatabaseID)
	if err != nil {
		return err
	}
	col, err := e.state.useCollection(db, m.CollectionID)
	if err != nil {
		return err
	}
	return col.DropIndex(m.IndexID)
}

// waitForDeletion polls for dir to disappear, at most 30s, logging an
// informational message once 5s have passed (§4.5). Open
// Question (a): the source forcefully removes the directory on the first
// iteration whenever statusErr is non-nil and isn't ErrForbidden — a
// tautological condition (it fires for nearly every error) preserved as-is
// rather than corrected, per §9's note; dropErr == nil (clean drop) still
// polls normally rather than forcing.
func (e *Engine) waitForDeletion(dir string, dropErr error) error {
	if dropErr != nil && !errors.Is(dropErr, recoveryerrors.ErrForbidden) {
		_ = os.RemoveAll(dir)
		return nil
	}

	const pollInterval = 100 * time.Millisecond
	const timeout = 30 * time.Second

	var elapsed time.Duration
	for {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			return nil
		}
		if elapsed >= timeout {
			return fmt.Errorf("%w: %s did not disappear within %s", recoveryerrors.ErrInternal, dir, timeout)
		}
		if elapsed == 5*time.Second {
			e.logger.Info("recovery: still waiting for %s to disappear", dir)
		}
		time.Sleep(pollInterval)
		elapsed += pollInterval
	}
}
