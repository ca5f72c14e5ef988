package recovery

import (
	"github.com/voxstore/voxdb/internal/catalog"
	catalogerrors "github.com/voxstore/voxdb/internal/errors"
	"github.com/voxstore/voxdb/internal/storage"
)

// useDatabase returns a cached database handle, or acquires and memoizes one
// from the catalog on first use (C3, §4.3).
func (s *state) useDatabase(id uint64) (*catalog.Database, error) {
	if db, ok := s.openedDatabases[id]; ok {
		return db, nil
	}
	db, ok := s.catalog.LookupDatabaseByID(id)
	if !ok {
		return nil, catalogerrors.ErrDatabaseNotFound
	}
	s.openedDatabases[id] = db
	return db, nil
}

// useCollection mirrors useDatabase for collections. On first open it
// disables secondary indexes so CRUD replay costs no index maintenance,
// deferring re-enabling to the Index Builder (C7).
func (s *state) useCollection(db *catalog.Database, cid uint64) (*storage.Collection, error) {
	if col, ok := s.openedCollections[cid]; ok {
		return col, nil
	}
	col, ok := db.LookupCollectionByID(cid)
	if !ok {
		return nil, catalogerrors.ErrCollectionNotFound
	}
	s.registerCollection(db.ID, col)
	return col, nil
}

// registerCollection caches col as opened for this run and unconditionally
// flags it for C7's rebuild pass. The collection handle itself can survive
// across repeated Engine.Run invocations (the catalog isn't rebuilt between
// runs), so whether it already owns a live secondary index can't be read off
// whether a CREATE_INDEX marker happens to appear in *this* run's markers —
// disabling indexes on open always has to be paired with a rebuild, not just
// when this run is the one that created the index.
func (s *state) registerCollection(dbID uint64, col *storage.Collection) {
	cid := col.CollectionID()
	col.UseSecondaryIndexes(false)
	s.openedCollections[cid] = col
	s.collectionToDatabase[cid] = dbID
	s.needsIndexRebuild[cid] = true
}

// releaseCollection releases one cached collection handle (§4.3).
func (s *state) releaseCollection(cid uint64) {
	delete(s.openedCollections, cid)
	delete(s.collectionToDatabase, cid)
}

// releaseDatabase releases every cached collection belonging to id first,
// then the database handle itself (§4.3).
func (s *state) releaseDatabase(id uint64) {
	for cid, dbID := range s.collectionToDatabase {
		if dbID == id {
			s.releaseCollection(cid)
		}
	}
	delete(s.openedDatabases, id)
}

// releaseAll releases every remaining handle, mirroring the recovery
// state's destructor (§3 Lifecycle).
func (s *state) releaseAll() {
	s.openedCollections = make(map[uint64]*storage.Collection)
	s.collectionToDatabase = make(map[uint64]uint64)
	s.openedDatabases = make(map[uint64]*catalog.Database)
}
