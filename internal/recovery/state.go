// Package recovery implements the two-pass WAL crash-recovery engine: the
// state tracker (C2), resource cache (C3), initial scanner (C4), replayer
// (C5), abort writer (C6), index builder (C7) and empty-logfile reaper (C8).
//
// Grounded on docdb's package shape (one package per concern, constructor
// plus method set, no inheritance), generalized to the marker-replay
// semantics ArangoDB's arangod/Wal/RecoverState.cpp describes.
package recovery

import (
	"github.com/voxstore/voxdb/internal/catalog"
	"github.com/voxstore/voxdb/internal/storage"
)

// failedTransaction is one entry in the transaction registry built by Pass 1
// (§4.2, §4.4): a begin marker with no matching commit.
type failedTransaction struct {
	DatabaseID uint64
	Aborted    bool
}

// state is the recovery run's process-wide tracking (§3). It is
// reconstructed fresh for every Engine.Run.
type state struct {
	lastTick uint64

	// lastDatabaseID/lastCollectionID carry the context of the most recent
	// PROLOGUE within the current datafile (I3); both reset to 0 on
	// HEADER/FOOTER.
	lastDatabaseID   uint64
	lastCollectionID uint64

	failedTransactions map[uint64]*failedTransaction

	// droppedDatabases/droppedCollections are rebuilt during Pass 2 replay
	// as DROP markers are encountered in tick order (§4.5).
	droppedDatabases   map[uint64]bool
	droppedCollections map[uint64]bool

	// willBeDroppedCollections is the Pass-1 snapshot, consulted by
	// willBeDropped and never mutated after Pass 1 (§4.4).
	willBeDroppedCollections map[uint64]bool

	openedDatabases      map[uint64]*catalog.Database
	openedCollections    map[uint64]*storage.Collection
	collectionToDatabase map[uint64]uint64 // for releaseDatabase (§4.3)

	needsIndexRebuild map[uint64]bool

	emptyLogfiles []string

	errorCount           uint32
	ignoreRecoveryErrors bool

	catalog Catalog
}

func newState(cat Catalog, ignoreRecoveryErrors bool) *state {
	return &state{
		failedTransactions:       make(map[uint64]*failedTransaction),
		droppedDatabases:         make(map[uint64]bool),
		droppedCollections:       make(map[uint64]bool),
		willBeDroppedCollections: make(map[uint64]bool),
		openedDatabases:          make(map[uint64]*catalog.Database),
		openedCollections:        make(map[uint64]*storage.Collection),
		collectionToDatabase:     make(map[uint64]uint64),
		needsIndexRebuild:        make(map[uint64]bool),
		ignoreRecoveryErrors:     ignoreRecoveryErrors,
		catalog:                  cat,
	}
}

func (s *state) bumpTick(tick uint64) {
	if tick > s.lastTick {
		s.lastTick = tick
	}
}

// ignoreTransaction reports whether tid belongs to a failed transaction.
// tid == 0 marks a standalone write outside any transaction and is never
// ignored (§4.2).
func (s *state) ignoreTransaction(tid uint64) bool {
	if tid == 0 {
		return false
	}
	_, ok := s.failedTransactions[tid]
	return ok
}

func (s *state) isDroppedDatabase(id uint64) bool   { return s.droppedDatabases[id] }
func (s *state) isDroppedCollection(id uint64) bool { return s.droppedCollections[id] }

// willBeDropped consults the Pass-1 snapshot, not the current-pass set
// (§4.4's droppedIds, consumed by CREATE_COLLECTION's forceSync shortcut).
func (s *state) willBeDropped(cid uint64) bool { return s.willBeDroppedCollections[cid] }

func (s *state) resetCollection(db, col uint64) {
	s.lastDatabaseID = db
	s.lastCollectionID = col
}

func (s *state) clearCollectionContext() {
	s.lastDatabaseID = 0
	s.lastCollectionID = 0
}

// canContinue implements §4.2: replay keeps going past non-fatal errors only
// while ignoreRecoveryErrors is set, or no error has been recorded yet.
func (s *state) canContinue() bool {
	return s.ignoreRecoveryErrors || s.errorCount == 0
}

func (s *state) recordError() {
	s.errorCount++
}
