package recovery

import (
	"errors"
	"fmt"

	recoveryerrors "github.com/voxstore/voxdb/internal/errors"
	"github.com/voxstore/voxdb/internal/storage"
	"github.com/voxstore/voxdb/internal/tbjson"
	"github.com/voxstore/voxdb/internal/wal"
)

// replay is the Replayer (C5, §4.5): a second linear walk that materializes
// DDL and CRUD against the storage engine. droppedDatabases/droppedCollections
// are cleared up front and rebuilt as DROP markers are encountered, so
// shadowing is evaluated in tick order rather than from the Pass-1 snapshot.
func (e *Engine) replay(paths []string) error {
	e.state.droppedDatabases = make(map[uint64]bool)
	e.state.droppedCollections = make(map[uint64]bool)

	for _, path := range paths {
		if err := e.pageAdvisor.AdviseSequential(path); err != nil {
			e.logger.Warn("advise sequential on %s: %v", path, err)
		}

		if err := e.replayFile(path); err != nil {
			return err
		}

		if err := e.pageAdvisor.AdviseRandom(path); err != nil {
			e.logger.Warn("advise random on %s: %v", path, err)
		}
	}
	return nil
}

func (e *Engine) replayFile(path string) error {
	r := wal.NewReader(path, e.logger)
	if err := r.Open(); err != nil {
		return fmt.Errorf("recovery: %w: open %s: %v", recoveryerrors.ErrRecovery, path, err)
	}
	defer r.Close()

	e.state.clearCollectionContext()

	for {
		m, err := r.Next()
		if err != nil {
			return fmt.Errorf("recovery: %w: replay %s: %v", recoveryerrors.ErrRecovery, path, err)
		}
		if m == nil {
			return nil
		}

		if err := e.replayMarker(m); err != nil {
			if errors.Is(err, recoveryerrors.ErrRecovery) {
				return err
			}
			return fmt.Errorf("recovery: %w: %v", recoveryerrors.ErrRecovery, err)
		}
	}
}

// replayMarker dispatches one marker to its DDL/CRUD handler and folds the
// result through the error-treatment table (§7).
func (e *Engine) replayMarker(m *wal.Marker) error {
	var err error

	switch m.Type {
	case wal.MarkerHeader, wal.MarkerFooter:
		e.state.clearCollectionContext()
		return nil

	case wal.MarkerPrologue:
		e.state.resetCollection(m.DatabaseID, m.CollectionID)
		return nil

	case wal.MarkerDocument:
		err = e.applyDocument(m)
	case wal.MarkerRemove:
		err = e.applyRemove(m)

	case wal.MarkerCreateDatabase:
		err = e.ddlCreateDatabase(m)
	case wal.MarkerDropDatabase:
		err = e.ddlDropDatabase(m)
	case wal.MarkerCreateCollection:
		err = e.ddlCreateCollection(m)
	case wal.MarkerDropCollection:
		err = e.ddlDropCollection(m)
	case wal.MarkerRenameCollection:
		err = e.ddlRenameCollection(m)
	case wal.MarkerChangeCollection:
		err = e.ddlChangeCollection(m)
	case wal.MarkerCreateIndex:
		err = e.ddlCreateIndex(m)
	case wal.MarkerDropIndex:
		err = e.ddlDropIndex(m)

	default:
		// BEGIN/COMMIT/ABORT transaction markers carry no Pass-2 action of
		// their own; any other unrecognised kind is silent (§4.5).
		return nil
	}

	return e.treat(err)
}

// treat folds a collaborator error through the treatment table (§7):
// non-fatal outcomes are swallowed, CORRUPTED_COLLECTION is fatal unless
// ignoreRecoveryErrors, and everything else increments errorCount and stops
// replay once canContinue() turns false.
func (e *Engine) treat(err error) error {
	if err == nil {
		return nil
	}

	switch e.classifier.Classify(err, e.state.ignoreRecoveryErrors) {
	case recoveryerrors.TreatmentSkip, recoveryerrors.TreatmentUpgradeToUpdate:
		return nil

	case recoveryerrors.TreatmentFatal:
		e.state.recordError()
		return fmt.Errorf("%w: %v", recoveryerrors.ErrRecovery, err)

	default: // TreatmentLogAndCount
		e.logger.Warn("recovery: tolerated error: %v", err)
		e.state.recordError()
		if !e.state.canContinue() {
			return fmt.Errorf("%w: %v", recoveryerrors.ErrRecovery, err)
		}
		return nil
	}
}

// executeSingleOperation implements §4.5's numbered steps for one CRUD
// marker: open the target database and collection through the resource
// cache, skip if already durable (I5) or volatile, then apply.
func (e *Engine) executeSingleOperation(dbID, colID, tick uint64, apply func(*storage.Collection) error) error {
	vocbase, err := e.state.useDatabase(dbID) // step 1
	if err != nil {
		return err
	}

	collection, err := e.state.useCollection(vocbase, colID) // step 2
	if err != nil {
		return err
	}

	if collection.TickMax() >= tick { // step 3 (I5)
		return nil
	}

	// Steps 4 (transaction hints) and 6 (silent/recoveryMarker options) are
	// properties of the live WAL writer and storage engine that this single-
	// process, single-threaded replay has no separate write path for: every
	// write below already goes through WriteNoSync with no secondary WAL
	// append, which is the observable effect those hints exist to produce.
	if collection.IsVolatile() { // step 5
		return nil
	}

	return apply(collection) // step 6, 7 (commit is implicit: Insert/Update/Remove are each one durable write)
}

func (e *Engine) applyDocument(m *wal.Marker) error {
	if e.state.lastDatabaseID == 0 && e.state.lastCollectionID == 0 {
		return fmt.Errorf("%w: DOCUMENT marker without a preceding PROLOGUE", recoveryerrors.ErrInvalidPayload)
	}
	if e.state.isDroppedDatabase(e.state.lastDatabaseID) || e.state.isDroppedCollection(e.state.lastCollectionID) {
		return nil
	}
	if e.state.ignoreTransaction(m.TransactionID) {
		return nil
	}

	doc, err := tbjson.Parse(m.Document)
	if err != nil {
		return fmt.Errorf("%w: %v", recoveryerrors.ErrInvalidPayload, err)
	}

	dbID, colID := e.state.lastDatabaseID, e.state.lastCollectionID
	return e.executeSingleOperation(dbID, colID, m.Tick, func(c *storage.Collection) error {
		insertErr := c.Insert(m.Tick, doc, m.Document)
		if errors.Is(insertErr, recoveryerrors.ErrUniqueConstraintViolated) {
			return c.Update(m.Tick, doc, m.Document)
		}
		return insertErr
	})
}

func (e *Engine) applyRemove(m *wal.Marker) error {
	if e.state.lastDatabaseID == 0 && e.state.lastCollectionID == 0 {
		return fmt.Errorf("%w: REMOVE marker without a preceding PROLOGUE", recoveryerrors.ErrInvalidPayload)
	}
	if e.state.isDroppedDatabase(e.state.lastDatabaseID) || e.state.isDroppedCollection(e.state.lastCollectionID) {
		return nil
	}
	if e.state.ignoreTransaction(m.TransactionID) {
		return nil
	}

	doc, err := tbjson.Parse(m.Document)
	if err != nil {
		return fmt.Errorf("%w: %v", recoveryerrors.ErrInvalidPayload, err)
	}
	key, ok := doc.GetString("_key")
	if !ok {
		return fmt.Errorf("%w: REMOVE marker missing _key", recoveryerrors.ErrInvalidPayload)
	}

	dbID, colID := e.state.lastDatabaseID, e.state.lastCollectionID
	return e.executeSingleOperation(dbID, colID, m.Tick, func(c *storage.Collection) error {
		return c.Remove(m.Tick, key)
	})
}
