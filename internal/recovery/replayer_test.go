package recovery

import (
	"errors"
	"path/filepath"
	"testing"

	recoveryerrors "github.com/voxstore/voxdb/internal/errors"
	"github.com/voxstore/voxdb/internal/storage"
	"github.com/voxstore/voxdb/internal/tbjson"
	"github.com/voxstore/voxdb/internal/wal"
)

func newReplayEngine(t *testing.T) *Engine {
	t.Helper()
	e := newTestEngine(t, filepath.Join(t.TempDir(), "0.wal"))
	newScanState(e)
	return e
}

func TestExecuteSingleOperationSkipsWhenTickMaxAlreadyAdvanced(t *testing.T) {
	e := newReplayEngine(t)

	db, err := e.catalog.CreateDatabase(1, "d")
	if err != nil {
		t.Fatalf("create database: %v", err)
	}
	col, err := db.CreateCollection(1, "c", false)
	if err != nil {
		t.Fatalf("create collection: %v", err)
	}

	doc, _ := tbjson.Parse([]byte(`{"_key":"a","v":1}`))
	if err := col.Insert(10, doc, []byte(`{"_key":"a","v":1}`)); err != nil {
		t.Fatalf("seed insert: %v", err)
	}

	called := false
	if err := e.executeSingleOperation(1, 1, 5, func(c *storage.Collection) error {
		called = true
		return nil
	}); err != nil {
		t.Fatalf("executeSingleOperation: %v", err)
	}
	if called {
		t.Fatalf("apply should be skipped: marker tick 5 <= collection tickMax 10 (I5)")
	}
}

func TestExecuteSingleOperationNoopOnVolatileCollection(t *testing.T) {
	e := newReplayEngine(t)

	db, err := e.catalog.CreateDatabase(1, "d")
	if err != nil {
		t.Fatalf("create database: %v", err)
	}
	if _, err := db.CreateCollection(1, "c", true); err != nil {
		t.Fatalf("create volatile collection: %v", err)
	}

	called := false
	if err := e.executeSingleOperation(1, 1, 1, func(c *storage.Collection) error {
		called = true
		return nil
	}); err != nil {
		t.Fatalf("executeSingleOperation: %v", err)
	}
	if called {
		t.Fatalf("apply should be skipped for a volatile collection")
	}
}

func TestExecuteSingleOperationCachesHandlesAcrossCalls(t *testing.T) {
	e := newReplayEngine(t)

	db, _ := e.catalog.CreateDatabase(1, "d")
	if _, err := db.CreateCollection(1, "c", false); err != nil {
		t.Fatalf("create collection: %v", err)
	}

	calls := 0
	apply := func(c *storage.Collection) error { calls++; return nil }
	if err := e.executeSingleOperation(1, 1, 1, apply); err != nil {
		t.Fatalf("first call: %v", err)
	}
	if err := e.executeSingleOperation(1, 1, 2, apply); err != nil {
		t.Fatalf("second call: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected apply invoked twice, got %d", calls)
	}
	if _, ok := e.state.openedDatabases[1]; !ok {
		t.Fatalf("database 1 should be cached in the resource cache")
	}
	if _, ok := e.state.openedCollections[1]; !ok {
		t.Fatalf("collection 1 should be cached in the resource cache")
	}
}

func TestApplyDocumentRequiresPrologue(t *testing.T) {
	e := newReplayEngine(t)
	m := &wal.Marker{Type: wal.MarkerDocument, Tick: 1, Document: []byte(`{"_key":"a"}`)}

	err := e.applyDocument(m)
	if !errors.Is(err, recoveryerrors.ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload for a DOCUMENT marker with no preceding PROLOGUE, got %v", err)
	}
}

func TestApplyDocumentSkipsDroppedCollection(t *testing.T) {
	e := newReplayEngine(t)
	e.state.resetCollection(1, 1)
	e.state.droppedCollections[1] = true

	m := &wal.Marker{Type: wal.MarkerDocument, Tick: 1, Document: []byte(`{"_key":"a","v":1}`)}
	if err := e.applyDocument(m); err != nil {
		t.Fatalf("applyDocument on a dropped collection should be silent, got %v", err)
	}
}

func TestApplyDocumentSkipsIgnoredTransaction(t *testing.T) {
	e := newReplayEngine(t)

	db, _ := e.catalog.CreateDatabase(1, "d")
	if _, err := db.CreateCollection(1, "c", false); err != nil {
		t.Fatalf("create collection: %v", err)
	}
	e.state.resetCollection(1, 1)
	e.state.failedTransactions[55] = &failedTransaction{DatabaseID: 1}

	m := &wal.Marker{Type: wal.MarkerDocument, Tick: 1, TransactionID: 55, Document: []byte(`{"_key":"a","v":1}`)}
	if err := e.applyDocument(m); err != nil {
		t.Fatalf("applyDocument: %v", err)
	}

	col, _ := db.LookupCollectionByID(1)
	if col.DocCount() != 0 {
		t.Fatalf("a document written under a failed transaction must not be applied")
	}
}

func TestApplyDocumentUpgradesDuplicateInsertToUpdate(t *testing.T) {
	e := newReplayEngine(t)

	db, _ := e.catalog.CreateDatabase(1, "d")
	if _, err := db.CreateCollection(1, "c", false); err != nil {
		t.Fatalf("create collection: %v", err)
	}
	e.state.resetCollection(1, 1)

	doc1 := []byte(`{"_key":"a","v":1}`)
	if err := e.applyDocument(&wal.Marker{Type: wal.MarkerDocument, Tick: 1, Document: doc1}); err != nil {
		t.Fatalf("first apply: %v", err)
	}

	doc2 := []byte(`{"_key":"a","v":2}`)
	if err := e.applyDocument(&wal.Marker{Type: wal.MarkerDocument, Tick: 2, Document: doc2}); err != nil {
		t.Fatalf("second apply: %v", err)
	}

	col, _ := db.LookupCollectionByID(1)
	payload, ok := col.Get("a")
	if !ok {
		t.Fatalf("expected document \"a\" to exist")
	}
	if string(payload) != string(doc2) {
		t.Fatalf("expected the second DOCUMENT marker to upgrade to an update, payload = %s, want %s", payload, doc2)
	}
	if col.DocCount() != 1 {
		t.Fatalf("expected exactly one live document, got %d", col.DocCount())
	}
}

func TestApplyRemoveRequiresKey(t *testing.T) {
	e := newReplayEngine(t)
	e.state.resetCollection(1, 1)

	m := &wal.Marker{Type: wal.MarkerRemove, Tick: 1, Document: []byte(`{}`)}
	err := e.applyRemove(m)
	if !errors.Is(err, recoveryerrors.ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload for a REMOVE marker missing _key, got %v", err)
	}
}

func TestApplyRemoveOfMissingKeyIsSilent(t *testing.T) {
	e := newReplayEngine(t)
	db, _ := e.catalog.CreateDatabase(1, "d")
	if _, err := db.CreateCollection(1, "c", false); err != nil {
		t.Fatalf("create collection: %v", err)
	}
	e.state.resetCollection(1, 1)

	m := &wal.Marker{Type: wal.MarkerRemove, Tick: 1, Document: []byte(`{"_key":"ghost"}`)}
	if err := e.treat(e.applyRemove(m)); err != nil {
		t.Fatalf("removing an already-gone document must be tolerated, got %v", err)
	}
}

func TestReplayMaterializesDatabaseCollectionAndDocument(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "0.wal")
	writeMarkers(t, path, [][]byte{
		mustEncode(t, wal.EncodeHeader(1)),
		mustEncode(t, wal.EncodeCreateDatabase(2, 7, "d")),
		mustEncode(t, wal.EncodeCreateCollection(3, 7, 9, "c")),
		mustEncode(t, wal.EncodePrologue(4, 7, 9)),
		mustEncode(t, wal.EncodeBeginTransaction(5, 7, 100)),
		mustEncode(t, wal.EncodeDocument(6, 100, []byte(`{"_key":"a","v":1}`))),
		mustEncode(t, wal.EncodeCommitTransaction(7, 7, 100)),
		mustEncode(t, wal.EncodeFooter(8)),
	})

	e := newTestEngine(t, path)
	newScanState(e)
	if err := e.scan([]string{path}); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if err := e.replay([]string{path}); err != nil {
		t.Fatalf("replay: %v", err)
	}

	db, ok := e.catalog.LookupDatabaseByID(7)
	if !ok {
		t.Fatalf("expected database 7 to exist after replay")
	}
	col, ok := db.LookupCollectionByID(9)
	if !ok {
		t.Fatalf("expected collection 9 to exist after replay")
	}
	payload, ok := col.Get("a")
	if !ok {
		t.Fatalf("expected document \"a\" to exist after replay")
	}
	if string(payload) != `{"_key":"a","v":1}` {
		t.Fatalf("unexpected payload %s", payload)
	}
}

func TestReplayShadowsDocumentsUnderDroppedCollection(t *testing.T) {
	// The collection is created and then dropped, and a DOCUMENT for the
	// same cid follows the drop: once DROP_COLLECTION is replayed, any
	// further writes against that cid must be silently dropped.
	dir := t.TempDir()
	path := filepath.Join(dir, "0.wal")
	writeMarkers(t, path, [][]byte{
		mustEncode(t, wal.EncodeHeader(1)),
		mustEncode(t, wal.EncodeCreateDatabase(2, 7, "d")),
		mustEncode(t, wal.EncodeCreateCollection(3, 7, 9, "c")),
		mustEncode(t, wal.EncodeDropCollection(4, 7, 9)),
		mustEncode(t, wal.EncodePrologue(5, 7, 9)),
		mustEncode(t, wal.EncodeDocument(6, 0, []byte(`{"_key":"a","v":1}`))),
		mustEncode(t, wal.EncodeFooter(7)),
	})

	e := newTestEngine(t, path)
	newScanState(e)
	if err := e.scan([]string{path}); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if err := e.replay([]string{path}); err != nil {
		t.Fatalf("replay: %v", err)
	}

	db, ok := e.catalog.LookupDatabaseByID(7)
	if !ok {
		t.Fatalf("expected database 7 to exist")
	}
	if _, ok := db.LookupCollectionByID(9); ok {
		t.Fatalf("collection 9 was dropped and must not exist after replay")
	}
}
