package recovery

import (
	"path/filepath"
	"testing"

	"github.com/voxstore/voxdb/internal/wal"
)

func newScanState(e *Engine) {
	e.state = newState(e.catalog, false)
	e.report = &Report{MarkerCounts: make(map[string]uint64)}
}

func TestScanBuildsFailedTransactionRegistry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "0.wal")
	writeMarkers(t, path, [][]byte{
		mustEncode(t, wal.EncodeHeader(1)),
		mustEncode(t, wal.EncodeBeginTransaction(2, 7, 100)),
		mustEncode(t, wal.EncodeCommitTransaction(3, 7, 100)),
		mustEncode(t, wal.EncodeBeginTransaction(4, 7, 200)),
		mustEncode(t, wal.EncodeAbortTransaction(5, 7, 200)),
		mustEncode(t, wal.EncodeBeginTransaction(6, 7, 300)),
		mustEncode(t, wal.EncodeFooter(7)),
	})

	e := newTestEngine(t, path)
	newScanState(e)

	if err := e.scan([]string{path}); err != nil {
		t.Fatalf("scan: %v", err)
	}

	if tx, ok := e.state.failedTransactions[100]; ok {
		t.Fatalf("tid 100 was committed, want no registry entry, got %+v", tx)
	}
	if tx, ok := e.state.failedTransactions[200]; !ok || !tx.Aborted {
		t.Fatalf("tid 200 should be a recorded abort, got %+v, ok=%v", tx, ok)
	}
	if tx, ok := e.state.failedTransactions[300]; !ok || tx.Aborted {
		t.Fatalf("tid 300 should be an un-aborted failed transaction, got %+v, ok=%v", tx, ok)
	}
	if e.state.lastTick != 7 {
		t.Fatalf("lastTick = %d, want 7", e.state.lastTick)
	}
	if e.report.MarkerCounts[wal.MarkerHeader.String()] != 1 {
		t.Fatalf("expected one HEADER marker counted")
	}
}

func TestScanRebuildsBeginRemoteThenAbortRemote(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "0.wal")
	writeMarkers(t, path, [][]byte{
		mustEncode(t, wal.EncodeHeader(1)),
		mustEncode(t, wal.EncodeBeginRemoteTransaction(2, 7, 55)),
		mustEncode(t, wal.EncodeAbortRemoteTransaction(3, 7, 55)),
		mustEncode(t, wal.EncodeFooter(4)),
	})

	e := newTestEngine(t, path)
	newScanState(e)

	if err := e.scan([]string{path}); err != nil {
		t.Fatalf("scan: %v", err)
	}
	tx, ok := e.state.failedTransactions[55]
	if !ok || !tx.Aborted {
		t.Fatalf("expected tid 55 recorded as aborted, got %+v, ok=%v", tx, ok)
	}
}

func TestScanRecordsPass1DroppedCollectionSnapshot(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "0.wal")
	writeMarkers(t, path, [][]byte{
		mustEncode(t, wal.EncodeHeader(1)),
		mustEncode(t, wal.EncodeDropCollection(2, 7, 9)),
		mustEncode(t, wal.EncodeFooter(3)),
	})

	e := newTestEngine(t, path)
	newScanState(e)

	if err := e.scan([]string{path}); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if !e.state.willBeDropped(9) {
		t.Fatalf("expected collection 9 flagged in the Pass-1 snapshot")
	}
	if e.state.isDroppedCollection(9) {
		t.Fatalf("current-pass droppedCollections must stay empty until Pass 2")
	}
}

func TestScanDoesNotMutateData(t *testing.T) {
	// Pass 1 never touches the catalog or storage: scanning a CREATE_DATABASE
	// marker must not create anything.
	dir := t.TempDir()
	path := filepath.Join(dir, "0.wal")
	writeMarkers(t, path, [][]byte{
		mustEncode(t, wal.EncodeHeader(1)),
		mustEncode(t, wal.EncodeCreateDatabase(2, 7, "d")),
		mustEncode(t, wal.EncodeFooter(3)),
	})

	e := newTestEngine(t, path)
	newScanState(e)

	if err := e.scan([]string{path}); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if _, ok := e.catalog.LookupDatabaseByID(7); ok {
		t.Fatalf("scan must not create database 7")
	}
}

func TestScanClassifiesEmptyLogFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "0.wal")
	writeMarkers(t, path, [][]byte{
		mustEncode(t, wal.EncodeHeader(1)),
		mustEncode(t, wal.EncodeFooter(2)),
	})

	e := newTestEngine(t, path)
	newScanState(e)

	if err := e.scan([]string{path}); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(e.state.emptyLogfiles) != 1 || e.state.emptyLogfiles[0] != path {
		t.Fatalf("expected %s classified empty, got %v", path, e.state.emptyLogfiles)
	}
}

func TestScanDoesNotClassifyNonEmptyLogFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "0.wal")
	writeMarkers(t, path, [][]byte{
		mustEncode(t, wal.EncodeHeader(1)),
		mustEncode(t, wal.EncodeCreateDatabase(2, 7, "d")),
		mustEncode(t, wal.EncodeFooter(3)),
	})

	e := newTestEngine(t, path)
	newScanState(e)

	if err := e.scan([]string{path}); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(e.state.emptyLogfiles) != 0 {
		t.Fatalf("expected no empty log files, got %v", e.state.emptyLogfiles)
	}
}
