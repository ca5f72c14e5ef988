package recovery

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/voxstore/voxdb/internal/catalog"
	"github.com/voxstore/voxdb/internal/logger"
	"github.com/voxstore/voxdb/internal/wal"
)

func testLogger() *logger.Logger {
	return logger.New(io.Discard, logger.LevelError, "[recovery-test]")
}

func newTestCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	dir := t.TempDir()
	cat := catalog.NewCatalog(filepath.Join(dir, "catalog.log"), filepath.Join(dir, "databases"), testLogger())
	if err := cat.Load(); err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	return cat
}

// newTestEngine wires an Engine over a fresh catalog and a WAL writer
// opened on basePath, the same file the enumerator and a test's writeMarkers
// calls target — mirroring how the abort writer appends to the live log.
func newTestEngine(t *testing.T, basePath string) *Engine {
	t.Helper()
	log := testLogger()
	writer := wal.NewWriter(basePath, 0, log)
	if err := writer.Open(); err != nil {
		t.Fatalf("open wal writer: %v", err)
	}
	t.Cleanup(func() { writer.Close() })

	return NewEngine(newTestCatalog(t), writer, NewNoopPageAdvisor(), wal.NewEnumerator(basePath, log), Config{}, log)
}

// writeMarkers appends each already-encoded marker record to path in order.
func writeMarkers(t *testing.T, path string, records [][]byte) {
	t.Helper()
	w := wal.NewWriter(path, 0, testLogger())
	if err := w.Open(); err != nil {
		t.Fatalf("open wal writer: %v", err)
	}
	for _, rec := range records {
		if err := w.AllocateAndWrite(rec, false); err != nil {
			t.Fatalf("write marker: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close wal writer: %v", err)
	}
}

func mustEncode(t *testing.T, data []byte, err error) []byte {
	t.Helper()
	if err != nil {
		t.Fatalf("encode marker: %v", err)
	}
	return data
}

// readAllMarkers replays path from scratch, independent of the engine under
// test, so assertions about what the abort writer appended don't depend on
// the same reader state the engine used.
func readAllMarkers(t *testing.T, path string) []*wal.Marker {
	t.Helper()
	r := wal.NewReader(path, testLogger())
	if err := r.Open(); err != nil {
		t.Fatalf("open reader: %v", err)
	}
	defer r.Close()

	var markers []*wal.Marker
	for {
		m, err := r.Next()
		if err != nil {
			t.Fatalf("read marker: %v", err)
		}
		if m == nil {
			return markers
		}
		markers = append(markers, m)
	}
}
