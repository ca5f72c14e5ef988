package catalog

import (
	"errors"
	"path/filepath"
	"testing"

	catalogerrors "github.com/voxstore/voxdb/internal/errors"
	"github.com/voxstore/voxdb/internal/logger"
)

func newTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	dir := t.TempDir()
	c := NewCatalog(filepath.Join(dir, "catalog.log"), filepath.Join(dir, "databases"), logger.Default())
	if err := c.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return c
}

func TestCreateAndLookupDatabase(t *testing.T) {
	c := newTestCatalog(t)

	db, err := c.CreateDatabase(1, "alpha")
	if err != nil {
		t.Fatalf("CreateDatabase: %v", err)
	}

	byID, ok := c.LookupDatabaseByID(1)
	if !ok || byID != db {
		t.Fatalf("LookupDatabaseByID did not return the created database")
	}

	byName, ok := c.LookupDatabaseByName("alpha")
	if !ok || byName != db {
		t.Fatalf("LookupDatabaseByName did not return the created database")
	}
}

func TestCreateDatabaseDuplicateRejected(t *testing.T) {
	c := newTestCatalog(t)

	if _, err := c.CreateDatabase(1, "alpha"); err != nil {
		t.Fatalf("CreateDatabase: %v", err)
	}
	if _, err := c.CreateDatabase(1, "beta"); !errors.Is(err, catalogerrors.ErrDatabaseExists) {
		t.Fatalf("expected ErrDatabaseExists for duplicate id, got %v", err)
	}
	if _, err := c.CreateDatabase(2, "alpha"); !errors.Is(err, catalogerrors.ErrDatabaseExists) {
		t.Fatalf("expected ErrDatabaseExists for duplicate name, got %v", err)
	}
}

func TestDropDatabaseRemovesFromLookup(t *testing.T) {
	c := newTestCatalog(t)

	if _, err := c.CreateDatabase(1, "alpha"); err != nil {
		t.Fatalf("CreateDatabase: %v", err)
	}
	if err := c.DropDatabaseByName("alpha"); err != nil {
		t.Fatalf("DropDatabaseByName: %v", err)
	}

	if _, ok := c.LookupDatabaseByName("alpha"); ok {
		t.Fatalf("expected dropped database to be absent from name lookup")
	}
	if _, ok := c.LookupDatabaseByID(1); ok {
		t.Fatalf("expected dropped database to be absent from id lookup")
	}
}

func TestDropDatabaseNotFound(t *testing.T) {
	c := newTestCatalog(t)
	if err := c.DropDatabaseByID(99); !errors.Is(err, catalogerrors.ErrDatabaseNotFound) {
		t.Fatalf("expected ErrDatabaseNotFound, got %v", err)
	}
}

func TestCreateCollectionIsIdempotent(t *testing.T) {
	c := newTestCatalog(t)
	db, err := c.CreateDatabase(1, "alpha")
	if err != nil {
		t.Fatalf("CreateDatabase: %v", err)
	}

	col1, err := db.CreateCollection(10, "widgets", false)
	if err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}
	col2, err := db.CreateCollection(10, "widgets", false)
	if err != nil {
		t.Fatalf("CreateCollection (replay): %v", err)
	}
	if col1 != col2 {
		t.Fatalf("expected duplicate CreateCollection to return the same handle")
	}
}

func TestDropAndRenameCollection(t *testing.T) {
	c := newTestCatalog(t)
	db, err := c.CreateDatabase(1, "alpha")
	if err != nil {
		t.Fatalf("CreateDatabase: %v", err)
	}
	if _, err := db.CreateCollection(10, "widgets", false); err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}

	if err := db.RenameCollection(10, "gadgets"); err != nil {
		t.Fatalf("RenameCollection: %v", err)
	}
	if _, ok := db.LookupCollectionByName("widgets"); ok {
		t.Fatalf("old name should no longer resolve")
	}
	if _, ok := db.LookupCollectionByName("gadgets"); !ok {
		t.Fatalf("new name should resolve")
	}

	if err := db.DropCollection(10); err != nil {
		t.Fatalf("DropCollection: %v", err)
	}
	if _, ok := db.LookupCollectionByID(10); ok {
		t.Fatalf("expected dropped collection to be absent")
	}
}

func TestReloadRestoresActiveDatabases(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "catalog.log")
	dbDir := filepath.Join(dir, "databases")

	c1 := NewCatalog(logPath, dbDir, logger.Default())
	if err := c1.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := c1.CreateDatabase(1, "alpha"); err != nil {
		t.Fatalf("CreateDatabase: %v", err)
	}
	if _, err := c1.CreateDatabase(2, "beta"); err != nil {
		t.Fatalf("CreateDatabase: %v", err)
	}
	if err := c1.DropDatabaseByName("beta"); err != nil {
		t.Fatalf("DropDatabaseByName: %v", err)
	}
	if err := c1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	c2 := NewCatalog(logPath, dbDir, logger.Default())
	if err := c2.Load(); err != nil {
		t.Fatalf("reload Load: %v", err)
	}
	if _, ok := c2.LookupDatabaseByName("alpha"); !ok {
		t.Fatalf("expected alpha to survive reload")
	}
	if _, ok := c2.LookupDatabaseByName("beta"); ok {
		t.Fatalf("expected beta to remain dropped after reload")
	}
}
