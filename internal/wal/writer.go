// Writer is the live WAL writer collaborator (out of scope per §1, beyond
// the single entry point the abort writer (C6) needs): an append-only file
// with an allocate-and-write path.
//
// Durability Guarantees:
//   - waitForSync=true: the record is on disk when AllocateAndWrite returns
//   - waitForSync=false: the record is in the OS buffer only
//   - CRC32 (in the marker codec) detects corruption on replay
//
// Thread Safety: all methods are thread-safe (mu protects the file), though
// recovery itself only ever has one concurrent caller (§5).
package wal

import (
	"os"
	"sync"

	"github.com/voxstore/voxdb/internal/logger"
)

type Writer struct {
	mu      sync.Mutex
	file    *os.File
	path    string
	size    uint64
	maxSize uint64
	logger  *logger.Logger
}

func NewWriter(path string, maxSize uint64, log *logger.Logger) *Writer {
	return &Writer{path: path, maxSize: maxSize, logger: log}
}

func (w *Writer) Open() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	file, err := os.OpenFile(w.path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return ErrFileOpen
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return ErrFileOpen
	}

	w.file = file
	w.size = uint64(info.Size())
	return nil
}

// AllocateAndWrite appends an already-encoded marker record, mirroring the
// collaborator contract in SPEC_FULL.md §6: allocateAndWrite(bytes, size,
// waitForSync).
func (w *Writer) AllocateAndWrite(encoded []byte, waitForSync bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return ErrFileOpen
	}

	if w.maxSize > 0 && w.size+uint64(len(encoded)) > w.maxSize {
		w.logger.Warn("wal writer: file %s approaching size limit", w.path)
	}

	n, err := w.file.Write(encoded)
	if err != nil {
		return ErrFileWrite
	}
	w.size += uint64(n)

	if waitForSync {
		if err := w.file.Sync(); err != nil {
			return ErrFileSync
		}
	}
	return nil
}

func (w *Writer) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	return w.file.Sync()
}

func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	if err := w.file.Sync(); err != nil {
		return err
	}
	if err := w.file.Close(); err != nil {
		return err
	}
	w.file = nil
	return nil
}

func (w *Writer) Size() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.size
}
