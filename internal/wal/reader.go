// Recovery Process:
//  1. Read the size field (8 bytes)
//  2. Read the remaining record bytes
//  3. Validate the trailing CRC32
//  4. Return the decoded marker or a corruption error
//
// Error Handling:
//   - io.EOF at a record boundary: end of file (normal, Next returns nil, nil)
//   - ErrCorruptRecord / ErrCRCMismatch: surfaced to the caller
//
// Thread Safety: NOT thread-safe (single reader per file, single-threaded
// recovery per §5).
package wal

import (
	"io"
	"os"

	"github.com/voxstore/voxdb/internal/logger"
)

// Reader sequentially decodes markers from one log file. It is the
// "enumerator yielding borrowed markers" referenced in SPEC_FULL.md §9:
// every Marker returned by Next is a freshly decoded value, not a view
// into file-backed memory.
type Reader struct {
	file   *os.File
	path   string
	logger *logger.Logger
}

func NewReader(path string, log *logger.Logger) *Reader {
	return &Reader{path: path, logger: log}
}

func (r *Reader) Open() error {
	file, err := os.Open(r.path)
	if err != nil {
		return ErrFileOpen
	}
	r.file = file
	return nil
}

// Next decodes and returns the next marker, or (nil, nil) at a clean EOF.
func (r *Reader) Next() (*Marker, error) {
	if r.file == nil {
		return nil, ErrFileRead
	}

	sizeBuf := make([]byte, SizeFieldSize)
	if _, err := io.ReadFull(r.file, sizeBuf); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, ErrCorruptRecord
	}

	size := byteOrder.Uint64(sizeBuf)
	if size < uint64(RecordOverhead) || size > uint64(MaxPayloadSize)+uint64(RecordOverhead) {
		return nil, ErrCorruptRecord
	}

	rest := make([]byte, size-SizeFieldSize)
	if _, err := io.ReadFull(r.file, rest); err != nil {
		return nil, ErrCorruptRecord
	}

	full := make([]byte, size)
	copy(full[:SizeFieldSize], sizeBuf)
	copy(full[SizeFieldSize:], rest)

	return Decode(full)
}

func (r *Reader) Close() error {
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}
