// Package storage is the storage-engine collaborator (external per
// SPEC_FULL.md §1, specified only where the recovery engine touches it):
// per-collection document storage with tickMax gating, secondary indexes,
// and volatile-collection no-op semantics.
package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"sync"

	storageerrors "github.com/voxstore/voxdb/internal/errors"
	"github.com/voxstore/voxdb/internal/logger"
)

const (
	payloadLenSize    = 4
	crcLenSize        = 4
	verificationSize  = 1
	maxPayloadSize    = 16 * 1024 * 1024
	verificationValue = byte(1)
)

// DataFile is an append-only, CRC-checked record log backing one
// collection's documents.
type DataFile struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	offset uint64
	logger *logger.Logger
}

func NewDataFile(path string, log *logger.Logger) *DataFile {
	return &DataFile{path: path, logger: log}
}

func (df *DataFile) Open() error {
	df.mu.Lock()
	defer df.mu.Unlock()

	file, err := os.OpenFile(df.path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return storageerrors.ErrFileOpen
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return storageerrors.ErrFileOpen
	}

	df.file = file
	df.offset = uint64(info.Size())
	return nil
}

// Write appends payload and fsyncs before returning.
func (df *DataFile) Write(payload []byte) (uint64, error) {
	return df.write(payload, true)
}

// WriteNoSync appends payload without fsync. The caller must call Sync
// after a batch — used during replay to avoid one fsync per marker.
func (df *DataFile) WriteNoSync(payload []byte) (uint64, error) {
	return df.write(payload, false)
}

func (df *DataFile) write(payload []byte, sync bool) (uint64, error) {
	if uint32(len(payload)) > maxPayloadSize {
		return 0, storageerrors.ErrPayloadTooLarge
	}

	df.mu.Lock()
	defer df.mu.Unlock()

	if df.file == nil {
		return 0, storageerrors.ErrFileOpen
	}

	if info, err := df.file.Stat(); err == nil {
		df.offset = uint64(info.Size())
	}

	header := make([]byte, payloadLenSize+crcLenSize)
	binary.LittleEndian.PutUint32(header[0:], uint32(len(payload)))
	binary.LittleEndian.PutUint32(header[4:], crc32.ChecksumIEEE(payload))

	offset := df.offset

	if _, err := df.file.Write(header); err != nil {
		return 0, storageerrors.ErrFileWrite
	}
	if _, err := df.file.Write(payload); err != nil {
		return 0, storageerrors.ErrFileWrite
	}
	// Verification flag written last: if a crash happens before this byte
	// lands, Read treats the record as unverified rather than corrupt-but-live.
	if _, err := df.file.Write([]byte{verificationValue}); err != nil {
		return 0, storageerrors.ErrFileWrite
	}

	if sync {
		if err := df.file.Sync(); err != nil {
			return 0, storageerrors.ErrFileSync
		}
	}

	df.offset += uint64(payloadLenSize + crcLenSize + len(payload) + verificationSize)
	return offset, nil
}

func (df *DataFile) Read(offset uint64, length uint32) ([]byte, error) {
	df.mu.Lock()
	defer df.mu.Unlock()

	if _, err := df.file.Seek(int64(offset), io.SeekStart); err != nil {
		return nil, storageerrors.ErrFileRead
	}

	header := make([]byte, payloadLenSize+crcLenSize)
	if _, err := io.ReadFull(df.file, header); err != nil {
		return nil, readErr(err)
	}

	storedLen := binary.LittleEndian.Uint32(header[0:])
	storedCRC := binary.LittleEndian.Uint32(header[4:])
	if storedLen != length {
		return nil, fmt.Errorf("storage: payload length mismatch: stored=%d, expected=%d", storedLen, length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(df.file, payload); err != nil {
		return nil, readErr(err)
	}

	verification := make([]byte, verificationSize)
	if _, err := io.ReadFull(df.file, verification); err != nil {
		return nil, storageerrors.ErrCorruptRecord
	}
	if verification[0] != verificationValue {
		return nil, storageerrors.ErrCorruptRecord
	}

	if crc32.ChecksumIEEE(payload) != storedCRC {
		return nil, storageerrors.ErrCRCMismatch
	}
	return payload, nil
}

func readErr(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return storageerrors.ErrCorruptRecord
	}
	return storageerrors.ErrFileRead
}

func (df *DataFile) Sync() error {
	df.mu.Lock()
	defer df.mu.Unlock()
	if df.file == nil {
		return nil
	}
	return df.file.Sync()
}

func (df *DataFile) Close() error {
	df.mu.Lock()
	defer df.mu.Unlock()
	if df.file == nil {
		return nil
	}
	if err := df.file.Sync(); err != nil {
		return err
	}
	if err := df.file.Close(); err != nil {
		return err
	}
	df.file = nil
	return nil
}

func (df *DataFile) Size() uint64 {
	df.mu.Lock()
	defer df.mu.Unlock()
	return df.offset
}
