// Package wal implements the marker codec (C1), the sequential reader that
// drives both recovery passes, the ordered log-file enumerator, and the
// append-only writer the abort writer (C6) appends through.
//
// Every marker is framed as [size:8][tick:8][type:1]<payload>[crc:4], all
// integers little-endian. size counts the whole record including the
// header and the trailing crc. The crc covers every byte up to (not
// including) the crc field itself.
package wal

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/voxstore/voxdb/internal/tbjson"
	"github.com/voxstore/voxdb/internal/types"
)

var byteOrder = binary.LittleEndian

// Marker is a decoded log record. Which of the context fields (DatabaseID,
// CollectionID, TransactionID, Object, Document) are meaningful depends on
// Type; see the per-kind decode functions below.
type Marker struct {
	Type MarkerType
	Size uint64
	Tick uint64

	DatabaseID    uint64
	CollectionID  uint64
	IndexID       uint64
	TransactionID uint64

	// Object carries the TBJSON payload for transactional/DDL markers.
	Object tbjson.Object

	// Document carries the raw TBJSON document bytes for DOCUMENT/REMOVE
	// markers (the bytes following the leading 8-byte tid field).
	Document []byte
}

type MarkerType = types.MarkerType

const (
	MarkerHeader                 = types.MarkerHeader
	MarkerFooter                 = types.MarkerFooter
	MarkerPrologue               = types.MarkerPrologue
	MarkerBeginTransaction       = types.MarkerBeginTransaction
	MarkerCommitTransaction      = types.MarkerCommitTransaction
	MarkerAbortTransaction       = types.MarkerAbortTransaction
	MarkerBeginRemoteTransaction = types.MarkerBeginRemoteTransaction
	MarkerCommitRemoteTransaction = types.MarkerCommitRemoteTransaction
	MarkerAbortRemoteTransaction = types.MarkerAbortRemoteTransaction
	MarkerDocument               = types.MarkerDocument
	MarkerRemove                 = types.MarkerRemove
	MarkerCreateDatabase         = types.MarkerCreateDatabase
	MarkerDropDatabase           = types.MarkerDropDatabase
	MarkerCreateCollection       = types.MarkerCreateCollection
	MarkerDropCollection         = types.MarkerDropCollection
	MarkerRenameCollection       = types.MarkerRenameCollection
	MarkerChangeCollection       = types.MarkerChangeCollection
	MarkerCreateIndex            = types.MarkerCreateIndex
	MarkerDropIndex              = types.MarkerDropIndex
)

// fixedStructKinds are read by positional uint64 field layout rather than
// TBJSON, per §4.1: remote transactions and the prologue marker.
func isFixedStruct(t MarkerType) bool {
	switch t {
	case MarkerPrologue, MarkerBeginRemoteTransaction, MarkerCommitRemoteTransaction, MarkerAbortRemoteTransaction:
		return true
	default:
		return false
	}
}

// Decode parses one complete marker (header, payload, trailing crc) from
// data. data must contain exactly one record (the length the caller read
// via the size field).
func Decode(data []byte) (*Marker, error) {
	if len(data) < RecordOverhead {
		return nil, fmt.Errorf("wal: %w: record too short (%d bytes)", ErrCorruptRecord, len(data))
	}

	size := byteOrder.Uint64(data[0:8])
	if int(size) != len(data) {
		return nil, fmt.Errorf("wal: %w: declared size %d != actual %d", ErrCorruptRecord, size, len(data))
	}

	tick := byteOrder.Uint64(data[8:16])
	kind := MarkerType(data[16])

	crcOffset := len(data) - int(CRCFieldSize)
	wantCRC := byteOrder.Uint32(data[crcOffset:])
	gotCRC := crc32.ChecksumIEEE(data[:crcOffset])
	if wantCRC != gotCRC {
		return nil, fmt.Errorf("wal: %w: tick %d kind %s", ErrCRCMismatch, tick, kind)
	}

	payload := data[HeaderSize:crcOffset]

	m := &Marker{Type: kind, Size: size, Tick: tick}
	if err := m.decodePayload(kind, payload); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Marker) decodePayload(kind MarkerType, payload []byte) error {
	switch kind {
	case MarkerHeader, MarkerFooter:
		return nil

	case MarkerPrologue, MarkerBeginRemoteTransaction, MarkerCommitRemoteTransaction, MarkerAbortRemoteTransaction:
		if !isFixedStruct(kind) {
			panic("wal: kind misclassified as fixed struct")
		}
		if len(payload) < 16 {
			return fmt.Errorf("wal: %w: fixed-struct payload too short", ErrCorruptRecord)
		}
		m.DatabaseID = byteOrder.Uint64(payload[0:8])
		second := byteOrder.Uint64(payload[8:16])
		if kind == MarkerPrologue {
			m.CollectionID = second
		} else {
			m.TransactionID = second
		}
		return nil

	case MarkerDocument, MarkerRemove:
		if len(payload) < 8 {
			return fmt.Errorf("wal: %w: CRUD payload missing tid", ErrCorruptRecord)
		}
		m.TransactionID = byteOrder.Uint64(payload[0:8])
		m.Document = payload[8:]
		return nil

	default:
		obj, err := tbjson.Parse(payload)
		if err != nil {
			return fmt.Errorf("wal: decode %s payload: %w", kind, err)
		}
		m.Object = obj
		return m.bindFromObject(kind, obj)
	}
}

// bindFromObject populates the convenience context fields from the TBJSON
// object for transactional and DDL markers, tolerating the legacy
// numeric-or-string encoding (tbjson.NumericValue).
func (m *Marker) bindFromObject(kind MarkerType, obj tbjson.Object) error {
	if db, err := tbjson.NumericValue(obj, "database"); err == nil {
		m.DatabaseID = db
	}
	if tid, err := tbjson.NumericValue(obj, "tid"); err == nil {
		m.TransactionID = tid
	}
	if cid, err := tbjson.NumericValue(obj, "cid"); err == nil {
		m.CollectionID = cid
	}

	switch kind {
	case MarkerCreateIndex:
		// Open Question (b): CREATE_INDEX parses its index id from "iid" ...
		if iid, err := tbjson.NumericValue(obj, "iid"); err == nil {
			m.IndexID = iid
		}
	case MarkerDropIndex:
		// ... whereas DROP_INDEX parses it from "id". Both honored as-is.
		if iid, err := tbjson.NumericValue(obj, "id"); err == nil {
			m.IndexID = iid
		}
	}
	return nil
}

// encode assembles a complete marker record from a kind, tick and payload.
func encode(kind MarkerType, tick uint64, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, ErrPayloadTooLarge
	}

	size := HeaderSize + len(payload) + int(CRCFieldSize)
	buf := make([]byte, size)
	byteOrder.PutUint64(buf[0:8], uint64(size))
	byteOrder.PutUint64(buf[8:16], tick)
	buf[16] = byte(kind)
	copy(buf[HeaderSize:], payload)

	crc := crc32.ChecksumIEEE(buf[:size-int(CRCFieldSize)])
	byteOrder.PutUint32(buf[size-int(CRCFieldSize):], crc)
	return buf, nil
}

func EncodeHeader(tick uint64) ([]byte, error) { return encode(MarkerHeader, tick, nil) }
func EncodeFooter(tick uint64) ([]byte, error) { return encode(MarkerFooter, tick, nil) }

func EncodePrologue(tick, databaseID, collectionID uint64) ([]byte, error) {
	payload := make([]byte, 16)
	byteOrder.PutUint64(payload[0:8], databaseID)
	byteOrder.PutUint64(payload[8:16], collectionID)
	return encode(MarkerPrologue, tick, payload)
}

func encodeObject(kind MarkerType, tick uint64, attrs map[string]interface{}) ([]byte, error) {
	payload, err := tbjson.Encode(attrs)
	if err != nil {
		return nil, err
	}
	return encode(kind, tick, payload)
}

func EncodeBeginTransaction(tick, databaseID, tid uint64) ([]byte, error) {
	return encodeObject(MarkerBeginTransaction, tick, map[string]interface{}{"database": databaseID, "tid": tid})
}

func EncodeCommitTransaction(tick, databaseID, tid uint64) ([]byte, error) {
	return encodeObject(MarkerCommitTransaction, tick, map[string]interface{}{"database": databaseID, "tid": tid})
}

func EncodeAbortTransaction(tick, databaseID, tid uint64) ([]byte, error) {
	return encodeObject(MarkerAbortTransaction, tick, map[string]interface{}{"database": databaseID, "tid": tid})
}

func encodeRemoteFixed(kind MarkerType, tick, databaseID, tid uint64) ([]byte, error) {
	payload := make([]byte, 16)
	byteOrder.PutUint64(payload[0:8], databaseID)
	byteOrder.PutUint64(payload[8:16], tid)
	return encode(kind, tick, payload)
}

func EncodeBeginRemoteTransaction(tick, databaseID, tid uint64) ([]byte, error) {
	return encodeRemoteFixed(MarkerBeginRemoteTransaction, tick, databaseID, tid)
}

func EncodeCommitRemoteTransaction(tick, databaseID, tid uint64) ([]byte, error) {
	return encodeRemoteFixed(MarkerCommitRemoteTransaction, tick, databaseID, tid)
}

func EncodeAbortRemoteTransaction(tick, databaseID, tid uint64) ([]byte, error) {
	return encodeRemoteFixed(MarkerAbortRemoteTransaction, tick, databaseID, tid)
}

func encodeCRUD(kind MarkerType, tick, tid uint64, doc []byte) ([]byte, error) {
	payload := make([]byte, 8+len(doc))
	byteOrder.PutUint64(payload[0:8], tid)
	copy(payload[8:], doc)
	return encode(kind, tick, payload)
}

func EncodeDocument(tick, tid uint64, doc []byte) ([]byte, error) {
	return encodeCRUD(MarkerDocument, tick, tid, doc)
}

func EncodeRemove(tick, tid uint64, key []byte) ([]byte, error) {
	return encodeCRUD(MarkerRemove, tick, tid, key)
}

func EncodeCreateDatabase(tick, databaseID uint64, name string) ([]byte, error) {
	return encodeObject(MarkerCreateDatabase, tick, map[string]interface{}{
		"database": databaseID,
		"data":     map[string]interface{}{"name": name},
	})
}

func EncodeDropDatabase(tick, databaseID uint64) ([]byte, error) {
	return encodeObject(MarkerDropDatabase, tick, map[string]interface{}{"database": databaseID})
}

func EncodeCreateCollection(tick, databaseID, cid uint64, name string) ([]byte, error) {
	return encodeObject(MarkerCreateCollection, tick, map[string]interface{}{
		"database": databaseID,
		"cid":      cid,
		"data":     map[string]interface{}{"name": name},
	})
}

func EncodeDropCollection(tick, databaseID, cid uint64) ([]byte, error) {
	return encodeObject(MarkerDropCollection, tick, map[string]interface{}{"database": databaseID, "cid": cid})
}

func EncodeRenameCollection(tick, databaseID, cid uint64, newName string) ([]byte, error) {
	return encodeObject(MarkerRenameCollection, tick, map[string]interface{}{
		"database": databaseID,
		"cid":      cid,
		"data":     map[string]interface{}{"name": newName},
	})
}

func EncodeChangeCollection(tick, databaseID, cid uint64, props map[string]interface{}) ([]byte, error) {
	return encodeObject(MarkerChangeCollection, tick, map[string]interface{}{
		"database": databaseID,
		"cid":      cid,
		"data":     props,
	})
}

func EncodeCreateIndex(tick, databaseID, cid, iid uint64, definition map[string]interface{}) ([]byte, error) {
	return encodeObject(MarkerCreateIndex, tick, map[string]interface{}{
		"database": databaseID,
		"cid":      cid,
		"iid":      iid,
		"data":     definition,
	})
}

func EncodeDropIndex(tick, databaseID, cid, iid uint64) ([]byte, error) {
	return encodeObject(MarkerDropIndex, tick, map[string]interface{}{
		"database": databaseID,
		"cid":      cid,
		"id":       iid,
	})
}
