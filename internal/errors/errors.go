package errors

import "errors"

// Sentinel errors surfaced by the catalog, storage and WAL collaborators,
// and consulted by the recovery engine's error-treatment table.
var (
	ErrDatabaseNotFound         = errors.New("database not found")
	ErrDatabaseExists           = errors.New("database already exists")
	ErrCollectionNotFound       = errors.New("collection not found")
	ErrCollectionExists         = errors.New("collection already exists")
	ErrCollectionNotEmpty       = errors.New("collection is not empty")
	ErrCorruptedCollection      = errors.New("collection is corrupted")
	ErrConflict                = errors.New("conflicting operation")
	ErrUniqueConstraintViolated = errors.New("unique constraint violated")
	ErrIndexNotFound            = errors.New("index not found")

	ErrCorruptRecord = errors.New("corrupt record: invalid length or format")
	ErrCRCMismatch   = errors.New("CRC mismatch")
	ErrPayloadTooLarge = errors.New("payload exceeds maximum size")

	ErrFileOpen  = errors.New("failed to open file")
	ErrFileWrite = errors.New("failed to write file")
	ErrFileSync  = errors.New("failed to sync file")
	ErrFileRead  = errors.New("failed to read file")

	ErrForbidden = errors.New("operation forbidden")
	ErrInternal  = errors.New("internal recovery error")
	ErrRecovery  = errors.New("recovery failed")

	ErrInvalidPayload = errors.New("invalid marker payload")
)
