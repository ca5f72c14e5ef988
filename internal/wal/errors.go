package wal

import walerrors "github.com/voxstore/voxdb/internal/errors"

var (
	ErrPayloadTooLarge = walerrors.ErrPayloadTooLarge
	ErrCorruptRecord   = walerrors.ErrCorruptRecord
	ErrCRCMismatch     = walerrors.ErrCRCMismatch
	ErrFileOpen        = walerrors.ErrFileOpen
	ErrFileWrite       = walerrors.ErrFileWrite
	ErrFileSync        = walerrors.ErrFileSync
	ErrFileRead        = walerrors.ErrFileRead
)
