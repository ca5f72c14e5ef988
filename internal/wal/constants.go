package wal

// Fixed header layout: size(8) + tick(8) + type(1), trailing crc32(4).
const (
	SizeFieldSize = 8
	TickFieldSize = 8
	TypeFieldSize = 1
	CRCFieldSize  = 4

	HeaderSize     = SizeFieldSize + TickFieldSize + TypeFieldSize
	RecordOverhead = HeaderSize + CRCFieldSize

	MaxPayloadSize = 16 * 1024 * 1024
)
