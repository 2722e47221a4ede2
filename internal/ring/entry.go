package ring

import "unsafe"

// Opcode identifies the operation an SQEntry requests.
type Opcode uint8

const (
	OpNop   Opcode = 0
	OpRead  Opcode = 1
	OpWrite Opcode = 2
)

func (o Opcode) String() string {
	switch o {
	case OpNop:
		return "NOP"
	case OpRead:
		return "READ"
	case OpWrite:
		return "WRITE"
	default:
		return "UNKNOWN"
	}
}

// SQEntry is the fixed, packed, little-endian submission descriptor.
// Field order and padding are compatibility-critical: this layout is the
// wire contract between the producer (user side) and the consumer
// (executor side), so it must never be reordered or resized.
type SQEntry struct {
	Opcode      Opcode
	_pad0       [3]byte
	Fd          int32
	Offset      uint64
	UserBufAddr uint64
	BufSize     uint32
	Flags       uint32
	UserData    uint64
}

// CQEntry is the fixed, packed, little-endian completion record.
type CQEntry struct {
	UserData uint64
	Result   int32
	_pad0    [4]byte
}

// Compile-time layout assertions, the same idiom used throughout this
// corpus for any struct whose size is part of a wire contract.
var (
	_ [40]byte = [unsafe.Sizeof(SQEntry{})]byte{}
	_ [16]byte = [unsafe.Sizeof(CQEntry{})]byte{}
)
