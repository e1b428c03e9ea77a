// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

package schema

import "fmt"

// ByteOrder selects how a multi-byte scalar is decoded.
type ByteOrder int

const (
	BigEndian ByteOrder = iota
	LittleEndian
)

// Opcode is the low nibble of a bytecode instruction's first byte.
type Opcode byte

const (
	OpAlign        Opcode = 0x01
	OpBit          Opcode = 0x02
	OpBool         Opcode = 0x03
	OpUByte        Opcode = 0x04
	OpByte         Opcode = 0x05
	OpUShort       Opcode = 0x06
	OpShort        Opcode = 0x07
	OpInt          Opcode = 0x08
	OpLong         Opcode = 0x09
	OpStructStart  Opcode = 0x0A
	OpStructEnd    Opcode = 0x0B
	OpSkip         Opcode = 0x0C
	OpVar          Opcode = 0x0D
	OpResetCounter Opcode = 0x0E
	OpCustomType   Opcode = 0x0F

	opcodeMask = 0x0F
)

func (o Opcode) String() string {
	switch o {
	case OpAlign:
		return "ALIGN"
	case OpBit:
		return "BIT"
	case OpBool:
		return "BOOL"
	case OpUByte:
		return "UBYTE"
	case OpByte:
		return "BYTE"
	case OpUShort:
		return "USHORT"
	case OpShort:
		return "SHORT"
	case OpInt:
		return "INT"
	case OpLong:
		return "LONG"
	case OpStructStart:
		return "STRUCT_START"
	case OpStructEnd:
		return "STRUCT_END"
	case OpSkip:
		return "SKIP"
	case OpVar:
		return "VAR"
	case OpResetCounter:
		return "RESET_COUNTER"
	case OpCustomType:
		return "CUSTOM_TYPE"
	default:
		return fmt.Sprintf("OP(0x%02X)", byte(o))
	}
}

// First-byte flags.
const (
	FlagNamed        byte = 0x10
	FlagArray        byte = 0x20
	FlagLittleEndian byte = 0x40
	FlagWide         byte = 0x80
)

// Second-byte extended flags, present only when FlagWide is set.
const (
	// ExtFlagArrayExpr marks an array length as taken from the next entry of
	// the schema's shared expression table rather than a literal packed int.
	// No operand byte is emitted for it.
	ExtFlagArrayExpr byte = 0x01
	// ExtFlagExtraAsExpr marks extra data as taken from the next entry of the
	// shared expression table rather than a literal packed int. No operand
	// byte is emitted for it.
	ExtFlagExtraAsExpr byte = 0x02
	// ExtFlagWholeStream marks an array as running to end of stream. Carries
	// no operand at all.
	ExtFlagWholeStream byte = 0x04
)
