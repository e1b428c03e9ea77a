// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

package schema

// packInt encodes a signed 32-bit value using the bytecode's variable-width
// operand scheme: 1 byte when it fits in 7 bits, 3 bytes (0x80 prefix) when
// it fits in 16 bits, else 5 bytes (0x81 prefix, big-endian).
func packInt(value int32) []byte {
	v := uint32(value)
	switch {
	case v&0xFFFFFF80 == 0:
		return []byte{byte(v)}
	case v&0xFFFF0000 == 0:
		return []byte{0x80, byte(v >> 8), byte(v)}
	default:
		return []byte{0x81, byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
	}
}

// appendPackedInt appends the packed encoding of value to buf and returns
// the extended slice.
func appendPackedInt(buf []byte, value int32) []byte {
	return append(buf, packInt(value)...)
}

// packInt5 always encodes value as exactly five bytes (0x81 prefix plus a
// 32-bit big-endian payload), for operands whose final value is patched in
// after a placeholder of known width has already been emitted.
func packInt5(value int32) []byte {
	v := uint32(value)
	return []byte{0x81, byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}

// readInt5 reads exactly five bytes written by packInt5.
func readInt5(code []byte, pos *int) (int32, error) {
	if *pos+5 > len(code) {
		return 0, parseErr(*pos, "", "fixed-width back-pointer truncated")
	}
	v := int32(code[*pos+1])<<24 | int32(code[*pos+2])<<16 | int32(code[*pos+3])<<8 | int32(code[*pos+4])
	*pos += 5
	return v, nil
}

// unpackInt reads one packed integer from code starting at *pos, advancing
// *pos past it. It fails with a ParsingError for any prefix byte above 0x7F
// other than 0x80/0x81.
func unpackInt(code []byte, pos *int) (int32, error) {
	if *pos >= len(code) {
		return 0, parseErr(*pos, "", "packed integer truncated")
	}
	b0 := code[*pos]
	*pos++
	if b0 < 0x80 {
		return int32(b0), nil
	}
	switch b0 {
	case 0x80:
		if *pos+2 > len(code) {
			return 0, parseErr(*pos, "", "packed integer truncated")
		}
		v := int32(code[*pos])<<8 | int32(code[*pos+1])
		*pos += 2
		return v, nil
	case 0x81:
		if *pos+4 > len(code) {
			return 0, parseErr(*pos, "", "packed integer truncated")
		}
		v := int32(code[*pos])<<24 | int32(code[*pos+1])<<16 | int32(code[*pos+2])<<8 | int32(code[*pos+3])
		*pos += 4
		return v, nil
	default:
		return 0, parseErr(*pos-1, "", "invalid packed integer prefix 0x%02X", b0)
	}
}
