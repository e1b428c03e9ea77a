// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

package schema

import "strings"

// FieldKind identifies the shape a parsed Field takes.
type FieldKind int

const (
	FieldBit FieldKind = iota
	FieldBool
	FieldByte
	FieldUByte
	FieldShort
	FieldUShort
	FieldInt
	FieldLong
	FieldVar
	FieldCustom
	FieldStruct
)

func (k FieldKind) String() string {
	switch k {
	case FieldBit:
		return "bit"
	case FieldBool:
		return "bool"
	case FieldByte:
		return "byte"
	case FieldUByte:
		return "ubyte"
	case FieldShort:
		return "short"
	case FieldUShort:
		return "ushort"
	case FieldInt:
		return "int"
	case FieldLong:
		return "long"
	case FieldVar:
		return "var"
	case FieldCustom:
		return "custom"
	case FieldStruct:
		return "struct"
	default:
		return "unknown"
	}
}

// Field is one node of a parsed document: a scalar, a scalar array, a
// struct, or a struct array. Which fields are meaningful depends on Kind
// and IsArray.
type Field struct {
	Name string
	Path string
	Kind FieldKind
	Order ByteOrder

	IsArray bool

	Bool  bool
	Int64 int64
	Raw   []byte

	BoolArray  []bool
	Int64Array []int64
	RawArray   [][]byte

	Children    []*Field
	StructArray [][]*Field
}

// AsInt returns a scalar numeric field's value truncated to int32, along
// with whether Kind supports an integer reading at all.
func (f *Field) AsInt() (int32, bool) {
	switch f.Kind {
	case FieldBit, FieldByte, FieldUByte, FieldShort, FieldUShort, FieldInt, FieldLong, FieldVar:
		return int32(f.Int64), true
	case FieldBool:
		if f.Bool {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// AsLong returns a scalar numeric field's value as int64.
func (f *Field) AsLong() (int64, bool) {
	switch f.Kind {
	case FieldBit, FieldByte, FieldUByte, FieldShort, FieldUShort, FieldInt, FieldLong, FieldVar:
		return f.Int64, true
	case FieldBool:
		if f.Bool {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// AsBool reports a BOOL field's truth value: any nonzero byte decodes true.
func (f *Field) AsBool() (bool, bool) {
	if f.Kind != FieldBool {
		return false, false
	}
	return f.Bool, true
}

// Get resolves a dotted path against this field's subtree, starting from
// this field as the root struct.
func (f *Field) Get(path string) (*Field, bool) {
	if path == "" {
		return f, true
	}
	parts := strings.Split(path, ".")
	cur := f
	for _, part := range parts {
		if cur.Kind != FieldStruct || cur.IsArray {
			return nil, false
		}
		next := findChild(cur.Children, part)
		if next == nil {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

func findChild(children []*Field, name string) *Field {
	for _, c := range children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Int32Array returns a defensive copy of a scalar array's values truncated
// to int32.
func (f *Field) Int32Array() ([]int32, bool) {
	if !f.IsArray || f.Kind == FieldStruct {
		return nil, false
	}
	out := make([]int32, len(f.Int64Array))
	for i, v := range f.Int64Array {
		out[i] = int32(v)
	}
	return out, true
}

// ByteSlice returns a defensive copy of a BYTE/UBYTE array as a byte slice.
func (f *Field) ByteSlice() ([]byte, bool) {
	if !f.IsArray || (f.Kind != FieldByte && f.Kind != FieldUByte) {
		return nil, false
	}
	out := make([]byte, len(f.Int64Array))
	for i, v := range f.Int64Array {
		out[i] = byte(v)
	}
	return out, true
}
