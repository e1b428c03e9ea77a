// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

package schema

import "testing"

func TestPackUnpackRoundTrip(t *testing.T) {
	values := []int32{
		0, 1, 63, 127, 128, 255, 16383, 32767, 65535, 65536,
		1 << 20, 1<<31 - 1, -1, -128, -32768, -1 << 31,
	}
	for _, v := range values {
		packed := packInt(v)
		pos := 0
		got, err := unpackInt(packed, &pos)
		if err != nil {
			t.Fatalf("unpackInt(%d) failed: %v", v, err)
		}
		if got != v {
			t.Errorf("round trip %d: got %d", v, got)
		}
		if pos != len(packed) {
			t.Errorf("round trip %d: consumed %d of %d bytes", v, pos, len(packed))
		}
	}
}

func TestPackIntWidth(t *testing.T) {
	tests := []struct {
		name string
		v    int32
		want int
	}{
		{"fits 7 bits", 100, 1},
		{"top of 7 bits", 127, 1},
		{"needs 3 bytes", 128, 3},
		{"top of 16 bits", 65535, 3},
		{"needs 5 bytes", 65536, 5},
		{"negative always 5 bytes", -1, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := len(packInt(tt.v)); got != tt.want {
				t.Errorf("packInt(%d) produced %d bytes, want %d", tt.v, got, tt.want)
			}
		})
	}
}

func TestPackInt5AlwaysFiveBytes(t *testing.T) {
	for _, v := range []int32{0, 1, -1, 127, 128, 1 << 30, -(1 << 30)} {
		packed := packInt5(v)
		if len(packed) != 5 {
			t.Fatalf("packInt5(%d) produced %d bytes, want 5", v, len(packed))
		}
		pos := 0
		got, err := readInt5(packed, &pos)
		if err != nil {
			t.Fatalf("readInt5(%d) failed: %v", v, err)
		}
		if got != v {
			t.Errorf("readInt5 round trip %d: got %d", v, got)
		}
		if pos != 5 {
			t.Errorf("readInt5 advanced pos by %d, want 5", pos)
		}
	}
}

func TestUnpackIntTruncated(t *testing.T) {
	tests := [][]byte{
		{},
		{0x80},
		{0x80, 0x01},
		{0x81, 0x00, 0x00},
	}
	for _, code := range tests {
		pos := 0
		if _, err := unpackInt(code, &pos); err == nil {
			t.Errorf("unpackInt(% x) should have failed", code)
		}
	}
}

func TestUnpackIntInvalidPrefix(t *testing.T) {
	code := []byte{0xAA}
	pos := 0
	if _, err := unpackInt(code, &pos); err == nil {
		t.Error("unpackInt with prefix 0xAA should have failed")
	}
}

func TestAppendPackedInt(t *testing.T) {
	buf := []byte{0xFF}
	buf = appendPackedInt(buf, 1000)
	if buf[0] != 0xFF {
		t.Fatal("appendPackedInt clobbered existing bytes")
	}
	pos := 1
	got, err := unpackInt(buf, &pos)
	if err != nil {
		t.Fatalf("unpackInt after append failed: %v", err)
	}
	if got != 1000 {
		t.Errorf("got %d, want 1000", got)
	}
}
