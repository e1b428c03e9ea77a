// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

package schema

import (
	"strings"
	"testing"
)

func TestParseSchemaDecodeBytes(t *testing.T) {
	s, err := ParseSchema("ubyte len; byte[len] data;", BigEndian)
	if err != nil {
		t.Fatalf("ParseSchema: %v", err)
	}
	fields, err := s.DecodeBytes([]byte{0x03, 0x0A, 0x0B, 0x0C}, LSB0, ParseOptions{})
	if err != nil {
		t.Fatalf("DecodeBytes: %v", err)
	}
	if findField(fields, "len").Int64 != 3 {
		t.Errorf("len: %+v", findField(fields, "len"))
	}
}

func TestParseSchemaInvalidScript(t *testing.T) {
	if _, err := ParseSchema("ubyte a; }", BigEndian); err == nil {
		t.Error("expected an error for an invalid script")
	}
}

func TestSchemaBytecodeExposed(t *testing.T) {
	s, err := ParseSchema("ubyte a;", BigEndian)
	if err != nil {
		t.Fatalf("ParseSchema: %v", err)
	}
	if s.Bytecode() == nil || len(s.Bytecode().Bytecode) == 0 {
		t.Error("expected non-empty compiled bytecode")
	}
}

func TestLoadManifestMultipleSchemas(t *testing.T) {
	doc := []byte(`
schemas:
  - name: header-v1
    version: "1"
    description: length-prefixed record
    endian: big
    script: "ubyte len; byte[len] data;"
  - name: point-le
    endian: little
    script: "<int x; <int y;"
`)
	lib, err := LoadManifest(doc)
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}
	if len(lib.Names()) != 2 {
		t.Fatalf("got %d schemas, want 2", len(lib.Names()))
	}
	hv1, ok := lib.Get("header-v1")
	if !ok {
		t.Fatal("header-v1 not found")
	}
	if hv1.Version != "1" || hv1.Description == "" {
		t.Errorf("got %+v", hv1)
	}
	if _, ok := lib.Get("nonexistent"); ok {
		t.Error("expected nonexistent schema lookup to fail")
	}
}

func TestLoadManifestDuplicateNameRejected(t *testing.T) {
	doc := []byte(`
schemas:
  - name: dup
    script: "ubyte a;"
  - name: dup
    script: "ubyte b;"
`)
	if _, err := LoadManifest(doc); err == nil {
		t.Error("expected an error for a duplicate manifest entry name")
	}
}

func TestLoadManifestMissingNameRejected(t *testing.T) {
	doc := []byte(`
schemas:
  - script: "ubyte a;"
`)
	if _, err := LoadManifest(doc); err == nil {
		t.Error("expected an error for a manifest entry with no name")
	}
}

func TestLoadManifestBadScriptRejected(t *testing.T) {
	doc := []byte(`
schemas:
  - name: broken
    script: "ubyte a; }"
`)
	if _, err := LoadManifest(doc); err == nil {
		t.Error("expected an error propagated from the broken schema's compile")
	}
}

func TestLoadManifestMalformedYAMLRejected(t *testing.T) {
	if _, err := LoadManifest([]byte("not: [valid yaml")); err == nil {
		t.Error("expected an error for malformed YAML")
	}
}

func TestFieldGetDottedPath(t *testing.T) {
	s, err := ParseSchema("outer { ubyte a; inner { ubyte b; } }", BigEndian)
	if err != nil {
		t.Fatalf("ParseSchema: %v", err)
	}
	fields, err := s.DecodeBytes([]byte{1, 2}, LSB0, ParseOptions{})
	if err != nil {
		t.Fatalf("DecodeBytes: %v", err)
	}
	root := &Field{Kind: FieldStruct, Children: fields}
	b, ok := root.Get("outer.inner.b")
	if !ok || b.Int64 != 2 {
		t.Errorf("got %+v, ok=%v", b, ok)
	}
	if _, ok := root.Get("outer.missing"); ok {
		t.Error("expected a missing dotted path to fail")
	}
}

func TestFieldStringRendersTree(t *testing.T) {
	s, err := ParseSchema("ubyte len; byte[len] data;", BigEndian)
	if err != nil {
		t.Fatalf("ParseSchema: %v", err)
	}
	fields, err := s.DecodeBytes([]byte{0x02, 0x0A, 0x0B}, LSB0, ParseOptions{})
	if err != nil {
		t.Fatalf("DecodeBytes: %v", err)
	}
	out := findField(fields, "data").String()
	if !strings.Contains(out, "byte[2]") {
		t.Errorf("got %q", out)
	}
}
