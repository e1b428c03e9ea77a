// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

// Package schema compiles a declarative binary-layout script into bytecode
// and executes that bytecode against a byte stream to produce a typed field
// tree. There is no encoding direction: a field tree cannot be written back
// to bytes.
package schema

import (
	"bytes"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Schema is a compiled, immutable binary-layout description, ready to parse
// any number of streams.
type Schema struct {
	Name        string
	Version     string
	Description string

	compiled *CompiledSchema
}

// ParseSchema compiles script into a Schema. defaultOrder governs any
// multi-byte scalar that doesn't carry an explicit '<' or '>' marker.
func ParseSchema(script string, defaultOrder ByteOrder) (*Schema, error) {
	compiled, err := Compile(script, defaultOrder)
	if err != nil {
		return nil, err
	}
	return &Schema{compiled: compiled}, nil
}

// Decode parses r against the schema and returns the root struct's direct
// fields. bitOrder selects which bit of each byte is consumed first for
// any "bit" field.
func (s *Schema) Decode(r io.Reader, bitOrder BitOrder, opts ParseOptions) ([]*Field, error) {
	opts.BitOrder = bitOrder
	br := NewBitReader(r, bitOrder)
	return Parse(s.compiled, br, opts)
}

// DecodeBytes is a convenience wrapper around Decode for an in-memory
// payload.
func (s *Schema) DecodeBytes(data []byte, bitOrder BitOrder, opts ParseOptions) ([]*Field, error) {
	return s.Decode(bytes.NewReader(data), bitOrder, opts)
}

// Bytecode exposes the compiled instruction stream, chiefly for
// disassembly and tests.
func (s *Schema) Bytecode() *CompiledSchema {
	return s.compiled
}

// Library is a named, versioned collection of schemas loaded from a single
// YAML manifest, letting a deployment ship many related device formats (one
// per firmware revision, say) as one document.
type Library struct {
	Schemas map[string]*Schema
	order   []string
}

// manifestEntry mirrors one item of a schema manifest's top-level list.
type manifestEntry struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Description string `yaml:"description"`
	Endian      string `yaml:"endian"`
	Script      string `yaml:"script"`
}

type manifestDocument struct {
	Schemas []manifestEntry `yaml:"schemas"`
}

// LoadManifest parses a YAML document listing one or more named schemas and
// compiles every one of them up front, so a bad entry is caught at load
// time rather than on first use.
func LoadManifest(doc []byte) (*Library, error) {
	var m manifestDocument
	if err := yaml.Unmarshal(doc, &m); err != nil {
		return nil, &SchemaError{Kind: KindCompilation, Msg: "invalid schema manifest", Cause: err}
	}

	lib := &Library{Schemas: make(map[string]*Schema, len(m.Schemas))}
	for _, entry := range m.Schemas {
		if entry.Name == "" {
			return nil, compileErr(nil, "manifest entry is missing a name")
		}
		if _, dup := lib.Schemas[entry.Name]; dup {
			return nil, compileErr(nil, "duplicate schema name %q in manifest", entry.Name)
		}

		order := BigEndian
		if entry.Endian == "little" {
			order = LittleEndian
		}

		sch, err := ParseSchema(entry.Script, order)
		if err != nil {
			return nil, &SchemaError{Kind: KindCompilation, Msg: fmt.Sprintf("schema %q", entry.Name), Cause: err}
		}
		sch.Name = entry.Name
		sch.Version = entry.Version
		sch.Description = entry.Description

		lib.Schemas[entry.Name] = sch
		lib.order = append(lib.order, entry.Name)
	}
	return lib, nil
}

// Get looks up a schema by name.
func (l *Library) Get(name string) (*Schema, bool) {
	s, ok := l.Schemas[name]
	return s, ok
}

// Names returns every schema name in manifest order.
func (l *Library) Names() []string {
	out := make([]string, len(l.order))
	copy(out, l.order)
	return out
}

// String renders a Field tree for debugging, e.g. in test failure output.
func (f *Field) String() string {
	var b bytes.Buffer
	writeField(&b, f, 0)
	return b.String()
}

func writeField(b *bytes.Buffer, f *Field, depth int) {
	indent := bytes.Repeat([]byte("  "), depth)
	b.Write(indent)
	if f.Name != "" {
		fmt.Fprintf(b, "%s ", f.Name)
	}
	switch {
	case f.Kind == FieldStruct && f.IsArray:
		fmt.Fprintf(b, "struct[%d]\n", len(f.StructArray))
		for i, inst := range f.StructArray {
			fmt.Fprintf(b, "%s  [%d]\n", indent, i)
			for _, child := range inst {
				writeField(b, child, depth+2)
			}
		}
	case f.Kind == FieldStruct:
		b.WriteString("struct\n")
		for _, child := range f.Children {
			writeField(b, child, depth+1)
		}
	case f.IsArray:
		fmt.Fprintf(b, "%s[%d]\n", f.Kind, arrayLen(f))
	default:
		fmt.Fprintf(b, "%s = %s\n", f.Kind, scalarString(f))
	}
}

func arrayLen(f *Field) int {
	switch f.Kind {
	case FieldBool:
		return len(f.BoolArray)
	case FieldCustom:
		return len(f.RawArray)
	default:
		return len(f.Int64Array)
	}
}

func scalarString(f *Field) string {
	if f.Kind == FieldBool {
		return fmt.Sprintf("%v", f.Bool)
	}
	if f.Kind == FieldCustom {
		return fmt.Sprintf("% x", f.Raw)
	}
	return fmt.Sprintf("%d", f.Int64)
}
