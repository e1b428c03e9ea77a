// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

package schema

import (
	"strings"
	"testing"
)

func TestCompileSimpleField(t *testing.T) {
	cs, err := Compile("ubyte len; byte[len] data;", BigEndian)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cs.NamedFields) != 2 {
		t.Fatalf("got %d named fields, want 2", len(cs.NamedFields))
	}
	if cs.NamedFields[0].Path != "len" || cs.NamedFields[1].Path != "data" {
		t.Errorf("got %+v", cs.NamedFields)
	}
	if len(cs.Exprs) != 1 {
		t.Fatalf("got %d compiled expressions, want 1 (the array-size expr)", len(cs.Exprs))
	}
}

func TestCompileUnmatchedCloseBrace(t *testing.T) {
	if _, err := Compile("ubyte a; }", BigEndian); err == nil {
		t.Error("expected an error for an unmatched '}'")
	}
}

func TestCompileUnterminatedStruct(t *testing.T) {
	if _, err := Compile("header { ubyte a;", BigEndian); err == nil {
		t.Error("expected an error for an unterminated struct")
	}
}

func TestCompileDuplicateNameSameScope(t *testing.T) {
	if _, err := Compile("ubyte a; ubyte a;", BigEndian); err == nil {
		t.Error("expected an error for a duplicate field name in the same scope")
	}
}

func TestCompileSameNameDifferentScopesIsLegal(t *testing.T) {
	_, err := Compile("ubyte a; inner { ubyte a; }", BigEndian)
	if err != nil {
		t.Errorf("same name in a nested scope should be legal: %v", err)
	}
}

func TestCompileNegativeArraySize(t *testing.T) {
	if _, err := Compile("byte[-1] data;", BigEndian); err == nil {
		t.Error("expected an error for a negative array size")
	}
}

func TestCompileTwoWholeStreamArraysRejected(t *testing.T) {
	if _, err := Compile("byte[_] a; byte[_] b;", BigEndian); err == nil {
		t.Error("expected an error for a second whole-stream array")
	}
}

func TestCompileInstructionAfterWholeStreamRejected(t *testing.T) {
	if _, err := Compile("byte[_] a; ubyte b;", BigEndian); err == nil {
		t.Error("expected an error for an instruction following a whole-stream array")
	}
}

// TestCompileWholeStreamAfterClosedStructIsLegal is spec scenario 4: a
// whole-stream array may follow a sibling struct that has already closed.
func TestCompileWholeStreamAfterClosedStructIsLegal(t *testing.T) {
	_, err := Compile("ubyte n; { ubyte[n]; } ubyte[_] rest;", BigEndian)
	if err != nil {
		t.Errorf("whole-stream array after a completed struct should be legal: %v", err)
	}
}

func TestCompileBitRequiresExtra(t *testing.T) {
	if _, err := Compile("bit a;", BigEndian); err == nil {
		t.Error("expected an error: bit requires ':width'")
	}
}

func TestCompileSkipRequiresExtra(t *testing.T) {
	if _, err := Compile("skip;", BigEndian); err == nil {
		t.Error("expected an error: skip requires ':count'")
	}
}

func TestCompileVarMustBeNamed(t *testing.T) {
	if _, err := Compile("var;", BigEndian); err == nil {
		t.Error("expected an error: var must be named")
	}
}

func TestCompileAlignMustNotBeNamedOrArrayed(t *testing.T) {
	if _, err := Compile("align:4 a;", BigEndian); err == nil {
		t.Error("expected an error: align must not be named")
	}
	if _, err := Compile("align:4[2];", BigEndian); err == nil {
		t.Error("expected an error: align must not be arrayed")
	}
}

func TestCompileResetCounterMustNotBeNamedOrArrayed(t *testing.T) {
	if _, err := Compile("reset$$ a;", BigEndian); err == nil {
		t.Error("expected an error: reset$$ must not be named")
	}
}

func TestCompileUnacceptedExtraRejected(t *testing.T) {
	if _, err := Compile("int:4 a;", BigEndian); err == nil {
		t.Error("expected an error: int does not accept ':' extra data")
	}
}

func TestCompileStructCannotCarryExtra(t *testing.T) {
	if _, err := Compile("header:3 { ubyte a; }", BigEndian); err == nil {
		t.Error("expected an error for a struct carrying ':' extra data")
	}
}

func TestCompileUnresolvedArraySizeNameDeferred(t *testing.T) {
	// Unresolved names in an expression are only fatal at evaluation, not
	// at compile time: the compiler records the name and Eval reports it.
	_, err := Compile("byte[missing+1] data;", BigEndian)
	if err != nil {
		t.Errorf("expected compile to succeed, deferring resolution: %v", err)
	}
}

func TestCompileLittleEndianMarker(t *testing.T) {
	cs, err := Compile("<int a;", BigEndian)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cs.Bytecode[0]&FlagLittleEndian == 0 {
		t.Error("expected the little-endian flag to be set")
	}
}

func TestCompileDefaultOrderAppliesWithoutMarker(t *testing.T) {
	cs, err := Compile("int a;", LittleEndian)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cs.Bytecode[0]&FlagLittleEndian == 0 {
		t.Error("expected the schema's default little-endian order to apply to an unmarked field")
	}
}

func TestCompileOrderMarkerOverridesDefault(t *testing.T) {
	cs, err := Compile(">int a;", LittleEndian)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cs.Bytecode[0]&FlagLittleEndian != 0 {
		t.Error("explicit '>' should override the schema's little-endian default")
	}
}

func TestCompileCustomTypeDeduplicated(t *testing.T) {
	cs, err := Compile("gpscoord a; gpscoord b;", BigEndian)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cs.CustomTypes) != 1 || cs.CustomTypes[0] != "gpscoord" {
		t.Errorf("got %+v, want one deduplicated entry", cs.CustomTypes)
	}
}

func TestCompileStructBalanced(t *testing.T) {
	cs, err := Compile("outer { inner { ubyte a; } }", BigEndian)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	dump := cs.Disassemble()
	starts := strings.Count(dump, "STRUCT_START")
	ends := strings.Count(dump, "STRUCT_END")
	if starts != ends {
		t.Errorf("unbalanced STRUCT_START/STRUCT_END: %d starts, %d ends", starts, ends)
	}
	if starts != 2 {
		t.Errorf("expected 2 struct starts, got %d", starts)
	}
}

func TestCompileAnonymousStructNameNotRegisteredInParentScope(t *testing.T) {
	// An anonymous struct contributes no name of its own to the parent
	// scope, so it compiles between named siblings without a name entry.
	_, err := Compile("ubyte x; { ubyte y; } ubyte z;", BigEndian)
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
