// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

package schema

import "fmt"

// ErrorKind classifies a SchemaError into one of the taxonomy entries of
// the compiler/runtime: a malformed script, a schema-level rule violation,
// a bad expression, a runtime decode failure, stream exhaustion, or an
// unreachable internal condition.
type ErrorKind string

const (
	KindTokenization ErrorKind = "tokenization"
	KindCompilation  ErrorKind = "compilation"
	KindExpression   ErrorKind = "expression"
	KindParsing      ErrorKind = "parsing"
	KindEndOfStream  ErrorKind = "end_of_stream"
	KindInternal     ErrorKind = "internal"
)

// SchemaError is the single error type returned by every public entry
// point in this package. It carries enough location information to point
// a caller back at the offending part of the script or stream.
type SchemaError struct {
	Kind ErrorKind
	Msg  string

	// Compile-time location.
	TokenPos int
	Token    string

	// Runtime location.
	BytecodeOffset int
	FieldPath      string

	Cause error
}

func (e *SchemaError) Error() string {
	loc := ""
	switch {
	case e.Token != "":
		loc = fmt.Sprintf(" (token %q at %d)", e.Token, e.TokenPos)
	case e.FieldPath != "":
		loc = fmt.Sprintf(" (field %q at offset %d)", e.FieldPath, e.BytecodeOffset)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s%s: %v", e.Kind, e.Msg, loc, e.Cause)
	}
	return fmt.Sprintf("%s: %s%s", e.Kind, e.Msg, loc)
}

func (e *SchemaError) Unwrap() error {
	return e.Cause
}

func tokenErr(pos int, tok string, format string, args ...any) error {
	return &SchemaError{Kind: KindTokenization, Msg: fmt.Sprintf(format, args...), TokenPos: pos, Token: tok}
}

func compileErr(tok *Token, format string, args ...any) error {
	e := &SchemaError{Kind: KindCompilation, Msg: fmt.Sprintf(format, args...)}
	if tok != nil {
		e.TokenPos = tok.Pos
		e.Token = tok.Raw
	}
	return e
}

func exprErr(format string, args ...any) error {
	return &SchemaError{Kind: KindExpression, Msg: fmt.Sprintf(format, args...)}
}

func parseErr(offset int, path string, format string, args ...any) error {
	return &SchemaError{Kind: KindParsing, Msg: fmt.Sprintf(format, args...), BytecodeOffset: offset, FieldPath: path}
}

func eofErr(offset int, path string, format string, args ...any) error {
	return &SchemaError{Kind: KindEndOfStream, Msg: fmt.Sprintf(format, args...), BytecodeOffset: offset, FieldPath: path}
}

func internalErr(format string, args ...any) error {
	return &SchemaError{Kind: KindInternal, Msg: fmt.Sprintf(format, args...)}
}
