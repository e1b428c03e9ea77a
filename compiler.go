// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

package schema

import "strconv"

// NamedFieldInfo records where a named field was declared: its fully
// resolved dotted path (filled in once every enclosing struct has closed)
// and the bytecode offset of the instruction that declares it.
type NamedFieldInfo struct {
	Path   string
	Leaf   string
	Offset int
}

// CompiledSchema is the immutable output of Compile: bytecode plus the side
// tables a runtime needs to execute it.
type CompiledSchema struct {
	Bytecode     []byte
	NamedFields  []NamedFieldInfo
	Exprs        []*Expr
	CustomTypes  []string
	DefaultOrder ByteOrder
}

type structFrame struct {
	startOffset     int
	name            string
	named           bool
	namedFieldStart int
	isArray         bool
	sawWholeStream  bool
}

type compiler struct {
	tokens []*Token
	pos    int

	code        []byte
	namedFields []NamedFieldInfo
	exprs       []*Expr
	customTypes []string

	stack           []structFrame
	structBackPatch []int
	topSawWholeStream bool
	wholeStreamUsed   bool
	defaultOrder      ByteOrder
}

// Compile turns a schema script into a CompiledSchema. defaultOrder governs
// multi-byte scalars that don't carry an explicit '<' or '>' marker.
func Compile(script string, defaultOrder ByteOrder) (*CompiledSchema, error) {
	toks, err := Tokens(script)
	if err != nil {
		return nil, err
	}
	filtered := toks[:0:0]
	for _, t := range toks {
		if t.Kind != TokenComment {
			filtered = append(filtered, t)
		}
	}

	c := &compiler{tokens: filtered, defaultOrder: defaultOrder}
	if err := c.compileAll(); err != nil {
		return nil, err
	}
	if len(c.stack) != 0 {
		return nil, compileErr(nil, "unterminated struct %q", c.stack[len(c.stack)-1].name)
	}

	return &CompiledSchema{
		Bytecode:     c.code,
		NamedFields:  c.namedFields,
		Exprs:        c.exprs,
		CustomTypes:  c.customTypes,
		DefaultOrder: defaultOrder,
	}, nil
}

func (c *compiler) peekToken() *Token {
	if c.pos >= len(c.tokens) {
		return nil
	}
	return c.tokens[c.pos]
}

// currentFrame returns the innermost open struct, or nil at the top level.
func (c *compiler) currentFrame() *structFrame {
	if len(c.stack) == 0 {
		return nil
	}
	return &c.stack[len(c.stack)-1]
}

func (c *compiler) compileAll() error {
	for {
		tok := c.peekToken()
		if tok == nil {
			return nil
		}
		if tok.Kind == TokenStructClose {
			if len(c.stack) == 0 {
				return compileErr(tok, "unmatched '}'")
			}
			c.pos++
			if err := c.closeStruct(tok); err != nil {
				return err
			}
			continue
		}
		if err := c.checkWholeStreamNotClosed(tok); err != nil {
			return err
		}
		c.pos++
		switch tok.Kind {
		case TokenStructOpen:
			if err := c.openStruct(tok); err != nil {
				return err
			}
		case TokenAtom:
			if err := c.compileAtom(tok); err != nil {
				return err
			}
		}
	}
}

// checkWholeStreamNotClosed rejects any further instruction in the current
// scope once a whole-stream array has been emitted there: a whole-stream
// array must be the last instruction of its enclosing struct (or of the
// schema, at the top level).
func (c *compiler) checkWholeStreamNotClosed(tok *Token) error {
	if f := c.currentFrame(); f != nil {
		if f.sawWholeStream {
			return compileErr(tok, "a whole-stream array must be the last instruction in its struct")
		}
		return nil
	}
	if c.topSawWholeStream {
		return compileErr(tok, "a whole-stream array must be the last instruction in the schema")
	}
	return nil
}

func (c *compiler) markWholeStream() {
	if f := c.currentFrame(); f != nil {
		f.sawWholeStream = true
		return
	}
	c.topSawWholeStream = true
}

func (c *compiler) resolver() nameResolver {
	fields := c.namedFields
	return func(name string) (int, bool) {
		for i := len(fields) - 1; i >= 0; i-- {
			if fields[i].Path == name {
				return i, true
			}
		}
		return 0, false
	}
}

// registerName appends a named-field entry at the given bytecode offset and
// returns its index, after checking for a duplicate name within the
// currently open struct's scope.
func (c *compiler) registerName(tok *Token, name string, offset int) (int, error) {
	scopeStart := 0
	if f := c.currentFrame(); f != nil {
		scopeStart = f.namedFieldStart
	}
	for i := scopeStart; i < len(c.namedFields); i++ {
		if c.namedFields[i].Path == name {
			return 0, compileErr(tok, "duplicate field name %q in this struct", name)
		}
	}
	idx := len(c.namedFields)
	c.namedFields = append(c.namedFields, NamedFieldInfo{Path: name, Leaf: name, Offset: offset})
	return idx, nil
}

// compileSizeOperand works out the flags and operand bytes for an atom or
// struct's array-size clause without emitting them. It returns the
// first-byte flags contribution (FlagArray, FlagWide), the size clause's own
// second-byte bits (ExtFlagArrayExpr or ExtFlagWholeStream), the literal
// operand or compiled expression, whether the array is whole-stream, and
// any error.
func (c *compiler) compileSizeOperand(tok *Token) (firstFlags byte, extFlags byte, operand []byte, expr *Expr, isWholeStream bool, err error) {
	if !tok.HasArray {
		return 0, 0, nil, nil, false, nil
	}
	firstFlags |= FlagArray

	if tok.ArraySize == "_" {
		if c.wholeStreamUsed {
			return 0, 0, nil, nil, false, compileErr(tok, "only one whole-stream array is allowed per schema")
		}
		c.wholeStreamUsed = true
		return firstFlags | FlagWide, ExtFlagWholeStream, nil, nil, true, nil
	}

	if n, convErr := strconv.ParseInt(tok.ArraySize, 10, 32); convErr == nil {
		if n < 0 {
			return 0, 0, nil, nil, false, compileErr(tok, "array size must not be negative: %d", n)
		}
		return firstFlags, 0, packInt(int32(n)), nil, false, nil
	}

	e, exprErr2 := compileExpr(tok.ArraySize, c.resolver())
	if exprErr2 != nil {
		return 0, 0, nil, nil, false, compileErr(tok, "array-size expression %q: %v", tok.ArraySize, exprErr2)
	}
	return firstFlags | FlagWide, ExtFlagArrayExpr, nil, e, false, nil
}

func (c *compiler) openStruct(tok *Token) error {
	offset := len(c.code)

	sizeFlags, extFlags, sizeOperand, sizeExpr, wholeStream, err := c.compileSizeOperand(tok)
	if err != nil {
		return err
	}
	if wholeStream {
		c.markWholeStream()
	}

	first := byte(OpStructStart) | sizeFlags
	nameIdx := -1
	if tok.Name != "" {
		first |= FlagNamed
		idx, err := c.registerName(tok, tok.Name, offset)
		if err != nil {
			return err
		}
		nameIdx = idx
	}

	c.code = append(c.code, first)
	if sizeFlags&FlagWide != 0 {
		c.code = append(c.code, extFlags)
		if sizeExpr != nil {
			c.exprs = append(c.exprs, sizeExpr)
		}
	} else if sizeOperand != nil {
		c.code = append(c.code, sizeOperand...)
	}
	// Placeholder for the STRUCT_END back-pointer, patched in closeStruct.
	backPatchPos := len(c.code)
	c.code = append(c.code, 0, 0, 0, 0, 0)

	frame := structFrame{
		startOffset:     offset,
		name:            tok.Name,
		named:           nameIdx >= 0,
		namedFieldStart: len(c.namedFields),
		isArray:         tok.HasArray,
	}
	c.stack = append(c.stack, frame)
	c.structBackPatch = append(c.structBackPatch, backPatchPos)
	return nil
}

func (c *compiler) closeStruct(tok *Token) error {
	frame := c.stack[len(c.stack)-1]
	c.stack = c.stack[:len(c.stack)-1]

	backPatchPos := c.structBackPatch[len(c.structBackPatch)-1]
	c.structBackPatch = c.structBackPatch[:len(c.structBackPatch)-1]

	if frame.name != "" {
		prefix := frame.name + "."
		for i := frame.namedFieldStart; i < len(c.namedFields); i++ {
			c.namedFields[i].Path = prefix + c.namedFields[i].Path
		}
	}

	endOffset := len(c.code)
	c.code = append(c.code, byte(OpStructEnd))
	c.code = appendPackedInt(c.code, int32(frame.startOffset))
	copy(c.code[backPatchPos:backPatchPos+5], packInt5(int32(endOffset)))
	return nil
}

func (c *compiler) compileAtom(tok *Token) error {
	op := atomOpcode(tok.TypeName)

	if (op == OpSkip || op == OpAlign || op == OpResetCounter) && (tok.Name != "" || tok.HasArray) {
		return compileErr(tok, "%s must not be named or arrayed", op)
	}
	if op == OpVar && tok.Name == "" {
		return compileErr(tok, "VAR must be named")
	}
	if op == OpBit && !tok.HasExtra {
		return compileErr(tok, "bit requires a :width extra clause")
	}
	if op == OpSkip && !tok.HasExtra {
		return compileErr(tok, "skip requires a :count extra clause")
	}
	acceptsExtra := op == OpAlign || op == OpBit || op == OpSkip || op == OpVar || op == OpCustomType
	if tok.HasExtra && !acceptsExtra {
		return compileErr(tok, "%s does not accept ':' extra data", op)
	}

	offset := len(c.code)
	first := byte(op)

	extFlags := byte(0)
	needsExtFlagsByte := false

	sizeFlags, sizeExtFlags, sizeOperand, sizeExpr, wholeStream, err := c.compileSizeOperand(tok)
	if err != nil {
		return err
	}
	if wholeStream {
		c.markWholeStream()
	}
	first |= sizeFlags
	if sizeFlags&FlagWide != 0 {
		needsExtFlagsByte = true
		extFlags |= sizeExtFlags
	}

	var extraOperand []byte
	var extraExpr *Expr
	if acceptsExtra {
		if tok.HasExtra {
			if n, convErr := strconv.ParseInt(tok.ExtraData, 10, 32); convErr == nil {
				extraOperand = packInt(int32(n))
			} else {
				e, exprErr2 := compileExpr(tok.ExtraData, c.resolver())
				if exprErr2 != nil {
					return compileErr(tok, "extra-data expression %q: %v", tok.ExtraData, exprErr2)
				}
				extraExpr = e
				needsExtFlagsByte = true
				extFlags |= ExtFlagExtraAsExpr
			}
		} else {
			defaultExtra := int32(0)
			if op == OpAlign {
				defaultExtra = 1
			}
			extraOperand = packInt(defaultExtra)
		}
	}

	resolvedOrder := c.defaultOrder
	if tok.OrderSpecified {
		resolvedOrder = tok.Order
	}
	if resolvedOrder == LittleEndian {
		first |= FlagLittleEndian
	}

	nameIdx := -1
	if tok.Name != "" {
		first |= FlagNamed
	}
	if needsExtFlagsByte {
		first |= FlagWide
	}

	if tok.Name != "" {
		idx, err := c.registerName(tok, tok.Name, offset)
		if err != nil {
			return err
		}
		nameIdx = idx
	}
	_ = nameIdx

	c.code = append(c.code, first)
	if needsExtFlagsByte {
		c.code = append(c.code, extFlags)
	}

	if op == OpCustomType {
		typeIdx := c.registerCustomType(tok.TypeName)
		c.code = appendPackedInt(c.code, int32(typeIdx))
	}

	if sizeFlags&FlagWide != 0 {
		if sizeExpr != nil {
			c.exprs = append(c.exprs, sizeExpr)
		}
	} else if sizeOperand != nil {
		c.code = append(c.code, sizeOperand...)
	}

	if acceptsExtra {
		if extraExpr != nil {
			c.exprs = append(c.exprs, extraExpr)
		} else {
			c.code = append(c.code, extraOperand...)
		}
	}

	return nil
}

func (c *compiler) registerCustomType(name string) int {
	for i, n := range c.customTypes {
		if n == name {
			return i
		}
	}
	c.customTypes = append(c.customTypes, name)
	return len(c.customTypes) - 1
}

// atomOpcode maps a lowercased type-name token to its opcode. Anything not
// recognized as a built-in scalar is treated as a custom type name, to be
// resolved by an external processor at parse time.
func atomOpcode(typeName string) Opcode {
	switch typeName {
	case "align":
		return OpAlign
	case "bit":
		return OpBit
	case "bool":
		return OpBool
	case "ubyte":
		return OpUByte
	case "byte":
		return OpByte
	case "ushort":
		return OpUShort
	case "short":
		return OpShort
	case "int":
		return OpInt
	case "long":
		return OpLong
	case "skip":
		return OpSkip
	case "var":
		return OpVar
	case "reset$$":
		return OpResetCounter
	default:
		return OpCustomType
	}
}
