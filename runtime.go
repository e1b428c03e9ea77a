// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

package schema

// ExternalValueFunc resolves a $name reference inside an expression to a
// value supplied by the caller rather than parsed from the stream.
type ExternalValueFunc func(name string) (int32, bool)

// VarReaderFunc reads one VAR field's value off the stream. extra carries
// the field's resolved :extra parameter, and order its byte order.
type VarReaderFunc func(fieldName string, extra int32, r *BitReader, order ByteOrder) (int64, error)

// CustomTypeReaderFunc reads one custom-type field's raw value off the
// stream. typeName is the schema's lowercased type token.
type CustomTypeReaderFunc func(typeName, fieldName string, extra int32, r *BitReader, order ByteOrder) ([]byte, error)

// ParseOptions configures a single Parse call.
type ParseOptions struct {
	BitOrder    BitOrder
	External    ExternalValueFunc
	VarReader   VarReaderFunc
	CustomType  CustomTypeReaderFunc
}

// cursor bundles the three mutable positions a struct-array iteration must
// rewind together: where we are in the bytecode, and how far into the
// named-field and expression side tables this pass has advanced.
type cursor struct {
	bytecodePos   int
	namedFieldPos int
	exprPos       int
}

type parser struct {
	schema  *CompiledSchema
	r       *BitReader
	opts    ParseOptions
	numeric map[string]int64
}

// Parse runs schema against r, returning the root struct's direct fields.
func Parse(schema *CompiledSchema, r *BitReader, opts ParseOptions) ([]*Field, error) {
	p := &parser{schema: schema, r: r, opts: opts, numeric: map[string]int64{}}
	cur := &cursor{}
	return p.parseStruct(cur, len(schema.Bytecode), false)
}

func (p *parser) ResolveField(index int) (int32, bool) {
	if index < 0 || index >= len(p.schema.NamedFields) {
		return 0, false
	}
	v, ok := p.numeric[p.schema.NamedFields[index].Path]
	return int32(v), ok
}

func (p *parser) ResolveExternal(name string) (int32, bool) {
	if p.opts.External == nil {
		return 0, false
	}
	return p.opts.External(name)
}

func (p *parser) StreamPosition() int32 {
	return int32(p.r.Counter())
}

// instrHeader is the decoded, common prefix of every bytecode instruction.
type instrHeader struct {
	offset  int
	op      Opcode
	named   bool
	array   bool
	order   ByteOrder
	wide    bool
	extFlag byte
}

func (p *parser) decodeHeader(code []byte, pos *int) instrHeader {
	offset := *pos
	first := code[*pos]
	*pos++
	h := instrHeader{
		offset: offset,
		op:     Opcode(first & opcodeMask),
		named:  first&FlagNamed != 0,
		array:  first&FlagArray != 0,
		order:  BigEndian,
	}
	if first&FlagLittleEndian != 0 {
		h.order = LittleEndian
	}
	if first&FlagWide != 0 {
		h.wide = true
		h.extFlag = code[*pos]
		*pos++
	}
	return h
}

func (p *parser) claimName(cur *cursor) NamedFieldInfo {
	info := p.schema.NamedFields[cur.namedFieldPos]
	cur.namedFieldPos++
	return info
}

// arraySize decodes an array-size clause that isn't whole-stream, either
// evaluating the associated expression or reading a literal packed int.
// In skip mode the expression slot is consumed without being evaluated and
// 0 is returned, since the value is never used.
func (p *parser) arraySize(code []byte, pos *int, h instrHeader, cur *cursor, skip bool) (int, error) {
	if h.wide {
		if h.extFlag&ExtFlagArrayExpr != 0 {
			idx := cur.exprPos
			cur.exprPos++
			if skip {
				return 0, nil
			}
			v, err := p.schema.Exprs[idx].Eval(p)
			if err != nil {
				return 0, err
			}
			if v < 0 {
				return 0, parseErr(h.offset, "", "array-size expression evaluated to a negative length: %d", v)
			}
			return int(v), nil
		}
	}
	v, err := unpackInt(code, pos)
	if err != nil {
		return 0, err
	}
	return int(v), nil
}

// extraValue decodes an :extra clause the same way, for ALIGN/SKIP/BIT/VAR/
// CUSTOM_TYPE's numeric parameter.
func (p *parser) extraValue(code []byte, pos *int, h instrHeader, hasExtra bool, cur *cursor, skip bool, defaultVal int32) (int32, error) {
	if !hasExtra {
		return defaultVal, nil
	}
	if h.wide && h.extFlag&ExtFlagExtraAsExpr != 0 {
		idx := cur.exprPos
		cur.exprPos++
		if skip {
			return 0, nil
		}
		return p.schema.Exprs[idx].Eval(p)
	}
	v, err := unpackInt(code, pos)
	return v, err
}

func (p *parser) consumeStructEnd(code []byte, cur *cursor) error {
	cur.bytecodePos++ // opcode byte
	pos := cur.bytecodePos
	if _, err := unpackInt(code, &pos); err != nil {
		return err
	}
	cur.bytecodePos = pos
	return nil
}

// parseStruct executes bytecode from cur.bytecodePos up to endPos. In skip
// mode no bytes are read from the stream and no Field nodes are built: the
// call exists purely to advance cur past the named-field and expression
// slots a zero-repeat struct array's body would otherwise have claimed.
func (p *parser) parseStruct(cur *cursor, endPos int, skip bool) ([]*Field, error) {
	code := p.schema.Bytecode
	var out []*Field

	for cur.bytecodePos < endPos {
		pos := cur.bytecodePos
		h := p.decodeHeader(code, &pos)

		switch h.op {
		case OpStructStart:
			field, err := p.runStructStart(code, &pos, h, cur, skip)
			if err != nil {
				return nil, err
			}
			if !skip && field != nil {
				out = append(out, field)
			}

		case OpAlign:
			extra, err := p.extraValue(code, &pos, h, true, cur, skip, 1)
			if err != nil {
				return nil, err
			}
			cur.bytecodePos = pos
			if !skip {
				p.r.AlignToByte()
				if extra < 1 {
					return nil, parseErr(h.offset, "", "align width must be at least 1: %d", extra)
				}
				for extra > 1 && p.r.Counter()%int(extra) != 0 {
					if _, err := p.r.ReadByte(); err != nil {
						return nil, err
					}
				}
			}
			continue

		case OpResetCounter:
			cur.bytecodePos = pos
			if !skip {
				p.r.ResetCounter()
			}
			continue

		case OpSkip:
			extra, err := p.extraValue(code, &pos, h, true, cur, skip, 0)
			if err != nil {
				return nil, err
			}
			cur.bytecodePos = pos
			if !skip {
				if err := p.r.SkipBytes(int(extra)); err != nil {
					return nil, err
				}
			}
			continue

		case OpVar:
			info := p.claimName(cur)
			extra, err := p.extraValue(code, &pos, h, true, cur, skip, 0)
			if err != nil {
				return nil, err
			}
			if h.array {
				n, err := p.arrayCountOrWholeStream(code, &pos, h, cur, skip)
				if err != nil {
					return nil, err
				}
				cur.bytecodePos = pos
				if !skip {
					field, err := p.readVarArray(info, extra, h.order, n)
					if err != nil {
						return nil, err
					}
					out = append(out, field)
				}
				continue
			}
			cur.bytecodePos = pos
			if !skip {
				v, err := p.opts.callVar(info.Leaf, extra, p.r, h.order)
				if err != nil {
					return nil, err
				}
				p.numeric[info.Path] = v
				out = append(out, &Field{Name: info.Leaf, Path: info.Path, Kind: FieldVar, Order: h.order, Int64: v})
			}
			continue

		case OpCustomType:
			typeIdx, err := unpackInt(code, &pos)
			if err != nil {
				return nil, err
			}
			typeName := p.schema.CustomTypes[typeIdx]
			var info NamedFieldInfo
			if h.named {
				info = p.claimName(cur)
			}
			extra, err := p.extraValue(code, &pos, h, true, cur, skip, 0)
			if err != nil {
				return nil, err
			}
			if h.array {
				n, err := p.arrayCountOrWholeStream(code, &pos, h, cur, skip)
				if err != nil {
					return nil, err
				}
				cur.bytecodePos = pos
				if !skip {
					field, err := p.readCustomArray(typeName, info, extra, h.order, n)
					if err != nil {
						return nil, err
					}
					out = append(out, field)
				}
				continue
			}
			cur.bytecodePos = pos
			if !skip {
				raw, err := p.opts.callCustom(typeName, info.Leaf, extra, p.r, h.order)
				if err != nil {
					return nil, err
				}
				out = append(out, &Field{Name: info.Leaf, Path: info.Path, Kind: FieldCustom, Order: h.order, Raw: raw})
			}
			continue

		default:
			field, err := p.runScalar(code, &pos, h, cur, skip)
			if err != nil {
				return nil, err
			}
			cur.bytecodePos = pos
			if !skip && field != nil {
				out = append(out, field)
			}
			continue
		}

		cur.bytecodePos = pos
	}

	return out, nil
}

// arrayCountOrWholeStream is arraySize plus whole-stream detection, shared
// by VAR/CUSTOM_TYPE array handling which read until end of stream the same
// way a scalar whole-stream array does. Returns n = -1 for whole-stream.
func (p *parser) arrayCountOrWholeStream(code []byte, pos *int, h instrHeader, cur *cursor, skip bool) (int, error) {
	if h.wide && h.extFlag&ExtFlagWholeStream != 0 {
		return -1, nil
	}
	return p.arraySize(code, pos, h, cur, skip)
}

func (v ParseOptions) callVar(name string, extra int32, r *BitReader, order ByteOrder) (int64, error) {
	if v.VarReader == nil {
		return 0, internalErr("VAR field %q requires a VarReaderFunc", name)
	}
	val, err := v.VarReader(name, extra, r, order)
	if _, ok := err.(*SchemaError); err != nil && !ok {
		err = &SchemaError{Kind: KindParsing, Msg: "VAR reader failed for field " + name, Cause: err}
	}
	return val, err
}

func (v ParseOptions) callCustom(typeName, name string, extra int32, r *BitReader, order ByteOrder) ([]byte, error) {
	if v.CustomType == nil {
		return nil, internalErr("custom type %q requires a CustomTypeReaderFunc", typeName)
	}
	raw, err := v.CustomType(typeName, name, extra, r, order)
	if _, ok := err.(*SchemaError); err != nil && !ok {
		err = &SchemaError{Kind: KindParsing, Msg: "custom type " + typeName + " reader failed", Cause: err}
	}
	return raw, err
}

func (p *parser) readVarArray(info NamedFieldInfo, extra int32, order ByteOrder, n int) (*Field, error) {
	var values []int64
	if n < 0 {
		for p.r.HasAvailableData() {
			v, err := p.opts.callVar(info.Leaf, extra, p.r, order)
			if err != nil {
				return nil, err
			}
			values = append(values, v)
		}
	} else {
		values = make([]int64, n)
		for i := 0; i < n; i++ {
			v, err := p.opts.callVar(info.Leaf, extra, p.r, order)
			if err != nil {
				return nil, err
			}
			values[i] = v
		}
	}
	return &Field{Name: info.Leaf, Path: info.Path, Kind: FieldVar, Order: order, IsArray: true, Int64Array: values}, nil
}

func (p *parser) readCustomArray(typeName string, info NamedFieldInfo, extra int32, order ByteOrder, n int) (*Field, error) {
	var values [][]byte
	if n < 0 {
		for p.r.HasAvailableData() {
			v, err := p.opts.callCustom(typeName, info.Leaf, extra, p.r, order)
			if err != nil {
				return nil, err
			}
			values = append(values, v)
		}
	} else {
		values = make([][]byte, n)
		for i := 0; i < n; i++ {
			v, err := p.opts.callCustom(typeName, info.Leaf, extra, p.r, order)
			if err != nil {
				return nil, err
			}
			values[i] = v
		}
	}
	return &Field{Name: info.Leaf, Path: info.Path, Kind: FieldCustom, Order: order, IsArray: true, RawArray: values}, nil
}

// runScalar handles every fixed numeric/boolean opcode, array or not.
func (p *parser) runScalar(code []byte, pos *int, h instrHeader, cur *cursor, skip bool) (*Field, error) {
	var info NamedFieldInfo
	if h.named {
		info = p.claimName(cur)
	}

	var extraInt32 int32
	if h.op == OpBit {
		v, err := p.extraValue(code, pos, h, true, cur, skip, 0)
		if err != nil {
			return nil, err
		}
		extraInt32 = v
		if !skip && (extraInt32 < 1 || extraInt32 > 8) {
			return nil, parseErr(h.offset, info.Path, "bit width out of range 1..8: %d", extraInt32)
		}
	}

	if h.array {
		n, err := p.arrayCountOrWholeStream(code, pos, h, cur, skip)
		if err != nil {
			return nil, err
		}
		if skip {
			return nil, nil
		}
		return p.readScalarArray(h.op, info, h.order, int(extraInt32), n)
	}

	if skip {
		return nil, nil
	}
	return p.readScalar(h.op, info, h.order, int(extraInt32), cur)
}

func (p *parser) readScalar(op Opcode, info NamedFieldInfo, order ByteOrder, bitWidth int, cur *cursor) (*Field, error) {
	kind, numeric, boolVal, err := p.readOneScalar(op, order, bitWidth)
	if err != nil {
		return nil, err
	}
	if info.Path != "" {
		if kind == FieldBool {
			v := int64(0)
			if boolVal {
				v = 1
			}
			p.numeric[info.Path] = v
		} else {
			p.numeric[info.Path] = numeric
		}
	}
	return &Field{Name: info.Leaf, Path: info.Path, Kind: kind, Order: order, Int64: numeric, Bool: boolVal}, nil
}

func (p *parser) readOneScalar(op Opcode, order ByteOrder, bitWidth int) (FieldKind, int64, bool, error) {
	switch op {
	case OpBit:
		v, err := p.r.ReadBits(bitWidth)
		if err != nil {
			return 0, 0, false, err
		}
		if v == -1 {
			return 0, 0, false, eofErr(0, "", "stream exhausted reading bit field")
		}
		return FieldBit, int64(v), false, nil
	case OpBool:
		v, err := p.r.ReadByte()
		if err != nil {
			return 0, 0, false, err
		}
		return FieldBool, 0, v != 0, nil
	case OpUByte:
		v, err := p.r.ReadByte()
		if err != nil {
			return 0, 0, false, err
		}
		return FieldUByte, int64(v), false, nil
	case OpByte:
		v, err := p.r.ReadByte()
		if err != nil {
			return 0, 0, false, err
		}
		return FieldByte, int64(int8(v)), false, nil
	case OpUShort:
		v, err := p.r.ReadUnsignedShort(order)
		if err != nil {
			return 0, 0, false, err
		}
		return FieldUShort, int64(v), false, nil
	case OpShort:
		v, err := p.r.ReadUnsignedShort(order)
		if err != nil {
			return 0, 0, false, err
		}
		return FieldShort, int64(int16(v)), false, nil
	case OpInt:
		v, err := p.r.ReadInt(order)
		if err != nil {
			return 0, 0, false, err
		}
		return FieldInt, int64(v), false, nil
	case OpLong:
		v, err := p.r.ReadLong(order)
		if err != nil {
			return 0, 0, false, err
		}
		return FieldLong, v, false, nil
	default:
		return 0, 0, false, internalErr("unhandled scalar opcode %s", op)
	}
}

func (p *parser) readScalarArray(op Opcode, info NamedFieldInfo, order ByteOrder, bitWidth int, n int) (*Field, error) {
	kind := scalarKindFor(op)
	field := &Field{Name: info.Leaf, Path: info.Path, Kind: kind, Order: order, IsArray: true}

	switch op {
	case OpBit:
		vals, err := p.r.ReadBitsArray(n, bitWidth)
		if err != nil {
			return nil, err
		}
		field.Int64Array = make([]int64, len(vals))
		for i, v := range vals {
			field.Int64Array[i] = int64(v)
		}
	case OpBool:
		bs, err := p.r.ReadByteArray(n)
		if err != nil {
			return nil, err
		}
		field.BoolArray = make([]bool, len(bs))
		for i, b := range bs {
			field.BoolArray[i] = b != 0
		}
	case OpUByte, OpByte:
		bs, err := p.r.ReadByteArray(n)
		if err != nil {
			return nil, err
		}
		field.Int64Array = make([]int64, len(bs))
		for i, b := range bs {
			if op == OpByte {
				field.Int64Array[i] = int64(int8(b))
			} else {
				field.Int64Array[i] = int64(b)
			}
		}
	case OpUShort, OpShort:
		vals, err := p.r.ReadShortArray(n, order)
		if err != nil {
			return nil, err
		}
		field.Int64Array = make([]int64, len(vals))
		for i, v := range vals {
			if op == OpShort {
				field.Int64Array[i] = int64(v)
			} else {
				field.Int64Array[i] = int64(uint16(v))
			}
		}
	case OpInt:
		vals, err := p.r.ReadIntArray(n, order)
		if err != nil {
			return nil, err
		}
		field.Int64Array = make([]int64, len(vals))
		for i, v := range vals {
			field.Int64Array[i] = int64(v)
		}
	case OpLong:
		vals, err := p.r.ReadLongArray(n, order)
		if err != nil {
			return nil, err
		}
		field.Int64Array = vals
	default:
		return nil, internalErr("unhandled scalar array opcode %s", op)
	}
	return field, nil
}

func scalarKindFor(op Opcode) FieldKind {
	switch op {
	case OpBit:
		return FieldBit
	case OpBool:
		return FieldBool
	case OpUByte:
		return FieldUByte
	case OpByte:
		return FieldByte
	case OpUShort:
		return FieldUShort
	case OpShort:
		return FieldShort
	case OpInt:
		return FieldInt
	case OpLong:
		return FieldLong
	default:
		return FieldInt
	}
}

// runStructStart executes a STRUCT_START instruction: a single nested
// struct, a fixed-size struct array, or a whole-stream struct array.
func (p *parser) runStructStart(code []byte, pos *int, h instrHeader, cur *cursor, skip bool) (*Field, error) {
	var info NamedFieldInfo
	if h.named {
		info = p.claimName(cur)
	}

	var literalCount int
	wholeStream := false
	if h.array {
		if h.wide && h.extFlag&ExtFlagWholeStream != 0 {
			wholeStream = true
		} else {
			n, err := p.arraySize(code, pos, h, cur, skip)
			if err != nil {
				return nil, err
			}
			literalCount = n
		}
	}

	structEndRaw, err := readInt5(code, pos)
	if err != nil {
		return nil, err
	}
	structEnd := int(structEndRaw)
	bodyStart := *pos

	savedNamedStart := cur.namedFieldPos
	savedExprStart := cur.exprPos

	if !h.array {
		cur.bytecodePos = bodyStart
		children, err := p.parseStruct(cur, structEnd, skip)
		if err != nil {
			return nil, err
		}
		if err := p.consumeStructEnd(code, cur); err != nil {
			return nil, err
		}
		*pos = cur.bytecodePos
		if skip {
			return nil, nil
		}
		return &Field{Name: info.Leaf, Path: info.Path, Kind: FieldStruct, Children: children}, nil
	}

	if skip {
		cur.namedFieldPos = savedNamedStart
		cur.exprPos = savedExprStart
		cur.bytecodePos = bodyStart
		if _, err := p.parseStruct(cur, structEnd, true); err != nil {
			return nil, err
		}
		if err := p.consumeStructEnd(code, cur); err != nil {
			return nil, err
		}
		*pos = cur.bytecodePos
		return nil, nil
	}

	var instances [][]*Field
	for {
		more := false
		if wholeStream {
			more = p.r.HasAvailableData()
		} else {
			more = len(instances) < literalCount
		}
		if !more {
			break
		}
		cur.namedFieldPos = savedNamedStart
		cur.exprPos = savedExprStart
		cur.bytecodePos = bodyStart
		children, err := p.parseStruct(cur, structEnd, false)
		if err != nil {
			return nil, err
		}
		instances = append(instances, children)
	}

	if len(instances) == 0 {
		cur.namedFieldPos = savedNamedStart
		cur.exprPos = savedExprStart
		cur.bytecodePos = bodyStart
		if _, err := p.parseStruct(cur, structEnd, true); err != nil {
			return nil, err
		}
	}

	if err := p.consumeStructEnd(code, cur); err != nil {
		return nil, err
	}
	*pos = cur.bytecodePos

	return &Field{Name: info.Leaf, Path: info.Path, Kind: FieldStruct, IsArray: true, StructArray: instances}, nil
}
