// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

package schema

import (
	"fmt"
	"strings"
)

// Disassemble renders a CompiledSchema's bytecode as a human-readable
// listing, one line per instruction, with named fields and expression
// table entries annotated inline.
func (cs *CompiledSchema) Disassemble() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "; default order: %s\n", orderName(cs.DefaultOrder))
	if len(cs.CustomTypes) > 0 {
		sb.WriteString("; custom types:\n")
		for i, name := range cs.CustomTypes {
			fmt.Fprintf(&sb, ";   [%d] %s\n", i, name)
		}
	}
	d := &disassembler{schema: cs, sb: &sb}
	d.run(0, len(cs.Bytecode), 0)
	return sb.String()
}

func orderName(o ByteOrder) string {
	if o == LittleEndian {
		return "little"
	}
	return "big"
}

type disassembler struct {
	schema        *CompiledSchema
	sb            *strings.Builder
	namedFieldPos int
	exprPos       int
}

// run disassembles instructions from pos up to endPos, indenting each line
// by depth to show struct nesting.
func (d *disassembler) run(pos, endPos, depth int) {
	code := d.schema.Bytecode
	indent := strings.Repeat("  ", depth)
	for pos < endPos {
		offset := pos
		first := code[pos]
		pos++
		op := Opcode(first & opcodeMask)
		named := first&FlagNamed != 0
		array := first&FlagArray != 0
		order := BigEndian
		if first&FlagLittleEndian != 0 {
			order = LittleEndian
		}
		wide := first&FlagWide != 0
		var extFlag byte
		if wide {
			extFlag = code[pos]
			pos++
		}

		var annotations []string
		if named {
			annotations = append(annotations, fmt.Sprintf("name=%s", d.claimName()))
		}

		if op == OpCustomType {
			typeIdx, n := unpackIntPeek(code, pos)
			pos = n
			name := "?"
			if int(typeIdx) < len(d.schema.CustomTypes) {
				name = d.schema.CustomTypes[typeIdx]
			}
			annotations = append(annotations, fmt.Sprintf("type=%s", name))
		}

		wholeStream := wide && extFlag&ExtFlagWholeStream != 0
		if array {
			switch {
			case wholeStream:
				annotations = append(annotations, "count=*")
			case wide && extFlag&ExtFlagArrayExpr != 0:
				annotations = append(annotations, fmt.Sprintf("count=expr[%d]", d.claimExpr()))
			default:
				v, n := unpackIntPeek(code, pos)
				pos = n
				annotations = append(annotations, fmt.Sprintf("count=%d", v))
			}
		}

		if op == OpStructStart {
			structEnd, n := readInt5Peek(code, pos)
			pos = n
			fmt.Fprintf(d.sb, "%04X  %s%-14s %s\n", offset, indent, op, strings.Join(annotations, " "))
			d.run(pos, int(structEnd), depth+1)
			pos = int(structEnd)
			// consume STRUCT_END at pos
			endOffset := pos
			pos++
			back, n2 := unpackIntPeek(code, pos)
			pos = n2
			fmt.Fprintf(d.sb, "%04X  %s%-14s back=%04X\n", endOffset, indent, OpStructEnd, back)
			continue
		}

		acceptsExtra := op == OpAlign || op == OpBit || op == OpSkip || op == OpVar || op == OpCustomType
		if acceptsExtra {
			if wide && extFlag&ExtFlagExtraAsExpr != 0 {
				annotations = append(annotations, fmt.Sprintf("extra=expr[%d]", d.claimExpr()))
			} else {
				v, n := unpackIntPeek(code, pos)
				pos = n
				annotations = append(annotations, fmt.Sprintf("extra=%d", v))
			}
		}

		orderTag := ""
		if op != OpStructStart && op != OpStructEnd && op != OpAlign && op != OpSkip && op != OpResetCounter {
			orderTag = " order=" + orderName(order)
		}
		fmt.Fprintf(d.sb, "%04X  %s%-14s %s%s\n", offset, indent, op, strings.Join(annotations, " "), orderTag)
	}
}

func (d *disassembler) claimName() string {
	if d.namedFieldPos >= len(d.schema.NamedFields) {
		d.namedFieldPos++
		return "?"
	}
	name := d.schema.NamedFields[d.namedFieldPos].Path
	d.namedFieldPos++
	return name
}

func (d *disassembler) claimExpr() int {
	idx := d.exprPos
	d.exprPos++
	return idx
}

// unpackIntPeek is unpackInt with the *int cursor flattened into a return
// value, for callers that already track position by hand.
func unpackIntPeek(code []byte, pos int) (int32, int) {
	v, err := unpackInt(code, &pos)
	if err != nil {
		return 0, pos
	}
	return v, pos
}

func readInt5Peek(code []byte, pos int) (int32, int) {
	v, err := readInt5(code, &pos)
	if err != nil {
		return 0, pos
	}
	return v, pos
}
