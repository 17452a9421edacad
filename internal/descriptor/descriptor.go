/*
 * classvm - a class-file virtual machine
 * Derived from the Jacobin project. Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

// Package descriptor parses field and method descriptor strings into
// structured forms and serializes them back, byte for byte. Grounded
// on original_source/class-files/src/descriptors.rs: single-character
// dispatch with explicit recursion on '['.
package descriptor

import (
	"strings"

	"github.com/jacobin-classvm/classvm/internal/vmerr"
)

// FieldKind distinguishes the variants of FieldType.
type FieldKind int

const (
	Byte FieldKind = iota
	Char
	Double
	Float
	Int
	Long
	ObjReference
	Short
	Boolean
	ArrReference
)

// FieldType is a parsed field descriptor: a primitive kind, an object
// reference naming a class, or an array of another FieldType.
type FieldType struct {
	Kind  FieldKind
	Class string     // set when Kind == ObjReference
	Elem  *FieldType // set when Kind == ArrReference
}

// String serializes a FieldType back to its wire form.
func (f FieldType) String() string {
	switch f.Kind {
	case Byte:
		return "B"
	case Char:
		return "C"
	case Double:
		return "D"
	case Float:
		return "F"
	case Int:
		return "I"
	case Long:
		return "J"
	case Short:
		return "S"
	case Boolean:
		return "Z"
	case ObjReference:
		return "L" + f.Class + ";"
	case ArrReference:
		return "[" + f.Elem.String()
	default:
		return "?"
	}
}

// ReturnDescriptor is either Void or a FieldType.
type ReturnDescriptor struct {
	Void  bool
	Field FieldType
}

func (r ReturnDescriptor) String() string {
	if r.Void {
		return "V"
	}
	return r.Field.String()
}

// MethodDescriptor is a parsed method descriptor.
type MethodDescriptor struct {
	Params []FieldType
	Return ReturnDescriptor
}

// String is the exact inverse of ParseMethod for a well-formed descriptor.
func (m MethodDescriptor) String() string {
	var sb strings.Builder
	sb.WriteByte('(')
	for _, p := range m.Params {
		sb.WriteString(p.String())
	}
	sb.WriteByte(')')
	sb.WriteString(m.Return.String())
	return sb.String()
}

// fieldTypeFromRunes parses one FieldType starting at runes[*pos],
// advancing pos past what it consumed.
func fieldTypeFromRunes(id rune, runes []rune, pos *int) (FieldType, error) {
	switch id {
	case 'B':
		return FieldType{Kind: Byte}, nil
	case 'C':
		return FieldType{Kind: Char}, nil
	case 'D':
		return FieldType{Kind: Double}, nil
	case 'F':
		return FieldType{Kind: Float}, nil
	case 'I':
		return FieldType{Kind: Int}, nil
	case 'J':
		return FieldType{Kind: Long}, nil
	case 'S':
		return FieldType{Kind: Short}, nil
	case 'Z':
		return FieldType{Kind: Boolean}, nil
	case 'L':
		var sb strings.Builder
		for {
			if *pos >= len(runes) {
				return FieldType{}, vmerr.Typef("invalid descriptor: unterminated L<ClassName>;")
			}
			c := runes[*pos]
			*pos++
			if c == ';' {
				break
			}
			sb.WriteRune(c)
		}
		return FieldType{Kind: ObjReference, Class: sb.String()}, nil
	case '[':
		if *pos >= len(runes) {
			return FieldType{}, vmerr.Typef("invalid descriptor: '[' with no element type")
		}
		next := runes[*pos]
		*pos++
		elem, err := fieldTypeFromRunes(next, runes, pos)
		if err != nil {
			return FieldType{}, err
		}
		return FieldType{Kind: ArrReference, Elem: &elem}, nil
	default:
		return FieldType{}, vmerr.Typef("invalid descriptor: unknown type tag %q", id)
	}
}

// ParseField parses a single field descriptor, e.g. "I" or "[[Ljava/lang/Object;".
func ParseField(s string) (FieldType, error) {
	runes := []rune(s)
	if len(runes) == 0 {
		return FieldType{}, vmerr.Typef("invalid descriptor: empty field descriptor")
	}
	pos := 1
	ft, err := fieldTypeFromRunes(runes[0], runes, &pos)
	if err != nil {
		return FieldType{}, err
	}
	if pos != len(runes) {
		return FieldType{}, vmerr.Typef("invalid descriptor: trailing characters in %q", s)
	}
	return ft, nil
}

// ParseMethod parses a method descriptor, e.g. "(IDLjava/lang/Thread;)Ljava/lang/Object;".
func ParseMethod(s string) (MethodDescriptor, error) {
	runes := []rune(s)
	if len(runes) == 0 || runes[0] != '(' {
		return MethodDescriptor{}, vmerr.Typef("invalid method descriptor: expected '(' in %q", s)
	}
	pos := 1
	var params []FieldType
	for {
		if pos >= len(runes) {
			return MethodDescriptor{}, vmerr.Typef("invalid method descriptor: unterminated parameter list in %q", s)
		}
		id := runes[pos]
		pos++
		if id == ')' {
			break
		}
		ft, err := fieldTypeFromRunes(id, runes, &pos)
		if err != nil {
			return MethodDescriptor{}, err
		}
		params = append(params, ft)
	}
	if pos >= len(runes) {
		return MethodDescriptor{}, vmerr.Typef("invalid method descriptor: missing return type in %q", s)
	}
	retID := runes[pos]
	pos++
	var ret ReturnDescriptor
	if retID == 'V' {
		ret = ReturnDescriptor{Void: true}
	} else {
		ft, err := fieldTypeFromRunes(retID, runes, &pos)
		if err != nil {
			return MethodDescriptor{}, err
		}
		ret = ReturnDescriptor{Field: ft}
	}
	if pos != len(runes) {
		return MethodDescriptor{}, vmerr.Typef("invalid method descriptor: trailing characters in %q", s)
	}
	return MethodDescriptor{Params: params, Return: ret}, nil
}
