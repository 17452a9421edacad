/*
 * classvm - a class-file virtual machine
 * Derived from the Jacobin project. Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

// Package value implements the interpreter's runtime value model:
// DataType, a tagged union over every value the operand stack and
// locals array can hold, and the computation-type widening rules
// spec.md §4.6 requires on push. Grounded on
// original_source/jvm/src/types.rs's Value enum, translated from a
// Rust enum to a Go tagged struct per the system's struct-based-union
// convention (no direct corpus analog for runtime value enums; the
// teacher's object package uses a similar discriminated-struct shape
// for object fields).
package value

import "fmt"

// Kind identifies which variant of DataType is populated.
type Kind int

const (
	Boolean Kind = iota
	Byte
	Char
	Short
	Int
	Float
	Long
	Double
	ClassReference
	ArrayReference
	InterfaceReference
	ReturnAddress
	Null
	Empty
)

func (k Kind) String() string {
	switch k {
	case Boolean:
		return "Boolean"
	case Byte:
		return "Byte"
	case Char:
		return "Char"
	case Short:
		return "Short"
	case Int:
		return "Int"
	case Float:
		return "Float"
	case Long:
		return "Long"
	case Double:
		return "Double"
	case ClassReference:
		return "ClassReference"
	case ArrayReference:
		return "ArrayReference"
	case InterfaceReference:
		return "InterfaceReference"
	case ReturnAddress:
		return "ReturnAddress"
	case Null:
		return "Null"
	case Empty:
		return "Empty"
	default:
		return "?"
	}
}

// DataType is a single runtime value: operand stack slot, local
// variable slot, or heap element. Exactly one of the typed fields is
// meaningful, selected by Kind.
type DataType struct {
	Kind Kind

	I int64   // Boolean/Byte/Char/Short/Int/Long share this backing store
	F float64 // Float/Double share this backing store (widened, narrowed on read)

	Ref int // slot index into the heap, for ClassReference/ArrayReference/InterfaceReference

	Addr int // bytecode offset, for ReturnAddress
}

func (d DataType) String() string {
	switch d.Kind {
	case Boolean:
		return fmt.Sprintf("Boolean(%v)", d.I != 0)
	case Byte:
		return fmt.Sprintf("Byte(%d)", int8(d.I))
	case Char:
		return fmt.Sprintf("Char(%d)", uint16(d.I))
	case Short:
		return fmt.Sprintf("Short(%d)", int16(d.I))
	case Int:
		return fmt.Sprintf("Int(%d)", int32(d.I))
	case Long:
		return fmt.Sprintf("Long(%d)", d.I)
	case Float:
		return fmt.Sprintf("Float(%v)", float32(d.F))
	case Double:
		return fmt.Sprintf("Double(%v)", d.F)
	case ClassReference:
		return fmt.Sprintf("ClassReference(#%d)", d.Ref)
	case ArrayReference:
		return fmt.Sprintf("ArrayReference(#%d)", d.Ref)
	case InterfaceReference:
		return fmt.Sprintf("InterfaceReference(#%d)", d.Ref)
	case ReturnAddress:
		return fmt.Sprintf("ReturnAddress(%d)", d.Addr)
	case Null:
		return "Null"
	default:
		return "Empty"
	}
}

func NewBoolean(b bool) DataType {
	var i int64
	if b {
		i = 1
	}
	return DataType{Kind: Boolean, I: i}
}
func NewByte(v int8) DataType    { return DataType{Kind: Byte, I: int64(v)} }
func NewChar(v uint16) DataType  { return DataType{Kind: Char, I: int64(v)} }
func NewShort(v int16) DataType  { return DataType{Kind: Short, I: int64(v)} }
func NewInt(v int32) DataType    { return DataType{Kind: Int, I: int64(v)} }
func NewLong(v int64) DataType   { return DataType{Kind: Long, I: v} }
func NewFloat(v float32) DataType { return DataType{Kind: Float, F: float64(v)} }
func NewDouble(v float64) DataType { return DataType{Kind: Double, F: v} }
func NewClassReference(slot int) DataType     { return DataType{Kind: ClassReference, Ref: slot} }
func NewArrayReference(slot int) DataType     { return DataType{Kind: ArrayReference, Ref: slot} }
func NewInterfaceReference(slot int) DataType { return DataType{Kind: InterfaceReference, Ref: slot} }
func NewReturnAddress(pc int) DataType        { return DataType{Kind: ReturnAddress, Addr: pc} }
func NewNull() DataType  { return DataType{Kind: Null} }
func NewEmpty() DataType { return DataType{Kind: Empty} }

// Int32 returns the value as an int32, valid for Int.
func (d DataType) Int32() int32 { return int32(d.I) }

// Int64 returns the value as an int64, valid for Long.
func (d DataType) Int64() int64 { return d.I }

// Float32 returns the value as a float32, valid for Float.
func (d DataType) Float32() float32 { return float32(d.F) }

// Float64 returns the value as a float64, valid for Double.
func (d DataType) Float64() float64 { return d.F }

// Bool returns the value as a bool, valid for Boolean.
func (d DataType) Bool() bool { return d.I != 0 }

// IsCategory2 reports whether this value occupies two stack/local
// slots, per spec.md §4.6 (Long and Double only).
func (d DataType) IsCategory2() bool {
	return d.Kind == Long || d.Kind == Double
}

// Widen applies the computation-type widening rule: Boolean, Byte,
// Char and Short are all promoted to Int the moment they are pushed
// to the operand stack or stored as a computation-type value. Every
// other kind passes through unchanged.
func Widen(d DataType) DataType {
	switch d.Kind {
	case Boolean, Byte, Char, Short:
		return DataType{Kind: Int, I: int64(int32(d.I))}
	default:
		return d
	}
}
