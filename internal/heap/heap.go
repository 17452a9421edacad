/*
 * classvm - a class-file virtual machine
 * Derived from the Jacobin project. Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

// Package heap implements the slot-indexed object heap: spec.md §4.5's
// tombstone-reuse allocator over typed arrays and object cells.
// Grounded on original_source/jvm/src/types.rs's Heap/HeapItem and the
// teacher's object/javaByteArray.go for the array-cell shape; the
// tombstone/reuse allocation strategy has no direct corpus analog and
// is translated straight from the Rust original's Vec<Option<T>> scan.
package heap

import (
	"github.com/jacobin-classvm/classvm/internal/value"
	"github.com/jacobin-classvm/classvm/internal/vmerr"
)

// ArrayKind identifies the element type of an Array cell.
type ArrayKind int

const (
	BooleanArray ArrayKind = iota
	CharArray
	FloatArray
	DoubleArray
	ByteArray
	ShortArray
	IntArray
	LongArray
	ReferenceArray
)

// atype values used by the newarray opcode (spec.md §4.7).
const (
	ATypeBoolean = 4
	ATypeChar    = 5
	ATypeFloat   = 6
	ATypeDouble  = 7
	ATypeByte    = 8
	ATypeShort   = 9
	ATypeInt     = 10
	ATypeLong    = 11
)

func (k ArrayKind) String() string {
	switch k {
	case BooleanArray:
		return "boolean"
	case CharArray:
		return "char"
	case FloatArray:
		return "float"
	case DoubleArray:
		return "double"
	case ByteArray:
		return "byte"
	case ShortArray:
		return "short"
	case IntArray:
		return "int"
	case LongArray:
		return "long"
	case ReferenceArray:
		return "reference"
	default:
		return "?"
	}
}

// ArrayKindFromAtype maps a newarray atype byte to an ArrayKind.
func ArrayKindFromAtype(atype uint8) (ArrayKind, error) {
	switch atype {
	case ATypeBoolean:
		return BooleanArray, nil
	case ATypeChar:
		return CharArray, nil
	case ATypeFloat:
		return FloatArray, nil
	case ATypeDouble:
		return DoubleArray, nil
	case ATypeByte:
		return ByteArray, nil
	case ATypeShort:
		return ShortArray, nil
	case ATypeInt:
		return IntArray, nil
	case ATypeLong:
		return LongArray, nil
	default:
		return 0, vmerr.Decodef(nil, "invalid newarray atype %d", atype)
	}
}

// Array is a homogeneous, fixed-length, zero-initialized heap cell.
type Array struct {
	Kind     ArrayKind
	Elements []value.DataType
}

func zeroFor(k ArrayKind) value.DataType {
	switch k {
	case BooleanArray:
		return value.NewBoolean(false)
	case CharArray:
		return value.NewChar(0)
	case FloatArray:
		return value.NewFloat(0)
	case DoubleArray:
		return value.NewDouble(0)
	case ByteArray:
		return value.NewByte(0)
	case ShortArray:
		return value.NewShort(0)
	case IntArray:
		return value.NewInt(0)
	case LongArray:
		return value.NewLong(0)
	default:
		return value.NewNull()
	}
}

// Get reads element i with the coercion rules of §4.5: Boolean/Byte
// arrays store their native narrow kind, everything else is read back
// as-is. Callers performing arithmetic must widen separately.
func (a *Array) Get(i int) (value.DataType, error) {
	if i < 0 || i >= len(a.Elements) {
		return value.DataType{}, vmerr.Resourcef("array index %d out of bounds [0, %d)", i, len(a.Elements))
	}
	return a.Elements[i], nil
}

// Set writes v into element i, applying the truncating coercions
// spec.md §4.5 requires for Boolean/Byte arrays and requiring an exact
// kind match otherwise.
func (a *Array) Set(i int, v value.DataType) error {
	if i < 0 || i >= len(a.Elements) {
		return vmerr.Resourcef("array index %d out of bounds [0, %d)", i, len(a.Elements))
	}
	switch a.Kind {
	case BooleanArray:
		if v.Kind != value.Int && v.Kind != value.Boolean {
			return vmerr.Typef("storing %s into a boolean array", v.Kind)
		}
		a.Elements[i] = value.NewBoolean(v.I&1 != 0)
	case ByteArray:
		if v.Kind != value.Int && v.Kind != value.Byte {
			return vmerr.Typef("storing %s into a byte array", v.Kind)
		}
		a.Elements[i] = value.NewByte(int8(v.I))
	default:
		if v.Kind != elementKind(a.Kind) {
			return vmerr.Typef("storing %s into a %v array", v.Kind, a.Kind)
		}
		a.Elements[i] = v
	}
	return nil
}

func elementKind(k ArrayKind) value.Kind {
	switch k {
	case CharArray:
		return value.Char
	case FloatArray:
		return value.Float
	case DoubleArray:
		return value.Double
	case ShortArray:
		return value.Short
	case IntArray:
		return value.Int
	case LongArray:
		return value.Long
	case ReferenceArray:
		return value.ClassReference
	default:
		return value.Empty
	}
}

// cell is a heap slot: exactly one of Array/Object is meaningful when
// Tag says so; Tombstone slots are reusable by a future allocation.
type cellTag int

const (
	cellArray cellTag = iota
	cellObject
	cellNull
	cellTombstone
)

type cell struct {
	tag   cellTag
	array *Array
	// object fields would live here once object instantiation writes
	// through the heap rather than through the teacher's object package.
}

// Heap is the VM's slot-indexed, tombstone-reusing object store.
type Heap struct {
	cells   []cell
	maxSize int
}

// New constructs an empty heap. maxSize <= 0 means unbounded.
func New(maxSize int) *Heap {
	return &Heap{maxSize: maxSize}
}

// AllocateArray constructs a zero-initialized array of the given kind
// and length, reusing the lowest-indexed tombstone if one exists.
func (h *Heap) AllocateArray(kind ArrayKind, size int) (int, error) {
	if size < 0 {
		return 0, vmerr.Resourcef("negative array size %d", size)
	}
	arr := &Array{Kind: kind, Elements: make([]value.DataType, size)}
	for i := range arr.Elements {
		arr.Elements[i] = zeroFor(kind)
	}

	for i, c := range h.cells {
		if c.tag == cellTombstone {
			h.cells[i] = cell{tag: cellArray, array: arr}
			return i, nil
		}
	}
	if h.maxSize > 0 && len(h.cells) >= h.maxSize {
		return 0, vmerr.Resourcef("heap full: max_size %d reached", h.maxSize)
	}
	h.cells = append(h.cells, cell{tag: cellArray, array: arr})
	return len(h.cells) - 1, nil
}

// Free releases index: the last slot shrinks the backing store,
// otherwise the slot becomes a reusable tombstone.
func (h *Heap) Free(index int) error {
	if !h.IsValidReference(index) {
		return vmerr.Resourcef("free: invalid heap reference %d", index)
	}
	if index == len(h.cells)-1 {
		h.cells = h.cells[:index]
		for len(h.cells) > 0 && h.cells[len(h.cells)-1].tag == cellTombstone {
			h.cells = h.cells[:len(h.cells)-1]
		}
		return nil
	}
	h.cells[index] = cell{tag: cellTombstone}
	return nil
}

// IsValidReference reports whether index names a live (non-tombstone,
// non-empty) cell.
func (h *Heap) IsValidReference(index int) bool {
	if index < 0 || index >= len(h.cells) {
		return false
	}
	tag := h.cells[index].tag
	return tag == cellArray || tag == cellObject
}

// Array returns the array at index.
func (h *Heap) Array(index int) (*Array, error) {
	if index < 0 || index >= len(h.cells) || h.cells[index].tag != cellArray {
		return nil, vmerr.Resourcef("heap index %d is not an array", index)
	}
	return h.cells[index].array, nil
}

// ArrayMut returns the array at index for in-place mutation; in Go
// this is the same pointer as Array, kept distinct for symmetry with
// the spec's read/write split.
func (h *Heap) ArrayMut(index int) (*Array, error) {
	return h.Array(index)
}

// Collect is the GC hook. Contract (spec.md §4.5): reachable means
// referenced from any live frame's locals or operand stack. Left as a
// no-op until a caller supplies root enumeration.
func (h *Heap) Collect() {}
