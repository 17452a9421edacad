/*
 * classvm - a class-file virtual machine
 * Derived from the Jacobin project. Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package classfile

import (
	"bytes"

	"github.com/jacobin-classvm/classvm/internal/binreader"
	"github.com/jacobin-classvm/classvm/internal/vmerr"
)

// ExceptionHandler is one entry of a Code attribute's exception table.
type ExceptionHandler struct {
	StartPC   uint16
	EndPC     uint16
	HandlerPC uint16
	CatchType int // 1-origin constant pool index, 0 for catch-all
}

// LineNumberEntry is one row of a LineNumberTable attribute.
type LineNumberEntry struct {
	StartPC    uint16
	LineNumber uint16
}

// LocalVariableEntry is one row of a LocalVariableTable attribute.
type LocalVariableEntry struct {
	StartPC         uint16
	Length          uint16
	NameIndex       int
	DescriptorIndex int
	Index           uint16
}

// LocalVariableTypeEntry is one row of a LocalVariableTypeTable attribute.
type LocalVariableTypeEntry struct {
	StartPC        uint16
	Length         uint16
	NameIndex      int
	SignatureIndex int
	Index          uint16
}

// InnerClassEntry is one row of an InnerClasses attribute.
type InnerClassEntry struct {
	InnerClassInfoIndex   int
	OuterClassInfoIndex   int // 0 if not a member
	InnerNameIndex        int // 0 if anonymous
	InnerAccessFlags      ClassAccessFlags
}

// BootstrapMethod is one row of a BootstrapMethods attribute.
type BootstrapMethod struct {
	MethodRefIndex int
	Arguments      []int
}

// Code is the decoded body of a Code attribute.
type Code struct {
	MaxStack       uint16
	MaxLocals      uint16
	Bytecode       []byte
	ExceptionTable []ExceptionHandler
	Attributes     []ResolvedAttribute
}

// LineNumberTableOf finds the first LineNumberTable nested under this
// Code attribute, if any.
func (c *Code) LineNumberTableOf() []LineNumberEntry {
	for _, a := range c.Attributes {
		if lnt, ok := a.(*LineNumberTable); ok {
			return lnt.Entries
		}
	}
	return nil
}

// ResolvedAttribute is implemented by every decoded attribute variant.
// Unknown attribute names decode to *Other, never an error: spec.md
// §4.4 requires forward compatibility with attributes the loader
// doesn't recognize.
type ResolvedAttribute interface {
	attributeName() string
}

type ConstantValue struct{ Index int }
type Exceptions struct{ ClassIndices []int }
type InnerClasses struct{ Entries []InnerClassEntry }
type EnclosingMethod struct {
	ClassIndex  int
	MethodIndex int // 0 if not enclosed by a method
}
type Synthetic struct{}
type Signature struct{ Index int }
type SourceFile struct{ Index int }
type SourceDebugExtension struct{ Bytes []byte }
type LineNumberTable struct{ Entries []LineNumberEntry }
type LocalVariableTable struct{ Entries []LocalVariableEntry }
type LocalVariableTypeTable struct{ Entries []LocalVariableTypeEntry }
type Deprecated struct{}
type RuntimeVisibleAnnotations struct{ Raw []byte }
type RuntimeInvisibleAnnotations struct{ Raw []byte }
type RuntimeVisibleParameterAnnotations struct{ Raw []byte }
type RuntimeInvisibleParameterAnnotations struct{ Raw []byte }
type AnnotationDefault struct{ Raw []byte }
type BootstrapMethods struct{ Methods []BootstrapMethod }
type Other struct {
	Name string
	Raw  []byte
}

func (*ConstantValue) attributeName() string                        { return "ConstantValue" }
func (*Code) attributeName() string                                 { return "Code" }
func (*Exceptions) attributeName() string                           { return "Exceptions" }
func (*InnerClasses) attributeName() string                         { return "InnerClasses" }
func (*EnclosingMethod) attributeName() string                      { return "EnclosingMethod" }
func (*Synthetic) attributeName() string                            { return "Synthetic" }
func (*Signature) attributeName() string                            { return "Signature" }
func (*SourceFile) attributeName() string                           { return "SourceFile" }
func (*SourceDebugExtension) attributeName() string                 { return "SourceDebugExtension" }
func (*LineNumberTable) attributeName() string                      { return "LineNumberTable" }
func (*LocalVariableTable) attributeName() string                   { return "LocalVariableTable" }
func (*LocalVariableTypeTable) attributeName() string                { return "LocalVariableTypeTable" }
func (*Deprecated) attributeName() string                           { return "Deprecated" }
func (*RuntimeVisibleAnnotations) attributeName() string             { return "RuntimeVisibleAnnotations" }
func (*RuntimeInvisibleAnnotations) attributeName() string           { return "RuntimeInvisibleAnnotations" }
func (*RuntimeVisibleParameterAnnotations) attributeName() string    { return "RuntimeVisibleParameterAnnotations" }
func (*RuntimeInvisibleParameterAnnotations) attributeName() string  { return "RuntimeInvisibleParameterAnnotations" }
func (*AnnotationDefault) attributeName() string                     { return "AnnotationDefault" }
func (*BootstrapMethods) attributeName() string                      { return "BootstrapMethods" }
func (o *Other) attributeName() string                                { return o.Name }

// resolveAttribute decodes a single RawAttribute by dispatching on its
// name, looked up in cp. Unknown names fall through to *Other.
func resolveAttribute(raw RawAttribute, cp *ConstantPool) (ResolvedAttribute, error) {
	name, err := cp.Utf8At(raw.NameIndex)
	if err != nil {
		return nil, err
	}
	r := binreader.New(bytes.NewReader(raw.Info))

	switch name {
	case "ConstantValue":
		idx, err := r.U16()
		if err != nil {
			return nil, vmerr.Decodef(err, "parsing ConstantValue")
		}
		return &ConstantValue{Index: int(idx)}, nil

	case "Code":
		return resolveCode(r, cp)

	case "Exceptions":
		count, err := r.U16()
		if err != nil {
			return nil, vmerr.Decodef(err, "parsing Exceptions count")
		}
		indices := make([]int, 0, count)
		for i := uint16(0); i < count; i++ {
			idx, err := r.U16()
			if err != nil {
				return nil, vmerr.Decodef(err, "parsing Exceptions entry %d", i)
			}
			indices = append(indices, int(idx))
		}
		return &Exceptions{ClassIndices: indices}, nil

	case "InnerClasses":
		count, err := r.U16()
		if err != nil {
			return nil, vmerr.Decodef(err, "parsing InnerClasses count")
		}
		entries := make([]InnerClassEntry, 0, count)
		for i := uint16(0); i < count; i++ {
			inner, err := r.U16()
			if err != nil {
				return nil, vmerr.Decodef(err, "parsing InnerClasses entry %d", i)
			}
			outer, err := r.U16()
			if err != nil {
				return nil, vmerr.Decodef(err, "parsing InnerClasses entry %d", i)
			}
			innerName, err := r.U16()
			if err != nil {
				return nil, vmerr.Decodef(err, "parsing InnerClasses entry %d", i)
			}
			flags, err := r.U16()
			if err != nil {
				return nil, vmerr.Decodef(err, "parsing InnerClasses entry %d", i)
			}
			entries = append(entries, InnerClassEntry{
				InnerClassInfoIndex: int(inner),
				OuterClassInfoIndex: int(outer),
				InnerNameIndex:      int(innerName),
				InnerAccessFlags:    ClassAccessFlags(flags),
			})
		}
		return &InnerClasses{Entries: entries}, nil

	case "EnclosingMethod":
		ci, err := r.U16()
		if err != nil {
			return nil, vmerr.Decodef(err, "parsing EnclosingMethod")
		}
		mi, err := r.U16()
		if err != nil {
			return nil, vmerr.Decodef(err, "parsing EnclosingMethod")
		}
		return &EnclosingMethod{ClassIndex: int(ci), MethodIndex: int(mi)}, nil

	case "Synthetic":
		return &Synthetic{}, nil

	case "Signature":
		idx, err := r.U16()
		if err != nil {
			return nil, vmerr.Decodef(err, "parsing Signature")
		}
		return &Signature{Index: int(idx)}, nil

	case "SourceFile":
		idx, err := r.U16()
		if err != nil {
			return nil, vmerr.Decodef(err, "parsing SourceFile")
		}
		return &SourceFile{Index: int(idx)}, nil

	case "SourceDebugExtension":
		return &SourceDebugExtension{Bytes: raw.Info}, nil

	case "LineNumberTable":
		count, err := r.U16()
		if err != nil {
			return nil, vmerr.Decodef(err, "parsing LineNumberTable count")
		}
		entries := make([]LineNumberEntry, 0, count)
		for i := uint16(0); i < count; i++ {
			startPC, err := r.U16()
			if err != nil {
				return nil, vmerr.Decodef(err, "parsing LineNumberTable entry %d", i)
			}
			line, err := r.U16()
			if err != nil {
				return nil, vmerr.Decodef(err, "parsing LineNumberTable entry %d", i)
			}
			entries = append(entries, LineNumberEntry{StartPC: startPC, LineNumber: line})
		}
		return &LineNumberTable{Entries: entries}, nil

	case "LocalVariableTable":
		count, err := r.U16()
		if err != nil {
			return nil, vmerr.Decodef(err, "parsing LocalVariableTable count")
		}
		entries := make([]LocalVariableEntry, 0, count)
		for i := uint16(0); i < count; i++ {
			e, err := readLocalVariableEntry(r)
			if err != nil {
				return nil, vmerr.Decodef(err, "parsing LocalVariableTable entry %d", i)
			}
			entries = append(entries, e)
		}
		return &LocalVariableTable{Entries: entries}, nil

	case "LocalVariableTypeTable":
		count, err := r.U16()
		if err != nil {
			return nil, vmerr.Decodef(err, "parsing LocalVariableTypeTable count")
		}
		entries := make([]LocalVariableTypeEntry, 0, count)
		for i := uint16(0); i < count; i++ {
			startPC, err := r.U16()
			if err != nil {
				return nil, vmerr.Decodef(err, "parsing LocalVariableTypeTable entry %d", i)
			}
			length, err := r.U16()
			if err != nil {
				return nil, vmerr.Decodef(err, "parsing LocalVariableTypeTable entry %d", i)
			}
			nameIdx, err := r.U16()
			if err != nil {
				return nil, vmerr.Decodef(err, "parsing LocalVariableTypeTable entry %d", i)
			}
			sigIdx, err := r.U16()
			if err != nil {
				return nil, vmerr.Decodef(err, "parsing LocalVariableTypeTable entry %d", i)
			}
			index, err := r.U16()
			if err != nil {
				return nil, vmerr.Decodef(err, "parsing LocalVariableTypeTable entry %d", i)
			}
			entries = append(entries, LocalVariableTypeEntry{
				StartPC: startPC, Length: length,
				NameIndex: int(nameIdx), SignatureIndex: int(sigIdx), Index: index,
			})
		}
		return &LocalVariableTypeTable{Entries: entries}, nil

	case "Deprecated":
		return &Deprecated{}, nil

	case "RuntimeVisibleAnnotations":
		return &RuntimeVisibleAnnotations{Raw: raw.Info}, nil
	case "RuntimeInvisibleAnnotations":
		return &RuntimeInvisibleAnnotations{Raw: raw.Info}, nil
	case "RuntimeVisibleParameterAnnotations":
		return &RuntimeVisibleParameterAnnotations{Raw: raw.Info}, nil
	case "RuntimeInvisibleParameterAnnotations":
		return &RuntimeInvisibleParameterAnnotations{Raw: raw.Info}, nil
	case "AnnotationDefault":
		return &AnnotationDefault{Raw: raw.Info}, nil

	case "BootstrapMethods":
		count, err := r.U16()
		if err != nil {
			return nil, vmerr.Decodef(err, "parsing BootstrapMethods count")
		}
		methods := make([]BootstrapMethod, 0, count)
		for i := uint16(0); i < count; i++ {
			refIdx, err := r.U16()
			if err != nil {
				return nil, vmerr.Decodef(err, "parsing BootstrapMethods entry %d", i)
			}
			argCount, err := r.U16()
			if err != nil {
				return nil, vmerr.Decodef(err, "parsing BootstrapMethods entry %d", i)
			}
			args := make([]int, 0, argCount)
			for j := uint16(0); j < argCount; j++ {
				a, err := r.U16()
				if err != nil {
					return nil, vmerr.Decodef(err, "parsing BootstrapMethods entry %d arg %d", i, j)
				}
				args = append(args, int(a))
			}
			methods = append(methods, BootstrapMethod{MethodRefIndex: int(refIdx), Arguments: args})
		}
		return &BootstrapMethods{Methods: methods}, nil

	default:
		return &Other{Name: name, Raw: raw.Info}, nil
	}
}

func readLocalVariableEntry(r *binreader.Reader) (LocalVariableEntry, error) {
	startPC, err := r.U16()
	if err != nil {
		return LocalVariableEntry{}, err
	}
	length, err := r.U16()
	if err != nil {
		return LocalVariableEntry{}, err
	}
	nameIdx, err := r.U16()
	if err != nil {
		return LocalVariableEntry{}, err
	}
	descIdx, err := r.U16()
	if err != nil {
		return LocalVariableEntry{}, err
	}
	index, err := r.U16()
	if err != nil {
		return LocalVariableEntry{}, err
	}
	return LocalVariableEntry{
		StartPC: startPC, Length: length,
		NameIndex: int(nameIdx), DescriptorIndex: int(descIdx), Index: index,
	}, nil
}

func resolveCode(r *binreader.Reader, cp *ConstantPool) (*Code, error) {
	maxStack, err := r.U16()
	if err != nil {
		return nil, vmerr.Decodef(err, "parsing Code.max_stack")
	}
	maxLocals, err := r.U16()
	if err != nil {
		return nil, vmerr.Decodef(err, "parsing Code.max_locals")
	}
	codeLength, err := r.U32()
	if err != nil {
		return nil, vmerr.Decodef(err, "parsing Code.code_length")
	}
	bytecode, err := r.Bytes(int(codeLength))
	if err != nil {
		return nil, vmerr.Decodef(err, "parsing Code.code")
	}

	excCount, err := r.U16()
	if err != nil {
		return nil, vmerr.Decodef(err, "parsing Code.exception_table_length")
	}
	excTable := make([]ExceptionHandler, 0, excCount)
	for i := uint16(0); i < excCount; i++ {
		startPC, err := r.U16()
		if err != nil {
			return nil, vmerr.Decodef(err, "parsing Code exception entry %d", i)
		}
		endPC, err := r.U16()
		if err != nil {
			return nil, vmerr.Decodef(err, "parsing Code exception entry %d", i)
		}
		handlerPC, err := r.U16()
		if err != nil {
			return nil, vmerr.Decodef(err, "parsing Code exception entry %d", i)
		}
		catchType, err := r.U16()
		if err != nil {
			return nil, vmerr.Decodef(err, "parsing Code exception entry %d", i)
		}
		excTable = append(excTable, ExceptionHandler{
			StartPC: startPC, EndPC: endPC, HandlerPC: handlerPC, CatchType: int(catchType),
		})
	}

	rawAttrs, err := decodeAttributes(r)
	if err != nil {
		return nil, err
	}
	attrs, err := resolveAttributeList(rawAttrs, cp)
	if err != nil {
		return nil, err
	}

	return &Code{
		MaxStack:       maxStack,
		MaxLocals:      maxLocals,
		Bytecode:       bytecode,
		ExceptionTable: excTable,
		Attributes:     attrs,
	}, nil
}

// ResolveAttributes decodes every RawAttribute in raws against cp,
// lazily expanding the opaque attribute bytes held by RawClass/RawField/RawMethod.
func ResolveAttributes(raws []RawAttribute, cp *ConstantPool) ([]ResolvedAttribute, error) {
	return resolveAttributeList(raws, cp)
}

func resolveAttributeList(raws []RawAttribute, cp *ConstantPool) ([]ResolvedAttribute, error) {
	out := make([]ResolvedAttribute, 0, len(raws))
	for _, raw := range raws {
		a, err := resolveAttribute(raw, cp)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}
