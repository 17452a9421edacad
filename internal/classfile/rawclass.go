/*
 * classvm - a class-file virtual machine
 * Derived from the Jacobin project. Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

// Package classfile decodes the binary class-file container described
// in spec.md §3/§4.3: a bit-exact big-endian parser for a versioned
// container with a 1-indexed constant pool, and the lazy ResolvedView
// projection over its attributes (resolved.go). Grounded on
// original_source/class-files/src/lib.rs (ClassFile::read_from) and
// types/raw.rs (RawConstant::read_from), cross-checked against the
// teacher's classloader.go field layout.
package classfile

import (
	"io"

	"github.com/jacobin-classvm/classvm/internal/binreader"
	"github.com/jacobin-classvm/classvm/internal/vmerr"
)

const magic = 0xCAFEBABE

// ClassAccessFlags is the bit-set over {public, final, super,
// interface, abstract, synthetic, annotation, enum, module}. Unknown
// bits are preserved (from_bits_retain semantics).
type ClassAccessFlags uint16

const (
	AccPublic     ClassAccessFlags = 0x0001
	AccFinal      ClassAccessFlags = 0x0010
	AccSuper      ClassAccessFlags = 0x0020
	AccInterface  ClassAccessFlags = 0x0200
	AccAbstract   ClassAccessFlags = 0x0400
	AccSynthetic  ClassAccessFlags = 0x1000
	AccAnnotation ClassAccessFlags = 0x2000
	AccEnum       ClassAccessFlags = 0x4000
	AccModule     ClassAccessFlags = 0x8000
)

func (f ClassAccessFlags) Has(bit ClassAccessFlags) bool { return f&bit != 0 }

// FieldAccessFlags is the known mask for member field access flags.
// Unlike class flags, unknown bits in a field's access_flags are
// rejected (spec.md §4.3 step 7).
type FieldAccessFlags uint16

const (
	FieldPublic    FieldAccessFlags = 0x0001
	FieldPrivate   FieldAccessFlags = 0x0002
	FieldProtected FieldAccessFlags = 0x0004
	FieldStatic    FieldAccessFlags = 0x0008
	FieldFinal     FieldAccessFlags = 0x0010
	FieldVolatile  FieldAccessFlags = 0x0040
	FieldTransient FieldAccessFlags = 0x0080
	FieldSynthetic FieldAccessFlags = 0x1000
	FieldEnum      FieldAccessFlags = 0x4000

	fieldAccessMask = FieldPublic | FieldPrivate | FieldProtected | FieldStatic |
		FieldFinal | FieldVolatile | FieldTransient | FieldSynthetic | FieldEnum
)

func (f FieldAccessFlags) Has(bit FieldAccessFlags) bool { return f&bit != 0 }
func (f FieldAccessFlags) IsStatic() bool                { return f.Has(FieldStatic) }

// MethodAccessFlags is the known mask for member method access flags.
type MethodAccessFlags uint16

const (
	MethodPublic       MethodAccessFlags = 0x0001
	MethodPrivate      MethodAccessFlags = 0x0002
	MethodProtected    MethodAccessFlags = 0x0004
	MethodStatic       MethodAccessFlags = 0x0008
	MethodFinal        MethodAccessFlags = 0x0010
	MethodSynchronized MethodAccessFlags = 0x0020
	MethodBridge       MethodAccessFlags = 0x0040
	MethodVarargs      MethodAccessFlags = 0x0080
	MethodNative       MethodAccessFlags = 0x0100
	MethodAbstract     MethodAccessFlags = 0x0400
	MethodStrict       MethodAccessFlags = 0x0800
	MethodSynthetic    MethodAccessFlags = 0x1000

	methodAccessMask = MethodPublic | MethodPrivate | MethodProtected | MethodStatic |
		MethodFinal | MethodSynchronized | MethodBridge | MethodVarargs |
		MethodNative | MethodAbstract | MethodStrict | MethodSynthetic
)

func (f MethodAccessFlags) Has(bit MethodAccessFlags) bool { return f&bit != 0 }
func (f MethodAccessFlags) IsStatic() bool                 { return f.Has(MethodStatic) }
func (f MethodAccessFlags) IsNative() bool                 { return f.Has(MethodNative) }
func (f MethodAccessFlags) IsPublic() bool                 { return f.Has(MethodPublic) }

// RawAttribute is an opaque (name_index, info bytes) pair, decoded
// lazily by ResolvedAttribute (spec.md §4.4's "attribute decoding laziness").
type RawAttribute struct {
	NameIndex int
	Info      []byte
}

// RawField is a field_info record, access-flag validated but otherwise raw.
type RawField struct {
	AccessFlags     FieldAccessFlags
	NameIndex       int
	DescriptorIndex int
	Attributes      []RawAttribute
}

// RawMethod is a method_info record, access-flag validated but otherwise raw.
type RawMethod struct {
	AccessFlags     MethodAccessFlags
	NameIndex       int
	DescriptorIndex int
	Attributes      []RawAttribute
}

// RawClass is a structurally complete but unresolved decoding of a
// class file: the constant pool is fully decoded, but attribute bodies
// remain opaque byte spans until ResolvedView decodes them on demand.
type RawClass struct {
	MajorVersion uint16
	MinorVersion uint16
	ConstantPool ConstantPool
	AccessFlags  ClassAccessFlags
	ThisClassIdx int // 1-origin index into ConstantPool
	SuperClassIdx int // 1-origin index into ConstantPool, 0 for java/lang/Object
	Interfaces   []int
	Fields       []RawField
	Methods      []RawMethod
	Attributes   []RawAttribute
}

// ThisClassName resolves ThisClassIdx to its fully-qualified Utf8 name.
func (c *RawClass) ThisClassName() (string, error) {
	return c.ConstantPool.ClassNameAt(c.ThisClassIdx)
}

// SuperClassName resolves SuperClassIdx, or "" for the class whose
// super_class is 0 (only java/lang/Object). Implemented consistently
// with ThisClassName -- see SPEC_FULL.md §7 item 1 for the Open
// Question this resolves.
func (c *RawClass) SuperClassName() (string, error) {
	if c.SuperClassIdx == 0 {
		return "", nil
	}
	return c.ConstantPool.ClassNameAt(c.SuperClassIdx)
}

// Decode parses a class file per spec.md §4.3's ten-step algorithm.
func Decode(r io.Reader) (*RawClass, error) {
	br := binreader.New(r)

	m, err := br.U32()
	if err != nil {
		return nil, vmerr.Decodef(err, "parsing magic")
	}
	if m != magic {
		return nil, vmerr.Decodef(nil, "invalid magic value: 0x%X", m)
	}

	minor, err := br.U16()
	if err != nil {
		return nil, vmerr.Decodef(err, "parsing minor version")
	}
	major, err := br.U16()
	if err != nil {
		return nil, vmerr.Decodef(err, "parsing major version")
	}

	cp, err := decodeConstantPool(br)
	if err != nil {
		return nil, err
	}

	accessRaw, err := br.U16()
	if err != nil {
		return nil, vmerr.Decodef(err, "parsing access_flags")
	}

	thisClass, err := br.U16()
	if err != nil {
		return nil, vmerr.Decodef(err, "parsing this_class")
	}
	superClass, err := br.U16()
	if err != nil {
		return nil, vmerr.Decodef(err, "parsing super_class")
	}

	interfaces, err := decodeInterfaces(br)
	if err != nil {
		return nil, err
	}

	fields, err := decodeFields(br)
	if err != nil {
		return nil, err
	}

	methods, err := decodeMethods(br)
	if err != nil {
		return nil, err
	}

	attrs, err := decodeAttributes(br)
	if err != nil {
		return nil, err
	}

	if n, err := br.Remaining(); err != nil {
		return nil, vmerr.Decodef(err, "checking for trailing bytes")
	} else if n != 0 {
		return nil, vmerr.Decodef(nil, "%d bytes remaining after class body", n)
	}

	rc := &RawClass{
		MajorVersion:  major,
		MinorVersion:  minor,
		ConstantPool:  *cp,
		AccessFlags:   ClassAccessFlags(accessRaw),
		ThisClassIdx:  int(thisClass),
		SuperClassIdx: int(superClass),
		Interfaces:    interfaces,
		Fields:        fields,
		Methods:       methods,
		Attributes:    attrs,
	}
	// this_class and super_class must resolve to Class entries naming a
	// Utf8; an index 0 or an Unused slot fails here, at decode time.
	if _, err := rc.ThisClassName(); err != nil {
		return nil, err
	}
	if _, err := rc.SuperClassName(); err != nil {
		return nil, err
	}
	return rc, nil
}

func decodeConstantPool(r *binreader.Reader) (*ConstantPool, error) {
	count, err := r.U16()
	if err != nil {
		return nil, vmerr.Decodef(err, "parsing constant_pool_count")
	}
	cp := &ConstantPool{Entries: make([]CPEntry, 1, count)} // slot 0 is the Unused sentinel

	i := uint16(1)
	for i < count {
		entry, skipNext, err := readConstant(r)
		if err != nil {
			return nil, vmerr.Decodef(err, "parsing constant pool entry %d", i)
		}
		cp.Entries = append(cp.Entries, entry)
		if skipNext {
			cp.Entries = append(cp.Entries, CPEntry{Tag: TagUnused})
			i++
		}
		i++
	}
	return cp, nil
}

func decodeInterfaces(r *binreader.Reader) ([]int, error) {
	count, err := r.U16()
	if err != nil {
		return nil, vmerr.Decodef(err, "parsing interfaces count")
	}
	out := make([]int, 0, count)
	for i := uint16(0); i < count; i++ {
		idx, err := r.U16()
		if err != nil {
			return nil, vmerr.Decodef(err, "parsing interface %d", i)
		}
		out = append(out, int(idx))
	}
	return out, nil
}

func decodeRawAttribute(r *binreader.Reader) (RawAttribute, error) {
	nameIdx, err := r.U16()
	if err != nil {
		return RawAttribute{}, vmerr.Decodef(err, "parsing attribute name_index")
	}
	length, err := r.U32()
	if err != nil {
		return RawAttribute{}, vmerr.Decodef(err, "parsing attribute length")
	}
	info, err := r.Bytes(int(length))
	if err != nil {
		return RawAttribute{}, vmerr.Decodef(err, "parsing attribute body")
	}
	return RawAttribute{NameIndex: int(nameIdx), Info: info}, nil
}

func decodeAttributes(r *binreader.Reader) ([]RawAttribute, error) {
	count, err := r.U16()
	if err != nil {
		return nil, vmerr.Decodef(err, "parsing attribute count")
	}
	out := make([]RawAttribute, 0, count)
	for i := uint16(0); i < count; i++ {
		a, err := decodeRawAttribute(r)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func decodeFields(r *binreader.Reader) ([]RawField, error) {
	count, err := r.U16()
	if err != nil {
		return nil, vmerr.Decodef(err, "parsing fields count")
	}
	out := make([]RawField, 0, count)
	for i := uint16(0); i < count; i++ {
		accessRaw, err := r.U16()
		if err != nil {
			return nil, vmerr.Decodef(err, "parsing field %d access_flags", i)
		}
		flags := FieldAccessFlags(accessRaw)
		if flags&^fieldAccessMask != 0 {
			return nil, vmerr.Decodef(nil, "field %d: invalid access flags 0x%x", i, accessRaw)
		}
		nameIdx, err := r.U16()
		if err != nil {
			return nil, vmerr.Decodef(err, "parsing field %d name_index", i)
		}
		descIdx, err := r.U16()
		if err != nil {
			return nil, vmerr.Decodef(err, "parsing field %d descriptor_index", i)
		}
		attrs, err := decodeAttributes(r)
		if err != nil {
			return nil, err
		}
		out = append(out, RawField{
			AccessFlags:     flags,
			NameIndex:       int(nameIdx),
			DescriptorIndex: int(descIdx),
			Attributes:      attrs,
		})
	}
	return out, nil
}

func decodeMethods(r *binreader.Reader) ([]RawMethod, error) {
	count, err := r.U16()
	if err != nil {
		return nil, vmerr.Decodef(err, "parsing methods count")
	}
	out := make([]RawMethod, 0, count)
	for i := uint16(0); i < count; i++ {
		accessRaw, err := r.U16()
		if err != nil {
			return nil, vmerr.Decodef(err, "parsing method %d access_flags", i)
		}
		flags := MethodAccessFlags(accessRaw)
		if flags&^methodAccessMask != 0 {
			return nil, vmerr.Decodef(nil, "method %d: invalid access flags 0x%x", i, accessRaw)
		}
		nameIdx, err := r.U16()
		if err != nil {
			return nil, vmerr.Decodef(err, "parsing method %d name_index", i)
		}
		descIdx, err := r.U16()
		if err != nil {
			return nil, vmerr.Decodef(err, "parsing method %d descriptor_index", i)
		}
		attrs, err := decodeAttributes(r)
		if err != nil {
			return nil, err
		}
		out = append(out, RawMethod{
			AccessFlags:     flags,
			NameIndex:       int(nameIdx),
			DescriptorIndex: int(descIdx),
			Attributes:      attrs,
		})
	}
	return out, nil
}
