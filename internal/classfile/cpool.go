/*
 * classvm - a class-file virtual machine
 * Derived from the Jacobin project. Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package classfile

import (
	"github.com/jacobin-classvm/classvm/internal/binreader"
	"github.com/jacobin-classvm/classvm/internal/vmerr"
)

// CPTag identifies the variant of a constant-pool entry, using the
// wire tag values from spec.md §3.
type CPTag byte

const (
	TagUnused             CPTag = 0
	TagUtf8               CPTag = 1
	TagInteger            CPTag = 3
	TagFloat              CPTag = 4
	TagLong               CPTag = 5
	TagDouble             CPTag = 6
	TagClass              CPTag = 7
	TagString             CPTag = 8
	TagFieldRef           CPTag = 9
	TagMethodRef          CPTag = 10
	TagInterfaceMethodRef CPTag = 11
	TagNameAndType        CPTag = 12
	TagMethodHandle       CPTag = 15
	TagMethodType         CPTag = 16
	TagInvokeDynamic      CPTag = 18
)

// CPEntry is a tagged union over the constant pool's variant payloads.
// The pool is stored 0-indexed internally (index 0 is the Unused
// sentinel occupying the wire's unused slot 0); every accessor that
// crosses the wire boundary translates the 1-origin index itself.
type CPEntry struct {
	Tag CPTag

	// Utf8
	Utf8 string

	// Integer / Float / Long / Double
	IntVal    int32
	FloatVal  float32
	LongVal   int64
	DoubleVal float64

	// Class / String: a single index
	NameIndex int // Class.name_index, String.string_index

	// FieldRef / MethodRef / InterfaceMethodRef
	ClassIndex       int
	NameAndTypeIndex int

	// NameAndType
	DescriptorIndex int

	// MethodHandle
	ReferenceKind  uint8
	ReferenceIndex int

	// MethodType: DescriptorIndex (shared field above)

	// InvokeDynamic
	BootstrapMethodAttrIndex int
}

// ConstantPool is the 1-indexed-on-the-wire, 0-indexed-internally
// table of constants. Entries[0] is always the Unused sentinel.
type ConstantPool struct {
	Entries []CPEntry
}

// Count mirrors the wire's constant_pool_count (len(Entries)).
func (cp *ConstantPool) Count() int { return len(cp.Entries) }

// entryAt translates a 1-origin wire index into the internal slice and
// validates it per spec.md's indexing contract: never index 0, never
// an Unused sentinel, always within range.
func (cp *ConstantPool) entryAt(wireIndex int) (*CPEntry, error) {
	if wireIndex < 1 || wireIndex >= len(cp.Entries) {
		return nil, vmerr.Decodef(nil, "constant pool index %d out of range [1, %d)", wireIndex, len(cp.Entries))
	}
	e := &cp.Entries[wireIndex]
	if e.Tag == TagUnused {
		return nil, vmerr.Decodef(nil, "constant pool index %d refers to an unused slot", wireIndex)
	}
	return e, nil
}

// Utf8At resolves a 1-origin index to a Utf8 entry's decoded string.
func (cp *ConstantPool) Utf8At(wireIndex int) (string, error) {
	e, err := cp.entryAt(wireIndex)
	if err != nil {
		return "", err
	}
	if e.Tag != TagUtf8 {
		return "", vmerr.Linkf(nil, "constant pool index %d: expected Utf8, got tag %d", wireIndex, e.Tag)
	}
	return e.Utf8, nil
}

// ClassNameAt resolves a 1-origin index to a Class entry, returning the
// fully-qualified name it points to.
func (cp *ConstantPool) ClassNameAt(wireIndex int) (string, error) {
	e, err := cp.entryAt(wireIndex)
	if err != nil {
		return "", err
	}
	if e.Tag != TagClass {
		return "", vmerr.Linkf(nil, "constant pool index %d: expected Class, got tag %d", wireIndex, e.Tag)
	}
	return cp.Utf8At(e.NameIndex)
}

// NameAndTypeAt resolves a 1-origin index to a NameAndType entry's
// (name, descriptor) pair.
func (cp *ConstantPool) NameAndTypeAt(wireIndex int) (name, descriptor string, err error) {
	e, err := cp.entryAt(wireIndex)
	if err != nil {
		return "", "", err
	}
	if e.Tag != TagNameAndType {
		return "", "", vmerr.Linkf(nil, "constant pool index %d: expected NameAndType, got tag %d", wireIndex, e.Tag)
	}
	name, err = cp.Utf8At(e.NameIndex)
	if err != nil {
		return "", "", err
	}
	descriptor, err = cp.Utf8At(e.DescriptorIndex)
	if err != nil {
		return "", "", err
	}
	return name, descriptor, nil
}

// MemberRef is the resolved (className, memberName, descriptor) triple
// that a FieldRef/MethodRef/InterfaceMethodRef points to.
type MemberRef struct {
	ClassName  string
	MemberName string
	Descriptor string
}

// MemberRefAt resolves a FieldRef/MethodRef/InterfaceMethodRef entry.
func (cp *ConstantPool) MemberRefAt(wireIndex int) (MemberRef, error) {
	e, err := cp.entryAt(wireIndex)
	if err != nil {
		return MemberRef{}, err
	}
	switch e.Tag {
	case TagFieldRef, TagMethodRef, TagInterfaceMethodRef:
	default:
		return MemberRef{}, vmerr.Linkf(nil, "constant pool index %d: expected a member ref, got tag %d", wireIndex, e.Tag)
	}
	className, err := cp.ClassNameAt(e.ClassIndex)
	if err != nil {
		return MemberRef{}, err
	}
	name, desc, err := cp.NameAndTypeAt(e.NameAndTypeIndex)
	if err != nil {
		return MemberRef{}, err
	}
	return MemberRef{ClassName: className, MemberName: name, Descriptor: desc}, nil
}

// readConstant reads one constant pool entry from r, returning the
// decoded entry and whether the caller must also insert an Unused
// sentinel for the following slot (Long/Double, spec.md §3/§4.3 step 3).
func readConstant(r *binreader.Reader) (CPEntry, bool, error) {
	tagByte, err := r.U8()
	if err != nil {
		return CPEntry{}, false, err
	}
	switch CPTag(tagByte) {
	case TagUtf8:
		n, err := r.U16()
		if err != nil {
			return CPEntry{}, false, err
		}
		raw, err := r.Bytes(int(n))
		if err != nil {
			return CPEntry{}, false, err
		}
		s, err := decodeModifiedUTF8(raw)
		if err != nil {
			return CPEntry{}, false, err
		}
		return CPEntry{Tag: TagUtf8, Utf8: s}, false, nil
	case TagInteger:
		v, err := r.I32()
		return CPEntry{Tag: TagInteger, IntVal: v}, false, err
	case TagFloat:
		v, err := r.F32()
		return CPEntry{Tag: TagFloat, FloatVal: v}, false, err
	case TagLong:
		v, err := r.I64()
		return CPEntry{Tag: TagLong, LongVal: v}, true, err
	case TagDouble:
		v, err := r.F64()
		return CPEntry{Tag: TagDouble, DoubleVal: v}, true, err
	case TagClass:
		idx, err := r.U16()
		return CPEntry{Tag: TagClass, NameIndex: int(idx)}, false, err
	case TagString:
		idx, err := r.U16()
		return CPEntry{Tag: TagString, NameIndex: int(idx)}, false, err
	case TagFieldRef, TagMethodRef, TagInterfaceMethodRef:
		ci, err := r.U16()
		if err != nil {
			return CPEntry{}, false, err
		}
		nt, err := r.U16()
		if err != nil {
			return CPEntry{}, false, err
		}
		return CPEntry{Tag: CPTag(tagByte), ClassIndex: int(ci), NameAndTypeIndex: int(nt)}, false, nil
	case TagNameAndType:
		ni, err := r.U16()
		if err != nil {
			return CPEntry{}, false, err
		}
		di, err := r.U16()
		if err != nil {
			return CPEntry{}, false, err
		}
		return CPEntry{Tag: TagNameAndType, NameIndex: int(ni), DescriptorIndex: int(di)}, false, nil
	case TagMethodHandle:
		kind, err := r.U8()
		if err != nil {
			return CPEntry{}, false, err
		}
		idx, err := r.U16()
		if err != nil {
			return CPEntry{}, false, err
		}
		return CPEntry{Tag: TagMethodHandle, ReferenceKind: kind, ReferenceIndex: int(idx)}, false, nil
	case TagMethodType:
		idx, err := r.U16()
		return CPEntry{Tag: TagMethodType, DescriptorIndex: int(idx)}, false, err
	case TagInvokeDynamic:
		bi, err := r.U16()
		if err != nil {
			return CPEntry{}, false, err
		}
		nt, err := r.U16()
		if err != nil {
			return CPEntry{}, false, err
		}
		return CPEntry{Tag: TagInvokeDynamic, BootstrapMethodAttrIndex: int(bi), NameAndTypeIndex: int(nt)}, false, nil
	default:
		return CPEntry{}, false, vmerr.Decodef(nil, "invalid constant pool tag %d", tagByte)
	}
}
