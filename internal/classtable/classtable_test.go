/*
 * classvm - a class-file virtual machine
 * Derived from the Jacobin project. Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package classtable

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/jacobin-classvm/classvm/internal/classfile"
)

// cpBuilder accumulates constant pool entries in wire order, handing
// back each entry's 1-origin index as it's added.
type cpBuilder struct {
	buf   bytes.Buffer
	count uint16 // 1 + number of wire slots appended so far
}

func newCPBuilder() *cpBuilder { return &cpBuilder{count: 1} }

func wU16(v uint16) []byte { b := make([]byte, 2); binary.BigEndian.PutUint16(b, v); return b }
func wU32(v uint32) []byte { b := make([]byte, 4); binary.BigEndian.PutUint32(b, v); return b }

func (b *cpBuilder) utf8(s string) uint16 {
	idx := b.count
	b.buf.WriteByte(byte(classfile.TagUtf8))
	b.buf.Write(wU16(uint16(len(s))))
	b.buf.WriteString(s)
	b.count++
	return idx
}

func (b *cpBuilder) class(nameIdx uint16) uint16 {
	idx := b.count
	b.buf.WriteByte(byte(classfile.TagClass))
	b.buf.Write(wU16(nameIdx))
	b.count++
	return idx
}

func (b *cpBuilder) nameAndType(nameIdx, descIdx uint16) uint16 {
	idx := b.count
	b.buf.WriteByte(byte(classfile.TagNameAndType))
	b.buf.Write(wU16(nameIdx))
	b.buf.Write(wU16(descIdx))
	b.count++
	return idx
}

func (b *cpBuilder) methodRef(classIdx, natIdx uint16) uint16 {
	idx := b.count
	b.buf.WriteByte(byte(classfile.TagMethodRef))
	b.buf.Write(wU16(classIdx))
	b.buf.Write(wU16(natIdx))
	b.count++
	return idx
}

// methodSpec describes one method_info entry with a single Code attribute.
type methodSpec struct {
	accessFlags uint16
	nameIdx     uint16
	descIdx     uint16
	codeNameIdx uint16
	maxStack    uint16
	maxLocals   uint16
	code        []byte
}

func buildCode(m methodSpec) []byte {
	var body bytes.Buffer
	body.Write(wU16(m.maxStack))
	body.Write(wU16(m.maxLocals))
	body.Write(wU32(uint32(len(m.code))))
	body.Write(m.code)
	body.Write(wU16(0)) // exception_table_length
	body.Write(wU16(0)) // attributes_count

	var attr bytes.Buffer
	attr.Write(wU16(m.codeNameIdx))
	attr.Write(wU32(uint32(body.Len())))
	attr.Write(body.Bytes())
	return attr.Bytes()
}

// buildClassBytes assembles a complete class file: no interfaces or
// fields, one method per spec, no top-level attributes.
func buildClassBytes(cp *cpBuilder, thisIdx, superIdx uint16, methods []methodSpec) []byte {
	var buf bytes.Buffer
	buf.Write(wU32(0xCAFEBABE))
	buf.Write(wU16(0))  // minor
	buf.Write(wU16(61)) // major
	buf.Write(wU16(cp.count))
	buf.Write(cp.buf.Bytes())
	buf.Write(wU16(0x0021)) // access_flags: public super
	buf.Write(wU16(thisIdx))
	buf.Write(wU16(superIdx))
	buf.Write(wU16(0)) // interfaces_count
	buf.Write(wU16(0)) // fields_count
	buf.Write(wU16(uint16(len(methods))))
	for _, m := range methods {
		buf.Write(wU16(m.accessFlags))
		buf.Write(wU16(m.nameIdx))
		buf.Write(wU16(m.descIdx))
		buf.Write(wU16(1)) // attributes_count: just Code
		buf.Write(buildCode(m))
	}
	buf.Write(wU16(0)) // attributes_count (class-level)
	return buf.Bytes()
}

func TestLoadBytesBuildsARuntimeClass(t *testing.T) {
	cp := newCPBuilder()
	mainName := cp.utf8("Main")
	thisIdx := cp.class(mainName)
	methodName := cp.utf8("main")
	methodDesc := cp.utf8("([Ljava/lang/String;)V")
	codeName := cp.utf8("Code")

	raw := buildClassBytes(cp, thisIdx, 0, []methodSpec{{
		accessFlags: uint16(classfile.MethodPublic | classfile.MethodStatic),
		nameIdx:     methodName,
		descIdx:     methodDesc,
		codeNameIdx: codeName,
		maxStack:    1,
		maxLocals:   1,
		code:        []byte{0x03, 0xb1}, // iconst_0; return
	}})

	ct := New()
	rc, err := ct.LoadBytes("Main.class", raw)
	if err != nil {
		t.Fatal(err)
	}
	if rc.Name != "Main" {
		t.Fatalf("Name = %q", rc.Name)
	}
	if rc.State() != Loaded {
		t.Fatalf("State() = %v, want Loaded", rc.State())
	}
	got, ok := ct.Get("Main")
	if !ok || got != rc {
		t.Fatal("Get(\"Main\") did not return the loaded class")
	}
}

func TestFindEntryPointRequiresPublicStaticMain(t *testing.T) {
	cp := newCPBuilder()
	thisIdx := cp.class(cp.utf8("Main"))
	methodName := cp.utf8("main")
	methodDesc := cp.utf8("([Ljava/lang/String;)V")
	codeName := cp.utf8("Code")

	raw := buildClassBytes(cp, thisIdx, 0, []methodSpec{{
		accessFlags: uint16(classfile.MethodPublic | classfile.MethodStatic),
		nameIdx:     methodName,
		descIdx:     methodDesc,
		codeNameIdx: codeName,
		maxStack:    1,
		maxLocals:   1,
		code:        []byte{0xb1},
	}})

	ct := New()
	rc, err := ct.LoadBytes("Main.class", raw)
	if err != nil {
		t.Fatal(err)
	}
	m, ok := rc.FindEntryPoint()
	if !ok || m.Name != "main" {
		t.Fatalf("FindEntryPoint() = %+v, %v", m, ok)
	}
}

func TestFindEntryPointRejectsNonPublicMain(t *testing.T) {
	cp := newCPBuilder()
	thisIdx := cp.class(cp.utf8("Main"))
	methodName := cp.utf8("main")
	methodDesc := cp.utf8("([Ljava/lang/String;)V")
	codeName := cp.utf8("Code")

	raw := buildClassBytes(cp, thisIdx, 0, []methodSpec{{
		accessFlags: uint16(classfile.MethodStatic), // not public
		nameIdx:     methodName,
		descIdx:     methodDesc,
		codeNameIdx: codeName,
		maxStack:    1,
		maxLocals:   1,
		code:        []byte{0xb1},
	}})

	ct := New()
	rc, err := ct.LoadBytes("Main.class", raw)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := rc.FindEntryPoint(); ok {
		t.Fatal("a non-public main should not be selected as the entry point")
	}
}

func TestInitStateMachineGuardsAgainstReentry(t *testing.T) {
	cp := newCPBuilder()
	thisIdx := cp.class(cp.utf8("Main"))
	raw := buildClassBytes(cp, thisIdx, 0, nil)

	ct := New()
	rc, err := ct.LoadBytes("Main.class", raw)
	if err != nil {
		t.Fatal(err)
	}
	if rc.State() != Loaded {
		t.Fatalf("initial state = %v", rc.State())
	}
	if !rc.BeginInitializing() {
		t.Fatal("first BeginInitializing() should succeed")
	}
	if rc.State() != Initializing {
		t.Fatalf("state after BeginInitializing() = %v", rc.State())
	}
	if rc.BeginInitializing() {
		t.Fatal("a second BeginInitializing() while Initializing must be a no-op")
	}
	rc.FinishInitializing()
	if rc.State() != Initialized {
		t.Fatalf("state after FinishInitializing() = %v", rc.State())
	}
	if rc.BeginInitializing() {
		t.Fatal("BeginInitializing() on an already-Initialized class must be a no-op")
	}
}

func TestMethodByNameAndDescriptorRequiresExactMatch(t *testing.T) {
	cp := newCPBuilder()
	thisIdx := cp.class(cp.utf8("Main"))
	methodName := cp.utf8("compute")
	methodDesc := cp.utf8("(I)I")
	codeName := cp.utf8("Code")

	raw := buildClassBytes(cp, thisIdx, 0, []methodSpec{{
		accessFlags: uint16(classfile.MethodPublic | classfile.MethodStatic),
		nameIdx:     methodName,
		descIdx:     methodDesc,
		codeNameIdx: codeName,
		maxStack:    1,
		maxLocals:   1,
		code:        []byte{0x1a, 0xac}, // iload_0; ireturn
	}})

	ct := New()
	rc, err := ct.LoadBytes("Main.class", raw)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := rc.MethodByNameAndDescriptor("compute", "(I)I"); !ok {
		t.Fatal("expected an exact (name, descriptor) match to be found")
	}
	if _, ok := rc.MethodByNameAndDescriptor("compute", "(J)J"); ok {
		t.Fatal("a differing descriptor must not match")
	}
}
