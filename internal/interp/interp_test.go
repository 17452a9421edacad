/*
 * classvm - a class-file virtual machine
 * Derived from the Jacobin project. Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package interp

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/jacobin-classvm/classvm/internal/classfile"
	"github.com/jacobin-classvm/classvm/internal/classtable"
	"github.com/jacobin-classvm/classvm/internal/value"
	"github.com/jacobin-classvm/classvm/internal/vmerr"
)

// cpBuilder accumulates constant pool entries in wire order, handing
// back each entry's 1-origin index as it's added. Duplicated from
// classtable's test builder since Go test files cannot be shared
// across package boundaries.
type cpBuilder struct {
	buf   bytes.Buffer
	count uint16
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

func (b *cpBuilder) fieldRef(classIdx, natIdx uint16) uint16 {
	idx := b.count
	b.buf.WriteByte(byte(classfile.TagFieldRef))
	b.buf.Write(wU16(classIdx))
	b.buf.Write(wU16(natIdx))
	b.count++
	return idx
}

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
	body.Write(wU16(0))
	body.Write(wU16(0))

	var attr bytes.Buffer
	attr.Write(wU16(m.codeNameIdx))
	attr.Write(wU32(uint32(body.Len())))
	attr.Write(body.Bytes())
	return attr.Bytes()
}

func buildClassBytes(cp *cpBuilder, thisIdx, superIdx uint16, methods []methodSpec) []byte {
	var buf bytes.Buffer
	buf.Write(wU32(0xCAFEBABE))
	buf.Write(wU16(0))
	buf.Write(wU16(61))
	buf.Write(wU16(cp.count))
	buf.Write(cp.buf.Bytes())
	buf.Write(wU16(0x0021))
	buf.Write(wU16(thisIdx))
	buf.Write(wU16(superIdx))
	buf.Write(wU16(0))
	buf.Write(wU16(0))
	buf.Write(wU16(uint16(len(methods))))
	for _, m := range methods {
		buf.Write(wU16(m.accessFlags))
		buf.Write(wU16(m.nameIdx))
		buf.Write(wU16(m.descIdx))
		buf.Write(wU16(1))
		buf.Write(buildCode(m))
	}
	buf.Write(wU16(0))
	return buf.Bytes()
}

// loadMainWithBody builds and loads a class named "Main" with a single
// public static main([Ljava/lang/String;)V method whose code, max_stack
// and max_locals the caller supplies, and returns a ready interpreter.
func loadMainWithBody(t *testing.T, maxStack, maxLocals uint16, code []byte) (*Interp, *classtable.ClassTable) {
	t.Helper()
	cp := newCPBuilder()
	thisIdx := cp.class(cp.utf8("Main"))
	nameIdx := cp.utf8("main")
	descIdx := cp.utf8("([Ljava/lang/String;)V")
	codeName := cp.utf8("Code")

	raw := buildClassBytes(cp, thisIdx, 0, []methodSpec{{
		accessFlags: uint16(classfile.MethodPublic | classfile.MethodStatic),
		nameIdx:     nameIdx,
		descIdx:     descIdx,
		codeNameIdx: codeName,
		maxStack:    maxStack,
		maxLocals:   maxLocals,
		code:        code,
	}})

	classes := classtable.New()
	if _, err := classes.LoadBytes("Main.class", raw); err != nil {
		t.Fatalf("loading fixture: %v", err)
	}
	return New(classes), classes
}

func TestRunMinimalClassReturnsItsValue(t *testing.T) {
	in, _ := loadMainWithBody(t, 1, 1, []byte{0x03, 0xac}) // iconst_0; ireturn
	if err := in.Run("Main"); err != nil {
		t.Fatal(err)
	}
	if !in.HasLastReturn || in.LastReturn.Kind != value.Int || in.LastReturn.Int32() != 0 {
		t.Fatalf("LastReturn = %+v, HasLastReturn = %v", in.LastReturn, in.HasLastReturn)
	}
}

func TestRunArrayLifecycle(t *testing.T) {
	// bipush 3; newarray int; dup; iconst_2; bipush 42; iastore; iconst_2; iaload; ireturn
	code := []byte{
		0x10, 0x03, // bipush 3
		0xbc, 0x0a, // newarray int (atype 10)
		0x59,       // dup
		0x05,       // iconst_2
		0x10, 0x2a, // bipush 42
		0x4f,       // iastore
		0x05,       // iconst_2
		0x2e,       // iaload
		0xac,       // ireturn
	}
	in, _ := loadMainWithBody(t, 4, 1, code)
	if err := in.Run("Main"); err != nil {
		t.Fatal(err)
	}
	if !in.HasLastReturn || in.LastReturn.Int32() != 42 {
		t.Fatalf("LastReturn = %+v", in.LastReturn)
	}
}

func TestRunArithmeticIsub(t *testing.T) {
	// iconst_5; iconst_3; isub; ireturn
	in, _ := loadMainWithBody(t, 2, 0, []byte{0x08, 0x06, 0x64, 0xac})
	if err := in.Run("Main"); err != nil {
		t.Fatal(err)
	}
	if in.LastReturn.Int32() != 2 {
		t.Fatalf("LastReturn = %+v, want Int(2)", in.LastReturn)
	}
}

func TestIdivPopsDivisorThenDividend(t *testing.T) {
	// bipush 7; bipush 2; idiv; ireturn -- standard order: 7 / 2 == 3
	in, _ := loadMainWithBody(t, 2, 0, []byte{0x10, 0x07, 0x10, 0x02, 0x6c, 0xac})
	if err := in.Run("Main"); err != nil {
		t.Fatal(err)
	}
	if in.LastReturn.Int32() != 3 {
		t.Fatalf("LastReturn = %+v, want Int(3) for 7/2", in.LastReturn)
	}
}

func TestIdivByZeroIsArithmeticError(t *testing.T) {
	in, _ := loadMainWithBody(t, 2, 0, []byte{0x08, 0x03, 0x6c, 0xac}) // iconst_5; iconst_0; idiv; ireturn
	err := in.Run("Main")
	if err == nil {
		t.Fatal("expected division by zero to fail")
	}
	if !vmerr.Is(err, vmerr.Arithmetic) {
		t.Fatalf("expected an ArithmeticError, got %v", err)
	}
}

func TestMalformedMagicIsRejectedAtLoadTime(t *testing.T) {
	classes := classtable.New()
	_, err := classes.LoadBytes("Bad.class", []byte{0, 0, 0, 0})
	if err == nil {
		t.Fatal("expected a decode failure on a malformed class file")
	}
}

// TestGetstaticTriggersClassInitExactlyOnce builds two classes: Other,
// whose <clinit> runs once, and Main, whose main() reads Other's static
// field twice via getstatic. Only the first getstatic should transition
// Other out of Loaded.
func TestGetstaticTriggersClassInitExactlyOnce(t *testing.T) {
	otherCP := newCPBuilder()
	otherThis := otherCP.class(otherCP.utf8("Other"))
	clinitName := otherCP.utf8("<clinit>")
	clinitDesc := otherCP.utf8("()V")
	otherCodeName := otherCP.utf8("Code")
	otherRaw := buildClassBytes(otherCP, otherThis, 0, []methodSpec{{
		accessFlags: uint16(classfile.MethodStatic),
		nameIdx:     clinitName,
		descIdx:     clinitDesc,
		codeNameIdx: otherCodeName,
		maxStack:    0,
		maxLocals:   0,
		code:        []byte{0xb1}, // return
	}})

	mainCP := newCPBuilder()
	mainThis := mainCP.class(mainCP.utf8("Main"))
	otherClass := mainCP.class(mainCP.utf8("Other"))
	fieldName := mainCP.utf8("count")
	fieldDesc := mainCP.utf8("I")
	fieldNT := mainCP.nameAndType(fieldName, fieldDesc)
	fieldRef := mainCP.fieldRef(otherClass, fieldNT)
	mainName := mainCP.utf8("main")
	mainDesc := mainCP.utf8("([Ljava/lang/String;)V")
	mainCodeName := mainCP.utf8("Code")

	fieldRefBytes := []byte{0xb2, byte(fieldRef >> 8), byte(fieldRef)} // getstatic
	code := append(append([]byte{}, fieldRefBytes...), 0x57)           // pop the first read
	code = append(code, fieldRefBytes...)
	code = append(code, 0xac) // ireturn the second read

	mainRaw := buildClassBytes(mainCP, mainThis, 0, []methodSpec{{
		accessFlags: uint16(classfile.MethodPublic | classfile.MethodStatic),
		nameIdx:     mainName,
		descIdx:     mainDesc,
		codeNameIdx: mainCodeName,
		maxStack:    1,
		maxLocals:   1,
		code:        code,
	}})

	classes := classtable.New()
	if _, err := classes.LoadBytes("Other.class", otherRaw); err != nil {
		t.Fatalf("loading Other: %v", err)
	}
	if _, err := classes.LoadBytes("Main.class", mainRaw); err != nil {
		t.Fatalf("loading Main: %v", err)
	}

	in := New(classes)
	if err := in.Run("Main"); err != nil {
		t.Fatal(err)
	}
	if in.LastReturn.Kind != value.Int || in.LastReturn.Int32() != 0 {
		t.Fatalf("LastReturn = %+v, want the Int(0) getstatic placeholder", in.LastReturn)
	}
	other, ok := classes.Get("Other")
	if !ok {
		t.Fatal("Other was not loaded")
	}
	if other.State() != classtable.Initialized {
		t.Fatalf("Other.State() = %v, want Initialized", other.State())
	}
	if other.BeginInitializing() {
		t.Fatal("a third BeginInitializing() on an Initialized class must still be a no-op")
	}
}
