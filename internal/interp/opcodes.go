/*
 * classvm - a class-file virtual machine
 * Derived from the Jacobin project. Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package interp

import (
	"fmt"

	"github.com/jacobin-classvm/classvm/internal/classtable"
	"github.com/jacobin-classvm/classvm/internal/descriptor"
	"github.com/jacobin-classvm/classvm/internal/frame"
	"github.com/jacobin-classvm/classvm/internal/heap"
	"github.com/jacobin-classvm/classvm/internal/value"
	"github.com/jacobin-classvm/classvm/internal/vmerr"
)

// invokestaticWidth is the fixed size, in bytes, of the only call
// instruction this interpreter supports (opcode + u16 index). ireturn
// and return use it to advance the caller's pc past the call, per
// spec.md §4.7.
const invokestaticWidth = 3

// mnemonics maps every opcode byte this interpreter recognizes to its
// canonical name, preserved even for opcodes left Unimplemented, per
// spec.md §6's "must preserve the opcode -> mnemonic mapping".
var mnemonics = map[byte]string{
	0x00: "nop", 0x01: "aconst_null",
	0x02: "iconst_m1", 0x03: "iconst_0", 0x04: "iconst_1", 0x05: "iconst_2",
	0x06: "iconst_3", 0x07: "iconst_4", 0x08: "iconst_5",
	0x09: "lconst_0", 0x0a: "lconst_1",
	0x0b: "fconst_0", 0x0c: "fconst_1", 0x0d: "fconst_2",
	0x0e: "dconst_0", 0x0f: "dconst_1",
	0x10: "bipush", 0x11: "sipush",
	0x12: "ldc", 0x13: "ldc_w", 0x14: "ldc2_w",
	0x15: "iload", 0x16: "lload", 0x17: "fload", 0x18: "dload", 0x19: "aload",
	0x1a: "iload_0", 0x1b: "iload_1", 0x1c: "iload_2", 0x1d: "iload_3",
	0x1e: "lload_0", 0x1f: "lload_1", 0x20: "lload_2", 0x21: "lload_3",
	0x22: "fload_0", 0x23: "fload_1", 0x24: "fload_2", 0x25: "fload_3",
	0x26: "dload_0", 0x27: "dload_1", 0x28: "dload_2", 0x29: "dload_3",
	0x2a: "aload_0", 0x2b: "aload_1", 0x2c: "aload_2", 0x2d: "aload_3",
	0x2e: "iaload", 0x2f: "laload", 0x30: "faload", 0x31: "daload",
	0x32: "aaload", 0x33: "baload", 0x34: "caload", 0x35: "saload",
	0x36: "istore", 0x37: "lstore", 0x38: "fstore", 0x39: "dstore", 0x3a: "astore",
	0x3b: "istore_0", 0x3c: "istore_1", 0x3d: "istore_2", 0x3e: "istore_3",
	0x3f: "lstore_0", 0x40: "lstore_1", 0x41: "lstore_2", 0x42: "lstore_3",
	0x43: "fstore_0", 0x44: "fstore_1", 0x45: "fstore_2", 0x46: "fstore_3",
	0x47: "dstore_0", 0x48: "dstore_1", 0x49: "dstore_2", 0x4a: "dstore_3",
	0x4b: "astore_0", 0x4c: "astore_1", 0x4d: "astore_2", 0x4e: "astore_3",
	0x4f: "iastore", 0x50: "lastore", 0x51: "fastore", 0x52: "dastore",
	0x53: "aastore", 0x54: "bastore", 0x55: "castore", 0x56: "sastore",
	0x57: "pop", 0x58: "pop2", 0x59: "dup", 0x5a: "dup_x1", 0x5b: "dup_x2",
	0x5c: "dup2", 0x5d: "dup2_x1", 0x5e: "dup2_x2", 0x5f: "swap",
	0x60: "iadd", 0x61: "ladd", 0x62: "fadd", 0x63: "dadd",
	0x64: "isub", 0x65: "lsub", 0x66: "fsub", 0x67: "dsub",
	0x68: "imul", 0x69: "lmul", 0x6a: "fmul", 0x6b: "dmul",
	0x6c: "idiv", 0x6d: "ldiv", 0x6e: "fdiv", 0x6f: "ddiv",
	0x70: "irem", 0x71: "lrem", 0x72: "frem", 0x73: "drem",
	0x74: "ineg", 0x75: "lneg", 0x76: "fneg", 0x77: "dneg",
	0x78: "ishl", 0x79: "lshl", 0x7a: "ishr", 0x7b: "lshr",
	0x7c: "iushr", 0x7d: "lushr",
	0x7e: "iand", 0x7f: "land", 0x80: "ior", 0x81: "lor", 0x82: "ixor", 0x83: "lxor",
	0x84: "iinc",
	0x85: "i2l", 0x86: "i2f", 0x87: "i2d", 0x88: "l2i", 0x89: "l2f", 0x8a: "l2d",
	0x8b: "f2i", 0x8c: "f2l", 0x8d: "f2d", 0x8e: "d2i", 0x8f: "d2l", 0x90: "d2f",
	0x91: "i2b", 0x92: "i2c", 0x93: "i2s",
	0x94: "lcmp", 0x95: "fcmpl", 0x96: "fcmpg", 0x97: "dcmpl", 0x98: "dcmpg",
	0x99: "ifeq", 0x9a: "ifne", 0x9b: "iflt", 0x9c: "ifge", 0x9d: "ifgt", 0x9e: "ifle",
	0x9f: "if_icmpeq", 0xa0: "if_icmpne", 0xa1: "if_icmplt", 0xa2: "if_icmpge",
	0xa3: "if_icmpgt", 0xa4: "if_icmple", 0xa5: "if_acmpeq", 0xa6: "if_acmpne",
	0xa7: "goto", 0xa8: "jsr", 0xa9: "ret",
	0xaa: "tableswitch", 0xab: "lookupswitch",
	0xac: "ireturn", 0xad: "lreturn", 0xae: "freturn", 0xaf: "dreturn",
	0xb0: "areturn", 0xb1: "return",
	0xb2: "getstatic", 0xb3: "putstatic", 0xb4: "getfield", 0xb5: "putfield",
	0xb6: "invokevirtual", 0xb7: "invokespecial", 0xb8: "invokestatic",
	0xb9: "invokeinterface", 0xba: "invokedynamic",
	0xbb: "new", 0xbc: "newarray", 0xbd: "anewarray", 0xbe: "arraylength",
	0xbf: "athrow", 0xc0: "checkcast", 0xc1: "instanceof",
	0xc2: "monitorenter", 0xc3: "monitorexit",
	0xc4: "wide", 0xc5: "multianewarray", 0xc6: "ifnull", 0xc7: "ifnonnull",
	0xc8: "goto_w", 0xc9: "jsr_w",
	0xca: "breakpoint", 0xfe: "impdep1", 0xff: "impdep2",
}

func mnemonicOf(op byte) string {
	if m, ok := mnemonics[op]; ok {
		return m
	}
	return fmt.Sprintf("0x%02x", op)
}

// step reads and executes one instruction from bytecode at f.PC,
// returning the number of bytes consumed (opcode + immediates).
// Handlers that push/pop call-stack frames manage pc advancement
// themselves and the returned count is ignored by the caller.
func (in *Interp) step(f *frame.Frame, rc *classtable.RuntimeClass, bytecode []byte) (int, error) {
	start := f.PC
	op := bytecode[start]
	cur := start + 1

	u8 := func() (uint8, error) {
		if cur >= len(bytecode) {
			return 0, vmerr.Decodef(nil, "truncated operand for %s", mnemonicOf(op))
		}
		v := bytecode[cur]
		cur++
		return v, nil
	}
	i8 := func() (int8, error) {
		v, err := u8()
		return int8(v), err
	}
	u16 := func() (uint16, error) {
		if cur+1 >= len(bytecode) {
			return 0, vmerr.Decodef(nil, "truncated operand for %s", mnemonicOf(op))
		}
		v := uint16(bytecode[cur])<<8 | uint16(bytecode[cur+1])
		cur += 2
		return v, nil
	}

	switch op {
	case 0x00: // nop
		return cur - start, nil

	case 0x01: // aconst_null
		return cur - start, f.Push(value.NewNull())

	case 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08: // iconst_m1..5
		return cur - start, f.Push(value.NewInt(int32(op) - 3))

	case 0x0b, 0x0c, 0x0d: // fconst_0..2
		return cur - start, f.Push(value.NewFloat(float32(op - 0x0b)))

	case 0x10: // bipush
		b, err := i8()
		if err != nil {
			return 0, err
		}
		return cur - start, f.Push(value.NewInt(int32(b)))

	case 0x15, 0x17, 0x19: // iload/fload/aload (dynamic)
		n, err := u8()
		if err != nil {
			return 0, err
		}
		v, err := f.GetLocal(int(n))
		if err != nil {
			return 0, err
		}
		return cur - start, f.Push(v)

	case 0x1a, 0x1b, 0x1c, 0x1d: // iload_0..3
		return cur - start, loadLocal(f, int(op-0x1a))
	case 0x22, 0x23, 0x24, 0x25: // fload_0..3
		return cur - start, loadLocal(f, int(op-0x22))
	case 0x2a, 0x2b, 0x2c, 0x2d: // aload_0..3
		return cur - start, loadLocal(f, int(op-0x2a))

	case 0x36, 0x38, 0x3a: // istore/fstore/astore (dynamic)
		n, err := u8()
		if err != nil {
			return 0, err
		}
		v, err := f.Pop()
		if err != nil {
			return 0, err
		}
		return cur - start, f.SetLocal(int(n), v)

	case 0x3b, 0x3c, 0x3d, 0x3e: // istore_0..3
		return cur - start, storeLocal(f, int(op-0x3b))
	case 0x43, 0x44, 0x45, 0x46: // fstore_0..3
		return cur - start, storeLocal(f, int(op-0x43))
	case 0x4b, 0x4c, 0x4d, 0x4e: // astore_0..3
		return cur - start, storeLocal(f, int(op-0x4b))

	case 0xbc: // newarray
		atype, err := u8()
		if err != nil {
			return 0, err
		}
		kind, err := heap.ArrayKindFromAtype(atype)
		if err != nil {
			return 0, err
		}
		size, err := f.Pop()
		if err != nil {
			return 0, err
		}
		if size.Kind != value.Int {
			return 0, vmerr.Typef("newarray: expected Int size, got %s", size.Kind)
		}
		idx, err := in.Heap.AllocateArray(kind, int(size.Int32()))
		if err != nil {
			return 0, err
		}
		return cur - start, f.Push(value.NewArrayReference(idx))

	case 0x2e, 0x30, 0x32, 0x33: // iaload/faload/aaload/baload
		return cur - start, in.arrayLoad(f)

	case 0x4f, 0x51, 0x53, 0x54: // iastore/fastore/aastore/bastore
		return cur - start, in.arrayStore(f)

	case 0x59: // dup
		v, err := f.Peek()
		if err != nil {
			return 0, err
		}
		return cur - start, f.Push(v)

	case 0x57: // pop
		_, err := f.Pop()
		return cur - start, err

	case 0x60: // iadd
		return cur - start, intBinOp(f, func(a, b int32) int32 { return a + b })
	case 0x64: // isub: pop b, pop a, push a-b
		b, err := f.Pop()
		if err != nil {
			return 0, err
		}
		a, err := f.Pop()
		if err != nil {
			return 0, err
		}
		if a.Kind != value.Int || b.Kind != value.Int {
			return 0, vmerr.Typef("isub requires two Int operands")
		}
		return cur - start, f.Push(value.NewInt(a.Int32() - b.Int32()))
	case 0x68: // imul
		return cur - start, intBinOp(f, func(a, b int32) int32 { return a * b })
	case 0x6c: // idiv: pop divisor (top), pop dividend, push dividend/divisor
		divisor, err := f.Pop()
		if err != nil {
			return 0, err
		}
		dividend, err := f.Pop()
		if err != nil {
			return 0, err
		}
		if dividend.Kind != value.Int || divisor.Kind != value.Int {
			return 0, vmerr.Typef("idiv requires two Int operands")
		}
		if divisor.Int32() == 0 {
			return 0, vmerr.Arithmeticf("division by zero")
		}
		return cur - start, f.Push(value.NewInt(dividend.Int32() / divisor.Int32()))
	case 0x7e: // iand
		return cur - start, intBinOp(f, func(a, b int32) int32 { return a & b })
	case 0x80: // ior
		return cur - start, intBinOp(f, func(a, b int32) int32 { return a | b })
	case 0x74: // ineg
		a, err := f.Pop()
		if err != nil {
			return 0, err
		}
		if a.Kind != value.Int {
			return 0, vmerr.Typef("ineg requires an Int operand")
		}
		return cur - start, f.Push(value.NewInt(-a.Int32()))

	case 0xb8: // invokestatic
		idx, err := u16()
		if err != nil {
			return 0, err
		}
		if err := in.invokeStatic(f, rc, int(idx)); err != nil {
			return 0, err
		}
		return cur - start, nil

	case 0xac: // ireturn
		return 0, in.doReturn(f, true)
	case 0xb1: // return
		return 0, in.doReturn(f, false)

	case 0xb2: // getstatic
		idx, err := u16()
		if err != nil {
			return 0, err
		}
		if err := in.getStatic(f, rc, int(idx)); err != nil {
			return 0, err
		}
		return cur - start, nil

	case 0xa8, 0xc9, 0xa9: // jsr, jsr_w, ret -- recognized but fatal
		return 0, vmerr.Unimplementedf(mnemonicOf(op))

	default:
		if _, known := mnemonics[op]; known {
			return 0, vmerr.Unimplementedf(mnemonicOf(op))
		}
		return 0, vmerr.Decodef(nil, "unknown opcode 0x%02x", op)
	}
}

func loadLocal(f *frame.Frame, n int) error {
	v, err := f.GetLocal(n)
	if err != nil {
		return err
	}
	return f.Push(v)
}

func storeLocal(f *frame.Frame, n int) error {
	v, err := f.Pop()
	if err != nil {
		return err
	}
	return f.SetLocal(n, v)
}

func intBinOp(f *frame.Frame, op func(a, b int32) int32) error {
	b, err := f.Pop()
	if err != nil {
		return err
	}
	a, err := f.Pop()
	if err != nil {
		return err
	}
	if a.Kind != value.Int || b.Kind != value.Int {
		return vmerr.Typef("integer operator requires two Int operands, got %s and %s", a.Kind, b.Kind)
	}
	return f.Push(value.NewInt(op(a.Int32(), b.Int32())))
}

func (in *Interp) arrayLoad(f *frame.Frame) error {
	index, err := f.Pop()
	if err != nil {
		return err
	}
	ref, err := f.Pop()
	if err != nil {
		return err
	}
	if ref.Kind == value.Null {
		return vmerr.NullReferencef("array load on a null reference")
	}
	if ref.Kind != value.ArrayReference {
		return vmerr.Typef("array load requires an ArrayReference, got %s", ref.Kind)
	}
	if index.Kind != value.Int {
		return vmerr.Typef("array load requires an Int index, got %s", index.Kind)
	}
	arr, err := in.Heap.Array(ref.Ref)
	if err != nil {
		return err
	}
	v, err := arr.Get(int(index.Int32()))
	if err != nil {
		return err
	}
	return f.Push(value.Widen(v))
}

func (in *Interp) arrayStore(f *frame.Frame) error {
	val, err := f.Pop()
	if err != nil {
		return err
	}
	index, err := f.Pop()
	if err != nil {
		return err
	}
	ref, err := f.Pop()
	if err != nil {
		return err
	}
	if ref.Kind == value.Null {
		return vmerr.NullReferencef("array store on a null reference")
	}
	if ref.Kind != value.ArrayReference {
		return vmerr.Typef("array store requires an ArrayReference, got %s", ref.Kind)
	}
	if index.Kind != value.Int {
		return vmerr.Typef("array store requires an Int index, got %s", index.Kind)
	}
	arr, err := in.Heap.ArrayMut(ref.Ref)
	if err != nil {
		return err
	}
	return arr.Set(int(index.Int32()), val)
}

// invokeStatic resolves a MethodRef/InterfaceMethodRef, builds a new
// frame (or dispatches to a native handler), and transfers execution
// per spec.md §4.7.
func (in *Interp) invokeStatic(caller *frame.Frame, rc *classtable.RuntimeClass, cpIndex int) error {
	ref, err := rc.Raw.ConstantPool.MemberRefAt(cpIndex)
	if err != nil {
		return err
	}
	targetClass, ok := in.Classes.Get(ref.ClassName)
	if !ok {
		return vmerr.Linkf(nil, "invokestatic: class %s not found", ref.ClassName)
	}
	m, ok := targetClass.MethodByNameAndDescriptor(ref.MemberName, ref.Descriptor)
	if !ok {
		return vmerr.Linkf(nil, "invokestatic: method %s.%s%s not found", ref.ClassName, ref.MemberName, ref.Descriptor)
	}

	if m.Raw.AccessFlags.IsNative() {
		return in.handleNativeMethod(targetClass, m)
	}

	desc, err := descriptor.ParseMethod(m.Descriptor)
	if err != nil {
		return err
	}
	callee, err := classtable.FrameFor(m)
	if err != nil {
		return err
	}
	callee.ClassName = targetClass.Name
	callee.CallerPCAdvance = invokestaticWidth

	arity := len(desc.Params)
	for i := 0; i < arity; i++ {
		v, err := caller.Pop()
		if err != nil {
			return err
		}
		if err := callee.SetLocal(arity-1-i, v); err != nil {
			return err
		}
	}

	in.Stack = append(in.Stack, callee)
	return nil
}

// doReturn pops the current frame, optionally transferring a return
// value to the new top-of-stack, and (when a caller remains) advances
// its pc past the invokestatic that called here.
func (in *Interp) doReturn(f *frame.Frame, hasValue bool) error {
	var v value.DataType
	if hasValue {
		var err error
		v, err = f.Pop()
		if err != nil {
			return err
		}
	}
	advance := f.CallerPCAdvance
	in.Stack = in.Stack[:len(in.Stack)-1]
	if len(in.Stack) == 0 {
		if hasValue {
			in.LastReturn = v
			in.HasLastReturn = true
		}
		return nil
	}
	caller := in.Stack[len(in.Stack)-1]
	caller.PC += advance
	if hasValue {
		return caller.Push(v)
	}
	return nil
}

// getStatic resolves a FieldRef, triggers class initialization if
// needed, and pushes a placeholder for the static's value: there is no
// static field storage, so the pushed value is always the zero value
// of the field's descriptor, widened to its computation type.
func (in *Interp) getStatic(f *frame.Frame, rc *classtable.RuntimeClass, cpIndex int) error {
	ref, err := rc.Raw.ConstantPool.MemberRefAt(cpIndex)
	if err != nil {
		return err
	}
	if _, err := in.InitClass(ref.ClassName); err != nil {
		return err
	}
	ft, err := descriptor.ParseField(ref.Descriptor)
	if err != nil {
		return err
	}
	return f.Push(value.Widen(zeroValueFor(ft)))
}

func zeroValueFor(ft descriptor.FieldType) value.DataType {
	switch ft.Kind {
	case descriptor.Boolean:
		return value.NewBoolean(false)
	case descriptor.Byte:
		return value.NewByte(0)
	case descriptor.Char:
		return value.NewChar(0)
	case descriptor.Short:
		return value.NewShort(0)
	case descriptor.Int:
		return value.NewInt(0)
	case descriptor.Long:
		return value.NewLong(0)
	case descriptor.Float:
		return value.NewFloat(0)
	case descriptor.Double:
		return value.NewDouble(0)
	default:
		return value.NewNull()
	}
}
