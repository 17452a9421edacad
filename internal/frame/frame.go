/*
 * classvm - a class-file virtual machine
 * Derived from the Jacobin project. Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

// Package frame implements the per-invocation activation record:
// operand stack, local variable array, and program counter, per
// spec.md §4.6. Grounded on original_source/jvm/src/types.rs's Frame
// struct; frames are identified by call-stack index rather than held
// as borrows, since the interpreter (internal/interp) owns the call
// stack as a slice and never needs an alias into the middle of it.
package frame

import (
	"github.com/jacobin-classvm/classvm/internal/value"
	"github.com/jacobin-classvm/classvm/internal/vmerr"
)

// Frame is one method invocation's activation record.
type Frame struct {
	Locals  []value.DataType
	Stack   []value.DataType
	PC      int
	MaxStack int

	// ClassName/MethodName/Descriptor identify the executing method,
	// used for diagnostics and for resuming the caller after a return.
	ClassName  string
	MethodName string
	Descriptor string

	// CallerPCAdvance is how far this frame's own return should move
	// its caller's pc once this frame pops: the width of the call
	// instruction that pushed it (invokestatic), or 0 when this frame
	// wasn't pushed by a call instruction at all (the VM's entry point,
	// or a <clinit> triggered out of getstatic).
	CallerPCAdvance int
}

// New builds a fresh frame with locals sized to maxLocals (all Empty)
// and stack capacity maxStack.
func New(maxStack, maxLocals int) *Frame {
	locals := make([]value.DataType, maxLocals)
	for i := range locals {
		locals[i] = value.NewEmpty()
	}
	return &Frame{
		Locals:   locals,
		Stack:    make([]value.DataType, 0, maxStack),
		PC:       0,
		MaxStack: maxStack,
	}
}

// Push pushes v onto the operand stack, failing with ResourceError on overflow.
func (f *Frame) Push(v value.DataType) error {
	if len(f.Stack) >= f.MaxStack {
		return vmerr.Resourcef("operand stack overflow in %s.%s%s", f.ClassName, f.MethodName, f.Descriptor)
	}
	f.Stack = append(f.Stack, v)
	return nil
}

// Pop removes and returns the top of the operand stack, failing with
// ResourceError on underflow.
func (f *Frame) Pop() (value.DataType, error) {
	if len(f.Stack) == 0 {
		return value.DataType{}, vmerr.Resourcef("operand stack underflow in %s.%s%s", f.ClassName, f.MethodName, f.Descriptor)
	}
	v := f.Stack[len(f.Stack)-1]
	f.Stack = f.Stack[:len(f.Stack)-1]
	return v, nil
}

// Peek returns the top of the operand stack without removing it.
func (f *Frame) Peek() (value.DataType, error) {
	if len(f.Stack) == 0 {
		return value.DataType{}, vmerr.Resourcef("operand stack underflow in %s.%s%s", f.ClassName, f.MethodName, f.Descriptor)
	}
	return f.Stack[len(f.Stack)-1], nil
}

// GetLocal reads locals[i], failing with ResourceError when i is out of range.
func (f *Frame) GetLocal(i int) (value.DataType, error) {
	if i < 0 || i >= len(f.Locals) {
		return value.DataType{}, vmerr.Resourcef("local index %d out of range [0, %d)", i, len(f.Locals))
	}
	return f.Locals[i], nil
}

// SetLocal writes v into locals[i], failing with ResourceError when i is out of range.
func (f *Frame) SetLocal(i int, v value.DataType) error {
	if i < 0 || i >= len(f.Locals) {
		return vmerr.Resourcef("local index %d out of range [0, %d)", i, len(f.Locals))
	}
	f.Locals[i] = v
	return nil
}
