/*
 * classvm - a class-file virtual machine
 * Derived from the Jacobin project. Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

// Package classtable is the runtime class table: it loads class files
// from disk into RawClass+ResolvedView pairs, tracks each class's
// initialization state, and resolves methods/fields by (name,
// descriptor). Grounded on the teacher's classloader.go
// (LoadClassFromFile/ParseAndPostClass/Init shape, trace-on-load
// idiom) generalized from Jacobin's multi-classloader/MethArea/JAR
// model down to the single flat table spec.md §4.7's state machine
// requires.
package classtable

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/samber/lo"

	"github.com/jacobin-classvm/classvm/internal/classfile"
	"github.com/jacobin-classvm/classvm/internal/frame"
	"github.com/jacobin-classvm/classvm/internal/trace"
	"github.com/jacobin-classvm/classvm/internal/vmerr"
)

// InitState is a class's position in the Unloaded -> Loaded ->
// Initializing -> Initialized state machine (spec.md §4.7).
type InitState int

const (
	Unloaded InitState = iota
	Loaded
	Initializing
	Initialized
)

// Method bundles a RawMethod's resolved attributes with its name and
// descriptor strings, looked up in the constant pool once at class-load
// time. The descriptor is kept as a string; callers parse it as needed.
type Method struct {
	Raw        classfile.RawMethod
	Name       string
	Descriptor string
	Attributes []classfile.ResolvedAttribute
}

// Code returns the method's Code attribute, or nil if it has none
// (abstract and native methods have no Code).
func (m *Method) Code() *classfile.Code {
	for _, a := range m.Attributes {
		if c, ok := a.(*classfile.Code); ok {
			return c
		}
	}
	return nil
}

// Field bundles a RawField with its resolved name/descriptor.
type Field struct {
	Raw        classfile.RawField
	Name       string
	Descriptor string
	Attributes []classfile.ResolvedAttribute
}

// RuntimeClass is a fully loaded, link-ready class: its constant pool,
// this/super names, members with descriptors pre-resolved, and its
// position in the initialization state machine.
type RuntimeClass struct {
	Raw   *classfile.RawClass
	Name  string
	Super string

	Fields  []Field
	Methods []Method

	mu    sync.Mutex
	state InitState
}

// State returns the class's current initialization state.
func (c *RuntimeClass) State() InitState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// MethodByNameAndDescriptor looks up a method by exact (name, descriptor).
func (c *RuntimeClass) MethodByNameAndDescriptor(name, descriptor string) (*Method, bool) {
	m, ok := lo.Find(c.Methods, func(m Method) bool {
		return m.Name == name && m.Descriptor == descriptor
	})
	if !ok {
		return nil, false
	}
	return &m, true
}

// FindEntryPoint selects the public static main([Ljava/lang/String;)V
// method, per spec.md §4.7.
func (c *RuntimeClass) FindEntryPoint() (*Method, bool) {
	m, ok := c.MethodByNameAndDescriptor("main", "([Ljava/lang/String;)V")
	if !ok {
		return nil, false
	}
	if !m.Raw.AccessFlags.IsPublic() || !m.Raw.AccessFlags.IsStatic() {
		return nil, false
	}
	return m, true
}

// FindInitMethod selects the static <clinit>:()V method, per spec.md §4.7.
func (c *RuntimeClass) FindInitMethod() (*Method, bool) {
	m, ok := c.MethodByNameAndDescriptor("<clinit>", "()V")
	if !ok || !m.Raw.AccessFlags.IsStatic() {
		return nil, false
	}
	return m, true
}

// FrameFor builds a fresh Frame sized from m's Code attribute, per
// spec.md §4.6's "for_method is the only path used at call-time".
func FrameFor(m *Method) (*frame.Frame, error) {
	code := m.Code()
	if code == nil {
		return nil, vmerr.Linkf(nil, "method %s%s has no Code attribute", m.Name, m.Descriptor)
	}
	f := frame.New(int(code.MaxStack), int(code.MaxLocals))
	f.MethodName = m.Name
	f.Descriptor = m.Descriptor
	return f, nil
}

// ClassTable is the flat, name-keyed table of loaded classes.
type ClassTable struct {
	mu      sync.RWMutex
	classes map[string]*RuntimeClass
}

// New constructs an empty class table.
func New() *ClassTable {
	return &ClassTable{classes: make(map[string]*RuntimeClass)}
}

// Get looks up a class by fully-qualified name.
func (ct *ClassTable) Get(name string) (*RuntimeClass, bool) {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	c, ok := ct.classes[name]
	return c, ok
}

// BeginInitializing transitions a Loaded class to Initializing and
// reports true, or reports false without changing state if the class
// is already Initializing or Initialized -- the guard that makes
// recursive/concurrent init_class calls a no-op per spec.md §4.7.
func (rc *RuntimeClass) BeginInitializing() bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.state == Initializing || rc.state == Initialized {
		return false
	}
	rc.state = Initializing
	return true
}

// FinishInitializing transitions rc to Initialized.
func (rc *RuntimeClass) FinishInitializing() {
	rc.mu.Lock()
	rc.state = Initialized
	rc.mu.Unlock()
}

func buildRuntimeClass(raw *classfile.RawClass) (*RuntimeClass, error) {
	name, err := raw.ThisClassName()
	if err != nil {
		return nil, err
	}
	super, err := raw.SuperClassName()
	if err != nil {
		return nil, err
	}

	methods := make([]Method, 0, len(raw.Methods))
	for _, rm := range raw.Methods {
		mname, err := raw.ConstantPool.Utf8At(rm.NameIndex)
		if err != nil {
			return nil, err
		}
		mdesc, err := raw.ConstantPool.Utf8At(rm.DescriptorIndex)
		if err != nil {
			return nil, err
		}
		attrs, err := classfile.ResolveAttributes(rm.Attributes, &raw.ConstantPool)
		if err != nil {
			return nil, vmerr.Linkf(err, "resolving attributes for method %s%s", mname, mdesc)
		}
		methods = append(methods, Method{Raw: rm, Name: mname, Descriptor: mdesc, Attributes: attrs})
	}

	fields := make([]Field, 0, len(raw.Fields))
	for _, rf := range raw.Fields {
		fname, err := raw.ConstantPool.Utf8At(rf.NameIndex)
		if err != nil {
			return nil, err
		}
		fdesc, err := raw.ConstantPool.Utf8At(rf.DescriptorIndex)
		if err != nil {
			return nil, err
		}
		attrs, err := classfile.ResolveAttributes(rf.Attributes, &raw.ConstantPool)
		if err != nil {
			return nil, vmerr.Linkf(err, "resolving attributes for field %s%s", fname, fdesc)
		}
		fields = append(fields, Field{Raw: rf, Name: fname, Descriptor: fdesc, Attributes: attrs})
	}

	return &RuntimeClass{
		Raw:     raw,
		Name:    name,
		Super:   super,
		Fields:  fields,
		Methods: methods,
		state:   Loaded,
	}, nil
}

// LoadBytes decodes rawBytes as a class file and installs it into the
// table, keyed by its own this_class name (the fname argument is used
// only for trace/diagnostic messages).
func (ct *ClassTable) LoadBytes(fname string, rawBytes []byte) (*RuntimeClass, error) {
	raw, err := classfile.Decode(bytes.NewReader(rawBytes))
	if err != nil {
		return nil, vmerr.Decodef(err, "decoding class file %s", fname)
	}
	rc, err := buildRuntimeClass(raw)
	if err != nil {
		return nil, vmerr.Linkf(err, "linking class file %s", fname)
	}

	ct.mu.Lock()
	ct.classes[rc.Name] = rc
	ct.mu.Unlock()

	trace.Info(fmt.Sprintf("loaded class %s from %s", rc.Name, fname))
	return rc, nil
}

// LoadFile reads and decodes a single class file from disk.
func (ct *ClassTable) LoadFile(fname string) (*RuntimeClass, error) {
	filename := fname
	if !strings.HasSuffix(filename, ".class") {
		filename += ".class"
	}
	rawBytes, err := os.ReadFile(filename)
	if err != nil {
		return nil, vmerr.Resourcef("reading class file %s: %v", filename, err)
	}
	return ct.LoadBytes(filename, rawBytes)
}

// LoadDirectory preloads every .class file directly under dir,
// skipping module-info.class, per spec.md §6's CLI contract.
func (ct *ClassTable) LoadDirectory(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return vmerr.Resourcef("reading library directory %s: %v", dir, err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".class") || e.Name() == "module-info.class" {
			continue
		}
		if _, err := ct.LoadFile(filepath.Join(dir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}
