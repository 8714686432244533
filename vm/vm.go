package vm

import "strconv"

// ---------------------------------------------------------------------------
// VM: registry, symbol tables, and core classes
// ---------------------------------------------------------------------------

// VM holds the state shared between the compiler and the interpreter: the
// object registry, the global-variable and method-selector symbol tables,
// the global value slots, and the bootstrapped core classes.
//
// A VM is single-threaded: one compilation or execution runs to completion
// on its caller. Concurrent use of the same VM is not supported.
type VM struct {
	// GlobalSymbols maps top-level variable names to global slot indices.
	GlobalSymbols *SymbolTable

	// Methods maps arity-mangled selectors to selector IDs. Call sites
	// and method definitions must agree on the mangled name for dispatch
	// to line up.
	Methods *SymbolTable

	// Globals holds the value for each global symbol, indexed in step
	// with GlobalSymbols. Grown on demand; unset slots read as Null.
	Globals []Value

	// Core classes
	ObjectClass *ObjClass
	ClassClass  *ObjClass
	NumberClass *ObjClass
	StringClass *ObjClass
	BoolClass   *ObjClass
	NullClass   *ObjClass
	FnClass     *ObjClass

	// Object registry: handle -> object. Append-only except for sweeps.
	objects map[uint32]Obj
	nextID  uint32

	// pinned is the explicit GC root set. Values are pin counts so
	// nested pin/unpin pairs compose.
	pinned map[uint32]int

	interp *Interpreter
}

// NewVM creates a VM and bootstraps the core classes and primitives.
func NewVM() *VM {
	v := &VM{
		GlobalSymbols: NewSymbolTable(),
		Methods:       NewSymbolTable(),
		objects:       make(map[uint32]Obj),
		pinned:        make(map[uint32]int),
	}
	v.interp = &Interpreter{vm: v}
	v.bootstrap()
	return v
}

// ---------------------------------------------------------------------------
// Object registry
// ---------------------------------------------------------------------------

// register assigns a handle to obj and enters it in the registry.
func (v *VM) register(obj Obj) Value {
	v.nextID++
	id := v.nextID
	obj.setHandle(id)
	v.objects[id] = obj
	return FromHandle(id)
}

// Object returns the registered object for an object value, or nil if the
// handle is stale.
func (v *VM) Object(val Value) Obj {
	if !val.IsObj() {
		return nil
	}
	return v.objects[val.Handle()]
}

// ObjValue returns the handle value for a registered object.
func ObjValue(obj Obj) Value {
	return FromHandle(obj.handle())
}

// NumObjects returns the number of live registry entries.
func (v *VM) NumObjects() int {
	return len(v.objects)
}

// ---------------------------------------------------------------------------
// Constructors
// ---------------------------------------------------------------------------

// NewString constructs a string object and returns its handle value.
func (v *VM) NewString(s string) Value {
	obj := &ObjString{Value: s}
	return v.register(obj)
}

// NewFunction constructs an empty function object.
func (v *VM) NewFunction() *ObjFn {
	fn := &ObjFn{}
	v.register(fn)
	return fn
}

// NewClass constructs a class with the given superclass, along with its
// metaclass. The metaclass inherits from the class of classes so that
// constructor primitives resolve on every class.
func (v *VM) NewClass(name string, superclass *ObjClass) *ObjClass {
	meta := &ObjClass{Name: name + " metaclass", Superclass: v.ClassClass}
	v.register(meta)
	cls := &ObjClass{Name: name, Superclass: superclass, Metaclass: meta}
	v.register(cls)
	return cls
}

// NewInstance constructs an instance of cls.
func (v *VM) NewInstance(cls *ObjClass) Value {
	obj := &ObjInstance{Class: cls}
	return v.register(obj)
}

// ---------------------------------------------------------------------------
// Pin / Unpin
// ---------------------------------------------------------------------------

// Pin adds obj to the collector's root set. Pins nest: each Pin must be
// balanced by an Unpin before the object becomes collectable.
func (v *VM) Pin(obj Obj) {
	v.pinned[obj.handle()]++
}

// Unpin removes one pin from obj.
func (v *VM) Unpin(obj Obj) {
	id := obj.handle()
	if v.pinned[id] <= 1 {
		delete(v.pinned, id)
		return
	}
	v.pinned[id]--
}

// ---------------------------------------------------------------------------
// Globals
// ---------------------------------------------------------------------------

// GlobalValue returns the value stored in a global slot, or Null for a
// declared-but-unset slot.
func (v *VM) GlobalValue(symbol int) Value {
	if symbol < 0 || symbol >= len(v.Globals) {
		return Null
	}
	return v.Globals[symbol]
}

// SetGlobal stores a value into a global slot, growing the slot array as
// needed.
func (v *VM) SetGlobal(symbol int, val Value) {
	for len(v.Globals) <= symbol {
		v.Globals = append(v.Globals, Null)
	}
	v.Globals[symbol] = val
}

// DefineGlobal interns a name in the global symbol table and stores a value
// in its slot. Used by the bootstrap and by embedders.
func (v *VM) DefineGlobal(name string, val Value) int {
	symbol := v.GlobalSymbols.Ensure(name)
	v.SetGlobal(symbol, val)
	return symbol
}

// ---------------------------------------------------------------------------
// Dispatch support
// ---------------------------------------------------------------------------

// ClassOf returns the class of any value.
func (v *VM) ClassOf(val Value) *ObjClass {
	switch {
	case val.IsNum():
		return v.NumberClass
	case val == Null:
		return v.NullClass
	case val == True, val == False:
		return v.BoolClass
	}
	switch o := v.Object(val).(type) {
	case *ObjString:
		return v.StringClass
	case *ObjFn:
		return v.FnClass
	case *ObjClass:
		if o.Metaclass != nil {
			return o.Metaclass
		}
		return v.ClassClass
	case *ObjInstance:
		return o.Class
	}
	return v.ObjectClass
}

// Is reports whether val's class chain includes cls.
func (v *VM) Is(val Value, cls *ObjClass) bool {
	for c := v.ClassOf(val); c != nil; c = c.Superclass {
		if c == cls {
			return true
		}
	}
	return false
}

// Run executes a compiled top-level function and returns its result.
func (v *VM) Run(fn *ObjFn) (Value, error) {
	return v.interp.execute(fn, Null, nil)
}

// ---------------------------------------------------------------------------
// Stringification
// ---------------------------------------------------------------------------

// Stringify renders a value for user-facing output.
func (v *VM) Stringify(val Value) string {
	switch {
	case val == Null:
		return "null"
	case val == True:
		return "true"
	case val == False:
		return "false"
	case val.IsNum():
		return strconv.FormatFloat(val.Num(), 'g', -1, 64)
	}
	switch o := v.Object(val).(type) {
	case *ObjString:
		return o.Value
	case *ObjFn:
		return "fn"
	case *ObjClass:
		if o.Name == "" {
			return "class"
		}
		return o.Name
	case *ObjInstance:
		if o.Class.Name == "" {
			return "instance"
		}
		return "instance of " + o.Class.Name
	}
	return "object"
}
