package vm

// ---------------------------------------------------------------------------
// Object model
// ---------------------------------------------------------------------------

// Obj is a heap-allocated Lark object. Objects live in the VM's registry
// and are referenced from Values by a 32-bit handle, so the registry (plus
// the pin set) determines what the collector may reclaim.
type Obj interface {
	setHandle(id uint32)
	handle() uint32
}

// objHeader carries the registry handle common to all object kinds.
type objHeader struct {
	id uint32
}

func (h *objHeader) setHandle(id uint32) { h.id = id }
func (h *objHeader) handle() uint32      { return h.id }

// ObjString is an immutable string object.
type ObjString struct {
	objHeader
	Value string
}

// ObjFn is a unit of compiled code: a flat bytecode buffer plus the
// constant pool it indexes. The top-level program, each function literal,
// and each method body compile to one ObjFn.
type ObjFn struct {
	objHeader
	Bytecode  []byte
	Constants []Value
}

// ObjClass is a class: a name (empty for classes created by the CLASS and
// SUBCLASS opcodes), an optional superclass, a metaclass holding static
// methods, and a dense method slice indexed by selector ID.
type ObjClass struct {
	objHeader
	Name       string
	Superclass *ObjClass
	Metaclass  *ObjClass
	methods    []Method
}

// ObjInstance is an instance of a user-defined class.
type ObjInstance struct {
	objHeader
	Class *ObjClass
}

// ---------------------------------------------------------------------------
// Methods
// ---------------------------------------------------------------------------

// Method is a callable installed on a class under a selector ID.
type Method interface {
	Invoke(v *VM, receiver Value, args []Value) (Value, error)
}

// Primitive is a method implemented in Go.
type Primitive func(v *VM, receiver Value, args []Value) (Value, error)

// Invoke implements Method.
func (p Primitive) Invoke(v *VM, receiver Value, args []Value) (Value, error) {
	return p(v, receiver, args)
}

// CompiledMethod is a method whose body is compiled bytecode.
type CompiledMethod struct {
	Fn *ObjFn
}

// Invoke implements Method.
func (m *CompiledMethod) Invoke(v *VM, receiver Value, args []Value) (Value, error) {
	return v.interp.execute(m.Fn, receiver, args)
}

// ---------------------------------------------------------------------------
// Class method dispatch
// ---------------------------------------------------------------------------

// SetMethod installs a method under a selector ID, growing the dense slice
// as needed.
func (c *ObjClass) SetMethod(selector int, m Method) {
	for len(c.methods) <= selector {
		c.methods = append(c.methods, nil)
	}
	c.methods[selector] = m
}

// LookupLocal returns the method installed directly on this class, or nil.
func (c *ObjClass) LookupLocal(selector int) Method {
	if selector < 0 || selector >= len(c.methods) {
		return nil
	}
	return c.methods[selector]
}

// Lookup resolves a selector against this class and its superclass chain.
func (c *ObjClass) Lookup(selector int) Method {
	for cls := c; cls != nil; cls = cls.Superclass {
		if m := cls.LookupLocal(selector); m != nil {
			return m
		}
	}
	return nil
}

// NumLocalMethods returns the count of methods installed directly on this
// class.
func (c *ObjClass) NumLocalMethods() int {
	n := 0
	for _, m := range c.methods {
		if m != nil {
			n++
		}
	}
	return n
}

// LocalSelectors returns the selector IDs of methods installed directly on
// this class, in ID order.
func (c *ObjClass) LocalSelectors() []int {
	var ids []int
	for id, m := range c.methods {
		if m != nil {
			ids = append(ids, id)
		}
	}
	return ids
}
