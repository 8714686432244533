package vm

// ---------------------------------------------------------------------------
// Registry sweep
// ---------------------------------------------------------------------------

// CollectGarbage removes registry entries unreachable from the root set:
// the pinned objects and the global slots. Class method tables, constant
// pools, superclass chains, and metaclasses are traced.
//
// The compiler pins the function under construction and installs nested
// functions into their parent's constant pool before compiling their
// bodies, so a sweep at any point during compilation cannot reclaim
// partially built code.
func (v *VM) CollectGarbage() int {
	marked := make(map[uint32]bool, len(v.objects))

	var mark func(val Value)
	markObj := func(obj Obj) {
		if obj != nil {
			mark(FromHandle(obj.handle()))
		}
	}
	mark = func(val Value) {
		if !val.IsObj() {
			return
		}
		id := val.Handle()
		if marked[id] {
			return
		}
		obj, ok := v.objects[id]
		if !ok {
			return
		}
		marked[id] = true

		switch o := obj.(type) {
		case *ObjFn:
			for _, c := range o.Constants {
				mark(c)
			}
		case *ObjClass:
			// Check the concrete pointers: a nil *ObjClass boxed into Obj
			// is a non-nil interface.
			if o.Superclass != nil {
				markObj(o.Superclass)
			}
			if o.Metaclass != nil {
				markObj(o.Metaclass)
			}
			for _, m := range o.methods {
				if cm, ok := m.(*CompiledMethod); ok && cm.Fn != nil {
					markObj(cm.Fn)
				}
			}
		case *ObjInstance:
			if o.Class != nil {
				markObj(o.Class)
			}
		}
	}

	for id := range v.pinned {
		mark(FromHandle(id))
	}
	for _, val := range v.Globals {
		mark(val)
	}

	swept := 0
	for id := range v.objects {
		if !marked[id] {
			delete(v.objects, id)
			swept++
		}
	}
	return swept
}
