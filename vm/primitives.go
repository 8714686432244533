package vm

import "math"

// ---------------------------------------------------------------------------
// Core class bootstrap and primitives
// ---------------------------------------------------------------------------

// bootstrap creates the core classes and installs the operator and
// constructor primitives. Operator selectors follow the arity-in-selector
// convention the compiler emits: a binary operator method is the operator
// character followed by one space, a unary operator is the bare character.
func (v *VM) bootstrap() {
	// Object and Class first; every other metaclass chains to ClassClass.
	v.ObjectClass = &ObjClass{Name: "Object"}
	v.register(v.ObjectClass)
	v.ClassClass = &ObjClass{Name: "Class", Superclass: v.ObjectClass}
	v.register(v.ClassClass)
	v.ObjectClass.Metaclass = v.ClassClass
	v.ClassClass.Metaclass = v.ClassClass

	v.NumberClass = v.NewClass("Number", v.ObjectClass)
	v.StringClass = v.NewClass("String", v.ObjectClass)
	v.BoolClass = v.NewClass("Bool", v.ObjectClass)
	v.NullClass = v.NewClass("Null", v.ObjectClass)
	v.FnClass = v.NewClass("Fn", v.ObjectClass)

	v.DefineGlobal("Object", ObjValue(v.ObjectClass))
	v.DefineGlobal("Class", ObjValue(v.ClassClass))
	v.DefineGlobal("Number", ObjValue(v.NumberClass))
	v.DefineGlobal("String", ObjValue(v.StringClass))
	v.DefineGlobal("Bool", ObjValue(v.BoolClass))
	v.DefineGlobal("Null", ObjValue(v.NullClass))
	v.DefineGlobal("Fn", ObjValue(v.FnClass))

	v.installObjectPrimitives()
	v.installNumberPrimitives()
	v.installStringPrimitives()
	v.installBoolPrimitives()
	v.installNullPrimitives()
	v.installClassPrimitives()
}

// primitive installs a Go-implemented method on cls under the given
// (already mangled) selector.
func (v *VM) primitive(cls *ObjClass, selector string, fn Primitive) {
	cls.SetMethod(v.Methods.Ensure(selector), fn)
}

func (v *VM) installObjectPrimitives() {
	v.primitive(v.ObjectClass, "== ", func(v *VM, receiver Value, args []Value) (Value, error) {
		return FromBool(receiver == args[0]), nil
	})
	v.primitive(v.ObjectClass, "!= ", func(v *VM, receiver Value, args []Value) (Value, error) {
		return FromBool(receiver != args[0]), nil
	})
	v.primitive(v.ObjectClass, "toString", func(v *VM, receiver Value, args []Value) (Value, error) {
		return v.NewString(v.Stringify(receiver)), nil
	})
	v.primitive(v.ObjectClass, "type", func(v *VM, receiver Value, args []Value) (Value, error) {
		return ObjValue(v.ClassOf(receiver)), nil
	})
}

func numBinary(name string, fn func(a, b float64) (Value, error)) Primitive {
	return func(v *VM, receiver Value, args []Value) (Value, error) {
		if !args[0].IsNum() {
			return Null, runtimeErrorf("right operand of '%s' must be a number", name)
		}
		return fn(receiver.Num(), args[0].Num())
	}
}

func (v *VM) installNumberPrimitives() {
	num := v.NumberClass

	v.primitive(num, "+ ", numBinary("+", func(a, b float64) (Value, error) {
		return FromNum(a + b), nil
	}))
	v.primitive(num, "- ", numBinary("-", func(a, b float64) (Value, error) {
		return FromNum(a - b), nil
	}))
	v.primitive(num, "* ", numBinary("*", func(a, b float64) (Value, error) {
		return FromNum(a * b), nil
	}))
	v.primitive(num, "/ ", numBinary("/", func(a, b float64) (Value, error) {
		return FromNum(a / b), nil
	}))
	v.primitive(num, "% ", numBinary("%", func(a, b float64) (Value, error) {
		return FromNum(math.Mod(a, b)), nil
	}))
	v.primitive(num, "< ", numBinary("<", func(a, b float64) (Value, error) {
		return FromBool(a < b), nil
	}))
	v.primitive(num, "> ", numBinary(">", func(a, b float64) (Value, error) {
		return FromBool(a > b), nil
	}))
	v.primitive(num, "<= ", numBinary("<=", func(a, b float64) (Value, error) {
		return FromBool(a <= b), nil
	}))
	v.primitive(num, ">= ", numBinary(">=", func(a, b float64) (Value, error) {
		return FromBool(a >= b), nil
	}))

	v.primitive(num, "== ", func(v *VM, receiver Value, args []Value) (Value, error) {
		return FromBool(args[0].IsNum() && receiver.Num() == args[0].Num()), nil
	})
	v.primitive(num, "!= ", func(v *VM, receiver Value, args []Value) (Value, error) {
		return FromBool(!args[0].IsNum() || receiver.Num() != args[0].Num()), nil
	})

	// Unary negation: the selector is the bare operator character.
	v.primitive(num, "-", func(v *VM, receiver Value, args []Value) (Value, error) {
		return FromNum(-receiver.Num()), nil
	})
	v.primitive(num, "abs", func(v *VM, receiver Value, args []Value) (Value, error) {
		return FromNum(math.Abs(receiver.Num())), nil
	})
	v.primitive(num, "floor", func(v *VM, receiver Value, args []Value) (Value, error) {
		return FromNum(math.Floor(receiver.Num())), nil
	})
	v.primitive(num, "ceil", func(v *VM, receiver Value, args []Value) (Value, error) {
		return FromNum(math.Ceil(receiver.Num())), nil
	})
}

func (v *VM) installStringPrimitives() {
	str := v.StringClass

	v.primitive(str, "+ ", func(v *VM, receiver Value, args []Value) (Value, error) {
		rhs, ok := v.Object(args[0]).(*ObjString)
		if !ok {
			return Null, runtimeErrorf("right operand of '+' must be a string")
		}
		lhs := v.Object(receiver).(*ObjString)
		return v.NewString(lhs.Value + rhs.Value), nil
	})
	v.primitive(str, "== ", func(v *VM, receiver Value, args []Value) (Value, error) {
		rhs, ok := v.Object(args[0]).(*ObjString)
		if !ok {
			return False, nil
		}
		return FromBool(v.Object(receiver).(*ObjString).Value == rhs.Value), nil
	})
	v.primitive(str, "!= ", func(v *VM, receiver Value, args []Value) (Value, error) {
		rhs, ok := v.Object(args[0]).(*ObjString)
		if !ok {
			return True, nil
		}
		return FromBool(v.Object(receiver).(*ObjString).Value != rhs.Value), nil
	})
	v.primitive(str, "count", func(v *VM, receiver Value, args []Value) (Value, error) {
		return FromNum(float64(len(v.Object(receiver).(*ObjString).Value))), nil
	})
}

func (v *VM) installBoolPrimitives() {
	v.primitive(v.BoolClass, "!", func(v *VM, receiver Value, args []Value) (Value, error) {
		return FromBool(receiver == False), nil
	})
}

func (v *VM) installNullPrimitives() {
	v.primitive(v.NullClass, "!", func(v *VM, receiver Value, args []Value) (Value, error) {
		return True, nil
	})
}

func (v *VM) installClassPrimitives() {
	v.primitive(v.ClassClass, "new", func(v *VM, receiver Value, args []Value) (Value, error) {
		cls, ok := v.Object(receiver).(*ObjClass)
		if !ok {
			return Null, runtimeErrorf("receiver of 'new' must be a class")
		}
		return v.NewInstance(cls), nil
	})
	v.primitive(v.ClassClass, "name", func(v *VM, receiver Value, args []Value) (Value, error) {
		cls, ok := v.Object(receiver).(*ObjClass)
		if !ok {
			return Null, runtimeErrorf("receiver of 'name' must be a class")
		}
		return v.NewString(cls.Name), nil
	})
}
