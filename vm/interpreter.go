package vm

import "fmt"

// ---------------------------------------------------------------------------
// Interpreter: stack machine over the Lark opcode set
// ---------------------------------------------------------------------------

// RuntimeError is an error raised while executing bytecode.
type RuntimeError struct {
	Message string
}

func (e *RuntimeError) Error() string {
	return e.Message
}

func runtimeErrorf(format string, args ...interface{}) error {
	return &RuntimeError{Message: fmt.Sprintf(format, args...)}
}

// Interpreter executes compiled functions against a VM. Each execute call
// owns its own value stack; nested calls recurse through Go.
type Interpreter struct {
	vm *VM
}

// execute runs fn with the receiver in local slot 0 and the arguments in
// the following slots. It returns the value left on top of the stack when
// OpEnd is reached, or Null for an empty frame.
func (in *Interpreter) execute(fn *ObjFn, receiver Value, args []Value) (Value, error) {
	v := in.vm

	stack := make([]Value, 0, 16)
	stack = append(stack, receiver)
	stack = append(stack, args...)

	push := func(val Value) { stack = append(stack, val) }
	pop := func() Value {
		val := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return val
	}

	code := fn.Bytecode
	for pc := 0; pc < len(code); {
		op := Opcode(code[pc])
		pc++

		switch {
		case op == OpConstant:
			idx := int(code[pc])
			pc++
			if idx >= len(fn.Constants) {
				return Null, runtimeErrorf("constant index %d out of range", idx)
			}
			push(fn.Constants[idx])

		case op == OpNull:
			push(Null)
		case op == OpTrue:
			push(True)
		case op == OpFalse:
			push(False)

		case op == OpLoadLocal:
			slot := int(code[pc])
			pc++
			if slot >= len(stack) {
				return Null, runtimeErrorf("local slot %d out of range", slot)
			}
			push(stack[slot])

		case op == OpStoreLocal:
			slot := int(code[pc])
			pc++
			if slot >= len(stack) {
				return Null, runtimeErrorf("local slot %d out of range", slot)
			}
			stack[slot] = stack[len(stack)-1]

		case op == OpLoadGlobal:
			symbol := int(code[pc])
			pc++
			push(v.GlobalValue(symbol))

		case op == OpStoreGlobal:
			symbol := int(code[pc])
			pc++
			v.SetGlobal(symbol, stack[len(stack)-1])

		case op == OpDup:
			push(stack[len(stack)-1])

		case op == OpPop:
			pop()

		case op.IsCall():
			numArgs := int(op - OpCall0)
			symbol := int(code[pc])
			pc++

			recvIdx := len(stack) - 1 - numArgs
			if recvIdx < 0 {
				return Null, runtimeErrorf("stack underflow in call")
			}
			recv := stack[recvIdx]

			cls := v.ClassOf(recv)
			method := cls.Lookup(symbol)
			if method == nil {
				clsName := cls.Name
				if clsName == "" {
					clsName = "object"
				}
				return Null, runtimeErrorf("%s does not implement '%s'",
					clsName, v.Methods.Name(symbol))
			}

			result, err := method.Invoke(v, recv, stack[recvIdx+1:])
			if err != nil {
				return Null, err
			}
			stack = stack[:recvIdx]
			push(result)

		case op == OpJump:
			dist := int(code[pc])
			pc++
			pc += dist

		case op == OpJumpIf:
			dist := int(code[pc])
			pc++
			if pop().IsFalsey() {
				pc += dist
			}

		case op == OpIs:
			clsVal := pop()
			val := pop()
			cls, ok := v.Object(clsVal).(*ObjClass)
			if !ok {
				return Null, runtimeErrorf("right operand of 'is' must be a class")
			}
			push(FromBool(v.Is(val, cls)))

		case op == OpClass:
			cls := v.NewClass("", v.ObjectClass)
			push(ObjValue(cls))

		case op == OpSubclass:
			sup, ok := v.Object(pop()).(*ObjClass)
			if !ok {
				return Null, runtimeErrorf("superclass must be a class")
			}
			cls := v.NewClass("", sup)
			push(ObjValue(cls))

		case op == OpMethod:
			symbol := int(code[pc])
			constIdx := int(code[pc+1])
			pc += 2

			cls, ok := v.Object(stack[len(stack)-1]).(*ObjClass)
			if !ok {
				return Null, runtimeErrorf("method target must be a class")
			}
			if constIdx >= len(fn.Constants) {
				return Null, runtimeErrorf("method constant index %d out of range", constIdx)
			}
			body, ok := v.Object(fn.Constants[constIdx]).(*ObjFn)
			if !ok {
				return Null, runtimeErrorf("method body must be a function")
			}
			cls.SetMethod(symbol, &CompiledMethod{Fn: body})

		case op == OpMetaclass:
			cls, ok := v.Object(stack[len(stack)-1]).(*ObjClass)
			if !ok {
				return Null, runtimeErrorf("metaclass target must be a class")
			}
			push(ObjValue(cls.Metaclass))

		case op == OpEnd:
			if len(stack) == 0 {
				return Null, nil
			}
			return stack[len(stack)-1], nil

		default:
			return Null, runtimeErrorf("unknown opcode %d", byte(op))
		}
	}

	// Fell off the end without OpEnd; treat like an empty frame.
	return Null, nil
}
