package compiler

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/larklang/lark/vm"
)

// compileSource compiles source into a fresh VM, returning the VM alongside
// so tests can resolve symbol and selector indices.
func compileSource(t *testing.T, source string) (*vm.ObjFn, *vm.VM) {
	t.Helper()
	v := vm.NewVM()
	fn, err := CompileWithDiagnostics(v, source, io.Discard)
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}
	return fn, v
}

// compileError compiles source expecting failure and returns the error list.
func compileError(t *testing.T, source string) *ErrorList {
	t.Helper()
	v := vm.NewVM()
	fn, err := CompileWithDiagnostics(v, source, io.Discard)
	if err == nil {
		t.Fatalf("compile of %q succeeded, want error", source)
	}
	if fn != nil {
		t.Fatalf("compile of %q returned a function despite errors", source)
	}
	var list *ErrorList
	if !errors.As(err, &list) {
		t.Fatalf("error is %T, want *ErrorList", err)
	}
	return list
}

func hasMessage(list *ErrorList, fragment string) bool {
	for _, e := range list.Errors {
		if strings.Contains(e.Message, fragment) {
			return true
		}
	}
	return false
}

func expectBytecode(t *testing.T, fn *vm.ObjFn, want []byte) {
	t.Helper()
	if len(fn.Bytecode) != len(want) {
		t.Fatalf("bytecode = %v, want %v", fn.Bytecode, want)
	}
	for i := range want {
		if fn.Bytecode[i] != want[i] {
			t.Errorf("bytecode[%d] = %d, want %d\nfull: %v\nwant: %v",
				i, fn.Bytecode[i], want[i], fn.Bytecode, want)
			return
		}
	}
}

// ---------------------------------------------------------------------------
// Emitted opcode streams
// ---------------------------------------------------------------------------

func TestCompileGlobalVarArithmetic(t *testing.T) {
	fn, v := compileSource(t, "var x = 1 + 2")

	plus := v.Methods.Find("+ ")
	if plus == -1 {
		t.Fatal("selector \"+ \" not interned")
	}
	x := v.GlobalSymbols.Find("x")
	if x == -1 {
		t.Fatal("global x not declared")
	}

	expectBytecode(t, fn, []byte{
		byte(vm.OpConstant), 0,
		byte(vm.OpConstant), 1,
		byte(vm.OpCall1), byte(plus),
		byte(vm.OpStoreGlobal), byte(x),
		byte(vm.OpEnd),
	})

	if got := fn.Constants[0].Num(); got != 1 {
		t.Errorf("constants[0] = %v, want 1", got)
	}
	if got := fn.Constants[1].Num(); got != 2 {
		t.Errorf("constants[1] = %v, want 2", got)
	}
}

func TestCompileIfElse(t *testing.T) {
	fn, _ := compileSource(t, "if (true) 1 else 2")

	expectBytecode(t, fn, []byte{
		byte(vm.OpTrue),
		byte(vm.OpJumpIf), 4,
		byte(vm.OpConstant), 0,
		byte(vm.OpJump), 2,
		byte(vm.OpConstant), 1,
		byte(vm.OpEnd),
	})
}

func TestCompileIfWithoutElseYieldsNull(t *testing.T) {
	fn, _ := compileSource(t, "if (false) 1")

	expectBytecode(t, fn, []byte{
		byte(vm.OpFalse),
		byte(vm.OpJumpIf), 4,
		byte(vm.OpConstant), 0,
		byte(vm.OpJump), 1,
		byte(vm.OpNull),
		byte(vm.OpEnd),
	})
}

func TestCompileClassMethodAndCall(t *testing.T) {
	fn, v := compileSource(t, "class Box {\n  add(a, b) { a + b }\n}\nBox.add(3, 4)")

	sel := v.Methods.Find("add  ")
	if sel == -1 {
		t.Fatal("selector \"add  \" not interned")
	}
	box := v.GlobalSymbols.Find("Box")
	if box == -1 {
		t.Fatal("global Box not declared")
	}

	expectBytecode(t, fn, []byte{
		byte(vm.OpClass),
		byte(vm.OpMethod), byte(sel), 0,
		byte(vm.OpStoreGlobal), byte(box),
		byte(vm.OpPop),
		byte(vm.OpLoadGlobal), byte(box),
		byte(vm.OpConstant), 1,
		byte(vm.OpConstant), 2,
		byte(vm.OpCall2), byte(sel),
		byte(vm.OpEnd),
	})

	// The method body compiles against its own frame: receiver slot 0,
	// parameters 1 and 2.
	body, ok := v.Object(fn.Constants[0]).(*vm.ObjFn)
	if !ok {
		t.Fatal("constants[0] is not the method body")
	}
	plus := v.Methods.Find("+ ")
	expectBytecode(t, body, []byte{
		byte(vm.OpLoadLocal), 1,
		byte(vm.OpLoadLocal), 2,
		byte(vm.OpCall1), byte(plus),
		byte(vm.OpEnd),
	})
}

func TestCompileOperatorMethodSelector(t *testing.T) {
	fn, v := compileSource(t, "class V {\n  + rhs { rhs }\n}")

	sel := v.Methods.Find("+ ")
	if sel == -1 {
		t.Fatal("selector \"+ \" not interned")
	}

	// The method is installed under the same selector an infix call emits.
	if fn.Bytecode[1] != byte(vm.OpMethod) || fn.Bytecode[2] != byte(sel) {
		t.Errorf("expected METHOD %d, got bytecode %v", sel, fn.Bytecode)
	}
}

func TestCompileUnaryOperatorSelector(t *testing.T) {
	fn, v := compileSource(t, "var a = 1\n-a")

	neg := v.Methods.Find("-")
	if neg == -1 {
		t.Fatal("selector \"-\" not interned")
	}

	// The tail of the program is the unary call.
	tail := fn.Bytecode[len(fn.Bytecode)-3:]
	if tail[0] != byte(vm.OpCall0) || tail[1] != byte(neg) {
		t.Errorf("expected CALL_0 %d END, got %v", neg, tail)
	}
}

func TestCompileStaticMethod(t *testing.T) {
	fn, v := compileSource(t, "class C {\n  static make() { 5 }\n}")

	sel := v.Methods.Find("make")
	if sel == -1 {
		t.Fatal("selector \"make\" not interned")
	}

	c := v.GlobalSymbols.Find("C")
	expectBytecode(t, fn, []byte{
		byte(vm.OpClass),
		byte(vm.OpMetaclass),
		byte(vm.OpMethod), byte(sel), 0,
		byte(vm.OpPop),
		byte(vm.OpStoreGlobal), byte(c),
		byte(vm.OpEnd),
	})
}

func TestCompileFunctionLiteral(t *testing.T) {
	fn, v := compileSource(t, "var f = fn (a) { a }")

	body, ok := v.Object(fn.Constants[0]).(*vm.ObjFn)
	if !ok {
		t.Fatal("constants[0] is not the function body")
	}

	// Slot 0 is reserved for the function itself; the parameter is slot 1.
	expectBytecode(t, body, []byte{
		byte(vm.OpLoadLocal), 1,
		byte(vm.OpEnd),
	})
}

func TestCompileFunctionExpressionBody(t *testing.T) {
	fn, v := compileSource(t, "var f = fn 42")

	body, ok := v.Object(fn.Constants[0]).(*vm.ObjFn)
	if !ok {
		t.Fatal("constants[0] is not the function body")
	}
	expectBytecode(t, body, []byte{
		byte(vm.OpConstant), 0,
		byte(vm.OpEnd),
	})
}

func TestCompileIsExpression(t *testing.T) {
	fn, _ := compileSource(t, "3 is Number")

	tail := fn.Bytecode[len(fn.Bytecode)-2:]
	if tail[0] != byte(vm.OpIs) || tail[1] != byte(vm.OpEnd) {
		t.Errorf("expected IS END tail, got %v", fn.Bytecode)
	}
}

func TestCompileStringLiteral(t *testing.T) {
	fn, v := compileSource(t, `"hi"`)

	s, ok := v.Object(fn.Constants[0]).(*vm.ObjString)
	if !ok {
		t.Fatal("constants[0] is not a string")
	}
	if s.Value != "hi" {
		t.Errorf("string = %q, want %q", s.Value, "hi")
	}
}

func TestCompileNewlineContinuation(t *testing.T) {
	// A newline after "+" is elided, so this is one addition.
	fn, v := compileSource(t, "1 +\n2")

	plus := v.Methods.Find("+ ")
	expectBytecode(t, fn, []byte{
		byte(vm.OpConstant), 0,
		byte(vm.OpConstant), 1,
		byte(vm.OpCall1), byte(plus),
		byte(vm.OpEnd),
	})
}

func TestCompileStatementsSeparatedByNewline(t *testing.T) {
	fn, _ := compileSource(t, "1\n2")

	expectBytecode(t, fn, []byte{
		byte(vm.OpConstant), 0,
		byte(vm.OpPop),
		byte(vm.OpConstant), 1,
		byte(vm.OpEnd),
	})
}

// ---------------------------------------------------------------------------
// Jump invariants
// ---------------------------------------------------------------------------

// Every jump operand must land inside the function's code.
func TestJumpTargetsInBounds(t *testing.T) {
	sources := []string{
		"if (true) 1 else 2",
		"if (false) 1",
		"if (true) if (false) 1 else 2 else 3",
		"var a = 1\nif (a > 0) a = a + 1 else a = a - 1",
	}

	for _, src := range sources {
		fn, _ := compileSource(t, src)
		code := fn.Bytecode
		for pc := 0; pc < len(code); {
			op := vm.Opcode(code[pc])
			if op == vm.OpJump || op == vm.OpJumpIf {
				dist := int(code[pc+1])
				if target := pc + 2 + dist; target > len(code) {
					t.Errorf("compile(%q): jump at %d targets %d, code length %d",
						src, pc, target, len(code))
				}
			}
			pc += 1 + op.Info().OperandBytes
		}
	}
}

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

func TestErrorThisOutsideMethod(t *testing.T) {
	list := compileError(t, "this")
	if !hasMessage(list, "Cannot use 'this' outside of a method.") {
		t.Errorf("errors = %v", list.Errors)
	}
}

func TestErrorThisInFunctionAtTopLevel(t *testing.T) {
	list := compileError(t, "var f = fn { this }")
	if !hasMessage(list, "Cannot use 'this' outside of a method.") {
		t.Errorf("errors = %v", list.Errors)
	}
}

func TestThisInsideMethodAllowed(t *testing.T) {
	compileSource(t, "class P {\n  me() { this }\n}")
}

func TestThisInsideFunctionInsideMethodAllowed(t *testing.T) {
	compileSource(t, "class P {\n  me() { fn { this } }\n}")
}

func TestErrorUndefinedVariable(t *testing.T) {
	list := compileError(t, "nope")
	if !hasMessage(list, "Undefined variable.") {
		t.Errorf("errors = %v", list.Errors)
	}
}

func TestErrorDuplicateVariable(t *testing.T) {
	list := compileError(t, "var a = 1\nvar a = 2")
	if !hasMessage(list, "Variable is already defined.") {
		t.Errorf("errors = %v", list.Errors)
	}
}

// Nested blocks share one locals table, so redeclaring inside a block of
// the same function is a duplicate.
func TestErrorDuplicateLocalInNestedBlock(t *testing.T) {
	list := compileError(t, "var f = fn {\n  var a = 1\n  { var a = 2 }\n}")
	if !hasMessage(list, "Variable is already defined.") {
		t.Errorf("errors = %v", list.Errors)
	}
}

func TestErrorNoPrefixParser(t *testing.T) {
	list := compileError(t, "1\n+ 2")
	if !hasMessage(list, "No prefix parser.") {
		t.Errorf("errors = %v", list.Errors)
	}
}

func TestErrorInvalidAssignment(t *testing.T) {
	list := compileError(t, "var a = 1\n(a = 2)")
	if !hasMessage(list, "Invalid assignment.") {
		t.Errorf("errors = %v", list.Errors)
	}
}

func TestErrorUnknownByteDiagnosticLexeme(t *testing.T) {
	list := compileError(t, "@")
	if len(list.Errors) == 0 {
		t.Fatal("no errors recorded")
	}
	if list.Errors[0].Lexeme != "@" {
		t.Errorf("lexeme = %q, want %q", list.Errors[0].Lexeme, "@")
	}
	if list.Errors[0].Line != 1 {
		t.Errorf("line = %d, want 1", list.Errors[0].Line)
	}
}

func TestErrorsAreSticky(t *testing.T) {
	// Both errors surface in one compile; neither stops the parse.
	list := compileError(t, "nope1\nnope2")
	if len(list.Errors) < 2 {
		t.Errorf("errors = %v, want two undefined-variable reports", list.Errors)
	}
}

func TestErrorFormat(t *testing.T) {
	var buf strings.Builder
	v := vm.NewVM()
	_, err := CompileWithDiagnostics(v, "this", &buf)
	if err == nil {
		t.Fatal("want error")
	}
	want := "[Line 1] Error on 'this': Cannot use 'this' outside of a method.\n"
	if buf.String() != want {
		t.Errorf("diagnostic = %q, want %q", buf.String(), want)
	}
}

func TestErrorMissingParenAfterIf(t *testing.T) {
	list := compileError(t, "if true) 1")
	if !hasMessage(list, "Expect '(' after 'if'.") {
		t.Errorf("errors = %v", list.Errors)
	}
}

func TestErrorExpectMethodDefinition(t *testing.T) {
	list := compileError(t, "class C {\n  123\n}")
	if !hasMessage(list, "Expect method definition.") {
		t.Errorf("errors = %v", list.Errors)
	}
}

func TestErrorVarRequiresInitializer(t *testing.T) {
	list := compileError(t, "var a\n")
	if !hasMessage(list, "Expect '=' after variable name.") {
		t.Errorf("errors = %v", list.Errors)
	}
}

// ---------------------------------------------------------------------------
// Receiver slot
// ---------------------------------------------------------------------------

// Slot 0 holds the receiver; user parameters start at slot 1 and the
// reserved name is not visible to user code.
func TestReceiverSlotReserved(t *testing.T) {
	fn, v := compileSource(t, "class P {\n  first(a) { a }\n}")

	body := v.Object(fn.Constants[0]).(*vm.ObjFn)
	expectBytecode(t, body, []byte{
		byte(vm.OpLoadLocal), 1,
		byte(vm.OpEnd),
	})
}

func TestCompileEmptyArgumentList(t *testing.T) {
	fn, v := compileSource(t, "Number.new()")

	sel := v.Methods.Find("new")
	if sel == -1 {
		t.Fatal("selector \"new\" not interned")
	}
	tail := fn.Bytecode[len(fn.Bytecode)-3:]
	if tail[0] != byte(vm.OpCall0) || tail[1] != byte(sel) {
		t.Errorf("expected CALL_0 %d, got %v", sel, tail)
	}
}

func TestCompileSubclass(t *testing.T) {
	fn, _ := compileSource(t, "class A {}\nclass B is A {}")

	// The second class must load A and emit SUBCLASS.
	found := false
	for pc := 0; pc < len(fn.Bytecode); {
		op := vm.Opcode(fn.Bytecode[pc])
		if op == vm.OpSubclass {
			found = true
		}
		pc += 1 + op.Info().OperandBytes
	}
	if !found {
		t.Errorf("no SUBCLASS in %v", fn.Bytecode)
	}
}
