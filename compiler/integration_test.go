package compiler

import (
	"io"
	"testing"

	"github.com/larklang/lark/vm"
)

// run compiles and executes source, returning the program's result value.
func run(t *testing.T, source string) (vm.Value, *vm.VM) {
	t.Helper()
	v := vm.NewVM()
	fn, err := CompileWithDiagnostics(v, source, io.Discard)
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}
	result, err := v.Run(fn)
	if err != nil {
		t.Fatalf("runtime error: %v", err)
	}
	return result, v
}

func expectNum(t *testing.T, source string, want float64) {
	t.Helper()
	result, _ := run(t, source)
	if !result.IsNum() || result.Num() != want {
		t.Errorf("run(%q) = %v, want %v", source, result, want)
	}
}

func expectBool(t *testing.T, source string, want bool) {
	t.Helper()
	result, _ := run(t, source)
	if result != vm.FromBool(want) {
		t.Errorf("run(%q) = %v, want %v", source, result, want)
	}
}

func TestRunArithmetic(t *testing.T) {
	expectNum(t, "1 + 2", 3)
	expectNum(t, "10 - 4", 6)
	expectNum(t, "6 * 7", 42)
	expectNum(t, "9 / 2", 4.5)
	expectNum(t, "9 % 4", 1)
	expectNum(t, "1 + 2 * 3", 7)
	expectNum(t, "(1 + 2) * 3", 9)
}

func TestRunUnaryOperators(t *testing.T) {
	expectNum(t, "var a = 5\n-a", -5)
	expectBool(t, "!true", false)
	expectBool(t, "!false", true)
	expectBool(t, "!null", true)
}

func TestRunComparison(t *testing.T) {
	expectBool(t, "1 < 2", true)
	expectBool(t, "2 <= 2", true)
	expectBool(t, "3 > 4", false)
	expectBool(t, "4 >= 5", false)
	expectBool(t, "1 == 1", true)
	expectBool(t, "1 != 1", false)
	expectBool(t, `"a" == "a"`, true)
	expectBool(t, `"a" == "b"`, false)
}

func TestRunGlobalVariable(t *testing.T) {
	expectNum(t, "var x = 1 + 2\nx", 3)
	expectNum(t, "var x = 1\nx = 5\nx", 5)
}

func TestRunIfExpression(t *testing.T) {
	expectNum(t, "if (true) 1 else 2", 1)
	expectNum(t, "if (false) 1 else 2", 2)

	result, _ := run(t, "if (false) 1")
	if result != vm.Null {
		t.Errorf("if without else = %v, want null", result)
	}
}

func TestRunNewlineContinuation(t *testing.T) {
	expectNum(t, "1 +\n2", 3)
	expectNum(t, "(\n1 +\n2)", 3)
}

func TestRunStringConcat(t *testing.T) {
	result, v := run(t, `"foo" + "bar"`)
	s, ok := v.Object(result).(*vm.ObjString)
	if !ok || s.Value != "foobar" {
		t.Errorf("concat = %v, want foobar", v.Stringify(result))
	}
}

func TestRunMethodCallWithArityMangling(t *testing.T) {
	expectNum(t, "class Box {\n  add(a, b) { a + b }\n}\nvar b = Box.new()\nb.add(3, 4)", 7)
}

// The arity symmetry law: the selector installed for m(a, b) is the same
// selector a two-argument call constructs.
func TestRunAritySymmetry(t *testing.T) {
	source := "class M {\n  m(a, b) { a }\n  m(a) { a + 100 }\n}\nvar x = M.new()\nx.m(1, 2) + x.m(1)"
	expectNum(t, source, 102)
}

func TestRunOperatorOverload(t *testing.T) {
	expectNum(t, "class V {\n  + rhs { rhs }\n}\nvar v = V.new()\nv + 1", 1)
}

func TestRunMixedOperatorDefinitions(t *testing.T) {
	// "-" defined both unary and binary on the same class.
	source := "class N {\n  - rhs { 10 }\n  - { 20 }\n}\nvar n = N.new()\n(n - 1) + -n"
	expectNum(t, source, 30)
}

func TestRunStaticMethod(t *testing.T) {
	expectNum(t, "class C {\n  static make() { 5 }\n}\nC.make()", 5)
}

func TestRunThisReturnsReceiver(t *testing.T) {
	result, v := run(t, "class P {\n  me() { this }\n}\nvar p = P.new()\np.me()")
	p := v.GlobalValue(v.GlobalSymbols.Find("p"))
	if result != p {
		t.Errorf("me() = %v, want the receiver %v", result, p)
	}
}

func TestRunIsExpression(t *testing.T) {
	expectBool(t, "3 is Number", true)
	expectBool(t, `3 is String`, false)
	expectBool(t, `"x" is String`, true)
	expectBool(t, "class A {}\nvar a = A.new()\na is A", true)
	expectBool(t, "class A {}\nclass B {}\nvar a = A.new()\na is B", false)
}

func TestRunSubclassInheritsMethods(t *testing.T) {
	source := "class A {\n  f() { 1 }\n}\nclass B is A {}\nvar b = B.new()\nb.f()"
	expectNum(t, source, 1)

	expectBool(t, "class A {}\nclass B is A {}\nvar b = B.new()\nb is A", true)
}

func TestRunMethodParamsAreLocals(t *testing.T) {
	// Parameters occupy slots after the receiver and assignment sticks.
	source := "class C {\n  f(a) {\n  a = a + 1\n  a\n  }\n}\nvar c = C.new()\nc.f(41)"
	expectNum(t, source, 42)
}

func TestRunBlockDiscardsIntermediateValues(t *testing.T) {
	expectNum(t, "{\n1\n2\n3\n}", 3)
}

func TestRunLocalVariableInFunctionFrame(t *testing.T) {
	// The DUP emitted for a local definition cancels the POP between
	// statements, leaving the local in its slot.
	source := "class C {\n  f() {\n  var a = 1\n  var b = 2\n  a + b\n  }\n}\nvar c = C.new()\nc.f()"
	expectNum(t, source, 3)
}

func TestRunMethodNotFound(t *testing.T) {
	v := vm.NewVM()
	fn, err := CompileWithDiagnostics(v, "3.frobnicate", io.Discard)
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}
	if _, err := v.Run(fn); err == nil {
		t.Error("expected a runtime error for an unimplemented method")
	}
}

func TestRunOperatorsAreJustMethods(t *testing.T) {
	// Dispatch on "+ " goes through the same table as named methods.
	_, v := run(t, "1 + 2")
	if v.Methods.Find("+ ") == -1 {
		t.Error("binary + did not intern its selector")
	}
}

func TestRunNumberMethods(t *testing.T) {
	expectNum(t, "3.abs", 3)
	expectNum(t, "(0 - 3).abs", 3)
	expectNum(t, "3.7.floor", 3)
	expectNum(t, "3.2.ceil", 4)
}

func TestRunComments(t *testing.T) {
	expectNum(t, "// comment\n1 + 2", 3)
	expectNum(t, "1 + /* inline */ 2", 3)
	expectNum(t, "/* nested /* comment */ here */ 7", 7)
}
