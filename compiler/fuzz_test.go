package compiler

import (
	"io"
	"testing"

	"github.com/larklang/lark/vm"
)

// ---------------------------------------------------------------------------
// FuzzLexer: the lexer never panics and always terminates.
// ---------------------------------------------------------------------------

func FuzzLexer(f *testing.F) {
	seeds := []string{
		// Basic tokens
		`( ) [ ] { } : . , * / % + - | & !`,
		`== != <= >= = < >`,
		// Numbers
		`42`, `0`, `-7`, `3.14`, `-2.5`, `3.abs`,
		// Strings
		`"hello"`, `""`, `"unterminated`,
		// Keywords and names
		`class else false fn if is null static this true var`,
		`foo Bar _baz a1`,
		// Comments
		"// line comment\n1",
		`/* block */ 1`,
		`/* nested /* deeper */ out */ 1`,
		`/* unterminated`,
		// Newlines
		"1\n\n\n2", "1 +\n2", "\n\nvar x = 1\n",
		// Complete programs
		"var x = 1 + 2",
		"if (true) 1 else 2",
		"class Box {\n  add(a, b) { a + b }\n}\nBox.add(3, 4)",
		"class V {\n  + rhs { rhs }\n}",
		"var f = fn (a) { a }",
		// Edge cases
		``, `   `, "\t", `@`, `$#~`, `.`, `=`,
	}
	for _, s := range seeds {
		f.Add(s)
	}

	f.Fuzz(func(t *testing.T, data string) {
		p := &Parser{source: data, currentLine: 1, skipNewlines: true}
		for i := 0; i < len(data)+100; i++ {
			p.nextToken()
			if p.current.Type == TokenEOF {
				return
			}
		}
		t.Fatalf("lexer did not reach EOF on input %q", data)
	})
}

// ---------------------------------------------------------------------------
// FuzzCompile: the compiler never panics; it either produces a function or
// an error list, and a produced function has a terminating END.
// ---------------------------------------------------------------------------

func FuzzCompile(f *testing.F) {
	seeds := []string{
		"var x = 1 + 2",
		"if (true) 1 else 2",
		"if (false) 1",
		"class Box {\n  add(a, b) { a + b }\n}\nBox.add(3, 4)",
		"class C {\n  static make() { 5 }\n}\nC.make()",
		"class V {\n  + rhs { rhs }\n}\nvar v = V.new()\nv + 1",
		"class N {\n  - rhs { 10 }\n  - { 20 }\n}",
		"var f = fn (a, b) { a + b }",
		"var f = fn 42",
		"this",
		"nope",
		"var a = 1\nvar a = 2",
		"1\n+ 2",
		`"str" + "ing"`,
		"3 is Number",
		"{ 1\n2 }",
		"class A {}\nclass B is A {}",
		// Broken inputs
		"class {", "var", "var x", "if", "(", ")", "}", "fn", ".x", "x.",
		"class C { 123 }", "if (1", "a = ", "var = 1",
	}
	for _, s := range seeds {
		f.Add(s)
	}

	f.Fuzz(func(t *testing.T, data string) {
		v := vm.NewVM()
		fn, err := CompileWithDiagnostics(v, data, io.Discard)

		if fn == nil && err == nil {
			t.Fatal("compile returned neither a function nor an error")
		}
		if fn != nil && err != nil {
			t.Fatal("compile returned both a function and an error")
		}
		if fn != nil {
			if len(fn.Bytecode) == 0 {
				t.Fatal("compiled function has no bytecode")
			}
			if vm.Opcode(fn.Bytecode[len(fn.Bytecode)-1]) != vm.OpEnd {
				t.Fatalf("bytecode does not end with END: %v", fn.Bytecode)
			}
		}
	})
}
