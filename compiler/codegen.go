package compiler

import (
	"io"
	"os"

	"github.com/larklang/lark/vm"
)

// ---------------------------------------------------------------------------
// Compiler: one scope frame per function/method body
// ---------------------------------------------------------------------------

// Compiler compiles one function body. Compilers nest: each function
// literal and method body gets its own, chained to the enclosing compiler
// through parent so `this`-legality can be searched upward. A nil parent
// marks the top level, where variable declarations go to the VM-wide
// global table instead of locals.
type Compiler struct {
	parser *Parser

	// The compiler for the block enclosing this one, or nil at the top
	// level.
	parent *Compiler

	// The function being populated.
	fn *vm.ObjFn

	// Declared local variables, in slot order. Slot 0 is the receiver in
	// method and function frames.
	locals *vm.SymbolTable

	// True if the function being compiled is a method.
	isMethod bool
}

func newCompiler(parser *Parser, parent *Compiler, isMethod bool) *Compiler {
	return &Compiler{
		parser:   parser,
		parent:   parent,
		fn:       parser.vm.NewFunction(),
		locals:   vm.NewSymbolTable(),
		isMethod: isMethod,
	}
}

// ---------------------------------------------------------------------------
// Emission
// ---------------------------------------------------------------------------

// emitByte appends one bytecode byte and returns its offset.
func (c *Compiler) emitByte(b byte) int {
	c.fn.Bytecode = append(c.fn.Bytecode, b)
	return len(c.fn.Bytecode) - 1
}

// emitOp appends one opcode and returns its offset.
func (c *Compiler) emitOp(op vm.Opcode) int {
	return c.emitByte(byte(op))
}

// emitCall appends a CALL_n instruction for the given selector.
func (c *Compiler) emitCall(numArgs, symbol int) {
	if symbol > 255 {
		c.error("Too many method selectors.")
		symbol = 255
	}
	c.emitOp(vm.OpCall0 + vm.Opcode(numArgs))
	c.emitByte(byte(symbol))
}

// addConstant appends a value to the constant pool and returns its index.
func (c *Compiler) addConstant(constant vm.Value) int {
	if len(c.fn.Constants) > 255 {
		c.error("Too many constants in one function.")
		return 255
	}
	c.fn.Constants = append(c.fn.Constants, constant)
	return len(c.fn.Constants) - 1
}

// patchJump back-patches the placeholder at offset with the distance from
// the byte after it to the current end of code.
func (c *Compiler) patchJump(offset int) {
	distance := len(c.fn.Bytecode) - offset - 1
	if distance > 255 {
		c.error("Too much code to jump over.")
		distance = 255
	}
	c.fn.Bytecode[offset] = byte(distance)
}

// ---------------------------------------------------------------------------
// Variables
// ---------------------------------------------------------------------------

// declareVariable parses a name token and declares a variable for it in the
// current scope, returning its symbol. Locals in a nested scope, globals at
// the top level.
func (c *Compiler) declareVariable() int {
	c.consume(TokenName, "Expect variable name.")

	symbols := c.parser.vm.GlobalSymbols
	if c.parent != nil {
		symbols = c.locals
	}

	symbol := symbols.Add(c.parser.previous.Text(c.parser.source))
	if symbol == -1 {
		c.error("Variable is already defined.")
	}
	if symbol > 255 {
		c.error("Too many variables.")
		symbol = 255
	}

	return symbol
}

// defineVariable stores the value on top of the stack into the previously
// declared symbol.
func (c *Compiler) defineVariable(symbol int) {
	if c.parent == nil {
		// A global: store the value into its slot. The value stays on
		// the stack as the statement's result.
		c.emitOp(vm.OpStoreGlobal)
		c.emitByte(byte(symbol))
		return
	}

	// A local: the value already sits in the variable's slot. Duplicate
	// it so the POP the surrounding block emits between statements
	// discards the copy and leaves the local in place.
	c.emitOp(vm.OpDup)
}

// ---------------------------------------------------------------------------
// Statements and definitions
// ---------------------------------------------------------------------------

// statement parses any expression, plus the statement-only forms `if` and
// curly blocks, that can appear at the top level of a block.
func (c *Compiler) statement() {
	if c.match(TokenIf) {
		// Compile the condition.
		c.consume(TokenLParen, "Expect '(' after 'if'.")
		c.assignment()
		c.consume(TokenRParen, "Expect ')' after if condition.")

		c.emitOp(vm.OpJumpIf)
		ifJump := c.emitByte(255)

		// Compile the then branch.
		c.statement()

		// Jump over the else branch when the then branch is taken.
		c.emitOp(vm.OpJump)
		elseJump := c.emitByte(255)

		c.patchJump(ifJump)

		if c.match(TokenElse) {
			c.statement()
		} else {
			// An if always yields a value.
			c.emitOp(vm.OpNull)
		}

		c.patchJump(elseJump)
		return
	}

	if c.match(TokenLBrace) {
		c.finishBody("Expect '}' after block body.")
		return
	}

	c.assignment()
}

// finishBody compiles definitions until the closing brace, discarding each
// statement's value except the last. Shared by curly blocks, function
// bodies, and method bodies.
func (c *Compiler) finishBody(closeMessage string) {
	for {
		c.definition()

		// No newline means the closing brace is on the same line.
		if !c.match(TokenLine) {
			c.consume(TokenRBrace, closeMessage)
			break
		}

		if c.match(TokenRBrace) {
			break
		}

		// Discard the result of the previous statement.
		c.emitOp(vm.OpPop)
	}
}

// definition parses name-binding statements: class definitions and variable
// declarations, which only appear at the top level of a block.
func (c *Compiler) definition() {
	if c.match(TokenClass) {
		// Create a variable to store the class in.
		symbol := c.declareVariable()

		// Load the superclass, if there is one.
		if c.match(TokenIs) {
			c.parsePrecedence(false, precCall)
			c.emitOp(vm.OpSubclass)
		} else {
			c.emitOp(vm.OpClass)
		}

		// Compile the method definitions. The class stays on the stack
		// for each METHOD to target.
		c.consume(TokenLBrace, "Expect '{' after class name.")

		for !c.match(TokenRBrace) {
			isStatic := c.match(TokenStatic)

			// Look at the signature rule before consuming, so operator
			// tokens parse as method names.
			signature := rules[c.peek()].signature
			c.parser.nextToken()

			if signature == nil {
				c.error("Expect method definition.")
				break
			}

			c.method(isStatic, signature)
			c.consume(TokenLine, "Expect newline after definition in class.")
		}

		// Store the finished class in its name.
		c.defineVariable(symbol)
		return
	}

	if c.match(TokenVar) {
		symbol := c.declareVariable()

		c.consume(TokenEq, "Expect '=' after variable name.")

		// Compile the initializer.
		c.statement()

		c.defineVariable(symbol)
		return
	}

	c.statement()
}

// ---------------------------------------------------------------------------
// Methods and function literals
// ---------------------------------------------------------------------------

// method compiles one method definition inside a class body. The signature
// function builds the arity-mangled selector while declaring the parameter
// locals, so the definition lands on the same selector a call site with
// the same base name and argument count constructs.
func (c *Compiler) method(isStatic bool, signature signatureFn) {
	methodCompiler := newCompiler(c.parser, c, true)

	// Add the method's function to the constant pool immediately so it is
	// reachable while its body is compiled.
	constant := c.addConstant(vm.ObjValue(methodCompiler.fn))

	// Reserve slot 0 for the receiver so parameters get the right slots.
	methodCompiler.locals.Add("(this)")

	// Build the method name.
	var sel selectorBuilder
	sel.writeString(c.parser.previous.Text(c.parser.source))

	// Compile the method signature.
	signature(methodCompiler, &sel)

	if sel.overflowed {
		c.error("Method name too long.")
	}
	symbol := c.parser.vm.Methods.Ensure(sel.String())

	methodCompiler.consume(TokenLBrace, "Expect '{' to begin method body.")
	methodCompiler.finishBody("Expect '}' after method body.")
	methodCompiler.emitOp(vm.OpEnd)

	if isStatic {
		c.emitOp(vm.OpMetaclass)
	}

	// Define the method on the class (or metaclass) on top of the stack.
	if symbol > 255 {
		c.error("Too many method selectors.")
		symbol = 255
	}
	c.emitOp(vm.OpMethod)
	c.emitByte(byte(symbol))
	c.emitByte(byte(constant))

	if isStatic {
		// Balance the metaclass push.
		c.emitOp(vm.OpPop)
	}
}

// function compiles a `fn` literal expression.
func (c *Compiler) function(allowAssignment bool) {
	fnCompiler := newCompiler(c.parser, c, false)

	// Add the function to the constant pool immediately so it is
	// reachable while its body is compiled.
	constant := c.addConstant(vm.ObjValue(fnCompiler.fn))

	// Reserve slot 0 for the function object itself so later locals get
	// the right slot indices.
	fnCompiler.locals.Add("(this)")

	fnCompiler.parameterList(nil)

	if fnCompiler.match(TokenLBrace) {
		fnCompiler.finishBody("Expect '}' after function body.")
	} else {
		// Single expression body.
		fnCompiler.expression(false)
	}

	fnCompiler.emitOp(vm.OpEnd)

	// Compile the code to load the function.
	c.emitOp(vm.OpConstant)
	c.emitByte(byte(constant))
}

// ---------------------------------------------------------------------------
// Entry point
// ---------------------------------------------------------------------------

// Compile parses source to a function of top-level code for execution by v.
// Diagnostics go to standard error; on any error the function is withheld
// and the returned error is an *ErrorList carrying every diagnostic.
func Compile(v *vm.VM, source string) (*vm.ObjFn, error) {
	return CompileWithDiagnostics(v, source, os.Stderr)
}

// CompileWithDiagnostics is Compile with the diagnostic writer injected.
func CompileWithDiagnostics(v *vm.VM, source string, diagnostics io.Writer) (*vm.ObjFn, error) {
	if diagnostics == nil {
		diagnostics = io.Discard
	}
	parser := &Parser{
		vm:          v,
		source:      source,
		currentLine: 1,

		// Ignore leading newlines.
		skipNewlines: true,

		errw: diagnostics,
	}

	// Zero the current token; it is copied to previous on the first
	// advance.
	parser.current = Token{Type: TokenEOF}

	// Read the first token.
	parser.nextToken()

	compiler := newCompiler(parser, nil, false)

	// Keep the root function reachable while compilation allocates.
	v.Pin(compiler.fn)
	defer v.Unpin(compiler.fn)

	for {
		compiler.definition()

		// No newline means the end of the file is on the same line.
		if !compiler.match(TokenLine) {
			compiler.consume(TokenEOF, "Expect end of file.")
			break
		}

		if compiler.match(TokenEOF) {
			break
		}

		// Discard the result of the previous statement.
		compiler.emitOp(vm.OpPop)
	}

	compiler.emitOp(vm.OpEnd)

	if parser.hasError {
		return nil, &ErrorList{Errors: parser.errors}
	}
	return compiler.fn, nil
}
