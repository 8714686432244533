package compiler

import (
	"fmt"
	"io"
	"strconv"

	"github.com/larklang/lark/vm"
)

// ---------------------------------------------------------------------------
// Parser state
// ---------------------------------------------------------------------------

// Parser holds the lexing and token state shared by every compiler scope in
// one compilation.
type Parser struct {
	vm *vm.VM

	// The source being compiled. Tokens slice into it.
	source string

	// The index in source of the beginning of the currently-lexed token.
	tokenStart int

	// The position of the current character being lexed.
	currentChar int

	// The 1-based line number of currentChar.
	currentLine int

	// The most recently lexed token.
	current Token

	// The most recently consumed token.
	previous Token

	// True if subsequent newline tokens should be discarded.
	skipNewlines bool

	// Sticky: once any error has been reported it stays set and the entry
	// point withholds the compiled function.
	hasError bool

	errors []CompileError
	errw   io.Writer
}

// ---------------------------------------------------------------------------
// Driver primitives
// ---------------------------------------------------------------------------

// peek returns the type of the current token.
func (c *Compiler) peek() TokenType {
	return c.parser.current.Type
}

// match consumes the current token if its type is expected. Returns true if
// a token was consumed.
func (c *Compiler) match(expected TokenType) bool {
	if c.peek() != expected {
		return false
	}
	c.parser.nextToken()
	return true
}

// consume advances past the current token and reports errorMessage if the
// token consumed was not of the expected type. Advancing even on a
// mismatch keeps the parser moving, so an error cascade is bounded by the
// rest of the file.
func (c *Compiler) consume(expected TokenType, errorMessage string) {
	c.parser.nextToken()
	if c.parser.previous.Type != expected {
		c.error("%s", errorMessage)
	}
}

// error reports a diagnostic against the previous token and sets the sticky
// error flag.
func (c *Compiler) error(format string, args ...interface{}) {
	p := c.parser
	p.hasError = true

	ce := CompileError{
		Line:    p.previous.Line,
		Lexeme:  p.previous.Text(p.source),
		Message: fmt.Sprintf(format, args...),
	}
	p.errors = append(p.errors, ce)
	fmt.Fprintf(p.errw, "%s\n", ce)
}

// ---------------------------------------------------------------------------
// Precedence and grammar rules
// ---------------------------------------------------------------------------

type precedence int

const (
	precNone precedence = iota
	precLowest
	precAssignment // =
	precIs         // is
	precEquality   // == !=
	precComparison // < > <= >=
	precBitwise    // | &
	precTerm       // + -
	precFactor     // * / %
	precUnary      // unary - !
	precCall       // . ()
)

type grammarFn func(c *Compiler, allowAssignment bool)

type signatureFn func(c *Compiler, sel *selectorBuilder)

// grammarRule is one row of the Pratt table: how a token parses in prefix
// position, in infix position, and as a method name in a class body, plus
// its infix precedence and its operator selector.
type grammarRule struct {
	prefix     grammarFn
	infix      grammarFn
	signature  signatureFn
	precedence precedence
	name       string
}

// rules is indexed by token type. Populated in init to keep the mutually
// recursive handlers out of an initialization cycle.
var rules [numTokenTypes]grammarRule

func init() {
	prefix := func(fn grammarFn) grammarRule {
		return grammarRule{prefix: fn}
	}
	infixOperator := func(prec precedence, name string) grammarRule {
		return grammarRule{
			infix:      (*Compiler).infixOp,
			signature:  (*Compiler).infixSignature,
			precedence: prec,
			name:       name,
		}
	}

	rules[TokenLParen] = prefix((*Compiler).grouping)
	rules[TokenDot] = grammarRule{infix: (*Compiler).call, precedence: precCall}

	rules[TokenStar] = infixOperator(precFactor, "* ")
	rules[TokenSlash] = infixOperator(precFactor, "/ ")
	rules[TokenPercent] = infixOperator(precFactor, "% ")
	rules[TokenPlus] = infixOperator(precTerm, "+ ")

	// Minus is both unary and infix; its signature parses an optional
	// parameter so a class can define either form.
	rules[TokenMinus] = grammarRule{
		prefix:     (*Compiler).unaryOp,
		infix:      (*Compiler).infixOp,
		signature:  (*Compiler).mixedSignature,
		precedence: precTerm,
		name:       "- ",
	}

	rules[TokenBang] = grammarRule{
		prefix:    (*Compiler).unaryOp,
		signature: (*Compiler).unarySignature,
		name:      "!",
	}

	rules[TokenLt] = infixOperator(precComparison, "< ")
	rules[TokenGt] = infixOperator(precComparison, "> ")
	rules[TokenLtEq] = infixOperator(precComparison, "<= ")
	rules[TokenGtEq] = infixOperator(precComparison, ">= ")
	rules[TokenEqEq] = infixOperator(precEquality, "== ")
	rules[TokenBangEq] = infixOperator(precEquality, "!= ")

	rules[TokenFalse] = prefix((*Compiler).boolean)
	rules[TokenTrue] = prefix((*Compiler).boolean)
	rules[TokenFn] = prefix((*Compiler).function)
	rules[TokenIs] = grammarRule{infix: (*Compiler).is, precedence: precIs}
	rules[TokenNull] = prefix((*Compiler).null)
	rules[TokenThis] = prefix((*Compiler).this)

	rules[TokenName] = grammarRule{
		prefix:    (*Compiler).name,
		signature: (*Compiler).parameterList,
	}
	rules[TokenNumber] = prefix((*Compiler).number)
	rules[TokenString] = prefix((*Compiler).string)
}

// ---------------------------------------------------------------------------
// Pratt core
// ---------------------------------------------------------------------------

// parsePrecedence is the main entry of the top-down operator precedence
// parser: one prefix handler for the token just consumed, then infix
// handlers while the next token binds at least as tightly as minPrec.
func (c *Compiler) parsePrecedence(allowAssignment bool, minPrec precedence) {
	c.parser.nextToken()
	prefix := rules[c.parser.previous.Type].prefix
	if prefix == nil {
		c.error("No prefix parser.")
		return
	}

	prefix(c, allowAssignment)

	for minPrec <= rules[c.peek()].precedence {
		c.parser.nextToken()
		infix := rules[c.parser.previous.Type].infix
		infix(c, allowAssignment)
	}
}

// expression parses the subset of expressions that can appear outside the
// top level of a block. It does not include statement-like forms such as
// variable declarations.
func (c *Compiler) expression(allowAssignment bool) {
	c.parsePrecedence(allowAssignment, precLowest)
}

// assignment parses an expression with assignment permitted.
func (c *Compiler) assignment() {
	c.expression(true)
}

// ---------------------------------------------------------------------------
// Prefix handlers
// ---------------------------------------------------------------------------

func (c *Compiler) grouping(allowAssignment bool) {
	c.expression(false)
	c.consume(TokenRParen, "Expect ')' after expression.")
}

// unaryOp compiles a unary operator like `-foo` as a zero-argument method
// call on the operand. The selector is the bare operator character, with
// no arity space.
func (c *Compiler) unaryOp(allowAssignment bool) {
	rule := &rules[c.parser.previous.Type]

	// Compile the operand.
	c.parsePrecedence(false, precUnary+1)

	symbol := c.parser.vm.Methods.Ensure(rule.name[:1])
	c.emitCall(0, symbol)
}

func (c *Compiler) boolean(allowAssignment bool) {
	if c.parser.previous.Type == TokenFalse {
		c.emitOp(vm.OpFalse)
	} else {
		c.emitOp(vm.OpTrue)
	}
}

func (c *Compiler) null(allowAssignment bool) {
	c.emitOp(vm.OpNull)
}

func (c *Compiler) number(allowAssignment bool) {
	text := c.parser.previous.Text(c.parser.source)

	value, err := strconv.ParseFloat(text, 64)
	if err != nil {
		c.error("Invalid number literal.")
		value = 0
	}

	constant := c.addConstant(vm.FromNum(value))
	c.emitOp(vm.OpConstant)
	c.emitByte(byte(constant))
}

func (c *Compiler) string(allowAssignment bool) {
	token := c.parser.previous

	// Drop the surrounding quotes. An unterminated string runs to the end
	// of the source with no closing quote.
	text := c.parser.source[token.Start+1 : token.End]
	if len(text) > 0 && text[len(text)-1] == '"' {
		text = text[:len(text)-1]
	}

	constant := c.addConstant(c.parser.vm.NewString(text))
	c.emitOp(vm.OpConstant)
	c.emitByte(byte(constant))
}

// name resolves an identifier against the current scope's locals, then the
// VM-wide globals. Enclosing local scopes are not searched: closures over
// outer locals are not supported.
func (c *Compiler) name(allowAssignment bool) {
	text := c.parser.previous.Text(c.parser.source)

	local := c.locals.Find(text)

	global := -1
	if local == -1 {
		global = c.parser.vm.GlobalSymbols.Find(text)
	}

	if local == -1 && global == -1 {
		c.error("Undefined variable.")
	}

	// A "=" after a bare name is a variable assignment.
	if c.match(TokenEq) {
		if !allowAssignment {
			c.error("Invalid assignment.")
		}

		// Compile the right-hand side.
		c.statement()

		if local != -1 {
			c.emitOp(vm.OpStoreLocal)
			c.emitByte(byte(local))
			return
		}

		c.emitOp(vm.OpStoreGlobal)
		c.emitByte(byte(global))
		return
	}

	if local != -1 {
		c.emitOp(vm.OpLoadLocal)
		c.emitByte(byte(local))
		return
	}

	c.emitOp(vm.OpLoadGlobal)
	c.emitByte(byte(global))
}

// this walks up the parent chain looking for an enclosing method. The
// receiver always lives in local slot 0.
func (c *Compiler) this(allowAssignment bool) {
	insideMethod := false
	for enclosing := c; enclosing != nil; enclosing = enclosing.parent {
		if enclosing.isMethod {
			insideMethod = true
			break
		}
	}

	if !insideMethod {
		c.error("Cannot use 'this' outside of a method.")
		return
	}

	c.emitOp(vm.OpLoadLocal)
	c.emitByte(0)
}

// ---------------------------------------------------------------------------
// Infix handlers
// ---------------------------------------------------------------------------

// call compiles a `.name(args)` method call. One space is appended to the
// selector per argument, so methods overload by arity; method definitions
// build the identical selector in method().
func (c *Compiler) call(allowAssignment bool) {
	var sel selectorBuilder
	numArgs := 0

	c.consume(TokenName, "Expect method name after '.'.")
	sel.writeString(c.parser.previous.Text(c.parser.source))

	// Parse the argument list, if any.
	if c.match(TokenLParen) {
		if c.peek() != TokenRParen {
			for {
				c.statement()

				numArgs++
				sel.space()

				if !c.match(TokenComma) {
					break
				}
			}
		}
		c.consume(TokenRParen, "Expect ')' after arguments.")
	}

	if numArgs > vm.MaxCallArgs {
		c.error("Cannot pass more than %d arguments to a method.", vm.MaxCallArgs)
		numArgs = vm.MaxCallArgs
	}
	if sel.overflowed {
		c.error("Method name too long.")
	}

	symbol := c.parser.vm.Methods.Ensure(sel.String())
	c.emitCall(numArgs, symbol)
}

func (c *Compiler) is(allowAssignment bool) {
	// Compile the right-hand side.
	c.parsePrecedence(false, precCall)

	c.emitOp(vm.OpIs)
}

// infixOp compiles a binary operator as a one-argument method call on the
// left-hand side. The selector carries the trailing arity space.
func (c *Compiler) infixOp(allowAssignment bool) {
	rule := &rules[c.parser.previous.Type]

	// Compile the right-hand side.
	c.parsePrecedence(false, rule.precedence+1)

	symbol := c.parser.vm.Methods.Ensure(rule.name)
	c.emitCall(1, symbol)
}

// ---------------------------------------------------------------------------
// Method signatures
// ---------------------------------------------------------------------------

// parameterList parses an optional parenthesized parameter list, declaring
// a local for each parameter and appending one arity space per parameter
// to the selector (when one is being built).
func (c *Compiler) parameterList(sel *selectorBuilder) {
	if !c.match(TokenLParen) {
		return
	}

	if c.peek() != TokenRParen {
		for {
			c.declareVariable()

			if sel != nil {
				sel.space()
			}

			if !c.match(TokenComma) {
				break
			}
		}
	}
	c.consume(TokenRParen, "Expect ')' after parameters.")
}

// infixSignature compiles the signature of an infix operator method:
// exactly one parameter.
func (c *Compiler) infixSignature(sel *selectorBuilder) {
	sel.space()
	c.declareVariable()
}

// unarySignature compiles the signature of a unary operator method: the
// name is already complete.
func (c *Compiler) unarySignature(sel *selectorBuilder) {
}

// mixedSignature compiles the signature of an operator that is either
// unary or infix. A parameter name makes it infix.
func (c *Compiler) mixedSignature(sel *selectorBuilder) {
	if c.peek() == TokenName {
		sel.space()
		c.declareVariable()
	}
}
