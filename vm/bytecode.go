package vm

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode represents a single bytecode instruction. All operands are one
// byte each.
type Opcode byte

const (
	// OpConstant pushes constants[operand].
	OpConstant Opcode = iota

	// Literal pushes (no constant-pool entry).
	OpNull
	OpTrue
	OpFalse

	// Local slots. The operand is a dense slot index in the executing
	// frame; slot 0 is the receiver in method and function frames.
	OpLoadLocal
	OpStoreLocal

	// Globals. The operand indexes the VM-wide global symbol table.
	OpLoadGlobal
	OpStoreGlobal

	OpDup
	OpPop

	// Method invocation. OpCall0+k invokes with k arguments; the operand
	// is a selector index in the VM-wide method table. The receiver sits
	// below the arguments on the stack.
	OpCall0
	OpCall1
	OpCall2
	OpCall3
	OpCall4
	OpCall5
	OpCall6
	OpCall7
	OpCall8
	OpCall9
	OpCall10

	// Control flow. The operand is a forward distance from the byte after
	// the operand to the target.
	OpJump
	OpJumpIf

	// Pops a class, pops a value, pushes the type test.
	OpIs

	// Class construction. OpSubclass additionally pops the superclass.
	OpClass
	OpSubclass

	// Installs constants[operand2] as method selector operand1 on the
	// class at the top of the stack.
	OpMethod

	// Switches the target of the following OpMethod to the metaclass of
	// the class at the top of the stack.
	OpMetaclass

	OpEnd
)

// MaxCallArgs is the highest argument count representable by the
// OpCall0..OpCall10 opcode range.
const MaxCallArgs = 10

// ---------------------------------------------------------------------------
// Opcode metadata
// ---------------------------------------------------------------------------

// OpcodeInfo holds metadata about an opcode.
type OpcodeInfo struct {
	Name         string // human-readable name
	OperandBytes int    // number of operand bytes
}

var opcodeTable = map[Opcode]OpcodeInfo{
	OpConstant:    {"CONSTANT", 1},
	OpNull:        {"NULL", 0},
	OpTrue:        {"TRUE", 0},
	OpFalse:       {"FALSE", 0},
	OpLoadLocal:   {"LOAD_LOCAL", 1},
	OpStoreLocal:  {"STORE_LOCAL", 1},
	OpLoadGlobal:  {"LOAD_GLOBAL", 1},
	OpStoreGlobal: {"STORE_GLOBAL", 1},
	OpDup:         {"DUP", 0},
	OpPop:         {"POP", 0},
	OpJump:        {"JUMP", 1},
	OpJumpIf:      {"JUMP_IF", 1},
	OpIs:          {"IS", 0},
	OpClass:       {"CLASS", 0},
	OpSubclass:    {"SUBCLASS", 0},
	OpMethod:      {"METHOD", 2},
	OpMetaclass:   {"METACLASS", 0},
	OpEnd:         {"END", 0},
}

func init() {
	for i := 0; i <= MaxCallArgs; i++ {
		opcodeTable[OpCall0+Opcode(i)] = OpcodeInfo{fmt.Sprintf("CALL_%d", i), 1}
	}
}

// Info returns the metadata for an opcode.
func (op Opcode) Info() OpcodeInfo {
	if info, ok := opcodeTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN_%02X", byte(op)), OperandBytes: 0}
}

// Name returns the human-readable name for an opcode.
func (op Opcode) Name() string {
	return op.Info().Name
}

// IsCall returns true if op is one of the OpCall0..OpCall10 opcodes.
func (op Opcode) IsCall() bool {
	return op >= OpCall0 && op <= OpCall0+MaxCallArgs
}

// String implements the Stringer interface.
func (op Opcode) String() string {
	return op.Name()
}

// ---------------------------------------------------------------------------
// Disassembly
// ---------------------------------------------------------------------------

// DisassembleFn returns a readable listing of a function's bytecode, one
// instruction per line. Selector and global operands are resolved against
// the given tables when non-nil.
func DisassembleFn(fn *ObjFn, methods, globals *SymbolTable) string {
	var b strings.Builder
	code := fn.Bytecode
	for pc := 0; pc < len(code); {
		op := Opcode(code[pc])
		info := op.Info()
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%04d  %s", pc, info.Name)
		pc++

		switch {
		case op.IsCall():
			sel := int(code[pc])
			if methods != nil {
				fmt.Fprintf(&b, " %d (%q)", sel, methods.Name(sel))
			} else {
				fmt.Fprintf(&b, " %d", sel)
			}
			pc++

		case op == OpLoadGlobal || op == OpStoreGlobal:
			sym := int(code[pc])
			if globals != nil {
				fmt.Fprintf(&b, " %d (%s)", sym, globals.Name(sym))
			} else {
				fmt.Fprintf(&b, " %d", sym)
			}
			pc++

		case op == OpJump || op == OpJumpIf:
			dist := int(code[pc])
			fmt.Fprintf(&b, " %d (-> %04d)", dist, pc+1+dist)
			pc++

		case op == OpMethod:
			sel := int(code[pc])
			constIdx := int(code[pc+1])
			if methods != nil {
				fmt.Fprintf(&b, " %d (%q) const=%d", sel, methods.Name(sel), constIdx)
			} else {
				fmt.Fprintf(&b, " %d const=%d", sel, constIdx)
			}
			pc += 2

		default:
			for i := 0; i < info.OperandBytes; i++ {
				fmt.Fprintf(&b, " %d", code[pc])
				pc++
			}
		}
	}
	return b.String()
}
