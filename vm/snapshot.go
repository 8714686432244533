package vm

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ---------------------------------------------------------------------------
// Snapshot: CBOR wire format for compiled code
// ---------------------------------------------------------------------------

// SnapshotMagic identifies a Lark snapshot.
const SnapshotMagic = "LARK"

// SnapshotVersion is the current wire format version.
// v1: initial format
const SnapshotVersion uint32 = 1

// cborEncMode uses canonical mode for deterministic encoding, so snapshot
// bytes are stable for identical input and can key the compile cache.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("vm: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

type snapshotFile struct {
	Magic     string      `cbor:"magic"`
	Version   uint32      `cbor:"version"`
	Globals   []string    `cbor:"globals"`
	Selectors []string    `cbor:"selectors"`
	Root      *snapshotFn `cbor:"root"`
}

type snapshotFn struct {
	Bytecode  []byte          `cbor:"bytecode"`
	Constants []snapshotValue `cbor:"constants"`
}

// snapshotValue is a constant-pool entry on the wire. Only the kinds a
// compiled-but-unexecuted program can contain are representable: numbers,
// strings, nested functions, and the literal specials.
type snapshotValue struct {
	Kind string      `cbor:"kind"` // "num", "str", "fn", "null", "true", "false"
	Num  float64     `cbor:"num,omitempty"`
	Str  string      `cbor:"str,omitempty"`
	Fn   *snapshotFn `cbor:"fn,omitempty"`
}

// MarshalSnapshot serializes a compiled top-level function, together with
// the global and selector name tables its operands index, to CBOR bytes.
func MarshalSnapshot(v *VM, fn *ObjFn) ([]byte, error) {
	root, err := v.snapshotFn(fn)
	if err != nil {
		return nil, err
	}
	file := &snapshotFile{
		Magic:     SnapshotMagic,
		Version:   SnapshotVersion,
		Globals:   v.GlobalSymbols.All(),
		Selectors: v.Methods.All(),
		Root:      root,
	}
	data, err := cborEncMode.Marshal(file)
	if err != nil {
		return nil, fmt.Errorf("encoding snapshot: %w", err)
	}
	return data, nil
}

func (v *VM) snapshotFn(fn *ObjFn) (*snapshotFn, error) {
	out := &snapshotFn{
		Bytecode:  append([]byte(nil), fn.Bytecode...),
		Constants: make([]snapshotValue, 0, len(fn.Constants)),
	}
	for _, c := range fn.Constants {
		switch {
		case c == Null:
			out.Constants = append(out.Constants, snapshotValue{Kind: "null"})
		case c == True:
			out.Constants = append(out.Constants, snapshotValue{Kind: "true"})
		case c == False:
			out.Constants = append(out.Constants, snapshotValue{Kind: "false"})
		case c.IsNum():
			out.Constants = append(out.Constants, snapshotValue{Kind: "num", Num: c.Num()})
		default:
			switch o := v.Object(c).(type) {
			case *ObjString:
				out.Constants = append(out.Constants, snapshotValue{Kind: "str", Str: o.Value})
			case *ObjFn:
				nested, err := v.snapshotFn(o)
				if err != nil {
					return nil, err
				}
				out.Constants = append(out.Constants, snapshotValue{Kind: "fn", Fn: nested})
			default:
				return nil, fmt.Errorf("snapshot: unsupported constant kind %T", o)
			}
		}
	}
	return out, nil
}

// UnmarshalSnapshot decodes snapshot bytes into v and returns the root
// function. Selector and global operands are remapped onto v's tables, so
// a snapshot loads correctly into a VM whose tables differ from the one
// that produced it.
func UnmarshalSnapshot(v *VM, data []byte) (*ObjFn, error) {
	var file snapshotFile
	if err := cbor.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	if file.Magic != SnapshotMagic {
		return nil, fmt.Errorf("decoding snapshot: bad magic %q", file.Magic)
	}
	if file.Version != SnapshotVersion {
		return nil, fmt.Errorf("decoding snapshot: unsupported version %d", file.Version)
	}
	if file.Root == nil {
		return nil, fmt.Errorf("decoding snapshot: missing root function")
	}

	globalMap := make([]int, len(file.Globals))
	for i, name := range file.Globals {
		globalMap[i] = v.GlobalSymbols.Ensure(name)
	}
	selectorMap := make([]int, len(file.Selectors))
	for i, name := range file.Selectors {
		selectorMap[i] = v.Methods.Ensure(name)
	}

	return v.restoreFn(file.Root, globalMap, selectorMap)
}

func (v *VM) restoreFn(sf *snapshotFn, globalMap, selectorMap []int) (*ObjFn, error) {
	fn := v.NewFunction()
	v.Pin(fn)
	defer v.Unpin(fn)

	for _, c := range sf.Constants {
		switch c.Kind {
		case "null":
			fn.Constants = append(fn.Constants, Null)
		case "true":
			fn.Constants = append(fn.Constants, True)
		case "false":
			fn.Constants = append(fn.Constants, False)
		case "num":
			fn.Constants = append(fn.Constants, FromNum(c.Num))
		case "str":
			fn.Constants = append(fn.Constants, v.NewString(c.Str))
		case "fn":
			nested, err := v.restoreFn(c.Fn, globalMap, selectorMap)
			if err != nil {
				return nil, err
			}
			fn.Constants = append(fn.Constants, ObjValue(nested))
		default:
			return nil, fmt.Errorf("decoding snapshot: unknown constant kind %q", c.Kind)
		}
	}

	code, err := remapBytecode(sf.Bytecode, globalMap, selectorMap)
	if err != nil {
		return nil, err
	}
	fn.Bytecode = code
	return fn, nil
}

// remapBytecode rewrites selector and global operands through the index
// maps. All other operands pass through untouched.
func remapBytecode(code []byte, globalMap, selectorMap []int) ([]byte, error) {
	out := append([]byte(nil), code...)

	remap := func(pos int, table []int, what string) error {
		old := int(out[pos])
		if old >= len(table) {
			return fmt.Errorf("decoding snapshot: %s index %d out of range", what, old)
		}
		idx := table[old]
		if idx > 255 {
			return fmt.Errorf("decoding snapshot: remapped %s index %d exceeds one byte", what, idx)
		}
		out[pos] = byte(idx)
		return nil
	}

	for pc := 0; pc < len(out); {
		op := Opcode(out[pc])
		info := op.Info()
		pc++

		switch {
		case op.IsCall():
			if err := remap(pc, selectorMap, "selector"); err != nil {
				return nil, err
			}
		case op == OpLoadGlobal || op == OpStoreGlobal:
			if err := remap(pc, globalMap, "global"); err != nil {
				return nil, err
			}
		case op == OpMethod:
			if err := remap(pc, selectorMap, "selector"); err != nil {
				return nil, err
			}
		}

		pc += info.OperandBytes
	}
	return out, nil
}
