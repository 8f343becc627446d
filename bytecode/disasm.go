package bytecode

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Disassembly
// ---------------------------------------------------------------------------

// ConstantNamer renders a constant pool index for disassembly listings.
type ConstantNamer func(index int) string

// FormatInstruction renders a decoded instruction as a single listing
// line. names may be nil.
func FormatInstruction(in Instruction, names ConstantNamer) string {
	name := in.Op.Name()
	if in.Wide {
		name = "wide " + name
	}
	cp := func(idx int) string {
		if names == nil {
			return fmt.Sprintf("#%d", idx)
		}
		return fmt.Sprintf("#%d // %s", idx, names(idx))
	}

	switch op := in.Op; {
	case op == OpBipush || op == OpSipush:
		return fmt.Sprintf("%04d  %s %d", in.Offset, name, in.Value)

	case op == OpIinc:
		return fmt.Sprintf("%04d  %s %d %d", in.Offset, name, in.Index, in.Value)

	case op.IsSwitch():
		var sb strings.Builder
		fmt.Fprintf(&sb, "%04d  %s default -> %04d", in.Offset, name, in.Default)
		for i, key := range in.Keys {
			fmt.Fprintf(&sb, "\n        %d -> %04d", key, in.Targets[i])
		}
		return sb.String()

	case op.IsBranch():
		return fmt.Sprintf("%04d  %s %d (-> %04d)", in.Offset, name, in.Target-in.Offset, in.Target)

	case op == OpInvokeinterface, op == OpMultianewarray:
		return fmt.Sprintf("%04d  %s %s %d", in.Offset, name, cp(in.Index), in.Value)

	case op == OpNewarray:
		return fmt.Sprintf("%04d  %s %s", in.Offset, name, ArrayTypeName(in.Index))

	case op == OpLdc || op == OpLdcW || op == OpLdc2W,
		op >= OpGetstatic && op <= OpInvokedynamic,
		op == OpNew, op == OpAnewarray, op == OpCheckcast, op == OpInstanceof:
		return fmt.Sprintf("%04d  %s %s", in.Offset, name, cp(in.Index))

	case in.Length > 1:
		return fmt.Sprintf("%04d  %s %d", in.Offset, name, in.Index)

	default:
		return fmt.Sprintf("%04d  %s", in.Offset, name)
	}
}

// Disassemble returns a full listing of code.
func Disassemble(code []byte) string {
	return DisassembleWith(code, nil)
}

// DisassembleWith returns a full listing of code, resolving constant pool
// references through names. Decoding stops at the first malformed
// instruction, which is reported in place.
func DisassembleWith(code []byte, names ConstantNamer) string {
	var lines []string
	for pc := 0; pc < len(code); {
		in, err := Decode(code, pc)
		if err != nil {
			lines = append(lines, fmt.Sprintf("%04d  ; %v", pc, err))
			break
		}
		lines = append(lines, FormatInstruction(in, names))
		pc = in.Next()
	}
	return strings.Join(lines, "\n")
}

// newarray element type codes.
const (
	TBoolean = 4
	TChar    = 5
	TFloat   = 6
	TDouble  = 7
	TByte    = 8
	TShort   = 9
	TInt     = 10
	TLong    = 11
)

var arrayTypeNames = map[int]string{
	TBoolean: "boolean",
	TChar:    "char",
	TFloat:   "float",
	TDouble:  "double",
	TByte:    "byte",
	TShort:   "short",
	TInt:     "int",
	TLong:    "long",
}

// ArrayTypeName returns the Java name of a newarray type code.
func ArrayTypeName(code int) string {
	if name, ok := arrayTypeNames[code]; ok {
		return name
	}
	return fmt.Sprintf("T_%d", code)
}

// ArrayTypeCode is the inverse of ArrayTypeName.
func ArrayTypeCode(name string) (int, bool) {
	for code, n := range arrayTypeNames {
		if n == name {
			return code, true
		}
	}
	return 0, false
}
