package bytecode

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Text assembler
// ---------------------------------------------------------------------------

// Assemble translates assembly text into bytecode. Each line holds an
// optional "label:" and an optional instruction; ';' and '//' start
// comments. Operands are integers, "#n" constant pool indexes, or label
// names for branches. Switches are written as
//
//	tableswitch LOW default=L case0 case1 ...
//	lookupswitch default=L KEY:case KEY:case ...
//
// A "wide" prefix forces the wide encoding; one-byte local operands that
// do not fit are widened automatically.
func Assemble(src string) ([]byte, error) {
	a := &assembler{b: NewBuilder(), labels: make(map[string]*Label)}
	for i, line := range strings.Split(src, "\n") {
		if err := a.line(line); err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
	}
	all := make([]*Label, 0, len(a.labels))
	for _, name := range a.order {
		l := a.labels[name]
		if _, ok := l.Position(); !ok && len(l.refs) > 0 {
			return nil, fmt.Errorf("undefined label %q", name)
		}
		all = append(all, l)
	}
	return a.b.Finish(all...)
}

// MustAssemble is like Assemble but panics on error. Intended for tests
// and fixtures.
func MustAssemble(src string) []byte {
	code, err := Assemble(src)
	if err != nil {
		panic(err)
	}
	return code
}

type assembler struct {
	b      *Builder
	labels map[string]*Label
	order  []string
}

func (a *assembler) label(name string) *Label {
	if l, ok := a.labels[name]; ok {
		return l
	}
	l := a.b.NewLabel()
	a.labels[name] = l
	a.order = append(a.order, name)
	return l
}

func stripComment(line string) string {
	if i := strings.Index(line, "//"); i >= 0 {
		line = line[:i]
	}
	if i := strings.IndexByte(line, ';'); i >= 0 {
		line = line[:i]
	}
	return strings.TrimSpace(line)
}

func (a *assembler) line(line string) error {
	fields := strings.Fields(stripComment(line))
	for len(fields) > 0 && strings.HasSuffix(fields[0], ":") {
		name := strings.TrimSuffix(fields[0], ":")
		if name == "" {
			return fmt.Errorf("empty label")
		}
		l := a.label(name)
		if _, placed := l.Position(); placed {
			return fmt.Errorf("label %q defined twice", name)
		}
		a.b.Mark(l)
		fields = fields[1:]
	}
	if len(fields) == 0 {
		return nil
	}

	wide := false
	if fields[0] == "wide" {
		wide = true
		fields = fields[1:]
		if len(fields) == 0 {
			return fmt.Errorf("wide without instruction")
		}
	}
	op, ok := ByName(strings.ToLower(fields[0]))
	if !ok {
		return fmt.Errorf("unknown mnemonic %q", fields[0])
	}
	args := fields[1:]
	if wide && !op.Wideable() {
		return fmt.Errorf("%s cannot be widened", op)
	}
	return a.instruction(op, wide, args)
}

func (a *assembler) instruction(op Opcode, wide bool, args []string) error {
	want := func(n int) error {
		if len(args) != n {
			return fmt.Errorf("%s takes %d operand(s), got %d", op, n, len(args))
		}
		return nil
	}
	info := op.Info()

	switch {
	case op == OpTableswitch:
		return a.tableswitch(args)
	case op == OpLookupswitch:
		return a.lookupswitch(args)

	case op.IsBranch():
		if err := want(1); err != nil {
			return err
		}
		if off, err := parseInt(args[0]); err == nil {
			a.b.EmitJumpOffset(op, int(off))
			return nil
		}
		a.b.EmitJump(op, a.label(args[0]))
		return nil

	case op == OpIinc:
		if err := want(2); err != nil {
			return err
		}
		idx, err := parseInt(args[0])
		if err != nil {
			return err
		}
		delta, err := parseInt(args[1])
		if err != nil {
			return err
		}
		if wide || idx > 0xFF || delta < -128 || delta > 127 {
			a.b.EmitRaw(byte(OpWide), byte(OpIinc), byte(idx>>8), byte(idx), byte(delta>>8), byte(delta))
			return nil
		}
		a.b.EmitIinc(int(idx), int(delta))
		return nil

	case op.Wideable():
		if err := want(1); err != nil {
			return err
		}
		idx, err := parseInt(args[0])
		if err != nil {
			return err
		}
		if idx < 0 || idx > 0xFFFF {
			return fmt.Errorf("local index %d out of range", idx)
		}
		if wide || idx > 0xFF {
			a.b.EmitRaw(byte(OpWide), byte(op), byte(idx>>8), byte(idx))
			return nil
		}
		a.b.EmitByte(op, byte(idx))
		return nil

	case op == OpNewarray:
		if err := want(1); err != nil {
			return err
		}
		if code, ok := ArrayTypeCode(args[0]); ok {
			a.b.EmitByte(op, byte(code))
			return nil
		}
		v, err := parseInt(args[0])
		if err != nil {
			return err
		}
		a.b.EmitByte(op, byte(v))
		return nil

	case op == OpBipush:
		if err := want(1); err != nil {
			return err
		}
		v, err := parseInt(args[0])
		if err != nil {
			return err
		}
		a.b.EmitInt8(op, int8(v))
		return nil

	case op == OpSipush:
		if err := want(1); err != nil {
			return err
		}
		v, err := parseInt(args[0])
		if err != nil {
			return err
		}
		a.b.EmitInt16(op, int16(v))
		return nil

	case op == OpInvokeinterface || op == OpMultianewarray:
		if err := want(2); err != nil {
			return err
		}
		idx, err := parseInt(args[0])
		if err != nil {
			return err
		}
		n, err := parseInt(args[1])
		if err != nil {
			return err
		}
		if op == OpInvokeinterface {
			a.b.EmitInvokeInterface(uint16(idx), byte(n))
		} else {
			a.b.EmitMultiANewArray(uint16(idx), byte(n))
		}
		return nil

	case op == OpInvokedynamic:
		if err := want(1); err != nil {
			return err
		}
		idx, err := parseInt(args[0])
		if err != nil {
			return err
		}
		a.b.EmitUint16(op, uint16(idx))
		a.b.EmitRaw(0, 0)
		return nil

	case info.OperandBytes == 0:
		if err := want(0); err != nil {
			return err
		}
		a.b.Emit(op)
		return nil

	case info.OperandBytes == 1:
		if err := want(1); err != nil {
			return err
		}
		v, err := parseInt(args[0])
		if err != nil {
			return err
		}
		a.b.EmitByte(op, byte(v))
		return nil

	default:
		if err := want(1); err != nil {
			return err
		}
		v, err := parseInt(args[0])
		if err != nil {
			return err
		}
		a.b.EmitUint16(op, uint16(v))
		return nil
	}
}

func (a *assembler) defaultLabel(arg string) (*Label, error) {
	name, ok := strings.CutPrefix(arg, "default=")
	if !ok || name == "" {
		return nil, fmt.Errorf("expected default=LABEL, got %q", arg)
	}
	return a.label(name), nil
}

func (a *assembler) tableswitch(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("tableswitch needs LOW and default=LABEL")
	}
	low, err := parseInt(args[0])
	if err != nil {
		return err
	}
	def, err := a.defaultLabel(args[1])
	if err != nil {
		return err
	}
	cases := make([]*Label, 0, len(args)-2)
	for _, name := range args[2:] {
		cases = append(cases, a.label(name))
	}
	if len(cases) == 0 {
		return fmt.Errorf("tableswitch needs at least one case")
	}
	a.b.EmitTableSwitch(int32(low), def, cases...)
	return nil
}

func (a *assembler) lookupswitch(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("lookupswitch needs default=LABEL")
	}
	def, err := a.defaultLabel(args[0])
	if err != nil {
		return err
	}
	cases := make([]SwitchCase, 0, len(args)-1)
	for _, arg := range args[1:] {
		k, name, ok := strings.Cut(arg, ":")
		if !ok || name == "" {
			return fmt.Errorf("expected KEY:LABEL, got %q", arg)
		}
		key, err := parseInt(k)
		if err != nil {
			return err
		}
		cases = append(cases, SwitchCase{Key: int32(key), Target: a.label(name)})
	}
	sort.Slice(cases, func(i, j int) bool { return cases[i].Key < cases[j].Key })
	for i := 1; i < len(cases); i++ {
		if cases[i].Key == cases[i-1].Key {
			return fmt.Errorf("duplicate lookupswitch key %d", cases[i].Key)
		}
	}
	a.b.EmitLookupSwitch(def, cases...)
	return nil
}

// parseInt accepts decimal, 0x hex and "#n" constant pool references.
func parseInt(s string) (int64, error) {
	s = strings.TrimPrefix(s, "#")
	v, err := strconv.ParseInt(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("bad operand %q", s)
	}
	return v, nil
}
