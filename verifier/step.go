package verifier

import (
	"fmt"

	"github.com/chazu/keel/bytecode"
	"github.com/chazu/keel/classfile"
	"github.com/chazu/keel/lattice"
)

// step applies one instruction to a copy of its entry state.
type step struct {
	mv *method
	in bytecode.Instruction
	f  *Frame
	h  lattice.Hierarchy
}

func (s *step) fail(kind Kind, format string, args ...any) error {
	return s.mv.reject(s.in.Offset, s.in.Op, kind, fmt.Sprintf(format, args...))
}

// operand describes what an instruction accepts in one stack position.
type operand struct {
	desc  string
	wide  bool
	match func(lattice.Type) bool
}

func exact(t lattice.Type) operand {
	return operand{
		desc:  t.String(),
		wide:  t.IsWide(),
		match: func(v lattice.Type) bool { return v == t },
	}
}

var (
	opInt    = exact(lattice.Int)
	opFloat  = exact(lattice.Float)
	opLong   = exact(lattice.LongLo)
	opDouble = exact(lattice.DoubleLo)
	opRef    = operand{desc: "reference", match: lattice.Type.IsReference}
	opArray  = operand{desc: "array", match: func(t lattice.Type) bool {
		return t.IsArray() || t == lattice.Null
	}}
)

// assignable accepts values usable where t is declared.
func (s *step) assignable(t lattice.Type) operand {
	if !t.IsReference() {
		return exact(t)
	}
	h := s.h
	return operand{
		desc:  t.String(),
		match: func(v lattice.Type) bool { return lattice.IsAssignable(v, t, h) },
	}
}

func slotsOf(ops []operand) int {
	n := 0
	for _, op := range ops {
		if op.wide {
			n += 2
		} else {
			n++
		}
	}
	return n
}

// require checks that at least n slots are on the stack.
func (s *step) require(n int) error {
	if have := len(s.f.Stack); have < n {
		return s.fail(KindStackUnderflow, "needs %d stack slots, have %d", n, have)
	}
	return nil
}

// pop removes values matching ops, listed deepest first, and returns
// them. Wide values are returned as their low half.
func (s *step) pop(ops ...operand) ([]lattice.Type, error) {
	n := slotsOf(ops)
	if err := s.require(n); err != nil {
		return nil, err
	}
	stack := s.f.Stack
	pos := len(stack) - n
	vals := make([]lattice.Type, len(ops))
	for i, op := range ops {
		t := stack[pos]
		ok := op.match(t)
		width := 1
		if op.wide {
			width = 2
			ok = ok && stack[pos+1] == t.High()
		}
		if !ok {
			return nil, s.fail(KindTypeMismatch, "operand %d: expected %s, got %s", i+1, op.desc, t)
		}
		vals[i] = t
		pos += width
	}
	s.f.Stack = stack[:len(stack)-n]
	return vals, nil
}

// push appends values, two slots for wide ones, failing if max_stack
// would be exceeded.
func (s *step) push(ts ...lattice.Type) error {
	n := 0
	for _, t := range ts {
		n += t.Slots()
	}
	if len(s.f.Stack)+n > s.mv.m.MaxStack {
		return s.fail(KindStackOverflow, "pushing %d slots onto height %d exceeds max_stack %d",
			n, len(s.f.Stack), s.mv.m.MaxStack)
	}
	for _, t := range ts {
		switch {
		case t == lattice.Void:
		case t.IsWide():
			s.f.Stack = append(s.f.Stack, t, t.High())
		default:
			s.f.Stack = append(s.f.Stack, t)
		}
	}
	return nil
}

// signature is the fixed effect of an instruction with no operands to
// resolve: pop these, push those.
type signature struct {
	pops   []operand
	pushes []lattice.Type
}

func (s *step) apply(sg signature) error {
	if _, err := s.pop(sg.pops...); err != nil {
		return err
	}
	return s.push(sg.pushes...)
}

// constant checks a constant pool index and that its tag is one of
// allowed.
func (s *step) constant(index int, allowed ...classfile.Tag) (classfile.Tag, error) {
	pool := s.mv.cls.Pool
	tag := pool.Tag(index)
	if tag == classfile.TagNone {
		return tag, s.fail(KindConstantPool, "index %d out of range (count %d)", index, pool.Count())
	}
	for _, a := range allowed {
		if tag == a {
			return tag, nil
		}
	}
	return tag, s.fail(KindConstantPool, "entry %d is %s, expected %v", index, tag, allowed)
}

// checkTargets rejects branches and switches whose targets are not
// instruction boundaries.
func (s *step) checkTargets() error {
	var targets []int
	switch {
	case s.in.Op.IsSwitch():
		targets = append(targets, s.in.Default)
		targets = append(targets, s.in.Targets...)
	case s.in.Op.IsBranch():
		targets = append(targets, s.in.Target)
	}
	for _, t := range targets {
		if t < 0 || t >= len(s.mv.code) {
			return s.fail(KindBadTarget, "target %d outside code of length %d", t, len(s.mv.code))
		}
		if !s.mv.bound[t] {
			return s.fail(KindBadTarget, "target %d is inside an instruction", t)
		}
	}
	return nil
}

// successors lists where control goes after a successful step. Returns
// and athrow have none.
func (s *step) successors() []int {
	return s.in.Successors()
}

// execute checks preconditions and applies the instruction's effect to
// s.f. Checks run in a fixed order: local index, constant pool entry,
// jump targets, stack depth, operand types, stack limit.
func (s *step) execute() error {
	op := s.in.Op
	switch op {
	case bytecode.OpJsr, bytecode.OpJsrW, bytecode.OpRet:
		return s.fail(KindUnsupported, "subroutines are not supported")
	case bytecode.OpInvokedynamic:
		return s.fail(KindUnsupported, "invokedynamic is not supported")
	}
	if err := s.checkTargets(); err != nil {
		return err
	}
	if sg, ok := simpleOps[op]; ok {
		return s.apply(sg)
	}
	if lo, index, ok := localAccess(s.in); ok {
		return s.local(lo, index)
	}
	switch op {
	case bytecode.OpIinc:
		return s.iinc()
	case bytecode.OpLdc, bytecode.OpLdcW, bytecode.OpLdc2W:
		return s.ldc()
	case bytecode.OpPop, bytecode.OpPop2, bytecode.OpDup, bytecode.OpDupX1, bytecode.OpDupX2,
		bytecode.OpDup2, bytecode.OpDup2X1, bytecode.OpDup2X2, bytecode.OpSwap:
		return s.stackOp()
	case bytecode.OpIreturn, bytecode.OpLreturn, bytecode.OpFreturn, bytecode.OpDreturn,
		bytecode.OpAreturn, bytecode.OpReturn:
		return s.ret()
	case bytecode.OpGetstatic, bytecode.OpPutstatic, bytecode.OpGetfield, bytecode.OpPutfield:
		return s.field()
	case bytecode.OpInvokevirtual, bytecode.OpInvokespecial, bytecode.OpInvokestatic, bytecode.OpInvokeinterface:
		return s.invoke()
	case bytecode.OpNew, bytecode.OpCheckcast, bytecode.OpInstanceof:
		return s.classOp()
	}
	if s.isArrayOp() {
		return s.arrayOp()
	}
	return s.fail(KindUnsupported, "no verification rule for %s", op)
}
