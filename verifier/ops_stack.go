package verifier

import (
	"github.com/chazu/keel/bytecode"
	"github.com/chazu/keel/lattice"
)

// stackShape describes a pop, dup or swap: the slots it needs, the
// depths that must start a whole value, and for dups how many top slots
// are copied and how many slots below them the copy goes.
type stackShape struct {
	need  int
	whole []int
	dup   int
	under int
}

var stackShapes = map[bytecode.Opcode]stackShape{
	bytecode.OpPop:    {need: 1, whole: []int{1}},
	bytecode.OpPop2:   {need: 2, whole: []int{2}},
	bytecode.OpDup:    {need: 1, whole: []int{1}, dup: 1},
	bytecode.OpDupX1:  {need: 2, whole: []int{1, 2}, dup: 1, under: 1},
	bytecode.OpDupX2:  {need: 3, whole: []int{1, 3}, dup: 1, under: 2},
	bytecode.OpDup2:   {need: 2, whole: []int{2}, dup: 2},
	bytecode.OpDup2X1: {need: 3, whole: []int{2, 3}, dup: 2, under: 1},
	bytecode.OpDup2X2: {need: 4, whole: []int{2, 4}, dup: 2, under: 2},
	bytecode.OpSwap:   {need: 2, whole: []int{1, 2}},
}

// stackOp applies the category-checked stack manipulations. The top k
// slots hold whole values exactly when the slot k from the top is not
// the high half of a pair.
func (s *step) stackOp() error {
	sh := stackShapes[s.in.Op]
	if err := s.require(sh.need); err != nil {
		return err
	}
	stack := s.f.Stack
	n := len(stack)
	for _, k := range sh.whole {
		if stack[n-k].IsHigh() {
			return s.fail(KindTypeMismatch, "would split a two-slot value %d slots from the top", k)
		}
	}

	switch s.in.Op {
	case bytecode.OpPop, bytecode.OpPop2:
		s.f.Stack = stack[:n-sh.need]
		return nil
	case bytecode.OpSwap:
		stack[n-1], stack[n-2] = stack[n-2], stack[n-1]
		return nil
	}

	if n+sh.dup > s.mv.m.MaxStack {
		return s.fail(KindStackOverflow, "pushing %d slots onto height %d exceeds max_stack %d",
			sh.dup, n, s.mv.m.MaxStack)
	}
	top := append([]lattice.Type(nil), stack[n-sh.dup:]...)
	at := n - sh.dup - sh.under
	out := make([]lattice.Type, 0, cap(stack))
	out = append(out, stack[:at]...)
	out = append(out, top...)
	out = append(out, stack[at:]...)
	s.f.Stack = out
	return nil
}
