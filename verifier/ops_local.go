package verifier

import (
	"github.com/chazu/keel/bytecode"
	"github.com/chazu/keel/lattice"
)

// localOp is the effect of a load or store: the type moved and the
// fixed slot of an _n form (-1 when the index is an operand).
type localOp struct {
	t     lattice.Type
	store bool
	slot  int
}

var localOps = map[bytecode.Opcode]localOp{
	bytecode.OpIload: {lattice.Int, false, -1},
	bytecode.OpLload: {lattice.LongLo, false, -1},
	bytecode.OpFload: {lattice.Float, false, -1},
	bytecode.OpDload: {lattice.DoubleLo, false, -1},
	bytecode.OpAload: {lattice.Null, false, -1},

	bytecode.OpIstore: {lattice.Int, true, -1},
	bytecode.OpLstore: {lattice.LongLo, true, -1},
	bytecode.OpFstore: {lattice.Float, true, -1},
	bytecode.OpDstore: {lattice.DoubleLo, true, -1},
	bytecode.OpAstore: {lattice.Null, true, -1},
}

func init() {
	short := []struct {
		first bytecode.Opcode
		base  bytecode.Opcode
	}{
		{bytecode.OpIload0, bytecode.OpIload},
		{bytecode.OpLload0, bytecode.OpLload},
		{bytecode.OpFload0, bytecode.OpFload},
		{bytecode.OpDload0, bytecode.OpDload},
		{bytecode.OpAload0, bytecode.OpAload},
		{bytecode.OpIstore0, bytecode.OpIstore},
		{bytecode.OpLstore0, bytecode.OpLstore},
		{bytecode.OpFstore0, bytecode.OpFstore},
		{bytecode.OpDstore0, bytecode.OpDstore},
		{bytecode.OpAstore0, bytecode.OpAstore},
	}
	for _, sh := range short {
		for n := 0; n < 4; n++ {
			lo := localOps[sh.base]
			lo.slot = n
			localOps[sh.first+bytecode.Opcode(n)] = lo
		}
	}
}

// localAccess reports whether in is a load or store and which slot it
// addresses.
func localAccess(in bytecode.Instruction) (localOp, int, bool) {
	lo, ok := localOps[in.Op]
	if !ok {
		return lo, 0, false
	}
	if lo.slot >= 0 {
		return lo, lo.slot, true
	}
	return lo, in.Index, true
}

// reference is the lattice value stand-in for "any reference" in
// localOps.
func (lo localOp) reference() bool {
	return lo.t == lattice.Null
}

func (lo localOp) operand() operand {
	if lo.reference() {
		return opRef
	}
	return exact(lo.t)
}

// checkLocal rejects an access to slots [index, index+width) that does
// not fit in max_locals.
func (s *step) checkLocal(index, width int) error {
	if index < 0 || index+width > len(s.f.Locals) {
		return s.fail(KindLocalRange, "local %d (width %d) outside max_locals %d", index, width, len(s.f.Locals))
	}
	return nil
}

func (s *step) local(lo localOp, index int) error {
	if err := s.checkLocal(index, lo.t.Slots()); err != nil {
		return err
	}
	if lo.store {
		vals, err := s.pop(lo.operand())
		if err != nil {
			return err
		}
		s.f.setLocal(index, vals[0])
		return nil
	}

	v := s.f.Locals[index]
	ok := lo.operand().match(v)
	if lo.t.IsWide() {
		ok = ok && s.f.Locals[index+1] == v.High()
	}
	if !ok {
		want := lo.t.String()
		if lo.reference() {
			want = "reference"
		}
		return s.fail(KindTypeMismatch, "local %d holds %s, expected %s", index, v, want)
	}
	return s.push(v)
}

func (s *step) iinc() error {
	index := s.in.Index
	if err := s.checkLocal(index, 1); err != nil {
		return err
	}
	if v := s.f.Locals[index]; v != lattice.Int {
		return s.fail(KindTypeMismatch, "local %d holds %s, expected int", index, v)
	}
	return nil
}
