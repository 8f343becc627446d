package verifier

import (
	"strings"

	"github.com/chazu/keel/bytecode"
	"github.com/chazu/keel/lattice"
)

// arrayAccess is an element load or store: the element descriptors the
// array may carry and the stack type of one element.
type arrayAccess struct {
	elems string // accepted element descriptor letters; "" for references
	t     lattice.Type
	store bool
}

var arrayAccesses = map[bytecode.Opcode]arrayAccess{
	bytecode.OpIaload: {"I", lattice.Int, false},
	bytecode.OpLaload: {"J", lattice.LongLo, false},
	bytecode.OpFaload: {"F", lattice.Float, false},
	bytecode.OpDaload: {"D", lattice.DoubleLo, false},
	bytecode.OpAaload: {"", lattice.Null, false},
	bytecode.OpBaload: {"BZ", lattice.Int, false},
	bytecode.OpCaload: {"C", lattice.Int, false},
	bytecode.OpSaload: {"S", lattice.Int, false},

	bytecode.OpIastore: {"I", lattice.Int, true},
	bytecode.OpLastore: {"J", lattice.LongLo, true},
	bytecode.OpFastore: {"F", lattice.Float, true},
	bytecode.OpDastore: {"D", lattice.DoubleLo, true},
	bytecode.OpAastore: {"", lattice.Null, true},
	bytecode.OpBastore: {"BZ", lattice.Int, true},
	bytecode.OpCastore: {"C", lattice.Int, true},
	bytecode.OpSastore: {"S", lattice.Int, true},
}

var newarrayElems = map[int]string{
	bytecode.TBoolean: "Z",
	bytecode.TChar:    "C",
	bytecode.TFloat:   "F",
	bytecode.TDouble:  "D",
	bytecode.TByte:    "B",
	bytecode.TShort:   "S",
	bytecode.TInt:     "I",
	bytecode.TLong:    "J",
}

func (s *step) isArrayOp() bool {
	switch s.in.Op {
	case bytecode.OpNewarray, bytecode.OpAnewarray, bytecode.OpMultianewarray:
		return true
	}
	_, ok := arrayAccesses[s.in.Op]
	return ok
}

func (s *step) arrayOp() error {
	switch s.in.Op {
	case bytecode.OpNewarray:
		elem, ok := newarrayElems[s.in.Index]
		if !ok {
			return s.fail(KindMalformed, "newarray type code %d", s.in.Index)
		}
		return s.apply(signature{pops(opInt), pushes(lattice.ArrayOf(elem))})
	case bytecode.OpAnewarray:
		return s.anewarray()
	case bytecode.OpMultianewarray:
		return s.multianewarray()
	}

	acc := arrayAccesses[s.in.Op]
	array := operand{desc: "array of " + acc.desc(), match: func(t lattice.Type) bool {
		return t == lattice.Null || (t.IsArray() && acc.accepts(t.ElementDescriptor()))
	}}
	if acc.store {
		value := opRef
		if acc.elems != "" {
			value = exact(acc.t)
		}
		_, err := s.pop(array, opInt, value)
		return err
	}
	vals, err := s.pop(array, opInt)
	if err != nil {
		return err
	}
	if acc.elems == "" {
		if vals[0] == lattice.Null {
			return s.push(lattice.Null)
		}
		return s.push(vals[0].Element())
	}
	return s.push(acc.t)
}

func (acc arrayAccess) accepts(elem string) bool {
	if elem == "" {
		return false
	}
	if acc.elems == "" {
		return elem[0] == 'L' || elem[0] == '['
	}
	return len(elem) == 1 && strings.IndexByte(acc.elems, elem[0]) >= 0
}

func (acc arrayAccess) desc() string {
	if acc.elems == "" {
		return "reference"
	}
	return strings.Join(strings.Split(acc.elems, ""), " or ")
}

func (s *step) anewarray() error {
	t, err := s.class()
	if err != nil {
		return err
	}
	arr, ok := lattice.FromDescriptor("[" + t.Descriptor())
	if !ok {
		return s.fail(KindConstantPool, "array of %s has too many dimensions", t)
	}
	return s.apply(signature{pops(opInt), pushes(arr)})
}

func (s *step) multianewarray() error {
	t, err := s.class()
	if err != nil {
		return err
	}
	dims := s.in.Value
	if dims < 1 {
		return s.fail(KindMalformed, "multianewarray with %d dimensions", dims)
	}
	if !t.IsArray() || t.Dimensions() < dims {
		return s.fail(KindConstantPool, "%s has fewer than %d dimensions", t, dims)
	}
	counts := make([]operand, dims)
	for i := range counts {
		counts[i] = opInt
	}
	return s.apply(signature{counts, pushes(t)})
}
