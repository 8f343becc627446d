package verifier

import (
	"github.com/chazu/keel/bytecode"
	"github.com/chazu/keel/classfile"
	"github.com/chazu/keel/lattice"
)

const (
	stringClass = "java/lang/String"
	classClass  = "java/lang/Class"
)

func (s *step) ldc() error {
	allowed := []classfile.Tag{classfile.TagInteger, classfile.TagFloat, classfile.TagString, classfile.TagClass}
	if s.in.Op == bytecode.OpLdc2W {
		allowed = []classfile.Tag{classfile.TagLong, classfile.TagDouble}
	}
	tag, err := s.constant(s.in.Index, allowed...)
	if err != nil {
		return err
	}
	var t lattice.Type
	switch tag {
	case classfile.TagInteger:
		t = lattice.Int
	case classfile.TagFloat:
		t = lattice.Float
	case classfile.TagLong:
		t = lattice.LongLo
	case classfile.TagDouble:
		t = lattice.DoubleLo
	case classfile.TagString:
		t = lattice.Reference(stringClass)
	case classfile.TagClass:
		t = lattice.Reference(classClass)
	}
	return s.push(t)
}

func (s *step) ret() error {
	want := s.mv.sig.Return
	if s.in.Op == bytecode.OpReturn {
		if want != lattice.Void {
			return s.fail(KindTypeMismatch, "return in a method returning %s", want)
		}
		return nil
	}

	var kind lattice.Type
	switch s.in.Op {
	case bytecode.OpIreturn:
		kind = lattice.Int
	case bytecode.OpLreturn:
		kind = lattice.LongLo
	case bytecode.OpFreturn:
		kind = lattice.Float
	case bytecode.OpDreturn:
		kind = lattice.DoubleLo
	case bytecode.OpAreturn:
		kind = lattice.Null
	}
	if err := s.require(kind.Slots()); err != nil {
		return err
	}
	declared := want == kind || (kind == lattice.Null && want.IsReference())
	if !declared {
		return s.fail(KindTypeMismatch, "%s in a method returning %s", s.in.Op, want)
	}
	_, err := s.pop(s.assignable(want))
	return err
}
