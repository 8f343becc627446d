package verifier

import (
	"github.com/chazu/keel/bytecode"
	"github.com/chazu/keel/classfile"
	"github.com/chazu/keel/descriptor"
	"github.com/chazu/keel/lattice"
)

// member resolves the field or method reference at the instruction's
// index.
func (s *step) member(allowed ...classfile.Tag) (classfile.MemberRef, error) {
	if _, err := s.constant(s.in.Index, allowed...); err != nil {
		return classfile.MemberRef{}, err
	}
	ref, err := s.mv.cls.Pool.Member(s.in.Index)
	if err != nil {
		return ref, s.fail(KindConstantPool, "%v", err)
	}
	return ref, nil
}

// class resolves the Class entry at the instruction's index.
func (s *step) class() (lattice.Type, error) {
	if _, err := s.constant(s.in.Index, classfile.TagClass); err != nil {
		return lattice.Top, err
	}
	name, err := s.mv.cls.Pool.ClassName(s.in.Index)
	if err != nil {
		return lattice.Top, s.fail(KindConstantPool, "%v", err)
	}
	t, err := descriptor.ClassOf(name)
	if err != nil {
		return lattice.Top, s.fail(KindConstantPool, "%v", err)
	}
	return t, nil
}

func (s *step) field() error {
	ref, err := s.member(classfile.TagFieldref)
	if err != nil {
		return err
	}
	t, err := descriptor.ParseField(ref.Descriptor)
	if err != nil {
		return s.fail(KindConstantPool, "%s: %v", ref, err)
	}
	owner, err := descriptor.ClassOf(ref.Class)
	if err != nil {
		return s.fail(KindConstantPool, "%s: %v", ref, err)
	}

	switch s.in.Op {
	case bytecode.OpGetstatic:
		return s.push(t)
	case bytecode.OpPutstatic:
		_, err = s.pop(s.assignable(t))
		return err
	case bytecode.OpGetfield:
		if _, err := s.pop(s.assignable(owner)); err != nil {
			return err
		}
		return s.push(t)
	default:
		_, err = s.pop(s.assignable(owner), s.assignable(t))
		return err
	}
}

func (s *step) invoke() error {
	var allowed []classfile.Tag
	switch s.in.Op {
	case bytecode.OpInvokevirtual:
		allowed = []classfile.Tag{classfile.TagMethodref}
	case bytecode.OpInvokeinterface:
		allowed = []classfile.Tag{classfile.TagInterfaceMethodref}
	default:
		allowed = []classfile.Tag{classfile.TagMethodref, classfile.TagInterfaceMethodref}
	}
	ref, err := s.member(allowed...)
	if err != nil {
		return err
	}
	sig, err := descriptor.ParseMethod(ref.Descriptor)
	if err != nil {
		return s.fail(KindConstantPool, "%s: %v", ref, err)
	}
	switch {
	case ref.Name == "<clinit>":
		return s.fail(KindConstantPool, "%s: class initializers cannot be invoked", ref)
	case ref.Name == "<init>" && s.in.Op != bytecode.OpInvokespecial:
		return s.fail(KindConstantPool, "%s: constructors are only invoked with invokespecial", ref)
	case ref.Name == "<init>" && sig.Return != lattice.Void:
		return s.fail(KindConstantPool, "%s: constructor must return void", ref)
	}
	if s.in.Op == bytecode.OpInvokeinterface && s.in.Value != sig.ArgSlots()+1 {
		return s.fail(KindMalformed, "invokeinterface count %d, descriptor needs %d", s.in.Value, sig.ArgSlots()+1)
	}

	var args []operand
	switch s.in.Op {
	case bytecode.OpInvokestatic:
	case bytecode.OpInvokeinterface:
		args = append(args, opRef)
	default:
		owner, err := descriptor.ClassOf(ref.Class)
		if err != nil {
			return s.fail(KindConstantPool, "%s: %v", ref, err)
		}
		args = append(args, s.assignable(owner))
	}
	for _, p := range sig.Params {
		args = append(args, s.assignable(p))
	}
	if _, err := s.pop(args...); err != nil {
		return err
	}
	return s.push(sig.Return)
}

func (s *step) classOp() error {
	t, err := s.class()
	if err != nil {
		return err
	}
	switch s.in.Op {
	case bytecode.OpNew:
		if t.IsArray() {
			return s.fail(KindConstantPool, "new of array class %s", t)
		}
		return s.push(t)
	case bytecode.OpCheckcast:
		if _, err := s.pop(opRef); err != nil {
			return err
		}
		return s.push(t)
	default:
		if _, err := s.pop(opRef); err != nil {
			return err
		}
		return s.push(lattice.Int)
	}
}
