// Package verifier statically checks that a method's bytecode is type
// safe before it runs. It computes, for every reachable instruction, the
// abstract types of the locals and operand stack by iterating a worklist
// to a fixpoint, and rejects the method at the first instruction whose
// preconditions do not hold.
package verifier

import (
	"errors"
	"fmt"

	"github.com/tliron/commonlog"

	"github.com/chazu/keel/bytecode"
	"github.com/chazu/keel/classfile"
	"github.com/chazu/keel/descriptor"
	"github.com/chazu/keel/lattice"
	"github.com/chazu/keel/trace"
)

// Verifier checks methods. It holds no per-method state and may be
// reused; concurrent use is safe if the Hierarchy is.
type Verifier struct {
	hierarchy lattice.Hierarchy
	flags     trace.Flags
	log       commonlog.Logger
	tracer    trace.Tracer
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithHierarchy sets the class hierarchy references are merged against.
// The default treats every class as a direct subclass of Object.
func WithHierarchy(h lattice.Hierarchy) Option {
	return func(v *Verifier) { v.hierarchy = h }
}

// WithTrace enables per-instruction tracing when flags include
// trace.Verify.
func WithTrace(flags trace.Flags) Option {
	return func(v *Verifier) { v.flags = flags }
}

// WithLogger replaces the keel.verifier logger.
func WithLogger(log commonlog.Logger) Option {
	return func(v *Verifier) { v.log = log }
}

// New creates a verifier.
func New(opts ...Option) *Verifier {
	v := &Verifier{
		hierarchy: descriptor.NewClassTable(),
		log:       commonlog.GetLogger(trace.VerifierLogger),
	}
	for _, opt := range opts {
		opt(v)
	}
	v.tracer = trace.NewTracer(v.flags, trace.Verify, v.log)
	return v
}

// Result is the outcome of a successful verification.
type Result struct {
	Class  string
	Method string

	// Frames holds the fixpoint state recorded on entry to each
	// instruction, indexed by code offset. Offsets inside an instruction
	// and unreachable instructions are nil.
	Frames []*Frame

	// Visits counts how many times an instruction was processed.
	Visits int
}

// Frame returns the entry state of the instruction at offset, or nil.
func (r *Result) Frame(offset int) *Frame {
	if offset < 0 || offset >= len(r.Frames) {
		return nil
	}
	return r.Frames[offset]
}

// Equal reports whether two results recorded identical states.
func (r *Result) Equal(o *Result) bool {
	if len(r.Frames) != len(o.Frames) {
		return false
	}
	for i := range r.Frames {
		if !r.Frames[i].Equal(o.Frames[i]) {
			return false
		}
	}
	return true
}

// VerifyClass verifies every method of cls that carries code and stops
// at the first rejection.
func (v *Verifier) VerifyClass(cls *classfile.Class) error {
	for _, m := range cls.Methods {
		if _, err := v.VerifyMethod(cls, m); err != nil {
			return err
		}
	}
	v.log.Infof("verified class %s (%d methods)", cls.Name, len(cls.Methods))
	return nil
}

// VerifyMethod verifies one method of cls. A rejection is returned as a
// *VerifyError; abstract and native methods verify trivially.
func (v *Verifier) VerifyMethod(cls *classfile.Class, m *classfile.Method) (*Result, error) {
	if !m.HasCode() {
		return &Result{Class: cls.Name, Method: m.String()}, nil
	}
	mv := &method{
		v:    v,
		cls:  cls,
		m:    m,
		code: m.Code,
	}
	if err := mv.decode(); err != nil {
		return nil, err
	}
	if err := mv.seed(); err != nil {
		return nil, err
	}
	if err := mv.run(); err != nil {
		v.tracer.Printf("%v", err)
		return nil, err
	}
	v.tracer.Printf("verified %s.%s in %d visits", cls.Name, m, mv.visits)
	return &Result{
		Class:  cls.Name,
		Method: m.String(),
		Frames: mv.frames,
		Visits: mv.visits,
	}, nil
}

// method is the instruction table for one verification run.
type method struct {
	v    *Verifier
	cls  *classfile.Class
	m    *classfile.Method
	code []byte
	sig  descriptor.MethodType

	insns   []bytecode.Instruction // valid where boundary is set
	bound   []bool
	frames  []*Frame
	changed []bool
	queue   []int
	visits  int
}

func (mv *method) reject(offset int, op bytecode.Opcode, kind Kind, reason string) error {
	return &VerifyError{
		Class:  mv.cls.Name,
		Method: mv.m.String(),
		Offset: offset,
		Opcode: op,
		Kind:   kind,
		Reason: reason,
	}
}

// decode finds every instruction boundary, rejecting code that contains
// an unknown opcode or ends inside an instruction.
func (mv *method) decode() error {
	n := len(mv.code)
	if n == 0 {
		return mv.reject(0, bytecode.OpNop, KindFallOff, "method has no code")
	}
	mv.insns = make([]bytecode.Instruction, n)
	mv.bound = make([]bool, n)
	for pc := 0; pc < n; {
		in, err := bytecode.Decode(mv.code, pc)
		if err != nil {
			var de *bytecode.DecodeError
			op := bytecode.Opcode(mv.code[pc])
			if errors.As(err, &de) {
				op = de.Op
			}
			kind := KindMalformed
			if errors.Is(err, bytecode.ErrUnknownOpcode) {
				kind = KindUnsupported
			}
			return mv.reject(pc, op, kind, err.Error())
		}
		mv.insns[pc] = in
		mv.bound[pc] = true
		pc = in.Next()
	}
	return nil
}

// seed installs the entry state derived from the descriptor.
func (mv *method) seed() error {
	sig, err := descriptor.ParseMethod(mv.m.Descriptor)
	if err != nil {
		return mv.reject(0, mv.insns[0].Op, KindSignature, err.Error())
	}
	mv.sig = sig
	if mv.m.MaxLocals < 0 || mv.m.MaxStack < 0 {
		return mv.reject(0, mv.insns[0].Op, KindSignature, "negative max_locals or max_stack")
	}
	this := lattice.Uninit
	if !mv.m.IsStatic() {
		this = lattice.Reference(mv.cls.Name)
	}
	locals, err := sig.Locals(this, mv.m.MaxLocals)
	if err != nil {
		return mv.reject(0, mv.insns[0].Op, KindSignature, err.Error())
	}
	mv.frames = make([]*Frame, len(mv.code))
	mv.changed = make([]bool, len(mv.code))
	mv.frames[0] = &Frame{Locals: locals, Stack: make([]lattice.Type, 0, mv.m.MaxStack)}
	mv.mark(0)
	return nil
}

// mark flags offset for (re)processing, queueing it unless it is
// already pending.
func (mv *method) mark(offset int) {
	if mv.changed[offset] {
		return
	}
	mv.changed[offset] = true
	mv.queue = append(mv.queue, offset)
}

// run iterates until no instruction is marked changed.
func (mv *method) run() error {
	h := mv.v.hierarchy
	for len(mv.queue) > 0 {
		pc := mv.queue[0]
		mv.queue = mv.queue[1:]
		mv.changed[pc] = false
		mv.visits++

		in := mv.insns[pc]
		s := &step{mv: mv, in: in, f: mv.frames[pc].Clone(), h: h}
		if mv.v.tracer.Enabled() {
			mv.v.tracer.Printf("%s.%s %s  %s", mv.cls.Name, mv.m, bytecode.FormatInstruction(in, nil), mv.frames[pc])
		}
		if err := s.execute(); err != nil {
			return err
		}
		for _, succ := range s.successors() {
			if err := mv.propagate(s, succ); err != nil {
				return err
			}
		}
	}
	return nil
}

// propagate installs or merges the post-state of s into the entry state
// of the instruction at target.
func (mv *method) propagate(s *step, target int) error {
	if target == len(mv.code) {
		return s.fail(KindFallOff, "execution continues past the last instruction")
	}
	rec := mv.frames[target]
	if rec == nil {
		mv.frames[target] = s.f.Clone()
		mv.mark(target)
		return nil
	}
	if rec.Height() != s.f.Height() {
		return s.fail(KindStackHeight, "stack height %d flowing into %d, which has height %d",
			s.f.Height(), target, rec.Height())
	}
	if mergeInto(rec, s.f, mv.v.hierarchy) {
		mv.mark(target)
	}
	return nil
}

// String renders the recorded state of every reached instruction, for
// diagnostics.
func (r *Result) String() string {
	out := fmt.Sprintf("%s.%s\n", r.Class, r.Method)
	for pc, f := range r.Frames {
		if f != nil {
			out += fmt.Sprintf("%04d  %s\n", pc, f)
		}
	}
	return out
}
