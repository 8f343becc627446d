package verifier

import (
	"fmt"
	"strings"

	"github.com/chazu/keel/lattice"
)

// Frame is the abstract type state at one instruction: a type for every
// local slot and for every occupied operand stack slot, deepest first.
// A long or double is a low half followed by its high placeholder.
type Frame struct {
	Locals []lattice.Type
	Stack  []lattice.Type
}

// Clone returns a deep copy.
func (f *Frame) Clone() *Frame {
	g := &Frame{
		Locals: make([]lattice.Type, len(f.Locals)),
		Stack:  make([]lattice.Type, len(f.Stack), cap(f.Stack)),
	}
	copy(g.Locals, f.Locals)
	copy(g.Stack, f.Stack)
	return g
}

// Height is the number of occupied stack slots.
func (f *Frame) Height() int {
	return len(f.Stack)
}

// Equal reports whether both frames hold the same types.
func (f *Frame) Equal(g *Frame) bool {
	if f == nil || g == nil {
		return f == g
	}
	if len(f.Locals) != len(g.Locals) || len(f.Stack) != len(g.Stack) {
		return false
	}
	for i := range f.Locals {
		if f.Locals[i] != g.Locals[i] {
			return false
		}
	}
	for i := range f.Stack {
		if f.Stack[i] != g.Stack[i] {
			return false
		}
	}
	return true
}

// MergeFrame joins src into dst and reports whether dst changed. Frames
// with different stack heights or local counts do not merge.
func MergeFrame(dst, src *Frame, h lattice.Hierarchy) (bool, error) {
	if dst.Height() != src.Height() {
		return false, fmt.Errorf("%w: %d and %d", ErrStackHeight, dst.Height(), src.Height())
	}
	if len(dst.Locals) != len(src.Locals) {
		return false, fmt.Errorf("frames have %d and %d locals", len(dst.Locals), len(src.Locals))
	}
	return mergeInto(dst, src, h), nil
}

// mergeInto joins src into dst slot by slot and reports whether dst
// changed. Heights must already match.
func mergeInto(dst, src *Frame, h lattice.Hierarchy) bool {
	changed := false
	for i := range dst.Locals {
		m := lattice.Merge(dst.Locals[i], src.Locals[i], h)
		if m != dst.Locals[i] {
			dst.Locals[i] = m
			changed = true
		}
	}
	for i := range dst.Stack {
		m := lattice.Merge(dst.Stack[i], src.Stack[i], h)
		if m != dst.Stack[i] {
			dst.Stack[i] = m
			changed = true
		}
	}
	return changed
}

// setLocal stores t at slot i, taking both slots for a wide t, and
// invalidates any pair the store splits.
func (f *Frame) setLocal(i int, t lattice.Type) {
	if i > 0 && f.Locals[i].IsHigh() {
		f.Locals[i-1] = lattice.Top
	}
	last := i
	f.Locals[i] = t
	if t.IsWide() {
		last = i + 1
		f.Locals[last] = t.High()
	}
	if last+1 < len(f.Locals) && f.Locals[last+1].IsHigh() {
		f.Locals[last+1] = lattice.Top
	}
}

func (f *Frame) String() string {
	var sb strings.Builder
	sb.WriteString("locals=[")
	for i, t := range f.Locals {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(t.String())
	}
	sb.WriteString("] stack=[")
	for i, t := range f.Stack {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(t.String())
	}
	sb.WriteString("]")
	return sb.String()
}
