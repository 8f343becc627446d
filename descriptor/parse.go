// Package descriptor parses JVM type descriptors and tracks the class
// hierarchy the verifier merges references against.
package descriptor

import (
	"fmt"

	"github.com/chazu/keel/lattice"
)

// MethodType is a parsed method descriptor.
type MethodType struct {
	Params []lattice.Type
	Return lattice.Type
}

// ArgSlots is the number of local or stack slots the parameters occupy,
// counting long and double twice.
func (m MethodType) ArgSlots() int {
	n := 0
	for _, p := range m.Params {
		n += p.Slots()
	}
	return n
}

// ParseField parses a field descriptor such as "I" or "[Ljava/lang/String;".
func ParseField(desc string) (lattice.Type, error) {
	t, ok := lattice.FromDescriptor(desc)
	if !ok || t == lattice.Void {
		return lattice.Top, fmt.Errorf("invalid field descriptor %q", desc)
	}
	return t, nil
}

// ParseMethod parses a method descriptor such as "(IJ)V".
func ParseMethod(desc string) (MethodType, error) {
	var m MethodType
	if len(desc) < 3 || desc[0] != '(' {
		return m, fmt.Errorf("invalid method descriptor %q", desc)
	}
	pos := 1
	for pos < len(desc) && desc[pos] != ')' {
		t, n := lattice.ParsePrefix(desc[pos:])
		if n == 0 || t == lattice.Void {
			return m, fmt.Errorf("invalid parameter at %d in %q", pos, desc)
		}
		m.Params = append(m.Params, t)
		pos += n
	}
	if pos >= len(desc) {
		return m, fmt.Errorf("unterminated parameter list in %q", desc)
	}
	pos++
	ret, n := lattice.ParsePrefix(desc[pos:])
	if n == 0 || pos+n != len(desc) {
		return m, fmt.Errorf("invalid return type in %q", desc)
	}
	m.Return = ret
	if m.ArgSlots() > 255 {
		return m, fmt.Errorf("too many parameter slots in %q", desc)
	}
	return m, nil
}

// Locals lays out the entry locals of a method with maxLocals slots.
// When this is not Uninit it occupies slot 0. Parameters follow, two
// slots for long and double with the low half first; the remaining
// slots are Uninit.
func (m MethodType) Locals(this lattice.Type, maxLocals int) ([]lattice.Type, error) {
	need := m.ArgSlots()
	if this != lattice.Uninit {
		need++
	}
	if need > maxLocals {
		return nil, fmt.Errorf("parameters need %d local slots, max_locals is %d", need, maxLocals)
	}
	locals := make([]lattice.Type, maxLocals)
	i := 0
	if this != lattice.Uninit {
		locals[0] = this
		i = 1
	}
	for _, p := range m.Params {
		locals[i] = p
		i++
		if p.IsWide() {
			locals[i] = p.High()
			i++
		}
	}
	return locals, nil
}

// ClassOf returns the class name a CONSTANT_Class entry denotes as an
// abstract type: array descriptors stay arrays, anything else is a
// plain reference.
func ClassOf(name string) (lattice.Type, error) {
	if len(name) > 0 && name[0] == '[' {
		t, ok := lattice.FromDescriptor(name)
		if !ok {
			return lattice.Top, fmt.Errorf("invalid array class %q", name)
		}
		return t, nil
	}
	if name == "" {
		return lattice.Top, fmt.Errorf("empty class name")
	}
	return lattice.Reference(name), nil
}
