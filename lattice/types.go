// Package lattice defines the abstract types tracked by the bytecode
// verifier and the join operator over them.
package lattice

import "strings"

// ObjectClass is the root of every class hierarchy.
const ObjectClass = "java/lang/Object"

// Kind discriminates the abstract type variant.
type Kind uint8

const (
	KindUninit Kind = iota // bottom: never written
	KindTop                // conflict between incompatible types
	KindInt
	KindFloat
	KindLongLo
	KindLongHi
	KindDoubleLo
	KindDoubleHi
	KindNull
	KindReference
	KindArray
	KindVoid
)

// Type is one abstract slot value. The zero value is Uninit. Types are
// comparable with ==.
type Type struct {
	kind Kind
	name string // class name for references, full descriptor for arrays
}

// The singleton abstract types.
var (
	Uninit   = Type{kind: KindUninit}
	Top      = Type{kind: KindTop}
	Int      = Type{kind: KindInt}
	Float    = Type{kind: KindFloat}
	LongLo   = Type{kind: KindLongLo}
	LongHi   = Type{kind: KindLongHi}
	DoubleLo = Type{kind: KindDoubleLo}
	DoubleHi = Type{kind: KindDoubleHi}
	Null     = Type{kind: KindNull}
	Void     = Type{kind: KindVoid}
)

// Reference returns the type of a non-array object of the named class,
// written in internal form (java/lang/String).
func Reference(class string) Type {
	return Type{kind: KindReference, name: class}
}

// Array returns the type of an array with the given descriptor, which
// must start with '['.
func Array(desc string) Type {
	return Type{kind: KindArray, name: desc}
}

// ArrayOf returns the one-dimensional array type whose elements have the
// field descriptor elem.
func ArrayOf(elem string) Type {
	return Array("[" + elem)
}

// Kind returns the variant.
func (t Type) Kind() Kind { return t.kind }

// Class returns the class name of a Reference and "" otherwise.
func (t Type) Class() string {
	if t.kind == KindReference {
		return t.name
	}
	return ""
}

// Descriptor returns the field descriptor of t, or "" for types with no
// descriptor (Uninit, Top, Null, the high halves).
func (t Type) Descriptor() string {
	switch t.kind {
	case KindInt:
		return "I"
	case KindFloat:
		return "F"
	case KindLongLo:
		return "J"
	case KindDoubleLo:
		return "D"
	case KindVoid:
		return "V"
	case KindReference:
		return "L" + t.name + ";"
	case KindArray:
		return t.name
	}
	return ""
}

// IsReference reports whether t may be held in a reference slot: null,
// an object, or an array.
func (t Type) IsReference() bool {
	return t.kind == KindNull || t.kind == KindReference || t.kind == KindArray
}

// IsArray reports whether t is an array type.
func (t Type) IsArray() bool { return t.kind == KindArray }

// IsWide reports whether t is the low half of a two-slot value.
func (t Type) IsWide() bool {
	return t.kind == KindLongLo || t.kind == KindDoubleLo
}

// IsHigh reports whether t is the placeholder upper half of a two-slot
// value.
func (t Type) IsHigh() bool {
	return t.kind == KindLongHi || t.kind == KindDoubleHi
}

// High returns the placeholder that pairs with a wide low half.
func (t Type) High() Type {
	switch t.kind {
	case KindLongLo:
		return LongHi
	case KindDoubleLo:
		return DoubleHi
	}
	return Top
}

// Slots is the number of operand-stack or local slots t occupies.
func (t Type) Slots() int {
	switch t.kind {
	case KindLongLo, KindDoubleLo:
		return 2
	case KindVoid:
		return 0
	}
	return 1
}

// Element returns the element type of an array, or Top if t is not an
// array or its descriptor is malformed.
func (t Type) Element() Type {
	if t.kind != KindArray || len(t.name) < 2 {
		return Top
	}
	elem, ok := FromDescriptor(t.name[1:])
	if !ok {
		return Top
	}
	return elem
}

// ElementDescriptor returns the descriptor following the leading '['.
func (t Type) ElementDescriptor() string {
	if t.kind != KindArray || len(t.name) < 2 {
		return ""
	}
	return t.name[1:]
}

// Dimensions counts the leading '[' of an array descriptor.
func (t Type) Dimensions() int {
	if t.kind != KindArray {
		return 0
	}
	return len(t.name) - len(strings.TrimLeft(t.name, "["))
}

func (t Type) String() string {
	switch t.kind {
	case KindUninit:
		return "uninit"
	case KindTop:
		return "top"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindLongLo:
		return "long"
	case KindLongHi:
		return "long_hi"
	case KindDoubleLo:
		return "double"
	case KindDoubleHi:
		return "double_hi"
	case KindNull:
		return "null"
	case KindVoid:
		return "void"
	}
	return t.Descriptor()
}

// FromDescriptor converts a single field descriptor to its abstract
// type. byte, char, short and boolean all widen to Int; long and double
// yield their low halves. The second result is false when desc is not
// exactly one well-formed field descriptor.
func FromDescriptor(desc string) (Type, bool) {
	t, n := parseOne(desc)
	if n == 0 || n != len(desc) {
		return Top, false
	}
	return t, true
}

// ParsePrefix parses the field descriptor at the start of desc and
// returns its type with the number of bytes consumed, or 0 when desc
// does not begin with a valid descriptor. V is accepted.
func ParsePrefix(desc string) (Type, int) {
	return parseOne(desc)
}

func parseOne(desc string) (Type, int) {
	if desc == "" {
		return Top, 0
	}
	switch desc[0] {
	case 'B', 'C', 'I', 'S', 'Z':
		return Int, 1
	case 'F':
		return Float, 1
	case 'J':
		return LongLo, 1
	case 'D':
		return DoubleLo, 1
	case 'V':
		return Void, 1
	case 'L':
		end := strings.IndexByte(desc, ';')
		if end < 2 {
			return Top, 0
		}
		return Reference(desc[1:end]), end + 1
	case '[':
		dims := 0
		for dims < len(desc) && desc[dims] == '[' {
			dims++
		}
		if dims > 255 {
			return Top, 0
		}
		elem, n := parseOne(desc[dims:])
		if n == 0 || elem == Void {
			return Top, 0
		}
		return Array(desc[:dims+n]), dims + n
	}
	return Top, 0
}
