package lattice

// Hierarchy answers subtype questions about named classes. The verifier
// never loads classes itself; it asks a Hierarchy.
type Hierarchy interface {
	// LUB returns the nearest common superclass of a and b. It reports
	// false when the two classes share no known ancestor.
	LUB(a, b string) (string, bool)

	// IsSubclass reports whether sub is super or a descendant of it.
	IsSubclass(sub, super string) bool
}

// Merge joins two abstract types. It is commutative and idempotent, and
// the result is never lower than either argument. h may be nil, in which
// case distinct classes merge to Top.
func Merge(a, b Type, h Hierarchy) Type {
	if a == b {
		return a
	}
	if a.kind == KindTop || b.kind == KindTop {
		return Top
	}
	if a.kind == KindUninit {
		return b
	}
	if b.kind == KindUninit {
		return a
	}
	if !a.IsReference() || !b.IsReference() {
		return Top
	}
	if a.kind == KindNull {
		return b
	}
	if b.kind == KindNull {
		return a
	}
	return mergeReferences(a, b, h)
}

func mergeReferences(a, b Type, h Hierarchy) Type {
	switch {
	case a.kind == KindReference && b.kind == KindReference:
		return lub(a.name, b.name, h)

	case a.kind == KindArray && b.kind == KindArray:
		ea, eb := a.Element(), b.Element()
		if ea.IsReference() && eb.IsReference() {
			elem := mergeReferences(ea, eb, h)
			if elem.kind == KindTop {
				return Top
			}
			return ArrayOf(elem.Descriptor())
		}
		// Arrays of distinct primitives only share Object.
		return lub(ObjectClass, ObjectClass, h)

	default:
		// An array and a plain object meet at the object's view of Object.
		other := a
		if a.kind == KindArray {
			other = b
		}
		return lub(ObjectClass, other.name, h)
	}
}

func lub(a, b string, h Hierarchy) Type {
	if a == b {
		return Reference(a)
	}
	if h == nil {
		return Top
	}
	c, ok := h.LUB(a, b)
	if !ok {
		return Top
	}
	return Reference(c)
}

// LessOrEqual reports whether a lies at or below b in the lattice, that
// is, whether merging a into b leaves b unchanged.
func LessOrEqual(a, b Type, h Hierarchy) bool {
	return Merge(a, b, h) == b
}

// IsAssignable reports whether a value of abstract type value may be
// used where target is expected: the same primitive, null for any
// reference, a subclass for a class, or a compatible array.
func IsAssignable(value, target Type, h Hierarchy) bool {
	if value == target {
		return true
	}
	switch target.kind {
	case KindReference:
		switch value.kind {
		case KindNull:
			return true
		case KindArray:
			return target.name == ObjectClass
		case KindReference:
			if target.name == ObjectClass {
				return true
			}
			return h != nil && h.IsSubclass(value.name, target.name)
		}
	case KindArray:
		switch value.kind {
		case KindNull:
			return true
		case KindArray:
			ve, te := value.Element(), target.Element()
			if ve.IsReference() && te.IsReference() {
				return IsAssignable(ve, te, h)
			}
			return value.ElementDescriptor() == target.ElementDescriptor()
		}
	}
	return false
}
