package descriptor

import (
	"sync"

	"github.com/chazu/keel/lattice"
)

// maxDepth bounds superclass walks so a cyclic table cannot hang.
const maxDepth = 256

// ClassTable records superclass links and answers hierarchy queries for
// the verifier. Classes it has never seen are treated as direct
// subclasses of java/lang/Object. Safe for concurrent use.
type ClassTable struct {
	mu     sync.RWMutex
	supers map[string]string
}

// NewClassTable creates an empty table.
func NewClassTable() *ClassTable {
	return &ClassTable{supers: make(map[string]string)}
}

// Define records that class extends super. An empty super means
// java/lang/Object.
func (t *ClassTable) Define(class, super string) {
	if super == "" && class != lattice.ObjectClass {
		super = lattice.ObjectClass
	}
	t.mu.Lock()
	t.supers[class] = super
	t.mu.Unlock()
}

// Remove forgets class, which then extends Object like any unknown class.
func (t *ClassTable) Remove(class string) {
	t.mu.Lock()
	delete(t.supers, class)
	t.mu.Unlock()
}

// Super returns the direct superclass of class.
func (t *ClassTable) Super(class string) string {
	if class == lattice.ObjectClass {
		return ""
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	if s, ok := t.supers[class]; ok && s != "" {
		return s
	}
	return lattice.ObjectClass
}

// Known reports whether class was defined.
func (t *ClassTable) Known(class string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.supers[class]
	return ok
}

// Ancestors lists class and its superclasses up to java/lang/Object. The
// second result is false if the chain loops.
func (t *ClassTable) Ancestors(class string) ([]string, bool) {
	out := []string{class}
	for depth := 0; class != lattice.ObjectClass; depth++ {
		if depth >= maxDepth {
			return out, false
		}
		class = t.Super(class)
		out = append(out, class)
	}
	return out, true
}

// IsSubclass reports whether sub is super or inherits from it.
func (t *ClassTable) IsSubclass(sub, super string) bool {
	chain, _ := t.Ancestors(sub)
	for _, c := range chain {
		if c == super {
			return true
		}
	}
	return false
}

// LUB returns the nearest class both a and b inherit from.
func (t *ClassTable) LUB(a, b string) (string, bool) {
	ca, okA := t.Ancestors(a)
	cb, okB := t.Ancestors(b)
	if !okA || !okB {
		return "", false
	}
	inB := make(map[string]struct{}, len(cb))
	for _, c := range cb {
		inB[c] = struct{}{}
	}
	for _, c := range ca {
		if _, ok := inB[c]; ok {
			return c, true
		}
	}
	return "", false
}

var _ lattice.Hierarchy = (*ClassTable)(nil)
