package heap

import (
	"fmt"
	"strings"
)

// Layout tells the collector which payload words of a block may hold
// references. It is stored in the word after the block's size.
//
// Conservative (0) treats every payload word as a candidate. Otherwise
// bit 0 is set and bit i+1 marks payload word i as a reference slot.
type Layout uint32

const (
	Conservative Layout = 0
	NoPointers   Layout = 1
)

// MaxPointerSlots is the number of payload words a bitmap layout can
// describe.
const MaxPointerSlots = 31

// PointerSlots returns a precise layout whose reference slots are the
// given payload word indexes.
func PointerSlots(idx ...int) Layout {
	l := NoPointers
	for _, i := range idx {
		if i < 0 || i >= MaxPointerSlots {
			panic(fmt.Sprintf("heap: pointer slot %d out of range", i))
		}
		l |= 1 << (i + 1)
	}
	return l
}

// IsConservative reports whether every word is scanned.
func (l Layout) IsConservative() bool {
	return l == Conservative
}

// Slot reports whether payload word i is scanned.
func (l Layout) Slot(i int) bool {
	if l.IsConservative() {
		return true
	}
	return i >= 0 && i < MaxPointerSlots && l&(1<<(i+1)) != 0
}

// highest returns the largest slot index set in a bitmap layout, or -1.
func (l Layout) highest() int {
	if l.IsConservative() {
		return -1
	}
	for i := MaxPointerSlots - 1; i >= 0; i-- {
		if l.Slot(i) {
			return i
		}
	}
	return -1
}

func (l Layout) String() string {
	switch l {
	case Conservative:
		return "conservative"
	case NoPointers:
		return "none"
	}
	var slots []string
	for i := 0; i < MaxPointerSlots; i++ {
		if l.Slot(i) {
			slots = append(slots, fmt.Sprint(i))
		}
	}
	return "slots[" + strings.Join(slots, " ") + "]"
}
