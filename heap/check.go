package heap

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
)

// Check verifies the structural invariants of an idle heap: blocks tile
// the arena, no block is marked, the free list is in address order,
// every entry carries the free tag, and no two free blocks are adjacent.
// Violations wrap ErrHeapCorruption.
func (h *Heap) Check() error {
	if h.state != idle {
		return errors.Wrapf(ErrHeapCorruption, "check during %s", h.state)
	}
	n := uint32(len(h.arena))
	free := make(map[uint32]bool)
	last := uint32(endOfList)
	for off := h.head; off != endOfList; off = h.next(off) {
		if off&3 != 0 || off > n-MinBlockSize {
			return errors.Wrapf(ErrHeapCorruption, "free list entry %d out of bounds", off)
		}
		if last != endOfList && off <= last {
			return errors.Wrapf(ErrHeapCorruption, "free list not in address order: %d after %d", off, last)
		}
		if tag := h.word(off + 8); tag != FreeTag {
			return errors.Wrapf(ErrHeapCorruption, "free block at %d has tag %#x", off, tag)
		}
		free[off] = true
		last = off
	}

	prevFree := false
	seen := 0
	for off := uint32(0); off < n; {
		raw := h.word(off)
		size := raw &^ MarkBit
		if size < MinBlockSize || size&3 != 0 || size > n-off {
			return errors.Wrapf(ErrHeapCorruption, "block at %d has bad size word %#x", off, raw)
		}
		if raw&MarkBit != 0 {
			return errors.Wrapf(ErrHeapCorruption, "block at %d is marked", off)
		}
		isFree := free[off]
		if isFree {
			seen++
			if prevFree {
				return errors.Wrapf(ErrHeapCorruption, "adjacent free blocks at %d", off)
			}
		}
		prevFree = isFree
		off += size
	}
	if seen != len(free) {
		return errors.Wrapf(ErrHeapCorruption, "%d free list entries are not block boundaries", len(free)-seen)
	}
	return nil
}

// IsAllocated reports whether p is the payload handle of an allocated
// block. Unlike the payload accessors it never raises a fatal error, so
// callers can vet handles they did not get from Allocate.
func (h *Heap) IsAllocated(p Pointer) bool {
	n := uint32(len(h.arena))
	if p < HeaderSize || uint32(p) > n-MinPayload || p&3 != 0 {
		return false
	}
	target := uint32(p) - HeaderSize
	off := uint32(0)
	for off < target {
		size := h.word(off) &^ MarkBit
		if size < MinBlockSize || size&3 != 0 || size > n-off {
			return false
		}
		off += size
	}
	if off != target {
		return false
	}
	if size := h.word(off) &^ MarkBit; size < MinBlockSize || size&3 != 0 || size > n-off {
		return false
	}
	for f := h.head; f != endOfList && f <= target; {
		if f == target {
			return false
		}
		next := h.next(f)
		if next != endOfList && next <= f {
			return false
		}
		f = next
	}
	return true
}

// Dump writes one line per block: offset, size, state and layout.
func (h *Heap) Dump(w io.Writer) {
	free := make(map[uint32]bool)
	for off := h.head; off != endOfList; off = h.next(off) {
		free[off] = true
	}
	fmt.Fprintf(w, "heap: %d bytes, free list head %s\n", len(h.arena), offsetString(h.head))
	n := uint32(len(h.arena))
	for off := uint32(0); off < n; {
		raw := h.word(off)
		size := raw &^ MarkBit
		if size < MinBlockSize || size > n-off {
			fmt.Fprintf(w, "%08x  bad size word %#x\n", off, raw)
			return
		}
		mark := " "
		if raw&MarkBit != 0 {
			mark = "*"
		}
		if free[off] {
			fmt.Fprintf(w, "%08x %s %8d  free  next=%s\n", off, mark, size, offsetString(h.next(off)))
		} else {
			fmt.Fprintf(w, "%08x %s %8d  used  layout=%s\n", off, mark, size, Layout(h.word(off+4)))
		}
		off += size
	}
}

func offsetString(off uint32) string {
	if off == endOfList {
		return "end"
	}
	return fmt.Sprintf("%08x", off)
}
