package heap

// Allocate returns a zeroed block with at least size payload bytes and
// records layout for the collector. When no free block is large enough
// it collects once and retries; a second failure is fatal.
func (h *Heap) Allocate(size int, layout Layout) Pointer {
	if size < MinPayload || size > MaxPayload {
		h.fatal("allocate", ErrInvalidRequest, "request for %d bytes outside [%d, %d]", size, MinPayload, MaxPayload)
	}
	words := (size + 3) / 4
	if hi := layout.highest(); hi >= words {
		h.fatal("allocate", ErrInvalidRequest, "layout %s names word %d of a %d-word payload", layout, hi, words)
	}
	need := uint32(size+HeaderSize+3) &^ 3
	h.heapT.Printf("allocation request of %d bytes (block %d)", size, need)

	if p, ok := h.firstFit(need, layout); ok {
		return p
	}
	if h.retrying || h.state != idle {
		h.fatal("allocate", ErrOutOfMemory, "unable to allocate %d bytes", size)
	}
	h.retrying = true
	defer func() { h.retrying = false }()
	h.Collect()
	p, ok := h.firstFit(need, layout)
	if !ok {
		h.fatal("allocate", ErrOutOfMemory, "unable to allocate %d bytes after collection (%d bytes free)", size, h.freeBytes())
	}
	return p
}

// firstFit takes the first free block of at least need bytes, splitting
// it when the remainder can stand as a block of its own.
func (h *Heap) firstFit(need uint32, layout Layout) (Pointer, bool) {
	prev := uint32(endOfList)
	for off := h.head; off != endOfList; {
		h.counters.searches++
		size := h.checkFreeBlock(off)
		if size < need {
			prev = off
			off = h.next(off)
			continue
		}

		nextFree := h.next(off)
		if diff := size - need; diff < MinBlockSize {
			h.setNext(prev, nextFree)
			h.heapT.Printf("free block of %d at %d used whole", size, off)
		} else {
			rest := off + need
			h.writeFree(rest, diff, nextFree)
			h.setNext(prev, rest)
			size = need
			h.heapT.Printf("free block at %d split into %d + %d", off, need, diff)
		}

		clear(h.arena[off+4 : off+size])
		h.setWord(off, size)
		h.setWord(off+4, uint32(layout))
		h.counters.allocations++
		h.counters.bytesRequested += int64(need)
		return Pointer(off + HeaderSize), true
	}
	return Nil, false
}

// checkFreeBlock validates a block reached through the free list and
// returns its size.
func (h *Heap) checkFreeBlock(off uint32) uint32 {
	n := uint32(len(h.arena))
	if off&3 != 0 || off > n-MinBlockSize {
		h.fatal("allocate", ErrHeapCorruption, "free list link %d misaligned or out of bounds", off)
	}
	raw := h.word(off)
	if raw&MarkBit != 0 || raw < MinBlockSize || raw&3 != 0 || raw > n-off {
		h.fatal("allocate", ErrHeapCorruption, "free block at %d has bad size word %#x", off, raw)
	}
	if tag := h.word(off + 8); tag != FreeTag {
		h.fatal("allocate", ErrHeapCorruption, "free block at %d has tag %#x", off, tag)
	}
	if next := h.next(off); next != endOfList && (next&3 != 0 || next >= n || next <= off) {
		h.fatal("allocate", ErrHeapCorruption, "free block at %d links to %d", off, next)
	}
	return raw
}

// free returns the single block holding p to the free list, merging it
// with free neighbours on both sides. The collector reclaims through
// release, which resumes the list search where the previous run ended;
// free searches from the head and is otherwise the same path.
func (h *Heap) free(p Pointer) {
	h.release(p, endOfList)
}

// release validates p and inserts its block, searching the free list
// from hint. It returns the free block now containing p's block.
func (h *Heap) release(p Pointer, hint uint32) uint32 {
	n := uint32(len(h.arena))
	if p < HeaderSize || uint32(p) >= n || p&3 != 0 {
		h.fatal("free", ErrBadFree, "pointer %d misaligned or outside the arena", p)
	}
	off := uint32(p) - HeaderSize
	raw := h.word(off)
	size := raw &^ MarkBit
	if size < MinBlockSize || size&3 != 0 || size > n-off {
		h.fatal("free", ErrBadFree, "block at %d has implausible size word %#x", off, raw)
	}
	return h.insert(off, size, hint)
}

// insert links the block [off, off+size) into the address-ordered free
// list, coalescing with adjacent free blocks. The search starts after
// hint when hint precedes off. It returns the offset of the free block
// that now contains off.
func (h *Heap) insert(off, size, hint uint32) uint32 {
	prev, cur := uint32(endOfList), h.head
	if hint != endOfList && hint < off {
		prev, cur = hint, h.next(hint)
	}
	for cur != endOfList && cur < off {
		prev, cur = cur, h.next(cur)
	}
	if cur == off {
		h.fatal("free", ErrBadFree, "block at %d is already free", off)
	}
	if cur != endOfList && off+size > cur {
		h.fatal("free", ErrBadFree, "block at %d overlaps free block at %d", off, cur)
	}
	if prev != endOfList && prev+h.blockSize(prev) > off {
		h.fatal("free", ErrBadFree, "block at %d overlaps free block at %d", off, prev)
	}

	if cur != endOfList && off+size == cur {
		size += h.blockSize(cur)
		cur = h.next(cur)
	}
	if prev != endOfList && prev+h.blockSize(prev) == off {
		merged := h.blockSize(prev) + size
		h.writeFree(prev, merged, cur)
		h.heapT.Printf("freed block at %d merged into %d (%d bytes)", off, prev, merged)
		return prev
	}
	h.writeFree(off, size, cur)
	h.setNext(prev, off)
	h.heapT.Printf("freed block at %d (%d bytes)", off, size)
	return off
}

// ---------------------------------------------------------------------------
// Payload access
// ---------------------------------------------------------------------------

// payload validates p as a payload handle and returns its block offset
// and payload length.
func (h *Heap) payload(op string, p Pointer) (uint32, uint32) {
	n := uint32(len(h.arena))
	if p < HeaderSize || uint32(p) > n-MinPayload || p&3 != 0 {
		h.fatal(op, ErrInvalidRequest, "pointer %d misaligned or outside the arena", p)
	}
	off := uint32(p) - HeaderSize
	size := h.blockSize(off)
	if size < MinBlockSize || size&3 != 0 || size > n-off {
		h.fatal(op, ErrInvalidRequest, "pointer %d does not address a block", p)
	}
	return off, size - HeaderSize
}

// PayloadSize returns the usable payload bytes of the block at p, which
// may exceed the size requested.
func (h *Heap) PayloadSize(p Pointer) int {
	_, n := h.payload("payload", p)
	return int(n)
}

// LayoutOf returns the layout recorded for p.
func (h *Heap) LayoutOf(p Pointer) Layout {
	off, _ := h.payload("layout", p)
	return Layout(h.word(off + 4))
}

// Load reads payload word i of p.
func (h *Heap) Load(p Pointer, i int) uint32 {
	_, n := h.payload("load", p)
	if i < 0 || uint32(i) >= n/4 {
		h.fatal("load", ErrInvalidRequest, "word %d outside the %d-byte payload at %d", i, n, p)
	}
	return h.word(uint32(p) + uint32(i)*4)
}

// Store writes payload word i of p.
func (h *Heap) Store(p Pointer, i int, v uint32) {
	_, n := h.payload("store", p)
	if i < 0 || uint32(i) >= n/4 {
		h.fatal("store", ErrInvalidRequest, "word %d outside the %d-byte payload at %d", i, n, p)
	}
	h.setWord(uint32(p)+uint32(i)*4, v)
}

// Bytes returns the payload of p. The slice aliases the arena and is
// valid until the block is reclaimed.
func (h *Heap) Bytes(p Pointer) []byte {
	_, n := h.payload("bytes", p)
	return h.arena[uint32(p) : uint32(p)+n]
}
