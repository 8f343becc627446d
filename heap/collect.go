package heap

// Collect runs one full mark-sweep cycle: every block reachable from the
// registered roots survives and every other allocated block returns to
// the free list. Collect must not be called while a collection is in
// progress.
func (h *Heap) Collect() {
	if h.state != idle {
		h.fatal("collect", ErrInvalidRequest, "collection requested while %s", h.state)
	}
	defer h.abandon()
	h.counters.collections++
	h.gcT.Printf("collection %d starting", h.counters.collections)

	h.state = marking
	h.findBlocks()
	roots := 0
	for _, src := range h.roots {
		src.ScanRoots(func(word uint32) {
			roots++
			h.markWord(word)
		})
	}
	marked := h.drain()
	h.gcT.Printf("marked %d blocks from %d root words", marked, roots)

	h.state = sweeping
	bytes, blocks := h.sweep()
	h.counters.bytesRecovered += bytes
	h.counters.blocksRecovered += blocks
	h.blocks = h.blocks[:0]
	h.state = idle

	h.log.Infof("collection %d recovered %d bytes in %d blocks", h.counters.collections, bytes, blocks)
}

// abandon returns the heap to idle when a fatal error unwinds a
// collection, clearing the mark bits set so far. A sweep that was cut
// short may leave free blocks off the list; they stay unusable but do
// not break the block tiling.
func (h *Heap) abandon() {
	if h.state == idle {
		return
	}
	h.gcT.Printf("collection %d abandoned while %s", h.counters.collections, h.state)
	h.state = idle
	h.blocks = h.blocks[:0]
	h.markStack = h.markStack[:0]
	n := uint32(len(h.arena))
	for off := uint32(0); off < n; {
		size := h.word(off) &^ MarkBit
		if size < MinBlockSize || size&3 != 0 || size > n-off {
			return
		}
		h.setWord(off, size)
		off += size
	}
}

// findBlocks walks the arena and records where allocated blocks begin.
// Any block that does not tile the arena is corruption.
func (h *Heap) findBlocks() {
	n := uint32(len(h.arena))
	words := (int(n)/4 + 63) / 64
	if cap(h.blocks) < words {
		h.blocks = make([]uint64, words)
	} else {
		h.blocks = h.blocks[:words]
		clear(h.blocks)
	}
	for off := uint32(0); off < n; {
		raw := h.word(off)
		size := raw &^ MarkBit
		if size < MinBlockSize || size&3 != 0 || size > n-off {
			h.fatal("collect", ErrHeapCorruption, "block at %d has bad size word %#x", off, raw)
		}
		if raw&MarkBit != 0 {
			h.fatal("collect", ErrHeapCorruption, "block at %d marked outside a collection", off)
		}
		h.setBlock(off, true)
		off += size
	}
	for off := h.head; off != endOfList; off = h.next(off) {
		if off&3 != 0 || off >= n || !h.isBlock(off) {
			h.fatal("collect", ErrHeapCorruption, "free list entry %d is not a block", off)
		}
		h.setBlock(off, false)
	}
}

func (h *Heap) setBlock(off uint32, v bool) {
	w, b := off/4/64, off/4%64
	if v {
		h.blocks[w] |= 1 << b
	} else {
		h.blocks[w] &^= 1 << b
	}
}

func (h *Heap) isBlock(off uint32) bool {
	w, b := off/4/64, off/4%64
	return h.blocks[w]&(1<<b) != 0
}

// plausible reports whether word is the payload handle of an allocated
// block. Every handle Allocate returned for a live block passes.
func (h *Heap) plausible(word uint32) bool {
	n := uint32(len(h.arena))
	if word&3 != 0 || word < HeaderSize || word > n-MinPayload {
		return false
	}
	return h.isBlock(word - HeaderSize)
}

// markWord marks the block word refers to, if any, and queues it for
// scanning.
func (h *Heap) markWord(word uint32) {
	if !h.plausible(word) {
		return
	}
	off := word - HeaderSize
	raw := h.word(off)
	if raw&MarkBit != 0 {
		return
	}
	h.setWord(off, raw|MarkBit)
	h.markStack = append(h.markStack, off)
}

// drain scans queued blocks until the mark stack is empty and returns
// how many it scanned.
func (h *Heap) drain() int {
	scanned := 0
	for len(h.markStack) > 0 {
		off := h.markStack[len(h.markStack)-1]
		h.markStack = h.markStack[:len(h.markStack)-1]
		scanned++

		layout := Layout(h.word(off + 4))
		if layout == NoPointers {
			continue
		}
		words := int(h.blockSize(off)-HeaderSize) / 4
		for i := 0; i < words; i++ {
			if layout.Slot(i) {
				h.markWord(h.word(off + HeaderSize + uint32(i)*4))
			}
		}
	}
	return scanned
}

// sweep clears mark bits on live blocks and rebuilds the free list from
// everything else, merging each run of dead and free blocks into one.
// It returns the bytes and blocks reclaimed from allocated garbage.
func (h *Heap) sweep() (int64, int) {
	var bytes int64
	blocks := 0
	n := uint32(len(h.arena))
	h.head = endOfList
	tail := uint32(endOfList)
	runStart, inRun := uint32(0), false

	closeRun := func(end uint32) {
		if !inRun {
			return
		}
		h.setWord(runStart, end-runStart)
		tail = h.release(Pointer(runStart+HeaderSize), tail)
		inRun = false
	}

	for off := uint32(0); off < n; {
		raw := h.word(off)
		size := raw &^ MarkBit
		if size < MinBlockSize || size&3 != 0 || size > n-off {
			h.fatal("collect", ErrHeapCorruption, "sweep found bad size word %#x at %d", raw, off)
		}
		if raw&MarkBit != 0 {
			closeRun(off)
			h.setWord(off, size)
		} else {
			if h.isBlock(off) {
				bytes += int64(size)
				blocks++
				h.gcT.Printf("reclaimed %d bytes at %d", size, off)
			}
			if !inRun {
				runStart, inRun = off, true
			}
		}
		off += size
	}
	closeRun(n)
	return bytes, blocks
}
