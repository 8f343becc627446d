// Package heap implements the runtime object space: a single byte arena
// carved into size-prefixed blocks, a first-fit free list kept in
// address order, and a mark-sweep collector whose mark bits live in the
// block headers.
//
// Handles are 32-bit offsets into the arena, so heap references stay
// four bytes on every host and never expose Go pointers.
package heap

import (
	"encoding/binary"

	"github.com/tliron/commonlog"

	"github.com/chazu/keel/trace"
)

const (
	// HeaderSize is the size word plus the layout word of an allocated
	// block.
	HeaderSize = 8

	// MinBlockSize is the smallest block: a free block needs its size,
	// its link and the free tag.
	MinBlockSize = 12

	// MinPayload and MaxPayload bound Allocate requests.
	MinPayload = 4
	MaxPayload = MaxBlockSize - HeaderSize

	// MaxBlockSize is the largest size the 31 usable bits of a size word
	// hold, rounded down to a multiple of 4.
	MaxBlockSize = 0x7FFFFFFC

	// MarkBit is the top bit of the size word.
	MarkBit = 0x80000000

	// FreeTag is stored in the third word of every free block.
	FreeTag = 0x0BADA550

	endOfList = 0xFFFFFFFF
)

// Pointer is the offset of a block's payload from the arena base. Nil
// is never a valid payload offset.
type Pointer uint32

const Nil Pointer = 0

// RootSource enumerates words that may reference the heap. The
// collector reads them once per cycle and never retains them.
type RootSource interface {
	ScanRoots(visit func(word uint32))
}

// RootFunc adapts a function to RootSource.
type RootFunc func(visit func(word uint32))

func (f RootFunc) ScanRoots(visit func(word uint32)) {
	f(visit)
}

type gcState int

const (
	idle gcState = iota
	marking
	sweeping
)

func (s gcState) String() string {
	switch s {
	case marking:
		return "marking"
	case sweeping:
		return "sweeping"
	}
	return "idle"
}

// Heap is one arena with its free list, roots and statistics. It is not
// safe for concurrent use.
type Heap struct {
	arena []byte
	head  uint32 // first free block, or endOfList

	roots    []RootSource
	state    gcState
	retrying bool

	// per-collection scratch
	blocks    []uint64 // bit per word: an allocated block starts here
	markStack []uint32

	counters counters

	log     commonlog.Logger
	heapT   trace.Tracer
	gcT     trace.Tracer
	flags   trace.Flags
	onFatal FatalHandler
}

// Option configures a Heap.
type Option func(*Heap)

// WithTrace enables allocation tracing (trace.Heap) and collection
// tracing (trace.GC).
func WithTrace(flags trace.Flags) Option {
	return func(h *Heap) { h.flags = flags }
}

// WithLogger replaces the keel.heap logger.
func WithLogger(log commonlog.Logger) Option {
	return func(h *Heap) { h.log = log }
}

// WithFatalHandler replaces the default handler, which logs the error
// and exits with status 2.
func WithFatalHandler(fn FatalHandler) Option {
	return func(h *Heap) { h.onFatal = fn }
}

// WithRoots registers root sources.
func WithRoots(roots ...RootSource) Option {
	return func(h *Heap) { h.roots = append(h.roots, roots...) }
}

// New creates a heap of size bytes, rounded down to a multiple of 4, as
// one free block.
func New(size int, opts ...Option) *Heap {
	h := &Heap{
		head: endOfList,
		log:  commonlog.GetLogger(trace.HeapLogger),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.onFatal == nil {
		h.onFatal = exitHandler(h.log)
	}
	h.heapT = trace.NewTracer(h.flags, trace.Heap, h.log)
	h.gcT = trace.NewTracer(h.flags, trace.GC, h.log)

	rounded := size &^ 3
	if rounded < MinBlockSize || size > MaxBlockSize {
		h.fatal("init", ErrInvalidRequest, "arena size %d outside [%d, %d]", size, MinBlockSize, MaxBlockSize)
	}
	h.arena = make([]byte, rounded)
	h.writeFree(0, uint32(rounded), endOfList)
	h.head = 0
	h.log.Infof("heap initialized: %d bytes", rounded)
	return h
}

// AddRoots registers more root sources.
func (h *Heap) AddRoots(roots ...RootSource) {
	h.roots = append(h.roots, roots...)
}

// Size returns the arena size in bytes.
func (h *Heap) Size() int {
	return len(h.arena)
}

func (h *Heap) word(off uint32) uint32 {
	return binary.LittleEndian.Uint32(h.arena[off:])
}

func (h *Heap) setWord(off, v uint32) {
	binary.LittleEndian.PutUint32(h.arena[off:], v)
}

func (h *Heap) blockSize(off uint32) uint32 {
	return h.word(off) &^ MarkBit
}

func (h *Heap) next(off uint32) uint32 {
	return h.word(off + 4)
}

// setNext makes the block after prev (or the head when prev is
// endOfList) point at v.
func (h *Heap) setNext(prev, v uint32) {
	if prev == endOfList {
		h.head = v
		return
	}
	h.setWord(prev+4, v)
}

func (h *Heap) writeFree(off, size, next uint32) {
	h.setWord(off, size)
	h.setWord(off+4, next)
	h.setWord(off+8, FreeTag)
}
