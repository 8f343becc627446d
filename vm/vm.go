// Package vm is the runtime glue around the verifier and the heap. A VM
// owns one heap and one verifier, loads verified classes into a class
// list kept on the heap, and exposes its operand stack and static roots
// to the collector.
package vm

import (
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	"github.com/chazu/keel/classfile"
	"github.com/chazu/keel/config"
	"github.com/chazu/keel/descriptor"
	"github.com/chazu/keel/heap"
	"github.com/chazu/keel/trace"
	"github.com/chazu/keel/verifier"
)

// ---------------------------------------------------------------------------
// VM
// ---------------------------------------------------------------------------

// VM is one runtime instance. Its methods serialize on a single mutex, so
// a VM may be shared between goroutines.
type VM struct {
	ID uuid.UUID

	mu       sync.Mutex
	heap     *heap.Heap
	verifier *verifier.Verifier
	table    *descriptor.ClassTable
	verify   bool

	// Loaded classes by name. Each has a record block on the heap; the
	// records form a list headed by classList.
	classes   map[string]*Class
	order     []*Class
	classList heap.Pointer

	// console is the handle of the console object, a static root.
	console heap.Pointer

	stack    []uint32
	maxStack int

	log commonlog.Logger
}

type settings struct {
	heapSize   int
	stackSlots int
	verify     bool
	flags      trace.Flags
	heapOpts   []heap.Option
	log        commonlog.Logger
}

// Option configures a VM.
type Option func(*settings)

// WithHeapSize sets the arena size in bytes.
func WithHeapSize(n int) Option {
	return func(s *settings) { s.heapSize = n }
}

// WithStackSlots sets the operand stack capacity in words.
func WithStackSlots(n int) Option {
	return func(s *settings) { s.stackSlots = n }
}

// WithVerification turns class verification on or off.
func WithVerification(on bool) Option {
	return func(s *settings) { s.verify = on }
}

// WithTrace passes trace flags to the heap and the verifier.
func WithTrace(flags trace.Flags) Option {
	return func(s *settings) { s.flags = flags }
}

// WithHeapOptions passes extra options to heap.New.
func WithHeapOptions(opts ...heap.Option) Option {
	return func(s *settings) { s.heapOpts = append(s.heapOpts, opts...) }
}

// WithLogger replaces the keel.vm logger.
func WithLogger(log commonlog.Logger) Option {
	return func(s *settings) { s.log = log }
}

// WithConfig applies a loaded configuration. The configuration must have
// passed Validate.
func WithConfig(c *config.Config) Option {
	return func(s *settings) {
		s.heapSize = c.Heap.Size.Bytes()
		s.stackSlots = c.Heap.StackSlots
		s.verify = c.Verifier.Enabled
		if flags, err := c.TraceFlags(); err == nil {
			s.flags = flags
		}
	}
}

// New creates a VM with an empty class list and a console object.
func New(opts ...Option) *VM {
	def := config.Default()
	s := settings{
		heapSize:   def.Heap.Size.Bytes(),
		stackSlots: def.Heap.StackSlots,
		verify:     def.Verifier.Enabled,
		log:        commonlog.GetLogger(trace.VMLogger),
	}
	for _, opt := range opts {
		opt(&s)
	}

	vm := &VM{
		ID:       uuid.New(),
		table:    descriptor.NewClassTable(),
		verify:   s.verify,
		classes:  make(map[string]*Class),
		stack:    make([]uint32, 0, s.stackSlots),
		maxStack: s.stackSlots,
		log:      s.log,
	}
	hopts := append([]heap.Option{heap.WithTrace(s.flags), heap.WithRoots(vm)}, s.heapOpts...)
	vm.heap = heap.New(s.heapSize, hopts...)
	vm.verifier = verifier.New(
		verifier.WithHierarchy(vm.table),
		verifier.WithTrace(s.flags),
	)
	vm.console = vm.heap.Allocate(consoleSize, heap.NoPointers)

	vm.log.Infof("vm %s: started with %d byte heap, %d stack slots", vm.ID, vm.heap.Size(), vm.maxStack)
	return vm
}

// consoleSize is the payload of the console object: a single output
// stream descriptor word.
const consoleSize = 4

// Console returns the handle of the console object.
func (vm *VM) Console() heap.Pointer {
	return vm.console
}

// Heap returns the VM's heap. Callers that use it directly must not race
// with other VM methods.
func (vm *VM) Heap() *heap.Heap {
	return vm.heap
}

// Hierarchy returns the class table loaded classes are defined in.
func (vm *VM) Hierarchy() *descriptor.ClassTable {
	return vm.table
}

// ScanRoots reports the console, the class list and every operand stack
// word. The collector calls it with the VM lock already held.
func (vm *VM) ScanRoots(visit func(word uint32)) {
	visit(uint32(vm.console))
	visit(uint32(vm.classList))
	for _, w := range vm.stack {
		visit(w)
	}
}

// Collect runs a full collection.
func (vm *VM) Collect() {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.heap.Collect()
}

// ---------------------------------------------------------------------------
// Statistics
// ---------------------------------------------------------------------------

// Stats describes a VM and its heap.
type Stats struct {
	ID         uuid.UUID
	Classes    int
	StackDepth int
	heap.Stats
}

// Stats returns a snapshot of the VM.
func (vm *VM) Stats() Stats {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return Stats{
		ID:         vm.ID,
		Classes:    len(vm.order),
		StackDepth: len(vm.stack),
		Stats:      vm.heap.Stats(),
	}
}

// WriteStats prints the VM summary followed by the heap report.
func (vm *VM) WriteStats(w io.Writer) {
	s := vm.Stats()
	fmt.Fprintf(w, "VM %s: %d classes loaded, stack depth %d\n\n", s.ID, s.Classes, s.StackDepth)
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.heap.WriteStats(w)
}

// Dump writes the heap block list.
func (vm *VM) Dump(w io.Writer) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.heap.Dump(w)
}

// Check verifies the heap invariants.
func (vm *VM) Check() error {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.heap.Check()
}

var _ heap.RootSource = (*VM)(nil)

// Verifier returns the verifier classes are checked with.
func (vm *VM) Verifier() *verifier.Verifier {
	return vm.verifier
}

// Classes returns the loaded classes in load order.
func (vm *VM) Classes() []*classfile.Class {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	out := make([]*classfile.Class, len(vm.order))
	for i, c := range vm.order {
		out[i] = c.File
	}
	return out
}
