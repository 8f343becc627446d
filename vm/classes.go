package vm

import (
	"github.com/pkg/errors"

	"github.com/chazu/keel/classfile"
	"github.com/chazu/keel/heap"
)

var (
	ErrDuplicateClass = errors.New("class already loaded")
	ErrUnknownClass   = errors.New("class not loaded")
	ErrInvalidClass   = errors.New("invalid class")
	ErrNotAnObject    = errors.New("not an object")
	ErrFieldRange     = errors.New("field index out of range")
	ErrStackOverflow  = errors.New("operand stack overflow")
	ErrStackUnderflow = errors.New("operand stack underflow")
)

// Class is a loaded class and its record on the heap.
type Class struct {
	File   *classfile.Class
	Record heap.Pointer
	index  int
}

// Name returns the class name.
func (c *Class) Name() string {
	return c.File.Name
}

// Class record payload words.
const (
	recordNext  = 0 // next record in the class list
	recordIndex = 1 // position in load order
	recordSize  = 8
)

// LoadClass verifies cls and adds it to the class list. A class that
// fails verification is rejected with the *verifier.VerifyError and
// leaves the VM as it was.
func (vm *VM) LoadClass(cls *classfile.Class) (*Class, error) {
	vm.mu.Lock()
	defer vm.mu.Unlock()

	if err := cls.Validate(); err != nil {
		return nil, errors.Wrap(ErrInvalidClass, err.Error())
	}
	if _, ok := vm.classes[cls.Name]; ok {
		return nil, errors.Wrapf(ErrDuplicateClass, "%s", cls.Name)
	}

	// Methods may merge references to their own class, so the class is
	// defined before it is verified.
	vm.table.Define(cls.Name, cls.Super)
	if vm.verify {
		if err := vm.verifier.VerifyClass(cls); err != nil {
			vm.table.Remove(cls.Name)
			vm.log.Infof("vm %s: rejected class %s: %v", vm.ID, cls.Name, err)
			return nil, err
		}
	}

	rec := vm.heap.Allocate(recordSize, heap.PointerSlots(recordNext))
	c := &Class{File: cls, Record: rec, index: len(vm.order)}
	vm.heap.Store(rec, recordNext, uint32(vm.classList))
	vm.heap.Store(rec, recordIndex, uint32(c.index))
	vm.classList = rec
	vm.classes[cls.Name] = c
	vm.order = append(vm.order, c)

	vm.log.Infof("vm %s: loaded class %s", vm.ID, cls.Name)
	return c, nil
}

// LoadClasses loads classes in order and stops at the first failure.
func (vm *VM) LoadClasses(classes []*classfile.Class) error {
	for _, cls := range classes {
		if _, err := vm.LoadClass(cls); err != nil {
			return err
		}
	}
	return nil
}

// Class looks up a loaded class.
func (vm *VM) Class(name string) (*Class, bool) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	c, ok := vm.classes[name]
	return c, ok
}

// classOfRecord maps a class record handle back to its class.
func (vm *VM) classOfRecord(rec heap.Pointer) (*Class, bool) {
	for r := vm.classList; r != heap.Nil; r = heap.Pointer(vm.heap.Load(r, recordNext)) {
		if r == rec {
			idx := int(vm.heap.Load(r, recordIndex))
			if idx < len(vm.order) {
				return vm.order[idx], true
			}
			return nil, false
		}
	}
	return nil, false
}
