package vm

import (
	"github.com/pkg/errors"

	"github.com/chazu/keel/heap"
)

// Objects are heap blocks whose first payload word is the handle of their
// class record; fields follow.
const classWord = 0

// New allocates a zeroed instance of the named class with fields payload
// words. refs lists the fields that hold heap references; the collector
// follows only those. Objects too wide for a precise layout are scanned
// conservatively.
func (vm *VM) New(class string, fields int, refs ...int) (heap.Pointer, error) {
	vm.mu.Lock()
	defer vm.mu.Unlock()

	c, ok := vm.classes[class]
	if !ok {
		return heap.Nil, errors.Wrapf(ErrUnknownClass, "%s", class)
	}
	if fields < 0 {
		return heap.Nil, errors.Wrapf(ErrFieldRange, "%d fields", fields)
	}
	slots := []int{classWord}
	precise := true
	for _, r := range refs {
		if r < 0 || r >= fields {
			return heap.Nil, errors.Wrapf(ErrFieldRange, "reference field %d of %d", r, fields)
		}
		if r+1 >= heap.MaxPointerSlots {
			precise = false
		}
		slots = append(slots, r+1)
	}
	layout := heap.Conservative
	if precise {
		layout = heap.PointerSlots(slots...)
	}

	p := vm.heap.Allocate((fields+1)*4, layout)
	vm.heap.Store(p, classWord, uint32(c.Record))
	return p, nil
}

// ClassOf returns the class of obj.
func (vm *VM) ClassOf(obj heap.Pointer) (*Class, error) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	c, _, err := vm.object(obj)
	return c, err
}

// Field reads field i of obj.
func (vm *VM) Field(obj heap.Pointer, i int) (uint32, error) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	if err := vm.field(obj, i); err != nil {
		return 0, err
	}
	return vm.heap.Load(obj, i+1), nil
}

// SetField writes field i of obj.
func (vm *VM) SetField(obj heap.Pointer, i int, v uint32) error {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	if err := vm.field(obj, i); err != nil {
		return err
	}
	vm.heap.Store(obj, i+1, v)
	return nil
}

func (vm *VM) field(obj heap.Pointer, i int) error {
	_, fields, err := vm.object(obj)
	if err != nil {
		return err
	}
	if i < 0 || i >= fields {
		return errors.Wrapf(ErrFieldRange, "field %d of %d", i, fields)
	}
	return nil
}

// object checks that obj is an instance of a loaded class and returns
// the class and its field count.
func (vm *VM) object(obj heap.Pointer) (*Class, int, error) {
	if !vm.heap.IsAllocated(obj) {
		return nil, 0, errors.Wrapf(ErrNotAnObject, "handle %d is not an allocated block", obj)
	}
	c, ok := vm.classOfRecord(heap.Pointer(vm.heap.Load(obj, classWord)))
	if !ok {
		return nil, 0, errors.Wrapf(ErrNotAnObject, "handle %d has no class", obj)
	}
	return c, vm.heap.PayloadSize(obj)/4 - 1, nil
}
