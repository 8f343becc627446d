package vm

import (
	"github.com/pkg/errors"

	"github.com/chazu/keel/heap"
)

// Push pushes one operand word. Words that happen to look like handles
// keep their blocks alive.
func (vm *VM) Push(v uint32) error {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	if len(vm.stack) >= vm.maxStack {
		return errors.Wrapf(ErrStackOverflow, "%d slots", vm.maxStack)
	}
	vm.stack = append(vm.stack, v)
	return nil
}

// PushRef pushes a heap handle.
func (vm *VM) PushRef(p heap.Pointer) error {
	return vm.Push(uint32(p))
}

// Pop removes and returns the top operand word.
func (vm *VM) Pop() (uint32, error) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	n := len(vm.stack)
	if n == 0 {
		return 0, ErrStackUnderflow
	}
	v := vm.stack[n-1]
	vm.stack = vm.stack[:n-1]
	return v, nil
}

// Depth returns the number of words on the operand stack.
func (vm *VM) Depth() int {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return len(vm.stack)
}
