package bytecode

import (
	"encoding/binary"
	"fmt"
)

// ---------------------------------------------------------------------------
// Builder: helper for constructing JVM bytecode
// ---------------------------------------------------------------------------

// Builder constructs bytecode sequences. Multi-byte operands are
// big-endian, as in class files.
type Builder struct {
	bytes []byte
	err   error
}

// NewBuilder creates a new bytecode builder.
func NewBuilder() *Builder {
	return &Builder{
		bytes: make([]byte, 0, 64),
	}
}

// Bytes returns the constructed bytecode without checking labels; see
// Finish.
func (b *Builder) Bytes() []byte {
	return b.bytes
}

// Err returns the first error recorded while patching labels.
func (b *Builder) Err() error {
	return b.err
}

// Len returns the current length.
func (b *Builder) Len() int {
	return len(b.bytes)
}

// Emit appends an opcode with no operands.
func (b *Builder) Emit(op Opcode) {
	b.bytes = append(b.bytes, byte(op))
}

// EmitRaw appends raw bytes. Tests use it to produce malformed code.
func (b *Builder) EmitRaw(data ...byte) {
	b.bytes = append(b.bytes, data...)
}

// EmitByte appends an opcode with an unsigned 8-bit operand
// (local index, ldc index, newarray type).
func (b *Builder) EmitByte(op Opcode, operand byte) {
	b.bytes = append(b.bytes, byte(op), operand)
}

// EmitInt8 appends an opcode with a signed 8-bit operand (bipush).
func (b *Builder) EmitInt8(op Opcode, operand int8) {
	b.bytes = append(b.bytes, byte(op), byte(operand))
}

// EmitUint16 appends an opcode with a 16-bit operand
// (constant pool index).
func (b *Builder) EmitUint16(op Opcode, operand uint16) {
	b.bytes = append(b.bytes, byte(op), byte(operand>>8), byte(operand))
}

// EmitInt16 appends an opcode with a signed 16-bit operand (sipush).
func (b *Builder) EmitInt16(op Opcode, operand int16) {
	b.EmitUint16(op, uint16(operand))
}

// EmitLocal appends a load or store of local index, choosing the short
// _n form, the one-byte form, or a wide prefix as the index requires.
func (b *Builder) EmitLocal(op Opcode, index int) {
	if short, ok := shortForm(op, index); ok {
		b.Emit(short)
		return
	}
	if index <= 0xFF {
		b.EmitByte(op, byte(index))
		return
	}
	b.bytes = append(b.bytes, byte(OpWide), byte(op), byte(index>>8), byte(index))
}

// shortForm maps (iload, 2) to iload_2 and so on.
func shortForm(op Opcode, index int) (Opcode, bool) {
	if index < 0 || index > 3 {
		return 0, false
	}
	var base Opcode
	switch op {
	case OpIload:
		base = OpIload0
	case OpLload:
		base = OpLload0
	case OpFload:
		base = OpFload0
	case OpDload:
		base = OpDload0
	case OpAload:
		base = OpAload0
	case OpIstore:
		base = OpIstore0
	case OpLstore:
		base = OpLstore0
	case OpFstore:
		base = OpFstore0
	case OpDstore:
		base = OpDstore0
	case OpAstore:
		base = OpAstore0
	default:
		return 0, false
	}
	return base + Opcode(index), true
}

// EmitIinc appends iinc, widening when the index or delta needs it.
func (b *Builder) EmitIinc(index int, delta int) {
	if index <= 0xFF && delta >= -128 && delta <= 127 {
		b.bytes = append(b.bytes, byte(OpIinc), byte(index), byte(int8(delta)))
		return
	}
	b.bytes = append(b.bytes, byte(OpWide), byte(OpIinc),
		byte(index>>8), byte(index), byte(delta>>8), byte(delta))
}

// EmitInvokeInterface appends invokeinterface with its count byte and
// the trailing zero.
func (b *Builder) EmitInvokeInterface(index uint16, count byte) {
	b.bytes = append(b.bytes, byte(OpInvokeinterface), byte(index>>8), byte(index), count, 0)
}

// EmitMultiANewArray appends multianewarray.
func (b *Builder) EmitMultiANewArray(index uint16, dims byte) {
	b.bytes = append(b.bytes, byte(OpMultianewarray), byte(index>>8), byte(index), dims)
}

// ---------------------------------------------------------------------------
// Label management for jumps
// ---------------------------------------------------------------------------

// Label represents a branch target that may not be placed yet.
type Label struct {
	resolved bool
	position int        // target offset once resolved
	refs     []labelRef // operands waiting for the target
}

// labelRef is one operand to patch. JVM offsets are relative to the
// start of the referencing instruction, not its operand.
type labelRef struct {
	insn    int
	operand int
	width   int
}

// NewLabel creates an unresolved label.
func (b *Builder) NewLabel() *Label {
	return &Label{refs: make([]labelRef, 0, 2)}
}

// Position returns the label's target offset and whether it is placed.
func (l *Label) Position() (int, bool) {
	return l.position, l.resolved
}

// Mark resolves a label to the current position and patches all
// forward references.
func (b *Builder) Mark(label *Label) {
	if label.resolved {
		panic("label already resolved")
	}
	label.resolved = true
	label.position = len(b.bytes)
	for _, ref := range label.refs {
		b.patch(ref, label.position)
	}
	label.refs = nil
}

func (b *Builder) patch(ref labelRef, target int) {
	offset := target - ref.insn
	switch ref.width {
	case 2:
		if offset < -32768 || offset > 32767 {
			if b.err == nil {
				b.err = fmt.Errorf("branch at %d: offset %d does not fit in 16 bits", ref.insn, offset)
			}
			return
		}
		binary.BigEndian.PutUint16(b.bytes[ref.operand:], uint16(int16(offset)))
	case 4:
		binary.BigEndian.PutUint32(b.bytes[ref.operand:], uint32(int32(offset)))
	}
}

// reference emits a placeholder operand of the given width for label,
// patching it immediately when the label is already placed.
func (b *Builder) reference(insn int, label *Label, width int) {
	ref := labelRef{insn: insn, operand: len(b.bytes), width: width}
	b.bytes = append(b.bytes, make([]byte, width)...)
	if label.resolved {
		b.patch(ref, label.position)
	} else {
		label.refs = append(label.refs, ref)
	}
}

// EmitJump emits a branch instruction targeting label. goto_w and jsr_w
// get a 4-byte offset, every other branch a 2-byte one.
func (b *Builder) EmitJump(op Opcode, label *Label) {
	insn := len(b.bytes)
	b.bytes = append(b.bytes, byte(op))
	width := 2
	if op == OpGotoW || op == OpJsrW {
		width = 4
	}
	b.reference(insn, label, width)
}

// EmitJumpOffset emits a branch with a literal relative offset, for
// producing targets that no label could name.
func (b *Builder) EmitJumpOffset(op Opcode, offset int) {
	b.bytes = append(b.bytes, byte(op))
	if op == OpGotoW || op == OpJsrW {
		b.bytes = binary.BigEndian.AppendUint32(b.bytes, uint32(int32(offset)))
		return
	}
	b.bytes = binary.BigEndian.AppendUint16(b.bytes, uint16(int16(offset)))
}

// pad appends the zero bytes that align switch operands to a 4-byte
// boundary measured from the start of the code.
func (b *Builder) pad() {
	for len(b.bytes)%4 != 0 {
		b.bytes = append(b.bytes, 0)
	}
}

// EmitTableSwitch emits a tableswitch covering keys low..low+len(cases)-1.
func (b *Builder) EmitTableSwitch(low int32, def *Label, cases ...*Label) {
	insn := len(b.bytes)
	b.bytes = append(b.bytes, byte(OpTableswitch))
	b.pad()
	b.reference(insn, def, 4)
	high := low + int32(len(cases)) - 1
	b.bytes = binary.BigEndian.AppendUint32(b.bytes, uint32(low))
	b.bytes = binary.BigEndian.AppendUint32(b.bytes, uint32(high))
	for _, c := range cases {
		b.reference(insn, c, 4)
	}
}

// SwitchCase pairs a lookupswitch key with its target.
type SwitchCase struct {
	Key    int32
	Target *Label
}

// EmitLookupSwitch emits a lookupswitch. Cases must already be sorted by
// key, as the JVM requires.
func (b *Builder) EmitLookupSwitch(def *Label, cases ...SwitchCase) {
	insn := len(b.bytes)
	b.bytes = append(b.bytes, byte(OpLookupswitch))
	b.pad()
	b.reference(insn, def, 4)
	b.bytes = binary.BigEndian.AppendUint32(b.bytes, uint32(len(cases)))
	for _, c := range cases {
		b.bytes = binary.BigEndian.AppendUint32(b.bytes, uint32(c.Key))
		b.reference(insn, c.Target, 4)
	}
}

// Finish checks that every referenced label was placed and returns the
// code.
func (b *Builder) Finish(labels ...*Label) ([]byte, error) {
	for _, l := range labels {
		if !l.resolved && len(l.refs) > 0 {
			return nil, fmt.Errorf("label referenced at %d never marked", l.refs[0].insn)
		}
	}
	if b.err != nil {
		return nil, b.err
	}
	return b.bytes, nil
}
