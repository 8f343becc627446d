package bytecode

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Decoding failures. DecodeError wraps one of these.
var (
	ErrUnknownOpcode = errors.New("unknown opcode")
	ErrTruncated     = errors.New("truncated instruction")
	ErrBadSwitch     = errors.New("malformed switch")
	ErrBadWide       = errors.New("illegal wide prefix")
)

// DecodeError reports where an instruction could not be decoded.
type DecodeError struct {
	Offset int
	Op     Opcode
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("offset %d (%s): %v", e.Offset, e.Op, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Instruction is one decoded instruction. Only the fields meaningful for
// Op are set; branch and switch targets are absolute code offsets.
type Instruction struct {
	Offset int
	Op     Opcode
	Wide   bool
	Length int

	Index   int // local index, constant pool index, or newarray type code
	Value   int // bipush/sipush literal, iinc delta, interface arg count, array dimensions
	Target  int // branch target
	Default int // switch default target
	Keys    []int32
	Targets []int
}

// Next returns the offset of the following instruction.
func (in Instruction) Next() int {
	return in.Offset + in.Length
}

// Decode decodes the instruction at pc. It never panics on malformed or
// truncated code.
func Decode(code []byte, pc int) (Instruction, error) {
	if pc < 0 || pc >= len(code) {
		return Instruction{}, &DecodeError{Offset: pc, Err: ErrTruncated}
	}
	op := Opcode(code[pc])
	in := Instruction{Offset: pc, Op: op}
	info, ok := opcodeTable[op]
	if !ok {
		return in, &DecodeError{Offset: pc, Op: op, Err: ErrUnknownOpcode}
	}
	fail := func(err error) (Instruction, error) {
		return in, &DecodeError{Offset: pc, Op: op, Err: err}
	}

	switch op {
	case OpTableswitch, OpLookupswitch:
		return decodeSwitch(code, in)
	case OpWide:
		return decodeWide(code, in)
	}

	end := pc + 1 + info.OperandBytes
	if end > len(code) {
		return fail(ErrTruncated)
	}
	in.Length = 1 + info.OperandBytes
	operands := code[pc+1 : end]
	u2 := func() int { return int(binary.BigEndian.Uint16(operands)) }

	switch {
	case op == OpBipush:
		in.Value = int(int8(operands[0]))
	case op == OpSipush:
		in.Value = int(int16(u2()))
	case op == OpIinc:
		in.Index = int(operands[0])
		in.Value = int(int8(operands[1]))
	case op == OpGotoW || op == OpJsrW:
		in.Target = pc + int(int32(binary.BigEndian.Uint32(operands)))
	case op.IsBranch():
		in.Target = pc + int(int16(u2()))
	case op == OpInvokeinterface:
		in.Index = u2()
		in.Value = int(operands[2])
	case op == OpMultianewarray:
		in.Index = u2()
		in.Value = int(operands[2])
	case info.OperandBytes == 1:
		in.Index = int(operands[0])
	case info.OperandBytes >= 2:
		in.Index = u2()
	}
	return in, nil
}

func decodeWide(code []byte, in Instruction) (Instruction, error) {
	pc := in.Offset
	if pc+1 >= len(code) {
		return in, &DecodeError{Offset: pc, Op: OpWide, Err: ErrTruncated}
	}
	op := Opcode(code[pc+1])
	if !op.Wideable() {
		return in, &DecodeError{Offset: pc, Op: OpWide, Err: fmt.Errorf("%w: %s", ErrBadWide, op)}
	}
	in.Op = op
	in.Wide = true
	in.Length = 4
	if op == OpIinc {
		in.Length = 6
	}
	if pc+in.Length > len(code) {
		return in, &DecodeError{Offset: pc, Op: OpWide, Err: ErrTruncated}
	}
	in.Index = int(binary.BigEndian.Uint16(code[pc+2:]))
	if op == OpIinc {
		in.Value = int(int16(binary.BigEndian.Uint16(code[pc+4:])))
	}
	return in, nil
}

func decodeSwitch(code []byte, in Instruction) (Instruction, error) {
	pc := in.Offset
	fail := func(err error) (Instruction, error) {
		return in, &DecodeError{Offset: pc, Op: in.Op, Err: err}
	}
	pos := pc + 1
	for pos%4 != 0 {
		pos++
	}
	word := func() (int32, bool) {
		if pos+4 > len(code) {
			return 0, false
		}
		v := int32(binary.BigEndian.Uint32(code[pos:]))
		pos += 4
		return v, true
	}

	def, ok := word()
	if !ok {
		return fail(ErrTruncated)
	}
	in.Default = pc + int(def)

	if in.Op == OpTableswitch {
		low, ok1 := word()
		high, ok2 := word()
		if !ok1 || !ok2 {
			return fail(ErrTruncated)
		}
		if high < low {
			return fail(fmt.Errorf("%w: high %d < low %d", ErrBadSwitch, high, low))
		}
		n := int64(high) - int64(low) + 1
		if int64(len(code)-pos) < n*4 {
			return fail(ErrTruncated)
		}
		in.Keys = make([]int32, 0, n)
		in.Targets = make([]int, 0, n)
		for k := int64(0); k < n; k++ {
			off, _ := word()
			in.Keys = append(in.Keys, int32(int64(low)+k))
			in.Targets = append(in.Targets, pc+int(off))
		}
	} else {
		npairs, ok := word()
		if !ok {
			return fail(ErrTruncated)
		}
		if npairs < 0 {
			return fail(fmt.Errorf("%w: negative pair count %d", ErrBadSwitch, npairs))
		}
		if int64(len(code)-pos) < int64(npairs)*8 {
			return fail(ErrTruncated)
		}
		in.Keys = make([]int32, 0, npairs)
		in.Targets = make([]int, 0, npairs)
		for i := int32(0); i < npairs; i++ {
			key, _ := word()
			off, _ := word()
			if i > 0 && key <= in.Keys[i-1] {
				return fail(fmt.Errorf("%w: keys not ascending at %d", ErrBadSwitch, key))
			}
			in.Keys = append(in.Keys, key)
			in.Targets = append(in.Targets, pc+int(off))
		}
	}
	in.Length = pos - pc
	return in, nil
}

// Successors returns the offsets control may reach after in: the
// fall-through (unless in ends a block) followed by branch and switch
// targets. jsr and ret are not modelled.
func (in Instruction) Successors() []int {
	var succ []int
	if !in.Op.EndsBlock() {
		succ = append(succ, in.Next())
	}
	switch {
	case in.Op.IsSwitch():
		succ = append(succ, in.Default)
		succ = append(succ, in.Targets...)
	case in.Op.IsBranch():
		succ = append(succ, in.Target)
	}
	return succ
}
