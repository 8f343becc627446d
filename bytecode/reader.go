package bytecode

import "encoding/binary"

// ---------------------------------------------------------------------------
// Reader: sequential access for disassembly
// ---------------------------------------------------------------------------

// Reader reads bytecode sequentially. Its methods panic on underflow;
// callers that handle untrusted code use Decode instead.
type Reader struct {
	bytes []byte
	pos   int
}

// NewReader creates a reader for bytecode.
func NewReader(code []byte) *Reader {
	return &Reader{bytes: code}
}

// Position returns the current read position.
func (r *Reader) Position() int {
	return r.pos
}

// HasMore returns true if there are more bytes to read.
func (r *Reader) HasMore() bool {
	return r.pos < len(r.bytes)
}

// ReadOpcode reads and returns the next opcode.
func (r *Reader) ReadOpcode() Opcode {
	return Opcode(r.ReadByte())
}

// ReadByte reads a single unsigned byte.
func (r *Reader) ReadByte() byte {
	if r.pos >= len(r.bytes) {
		panic("bytecode underflow")
	}
	b := r.bytes[r.pos]
	r.pos++
	return b
}

// ReadInt8 reads a signed byte.
func (r *Reader) ReadInt8() int8 {
	return int8(r.ReadByte())
}

// ReadUint16 reads a big-endian 16-bit operand.
func (r *Reader) ReadUint16() uint16 {
	if r.pos+2 > len(r.bytes) {
		panic("bytecode underflow")
	}
	v := binary.BigEndian.Uint16(r.bytes[r.pos:])
	r.pos += 2
	return v
}

// ReadInt16 reads a signed big-endian 16-bit operand.
func (r *Reader) ReadInt16() int16 {
	return int16(r.ReadUint16())
}

// ReadInt32 reads a signed big-endian 32-bit operand.
func (r *Reader) ReadInt32() int32 {
	if r.pos+4 > len(r.bytes) {
		panic("bytecode underflow")
	}
	v := binary.BigEndian.Uint32(r.bytes[r.pos:])
	r.pos += 4
	return int32(v)
}

// Align skips switch padding so the position is a multiple of 4.
func (r *Reader) Align() {
	for r.pos%4 != 0 {
		r.pos++
	}
}

// Skip advances the position by n bytes.
func (r *Reader) Skip(n int) {
	r.pos += n
}

// Seek sets the read position.
func (r *Reader) Seek(pos int) {
	r.pos = pos
}
