package verifier

import (
	"errors"
	"fmt"

	"github.com/chazu/keel/bytecode"
)

// ErrVerification matches every rejection returned by the verifier.
var ErrVerification = errors.New("verification failed")

// Per-kind sentinels. A *VerifyError matches ErrVerification and exactly
// one of these.
var (
	ErrMalformed      = errors.New("malformed code")
	ErrUnsupported    = errors.New("unsupported opcode")
	ErrLocalRange     = errors.New("local variable out of range")
	ErrConstantPool   = errors.New("bad constant pool reference")
	ErrBadTarget      = errors.New("bad jump target")
	ErrFallOff        = errors.New("control falls off the end of the code")
	ErrStackUnderflow = errors.New("stack underflow")
	ErrTypeMismatch   = errors.New("type mismatch")
	ErrStackOverflow  = errors.New("stack overflow")
	ErrStackHeight    = errors.New("stack height mismatch")
	ErrSignature      = errors.New("bad method signature")
)

// Kind classifies a rejection.
type Kind int

const (
	KindMalformed Kind = iota
	KindUnsupported
	KindLocalRange
	KindConstantPool
	KindBadTarget
	KindFallOff
	KindStackUnderflow
	KindTypeMismatch
	KindStackOverflow
	KindStackHeight
	KindSignature
)

var kindSentinels = [...]error{
	KindMalformed:      ErrMalformed,
	KindUnsupported:    ErrUnsupported,
	KindLocalRange:     ErrLocalRange,
	KindConstantPool:   ErrConstantPool,
	KindBadTarget:      ErrBadTarget,
	KindFallOff:        ErrFallOff,
	KindStackUnderflow: ErrStackUnderflow,
	KindTypeMismatch:   ErrTypeMismatch,
	KindStackOverflow:  ErrStackOverflow,
	KindStackHeight:    ErrStackHeight,
	KindSignature:      ErrSignature,
}

// Sentinel returns the error value errors.Is matches for k.
func (k Kind) Sentinel() error {
	if k < 0 || int(k) >= len(kindSentinels) {
		return ErrVerification
	}
	return kindSentinels[k]
}

func (k Kind) String() string {
	return k.Sentinel().Error()
}

// VerifyError is a rejection: the method, the instruction offset and
// opcode where verification stopped, and why.
type VerifyError struct {
	Class  string
	Method string // name and descriptor
	Offset int
	Opcode bytecode.Opcode
	Kind   Kind
	Reason string
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("verify %s.%s: offset %d (%s): %s: %s",
		e.Class, e.Method, e.Offset, e.Opcode, e.Kind, e.Reason)
}

// Unwrap exposes the kind sentinel.
func (e *VerifyError) Unwrap() error {
	return e.Kind.Sentinel()
}

// Is matches ErrVerification in addition to the kind sentinel.
func (e *VerifyError) Is(target error) bool {
	return target == ErrVerification
}
