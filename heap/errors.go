package heap

import (
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/tliron/commonlog"
)

// Fatal conditions. A *FatalError matches exactly one of these with
// errors.Is.
var (
	ErrHeapCorruption = errors.New("heap corruption")
	ErrBadFree        = errors.New("bad free")
	ErrInvalidRequest = errors.New("invalid heap request")
	ErrOutOfMemory    = errors.New("out of memory")
)

// FatalError is an unrecoverable allocator or collector fault. It
// carries the stack of the call that detected it.
type FatalError struct {
	Op  string
	err error
}

func (e *FatalError) Error() string {
	return "heap " + e.Op + ": " + e.err.Error()
}

// Unwrap exposes the wrapped sentinel.
func (e *FatalError) Unwrap() error {
	return e.err
}

// Format prints the stack trace for %+v.
func (e *FatalError) Format(s fmt.State, verb rune) {
	if verb == 'v' && s.Flag('+') {
		fmt.Fprintf(s, "heap %s: %+v", e.Op, e.err)
		return
	}
	io.WriteString(s, e.Error())
}

// FatalHandler receives a fatal error. Handlers are expected not to
// return; if one does, the heap panics with the error.
type FatalHandler func(err *FatalError)

// exitHandler logs at critical level and terminates the process.
func exitHandler(log commonlog.Logger) FatalHandler {
	return func(err *FatalError) {
		log.Criticalf("%+v", err)
		os.Exit(2)
	}
}

func (h *Heap) fatal(op string, sentinel error, format string, args ...any) {
	err := &FatalError{Op: op, err: errors.Wrapf(sentinel, format, args...)}
	h.onFatal(err)
	panic(err)
}
