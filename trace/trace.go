// Package trace holds the diagnostic switches shared by the verifier,
// the heap and the runtime, and the named loggers they write to.
package trace

import (
	"fmt"
	"strings"

	"github.com/tliron/commonlog"
)

// Flags selects which subsystems emit trace output.
type Flags uint8

const (
	Heap   Flags = 1 << iota // allocation and free-list activity
	Verify                   // per-instruction verifier steps
	GC                       // collection phases

	None Flags = 0
	All        = Heap | Verify | GC
)

var flagNames = []struct {
	flag Flags
	name string
}{
	{Heap, "heap"},
	{Verify, "verify"},
	{GC, "gc"},
}

// ParseFlags parses a comma separated list such as "heap,verify".
// "all" enables everything; the empty string enables nothing.
func ParseFlags(s string) (Flags, error) {
	var f Flags
	for _, part := range strings.Split(s, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		switch part {
		case "":
			continue
		case "all":
			f |= All
			continue
		case "none":
			continue
		}
		found := false
		for _, fn := range flagNames {
			if fn.name == part {
				f |= fn.flag
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown trace flag %q", part)
		}
	}
	return f, nil
}

// Has reports whether every flag in g is set.
func (f Flags) Has(g Flags) bool {
	return g != 0 && f&g == g
}

func (f Flags) String() string {
	if f == None {
		return "none"
	}
	var parts []string
	for _, fn := range flagNames {
		if f&fn.flag != 0 {
			parts = append(parts, fn.name)
		}
	}
	return strings.Join(parts, ",")
}

// Logger names, one per subsystem.
const (
	HeapLogger     = "keel.heap"
	VerifierLogger = "keel.verifier"
	VMLogger       = "keel.vm"
	CLILogger      = "keel.cli"
)

// Tracer writes debug-level output for one subsystem when its flag is
// enabled. The zero Tracer is silent.
type Tracer struct {
	flags Flags
	flag  Flags
	log   commonlog.Logger
}

// NewTracer returns a tracer that emits when flags include flag.
func NewTracer(flags, flag Flags, log commonlog.Logger) Tracer {
	return Tracer{flags: flags, flag: flag, log: log}
}

// Enabled reports whether Printf would produce output.
func (t Tracer) Enabled() bool {
	return t.log != nil && t.flags.Has(t.flag) && t.log.AllowLevel(commonlog.Debug)
}

// Printf logs at debug level if tracing is enabled.
func (t Tracer) Printf(format string, args ...any) {
	if t.Enabled() {
		t.log.Debugf(format, args...)
	}
}
