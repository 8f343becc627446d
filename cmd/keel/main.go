// keel CLI - verifies, disassembles and converts class files, and runs
// the heap demo.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/keel/config"
	"github.com/chazu/keel/trace"
)

func main() {
	verbose := flag.Bool("v", false, "Verbose output")
	configPath := flag.String("config", "", "Path to keel.toml (default: search upward from the working directory)")
	traceFlags := flag.String("trace", "", "Trace flags: heap, verify, gc or all (overrides the config)")
	heapSize := flag.String("heap", "", "Heap size such as 64KB (overrides the config)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: keel [options] <command> [args...]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  verify FILE...          Verify every method of the classes in FILE (.yaml or .cbor)\n")
		fmt.Fprintf(os.Stderr, "  disasm FILE...          Disassemble every method\n")
		fmt.Fprintf(os.Stderr, "  convert IN.yaml OUT.cbor  Assemble a YAML fixture into a CBOR class bundle\n")
		fmt.Fprintf(os.Stderr, "  heap                    Build a demo object graph, collect it and print statistics\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  keel verify testdata/counter.yaml\n")
		fmt.Fprintf(os.Stderr, "  keel -trace verify -v verify classes.cbor\n")
		fmt.Fprintf(os.Stderr, "  keel -heap 4KB -v heap\n")
	}
	flag.Parse()

	cfg, err := loadConfig(*configPath, *traceFlags, *heapSize)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	verbosity := cfg.Trace.Verbosity
	if flags, _ := cfg.TraceFlags(); flags != trace.None && verbosity < 2 {
		// Trace output is logged at debug level.
		verbosity = 2
	}
	commonlog.Configure(verbosity, cfg.LogPath())

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}
	os.Exit(run(cfg, *verbose, args, os.Stdout, os.Stderr))
}

// loadConfig reads the configuration and applies command line overrides.
func loadConfig(path, traceFlags, heapSize string) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.FindAndLoad(".")
	}
	if err != nil {
		return nil, err
	}

	if traceFlags != "" {
		cfg.Trace.Flags = traceFlags
	}
	if heapSize != "" {
		if err := cfg.Heap.Size.UnmarshalText([]byte(heapSize)); err != nil {
			return nil, fmt.Errorf("-heap: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
