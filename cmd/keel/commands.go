package main

import (
	"fmt"
	"io"
	"os"

	"github.com/tliron/commonlog"

	"github.com/chazu/keel/bytecode"
	"github.com/chazu/keel/classfile"
	"github.com/chazu/keel/config"
	"github.com/chazu/keel/descriptor"
	"github.com/chazu/keel/heap"
	"github.com/chazu/keel/trace"
	"github.com/chazu/keel/verifier"
	"github.com/chazu/keel/vm"
)

var log = commonlog.GetLogger(trace.CLILogger)

// run executes one command and returns the process exit status.
func run(cfg *config.Config, verbose bool, args []string, stdout, stderr io.Writer) int {
	cmd, rest := args[0], args[1:]
	var err error
	status := 0
	switch cmd {
	case "verify":
		status, err = runVerify(cfg, verbose, rest, stdout)
	case "disasm":
		err = runDisasm(rest, stdout)
	case "convert":
		err = runConvert(rest, stdout)
	case "heap":
		err = runHeap(cfg, verbose, stdout)
	default:
		fmt.Fprintf(stderr, "Unknown command %q\n", cmd)
		return 2
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return status
}

// loadFiles reads every class from paths.
func loadFiles(paths []string) ([]*classfile.Class, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no class files given")
	}
	var classes []*classfile.Class
	for _, path := range paths {
		cs, err := classfile.LoadFile(path)
		if err != nil {
			return nil, err
		}
		log.Infof("loaded %d classes from %s", len(cs), path)
		classes = append(classes, cs...)
	}
	return classes, nil
}

// runVerify verifies every method and reports each outcome. The status is
// 1 if any method was rejected.
func runVerify(cfg *config.Config, verbose bool, paths []string, w io.Writer) (int, error) {
	classes, err := loadFiles(paths)
	if err != nil {
		return 0, err
	}
	flags, _ := cfg.TraceFlags()

	// Every class in the input participates in reference merges.
	table := descriptor.NewClassTable()
	for _, cls := range classes {
		table.Define(cls.Name, cls.Super)
	}
	v := verifier.New(verifier.WithHierarchy(table), verifier.WithTrace(flags))

	status := 0
	for _, cls := range classes {
		if err := cls.Validate(); err != nil {
			fmt.Fprintf(w, "FAIL %v\n", err)
			status = 1
			continue
		}
		for _, m := range cls.Methods {
			res, err := v.VerifyMethod(cls, m)
			if err != nil {
				fmt.Fprintf(w, "FAIL %v\n", err)
				status = 1
				continue
			}
			fmt.Fprintf(w, "ok   %s.%s\n", cls.Name, m)
			if verbose && m.HasCode() {
				fmt.Fprint(w, res)
			}
		}
	}
	return status, nil
}

func runDisasm(paths []string, w io.Writer) error {
	classes, err := loadFiles(paths)
	if err != nil {
		return err
	}
	for _, cls := range classes {
		fmt.Fprintf(w, "class %s", cls.Name)
		if cls.Super != "" {
			fmt.Fprintf(w, " extends %s", cls.Super)
		}
		fmt.Fprintln(w)
		for _, m := range cls.Methods {
			fmt.Fprintf(w, "\n  %s %s  (locals=%d, stack=%d)\n", m.Flags, m, m.MaxLocals, m.MaxStack)
			if !m.HasCode() {
				fmt.Fprintf(w, "    (no code)\n")
				continue
			}
			fmt.Fprintln(w, indent(bytecode.DisassembleWith(m.Code, cls.Pool.String), "    "))
		}
		fmt.Fprintln(w)
	}
	return nil
}

func indent(s, prefix string) string {
	out := make([]byte, 0, len(s))
	start := true
	for i := 0; i < len(s); i++ {
		if start && s[i] != '\n' {
			out = append(out, prefix...)
		}
		out = append(out, s[i])
		start = s[i] == '\n'
	}
	return string(out)
}

func runConvert(args []string, w io.Writer) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: keel convert IN.yaml OUT.cbor")
	}
	classes, err := loadFiles(args[:1])
	if err != nil {
		return err
	}
	data, err := classfile.MarshalBundle(classes...)
	if err != nil {
		return err
	}
	if err := os.WriteFile(args[1], data, 0644); err != nil {
		return fmt.Errorf("cannot write %s: %w", args[1], err)
	}
	fmt.Fprintf(w, "Wrote %d classes to %s (%d bytes)\n", len(classes), args[1], len(data))
	return nil
}

// demoNodes is the number of nodes the heap demo allocates; every third
// one joins the live list.
const demoNodes = 48

// runHeap links a list of nodes reachable from the operand stack, leaves
// the rest unreachable, collects and prints the heap report.
func runHeap(cfg *config.Config, verbose bool, w io.Writer) error {
	machine := vm.New(vm.WithConfig(cfg))
	if _, err := machine.LoadClass(demoClass()); err != nil {
		return err
	}

	var head heap.Pointer
	for i := 0; i < demoNodes; i++ {
		node, err := machine.New("demo/Node", 2, 0)
		if err != nil {
			return err
		}
		if err := machine.SetField(node, 1, uint32(i)); err != nil {
			return err
		}
		if i%3 != 0 {
			continue
		}
		if err := machine.SetField(node, 0, uint32(head)); err != nil {
			return err
		}
		if head != heap.Nil {
			if _, err := machine.Pop(); err != nil {
				return err
			}
		}
		head = node
		if err := machine.PushRef(head); err != nil {
			return err
		}
	}

	machine.Collect()
	if err := machine.Check(); err != nil {
		return err
	}
	machine.WriteStats(w)
	if verbose {
		fmt.Fprintln(w)
		machine.Dump(w)
	}
	return nil
}

// demoClass is a node class whose only method sums its arguments.
func demoClass() *classfile.Class {
	cls := classfile.NewClass("demo/Node", "")
	b := bytecode.NewBuilder()
	b.Emit(bytecode.OpIload0)
	b.Emit(bytecode.OpIload1)
	b.Emit(bytecode.OpIadd)
	b.Emit(bytecode.OpIreturn)
	cls.AddMethod(&classfile.Method{
		Name:       "sum",
		Descriptor: "(II)I",
		Flags:      classfile.AccPublic | classfile.AccStatic,
		MaxLocals:  2,
		MaxStack:   2,
		Code:       b.Bytes(),
	})
	return cls
}
