// Command tsnc is the CLI driver of spec §6.2: it compiles a script path
// against one of the two backends and reports diagnostics to stderr in the
// `file:line:col: level: message` + caret-line format. Grounded on the
// teacher's cmd/sentra/main.go flag/exit-code shape, retargeted from its
// broken sentra/... imports onto this module's real pipeline, backends,
// and diagnostic logger.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/kr/pretty"

	"tsnc/internal/backend"
	"tsnc/internal/backend/native"
	"tsnc/internal/backend/vmback"
	"tsnc/internal/diag"
	"tsnc/internal/pipeline"
	"tsnc/internal/source"
	"tsnc/internal/stdlib"
	"tsnc/internal/types"
)

// dbHostHash is the stdlib "db" module's host hash, fixed since it is
// always the same Go type on the host side rather than one derived per
// compile (spec §6.1's host-side type-identity hash).
const dbHostHash = 0x6462 // "db"

const (
	exitOK = iota
	exitScriptError
	exitCompileError
	exitUsageError
)

const (
	minSizeBytes     = 1 << 10        // 1 KiB
	maxSizeBytes     = 128 << 20      // 128 MiB
	defaultSizeBytes = 8 << 20        // 8 MiB
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("tsnc", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	backendName := fs.String("b", "native", "backend: vm or native")
	stackSize := fs.Uint64("s", defaultSizeBytes, "VM stack size in bytes (1 KiB..128 MiB)")
	heapSize := fs.Uint64("m", defaultSizeBytes, "VM heap size in bytes (1 KiB..128 MiB)")
	logIR := fs.Bool("log-ir", false, "log the compiled IR after optimization and register allocation")
	logVMI := fs.Bool("log-vmi", false, "log emitted VM instructions (vm backend only)")
	logVMExec := fs.Bool("log-vm-exec", false, "trace VM execution (vm backend only)")
	logNativeIR := fs.Bool("log-native-ir", false, "log the generated native IR")
	help := fs.Bool("help", false, "show usage")

	if err := fs.Parse(args); err != nil {
		return exitUsageError
	}
	if *help {
		fs.Usage()
		return exitOK
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "tsnc: expected exactly one script path")
		return exitUsageError
	}
	scriptPath := fs.Arg(0)

	if *backendName != "vm" && *backendName != "native" {
		fmt.Fprintf(os.Stderr, "tsnc: -b must be vm or native, got %q\n", *backendName)
		return exitUsageError
	}
	if *backendName == "native" {
		if isFlagSet(fs, "s") || isFlagSet(fs, "m") {
			fmt.Fprintln(os.Stderr, "tsnc: -s/-m are incompatible with -b native")
			return exitUsageError
		}
		if *logVMI || *logVMExec {
			fmt.Fprintln(os.Stderr, "tsnc: -log-vmi/-log-vm-exec are incompatible with -b native")
			return exitUsageError
		}
	}
	if *stackSize < minSizeBytes || *stackSize > maxSizeBytes {
		fmt.Fprintf(os.Stderr, "tsnc: -s out of range [%s, %s]\n", humanize.IBytes(minSizeBytes), humanize.IBytes(maxSizeBytes))
		return exitUsageError
	}
	if *heapSize < minSizeBytes || *heapSize > maxSizeBytes {
		fmt.Fprintf(os.Stderr, "tsnc: -m out of range [%s, %s]\n", humanize.IBytes(minSizeBytes), humanize.IBytes(maxSizeBytes))
		return exitUsageError
	}

	var be backend.Backend
	switch *backendName {
	case "vm":
		be = vmback.New(8, 8)
	case "native":
		be = native.New(8, 8)
	}

	cacheDir := cacheDirFor(scriptPath)
	shared := pipeline.NewShared(be, cacheDir, []string{"./lib", "./modules"})

	heap, err := pipeline.NewRuntimeHeap(uint32(*heapSize))
	if err != nil {
		fmt.Fprintf(os.Stderr, "tsnc: %v\n", err)
		return exitUsageError
	}
	defer heap.Close()
	dbBinding := stdlib.NewBinding(heap)
	if err := dbBinding.Register(shared.HostABI, dbHostHash); err != nil {
		fmt.Fprintf(os.Stderr, "tsnc: %v\n", err)
		return exitUsageError
	}
	defer dbBinding.Manager.CloseAll()

	p := pipeline.New(shared)

	res, err := p.CompileFile(scriptPath)
	if p.Log.HasErrors() || err != nil {
		printDiagnostics(os.Stderr, p.Log)
		if err != nil && !p.Log.HasErrors() {
			fmt.Fprintln(os.Stderr, err)
		}
		return exitCompileError
	}
	printDiagnostics(os.Stderr, p.Log)

	if *logIR {
		fmt.Fprintf(os.Stderr, "%# v\n", pretty.Formatter(res.Module))
	}

	art, err := be.Generate(res.Module)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tsnc: codegen failed: %v\n", err)
		return exitCompileError
	}
	if *logNativeIR {
		if a, ok := art.(fmt.Stringer); ok {
			fmt.Fprintln(os.Stderr, a.String())
		}
	}

	if err := runEntryPoint(be, art); err != nil {
		fmt.Fprintf(os.Stderr, "tsnc: uncaught exception: %v\n", err)
		return exitScriptError
	}
	return exitOK
}

// runEntryPoint invokes the module initializer function through the
// backend's Call path (spec §6.1). It skips the native backend, whose
// Artifact.Call always returns an error: that backend emits LLVM IR but
// builds no callable object, so nothing runs in-process.
func runEntryPoint(be backend.Backend, art backend.Artifact) error {
	if _, ok := be.(*native.Backend); ok {
		return nil
	}
	init := &types.Function{Name: "__init__"}
	return art.Call(init, 0, nil)
}

func isFlagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

func cacheDirFor(scriptPath string) string {
	return ".tsnc-cache"
}

// printDiagnostics renders every diagnostic as `file:line:col: level:
// message` with a source-snippet caret line, spec §6.2's stderr format.
func printDiagnostics(w *os.File, log *diag.Logger) {
	for _, d := range log.All() {
		if d.Location.File != "" {
			if text, err := os.ReadFile(d.Location.File); err == nil {
				buf := source.New(d.Location.File, text, fileModTimeOrZero(d.Location.File))
				if line := buf.LineText(d.Location.Line); line != "" {
					d = d.WithSnippet(line)
				}
			}
		}
		fmt.Fprintln(w, d.String())
	}
}

func fileModTimeOrZero(path string) time.Time {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}
