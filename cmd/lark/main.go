// Lark CLI - the main entry point for compiling and running Lark programs
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/larklang/lark/cache"
	"github.com/larklang/lark/compiler"
	"github.com/larklang/lark/manifest"
	"github.com/larklang/lark/server"
	"github.com/larklang/lark/vm"
)

func main() {
	verbose := flag.Bool("v", false, "Verbose output")
	interactive := flag.Bool("i", false, "Start interactive REPL")
	eval := flag.String("e", "", "Compile and run the given source text")
	snapshotOut := flag.String("snapshot", "", "Write a compiled snapshot to the given path instead of running")
	loadImg := flag.String("load", "", "Run a previously written snapshot")
	serveLSP := flag.Bool("serve-lsp", false, "Start the language server on stdio")
	noCache := flag.Bool("no-cache", false, "Skip the compile cache even if the manifest enables it")
	pruneAge := flag.Duration("prune-cache", 0, "Prune cache entries older than this duration and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: lark [options] [files...]\n\n")
		fmt.Fprintf(os.Stderr, "Compiles and runs .lark files. With no files, runs the manifest entry\n")
		fmt.Fprintf(os.Stderr, "point if a lark.toml is found, else starts the REPL.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  lark program.lark            # Compile and run\n")
		fmt.Fprintf(os.Stderr, "  lark -i                      # Start REPL\n")
		fmt.Fprintf(os.Stderr, "  lark -e '1 + 2'              # One-shot eval\n")
		fmt.Fprintf(os.Stderr, "  lark -snapshot out.lkimg f.lark\n")
		fmt.Fprintf(os.Stderr, "  lark -load out.lkimg\n")
		fmt.Fprintf(os.Stderr, "  lark -serve-lsp              # Language server on stdio\n")
	}
	flag.Parse()

	if *serveLSP {
		srv := server.NewLSP()
		if err := srv.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "LSP server error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Find the enclosing project manifest, if any.
	m, err := manifest.Find(".")
	if err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	var store *cache.Cache
	if m != nil && m.CachePath() != "" && !*noCache {
		store, err = cache.Open(m.CachePath())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
			store = nil
		} else {
			defer store.Close()
		}
	}

	if *pruneAge > 0 {
		if store == nil {
			fmt.Fprintf(os.Stderr, "Error: no cache configured\n")
			os.Exit(1)
		}
		n, err := store.Prune(*pruneAge)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if *verbose {
			fmt.Printf("Pruned %d cache entries\n", n)
		}
		return
	}

	vmInst := vm.NewVM()

	if *loadImg != "" {
		data, err := os.ReadFile(*loadImg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fn, err := vm.UnmarshalSnapshot(vmInst, data)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		runOrDie(vmInst, fn, *verbose)
		return
	}

	if *eval != "" {
		fn, err := compiler.Compile(vmInst, *eval)
		if err != nil {
			os.Exit(1)
		}
		result := runOrDie(vmInst, fn, false)
		fmt.Println(vmInst.Stringify(result))
		return
	}

	files := flag.Args()
	if len(files) == 0 && m != nil && m.EntryPath() != "" && !*interactive {
		files = []string{m.EntryPath()}
	}

	for _, path := range files {
		fn, err := compileFile(vmInst, store, path, *verbose)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if fn == nil {
			// Compile errors were already reported.
			os.Exit(1)
		}

		if *snapshotOut != "" {
			data, err := vm.MarshalSnapshot(vmInst, fn)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			if err := os.WriteFile(*snapshotOut, data, 0o644); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			if *verbose {
				fmt.Printf("Wrote %s (%d bytes)\n", *snapshotOut, len(data))
			}
			continue
		}

		runOrDie(vmInst, fn, *verbose)
	}

	if *interactive || len(files) == 0 {
		runREPL(vmInst)
	}
}

// compileFile compiles one source file, going through the snapshot cache
// when one is open. Returns (nil, nil) when compilation reported errors.
func compileFile(vmInst *vm.VM, store *cache.Cache, path string, verbose bool) (*vm.ObjFn, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if store != nil {
		key := cache.Key(string(source))
		if data, found, err := store.Get(key); err == nil && found {
			fn, err := vm.UnmarshalSnapshot(vmInst, data)
			if err == nil {
				if verbose {
					fmt.Printf("%s: cache hit\n", path)
				}
				return fn, nil
			}
			// A stale or corrupt entry falls through to a fresh compile.
		}
	}

	start := time.Now()
	fn, err := compiler.Compile(vmInst, string(source))
	if err != nil {
		return nil, nil
	}
	if verbose {
		fmt.Printf("%s: compiled in %s\n", path, time.Since(start))
	}

	if store != nil {
		if data, err := vm.MarshalSnapshot(vmInst, fn); err == nil {
			if err := store.Put(cache.Key(string(source)), data); err != nil && verbose {
				fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
			}
		}
	}

	return fn, nil
}

func runOrDie(vmInst *vm.VM, fn *vm.ObjFn, verbose bool) vm.Value {
	result, err := vmInst.Run(fn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Runtime error: %v\n", err)
		os.Exit(1)
	}
	if verbose {
		fmt.Println(vmInst.Stringify(result))
	}
	return result
}
