package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/larklang/lark/compiler"
	"github.com/larklang/lark/vm"
)

// runREPL reads statements line by line against a persistent VM, so
// globals and classes defined earlier stay visible.
func runREPL(vmInst *vm.VM) {
	fmt.Println("Lark REPL. Ctrl-D to exit.")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		fn, err := compiler.Compile(vmInst, line)
		if err != nil {
			// Diagnostics already went to stderr.
			continue
		}

		result, err := vmInst.Run(fn)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Runtime error: %v\n", err)
			continue
		}
		fmt.Println(vmInst.Stringify(result))
	}
	fmt.Println()
}
