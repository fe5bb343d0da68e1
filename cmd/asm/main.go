package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fzipp/relasm/asm"
	"github.com/fzipp/relasm/internal/dump"
)

func usage() {
	printVersion()
	fail(`
Assembles one source file (.s) into a relocatable object file (.o).

Usage:
    asm [-v] -o objfile srcfile

Flags:
    -o  Name of the object file to write.
    -v  Prints the sections, symbols and relocations to stderr.

Examples:
    asm -o hello.o hello.s
    asm -v -o lib.o lib.s`)
}

func main() {
	out := flag.String("o", "", "name of the object file to write")
	verbose := flag.Bool("v", false, "prints the module tables to stderr")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() != 1 || *out == "" {
		usage()
	}
	in := flag.Arg(0)
	checkExt(in, ".s")
	checkExt(*out, ".o")

	printVersion()
	m, err := asm.AssembleFile(in, *out, os.Stdout)
	check(err)
	if *verbose {
		dump.Module(os.Stderr, m)
	}
}

func printVersion() {
	fmt.Println("relasm assembler 1.0")
}

func checkExt(path, ext string) {
	if filepath.Ext(path) != ext {
		fail(fmt.Sprintf("%s: file name must end in %s", path, ext))
	}
}

func check(err error) {
	if err != nil {
		fail(err)
	}
}

func fail(msg any) {
	_, _ = fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}
