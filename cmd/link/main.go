package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fzipp/relasm/internal/dump"
	"github.com/fzipp/relasm/link"
)

func usage() {
	printVersion()
	fail(`
Links relocatable object files (.o) into a flat hex image (.hex).
Sections of the same name are concatenated in the order the object
files are given, starting at address 0.

Usage:
    link [-v] -hex -o hexfile objfile...

Flags:
    -hex  Writes the image in hex format (the only format).
    -o    Name of the image file to write.
    -v    Prints the merged sections, symbols and relocations to stderr.

Examples:
    link -hex -o prog.hex main.o lib.o`)
}

func main() {
	hex := flag.Bool("hex", false, "writes the image in hex format")
	out := flag.String("o", "", "name of the image file to write")
	verbose := flag.Bool("v", false, "prints the merged tables to stderr")
	flag.Usage = usage
	flag.Parse()

	if !*hex || *out == "" || flag.NArg() < 1 {
		usage()
	}
	checkExt(*out, ".hex")
	for _, arg := range flag.Args() {
		checkExt(arg, ".o")
	}

	printVersion()
	res, err := link.LinkFiles(*out, flag.Args(), os.Stdout)
	check(err)
	if *verbose {
		dump.Module(os.Stderr, res.Module)
	}
}

func printVersion() {
	fmt.Println("relasm linker 1.0")
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
