// Package files reads and writes the text files passed between the
// toolchain stages: relocatable object files (assembler → linker) and flat
// hex images (linker → emulator).
//
// The readers are line oriented. Like the rest of the package's helpers
// they panic with a *diag.Error on malformed input; the exported functions
// recover it and return it as an ordinary error.
package files

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fzipp/relasm/diag"
)

type reader struct {
	s    *bufio.Scanner
	name string
	line int
	text string
	eof  bool
}

func newReader(r io.Reader, name string) *reader {
	return &reader{s: bufio.NewScanner(r), name: name}
}

// next advances to the next line and reports whether there is one.
func (r *reader) next() bool {
	if r.eof {
		return false
	}
	if !r.s.Scan() {
		if err := r.s.Err(); err != nil {
			panic(&diag.Error{Kind: diag.MissingFile, Module: r.name, Line: r.line, Msg: "read failed", Err: err})
		}
		r.eof = true
		r.text = ""
		return false
	}
	r.line++
	r.text = strings.TrimRight(r.s.Text(), " \t\r")
	return true
}

// mustNext advances to the next line; running out of input is an error.
func (r *reader) mustNext(what string) string {
	if !r.next() {
		r.fail("unexpected end of file, expected %s", what)
	}
	return r.text
}

func (r *reader) expect(header string) {
	for r.mustNext(header) == "" {
	}
	if r.text != header {
		r.fail("%s expected, found %q", header, r.text)
	}
}

func (r *reader) fail(format string, a ...any) {
	panic(&diag.Error{Kind: diag.SyntaxError, Module: r.name, Line: r.line, Msg: fmt.Sprintf(format, a...)})
}

// fields splits the current line at tabs into exactly n fields.
func (r *reader) fields(n int) []string {
	f := strings.Split(r.text, "\t")
	if len(f) != n {
		r.fail("%d fields expected, found %d", n, len(f))
	}
	return f
}

func (r *reader) decimal(s string) int {
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		r.fail("bad number %q", s)
	}
	return v
}

func (r *reader) hex16(s string) int {
	v, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		r.fail("bad 16-bit hex value %q", s)
	}
	return int(v)
}

func (r *reader) hexByte(s string) byte {
	if len(s) != 2 {
		r.fail("bad byte %q", s)
	}
	v, err := strconv.ParseUint(s, 16, 8)
	if err != nil {
		r.fail("bad byte %q", s)
	}
	return byte(v)
}

func recoverError(err *error) {
	if rec := recover(); rec != nil {
		e, ok := rec.(error)
		if !ok {
			panic(rec)
		}
		*err = e
	}
}
