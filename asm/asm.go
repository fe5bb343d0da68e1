// Package asm contains the driver of the assembler. It reads a source text
// line by line, classifies each line with package lex and hands labels,
// directives and instructions to a gen.Generator. Assembly stops at .end or
// at the end of the input, whichever comes first.
package asm

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/fzipp/relasm/diag"
	"github.com/fzipp/relasm/files"
	"github.com/fzipp/relasm/gen"
	"github.com/fzipp/relasm/lex"
	"github.com/fzipp/relasm/obj"
)

type assembler struct {
	g    *gen.Generator
	name string
	w    io.Writer
}

// AssembleFile assembles the source file in and writes the object file
// out. No object file is written if assembly fails.
func AssembleFile(in, out string, w io.Writer) (*obj.Module, error) {
	f, err := os.Open(in)
	if err != nil {
		return nil, &diag.Error{Kind: diag.MissingFile, Module: in, Err: err}
	}
	defer f.Close()
	m, err := Assemble(f, in, w)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := files.WriteObject(&buf, m); err != nil {
		return nil, err
	}
	if err := os.WriteFile(out, buf.Bytes(), 0o644); err != nil {
		return nil, err
	}
	return m, nil
}

// Assemble assembles the source text read from r. The name is used as the
// module name and in error messages; progress is logged to w, which may be
// nil.
func Assemble(r io.Reader, name string, w io.Writer) (*obj.Module, error) {
	if w == nil {
		w = io.Discard
	}
	a := &assembler{g: gen.NewGenerator(name), name: name, w: w}
	a.log("  assembling ", name)

	s := bufio.NewScanner(r)
	lineNo := 0
	for s.Scan() {
		lineNo++
		end, err := a.line(s.Text())
		if err != nil {
			a.log("\nassembly FAILED\n")
			return nil, diag.Located(err, name, lineNo)
		}
		if end {
			break
		}
	}
	if err := s.Err(); err != nil {
		a.log("\nassembly FAILED\n")
		return nil, &diag.Error{Kind: diag.MissingFile, Module: name, Line: lineNo, Msg: "read failed", Err: err}
	}

	m := a.g.Close()
	size := 0
	for sec := range m.Sections() {
		size += sec.Length
	}
	a.log(fmt.Sprintf(" %d %d %d\n", m.NumSections()-1, m.NumSymbols()-1, size))
	return m, nil
}

// line assembles one source line and reports whether it was .end.
func (a *assembler) line(text string) (end bool, err error) {
	ln, err := lex.Parse(text)
	if err != nil {
		return false, err
	}
	if ln.Label != "" {
		if err := a.g.Label(ln.Label); err != nil {
			return false, err
		}
	}
	switch ln.Kind {
	case lex.LineDirective:
		return a.directive(ln)
	case lex.LineInstruction:
		_, err = a.g.Instruction(ln.Name, ln.Operands)
	}
	return false, err
}

func (a *assembler) directive(ln lex.Line) (end bool, err error) {
	switch ln.Name {
	case "global":
		for _, opd := range ln.Operands {
			if err := a.g.Global(opd.Symbol); err != nil {
				return false, err
			}
		}
	case "extern":
		for _, opd := range ln.Operands {
			if err := a.g.Extern(opd.Symbol); err != nil {
				return false, err
			}
		}
	case "section":
		err = a.g.OpenSection(ln.Operands[0].Symbol)
	case "word":
		err = a.g.Word(ln.Operands)
	case "skip":
		err = a.g.Skip(int(ln.Operands[0].Value))
	case "end":
		return true, nil
	}
	return false, err
}

func (a *assembler) log(v ...any) {
	_, _ = fmt.Fprint(a.w, v...)
}
