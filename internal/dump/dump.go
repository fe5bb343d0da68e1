// Package dump prints the tables of a module in readable form. Colours are
// used only when the output is a terminal.
package dump

import (
	"iter"
	"os"

	"github.com/k0kubun/pp/v3"
	"golang.org/x/term"

	"github.com/fzipp/relasm/obj"
)

func printer(f *os.File) *pp.PrettyPrinter {
	p := pp.New()
	p.SetOutput(f)
	p.SetColoringEnabled(term.IsTerminal(int(f.Fd())))
	return p
}

func values[T any](seq iter.Seq[*T]) []T {
	var vs []T
	for v := range seq {
		vs = append(vs, *v)
	}
	return vs
}

// Module prints the sections, symbols and relocations of m to f.
func Module(f *os.File, m *obj.Module) {
	p := printer(f)
	p.Println(m.Name)
	p.Println(values(m.Sections()))
	p.Println(values(m.Symbols()))
	p.Println(values(m.Relocs()))
}
