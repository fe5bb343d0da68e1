package link

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/fzipp/relasm/diag"
	"github.com/fzipp/relasm/files"
	"github.com/fzipp/relasm/obj"
)

// Result is a linked program.
type Result struct {
	Module *obj.Module // merged sections, symbols and relocations, patched
	Image  []byte      // all sections concatenated from address 0
}

// Address returns the final address of the global symbol or section name.
func (r *Result) Address(name string) (int, bool) {
	id, ok := r.Module.LookupSymbol(name)
	if !ok {
		return 0, false
	}
	sym := r.Module.Symbol(id)
	return r.Module.Section(sym.Section).Base + sym.Offset, true
}

// Apply patches the two bytes of every relocation of m, whose sections must
// already be placed. With S the address of the target symbol, A the addend
// and P the address of the patched field:
//
//	Abs16    S + A
//	PcRel16  S + A - (P + 2)
//	Word16   S + A
func Apply(m *obj.Module) {
	for r := range m.Relocs() {
		sym := m.Symbol(r.Symbol)
		v := m.Section(sym.Section).Base + sym.Offset + r.Addend
		if r.Kind == obj.PcRel16 {
			v -= m.Section(r.Section).Base + r.Offset + 2
		}
		r.Kind.Put(m.Code(r.Section).Bytes[r.Offset:r.Offset+2], uint16(v))
	}
}

// Link merges mods in the given order, patches the relocations and returns
// the program. Progress is logged to w, which may be nil.
func Link(mods []*obj.Module, w io.Writer) (*Result, error) {
	if w == nil {
		w = io.Discard
	}
	mg := NewMerger()
	for _, m := range mods {
		if err := mg.Add(m); err != nil {
			return nil, err
		}
	}
	m, err := mg.Finish()
	if err != nil {
		return nil, err
	}
	Apply(m)
	var img []byte
	for sec := range m.Sections() {
		img = append(img, m.Code(sec.ID).Bytes...)
	}
	_, _ = fmt.Fprintf(w, "  linking %d modules %d bytes\n", len(mods), len(img))
	return &Result{Module: m, Image: img}, nil
}

// LinkFiles links the object files ins and writes the image to out. The
// output file is only created if linking succeeds.
func LinkFiles(out string, ins []string, w io.Writer) (*Result, error) {
	mods := make([]*obj.Module, 0, len(ins))
	for _, in := range ins {
		m, err := readObject(in)
		if err != nil {
			return nil, err
		}
		mods = append(mods, m)
	}
	res, err := Link(mods, w)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := files.WriteImage(&buf, res.Image); err != nil {
		return nil, err
	}
	if err := os.WriteFile(out, buf.Bytes(), 0o644); err != nil {
		return nil, err
	}
	return res, nil
}

func readObject(path string) (*obj.Module, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &diag.Error{Kind: diag.MissingFile, Module: path, Err: err}
	}
	defer f.Close()
	return files.ReadObject(f, path)
}
