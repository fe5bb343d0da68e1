package gen

import "github.com/fzipp/relasm/obj"

// handling of symbol references and forward references

// ref emits a two-byte placeholder referring to symbol name and records a
// relocation of the given kind for it. If the symbol is already defined the
// placeholder is filled in at once, otherwise the reference waits in the
// pending list of the symbol until Label defines it.
func (g *Generator) ref(name string, kind obj.RelocKind) error {
	sym, err := g.symbol(name)
	if err != nil {
		return err
	}
	at := g.here()
	g.emit(0, 0)
	ri := g.m.AddReloc(obj.Relocation{
		Section: g.cur,
		Offset:  at,
		Kind:    kind,
		Symbol:  sym.ID,
	})
	if sym.Defined {
		g.fix(ri)
		return nil
	}
	g.pending[sym.ID] = append(g.pending[sym.ID], pendingPatch{
		Section: g.cur,
		Start:   at,
		End:     at + 1,
		Reloc:   ri,
	})
	return nil
}

// backpatch resolves all pending references to the symbol id, which has
// just been defined, and forgets them.
func (g *Generator) backpatch(id obj.SymbolID) {
	for _, pp := range g.pending[id] {
		g.fix(pp.Reloc)
	}
	delete(g.pending, id)
}

// fix fills in the placeholder of relocation ri, whose symbol is defined,
// with the value known inside the module: the section offset of the symbol
// for absolute references, the displacement for PC-relative references
// within one section. A PC-relative reference across sections keeps its
// zero placeholder. References to local symbols are then retargeted to the
// section symbol with the symbol offset as addend, so that the linker only
// needs to know where the section of this module ends up.
func (g *Generator) fix(ri int) {
	r := g.m.Reloc(ri)
	sym := g.m.Symbol(r.Symbol)
	code := g.m.Code(r.Section).Bytes[r.Offset : r.Offset+2]
	switch {
	case r.Kind != obj.PcRel16:
		r.Kind.Put(code, uint16(sym.Offset))
	case sym.Section == r.Section:
		r.Kind.Put(code, uint16(sym.Offset-(r.Offset+2)))
	}
	if sym.Binding == obj.Local && sym.Type != obj.SectionType {
		secSym, _ := g.m.SectionSymbol(sym.Section)
		r.Symbol = secSym.ID
		r.Addend += sym.Offset
	}
}
