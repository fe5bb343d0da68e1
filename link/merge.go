// Package link contains the linker: it merges relocatable modules into one
// set of sections and symbols, places the sections one after another from
// address 0, patches every relocation and renders the flat image.
package link

import (
	"github.com/fzipp/relasm/diag"
	"github.com/fzipp/relasm/obj"
)

// input is one module being merged together with the translation of its
// local ids to the ids of the merged tables.
type input struct {
	m      *obj.Module
	secMap []obj.SectionID // module section id → merged section id
	start  []int           // module section id → contribution start in merged section
	symMap []obj.SymbolID  // module symbol id → merged symbol id; 0 for local labels
}

// Merger accumulates modules in the order they are added. The first module
// naming a section or a symbol determines its position in the merged
// tables.
type Merger struct {
	out    *obj.Module
	inputs []*input
	refBy  map[obj.SymbolID]string // first module referring to an undefined symbol
}

func NewMerger() *Merger {
	return &Merger{
		out:   obj.NewModule("a.out"),
		refBy: make(map[obj.SymbolID]string),
	}
}

// Add merges the sections and symbols of m. Relocations are merged by
// Finish, once all sections are known.
func (mg *Merger) Add(m *obj.Module) error {
	in := &input{
		m:      m,
		secMap: make([]obj.SectionID, m.NumSections()),
		start:  make([]int, m.NumSections()),
		symMap: make([]obj.SymbolID, m.NumSymbols()),
	}
	for sec := range m.Sections() {
		id, ok := mg.out.LookupSection(sec.Name)
		if !ok {
			id = mg.out.AddSection(sec.Name).ID
		}
		merged := mg.out.Section(id)
		in.secMap[sec.ID] = id
		in.start[sec.ID] = merged.Length
		merged.Length += sec.Length
		mg.out.Emit(id, m.Code(sec.ID).Bytes...)
		if _, err := mg.sectionSymbol(m, id); err != nil {
			return err
		}
	}
	for sym := range m.Symbols() {
		id, err := mg.symbol(in, sym)
		if err != nil {
			return err
		}
		in.symMap[sym.ID] = id
	}
	mg.inputs = append(mg.inputs, in)
	return nil
}

// symbol merges sym of module in into the canonical symbol table and
// returns its canonical id, or 0 for a module-private label.
func (mg *Merger) symbol(in *input, sym *obj.Symbol) (obj.SymbolID, error) {
	m := in.m
	if sym.Type == obj.SectionType {
		return mg.sectionSymbol(m, in.secMap[sym.Section])
	}
	if sym.Defined && sym.Binding == obj.Local {
		return 0, nil
	}
	id, ok := mg.out.LookupSymbol(sym.Name)
	if !ok {
		c := obj.Symbol{Name: sym.Name, Binding: sym.Binding}
		if sym.Defined {
			c.Defined = true
			c.Section = in.secMap[sym.Section]
			c.Offset = in.start[sym.Section] + sym.Offset
		}
		added := mg.out.AddSymbol(c)
		if !added.Defined {
			mg.refBy[added.ID] = m.Name
		}
		return added.ID, nil
	}
	c := mg.out.Symbol(id)
	switch {
	case c.Type == obj.SectionType:
		if sym.Defined {
			return 0, &diag.Error{Kind: diag.MultipleDefinition, Module: m.Name, Symbol: sym.Name,
				Msg: "symbol " + sym.Name + " collides with section " + sym.Name}
		}
	case sym.Defined && c.Defined:
		return 0, &diag.Error{Kind: diag.MultipleDefinition, Module: m.Name, Symbol: sym.Name,
			Msg: "symbol " + sym.Name + " already defined in " + mg.definedIn(id)}
	case sym.Defined:
		c.Defined = true
		c.Section = in.secMap[sym.Section]
		c.Offset = in.start[sym.Section] + sym.Offset
		c.Binding = sym.Binding
	case sym.Binding == obj.Global:
		c.Binding = obj.Global
	}
	return id, nil
}

// sectionSymbol returns the canonical symbol standing for merged section
// id, creating it on first use.
func (mg *Merger) sectionSymbol(m *obj.Module, id obj.SectionID) (obj.SymbolID, error) {
	if s, ok := mg.out.SectionSymbol(id); ok {
		return s.ID, nil
	}
	name := mg.out.Section(id).Name
	if other, ok := mg.out.LookupSymbol(name); ok {
		c := mg.out.Symbol(other)
		if c.Defined {
			return 0, &diag.Error{Kind: diag.MultipleDefinition, Module: m.Name, Symbol: name, Section: name,
				Msg: "section " + name + " collides with symbol defined in " + mg.definedIn(other)}
		}
		// an earlier module referred to the section by name
		c.Type = obj.SectionType
		c.Binding = obj.Local
		c.Section = id
		c.Offset = 0
		c.Defined = true
		return other, nil
	}
	return mg.out.AddSymbol(obj.Symbol{
		Name:    name,
		Section: id,
		Binding: obj.Local,
		Type:    obj.SectionType,
		Defined: true,
	}).ID, nil
}

// definedIn names the module that defines canonical symbol id.
func (mg *Merger) definedIn(id obj.SymbolID) string {
	name := mg.out.Symbol(id).Name
	for _, in := range mg.inputs {
		if sid, ok := in.m.LookupSymbol(name); ok && in.m.Symbol(sid).Defined {
			return in.m.Name
		}
	}
	return "an earlier module"
}

// Finish places the merged sections, checks that every symbol is defined
// and collects the relocations of all modules, translated to the merged
// tables. The result is ready for Apply.
func (mg *Merger) Finish() (*obj.Module, error) {
	base := 0
	for sec := range mg.out.Sections() {
		sec.Base = base
		base += sec.Length
	}
	for sym := range mg.out.Symbols() {
		if sym.Type != obj.SectionType && !sym.Defined {
			return nil, &diag.Error{Kind: diag.UndefinedSymbol, Module: mg.refBy[sym.ID], Symbol: sym.Name,
				Msg: "symbol " + sym.Name + " is not defined in any module"}
		}
	}
	for _, in := range mg.inputs {
		for r := range in.m.Relocs() {
			mg.out.AddReloc(mg.reloc(in, r))
		}
	}
	return mg.out, nil
}

// reloc translates relocation r of the module to the merged tables. A
// reference to a module-private label becomes a reference to the section
// symbol, the way the assembler records it.
func (mg *Merger) reloc(in *input, r *obj.Relocation) obj.Relocation {
	sym := in.m.Symbol(r.Symbol)
	t := obj.Relocation{
		Section: in.secMap[r.Section],
		Offset:  in.start[r.Section] + r.Offset,
		Kind:    r.Kind,
		Symbol:  in.symMap[r.Symbol],
		Addend:  r.Addend,
	}
	switch {
	case sym.Type == obj.SectionType:
		t.Addend += in.start[sym.Section]
	case t.Symbol == 0:
		sec, _ := mg.out.SectionSymbol(in.secMap[sym.Section])
		t.Symbol = sec.ID
		t.Addend += in.start[sym.Section] + sym.Offset
	}
	return t
}
