// Package gen contains the code generator of the assembler.
//
// A Generator is the state of one assembly session: the module being
// built, the location counter, the active section and the references to
// symbols that are not yet defined. The driver in package asm calls its
// methods once per classified source line; the result is a relocatable
// obj.Module.
package gen

import (
	"fmt"

	"github.com/fzipp/relasm/diag"
	"github.com/fzipp/relasm/lex"
	"github.com/fzipp/relasm/obj"
)

// pendingPatch is a reference to a symbol that was not defined when the
// reference was encoded. Start and End are the offsets of the two
// placeholder bytes in the code of section Section.
type pendingPatch struct {
	Section obj.SectionID
	Start   int
	End     int
	Reloc   int // index of the relocation recorded for the reference
}

// Generator emits the code of one module.
type Generator struct {
	LC int // location counter, relative to the active section

	m       *obj.Module
	cur     obj.SectionID // active section; 0 before the first .section
	pending map[obj.SymbolID][]pendingPatch
	extern  map[obj.SymbolID]bool
}

func NewGenerator(name string) *Generator {
	return &Generator{
		m:       obj.NewModule(name),
		pending: make(map[obj.SymbolID][]pendingPatch),
		extern:  make(map[obj.SymbolID]bool),
	}
}

// Module returns the module built so far.
func (g *Generator) Module() *obj.Module {
	return g.m
}

// Section returns the active section, or nil before the first .section.
func (g *Generator) Section() *obj.Section {
	if g.cur == 0 {
		return nil
	}
	return g.m.Section(g.cur)
}

// Pending returns the number of references still waiting for their symbol
// to be defined.
func (g *Generator) Pending() (n int) {
	for _, pp := range g.pending {
		n += len(pp)
	}
	return n
}

// MaxSection is the largest section size for which every offset, including
// a label just past the last byte, fits in 16 bits.
const MaxSection = 0xFFFF

// symbol returns the symbol called name, inserting an unbound, undefined
// one on first mention.
func (g *Generator) symbol(name string) (*obj.Symbol, error) {
	if name == obj.UND {
		return nil, diag.Errorf(diag.SyntaxError, "%s is a reserved name", name)
	}
	if id, ok := g.m.LookupSymbol(name); ok {
		return g.m.Symbol(id), nil
	}
	return g.m.AddSymbol(obj.Symbol{Name: name}), nil
}

// reserve fails if n more bytes do not fit into the active section.
func (g *Generator) reserve(n int) error {
	if g.LC+n > MaxSection {
		sec := g.m.Section(g.cur).Name
		return &diag.Error{Kind: diag.SyntaxError, Section: sec,
			Msg: fmt.Sprintf("section %s exceeds %d bytes", sec, MaxSection)}
	}
	return nil
}

func (g *Generator) emit(b ...byte) {
	g.m.Emit(g.cur, b...)
}

func (g *Generator) here() int {
	return len(g.m.Code(g.cur).Bytes)
}

func (g *Generator) needSection(what string) error {
	if g.cur == 0 {
		return diag.Errorf(diag.NoActiveSection, "%s outside of any section", what)
	}
	return nil
}

// ------------------------------ directives ------------------------------

// OpenSection closes the active section and starts section name with the
// location counter reset to 0.
func (g *Generator) OpenSection(name string) error {
	g.closeSection()
	if name == obj.UND || name == "END" {
		return &diag.Error{Kind: diag.SyntaxError, Section: name, Msg: name + " is a reserved name"}
	}
	if _, dup := g.m.LookupSection(name); dup {
		return &diag.Error{Kind: diag.MultipleDefinition, Section: name, Msg: "section " + name + " opened twice"}
	}
	var symID obj.SymbolID
	if id, ok := g.m.LookupSymbol(name); ok {
		sym := g.m.Symbol(id)
		if sym.Defined || sym.Binding == obj.Global || g.extern[id] {
			return &diag.Error{Kind: diag.MultipleDefinition, Symbol: name, Section: name,
				Msg: "section name " + name + " already used as symbol"}
		}
		symID = id
	} else {
		symID = g.m.AddSymbol(obj.Symbol{Name: name}).ID
	}
	sec := g.m.AddSection(name)
	sym := g.m.Symbol(symID)
	sym.Type = obj.SectionType
	sym.Section = sec.ID
	sym.Offset = 0
	sym.Binding = obj.Local
	sym.Defined = true
	g.cur = sec.ID
	g.LC = 0
	g.backpatch(symID)
	return nil
}

func (g *Generator) closeSection() {
	if g.cur != 0 {
		g.m.Section(g.cur).Length = g.LC
		g.cur = 0
		g.LC = 0
	}
}

// Close ends the module, closing the active section.
func (g *Generator) Close() *obj.Module {
	g.closeSection()
	return g.m
}

// Global marks name as exported.
func (g *Generator) Global(name string) error {
	sym, err := g.symbol(name)
	if err != nil {
		return err
	}
	if sym.Type == obj.SectionType {
		return &diag.Error{Kind: diag.MultipleDefinition, Symbol: name, Msg: "section " + name + " cannot be global"}
	}
	sym.Binding = obj.Global
	return nil
}

// Extern declares name as defined in another module.
func (g *Generator) Extern(name string) error {
	sym, err := g.symbol(name)
	if err != nil {
		return err
	}
	if sym.Defined {
		return &diag.Error{Kind: diag.MultipleDefinition, Symbol: name, Msg: "symbol " + name + " defined and declared extern"}
	}
	sym.Binding = obj.Global
	g.extern[sym.ID] = true
	return nil
}

// Label defines name at the location counter of the active section and
// resolves the references made to it so far.
func (g *Generator) Label(name string) error {
	if err := g.needSection("label " + name); err != nil {
		return err
	}
	sym, err := g.symbol(name)
	if err != nil {
		return err
	}
	if sym.Defined {
		return &diag.Error{Kind: diag.MultipleDefinition, Symbol: name, Msg: "symbol " + name + " already defined"}
	}
	if g.extern[sym.ID] {
		return &diag.Error{Kind: diag.MultipleDefinition, Symbol: name, Msg: "symbol " + name + " declared extern"}
	}
	sym.Defined = true
	sym.Offset = g.LC
	sym.Section = g.cur
	if sym.Binding != obj.Global {
		sym.Binding = obj.Local
	}
	g.backpatch(sym.ID)
	return nil
}

// Word emits one 16-bit data word per operand; literal operands are stored
// directly, symbol operands as Word16 references.
func (g *Generator) Word(opds []lex.Operand) error {
	if err := g.needSection(".word"); err != nil {
		return err
	}
	for _, opd := range opds {
		if err := g.reserve(2); err != nil {
			return err
		}
		switch opd.Kind {
		case lex.OpdImm:
			b := make([]byte, 2)
			obj.Word16.Put(b, uint16(opd.Value))
			g.emit(b...)
		case lex.OpdImmSym:
			if err := g.ref(opd.Symbol, obj.Word16); err != nil {
				return err
			}
		default:
			return diag.Errorf(diag.SyntaxError, ".word takes symbols and literals")
		}
		g.LC += 2
	}
	return nil
}

// Skip emits n zero bytes.
func (g *Generator) Skip(n int) error {
	if err := g.needSection(".skip"); err != nil {
		return err
	}
	if n < 0 {
		return diag.Errorf(diag.SyntaxError, ".skip %d: negative size", n)
	}
	if err := g.reserve(n); err != nil {
		return err
	}
	g.emit(make([]byte, n)...)
	g.LC += n
	return nil
}
