// Package obj contains the relocatable module shared by the assembler and
// the linker.
//
// A Module is the "symbol table" of one translation unit: the list of
// sections with their code buffers, the list of symbols and the list of
// relocations. Sections and symbols live in index-addressed stores; ids are
// positions in those stores and never change once assigned. Id 0 of both
// stores is the sentinel "UND". All mutation goes through the pointers
// returned by Section, Symbol and Reloc; such a pointer stays valid until
// the next Add call on the same store.
package obj

import (
	"fmt"
	"iter"
)

// UND names the sentinel section and symbol.
const UND = "UND"

type SectionID int

type SymbolID int

type Binding byte

const (
	Unbound Binding = iota
	Local
	Global
)

func (b Binding) String() string {
	switch b {
	case Local:
		return "LOC"
	case Global:
		return "GLOB"
	}
	return "NOBIND"
}

type SymType byte

const (
	NoType SymType = iota
	SectionType
)

func (t SymType) String() string {
	if t == SectionType {
		return "SCTN"
	}
	return "NOTYP"
}

type RelocKind byte

const (
	Abs16 RelocKind = iota
	PcRel16
	Word16
)

func (k RelocKind) String() string {
	switch k {
	case PcRel16:
		return "R_PC16"
	case Word16:
		return "R_WORD16"
	}
	return "R_16"
}

// Put writes v into the two bytes of b. Instruction fields (Abs16,
// PcRel16) are stored high byte first; data words (Word16) low byte first,
// the order in which the machine reads 16-bit words from memory.
func (k RelocKind) Put(b []byte, v uint16) {
	if k == Word16 {
		b[0], b[1] = byte(v), byte(v>>8)
	} else {
		b[0], b[1] = byte(v>>8), byte(v)
	}
}

// Section is a named region of code. Base is 0 during assembly and the
// final linear address after linking.
type Section struct {
	ID     SectionID
	Name   string
	Base   int
	Length int
}

// Symbol is a named address. Offset is relative to the start of the owning
// section; for a section symbol it is 0.
type Symbol struct {
	ID      SymbolID
	Name    string
	Offset  int
	Section SectionID
	Binding Binding
	Type    SymType
	Defined bool
}

// Relocation tells how to fill in the two bytes at Offset of section
// Section once the address of Symbol is known.
type Relocation struct {
	Section SectionID
	Offset  int
	Kind    RelocKind
	Symbol  SymbolID
	Addend  int
}

// Code is the byte buffer of one section.
type Code struct {
	Section string
	Bytes   []byte
}

type Module struct {
	Name string

	sections []Section
	code     []Code // indexed by SectionID
	symbols  []Symbol
	relocs   []Relocation

	secIdx map[string]SectionID
	symIdx map[string]SymbolID
}

// NewModule returns an empty module holding only the sentinel section and
// symbol.
func NewModule(name string) *Module {
	m := &Module{
		Name:   name,
		secIdx: make(map[string]SectionID),
		symIdx: make(map[string]SymbolID),
	}
	m.sections = append(m.sections, Section{Name: UND})
	m.code = append(m.code, Code{Section: UND})
	m.symbols = append(m.symbols, Symbol{Name: UND})
	return m
}

// ------------------------------- Sections -------------------------------

// AddSection appends a new empty section; the name must not be in use.
func (m *Module) AddSection(name string) *Section {
	if _, dup := m.secIdx[name]; dup {
		panic(fmt.Sprintf("obj: duplicate section %s", name))
	}
	id := SectionID(len(m.sections))
	m.sections = append(m.sections, Section{ID: id, Name: name})
	m.code = append(m.code, Code{Section: name})
	m.secIdx[name] = id
	return &m.sections[id]
}

func (m *Module) LookupSection(name string) (SectionID, bool) {
	id, ok := m.secIdx[name]
	return id, ok
}

func (m *Module) Section(id SectionID) *Section {
	return &m.sections[id]
}

// NumSections counts the sections including the sentinel.
func (m *Module) NumSections() int {
	return len(m.sections)
}

// Sections yields the real sections in id order.
func (m *Module) Sections() iter.Seq[*Section] {
	return func(yield func(*Section) bool) {
		for i := 1; i < len(m.sections); i++ {
			if !yield(&m.sections[i]) {
				return
			}
		}
	}
}

func (m *Module) Code(id SectionID) *Code {
	return &m.code[id]
}

// Emit appends b to the code buffer of section id.
func (m *Module) Emit(id SectionID, b ...byte) {
	m.code[id].Bytes = append(m.code[id].Bytes, b...)
}

// -------------------------------- Symbols -------------------------------

// AddSymbol appends sym under a fresh id; the name must not be in use.
func (m *Module) AddSymbol(sym Symbol) *Symbol {
	if _, dup := m.symIdx[sym.Name]; dup {
		panic(fmt.Sprintf("obj: duplicate symbol %s", sym.Name))
	}
	sym.ID = SymbolID(len(m.symbols))
	m.symbols = append(m.symbols, sym)
	m.symIdx[sym.Name] = sym.ID
	return &m.symbols[sym.ID]
}

func (m *Module) LookupSymbol(name string) (SymbolID, bool) {
	id, ok := m.symIdx[name]
	return id, ok
}

func (m *Module) Symbol(id SymbolID) *Symbol {
	return &m.symbols[id]
}

// NumSymbols counts the symbols including the sentinel.
func (m *Module) NumSymbols() int {
	return len(m.symbols)
}

// Symbols yields the real symbols in id order.
func (m *Module) Symbols() iter.Seq[*Symbol] {
	return func(yield func(*Symbol) bool) {
		for i := 1; i < len(m.symbols); i++ {
			if !yield(&m.symbols[i]) {
				return
			}
		}
	}
}

// SectionSymbol returns the section-type symbol standing for section id.
func (m *Module) SectionSymbol(id SectionID) (*Symbol, bool) {
	symID, ok := m.symIdx[m.sections[id].Name]
	if !ok || m.symbols[symID].Type != SectionType {
		return nil, false
	}
	return &m.symbols[symID], true
}

// ------------------------------ Relocations -----------------------------

// AddReloc appends r and returns its index.
func (m *Module) AddReloc(r Relocation) int {
	m.relocs = append(m.relocs, r)
	return len(m.relocs) - 1
}

func (m *Module) Reloc(i int) *Relocation {
	return &m.relocs[i]
}

func (m *Module) NumRelocs() int {
	return len(m.relocs)
}

// Relocs yields the relocations in the order they were added.
func (m *Module) Relocs() iter.Seq[*Relocation] {
	return func(yield func(*Relocation) bool) {
		for i := range m.relocs {
			if !yield(&m.relocs[i]) {
				return
			}
		}
	}
}
