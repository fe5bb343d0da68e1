package gen

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fzipp/relasm/diag"
	"github.com/fzipp/relasm/isa"
	"github.com/fzipp/relasm/lex"
	"github.com/fzipp/relasm/obj"
)

func reg(r byte) lex.Operand {
	return lex.Operand{Kind: lex.OpdReg, Reg: r}
}

func newText(t *testing.T) *Generator {
	g := NewGenerator("test")
	require.NoError(t, g.OpenSection("text"))
	return g
}

func emit(t *testing.T, g *Generator, mnemonic string, opds ...lex.Operand) {
	_, err := g.Instruction(mnemonic, opds)
	require.NoError(t, err)
}

func TestInstruction(t *testing.T) {
	tests := []struct {
		name     string
		mnemonic string
		opds     []lex.Operand
		expected []byte
	}{
		{name: "halt", mnemonic: "halt", expected: []byte{0x00}},
		{name: "iret", mnemonic: "iret", expected: []byte{0x20}},
		{name: "ret", mnemonic: "ret", expected: []byte{0x40}},
		{name: "int", mnemonic: "int", opds: []lex.Operand{reg(isa.R3)}, expected: []byte{0x10, 0x3F}},
		{name: "not", mnemonic: "not", opds: []lex.Operand{reg(isa.R4)}, expected: []byte{0x80, 0x4F}},
		{name: "push", mnemonic: "push", opds: []lex.Operand{reg(isa.R1)}, expected: []byte{0xB0, 0x16, 0x12}},
		{name: "pop", mnemonic: "pop", opds: []lex.Operand{reg(isa.R2)}, expected: []byte{0xA0, 0x26, 0x42}},
		{name: "xchg", mnemonic: "xchg", opds: []lex.Operand{reg(isa.R1), reg(isa.R2)}, expected: []byte{0x60, 0x12}},
		{name: "div", mnemonic: "div", opds: []lex.Operand{reg(isa.R5), reg(isa.SP)}, expected: []byte{0x73, 0x56}},
		{name: "shr", mnemonic: "shr", opds: []lex.Operand{reg(isa.R0), reg(isa.R7)}, expected: []byte{0x91, 0x07}},
		{
			name:     "jmp literal",
			mnemonic: "jmp",
			opds:     []lex.Operand{{Kind: lex.OpdImm, Value: 0x20}},
			expected: []byte{0x50, 0xFF, 0x00, 0x00, 0x20},
		},
		{
			name:     "jgt memory literal",
			mnemonic: "jgt",
			opds:     []lex.Operand{{Kind: lex.OpdMem, Value: 0x1234}},
			expected: []byte{0x53, 0xFF, 0x04, 0x12, 0x34},
		},
		{
			name:     "jmp register",
			mnemonic: "jmp",
			opds:     []lex.Operand{reg(isa.R3)},
			expected: []byte{0x50, 0xF3, 0x01},
		},
		{
			name:     "jmp indirect with displacement",
			mnemonic: "jmp",
			opds:     []lex.Operand{{Kind: lex.OpdRegIndLit, Reg: isa.R2, Value: 2, Update: isa.UpdDecBefore}},
			expected: []byte{0x50, 0xF2, 0x13, 0x00, 0x02},
		},
		{
			name:     "ldr immediate",
			mnemonic: "ldr",
			opds:     []lex.Operand{reg(isa.R0), {Kind: lex.OpdImm, Value: -5}},
			expected: []byte{0xA0, 0x0F, 0x00, 0xFF, 0xFB},
		},
		{
			name:     "ldr register",
			mnemonic: "ldr",
			opds:     []lex.Operand{reg(isa.R1), reg(isa.PSW)},
			expected: []byte{0xA0, 0x18, 0x01},
		},
		{
			name:     "ldr indirect",
			mnemonic: "ldr",
			opds:     []lex.Operand{reg(isa.R1), {Kind: lex.OpdRegInd, Reg: isa.R2}},
			expected: []byte{0xA0, 0x12, 0x02},
		},
		{
			name:     "str post increment",
			mnemonic: "str",
			opds:     []lex.Operand{reg(isa.R1), {Kind: lex.OpdRegInd, Reg: isa.R2, Update: isa.UpdIncAfter}},
			expected: []byte{0xB0, 0x12, 0x42},
		},
		{
			name:     "str memory",
			mnemonic: "str",
			opds:     []lex.Operand{reg(isa.R3), {Kind: lex.OpdMem, Value: 0xFF00}},
			expected: []byte{0xB0, 0x3F, 0x04, 0xFF, 0x00},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			g := newText(t)
			n, err := g.Instruction(tc.mnemonic, tc.opds)
			require.NoError(t, err)
			require.Equal(t, len(tc.expected), n)
			require.Equal(t, n, g.LC)
			require.Equal(t, tc.expected, g.Module().Code(1).Bytes)
			require.Zero(t, g.Module().NumRelocs())
		})
	}
}

func TestInstruction_Errors(t *testing.T) {
	g := NewGenerator("test")
	_, err := g.Instruction("halt", nil)
	require.True(t, errors.Is(err, diag.NoActiveSection))

	g = newText(t)
	tests := []struct {
		name, mnemonic string
		opds           []lex.Operand
		expectedErr    string
	}{
		{
			name:        "unknown mnemonic",
			mnemonic:    "mov",
			expectedErr: "syntax error: unknown mnemonic mov",
		},
		{
			name:        "store immediate",
			mnemonic:    "str",
			opds:        []lex.Operand{reg(isa.R1), {Kind: lex.OpdImm, Value: 1}},
			expectedErr: "syntax error: str does not accept imm operand",
		},
		{
			name:        "arity",
			mnemonic:    "add",
			opds:        []lex.Operand{reg(isa.R1)},
			expectedErr: "syntax error: add takes 2 operand(s), got 1",
		},
		{
			name:        "register expected",
			mnemonic:    "push",
			opds:        []lex.Operand{{Kind: lex.OpdImm, Value: 1}},
			expectedErr: "syntax error: push: operand 1 must be a register",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := g.Instruction(tc.mnemonic, tc.opds)
			require.EqualError(t, err, tc.expectedErr)
			require.True(t, errors.Is(err, diag.SyntaxError))
		})
	}
	require.Zero(t, g.LC)
}

func TestForwardPCRelative(t *testing.T) {
	g := newText(t)
	emit(t, g, "jmp", lex.Operand{Kind: lex.OpdPCRel, Symbol: "end"})
	require.Equal(t, 1, g.Pending())
	emit(t, g, "halt")
	require.NoError(t, g.Label("end"))
	require.Zero(t, g.Pending())
	emit(t, g, "halt")
	m := g.Close()

	// displacement from the end of the operand field (3+2) to end (6)
	require.Equal(t, []byte{0x50, 0xF7, 0x05, 0x00, 0x01, 0x00, 0x00}, m.Code(1).Bytes)
	require.Equal(t, obj.Relocation{Section: 1, Offset: 3, Kind: obj.PcRel16, Symbol: 1, Addend: 6}, *m.Reloc(0))
	require.Equal(t, 7, m.Section(1).Length)
}

func TestBackwardPCRelative(t *testing.T) {
	g := newText(t)
	require.NoError(t, g.Label("top"))
	emit(t, g, "halt")
	emit(t, g, "jmp", lex.Operand{Kind: lex.OpdPCRel, Symbol: "top"})
	m := g.Close()

	// 0 - (4+2) = -6
	require.Equal(t, []byte{0x00, 0x50, 0xF7, 0x05, 0xFF, 0xFA}, m.Code(1).Bytes)
	require.Equal(t, obj.Relocation{Section: 1, Offset: 4, Kind: obj.PcRel16, Symbol: 1, Addend: 0}, *m.Reloc(0))
}

func TestForwardAndBackwardAgree(t *testing.T) {
	// the same data word referring to the same label, once before and once
	// after the label definition
	fwd := newText(t)
	require.NoError(t, fwd.Word([]lex.Operand{{Kind: lex.OpdImmSym, Symbol: "x"}}))
	require.NoError(t, fwd.Label("x"))
	require.NoError(t, fwd.Word([]lex.Operand{{Kind: lex.OpdImmSym, Symbol: "x"}}))
	m := fwd.Close()

	require.Equal(t, []byte{0x02, 0x00, 0x02, 0x00}, m.Code(1).Bytes)
	require.Equal(t, 2, m.NumRelocs())
	first, second := *m.Reloc(0), *m.Reloc(1)
	require.Equal(t, first.Symbol, second.Symbol)
	require.Equal(t, first.Addend, second.Addend)
	require.Equal(t, first.Kind, second.Kind)
	require.Equal(t, obj.SymbolID(1), first.Symbol, "retargeted to the section symbol")
	require.Equal(t, 2, first.Addend)
}

func TestAbsoluteForwardReference(t *testing.T) {
	g := newText(t)
	emit(t, g, "ldr", reg(isa.R1), lex.Operand{Kind: lex.OpdImmSym, Symbol: "val"})
	require.NoError(t, g.Label("val"))
	require.NoError(t, g.Word([]lex.Operand{{Kind: lex.OpdImm, Value: 7}}))
	m := g.Close()

	require.Equal(t, []byte{0xA0, 0x1F, 0x00, 0x00, 0x05, 0x07, 0x00}, m.Code(1).Bytes)
	require.Equal(t, obj.Relocation{Section: 1, Offset: 3, Kind: obj.Abs16, Symbol: 1, Addend: 5}, *m.Reloc(0))
	val, _ := m.LookupSymbol("val")
	require.Equal(t, obj.Symbol{ID: val, Name: "val", Offset: 5, Section: 1, Binding: obj.Local, Defined: true}, *m.Symbol(val))
}

func TestGlobalReference(t *testing.T) {
	g := NewGenerator("test")
	require.NoError(t, g.Global("f"))
	require.NoError(t, g.OpenSection("text"))
	emit(t, g, "call", lex.Operand{Kind: lex.OpdImmSym, Symbol: "f"})
	require.NoError(t, g.Label("f"))
	emit(t, g, "ret")
	m := g.Close()

	require.Equal(t, []byte{0x30, 0xFF, 0x00, 0x00, 0x05, 0x40}, m.Code(1).Bytes)
	require.Equal(t, obj.Relocation{Section: 1, Offset: 3, Kind: obj.Abs16, Symbol: 1, Addend: 0}, *m.Reloc(0))
	require.Equal(t, obj.Global, m.Symbol(1).Binding)
	require.True(t, m.Symbol(1).Defined)
}

func TestGlobalAfterDefinition(t *testing.T) {
	g := newText(t)
	require.NoError(t, g.Label("main"))
	emit(t, g, "halt")
	require.NoError(t, g.Global("main"))
	m := g.Close()

	id, _ := m.LookupSymbol("main")
	require.Equal(t, obj.Global, m.Symbol(id).Binding)
	require.True(t, m.Symbol(id).Defined)
	require.Equal(t, 0, m.Symbol(id).Offset)
}

func TestExternReference(t *testing.T) {
	g := NewGenerator("test")
	require.NoError(t, g.Extern("helper"))
	require.NoError(t, g.OpenSection("text"))
	emit(t, g, "call", lex.Operand{Kind: lex.OpdPCRel, Symbol: "helper"})
	m := g.Close()

	require.Equal(t, []byte{0x30, 0xF7, 0x05, 0x00, 0x00}, m.Code(1).Bytes)
	require.Equal(t, obj.Relocation{Section: 1, Offset: 3, Kind: obj.PcRel16, Symbol: 1, Addend: 0}, *m.Reloc(0))
	require.Equal(t, 1, g.Pending())
	helper := m.Symbol(1)
	require.Equal(t, obj.Global, helper.Binding)
	require.False(t, helper.Defined)
}

func TestCrossSectionPCRelative(t *testing.T) {
	g := newText(t)
	emit(t, g, "jmp", lex.Operand{Kind: lex.OpdPCRel, Symbol: "lab"})
	require.NoError(t, g.OpenSection("data"))
	require.NoError(t, g.Label("lab"))
	require.NoError(t, g.Word([]lex.Operand{{Kind: lex.OpdImm, Value: 1}}))
	m := g.Close()

	require.Equal(t, []byte{0x50, 0xF7, 0x05, 0x00, 0x00}, m.Code(1).Bytes)
	data, _ := m.LookupSymbol("data")
	require.Equal(t, obj.Relocation{Section: 1, Offset: 3, Kind: obj.PcRel16, Symbol: data, Addend: 0}, *m.Reloc(0))
}

func TestDataPCRelative(t *testing.T) {
	g := newText(t)
	emit(t, g, "ldr", reg(isa.R2), lex.Operand{Kind: lex.OpdPCRel, Symbol: "count"})
	require.NoError(t, g.Label("count"))
	require.NoError(t, g.Word([]lex.Operand{{Kind: lex.OpdImm, Value: 0}}))
	m := g.Close()

	require.Equal(t, []byte{0xA0, 0x27, 0x03, 0x00, 0x00, 0x00, 0x00}, m.Code(1).Bytes)
	require.Equal(t, obj.PcRel16, m.Reloc(0).Kind)
	require.Equal(t, 5, m.Reloc(0).Addend)
}

func TestWordAndSkip(t *testing.T) {
	g := NewGenerator("test")
	require.NoError(t, g.OpenSection("data"))
	require.NoError(t, g.Word([]lex.Operand{{Kind: lex.OpdImm, Value: 0x1234}, {Kind: lex.OpdImmSym, Symbol: "here"}}))
	require.NoError(t, g.Label("here"))
	require.NoError(t, g.Skip(2))
	require.Equal(t, 6, g.LC)
	m := g.Close()

	require.Equal(t, []byte{0x34, 0x12, 0x04, 0x00, 0x00, 0x00}, m.Code(1).Bytes)
	require.Equal(t, obj.Relocation{Section: 1, Offset: 2, Kind: obj.Word16, Symbol: 1, Addend: 4}, *m.Reloc(0))
	require.Equal(t, 6, m.Section(1).Length)
}

func TestSections(t *testing.T) {
	g := newText(t)
	emit(t, g, "halt")
	emit(t, g, "halt")
	require.NoError(t, g.OpenSection("data"))
	require.Zero(t, g.LC)
	require.Equal(t, "data", g.Section().Name)
	require.NoError(t, g.Skip(3))
	m := g.Close()
	require.Nil(t, g.Section())

	require.Equal(t, 3, m.NumSections())
	require.Equal(t, 2, m.Section(1).Length)
	require.Equal(t, 3, m.Section(2).Length)
	for sym := range m.Symbols() {
		require.Equal(t, obj.SectionType, sym.Type)
		require.Equal(t, obj.Local, sym.Binding)
		require.True(t, sym.Defined)
		require.Equal(t, sym.Name, m.Section(sym.Section).Name)
	}
}

func TestSectionReferencedBeforeOpened(t *testing.T) {
	g := newText(t)
	emit(t, g, "ldr", reg(isa.R1), lex.Operand{Kind: lex.OpdImmSym, Symbol: "data"})
	require.NoError(t, g.OpenSection("data"))
	require.Zero(t, g.Pending())
	m := g.Close()

	data, _ := m.LookupSymbol("data")
	require.Equal(t, obj.SectionType, m.Symbol(data).Type)
	require.Equal(t, obj.SectionID(2), m.Symbol(data).Section)
	require.Equal(t, obj.Relocation{Section: 1, Offset: 3, Kind: obj.Abs16, Symbol: data, Addend: 0}, *m.Reloc(0))
}

func TestDefinitionErrors(t *testing.T) {
	tests := []struct {
		name     string
		run      func(g *Generator) error
		expected diag.Kind
	}{
		{
			name:     "label without section",
			run:      func(g *Generator) error { return g.Label("start") },
			expected: diag.NoActiveSection,
		},
		{
			name:     "word without section",
			run:      func(g *Generator) error { return g.Word([]lex.Operand{{Kind: lex.OpdImm}}) },
			expected: diag.NoActiveSection,
		},
		{
			name:     "skip without section",
			run:      func(g *Generator) error { return g.Skip(1) },
			expected: diag.NoActiveSection,
		},
		{
			name: "duplicate label",
			run: func(g *Generator) error {
				_ = g.OpenSection("text")
				_ = g.Label("a")
				return g.Label("a")
			},
			expected: diag.MultipleDefinition,
		},
		{
			name: "label named like section",
			run: func(g *Generator) error {
				_ = g.OpenSection("text")
				return g.Label("text")
			},
			expected: diag.MultipleDefinition,
		},
		{
			name: "section reopened",
			run: func(g *Generator) error {
				_ = g.OpenSection("text")
				_ = g.OpenSection("data")
				return g.OpenSection("text")
			},
			expected: diag.MultipleDefinition,
		},
		{
			name: "section named like label",
			run: func(g *Generator) error {
				_ = g.OpenSection("text")
				_ = g.Label("data")
				return g.OpenSection("data")
			},
			expected: diag.MultipleDefinition,
		},
		{
			name: "extern then defined",
			run: func(g *Generator) error {
				_ = g.Extern("x")
				_ = g.OpenSection("text")
				return g.Label("x")
			},
			expected: diag.MultipleDefinition,
		},
		{
			name: "defined then extern",
			run: func(g *Generator) error {
				_ = g.OpenSection("text")
				_ = g.Label("x")
				return g.Extern("x")
			},
			expected: diag.MultipleDefinition,
		},
		{
			name: "global section",
			run: func(g *Generator) error {
				_ = g.OpenSection("text")
				return g.Global("text")
			},
			expected: diag.MultipleDefinition,
		},
		{
			name:     "section named END",
			run:      func(g *Generator) error { return g.OpenSection("END") },
			expected: diag.SyntaxError,
		},
		{
			name:     "section named UND",
			run:      func(g *Generator) error { return g.OpenSection("UND") },
			expected: diag.SyntaxError,
		},
		{
			name:     "label named UND",
			run:      func(g *Generator) error { _ = g.OpenSection("text"); return g.Label("UND") },
			expected: diag.SyntaxError,
		},
		{
			name:     "extern UND",
			run:      func(g *Generator) error { return g.Extern("UND") },
			expected: diag.SyntaxError,
		},
		{
			name: "jump to UND",
			run: func(g *Generator) error {
				_ = g.OpenSection("text")
				_, err := g.Instruction("jmp", []lex.Operand{{Kind: lex.OpdImmSym, Symbol: "UND"}})
				return err
			},
			expected: diag.SyntaxError,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.run(NewGenerator("test"))
			require.Error(t, err)
			require.Equal(t, tc.expected, diag.KindOf(err))
		})
	}
}

func TestSectionSize(t *testing.T) {
	g := newText(t)
	require.NoError(t, g.Skip(MaxSection-1))
	require.NoError(t, g.Label("last"))
	require.Error(t, g.Skip(2))
	require.Error(t, g.Word([]lex.Operand{{Kind: lex.OpdImm, Value: 1}, {Kind: lex.OpdImm, Value: 2}}))
	require.NoError(t, g.Skip(1))
	require.Equal(t, MaxSection, g.LC)

	err := g.Skip(1)
	require.EqualError(t, err, "syntax error: section text exceeds 65535 bytes")
	require.True(t, errors.Is(err, diag.SyntaxError))

	g = newText(t)
	require.NoError(t, g.Skip(MaxSection-4))
	_, err = g.Instruction("jmp", []lex.Operand{{Kind: lex.OpdImmSym, Symbol: "foo"}})
	require.True(t, errors.Is(err, diag.SyntaxError))
}
