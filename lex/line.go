package lex

import (
	"fmt"

	"github.com/fzipp/relasm/diag"
	"github.com/fzipp/relasm/isa"
)

type LineKind int

const (
	LineEmpty LineKind = iota // blank, comment or label only
	LineDirective
	LineInstruction
)

type OperandKind int

// operand kinds
const (
	OpdReg       OperandKind = iota // r
	OpdImm                          // literal value
	OpdImmSym                       // symbol value
	OpdMem                          // memory at literal address
	OpdMemSym                       // memory at symbol address
	OpdPCRel                        // symbol, PC-relative
	OpdRegInd                       // [r]
	OpdRegIndLit                    // [r + literal]
	OpdRegIndSym                    // [r + symbol]
)

// Operand is one classified operand. Reg is meaningful for the register
// kinds, Value for literal kinds and Symbol for symbol kinds. Update is the
// pointer update of the register-indirect kinds.
type Operand struct {
	Kind   OperandKind
	Reg    byte
	Value  int32
	Symbol string
	Update isa.Update
}

// Line is a classified source line. Name is the directive name without
// the leading period, or the instruction mnemonic.
type Line struct {
	Label    string
	Kind     LineKind
	Name     string
	Operands []Operand
}

// argument forms of directives
type dirForm int

const (
	dirNone    dirForm = iota
	dirSymbols         // .global a, b
	dirName            // .section text
	dirData            // .word a, 1
	dirLiteral         // .skip 4
)

var dirTab = map[string]dirForm{
	"global":  dirSymbols,
	"extern":  dirSymbols,
	"section": dirName,
	"word":    dirData,
	"skip":    dirLiteral,
	"end":     dirNone,
}

const (
	minLiteral = -0x8000
	maxLiteral = 0xFFFF
)

type parser struct {
	s   *Scanner
	sym Sym
}

// Parse classifies one source line. Errors are of kind diag.SyntaxError.
func Parse(text string) (Line, error) {
	p := &parser{s: NewScanner(text)}
	p.next()
	ln := p.line()
	if err := p.s.Err(); err != nil {
		return Line{}, &diag.Error{Kind: diag.SyntaxError, Msg: err.Error()}
	}
	return ln, nil
}

func (p *parser) next() {
	p.sym = p.s.Get()
}

func (p *parser) check(sym Sym) {
	if p.sym == sym {
		p.next()
	} else {
		p.s.Mark(fmt.Sprintf("%s expected, found %s", sym, p.sym))
	}
}

func (p *parser) line() (ln Line) {
	if p.sym == SymIdent {
		id := p.s.Id
		p.next()
		if p.sym == SymColon {
			if _, isReg := isa.Register(id); isReg {
				p.s.Mark("register name used as label: " + id)
			}
			ln.Label = id
			p.next()
			if p.sym == SymIdent {
				id = p.s.Id
				p.next()
				p.instruction(&ln, id)
			} else if p.sym == SymDirective {
				p.directive(&ln)
			} else if p.sym != SymEol {
				p.s.Mark("instruction or directive expected")
			}
		} else {
			p.instruction(&ln, id)
		}
	} else if p.sym == SymDirective {
		p.directive(&ln)
	} else if p.sym != SymEol {
		p.s.Mark("label, instruction or directive expected")
	}
	if p.sym != SymEol {
		p.s.Mark("unexpected " + p.sym.String())
	}
	return ln
}

func (p *parser) directive(ln *Line) {
	ln.Kind = LineDirective
	ln.Name = p.s.Id
	form, ok := dirTab[ln.Name]
	if !ok {
		p.s.Mark("unknown directive ." + ln.Name)
		return
	}
	p.next()
	switch form {
	case dirSymbols:
		ln.Operands = append(ln.Operands, p.symbolArg())
		for p.sym == SymComma {
			p.next()
			ln.Operands = append(ln.Operands, p.symbolArg())
		}
	case dirName:
		ln.Operands = append(ln.Operands, p.symbolArg())
	case dirData:
		ln.Operands = append(ln.Operands, p.dataArg())
		for p.sym == SymComma {
			p.next()
			ln.Operands = append(ln.Operands, p.dataArg())
		}
	case dirLiteral:
		v := p.literal()
		if v < 0 {
			p.s.Mark("negative size")
		}
		ln.Operands = append(ln.Operands, Operand{Kind: OpdImm, Value: v})
	}
}

func (p *parser) symbolArg() Operand {
	return Operand{Kind: OpdImmSym, Symbol: p.symbol()}
}

func (p *parser) dataArg() Operand {
	if p.sym == SymIdent {
		return p.symbolArg()
	}
	return Operand{Kind: OpdImm, Value: p.literal()}
}

// symbol parses an identifier that is not a register name.
func (p *parser) symbol() (name string) {
	if p.sym != SymIdent {
		p.s.Mark("symbol expected, found " + p.sym.String())
		return ""
	}
	name = p.s.Id
	if _, isReg := isa.Register(name); isReg {
		p.s.Mark("symbol expected, found register " + name)
	}
	p.next()
	return name
}

// literal parses an optionally negated number.
func (p *parser) literal() int32 {
	neg := false
	if p.sym == SymMinus {
		neg = true
		p.next()
	}
	if p.sym != SymInt {
		p.s.Mark("number expected, found " + p.sym.String())
		return 0
	}
	v := p.s.Ival
	p.next()
	if neg {
		v = -v
	}
	if v < minLiteral || v > maxLiteral {
		p.s.Mark(fmt.Sprintf("literal %d out of 16-bit range", v))
		return 0
	}
	return int32(v)
}

func (p *parser) register() byte {
	if p.sym != SymIdent {
		p.s.Mark("register expected, found " + p.sym.String())
		return 0
	}
	r, ok := isa.Register(p.s.Id)
	if !ok {
		p.s.Mark("register expected, found " + p.s.Id)
	}
	p.next()
	return r
}

func (p *parser) instruction(ln *Line, mnemonic string) {
	ln.Kind = LineInstruction
	ln.Name = mnemonic
	in, ok := isa.Lookup(mnemonic)
	if !ok {
		p.s.Mark("unknown mnemonic " + mnemonic)
		return
	}
	switch in.Shape {
	case isa.ShapeNone:
	case isa.ShapeReg, isa.ShapeStack:
		ln.Operands = append(ln.Operands, Operand{Kind: OpdReg, Reg: p.register()})
	case isa.ShapeRegReg:
		d := p.register()
		p.check(SymComma)
		s := p.register()
		ln.Operands = append(ln.Operands, Operand{Kind: OpdReg, Reg: d}, Operand{Kind: OpdReg, Reg: s})
	case isa.ShapeJump:
		ln.Operands = append(ln.Operands, p.jumpOperand())
	case isa.ShapeRegData:
		d := p.register()
		p.check(SymComma)
		ln.Operands = append(ln.Operands, Operand{Kind: OpdReg, Reg: d}, p.dataOperand())
	}
}

// jumpOperand parses
//
//	lit | sym | %sym | *lit | *sym | *reg | *[...]
func (p *parser) jumpOperand() Operand {
	switch p.sym {
	case SymPercent:
		p.next()
		return Operand{Kind: OpdPCRel, Symbol: p.symbol()}
	case SymTimes:
		p.next()
		return p.memOperand()
	case SymIdent:
		if _, isReg := isa.Register(p.s.Id); isReg {
			p.s.Mark("register operand needs '*'")
		}
		return Operand{Kind: OpdImmSym, Symbol: p.symbol()}
	}
	return Operand{Kind: OpdImm, Value: p.literal()}
}

// dataOperand parses
//
//	$lit | $sym | lit | sym | %sym | reg | [...]
func (p *parser) dataOperand() Operand {
	switch p.sym {
	case SymDollar:
		p.next()
		if p.sym == SymIdent {
			return Operand{Kind: OpdImmSym, Symbol: p.symbol()}
		}
		return Operand{Kind: OpdImm, Value: p.literal()}
	case SymPercent:
		p.next()
		return Operand{Kind: OpdPCRel, Symbol: p.symbol()}
	}
	return p.memOperand()
}

// memOperand parses the notations jump and data operands share after the
// optional '*':
//
//	lit | sym | reg | [reg] | [reg + lit] | [reg + sym]
func (p *parser) memOperand() Operand {
	switch p.sym {
	case SymLbrak:
		p.next()
		return p.indirect()
	case SymIdent:
		if r, isReg := isa.Register(p.s.Id); isReg {
			p.next()
			return Operand{Kind: OpdReg, Reg: r}
		}
		return Operand{Kind: OpdMemSym, Symbol: p.symbol()}
	}
	return Operand{Kind: OpdMem, Value: p.literal()}
}

// indirect parses the bracketed part after '['.
func (p *parser) indirect() (opd Operand) {
	opd.Kind = OpdRegInd
	switch p.sym {
	case SymDec:
		opd.Update = isa.UpdDecBefore
		p.next()
	case SymInc:
		opd.Update = isa.UpdIncBefore
		p.next()
	}
	opd.Reg = p.register()
	switch p.sym {
	case SymDec, SymInc:
		if opd.Update != isa.UpdNone {
			p.s.Mark("more than one pointer update")
		} else if p.sym == SymDec {
			opd.Update = isa.UpdDecAfter
		} else {
			opd.Update = isa.UpdIncAfter
		}
		p.next()
	}
	if p.sym == SymPlus {
		p.next()
		if p.sym == SymIdent {
			opd.Kind = OpdRegIndSym
			opd.Symbol = p.symbol()
		} else {
			opd.Kind = OpdRegIndLit
			opd.Value = p.literal()
		}
	}
	p.check(SymRbrak)
	return opd
}
