package gen

import (
	"github.com/fzipp/relasm/diag"
	"github.com/fzipp/relasm/isa"
	"github.com/fzipp/relasm/lex"
	"github.com/fzipp/relasm/obj"
)

// Instruction encodes one instruction into the active section and returns
// its length in bytes (1, 2, 3 or 5).
func (g *Generator) Instruction(mnemonic string, opds []lex.Operand) (n int, err error) {
	if err := g.needSection("instruction " + mnemonic); err != nil {
		return 0, err
	}
	in, ok := isa.Lookup(mnemonic)
	if !ok {
		return 0, diag.Errorf(diag.SyntaxError, "unknown mnemonic %s", mnemonic)
	}
	if want := arity(in.Shape); len(opds) != want {
		return 0, diag.Errorf(diag.SyntaxError, "%s takes %d operand(s), got %d", mnemonic, want, len(opds))
	}
	for i, opd := range opds {
		if i < regOperands(in.Shape) && opd.Kind != lex.OpdReg {
			return 0, diag.Errorf(diag.SyntaxError, "%s: operand %d must be a register", mnemonic, i+1)
		}
	}
	start := g.here()
	switch in.Shape {
	case isa.ShapeNone:
		g.put1(in.Op)
	case isa.ShapeReg:
		g.put2(in.Op, opds[0].Reg, isa.NoReg)
	case isa.ShapeStack:
		upd := isa.UpdIncAfter
		if in.Class() == isa.ClassStore {
			upd = isa.UpdDecBefore
		}
		g.put3(in.Op, opds[0].Reg, isa.SP, upd, isa.AddrRegInd)
	case isa.ShapeRegReg:
		g.put2(in.Op, opds[0].Reg, opds[1].Reg)
	case isa.ShapeJump:
		err = g.operand(mnemonic, in, isa.NoReg, opds[0])
	case isa.ShapeRegData:
		err = g.operand(mnemonic, in, opds[0].Reg, opds[1])
	}
	if err != nil {
		return 0, err
	}
	n = g.here() - start
	if err := g.reserve(n); err != nil {
		return 0, err
	}
	g.LC += n
	return n, nil
}

func arity(s isa.Shape) int {
	switch s {
	case isa.ShapeNone:
		return 0
	case isa.ShapeReg, isa.ShapeStack, isa.ShapeJump:
		return 1
	}
	return 2
}

// regOperands is the number of leading operands that must be registers.
func regOperands(s isa.Shape) int {
	switch s {
	case isa.ShapeReg, isa.ShapeStack, isa.ShapeRegData:
		return 1
	case isa.ShapeRegReg:
		return 2
	}
	return 0
}

// instruction emitters according to formats

func (g *Generator) put1(op byte) {
	g.emit(op)
}

func (g *Generator) put2(op, dst, src byte) {
	g.emit(op, dst<<4|src&0xF)
}

func (g *Generator) put3(op, dst, src byte, upd isa.Update, a isa.AddrType) {
	g.emit(op, dst<<4|src&0xF, byte(upd)<<4|byte(a))
}

// addressing returns the address type and source register an operand is
// encoded with.
func addressing(jump bool, opd lex.Operand) (a isa.AddrType, reg byte) {
	switch opd.Kind {
	case lex.OpdReg:
		return isa.AddrRegDir, opd.Reg
	case lex.OpdImm, lex.OpdImmSym:
		return isa.AddrImm, isa.NoReg
	case lex.OpdMem, lex.OpdMemSym:
		return isa.AddrMem, isa.NoReg
	case lex.OpdPCRel:
		if jump {
			return isa.AddrRegDirDisp, isa.PC
		}
		return isa.AddrRegIndDisp, isa.PC
	case lex.OpdRegInd:
		return isa.AddrRegInd, opd.Reg
	}
	return isa.AddrRegIndDisp, opd.Reg
}

func (g *Generator) operand(mnemonic string, in isa.Instr, dst byte, opd lex.Operand) error {
	a, reg := addressing(in.Shape == isa.ShapeJump, opd)
	if !in.Modes.Has(a) {
		return diag.Errorf(diag.SyntaxError, "%s does not accept %s operand", mnemonic, a)
	}
	upd := isa.UpdNone
	if a == isa.AddrRegInd || a == isa.AddrRegIndDisp {
		upd = opd.Update
	}
	g.put3(in.Op, dst, reg, upd, a)
	if !a.HasData() {
		return nil
	}
	switch opd.Kind {
	case lex.OpdImm, lex.OpdMem, lex.OpdRegIndLit:
		v := uint16(opd.Value)
		g.emit(byte(v>>8), byte(v))
	case lex.OpdPCRel:
		return g.ref(opd.Symbol, obj.PcRel16)
	default:
		return g.ref(opd.Symbol, obj.Abs16)
	}
	return nil
}
