// Package isa describes the instruction set of the 16-bit register machine
// targeted by the assembler: operation classes, register codes, address
// types, pointer update modes and the static mnemonic table.
//
// Instruction layout:
//
//	byte 0    class<<4 | sub-opcode
//	byte 1    dst<<4 | src           (absent for 1-byte instructions)
//	byte 2    update<<4 | addr type  (only with an address operand)
//	byte 3,4  data high, data low    (only for address types with data)
package isa

import "fmt"

type Class byte

// operation classes; order is relevant
const (
	ClassHalt Class = iota
	ClassInt
	ClassIret
	ClassCall
	ClassRet
	ClassJump
	ClassXchg
	ClassArith
	ClassLogic
	ClassShift
	ClassLoad
	ClassStore
)

var classNames = [...]string{
	"halt", "int", "iret", "call", "ret", "jump",
	"xchg", "arith", "logic", "shift", "load", "store",
}

func (c Class) String() string {
	if int(c) < len(classNames) {
		return classNames[c]
	}
	return fmt.Sprintf("class(%d)", byte(c))
}

// register codes
const (
	R0 byte = iota
	R1
	R2
	R3
	R4
	R5
	R6
	R7
	PSW

	SP    = R6
	PC    = R7
	NoReg = 0xF // unused register nibble
)

var regTab = map[string]byte{
	"r0":  R0,
	"r1":  R1,
	"r2":  R2,
	"r3":  R3,
	"r4":  R4,
	"r5":  R5,
	"r6":  R6,
	"r7":  R7,
	"sp":  SP,
	"pc":  PC,
	"psw": PSW,
}

// Register returns the code of the named register.
func Register(name string) (code byte, ok bool) {
	code, ok = regTab[name]
	return code, ok
}

type AddrType byte

const (
	AddrImm        AddrType = iota // immediate
	AddrRegDir                     // register direct
	AddrRegInd                     // register indirect
	AddrRegIndDisp                 // register indirect with displacement
	AddrMem                        // memory direct
	AddrRegDirDisp                 // register direct with displacement
)

var addrNames = [...]string{"imm", "regdir", "regind", "regind+disp", "mem", "regdir+disp"}

func (a AddrType) String() string {
	if int(a) < len(addrNames) {
		return addrNames[a]
	}
	return fmt.Sprintf("addr(%d)", byte(a))
}

// HasData reports whether an instruction using a carries the 16-bit
// data field in bytes 3 and 4.
func (a AddrType) HasData() bool {
	switch a {
	case AddrImm, AddrRegIndDisp, AddrMem, AddrRegDirDisp:
		return true
	}
	return false
}

// Update is the pointer update applied to the register of an indirect
// operand.
type Update byte

const (
	UpdNone Update = iota
	UpdDecBefore
	UpdIncBefore
	UpdDecAfter
	UpdIncAfter
)

// Shape is the operand syntax an instruction accepts.
type Shape byte

const (
	ShapeNone    Shape = iota // halt
	ShapeReg                  // int r
	ShapeStack                // push r
	ShapeRegReg               // add r, r
	ShapeJump                 // jmp operand
	ShapeRegData              // ldr r, operand
)

// ModeSet is a set of address types.
type ModeSet uint8

func Modes(a ...AddrType) (m ModeSet) {
	for _, t := range a {
		m |= 1 << t
	}
	return m
}

func (m ModeSet) Has(a AddrType) bool {
	return m&(1<<a) != 0
}

var (
	anyMode   = Modes(AddrImm, AddrRegDir, AddrRegInd, AddrRegIndDisp, AddrMem, AddrRegDirDisp)
	storeMode = Modes(AddrRegDir, AddrRegInd, AddrRegIndDisp, AddrMem, AddrRegDirDisp)
)

// Instr is one entry of the mnemonic table.
type Instr struct {
	Op    byte // first instruction byte
	Shape Shape
	Modes ModeSet // permitted address types for ShapeJump and ShapeRegData
}

func (in Instr) Class() Class {
	return Class(in.Op >> 4)
}

// Size returns the encoded length of the instruction when its address
// operand (if any) uses address type a.
func (in Instr) Size(a AddrType) int {
	switch in.Shape {
	case ShapeNone:
		return 1
	case ShapeReg, ShapeRegReg:
		return 2
	case ShapeStack:
		return 3
	}
	if a.HasData() {
		return 5
	}
	return 3
}

var table = map[string]Instr{
	"halt": {Op: 0x00, Shape: ShapeNone},
	"int":  {Op: 0x10, Shape: ShapeReg},
	"iret": {Op: 0x20, Shape: ShapeNone},
	"call": {Op: 0x30, Shape: ShapeJump, Modes: anyMode},
	"ret":  {Op: 0x40, Shape: ShapeNone},
	"jmp":  {Op: 0x50, Shape: ShapeJump, Modes: anyMode},
	"jeq":  {Op: 0x51, Shape: ShapeJump, Modes: anyMode},
	"jne":  {Op: 0x52, Shape: ShapeJump, Modes: anyMode},
	"jgt":  {Op: 0x53, Shape: ShapeJump, Modes: anyMode},
	"push": {Op: 0xB0, Shape: ShapeStack},
	"pop":  {Op: 0xA0, Shape: ShapeStack},
	"xchg": {Op: 0x60, Shape: ShapeRegReg},
	"add":  {Op: 0x70, Shape: ShapeRegReg},
	"sub":  {Op: 0x71, Shape: ShapeRegReg},
	"mul":  {Op: 0x72, Shape: ShapeRegReg},
	"div":  {Op: 0x73, Shape: ShapeRegReg},
	"cmp":  {Op: 0x74, Shape: ShapeRegReg},
	"not":  {Op: 0x80, Shape: ShapeReg},
	"and":  {Op: 0x81, Shape: ShapeRegReg},
	"or":   {Op: 0x82, Shape: ShapeRegReg},
	"xor":  {Op: 0x83, Shape: ShapeRegReg},
	"test": {Op: 0x84, Shape: ShapeRegReg},
	"shl":  {Op: 0x90, Shape: ShapeRegReg},
	"shr":  {Op: 0x91, Shape: ShapeRegReg},
	"ldr":  {Op: 0xA0, Shape: ShapeRegData, Modes: anyMode},
	"str":  {Op: 0xB0, Shape: ShapeRegData, Modes: storeMode},
}

// Lookup returns the table entry for mnemonic.
func Lookup(mnemonic string) (Instr, bool) {
	in, ok := table[mnemonic]
	return in, ok
}
