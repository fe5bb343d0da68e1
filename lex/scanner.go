// Package lex contains the line scanner of the assembler.
//
// Scanner does lexical analysis of a single source line. Input is the line
// text, output is a sequence of symbols, i.e. identifiers, directives,
// numbers, and special symbols. Comments starting with '#' run to the end
// of the line. Parse classifies a whole line into a Line value.
package lex

import (
	"fmt"
	"strconv"
	"strings"
)

const IdLen = 64

// Scanner delivers the symbols of one line through Get. If Get delivers
// SymIdent or SymDirective, the name is in field Id; if SymInt, the value
// is in Ival.
type Scanner struct {
	// results of Get
	Ival int64
	Id   string

	src string
	ch  byte // last character read
	eol bool
	pos int
	err error
}

func NewScanner(line string) *Scanner {
	s := &Scanner{src: line}
	s.nextCh()
	return s
}

// Pos returns the 1-based column of the last character read.
func (s *Scanner) Pos() int {
	return s.pos
}

// Mark records the first error found on the line.
func (s *Scanner) Mark(msg string) {
	if s.err == nil {
		s.err = fmt.Errorf("col %d: %s", s.Pos(), msg)
	}
}

// Err returns the first error marked on the line.
func (s *Scanner) Err() error {
	return s.err
}

func (s *Scanner) nextCh() {
	if s.pos >= len(s.src) {
		s.eol = true
		s.ch = 0
		s.pos = len(s.src) + 1
		return
	}
	s.ch = s.src[s.pos]
	s.pos++
}

func isLetter(ch byte) bool {
	return ch >= 'a' && ch <= 'z' || ch >= 'A' && ch <= 'Z' || ch == '_'
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func (s *Scanner) identifier() {
	var buf strings.Builder
	for !s.eol && (isLetter(s.ch) || isDigit(s.ch)) {
		if buf.Len() < IdLen {
			buf.WriteByte(s.ch)
		} else {
			s.Mark("identifier too long")
		}
		s.nextCh()
	}
	s.Id = buf.String()
}

func (s *Scanner) number() {
	var buf strings.Builder
	for !s.eol && (isLetter(s.ch) || isDigit(s.ch)) {
		buf.WriteByte(s.ch)
		s.nextCh()
	}
	text := buf.String()
	base := 10
	digits := text
	if len(text) > 2 && text[0] == '0' && (text[1] == 'x' || text[1] == 'X') {
		base = 16
		digits = text[2:]
	}
	v, err := strconv.ParseInt(digits, base, 64)
	if err != nil {
		s.Mark("bad number " + text)
		v = 0
	}
	s.Ival = v
}

// Get delivers the next symbol of the line.
func (s *Scanner) Get() (sym Sym) {
	for sym == symNull {
		for !s.eol && (s.ch == ' ' || s.ch == '\t' || s.ch == '\r') {
			s.nextCh()
		}
		if s.eol || s.ch == '#' {
			return SymEol
		}
		switch {
		case isLetter(s.ch):
			s.identifier()
			sym = SymIdent
		case isDigit(s.ch):
			s.number()
			sym = SymInt
		default:
			ch := s.ch
			s.nextCh()
			switch ch {
			case '.':
				if isLetter(s.ch) {
					s.identifier()
					sym = SymDirective
				} else {
					s.Mark("directive name expected")
					sym = SymEol
				}
			case '$':
				sym = SymDollar
			case '%':
				sym = SymPercent
			case '*':
				sym = SymTimes
			case '[':
				sym = SymLbrak
			case ']':
				sym = SymRbrak
			case ',':
				sym = SymComma
			case ':':
				sym = SymColon
			case '+':
				if s.ch == '+' {
					s.nextCh()
					sym = SymInc
				} else {
					sym = SymPlus
				}
			case '-':
				if s.ch == '-' {
					s.nextCh()
					sym = SymDec
				} else {
					sym = SymMinus
				}
			default:
				s.Mark(fmt.Sprintf("illegal character %q", ch))
				sym = SymEol
			}
		}
	}
	return sym
}

type Sym int

// lexical symbols
const (
	symNull Sym = iota
	SymIdent
	SymDirective
	SymInt
	SymDollar
	SymPercent
	SymTimes
	SymLbrak
	SymRbrak
	SymPlus
	SymMinus
	SymInc
	SymDec
	SymComma
	SymColon
	SymEol
)

var symNames = [...]string{
	symNull:      "?",
	SymIdent:     "identifier",
	SymDirective: "directive",
	SymInt:       "number",
	SymDollar:    "$",
	SymPercent:   "%",
	SymTimes:     "*",
	SymLbrak:     "[",
	SymRbrak:     "]",
	SymPlus:      "+",
	SymMinus:     "-",
	SymInc:       "++",
	SymDec:       "--",
	SymComma:     ",",
	SymColon:     ":",
	SymEol:       "end of line",
}

func (sym Sym) String() string {
	if sym >= 0 && int(sym) < len(symNames) {
		return symNames[sym]
	}
	return "?"
}
