// Package diag defines the errors reported by the assembler and the linker.
//
// Every failure is a *Error carrying a Kind and whatever context is known
// at the point of detection: module (file) name, source line, symbol and
// section. Kind itself implements error so callers can test with
//
//	errors.Is(err, diag.UndefinedSymbol)
package diag

import (
	"errors"
	"fmt"
	"strings"
)

type Kind int

const (
	SyntaxError Kind = 1 + iota
	NoActiveSection
	MultipleDefinition
	UndefinedSymbol
	MissingFile
)

var kindNames = map[Kind]string{
	SyntaxError:        "syntax error",
	NoActiveSection:    "no active section",
	MultipleDefinition: "multiple definition",
	UndefinedSymbol:    "undefined symbol",
	MissingFile:        "missing file",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

func (k Kind) Error() string {
	return k.String()
}

type Error struct {
	Kind    Kind
	Module  string
	Line    int // 1-based; 0 if unknown
	Symbol  string
	Section string
	Msg     string
	Err     error // underlying cause, if any
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Module != "" {
		b.WriteString(e.Module)
		if e.Line > 0 {
			fmt.Fprintf(&b, ":%d", e.Line)
		}
		b.WriteString(": ")
	} else if e.Line > 0 {
		fmt.Fprintf(&b, "line %d: ", e.Line)
	}
	b.WriteString(e.Kind.String())
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

// Errorf returns a *Error of the given kind with a formatted message.
func Errorf(kind Kind, format string, a ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, a...)}
}

// Located fills in the module and line of err if it is a *Error that does
// not carry them yet. Other errors are returned unchanged.
func Located(err error, module string, line int) error {
	var e *Error
	if !errors.As(err, &e) {
		return err
	}
	if e.Module == "" {
		e.Module = module
	}
	if e.Line == 0 {
		e.Line = line
	}
	return e
}

// KindOf returns the kind of err, or 0 if err is not a diagnostic.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var k Kind
	if errors.As(err, &k) {
		return k
	}
	return 0
}
