package files

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/fzipp/relasm/obj"
)

const bytesPerCodeLine = 16

// WriteObject writes m in the text object format:
//
//	SECTIONS
//	<id>\t<length>\t<name>
//
//	SYMBOLS
//	<id>\t<offset>\t<type>\t<binding>\t<section>\t<name>\t<DEF|UND>
//
//	RELOCATIONS
//	<section>
//	<offset>\t<kind>\t<symbol>\t<addend>
//
//	MACHINE CODE
//	<section>
//	<byte> <byte> ...
//
//	END
//
// Offsets and addends are four hex digits, lengths and ids decimal. Both
// tables start with their UND sentinel.
func WriteObject(w io.Writer, m *obj.Module) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintln(bw, "SECTIONS")
	for i := range m.NumSections() {
		sec := m.Section(obj.SectionID(i))
		fmt.Fprintf(bw, "%d\t%d\t%s\n", sec.ID, sec.Length, sec.Name)
	}

	fmt.Fprintln(bw, "\nSYMBOLS")
	for i := range m.NumSymbols() {
		sym := m.Symbol(obj.SymbolID(i))
		section := obj.UND
		if sym.Section != 0 {
			section = fmt.Sprint(int(sym.Section))
		}
		def := obj.UND
		if sym.Defined {
			def = "DEF"
		}
		fmt.Fprintf(bw, "%d\t%04X\t%s\t%s\t%s\t%s\t%s\n",
			sym.ID, uint16(sym.Offset), sym.Type, sym.Binding, section, sym.Name, def)
	}

	fmt.Fprintln(bw, "\nRELOCATIONS")
	first := true
	for sec := range m.Sections() {
		header := false
		for r := range m.Relocs() {
			if r.Section != sec.ID {
				continue
			}
			if !header {
				if !first {
					fmt.Fprintln(bw)
				}
				fmt.Fprintln(bw, sec.Name)
				header, first = true, false
			}
			fmt.Fprintf(bw, "%04X\t%s\t%d\t%04X\n", uint16(r.Offset), r.Kind, r.Symbol, uint16(r.Addend))
		}
	}

	fmt.Fprintln(bw, "\nMACHINE CODE")
	for sec := range m.Sections() {
		fmt.Fprintln(bw, sec.Name)
		writeBytes(bw, m.Code(sec.ID).Bytes, bytesPerCodeLine, "")
	}

	fmt.Fprintln(bw, "\nEND")
	return bw.Flush()
}

// writeBytes writes b as space separated hex tokens, perLine per line,
// each line preceded by its offset if prefix is a format string.
func writeBytes(w io.Writer, b []byte, perLine int, prefix string) {
	for i := 0; i < len(b); i += perLine {
		if prefix != "" {
			fmt.Fprintf(w, prefix, i)
		}
		end := min(i+perLine, len(b))
		for j, x := range b[i:end] {
			if j > 0 {
				fmt.Fprint(w, " ")
			}
			fmt.Fprintf(w, "%02X", x)
		}
		fmt.Fprintln(w)
	}
}

// ReadObject parses an object file written by WriteObject. The name is
// used as the module name and in error messages.
func ReadObject(r io.Reader, name string) (m *obj.Module, err error) {
	defer recoverError(&err)
	rd := newReader(r, name)
	m = obj.NewModule(name)
	rd.sections(m)
	rd.symbols(m)
	rd.relocations(m)
	rd.code(m)
	return m, nil
}

func (r *reader) sections(m *obj.Module) {
	r.expect("SECTIONS")
	for r.mustNext("section") != "" {
		f := r.fields(3)
		id, length, name := r.decimal(f[0]), r.decimal(f[1]), f[2]
		if id == 0 {
			if name != obj.UND || length != 0 {
				r.fail("bad sentinel section %q", r.text)
			}
			continue
		}
		if id != m.NumSections() {
			r.fail("section %d out of order", id)
		}
		if name == obj.UND || name == "END" || length > 0xFFFF {
			r.fail("bad section %s of length %d", name, length)
		}
		if _, dup := m.LookupSection(name); dup {
			r.fail("duplicate section %s", name)
		}
		m.AddSection(name).Length = length
	}
}

func (r *reader) symbols(m *obj.Module) {
	r.expect("SYMBOLS")
	for r.mustNext("symbol") != "" {
		f := r.fields(7)
		id := r.decimal(f[0])
		if id == 0 {
			continue
		}
		if id != m.NumSymbols() {
			r.fail("symbol %d out of order", id)
		}
		sym := obj.Symbol{
			Name:    f[5],
			Offset:  r.hex16(f[1]),
			Type:    r.symType(f[2]),
			Binding: r.binding(f[3]),
		}
		if f[4] != obj.UND {
			sym.Section = obj.SectionID(r.decimal(f[4]))
			if int(sym.Section) >= m.NumSections() {
				r.fail("symbol %s: no section %d", sym.Name, sym.Section)
			}
		}
		switch f[6] {
		case "DEF":
			sym.Defined = true
		case obj.UND:
		default:
			r.fail("DEF or UND expected, found %q", f[6])
		}
		if _, dup := m.LookupSymbol(sym.Name); dup {
			r.fail("duplicate symbol %s", sym.Name)
		}
		m.AddSymbol(sym)
	}
}

func (r *reader) relocations(m *obj.Module) {
	r.expect("RELOCATIONS")
	var sec obj.SectionID
	for r.mustNext("MACHINE CODE") != "MACHINE CODE" {
		switch {
		case r.text == "":
			sec = 0
		case sec == 0:
			id, ok := m.LookupSection(r.text)
			if !ok {
				r.fail("relocations for unknown section %s", r.text)
			}
			sec = id
		default:
			f := r.fields(4)
			rel := obj.Relocation{
				Section: sec,
				Offset:  r.hex16(f[0]),
				Kind:    r.relocKind(f[1]),
				Symbol:  obj.SymbolID(r.decimal(f[2])),
				Addend:  r.hex16(f[3]),
			}
			if rel.Offset+2 > m.Section(sec).Length {
				r.fail("relocation at %04X outside of section %s", rel.Offset, m.Section(sec).Name)
			}
			if rel.Symbol == 0 || int(rel.Symbol) >= m.NumSymbols() {
				r.fail("relocation to unknown symbol %d", rel.Symbol)
			}
			m.AddReloc(rel)
		}
	}
}

func (r *reader) code(m *obj.Module) {
	for {
		name := r.mustNext("END")
		if name == "" {
			continue
		}
		if name == "END" {
			break
		}
		id, ok := m.LookupSection(name)
		if !ok {
			r.fail("code for unknown section %s", name)
		}
		c := m.Code(id)
		if c.Bytes != nil {
			r.fail("code for section %s given twice", name)
		}
		c.Bytes = make([]byte, 0, m.Section(id).Length)
		for len(c.Bytes) < m.Section(id).Length && r.mustNext("code bytes") != "" {
			for _, tok := range strings.Fields(r.text) {
				c.Bytes = append(c.Bytes, r.hexByte(tok))
			}
		}
		if len(c.Bytes) != m.Section(id).Length {
			r.fail("section %s: %d bytes of code, length is %d", name, len(c.Bytes), m.Section(id).Length)
		}
	}
	for sec := range m.Sections() {
		if sec.Length > 0 && m.Code(sec.ID).Bytes == nil {
			r.fail("no code for section %s", sec.Name)
		}
	}
}

func (r *reader) symType(s string) obj.SymType {
	for _, t := range []obj.SymType{obj.NoType, obj.SectionType} {
		if t.String() == s {
			return t
		}
	}
	r.fail("unknown symbol type %q", s)
	return 0
}

func (r *reader) binding(s string) obj.Binding {
	for _, b := range []obj.Binding{obj.Unbound, obj.Local, obj.Global} {
		if b.String() == s {
			return b
		}
	}
	r.fail("unknown binding %q", s)
	return 0
}

func (r *reader) relocKind(s string) obj.RelocKind {
	for _, k := range []obj.RelocKind{obj.Abs16, obj.PcRel16, obj.Word16} {
		if k.String() == s {
			return k
		}
	}
	r.fail("unknown relocation kind %q", s)
	return 0
}
