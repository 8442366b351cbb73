package csreq

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

type syntaxLevel int

const (
	levelPrimary syntaxLevel = iota
	levelAnd
	levelOr
	levelTop
)

type dumper struct {
	out strings.Builder
}

// Format renders an expression in codesign's requirement syntax. The text
// form is for display; the binary form is the interchange format.
func Format(e Expr) string {
	d := new(dumper)
	e.write(d, levelTop)
	return d.out.String()
}

func (e And) write(d *dumper, level syntaxLevel) {
	if level < levelAnd {
		d.out.WriteByte('(')
	}
	e.Left.write(d, levelAnd)
	d.out.WriteString(" and ")
	e.Right.write(d, levelAnd)
	if level < levelAnd {
		d.out.WriteByte(')')
	}
}

func (e Or) write(d *dumper, level syntaxLevel) {
	if level < levelOr {
		d.out.WriteByte('(')
	}
	e.Left.write(d, levelOr)
	d.out.WriteString(" or ")
	e.Right.write(d, levelOr)
	if level < levelOr {
		d.out.WriteByte(')')
	}
}

func (e Not) write(d *dumper, _ syntaxLevel) {
	d.out.WriteString("! ")
	e.Operand.write(d, levelPrimary)
}

func (Always) write(d *dumper, _ syntaxLevel) { d.out.WriteString("always") }
func (Never) write(d *dumper, _ syntaxLevel)  { d.out.WriteString("never") }

func (e Identifier) write(d *dumper, _ syntaxLevel) {
	d.out.WriteString("identifier ")
	d.data(e.ID)
}

func (AnchorApple) write(d *dumper, _ syntaxLevel) { d.out.WriteString("anchor apple") }

func (AnchorAppleGeneric) write(d *dumper, _ syntaxLevel) {
	d.out.WriteString("anchor apple generic")
}

func (AnchorTrusted) write(d *dumper, _ syntaxLevel) { d.out.WriteString("anchor trusted") }

func (e NamedAnchor) write(d *dumper, _ syntaxLevel) {
	d.out.WriteString("anchor apple ")
	d.data(e.Name)
}

func (e AnchorHash) write(d *dumper, _ syntaxLevel) {
	d.out.WriteString("certificate")
	d.certSlot(e.Slot)
	d.out.WriteString(" = ")
	fmt.Fprintf(&d.out, "H\"%x\"", e.Hash)
}

func (e TrustedCert) write(d *dumper, _ syntaxLevel) {
	d.out.WriteString("certificate")
	d.certSlot(e.Slot)
	d.out.WriteString(" trusted")
}

func (e NamedCode) write(d *dumper, _ syntaxLevel) {
	d.out.WriteByte('(')
	d.data(e.Name)
	d.out.WriteByte(')')
}

func (e CDHash) write(d *dumper, _ syntaxLevel) {
	fmt.Fprintf(&d.out, "cdhash H\"%x\"", e.Hash)
}

func (e InfoKeyValue) write(d *dumper, _ syntaxLevel) {
	d.out.WriteString("info[")
	d.dotString(e.Key)
	d.out.WriteString("] = ")
	d.data(e.Value)
}

func (e InfoPlistKeyField) write(d *dumper, _ syntaxLevel) {
	d.out.WriteString("info[")
	d.dotString(e.Key)
	d.out.WriteByte(']')
	e.Match.writeMatch(d)
}

func (e EntitlementField) write(d *dumper, _ syntaxLevel) {
	d.out.WriteString("entitlement[")
	d.dotString(e.Key)
	d.out.WriteByte(']')
	e.Match.writeMatch(d)
}

func (e CertificateField) write(d *dumper, _ syntaxLevel) {
	d.out.WriteString("certificate")
	d.certSlot(e.Slot)
	d.out.WriteByte('[')
	d.dotString(e.Field)
	d.out.WriteByte(']')
	e.Match.writeMatch(d)
}

func (e CertificateGeneric) write(d *dumper, _ syntaxLevel) {
	d.out.WriteString("certificate")
	d.certSlot(e.Slot)
	d.out.WriteString("[field.")
	d.out.WriteString(e.OID.String())
	d.out.WriteByte(']')
	e.Match.writeMatch(d)
}

func (e CertificatePolicy) write(d *dumper, _ syntaxLevel) {
	d.out.WriteString("certificate")
	d.certSlot(e.Slot)
	d.out.WriteString("[policy.")
	d.out.WriteString(e.OID.String())
	d.out.WriteByte(']')
	e.Match.writeMatch(d)
}

func (e CertificateFieldDate) write(d *dumper, _ syntaxLevel) {
	d.out.WriteString("certificate")
	d.certSlot(e.Slot)
	d.out.WriteString("[timestamp.")
	d.out.WriteString(e.OID.String())
	d.out.WriteByte(']')
}

func (e Platform) write(d *dumper, _ syntaxLevel) {
	fmt.Fprintf(&d.out, "platform = %d", e.Value)
}

func (Notarized) write(d *dumper, _ syntaxLevel)   { d.out.WriteString("notarized") }
func (LegacyDevID) write(d *dumper, _ syntaxLevel) { d.out.WriteString("legacy") }

func (MatchExists) writeMatch(d *dumper) { d.out.WriteString(" /* exists */") }
func (MatchAbsent) writeMatch(d *dumper) { d.out.WriteString(" absent ") }

func (m MatchEqual) writeMatch(d *dumper) {
	d.out.WriteString(" = ")
	d.data(m.Value)
}

func (m MatchContains) writeMatch(d *dumper) {
	d.out.WriteString(" ~ ")
	d.data(m.Value)
}

func (m MatchBeginsWith) writeMatch(d *dumper) {
	d.out.WriteString(" = ")
	d.data(m.Value)
	d.out.WriteByte('*')
}

func (m MatchEndsWith) writeMatch(d *dumper) {
	d.out.WriteString(" = *")
	d.data(m.Value)
}

func (m MatchLessThan) writeMatch(d *dumper) {
	d.out.WriteString(" < ")
	d.data(m.Value)
}

func (m MatchGreaterThan) writeMatch(d *dumper) {
	d.out.WriteString(" > ")
	d.data(m.Value)
}

func (m MatchLessEqual) writeMatch(d *dumper) {
	d.out.WriteString(" <= ")
	d.data(m.Value)
}

func (m MatchGreaterEqual) writeMatch(d *dumper) {
	d.out.WriteString(" >= ")
	d.data(m.Value)
}

func (m MatchOn) writeMatch(d *dumper) {
	d.out.WriteString(" = ")
	d.timestamp(m.Time)
}

func (m MatchBefore) writeMatch(d *dumper) {
	d.out.WriteString(" < ")
	d.timestamp(m.Time)
}

func (m MatchAfter) writeMatch(d *dumper) {
	d.out.WriteString(" > ")
	d.timestamp(m.Time)
}

func (m MatchOnOrBefore) writeMatch(d *dumper) {
	d.out.WriteString(" <= ")
	d.timestamp(m.Time)
}

func (m MatchOnOrAfter) writeMatch(d *dumper) {
	d.out.WriteString(" >= ")
	d.timestamp(m.Time)
}

func (d *dumper) certSlot(n int32) {
	switch n {
	case LeafCertIndex:
		d.out.WriteString(" leaf")
	case AnchorCertIndex:
		d.out.WriteString(" root")
	default:
		fmt.Fprintf(&d.out, " %d", n)
	}
}

func (d *dumper) timestamp(t time.Time) {
	d.out.Write(t.UTC().AppendFormat(nil, "<2006-01-02 15:04:05Z>"))
}

func (d *dumper) data(s string)      { d.dataExt(s, false) }
func (d *dumper) dotString(s string) { d.dataExt(s, true) }

// dataExt renders a data operand the way codesign does: bare if it looks
// like an identifier, quoted if printable, hex otherwise.
func (d *dumper) dataExt(s string, dotOK bool) {
	if len(s) == 0 {
		d.out.WriteString(`""`)
		return
	}
	v := []byte(s)
	simple, printable := true, true
scan:
	for i, vv := range v {
		switch {
		case vv == '.' && dotOK:
			// simple
		case vv >= '0' && vv <= '9':
			if i == 0 {
				// can't start with a digit
				simple = false
			}
		case vv >= 'a' && vv <= 'z' || vv >= 'A' && vv <= 'Z':
			// simple
		case vv < 128 && unicode.IsGraphic(rune(vv)):
			simple = false
		default:
			printable = false
			simple = false
			break scan
		}
	}
	switch {
	case simple:
		d.out.Write(v)
	case printable:
		d.out.WriteByte('"')
		for _, vv := range v {
			if vv == '"' || vv == '\\' {
				d.out.WriteByte('\\')
			}
			d.out.WriteByte(vv)
		}
		d.out.WriteByte('"')
	default:
		fmt.Fprintf(&d.out, "0x%x", v)
	}
}
