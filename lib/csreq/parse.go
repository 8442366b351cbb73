package csreq

import (
	"encoding/asn1"
	"encoding/binary"
	"fmt"
	"io"
	"time"
)

// Parse decodes a requirement payload (format word plus opcode stream)
// into an expression tree.
func Parse(payload []byte) (Expr, error) {
	p := &parser{buf: payload}
	form, err := p.uint32()
	if err != nil {
		return nil, err
	} else if form != exprForm {
		return nil, fmt.Errorf("unsupported requirement format %d", form)
	}
	e, err := p.expr()
	if err != nil {
		return nil, err
	}
	if len(p.buf) != 0 {
		return nil, fmt.Errorf("%d trailing bytes after requirement expression", len(p.buf))
	}
	return e, nil
}

// ParseBlob decodes a requirement blob (magic 0xfade0c00).
func ParseBlob(blob []byte) (Expr, error) {
	if len(blob) < 8 {
		return nil, io.ErrUnexpectedEOF
	}
	magic := binary.BigEndian.Uint32(blob)
	length := binary.BigEndian.Uint32(blob[4:])
	if magic != MagicRequirement {
		return nil, fmt.Errorf("expected requirement blob but got magic %08x", magic)
	}
	if length < 8 || int(length) > len(blob) {
		return nil, fmt.Errorf("invalid length %d in requirement blob", length)
	}
	return Parse(blob[8:length])
}

type parser struct {
	buf []byte
}

func (p *parser) uint32() (uint32, error) {
	if len(p.buf) < 4 {
		return 0, io.ErrUnexpectedEOF
	}
	n := binary.BigEndian.Uint32(p.buf)
	p.buf = p.buf[4:]
	return n, nil
}

func (p *parser) int32() (int32, error) {
	n, err := p.uint32()
	return int32(n), err
}

func (p *parser) data() ([]byte, error) {
	length, err := p.uint32()
	if err != nil {
		return nil, err
	}
	// alignment math in int64 so a huge declared length cannot wrap
	aligned := int64(length)
	if n := aligned % 4; n != 0 {
		aligned += 4 - n
	}
	if int64(len(p.buf)) < aligned {
		return nil, io.ErrUnexpectedEOF
	}
	v := p.buf[:length]
	p.buf = p.buf[aligned:]
	return v, nil
}

func (p *parser) oid() (asn1.ObjectIdentifier, error) {
	buf, err := p.data()
	if err != nil {
		return nil, err
	}
	var oid asn1.ObjectIdentifier
	for len(buf) > 0 {
		var n int
		for len(buf) > 0 {
			var x byte
			x, buf = buf[0], buf[1:]
			n |= int(x &^ 0x80)
			if x&0x80 == 0 {
				break
			}
			n <<= 7
		}
		if len(oid) == 0 {
			// first two digits are packed together
			n1 := n / 40
			n2 := n - n1*40
			oid = append(oid, n1, n2)
		} else {
			oid = append(oid, n)
		}
	}
	return oid, nil
}

func (p *parser) timestamp() (time.Time, error) {
	if len(p.buf) < 8 {
		return time.Time{}, io.ErrUnexpectedEOF
	}
	n := binary.BigEndian.Uint64(p.buf)
	p.buf = p.buf[8:]
	return time.Unix(int64(n)+appleEpoch.Unix(), 0).UTC(), nil
}

func (p *parser) expr() (Expr, error) {
	op, err := p.uint32()
	if err != nil {
		return nil, err
	}
	switch opCode(op) &^ opFlagMask {
	case opFalse:
		return Never{}, nil
	case opTrue:
		return Always{}, nil
	case opIdent:
		v, err := p.data()
		return Identifier{ID: string(v)}, err
	case opAppleAnchor:
		return AnchorApple{}, nil
	case opAppleGenericAnchor:
		return AnchorAppleGeneric{}, nil
	case opAnchorHash:
		slot, err := p.int32()
		if err != nil {
			return nil, err
		}
		hash, err := p.data()
		return AnchorHash{Slot: slot, Hash: hash}, err
	case opInfoKeyValue:
		key, err := p.data()
		if err != nil {
			return nil, err
		}
		value, err := p.data()
		return InfoKeyValue{Key: string(key), Value: string(value)}, err
	case opAnd:
		left, err := p.expr()
		if err != nil {
			return nil, err
		}
		right, err := p.expr()
		return And{Left: left, Right: right}, err
	case opOr:
		left, err := p.expr()
		if err != nil {
			return nil, err
		}
		right, err := p.expr()
		return Or{Left: left, Right: right}, err
	case opNot:
		operand, err := p.expr()
		return Not{Operand: operand}, err
	case opCDHash:
		hash, err := p.data()
		return CDHash{Hash: hash}, err
	case opInfoKeyField:
		key, err := p.data()
		if err != nil {
			return nil, err
		}
		match, err := p.match()
		return InfoPlistKeyField{Key: string(key), Match: match}, err
	case opEntitlementField:
		key, err := p.data()
		if err != nil {
			return nil, err
		}
		match, err := p.match()
		return EntitlementField{Key: string(key), Match: match}, err
	case opCertField:
		slot, err := p.int32()
		if err != nil {
			return nil, err
		}
		field, err := p.data()
		if err != nil {
			return nil, err
		}
		match, err := p.match()
		return CertificateField{Slot: slot, Field: string(field), Match: match}, err
	case opCertGeneric:
		slot, err := p.int32()
		if err != nil {
			return nil, err
		}
		oid, err := p.oid()
		if err != nil {
			return nil, err
		}
		match, err := p.match()
		return CertificateGeneric{Slot: slot, OID: oid, Match: match}, err
	case opCertPolicy:
		slot, err := p.int32()
		if err != nil {
			return nil, err
		}
		oid, err := p.oid()
		if err != nil {
			return nil, err
		}
		match, err := p.match()
		return CertificatePolicy{Slot: slot, OID: oid, Match: match}, err
	case opCertFieldDate:
		slot, err := p.int32()
		if err != nil {
			return nil, err
		}
		oid, err := p.oid()
		return CertificateFieldDate{Slot: slot, OID: oid}, err
	case opTrustedCert:
		slot, err := p.int32()
		return TrustedCert{Slot: slot}, err
	case opTrustedCerts:
		return AnchorTrusted{}, nil
	case opNamedAnchor:
		name, err := p.data()
		return NamedAnchor{Name: string(name)}, err
	case opNamedCode:
		name, err := p.data()
		return NamedCode{Name: string(name)}, err
	case opPlatform:
		value, err := p.int32()
		return Platform{Value: value}, err
	case opNotarized:
		return Notarized{}, nil
	case opLegacyDevID:
		return LegacyDevID{}, nil
	}
	return nil, fmt.Errorf("unrecognized opcode %d", op&^uint32(opFlagMask))
}

func (p *parser) match() (Match, error) {
	n, err := p.uint32()
	if err != nil {
		return nil, err
	}
	switch matchOp(n) {
	case matchExists:
		return MatchExists{}, nil
	case matchAbsent:
		return MatchAbsent{}, nil
	case matchEqual:
		v, err := p.data()
		return MatchEqual{Value: string(v)}, err
	case matchContains:
		v, err := p.data()
		return MatchContains{Value: string(v)}, err
	case matchBeginsWith:
		v, err := p.data()
		return MatchBeginsWith{Value: string(v)}, err
	case matchEndsWith:
		v, err := p.data()
		return MatchEndsWith{Value: string(v)}, err
	case matchLessThan:
		v, err := p.data()
		return MatchLessThan{Value: string(v)}, err
	case matchGreaterThan:
		v, err := p.data()
		return MatchGreaterThan{Value: string(v)}, err
	case matchLessEqual:
		v, err := p.data()
		return MatchLessEqual{Value: string(v)}, err
	case matchGreaterEqual:
		v, err := p.data()
		return MatchGreaterEqual{Value: string(v)}, err
	case matchOn:
		t, err := p.timestamp()
		return MatchOn{Time: t}, err
	case matchBefore:
		t, err := p.timestamp()
		return MatchBefore{Time: t}, err
	case matchAfter:
		t, err := p.timestamp()
		return MatchAfter{Time: t}, err
	case matchOnOrBefore:
		t, err := p.timestamp()
		return MatchOnOrBefore{Time: t}, err
	case matchOnOrAfter:
		t, err := p.timestamp()
		return MatchOnOrAfter{Time: t}, err
	}
	return nil, fmt.Errorf("unrecognized match opcode %d", n)
}
