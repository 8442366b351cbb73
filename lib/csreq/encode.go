package csreq

import (
	"bytes"
	"encoding/asn1"
	"encoding/binary"
	"sort"
	"time"
)

// exprForm is the only requirement payload format in use.
const exprForm = 1

type builder struct {
	out bytes.Buffer
	err error
}

func (b *builder) putUint32(v uint32) {
	var d [4]byte
	binary.BigEndian.PutUint32(d[:], v)
	b.out.Write(d[:])
}

func (b *builder) putData(v []byte) {
	b.putUint32(uint32(len(v)))
	b.out.Write(v)
	n := len(v)
	for n%4 != 0 {
		b.out.WriteByte(0)
		n++
	}
}

func (b *builder) putOID(oid asn1.ObjectIdentifier) {
	// pack first two digits together
	packed := append(asn1.ObjectIdentifier{oid[0]*40 + oid[1]}, oid[2:]...)
	var out []byte
	for _, v := range packed {
		if v < 0x80 {
			// simple case
			out = append(out, byte(v))
			continue
		}
		// build starting from least-significant word
		var outv []byte
		for {
			outv = append(outv, byte(v&0x7f))
			if v >= 0x80 {
				v >>= 7
			} else {
				break
			}
		}
		// reverse and set MSB on all but the last word
		for i := len(outv) - 1; i >= 0; i-- {
			vv := outv[i]
			if i != 0 {
				vv |= 0x80
			}
			out = append(out, vv)
		}
	}
	b.putData(out)
}

func (b *builder) putTimestamp(t time.Time) {
	var d [8]byte
	binary.BigEndian.PutUint64(d[:], uint64(t.Unix()-appleEpoch.Unix()))
	b.out.Write(d[:])
}

// Marshal serializes an expression to the requirement payload: the
// big-endian format word followed by the opcode stream. This is the form
// embedded in requirement blobs and requirement sets.
func Marshal(e Expr) ([]byte, error) {
	b := new(builder)
	b.putUint32(exprForm)
	e.emit(b)
	if b.err != nil {
		return nil, b.err
	}
	return b.out.Bytes(), nil
}

// MarshalBlob wraps a marshaled expression in a requirement blob header
// (magic 0xfade0c00), the form csreq -b emits for a single requirement.
func MarshalBlob(e Expr) ([]byte, error) {
	payload, err := Marshal(e)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 8+len(payload))
	binary.BigEndian.PutUint32(out, MagicRequirement)
	binary.BigEndian.PutUint32(out[4:], uint32(len(out)))
	copy(out[8:], payload)
	return out, nil
}

// MarshalSet packs typed requirements into a requirement-set superblob
// (magic 0xfade0c01), the form embedded in code signatures.
func MarshalSet(reqs map[RequirementType]Expr) ([]byte, error) {
	types := make([]RequirementType, 0, len(reqs))
	for t := range reqs {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	blobs := make([][]byte, len(types))
	length := 12 + 8*len(types)
	for i, t := range types {
		blob, err := MarshalBlob(reqs[t])
		if err != nil {
			return nil, err
		}
		blobs[i] = blob
		length += len(blob)
	}
	out := bytes.NewBuffer(make([]byte, 0, length))
	head := []uint32{MagicRequirementSet, uint32(length), uint32(len(types))}
	offset := uint32(12 + 8*len(types))
	for i, t := range types {
		head = append(head, uint32(t), offset)
		offset += uint32(len(blobs[i]))
	}
	_ = binary.Write(out, binary.BigEndian, head)
	for _, blob := range blobs {
		out.Write(blob)
	}
	return out.Bytes(), nil
}

func (e And) emit(b *builder) {
	b.putUint32(uint32(opAnd))
	e.Left.emit(b)
	e.Right.emit(b)
}

func (e Or) emit(b *builder) {
	b.putUint32(uint32(opOr))
	e.Left.emit(b)
	e.Right.emit(b)
}

func (e Not) emit(b *builder) {
	b.putUint32(uint32(opNot))
	e.Operand.emit(b)
}

func (Always) emit(b *builder) { b.putUint32(uint32(opTrue)) }
func (Never) emit(b *builder)  { b.putUint32(uint32(opFalse)) }

func (e Identifier) emit(b *builder) {
	b.putUint32(uint32(opIdent))
	b.putData([]byte(e.ID))
}

func (AnchorApple) emit(b *builder)        { b.putUint32(uint32(opAppleAnchor)) }
func (AnchorAppleGeneric) emit(b *builder) { b.putUint32(uint32(opAppleGenericAnchor)) }
func (AnchorTrusted) emit(b *builder)      { b.putUint32(uint32(opTrustedCerts)) }

func (e NamedAnchor) emit(b *builder) {
	b.putUint32(uint32(opNamedAnchor))
	b.putData([]byte(e.Name))
}

func (e AnchorHash) emit(b *builder) {
	b.putUint32(uint32(opAnchorHash))
	b.putUint32(uint32(e.Slot))
	b.putData(e.Hash)
}

func (e TrustedCert) emit(b *builder) {
	b.putUint32(uint32(opTrustedCert))
	b.putUint32(uint32(e.Slot))
}

func (e NamedCode) emit(b *builder) {
	b.putUint32(uint32(opNamedCode))
	b.putData([]byte(e.Name))
}

func (e CDHash) emit(b *builder) {
	b.putUint32(uint32(opCDHash))
	b.putData(e.Hash)
}

func (e InfoKeyValue) emit(b *builder) {
	b.putUint32(uint32(opInfoKeyValue))
	b.putData([]byte(e.Key))
	b.putData([]byte(e.Value))
}

func (e InfoPlistKeyField) emit(b *builder) {
	b.putUint32(uint32(opInfoKeyField))
	b.putData([]byte(e.Key))
	e.Match.emitMatch(b)
}

func (e EntitlementField) emit(b *builder) {
	b.putUint32(uint32(opEntitlementField))
	b.putData([]byte(e.Key))
	e.Match.emitMatch(b)
}

func (e CertificateField) emit(b *builder) {
	b.putUint32(uint32(opCertField))
	b.putUint32(uint32(e.Slot))
	b.putData([]byte(e.Field))
	e.Match.emitMatch(b)
}

func (e CertificateGeneric) emit(b *builder) {
	b.putUint32(uint32(opCertGeneric))
	b.putUint32(uint32(e.Slot))
	b.putOID(e.OID)
	e.Match.emitMatch(b)
}

func (e CertificatePolicy) emit(b *builder) {
	b.putUint32(uint32(opCertPolicy))
	b.putUint32(uint32(e.Slot))
	b.putOID(e.OID)
	e.Match.emitMatch(b)
}

func (e CertificateFieldDate) emit(b *builder) {
	b.putUint32(uint32(opCertFieldDate))
	b.putUint32(uint32(e.Slot))
	b.putOID(e.OID)
}

func (e Platform) emit(b *builder) {
	b.putUint32(uint32(opPlatform))
	b.putUint32(uint32(e.Value))
}

func (Notarized) emit(b *builder)   { b.putUint32(uint32(opNotarized)) }
func (LegacyDevID) emit(b *builder) { b.putUint32(uint32(opLegacyDevID)) }

func (MatchExists) emitMatch(b *builder) { b.putUint32(uint32(matchExists)) }
func (MatchAbsent) emitMatch(b *builder) { b.putUint32(uint32(matchAbsent)) }

func (m MatchEqual) emitMatch(b *builder) {
	b.putUint32(uint32(matchEqual))
	b.putData([]byte(m.Value))
}

func (m MatchContains) emitMatch(b *builder) {
	b.putUint32(uint32(matchContains))
	b.putData([]byte(m.Value))
}

func (m MatchBeginsWith) emitMatch(b *builder) {
	b.putUint32(uint32(matchBeginsWith))
	b.putData([]byte(m.Value))
}

func (m MatchEndsWith) emitMatch(b *builder) {
	b.putUint32(uint32(matchEndsWith))
	b.putData([]byte(m.Value))
}

func (m MatchLessThan) emitMatch(b *builder) {
	b.putUint32(uint32(matchLessThan))
	b.putData([]byte(m.Value))
}

func (m MatchGreaterThan) emitMatch(b *builder) {
	b.putUint32(uint32(matchGreaterThan))
	b.putData([]byte(m.Value))
}

func (m MatchLessEqual) emitMatch(b *builder) {
	b.putUint32(uint32(matchLessEqual))
	b.putData([]byte(m.Value))
}

func (m MatchGreaterEqual) emitMatch(b *builder) {
	b.putUint32(uint32(matchGreaterEqual))
	b.putData([]byte(m.Value))
}

func (m MatchOn) emitMatch(b *builder) {
	b.putUint32(uint32(matchOn))
	b.putTimestamp(m.Time)
}

func (m MatchBefore) emitMatch(b *builder) {
	b.putUint32(uint32(matchBefore))
	b.putTimestamp(m.Time)
}

func (m MatchAfter) emitMatch(b *builder) {
	b.putUint32(uint32(matchAfter))
	b.putTimestamp(m.Time)
}

func (m MatchOnOrBefore) emitMatch(b *builder) {
	b.putUint32(uint32(matchOnOrBefore))
	b.putTimestamp(m.Time)
}

func (m MatchOnOrAfter) emitMatch(b *builder) {
	b.putUint32(uint32(matchOnOrAfter))
	b.putTimestamp(m.Time)
}
