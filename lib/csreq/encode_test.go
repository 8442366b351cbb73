package csreq

import (
	"encoding/asn1"
	"encoding/binary"
	"encoding/hex"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalIdentifier(t *testing.T) {
	blob, err := Marshal(Identifier{ID: "com.example.app"})
	require.NoError(t, err)
	expected := "00000001" + // format word
		"00000002" + // identifier opcode
		"0000000f" + "636f6d2e6578616d706c652e61707000" // length-prefixed, padded to 4
	assert.Equal(t, expected, hex.EncodeToString(blob))
}

func TestMarshalDeveloperIDSigned(t *testing.T) {
	blob, err := DeveloperIDSigned.Bytes()
	require.NoError(t, err)
	// independently assembled from the published policy expression
	expected := "00000001" +
		"00000006" + // and
		"0000000f" + // anchor apple generic
		"00000006" + // and
		"0000000e" + "00000001" + // certificate 1[field...]
		"0000000a" + "2a864886f763640602060000" + // 1.2.840.113635.100.6.2.6
		"00000000" + // exists
		"0000000e" + "00000000" + // certificate leaf[field...]
		"0000000a" + "2a864886f7636406010d0000" + // 1.2.840.113635.100.6.1.13
		"00000000" // exists
	assert.Equal(t, expected, hex.EncodeToString(blob))
}

func TestMarshalNotarizedPolicies(t *testing.T) {
	// shared fragments of the Developer ID policies
	const (
		and       = "00000006"
		or        = "00000007"
		anchorGen = "0000000f"
		notarized = "00000015"
		// certificate 1[field.1.2.840.113635.100.6.2.6] exists
		intermediate = "0000000e" + "00000001" + "0000000a" + "2a864886f763640602060000" + "00000000"
		// certificate leaf[field.1.2.840.113635.100.6.1.13] exists
		appLeaf = "0000000e" + "00000000" + "0000000a" + "2a864886f7636406010d0000" + "00000000"
		// certificate leaf[field.1.2.840.113635.100.6.1.14] exists
		installerLeaf = "0000000e" + "00000000" + "0000000a" + "2a864886f7636406010e0000" + "00000000"
	)

	blob, err := DeveloperIDNotarizedExecutable.Bytes()
	require.NoError(t, err)
	assert.Equal(t,
		"00000001"+and+anchorGen+and+intermediate+and+appLeaf+notarized,
		hex.EncodeToString(blob))

	blob, err = DeveloperIDNotarizedInstaller.Bytes()
	require.NoError(t, err)
	assert.Equal(t,
		"00000001"+and+anchorGen+and+intermediate+and+or+installerLeaf+appLeaf+notarized,
		hex.EncodeToString(blob))
}

func TestMarshalBlobHeader(t *testing.T) {
	blob, err := MarshalBlob(Always{})
	require.NoError(t, err)
	require.Len(t, blob, 16)
	assert.Equal(t, MagicRequirement, binary.BigEndian.Uint32(blob))
	assert.Equal(t, uint32(16), binary.BigEndian.Uint32(blob[4:]))
	assert.Equal(t, uint32(exprForm), binary.BigEndian.Uint32(blob[8:]))
	assert.Equal(t, uint32(opTrue), binary.BigEndian.Uint32(blob[12:]))
}

func TestMarshalSet(t *testing.T) {
	reqs := map[RequirementType]Expr{
		DesignatedRequirement: Identifier{ID: "com.example.app"},
		HostRequirement:       AnchorApple{},
	}
	blob, err := MarshalSet(reqs)
	require.NoError(t, err)
	assert.Equal(t, MagicRequirementSet, binary.BigEndian.Uint32(blob))
	assert.Equal(t, uint32(len(blob)), binary.BigEndian.Uint32(blob[4:]))
	require.Equal(t, uint32(2), binary.BigEndian.Uint32(blob[8:]))
	// index entries are sorted by type
	assert.Equal(t, uint32(HostRequirement), binary.BigEndian.Uint32(blob[12:]))
	assert.Equal(t, uint32(DesignatedRequirement), binary.BigEndian.Uint32(blob[20:]))
	// each offset points at a valid requirement blob
	for _, idx := range []int{12, 20} {
		offset := binary.BigEndian.Uint32(blob[idx+4:])
		size := binary.BigEndian.Uint32(blob[offset+4:])
		_, err := ParseBlob(blob[offset : offset+size])
		assert.NoError(t, err)
	}
}

func TestPolicyStableBytes(t *testing.T) {
	for _, p := range []ExecutionPolicy{
		DeveloperIDSigned,
		DeveloperIDNotarizedExecutable,
		DeveloperIDNotarizedInstaller,
	} {
		first, err := p.Bytes()
		require.NoError(t, err, p)
		second, err := p.Bytes()
		require.NoError(t, err, p)
		assert.Equal(t, first, second, p)
	}
}

func TestRoundTrip(t *testing.T) {
	exprs := []Expr{
		Always{},
		Never{},
		Not{Operand: AnchorTrusted{}},
		And{Identifier{ID: "com.example.app"}, AnchorApple{}},
		Or{
			AnchorHash{Slot: AnchorCertIndex, Hash: []byte{1, 2, 3, 4, 5}},
			NamedAnchor{Name: "apple"},
		},
		CDHash{Hash: make([]byte, 20)},
		InfoKeyValue{Key: "CFBundleVersion", Value: "1.0"},
		InfoPlistKeyField{Key: "LSMinimumSystemVersion", Match: MatchGreaterEqual{Value: "10.15"}},
		EntitlementField{Key: "com.apple.security.app-sandbox", Match: MatchExists{}},
		CertificateField{Slot: LeafCertIndex, Field: "subject.CN", Match: MatchBeginsWith{Value: "Developer ID"}},
		CertificateGeneric{Slot: 1, OID: asn1.ObjectIdentifier{1, 2, 840, 113635, 100, 6, 2, 6}, Match: MatchAbsent{}},
		CertificatePolicy{Slot: LeafCertIndex, OID: asn1.ObjectIdentifier{1, 2, 3}, Match: MatchExists{}},
		CertificateFieldDate{Slot: LeafCertIndex, OID: asn1.ObjectIdentifier{1, 2, 840, 113635, 100, 6, 1, 33}},
		TrustedCert{Slot: 2},
		NamedCode{Name: "helper"},
		Platform{Value: 1},
		Notarized{},
		LegacyDevID{},
		InfoPlistKeyField{Key: "date", Match: MatchBefore{Time: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}},
	}
	for _, expr := range exprs {
		blob, err := Marshal(expr)
		require.NoError(t, err, Format(expr))
		parsed, err := Parse(blob)
		require.NoError(t, err, Format(expr))
		assert.Equal(t, expr, parsed, Format(expr))
		again, err := Marshal(parsed)
		require.NoError(t, err)
		assert.Equal(t, blob, again, Format(expr))
	}
}

func TestBlobRoundTrip(t *testing.T) {
	expr := And{AnchorAppleGeneric{}, Notarized{}}
	blob, err := MarshalBlob(expr)
	require.NoError(t, err)
	parsed, err := ParseBlob(blob)
	require.NoError(t, err)
	assert.Equal(t, expr, parsed)
}

func TestParseErrors(t *testing.T) {
	// wrong format word
	_, err := Parse([]byte{0, 0, 0, 2, 0, 0, 0, 1})
	assert.Error(t, err)
	// unknown opcode
	_, err = Parse([]byte{0, 0, 0, 1, 0, 0, 0, 99})
	assert.Error(t, err)
	// trailing garbage after a complete expression
	blob, err := Marshal(Always{})
	require.NoError(t, err)
	_, err = Parse(append(blob, 0, 0, 0, 0))
	assert.Error(t, err)
	// truncated operand
	_, err = Parse([]byte{0, 0, 0, 1, 0, 0, 0, 2, 0, 0, 0, 8})
	assert.Error(t, err)
	// data length near the uint32 maximum must not wrap the alignment math
	_, err = Parse([]byte{0, 0, 0, 1, 0, 0, 0, 2, 0xff, 0xff, 0xff, 0xff})
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	// blob with the wrong magic
	_, err = ParseBlob([]byte{0xfa, 0xde, 0x0c, 0x01, 0, 0, 0, 8})
	assert.Error(t, err)
}
