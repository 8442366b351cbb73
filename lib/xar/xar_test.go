package xar

import (
	"bytes"
	"compress/zlib"
	"crypto"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovekeep/grovesign/signers/sigerrors"
)

// makeArchive assembles an unsigned archive from TOC file elements and
// heap content. The checksum element and blob are filled in; file offsets
// in filesXML must start at 32 to leave room for the digest.
func makeArchive(t *testing.T, filesXML string, heap []byte) []byte {
	t.Helper()
	xmlText := `<?xml version="1.0" encoding="UTF-8"?><xar><toc>` +
		`<checksum style="sha256"><offset>0</offset><size>32</size></checksum>` +
		filesXML + `</toc></xar>`
	var ztoc bytes.Buffer
	zw := zlib.NewWriter(&ztoc)
	_, err := zw.Write([]byte(xmlText))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	digest := sha256.Sum256(ztoc.Bytes())
	var out bytes.Buffer
	hdr := fileHeader{
		Magic:            xarMagic,
		HeaderSize:       xarHeaderSize,
		Version:          xarVersion,
		CompressedSize:   int64(ztoc.Len()),
		UncompressedSize: int64(len(xmlText)),
		HashType:         hashSHA256,
	}
	require.NoError(t, binary.Write(&out, binary.BigEndian, hdr))
	out.Write(ztoc.Bytes())
	out.Write(digest[:])
	out.Write(heap)
	return out.Bytes()
}

func fileXML(id int, name string, encoded []byte, offset, size int, style string) string {
	sum := sha256.Sum256(encoded)
	return fmt.Sprintf(`<file id="%d"><name>%s</name><type>file</type><data>`+
		`<length>%d</length><offset>%d</offset><size>%d</size>`+
		`<encoding style="%s"/>`+
		`<archived-checksum style="sha256">%s</archived-checksum>`+
		`</data></file>`,
		id, name, len(encoded), offset, size, style, hex.EncodeToString(sum[:]))
}

func zlibBytes(t *testing.T, content string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	_, err := zw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

const (
	rawContent = "hello world\n"
	zipContent = "pre and post install scripts"
)

// testArchive builds a fixture with a directory holding a raw-encoded
// file, plus a zlib-encoded file at the top level.
func testArchive(t *testing.T) []byte {
	t.Helper()
	raw := []byte(rawContent)
	zipped := zlibBytes(t, zipContent)
	filesXML := `<file id="1"><name>Contents</name><type>directory</type>` +
		fileXML(2, "app", raw, 32, len(raw), "application/octet-stream") +
		`</file>` +
		fileXML(3, "Scripts.bin", zipped, 32+len(raw), len(zipContent), "application/x-gzip")
	heap := append(append([]byte{}, raw...), zipped...)
	return makeArchive(t, filesXML, heap)
}

func openArchive(t *testing.T, blob []byte) *Reader {
	t.Helper()
	r, err := Open(bytes.NewReader(blob), int64(len(blob)))
	require.NoError(t, err)
	return r
}

func TestOpenAndRead(t *testing.T) {
	x := openArchive(t, testArchive(t))
	assert.Equal(t, crypto.SHA256, x.HashFunc())

	entries, err := x.Files()
	require.NoError(t, err)
	var paths []string
	for _, e := range entries {
		paths = append(paths, e.Path)
	}
	assert.Equal(t, []string{"Contents", "Contents/app", "Scripts.bin"}, paths)

	// raw file comes back as-is
	var buf bytes.Buffer
	require.NoError(t, x.WriteFileDataDecodedByID(2, &buf))
	assert.Equal(t, rawContent, buf.String())

	// compressed file is transparently decoded
	buf.Reset()
	require.NoError(t, x.WriteFileDataDecodedByID(3, &buf))
	assert.Equal(t, zipContent, buf.String())

	// raw heap bytes of the compressed file are still zlib framed
	buf.Reset()
	require.NoError(t, x.WriteFileDataByID(3, &buf))
	assert.Equal(t, zlibBytes(t, zipContent), buf.Bytes())

	require.NoError(t, x.VerifyFileDigests())

	assert.Error(t, x.WriteFileDataByID(99, io.Discard))
}

func TestUnsignedArchive(t *testing.T) {
	x := openArchive(t, testArchive(t))

	// absence of a signature is not an error
	ok, err := x.VerifyRSAChecksumSignature()
	assert.NoError(t, err)
	assert.False(t, ok)
	ok, err = x.VerifyCMSSignature()
	assert.NoError(t, err)
	assert.False(t, ok)

	// but a full verification demands one
	_, err = x.Verify(true)
	var notSigned sigerrors.NotSignedError
	assert.ErrorAs(t, err, &notSigned)
}

func TestOpenRejectsTampering(t *testing.T) {
	blob := testArchive(t)

	// header length fields are cross-checked against the inflated TOC
	tampered := append([]byte{}, blob...)
	binary.BigEndian.PutUint64(tampered[16:], uint64(len(blob))) // UncompressedSize
	_, err := Open(bytes.NewReader(tampered), int64(len(tampered)))
	var formatErr FormatError
	require.ErrorAs(t, err, &formatErr)

	// checksum blob must match the computed TOC digest
	tampered = append([]byte{}, blob...)
	hdr := binary.BigEndian.Uint64(tampered[8:]) // CompressedSize
	tampered[28+int(hdr)] ^= 1                   // first byte of the digest blob
	_, err = Open(bytes.NewReader(tampered), int64(len(tampered)))
	require.ErrorAs(t, err, &formatErr)

	// bad magic
	tampered = append([]byte{}, blob...)
	tampered[0] = 'y'
	_, err = Open(bytes.NewReader(tampered), int64(len(tampered)))
	require.ErrorAs(t, err, &formatErr)
}

func TestSignatureExtentRejected(t *testing.T) {
	sigXML := func(size string) string {
		return `<signature style="RSA"><offset>32</offset><size>` + size + `</size>` +
			`<KeyInfo><X509Data><X509Certificate>QUJD</X509Certificate></X509Data></KeyInfo>` +
			`</signature>`
	}
	var formatErr FormatError

	// negative size must not reach allocation
	blob := makeArchive(t, sigXML("-1"), nil)
	_, err := Open(bytes.NewReader(blob), int64(len(blob)))
	require.ErrorAs(t, err, &formatErr)

	// absurdly large declared size is rejected up front
	blob = makeArchive(t, sigXML("1099511627776"), nil)
	_, err = Open(bytes.NewReader(blob), int64(len(blob)))
	require.ErrorAs(t, err, &formatErr)
}

func TestFileDigestMismatch(t *testing.T) {
	blob := testArchive(t)
	ztocLen := binary.BigEndian.Uint64(blob[8:])
	// flip a bit inside the raw file content
	blob[28+int(ztocLen)+32] ^= 1
	x := openArchive(t, blob)
	err := x.VerifyFileDigests()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "digest mismatch")
}

func TestUnknownEncoding(t *testing.T) {
	content := []byte("sevenzip")
	filesXML := fileXML(1, "weird", content, 32, len(content), "application/x-7z-compressed")
	blob := makeArchive(t, filesXML, content)
	x := openArchive(t, blob)
	err := x.WriteFileDataDecodedByID(1, io.Discard)
	var unkErr UnknownEncodingError
	require.ErrorAs(t, err, &unkErr)
	assert.Equal(t, "application/x-7z-compressed", unkErr.Style)
}

func TestUnpack(t *testing.T) {
	x := openArchive(t, testArchive(t))
	dest := t.TempDir()
	require.NoError(t, x.Unpack(dest))

	blob, err := os.ReadFile(filepath.Join(dest, "Contents", "app"))
	require.NoError(t, err)
	assert.Equal(t, rawContent, string(blob))
	blob, err = os.ReadFile(filepath.Join(dest, "Scripts.bin"))
	require.NoError(t, err)
	assert.Equal(t, zipContent, string(blob))
}

func TestUnpackRefusesLinks(t *testing.T) {
	filesXML := `<file id="1"><name>evil</name><type>symlink</type></file>`
	blob := makeArchive(t, filesXML, nil)
	x := openArchive(t, blob)
	err := x.Unpack(t.TempDir())
	var unsupErr UnsupportedError
	require.ErrorAs(t, err, &unsupErr)
	assert.Contains(t, unsupErr.Op, "symlink")
}

func TestDeepTreeRejected(t *testing.T) {
	var sb bytes.Buffer
	for i := 0; i < maxTreeDepth+2; i++ {
		fmt.Fprintf(&sb, `<file id="%d"><name>d</name><type>directory</type>`, i+1)
	}
	for i := 0; i < maxTreeDepth+2; i++ {
		sb.WriteString(`</file>`)
	}
	blob := makeArchive(t, sb.String(), nil)
	x := openArchive(t, blob)
	_, err := x.Files()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "depth")
}
