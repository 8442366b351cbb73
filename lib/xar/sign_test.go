package xar

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/binary"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovekeep/grovesign/lib/certloader"
)

func selfSignedCert(t *testing.T, key interface{ Public() crypto.PublicKey }) *certloader.Certificate {
	t.Helper()
	template := &x509.Certificate{
		SerialNumber:          big.NewInt(100),
		Subject:               pkix.Name{CommonName: "Test Installer Signer", OrganizationalUnit: []string{"TEAM123456"}},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, key.Public(), key)
	require.NoError(t, err)
	leaf, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return &certloader.Certificate{
		Leaf:         leaf,
		Certificates: []*x509.Certificate{leaf},
		PrivateKey:   key,
	}
}

func testRSACert(t *testing.T) *certloader.Certificate {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return selfSignedCert(t, key)
}

func TestSignAndVerify(t *testing.T) {
	x := openArchive(t, testArchive(t))
	cert := testRSACert(t)

	var out bytes.Buffer
	require.NoError(t, NewSigner(x, cert).Sign(&out))

	signed := openArchive(t, out.Bytes())
	res, err := signed.Verify(false)
	require.NoError(t, err)
	assert.True(t, res.RSAVerified)
	assert.True(t, res.CMSVerified)
	require.NotNil(t, res.Certificate)
	assert.Equal(t, "Test Installer Signer", res.Certificate.Subject.CommonName)

	// heap layout: checksum, RSA, CMS, then files with no gaps
	toc := signed.TOC()
	assert.Equal(t, int64(0), toc.Checksum.Offset)
	assert.Equal(t, int64(32), toc.Checksum.Size)
	rsaSig := toc.FindSignature(SignatureStyleRSA)
	require.NotNil(t, rsaSig)
	assert.Equal(t, int64(32), rsaSig.Offset)
	assert.Equal(t, int64(256), rsaSig.Size) // 2048-bit key
	cmsSig := toc.FindSignature(SignatureStyleCMS)
	require.NotNil(t, cmsSig)
	assert.Equal(t, rsaSig.Offset+rsaSig.Size, cmsSig.Offset)

	entries, err := signed.Files()
	require.NoError(t, err)
	next := cmsSig.Offset + cmsSig.Size
	for _, e := range entries {
		if e.File.Data == nil {
			continue
		}
		assert.Equal(t, next, e.File.Data.Offset, e.Path)
		next += e.File.Data.Length
	}

	// content is untouched
	var buf bytes.Buffer
	require.NoError(t, signed.WriteFileDataDecodedByID(2, &buf))
	assert.Equal(t, rawContent, buf.String())
	buf.Reset()
	require.NoError(t, signed.WriteFileDataDecodedByID(3, &buf))
	assert.Equal(t, zipContent, buf.String())
}

func TestSignRequiresRSA(t *testing.T) {
	x := openArchive(t, testArchive(t))
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	cert := selfSignedCert(t, key)

	var out bytes.Buffer
	err = NewSigner(x, cert).Sign(&out)
	var unsupErr UnsupportedError
	require.ErrorAs(t, err, &unsupErr)
	assert.Zero(t, out.Len())
}

func TestCorruptedSignatures(t *testing.T) {
	x := openArchive(t, testArchive(t))
	cert := testRSACert(t)
	var out bytes.Buffer
	require.NoError(t, NewSigner(x, cert).Sign(&out))
	blob := out.Bytes()
	heapBase := 28 + int(binary.BigEndian.Uint64(blob[8:]))

	// a present-but-invalid RSA signature is an error, not a false
	tampered := append([]byte{}, blob...)
	tampered[heapBase+32+5] ^= 1
	signed := openArchive(t, tampered)
	_, err := signed.VerifyRSAChecksumSignature()
	assert.Error(t, err)

	// same for the CMS signature
	tampered = append([]byte{}, blob...)
	tampered[heapBase+32+256+10] ^= 1
	signed = openArchive(t, tampered)
	_, err = signed.VerifyCMSSignature()
	assert.Error(t, err)
}

type countWriter struct{ n int }

func (w *countWriter) Write(p []byte) (int, error) {
	w.n += len(p)
	return len(p), nil
}

func TestCMSOverflow(t *testing.T) {
	x := openArchive(t, testArchive(t))
	s := NewSigner(x, testRSACert(t))
	calls := 0
	s.buildCMS = func(digest []byte, cert *certloader.Certificate, hashFunc crypto.Hash) ([]byte, error) {
		calls++
		if calls == 1 {
			// measurement pass
			return make([]byte, 10), nil
		}
		// real signature grows past the measured size plus padding
		return make([]byte, 10+cmsPadding+1), nil
	}
	w := new(countWriter)
	err := s.Sign(w)
	var unsupErr UnsupportedError
	require.ErrorAs(t, err, &unsupErr)
	assert.Contains(t, unsupErr.Op, "overflow")
	// nothing was written before the failure was detected
	assert.Zero(t, w.n)
}

func TestNotaryTicket(t *testing.T) {
	x := openArchive(t, testArchive(t))
	cert := testRSACert(t)
	var out bytes.Buffer
	require.NoError(t, NewSigner(x, cert).Sign(&out))
	ticket := []byte("stapled notarization ticket")
	blob := append(out.Bytes(), ticket...)

	signed := openArchive(t, blob)
	assert.Equal(t, ticket, signed.NotaryTicket())
	res, err := signed.Verify(false)
	require.NoError(t, err)
	assert.Equal(t, ticket, res.NotaryTicket)
}
