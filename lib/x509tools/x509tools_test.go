package x509tools

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyRSA(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	digest := sha256.Sum256([]byte("payload"))
	sig, err := key.Sign(rand.Reader, digest[:], crypto.SHA256)
	require.NoError(t, err)

	assert.NoError(t, Verify(&key.PublicKey, crypto.SHA256, digest[:], sig))
	bad := append([]byte{}, sig...)
	bad[10] ^= 1
	assert.Error(t, Verify(&key.PublicKey, crypto.SHA256, digest[:], bad))
}

func TestVerifyECDSA(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	digest := sha256.Sum256([]byte("payload"))
	sig, err := key.Sign(rand.Reader, digest[:], crypto.SHA256)
	require.NoError(t, err)

	assert.NoError(t, Verify(&key.PublicKey, crypto.SHA256, digest[:], sig))
	other := sha256.Sum256([]byte("other"))
	assert.Error(t, Verify(&key.PublicKey, crypto.SHA256, other[:], sig))
}

func TestSameKey(t *testing.T) {
	a, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	b, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	assert.True(t, SameKey(a, a))
	assert.True(t, SameKey(a, &a.PublicKey))
	assert.False(t, SameKey(a, b))
	assert.False(t, SameKey(a, "not a key"))
}

func TestHashByName(t *testing.T) {
	assert.Equal(t, crypto.SHA256, HashByName("SHA-256"))
	assert.Equal(t, crypto.SHA256, HashByName("sha256"))
	assert.Equal(t, crypto.SHA1, HashByName("Sha-1"))
	assert.Equal(t, crypto.Hash(0), HashByName("md4"))
}

func TestFormatSubject(t *testing.T) {
	cert := &x509.Certificate{Subject: pkix.Name{
		CommonName:         "Developer ID Application: Example Corp (TEAM123456)",
		OrganizationalUnit: []string{"TEAM123456"},
		Organization:       []string{"Example Corp"},
		Country:            []string{"US"},
	}}
	assert.Equal(t,
		"CN=Developer ID Application: Example Corp (TEAM123456),OU=TEAM123456,O=Example Corp,C=US",
		FormatSubject(cert))
}
