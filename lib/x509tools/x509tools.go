package x509tools

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"errors"
	"fmt"
	"strings"
)

// Verify checks a raw signature over an already-computed digest against
// the given public key.
func Verify(pub crypto.PublicKey, hash crypto.Hash, digest, sig []byte) error {
	switch k := pub.(type) {
	case *rsa.PublicKey:
		return rsa.VerifyPKCS1v15(k, hash, digest, sig)
	case *ecdsa.PublicKey:
		if !ecdsa.VerifyASN1(k, digest, sig) {
			return errors.New("ECDSA verification failed")
		}
		return nil
	case ed25519.PublicKey:
		return errors.New("ed25519 keys must sign the full message, not a digest")
	}
	return fmt.Errorf("unsupported public key type %T", pub)
}

// SameKey returns true if both arguments refer to the same public key.
// Either may be a private key, a public key, or a crypto.Signer.
func SameKey(a, b interface{}) bool {
	return publicKeyOf(a).Equal(publicKeyOf(b))
}

type equaler interface {
	Equal(x crypto.PublicKey) bool
}

func publicKeyOf(key interface{}) equaler {
	if signer, ok := key.(crypto.Signer); ok {
		key = signer.Public()
	}
	if pub, ok := key.(equaler); ok {
		return pub
	}
	return nopKey{}
}

type nopKey struct{}

func (nopKey) Equal(crypto.PublicKey) bool { return false }

// FormatSubject renders a certificate subject for log output.
func FormatSubject(cert *x509.Certificate) string {
	var parts []string
	if cn := cert.Subject.CommonName; cn != "" {
		parts = append(parts, "CN="+cn)
	}
	for _, ou := range cert.Subject.OrganizationalUnit {
		parts = append(parts, "OU="+ou)
	}
	for _, o := range cert.Subject.Organization {
		parts = append(parts, "O="+o)
	}
	for _, c := range cert.Subject.Country {
		parts = append(parts, "C="+c)
	}
	return strings.Join(parts, ",")
}
