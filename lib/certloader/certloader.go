package certloader

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"
	"strings"

	"github.com/grovekeep/grovesign/lib/x509tools"
)

const asn1Magic = 0x30 // weak but good enough?

// Certificate bundles a leaf, its chain, and the private key used to
// produce signatures with it.
type Certificate struct {
	Leaf         *x509.Certificate
	Certificates []*x509.Certificate
	PrivateKey   crypto.PrivateKey
	KeyName      string
}

// Chain returns the certificates to embed in signatures, with any
// self-signed root omitted.
func (s *Certificate) Chain() []*x509.Certificate {
	var chain []*x509.Certificate
	for i, cert := range s.Certificates {
		if i > 0 && bytes.Equal(cert.RawIssuer, cert.RawSubject) {
			// omit root CA
			continue
		}
		chain = append(chain, cert)
	}
	return chain
}

// Issuer returns the certificate that issued the leaf, if present.
func (s *Certificate) Issuer() *x509.Certificate {
	for _, cert := range s.Certificates {
		if bytes.Equal(cert.RawSubject, s.Leaf.RawIssuer) {
			return cert
		}
	}
	return nil
}

func (s *Certificate) Signer() crypto.Signer {
	return s.PrivateKey.(crypto.Signer)
}

// ParsePrivateKey parses a private key from a blob of PEM or DER data
func ParsePrivateKey(pemData []byte) (crypto.PrivateKey, error) {
	if len(pemData) >= 1 && pemData[0] == asn1Magic {
		// already DER form
		return parsePrivateKey(pemData)
	}
	for {
		var keyBlock *pem.Block
		keyBlock, pemData = pem.Decode(pemData)
		if keyBlock == nil {
			return nil, errors.New("failed to find any private keys in PEM data")
		} else if keyBlock.Type == "PRIVATE KEY" || strings.HasSuffix(keyBlock.Type, " PRIVATE KEY") {
			return parsePrivateKey(keyBlock.Bytes)
		}
	}
}

func parsePrivateKey(der []byte) (crypto.PrivateKey, error) {
	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}
	if key, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		switch key := key.(type) {
		case *rsa.PrivateKey, *ecdsa.PrivateKey, ed25519.PrivateKey:
			return key, nil
		default:
			return nil, errors.New("found unknown private key type in PKCS#8 wrapping")
		}
	}
	if key, err := x509.ParseECPrivateKey(der); err == nil {
		return key, nil
	}
	return nil, errors.New("failed to parse private key")
}

// ParseCertificates parses a list of certificates, PEM or DER
func ParseCertificates(pemData []byte) (*Certificate, error) {
	if len(pemData) >= 1 && pemData[0] == asn1Magic {
		// already in DER form
		return parseCertificates(pemData)
	}
	var certs []*x509.Certificate
	for {
		var block *pem.Block
		block, pemData = pem.Decode(pemData)
		if block == nil {
			break
		} else if block.Type == "CERTIFICATE" {
			newcerts, err := parseCertificates(block.Bytes)
			if err != nil {
				return nil, err
			}
			certs = append(certs, newcerts.Certificates...)
		}
	}
	if len(certs) == 0 {
		return nil, ErrNoCerts
	}
	return &Certificate{Leaf: certs[0], Certificates: certs}, nil
}

func parseCertificates(der []byte) (*Certificate, error) {
	certs, err := x509.ParseCertificates(der)
	if err != nil {
		return nil, err
	} else if len(certs) == 0 {
		return nil, ErrNoCerts
	}
	return &Certificate{Leaf: certs[0], Certificates: certs}, nil
}

// LoadX509KeyPair reads a certificate chain and private key from disk and
// checks that they belong together.
func LoadX509KeyPair(certFile, keyFile string) (*Certificate, error) {
	keyblob, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, err
	}
	certblob, err := os.ReadFile(certFile)
	if err != nil {
		return nil, err
	}
	key, err := ParsePrivateKey(keyblob)
	if err != nil {
		return nil, err
	}
	cert, err := ParseCertificates(certblob)
	if err != nil {
		return nil, err
	}
	if !x509tools.SameKey(cert.Leaf.PublicKey, key) {
		return nil, errors.New("private key does not match certificate")
	}
	cert.PrivateKey = key
	cert.KeyName = keyFile
	return cert, nil
}

type errNoCerts struct{}

func (errNoCerts) Error() string {
	return "failed to find any certificates in PEM file"
}

var ErrNoCerts = errNoCerts{}
