package certloader

import (
	"crypto/x509"
	"os"

	"software.sslmate.com/src/go-pkcs12"
)

// ParsePKCS12 unpacks a PKCS#12 bundle into a Certificate.
func ParsePKCS12(blob []byte, password string) (*Certificate, error) {
	priv, leaf, chain, err := pkcs12.DecodeChain(blob, password)
	if err != nil {
		return nil, err
	}
	certs := append([]*x509.Certificate{leaf}, chain...)
	return &Certificate{
		PrivateKey:   priv,
		Leaf:         leaf,
		Certificates: certs,
	}, nil
}

// LoadPKCS12 reads a PKCS#12 bundle from disk.
func LoadPKCS12(path, password string) (*Certificate, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cert, err := ParsePKCS12(blob, password)
	if err != nil {
		return nil, err
	}
	cert.KeyName = path
	return cert, nil
}
