package config

import (
	"github.com/grovekeep/grovesign/lib/certloader"
)

// Load reads the key and certificate material named by this section.
func (keyConf *KeyConfig) Load() (*certloader.Certificate, error) {
	var cert *certloader.Certificate
	var err error
	if keyConf.PKCS12 != "" {
		cert, err = certloader.LoadPKCS12(keyConf.PKCS12, keyConf.Password)
	} else {
		cert, err = certloader.LoadX509KeyPair(keyConf.Certificate, keyConf.Key)
	}
	if err != nil {
		return nil, err
	}
	cert.KeyName = keyConf.name
	return cert, nil
}
