package x509tools

import (
	"crypto"
	"strings"
)

var HashNames = map[crypto.Hash]string{
	crypto.SHA1:   "SHA-1",
	crypto.SHA256: "SHA-256",
	crypto.SHA384: "SHA-384",
	crypto.SHA512: "SHA-512",
}

// HashByName resolves a digest algorithm from its conventional name,
// ignoring case and dashes. Returns 0 if there is no match.
func HashByName(name string) crypto.Hash {
	name = strings.ToLower(strings.ReplaceAll(name, "-", ""))
	for hash, hashName := range HashNames {
		if strings.ToLower(strings.ReplaceAll(hashName, "-", "")) == name {
			return hash
		}
	}
	return 0
}
