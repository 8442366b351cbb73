package shared

import (
	"crypto"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/grovekeep/grovesign/lib/x509tools"
)

var ArgDigest string

const DefaultHash = "SHA-256"

func AddDigestFlag(cmd *cobra.Command) {
	cmd.Flags().StringVar(&ArgDigest, "digest", "", "Specify a digest algorithm")
}

// GetDigest resolves the --digest flag, falling back to the
// configuration file and then the built-in default.
func GetDigest() (crypto.Hash, error) {
	name := ArgDigest
	if name == "" && CurrentConfig != nil && CurrentConfig.Digest != "" {
		name = CurrentConfig.Digest
	}
	if name == "" {
		name = DefaultHash
	}
	hash := x509tools.HashByName(name)
	if hash == 0 {
		return 0, fmt.Errorf("unsupported digest %q", name)
	}
	return hash, nil
}
