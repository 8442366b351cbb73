package xarcmd

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/grovekeep/grovesign/cmdline/shared"
	"github.com/grovekeep/grovesign/lib/x509tools"
)

var ChecksumCmd = &cobra.Command{
	Use:   "checksum <archive>",
	Short: "Print the table-of-contents checksum and signature info",
	Args:  cobra.ExactArgs(1),
	RunE:  checksumCmd,
}

func init() {
	shared.RootCmd.AddCommand(ChecksumCmd)
}

func checksumCmd(cmd *cobra.Command, args []string) error {
	r, f, err := openXar(args[0])
	if err != nil {
		return shared.Fail(err)
	}
	defer f.Close()
	hash, digest := r.Checksum()
	fmt.Printf("checksum: %s %s\n", x509tools.HashNames[hash], hex.EncodeToString(digest))
	rsaSig, certs := r.RSASignature()
	if rsaSig != nil {
		fmt.Printf("rsa signature: %d bytes\n", len(rsaSig))
		for i, cert := range certs {
			fmt.Printf("  certificate %d: %s\n", i, x509tools.FormatSubject(cert))
		}
	} else {
		fmt.Println("rsa signature: none")
	}
	if cmsSig := r.CMSSignature(); cmsSig != nil {
		fmt.Printf("cms signature: %d bytes\n", len(cmsSig))
	} else {
		fmt.Println("cms signature: none")
	}
	if ticket := r.NotaryTicket(); len(ticket) > 0 {
		fmt.Printf("notary ticket: %d bytes\n", len(ticket))
	}
	return nil
}
