package reqcmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"howett.net/plist"

	"github.com/grovekeep/grovesign/cmdline/shared"
	"github.com/grovekeep/grovesign/lib/certloader"
	"github.com/grovekeep/grovesign/lib/certprofile"
	"github.com/grovekeep/grovesign/lib/csreq"
)

var DeriveCmd = &cobra.Command{
	Use:   "derive",
	Short: "Derive the designated requirement for a signing certificate",
	RunE:  deriveCmd,
}

var (
	argCert       string
	argIdentifier string
	argBundle     string
	argDeriveOut  string
)

func init() {
	ReqCmd.AddCommand(DeriveCmd)
	DeriveCmd.Flags().StringVar(&argCert, "cert", "", "Signing certificate (PEM or DER)")
	DeriveCmd.Flags().StringVarP(&argIdentifier, "identifier", "i", "", "Code identifier to bind the requirement to")
	DeriveCmd.Flags().StringVar(&argBundle, "bundle", "", "Read the identifier from a bundle Info.plist")
	DeriveCmd.Flags().StringVarP(&argDeriveOut, "output", "o", "", "Write compiled requirement blob to a file")
}

func deriveCmd(cmd *cobra.Command, args []string) error {
	if argCert == "" {
		return errors.New("--cert is required")
	}
	if argIdentifier != "" && argBundle != "" {
		return errors.New("--identifier and --bundle are mutually exclusive")
	}
	blob, err := os.ReadFile(argCert)
	if err != nil {
		return shared.Fail(err)
	}
	cert, err := certloader.ParseCertificates(blob)
	if err != nil {
		return shared.Fail(fmt.Errorf("parsing %s: %w", argCert, err))
	}
	identifier := argIdentifier
	if argBundle != "" {
		identifier, err = bundleIdentifier(argBundle)
		if err != nil {
			return shared.Fail(err)
		}
	}
	expr, err := csreq.DeriveDesignatedRequirement(cert.Leaf, identifier)
	if err != nil {
		return shared.Fail(err)
	}
	if expr == nil {
		return shared.Fail(fmt.Errorf("certificate %q matches no known signing profile", certprofile.SubjectCommonName(cert.Leaf)))
	}
	fmt.Println(csreq.Format(expr))
	if argDeriveOut != "" {
		blob, err := csreq.MarshalBlob(expr)
		if err != nil {
			return shared.Fail(err)
		}
		if err := writeBlob(argDeriveOut, blob); err != nil {
			return shared.Fail(err)
		}
	}
	return nil
}

// bundleIdentifier reads CFBundleIdentifier from an Info.plist, which
// may be either XML or binary form.
func bundleIdentifier(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	var info struct {
		BundleIdentifier string `plist:"CFBundleIdentifier"`
	}
	if _, err := plist.Unmarshal(data, &info); err != nil {
		return "", fmt.Errorf("parsing %s: %w", path, err)
	}
	if info.BundleIdentifier == "" {
		return "", fmt.Errorf("%s has no CFBundleIdentifier", path)
	}
	return info.BundleIdentifier, nil
}
