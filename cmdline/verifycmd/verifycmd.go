package verifycmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/grovekeep/grovesign/cmdline/shared"
	"github.com/grovekeep/grovesign/lib/x509tools"
	"github.com/grovekeep/grovesign/signers"
)

var VerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify a signed package",
	RunE:  verifyCmd,
}

var (
	argNoIntegrityCheck bool
	argSigType          string
)

func init() {
	shared.RootCmd.AddCommand(VerifyCmd)
	VerifyCmd.Flags().BoolVar(&argNoIntegrityCheck, "no-integrity-check", false, "Inspect the signature without checking file content digests")
	VerifyCmd.Flags().StringVarP(&argSigType, "sig-type", "T", "", "Specify signature type (default: auto-detect)")
}

func verifyCmd(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return errors.New("expected 1 or more files")
	}
	rc := 0
	for _, path := range args {
		if err := verifyOne(path); err != nil {
			fmt.Printf("%s ERROR: %s\n", path, err)
			rc = 1
		}
	}
	if rc != 0 {
		fmt.Fprintln(os.Stderr, "ERROR: 1 or more files did not validate")
	}
	os.Exit(rc)
	return nil
}

func verifyOne(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	mod, err := signers.ByFile(path, argSigType)
	if err != nil {
		return err
	}
	if mod.Verify == nil {
		return fmt.Errorf("can't verify files of type: %s", mod.Name)
	}
	sigs, err := mod.Verify(f, signers.VerifyOpts{NoDigests: argNoIntegrityCheck})
	if err != nil {
		return err
	}
	for _, sig := range sigs {
		var subject string
		if sig.Certificate != nil {
			subject = x509tools.FormatSubject(sig.Certificate)
		} else {
			subject = "(no certificate)"
		}
		fmt.Printf("%s: OK - %s %s\n", path, sig.SigInfo, subject)
	}
	return nil
}
