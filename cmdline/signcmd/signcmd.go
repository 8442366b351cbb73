package signcmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/grovekeep/grovesign/cmdline/shared"
	"github.com/grovekeep/grovesign/lib/atomicfile"
	"github.com/grovekeep/grovesign/signers"
)

var SignCmd = &cobra.Command{
	Use:   "sign",
	Short: "Sign a package using a key from the configuration file",
	RunE:  signCmd,
}

var (
	argFile    string
	argOutput  string
	argKeyName string
	argSigType string
)

func init() {
	shared.RootCmd.AddCommand(SignCmd)
	SignCmd.Flags().StringVarP(&argFile, "file", "f", "", "Input file to sign")
	SignCmd.Flags().StringVarP(&argOutput, "output", "o", "", "Output file (default: sign in place)")
	SignCmd.Flags().StringVarP(&argKeyName, "key", "k", "", "Name of key section in config file to use")
	SignCmd.Flags().StringVarP(&argSigType, "sig-type", "T", "", "Specify signature type (default: auto-detect)")
	shared.AddDigestFlag(SignCmd)
}

func signCmd(cmd *cobra.Command, args []string) error {
	if argFile == "" || argKeyName == "" {
		return errors.New("--file and --key are required")
	}
	if argOutput == "" {
		argOutput = argFile
	}
	if err := shared.InitConfig(); err != nil {
		return shared.Fail(err)
	}
	keyConf, err := shared.CurrentConfig.GetKey(argKeyName)
	if err != nil {
		return shared.Fail(err)
	}
	cert, err := keyConf.Load()
	if err != nil {
		return shared.Fail(fmt.Errorf("loading key %q: %w", argKeyName, err))
	}
	hash, err := shared.GetDigest()
	if err != nil {
		return shared.Fail(err)
	}
	mod, err := signers.ByFile(argFile, argSigType)
	if err != nil {
		return shared.Fail(err)
	}
	if mod.Sign == nil {
		return shared.Fail(fmt.Errorf("can't sign files of type: %s", mod.Name))
	}
	infile, err := os.Open(argFile)
	if err != nil {
		return shared.Fail(err)
	}
	defer infile.Close()
	out, err := atomicfile.WriteAny(argOutput)
	if err != nil {
		return shared.Fail(err)
	}
	defer out.Close()
	opts := signers.SignOpts{
		Hash:   hash,
		Output: out,
		Log:    &shared.Logger,
	}
	if err := mod.Sign(infile, cert, opts); err != nil {
		return shared.Fail(err)
	}
	infile.Close()
	if err := out.Commit(); err != nil {
		return shared.Fail(err)
	}
	return nil
}
