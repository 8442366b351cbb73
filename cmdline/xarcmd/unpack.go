package xarcmd

import (
	"github.com/spf13/cobra"

	"github.com/grovekeep/grovesign/cmdline/shared"
)

var UnpackCmd = &cobra.Command{
	Use:   "unpack <archive>",
	Short: "Extract the contents of a xar archive",
	Args:  cobra.ExactArgs(1),
	RunE:  unpackCmd,
}

var argDest string

func init() {
	shared.RootCmd.AddCommand(UnpackCmd)
	UnpackCmd.Flags().StringVarP(&argDest, "dest", "d", ".", "Directory to extract into")
}

func unpackCmd(cmd *cobra.Command, args []string) error {
	r, f, err := openXar(args[0])
	if err != nil {
		return shared.Fail(err)
	}
	defer f.Close()
	if err := r.VerifyFileDigests(); err != nil {
		return shared.Fail(err)
	}
	if err := r.Unpack(argDest); err != nil {
		return shared.Fail(err)
	}
	shared.Logger.Info().Str("file", args[0]).Str("dest", argDest).Msg("unpacked archive")
	return nil
}
