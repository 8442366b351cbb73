// Commands for working with code-requirement expressions.
package reqcmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/grovekeep/grovesign/cmdline/shared"
)

var ReqCmd = &cobra.Command{
	Use:   "requirement",
	Short: "Work with code-requirement expressions",
}

func init() {
	shared.RootCmd.AddCommand(ReqCmd)
}

func writeBlob(path string, blob []byte) error {
	if path == "-" {
		_, err := os.Stdout.Write(blob)
		return err
	}
	return os.WriteFile(path, blob, 0644)
}
