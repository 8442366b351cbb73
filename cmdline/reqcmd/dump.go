package reqcmd

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/grovekeep/grovesign/cmdline/shared"
	"github.com/grovekeep/grovesign/lib/csreq"
)

var DumpCmd = &cobra.Command{
	Use:   "dump <file>",
	Short: "Print a compiled requirement in codesign syntax",
	Args:  cobra.ExactArgs(1),
	RunE:  dumpCmd,
}

func init() {
	ReqCmd.AddCommand(DumpCmd)
}

func dumpCmd(cmd *cobra.Command, args []string) error {
	blob, err := os.ReadFile(args[0])
	if err != nil {
		return shared.Fail(err)
	}
	var expr csreq.Expr
	if len(blob) >= 4 && binary.BigEndian.Uint32(blob) == csreq.MagicRequirement {
		expr, err = csreq.ParseBlob(blob)
	} else {
		expr, err = csreq.Parse(blob)
	}
	if err != nil {
		return shared.Fail(fmt.Errorf("parsing %s: %w", args[0], err))
	}
	fmt.Println(csreq.Format(expr))
	return nil
}
