package xarcmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/grovekeep/grovesign/cmdline/shared"
)

var FilesCmd = &cobra.Command{
	Use:   "files <archive>",
	Short: "List the contents of a xar archive",
	Args:  cobra.ExactArgs(1),
	RunE:  filesCmd,
}

var argLong bool

func init() {
	shared.RootCmd.AddCommand(FilesCmd)
	FilesCmd.Flags().BoolVarP(&argLong, "long", "l", false, "Show size and encoding of each entry")
}

func filesCmd(cmd *cobra.Command, args []string) error {
	r, f, err := openXar(args[0])
	if err != nil {
		return shared.Fail(err)
	}
	defer f.Close()
	files, err := r.Files()
	if err != nil {
		return shared.Fail(err)
	}
	if len(files) == 0 {
		return shared.Fail(errors.New("archive has no files"))
	}
	for _, entry := range files {
		if !argLong {
			fmt.Println(entry.Path)
			continue
		}
		var size int64
		var encoding string
		if entry.File.Data != nil {
			size = entry.File.Data.Size
			encoding = entry.File.Data.Encoding.Style
		}
		if encoding == "" {
			encoding = "-"
		}
		fmt.Printf("%-9s %10d %-28s %s\n", entry.File.Type, size, encoding, entry.Path)
	}
	return nil
}
