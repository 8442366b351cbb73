package reqcmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/grovekeep/grovesign/cmdline/shared"
	"github.com/grovekeep/grovesign/lib/csreq"
)

var PolicyCmd = &cobra.Command{
	Use:   "policy [name]",
	Short: "Print one of Apple's execution policies",
	Long: `Print one of Apple's execution policies in codesign syntax,
or list all known policies when no name is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: policyCmd,
}

var argPolicyOut string

func init() {
	ReqCmd.AddCommand(PolicyCmd)
	PolicyCmd.Flags().StringVarP(&argPolicyOut, "output", "o", "", "Write compiled requirement blob to a file")
}

func policyCmd(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		for _, p := range []csreq.ExecutionPolicy{
			csreq.DeveloperIDSigned,
			csreq.DeveloperIDNotarizedExecutable,
			csreq.DeveloperIDNotarizedInstaller,
		} {
			fmt.Printf("%s:\n  %s\n", p, csreq.Format(p.Requirement()))
		}
		return nil
	}
	policy, err := csreq.ParseExecutionPolicy(args[0])
	if err != nil {
		return shared.Fail(err)
	}
	fmt.Println(csreq.Format(policy.Requirement()))
	if argPolicyOut != "" {
		blob, err := csreq.MarshalBlob(policy.Requirement())
		if err != nil {
			return shared.Fail(err)
		}
		if err := writeBlob(argPolicyOut, blob); err != nil {
			return shared.Fail(err)
		}
	}
	return nil
}
