package shared

import (
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/grovekeep/grovesign/config"
)

var (
	ArgConfig  string
	argVerbose bool

	CurrentConfig *config.Config
	Logger        zerolog.Logger
)

var RootCmd = &cobra.Command{
	Use:               "grovesign",
	Short:             "Sign and verify xar archives and work with code requirements",
	PersistentPreRun:  setupLogging,
	RunE:              bailNoCommand,
	SilenceUsage:      true,
	DisableAutoGenTag: true,
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&ArgConfig, "config", "c", "", "Configuration file")
	RootCmd.PersistentFlags().BoolVarP(&argVerbose, "verbose", "v", false, "Enable debug logging")
}

func setupLogging(cmd *cobra.Command, args []string) {
	level := zerolog.InfoLevel
	if argVerbose {
		level = zerolog.DebugLevel
	}
	Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()
}

func bailNoCommand(cmd *cobra.Command, args []string) error {
	return errors.New("expected a command")
}

func Main() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
