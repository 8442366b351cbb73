package shared

import (
	"errors"
	"fmt"
	"os"

	"github.com/grovekeep/grovesign/config"
)

// InitConfig loads the configuration file named by --config, or the
// per-user default if one exists.
func InitConfig() error {
	if CurrentConfig != nil {
		return nil
	}
	usedDefault := false
	if ArgConfig == "" {
		ArgConfig = config.DefaultConfig()
		if ArgConfig == "" {
			return errors.New("--config not specified")
		}
		usedDefault = true
	}
	cfg, err := config.ReadFile(ArgConfig)
	if err != nil {
		if os.IsNotExist(err) && usedDefault {
			return fmt.Errorf("--config not specified and default config at %s does not exist", ArgConfig)
		}
		return err
	}
	CurrentConfig = cfg
	return nil
}

func OpenFile(path string) (*os.File, error) {
	if path == "-" {
		return os.Stdin, nil
	}
	return os.Open(path)
}

func Fail(err error) error {
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(70)
	}
	return err
}
