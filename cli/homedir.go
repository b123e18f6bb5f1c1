package cli

import (
	"ptstream/config"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func GetHomeDir(cmd *cobra.Command) string {
	homeDirUnexp, err := cmd.Flags().GetString(FlagHome)
	if err != nil {
		panic(err)
	}
	homeDir := config.ExpandHomePath(homeDirUnexp)
	return homeDir
}

func InitHomeDir(cmd *cobra.Command) (string, error) {
	homeDir := GetHomeDir(cmd)
	exists, err := config.HomeDirExists(homeDir)
	if err != nil {
		return "", err
	}
	if exists {
		return "", errors.New("home directory is already initialized")
	}
	if err := config.InitHomeDir(homeDir); err != nil {
		return "", err
	}
	return homeDir, nil
}

// ReadConfig reads the config file from the home directory, falling back
// to the defaults when the directory was never initialized.
func ReadConfig(cmd *cobra.Command) (*config.Config, error) {
	homeDir := GetHomeDir(cmd)
	exists, err := config.HomeDirExists(homeDir)
	if err != nil {
		return nil, err
	}
	if !exists {
		cfg := config.DefaultConfig
		return &cfg, nil
	}
	return config.ReadConfigFile(homeDir)
}
