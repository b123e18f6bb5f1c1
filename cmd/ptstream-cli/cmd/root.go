package cmd

import (
	"fmt"
	"os"

	"ptstream/cli"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "ptstream-cli",
	Short: "Command-line interface for ptstream.",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().Int(cli.FlagRPCPort, 9798, "RPC port to connect to.")
	rootCmd.PersistentFlags().String(cli.FlagRPCHost, "127.0.0.1", "RPC host to connect to.")
	rootCmd.PersistentFlags().String(cli.FlagHome, "~/.ptstreamd", "Home directory holding the config and journal.")
	rootCmd.PersistentFlags().String(cli.FlagFormat, "text", "Output format")
}
