package cmd

import (
	"context"
	"encoding/json"
	"os"
	"strconv"
	"time"

	"ptstream/cli"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

const rpcTimeout = 10 * time.Second

var handlersCmd = &cobra.Command{
	Use:   "handlers",
	Short: "Lists the daemon's handler configuration in tag order.",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, conn, err := cli.DialRPC(cmd)
		if err != nil {
			return err
		}
		defer conn.Close()

		ctx, cancel := context.WithTimeout(context.Background(), rpcTimeout)
		defer cancel()
		pairs, err := client.HandlerMap(ctx)
		if err != nil {
			return err
		}

		format, _ := cmd.Flags().GetString(cli.FlagFormat)
		if format == "json" {
			return json.NewEncoder(os.Stdout).Encode(pairs)
		}
		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"Tag", "Type", "Handler"})
		for i, pair := range pairs {
			table.Append([]string{strconv.Itoa(i), pair.TypeName, pair.HandlerName})
		}
		table.Render()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(handlersCmd)
}
