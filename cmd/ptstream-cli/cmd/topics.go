package cmd

import (
	"context"
	"encoding/json"
	"os"
	"strconv"

	"ptstream/cli"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var topicsCmd = &cobra.Command{
	Use:   "topics",
	Short: "Lists the topics recorded in the daemon's journal.",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, conn, err := cli.DialRPC(cmd)
		if err != nil {
			return err
		}
		defer conn.Close()

		ctx, cancel := context.WithTimeout(context.Background(), rpcTimeout)
		defer cancel()
		topics, err := client.Topics(ctx)
		if err != nil {
			return err
		}

		format, _ := cmd.Flags().GetString(cli.FlagFormat)
		if format == "json" {
			return json.NewEncoder(os.Stdout).Encode(topics)
		}
		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"Topic", "Batches"})
		for _, info := range topics {
			table.Append([]string{info.Topic, strconv.FormatUint(info.LastSeq, 10)})
		}
		table.Render()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(topicsCmd)
}
