package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"ptstream/cli"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Returns broker and codec status information.",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, conn, err := cli.DialRPC(cmd)
		if err != nil {
			return err
		}
		defer conn.Close()

		ctx, cancel := context.WithTimeout(context.Background(), rpcTimeout)
		defer cancel()
		res, err := client.Status(ctx)
		if err != nil {
			return err
		}

		format, _ := cmd.Flags().GetString(cli.FlagFormat)
		if format == "json" {
			return json.NewEncoder(os.Stdout).Encode(res)
		}
		table := tablewriter.NewWriter(os.Stdout)
		table.Append([]string{"Version", res.Version})
		table.Append([]string{"Clients", strconv.Itoa(res.Clients)})
		table.Append([]string{"Topics", strconv.Itoa(res.Topics)})
		table.Append([]string{"Tx Bytes", bandwidthToStr(res.TxBytes)})
		table.Append([]string{"Rx Bytes", bandwidthToStr(res.RxBytes)})
		table.Append([]string{"Handlers", strconv.Itoa(res.Handlers)})
		table.Append([]string{"Fingerprint", res.Fingerprint})
		table.Render()
		return nil
	},
}

func bandwidthToStr(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
