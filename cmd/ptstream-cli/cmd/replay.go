package cmd

import (
	"fmt"
	"os"

	"ptstream/cli"
	"ptstream/codec"
	"ptstream/config"
	"ptstream/journal"
	"ptstream/token"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

const flagFrom = "from"

var replayCmd = &cobra.Command{
	Use:   "replay <topic>",
	Short: "Prints the tokens recorded in the journal for a topic.",
	Long: `Prints the tokens recorded in the journal for a topic. Each batch is
decoded with the handler configuration it was recorded with. The journal
can only be opened while the daemon is stopped.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := cli.ReadConfig(cmd)
		if err != nil {
			return err
		}
		fallback, err := cfg.Registry()
		if err != nil {
			return err
		}
		homeDir := cli.GetHomeDir(cmd)
		if err := config.EnsureHomeDir(homeDir); err != nil {
			return err
		}
		db, err := journal.Open(config.ExpandJournalPath(homeDir))
		if err != nil {
			return errors.Wrap(err, "error opening journal, is ptstreamd running?")
		}
		defer db.Close()

		from, _ := cmd.Flags().GetUint64(flagFrom)
		format, _ := cmd.Flags().GetString(cli.FlagFormat)
		printer := newTokenPrinter(os.Stdout, format)
		return journal.Replay(db, args[0], from, codec.DefaultCatalog(), codec.New(fallback), func(b *journal.Batch, tokens []token.Token, decErr error) error {
			for _, t := range tokens {
				if err := printer.Print(b.Topic, b.Seq, t); err != nil {
					return err
				}
			}
			if decErr != nil {
				fmt.Fprintf(os.Stderr, "batch %d: %v\n", b.Seq, decErr)
			}
			return nil
		})
	},
}

func init() {
	replayCmd.Flags().Uint64(flagFrom, 0, "First batch sequence number to replay.")
	rootCmd.AddCommand(replayCmd)
}
