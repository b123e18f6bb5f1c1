package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"ptstream/cli"
	"ptstream/codec"
	"ptstream/config"
	"ptstream/crypto"
	"ptstream/publisher"
	"ptstream/session"
	"ptstream/token"

	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

const flagPing = "ping"

var publishCmd = &cobra.Command{
	Use:   "publish <literal...>",
	Short: "Publishes tokens to a topic.",
	Long: `Publishes tokens to a topic. Tokens are given as literals, e.g. 42, 42L,
1.5, true, "hi" or {1, 2}. When no literals are passed and stdin is not a
terminal, one literal is read per line of stdin.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := cli.ReadConfig(cmd)
		if err != nil {
			return err
		}
		reg, err := cfg.Registry()
		if err != nil {
			return err
		}
		checkFingerprint(cmd, reg)

		var src io.Reader
		if len(args) == 0 {
			if isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd()) {
				return errors.New("no literals given and stdin is a terminal")
			}
			src = os.Stdin
		} else {
			src = strings.NewReader(strings.Join(args, "\n"))
		}

		topic, _ := cmd.Flags().GetString(cli.FlagTopic)
		if topic == "" {
			topic = "ptstream/" + crypto.RandTicket()
			fmt.Fprintf(os.Stderr, "publishing to %s\n", topic)
		}

		ctx := context.Background()
		tp, err := cli.ConnectTransport(ctx, cfg)
		if err != nil {
			return err
		}
		defer tp.Disconnect()

		pub := publisher.New(&publisher.Opts{
			Transport: tp,
			Codec:     codec.New(reg),
			Topic:     topic,
			Period:    config.ConvertDuration(cfg.Publisher.PeriodMS, time.Millisecond),
			Budget:    cfg.Publisher.Budget,
		})
		pub.AddDropHandler(func(topic string, frames int, err error) {
			fmt.Fprintf(os.Stderr, "dropped %d tokens: %v\n", frames, err)
		})

		if ping, _ := cmd.Flags().GetBool(flagPing); ping {
			pinger := session.NewPinger(pub)
			pinger.Interval = config.ConvertDuration(cfg.Publisher.PingIntervalMS, time.Millisecond)
			go pinger.Start()
			defer pinger.Stop()
		}

		count, err := publishLiterals(ctx, pub, src)
		if closeErr := pub.Close(ctx); closeErr != nil && err == nil {
			err = closeErr
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "published %d tokens\n", count)
		return nil
	},
}

func publishLiterals(ctx context.Context, pub *publisher.Publisher, r io.Reader) (int, error) {
	var count int
	scanner := bufio.NewScanner(r)
	for line := 1; scanner.Scan(); line++ {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		t, err := token.Parse(text)
		if err != nil {
			return count, errors.Wrapf(err, "line %d", line)
		}
		if err := pub.Offer(ctx, t); err != nil {
			return count, err
		}
		count++
	}
	return count, scanner.Err()
}

// checkFingerprint warns when the daemon is reachable and runs a different
// handler configuration. Receivers would misread every tag.
func checkFingerprint(cmd *cobra.Command, reg *codec.Registry) {
	client, conn, err := cli.DialRPC(cmd)
	if err != nil {
		return
	}
	defer conn.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	st, err := client.Status(ctx)
	if err != nil {
		return
	}
	if st.Fingerprint != reg.Fingerprint().String() {
		fmt.Fprintf(os.Stderr, "warning: handler configuration differs from the daemon's (%s != %s)\n",
			reg.Fingerprint().Short(), st.Fingerprint)
	}
}

func init() {
	publishCmd.Flags().String(cli.FlagTopic, "", "Topic to publish to. A random topic is generated when empty.")
	publishCmd.Flags().Bool(flagPing, false, "Send ping tokens while publishing.")
	rootCmd.AddCommand(publishCmd)
}
