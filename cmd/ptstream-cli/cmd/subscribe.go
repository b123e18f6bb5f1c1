package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"ptstream/cli"
	"ptstream/codec"
	"ptstream/config"
	"ptstream/session"
	"ptstream/token"

	"github.com/spf13/cobra"
)

var subscribeCmd = &cobra.Command{
	Use:   "subscribe <topic>",
	Short: "Prints the tokens published to a topic.",
	Args:  cobra.ExactArgs(1),
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

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		tp, err := cli.ConnectTransport(ctx, cfg)
		if err != nil {
			return err
		}
		defer tp.Disconnect()

		format, _ := cmd.Flags().GetString(cli.FlagFormat)
		printer := newTokenPrinter(os.Stdout, format)
		var mu sync.Mutex
		recv := session.NewReceiver(&session.ReceiverOpts{
			Transport: tp,
			Codec:     codec.New(reg),
			Topic:     args[0],
			Handler: func(topic string, t token.Token) {
				mu.Lock()
				defer mu.Unlock()
				if err := printer.Print(topic, 0, t); err != nil {
					cancel()
				}
			},
		})
		recv.AddDecodeErrorHandler(func(topic string, err error) {
			fmt.Fprintf(os.Stderr, "dropped rest of batch: %v\n", err)
		})
		if err := recv.Subscribe(ctx); err != nil {
			return err
		}

		expiry := config.ConvertDuration(cfg.Session.ExpiryTimeoutMS, time.Millisecond)
		go recv.WatchExpiry(ctx, expiry, func(topic string, lastPing time.Time) {
			fmt.Fprintf(os.Stderr, "no ping from %s since %s\n", topic, lastPing.Format(time.RFC3339))
		})

		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			select {
			case <-sigs:
			case <-ctx.Done():
			}
			_ = recv.Stop()
		}()
		return recv.Start()
	},
}

func init() {
	rootCmd.AddCommand(subscribeCmd)
}
