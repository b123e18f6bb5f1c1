package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ptstream/broker"
	"ptstream/cli"
	"ptstream/codec"
	"ptstream/config"
	"ptstream/journal"
	"ptstream/log"
	"ptstream/metrics"
	"ptstream/rpc"
	"ptstream/service"
	"ptstream/session"
	"ptstream/token"
	"ptstream/transport"
	"ptstream/version"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/syndtr/goleveldb/leveldb"
	"golang.org/x/sync/errgroup"
)

const (
	flagRecord        = "record"
	brokerStartupWait = 5 * time.Second
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Starts the daemon.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.ReadConfigFile(configuredHomeDir)
		if err != nil {
			return errors.Wrap(err, "error reading config file")
		}
		logLevel, err := log.NewLevel(cfg.LogLevel)
		if err != nil {
			return errors.Wrap(err, "error parsing log level")
		}
		log.SetLevel(logLevel)
		if err := log.SetFormat(cfg.LogFormat); err != nil {
			return err
		}
		lgr := log.WithModule("main")

		lgr.Info("starting ptstreamd", "git_commit", version.GitCommit, "git_tag", version.GitTag)
		lgr.Info("opening home directory", "path", configuredHomeDir)

		registry, err := cfg.Registry()
		if err != nil {
			return errors.Wrap(err, "error loading handler configuration")
		}
		lgr.Info("loaded handlers", "count", registry.Len(), "fingerprint", registry.Fingerprint().Short())

		journalPath := config.ExpandJournalPath(configuredHomeDir)
		lgr.Info("opening journal", "path", journalPath)
		db, err := journal.Open(journalPath)
		if err != nil {
			return err
		}
		defer db.Close()

		var services []service.Service
		var status rpc.StatusSource
		var b *broker.Broker
		if cfg.Broker.Enabled {
			b = broker.New(&broker.Opts{
				Host:       cfg.Broker.Host,
				Port:       cfg.Broker.Port,
				MaxClients: cfg.Broker.MaxClients,
			})
			services = append(services, b)
			status = b
		}
		services = append(services, rpc.NewServer(&rpc.Opts{
			Registry: registry,
			Broker:   status,
			DB:       db,
			Host:     cfg.RPC.Host,
			Port:     cfg.RPC.Port,
		}))
		if cfg.Metrics.Enabled {
			services = append(services, metrics.NewServer(cfg.Metrics.Host, cfg.Metrics.Port))
		}

		g, gctx := errgroup.WithContext(context.Background())
		ctx, cancel := context.WithCancel(gctx)
		defer cancel()
		lgr.Info("starting services")
		for _, s := range services {
			s := s
			g.Go(s.Start)
		}

		records, _ := cmd.Flags().GetStringSlice(flagRecord)
		if len(records) > 0 {
			if b != nil {
				if err := waitForBroker(ctx, b); err != nil {
					stopAll(lgr, services)
					cancel()
					_ = g.Wait()
					return err
				}
			}
			recorders, tp, err := startRecorders(ctx, g, cfg, codec.New(registry), db, records)
			if err != nil {
				stopAll(lgr, services)
				cancel()
				_ = g.Wait()
				return err
			}
			defer tp.Disconnect()
			services = append(services, recorders...)
		}

		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
		g.Go(func() error {
			select {
			case sig := <-sigs:
				lgr.Info("shutting down", "signal", sig)
			case <-gctx.Done():
				lgr.Error("service failed, shutting down", "err", gctx.Err())
			}
			stopAll(lgr, services)
			cancel()
			return nil
		})
		return g.Wait()
	},
}

func startRecorders(ctx context.Context, g *errgroup.Group, cfg *config.Config, c *codec.Codec, db *leveldb.DB, topics []string) ([]service.Service, transport.Transport, error) {
	tp, err := cli.ConnectTransport(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	expiry := config.ConvertDuration(cfg.Session.ExpiryTimeoutMS, time.Millisecond)
	var recorders []service.Service
	for _, topic := range topics {
		lgr := log.WithModule("recorder").Sub("topic", topic)
		var jdb *leveldb.DB
		if cfg.Session.Journal {
			jdb = db
		}
		recv := session.NewReceiver(&session.ReceiverOpts{
			Transport: tp,
			Codec:     c,
			Topic:     topic,
			Handler: func(topic string, t token.Token) {
				lgr.Trace("received token", "type", t.TypeName(), "value", t.String())
			},
			Journal: jdb,
		})
		if err := recv.Subscribe(ctx); err != nil {
			for _, r := range recorders {
				_ = r.Stop()
			}
			_ = tp.Disconnect()
			return nil, nil, errors.Wrapf(err, "error subscribing to %s", topic)
		}
		recorders = append(recorders, recv)
		g.Go(recv.Start)
		g.Go(func() error {
			_ = recv.WatchExpiry(ctx, expiry, nil)
			return nil
		})
	}
	return recorders, tp, nil
}

func waitForBroker(ctx context.Context, b *broker.Broker) error {
	ctx, cancel := context.WithTimeout(ctx, brokerStartupWait)
	defer cancel()
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()
	for b.Addr() == nil {
		select {
		case <-tick.C:
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "broker did not start")
		}
	}
	return nil
}

func stopAll(lgr log.Logger, services []service.Service) {
	for i := len(services) - 1; i >= 0; i-- {
		if err := services[i].Stop(); err != nil {
			lgr.Error("error stopping service", "err", err)
		}
	}
}

func init() {
	startCmd.Flags().StringSlice(flagRecord, nil, "Topics to subscribe to and record in the journal.")
	rootCmd.AddCommand(startCmd)
}
