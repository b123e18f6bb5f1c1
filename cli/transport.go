package cli

import (
	"context"
	"time"

	"ptstream/config"
	"ptstream/transport"
	"ptstream/transport/redis"
	"ptstream/transport/tcp"

	"github.com/pkg/errors"
)

func NewTransport(cfg *config.Config) (transport.Transport, error) {
	switch cfg.Transport.Kind {
	case config.TransportTCP:
		return tcp.New(tcp.Opts{
			Addr:        cfg.Transport.BrokerAddr,
			DialTimeout: config.ConvertDuration(cfg.Transport.DialTimeoutMS, time.Millisecond),
		}), nil
	case config.TransportRedis:
		return redis.New(redis.Opts{
			Addr:          cfg.Redis.Addr,
			Password:      cfg.Redis.Password,
			DB:            cfg.Redis.DB,
			ChannelPrefix: cfg.Redis.ChannelPrefix,
		}), nil
	default:
		return nil, errors.Errorf("unknown transport kind %q", cfg.Transport.Kind)
	}
}

// ConnectTransport builds and connects the configured transport.
func ConnectTransport(ctx context.Context, cfg *config.Config) (transport.Transport, error) {
	tp, err := NewTransport(cfg)
	if err != nil {
		return nil, err
	}
	if err := tp.Connect(ctx); err != nil {
		return nil, errors.Wrap(err, "error connecting transport")
	}
	return tp, nil
}
