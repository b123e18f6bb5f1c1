package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"ptstream/log"
	"ptstream/publisher"
	"ptstream/service"
	"ptstream/token"
	"ptstream/util"
)

const (
	DefaultPingInterval  = time.Second
	DefaultExpiryTimeout = 10 * time.Second
	minExpiryCheck       = 10 * time.Millisecond
)

// Pinger keeps a stream alive by sending a Ping token through its publisher
// every interval, flushing immediately so the ping does not wait on model
// traffic.
type Pinger struct {
	Interval time.Duration

	pub    *publisher.Publisher
	sent   uint64
	quitCh chan struct{}
	once   sync.Once
	lgr    log.Logger
}

var _ service.Service = (*Pinger)(nil)

func NewPinger(pub *publisher.Publisher) *Pinger {
	return &Pinger{
		Interval: DefaultPingInterval,
		pub:      pub,
		quitCh:   make(chan struct{}),
		lgr:      log.WithModule("pinger").Sub("topic", pub.Topic()),
	}
}

func (p *Pinger) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-p.quitCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	tick := time.NewTicker(p.Interval)
	defer tick.Stop()
	for {
		select {
		case <-tick.C:
			if err := p.ping(ctx); err != nil {
				if err == publisher.ErrClosed {
					p.lgr.Debug("publisher closed, shutting down pinger")
					return nil
				}
				p.lgr.Warn("failed to send ping", "err", err)
			}
		case <-p.quitCh:
			return nil
		}
	}
}

func (p *Pinger) Stop() error {
	p.once.Do(func() {
		close(p.quitCh)
	})
	return nil
}

// Sent returns the number of pings handed to the transport.
func (p *Pinger) Sent() uint64 {
	return atomic.LoadUint64(&p.sent)
}

func (p *Pinger) ping(ctx context.Context) error {
	ping := token.Ping{Timestamp: time.Now().UnixNano() / int64(time.Millisecond)}
	if err := p.pub.Offer(ctx, ping); err != nil {
		return err
	}
	if err := p.pub.Flush(ctx); err != nil {
		return err
	}
	atomic.AddUint64(&p.sent, 1)
	p.lgr.Trace("sent ping")
	return nil
}

// WatchExpiry blocks until ctx is done, calling cb once each time the
// receiver goes longer than timeout without a ping. The watch re-arms when
// a ping arrives. Expiry handlers registered on the receiver are notified
// too.
func (r *Receiver) WatchExpiry(ctx context.Context, timeout time.Duration, cb func(topic string, lastPing time.Time)) error {
	check := timeout / 4
	if check < minExpiryCheck {
		check = minExpiryCheck
	}
	tick := time.NewTicker(check)
	defer tick.Stop()

	var expired bool
	for {
		select {
		case <-tick.C:
			lastPing := r.LastPing()
			if time.Since(lastPing) <= timeout {
				expired = false
				continue
			}
			if expired {
				continue
			}
			expired = true
			r.lgr.Warn("remote model connection expired", "last_ping", lastPing, "timeout", timeout)
			if cb != nil {
				cb(r.topic, lastPing)
			}
			r.obs.Emit(util.EventExpired, r.topic, lastPing)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
