// Package redis carries token batches over Redis PUBLISH/SUBSCRIBE.
package redis

import (
	"context"
	"sync"
	"time"

	"ptstream/log"
	"ptstream/transport"

	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"
)

const (
	DefaultChannelPrefix = "ptstream:"
	DefaultDialTimeout   = 5 * time.Second
	subscriptionBuffer   = 128
)

type Opts struct {
	Addr     string
	Password string
	DB       int
	// ChannelPrefix namespaces every topic. Defaults to DefaultChannelPrefix.
	ChannelPrefix string
}

// Transport publishes each batch as one Redis message on the channel
// ChannelPrefix+topic. Redis pub/sub is at-most-once, which matches the
// transport contract.
type Transport struct {
	opts   Opts
	mu     sync.Mutex
	client *goredis.Client
	subs   map[*subscription]struct{}
	lgr    log.Logger
}

var _ transport.Transport = (*Transport)(nil)

func New(opts Opts) *Transport {
	if opts.ChannelPrefix == "" {
		opts.ChannelPrefix = DefaultChannelPrefix
	}
	return &Transport{
		opts: opts,
		subs: make(map[*subscription]struct{}),
		lgr:  log.WithModule("redis-transport").Sub("addr", opts.Addr),
	}
}

func (t *Transport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client != nil {
		return nil
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:        t.opts.Addr,
		Password:    t.opts.Password,
		DB:          t.opts.DB,
		DialTimeout: DefaultDialTimeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return errors.Wrapf(transport.ErrTransport, "failed to connect to redis: %v", err)
	}
	t.client = client
	t.lgr.Info("connected")
	return nil
}

func (t *Transport) Publish(ctx context.Context, topic string, payload []byte) error {
	client, err := t.getClient()
	if err != nil {
		return err
	}
	if err := client.Publish(ctx, t.channel(topic), payload).Err(); err != nil {
		return errors.Wrapf(transport.ErrTransport, "failed to publish: %v", err)
	}
	return nil
}

func (t *Transport) Subscribe(ctx context.Context, topic string) (transport.Subscription, error) {
	client, err := t.getClient()
	if err != nil {
		return nil, err
	}

	ps := client.Subscribe(ctx, t.channel(topic))
	// wait for the confirmation so no message published after Subscribe
	// returns can be missed
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, errors.Wrapf(transport.ErrTransport, "failed to subscribe: %v", err)
	}

	sub := &subscription{
		owner: t,
		topic: topic,
		ps:    ps,
		ch:    make(chan []byte, subscriptionBuffer),
	}
	t.mu.Lock()
	t.subs[sub] = struct{}{}
	t.mu.Unlock()
	go sub.pump()
	return sub, nil
}

func (t *Transport) Disconnect() error {
	t.mu.Lock()
	client := t.client
	subs := t.subs
	t.client = nil
	t.subs = make(map[*subscription]struct{})
	t.mu.Unlock()

	for sub := range subs {
		sub.close()
	}
	if client == nil {
		return nil
	}
	if err := client.Close(); err != nil {
		return errors.Wrap(transport.ErrTransport, err.Error())
	}
	t.lgr.Info("disconnected")
	return nil
}

func (t *Transport) getClient() (*goredis.Client, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client == nil {
		return nil, transport.ErrNotConnected
	}
	return t.client, nil
}

func (t *Transport) channel(topic string) string {
	return t.opts.ChannelPrefix + topic
}

type subscription struct {
	owner *Transport
	topic string
	ps    *goredis.PubSub
	ch    chan []byte
	once  sync.Once
}

func (s *subscription) Topic() string {
	return s.topic
}

func (s *subscription) Messages() <-chan []byte {
	return s.ch
}

func (s *subscription) Close() error {
	s.owner.mu.Lock()
	delete(s.owner.subs, s)
	s.owner.mu.Unlock()
	return s.close()
}

func (s *subscription) close() error {
	var err error
	s.once.Do(func() {
		err = s.ps.Close()
	})
	return err
}

// pump copies messages out of go-redis until the PubSub is closed. A reader
// that falls behind loses messages rather than stalling the connection.
func (s *subscription) pump() {
	defer close(s.ch)
	for msg := range s.ps.Channel() {
		select {
		case s.ch <- []byte(msg.Payload):
		default:
			s.owner.lgr.Warn("subscription buffer full, dropping message", "topic", s.topic)
		}
	}
}
