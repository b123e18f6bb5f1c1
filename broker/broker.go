// Package broker implements a small TCP publish/subscribe broker. Delivery is
// at most once: a subscriber that cannot keep up misses messages instead of
// slowing the publisher down.
package broker

import (
	"context"
	"net"
	"sync"
	"time"

	"ptstream/log"
	"ptstream/metrics"
	"ptstream/service"
	"ptstream/wire"

	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"
)

const (
	DefaultHost       = "127.0.0.1"
	DefaultPort       = 9797
	DefaultMaxClients = 256
	subAckTimeout     = 5 * time.Second
)

var (
	ErrMaxClients        = errors.New("reached maximum clients")
	ErrProtocolViolation = errors.New("protocol violation")
)

type Opts struct {
	Host       string
	Port       int
	MaxClients int
}

// Status is a point-in-time view of the broker. Byte counts include clients
// that have since disconnected.
type Status struct {
	Clients int
	Topics  int
	TxBytes uint64
	RxBytes uint64
}

type Broker struct {
	listener *Listener
	sem      *semaphore.Weighted

	mu      sync.RWMutex
	clients map[*client]struct{}
	topics  map[string]map[*client]struct{}
	txBytes uint64
	rxBytes uint64

	lgr log.Logger
}

var _ service.Service = (*Broker)(nil)

type client struct {
	conn   *Conn
	topics map[string]struct{}
}

func New(opts *Opts) *Broker {
	host := opts.Host
	if host == "" {
		host = DefaultHost
	}
	maxClients := opts.MaxClients
	if maxClients <= 0 {
		maxClients = DefaultMaxClients
	}
	b := &Broker{
		sem:     semaphore.NewWeighted(int64(maxClients)),
		clients: make(map[*client]struct{}),
		topics:  make(map[string]map[*client]struct{}),
		lgr:     log.WithModule("broker"),
	}
	b.listener = NewListener(host, opts.Port, b)
	return b
}

func (b *Broker) Start() error {
	return b.listener.Start()
}

// Stop closes the listener and every client connection.
func (b *Broker) Stop() error {
	if err := b.listener.Stop(); err != nil {
		return err
	}
	b.mu.RLock()
	var conns []*Conn
	for c := range b.clients {
		conns = append(conns, c.conn)
	}
	b.mu.RUnlock()
	for _, conn := range conns {
		_ = conn.Close()
	}
	return nil
}

// Addr returns the address the broker is listening on, or nil before it
// has bound.
func (b *Broker) Addr() net.Addr {
	return b.listener.Addr()
}

func (b *Broker) Status() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	st := Status{
		Clients: len(b.clients),
		Topics:  len(b.topics),
		TxBytes: b.txBytes,
		RxBytes: b.rxBytes,
	}
	for c := range b.clients {
		tx, rx := c.conn.BandwidthUsage()
		st.TxBytes += tx
		st.RxBytes += rx
	}
	return st
}

// Accept serves one client connection until it closes.
func (b *Broker) Accept(nc net.Conn) error {
	if !b.sem.TryAcquire(1) {
		_ = nc.Close()
		return ErrMaxClients
	}
	defer b.sem.Release(1)

	c := &client{
		conn:   NewConn(nc),
		topics: make(map[string]struct{}),
	}
	b.addClient(c)
	defer b.removeClient(c)

	for {
		envelope, err := c.conn.Receive(context.Background())
		if err != nil {
			if err == ErrConnHangup || err == ErrConnClosed {
				return nil
			}
			return err
		}
		if err := b.handle(c, envelope); err != nil {
			_ = c.conn.Close()
			return err
		}
	}
}

func (b *Broker) handle(c *client, envelope *wire.Envelope) error {
	switch msg := envelope.Message.(type) {
	case *wire.Subscribe:
		b.subscribe(c, msg.Topic)
		ctx, cancel := context.WithTimeout(context.Background(), subAckTimeout)
		defer cancel()
		return c.conn.Send(ctx, &wire.SubAck{Topic: msg.Topic})
	case *wire.Unsubscribe:
		b.unsubscribe(c, msg.Topic)
	case *wire.Publish:
		b.fanOut(msg)
	case *wire.Ping:
		if err := c.conn.TrySend(wire.NewPing()); err != nil {
			b.lgr.Debug("failed to answer ping", "remote_addr", c.conn.RemoteAddr(), "err", err)
		}
	default:
		return errors.Wrapf(ErrProtocolViolation, "unexpected %s from client", envelope.MessageType)
	}
	return nil
}

func (b *Broker) fanOut(msg *wire.Publish) {
	b.mu.RLock()
	subs := make([]*client, 0, len(b.topics[msg.Topic]))
	for c := range b.topics[msg.Topic] {
		subs = append(subs, c)
	}
	b.mu.RUnlock()

	delivery := &wire.Delivery{
		Topic:   msg.Topic,
		Payload: msg.Payload,
	}
	for _, c := range subs {
		if err := c.conn.TrySend(delivery); err != nil {
			metrics.BrokerDropped.Inc()
			b.lgr.Debug("dropping message for subscriber", "topic", msg.Topic, "remote_addr", c.conn.RemoteAddr(), "err", err)
			continue
		}
		metrics.BrokerMessages.Inc()
	}
}

func (b *Broker) addClient(c *client) {
	b.mu.Lock()
	b.clients[c] = struct{}{}
	count := len(b.clients)
	b.mu.Unlock()
	metrics.BrokerClients.Inc()
	b.lgr.Info("client connected", "remote_addr", c.conn.RemoteAddr(), "clients", count)
}

func (b *Broker) removeClient(c *client) {
	_ = c.conn.Close()
	tx, rx := c.conn.BandwidthUsage()

	b.mu.Lock()
	for topic := range c.topics {
		b.removeSubLocked(c, topic)
	}
	delete(b.clients, c)
	b.txBytes += tx
	b.rxBytes += rx
	count := len(b.clients)
	b.mu.Unlock()
	metrics.BrokerClients.Dec()
	b.lgr.Info("client disconnected", "remote_addr", c.conn.RemoteAddr(), "clients", count, "reason", c.conn.CloseReason())
}

func (b *Broker) subscribe(c *client, topic string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.topics[topic] == nil {
		b.topics[topic] = make(map[*client]struct{})
	}
	b.topics[topic][c] = struct{}{}
	c.topics[topic] = struct{}{}
	b.lgr.Debug("subscribed", "topic", topic, "remote_addr", c.conn.RemoteAddr())
}

func (b *Broker) unsubscribe(c *client, topic string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeSubLocked(c, topic)
}

func (b *Broker) removeSubLocked(c *client, topic string) {
	delete(c.topics, topic)
	subs := b.topics[topic]
	if subs == nil {
		return
	}
	delete(subs, c)
	if len(subs) == 0 {
		delete(b.topics, topic)
	}
}
