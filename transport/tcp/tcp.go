// Package tcp is the client side of the ptstream broker protocol.
package tcp

import (
	"context"
	"net"
	"sync"
	"time"

	"ptstream/broker"
	"ptstream/log"
	"ptstream/transport"
	"ptstream/wire"

	"github.com/pkg/errors"
)

const (
	DefaultDialTimeout  = 5 * time.Second
	DefaultPingInterval = 15 * time.Second
	subscriptionBuffer  = 128
)

type Opts struct {
	Addr         string
	DialTimeout  time.Duration
	PingInterval time.Duration
}

// Transport holds one broker connection shared by every publish and
// subscription made through it.
type Transport struct {
	addr         string
	dialTimeout  time.Duration
	pingInterval time.Duration

	mu     sync.Mutex
	conn   *broker.Conn
	subs   map[string]map[*subscription]struct{}
	acks   map[string][]chan struct{}
	quitCh chan struct{}
	wg     sync.WaitGroup

	lgr log.Logger
}

var _ transport.Transport = (*Transport)(nil)

func New(opts Opts) *Transport {
	dialTimeout := opts.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = DefaultDialTimeout
	}
	pingInterval := opts.PingInterval
	if pingInterval <= 0 {
		pingInterval = DefaultPingInterval
	}
	return &Transport{
		addr:         opts.Addr,
		dialTimeout:  dialTimeout,
		pingInterval: pingInterval,
		subs:         make(map[string]map[*subscription]struct{}),
		acks:         make(map[string][]chan struct{}),
		lgr:          log.WithModule("tcp-transport").Sub("addr", opts.Addr),
	}
}

func (t *Transport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn != nil {
		return nil
	}

	dialer := &net.Dialer{Timeout: t.dialTimeout}
	nc, err := dialer.DialContext(ctx, "tcp", t.addr)
	if err != nil {
		return errors.Wrapf(transport.ErrTransport, "failed to dial broker: %v", err)
	}
	conn := broker.NewConn(nc)
	t.conn = conn
	t.quitCh = make(chan struct{})
	t.wg.Add(2)
	go t.readLoop(conn)
	go t.pingLoop(conn, t.quitCh)
	t.lgr.Info("connected to broker")
	return nil
}

func (t *Transport) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := wire.ValidateTopic(topic); err != nil {
		return errors.Wrap(transport.ErrTransport, err.Error())
	}
	conn, err := t.getConn()
	if err != nil {
		return err
	}
	if err := conn.Send(ctx, &wire.Publish{Topic: topic, Payload: payload}); err != nil {
		return errors.Wrapf(transport.ErrTransport, "failed to publish: %v", err)
	}
	return nil
}

// Subscribe returns once the broker has acknowledged the subscription.
func (t *Transport) Subscribe(ctx context.Context, topic string) (transport.Subscription, error) {
	if err := wire.ValidateTopic(topic); err != nil {
		return nil, errors.Wrap(transport.ErrTransport, err.Error())
	}

	t.mu.Lock()
	conn := t.conn
	if conn == nil {
		t.mu.Unlock()
		return nil, transport.ErrNotConnected
	}
	sub := &subscription{
		owner: t,
		topic: topic,
		ch:    make(chan []byte, subscriptionBuffer),
	}
	if t.subs[topic] == nil {
		t.subs[topic] = make(map[*subscription]struct{})
	}
	t.subs[topic][sub] = struct{}{}
	ackCh := make(chan struct{})
	t.acks[topic] = append(t.acks[topic], ackCh)
	t.mu.Unlock()

	if err := conn.Send(ctx, &wire.Subscribe{Topic: topic}); err != nil {
		sub.Close()
		return nil, errors.Wrapf(transport.ErrTransport, "failed to subscribe: %v", err)
	}

	select {
	case <-ackCh:
		return sub, nil
	case <-conn.CloseChan():
		sub.Close()
		return nil, errors.Wrapf(transport.ErrTransport, "connection closed: %v", conn.CloseReason())
	case <-ctx.Done():
		sub.Close()
		return nil, ctx.Err()
	}
}

func (t *Transport) Disconnect() error {
	t.mu.Lock()
	conn := t.conn
	if conn == nil {
		t.mu.Unlock()
		return nil
	}
	if t.quitCh != nil {
		close(t.quitCh)
		t.quitCh = nil
	}
	t.mu.Unlock()

	err := conn.Close()
	t.wg.Wait()
	t.lgr.Info("disconnected from broker")
	return err
}

func (t *Transport) getConn() (*broker.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil, transport.ErrNotConnected
	}
	return t.conn, nil
}

func (t *Transport) readLoop(conn *broker.Conn) {
	defer t.wg.Done()
	defer t.teardown(conn)

	for {
		envelope, err := conn.Receive(context.Background())
		if err != nil {
			if err != broker.ErrConnClosed {
				t.lgr.Warn("broker connection lost", "err", err)
			}
			return
		}

		switch msg := envelope.Message.(type) {
		case *wire.Delivery:
			t.deliver(msg)
		case *wire.SubAck:
			t.ack(msg.Topic)
		case *wire.Ping:
			t.lgr.Trace("received ping")
		default:
			t.lgr.Warn("unexpected message from broker", "message_type", envelope.MessageType)
		}
	}
}

func (t *Transport) pingLoop(conn *broker.Conn, quitCh chan struct{}) {
	defer t.wg.Done()
	tick := time.NewTicker(t.pingInterval)
	defer tick.Stop()
	for {
		select {
		case <-tick.C:
			if err := conn.TrySend(wire.NewPing()); err != nil {
				t.lgr.Debug("failed to send ping", "err", err)
			}
		case <-conn.CloseChan():
			return
		case <-quitCh:
			return
		}
	}
}

func (t *Transport) deliver(msg *wire.Delivery) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for sub := range t.subs[msg.Topic] {
		select {
		case sub.ch <- msg.Payload:
		default:
			t.lgr.Warn("subscription buffer full, dropping message", "topic", msg.Topic)
		}
	}
}

func (t *Transport) ack(topic string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	pending := t.acks[topic]
	if len(pending) == 0 {
		return
	}
	close(pending[0])
	if len(pending) == 1 {
		delete(t.acks, topic)
		return
	}
	t.acks[topic] = pending[1:]
}

// teardown closes every subscription once the connection is gone.
func (t *Transport) teardown(conn *broker.Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn != conn {
		return
	}
	for _, subs := range t.subs {
		for sub := range subs {
			sub.closeCh()
		}
	}
	t.subs = make(map[string]map[*subscription]struct{})
	t.acks = make(map[string][]chan struct{})
	t.conn = nil
}

type subscription struct {
	owner *Transport
	topic string
	ch    chan []byte
	once  sync.Once
}

func (s *subscription) Topic() string {
	return s.topic
}

func (s *subscription) Messages() <-chan []byte {
	return s.ch
}

// Close stops local delivery. The broker is told to unsubscribe once the
// last local subscription to the topic goes away.
func (s *subscription) Close() error {
	t := s.owner
	t.mu.Lock()
	subs, ok := t.subs[s.topic]
	if !ok {
		t.mu.Unlock()
		return nil
	}
	if _, ok := subs[s]; !ok {
		t.mu.Unlock()
		return nil
	}
	delete(subs, s)
	last := len(subs) == 0
	if last {
		delete(t.subs, s.topic)
	}
	conn := t.conn
	s.closeCh()
	t.mu.Unlock()

	if last && conn != nil {
		if err := conn.TrySend(&wire.Unsubscribe{Topic: s.topic}); err != nil {
			return errors.Wrap(transport.ErrTransport, err.Error())
		}
	}
	return nil
}

func (s *subscription) closeCh() {
	s.once.Do(func() {
		close(s.ch)
	})
}
