// Package session connects a remote observer to a token stream: it decodes
// incoming batches and tracks the liveness of the model on the other end.
package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"ptstream/codec"
	"ptstream/journal"
	"ptstream/log"
	"ptstream/metrics"
	"ptstream/publisher"
	"ptstream/service"
	"ptstream/token"
	"ptstream/transport"
	"ptstream/util"

	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
)

var ErrSubscriptionClosed = errors.New("subscription closed")

// TokenHandler receives decoded tokens in stream order, on the receiver's
// goroutine.
type TokenHandler func(topic string, t token.Token)

type ReceiverOpts struct {
	Transport transport.Transport
	Codec     *codec.Codec
	Topic     string
	Handler   TokenHandler

	// Journal, when set, records every raw batch before it is decoded.
	Journal *leveldb.DB
	// Ponger, when set, answers every ping with a pong carrying the ping's
	// timestamp.
	Ponger *publisher.Publisher
}

// Receiver subscribes to one topic and feeds the decoded tokens to its
// handler. Ping and Pong tokens are consumed for liveness tracking and are
// not delivered.
type Receiver struct {
	transport transport.Transport
	codec     *codec.Codec
	topic     string
	handler   TokenHandler
	db        *leveldb.DB
	ponger    *publisher.Publisher

	mu  sync.Mutex
	sub transport.Subscription

	lastPing  int64
	lastPong  int64
	rtt       int64
	batches   uint64
	tokens    uint64
	decodeErr uint64

	obs    *util.Observable
	quitCh chan struct{}
	once   sync.Once
	lgr    log.Logger
}

var _ service.Service = (*Receiver)(nil)

func NewReceiver(opts *ReceiverOpts) *Receiver {
	handler := opts.Handler
	if handler == nil {
		handler = func(string, token.Token) {}
	}
	return &Receiver{
		transport: opts.Transport,
		codec:     opts.Codec,
		topic:     opts.Topic,
		handler:   handler,
		db:        opts.Journal,
		ponger:    opts.Ponger,
		lastPing:  time.Now().UnixNano(),
		obs:       util.NewObservable(),
		quitCh:    make(chan struct{}),
		lgr:       log.WithModule("receiver").Sub("topic", opts.Topic),
	}
}

func (r *Receiver) Topic() string {
	return r.topic
}

// Subscribe attaches the receiver to its topic and, when journaling,
// records the codec's schema. Start calls it if it has not been called.
func (r *Receiver) Subscribe(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sub != nil {
		return nil
	}

	if r.db != nil {
		if err := journal.SetSchema(r.db, r.topic, r.codec.Registry()); err != nil {
			return errors.Wrap(err, "error recording schema")
		}
	}
	sub, err := r.transport.Subscribe(ctx, r.topic)
	if err != nil {
		return err
	}
	r.sub = sub
	atomic.StoreInt64(&r.lastPing, time.Now().UnixNano())
	r.lgr.Info("subscribed")
	return nil
}

// Start processes batches until Stop is called or the subscription ends.
func (r *Receiver) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-r.quitCh:
			cancel()
		case <-ctx.Done():
		}
	}()
	if err := r.Subscribe(ctx); err != nil {
		return err
	}

	r.mu.Lock()
	sub := r.sub
	r.mu.Unlock()

	for {
		select {
		case payload, ok := <-sub.Messages():
			if !ok {
				select {
				case <-r.quitCh:
					return nil
				default:
				}
				return ErrSubscriptionClosed
			}
			r.HandleBatch(ctx, payload)
		case <-r.quitCh:
			return nil
		}
	}
}

func (r *Receiver) Stop() error {
	r.once.Do(func() {
		close(r.quitCh)
	})
	r.mu.Lock()
	sub := r.sub
	r.mu.Unlock()
	if sub == nil {
		return nil
	}
	return sub.Close()
}

// HandleBatch journals and decodes one batch. Tokens decoded before a bad
// frame are still delivered; the rest of the batch is abandoned.
func (r *Receiver) HandleBatch(ctx context.Context, payload []byte) {
	atomic.AddUint64(&r.batches, 1)
	metrics.ReceiverBatches.WithLabelValues(r.topic).Inc()

	if r.db != nil {
		if _, err := journal.Append(r.db, r.topic, time.Now(), payload); err != nil {
			r.lgr.Error("failed to journal batch", "err", err)
		}
	}

	tokens, err := r.codec.DecodeBatch(payload)
	for _, t := range tokens {
		r.deliver(ctx, t)
	}
	if err != nil {
		atomic.AddUint64(&r.decodeErr, 1)
		metrics.ReceiverDecodeErrors.WithLabelValues(r.topic).Inc()
		r.lgr.Warn("abandoning batch", "decoded", len(tokens), "bytes", len(payload), "err", err)
		r.obs.Emit(util.EventDecodeError, r.topic, err)
	}
}

func (r *Receiver) deliver(ctx context.Context, t token.Token) {
	switch tok := t.(type) {
	case token.Ping:
		atomic.StoreInt64(&r.lastPing, time.Now().UnixNano())
		if r.ponger != nil {
			if err := r.ponger.Offer(ctx, token.Pong{Timestamp: tok.Timestamp}); err != nil {
				r.lgr.Warn("failed to answer ping", "err", err)
			}
		}
		return
	case token.Pong:
		now := time.Now()
		atomic.StoreInt64(&r.lastPong, now.UnixNano())
		atomic.StoreInt64(&r.rtt, int64(now.Sub(time.Unix(0, tok.Timestamp*int64(time.Millisecond)))))
		return
	}

	atomic.AddUint64(&r.tokens, 1)
	metrics.ReceiverTokens.WithLabelValues(r.topic).Inc()
	r.handler(r.topic, t)
}

// LastPing returns when the last ping arrived, or when the receiver
// subscribed if none has.
func (r *Receiver) LastPing() time.Time {
	return time.Unix(0, atomic.LoadInt64(&r.lastPing))
}

// RoundTrip returns the latency measured from the last pong, and when that
// pong arrived. Both are zero until a pong is received.
func (r *Receiver) RoundTrip() (time.Duration, time.Time) {
	last := atomic.LoadInt64(&r.lastPong)
	if last == 0 {
		return 0, time.Time{}
	}
	return time.Duration(atomic.LoadInt64(&r.rtt)), time.Unix(0, last)
}

// Stats returns the batches received, tokens delivered and batches that
// failed to decode.
func (r *Receiver) Stats() (uint64, uint64, uint64) {
	return atomic.LoadUint64(&r.batches), atomic.LoadUint64(&r.tokens), atomic.LoadUint64(&r.decodeErr)
}

func (r *Receiver) AddDecodeErrorHandler(cb func(topic string, err error)) util.Unsubscriber {
	return r.obs.On(util.EventDecodeError, cb)
}

func (r *Receiver) AddExpiryHandler(cb func(topic string, lastPing time.Time)) util.Unsubscriber {
	return r.obs.On(util.EventExpired, cb)
}
