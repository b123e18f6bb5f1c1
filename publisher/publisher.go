package publisher

import (
	"bytes"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"ptstream/codec"
	"ptstream/log"
	"ptstream/metrics"
	"ptstream/token"
	"ptstream/transport"
	"ptstream/util"

	"github.com/pkg/errors"
)

const (
	DefaultPeriod = 100 * time.Millisecond
	DefaultBudget = 100
)

var ErrClosed = errors.New("publisher closed")

type State int32

const (
	// Idle means the batch is empty.
	Idle State = iota
	// Accumulating means the batch holds frames waiting for the period to
	// elapse.
	Accumulating
	// Flushing means the batch is being handed to the transport.
	Flushing
	// Throttling means the producer is blocked to shed excess rate.
	Throttling
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Accumulating:
		return "accumulating"
	case Flushing:
		return "flushing"
	case Throttling:
		return "throttling"
	default:
		return "unknown"
	}
}

// DropHandler is notified, asynchronously, of every batch lost to a
// transport failure.
type DropHandler func(topic string, frames int, err error)

type Opts struct {
	Transport transport.Transport
	Codec     *codec.Codec
	Topic     string
	Period    time.Duration
	Budget    int

	// Now and Sleep default to the wall clock and a cancellable timer.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// Publisher batches encoded tokens and flushes them to a transport at most
// once per period. When more than Budget tokens were offered in a period the
// producer is blocked for a time proportional to the overage.
//
// Offer, Flush and Close are safe for concurrent use. A throttled producer
// holds the publisher, so every producer sharing it is slowed down.
type Publisher struct {
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	transport transport.Transport
	codec     *codec.Codec
	topic     string
	period    time.Duration
	budget    int

	mu        sync.Mutex
	batch     bytes.Buffer
	count     int
	lastFlush time.Time
	state     int32

	obs       *util.Observable
	closeCh   chan struct{}
	closeOnce sync.Once
	closed    int32

	frames  uint64
	flushes uint64
	drops   uint64

	lgr log.Logger
}

func New(opts *Opts) *Publisher {
	period := opts.Period
	if period <= 0 {
		period = DefaultPeriod
	}
	budget := opts.Budget
	if budget <= 0 {
		budget = DefaultBudget
	}

	p := &Publisher{
		now:       opts.Now,
		sleep:     opts.Sleep,
		transport: opts.Transport,
		codec:     opts.Codec,
		topic:     opts.Topic,
		period:    period,
		budget:    budget,
		obs:       util.NewObservable(),
		closeCh:   make(chan struct{}),
		lgr:       log.WithModule("publisher").Sub("topic", opts.Topic),
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.sleep == nil {
		p.sleep = p.sleepTimer
	}
	p.lastFlush = p.now()
	return p
}

func (p *Publisher) Topic() string {
	return p.topic
}

func (p *Publisher) State() State {
	return State(atomic.LoadInt32(&p.state))
}

// Stats returns the number of tokens accepted, batches flushed and batches
// dropped since the publisher was created.
func (p *Publisher) Stats() (uint64, uint64, uint64) {
	return atomic.LoadUint64(&p.frames), atomic.LoadUint64(&p.flushes), atomic.LoadUint64(&p.drops)
}

func (p *Publisher) AddDropHandler(hdlr DropHandler) util.Unsubscriber {
	return p.obs.On(util.EventDrop, hdlr)
}

// Offer encodes t into the current batch and flushes the batch if the
// period has elapsed. An unencodable token is rejected with
// codec.ErrUnknownType and leaves the batch untouched.
//
// A transport failure during the flush is not returned: the batch is
// dropped, logged, counted and reported to drop handlers. Use Flush to
// observe transport errors directly. Offer returns an error from ctx if the
// caller is cancelled while throttled.
func (p *Publisher) Offer(ctx context.Context, t token.Token) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.isClosed() {
		return ErrClosed
	}

	frame, err := p.codec.EncodeFrame(t)
	if err != nil {
		return err
	}
	p.batch.Write(frame)
	p.count++
	atomic.AddUint64(&p.frames, 1)
	metrics.PublisherFrames.WithLabelValues(p.topic).Inc()
	p.setState(Accumulating)

	if p.now().Sub(p.lastFlush) < p.period {
		return nil
	}

	_, sleepErr := p.flushLocked(ctx)
	if sleepErr == ErrClosed {
		return nil
	}
	return sleepErr
}

// Flush publishes the current batch regardless of the period and returns
// the transport's error, if any. The batch is cleared either way.
func (p *Publisher) Flush(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	pubErr, sleepErr := p.flushLocked(ctx)
	if pubErr != nil {
		return pubErr
	}
	return sleepErr
}

// Close flushes whatever is buffered and rejects further offers. A producer
// blocked in a throttle delay is released.
func (p *Publisher) Close(ctx context.Context) error {
	p.closeOnce.Do(func() {
		atomic.StoreInt32(&p.closed, 1)
		close(p.closeCh)
	})

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.count == 0 {
		return nil
	}
	pubErr, _ := p.flushLocked(ctx)
	return pubErr
}

func (p *Publisher) flushLocked(ctx context.Context) (pubErr error, sleepErr error) {
	count := p.count
	if count > 0 {
		p.setState(Flushing)
		pubErr = p.publish(ctx, count)
	}

	if count > p.budget {
		p.setState(Throttling)
		delay := p.throttleDelay(count)
		p.lgr.Debug("rate budget exceeded, throttling", "count", count, "budget", p.budget, "delay", delay)
		started := time.Now()
		sleepErr = p.sleep(ctx, delay)
		metrics.PublisherThrottleSeconds.WithLabelValues(p.topic).Add(time.Since(started).Seconds())
	}

	p.batch.Reset()
	p.count = 0
	p.lastFlush = p.now()
	p.setState(Idle)
	return pubErr, sleepErr
}

func (p *Publisher) publish(ctx context.Context, count int) error {
	payload := make([]byte, p.batch.Len())
	copy(payload, p.batch.Bytes())
	err := p.transport.Publish(ctx, p.topic, payload)
	if err == nil {
		atomic.AddUint64(&p.flushes, 1)
		metrics.PublisherFlushes.WithLabelValues(p.topic).Inc()
		metrics.PublisherBatchBytes.WithLabelValues(p.topic).Observe(float64(len(payload)))
		p.lgr.Trace("flushed batch", "frames", count, "bytes", len(payload))
		return nil
	}

	if !errors.Is(err, transport.ErrTransport) {
		err = errors.Wrap(transport.ErrTransport, err.Error())
	}
	atomic.AddUint64(&p.drops, 1)
	metrics.PublisherDroppedBatches.WithLabelValues(p.topic).Inc()
	metrics.PublisherDroppedFrames.WithLabelValues(p.topic).Add(float64(count))
	p.lgr.Error("failed to publish batch, dropping", "frames", count, "err", err)
	p.obs.Emit(util.EventDrop, p.topic, count, err)
	return err
}

// throttleDelay is (count - budget) / budget periods.
func (p *Publisher) throttleDelay(count int) time.Duration {
	return time.Duration(int64(p.period) * int64(count-p.budget) / int64(p.budget))
}

func (p *Publisher) sleepTimer(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.closeCh:
		return ErrClosed
	}
}

func (p *Publisher) setState(s State) {
	atomic.StoreInt32(&p.state, int32(s))
}

func (p *Publisher) isClosed() bool {
	return atomic.LoadInt32(&p.closed) == 1
}
