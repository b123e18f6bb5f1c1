package broker

import (
	"bufio"
	"context"
	"io"
	"math"
	"net"
	"sync"
	"time"

	"ptstream/log"
	"ptstream/metrics"
	"ptstream/wire"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

var (
	ErrConnSendBufferFull = errors.New("connection send buffer full")
	ErrConnRecvBufferFull = errors.New("connection receive buffer full")
	ErrConnClosed         = errors.New("connection closed")
	ErrConnHangup         = errors.New("remote hung up")
)

const (
	DefaultRecvRateLimit      = 256
	DefaultRecvRateLimitBurst = 512
	MaxPacketSize             = 5 * 1024 * 1024
	ConnDeadline              = time.Minute
	sendBufferLen             = 128
)

// Conn frames wire envelopes over a stream connection. Writes happen on a
// dedicated goroutine; reads happen on another, one envelope per Receive
// call, rate limited to DefaultRecvRateLimit envelopes per second.
type Conn struct {
	conn  net.Conn
	connW *CountingWriter
	connR *CountingReader
	lim   *rate.Limiter
	lgr   log.Logger

	sendCh        chan *sendReq
	recvCh        chan *recvReq
	sendDoneCh    chan struct{}
	recvDoneCh    chan struct{}
	closeCh       chan struct{}
	closeMu       sync.Mutex
	closeReason   error
	closeReasonMu sync.Mutex
}

type sendReq struct {
	envelope *wire.Envelope
	errCh    chan error
}

type recvReq struct {
	envelopeCh chan *wire.Envelope
	errCh      chan error
}

func NewConn(conn net.Conn) *Conn {
	c := &Conn{
		conn:       conn,
		connW:      NewCountingWriter(conn).WithCounter(metrics.BrokerBytes.WithLabelValues("tx")),
		connR:      NewCountingReader(bufio.NewReader(conn)).WithCounter(metrics.BrokerBytes.WithLabelValues("rx")),
		lim:        rate.NewLimiter(DefaultRecvRateLimit, DefaultRecvRateLimitBurst),
		sendCh:     make(chan *sendReq, sendBufferLen),
		recvCh:     make(chan *recvReq, sendBufferLen),
		sendDoneCh: make(chan struct{}, 1),
		recvDoneCh: make(chan struct{}, 1),
		closeCh:    make(chan struct{}),
		lgr:        log.WithModule("conn").Sub("remote_addr", conn.RemoteAddr()),
	}
	go c.send()
	go c.recv()
	return c
}

// Send writes msg and waits for the write to complete.
func (c *Conn) Send(ctx context.Context, msg wire.Message) error {
	select {
	case <-c.closeCh:
		return c.CloseReason()
	default:
	}

	errCh := make(chan error, 1)
	req := &sendReq{
		envelope: wire.NewEnvelope(wire.Magic, msg),
		errCh:    errCh,
	}
	if err := c.bufferSendCtx(ctx, req); err != nil {
		return err
	}

	select {
	case err := <-errCh:
		return err
	case <-c.closeCh:
		return c.CloseReason()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrySend queues msg without waiting. It fails with ErrConnSendBufferFull
// when the connection is backed up.
func (c *Conn) TrySend(msg wire.Message) error {
	select {
	case <-c.closeCh:
		return c.CloseReason()
	default:
	}

	req := &sendReq{
		envelope: wire.NewEnvelope(wire.Magic, msg),
		errCh:    make(chan error, 1),
	}
	select {
	case c.sendCh <- req:
		return nil
	default:
		return ErrConnSendBufferFull
	}
}

func (c *Conn) Receive(ctx context.Context) (*wire.Envelope, error) {
	select {
	case <-c.closeCh:
		return nil, c.CloseReason()
	default:
	}

	envelopeCh := make(chan *wire.Envelope, 1)
	errCh := make(chan error, 1)
	req := &recvReq{
		envelopeCh: envelopeCh,
		errCh:      errCh,
	}

	select {
	case c.recvCh <- req:
	default:
		return nil, ErrConnRecvBufferFull
	}

	select {
	case envelope := <-envelopeCh:
		return envelope, nil
	case err := <-errCh:
		return nil, err
	case <-c.closeCh:
		return nil, c.CloseReason()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Conn) CloseChan() <-chan struct{} {
	return c.closeCh
}

func (c *Conn) Close() error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()

	select {
	case <-c.closeCh:
		return nil
	default:
	}

	c.closeReasonMu.Lock()
	if c.closeReason == nil {
		c.closeReason = ErrConnClosed
	}
	c.closeReasonMu.Unlock()
	_ = c.conn.Close()
	close(c.closeCh)
	<-c.recvDoneCh
	<-c.sendDoneCh
	return nil
}

func (c *Conn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// BandwidthUsage returns the bytes written and read.
func (c *Conn) BandwidthUsage() (uint64, uint64) {
	return c.connW.Count(), c.connR.Count()
}

func (c *Conn) CloseReason() error {
	c.closeReasonMu.Lock()
	defer c.closeReasonMu.Unlock()
	return c.closeReason
}

func (c *Conn) send() {
	defer func() {
		c.sendDoneCh <- struct{}{}
		_ = c.Close()
	}()

	for {
		select {
		case req := <-c.sendCh:
			c.updateDeadline()
			if err := req.envelope.Encode(c.connW); err != nil {
				req.errCh <- c.setCloseReason(err)
				return
			}
			req.errCh <- nil
			c.lgr.Trace("sent message", "message_type", req.envelope.MessageType)
		case <-c.closeCh:
			return
		}
	}
}

func (c *Conn) recv() {
	defer func() {
		c.recvDoneCh <- struct{}{}
		_ = c.Close()
	}()

	for {
		select {
		case req := <-c.recvCh:
			rv := c.lim.Reserve()
			if delay := rv.Delay(); delay > 0 {
				time.Sleep(delay)
			}
			c.updateDeadline()
			envelope := new(wire.Envelope)
			if err := envelope.Decode(io.LimitReader(c.connR, MaxPacketSize)); err != nil {
				req.errCh <- c.setCloseReason(err)
				return
			}

			c.lgr.Trace("received message", "message_type", envelope.MessageType)
			req.envelopeCh <- envelope
		case <-c.closeCh:
			return
		}
	}
}

func (c *Conn) setCloseReason(err error) error {
	c.closeReasonMu.Lock()
	defer c.closeReasonMu.Unlock()
	if c.closeReason != nil {
		return c.closeReason
	}
	if err == nil {
		return nil
	}
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		c.closeReason = ErrConnHangup
	} else {
		c.closeReason = err
	}
	return c.closeReason
}

func (c *Conn) updateDeadline() {
	_ = c.conn.SetDeadline(time.Now().Add(ConnDeadline))
}

func (c *Conn) bufferSendCtx(ctx context.Context, req *sendReq) error {
	var retries int
	for {
		if retries > 10 {
			return ErrConnSendBufferFull
		}

		timer := time.NewTimer(time.Duration(int(math.Pow(2, float64(retries)))) * time.Millisecond)
		select {
		case c.sendCh <- req:
			timer.Stop()
			return nil
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			retries++
			continue
		}
	}
}
