package session

import (
	"context"
	"encoding/hex"
	"sync"
	"testing"
	"time"

	"ptstream/codec"
	"ptstream/journal"
	"ptstream/publisher"
	"ptstream/testutil/mockapp"
	"ptstream/token"
	"ptstream/transport"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

const testTopic = "session-test"

type collector struct {
	mu     sync.Mutex
	tokens []token.Token
}

func (c *collector) Handle(topic string, t token.Token) {
	c.mu.Lock()
	c.tokens = append(c.tokens, t)
	c.mu.Unlock()
}

func (c *collector) Tokens() []token.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]token.Token, len(c.tokens))
	copy(out, c.tokens)
	return out
}

func newTestReceiver(t *testing.T, bus *transport.MemoryBus, opts *ReceiverOpts) *Receiver {
	tr := bus.Transport()
	require.NoError(t, tr.Connect(context.Background()))
	opts.Transport = tr
	if opts.Codec == nil {
		opts.Codec = codec.New(codec.Default())
	}
	if opts.Topic == "" {
		opts.Topic = testTopic
	}
	return NewReceiver(opts)
}

func mustHex(t *testing.T, s string) []byte {
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

func TestReceiver_DeliversInOrder(t *testing.T) {
	ctx := context.Background()
	bus := transport.NewMemoryBus()
	col := new(collector)
	r := newTestReceiver(t, bus, &ReceiverOpts{Handler: col.Handle})
	require.NoError(t, r.Subscribe(ctx))

	errCh := make(chan error, 1)
	go func() {
		errCh <- r.Start()
	}()

	c := codec.New(codec.Default())
	pubTr := bus.Transport()
	require.NoError(t, pubTr.Connect(ctx))
	first, err := c.EncodeBatch([]token.Token{token.Int(42), token.String("hi")})
	require.NoError(t, err)
	second, err := c.EncodeBatch([]token.Token{token.Ping{Timestamp: 1}, token.Boolean(true)})
	require.NoError(t, err)
	require.NoError(t, pubTr.Publish(ctx, testTopic, first))
	require.NoError(t, pubTr.Publish(ctx, testTopic, second))

	require.Eventually(t, func() bool {
		return len(col.Tokens()) == 3
	}, time.Second, time.Millisecond)
	got := col.Tokens()
	require.True(t, token.Int(42).Equals(got[0]))
	require.True(t, token.String("hi").Equals(got[1]))
	require.True(t, token.Boolean(true).Equals(got[2]))

	batches, tokens, decodeErrs := r.Stats()
	require.EqualValues(t, 2, batches)
	require.EqualValues(t, 3, tokens)
	require.EqualValues(t, 0, decodeErrs)

	require.NoError(t, r.Stop())
	require.NoError(t, <-errCh)
}

func TestReceiver_BadFrameAbandonsRestOfBatch(t *testing.T) {
	ctx := context.Background()
	bus := transport.NewMemoryBus()
	col := new(collector)
	r := newTestReceiver(t, bus, &ReceiverOpts{Handler: col.Handle})

	errCh := make(chan error, 1)
	r.AddDecodeErrorHandler(func(topic string, err error) {
		errCh <- err
	})

	// "hi", then an out of range tag, then an int that must not be delivered
	r.HandleBatch(ctx, mustHex(t, "0001026869"+"ffff"+"00000000002a"))
	require.Len(t, col.Tokens(), 1)
	require.True(t, token.String("hi").Equals(col.Tokens()[0]))
	require.True(t, errors.Is(<-errCh, codec.ErrInvalidTag))

	r.HandleBatch(ctx, mustHex(t, "000000"))
	require.True(t, errors.Is(<-errCh, codec.ErrMalformedPayload))

	_, _, decodeErrs := r.Stats()
	require.EqualValues(t, 2, decodeErrs)
}

func TestReceiver_Journal(t *testing.T) {
	ctx := context.Background()
	db, done := mockapp.CreateTestDB(t)
	defer done()

	bus := transport.NewMemoryBus()
	r := newTestReceiver(t, bus, &ReceiverOpts{Journal: db})
	require.NoError(t, r.Subscribe(ctx))

	schema, err := journal.LatestSchema(db, testTopic)
	require.NoError(t, err)
	require.Equal(t, codec.Default().Fingerprint(), schema.Fingerprint)

	r.HandleBatch(ctx, mustHex(t, "00000000002a"))
	r.HandleBatch(ctx, mustHex(t, "ffff"))

	stream, err := journal.Stream(db, testTopic, 0)
	require.NoError(t, err)
	defer stream.Close()
	b, err := stream.Next()
	require.NoError(t, err)
	require.EqualValues(t, 1, b.Seq)
	require.Equal(t, mustHex(t, "00000000002a"), b.Payload)
	b, err = stream.Next()
	require.NoError(t, err)
	require.EqualValues(t, 2, b.Seq)
	b, err = stream.Next()
	require.NoError(t, err)
	require.Nil(t, b)
}

func TestReceiver_PingPong(t *testing.T) {
	ctx := context.Background()
	bus := transport.NewMemoryBus()

	pongTr := bus.Transport()
	require.NoError(t, pongTr.Connect(ctx))
	pongs, err := pongTr.Subscribe(ctx, "pongs")
	require.NoError(t, err)

	c := codec.New(codec.Default())
	ponger := publisher.New(&publisher.Opts{
		Transport: pongTr,
		Codec:     c,
		Topic:     "pongs",
		Period:    time.Nanosecond,
	})
	r := newTestReceiver(t, bus, &ReceiverOpts{Codec: c, Ponger: ponger})

	before := r.LastPing()
	time.Sleep(time.Millisecond)
	batch, err := c.EncodeBatch([]token.Token{token.Ping{Timestamp: 77}})
	require.NoError(t, err)
	r.HandleBatch(ctx, batch)
	require.True(t, r.LastPing().After(before))

	select {
	case msg := <-pongs.Messages():
		tokens, err := c.DecodeBatch(msg)
		require.NoError(t, err)
		require.Len(t, tokens, 1)
		require.True(t, token.Pong{Timestamp: 77}.Equals(tokens[0]))
	case <-time.After(time.Second):
		t.Fatal("no pong published")
	}

	rtt, at := r.RoundTrip()
	require.Zero(t, rtt)
	require.True(t, at.IsZero())

	sentAt := time.Now().Add(-50*time.Millisecond).UnixNano() / int64(time.Millisecond)
	batch, err = c.EncodeBatch([]token.Token{token.Pong{Timestamp: sentAt}})
	require.NoError(t, err)
	r.HandleBatch(ctx, batch)
	rtt, at = r.RoundTrip()
	require.True(t, rtt >= 49*time.Millisecond)
	require.False(t, at.IsZero())

	_, tokens, _ := r.Stats()
	require.EqualValues(t, 0, tokens)
}

func TestReceiver_SubscriptionClosed(t *testing.T) {
	bus := transport.NewMemoryBus()
	r := newTestReceiver(t, bus, &ReceiverOpts{})
	require.NoError(t, r.Subscribe(context.Background()))

	errCh := make(chan error, 1)
	go func() {
		errCh <- r.Start()
	}()
	require.NoError(t, r.transport.Disconnect())
	require.Equal(t, ErrSubscriptionClosed, <-errCh)
}

func TestReceiver_SubscribeNotConnected(t *testing.T) {
	r := NewReceiver(&ReceiverOpts{
		Transport: transport.NewMemoryBus().Transport(),
		Codec:     codec.New(codec.Default()),
		Topic:     testTopic,
	})
	require.True(t, errors.Is(r.Start(), transport.ErrNotConnected))
}
