package session

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"ptstream/codec"
	"ptstream/publisher"
	"ptstream/token"
	"ptstream/transport"

	"github.com/stretchr/testify/require"
)

func TestReceiver_WatchExpiry(t *testing.T) {
	bus := transport.NewMemoryBus()
	r := newTestReceiver(t, bus, &ReceiverOpts{})

	notified := make(chan time.Time, 1)
	r.AddExpiryHandler(func(topic string, lastPing time.Time) {
		require.Equal(t, testTopic, topic)
		notified <- lastPing
	})

	var expiries int32
	ctx, cancel := context.WithCancel(context.Background())
	doneCh := make(chan error, 1)
	go func() {
		doneCh <- r.WatchExpiry(ctx, 40*time.Millisecond, func(topic string, lastPing time.Time) {
			atomic.AddInt32(&expiries, 1)
		})
	}()

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&expiries) == 1
	}, time.Second, time.Millisecond)
	<-notified

	// stays expired without re-notifying
	time.Sleep(100 * time.Millisecond)
	require.EqualValues(t, 1, atomic.LoadInt32(&expiries))

	// a ping re-arms the watch
	c := codec.New(codec.Default())
	batch, err := c.EncodeBatch([]token.Token{token.Ping{Timestamp: 1}})
	require.NoError(t, err)
	r.HandleBatch(context.Background(), batch)
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&expiries) == 2
	}, time.Second, time.Millisecond)

	cancel()
	require.Equal(t, context.Canceled, <-doneCh)
}

func TestPinger_KeepsReceiverAlive(t *testing.T) {
	ctx := context.Background()
	bus := transport.NewMemoryBus()
	r := newTestReceiver(t, bus, &ReceiverOpts{})
	require.NoError(t, r.Subscribe(ctx))
	go r.Start()
	defer r.Stop()

	pubTr := bus.Transport()
	require.NoError(t, pubTr.Connect(ctx))
	pub := publisher.New(&publisher.Opts{
		Transport: pubTr,
		Codec:     codec.New(codec.Default()),
		Topic:     testTopic,
		Period:    time.Hour,
	})
	pinger := NewPinger(pub)
	pinger.Interval = 5 * time.Millisecond
	go pinger.Start()

	start := r.LastPing()
	require.Eventually(t, func() bool {
		return pinger.Sent() >= 3 && r.LastPing().After(start)
	}, time.Second, time.Millisecond)

	var expiries int32
	watchCtx, cancel := context.WithTimeout(ctx, 150*time.Millisecond)
	defer cancel()
	_ = r.WatchExpiry(watchCtx, 50*time.Millisecond, func(string, time.Time) {
		atomic.AddInt32(&expiries, 1)
	})
	require.EqualValues(t, 0, atomic.LoadInt32(&expiries))

	require.NoError(t, pinger.Stop())
}

func TestPinger_StopsWhenPublisherCloses(t *testing.T) {
	tr := transport.NewMemoryBus().Transport()
	require.NoError(t, tr.Connect(context.Background()))
	pub := publisher.New(&publisher.Opts{
		Transport: tr,
		Codec:     codec.New(codec.Default()),
		Topic:     testTopic,
	})
	require.NoError(t, pub.Close(context.Background()))

	pinger := NewPinger(pub)
	pinger.Interval = time.Millisecond
	require.NoError(t, pinger.Start())
	require.EqualValues(t, 0, pinger.Sent())
}
