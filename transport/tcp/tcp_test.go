package tcp

import (
	"context"
	"fmt"
	"testing"
	"time"

	"ptstream/broker"
	"ptstream/testutil"
	"ptstream/transport"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func startBroker(t *testing.T) (*broker.Broker, string) {
	port := testutil.RandFreePort(t)
	b := broker.New(&broker.Opts{Host: "127.0.0.1", Port: port})
	go b.Start()
	require.Eventually(t, func() bool {
		return b.Addr() != nil
	}, time.Second, time.Millisecond)
	return b, fmt.Sprintf("127.0.0.1:%d", port)
}

func connect(t *testing.T, addr string) *Transport {
	tr := New(Opts{Addr: addr})
	require.NoError(t, tr.Connect(context.Background()))
	return tr
}

func receive(t *testing.T, sub transport.Subscription) []byte {
	select {
	case msg, ok := <-sub.Messages():
		require.True(t, ok)
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func TestTransport_PublishSubscribe(t *testing.T) {
	b, addr := startBroker(t)
	defer b.Stop()

	ctx := context.Background()
	subTr := connect(t, addr)
	defer subTr.Disconnect()
	pubTr := connect(t, addr)
	defer pubTr.Disconnect()

	sub1, err := subTr.Subscribe(ctx, "model")
	require.NoError(t, err)
	sub2, err := subTr.Subscribe(ctx, "model")
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		require.NoError(t, pubTr.Publish(ctx, "model", []byte{0x00, byte(i)}))
	}
	for i := 0; i < 10; i++ {
		require.Equal(t, []byte{0x00, byte(i)}, receive(t, sub1))
		require.Equal(t, []byte{0x00, byte(i)}, receive(t, sub2))
	}

	// the broker keeps the topic until the last local subscription closes
	require.NoError(t, sub1.Close())
	_, ok := <-sub1.Messages()
	require.False(t, ok)
	require.Equal(t, 1, b.Status().Topics)
	require.NoError(t, sub2.Close())
	require.Eventually(t, func() bool {
		return b.Status().Topics == 0
	}, time.Second, time.Millisecond)
}

func TestTransport_NotConnected(t *testing.T) {
	tr := New(Opts{Addr: "127.0.0.1:1"})
	require.True(t, errors.Is(tr.Publish(context.Background(), "m", nil), transport.ErrNotConnected))
	_, err := tr.Subscribe(context.Background(), "m")
	require.True(t, errors.Is(err, transport.ErrNotConnected))
	require.NoError(t, tr.Disconnect())
}

func TestTransport_DialFailure(t *testing.T) {
	tr := New(Opts{Addr: fmt.Sprintf("127.0.0.1:%d", testutil.RandFreePort(t)), DialTimeout: 100 * time.Millisecond})
	err := tr.Connect(context.Background())
	require.True(t, errors.Is(err, transport.ErrTransport))
}

func TestTransport_InvalidTopic(t *testing.T) {
	b, addr := startBroker(t)
	defer b.Stop()
	tr := connect(t, addr)
	defer tr.Disconnect()

	require.True(t, errors.Is(tr.Publish(context.Background(), "", nil), transport.ErrTransport))
	_, err := tr.Subscribe(context.Background(), "")
	require.True(t, errors.Is(err, transport.ErrTransport))
}

func TestTransport_BrokerShutdownClosesSubscriptions(t *testing.T) {
	b, addr := startBroker(t)
	tr := connect(t, addr)
	defer tr.Disconnect()

	sub, err := tr.Subscribe(context.Background(), "model")
	require.NoError(t, err)
	require.NoError(t, b.Stop())

	select {
	case _, ok := <-sub.Messages():
		require.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("subscription not closed")
	}
	require.Eventually(t, func() bool {
		return errors.Is(tr.Publish(context.Background(), "model", nil), transport.ErrNotConnected)
	}, time.Second, time.Millisecond)
}

func TestTransport_Reconnect(t *testing.T) {
	b, addr := startBroker(t)
	defer b.Stop()

	tr := connect(t, addr)
	require.NoError(t, tr.Disconnect())
	require.NoError(t, tr.Disconnect())
	require.NoError(t, tr.Connect(context.Background()))
	defer tr.Disconnect()

	sub, err := tr.Subscribe(context.Background(), "model")
	require.NoError(t, err)
	require.NoError(t, tr.Publish(context.Background(), "model", []byte{0x07}))
	require.Equal(t, []byte{0x07}, receive(t, sub))
}
