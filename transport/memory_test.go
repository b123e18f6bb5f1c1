package transport

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, sub Subscription) []byte {
	select {
	case msg, ok := <-sub.Messages():
		require.True(t, ok, "subscription closed")
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func TestMemoryTransport_FanOut(t *testing.T) {
	ctx := context.Background()
	bus := NewMemoryBus()
	pub := bus.Transport()
	subA := bus.Transport()
	subB := bus.Transport()
	for _, tr := range []*MemoryTransport{pub, subA, subB} {
		require.NoError(t, tr.Connect(ctx))
	}

	a, err := subA.Subscribe(ctx, "model")
	require.NoError(t, err)
	b, err := subB.Subscribe(ctx, "model")
	require.NoError(t, err)
	other, err := subB.Subscribe(ctx, "other")
	require.NoError(t, err)

	payload := []byte{0x00, 0x01}
	require.NoError(t, pub.Publish(ctx, "model", payload))
	payload[0] = 0xff
	require.Equal(t, []byte{0x00, 0x01}, receive(t, a))
	require.Equal(t, []byte{0x00, 0x01}, receive(t, b))
	require.Len(t, other.Messages(), 0)

	require.NoError(t, subB.Disconnect())
	_, ok := <-b.Messages()
	require.False(t, ok)
	require.NoError(t, a.Close())
	require.NoError(t, pub.Publish(ctx, "model", payload))
}

func TestMemoryTransport_Errors(t *testing.T) {
	ctx := context.Background()
	tr := NewMemoryBus().Transport()
	require.True(t, errors.Is(tr.Publish(ctx, "t", nil), ErrTransport))
	_, err := tr.Subscribe(ctx, "t")
	require.True(t, errors.Is(err, ErrNotConnected))

	require.NoError(t, tr.Connect(ctx))
	tr.SetFailPublish(errors.New("broker unreachable"))
	require.True(t, errors.Is(tr.Publish(ctx, "t", nil), ErrTransport))
}

func TestMemoryBus_SlowSubscriberDrops(t *testing.T) {
	ctx := context.Background()
	bus := NewMemoryBus()
	bus.BufferLen = 1
	tr := bus.Transport()
	require.NoError(t, tr.Connect(ctx))
	sub, err := tr.Subscribe(ctx, "t")
	require.NoError(t, err)

	require.NoError(t, tr.Publish(ctx, "t", []byte{1}))
	require.NoError(t, tr.Publish(ctx, "t", []byte{2}))
	require.Equal(t, []byte{1}, receive(t, sub))
	require.Len(t, sub.Messages(), 0)
}
