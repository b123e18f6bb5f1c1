// Package transport defines the pub/sub collaborator that carries encoded
// token batches between processes.
package transport

import (
	"context"

	"github.com/pkg/errors"
)

var (
	// ErrTransport wraps every failure a transport reports to its callers.
	ErrTransport = errors.New("transport failure")

	ErrNotConnected = errors.Wrap(ErrTransport, "not connected")
)

// Transport is a best-effort, at-most-once publish/subscribe channel. A
// published payload is delivered as one message; message boundaries are
// preserved.
type Transport interface {
	Connect(ctx context.Context) error
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(ctx context.Context, topic string) (Subscription, error)
	Disconnect() error
}

// Subscription delivers the payloads published to one topic. The channel
// is closed when the subscription or its transport is closed.
type Subscription interface {
	Topic() string
	Messages() <-chan []byte
	Close() error
}
