package testutil

import (
	"io"
	"net"
	"testing"
	"time"

	"ptstream/wire"

	"github.com/stretchr/testify/require"
)

const receiveTimeout = 5 * time.Second

// RandFreePort returns a loopback port that was free when checked.
func RandFreePort(t *testing.T) int {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

// SendMessage writes msg to w in a broker envelope.
func SendMessage(t *testing.T, w io.Writer, msg wire.Message) {
	require.NoError(t, wire.NewEnvelope(wire.Magic, msg).Encode(w))
}

// ReceiveEnvelope reads one broker envelope from r. Connections get a read
// deadline so a missing reply fails the test instead of hanging it.
func ReceiveEnvelope(t *testing.T, r io.Reader) *wire.Envelope {
	if conn, ok := r.(net.Conn); ok {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(receiveTimeout)))
		defer conn.SetReadDeadline(time.Time{})
	}
	envelope := new(wire.Envelope)
	require.NoError(t, envelope.Decode(r))
	return envelope
}
