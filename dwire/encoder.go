package dwire

import "io"

const (
	// DefaultMaxVariableArrayLen bounds array and record element counts.
	DefaultMaxVariableArrayLen = 64 * 1024
	// DefaultMaxByteFieldLen bounds strings and byte payloads. Broker packets
	// carry whole batches, so it sits below broker.MaxPacketSize.
	DefaultMaxByteFieldLen = 4 * 1024 * 1024
)

// Encoder writes its own field sequence. EncodeField calls it for values
// that implement it.
type Encoder interface {
	Encode(w io.Writer) error
}

// Decoder reads back what the matching Encoder wrote.
type Decoder interface {
	Decode(r io.Reader) error
}

type EncodeDecoder interface {
	Encoder
	Decoder
}

// ConfiguredEncoder carries the length limits applied while decoding.
// Lengths above a limit fail before any allocation.
type ConfiguredEncoder struct {
	MaxVariableArrayLen uint64
	MaxByteFieldLen     uint64
}

var defaultEncoder = &ConfiguredEncoder{
	MaxVariableArrayLen: DefaultMaxVariableArrayLen,
	MaxByteFieldLen:     DefaultMaxByteFieldLen,
}

func Default() *ConfiguredEncoder {
	return defaultEncoder
}
