package wire

import (
	"io"

	"ptstream/dwire"
)

// Message is one broker protocol packet body.
type Message interface {
	dwire.EncodeDecoder
	MsgType() MessageType
	Equals(other Message) bool
}

type MessageType uint16

const (
	MessageTypeSubscribe MessageType = iota
	MessageTypeSubAck
	MessageTypeUnsubscribe
	MessageTypePublish
	MessageTypeDelivery
	MessageTypePing
)

func (t MessageType) String() string {
	switch t {
	case MessageTypeSubscribe:
		return "Subscribe"
	case MessageTypeSubAck:
		return "SubAck"
	case MessageTypeUnsubscribe:
		return "Unsubscribe"
	case MessageTypePublish:
		return "Publish"
	case MessageTypeDelivery:
		return "Delivery"
	case MessageTypePing:
		return "Ping"
	default:
		return "unknown"
	}
}

func (t MessageType) Encode(w io.Writer) error {
	return dwire.EncodeField(w, uint16(t))
}

func (t *MessageType) Decode(r io.Reader) error {
	var decoded uint16
	if err := dwire.DecodeField(r, &decoded); err != nil {
		return err
	}
	*t = MessageType(decoded)
	return nil
}

// Ping has no body. Clients send it to keep their read deadline from
// expiring and the broker echoes it back.
type Ping struct{}

var _ Message = (*Ping)(nil)

func NewPing() *Ping { return &Ping{} }

func (*Ping) MsgType() MessageType { return MessageTypePing }

func (*Ping) Equals(other Message) bool {
	_, ok := other.(*Ping)
	return ok
}

func (*Ping) Encode(io.Writer) error { return nil }

func (*Ping) Decode(io.Reader) error { return nil }
