package wire

import (
	"bytes"
	"io"

	"ptstream/dwire"

	"github.com/pkg/errors"
)

// Magic identifies a ptstream broker connection.
const Magic uint32 = 0x70747374

var (
	ErrInvalidMagic       = errors.New("envelope has invalid magic")
	ErrInvalidMessageType = errors.New("invalid message type")
)

type Envelope struct {
	Magic       uint32
	MessageType MessageType
	Message     Message
}

func NewEnvelope(magic uint32, message Message) *Envelope {
	return &Envelope{
		Magic:       magic,
		MessageType: message.MsgType(),
		Message:     message,
	}
}

func (e *Envelope) Equals(other *Envelope) bool {
	return e.Magic == other.Magic &&
		e.MessageType == other.MessageType &&
		e.Message.Equals(other.Message)
}

func (e *Envelope) Encode(w io.Writer) error {
	var buf bytes.Buffer
	if err := e.Message.Encode(&buf); err != nil {
		return err
	}

	return dwire.EncodeFields(
		w,
		e.Magic,
		e.MessageType,
		buf.Bytes(),
	)
}

func (e *Envelope) Decode(r io.Reader) error {
	var msgBuf []byte
	err := dwire.DecodeFields(
		r,
		&e.Magic,
		&e.MessageType,
		&msgBuf,
	)
	if err != nil {
		return err
	}
	if e.Magic != Magic {
		return ErrInvalidMagic
	}

	var msg Message
	switch e.MessageType {
	case MessageTypeSubscribe:
		msg = &Subscribe{}
	case MessageTypeSubAck:
		msg = &SubAck{}
	case MessageTypeUnsubscribe:
		msg = &Unsubscribe{}
	case MessageTypePublish:
		msg = &Publish{}
	case MessageTypeDelivery:
		msg = &Delivery{}
	case MessageTypePing:
		msg = &Ping{}
	default:
		return errors.Wrapf(ErrInvalidMessageType, "%d", e.MessageType)
	}

	if err := msg.Decode(bytes.NewReader(msgBuf)); err != nil {
		return err
	}
	e.Message = msg
	return nil
}
