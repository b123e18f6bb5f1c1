package wire

import (
	"io"

	"ptstream/dwire"

	"github.com/pkg/errors"
)

const MaxTopicLen = 255

var ErrInvalidTopic = errors.New("invalid topic")

// ValidateTopic rejects empty topics and topics longer than MaxTopicLen
// bytes.
func ValidateTopic(topic string) error {
	if len(topic) == 0 {
		return errors.Wrap(ErrInvalidTopic, "topic is empty")
	}
	if len(topic) > MaxTopicLen {
		return errors.Wrapf(ErrInvalidTopic, "topic longer than %d bytes", MaxTopicLen)
	}
	return nil
}

type Subscribe struct {
	Topic string
}

var _ Message = (*Subscribe)(nil)

func (s *Subscribe) MsgType() MessageType {
	return MessageTypeSubscribe
}

func (s *Subscribe) Equals(other Message) bool {
	cast, ok := other.(*Subscribe)
	return ok && s.Topic == cast.Topic
}

func (s *Subscribe) Encode(w io.Writer) error {
	return dwire.EncodeField(w, s.Topic)
}

func (s *Subscribe) Decode(r io.Reader) error {
	return decodeTopic(r, &s.Topic)
}

// SubAck confirms that a subscription is in place. Deliveries for the topic
// may follow it.
type SubAck struct {
	Topic string
}

var _ Message = (*SubAck)(nil)

func (s *SubAck) MsgType() MessageType {
	return MessageTypeSubAck
}

func (s *SubAck) Equals(other Message) bool {
	cast, ok := other.(*SubAck)
	return ok && s.Topic == cast.Topic
}

func (s *SubAck) Encode(w io.Writer) error {
	return dwire.EncodeField(w, s.Topic)
}

func (s *SubAck) Decode(r io.Reader) error {
	return decodeTopic(r, &s.Topic)
}

type Unsubscribe struct {
	Topic string
}

var _ Message = (*Unsubscribe)(nil)

func (u *Unsubscribe) MsgType() MessageType {
	return MessageTypeUnsubscribe
}

func (u *Unsubscribe) Equals(other Message) bool {
	cast, ok := other.(*Unsubscribe)
	return ok && u.Topic == cast.Topic
}

func (u *Unsubscribe) Encode(w io.Writer) error {
	return dwire.EncodeField(w, u.Topic)
}

func (u *Unsubscribe) Decode(r io.Reader) error {
	return decodeTopic(r, &u.Topic)
}

func decodeTopic(r io.Reader, topic *string) error {
	if err := dwire.DecodeField(r, topic); err != nil {
		return err
	}
	return ValidateTopic(*topic)
}
