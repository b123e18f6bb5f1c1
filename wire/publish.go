package wire

import (
	"bytes"
	"io"

	"ptstream/dwire"
)

// Publish asks the broker to fan Payload out to every subscriber of Topic.
type Publish struct {
	Topic   string
	Payload []byte
}

var _ Message = (*Publish)(nil)

func (p *Publish) MsgType() MessageType {
	return MessageTypePublish
}

func (p *Publish) Equals(other Message) bool {
	cast, ok := other.(*Publish)
	return ok && p.Topic == cast.Topic && bytes.Equal(p.Payload, cast.Payload)
}

func (p *Publish) Encode(w io.Writer) error {
	return dwire.EncodeFields(w, p.Topic, p.Payload)
}

func (p *Publish) Decode(r io.Reader) error {
	if err := decodeTopic(r, &p.Topic); err != nil {
		return err
	}
	return dwire.DecodeField(r, &p.Payload)
}

// Delivery carries a published payload from the broker to a subscriber.
type Delivery struct {
	Topic   string
	Payload []byte
}

var _ Message = (*Delivery)(nil)

func (d *Delivery) MsgType() MessageType {
	return MessageTypeDelivery
}

func (d *Delivery) Equals(other Message) bool {
	cast, ok := other.(*Delivery)
	return ok && d.Topic == cast.Topic && bytes.Equal(d.Payload, cast.Payload)
}

func (d *Delivery) Encode(w io.Writer) error {
	return dwire.EncodeFields(w, d.Topic, d.Payload)
}

func (d *Delivery) Decode(r io.Reader) error {
	if err := decodeTopic(r, &d.Topic); err != nil {
		return err
	}
	return dwire.DecodeField(r, &d.Payload)
}
