package codec

import (
	"io"
	"reflect"

	"ptstream/token"

	"github.com/pkg/errors"
)

// Handler converts tokens of exactly one runtime type to and from bytes.
// Each handler owns the framing of its own payload. The Codec is passed in
// so composite handlers can nest tagged frames.
type Handler interface {
	EncodeToken(c *Codec, w io.Writer, t token.Token) error
	DecodeToken(c *Codec, r io.Reader) (token.Token, error)
}

// TypedHandler is implemented by handlers that only accept one token type.
// LoadRegistry uses it to reject configurations pairing a type with the
// wrong handler.
type TypedHandler interface {
	Handler
	TokenType() reflect.Type
}

func wrongType(h Handler, t token.Token) error {
	return errors.Errorf("%T cannot encode %T", h, t)
}

type IntHandler struct{}

func (IntHandler) TokenType() reflect.Type { return reflect.TypeOf(token.Int(0)) }

func (h IntHandler) EncodeToken(c *Codec, w io.Writer, t token.Token) error {
	v, ok := t.(token.Int)
	if !ok {
		return wrongType(h, t)
	}
	return c.enc.EncodeField(w, int32(v))
}

func (IntHandler) DecodeToken(c *Codec, r io.Reader) (token.Token, error) {
	var v int32
	if err := c.enc.DecodeField(r, &v); err != nil {
		return nil, err
	}
	return token.Int(v), nil
}

type LongHandler struct{}

func (LongHandler) TokenType() reflect.Type { return reflect.TypeOf(token.Long(0)) }

func (h LongHandler) EncodeToken(c *Codec, w io.Writer, t token.Token) error {
	v, ok := t.(token.Long)
	if !ok {
		return wrongType(h, t)
	}
	return c.enc.EncodeField(w, int64(v))
}

func (LongHandler) DecodeToken(c *Codec, r io.Reader) (token.Token, error) {
	var v int64
	if err := c.enc.DecodeField(r, &v); err != nil {
		return nil, err
	}
	return token.Long(v), nil
}

type DoubleHandler struct{}

func (DoubleHandler) TokenType() reflect.Type { return reflect.TypeOf(token.Double(0)) }

func (h DoubleHandler) EncodeToken(c *Codec, w io.Writer, t token.Token) error {
	v, ok := t.(token.Double)
	if !ok {
		return wrongType(h, t)
	}
	return c.enc.EncodeField(w, float64(v))
}

func (DoubleHandler) DecodeToken(c *Codec, r io.Reader) (token.Token, error) {
	var v float64
	if err := c.enc.DecodeField(r, &v); err != nil {
		return nil, err
	}
	return token.Double(v), nil
}

type BooleanHandler struct{}

func (BooleanHandler) TokenType() reflect.Type { return reflect.TypeOf(token.Boolean(false)) }

func (h BooleanHandler) EncodeToken(c *Codec, w io.Writer, t token.Token) error {
	v, ok := t.(token.Boolean)
	if !ok {
		return wrongType(h, t)
	}
	return c.enc.EncodeField(w, bool(v))
}

func (BooleanHandler) DecodeToken(c *Codec, r io.Reader) (token.Token, error) {
	var v bool
	if err := c.enc.DecodeField(r, &v); err != nil {
		return nil, err
	}
	return token.Boolean(v), nil
}

// StringHandler writes a uvarint byte length followed by the UTF-8 bytes.
type StringHandler struct{}

func (StringHandler) TokenType() reflect.Type { return reflect.TypeOf(token.String("")) }

func (h StringHandler) EncodeToken(c *Codec, w io.Writer, t token.Token) error {
	v, ok := t.(token.String)
	if !ok {
		return wrongType(h, t)
	}
	return c.enc.EncodeField(w, string(v))
}

func (StringHandler) DecodeToken(c *Codec, r io.Reader) (token.Token, error) {
	var v string
	if err := c.enc.DecodeField(r, &v); err != nil {
		return nil, err
	}
	return token.String(v), nil
}

// ArrayHandler writes the element count followed by one full tagged frame
// per element, so arrays may hold mixed types.
type ArrayHandler struct{}

func (ArrayHandler) TokenType() reflect.Type { return reflect.TypeOf(&token.Array{}) }

func (h ArrayHandler) EncodeToken(c *Codec, w io.Writer, t token.Token) error {
	v, ok := t.(*token.Array)
	if !ok || v == nil {
		return wrongType(h, t)
	}
	if err := c.enc.EncodeLen(w, v.Len()); err != nil {
		return err
	}
	for i := 0; i < v.Len(); i++ {
		if err := c.Encode(w, v.At(i)); err != nil {
			return errors.Wrapf(err, "array element %d", i)
		}
	}
	return nil
}

func (ArrayHandler) DecodeToken(c *Codec, r io.Reader) (token.Token, error) {
	l, err := c.enc.DecodeLen(r)
	if err != nil {
		return nil, err
	}
	elems := make([]token.Token, 0, initialCap(l))
	for i := 0; i < l; i++ {
		elem, err := c.decodeNested(r)
		if err != nil {
			return nil, err
		}
		elems = append(elems, elem)
	}
	return token.NewArray(elems...), nil
}

// initialCap bounds preallocation by a count read off the wire. The count
// is only trusted as elements actually arrive.
func initialCap(n int) int {
	if n > maxPrealloc {
		return maxPrealloc
	}
	return n
}

const maxPrealloc = 64

// RecordHandler writes the field count followed by (label, tagged frame)
// pairs in sorted label order.
type RecordHandler struct{}

func (RecordHandler) TokenType() reflect.Type { return reflect.TypeOf(&token.Record{}) }

func (h RecordHandler) EncodeToken(c *Codec, w io.Writer, t token.Token) error {
	v, ok := t.(*token.Record)
	if !ok || v == nil {
		return wrongType(h, t)
	}
	if err := c.enc.EncodeLen(w, v.Len()); err != nil {
		return err
	}
	for _, label := range v.Labels() {
		field, _ := v.Get(label)
		if err := c.enc.EncodeField(w, label); err != nil {
			return err
		}
		if err := c.Encode(w, field); err != nil {
			return errors.Wrapf(err, "record field %s", label)
		}
	}
	return nil
}

func (RecordHandler) DecodeToken(c *Codec, r io.Reader) (token.Token, error) {
	l, err := c.enc.DecodeLen(r)
	if err != nil {
		return nil, err
	}
	fields := make(map[string]token.Token, initialCap(l))
	for i := 0; i < l; i++ {
		var label string
		if err := c.enc.DecodeField(r, &label); err != nil {
			return nil, err
		}
		if _, dup := fields[label]; dup {
			return nil, errors.Errorf("duplicate record label %q", label)
		}
		field, err := c.decodeNested(r)
		if err != nil {
			return nil, err
		}
		fields[label] = field
	}
	return token.NewRecord(fields), nil
}

type PingHandler struct{}

func (PingHandler) TokenType() reflect.Type { return reflect.TypeOf(token.Ping{}) }

func (h PingHandler) EncodeToken(c *Codec, w io.Writer, t token.Token) error {
	v, ok := t.(token.Ping)
	if !ok {
		return wrongType(h, t)
	}
	return c.enc.EncodeField(w, v.Timestamp)
}

func (PingHandler) DecodeToken(c *Codec, r io.Reader) (token.Token, error) {
	var ts int64
	if err := c.enc.DecodeField(r, &ts); err != nil {
		return nil, err
	}
	return token.Ping{Timestamp: ts}, nil
}

type PongHandler struct{}

func (PongHandler) TokenType() reflect.Type { return reflect.TypeOf(token.Pong{}) }

func (h PongHandler) EncodeToken(c *Codec, w io.Writer, t token.Token) error {
	v, ok := t.(token.Pong)
	if !ok {
		return wrongType(h, t)
	}
	return c.enc.EncodeField(w, v.Timestamp)
}

func (PongHandler) DecodeToken(c *Codec, r io.Reader) (token.Token, error) {
	var ts int64
	if err := c.enc.DecodeField(r, &ts); err != nil {
		return nil, err
	}
	return token.Pong{Timestamp: ts}, nil
}
