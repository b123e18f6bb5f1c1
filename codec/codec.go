package codec

import (
	"bytes"
	"encoding/binary"
	"io"
	"reflect"

	"ptstream/dwire"
	"ptstream/token"

	"github.com/pkg/errors"
)

// TagSize is the number of bytes preceding every frame's payload.
const TagSize = 2

// DefaultMaxDepth bounds how deeply arrays and records may nest when
// decoding.
const DefaultMaxDepth = 32

// Codec encodes tokens as frames: a big-endian uint16 tag identifying the
// handler, followed by the handler's payload. There is no length prefix;
// each handler knows how many bytes it consumes.
type Codec struct {
	registry *Registry
	enc      *dwire.ConfiguredEncoder
	maxDepth int
}

func New(registry *Registry) *Codec {
	return &Codec{
		registry: registry,
		enc:      dwire.Default(),
		maxDepth: DefaultMaxDepth,
	}
}

// WithLimits returns a codec that bounds decoded string/byte lengths and
// element counts with enc.
func (c *Codec) WithLimits(enc *dwire.ConfiguredEncoder) *Codec {
	return &Codec{
		registry: c.registry,
		enc:      enc,
		maxDepth: c.maxDepth,
	}
}

// WithMaxDepth returns a codec that rejects frames nested more than depth
// levels below the top-level frame.
func (c *Codec) WithMaxDepth(depth int) *Codec {
	return &Codec{
		registry: c.registry,
		enc:      c.enc,
		maxDepth: depth,
	}
}

func (c *Codec) Registry() *Registry {
	return c.registry
}

// Encode writes one frame for t. If t's type has no handler nothing is
// written. The frame is staged and written with a single call, so a failing
// handler never leaves a dangling tag in w.
func (c *Codec) Encode(w io.Writer, t token.Token) error {
	frame, err := c.EncodeFrame(t)
	if err != nil {
		return err
	}
	_, err = w.Write(frame)
	return err
}

// EncodeFrame returns the frame for t.
func (c *Codec) EncodeFrame(t token.Token) ([]byte, error) {
	entry, err := c.registry.HandlerFor(reflect.TypeOf(t))
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	var tag [TagSize]byte
	binary.BigEndian.PutUint16(tag[:], entry.Tag)
	buf.Write(tag[:])
	if err := entry.Handler.EncodeToken(c, &buf, t); err != nil {
		return nil, errors.Wrapf(err, "error encoding %s token", entry.TypeName)
	}
	return buf.Bytes(), nil
}

// Decode reads one frame. It returns io.EOF, unwrapped, only when r is
// exhausted exactly at a frame boundary.
func (c *Codec) Decode(r io.Reader) (token.Token, error) {
	var tag [TagSize]byte
	if _, err := io.ReadFull(r, tag[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, errors.Wrap(ErrMalformedPayload, "truncated frame tag")
	}

	entry, err := c.registry.HandlerAt(binary.BigEndian.Uint16(tag[:]))
	if err != nil {
		return nil, err
	}
	t, err := entry.Handler.DecodeToken(c, r)
	if err != nil {
		if errors.Is(err, ErrInvalidTag) || errors.Is(err, ErrMalformedPayload) {
			return nil, err
		}
		return nil, errors.Wrapf(ErrMalformedPayload, "%s payload: %v", entry.TypeName, err)
	}
	return t, nil
}

// nestedReader carries the nesting depth of the frame being decoded from
// it. Handlers pass it back into decodeNested unchanged.
type nestedReader struct {
	io.Reader
	depth int
}

// decodeNested decodes a frame inside another handler's payload, where
// running out of input is always an error.
func (c *Codec) decodeNested(r io.Reader) (token.Token, error) {
	depth := 1
	if nr, ok := r.(*nestedReader); ok {
		depth = nr.depth + 1
		r = nr.Reader
	}
	if depth > c.maxDepth {
		return nil, errors.Wrapf(ErrMalformedPayload, "nesting exceeds %d levels", c.maxDepth)
	}
	t, err := c.Decode(&nestedReader{Reader: r, depth: depth})
	if err == io.EOF {
		return nil, errors.Wrap(ErrMalformedPayload, "missing nested frame")
	}
	return t, err
}

// EncodeBatch concatenates the frames of tokens in order. A batch carries no
// header; the transport message boundary delimits it.
func (c *Codec) EncodeBatch(tokens []token.Token) ([]byte, error) {
	var buf bytes.Buffer
	for i, t := range tokens {
		if err := c.Encode(&buf, t); err != nil {
			return nil, errors.Wrapf(err, "batch element %d", i)
		}
	}
	return buf.Bytes(), nil
}

// DecodeBatch decodes every frame in b. The first bad frame aborts the batch
// since nothing after it can be framed reliably.
func (c *Codec) DecodeBatch(b []byte) ([]token.Token, error) {
	r := bytes.NewReader(b)
	var out []token.Token
	for {
		t, err := c.Decode(r)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, errors.Wrapf(err, "frame %d at offset %d", len(out), len(b)-r.Len())
		}
		out = append(out, t)
	}
}
