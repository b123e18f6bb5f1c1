package dwire

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/pkg/errors"
)

type byteReader struct {
	r   io.Reader
	buf []byte
}

func newByteReader(r io.Reader) *byteReader {
	return &byteReader{
		r:   r,
		buf: make([]byte, 1),
	}
}

func (r *byteReader) ReadByte() (byte, error) {
	_, err := io.ReadFull(r.r, r.buf)
	if err != nil {
		return 0, err
	}
	return r.buf[0], nil
}

// DecodeFields decodes each field in the variadic items argument from the
// Reader using the default Encoder. Items provided to DecodeFields
// must be pointer types.
func DecodeFields(r io.Reader, items ...interface{}) error {
	return defaultEncoder.DecodeFields(r, items...)
}

// DecodeField decodes the field in the item argument from the Reader using
// the default Encoder. The item provided to DecodeField must be a pointer type.
func DecodeField(r io.Reader, item interface{}) error {
	return defaultEncoder.DecodeField(r, item)
}

// DecodeLen reads a variable-length element count written by EncodeLen.
func DecodeLen(r io.Reader) (int, error) {
	return defaultEncoder.DecodeLen(r)
}

// DecodeFields decodes each field in the variadic items argument
// from the Reader. Items provided to DecodeFields must be pointer types.
func (c *ConfiguredEncoder) DecodeFields(r io.Reader, items ...interface{}) error {
	for _, item := range items {
		if err := c.DecodeField(r, item); err != nil {
			return err
		}
	}

	return nil
}

// DecodeField decodes the field in the item argument from the Reader. The item
// provided to DecodeField must be a pointer type.
func (c *ConfiguredEncoder) DecodeField(r io.Reader, item interface{}) error {
	switch it := item.(type) {
	case Decoder:
		return it.Decode(r)
	case *bool:
		b, err := readN(r, 1)
		if err != nil {
			return err
		}
		switch b[0] {
		case 0x00:
			*it = false
		case 0x01:
			*it = true
		default:
			return errors.Errorf("invalid boolean value: %x", b[0])
		}
	case *uint8:
		b, err := readN(r, 1)
		if err != nil {
			return err
		}
		*it = b[0]
	case *uint16:
		b, err := readN(r, 2)
		if err != nil {
			return err
		}
		*it = binary.BigEndian.Uint16(b)
	case *uint32:
		b, err := readN(r, 4)
		if err != nil {
			return err
		}
		*it = binary.BigEndian.Uint32(b)
	case *uint64:
		b, err := readN(r, 8)
		if err != nil {
			return err
		}
		*it = binary.BigEndian.Uint64(b)
	case *int32:
		var u uint32
		if err := c.DecodeField(r, &u); err != nil {
			return err
		}
		*it = int32(u)
	case *int64:
		var u uint64
		if err := c.DecodeField(r, &u); err != nil {
			return err
		}
		*it = int64(u)
	case *float64:
		var u uint64
		if err := c.DecodeField(r, &u); err != nil {
			return err
		}
		*it = math.Float64frombits(u)
	case *[]byte:
		l, err := binary.ReadUvarint(newByteReader(r))
		if err != nil {
			return err
		}
		if l > c.MaxByteFieldLen {
			return errors.New("byte-assignable field length too large to decode")
		}
		buf, err := readN(r, int(l))
		if err != nil {
			return err
		}
		*it = buf
	case *string:
		var buf []byte
		if err := c.DecodeField(r, &buf); err != nil {
			return err
		}
		*it = string(buf)
	default:
		return errors.Errorf("type %T cannot be decoded", item)
	}

	return nil
}

func (c *ConfiguredEncoder) DecodeLen(r io.Reader) (int, error) {
	l, err := binary.ReadUvarint(newByteReader(r))
	if err != nil {
		return 0, err
	}
	if l > c.MaxVariableArrayLen {
		return 0, errors.New("variable-length array too long to decode")
	}
	return int(l), nil
}

func readN(r io.Reader, n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
