package dwire

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/pkg/errors"
)

// EncodeFields encodes each item in order using the default Encoder.
func EncodeFields(w io.Writer, items ...interface{}) error {
	return defaultEncoder.EncodeFields(w, items...)
}

// EncodeField encodes a single item using the default Encoder.
func EncodeField(w io.Writer, item interface{}) error {
	return defaultEncoder.EncodeField(w, item)
}

// EncodeLen writes a variable-length element count.
func EncodeLen(w io.Writer, l int) error {
	return defaultEncoder.EncodeLen(w, l)
}

func (c *ConfiguredEncoder) EncodeFields(w io.Writer, items ...interface{}) error {
	for _, item := range items {
		if err := c.EncodeField(w, item); err != nil {
			return err
		}
	}
	return nil
}

func (c *ConfiguredEncoder) EncodeField(w io.Writer, item interface{}) error {
	var buf []byte
	switch it := item.(type) {
	case Encoder:
		return it.Encode(w)
	case bool:
		buf = []byte{0x00}
		if it {
			buf[0] = 0x01
		}
	case uint8:
		buf = []byte{it}
	case uint16:
		buf = make([]byte, 2)
		binary.BigEndian.PutUint16(buf, it)
	case uint32:
		buf = make([]byte, 4)
		binary.BigEndian.PutUint32(buf, it)
	case uint64:
		buf = make([]byte, 8)
		binary.BigEndian.PutUint64(buf, it)
	case int32:
		return c.EncodeField(w, uint32(it))
	case int64:
		return c.EncodeField(w, uint64(it))
	case float64:
		return c.EncodeField(w, math.Float64bits(it))
	case []byte:
		if uint64(len(it)) > c.MaxByteFieldLen {
			return errors.New("byte-assignable field length too large to encode")
		}
		if err := c.writeUvarint(w, uint64(len(it))); err != nil {
			return err
		}
		buf = it
	case string:
		return c.EncodeField(w, []byte(it))
	default:
		return errors.Errorf("type %T cannot be encoded", item)
	}

	_, err := w.Write(buf)
	return err
}

func (c *ConfiguredEncoder) EncodeLen(w io.Writer, l int) error {
	if l < 0 || uint64(l) > c.MaxVariableArrayLen {
		return errors.New("variable-length array too long to encode")
	}
	return c.writeUvarint(w, uint64(l))
}

func (c *ConfiguredEncoder) writeUvarint(w io.Writer, v uint64) error {
	buf := make([]byte, binary.MaxVarintLen64)
	n := binary.PutUvarint(buf, v)
	_, err := w.Write(buf[:n])
	return err
}
