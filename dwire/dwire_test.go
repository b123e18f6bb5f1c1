package dwire

import (
	"bytes"
	"encoding/hex"
	"errors"
	"io"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

type cafeEncodeDecoder struct {
	data []byte
}

func (c *cafeEncodeDecoder) Decode(r io.Reader) error {
	buf := make([]byte, 2)
	if _, err := io.ReadFull(r, buf); err != nil {
		return err
	}
	if !bytes.Equal(buf, []byte{0xca, 0xfe}) {
		return errors.New("invalid cafe decode")
	}
	c.data = buf
	return nil
}

func (c *cafeEncodeDecoder) Encode(w io.Writer) error {
	_, err := w.Write([]byte{0xca, 0xfe})
	return err
}

func TestEncodeFields(t *testing.T) {
	var buf bytes.Buffer
	err := EncodeFields(
		&buf,
		&cafeEncodeDecoder{},
		true,
		uint8(1),
		uint16(2),
		uint32(3),
		uint64(4),
		int32(-1),
		int64(-2),
		1.5,
		[]byte{0xff, 0x00},
		"hi",
	)
	require.NoError(t, err)
	require.Equal(
		t,
		"cafe"+
			"01"+
			"01"+
			"0002"+
			"00000003"+
			"0000000000000004"+
			"ffffffff"+
			"fffffffffffffffe"+
			"3ff8000000000000"+
			"02ff00"+
			"026869",
		hex.EncodeToString(buf.Bytes()),
	)

	var cafe cafeEncodeDecoder
	var b bool
	var u8 uint8
	var u16 uint16
	var u32 uint32
	var u64 uint64
	var i32 int32
	var i64 int64
	var f float64
	var bs []byte
	var s string
	require.NoError(t, DecodeFields(
		bytes.NewReader(buf.Bytes()),
		&cafe, &b, &u8, &u16, &u32, &u64, &i32, &i64, &f, &bs, &s,
	))
	require.Equal(t, []byte{0xca, 0xfe}, cafe.data)
	require.True(t, b)
	require.EqualValues(t, 1, u8)
	require.EqualValues(t, 2, u16)
	require.EqualValues(t, 3, u32)
	require.EqualValues(t, 4, u64)
	require.EqualValues(t, -1, i32)
	require.EqualValues(t, -2, i64)
	require.Equal(t, 1.5, f)
	require.Equal(t, []byte{0xff, 0x00}, bs)
	require.Equal(t, "hi", s)
}

func TestDecodeField_Errors(t *testing.T) {
	var b bool
	require.Error(t, DecodeField(bytes.NewReader([]byte{0x02}), &b))

	var u32 uint32
	require.Equal(t, io.ErrUnexpectedEOF, DecodeField(bytes.NewReader([]byte{0x00, 0x01}), &u32))

	var s string
	require.Equal(t, io.EOF, DecodeField(bytes.NewReader(nil), &s))

	var unsupported complex64
	require.Error(t, DecodeField(bytes.NewReader([]byte{0x00}), &unsupported))
	require.Error(t, EncodeField(&bytes.Buffer{}, unsupported))
}

func TestLimits(t *testing.T) {
	enc := &ConfiguredEncoder{
		MaxVariableArrayLen: 2,
		MaxByteFieldLen:     4,
	}

	var buf bytes.Buffer
	require.Error(t, enc.EncodeField(&buf, "too long"))
	require.Error(t, enc.EncodeLen(&buf, 3))
	require.NoError(t, EncodeLen(&buf, 3))
	_, err := enc.DecodeLen(bytes.NewReader(buf.Bytes()))
	require.Error(t, err)

	buf.Reset()
	require.NoError(t, EncodeField(&buf, "too long"))
	var s string
	require.Error(t, enc.DecodeField(bytes.NewReader(buf.Bytes()), &s))

	buf.Reset()
	require.NoError(t, EncodeField(&buf, math.Inf(-1)))
	var f float64
	require.NoError(t, DecodeField(&buf, &f))
	require.True(t, math.IsInf(f, -1))
}
