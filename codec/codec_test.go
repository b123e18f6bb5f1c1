package codec

import (
	"bytes"
	"encoding/hex"
	"io"
	"math"
	"reflect"
	"runtime"
	"testing"

	"ptstream/dwire"
	"ptstream/token"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func scenarioCodec(t *testing.T) *Codec {
	reg, err := LoadRegistry(DefaultCatalog(), []HandlerPair{
		{token.TypeInt, "IntHandler"},
		{token.TypeString, "StringHandler"},
	})
	require.NoError(t, err)
	return New(reg)
}

func TestCodec_Scenario(t *testing.T) {
	c := scenarioCodec(t)

	var buf bytes.Buffer
	require.NoError(t, c.Encode(&buf, token.Int(42)))
	require.Equal(t, "0000"+"0000002a", hex.EncodeToString(buf.Bytes()))
	decoded, err := c.Decode(&buf)
	require.NoError(t, err)
	require.Equal(t, token.Int(42), decoded)

	buf.Reset()
	require.NoError(t, c.Encode(&buf, token.String("hi")))
	require.Equal(t, "0001"+"02"+"6869", hex.EncodeToString(buf.Bytes()))
	decoded, err = c.Decode(&buf)
	require.NoError(t, err)
	require.Equal(t, token.String("hi"), decoded)
}

func TestCodec_RoundTrip(t *testing.T) {
	c := New(Default())
	tokens := []token.Token{
		token.Int(0),
		token.Int(math.MinInt32),
		token.Int(math.MaxInt32),
		token.Long(math.MinInt64),
		token.Long(1 << 40),
		token.Double(0),
		token.Double(-1.25),
		token.Double(math.Inf(1)),
		token.Double(math.NaN()),
		token.Double(math.SmallestNonzeroFloat64),
		token.Boolean(true),
		token.Boolean(false),
		token.String(""),
		token.String("héllo, wörld"),
		token.NewArray(),
		token.NewArray(token.Int(1), token.String("two"), token.NewArray(token.Double(3))),
		token.NewRecord(map[string]token.Token{}),
		token.NewRecord(map[string]token.Token{
			"x":    token.Double(1.5),
			"name": token.String("sensor"),
			"hist": token.NewArray(token.Long(1), token.Long(2)),
		}),
		token.Ping{Timestamp: 1700000000000},
		token.Pong{Timestamp: 1700000000001},
	}
	for _, tok := range tokens {
		t.Run(tok.TypeName()+"/"+tok.String(), func(t *testing.T) {
			frame, err := c.EncodeFrame(tok)
			require.NoError(t, err)
			r := bytes.NewReader(frame)
			decoded, err := c.Decode(r)
			require.NoError(t, err)
			require.True(t, tok.Equals(decoded), "expected %s, got %s", tok, decoded)
			require.Equal(t, reflect.TypeOf(tok), reflect.TypeOf(decoded))
			require.Zero(t, r.Len(), "decoder must consume exactly the encoded bytes")
		})
	}
}

func TestCodec_UnknownTypeWritesNothing(t *testing.T) {
	c := scenarioCodec(t)
	var buf bytes.Buffer
	err := c.Encode(&buf, token.Double(1))
	require.True(t, errors.Is(err, ErrUnknownType))
	require.Zero(t, buf.Len())

	err = c.Encode(&buf, nil)
	require.True(t, errors.Is(err, ErrUnknownType))

	err = c.Encode(&buf, token.NewArray(token.Int(1), token.Double(2)))
	require.True(t, errors.Is(err, ErrUnknownType))
	require.Zero(t, buf.Len())
}

type failingHandler struct{}

func (failingHandler) EncodeToken(c *Codec, w io.Writer, t token.Token) error {
	_, _ = w.Write([]byte{0xde, 0xad})
	return errors.New("boom")
}

func (failingHandler) DecodeToken(c *Codec, r io.Reader) (token.Token, error) {
	return nil, errors.New("boom")
}

func TestCodec_FailingHandlerLeavesNoDanglingTag(t *testing.T) {
	reg, err := NewRegistry(Entry{Type: reflect.TypeOf(token.Int(0)), Handler: failingHandler{}})
	require.NoError(t, err)
	c := New(reg)

	var buf bytes.Buffer
	require.Error(t, c.Encode(&buf, token.Int(1)))
	require.Zero(t, buf.Len())

	_, err = c.Decode(bytes.NewReader([]byte{0x00, 0x00}))
	require.True(t, errors.Is(err, ErrMalformedPayload))
}

func TestCodec_InvalidTag(t *testing.T) {
	c := scenarioCodec(t)
	_, err := c.Decode(bytes.NewReader([]byte{0x00, 0x02, 0x00}))
	require.True(t, errors.Is(err, ErrInvalidTag))

	_, err = c.Decode(bytes.NewReader([]byte{0xff, 0xff}))
	require.True(t, errors.Is(err, ErrInvalidTag))
}

func TestCodec_NestedInvalidTag(t *testing.T) {
	c := New(Default())
	frame, err := c.EncodeFrame(token.NewArray(token.Int(7)))
	require.NoError(t, err)
	// rewrite the element's tag to one past the registry
	frame[3] = 0x00
	frame[4] = byte(Default().Len())
	_, err = c.Decode(bytes.NewReader(frame))
	require.True(t, errors.Is(err, ErrInvalidTag))
}

func TestCodec_Malformed(t *testing.T) {
	c := New(Default())
	tests := []struct {
		name string
		in   string
	}{
		{"truncated tag", "00"},
		{"truncated int", "0000" + "0000"},
		{"truncated string", "0004" + "05" + "6869"},
		{"bad boolean", "0003" + "07"},
		{"array missing element", "0005" + "02" + "0000" + "00000001"},
		{"duplicate record label", "0006" + "02" + "0161" + "0003" + "01" + "0161" + "0003" + "00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := hex.DecodeString(tt.in)
			require.NoError(t, err)
			_, err = c.Decode(bytes.NewReader(b))
			require.True(t, errors.Is(err, ErrMalformedPayload), "got %v", err)
		})
	}
}

func TestCodec_Limits(t *testing.T) {
	c := New(Default()).WithLimits(&dwire.ConfiguredEncoder{
		MaxVariableArrayLen: 2,
		MaxByteFieldLen:     4,
	})
	_, err := c.EncodeFrame(token.NewArray(token.Int(1), token.Int(2), token.Int(3)))
	require.Error(t, err)

	frame, err := New(Default()).EncodeFrame(token.String("too long"))
	require.NoError(t, err)
	_, err = c.Decode(bytes.NewReader(frame))
	require.True(t, errors.Is(err, ErrMalformedPayload))
}

func nestedArrays(depth int) token.Token {
	var t token.Token = token.Int(1)
	for i := 0; i < depth; i++ {
		t = token.NewArray(t)
	}
	return t
}

func TestCodec_MaxDepth(t *testing.T) {
	c := New(Default()).WithMaxDepth(4)

	frame, err := c.EncodeFrame(nestedArrays(4))
	require.NoError(t, err)
	decoded, err := c.Decode(bytes.NewReader(frame))
	require.NoError(t, err)
	require.True(t, nestedArrays(4).Equals(decoded))

	frame, err = c.EncodeFrame(nestedArrays(5))
	require.NoError(t, err)
	_, err = c.Decode(bytes.NewReader(frame))
	require.True(t, errors.Is(err, ErrMalformedPayload), "got %v", err)

	frame, err = c.EncodeFrame(nestedArrays(DefaultMaxDepth + 1))
	require.NoError(t, err)
	_, err = New(Default()).Decode(bytes.NewReader(frame))
	require.True(t, errors.Is(err, ErrMalformedPayload), "got %v", err)
}

// allocatedBy reports the bytes allocated while running fn.
func allocatedBy(fn func()) uint64 {
	var before, after runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&before)
	fn()
	runtime.ReadMemStats(&after)
	return after.TotalAlloc - before.TotalAlloc
}

func TestCodec_HostileCountsStayCheap(t *testing.T) {
	c := New(Default())
	// array tag followed by a count of 65536 and no elements
	header := []byte{0x00, 0x05, 0x80, 0x80, 0x04}
	var chain []byte
	for i := 0; i < 300; i++ {
		chain = append(chain, header...)
	}

	var err error
	alloc := allocatedBy(func() {
		_, err = c.DecodeBatch(chain)
	})
	require.True(t, errors.Is(err, ErrMalformedPayload), "got %v", err)
	require.Less(t, alloc, uint64(1<<20))

	// record tag with the same count
	record := []byte{0x00, 0x06, 0x80, 0x80, 0x04}
	alloc = allocatedBy(func() {
		_, err = c.Decode(bytes.NewReader(header))
	})
	require.True(t, errors.Is(err, ErrMalformedPayload), "got %v", err)
	require.Less(t, alloc, uint64(64<<10))
	alloc = allocatedBy(func() {
		_, err = c.Decode(bytes.NewReader(record))
	})
	require.True(t, errors.Is(err, ErrMalformedPayload), "got %v", err)
	require.Less(t, alloc, uint64(64<<10))
}

func TestCodec_NilCompositeRejected(t *testing.T) {
	c := New(Default())
	for _, tok := range []token.Token{(*token.Array)(nil), (*token.Record)(nil)} {
		require.NotPanics(t, func() {
			_, err := c.EncodeFrame(tok)
			require.Error(t, err)
		})
		var buf bytes.Buffer
		require.NotPanics(t, func() {
			require.Error(t, c.Encode(&buf, tok))
		})
		require.Zero(t, buf.Len())
	}
}

func TestCodec_BatchPreservesOrder(t *testing.T) {
	c := New(Default())
	in := []token.Token{token.Int(1), token.String("v2"), token.Double(3)}
	b, err := c.EncodeBatch(in)
	require.NoError(t, err)

	out, err := c.DecodeBatch(b)
	require.NoError(t, err)
	require.Len(t, out, 3)
	for i := range in {
		require.True(t, in[i].Equals(out[i]))
	}

	out, err = c.DecodeBatch(nil)
	require.NoError(t, err)
	require.Empty(t, out)

	out, err = c.DecodeBatch(append(b, 0x00))
	require.True(t, errors.Is(err, ErrMalformedPayload))
	require.Len(t, out, 3)
}
