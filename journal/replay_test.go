package journal

import (
	"testing"
	"time"

	"ptstream/codec"
	"ptstream/token"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestReplay_FollowsSchemaChanges(t *testing.T) {
	db, done := setupLevelDB(t)
	defer done()

	full := codec.New(codec.Default())
	small, err := codec.LoadRegistry(codec.DefaultCatalog(), []codec.HandlerPair{
		{TypeName: token.TypeString, HandlerName: "StringHandler"},
		{TypeName: token.TypeInt, HandlerName: "IntHandler"},
	})
	require.NoError(t, err)
	smallCodec := codec.New(small)

	appendBatch := func(c *codec.Codec, tokens ...token.Token) {
		payload, err := c.EncodeBatch(tokens)
		require.NoError(t, err)
		_, err = Append(db, "m", time.Now(), payload)
		require.NoError(t, err)
	}

	require.NoError(t, SetSchema(db, "m", full.Registry()))
	appendBatch(full, token.Int(1), token.String("a"))
	appendBatch(full, token.Double(2.5))
	require.NoError(t, SetSchema(db, "m", small))
	appendBatch(smallCodec, token.String("b"), token.Int(3))

	var got [][]token.Token
	err = Replay(db, "m", 0, codec.DefaultCatalog(), nil, func(b *Batch, tokens []token.Token, err error) error {
		require.NoError(t, err)
		got = append(got, tokens)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, [][]token.Token{
		{token.Int(1), token.String("a")},
		{token.Double(2.5)},
		{token.String("b"), token.Int(3)},
	}, got)
}

func TestReplay_DecodeErrorKeepsPrefix(t *testing.T) {
	db, done := setupLevelDB(t)
	defer done()

	c := codec.New(codec.Default())
	require.NoError(t, SetSchema(db, "m", c.Registry()))
	payload, err := c.EncodeBatch([]token.Token{token.Int(7)})
	require.NoError(t, err)
	payload = append(payload, 0xff, 0xff)
	_, err = Append(db, "m", time.Now(), payload)
	require.NoError(t, err)

	var calls int
	err = Replay(db, "m", 0, codec.DefaultCatalog(), nil, func(b *Batch, tokens []token.Token, err error) error {
		calls++
		require.True(t, errors.Is(err, codec.ErrInvalidTag))
		require.Equal(t, []token.Token{token.Int(7)}, tokens)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, calls)
}

func TestReplay_NoSchema(t *testing.T) {
	db, done := setupLevelDB(t)
	defer done()

	c := codec.New(codec.Default())
	payload, err := c.EncodeBatch([]token.Token{token.Boolean(true)})
	require.NoError(t, err)
	_, err = Append(db, "raw", time.Now(), payload)
	require.NoError(t, err)

	err = Replay(db, "raw", 0, codec.DefaultCatalog(), nil, func(*Batch, []token.Token, error) error {
		return nil
	})
	require.True(t, errors.Is(err, ErrNoSchema))

	var got []token.Token
	err = Replay(db, "raw", 0, codec.DefaultCatalog(), c, func(_ *Batch, tokens []token.Token, err error) error {
		require.NoError(t, err)
		got = append(got, tokens...)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []token.Token{token.Boolean(true)}, got)
}

func TestReplay_CallbackStops(t *testing.T) {
	db, done := setupLevelDB(t)
	defer done()

	c := codec.New(codec.Default())
	require.NoError(t, SetSchema(db, "m", c.Registry()))
	for i := 0; i < 3; i++ {
		payload, err := c.EncodeBatch([]token.Token{token.Int(int32(i))})
		require.NoError(t, err)
		_, err = Append(db, "m", time.Now(), payload)
		require.NoError(t, err)
	}

	stop := errors.New("stop")
	var calls int
	err := Replay(db, "m", 0, codec.DefaultCatalog(), nil, func(*Batch, []token.Token, error) error {
		calls++
		return stop
	})
	require.Equal(t, stop, err)
	require.Equal(t, 1, calls)
}
