package codec

import (
	"io"
	"reflect"
	"testing"

	"ptstream/token"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestLoadRegistry_TagsFollowConfigurationOrder(t *testing.T) {
	pairs := DefaultPairs()
	reg, err := LoadRegistry(DefaultCatalog(), pairs)
	require.NoError(t, err)
	require.Equal(t, len(pairs), reg.Len())
	require.Equal(t, pairs, reg.Pairs())

	catalog := DefaultCatalog()
	for i, p := range pairs {
		entry, err := reg.HandlerFor(catalog.types[p.TypeName])
		require.NoError(t, err)
		require.EqualValues(t, i, entry.Tag)

		byTag, err := reg.HandlerAt(uint16(i))
		require.NoError(t, err)
		require.Equal(t, p.TypeName, byTag.TypeName)
	}

	_, err = reg.HandlerAt(uint16(len(pairs)))
	require.True(t, errors.Is(err, ErrInvalidTag))
}

func TestLoadRegistry_Reordered(t *testing.T) {
	reg, err := LoadRegistry(DefaultCatalog(), []HandlerPair{
		{token.TypeString, "StringHandler"},
		{token.TypeInt, "IntHandler"},
	})
	require.NoError(t, err)

	entry, err := reg.HandlerFor(reflect.TypeOf(token.Int(0)))
	require.NoError(t, err)
	require.EqualValues(t, 1, entry.Tag)

	_, err = reg.HandlerFor(reflect.TypeOf(token.Long(0)))
	require.True(t, errors.Is(err, ErrUnknownType))
	require.NotEqual(t, Default().Fingerprint(), reg.Fingerprint())
}

func TestLoadRegistry_AbortsOnFirstBadPair(t *testing.T) {
	tests := []struct {
		name  string
		pairs []HandlerPair
	}{
		{
			"unknown type",
			[]HandlerPair{{token.TypeInt, "IntHandler"}, {"complex", "IntHandler"}, {token.TypeString, "StringHandler"}},
		},
		{
			"unknown handler",
			[]HandlerPair{{token.TypeInt, "NoSuchHandler"}},
		},
		{
			"handler for another type",
			[]HandlerPair{{token.TypeInt, "StringHandler"}},
		},
		{
			"duplicate type",
			[]HandlerPair{{token.TypeInt, "IntHandler"}, {token.TypeInt, "IntHandler"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg, err := LoadRegistry(DefaultCatalog(), tt.pairs)
			require.Nil(t, reg)
			require.True(t, errors.Is(err, ErrConfiguration), "got %v", err)
		})
	}
}

func TestLoadRegistry_NilFactory(t *testing.T) {
	catalog := DefaultCatalog().AddHandler("Broken", func() Handler { return nil })
	_, err := LoadRegistry(catalog, []HandlerPair{{token.TypeInt, "Broken"}})
	require.True(t, errors.Is(err, ErrConfiguration))
}

type opaqueHandler struct{}

func (opaqueHandler) EncodeToken(c *Codec, w io.Writer, t token.Token) error { return nil }

func (opaqueHandler) DecodeToken(c *Codec, r io.Reader) (token.Token, error) {
	return token.Boolean(true), nil
}

func TestNewRegistry(t *testing.T) {
	reg, err := NewRegistry(
		Entry{Type: reflect.TypeOf(token.Boolean(false)), Handler: opaqueHandler{}},
		Entry{Type: reflect.TypeOf(token.Int(0)), Handler: IntHandler{}, TypeName: "int"},
	)
	require.NoError(t, err)
	require.Equal(t, []HandlerPair{
		{"token.Boolean", "codec.opaqueHandler"},
		{"int", "codec.IntHandler"},
	}, reg.Pairs())

	_, err = NewRegistry(Entry{Type: reflect.TypeOf(token.Int(0))})
	require.True(t, errors.Is(err, ErrConfiguration))
	_, err = NewRegistry(Entry{Handler: IntHandler{}})
	require.True(t, errors.Is(err, ErrConfiguration))

	empty, err := NewRegistry()
	require.NoError(t, err)
	_, err = empty.HandlerAt(0)
	require.True(t, errors.Is(err, ErrInvalidTag))
}

func TestFingerprint_Deterministic(t *testing.T) {
	a, err := LoadRegistry(DefaultCatalog(), DefaultPairs())
	require.NoError(t, err)
	b, err := LoadRegistry(DefaultCatalog(), DefaultPairs())
	require.NoError(t, err)
	require.Equal(t, a.Fingerprint(), b.Fingerprint())
	require.Equal(t, a.Fingerprint(), Default().Fingerprint())
	require.True(t, Default() == Default())
}
