package codec

import (
	"reflect"
	"sync"

	"ptstream/token"

	"github.com/pkg/errors"
)

type HandlerFactory func() Handler

// Catalog resolves the names used in a handler configuration to token types
// and handler constructors. It replaces loading classes by name: every
// nameable type and handler is registered in code.
type Catalog struct {
	types    map[string]reflect.Type
	handlers map[string]HandlerFactory
}

func NewCatalog() *Catalog {
	return &Catalog{
		types:    make(map[string]reflect.Type),
		handlers: make(map[string]HandlerFactory),
	}
}

func (c *Catalog) AddType(name string, t reflect.Type) *Catalog {
	c.types[name] = t
	return c
}

func (c *Catalog) AddHandler(name string, factory HandlerFactory) *Catalog {
	c.handlers[name] = factory
	return c
}

// DefaultCatalog knows every token kind in package token and its built-in
// handler.
func DefaultCatalog() *Catalog {
	return NewCatalog().
		AddType(token.TypeInt, reflect.TypeOf(token.Int(0))).
		AddType(token.TypeLong, reflect.TypeOf(token.Long(0))).
		AddType(token.TypeDouble, reflect.TypeOf(token.Double(0))).
		AddType(token.TypeBoolean, reflect.TypeOf(token.Boolean(false))).
		AddType(token.TypeString, reflect.TypeOf(token.String(""))).
		AddType(token.TypeArray, reflect.TypeOf(&token.Array{})).
		AddType(token.TypeRecord, reflect.TypeOf(&token.Record{})).
		AddType(token.TypePing, reflect.TypeOf(token.Ping{})).
		AddType(token.TypePong, reflect.TypeOf(token.Pong{})).
		AddHandler("IntHandler", func() Handler { return IntHandler{} }).
		AddHandler("LongHandler", func() Handler { return LongHandler{} }).
		AddHandler("DoubleHandler", func() Handler { return DoubleHandler{} }).
		AddHandler("BooleanHandler", func() Handler { return BooleanHandler{} }).
		AddHandler("StringHandler", func() Handler { return StringHandler{} }).
		AddHandler("ArrayHandler", func() Handler { return ArrayHandler{} }).
		AddHandler("RecordHandler", func() Handler { return RecordHandler{} }).
		AddHandler("PingHandler", func() Handler { return PingHandler{} }).
		AddHandler("PongHandler", func() Handler { return PongHandler{} })
}

// DefaultPairs is the handler configuration used when none is supplied.
// Reordering it changes every tag on the wire.
func DefaultPairs() []HandlerPair {
	return []HandlerPair{
		{token.TypeInt, "IntHandler"},
		{token.TypeLong, "LongHandler"},
		{token.TypeDouble, "DoubleHandler"},
		{token.TypeBoolean, "BooleanHandler"},
		{token.TypeString, "StringHandler"},
		{token.TypeArray, "ArrayHandler"},
		{token.TypeRecord, "RecordHandler"},
		{token.TypePing, "PingHandler"},
		{token.TypePong, "PongHandler"},
	}
}

// LoadRegistry resolves each pair against the catalog, in order, and builds
// a registry. The first unresolvable pair aborts loading.
func LoadRegistry(catalog *Catalog, pairs []HandlerPair) (*Registry, error) {
	entries := make([]Entry, len(pairs))
	for i, p := range pairs {
		t, ok := catalog.types[p.TypeName]
		if !ok {
			return nil, errors.Wrapf(ErrConfiguration, "pair %d: unknown token type %q", i, p.TypeName)
		}
		factory, ok := catalog.handlers[p.HandlerName]
		if !ok {
			return nil, errors.Wrapf(ErrConfiguration, "pair %d: unknown handler %q", i, p.HandlerName)
		}
		h := factory()
		if h == nil {
			return nil, errors.Wrapf(ErrConfiguration, "pair %d: handler %q constructed nil", i, p.HandlerName)
		}
		if typed, ok := h.(TypedHandler); ok && typed.TokenType() != t {
			return nil, errors.Wrapf(
				ErrConfiguration,
				"pair %d: handler %q encodes %s, not %s",
				i,
				p.HandlerName,
				typed.TokenType(),
				t,
			)
		}
		entries[i] = Entry{
			TypeName:    p.TypeName,
			HandlerName: p.HandlerName,
			Type:        t,
			Handler:     h,
		}
	}
	return NewRegistry(entries...)
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// Default returns the process-wide registry built from DefaultCatalog and
// DefaultPairs. It is constructed exactly once, on first use. Prefer passing
// a registry explicitly; Default exists for tools that stream with the
// built-in configuration.
func Default() *Registry {
	defaultRegistryOnce.Do(func() {
		r, err := LoadRegistry(DefaultCatalog(), DefaultPairs())
		if err != nil {
			panic(err)
		}
		defaultRegistry = r
	})
	return defaultRegistry
}
