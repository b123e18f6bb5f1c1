package codec

import (
	"fmt"
	"math"
	"reflect"

	"ptstream/crypto"

	"github.com/pkg/errors"
)

// HandlerPair is one line of a handler configuration: the name of a token
// type and the name of the handler that encodes it.
type HandlerPair struct {
	TypeName    string `mapstructure:"type" json:"type"`
	HandlerName string `mapstructure:"handler" json:"handler"`
}

// Entry associates a runtime token type with its handler and its tag.
type Entry struct {
	Tag         uint16
	TypeName    string
	HandlerName string
	Type        reflect.Type
	Handler     Handler
}

// Registry is an immutable mapping of token type to handler and tag. Tags
// are dense and follow the order the entries were supplied in, so two
// processes built from the same ordered configuration agree on every tag.
type Registry struct {
	entries     []Entry
	byType      map[reflect.Type]int
	fingerprint crypto.Hash
}

// NewRegistry assigns tags 0..N-1 to entries in argument order. Any invalid
// entry rejects the whole registry with ErrConfiguration; skipping one would
// shift every later tag.
func NewRegistry(entries ...Entry) (*Registry, error) {
	if len(entries) > math.MaxUint16+1 {
		return nil, errors.Wrapf(ErrConfiguration, "%d handlers exceeds the tag space", len(entries))
	}

	r := &Registry{
		entries: make([]Entry, len(entries)),
		byType:  make(map[reflect.Type]int, len(entries)),
	}
	var fp []byte
	for i, e := range entries {
		if e.Type == nil {
			return nil, errors.Wrapf(ErrConfiguration, "entry %d has no token type", i)
		}
		if e.Handler == nil {
			return nil, errors.Wrapf(ErrConfiguration, "entry %d (%s) has no handler", i, e.Type)
		}
		if _, dup := r.byType[e.Type]; dup {
			return nil, errors.Wrapf(ErrConfiguration, "token type %s registered twice", e.Type)
		}
		if e.TypeName == "" {
			e.TypeName = e.Type.String()
		}
		if e.HandlerName == "" {
			e.HandlerName = fmt.Sprintf("%T", e.Handler)
		}
		e.Tag = uint16(i)
		r.entries[i] = e
		r.byType[e.Type] = i
		fp = append(fp, e.TypeName...)
		fp = append(fp, 0x00)
		fp = append(fp, e.HandlerName...)
		fp = append(fp, 0x00)
	}
	r.fingerprint = crypto.Blake2B256(fp)
	return r, nil
}

// HandlerFor returns the entry for an exact runtime type match. There is no
// supertype fallback.
func (r *Registry) HandlerFor(t reflect.Type) (Entry, error) {
	i, ok := r.byType[t]
	if !ok {
		return Entry{}, errors.Wrapf(ErrUnknownType, "%v", t)
	}
	return r.entries[i], nil
}

func (r *Registry) HandlerAt(tag uint16) (Entry, error) {
	if int(tag) >= len(r.entries) {
		return Entry{}, errors.Wrapf(ErrInvalidTag, "tag %d, registry has %d handlers", tag, len(r.entries))
	}
	return r.entries[tag], nil
}

func (r *Registry) Len() int {
	return len(r.entries)
}

// Pairs returns the ordered configuration the registry was built from.
func (r *Registry) Pairs() []HandlerPair {
	out := make([]HandlerPair, len(r.entries))
	for i, e := range r.entries {
		out[i] = HandlerPair{
			TypeName:    e.TypeName,
			HandlerName: e.HandlerName,
		}
	}
	return out
}

// Fingerprint hashes the ordered pairs. Sender and receiver must have equal
// fingerprints for tags to mean the same thing on both ends.
func (r *Registry) Fingerprint() crypto.Hash {
	return r.fingerprint
}
