// Package token defines the immutable typed values streamed between a model
// and its remote observers.
package token

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Token is one instance of typed application data. The concrete Go type of
// a Token selects the handler that encodes it.
type Token interface {
	TypeName() string
	Equals(other Token) bool
	String() string
}

const (
	TypeInt     = "int"
	TypeLong    = "long"
	TypeDouble  = "double"
	TypeBoolean = "boolean"
	TypeString  = "string"
	TypeArray   = "array"
	TypeRecord  = "record"
	TypePing    = "ping"
	TypePong    = "pong"
)

type Int int32

func (i Int) TypeName() string { return TypeInt }

func (i Int) Equals(other Token) bool {
	o, ok := other.(Int)
	return ok && o == i
}

func (i Int) String() string { return strconv.FormatInt(int64(i), 10) }

type Long int64

func (l Long) TypeName() string { return TypeLong }

func (l Long) Equals(other Token) bool {
	o, ok := other.(Long)
	return ok && o == l
}

func (l Long) String() string { return strconv.FormatInt(int64(l), 10) + "L" }

type Double float64

func (d Double) TypeName() string { return TypeDouble }

// Equals treats two NaNs as equal.
func (d Double) Equals(other Token) bool {
	o, ok := other.(Double)
	return ok && (o == d || (o != o && d != d))
}

func (d Double) String() string {
	s := strconv.FormatFloat(float64(d), 'g', -1, 64)
	if !strings.ContainsAny(s, ".eEnN") {
		s += ".0"
	}
	return s
}

type Boolean bool

func (b Boolean) TypeName() string { return TypeBoolean }

func (b Boolean) Equals(other Token) bool {
	o, ok := other.(Boolean)
	return ok && o == b
}

func (b Boolean) String() string { return strconv.FormatBool(bool(b)) }

type String string

func (s String) TypeName() string { return TypeString }

func (s String) Equals(other Token) bool {
	o, ok := other.(String)
	return ok && o == s
}

func (s String) String() string { return strconv.Quote(string(s)) }

// Array is an ordered sequence of tokens. Elements may be of mixed types.
type Array struct {
	elems []Token
}

func NewArray(elems ...Token) *Array {
	cp := make([]Token, len(elems))
	copy(cp, elems)
	return &Array{elems: cp}
}

func (a *Array) TypeName() string { return TypeArray }

func (a *Array) Len() int { return len(a.elems) }

func (a *Array) At(i int) Token { return a.elems[i] }

func (a *Array) Elements() []Token {
	cp := make([]Token, len(a.elems))
	copy(cp, a.elems)
	return cp
}

func (a *Array) Equals(other Token) bool {
	o, ok := other.(*Array)
	if !ok || len(o.elems) != len(a.elems) {
		return false
	}
	for i, e := range a.elems {
		if !e.Equals(o.elems[i]) {
			return false
		}
	}
	return true
}

func (a *Array) String() string {
	parts := make([]string, len(a.elems))
	for i, e := range a.elems {
		parts[i] = e.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// Record maps labels to tokens. Labels are kept sorted, which is also the
// order they are encoded in.
type Record struct {
	labels []string
	fields map[string]Token
}

func NewRecord(fields map[string]Token) *Record {
	r := &Record{
		fields: make(map[string]Token, len(fields)),
	}
	for k, v := range fields {
		r.labels = append(r.labels, k)
		r.fields[k] = v
	}
	sort.Strings(r.labels)
	return r
}

func (r *Record) TypeName() string { return TypeRecord }

func (r *Record) Labels() []string {
	cp := make([]string, len(r.labels))
	copy(cp, r.labels)
	return cp
}

func (r *Record) Get(label string) (Token, bool) {
	t, ok := r.fields[label]
	return t, ok
}

func (r *Record) Len() int { return len(r.labels) }

func (r *Record) Equals(other Token) bool {
	o, ok := other.(*Record)
	if !ok || len(o.labels) != len(r.labels) {
		return false
	}
	for _, l := range r.labels {
		ov, ok := o.fields[l]
		if !ok || !r.fields[l].Equals(ov) {
			return false
		}
	}
	return true
}

func (r *Record) String() string {
	parts := make([]string, len(r.labels))
	for i, l := range r.labels {
		parts[i] = fmt.Sprintf("%s=%s", l, r.fields[l])
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// Ping is sent periodically by a publishing model so observers can detect a
// stalled or vanished source. Timestamp is in Unix milliseconds.
type Ping struct {
	Timestamp int64
}

func (p Ping) TypeName() string { return TypePing }

func (p Ping) Equals(other Token) bool {
	o, ok := other.(Ping)
	return ok && o == p
}

func (p Ping) String() string { return fmt.Sprintf("ping(%d)", p.Timestamp) }

// Pong answers a Ping and echoes its timestamp.
type Pong struct {
	Timestamp int64
}

func (p Pong) TypeName() string { return TypePong }

func (p Pong) Equals(other Token) bool {
	o, ok := other.(Pong)
	return ok && o == p
}

func (p Pong) String() string { return fmt.Sprintf("pong(%d)", p.Timestamp) }
