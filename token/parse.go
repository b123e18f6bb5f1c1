package token

import (
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/pkg/errors"
)

var ErrSyntax = errors.New("invalid token literal")

// Parse reads a token literal in the expression syntax used by the CLI:
//
//	42        int
//	42L       long
//	1.5       double
//	true      boolean
//	"hi"      string
//	{1, 2}    array
//	{a=1}     record
func Parse(literal string) (Token, error) {
	p := &parser{in: literal}
	t, err := p.parseToken()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.in) {
		return nil, p.errorf("unexpected trailing input")
	}
	return t, nil
}

type parser struct {
	in  string
	pos int
}

func (p *parser) errorf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrSyntax, "at offset %d: "+format, append([]interface{}{p.pos}, args...)...)
}

func (p *parser) skipSpace() {
	for p.pos < len(p.in) && unicode.IsSpace(rune(p.in[p.pos])) {
		p.pos++
	}
}

func (p *parser) peek() byte {
	if p.pos >= len(p.in) {
		return 0
	}
	return p.in[p.pos]
}

func (p *parser) parseToken() (Token, error) {
	p.skipSpace()
	switch c := p.peek(); {
	case c == 0:
		return nil, p.errorf("unexpected end of input")
	case c == '"':
		return p.parseString()
	case c == '{':
		return p.parseComposite()
	default:
		return p.parseScalar()
	}
}

func (p *parser) parseString() (Token, error) {
	start := p.pos
	p.pos++
	for p.pos < len(p.in) {
		switch p.in[p.pos] {
		case '\\':
			p.pos += 2
			continue
		case '"':
			p.pos++
			s, err := strconv.Unquote(p.in[start:p.pos])
			if err != nil {
				return nil, p.errorf("bad string: %v", err)
			}
			return String(s), nil
		}
		p.pos++
	}
	return nil, p.errorf("unterminated string")
}

func (p *parser) parseComposite() (Token, error) {
	p.pos++
	p.skipSpace()
	if p.peek() == '}' {
		p.pos++
		return NewArray(), nil
	}

	var elems []Token
	fields := make(map[string]Token)
	isRecord := p.looksLikeLabel()
	for {
		p.skipSpace()
		if isRecord {
			label, err := p.parseLabel()
			if err != nil {
				return nil, err
			}
			if _, dup := fields[label]; dup {
				return nil, p.errorf("duplicate label %q", label)
			}
			t, err := p.parseToken()
			if err != nil {
				return nil, err
			}
			fields[label] = t
		} else {
			t, err := p.parseToken()
			if err != nil {
				return nil, err
			}
			elems = append(elems, t)
		}

		p.skipSpace()
		switch p.peek() {
		case ',':
			p.pos++
		case '}':
			p.pos++
			if isRecord {
				return NewRecord(fields), nil
			}
			return NewArray(elems...), nil
		default:
			return nil, p.errorf("expected ',' or '}'")
		}
	}
}

func (p *parser) looksLikeLabel() bool {
	rest := p.in[p.pos:]
	i := strings.IndexAny(rest, "=,{}\"")
	if i <= 0 || rest[i] != '=' {
		return false
	}
	return isIdent(strings.TrimSpace(rest[:i]))
}

func (p *parser) parseLabel() (string, error) {
	i := strings.IndexByte(p.in[p.pos:], '=')
	if i < 0 {
		return "", p.errorf("expected label")
	}
	label := strings.TrimSpace(p.in[p.pos : p.pos+i])
	if !isIdent(label) {
		return "", p.errorf("invalid label %q", label)
	}
	p.pos += i + 1
	return label, nil
}

func (p *parser) parseScalar() (Token, error) {
	start := p.pos
	for p.pos < len(p.in) && !strings.ContainsRune(",}", rune(p.in[p.pos])) && !unicode.IsSpace(rune(p.in[p.pos])) {
		p.pos++
	}
	lit := p.in[start:p.pos]
	switch lit {
	case "true":
		return Boolean(true), nil
	case "false":
		return Boolean(false), nil
	}

	if strings.HasSuffix(lit, "L") || strings.HasSuffix(lit, "l") {
		v, err := strconv.ParseInt(lit[:len(lit)-1], 0, 64)
		if err != nil {
			return nil, p.errorf("bad long %q", lit)
		}
		return Long(v), nil
	}
	if v, err := strconv.ParseInt(lit, 0, 64); err == nil {
		if v >= math.MinInt32 && v <= math.MaxInt32 {
			return Int(v), nil
		}
		return Long(v), nil
	}
	if v, err := strconv.ParseFloat(lit, 64); err == nil {
		return Double(v), nil
	}
	return nil, p.errorf("unrecognized literal %q", lit)
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || unicode.IsLetter(r) || (i > 0 && unicode.IsDigit(r)) {
			continue
		}
		return false
	}
	return true
}
