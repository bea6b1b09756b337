package luadec

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/chazu/romscript/luaval"
)

// ParseLiteral parses a Lua table constructor into a value tree. It accepts
// the constructor subset that appears in decompiled data tables: `name=v`,
// `["key"]=v`, `[42]=v`, positional entries, nested constructors, single- or
// double-quoted strings with backslash escapes, decimal/hex/float/exponent
// numbers, booleans, nil, `,` or `;` separators with trailing separators
// allowed, and `--` line comments. Arrays and maps are discriminated by key
// contiguity, exactly like runtime table marshalling.
func ParseLiteral(snippet string) (luaval.Value, error) {
	p := &literalParser{src: snippet}
	p.skipSpace()
	v, err := p.parseValue()
	if err != nil {
		return luaval.Value{}, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return luaval.Value{}, p.errorf("trailing data")
	}
	return v, nil
}

type literalParser struct {
	src string
	pos int
}

func (p *literalParser) errorf(format string, args ...any) error {
	return fmt.Errorf("luadec: parse literal at offset %d: %s", p.pos, fmt.Sprintf(format, args...))
}

func (p *literalParser) skipSpace() {
	for p.pos < len(p.src) {
		ch := p.src[p.pos]
		switch {
		case ch == ' ' || ch == '\t' || ch == '\r' || ch == '\n':
			p.pos++
		case ch == '-' && p.pos+1 < len(p.src) && p.src[p.pos+1] == '-':
			for p.pos < len(p.src) && p.src[p.pos] != '\n' {
				p.pos++
			}
		default:
			return
		}
	}
}

func (p *literalParser) peek() (byte, bool) {
	if p.pos < len(p.src) {
		return p.src[p.pos], true
	}
	return 0, false
}

func (p *literalParser) parseValue() (luaval.Value, error) {
	ch, ok := p.peek()
	if !ok {
		return luaval.Value{}, p.errorf("unexpected end of input")
	}
	switch {
	case ch == '{':
		return p.parseTable()
	case ch == '\'' || ch == '"':
		s, err := p.parseString()
		if err != nil {
			return luaval.Value{}, err
		}
		return luaval.String(s), nil
	case ch == '-' || ch == '+' || ch == '.' || (ch >= '0' && ch <= '9'):
		return p.parseNumber()
	default:
		return p.parseWord()
	}
}

func (p *literalParser) parseTable() (luaval.Value, error) {
	p.pos++ // consume '{'
	b := luaval.NewTableBuilder()
	nextIndex := int64(1)

	for {
		p.skipSpace()
		ch, ok := p.peek()
		if !ok {
			return luaval.Value{}, p.errorf("unterminated table constructor")
		}
		if ch == '}' {
			p.pos++
			return b.Build(), nil
		}

		key, val, err := p.parseEntry()
		if err != nil {
			return luaval.Value{}, err
		}
		if key.IsNil() {
			key = luaval.Int(nextIndex)
			nextIndex++
		}
		b.Put(key, val)

		p.skipSpace()
		ch, ok = p.peek()
		if !ok {
			return luaval.Value{}, p.errorf("unterminated table constructor")
		}
		switch ch {
		case ',', ';':
			p.pos++
		case '}':
		default:
			return luaval.Value{}, p.errorf("expected separator or '}', got %q", ch)
		}
	}
}

// parseEntry parses one constructor entry. A nil key means the entry was
// positional.
func (p *literalParser) parseEntry() (key, val luaval.Value, err error) {
	ch, _ := p.peek()

	if ch == '[' {
		p.pos++
		p.skipSpace()
		key, err = p.parseValue()
		if err != nil {
			return luaval.Value{}, luaval.Value{}, err
		}
		p.skipSpace()
		if c, ok := p.peek(); !ok || c != ']' {
			return luaval.Value{}, luaval.Value{}, p.errorf("expected ']'")
		}
		p.pos++
		p.skipSpace()
		if c, ok := p.peek(); !ok || c != '=' {
			return luaval.Value{}, luaval.Value{}, p.errorf("expected '=' after bracketed key")
		}
		p.pos++
		p.skipSpace()
		val, err = p.parseValue()
		return key, val, err
	}

	if isNameStart(ch) {
		// Could be `name = v` or a bare keyword value (true/false/nil).
		mark := p.pos
		name := p.scanName()
		p.skipSpace()
		if c, ok := p.peek(); ok && c == '=' && !(p.pos+1 < len(p.src) && p.src[p.pos+1] == '=') {
			p.pos++
			p.skipSpace()
			val, err = p.parseValue()
			return luaval.String(name), val, err
		}
		p.pos = mark
	}

	val, err = p.parseValue()
	return luaval.Value{}, val, err
}

func isNameStart(ch byte) bool {
	return ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isNameByte(ch byte) bool {
	return isNameStart(ch) || (ch >= '0' && ch <= '9')
}

func (p *literalParser) scanName() string {
	start := p.pos
	for p.pos < len(p.src) && isNameByte(p.src[p.pos]) {
		p.pos++
	}
	return p.src[start:p.pos]
}

func (p *literalParser) parseWord() (luaval.Value, error) {
	ch, _ := p.peek()
	if !isNameStart(ch) {
		return luaval.Value{}, p.errorf("unexpected character %q", ch)
	}
	switch name := p.scanName(); name {
	case "true":
		return luaval.Bool(true), nil
	case "false":
		return luaval.Bool(false), nil
	case "nil":
		return luaval.Nil(), nil
	default:
		return luaval.Value{}, p.errorf("unexpected identifier %q", name)
	}
}

func (p *literalParser) parseString() (string, error) {
	quote := p.src[p.pos]
	p.pos++
	var sb strings.Builder
	for p.pos < len(p.src) {
		ch := p.src[p.pos]
		switch ch {
		case quote:
			p.pos++
			return sb.String(), nil
		case '\\':
			p.pos++
			if p.pos >= len(p.src) {
				return "", p.errorf("unterminated escape")
			}
			switch esc := p.src[p.pos]; esc {
			case 'n':
				sb.WriteByte('\n')
			case 'r':
				sb.WriteByte('\r')
			case 't':
				sb.WriteByte('\t')
			case 'a':
				sb.WriteByte(7)
			case 'b':
				sb.WriteByte('\b')
			case 'f':
				sb.WriteByte('\f')
			case 'v':
				sb.WriteByte('\v')
			case '0':
				sb.WriteByte(0)
			default:
				sb.WriteByte(esc)
			}
			p.pos++
		default:
			sb.WriteByte(ch)
			p.pos++
		}
	}
	return "", p.errorf("unterminated string literal")
}

func (p *literalParser) parseNumber() (luaval.Value, error) {
	start := p.pos
	if ch, _ := p.peek(); ch == '-' || ch == '+' {
		p.pos++
	}

	if p.pos+1 < len(p.src) && p.src[p.pos] == '0' && (p.src[p.pos+1] == 'x' || p.src[p.pos+1] == 'X') {
		p.pos += 2
		digits := p.pos
		for p.pos < len(p.src) && isHexDigit(p.src[p.pos]) {
			p.pos++
		}
		if p.pos == digits {
			return luaval.Value{}, p.errorf("malformed hex number")
		}
		n, err := strconv.ParseInt(p.src[start:p.pos], 0, 64)
		if err != nil {
			return luaval.Value{}, p.errorf("hex number out of range")
		}
		return luaval.Int(n), nil
	}

	isFloat := false
	for p.pos < len(p.src) {
		ch := p.src[p.pos]
		switch {
		case ch >= '0' && ch <= '9':
			p.pos++
		case ch == '.':
			isFloat = true
			p.pos++
		case ch == 'e' || ch == 'E':
			isFloat = true
			p.pos++
			if c, ok := p.peek(); ok && (c == '-' || c == '+') {
				p.pos++
			}
		default:
			goto scanned
		}
	}
scanned:
	text := p.src[start:p.pos]
	if !isFloat {
		n, err := strconv.ParseInt(text, 10, 64)
		if err == nil {
			return luaval.Int(n), nil
		}
		// Out of int64 range; fall through to float.
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return luaval.Value{}, p.errorf("malformed number %q", text)
	}
	return luaval.Float(f), nil
}

func isHexDigit(ch byte) bool {
	return (ch >= '0' && ch <= '9') || (ch >= 'a' && ch <= 'f') || (ch >= 'A' && ch <= 'F')
}
