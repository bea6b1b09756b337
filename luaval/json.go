package luaval

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// MarshalJSON renders the value tree with map entries in insertion order.
// Non-string map keys are rendered as their quoted textual form, the same
// shape the in-interpreter serializer emits.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.encodeJSON(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v Value) encodeJSON(buf *bytes.Buffer) error {
	switch v.kind {
	case KindNil:
		buf.WriteString("null")
	case KindBool:
		buf.WriteString(strconv.FormatBool(v.b))
	case KindInt:
		buf.WriteString(strconv.FormatInt(v.n, 10))
	case KindFloat:
		if math.IsInf(v.f, 0) || math.IsNaN(v.f) {
			return fmt.Errorf("luaval: cannot encode %v as JSON", v.f)
		}
		buf.WriteString(strconv.FormatFloat(v.f, 'g', -1, 64))
	case KindString:
		b, err := json.Marshal(v.s)
		if err != nil {
			return err
		}
		buf.Write(b)
	case KindArray:
		buf.WriteByte('[')
		for i, e := range v.elems {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := e.encodeJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindMap:
		buf.WriteByte('{')
		for i, e := range v.entries {
			if i > 0 {
				buf.WriteByte(',')
			}
			b, err := json.Marshal(e.Key.keyText())
			if err != nil {
				return err
			}
			buf.Write(b)
			buf.WriteByte(':')
			if err := e.Val.encodeJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	}
	return nil
}

func (v Value) keyText() string {
	switch v.kind {
	case KindString:
		return v.s
	case KindInt:
		return strconv.FormatInt(v.n, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	}
	return "null"
}

// DecodeJSON parses JSON-shaped text into a value tree, preserving object
// key order and the integer/float distinction (a number is an integer when
// its literal has no fraction or exponent).
func DecodeJSON(r io.Reader) (Value, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	v, err := decodeValue(dec)
	if err != nil {
		return Value{}, err
	}
	// Trailing garbage means the producer misbehaved; surface it.
	if dec.More() {
		return Value{}, fmt.Errorf("luaval: trailing data after JSON value")
	}
	return v, nil
}

// DecodeJSONString is DecodeJSON over an in-memory string.
func DecodeJSONString(s string) (Value, error) {
	return DecodeJSON(strings.NewReader(s))
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}
	return decodeFromToken(dec, tok)
}

func decodeFromToken(dec *json.Decoder, tok json.Token) (Value, error) {
	switch t := tok.(type) {
	case nil:
		return Nil(), nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case json.Number:
		return numberValue(t)
	case json.Delim:
		switch t {
		case '[':
			var elems []Value
			for dec.More() {
				e, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				elems = append(elems, e)
			}
			if _, err := dec.Token(); err != nil { // closing ]
				return Value{}, err
			}
			if elems == nil {
				elems = []Value{}
			}
			return Array(elems), nil
		case '{':
			var entries []Entry
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return Value{}, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return Value{}, fmt.Errorf("luaval: object key %v is not a string", keyTok)
				}
				val, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				entries = append(entries, Entry{Key: String(key), Val: val})
			}
			if _, err := dec.Token(); err != nil { // closing }
				return Value{}, err
			}
			return Map(entries), nil
		}
	}
	return Value{}, fmt.Errorf("luaval: unexpected token %v", tok)
}

func numberValue(n json.Number) (Value, error) {
	if strings.ContainsAny(string(n), ".eE") {
		f, err := n.Float64()
		if err != nil {
			return Value{}, err
		}
		return Float(f), nil
	}
	i, err := n.Int64()
	if err != nil {
		// Out of int64 range; fall back to float rather than failing.
		f, ferr := n.Float64()
		if ferr != nil {
			return Value{}, err
		}
		return Float(f), nil
	}
	return Int(i), nil
}
