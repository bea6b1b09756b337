// Package luaval defines the generic value tree produced when a Lua table is
// marshalled out of the interpreter. A value is one of nil, boolean, integer,
// float, string, array or map; arrays keep element order and maps keep key
// insertion order so decoded tables serialize deterministically.
package luaval

// Kind discriminates the variants of Value.
type Kind uint8

const (
	KindNil Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindArray
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindNil:
		return "nil"
	case KindBool:
		return "boolean"
	case KindInt:
		return "integer"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindMap:
		return "map"
	}
	return "invalid"
}

// Entry is a single ordered key/value pair of a map value.
type Entry struct {
	Key Value
	Val Value
}

// Value is an immutable tagged variant. The zero value is nil.
type Value struct {
	kind    Kind
	b       bool
	n       int64
	f       float64
	s       string
	elems   []Value
	entries []Entry
}

// Nil returns the nil value.
func Nil() Value { return Value{} }

// Bool wraps a boolean.
func Bool(v bool) Value { return Value{kind: KindBool, b: v} }

// Int wraps an integer. Integer and float are distinct kinds: the
// distinction comes from the interpreter's own type tag, not from the
// numeric value.
func Int(v int64) Value { return Value{kind: KindInt, n: v} }

// Float wraps a floating point number.
func Float(v float64) Value { return Value{kind: KindFloat, f: v} }

// String wraps a string.
func String(v string) Value { return Value{kind: KindString, s: v} }

// Array wraps a dense ordered slice of values.
func Array(elems []Value) Value { return Value{kind: KindArray, elems: elems} }

// Map wraps an ordered list of key/value pairs.
func Map(entries []Entry) Value { return Value{kind: KindMap, entries: entries} }

// Kind reports the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// IsNil reports whether v is the nil value.
func (v Value) IsNil() bool { return v.kind == KindNil }

// Bool returns the boolean payload; false for other kinds.
func (v Value) Bool() bool { return v.kind == KindBool && v.b }

// Int returns the integer payload; 0 for other kinds.
func (v Value) Int() int64 {
	if v.kind == KindInt {
		return v.n
	}
	return 0
}

// Float returns the numeric payload as a float for both numeric kinds.
func (v Value) Float() float64 {
	switch v.kind {
	case KindFloat:
		return v.f
	case KindInt:
		return float64(v.n)
	}
	return 0
}

// Str returns the string payload; "" for other kinds.
func (v Value) Str() string {
	if v.kind == KindString {
		return v.s
	}
	return ""
}

// Len returns the element count of an array or the entry count of a map.
func (v Value) Len() int {
	switch v.kind {
	case KindArray:
		return len(v.elems)
	case KindMap:
		return len(v.entries)
	}
	return 0
}

// Index returns the i-th array element, or nil when out of range.
func (v Value) Index(i int) Value {
	if v.kind == KindArray && i >= 0 && i < len(v.elems) {
		return v.elems[i]
	}
	return Value{}
}

// Elems returns the underlying array elements.
func (v Value) Elems() []Value {
	if v.kind == KindArray {
		return v.elems
	}
	return nil
}

// Entries returns the ordered map entries.
func (v Value) Entries() []Entry {
	if v.kind == KindMap {
		return v.entries
	}
	return nil
}

// Get looks up a string-keyed field of a map value. It returns nil when v is
// not a map or the field is absent.
func (v Value) Get(field string) Value {
	for _, e := range v.entries {
		if e.Key.kind == KindString && e.Key.s == field {
			return e.Val
		}
	}
	return Value{}
}

// GetInt returns a field as an integer with an ok flag.
func (v Value) GetInt(field string) (int64, bool) {
	f := v.Get(field)
	if f.kind == KindInt {
		return f.n, true
	}
	return 0, false
}

// GetString returns a field as a string with an ok flag.
func (v Value) GetString(field string) (string, bool) {
	f := v.Get(field)
	if f.kind == KindString {
		return f.s, true
	}
	return "", false
}

// Equal reports deep equality of two values, including ordering.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNil:
		return true
	case KindBool:
		return v.b == o.b
	case KindInt:
		return v.n == o.n
	case KindFloat:
		return v.f == o.f
	case KindString:
		return v.s == o.s
	case KindArray:
		if len(v.elems) != len(o.elems) {
			return false
		}
		for i := range v.elems {
			if !v.elems[i].Equal(o.elems[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.entries) != len(o.entries) {
			return false
		}
		for i := range v.entries {
			if !v.entries[i].Key.Equal(o.entries[i].Key) || !v.entries[i].Val.Equal(o.entries[i].Val) {
				return false
			}
		}
		return true
	}
	return false
}

// Snapshot pairs a decoded table with the global name it was extracted from.
type Snapshot struct {
	Name string
	Root Value
}

// ---------------------------------------------------------------------------
// TableBuilder
// ---------------------------------------------------------------------------

// TableBuilder accumulates key/value pairs from a table iteration and decides
// array versus map once the iteration is complete. A table is an array only
// when every key is a positive integer and the keys cover 1..N without gaps;
// there is no guessing from source hints.
type TableBuilder struct {
	intKeys  []int64
	intVals  []Value
	intIndex map[int64]int
	other    []Entry
	maxKey   int64
	allInt   bool
}

// NewTableBuilder returns an empty builder.
func NewTableBuilder() *TableBuilder {
	return &TableBuilder{intIndex: make(map[int64]int), allInt: true}
}

// Put records one key/value pair. A repeated key overwrites the earlier
// value, keeping the key's original position.
func (b *TableBuilder) Put(key, val Value) {
	if key.kind == KindInt && key.n >= 1 {
		if i, ok := b.intIndex[key.n]; ok {
			b.intVals[i] = val
			return
		}
		b.intIndex[key.n] = len(b.intKeys)
		b.intKeys = append(b.intKeys, key.n)
		b.intVals = append(b.intVals, val)
		if key.n > b.maxKey {
			b.maxKey = key.n
		}
		return
	}
	b.allInt = false
	for i := range b.other {
		if b.other[i].Key.Equal(key) {
			b.other[i].Val = val
			return
		}
	}
	b.other = append(b.other, Entry{Key: key, Val: val})
}

// Len reports how many distinct keys have been recorded.
func (b *TableBuilder) Len() int { return len(b.intKeys) + len(b.other) }

// Build materializes the accumulated pairs.
func (b *TableBuilder) Build() Value {
	if b.allInt && len(b.intKeys) > 0 && int64(len(b.intKeys)) == b.maxKey {
		elems := make([]Value, b.maxKey)
		for i, k := range b.intKeys {
			elems[k-1] = b.intVals[i]
		}
		return Array(elems)
	}
	entries := make([]Entry, 0, len(b.other)+len(b.intKeys))
	entries = append(entries, b.other...)
	for i, k := range b.intKeys {
		entries = append(entries, Entry{Key: Int(k), Val: b.intVals[i]})
	}
	return Map(entries)
}
