package slua

import (
	"github.com/chazu/romscript/luaval"
)

// Lua type tags from lua.h; only the subset the marshaller understands.
const (
	luaTNil     = 0
	luaTBoolean = 1
	luaTNumber  = 3
	luaTString  = 4
	luaTTable   = 5
)

const luaRegistryIndex = -10000

// luaState is the slice of the interpreter stack API the marshaller needs.
// The native bridge implements it over the C ABI; tests drive the same code
// with an in-memory fake.
type luaState interface {
	Type(idx int32) int32
	ToBoolean(idx int32) bool
	IsInteger(idx int32) bool
	ToInteger(idx int32) int64
	ToNumber(idx int32) float64
	ToString(idx int32) string
	ToPointer(idx int32) uintptr
	PushNil()
	Next(tableIdx int32) bool
	GetTop() int32
	SetTop(idx int32)
}

func absIndex(s luaState, idx int32) int32 {
	if idx > 0 || idx <= luaRegistryIndex {
		return idx
	}
	return s.GetTop() + idx + 1
}

func pop(s luaState, n int32) {
	s.SetTop(-n - 1)
}

// marshalValue converts the value at idx into a luaval.Value. seen carries
// the identities of tables currently being expanded on this path; a table
// reached through its own expansion becomes nil at the revisited point.
func marshalValue(s luaState, idx int32, seen map[uintptr]struct{}) luaval.Value {
	switch s.Type(idx) {
	case luaTBoolean:
		return luaval.Bool(s.ToBoolean(idx))
	case luaTNumber:
		if s.IsInteger(idx) {
			return luaval.Int(s.ToInteger(idx))
		}
		return luaval.Float(s.ToNumber(idx))
	case luaTString:
		return luaval.String(s.ToString(idx))
	case luaTTable:
		return marshalTable(s, idx, seen)
	}
	return luaval.Nil()
}

func marshalTable(s luaState, idx int32, seen map[uintptr]struct{}) luaval.Value {
	abs := absIndex(s, idx)
	ident := s.ToPointer(abs)
	if ident != 0 {
		if _, revisit := seen[ident]; revisit {
			return luaval.Nil()
		}
		seen[ident] = struct{}{}
		// The identity is only guarding this subtree; siblings may legally
		// reference the same table again once we are done with it.
		defer delete(seen, ident)
	}

	b := luaval.NewTableBuilder()
	s.PushNil()
	for s.Next(abs) {
		val := marshalValue(s, -1, seen)
		key := marshalValue(s, -2, seen)
		pop(s, 1)
		b.Put(key, val)
	}
	return b.Build()
}

// stackError renders the error value the interpreter left on top of the
// stack and pops it.
func stackError(s luaState) string {
	v := marshalValue(s, -1, map[uintptr]struct{}{})
	pop(s, 1)
	if v.Kind() == luaval.KindString {
		return v.Str()
	}
	return "lua runtime error"
}
