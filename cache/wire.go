package cache

import "github.com/chazu/romscript/luaval"

// wireNode is the CBOR shape of a luaval.Value. Map entries are carried as
// parallel key/value slices so their order survives the round trip.
type wireNode struct {
	Kind  int8       `cbor:"k"`
	Bool  bool       `cbor:"b,omitempty"`
	Int   int64      `cbor:"i,omitempty"`
	Float float64    `cbor:"f,omitempty"`
	Str   string     `cbor:"s,omitempty"`
	Elems []wireNode `cbor:"e,omitempty"`
	Keys  []wireNode `cbor:"mk,omitempty"`
	Vals  []wireNode `cbor:"mv,omitempty"`
}

const (
	wireNil = int8(iota)
	wireBool
	wireInt
	wireFloat
	wireString
	wireArray
	wireMap
)

func wireFromValue(v luaval.Value) wireNode {
	switch v.Kind() {
	case luaval.KindBool:
		return wireNode{Kind: wireBool, Bool: v.Bool()}
	case luaval.KindInt:
		return wireNode{Kind: wireInt, Int: v.Int()}
	case luaval.KindFloat:
		return wireNode{Kind: wireFloat, Float: v.Float()}
	case luaval.KindString:
		return wireNode{Kind: wireString, Str: v.Str()}
	case luaval.KindArray:
		elems := v.Elems()
		node := wireNode{Kind: wireArray, Elems: make([]wireNode, len(elems))}
		for i, e := range elems {
			node.Elems[i] = wireFromValue(e)
		}
		return node
	case luaval.KindMap:
		entries := v.Entries()
		node := wireNode{
			Kind: wireMap,
			Keys: make([]wireNode, len(entries)),
			Vals: make([]wireNode, len(entries)),
		}
		for i, entry := range entries {
			node.Keys[i] = wireFromValue(entry.Key)
			node.Vals[i] = wireFromValue(entry.Val)
		}
		return node
	default:
		return wireNode{Kind: wireNil}
	}
}

func (n wireNode) value() (luaval.Value, error) {
	switch n.Kind {
	case wireNil:
		return luaval.Nil(), nil
	case wireBool:
		return luaval.Bool(n.Bool), nil
	case wireInt:
		return luaval.Int(n.Int), nil
	case wireFloat:
		return luaval.Float(n.Float), nil
	case wireString:
		return luaval.String(n.Str), nil
	case wireArray:
		elems := make([]luaval.Value, len(n.Elems))
		for i, e := range n.Elems {
			v, err := e.value()
			if err != nil {
				return luaval.Value{}, err
			}
			elems[i] = v
		}
		return luaval.Array(elems), nil
	case wireMap:
		if len(n.Keys) != len(n.Vals) {
			return luaval.Value{}, errBadWireKind
		}
		entries := make([]luaval.Entry, len(n.Keys))
		for i := range n.Keys {
			k, err := n.Keys[i].value()
			if err != nil {
				return luaval.Value{}, err
			}
			v, err := n.Vals[i].value()
			if err != nil {
				return luaval.Value{}, err
			}
			entries[i] = luaval.Entry{Key: k, Val: v}
		}
		return luaval.Map(entries), nil
	default:
		return luaval.Value{}, errBadWireKind
	}
}
