package luadec

import (
	"testing"

	"github.com/chazu/romscript/luaval"
)

func TestParseLiteralRecord(t *testing.T) {
	v, err := ParseLiteral(`{id=120, NameZh='治疗术', Rate=0.25, Active=true, Icon="skill_120"}`)
	if err != nil {
		t.Fatalf("ParseLiteral: %v", err)
	}
	if v.Kind() != luaval.KindMap {
		t.Fatalf("kind = %v", v.Kind())
	}
	if id, _ := v.GetInt("id"); id != 120 {
		t.Errorf("id = %d", id)
	}
	if name, _ := v.GetString("NameZh"); name != "治疗术" {
		t.Errorf("NameZh = %q", name)
	}
	if rate := v.Get("Rate"); rate.Kind() != luaval.KindFloat || rate.Float() != 0.25 {
		t.Errorf("Rate = %v", rate)
	}
	if !v.Get("Active").Bool() {
		t.Error("Active should be true")
	}
}

func TestParseLiteralPositionalArray(t *testing.T) {
	v, err := ParseLiteral("{10, 20, 30}")
	if err != nil {
		t.Fatalf("ParseLiteral: %v", err)
	}
	if v.Kind() != luaval.KindArray || v.Len() != 3 || v.Index(2).Int() != 30 {
		t.Fatalf("got %v", v)
	}
}

func TestParseLiteralBracketedKeys(t *testing.T) {
	v, err := ParseLiteral(`{[1]="a", [2]="b", ["extra"]=99}`)
	if err != nil {
		t.Fatalf("ParseLiteral: %v", err)
	}
	if v.Kind() != luaval.KindMap {
		t.Fatalf("kind = %v", v.Kind())
	}
	if n, _ := v.GetInt("extra"); n != 99 {
		t.Fatalf("extra = %d", n)
	}
}

func TestParseLiteralDenseBracketedArray(t *testing.T) {
	v, err := ParseLiteral(`{[1]="a", [2]="b"}`)
	if err != nil {
		t.Fatalf("ParseLiteral: %v", err)
	}
	if v.Kind() != luaval.KindArray || v.Index(1).Str() != "b" {
		t.Fatalf("got %v", v)
	}
}

func TestParseLiteralNested(t *testing.T) {
	v, err := ParseLiteral("{id=1, drops={{item=10,rate=0.5},{item=11,rate=0.1}}}")
	if err != nil {
		t.Fatalf("ParseLiteral: %v", err)
	}
	drops := v.Get("drops")
	if drops.Kind() != luaval.KindArray || drops.Len() != 2 {
		t.Fatalf("drops = %v", drops)
	}
	if item, _ := drops.Index(1).GetInt("item"); item != 11 {
		t.Fatalf("second drop item = %d", item)
	}
}

func TestParseLiteralNumbers(t *testing.T) {
	tests := []struct {
		src  string
		want luaval.Value
	}{
		{"{v=42}", luaval.Int(42)},
		{"{v=-7}", luaval.Int(-7)},
		{"{v=0x1F}", luaval.Int(31)},
		{"{v=3.5}", luaval.Float(3.5)},
		{"{v=1e3}", luaval.Float(1000)},
		{"{v=2.5e-2}", luaval.Float(0.025)},
		{"{v=.5}", luaval.Float(0.5)},
		{"{v=99999999999999999999}", luaval.Float(1e20)},
	}
	for _, tt := range tests {
		v, err := ParseLiteral(tt.src)
		if err != nil {
			t.Errorf("ParseLiteral(%q): %v", tt.src, err)
			continue
		}
		if !v.Get("v").Equal(tt.want) {
			t.Errorf("ParseLiteral(%q).v = %v, want %v", tt.src, v.Get("v"), tt.want)
		}
	}
}

func TestParseLiteralStringsAndEscapes(t *testing.T) {
	v, err := ParseLiteral(`{a='line\none', b="tab\there", c='it\'s', d="q\"d"}`)
	if err != nil {
		t.Fatalf("ParseLiteral: %v", err)
	}
	want := map[string]string{
		"a": "line\none",
		"b": "tab\there",
		"c": "it's",
		"d": `q"d`,
	}
	for field, expect := range want {
		if got, _ := v.GetString(field); got != expect {
			t.Errorf("%s = %q, want %q", field, got, expect)
		}
	}
}

func TestParseLiteralSeparatorsAndComments(t *testing.T) {
	v, err := ParseLiteral(`{
		id = 5; -- record id
		name = 'slime', -- display name
	}`)
	if err != nil {
		t.Fatalf("ParseLiteral: %v", err)
	}
	if id, _ := v.GetInt("id"); id != 5 {
		t.Fatalf("id = %d", id)
	}
	if name, _ := v.GetString("name"); name != "slime" {
		t.Fatalf("name = %q", name)
	}
}

func TestParseLiteralKeywordValues(t *testing.T) {
	v, err := ParseLiteral("{true, false, nil, flag=false}")
	if err != nil {
		t.Fatalf("ParseLiteral: %v", err)
	}
	if v.Kind() != luaval.KindMap {
		t.Fatalf("kind = %v", v.Kind())
	}
	if !v.Get("flag").IsNil() && v.Get("flag").Bool() {
		t.Fatal("flag should be false")
	}
}

func TestParseLiteralEmptyTable(t *testing.T) {
	v, err := ParseLiteral("{}")
	if err != nil {
		t.Fatalf("ParseLiteral: %v", err)
	}
	if v.Kind() != luaval.KindMap || v.Len() != 0 {
		t.Fatalf("got %v", v)
	}
}

func TestParseLiteralErrors(t *testing.T) {
	for _, src := range []string{
		"",
		"{",
		"{id=}",
		"{id=1",
		"{id=1} trailing",
		"{'unterminated}",
		"{[1 = 2}",
		"{id==1}",
		"{@}",
	} {
		if _, err := ParseLiteral(src); err == nil {
			t.Errorf("ParseLiteral(%q) succeeded, want error", src)
		}
	}
}
