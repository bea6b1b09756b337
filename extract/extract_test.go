package extract

import (
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/chazu/romscript/assets"
	"github.com/chazu/romscript/exttool"
	"github.com/chazu/romscript/luadec"
	"github.com/chazu/romscript/luaval"
	"github.com/chazu/romscript/slua"
)

// buildStringBlob renders a translation segment blob: header, guid, name,
// then aligned length-prefixed key/value pairs.
func buildStringBlob(name string, pairs [][2]string) []byte {
	var blob []byte
	u32 := func(v uint32) {
		blob = binary.LittleEndian.AppendUint32(blob, v)
	}
	str := func(s string) {
		u32(uint32(len(s)))
		blob = append(blob, s...)
		for len(blob)%4 != 0 {
			blob = append(blob, 0)
		}
	}
	for i := 0; i < 5; i++ {
		u32(0)
	}
	blob = binary.LittleEndian.AppendUint64(blob, 0)
	str(name)
	u32(uint32(len(pairs)))
	for _, p := range pairs {
		str(p[0])
		str(p[1])
	}
	return blob
}

// newTestContext writes one english segment covering ids 1000..5000 and
// builds a context over it.
func newTestContext(t *testing.T, pairs [][2]string) *Context {
	t.Helper()
	dir := t.TempDir()
	blob := buildStringBlob("seg", pairs)
	if err := os.WriteFile(filepath.Join(dir, "noen_english_int_1000_5000"), blob, 0o644); err != nil {
		t.Fatal(err)
	}
	ctx, err := NewContext(dir, nil, "2026-08-30T00:00:00+00:00")
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	return ctx
}

// newTestLoader serves the given asset texts from a directory source. The
// texts are plain source, so the decode pipeline passes them through
// without touching any external tool.
func newTestLoader(t *testing.T, files map[string]string) *Loader {
	t.Helper()
	dir := t.TempDir()
	for name, text := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(text), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	src, err := assets.NewDirSource(dir)
	if err != nil {
		t.Fatal(err)
	}
	return NewLoader(src, luadec.NewDecoder(slua.Unavailable{}, exttool.Tools{}))
}

func runProcessor(t *testing.T, p Processor, l *Loader, ctx *Context) map[string]any {
	t.Helper()
	out := t.TempDir()
	path, err := p(l, ctx, out)
	if err != nil {
		t.Fatalf("processor: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatalf("payload is not valid JSON: %v", err)
	}
	return payload
}

func dig(t *testing.T, v any, path ...any) any {
	t.Helper()
	for _, step := range path {
		switch key := step.(type) {
		case string:
			m, ok := v.(map[string]any)
			if !ok {
				t.Fatalf("expected object at %v, got %T", step, v)
			}
			v = m[key]
		case int:
			s, ok := v.([]any)
			if !ok || key >= len(s) {
				t.Fatalf("expected array with index %d, got %T", key, v)
			}
			v = s[key]
		}
	}
	return v
}

func TestItems(t *testing.T) {
	l := newTestLoader(t, map[string]string{
		"Table_Item": "local t = {id=1001, Type=81, NameZh='##1001', Desc='##2001'} " +
			"more {id=1002, Type=5, NameZh='##1002', Desc='##2002'}",
	})
	ctx := newTestContext(t, [][2]string{
		{"1001", "Poring Card"},
		{"1002", "Apple"},
		{"2001", "A sticky card."},
	})

	payload := runProcessor(t, Items, l, ctx)
	if got := dig(t, payload, "total"); got != float64(2) {
		t.Fatalf("total = %v, want 2", got)
	}
	if got := dig(t, payload, "items", 0, "category"); got != "cards" {
		t.Fatalf("first category = %v, want cards", got)
	}
	if got := dig(t, payload, "items", 0, "name", "english"); got != "Poring Card" {
		t.Fatalf("name = %v", got)
	}
	if got := dig(t, payload, "items", 1, "category"); got != "consumables" {
		t.Fatalf("second category = %v, want consumables", got)
	}
	if got := dig(t, payload, "categories", "cards", 0); got != float64(1001) {
		t.Fatalf("cards index = %v", got)
	}
	if got := dig(t, payload, "categories", "equipment"); len(got.([]any)) != 0 {
		t.Fatalf("equipment index = %v, want empty", got)
	}
}

func TestItemsEquipmentByName(t *testing.T) {
	l := newTestLoader(t, map[string]string{
		"Table_Item": "{id=2100, Type=5, NameZh='##1003'}",
	})
	ctx := newTestContext(t, [][2]string{{"1003", "Rusty Weapon"}})

	payload := runProcessor(t, Items, l, ctx)
	if got := dig(t, payload, "items", 0, "category"); got != "equipment" {
		t.Fatalf("category = %v, want equipment", got)
	}
}

func TestMonsters(t *testing.T) {
	l := newTestLoader(t, map[string]string{
		"Table_Monster": "{id=50001, NameZh='##1001', Zone='prt_fild', Level=10, Hp=450, Atk=32, Dead_Reward={Exp=120}}",
	})
	ctx := newTestContext(t, [][2]string{{"1001", "Poring"}})

	payload := runProcessor(t, Monsters, l, ctx)
	if got := dig(t, payload, "monsters", 0, "name", "english"); got != "Poring" {
		t.Fatalf("name = %v", got)
	}
	if got := dig(t, payload, "monsters", 0, "stats", "hp"); got != float64(450) {
		t.Fatalf("hp = %v", got)
	}
	if got := dig(t, payload, "monsters", 0, "rewards", "Exp"); got != float64(120) {
		t.Fatalf("rewards = %v", got)
	}
}

func TestSkills(t *testing.T) {
	l := newTestLoader(t, map[string]string{
		"Table_Skill_ClsBranch10": "{id=100, NameZh='##1001', Icon='skill_100', Level=1, " +
			"Desc={{text='##3001', params={5}}}} {id=100, NameZh='##1001', Level=2, " +
			"Desc={{text='##3001', params={12}}}}",
		"Table_SkillDesc": "{id=100, Desc='##3002'}",
		"Table_Skill_Left": "{id=200, NameZh='##1002', NextID=201, Icon='skill_200'} " +
			"{id=201, NameZh='##1002', NextID=0}",
	})
	ctx := newTestContext(t, [][2]string{
		{"1001", "Bash"},
		{"1002", "Sword Mastery"},
		{"3001", "Deals %d damage"},
		{"3002", "A heavy strike."},
	})

	payload := runProcessor(t, Skills, l, ctx)
	if got := dig(t, payload, "total"); got != float64(2) {
		t.Fatalf("total = %v, want 2", got)
	}

	if got := dig(t, payload, "skills", 0, "id"); got != float64(100) {
		t.Fatalf("first id = %v, want 100", got)
	}
	if got := dig(t, payload, "skills", 0, "name", "english"); got != "Bash" {
		t.Fatalf("name = %v", got)
	}
	if got := dig(t, payload, "skills", 0, "description", "english"); got != "A heavy strike." {
		t.Fatalf("description = %v", got)
	}
	if levels := dig(t, payload, "skills", 0, "levels").([]any); len(levels) != 2 {
		t.Fatalf("branch levels = %d, want 2", len(levels))
	}
	if got := dig(t, payload, "skills", 0, "levels", 0, "description", "english"); got != "Deals 5 damage" {
		t.Fatalf("level description = %v", got)
	}
	if got := dig(t, payload, "skills", 0, "levels", 1, "description", "english"); got != "Deals 12 damage" {
		t.Fatalf("level description = %v", got)
	}

	// The master chain collapses into one record rooted at the head.
	if got := dig(t, payload, "skills", 1, "id"); got != float64(200) {
		t.Fatalf("second id = %v, want 200", got)
	}
	if levels := dig(t, payload, "skills", 1, "levels").([]any); len(levels) != 2 {
		t.Fatalf("master levels = %d, want 2", len(levels))
	}
	if got := dig(t, payload, "skills", 1, "icon"); got != "skill_200" {
		t.Fatalf("icon = %v", got)
	}
}

func TestBuffsMergeAndFormula(t *testing.T) {
	l := newTestLoader(t, map[string]string{
		"Table_Buffer": "{id=1, BuffName='##1001', BuffType='atk', " +
			"BuffRate={Odds={type=2, rate=50}}} {id=2, BuffName='##1002'}",
		"Table_Buffer_NoviceServer": "{id=1, BuffName='##1002', BuffRate={Odds={type=7}}}",
	})
	ctx := newTestContext(t, [][2]string{
		{"1001", "Attack Up"},
		{"1002", "Guard"},
	})

	payload := runProcessor(t, Buffs, l, ctx)
	if got := dig(t, payload, "total"); got != float64(2) {
		t.Fatalf("total = %v, want 2", got)
	}
	// NoviceServer overwrites the base entry for id 1.
	if got := dig(t, payload, "buffs", 0, "name", "english"); got != "Guard" {
		t.Fatalf("merged name = %v", got)
	}
	if got := dig(t, payload, "buffs", 0, "buff_rate", "Odds", "formula"); got != "CommonFun.calcBuff_7" {
		t.Fatalf("formula = %v", got)
	}
	if got := dig(t, payload, "buffs", 1, "buff_rate"); got != nil {
		t.Fatalf("buff_rate = %v, want null", got)
	}
}

func TestAnnotateBuffRate(t *testing.T) {
	odds := luaval.Map([]luaval.Entry{
		{Key: luaval.String("type"), Val: luaval.String("3")},
	})
	rate := luaval.Map([]luaval.Entry{
		{Key: luaval.String("Odds"), Val: odds},
	})
	got := annotateBuffRate(rate).Get("Odds").Get("formula").Str()
	if got != "CommonFun.calcBuff_3" {
		t.Fatalf("formula = %q", got)
	}

	// A non-numeric discriminator leaves the rate untouched.
	odds = luaval.Map([]luaval.Entry{
		{Key: luaval.String("type"), Val: luaval.String("melee")},
	})
	rate = luaval.Map([]luaval.Entry{
		{Key: luaval.String("Odds"), Val: odds},
	})
	if !annotateBuffRate(rate).Equal(rate) {
		t.Fatal("rate with non-numeric type should be unchanged")
	}
}

func TestClasses(t *testing.T) {
	classText := `local Table_Class_t = {}
Table_Class = {
	[1] = {
		id = 1,
		NameZh = '##1001',
		NameEn = 'Swordsman',
		Type = 1,
		Shared = Table_Class_t,
		Empty = _EmptyTable,
	},
	[2] = {
		NameZh = '##4001',
		NameEn = 'Novice',
		Type = 0,
	},
}
for _, d in pairs(Table_Class) do setmetatable(d, nil) end
`
	l := newTestLoader(t, map[string]string{"Table_Class": classText})
	ctx := newTestContext(t, [][2]string{{"1001", "Swordman"}})

	payload := runProcessor(t, Classes, l, ctx)
	if got := dig(t, payload, "total"); got != float64(2) {
		t.Fatalf("total = %v, want 2", got)
	}
	if got := dig(t, payload, "classes", 0, "name", "english"); got != "Swordman" {
		t.Fatalf("name = %v", got)
	}
	// The metatable wiring lines are filtered before parsing.
	if got := dig(t, payload, "classes", 0, "raw", "Shared"); got != nil {
		t.Fatalf("raw.Shared = %v, want absent", got)
	}
	// Token 4001 is not in the table, so the english name stands in.
	if got := dig(t, payload, "classes", 1, "name", "english"); got != "Novice" {
		t.Fatalf("fallback name = %v", got)
	}
	// The second block has no id field; the bracket key supplies it.
	if got := dig(t, payload, "classes", 1, "id"); got != float64(2) {
		t.Fatalf("id = %v, want 2", got)
	}
}

func TestRewards(t *testing.T) {
	l := newTestLoader(t, map[string]string{
		"Table_Reward_Quest": "{id=1, Exp=100} {id=2, Exp=250}",
		"Table_Drop_Field":   "{id=9, ItemID=501}",
		"Table_Other":        "{id=3}",
	})
	ctx := newTestContext(t, nil)

	payload := runProcessor(t, Rewards, l, ctx)
	if got := dig(t, payload, "total"); got != float64(2) {
		t.Fatalf("total = %v, want 2", got)
	}
	if got := dig(t, payload, "tables", 0, "table"); got != "Table_Drop_Field" {
		t.Fatalf("first table = %v", got)
	}
	if entries := dig(t, payload, "tables", 1, "entries").([]any); len(entries) != 2 {
		t.Fatalf("reward entries = %d, want 2", len(entries))
	}
}

func TestFormatDescription(t *testing.T) {
	cases := []struct {
		name   string
		text   string
		params []luaval.Value
		want   string
	}{
		{"no params", "plain", nil, "plain"},
		{"int", "Deals %d damage", []luaval.Value{luaval.Int(5)}, "Deals 5 damage"},
		{"float as int", "%d hits", []luaval.Value{luaval.Float(2.9)}, "2 hits"},
		{"string", "Grants %s", []luaval.Value{luaval.String("haste")}, "Grants haste"},
		{"float", "%f sec", []luaval.Value{luaval.Float(1.5)}, "1.500000 sec"},
		{"escaped percent", "%d%% chance", []luaval.Value{luaval.Int(30)}, "30% chance"},
		{"too few params", "%d and %d", []luaval.Value{luaval.Int(1)}, "%d and %d"},
		{"too many params", "%d", []luaval.Value{luaval.Int(1), luaval.Int(2)}, "%d"},
		{"bad verb", "%q", []luaval.Value{luaval.Int(1)}, "%q"},
		{"string for d", "%d", []luaval.Value{luaval.String("x")}, "%d"},
		{"trailing percent", "50%", []luaval.Value{luaval.Int(1)}, "50%"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := formatDescription(tc.text, tc.params); got != tc.want {
				t.Fatalf("formatDescription(%q) = %q, want %q", tc.text, got, tc.want)
			}
		})
	}
}

func TestWithField(t *testing.T) {
	m := luaval.Map([]luaval.Entry{
		{Key: luaval.String("a"), Val: luaval.Int(1)},
		{Key: luaval.String("b"), Val: luaval.Int(2)},
	})
	replaced := withField(m, "a", luaval.Int(9))
	if replaced.Get("a").Int() != 9 || replaced.Entries()[0].Key.Str() != "a" {
		t.Fatalf("replace should keep position: %v", replaced.Entries())
	}
	appended := withField(m, "c", luaval.Int(3))
	if appended.Len() != 3 || appended.Entries()[2].Key.Str() != "c" {
		t.Fatalf("append should add at the end: %v", appended.Entries())
	}
	if m.Len() != 2 {
		t.Fatal("source map must not change")
	}
}

func TestRegistry(t *testing.T) {
	want := []string{"buffs", "classes", "items", "monsters", "rewards", "skills"}
	got := Datasets()
	if len(got) != len(want) {
		t.Fatalf("Datasets() = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Datasets() = %v, want %v", got, want)
		}
	}
	if _, ok := Lookup("items"); !ok {
		t.Fatal("items processor missing")
	}
	if _, ok := Lookup("nope"); ok {
		t.Fatal("unknown dataset should not resolve")
	}
}

func TestLoaderFallsBackToRawText(t *testing.T) {
	// 0x2A marks an encrypted chunk; with no runtime and no tools the decode
	// fails and the loader degrades to a lossy reading of the bytes.
	blob := append([]byte{0x2A}, []byte("garbage")...)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "Table_Broken"), blob, 0o644); err != nil {
		t.Fatal(err)
	}
	src, err := assets.NewDirSource(dir)
	if err != nil {
		t.Fatal(err)
	}
	l := NewLoader(src, luadec.NewDecoder(slua.Unavailable{}, exttool.Tools{}))
	text, err := l.Text("Table_Broken")
	if err != nil {
		t.Fatalf("Text: %v", err)
	}
	if text == "" {
		t.Fatal("fallback text should not be empty")
	}
}
