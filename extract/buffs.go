package extract

import (
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/chazu/romscript/assets"
	"github.com/chazu/romscript/luaval"
)

// bufferTables in merge order: later tables overwrite earlier ones, so the
// NoviceServer variant wins.
var bufferTables = []string{
	"Table_Buffer",
	"Table_Buffer_bk",
	"Table_Buffer_NoviceServer",
}

type buffRecord struct {
	ID               int64             `json:"id"`
	Name             map[string]string `json:"name"`
	NameToken        string            `json:"name_token"`
	Description      map[string]string `json:"description"`
	DescriptionToken string            `json:"description_token"`
	BuffType         luaval.Value      `json:"buff_type"`
	BuffRate         luaval.Value      `json:"buff_rate"`
	Logic            luaval.Value      `json:"logic"`
	StateEffect      luaval.Value      `json:"state_effect"`
	BuffEffect       luaval.Value      `json:"buff_effect"`
	ExtractedAt      string            `json:"extracted_at"`
	Raw              luaval.Value      `json:"raw"`
}

type buffsPayload struct {
	ExtractedAt string       `json:"extracted_at"`
	Languages   []string     `json:"languages"`
	Total       int          `json:"total"`
	Buffs       []buffRecord `json:"buffs"`
}

// Buffs merges the buffer tables into buffs.json. The Odds block inside
// BuffRate gets a formula tag naming the CommonFun.calcBuff_<type> routine
// the client dispatches on.
func Buffs(l *Loader, ctx *Context, outputDir string) (string, error) {
	merged := make(map[int64]luaval.Value)
	for _, table := range bufferTables {
		records, err := l.Records(table)
		if err != nil {
			if errors.Is(err, assets.ErrNotFound) {
				continue
			}
			return "", err
		}
		for _, entry := range records {
			if id, ok := entry.GetInt("id"); ok {
				merged[id] = entry
			}
		}
	}

	ids := make([]int64, 0, len(merged))
	for id := range merged {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	payload := buffsPayload{
		ExtractedAt: ctx.ExtractedAt,
		Languages:   ctx.Languages,
	}
	for _, id := range ids {
		entry := merged[id]
		nameToken, _ := entry.GetString("BuffName")
		descToken, _ := entry.GetString("BuffDesc")
		payload.Buffs = append(payload.Buffs, buffRecord{
			ID:               id,
			Name:             ctx.TranslateAll(nameToken, ""),
			NameToken:        nameToken,
			Description:      ctx.TranslateAll(descToken, ""),
			DescriptionToken: descToken,
			BuffType:         entry.Get("BuffType"),
			BuffRate:         annotateBuffRate(entry.Get("BuffRate")),
			Logic:            entry.Get("Logic"),
			StateEffect:      entry.Get("StateEffect"),
			BuffEffect:       entry.Get("BuffEffect"),
			ExtractedAt:      ctx.ExtractedAt,
			Raw:              entry,
		})
	}
	payload.Total = len(payload.Buffs)

	return writePayload(outputDir, "buffs.json", payload)
}

// annotateBuffRate tags the Odds block with its dispatch formula when the
// type discriminator can be read as an integer.
func annotateBuffRate(rate luaval.Value) luaval.Value {
	if rate.Kind() != luaval.KindMap {
		return rate
	}
	odds := rate.Get("Odds")
	if odds.Kind() != luaval.KindMap {
		return rate
	}
	typeValue, ok := oddsType(odds.Get("type"))
	if !ok {
		return rate
	}
	formula := fmt.Sprintf("CommonFun.calcBuff_%d", typeValue)
	return withField(rate, "Odds", withField(odds, "formula", luaval.String(formula)))
}

func oddsType(v luaval.Value) (int64, bool) {
	switch v.Kind() {
	case luaval.KindInt:
		return v.Int(), true
	case luaval.KindString:
		n, err := strconv.ParseInt(v.Str(), 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// withField returns a copy of map value m with the string-keyed field set,
// replacing in place or appending at the end.
func withField(m luaval.Value, field string, val luaval.Value) luaval.Value {
	entries := m.Entries()
	out := make([]luaval.Entry, 0, len(entries)+1)
	replaced := false
	for _, entry := range entries {
		if entry.Key.Kind() == luaval.KindString && entry.Key.Str() == field {
			out = append(out, luaval.Entry{Key: entry.Key, Val: val})
			replaced = true
			continue
		}
		out = append(out, entry)
	}
	if !replaced {
		out = append(out, luaval.Entry{Key: luaval.String(field), Val: val})
	}
	return luaval.Map(out)
}
