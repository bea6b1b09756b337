package extract

import (
	"errors"
	"sort"
	"strconv"
	"strings"

	"github.com/chazu/romscript/assets"
	"github.com/chazu/romscript/luaval"
)

// skillDescTables in priority order: the first table that names a skill id
// wins.
var skillDescTables = []string{
	"Table_SkillDesc",
	"Table_SkillDesc_NoviceServer",
	"Table_SkillDesc_bk",
}

// masterSkillTables chain skill levels through NextID instead of listing
// them per branch. The NoviceServer variant is parsed last and wins.
var masterSkillTables = []string{
	"Table_Skill_Left",
	"Table_Skill_Left_NoviceServer",
}

const branchTablePrefix = "Table_Skill_ClsBranch"

type skillRecord struct {
	ID               int64             `json:"id"`
	Name             map[string]string `json:"name"`
	NameToken        string            `json:"name_token"`
	Description      map[string]string `json:"description"`
	DescriptionToken string            `json:"description_token"`
	Icon             luaval.Value      `json:"icon"`
	Levels           []luaval.Value    `json:"levels"`
	ExtractedAt      string            `json:"extracted_at"`
}

type skillsPayload struct {
	ExtractedAt string        `json:"extracted_at"`
	Languages   []string      `json:"languages"`
	Total       int           `json:"total"`
	Skills      []skillRecord `json:"skills"`
}

// Skills extracts the class branch and master skill tables into skills.json.
// Branch tables list one entry per skill level; master skills chain their
// levels through NextID and are stitched back into ordered level lists.
func Skills(l *Loader, ctx *Context, outputDir string) (string, error) {
	descMap, descTokens, err := loadSkillDescriptions(l, ctx)
	if err != nil {
		return "", err
	}

	records, err := branchSkills(l, ctx, descMap, descTokens)
	if err != nil {
		return "", err
	}
	masters, err := masterSkills(l, ctx, descMap, descTokens)
	if err != nil {
		return "", err
	}
	records = append(records, masters...)
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })

	payload := skillsPayload{
		ExtractedAt: ctx.ExtractedAt,
		Languages:   ctx.Languages,
		Total:       len(records),
		Skills:      records,
	}
	return writePayload(outputDir, "skills.json", payload)
}

// loadSkillDescriptions resolves the top-level description for each skill id.
func loadSkillDescriptions(l *Loader, ctx *Context) (map[int64]map[string]string, map[int64]string, error) {
	descriptions := make(map[int64]map[string]string)
	tokens := make(map[int64]string)
	for _, table := range skillDescTables {
		records, err := l.Records(table)
		if err != nil {
			if errors.Is(err, assets.ErrNotFound) {
				continue
			}
			return nil, nil, err
		}
		for _, entry := range records {
			id, ok := entry.GetInt("id")
			if !ok {
				continue
			}
			if _, seen := descriptions[id]; seen {
				continue
			}
			token, _ := entry.GetString("Desc")
			descriptions[id] = ctx.TranslateAll(token, "")
			tokens[id] = token
		}
	}
	return descriptions, tokens, nil
}

// branchSkills groups the per-level entries of every ClsBranch table by
// skill id.
func branchSkills(l *Loader, ctx *Context, descMap map[int64]map[string]string, descTokens map[int64]string) ([]skillRecord, error) {
	names, err := l.Names(branchTablePrefix)
	if err != nil {
		return nil, err
	}

	grouped := make(map[int64][]luaval.Value)
	var order []int64
	for _, name := range names {
		entries, err := l.Records(name)
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			id, ok := entry.GetInt("id")
			if !ok {
				continue
			}
			if desc := buildLevelDescription(entry, ctx); !desc.IsNil() {
				entry = withField(entry, "description", desc)
			}
			if _, seen := grouped[id]; !seen {
				order = append(order, id)
			}
			grouped[id] = append(grouped[id], entry)
		}
	}

	records := make([]skillRecord, 0, len(order))
	for _, id := range order {
		levels := grouped[id]
		nameToken, _ := levels[0].GetString("NameZh")
		records = append(records, skillRecord{
			ID:               id,
			Name:             ctx.TranslateAll(nameToken, ""),
			NameToken:        nameToken,
			Description:      skillDescription(descMap, ctx, id),
			DescriptionToken: descTokens[id],
			Icon:             levels[0].Get("Icon"),
			Levels:           levels,
			ExtractedAt:      ctx.ExtractedAt,
		})
	}
	return records, nil
}

type masterEntry struct {
	raw       luaval.Value
	nameToken string
}

// masterSkills loads the Skill_Left tables and chains each NextID sequence
// into one record whose levels run from the chain head onward.
func masterSkills(l *Loader, ctx *Context, descMap map[int64]map[string]string, descTokens map[int64]string) ([]skillRecord, error) {
	entries := make(map[int64]masterEntry)
	for _, table := range masterSkillTables {
		records, err := l.Records(table)
		if err != nil {
			if errors.Is(err, assets.ErrNotFound) {
				continue
			}
			return nil, err
		}
		for _, raw := range records {
			id, ok := raw.GetInt("id")
			if !ok {
				continue
			}
			entry := masterEntry{raw: raw}
			if name, ok := raw.GetString("NameZh"); ok && strings.HasPrefix(name, "##") {
				entry.nameToken = name
			}
			if prev, seen := entries[id]; seen && entry.nameToken == "" {
				entry.nameToken = prev.nameToken
			}
			entries[id] = entry
		}
	}
	if len(entries) == 0 {
		return nil, nil
	}

	prev := make(map[int64]int64)
	for id, entry := range entries {
		if next, ok := entry.raw.GetInt("NextID"); ok && next != 0 {
			prev[next] = id
		}
	}

	ids := make([]int64, 0, len(entries))
	for id := range entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	visited := make(map[int64]bool)
	var records []skillRecord
	for _, id := range ids {
		if visited[id] {
			continue
		}
		head := id
		for {
			p, ok := prev[head]
			if !ok {
				break
			}
			head = p
		}
		if visited[head] {
			continue
		}

		var levels []luaval.Value
		guard := make(map[int64]bool)
		for current := head; !guard[current]; {
			entry, ok := entries[current]
			if !ok {
				break
			}
			level := entry.raw
			if desc := buildLevelDescription(level, ctx); !desc.IsNil() {
				level = withField(level, "description", desc)
			}
			levels = append(levels, level)
			visited[current] = true
			guard[current] = true
			next, ok := entry.raw.GetInt("NextID")
			if !ok || next == 0 {
				break
			}
			current = next
		}
		if len(levels) == 0 {
			continue
		}

		headEntry := entries[head]
		nameToken := headEntry.nameToken
		if nameToken == "" {
			nameToken, _ = headEntry.raw.GetString("NameZh")
		}
		records = append(records, skillRecord{
			ID:               head,
			Name:             ctx.TranslateAll(nameToken, ""),
			NameToken:        nameToken,
			Description:      skillDescription(descMap, ctx, head),
			DescriptionToken: descTokens[head],
			Icon:             levels[0].Get("Icon"),
			Levels:           levels,
			ExtractedAt:      ctx.ExtractedAt,
		})
	}
	return records, nil
}

func skillDescription(descMap map[int64]map[string]string, ctx *Context, id int64) map[string]string {
	if desc, ok := descMap[id]; ok {
		return desc
	}
	return ctx.TranslateAll("", "")
}

// buildLevelDescription renders the Desc blocks of a level entry into one
// localized string per language. Each block carries either a literal token
// or a numeric translation id, plus positional parameters substituted into
// the localized text. It returns nil when the entry has no usable blocks.
func buildLevelDescription(entry luaval.Value, ctx *Context) luaval.Value {
	blocks := entry.Get("Desc")
	if blocks.Kind() != luaval.KindArray || blocks.Len() == 0 {
		return luaval.Nil()
	}
	perLang := make(map[string][]string, len(ctx.Languages))
	for _, block := range blocks.Elems() {
		token, _ := block.GetString("text")
		if token == "" {
			id, ok := block.GetInt("id")
			if !ok {
				continue
			}
			token = "##" + strconv.FormatInt(id, 10)
		}
		localized := ctx.TranslateAll(token, token)
		params := block.Get("params").Elems()
		for _, lang := range ctx.Languages {
			text := localized[lang]
			if text == "" {
				continue
			}
			perLang[lang] = append(perLang[lang], formatDescription(text, params))
		}
	}

	var fields []luaval.Entry
	for _, lang := range ctx.Languages {
		parts := perLang[lang]
		if len(parts) == 0 {
			continue
		}
		fields = append(fields, luaval.Entry{
			Key: luaval.String(lang),
			Val: luaval.String(strings.Join(parts, "\n")),
		})
	}
	if len(fields) == 0 {
		return luaval.Nil()
	}
	return luaval.Map(fields)
}

// formatDescription substitutes params into printf-style %d, %s and %f
// verbs. When the verbs and parameters do not line up the original text is
// returned untouched, which is how malformed game strings stay visible.
func formatDescription(text string, params []luaval.Value) string {
	if len(params) == 0 {
		return text
	}
	var out strings.Builder
	next := 0
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c != '%' {
			out.WriteByte(c)
			continue
		}
		if i+1 >= len(text) {
			return text
		}
		i++
		verb := text[i]
		if verb == '%' {
			out.WriteByte('%')
			continue
		}
		if next >= len(params) {
			return text
		}
		formatted, ok := formatParam(verb, params[next])
		if !ok {
			return text
		}
		out.WriteString(formatted)
		next++
	}
	if next != len(params) {
		return text
	}
	return out.String()
}

func formatParam(verb byte, v luaval.Value) (string, bool) {
	switch verb {
	case 'd':
		switch v.Kind() {
		case luaval.KindInt:
			return strconv.FormatInt(v.Int(), 10), true
		case luaval.KindFloat:
			return strconv.FormatInt(int64(v.Float()), 10), true
		}
		return "", false
	case 'f':
		switch v.Kind() {
		case luaval.KindInt, luaval.KindFloat:
			return strconv.FormatFloat(v.Float(), 'f', 6, 64), true
		}
		return "", false
	case 's':
		switch v.Kind() {
		case luaval.KindString:
			return v.Str(), true
		case luaval.KindInt:
			return strconv.FormatInt(v.Int(), 10), true
		case luaval.KindFloat:
			return strconv.FormatFloat(v.Float(), 'g', -1, 64), true
		case luaval.KindBool:
			return strconv.FormatBool(v.Bool()), true
		}
		return "", false
	}
	return "", false
}
