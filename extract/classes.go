package extract

import (
	"errors"
	"sort"
	"strconv"
	"strings"

	"github.com/chazu/romscript/assets"
	"github.com/chazu/romscript/luadec"
	"github.com/chazu/romscript/luaval"
)

// classAssets in merge order, the NoviceServer variant overwriting the base
// table.
var classAssets = []string{"Table_Class", "Table_Class_NoviceServer"}

type classRecord struct {
	ID               int64             `json:"id"`
	Name             map[string]string `json:"name"`
	NameToken        string            `json:"name_token"`
	Description      map[string]string `json:"description"`
	DescriptionToken string            `json:"description_token"`
	EnglishName      luaval.Value      `json:"english_name"`
	Icon             luaval.Value      `json:"icon"`
	Type             luaval.Value      `json:"type"`
	TypeBranch       luaval.Value      `json:"type_branch"`
	Race             luaval.Value      `json:"race"`
	DefaultWeapon    luaval.Value      `json:"default_weapon"`
	Raw              luaval.Value      `json:"raw"`
	ExtractedAt      string            `json:"extracted_at"`
}

type classesPayload struct {
	ExtractedAt string        `json:"extracted_at"`
	Languages   []string      `json:"languages"`
	Total       int           `json:"total"`
	Classes     []classRecord `json:"classes"`
}

// Classes extracts the class property tables into classes.json. Unlike the
// record tables, class scripts declare one big `Table_Class = { [id] = {...} }`
// literal, so the entries are carved out of the decoded source by bracket
// scanning rather than the id= heuristic.
func Classes(l *Loader, ctx *Context, outputDir string) (string, error) {
	classes := make(map[int64]luaval.Value)
	for _, asset := range classAssets {
		text, err := l.Text(asset)
		if err != nil {
			if errors.Is(err, assets.ErrNotFound) {
				continue
			}
			return "", err
		}
		for id, block := range classBlocks(text) {
			data, err := parseClassBlock(block)
			if err != nil {
				continue
			}
			if _, ok := data.GetInt("id"); !ok {
				data = withField(data, "id", luaval.Int(id))
			}
			classes[id] = data
		}
	}

	ids := make([]int64, 0, len(classes))
	for id := range classes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	payload := classesPayload{
		ExtractedAt: ctx.ExtractedAt,
		Languages:   ctx.Languages,
	}
	for _, id := range ids {
		data := classes[id]
		nameToken, _ := data.GetString("NameZh")
		descToken, _ := data.GetString("Desc")
		englishName := data.Get("NameEn")
		payload.Classes = append(payload.Classes, classRecord{
			ID:               id,
			Name:             ctx.TranslateAll(nameToken, englishName.Str()),
			NameToken:        nameToken,
			Description:      ctx.TranslateAll(descToken, ""),
			DescriptionToken: descToken,
			EnglishName:      englishName,
			Icon:             data.Get("icon"),
			Type:             data.Get("Type"),
			TypeBranch:       data.Get("TypeBranch"),
			Race:             data.Get("Race"),
			DefaultWeapon:    data.Get("DefaultWeapon"),
			Raw:              data,
			ExtractedAt:      ctx.ExtractedAt,
		})
	}
	payload.Total = len(payload.Classes)

	return writePayload(outputDir, "classes.json", payload)
}

// classBlocks carves the `[id] = { ... }` blocks out of the Table_Class
// declaration. Each block body is returned without its outer braces.
func classBlocks(text string) map[int64]string {
	start := strings.Index(text, "Table_Class = {")
	if start < 0 {
		return nil
	}
	body := text[start:]
	open := strings.IndexByte(body, '{')
	end := strings.LastIndexByte(body, '}')
	if open < 0 || end <= open {
		return nil
	}
	inner := body[open+1 : end]

	blocks := make(map[int64]string)
	idx := 0
	for idx < len(inner) {
		if inner[idx] != '[' {
			idx++
			continue
		}
		keyEnd := strings.IndexByte(inner[idx:], ']')
		if keyEnd < 0 {
			break
		}
		keyEnd += idx
		id, err := strconv.ParseInt(strings.TrimSpace(inner[idx+1:keyEnd]), 10, 64)
		if err != nil {
			idx = keyEnd + 1
			continue
		}
		braceStart := strings.IndexByte(inner[keyEnd:], '{')
		if braceStart < 0 {
			break
		}
		braceStart += keyEnd
		depth := 1
		pos := braceStart + 1
		for pos < len(inner) && depth > 0 {
			switch inner[pos] {
			case '{':
				depth++
			case '}':
				depth--
			}
			pos++
		}
		if depth != 0 {
			break
		}
		blocks[id] = inner[braceStart+1 : pos-1]
		idx = pos
	}
	return blocks
}

// parseClassBlock strips the lines that reference shared metatable helpers
// and parses the remainder as a table literal. Those lines carry runtime
// wiring, not data, and the literal parser has no business seeing them.
func parseClassBlock(block string) (luaval.Value, error) {
	var kept []string
	for _, line := range strings.Split(block, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if strings.Contains(line, "Table_Class_t") || strings.Contains(line, "_EmptyTable") {
			continue
		}
		kept = append(kept, line)
	}
	return luadec.ParseLiteral("{" + strings.Join(kept, "\n") + "}")
}
