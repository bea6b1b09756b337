package extract

import "github.com/chazu/romscript/luaval"

type monsterStats struct {
	HP   luaval.Value `json:"hp"`
	Atk  luaval.Value `json:"atk"`
	MAtk luaval.Value `json:"matk"`
	Def  luaval.Value `json:"def"`
	MDef luaval.Value `json:"mdef"`
	Hit  luaval.Value `json:"hit"`
	Flee luaval.Value `json:"flee"`
}

type monsterRecord struct {
	ID               int64             `json:"id"`
	Name             map[string]string `json:"name"`
	NameToken        string            `json:"name_token"`
	Description      map[string]string `json:"description"`
	DescriptionToken string            `json:"description_token"`
	Zone             luaval.Value      `json:"zone"`
	Race             luaval.Value      `json:"race"`
	Nature           luaval.Value      `json:"nature"`
	ClassType        luaval.Value      `json:"class_type"`
	Level            luaval.Value      `json:"level"`
	Stats            monsterStats      `json:"stats"`
	Rewards          luaval.Value      `json:"rewards"`
	Raw              luaval.Value      `json:"raw"`
	ExtractedAt      string            `json:"extracted_at"`
}

type monstersPayload struct {
	ExtractedAt string          `json:"extracted_at"`
	Languages   []string        `json:"languages"`
	Total       int             `json:"total"`
	Monsters    []monsterRecord `json:"monsters"`
}

// Monsters extracts Table_Monster into monsters.json.
func Monsters(l *Loader, ctx *Context, outputDir string) (string, error) {
	records, err := l.Records("Table_Monster")
	if err != nil {
		return "", err
	}

	payload := monstersPayload{
		ExtractedAt: ctx.ExtractedAt,
		Languages:   ctx.Languages,
	}
	for _, monster := range records {
		id, _ := monster.GetInt("id")
		nameToken, _ := monster.GetString("NameZh")
		descToken, _ := monster.GetString("Desc")
		payload.Monsters = append(payload.Monsters, monsterRecord{
			ID:               id,
			Name:             ctx.TranslateAll(nameToken, ""),
			NameToken:        nameToken,
			Description:      ctx.TranslateAll(descToken, ""),
			DescriptionToken: descToken,
			Zone:             monster.Get("Zone"),
			Race:             monster.Get("Race"),
			Nature:           monster.Get("Nature"),
			ClassType:        monster.Get("ClassType"),
			Level:            monster.Get("Level"),
			Stats: monsterStats{
				HP:   monster.Get("Hp"),
				Atk:  monster.Get("Atk"),
				MAtk: monster.Get("MAtk"),
				Def:  monster.Get("Def"),
				MDef: monster.Get("MDef"),
				Hit:  monster.Get("Hit"),
				Flee: monster.Get("Flee"),
			},
			Rewards:     monster.Get("Dead_Reward"),
			Raw:         monster,
			ExtractedAt: ctx.ExtractedAt,
		})
	}
	payload.Total = len(payload.Monsters)

	return writePayload(outputDir, "monsters.json", payload)
}
