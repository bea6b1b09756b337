package extract

import (
	"strings"

	"github.com/chazu/romscript/luaval"
)

var cardTypes = map[int64]struct{}{
	81: {}, 82: {}, 83: {}, 84: {}, 85: {}, 86: {}, 87: {},
}

const (
	headgearMin  = 800
	headgearMax  = 900
	furnitureMin = 900
	furnitureMax = 1000
)

var itemCategories = []string{"equipment", "headgears", "cards", "consumables", "furniture"}

func categorizeItem(record luaval.Value, name string) string {
	if itemType, ok := record.GetInt("Type"); ok {
		if _, card := cardTypes[itemType]; card {
			return "cards"
		}
		if itemType >= headgearMin && itemType < headgearMax {
			return "headgears"
		}
		if itemType >= furnitureMin && itemType < furnitureMax {
			return "furniture"
		}
	}
	if strings.Contains(name, "[1]") || strings.Contains(name, "Weapon") || strings.Contains(name, "Armor") {
		return "equipment"
	}
	return "consumables"
}

type itemRecord struct {
	ID               int64             `json:"id"`
	Type             int64             `json:"type"`
	Category         string            `json:"category"`
	Name             map[string]string `json:"name"`
	NameToken        string            `json:"name_token"`
	Description      map[string]string `json:"description"`
	DescriptionToken string            `json:"description_token"`
	Raw              luaval.Value      `json:"raw"`
	ExtractedAt      string            `json:"extracted_at"`
}

type itemsPayload struct {
	ExtractedAt string             `json:"extracted_at"`
	Languages   []string           `json:"languages"`
	Total       int                `json:"total"`
	Items       []itemRecord       `json:"items"`
	Categories  map[string][]int64 `json:"categories"`
}

// Items extracts Table_Item into items.json with per-category id indexes.
func Items(l *Loader, ctx *Context, outputDir string) (string, error) {
	records, err := l.Records("Table_Item")
	if err != nil {
		return "", err
	}

	payload := itemsPayload{
		ExtractedAt: ctx.ExtractedAt,
		Languages:   ctx.Languages,
		Categories:  make(map[string][]int64, len(itemCategories)),
	}
	for _, category := range itemCategories {
		payload.Categories[category] = []int64{}
	}

	for _, item := range records {
		id, _ := item.GetInt("id")
		nameToken, _ := item.GetString("NameZh")
		descToken, _ := item.GetString("Desc")
		names := ctx.TranslateAll(nameToken, "")
		itemType, _ := item.GetInt("Type")
		category := categorizeItem(item, ctx.firstTranslation(names))

		payload.Items = append(payload.Items, itemRecord{
			ID:               id,
			Type:             itemType,
			Category:         category,
			Name:             names,
			NameToken:        nameToken,
			Description:      ctx.TranslateAll(descToken, ""),
			DescriptionToken: descToken,
			Raw:              item,
			ExtractedAt:      ctx.ExtractedAt,
		})
		payload.Categories[category] = append(payload.Categories[category], id)
	}
	payload.Total = len(payload.Items)

	return writePayload(outputDir, "items.json", payload)
}
