package extract

import (
	"sort"

	"github.com/chazu/romscript/luaval"
)

// rewardPrefixes name the table families bundled into the rewards dataset.
var rewardPrefixes = []string{
	"Table_Reward",
	"Table_Drop",
	"Table_Loot",
}

type rewardTable struct {
	Table      string         `json:"table"`
	Entries    []luaval.Value `json:"entries"`
	DatasetTag string         `json:"dataset_tag"`
}

type rewardsPayload struct {
	ExtractedAt string        `json:"extracted_at"`
	Tables      []rewardTable `json:"tables"`
	Total       int           `json:"total"`
}

// Rewards collects every reward, drop and loot table into rewards.json,
// one bucket per source table. Tables that fail to decode or hold no
// records are skipped.
func Rewards(l *Loader, ctx *Context, outputDir string) (string, error) {
	bucket := make(map[string][]luaval.Value)
	for _, prefix := range rewardPrefixes {
		names, err := l.Names(prefix)
		if err != nil {
			return "", err
		}
		for _, name := range names {
			entries, err := l.Records(name)
			if err != nil || len(entries) == 0 {
				continue
			}
			bucket[name] = entries
		}
	}

	tables := make([]string, 0, len(bucket))
	for name := range bucket {
		tables = append(tables, name)
	}
	sort.Strings(tables)

	payload := rewardsPayload{
		ExtractedAt: ctx.ExtractedAt,
		Total:       len(tables),
	}
	for _, name := range tables {
		payload.Tables = append(payload.Tables, rewardTable{
			Table:      name,
			Entries:    bucket[name],
			DatasetTag: ctx.ExtractedAt,
		})
	}

	return writePayload(outputDir, "rewards.json", payload)
}
