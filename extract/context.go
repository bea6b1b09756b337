// Package extract turns decoded game tables into dataset JSON files. Each
// processor owns one dataset: it loads the tables it needs through a Loader,
// localizes the token fields through the shared Context, and writes a
// payload file into the output directory.
package extract

import (
	"fmt"

	"github.com/chazu/romscript/translate"
)

// Context carries what every processor needs: the languages being exported,
// one translation lookup per language, and the timestamp stamped into each
// record.
type Context struct {
	Languages   []string
	Lookups     map[string]*translate.Lookup
	ExtractedAt string
}

// NewContext builds per-language lookups over translateDir. When languages
// is empty the directory is scanned for every available language.
func NewContext(translateDir string, languages []string, extractedAt string) (*Context, error) {
	if len(languages) == 0 {
		discovered, err := translate.Languages(translateDir)
		if err != nil {
			return nil, err
		}
		languages = discovered
	}
	lookups := make(map[string]*translate.Lookup, len(languages))
	for _, lang := range languages {
		l, err := translate.NewLookup(translateDir, lang)
		if err != nil {
			return nil, fmt.Errorf("extract: lookup for %s: %w", lang, err)
		}
		lookups[lang] = l
	}
	return &Context{
		Languages:   languages,
		Lookups:     lookups,
		ExtractedAt: extractedAt,
	}, nil
}

// TranslateAll resolves token in every configured language. When fallback is
// non-empty it replaces resolutions that failed (came back empty or
// unchanged).
func (c *Context) TranslateAll(token, fallback string) map[string]string {
	results := make(map[string]string, len(c.Languages))
	for lang, lookup := range c.Lookups {
		value := lookup.Translate(token)
		if fallback != "" && (value == token || value == "") {
			value = fallback
		}
		results[lang] = value
	}
	return results
}

// firstTranslation returns the resolution for the first configured language,
// giving processors a deterministic representative string.
func (c *Context) firstTranslation(translations map[string]string) string {
	for _, lang := range c.Languages {
		if v, ok := translations[lang]; ok {
			return v
		}
	}
	return ""
}
