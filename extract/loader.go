package extract

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/chazu/romscript/assets"
	"github.com/chazu/romscript/luadec"
	"github.com/chazu/romscript/luaval"
)

// Loader fetches asset blobs and decodes them into text or records.
type Loader struct {
	src assets.Source
	dec *luadec.Decoder
	log commonlog.Logger
}

// NewLoader wires an asset source to the decode pipeline.
func NewLoader(src assets.Source, dec *luadec.Decoder) *Loader {
	return &Loader{
		src: src,
		dec: dec,
		log: commonlog.GetLogger("romscript.extract"),
	}
}

// Text returns the decoded source text of the named asset. Decode failures
// degrade to a lossy UTF-8 reading of the raw bytes, matching how partially
// corrupted assets are still worth scanning for literal records.
func (l *Loader) Text(name string) (string, error) {
	obj, err := l.src.Get(name)
	if err != nil {
		return "", err
	}
	text, err := l.dec.DecodeText(obj.Data, obj.Raw)
	if err != nil {
		l.log.Warningf("decode %s: %s, falling back to raw text", name, err)
		return strings.ToValidUTF8(string(obj.Data), ""), nil
	}
	return text, nil
}

// Records returns the literal table records scanned out of the named asset.
func (l *Loader) Records(name string) ([]luaval.Value, error) {
	text, err := l.Text(name)
	if err != nil {
		return nil, err
	}
	return luadec.ScanRecords(text), nil
}

// Names lists assets with the given prefix.
func (l *Loader) Names(prefix string) ([]string, error) {
	return l.src.Names(prefix)
}

// writePayload renders payload as indented JSON under dir.
func writePayload(dir, filename string, payload any) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("extract: %w", err)
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("extract: marshal %s: %w", filename, err)
	}
	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("extract: %w", err)
	}
	return path, nil
}
