// Package luadec recovers script source text and data tables from the
// encrypted TextAsset blobs the game client ships. It layers a fixed set of
// strategies: compile through the native runtime, synthesize a loadable
// chunk by hand, and unwrap DES-encrypted envelopes, handing compiled chunks
// to external tools for decompilation or table extraction.
package luadec

import (
	"errors"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/chazu/romscript/exttool"
	"github.com/chazu/romscript/luaval"
	"github.com/chazu/romscript/slua"
)

// maxUnwrapDepth bounds how many encrypted envelopes DecodeText will peel
// before giving up on a marker chain that never terminates.
const maxUnwrapDepth = 2

// Decoder orchestrates the decode strategies. All collaborators are
// injected; the zero value is not usable.
type Decoder struct {
	runtime slua.Runtime
	tools   exttool.Tools
	unwrap  func([]byte) ([]byte, bool)
	log     commonlog.Logger
}

// NewDecoder builds a Decoder around the given runtime bridge and external
// tool set.
func NewDecoder(runtime slua.Runtime, tools exttool.Tools) *Decoder {
	return &Decoder{
		runtime: runtime,
		tools:   tools,
		unwrap:  UnwrapPayload,
		log:     commonlog.GetLogger("romscript.decode"),
	}
}

// DecodeText recovers source text from a TextAsset blob. companion is an
// optional second copy of the same object's raw bytes, which is sometimes
// encrypted when the primary is not; it may be nil.
func (d *Decoder) DecodeText(blob, companion []byte) (string, error) {
	return d.decodeText(blob, companion, 0)
}

func (d *Decoder) decodeText(blob, companion []byte, unwraps int) (string, error) {
	if len(blob) == 0 {
		return "", nil
	}
	if blob[0] != MarkerByte {
		return lossyUTF8(blob), nil
	}

	var lastErr error

	chunk, err := d.runtime.Compile(blob)
	if err != nil {
		if !errors.Is(err, slua.ErrUnavailable) {
			lastErr = err
		}
		d.log.Debugf("runtime compile unavailable, synthesizing: %s", err)
		chunk, err = SynthesizeChunk(blob)
		if err != nil {
			if lastErr == nil {
				lastErr = err
			}
			chunk = nil
		}
	}
	if chunk != nil {
		text, err := d.tools.Decompile(chunk)
		if err == nil {
			return text, nil
		}
		d.log.Debugf("decompile failed: %s", err)
		lastErr = err
	}

	if unwraps >= maxUnwrapDepth {
		return "", ErrDepthExceeded
	}
	for _, b := range [][]byte{blob, companion} {
		if len(b) == 0 {
			continue
		}
		plain, ok := d.unwrap(b)
		if !ok || len(plain) == 0 {
			// A zero-length envelope is a miss, not a hit: the
			// companion may still carry the real one.
			continue
		}
		if plain[0] == MarkerByte {
			return d.decodeText(plain, nil, unwraps+1)
		}
		return lossyUTF8(plain), nil
	}

	if lastErr != nil {
		return "", lastErr
	}
	return "", ErrUnknownFormat
}

// DumpTable loads and executes a TextAsset blob and returns the named global
// table. The native runtime is preferred; when it is absent the chunk is
// compiled or synthesized and handed to the external interpreter. A runtime
// fault (the chunk loaded but the table is missing or not a table) fails
// immediately: every other strategy would hit the same logical fault, so
// falling back would only mask a caller error.
func (d *Decoder) DumpTable(blob []byte, tableName string) (luaval.Value, error) {
	v, err := d.runtime.RunAndExtract(blob, tableName)
	if err == nil {
		return v, nil
	}
	if !errors.Is(err, slua.ErrUnavailable) {
		return luaval.Value{}, err
	}

	d.log.Debugf("runtime unavailable for table %q, using external interpreter", tableName)
	chunk, err := d.runtime.Compile(blob)
	if err != nil {
		chunk, err = SynthesizeChunk(blob)
		if err != nil {
			return luaval.Value{}, err
		}
	}
	return d.tools.DumpTable(chunk, tableName)
}

// lossyUTF8 decodes b as UTF-8, dropping invalid byte runs.
func lossyUTF8(b []byte) string {
	return strings.ToValidUTF8(string(b), "")
}
