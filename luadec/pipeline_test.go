package luadec

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/romscript/exttool"
	"github.com/chazu/romscript/luaval"
	"github.com/chazu/romscript/slua"
)

// fakeRuntime scripts the native bridge's answers.
type fakeRuntime struct {
	compileOut []byte
	compileErr error
	extractOut luaval.Value
	extractErr error
}

func (f *fakeRuntime) Compile([]byte) ([]byte, error) {
	return f.compileOut, f.compileErr
}

func (f *fakeRuntime) RunAndExtract([]byte, string) (luaval.Value, error) {
	return f.extractOut, f.extractErr
}

// fakeDecompiler wires exttool.Tools at a shell script standing in for the
// java/unluac pair. The script emits src for any chunk handed to it; when
// needle is non-empty it only succeeds for chunks containing that byte run,
// so garbage chunks fail the way real unluac would.
func fakeDecompiler(t *testing.T, src, needle string) exttool.Tools {
	t.Helper()
	dir := t.TempDir()
	jar := filepath.Join(dir, "unluac.jar")
	if err := os.WriteFile(jar, []byte("PK"), 0o644); err != nil {
		t.Fatal(err)
	}
	java := filepath.Join(dir, "java")
	script := "#!/bin/sh\nprintf '%s' '" + src + "'\n"
	if needle != "" {
		script = "#!/bin/sh\n" +
			"if ! grep -q '" + needle + "' \"$3\"; then echo 'not a chunk' >&2; exit 1; fi\n" +
			"printf '%s' '" + src + "'\n"
	}
	if err := os.WriteFile(java, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return exttool.Tools{Java: java, Unluac: jar}
}

func TestDecodeTextEmpty(t *testing.T) {
	d := NewDecoder(slua.Unavailable{}, exttool.Tools{})
	text, err := d.DecodeText(nil, nil)
	if err != nil || text != "" {
		t.Fatalf("got %q, %v", text, err)
	}
}

func TestDecodeTextIdentityPath(t *testing.T) {
	d := NewDecoder(slua.Unavailable{}, exttool.Tools{})
	src := "local Table_Item = {}\nreturn Table_Item\n"
	text, err := d.DecodeText([]byte(src), nil)
	if err != nil {
		t.Fatalf("DecodeText: %v", err)
	}
	if text != src {
		t.Fatalf("got %q, want %q", text, src)
	}
}

func TestDecodeTextLossyOnInvalidUTF8(t *testing.T) {
	d := NewDecoder(slua.Unavailable{}, exttool.Tools{})
	text, err := d.DecodeText([]byte{'o', 'k', 0xFF, 0xFE, '!'}, nil)
	if err != nil {
		t.Fatalf("DecodeText: %v", err)
	}
	if text != "ok!" {
		t.Fatalf("got %q", text)
	}
}

func TestDecodeTextCompiledChunk(t *testing.T) {
	rt := &fakeRuntime{compileOut: []byte("\x1bLua compiled")}
	d := NewDecoder(rt, fakeDecompiler(t, "-- recovered source", ""))
	text, err := d.DecodeText(markerBlob("a.lua", 0, []byte{1, 2}), nil)
	if err != nil {
		t.Fatalf("DecodeText: %v", err)
	}
	if text != "-- recovered source" {
		t.Fatalf("got %q", text)
	}
}

func TestDecodeTextSynthesizesWhenRuntimeUnavailable(t *testing.T) {
	d := NewDecoder(slua.Unavailable{}, fakeDecompiler(t, "-- synthesized path", ""))
	text, err := d.DecodeText(markerBlob("a.lua", 0, []byte{1, 2}), nil)
	if err != nil {
		t.Fatalf("DecodeText: %v", err)
	}
	if text != "-- synthesized path" {
		t.Fatalf("got %q", text)
	}
}

func TestDecodeTextUnwrapsEncryptedEnvelope(t *testing.T) {
	// Marker-tagged but too short to synthesize, so only the envelope path
	// can recover it.
	blob := envelope([]byte{MarkerByte}, 16, mustHex(t, fixtureCT16))

	d := NewDecoder(slua.Unavailable{}, exttool.Tools{})
	text, err := d.DecodeText(blob, nil)
	if err != nil {
		t.Fatalf("DecodeText: %v", err)
	}
	if want := lossyUTF8(mustHex(t, fixturePlain16)); text != want {
		t.Fatalf("got %q, want %q", text, want)
	}
}

func TestDecodeTextUsesCompanionBlob(t *testing.T) {
	companion := envelope(nil, 16, mustHex(t, fixtureCT16))
	// Primary is marker-tagged but too short to synthesize and carries no
	// envelope of its own.
	primary := []byte{MarkerByte, 1, 2, 3}

	d := NewDecoder(slua.Unavailable{}, exttool.Tools{})
	text, err := d.DecodeText(primary, companion)
	if err != nil {
		t.Fatalf("DecodeText: %v", err)
	}
	if want := lossyUTF8(mustHex(t, fixturePlain16)); text != want {
		t.Fatalf("got %q, want %q", text, want)
	}
}

func TestDecodeTextZeroLengthEnvelopeFallsThroughToCompanion(t *testing.T) {
	// The primary's envelope declares no plaintext at all. That is a miss,
	// not a decoded empty script: the companion still holds the real one.
	primary := envelope([]byte{MarkerByte}, 0, mustHex(t, fixtureCT8))
	companion := envelope(nil, 16, mustHex(t, fixtureCT16))

	d := NewDecoder(slua.Unavailable{}, exttool.Tools{})
	text, err := d.DecodeText(primary, companion)
	if err != nil {
		t.Fatalf("DecodeText: %v", err)
	}
	if want := lossyUTF8(mustHex(t, fixturePlain16)); text != want {
		t.Fatalf("got %q, want %q", text, want)
	}
}

func TestDecodeTextDoublyWrapped(t *testing.T) {
	// Envelopes cannot be fabricated through the real cipher, so the nested
	// layers are scripted on the decoder's unwrap step; the innermost layer
	// exercises the real synthesize-and-decompile path.
	inner := markerBlob("deep.lua", 0, []byte("OPCODE-STREAM"))
	outer := []byte{MarkerByte, 'o'}
	mid := []byte{MarkerByte, 'm'}
	next := map[byte][]byte{'o': mid, 'm': inner}

	d := NewDecoder(slua.Unavailable{}, fakeDecompiler(t, "-- twice unwrapped", "OPCODE-STREAM"))
	d.unwrap = func(b []byte) ([]byte, bool) {
		if len(b) == 2 && b[0] == MarkerByte {
			if plain, ok := next[b[1]]; ok {
				return plain, true
			}
		}
		return nil, false
	}
	text, err := d.DecodeText(outer, nil)
	if err != nil {
		t.Fatalf("DecodeText: %v", err)
	}
	if text != "-- twice unwrapped" {
		t.Fatalf("got %q", text)
	}
}

func TestDecodeTextBoundsUnwrapDepth(t *testing.T) {
	// An unwrap chain that never terminates must be cut, not followed
	// forever.
	d := NewDecoder(slua.Unavailable{}, exttool.Tools{})
	d.unwrap = func(b []byte) ([]byte, bool) {
		return append([]byte{MarkerByte}, b...), true
	}
	_, err := d.DecodeText([]byte{MarkerByte, 1, 2, 3}, nil)
	if !errors.Is(err, ErrDepthExceeded) {
		t.Fatalf("err = %v, want ErrDepthExceeded", err)
	}
}

func TestDecodeTextUnknownFormat(t *testing.T) {
	d := NewDecoder(slua.Unavailable{}, exttool.Tools{})
	_, err := d.DecodeText([]byte{MarkerByte, 1, 2, 3}, nil)
	if !errors.Is(err, ErrUnknownFormat) {
		t.Fatalf("err = %v, want ErrUnknownFormat", err)
	}
}

func TestDumpTablePrefersRuntime(t *testing.T) {
	want := luaval.Map([]luaval.Entry{{Key: luaval.Int(1), Val: luaval.String("Potion")}})
	rt := &fakeRuntime{extractOut: want}
	d := NewDecoder(rt, exttool.Tools{})
	got, err := d.DumpTable([]byte{MarkerByte}, "Table_Item")
	if err != nil {
		t.Fatalf("DumpTable: %v", err)
	}
	if !got.Equal(want) {
		t.Fatalf("got %v", got)
	}
}

func TestDumpTableFaultIsTerminal(t *testing.T) {
	fault := &slua.FaultError{Msg: `table "Table_Nope" not found`}
	rt := &fakeRuntime{extractErr: fault}
	// Tools are unusable on purpose: a fault must never reach them.
	d := NewDecoder(rt, exttool.Tools{Lua: "/nonexistent/lua"})
	_, err := d.DumpTable([]byte{MarkerByte}, "Table_Nope")
	var fe *slua.FaultError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want the runtime fault", err)
	}
}

func TestDumpTableFallsBackToExternalInterpreter(t *testing.T) {
	dir := t.TempDir()
	lua := filepath.Join(dir, "lua5.3")
	script := `#!/bin/sh
printf '{"1":{"id":1}}'
`
	if err := os.WriteFile(lua, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	d := NewDecoder(slua.Unavailable{}, exttool.Tools{Lua: lua})
	got, err := d.DumpTable(markerBlob("item.lua", 0, []byte{5}), "Table_Item")
	if err != nil {
		t.Fatalf("DumpTable: %v", err)
	}
	if id, _ := got.Get("1").GetInt("id"); id != 1 {
		t.Fatalf("got %v", got)
	}
}

func TestDumpTableSynthesisFailureSurfaces(t *testing.T) {
	d := NewDecoder(slua.Unavailable{}, exttool.Tools{})
	_, err := d.DumpTable([]byte{MarkerByte, 1}, "Table_Item")
	if !errors.Is(err, ErrUnknownFormat) {
		t.Fatalf("err = %v", err)
	}
}

func TestMarkerBlobHelperShape(t *testing.T) {
	blob := markerBlob("x.lua", 0, []byte{7})
	if blob[0] != MarkerByte || !bytes.HasSuffix(blob, []byte{7}) {
		t.Fatalf("helper produced %x", blob[:8])
	}
	if !strings.Contains(string(blob), "x.lua\x00") {
		t.Fatal("helper must NUL-terminate the path")
	}
}
