package translate

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

// buildBlob assembles a string-table blob in the client's layout.
func buildBlob(name string, pairs [][2]string) []byte {
	var b []byte
	u32 := func(v uint32) { b = binary.LittleEndian.AppendUint32(b, v) }
	str := func(s string) {
		u32(uint32(len(s)))
		b = append(b, s...)
		for len(b)%4 != 0 {
			b = append(b, 0)
		}
	}
	for i := 0; i < 5; i++ {
		u32(0xDEAD0000 + uint32(i))
	}
	b = binary.LittleEndian.AppendUint64(b, 0x1122334455667788)
	str(name)
	u32(uint32(len(pairs)))
	for _, pair := range pairs {
		str(pair[0])
		str(pair[1])
	}
	return b
}

func TestParseBlob(t *testing.T) {
	blob := buildBlob("english_table", [][2]string{
		{"125001", "Potion"},
		{"125002", "A well-aged red potion"},
		{"odd", "x"}, // 3-byte key exercises alignment
	})
	got, err := ParseBlob(blob)
	if err != nil {
		t.Fatalf("ParseBlob: %v", err)
	}
	want := map[string]string{
		"125001": "Potion",
		"125002": "A well-aged red potion",
		"odd":    "x",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestParseBlobTruncated(t *testing.T) {
	blob := buildBlob("t", [][2]string{{"1", "one"}})
	for _, cut := range []int{0, 4, 19, 38} {
		if _, err := ParseBlob(blob[:cut]); !errors.Is(err, errShortBlob) {
			t.Errorf("ParseBlob(blob[:%d]) err = %v", cut, err)
		}
	}
}

func writeSegments(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	write := func(name string, blob []byte) {
		if err := os.WriteFile(filepath.Join(dir, name), blob, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("noen_english_int_125000_125999.unity3d", buildBlob("seg1", [][2]string{
		{"125001", "Potion"},
	}))
	write("noen_english_int_126000_126999.unity3d", buildBlob("seg2", [][2]string{
		{"126500", "Ether"},
	}))
	write("noen_german_int_125000_125999.unity3d", buildBlob("seg1de", [][2]string{
		{"125001", "Trank"},
	}))
	write("english.unity3d", buildBlob("direct", [][2]string{
		{"ITEM_TITLE", "Items"},
	}))
	return dir
}

func TestLookupTranslate(t *testing.T) {
	l, err := NewLookup(writeSegments(t), "english")
	if err != nil {
		t.Fatalf("NewLookup: %v", err)
	}
	tests := []struct{ token, want string }{
		{"##125001", "Potion"},
		{"##126500", "Ether"},
		{"##125999", "##125999"}, // in range, no entry
		{"##999999", "##999999"}, // outside every range
		{"##abc", "##abc"},       // malformed id
		{"ITEM_TITLE", "Items"},  // direct table
		{"UNKNOWN", "UNKNOWN"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := l.Translate(tt.token); got != tt.want {
			t.Errorf("Translate(%q) = %q, want %q", tt.token, got, tt.want)
		}
	}
}

func TestLookupIsLanguageScoped(t *testing.T) {
	l, err := NewLookup(writeSegments(t), "german")
	if err != nil {
		t.Fatalf("NewLookup: %v", err)
	}
	if got := l.Translate("##125001"); got != "Trank" {
		t.Fatalf("Translate = %q", got)
	}
	if got := l.Translate("##126500"); got != "##126500" {
		t.Fatalf("german lookup should miss english-only segment, got %q", got)
	}
}

func TestLookupCachesSegments(t *testing.T) {
	dir := writeSegments(t)
	l, err := NewLookup(dir, "english")
	if err != nil {
		t.Fatal(err)
	}
	if got := l.Translate("##125001"); got != "Potion" {
		t.Fatalf("Translate = %q", got)
	}
	// The segment table must come from the cache now.
	if err := os.Remove(filepath.Join(dir, "noen_english_int_125000_125999.unity3d")); err != nil {
		t.Fatal(err)
	}
	if got := l.Translate("##125001"); got != "Potion" {
		t.Fatalf("cached Translate = %q", got)
	}
}

func TestLanguages(t *testing.T) {
	langs, err := Languages(writeSegments(t))
	if err != nil {
		t.Fatalf("Languages: %v", err)
	}
	if !reflect.DeepEqual(langs, []string{"english", "german"}) {
		t.Fatalf("langs = %v", langs)
	}
}
