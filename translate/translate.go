// Package translate reads the localized string tables bundled with the
// client. Strings are addressed by numeric tokens of the form ##NNNN and
// stored across range-partitioned segment files named
// noen_<lang>_int_<start>_<end>; anything that is not a numeric token falls
// through to a per-language direct table.
package translate

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/tliron/commonlog"
)

var segmentRe = regexp.MustCompile(`^noen_([a-z]+)_int_(\d+)_(\d+)`)

var errShortBlob = errors.New("translate: unexpected end of blob")

// ParseBlob decodes a string-table blob: a fixed header (five u32 words, a
// u64 guid, a length-prefixed name), then a count of length-prefixed
// key/value pairs, every field aligned to 4 bytes.
func ParseBlob(blob []byte) (map[string]string, error) {
	r := blobReader{data: blob}
	for i := 0; i < 5; i++ {
		if _, err := r.u32(); err != nil {
			return nil, err
		}
	}
	if err := r.skip(8); err != nil {
		return nil, err
	}
	if _, err := r.str(); err != nil {
		return nil, err
	}

	count, err := r.u32()
	if err != nil {
		return nil, err
	}
	entries := make(map[string]string, count)
	for i := uint32(0); i < count; i++ {
		key, err := r.str()
		if err != nil {
			return nil, err
		}
		value, err := r.str()
		if err != nil {
			return nil, err
		}
		entries[key] = value
	}
	return entries, nil
}

type blobReader struct {
	data []byte
	off  int
}

func (r *blobReader) u32() (uint32, error) {
	if r.off+4 > len(r.data) {
		return 0, errShortBlob
	}
	v := binary.LittleEndian.Uint32(r.data[r.off:])
	r.off += 4
	return v, nil
}

func (r *blobReader) skip(n int) error {
	if r.off+n > len(r.data) {
		return errShortBlob
	}
	r.off += n
	return nil
}

// str reads a u32 length, that many bytes, and advances to the next 4-byte
// boundary.
func (r *blobReader) str() (string, error) {
	n, err := r.u32()
	if err != nil {
		return "", err
	}
	if r.off+int(n) > len(r.data) {
		return "", errShortBlob
	}
	s := string(r.data[r.off : r.off+int(n)])
	r.off = (r.off + int(n) + 3) &^ 3
	return s, nil
}

type segment struct {
	start, end int
	path       string
}

// Lookup resolves tokens for one language. Segment files are parsed lazily
// and cached; it is not safe for concurrent use.
type Lookup struct {
	dir      string
	language string
	segments []segment
	cache    map[string]map[string]string

	direct       map[string]string
	directLoaded bool

	log commonlog.Logger
}

// NewLookup indexes the segment files for language under dir.
func NewLookup(dir, language string) (*Lookup, error) {
	l := &Lookup{
		dir:      dir,
		language: strings.ToLower(language),
		cache:    make(map[string]map[string]string),
		log:      commonlog.GetLogger("romscript.translate"),
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("translate: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := segmentRe.FindStringSubmatch(strings.ToLower(entry.Name()))
		if m == nil || m[1] != l.language {
			continue
		}
		start, _ := strconv.Atoi(m[2])
		end, _ := strconv.Atoi(m[3])
		l.segments = append(l.segments, segment{start: start, end: end, path: filepath.Join(dir, entry.Name())})
	}
	sort.Slice(l.segments, func(i, j int) bool { return l.segments[i].start < l.segments[j].start })
	return l, nil
}

// Translate resolves a ##NNNN token against the segment whose range covers
// it, or any other text against the direct table. Missing entries and
// unreadable segments yield the input unchanged.
func (l *Lookup) Translate(token string) string {
	if !strings.HasPrefix(token, "##") {
		return l.directLookup(token)
	}
	id, err := strconv.Atoi(token[2:])
	if err != nil {
		return token
	}
	seg := l.segmentFor(id)
	if seg == nil {
		return token
	}
	table := l.loadSegment(seg)
	if value, ok := table[strconv.Itoa(id)]; ok {
		return value
	}
	return token
}

func (l *Lookup) segmentFor(id int) *segment {
	idx := sort.Search(len(l.segments), func(i int) bool { return l.segments[i].start > id }) - 1
	if idx < 0 {
		return nil
	}
	if seg := &l.segments[idx]; seg.start <= id && id <= seg.end {
		return seg
	}
	return nil
}

func (l *Lookup) loadSegment(seg *segment) map[string]string {
	if table, ok := l.cache[seg.path]; ok {
		return table
	}
	table := l.readTable(seg.path)
	l.cache[seg.path] = table
	return table
}

func (l *Lookup) directLookup(text string) string {
	if text == "" {
		return text
	}
	if !l.directLoaded {
		l.directLoaded = true
		for _, name := range []string{l.language, l.language + ".unity3d"} {
			path := filepath.Join(l.dir, name)
			if _, err := os.Stat(path); err == nil {
				l.direct = l.readTable(path)
				break
			}
		}
	}
	if value, ok := l.direct[text]; ok {
		return value
	}
	return text
}

func (l *Lookup) readTable(path string) map[string]string {
	blob, err := os.ReadFile(path)
	if err != nil {
		l.log.Warningf("cannot read string table %s: %s", path, err)
		return nil
	}
	table, err := ParseBlob(blob)
	if err != nil {
		l.log.Warningf("cannot parse string table %s: %s", path, err)
		return nil
	}
	return table
}

// Languages returns the sorted set of languages with segment files under
// dir.
func Languages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("translate: %w", err)
	}
	seen := make(map[string]struct{})
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := segmentRe.FindStringSubmatch(strings.ToLower(entry.Name()))
		if m == nil {
			continue
		}
		seen[m[1]] = struct{}{}
	}
	langs := make([]string, 0, len(seen))
	for lang := range seen {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	return langs, nil
}
