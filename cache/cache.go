// Package cache stores dumped table snapshots on disk so repeated runs over
// unchanged client data skip the interpreter entirely. Entries are keyed by
// the SHA-256 of the source blob plus the table name and serialized as
// canonical CBOR.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fxamacker/cbor/v2"

	"github.com/chazu/romscript/luaval"
)

// envelopeVersion is bumped whenever the wire layout changes; entries with
// another version are treated as misses.
const envelopeVersion = 1

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("cache: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

type envelope struct {
	Version  int      `cbor:"version"`
	Table    string   `cbor:"table"`
	BlobHash []byte   `cbor:"blob_hash"`
	Root     wireNode `cbor:"root"`
}

// Cache is a directory of snapshot files.
type Cache struct {
	dir string
}

// Open prepares dir as a snapshot cache, creating it if needed.
func Open(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}
	return &Cache{dir: dir}, nil
}

func (c *Cache) entryPath(sum []byte, table string) string {
	return filepath.Join(c.dir, hex.EncodeToString(sum)+"-"+table+".cbor")
}

// Get looks up the snapshot for blob and table. A decode failure of any kind
// is a miss, never an error: the cache only ever saves work.
func (c *Cache) Get(blob []byte, table string) (luaval.Value, bool) {
	sum := sha256.Sum256(blob)
	data, err := os.ReadFile(c.entryPath(sum[:], table))
	if err != nil {
		return luaval.Value{}, false
	}
	var env envelope
	if err := cbor.Unmarshal(data, &env); err != nil {
		return luaval.Value{}, false
	}
	if env.Version != envelopeVersion || env.Table != table {
		return luaval.Value{}, false
	}
	v, err := env.Root.value()
	if err != nil {
		return luaval.Value{}, false
	}
	return v, true
}

// Put stores the snapshot for blob and table.
func (c *Cache) Put(blob []byte, table string, v luaval.Value) error {
	sum := sha256.Sum256(blob)
	env := envelope{
		Version:  envelopeVersion,
		Table:    table,
		BlobHash: sum[:],
		Root:     wireFromValue(v),
	}
	data, err := cborEncMode.Marshal(&env)
	if err != nil {
		return fmt.Errorf("cache: marshal snapshot: %w", err)
	}
	path := c.entryPath(sum[:], table)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	return nil
}

// Dumper memoizes a dump-table function through the cache.
type Dumper struct {
	cache *Cache
	dump  func(blob []byte, table string) (luaval.Value, error)
}

// NewDumper wraps dump with snapshot caching.
func NewDumper(c *Cache, dump func(blob []byte, table string) (luaval.Value, error)) *Dumper {
	return &Dumper{cache: c, dump: dump}
}

// DumpTable returns the cached snapshot for blob and table, or falls back to
// the wrapped function and stores its result.
func (d *Dumper) DumpTable(blob []byte, table string) (luaval.Value, error) {
	if v, ok := d.cache.Get(blob, table); ok {
		return v, nil
	}
	v, err := d.dump(blob, table)
	if err != nil {
		return luaval.Value{}, err
	}
	if err := d.cache.Put(blob, table, v); err != nil {
		return luaval.Value{}, err
	}
	return v, nil
}

var errBadWireKind = errors.New("cache: unknown wire kind")
