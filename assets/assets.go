// Package assets is the boundary to the game's asset archive. Archive
// parsing itself lives outside this tool; what arrives here are raw object
// bytes that something upstream already pulled out of the bundles. A Source
// hands those blobs over by name, with the optional companion copy a bundle
// sometimes carries alongside the primary script field.
package assets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrNotFound reports that a source has no object under the requested name.
var ErrNotFound = errors.New("assets: object not found")

// Object is one extracted asset: the primary blob plus an optional raw
// companion copy of the same underlying object.
type Object struct {
	Name string
	Data []byte
	Raw  []byte
}

// Source supplies asset objects by name.
type Source interface {
	// Get returns the named object, or an error wrapping ErrNotFound.
	Get(name string) (Object, error)

	// Names lists every object whose name starts with prefix, sorted.
	Names(prefix string) ([]string, error)
}

// DirSource reads pre-extracted blobs from a directory: `<name>` holds the
// primary bytes and `<name>.raw`, when present, the companion copy.
type DirSource struct {
	dir string
}

// NewDirSource opens dir as an asset source.
func NewDirSource(dir string) (*DirSource, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("assets: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("assets: %s is not a directory", dir)
	}
	return &DirSource{dir: dir}, nil
}

func (s *DirSource) Get(name string) (Object, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Object{}, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return Object{}, fmt.Errorf("assets: read %s: %w", name, err)
	}
	obj := Object{Name: name, Data: data}
	// The companion is optional; any read problem other than absence is
	// still an error.
	raw, err := os.ReadFile(filepath.Join(s.dir, name+".raw"))
	if err == nil {
		obj.Raw = raw
	} else if !errors.Is(err, os.ErrNotExist) {
		return Object{}, fmt.Errorf("assets: read %s.raw: %w", name, err)
	}
	return obj, nil
}

func (s *DirSource) Names(prefix string) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("assets: list %s: %w", s.dir, err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasSuffix(name, ".raw") {
			continue
		}
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}
