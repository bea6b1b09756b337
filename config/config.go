// Package config handles romscript.toml project configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/chazu/romscript/exttool"
	"github.com/chazu/romscript/slua"
)

// Config represents a romscript.toml configuration.
type Config struct {
	Paths Paths `toml:"paths"`
	Tools Tools `toml:"tools"`
	Store Store `toml:"store"`

	// Dir is the directory containing the romscript.toml file (set at load
	// time).
	Dir string `toml:"-"`
}

// Paths locates the pre-extracted game data on disk.
type Paths struct {
	// Assets is the directory of pre-extracted asset blobs.
	Assets string `toml:"assets"`
	// Translate is the directory of localized string-table blobs.
	Translate string `toml:"translate"`
	// Output receives extracted dataset JSON files.
	Output string `toml:"output"`
	// CacheDir holds decoded table snapshots.
	CacheDir string `toml:"cache"`
}

// Tools locates the external binaries and the native runtime library.
type Tools struct {
	Java    string `toml:"java"`
	Unluac  string `toml:"unluac"`
	Lua     string `toml:"lua"`
	SluaLib string `toml:"slua"`
}

// Store configures the dataset database.
type Store struct {
	Path string `toml:"path"`
}

// Load parses a romscript.toml file from the given directory. Environment
// overrides for tool locations win over the file.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, "romscript.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var c Config
	if err := toml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	c.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	c.applyDefaults()
	c.applyEnv()

	return &c, nil
}

// FindAndLoad walks up from startDir to find a romscript.toml file, then
// loads and returns the configuration. Returns nil if none is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", startDir, err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "romscript.toml")); err == nil {
			return Load(dir)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

// Default returns a configuration driven purely by defaults and environment
// overrides, for invocations without a romscript.toml.
func Default() *Config {
	c := &Config{Dir: "."}
	c.applyDefaults()
	c.applyEnv()
	return c
}

func (c *Config) applyDefaults() {
	if c.Paths.Output == "" {
		c.Paths.Output = "datasets"
	}
	if c.Paths.CacheDir == "" {
		c.Paths.CacheDir = ".romscript-cache"
	}
	if c.Store.Path == "" {
		c.Store.Path = "romscript.db"
	}
	def := exttool.Default()
	if c.Tools.Java == "" {
		c.Tools.Java = def.Java
	}
	if c.Tools.Unluac == "" {
		c.Tools.Unluac = def.Unluac
	}
	if c.Tools.Lua == "" {
		c.Tools.Lua = def.Lua
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv(exttool.EnvJava); v != "" {
		c.Tools.Java = v
	}
	if v := os.Getenv(exttool.EnvUnluac); v != "" {
		c.Tools.Unluac = v
	}
	if v := os.Getenv(exttool.EnvLua); v != "" {
		c.Tools.Lua = v
	}
	if v := os.Getenv(slua.EnvLibrary); v != "" {
		c.Tools.SluaLib = v
	}
}

// Resolve interprets a configured path relative to the config directory.
// Absolute paths pass through unchanged.
func (c *Config) Resolve(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.Dir, path)
}

// ExtTools converts the tool section into the adapter's form.
func (c *Config) ExtTools() exttool.Tools {
	return exttool.Tools{Java: c.Tools.Java, Unluac: c.Tools.Unluac, Lua: c.Tools.Lua}
}

// Runtime builds the native bridge configured by this file. A missing
// library surfaces as slua.ErrUnavailable at call time, which the decode
// pipeline treats as "use the fallback strategies".
func (c *Config) Runtime() slua.Runtime {
	return slua.New(c.Tools.SluaLib)
}
