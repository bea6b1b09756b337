// Package exttool shells out to the external decompiler and interpreter used
// when the native game runtime is unavailable: unluac (a Java jar) turns
// compiled chunks back into source text, and a stock Lua 5.3 interpreter
// executes chunks to dump their data tables.
package exttool

import (
	_ "embed"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/chazu/romscript/luaval"
)

// Environment overrides for tool locations.
const (
	EnvJava   = "ROMSCRIPT_JAVA"
	EnvUnluac = "ROMSCRIPT_UNLUAC"
	EnvLua    = "ROMSCRIPT_LUA"
)

//go:embed dump.lua
var dumpScript []byte

// ToolError reports a failed external tool invocation: the binary was
// missing, or it ran and exited non-zero.
type ToolError struct {
	Tool   string
	Stderr string
	Err    error
}

func (e *ToolError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("exttool: %s: %s", e.Tool, e.Stderr)
	}
	return fmt.Sprintf("exttool: %s: %v", e.Tool, e.Err)
}

func (e *ToolError) Unwrap() error { return e.Err }

// Tools holds resolved tool locations. The zero value is not usable; build
// one with Default or fill the fields explicitly.
type Tools struct {
	// Java is the java executable used to run the unluac jar.
	Java string
	// Unluac is the path to the unluac jar.
	Unluac string
	// Lua is a Lua 5.3 interpreter binary.
	Lua string
}

// Default resolves tool locations from the environment, falling back to
// bare command names looked up on PATH.
func Default() Tools {
	return Tools{
		Java:   envOr(EnvJava, "java"),
		Unluac: envOr(EnvUnluac, "unluac.jar"),
		Lua:    envOr(EnvLua, "lua5.3"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Decompile runs unluac over a compiled chunk and returns the recovered
// source text.
func (t Tools) Decompile(chunk []byte) (string, error) {
	if _, err := os.Stat(t.Unluac); err != nil {
		return "", &ToolError{Tool: "unluac", Err: fmt.Errorf("jar not found at %s: %w", t.Unluac, err)}
	}

	dir, err := os.MkdirTemp("", "romscript-unluac-*")
	if err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	chunkPath := filepath.Join(dir, "chunk.luac")
	if err := os.WriteFile(chunkPath, chunk, 0o644); err != nil {
		return "", fmt.Errorf("write chunk: %w", err)
	}

	cmd := exec.Command(t.Java, "-jar", t.Unluac, chunkPath)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return "", &ToolError{Tool: t.Java, Stderr: strings.TrimSpace(stderr.String()), Err: err}
	}
	return string(out), nil
}

// DumpTable executes a compiled chunk in the external interpreter and
// returns the named global table. The embedded driver script sandboxes the
// chunk in a fresh environment and serializes the table to JSON-shaped text
// on stdout.
func (t Tools) DumpTable(chunk []byte, tableName string) (luaval.Value, error) {
	dir, err := os.MkdirTemp("", "romscript-lua-*")
	if err != nil {
		return luaval.Value{}, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	chunkPath := filepath.Join(dir, "chunk.luac")
	scriptPath := filepath.Join(dir, "dump.lua")
	if err := os.WriteFile(chunkPath, chunk, 0o644); err != nil {
		return luaval.Value{}, fmt.Errorf("write chunk: %w", err)
	}
	if err := os.WriteFile(scriptPath, dumpScript, 0o644); err != nil {
		return luaval.Value{}, fmt.Errorf("write driver script: %w", err)
	}

	cmd := exec.Command(t.Lua, scriptPath, chunkPath, tableName)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return luaval.Value{}, &ToolError{Tool: t.Lua, Stderr: strings.TrimSpace(stderr.String()), Err: err}
	}

	text := strings.TrimSpace(string(out))
	if text == "" {
		return luaval.Map(nil), nil
	}
	v, err := luaval.DecodeJSONString(text)
	if err != nil {
		return luaval.Value{}, fmt.Errorf("parse %s output: %w", t.Lua, err)
	}
	return v, nil
}
