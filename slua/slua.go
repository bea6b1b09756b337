// Package slua bridges into the game's modified Lua 5.3 runtime through its
// C ABI. The shared library knows how to load the obfuscated chunk format
// (luaRO_loadbufferx), so when it is present it is the preferred decode
// strategy; when it is not, callers fall back to header synthesis and
// external tools.
//
// Every operation creates a fresh interpreter state and tears it down before
// returning. Nothing is shared between calls except the lazily resolved
// library handle, so a single Bridge may serve concurrent callers.
package slua

import (
	"errors"
	"fmt"
	"os"

	"github.com/chazu/romscript/luaval"
)

// EnvLibrary overrides the shared library location when set.
const EnvLibrary = "ROMSCRIPT_SLUA"

// ErrUnavailable reports that the native runtime library is not present or
// not loadable. It is a recoverable condition: the decode pipeline treats it
// as "try the next strategy".
var ErrUnavailable = errors.New("slua: runtime library unavailable")

// FaultError reports that the interpreter itself rejected the input: a load
// or protected call failed, or the requested global is missing or not a
// table. Unlike ErrUnavailable this is not recoverable by switching
// strategy, because any other strategy would hit the same logical fault.
type FaultError struct {
	Msg string
}

func (e *FaultError) Error() string { return "slua: " + e.Msg }

func faultf(format string, args ...any) error {
	return &FaultError{Msg: fmt.Sprintf(format, args...)}
}

// Runtime is the interpreter boundary the decode pipeline depends on.
type Runtime interface {
	// Compile loads blob as a chunk without executing it and returns the
	// compiled bytecode in the canonical container format.
	Compile(blob []byte) ([]byte, error)

	// RunAndExtract loads and executes blob in a fresh state, then marshals
	// the global table named tableName into a value tree.
	RunAndExtract(blob []byte, tableName string) (luaval.Value, error)
}

// Unavailable is a Runtime with no native library behind it. It backs
// deployments without the game runtime and keeps the pipeline's fallback
// ordering testable.
type Unavailable struct{}

func (Unavailable) Compile([]byte) ([]byte, error) { return nil, ErrUnavailable }

func (Unavailable) RunAndExtract([]byte, string) (luaval.Value, error) {
	return luaval.Value{}, ErrUnavailable
}

// resolveLibraryPath picks the shared library location: an explicit path
// wins, then the environment override, then the platform default name
// (resolved by the dynamic loader's own search rules).
func resolveLibraryPath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if env := os.Getenv(EnvLibrary); env != "" {
		return env
	}
	return defaultLibraryName
}
