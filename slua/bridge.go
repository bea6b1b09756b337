package slua

import (
	"sync"

	"github.com/chazu/romscript/luaval"
)

// runtimeLib is the loaded shared library. The platform-specific loader
// binds the exported C functions behind this interface.
type runtimeLib interface {
	newState() uintptr
	closeState(state uintptr)
	openLibs(state uintptr)
	loadBuffer(state uintptr, blob []byte, name string) int32
	dump(state uintptr) ([]byte, int32)
	pcall(state uintptr) int32
	getGlobal(state uintptr, name string) int32
	stack(state uintptr) luaState
}

// chunkName is the name the loader reports in interpreter error messages.
const chunkName = "romscript"

// Bridge is the native Runtime implementation. The shared library is
// resolved and loaded at most once, on first use; the result (handle or
// failure) is cached for the lifetime of the Bridge.
type Bridge struct {
	path string

	mu     sync.Mutex
	loaded bool
	lib    runtimeLib
	err    error
}

var _ Runtime = (*Bridge)(nil)

// New returns a Bridge for the library at path. An empty path defers to the
// ROMSCRIPT_SLUA environment variable and then the platform default name.
func New(path string) *Bridge {
	return &Bridge{path: path}
}

func (b *Bridge) runtime() (runtimeLib, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.loaded {
		b.lib, b.err = loadRuntimeLib(resolveLibraryPath(b.path))
		b.loaded = true
	}
	return b.lib, b.err
}

// resetForTest drops the cached library handle so the next call resolves
// the path again.
func (b *Bridge) resetForTest() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.loaded = false
	b.lib = nil
	b.err = nil
}

// Compile loads blob as a chunk without executing it and dumps the compiled
// form through the library's writer callback.
func (b *Bridge) Compile(blob []byte) ([]byte, error) {
	if len(blob) == 0 {
		return nil, nil
	}
	lib, err := b.runtime()
	if err != nil {
		return nil, err
	}
	state := lib.newState()
	if state == 0 {
		return nil, faultf("failed to create interpreter state")
	}
	defer lib.closeState(state)

	lib.openLibs(state)
	if rc := lib.loadBuffer(state, blob, chunkName); rc != 0 {
		return nil, faultf("load failed with code %d", rc)
	}
	out, rc := lib.dump(state)
	if rc != 0 {
		return nil, faultf("dump failed with code %d", rc)
	}
	return out, nil
}

// RunAndExtract executes blob in a fresh state and marshals the global
// table named tableName. An empty blob has no chunk to run and yields an
// empty table.
func (b *Bridge) RunAndExtract(blob []byte, tableName string) (luaval.Value, error) {
	if len(blob) == 0 {
		return luaval.Map(nil), nil
	}
	lib, err := b.runtime()
	if err != nil {
		return luaval.Value{}, err
	}
	state := lib.newState()
	if state == 0 {
		return luaval.Value{}, faultf("failed to create interpreter state")
	}
	defer lib.closeState(state)

	lib.openLibs(state)
	if rc := lib.loadBuffer(state, blob, chunkName); rc != 0 {
		return luaval.Value{}, faultf("load failed with code %d", rc)
	}
	s := lib.stack(state)
	if lib.pcall(state) != 0 {
		return luaval.Value{}, faultf("%s", stackError(s))
	}
	lib.getGlobal(state, tableName)
	if s.Type(-1) != luaTTable {
		return luaval.Value{}, faultf("table %q not found", tableName)
	}
	return marshalValue(s, -1, map[uintptr]struct{}{}), nil
}
