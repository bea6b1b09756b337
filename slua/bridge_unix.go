//go:build linux || darwin || freebsd

package slua

import (
	"fmt"
	"runtime"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
)

const defaultLibraryName = "libslua_encrypt.so"

// nativeLib binds the exported C functions of the slua shared library.
type nativeLib struct {
	luaLNewState    func() uintptr
	luaClose        func(state uintptr)
	luaLOpenLibs    func(state uintptr)
	luaROLoadBuffer func(state uintptr, buf unsafe.Pointer, size uintptr, name string, mode uintptr) int32
	luaDump         func(state uintptr, writer uintptr, data uintptr, strip int32) int32
	luaPCallK       func(state uintptr, nargs, nresults, errfunc int32, ctx, k uintptr) int32
	luaGetGlobal    func(state uintptr, name string) int32
	luaType         func(state uintptr, idx int32) int32
	luaToLString    func(state uintptr, idx int32, size unsafe.Pointer) uintptr
	luaToIntegerX   func(state uintptr, idx int32, isnum unsafe.Pointer) int64
	luaToNumberX    func(state uintptr, idx int32, isnum unsafe.Pointer) float64
	luaToBoolean    func(state uintptr, idx int32) int32
	luaPushNil      func(state uintptr)
	luaNext         func(state uintptr, idx int32) int32
	luaGetTop       func(state uintptr) int32
	luaSetTop       func(state uintptr, idx int32)
	luaIsInteger    func(state uintptr, idx int32) int32
	luaToPointer    func(state uintptr, idx int32) uintptr

	// The dump writer callback is registered once per loaded library and
	// appends into dumpBuf; dumpMu serializes dump calls through it.
	writerCB uintptr
	dumpMu   sync.Mutex
	dumpBuf  []byte
}

func loadRuntimeLib(path string) (runtimeLib, error) {
	handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, path, err)
	}

	lib := &nativeLib{}
	purego.RegisterLibFunc(&lib.luaLNewState, handle, "luaL_newstate")
	purego.RegisterLibFunc(&lib.luaClose, handle, "lua_close")
	purego.RegisterLibFunc(&lib.luaLOpenLibs, handle, "luaL_openlibs")
	purego.RegisterLibFunc(&lib.luaROLoadBuffer, handle, "luaRO_loadbufferx")
	purego.RegisterLibFunc(&lib.luaDump, handle, "lua_dump")
	purego.RegisterLibFunc(&lib.luaPCallK, handle, "lua_pcallk")
	purego.RegisterLibFunc(&lib.luaGetGlobal, handle, "lua_getglobal")
	purego.RegisterLibFunc(&lib.luaType, handle, "lua_type")
	purego.RegisterLibFunc(&lib.luaToLString, handle, "lua_tolstring")
	purego.RegisterLibFunc(&lib.luaToIntegerX, handle, "lua_tointegerx")
	purego.RegisterLibFunc(&lib.luaToNumberX, handle, "lua_tonumberx")
	purego.RegisterLibFunc(&lib.luaToBoolean, handle, "lua_toboolean")
	purego.RegisterLibFunc(&lib.luaPushNil, handle, "lua_pushnil")
	purego.RegisterLibFunc(&lib.luaNext, handle, "lua_next")
	purego.RegisterLibFunc(&lib.luaGetTop, handle, "lua_gettop")
	purego.RegisterLibFunc(&lib.luaSetTop, handle, "lua_settop")
	purego.RegisterLibFunc(&lib.luaIsInteger, handle, "lua_isinteger")
	purego.RegisterLibFunc(&lib.luaToPointer, handle, "lua_topointer")

	lib.writerCB = purego.NewCallback(func(state, payload, size, userdata uintptr) uintptr {
		if size > 0 {
			src := unsafe.Slice((*byte)(unsafe.Pointer(payload)), int(size))
			lib.dumpBuf = append(lib.dumpBuf, src...)
		}
		return 0
	})
	return lib, nil
}

func (l *nativeLib) newState() uintptr        { return l.luaLNewState() }
func (l *nativeLib) closeState(state uintptr) { l.luaClose(state) }
func (l *nativeLib) openLibs(state uintptr)   { l.luaLOpenLibs(state) }

func (l *nativeLib) loadBuffer(state uintptr, blob []byte, name string) int32 {
	var buf unsafe.Pointer
	if len(blob) > 0 {
		buf = unsafe.Pointer(&blob[0])
	}
	rc := l.luaROLoadBuffer(state, buf, uintptr(len(blob)), name, 0)
	runtime.KeepAlive(blob)
	return rc
}

func (l *nativeLib) dump(state uintptr) ([]byte, int32) {
	l.dumpMu.Lock()
	defer l.dumpMu.Unlock()
	l.dumpBuf = nil
	rc := l.luaDump(state, l.writerCB, 0, 0)
	out := l.dumpBuf
	l.dumpBuf = nil
	return out, rc
}

func (l *nativeLib) pcall(state uintptr) int32 {
	return l.luaPCallK(state, 0, 0, 0, 0, 0)
}

func (l *nativeLib) getGlobal(state uintptr, name string) int32 {
	return l.luaGetGlobal(state, name)
}

func (l *nativeLib) stack(state uintptr) luaState {
	return &nativeState{lib: l, state: state}
}

// nativeState adapts one interpreter state to the marshaller's view.
type nativeState struct {
	lib   *nativeLib
	state uintptr
}

func (s *nativeState) Type(idx int32) int32 { return s.lib.luaType(s.state, idx) }

func (s *nativeState) ToBoolean(idx int32) bool {
	return s.lib.luaToBoolean(s.state, idx) != 0
}

func (s *nativeState) IsInteger(idx int32) bool {
	return s.lib.luaIsInteger(s.state, idx) != 0
}

func (s *nativeState) ToInteger(idx int32) int64 {
	var isnum int32
	return s.lib.luaToIntegerX(s.state, idx, unsafe.Pointer(&isnum))
}

func (s *nativeState) ToNumber(idx int32) float64 {
	var isnum int32
	return s.lib.luaToNumberX(s.state, idx, unsafe.Pointer(&isnum))
}

func (s *nativeState) ToString(idx int32) string {
	var size uintptr
	ptr := s.lib.luaToLString(s.state, idx, unsafe.Pointer(&size))
	if ptr == 0 || size == 0 {
		return ""
	}
	return string(unsafe.Slice((*byte)(unsafe.Pointer(ptr)), int(size)))
}

func (s *nativeState) ToPointer(idx int32) uintptr {
	return s.lib.luaToPointer(s.state, idx)
}

func (s *nativeState) PushNil() { s.lib.luaPushNil(s.state) }

func (s *nativeState) Next(tableIdx int32) bool {
	return s.lib.luaNext(s.state, tableIdx) != 0
}

func (s *nativeState) GetTop() int32 { return s.lib.luaGetTop(s.state) }

func (s *nativeState) SetTop(idx int32) { s.lib.luaSetTop(s.state, idx) }
