//go:build !(linux || darwin || freebsd)

package slua

import "fmt"

const defaultLibraryName = "slua_encrypt.dll"

// loadRuntimeLib has no dynamic loader on this platform; the pipeline falls
// back to the external tool strategies instead.
func loadRuntimeLib(path string) (runtimeLib, error) {
	return nil, fmt.Errorf("%w: no dynamic loader on this platform (%s)", ErrUnavailable, path)
}
