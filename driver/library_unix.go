//go:build linux || darwin

package driver

import (
	"github.com/ebitengine/purego"
)

func loadLibrary(path string) (uintptr, error) {
	return purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
}

func lookupSymbol(handle uintptr, name string) (uintptr, error) {
	return purego.Dlsym(handle, name)
}

func freeLibrary(handle uintptr) error {
	return purego.Dlclose(handle)
}

func syscallN(proc uintptr, args ...uintptr) uintptr {
	ret, _, _ := purego.SyscallN(proc, args...)
	return ret
}
