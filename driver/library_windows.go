//go:build windows

package driver

import (
	"syscall"
)

func loadLibrary(path string) (uintptr, error) {
	h, err := syscall.LoadLibrary(path)
	return uintptr(h), err
}

func lookupSymbol(handle uintptr, name string) (uintptr, error) {
	return syscall.GetProcAddress(syscall.Handle(handle), name)
}

func freeLibrary(handle uintptr) error {
	return syscall.FreeLibrary(syscall.Handle(handle))
}

// VCI 导出函数均为 stdcall，SyscallN 在 Windows 上按 stdcall 处理。
func syscallN(proc uintptr, args ...uintptr) uintptr {
	ret, _, _ := syscall.SyscallN(proc, args...)
	return ret
}
