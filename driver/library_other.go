//go:build !windows && !linux && !darwin

package driver

func loadLibrary(string) (uintptr, error) { return 0, ErrUnsupportedPlatform }

func lookupSymbol(uintptr, string) (uintptr, error) { return 0, ErrUnsupportedPlatform }

func freeLibrary(uintptr) error { return nil }

func syscallN(uintptr, ...uintptr) uintptr { return 0 }
