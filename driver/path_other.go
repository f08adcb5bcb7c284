//go:build !windows || !(amd64 || 386)

package driver

import "runtime"

// DefaultLibraryPath is used by Load when no path is configured.
var DefaultLibraryPath = defaultLibraryName()

func defaultLibraryName() string {
	switch runtime.GOOS {
	case "windows":
		return "ControlCAN.dll"
	case "darwin":
		return "libcontrolcan.dylib"
	default:
		return "libcontrolcan.so"
	}
}
