//go:build windows && 386

package driver

// DefaultLibraryPath is used by Load when no path is configured.
var DefaultLibraryPath = ".\\DLLs\\windows_x86\\ControlCAN.dll"
