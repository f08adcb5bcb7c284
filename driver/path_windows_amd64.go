//go:build windows && amd64

package driver

// DefaultLibraryPath is used by Load when no path is configured.
var DefaultLibraryPath = ".\\DLLs\\windows_x64\\ControlCAN.dll"
