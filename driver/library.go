package driver

import (
	"errors"
	"fmt"
	"runtime"
	"unsafe"
)

// ErrUnsupportedPlatform is returned by Load where no dynamic loader is wired.
var ErrUnsupportedPlatform = errors.New("driver: dynamic VCI library not supported on " + runtime.GOOS + "/" + runtime.GOARCH)

// SymbolError reports an entry point missing from the vendor library.
type SymbolError struct {
	Library string
	Symbol  string
	Err     error
}

func (e *SymbolError) Error() string {
	return fmt.Sprintf("driver: %s: symbol %s not found: %v", e.Library, e.Symbol, e.Err)
}

func (e *SymbolError) Unwrap() error { return e.Err }

// Library is the VCI function table resolved from the vendor library.
type Library struct {
	path   string
	handle uintptr

	openDevice    uintptr
	closeDevice   uintptr
	initCAN       uintptr
	startCAN      uintptr
	receive       uintptr
	readBoardInfo uintptr
	transmit      uintptr
}

var _ VCI = (*Library)(nil)

// Load 加载厂商动态库并解析全部导出函数，任何一个缺失都直接返回错误。
func Load(path string) (*Library, error) {
	if path == "" {
		path = DefaultLibraryPath
	}
	h, err := loadLibrary(path)
	if err != nil {
		return nil, fmt.Errorf("driver: load %s: %w", path, err)
	}
	lib := &Library{path: path, handle: h}
	if err := lib.resolve(lookupSymbol, freeLibrary); err != nil {
		return nil, err
	}
	return lib, nil
}

// resolve fills the function table. On the first missing symbol it frees
// the handle and returns a *SymbolError naming that symbol.
func (l *Library) resolve(lookup func(uintptr, string) (uintptr, error), free func(uintptr) error) error {
	table := []struct {
		name string
		dst  *uintptr
	}{
		{"VCI_OpenDevice", &l.openDevice},
		{"VCI_CloseDevice", &l.closeDevice},
		{"VCI_InitCAN", &l.initCAN},
		{"VCI_StartCAN", &l.startCAN},
		{"VCI_Receive", &l.receive},
		{"VCI_ReadBoardInfo", &l.readBoardInfo},
		{"VCI_Transmit", &l.transmit},
	}
	for _, sym := range table {
		p, err := lookup(l.handle, sym.name)
		if err == nil && p == 0 {
			err = errors.New("nil address")
		}
		if err != nil {
			_ = free(l.handle)
			l.handle = 0
			return &SymbolError{Library: l.path, Symbol: sym.name, Err: err}
		}
		*sym.dst = p
	}
	return nil
}

// Path returns the file the library was loaded from.
func (l *Library) Path() string { return l.path }

// Close releases the library handle. The Library must not be used afterwards.
func (l *Library) Close() error {
	if l.handle == 0 {
		return nil
	}
	err := freeLibrary(l.handle)
	l.handle = 0
	return err
}

func (l *Library) OpenDevice(devType, devIndex, reserved uint32) int32 {
	return callStatus(l.openDevice, uintptr(devType), uintptr(devIndex), uintptr(reserved))
}

func (l *Library) CloseDevice(devType, devIndex uint32) int32 {
	return callStatus(l.closeDevice, uintptr(devType), uintptr(devIndex))
}

func (l *Library) InitCAN(devType, devIndex, channel uint32, cfg *InitConfig) int32 {
	ret := callStatus(l.initCAN, uintptr(devType), uintptr(devIndex), uintptr(channel), uintptr(unsafe.Pointer(cfg)))
	runtime.KeepAlive(cfg)
	return ret
}

func (l *Library) StartCAN(devType, devIndex, channel uint32) int32 {
	return callStatus(l.startCAN, uintptr(devType), uintptr(devIndex), uintptr(channel))
}

func (l *Library) Receive(devType, devIndex, channel uint32, buf []CanObj, waitMs int32) int32 {
	if len(buf) == 0 {
		return 0
	}
	ret := callStatus(l.receive,
		uintptr(devType),
		uintptr(devIndex),
		uintptr(channel),
		uintptr(unsafe.Pointer(&buf[0])),
		uintptr(len(buf)),
		uintptr(waitMs),
	)
	runtime.KeepAlive(buf)
	return ret
}

func (l *Library) ReadBoardInfo(devType, devIndex uint32, info *BoardInfo) int32 {
	ret := callStatus(l.readBoardInfo, uintptr(devType), uintptr(devIndex), uintptr(unsafe.Pointer(info)))
	runtime.KeepAlive(info)
	return ret
}

func (l *Library) Transmit(devType, devIndex, channel uint32, frames []CanObj) int32 {
	if len(frames) == 0 {
		return 0
	}
	ret := callStatus(l.transmit,
		uintptr(devType),
		uintptr(devIndex),
		uintptr(channel),
		uintptr(unsafe.Pointer(&frames[0])),
		uintptr(len(frames)),
	)
	runtime.KeepAlive(frames)
	return ret
}

// callStatus invokes a resolved entry point and narrows the return register
// to the C int the VCI functions return.
func callStatus(proc uintptr, args ...uintptr) int32 {
	return int32(syscallN(proc, args...))
}
