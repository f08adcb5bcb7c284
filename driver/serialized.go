package driver

import "sync"

// Serialized wraps a VCI so that no two calls run at the same time.
// The vendor library is not safe for concurrent use; the receive loop and
// the operator actions share one adapter.
func Serialized(v VCI) VCI {
	if s, ok := v.(*serialized); ok {
		return s
	}
	return &serialized{vci: v}
}

type serialized struct {
	mu  sync.Mutex
	vci VCI
}

func (s *serialized) OpenDevice(devType, devIndex, reserved uint32) int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vci.OpenDevice(devType, devIndex, reserved)
}

func (s *serialized) CloseDevice(devType, devIndex uint32) int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vci.CloseDevice(devType, devIndex)
}

func (s *serialized) InitCAN(devType, devIndex, channel uint32, cfg *InitConfig) int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vci.InitCAN(devType, devIndex, channel, cfg)
}

func (s *serialized) StartCAN(devType, devIndex, channel uint32) int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vci.StartCAN(devType, devIndex, channel)
}

func (s *serialized) Receive(devType, devIndex, channel uint32, buf []CanObj, waitMs int32) int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vci.Receive(devType, devIndex, channel, buf, waitMs)
}

func (s *serialized) ReadBoardInfo(devType, devIndex uint32, info *BoardInfo) int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vci.ReadBoardInfo(devType, devIndex, info)
}

func (s *serialized) Transmit(devType, devIndex, channel uint32, frames []CanObj) int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vci.Transmit(devType, devIndex, channel, frames)
}
