package driver

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// VCI 函数名，用于 Mock 的状态预设和调用记录
const (
	CallOpenDevice    = "VCI_OpenDevice"
	CallCloseDevice   = "VCI_CloseDevice"
	CallInitCAN       = "VCI_InitCAN"
	CallStartCAN      = "VCI_StartCAN"
	CallReceive       = "VCI_Receive"
	CallReadBoardInfo = "VCI_ReadBoardInfo"
	CallTransmit      = "VCI_Transmit"
)

// Call 记录一次对 Mock 的调用
type Call struct {
	Name        string
	DeviceType  uint32
	DeviceIndex uint32
	Channel     uint32
	Config      *InitConfig
	MaxCount    int   // VCI_Receive only: len(buf)
	WaitMs      int32 // VCI_Receive only
	Timestamp   time.Time
}

// Mock 是不依赖硬件的虚拟 VCI 实现，用于开发和测试。
// 没有待接收的帧时 Receive 会等待后返回 ReceiveTimeout，行为与真实动态库一致。
type Mock struct {
	mu       sync.Mutex
	open     bool
	started  map[uint32]bool
	statuses map[string][]int32 // 按调用名预设的返回值序列，用完后恢复默认
	pending  []CanObj
	rxScript []int32 // 预设的 Receive 返回值（非正数），优先于 pending
	board    BoardInfo
	calls    []Call
	noRecord bool
	sent     []CanObj
	notify   chan struct{}
	rxWait   time.Duration
	loopback bool // Transmit 的帧回送到接收队列
	logger   *zap.Logger
}

// NewMock creates a mock adapter that reports serial "MOCK0001".
func NewMock() *Mock {
	m := &Mock{
		started:  make(map[uint32]bool),
		statuses: make(map[string][]int32),
		notify:   make(chan struct{}, 1),
		rxWait:   -1,
		logger:   zap.NewNop(),
	}
	m.board.HwVersion = 0x0100
	m.board.FwVersion = 0x0360
	m.board.DrVersion = 0x0100
	m.board.InVersion = 0x0100
	m.board.CanNum = 2
	copy(m.board.SerialNum[:], "MOCK0001")
	copy(m.board.HwType[:], "USBCAN-II")
	return m
}

// record appends to the call log unless recording is off and returns the
// new entry, or nil.
func (m *Mock) record(name string, devType, devIndex, channel uint32, cfg *InitConfig) *Call {
	m.logger.Debug("[Mock] "+name,
		zap.Uint32("device_type", devType),
		zap.Uint32("device_index", devIndex),
		zap.Uint32("channel", channel))
	if m.noRecord {
		return nil
	}
	c := Call{Name: name, DeviceType: devType, DeviceIndex: devIndex, Channel: channel, Timestamp: time.Now()}
	if cfg != nil {
		cp := *cfg
		c.Config = &cp
	}
	m.calls = append(m.calls, c)
	return &m.calls[len(m.calls)-1]
}

// status pops the next scripted status for name, or returns def.
func (m *Mock) status(name string, def int32) int32 {
	seq := m.statuses[name]
	if len(seq) == 0 {
		return def
	}
	m.statuses[name] = seq[1:]
	return seq[0]
}

func (m *Mock) OpenDevice(devType, devIndex, reserved uint32) int32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(CallOpenDevice, devType, devIndex, 0, nil)
	ret := m.status(CallOpenDevice, StatusOK)
	if ret == StatusOK {
		m.open = true
	}
	return ret
}

func (m *Mock) CloseDevice(devType, devIndex uint32) int32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(CallCloseDevice, devType, devIndex, 0, nil)
	ret := m.status(CallCloseDevice, StatusOK)
	m.open = false
	m.started = make(map[uint32]bool)
	return ret
}

func (m *Mock) InitCAN(devType, devIndex, channel uint32, cfg *InitConfig) int32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(CallInitCAN, devType, devIndex, channel, cfg)
	if !m.open {
		return m.status(CallInitCAN, 0)
	}
	return m.status(CallInitCAN, StatusOK)
}

func (m *Mock) StartCAN(devType, devIndex, channel uint32) int32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(CallStartCAN, devType, devIndex, channel, nil)
	if !m.open {
		return m.status(CallStartCAN, 0)
	}
	ret := m.status(CallStartCAN, StatusOK)
	if ret == StatusOK {
		m.started[channel] = true
	}
	return ret
}

func (m *Mock) Receive(devType, devIndex, channel uint32, buf []CanObj, waitMs int32) int32 {
	m.mu.Lock()
	if c := m.record(CallReceive, devType, devIndex, channel, nil); c != nil {
		c.MaxCount, c.WaitMs = len(buf), waitMs
	}
	m.mu.Unlock()
	if n, ok := m.take(buf); ok {
		return n
	}
	wait := time.Duration(waitMs) * time.Millisecond
	m.mu.Lock()
	if m.rxWait >= 0 {
		wait = m.rxWait
	}
	m.mu.Unlock()
	select {
	case <-m.notify:
	case <-time.After(wait):
	}
	if n, ok := m.take(buf); ok {
		return n
	}
	return ReceiveTimeout
}

// take returns a scripted result or queued frames without blocking.
func (m *Mock) take(buf []CanObj) (int32, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.rxScript) > 0 {
		ret := m.rxScript[0]
		m.rxScript = m.rxScript[1:]
		return ret, true
	}
	if !m.open {
		return -1, true
	}
	if len(m.pending) == 0 || len(buf) == 0 {
		return 0, false
	}
	n := copy(buf, m.pending)
	m.pending = m.pending[n:]
	return int32(n), true
}

func (m *Mock) ReadBoardInfo(devType, devIndex uint32, info *BoardInfo) int32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(CallReadBoardInfo, devType, devIndex, 0, nil)
	def := StatusOK
	if !m.open {
		def = 0
	}
	ret := m.status(CallReadBoardInfo, def)
	if ret == StatusOK {
		*info = m.board
	}
	return ret
}

func (m *Mock) Transmit(devType, devIndex, channel uint32, frames []CanObj) int32 {
	m.mu.Lock()
	m.record(CallTransmit, devType, devIndex, channel, nil)
	if !m.open {
		ret := m.status(CallTransmit, 0)
		m.mu.Unlock()
		return ret
	}
	ret := m.status(CallTransmit, int32(len(frames)))
	if ret > 0 {
		m.sent = append(m.sent, frames...)
	}
	loop := m.loopback && ret > 0
	m.mu.Unlock()
	if loop {
		m.Inject(frames...)
	}
	return ret
}

// ============================================================================
// Mock 专用方法 - 用于测试
// ============================================================================

// Inject 向接收队列注入帧（模拟总线上收到的报文）
func (m *Mock) Inject(frames ...CanObj) {
	m.mu.Lock()
	m.pending = append(m.pending, frames...)
	m.mu.Unlock()
	select {
	case m.notify <- struct{}{}:
	default:
	}
}

// InjectFrame is a convenience wrapper around Inject for a standard data frame.
func (m *Mock) InjectFrame(id uint32, data []byte) {
	obj, err := NewDataFrame(id, data)
	if err != nil {
		m.logger.Warn("[Mock] drop injected frame", zap.Uint32("id", id), zap.Error(err))
		return
	}
	m.Inject(obj)
}

// SetLogger routes the mock's debug trace to logger.
func (m *Mock) SetLogger(logger *zap.Logger) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logger = logger
}

// ScriptStatus 预设某个调用接下来的返回值序列
func (m *Mock) ScriptStatus(call string, statuses ...int32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[call] = append(m.statuses[call], statuses...)
}

// ScriptReceive queues raw Receive return values such as ReceiveTimeout or -1.
func (m *Mock) ScriptReceive(results ...int32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rxScript = append(m.rxScript, results...)
}

// SetReceiveWait overrides how long Receive blocks when nothing is queued.
// A negative value restores the caller supplied wait time.
func (m *Mock) SetReceiveWait(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rxWait = d
}

// SetLoopback makes Transmit feed sent frames back into the receive queue.
func (m *Mock) SetLoopback(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loopback = on
}

// SetBoardInfo replaces the board info returned by ReadBoardInfo.
func (m *Mock) SetBoardInfo(info BoardInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.board = info
}

// Calls returns a copy of the call log.
func (m *Mock) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// CallNames returns the call log names, skipping VCI_Receive.
func (m *Mock) CallNames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var names []string
	for _, c := range m.calls {
		if c.Name == CallReceive {
			continue
		}
		names = append(names, c.Name)
	}
	return names
}

// CountCalls returns how many times the named entry point was invoked.
func (m *Mock) CountCalls(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Name == name {
			n++
		}
	}
	return n
}

// ClearCalls 清除调用记录
func (m *Mock) ClearCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// SetRecordCalls turns the call log on or off. Turning it off also clears it.
func (m *Mock) SetRecordCalls(on bool) {
	if !on {
		m.ClearCalls()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.noRecord = !on
}

// Sent returns frames accepted by Transmit.
func (m *Mock) Sent() []CanObj {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]CanObj(nil), m.sent...)
}

// IsOpen reports whether the virtual device is open.
func (m *Mock) IsOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open
}

// IsStarted reports whether StartCAN succeeded for channel since the last open.
func (m *Mock) IsStarted(channel uint32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started[channel]
}
