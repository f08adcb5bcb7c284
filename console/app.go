// Package console is the operator front-end: it owns the two bounded panes,
// forwards operator actions to the device session and receive loop, and
// serves both over HTTP and WebSocket.
package console

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/LoveWonYoung/vcimon/buffer"
	"github.com/LoveWonYoung/vcimon/driver"
	"github.com/LoveWonYoung/vcimon/receiver"
	"github.com/LoveWonYoung/vcimon/session"
)

// Options seeds the editable fields of the console.
type Options struct {
	Handle     driver.Handle
	CAN1       uint32
	CAN2       uint32
	Baud       int
	BufferSize int
}

// Snapshot is everything a front-end needs to draw one frame.
type Snapshot struct {
	DeviceOpen bool              `json:"device_open"`
	Receiving  bool              `json:"receiving"`
	Handle     driver.Handle     `json:"handle"`
	CAN1       uint32            `json:"can1"`
	CAN2       uint32            `json:"can2"`
	Baud       int               `json:"baud"`
	BaudRates  []driver.BaudRate `json:"baud_rates"`
	Log        []string          `json:"log"`
	Data       []string          `json:"data"`
	Stats      receiver.Stats    `json:"stats"`
	Time       time.Time         `json:"time"`
}

// App is the console model. Actions may be called from any goroutine;
// they are serialized on the App mutex.
type App struct {
	sess   *session.Session
	rx     *receiver.Receiver
	logger *zap.Logger

	mu     sync.Mutex
	handle driver.Handle
	can1   uint32
	can2   uint32
	baud   int

	logQ     *buffer.Queue
	dataQ    *buffer.Queue
	logRing  *buffer.Ring
	dataRing *buffer.Ring
}

// NewApp wires a console over an existing session and receiver.
func NewApp(sess *session.Session, rx *receiver.Receiver, opts Options, logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	if _, err := driver.BaudRateAt(opts.Baud); err != nil {
		opts.Baud = driver.DefaultBaudIndex
	}
	return &App{
		sess:     sess,
		rx:       rx,
		logger:   logger,
		handle:   opts.Handle,
		can1:     opts.CAN1,
		can2:     opts.CAN2,
		baud:     opts.Baud,
		logQ:     buffer.NewQueue(),
		dataQ:    buffer.NewQueue(),
		logRing:  buffer.NewRing(opts.BufferSize),
		dataRing: buffer.NewRing(opts.BufferSize),
	}
}

// Logf appends a line to the log pane.
func (a *App) Logf(format string, args ...any) {
	a.logQ.Push(fmt.Sprintf(format, args...))
}

func (a *App) logError(action string, err error) {
	a.Logf("Error: %s: %v", action, err)
	a.logger.Warn("Console action failed", zap.String("action", action), zap.Error(err))
}

// Handle returns the current device handle.
func (a *App) Handle() driver.Handle {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.handle
}

// SetHandle edits device type, index and channel. A running receive loop
// keeps the handle it was started with.
func (a *App) SetHandle(h driver.Handle) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handle = h
}

// SetChannels edits the CAN1/CAN2 pair used by ApplyBaud.
func (a *App) SetChannels(can1, can2 uint32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.can1, a.can2 = can1, can2
}

func (a *App) OpenDevice() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.sess.Open(a.handle); err != nil {
		a.logError("open", err)
		return err
	}
	a.Logf("Device opened (type=%d, index=%d)", a.handle.DeviceType, a.handle.DeviceIndex)
	return nil
}

// CloseDevice stops receiving first so no poll runs against a closed device.
func (a *App) CloseDevice() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.rx.Receiving() {
		a.rx.Stop()
		a.Logf("Receiving stopped")
	}
	a.sess.Close(a.handle)
	a.Logf("Device closed")
}

func (a *App) StartReceive() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.sess.IsOpen() {
		a.logError("receive", session.ErrDeviceNotOpen)
		return session.ErrDeviceNotOpen
	}
	if err := a.rx.Start(a.handle, a.dataQ); err != nil {
		a.logError("receive", err)
		return err
	}
	a.Logf("Receiving started on channel %d", a.handle.Channel)
	return nil
}

func (a *App) StopReceive() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rx.Stop()
	a.Logf("Receiving stopped")
}

func (a *App) ReadBoardInfo() (session.DeviceInfo, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	info, err := a.sess.ReadBoardInfo(a.handle)
	if err != nil {
		a.logError("board info", err)
		return info, err
	}
	a.Logf("Board info: %s", info)
	return info, nil
}

// ApplyBaud selects preset index and reconfigures both channels with it.
func (a *App) ApplyBaud(index int) error {
	rate, err := driver.BaudRateAt(index)
	if err != nil {
		a.logError("baud", err)
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.baud = index
	if err := a.sess.ApplyBaud(a.handle, a.can1, a.can2, rate); err != nil {
		a.logError("baud", err)
		return err
	}
	a.Logf("Baud rate set to %s (CAN%d, CAN%d)", rate.Name, a.can1, a.can2)
	return nil
}

// Transmit sends one frame on the current channel; payload is hex text.
func (a *App) Transmit(id uint32, payload string) error {
	if id > driver.MaxExtendedID {
		err := fmt.Errorf("identifier 0x%X exceeds 29 bits", id)
		a.logError("transmit", err)
		return err
	}
	data, err := driver.ParsePayload(payload)
	if err != nil {
		a.logError("transmit", err)
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.sess.Transmit(a.handle, id, data); err != nil {
		a.logError("transmit", err)
		return err
	}
	a.Logf("Sent ID=0x%X, Data=%s", id, driver.FormatBytes(data))
	return nil
}

// Tick drains both queues into their panes and returns the resulting view.
// It never blocks on the receive loop.
func (a *App) Tick() Snapshot {
	a.logRing.Append(a.logQ.Drain()...)
	a.dataRing.Append(a.dataQ.Drain()...)
	return a.Snapshot()
}

// Snapshot returns the current view without draining.
func (a *App) Snapshot() Snapshot {
	a.mu.Lock()
	h, can1, can2, baud := a.handle, a.can1, a.can2, a.baud
	a.mu.Unlock()
	return Snapshot{
		DeviceOpen: a.sess.IsOpen(),
		Receiving:  a.rx.Receiving(),
		Handle:     h,
		CAN1:       can1,
		CAN2:       can2,
		Baud:       baud,
		BaudRates:  driver.BaudRates(),
		Log:        a.logRing.Lines(),
		Data:       a.dataRing.Lines(),
		Stats:      a.rx.Stats(),
		Time:       time.Now(),
	}
}

// ClearData empties the received-frame pane.
func (a *App) ClearData() {
	a.dataQ.Drain()
	a.dataRing.Clear()
}

// Shutdown stops receiving and closes the device if open.
func (a *App) Shutdown() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rx.Stop()
	if a.sess.IsOpen() {
		a.sess.Close(a.handle)
	}
	a.logQ.Close()
	a.dataQ.Close()
}

// IsDeviceNotOpen reports whether err means the action needs an open device.
func IsDeviceNotOpen(err error) bool {
	return errors.Is(err, session.ErrDeviceNotOpen)
}
