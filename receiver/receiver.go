// Package receiver runs the background polling loop that pulls frames from a
// VCI adapter channel and hands them to the console as formatted text.
package receiver

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/LoveWonYoung/vcimon/driver"
)

var (
	ErrAlreadyReceiving = errors.New("receiver: already receiving")
	ErrNilSink          = errors.New("receiver: nil sink")
	ErrStillStopping    = errors.New("receiver: previous loop has not exited yet")
)

// Sink accepts formatted frame lines. Push reports false when the line was dropped.
type Sink interface {
	Push(line string) bool
}

// FrameHook observes every received frame, e.g. for capture to disk.
type FrameHook func(h driver.Handle, obj driver.CanObj)

// Stats counts loop outcomes since the Receiver was created.
type Stats struct {
	Polls    uint64 `json:"polls"`
	Frames   uint64 `json:"frames"`
	Timeouts uint64 `json:"timeouts"`
	Errors   uint64 `json:"errors"`
	Dropped  uint64 `json:"dropped"`
}

type run struct {
	handle   driver.Handle
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func (rn *run) halt() { rn.stopOnce.Do(func() { close(rn.stop) }) }

// Receiver polls one channel at a time. The receiving flag is the only state
// shared with the loop goroutine besides the counters.
type Receiver struct {
	vci    driver.VCI
	cfg    Config
	logger *zap.Logger

	receiving atomic.Bool

	mu   sync.Mutex
	cur  *run
	hook FrameHook

	polls    atomic.Uint64
	frames   atomic.Uint64
	timeouts atomic.Uint64
	errs     atomic.Uint64
	dropped  atomic.Uint64
}

// New creates an idle receiver. An invalid cfg falls back to DefaultConfig.
func New(vci driver.VCI, cfg Config, logger *zap.Logger) *Receiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		logger.Warn("Invalid receiver config, using defaults", zap.Error(err))
		cfg = DefaultConfig()
	}
	return &Receiver{vci: vci, cfg: cfg, logger: logger}
}

// SetFrameHook installs fn for loops started afterwards.
func (r *Receiver) SetFrameHook(fn FrameHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hook = fn
}

// Receiving reports whether the loop is meant to be running.
func (r *Receiver) Receiving() bool {
	return r.receiving.Load()
}

// Start launches the polling loop for h. Only one loop runs at a time: a
// second Start while receiving returns ErrAlreadyReceiving, and a Start right
// after Stop waits for the previous loop's in-flight poll to finish.
func (r *Receiver) Start(h driver.Handle, sink Sink) error {
	if sink == nil {
		return ErrNilSink
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.receiving.Load() {
		return ErrAlreadyReceiving
	}
	if prev := r.cur; prev != nil {
		select {
		case <-prev.done:
		case <-time.After(2 * (r.cfg.PollTimeout + r.cfg.Interval)):
			return ErrStillStopping
		}
	}

	rn := &run{handle: h, stop: make(chan struct{}), done: make(chan struct{})}
	r.cur = rn
	r.receiving.Store(true)
	go r.loop(rn, sink, r.hook)

	r.logger.Info("Receiver started",
		zap.Uint32("device_type", h.DeviceType),
		zap.Uint32("device_index", h.DeviceIndex),
		zap.Uint32("channel", h.Channel),
		zap.Duration("poll_timeout", r.cfg.PollTimeout),
		zap.Duration("interval", r.cfg.Interval))
	return nil
}

// Stop clears the receiving flag and returns immediately. The loop exits
// after its in-flight poll; use Wait to block until it has.
func (r *Receiver) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.receiving.Swap(false) {
		return
	}
	if r.cur != nil {
		r.cur.halt()
	}
	r.logger.Info("Receiver stopping")
}

// Wait blocks until the most recent loop has exited or ctx is done.
func (r *Receiver) Wait(ctx context.Context) error {
	r.mu.Lock()
	rn := r.cur
	r.mu.Unlock()
	if rn == nil {
		return nil
	}
	select {
	case <-rn.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns a snapshot of the loop counters.
func (r *Receiver) Stats() Stats {
	return Stats{
		Polls:    r.polls.Load(),
		Frames:   r.frames.Load(),
		Timeouts: r.timeouts.Load(),
		Errors:   r.errs.Load(),
		Dropped:  r.dropped.Load(),
	}
}

func (r *Receiver) loop(rn *run, sink Sink, hook FrameHook) {
	defer close(rn.done)
	defer r.logger.Info("Receiver stopped", zap.Uint32("channel", rn.handle.Channel))

	buf := make([]driver.CanObj, r.cfg.BatchSize)
	waitMs := int32(r.cfg.PollTimeout / time.Millisecond)
	timer := time.NewTimer(r.cfg.Interval)
	defer timer.Stop()

	for r.active(rn) {
		r.poll(rn.handle, buf, waitMs, sink, hook)

		timer.Reset(r.cfg.Interval)
		select {
		case <-rn.stop:
			return
		case <-timer.C:
		}
	}
}

func (r *Receiver) active(rn *run) bool {
	if !r.receiving.Load() {
		return false
	}
	select {
	case <-rn.stop:
		return false
	default:
		return true
	}
}

func (r *Receiver) poll(h driver.Handle, buf []driver.CanObj, waitMs int32, sink Sink, hook FrameHook) {
	for i := range buf {
		buf[i] = driver.CanObj{}
	}
	n := r.vci.Receive(h.DeviceType, h.DeviceIndex, h.Channel, buf, waitMs)
	r.polls.Add(1)

	switch {
	case n == driver.ReceiveTimeout:
		// 等待超时不算错误
		r.timeouts.Add(1)
	case n > 0:
		if int(n) > len(buf) {
			n = int32(len(buf))
		}
		for i := range buf[:n] {
			obj := &buf[i]
			r.frames.Add(1)
			if hook != nil {
				hook(h, *obj)
			}
			if !sink.Push(driver.FormatFrame(obj)) {
				r.dropped.Add(1)
			}
		}
	case n < 0:
		r.errs.Add(1)
		r.logger.Debug("Receive returned error",
			zap.Uint32("channel", h.Channel),
			zap.Int32("status", n))
	}
}
