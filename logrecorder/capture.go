package logrecorder

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"go.uber.org/zap"

	"github.com/LoveWonYoung/vcimon/driver"
)

// Record is one received frame in a capture file.
type Record struct {
	At          int64  `cbor:"1,keyasint"` // unix nanoseconds on the host
	DeviceType  uint32 `cbor:"2,keyasint"`
	DeviceIndex uint32 `cbor:"3,keyasint"`
	Channel     uint32 `cbor:"4,keyasint"`
	ID          uint32 `cbor:"5,keyasint"`
	TimeStamp   uint32 `cbor:"6,keyasint"` // adapter timestamp, 0.1ms units
	Remote      bool   `cbor:"7,keyasint,omitempty"`
	Extended    bool   `cbor:"8,keyasint,omitempty"`
	Data        []byte `cbor:"9,keyasint"`
}

// NewRecord converts a received frame.
func NewRecord(at time.Time, h driver.Handle, obj *driver.CanObj) Record {
	return Record{
		At:          at.UnixNano(),
		DeviceType:  h.DeviceType,
		DeviceIndex: h.DeviceIndex,
		Channel:     h.Channel,
		ID:          obj.ID,
		TimeStamp:   obj.TimeStamp,
		Remote:      obj.RemoteFlag != 0,
		Extended:    obj.ExternFlag != 0,
		Data:        append([]byte(nil), obj.Payload()...),
	}
}

// String renders the record like the data pane does.
func (r Record) String() string {
	obj := driver.CanObj{ID: r.ID, DataLen: byte(len(r.Data))}
	copy(obj.Data[:], r.Data)
	return driver.FormatFrame(&obj)
}

// FrameRecorder appends a CBOR sequence of Records to a capture file.
type FrameRecorder struct {
	mu     sync.Mutex
	f      *os.File
	w      *bufio.Writer
	enc    *cbor.Encoder
	logger *zap.Logger
	count  int
}

// NewFrameRecorder creates <base>/<date>/<prefix><stamp>.cbor.
func NewFrameRecorder(base, prefix string, logger *zap.Logger) (*FrameRecorder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	now := time.Now()
	dir, err := MakeDir(base, now)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(dir, prefix+stamp(now)+".cbor")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o666)
	if err != nil {
		return nil, fmt.Errorf("open capture file: %w", err)
	}
	w := bufio.NewWriter(f)
	logger.Info("Frame capture started", zap.String("file", path))
	return &FrameRecorder{f: f, w: w, enc: cbor.NewEncoder(w), logger: logger}, nil
}

// Record appends one frame.
func (r *FrameRecorder) Record(h driver.Handle, obj driver.CanObj) error {
	rec := NewRecord(time.Now(), h, &obj)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f == nil {
		return os.ErrClosed
	}
	if err := r.enc.Encode(rec); err != nil {
		return fmt.Errorf("encode capture record: %w", err)
	}
	r.count++
	return nil
}

// Hook adapts Record to the receiver's frame hook signature; encode errors
// are logged, never returned to the receive loop.
func (r *FrameRecorder) Hook() func(driver.Handle, driver.CanObj) {
	return func(h driver.Handle, obj driver.CanObj) {
		if err := r.Record(h, obj); err != nil {
			r.logger.Warn("Capture write failed", zap.Error(err))
		}
	}
}

// Count returns how many frames were recorded.
func (r *FrameRecorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Name returns the capture file path.
func (r *FrameRecorder) Name() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f == nil {
		return ""
	}
	return r.f.Name()
}

// Flush pushes buffered records to the file.
func (r *FrameRecorder) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.w == nil {
		return nil
	}
	return r.w.Flush()
}

func (r *FrameRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f == nil {
		return nil
	}
	err := errors.Join(r.w.Flush(), r.f.Close())
	r.f, r.w = nil, nil
	r.logger.Info("Frame capture closed", zap.Int("frames", r.count))
	return err
}

// ReadCapture decodes every record from a capture stream.
func ReadCapture(rd io.Reader) ([]Record, error) {
	dec := cbor.NewDecoder(rd)
	var out []Record
	for {
		var rec Record
		err := dec.Decode(&rec)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, fmt.Errorf("decode capture record %d: %w", len(out), err)
		}
		out = append(out, rec)
	}
}

// ReadCaptureFile opens path and decodes it with ReadCapture.
func ReadCaptureFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadCapture(bufio.NewReader(f))
}
