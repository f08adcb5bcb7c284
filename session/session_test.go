package session

import (
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/LoveWonYoung/vcimon/driver"
)

var handle = driver.Handle{DeviceType: driver.DeviceUSBCAN2, DeviceIndex: 0, Channel: 0}

func TestSession_OpenThenClose(t *testing.T) {
	for _, h := range []driver.Handle{
		handle,
		{DeviceType: driver.DeviceUSBCAN1, DeviceIndex: 3},
	} {
		m := driver.NewMock()
		s := New(m, nil)
		if err := s.Open(h); err != nil {
			t.Fatalf("Open(%+v): %v", h, err)
		}
		if !s.IsOpen() {
			t.Fatal("session should be open")
		}
		s.Close(h)
		if s.IsOpen() {
			t.Errorf("session still open after Close(%+v)", h)
		}
	}
}

func TestSession_CloseIgnoresDriverFailure(t *testing.T) {
	m := driver.NewMock()
	s := New(m, nil)
	if err := s.Open(handle); err != nil {
		t.Fatal(err)
	}
	m.ScriptStatus(driver.CallCloseDevice, 0)
	s.Close(handle)
	if s.IsOpen() {
		t.Error("Close must clear open state regardless of status")
	}
}

func TestSession_OpenFailure(t *testing.T) {
	m := driver.NewMock()
	m.ScriptStatus(driver.CallOpenDevice, -1)
	s := New(m, nil)
	err := s.Open(handle)
	if !errors.Is(err, ErrOpenFailed) {
		t.Fatalf("expected ErrOpenFailed, got %v", err)
	}
	if s.IsOpen() {
		t.Error("session must stay closed")
	}
}

func TestSession_ReconfigureStepOrder(t *testing.T) {
	cases := []struct {
		name   string
		call   string
		script []int32
		want   error
		calls  []string
	}{
		{
			name:   "open",
			call:   driver.CallOpenDevice,
			script: []int32{0},
			want:   ErrOpenFailed,
			calls:  []string{driver.CallCloseDevice, driver.CallOpenDevice},
		},
		{
			name:   "init can1",
			call:   driver.CallInitCAN,
			script: []int32{0},
			want:   ErrInitCAN1,
			calls:  []string{driver.CallCloseDevice, driver.CallOpenDevice, driver.CallInitCAN},
		},
		{
			name:   "init can2",
			call:   driver.CallInitCAN,
			script: []int32{1, 0},
			want:   ErrInitCAN2,
			calls:  []string{driver.CallCloseDevice, driver.CallOpenDevice, driver.CallInitCAN, driver.CallInitCAN},
		},
		{
			name:   "start can1",
			call:   driver.CallStartCAN,
			script: []int32{0},
			want:   ErrStartCAN1,
			calls: []string{driver.CallCloseDevice, driver.CallOpenDevice, driver.CallInitCAN, driver.CallInitCAN,
				driver.CallStartCAN},
		},
		{
			name:   "start can2",
			call:   driver.CallStartCAN,
			script: []int32{1, 0},
			want:   ErrStartCAN2,
			calls: []string{driver.CallCloseDevice, driver.CallOpenDevice, driver.CallInitCAN, driver.CallInitCAN,
				driver.CallStartCAN, driver.CallStartCAN},
		},
	}

	all := []error{ErrOpenFailed, ErrInitCAN1, ErrInitCAN2, ErrStartCAN1, ErrStartCAN2}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := driver.NewMock()
			m.ScriptStatus(tc.call, tc.script...)
			s := New(m, nil)

			err := s.Reconfigure(handle, 0, 1, 0x01, 0x1C)
			if !errors.Is(err, tc.want) {
				t.Fatalf("Reconfigure err = %v, want %v", err, tc.want)
			}
			for _, other := range all {
				if other != tc.want && errors.Is(err, other) {
					t.Errorf("error %v also matches %v", err, other)
				}
			}
			got := m.CallNames()
			if len(got) != len(tc.calls) {
				t.Fatalf("calls = %v, want %v", got, tc.calls)
			}
			for i := range got {
				if got[i] != tc.calls[i] {
					t.Errorf("call %d = %s, want %s", i, got[i], tc.calls[i])
				}
			}
		})
	}
}

func TestSession_ReconfigureSuccess(t *testing.T) {
	m := driver.NewMock()
	s := New(m, nil)
	rate, _ := driver.BaudRateAt(9)
	if err := s.ApplyBaud(handle, 0, 1, rate); err != nil {
		t.Fatalf("ApplyBaud: %v", err)
	}
	if !s.IsOpen() || !m.IsStarted(0) || !m.IsStarted(1) {
		t.Error("both channels should be started")
	}

	for _, c := range m.Calls() {
		if c.Name != driver.CallInitCAN {
			continue
		}
		want := driver.InitConfig{AccCode: 0, AccMask: 0xFFFFFFFF, Filter: 1, Timing0: 0x00, Timing1: 0x1C, Mode: 0}
		if *c.Config != want {
			t.Errorf("InitCAN config = %+v, want %+v", *c.Config, want)
		}
	}
}

func TestSession_ReadBoardInfo(t *testing.T) {
	m := driver.NewMock()
	var info driver.BoardInfo
	copy(info.SerialNum[:], "ABC123")
	info.FwVersion = 0x0360
	info.CanNum = 2
	m.SetBoardInfo(info)
	s := New(m, nil)

	if _, err := s.ReadBoardInfo(handle); !errors.Is(err, ErrBoardInfo) {
		t.Fatalf("expected ErrBoardInfo on closed device, got %v", err)
	}

	if err := s.Open(handle); err != nil {
		t.Fatal(err)
	}
	got, err := s.ReadBoardInfo(handle)
	if err != nil {
		t.Fatal(err)
	}
	if got.SerialNumber != "ABC123" {
		t.Errorf("SerialNumber = %q, want ABC123", got.SerialNumber)
	}
	if got.FirmwareVersion != 0x0360 || got.CANCount != 2 {
		t.Errorf("unexpected info %+v", got)
	}
	if got.String() != "SN=ABC123, HW=, FW=V3.60, CAN=2" {
		t.Errorf("String = %q", got.String())
	}
}

func TestSession_Transmit(t *testing.T) {
	m := driver.NewMock()
	s := New(m, nil)
	if err := s.Transmit(handle, 0x123, []byte{1}); !errors.Is(err, ErrDeviceNotOpen) {
		t.Fatalf("expected ErrDeviceNotOpen, got %v", err)
	}
	if err := s.Open(handle); err != nil {
		t.Fatal(err)
	}
	if err := s.Transmit(handle, 0x123, []byte{1, 2}); err != nil {
		t.Fatal(err)
	}
	sent := m.Sent()
	if len(sent) != 1 || sent[0].ID != 0x123 || sent[0].DataLen != 2 {
		t.Errorf("sent = %+v", sent)
	}
	m.ScriptStatus(driver.CallTransmit, 0)
	if err := s.Transmit(handle, 0x123, nil); !errors.Is(err, ErrTransmit) {
		t.Errorf("expected ErrTransmit, got %v", err)
	}
}

func TestSession_ReconfigureLogsFailedStep(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	m := driver.NewMock()
	m.ScriptStatus(driver.CallInitCAN, driver.StatusOK, 0)
	s := New(m, zap.New(core))

	err := s.Reconfigure(handle, 0, 1, 0x01, 0x1C)
	if !errors.Is(err, ErrInitCAN2) {
		t.Fatalf("expected ErrInitCAN2, got %v", err)
	}
	var stepErr *StepError
	if !errors.As(err, &stepErr) || stepErr.Channel != 1 || stepErr.Status != 0 {
		t.Errorf("step error = %+v", stepErr)
	}

	entries := logs.FilterMessage("Reconfigure failed").All()
	if len(entries) != 1 {
		t.Fatalf("got %d failure entries, want 1", len(entries))
	}
	if step := entries[0].ContextMap()["step"]; step != StepInitCAN2.String() {
		t.Errorf("logged step = %v", step)
	}
	if logs.FilterMessage("Device reconfigured").Len() != 0 {
		t.Error("success must not be logged after a failed step")
	}
}
