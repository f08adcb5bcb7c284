// Package session drives the device lifecycle of a VCI adapter: open, close,
// baud reconfiguration, board info and single frame transmit.
package session

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/LoveWonYoung/vcimon/driver"
)

// DeviceInfo is the decoded part of VCI_BOARD_INFO shown to the operator.
type DeviceInfo struct {
	SerialNumber    string `json:"serial_number"`
	HardwareType    string `json:"hardware_type"`
	FirmwareVersion uint16 `json:"firmware_version"`
	HardwareVersion uint16 `json:"hardware_version"`
	DriverVersion   uint16 `json:"driver_version"`
	CANCount        uint8  `json:"can_count"`
}

func (d DeviceInfo) String() string {
	return fmt.Sprintf("SN=%s, HW=%s, FW=%s, CAN=%d",
		d.SerialNumber, d.HardwareType, driver.FormatVersion(d.FirmwareVersion), d.CANCount)
}

// Session tracks whether the adapter is open and issues lifecycle calls.
type Session struct {
	vci    driver.VCI
	logger *zap.Logger

	mu   sync.Mutex
	open bool
}

// New returns a closed session over vci.
func New(vci driver.VCI, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{vci: vci, logger: logger}
}

// IsOpen reports the session's view of the device state.
func (s *Session) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

// Open opens the device with reserved flags 0.
func (s *Session) Open(h driver.Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ret := s.vci.OpenDevice(h.DeviceType, h.DeviceIndex, 0); ret != driver.StatusOK {
		s.logger.Warn("Open device failed",
			zap.Uint32("device_type", h.DeviceType),
			zap.Uint32("device_index", h.DeviceIndex),
			zap.Int32("status", ret))
		return stepError(StepOpen, 0, ret)
	}
	s.open = true
	s.logger.Info("Device opened",
		zap.Uint32("device_type", h.DeviceType),
		zap.Uint32("device_index", h.DeviceIndex))
	return nil
}

// Close closes the device. The session is marked closed whatever the driver returns.
func (s *Session) Close(h driver.Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked(h)
}

func (s *Session) closeLocked(h driver.Handle) {
	if ret := s.vci.CloseDevice(h.DeviceType, h.DeviceIndex); ret != driver.StatusOK {
		s.logger.Warn("Close device returned failure",
			zap.Uint32("device_type", h.DeviceType),
			zap.Uint32("device_index", h.DeviceIndex),
			zap.Int32("status", ret))
	}
	s.open = false
}

// Reconfigure closes and reopens the device, then initializes and starts both
// channels at the given bit timing. It stops at the first failing call and
// leaves whatever already succeeded in place.
func (s *Session) Reconfigure(h driver.Handle, can1, can2 uint32, timing0, timing1 byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closeLocked(h)
	if ret := s.vci.OpenDevice(h.DeviceType, h.DeviceIndex, 0); ret != driver.StatusOK {
		return s.fail(stepError(StepOpen, 0, ret))
	}
	s.open = true

	cfg := driver.NewInitConfig(timing0, timing1)
	if ret := s.vci.InitCAN(h.DeviceType, h.DeviceIndex, can1, &cfg); ret != driver.StatusOK {
		return s.fail(stepError(StepInitCAN1, can1, ret))
	}
	if ret := s.vci.InitCAN(h.DeviceType, h.DeviceIndex, can2, &cfg); ret != driver.StatusOK {
		return s.fail(stepError(StepInitCAN2, can2, ret))
	}
	if ret := s.vci.StartCAN(h.DeviceType, h.DeviceIndex, can1); ret != driver.StatusOK {
		return s.fail(stepError(StepStartCAN1, can1, ret))
	}
	if ret := s.vci.StartCAN(h.DeviceType, h.DeviceIndex, can2); ret != driver.StatusOK {
		return s.fail(stepError(StepStartCAN2, can2, ret))
	}

	s.logger.Info("Device reconfigured",
		zap.Uint32("device_type", h.DeviceType),
		zap.Uint32("device_index", h.DeviceIndex),
		zap.Uint32("can1", can1),
		zap.Uint32("can2", can2),
		zap.Uint8("timing0", timing0),
		zap.Uint8("timing1", timing1))
	return nil
}

// ApplyBaud reconfigures both channels with a preset from the baud table.
func (s *Session) ApplyBaud(h driver.Handle, can1, can2 uint32, rate driver.BaudRate) error {
	return s.Reconfigure(h, can1, can2, rate.Timing0, rate.Timing1)
}

func (s *Session) fail(err *StepError) error {
	s.logger.Error("Reconfigure failed", zap.Stringer("step", err.Step), zap.Error(err))
	return err
}

// ReadBoardInfo reads the adapter identification block.
func (s *Session) ReadBoardInfo(h driver.Handle) (DeviceInfo, error) {
	var info driver.BoardInfo
	if ret := s.vci.ReadBoardInfo(h.DeviceType, h.DeviceIndex, &info); ret != driver.StatusOK {
		return DeviceInfo{}, &StepError{Step: StepReadBoardInfo, Status: ret, msg: "failed to read board info"}
	}
	return DeviceInfo{
		SerialNumber:    info.Serial(),
		HardwareType:    info.HardwareType(),
		FirmwareVersion: info.FwVersion,
		HardwareVersion: info.HwVersion,
		DriverVersion:   info.DrVersion,
		CANCount:        info.CanNum,
	}, nil
}

// Transmit sends one data frame on h.Channel.
func (s *Session) Transmit(h driver.Handle, id uint32, data []byte) error {
	if !s.IsOpen() {
		return ErrDeviceNotOpen
	}
	obj, err := driver.NewDataFrame(id, data)
	if err != nil {
		return err
	}
	if ret := s.vci.Transmit(h.DeviceType, h.DeviceIndex, h.Channel, []driver.CanObj{obj}); ret != 1 {
		return stepError(StepTransmit, h.Channel, ret)
	}
	s.logger.Debug("Frame transmitted", zap.String("frame", driver.FormatFrame(&obj)))
	return nil
}
