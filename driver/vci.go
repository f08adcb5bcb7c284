package driver

import (
	"bytes"
	"strings"
	"unicode/utf8"
)

// VCI 状态码约定
const (
	StatusOK       int32 = 1   // 调用成功
	ReceiveTimeout int32 = 995 // VCI_Receive 在等待时间内没有收到帧
)

// 设备类型
const (
	DeviceUSBCAN1 uint32 = 3
	DeviceUSBCAN2 uint32 = 4
)

const (
	MaxDataLen    = 8
	MaxExtendedID = 0x1FFFFFFF
	serialNumLen  = 20
	hwTypeLen     = 40
	defaultAccAll = 0xFFFFFFFF
)

// CanObj mirrors VCI_CAN_OBJ. Field order and widths must not change.
type CanObj struct {
	ID         uint32
	TimeStamp  uint32
	TimeFlag   byte
	SendType   byte
	RemoteFlag byte
	ExternFlag byte
	DataLen    byte
	Data       [MaxDataLen]byte
	Reserved   [3]byte
}

// Payload returns the data bytes announced by DataLen, clamped to the array.
func (o *CanObj) Payload() []byte {
	n := int(o.DataLen)
	if n > len(o.Data) {
		n = len(o.Data)
	}
	return o.Data[:n]
}

// InitConfig mirrors VCI_INIT_CONFIG.
type InitConfig struct {
	AccCode  uint32
	AccMask  uint32
	Reserved uint32
	Filter   byte
	Timing0  byte
	Timing1  byte
	Mode     byte
}

// NewInitConfig returns the accept-all configuration used when (re)initializing
// a channel at the given bit timing.
func NewInitConfig(timing0, timing1 byte) InitConfig {
	return InitConfig{
		AccCode: 0,
		AccMask: defaultAccAll,
		Filter:  1,
		Timing0: timing0,
		Timing1: timing1,
		Mode:    0,
	}
}

// BoardInfo mirrors VCI_BOARD_INFO.
type BoardInfo struct {
	HwVersion uint16
	FwVersion uint16
	DrVersion uint16
	InVersion uint16
	IrqNum    uint16
	CanNum    byte
	SerialNum [serialNumLen]byte
	HwType    [hwTypeLen]byte
	Reserved  [4]uint16
}

// Serial returns the serial number with NUL padding removed.
func (b *BoardInfo) Serial() string { return cString(b.SerialNum[:]) }

// HardwareType returns the hardware type string with NUL padding removed.
func (b *BoardInfo) HardwareType() string { return cString(b.HwType[:]) }

// cString decodes a fixed-width NUL padded buffer, replacing invalid UTF-8.
func cString(buf []byte) string {
	buf = bytes.Trim(buf, "\x00")
	if utf8.Valid(buf) {
		return string(buf)
	}
	return strings.ToValidUTF8(string(buf), "�")
}

// Handle identifies one adapter channel.
type Handle struct {
	DeviceType  uint32 `json:"device_type" mapstructure:"type"`
	DeviceIndex uint32 `json:"device_index" mapstructure:"index"`
	Channel     uint32 `json:"channel" mapstructure:"channel"`
}

// VCI 是厂商动态库的函数表抽象，每个导出函数对应一个方法。
// 返回值遵循 VCI 约定：1 表示成功，其它值表示失败。
type VCI interface {
	OpenDevice(devType, devIndex, reserved uint32) int32
	CloseDevice(devType, devIndex uint32) int32
	InitCAN(devType, devIndex, channel uint32, cfg *InitConfig) int32
	StartCAN(devType, devIndex, channel uint32) int32
	// Receive fills at most len(buf) frames and returns the count, a negative
	// value, or ReceiveTimeout.
	Receive(devType, devIndex, channel uint32, buf []CanObj, waitMs int32) int32
	ReadBoardInfo(devType, devIndex uint32, info *BoardInfo) int32
	Transmit(devType, devIndex, channel uint32, frames []CanObj) int32
}
