package driver

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// FormatFrame renders a received frame the way the data pane shows it:
// ID=0x123, Data=[1, 2, 3]
func FormatFrame(obj *CanObj) string {
	var sb strings.Builder
	sb.WriteString("ID=0x")
	sb.WriteString(strings.ToUpper(strconv.FormatUint(uint64(obj.ID), 16)))
	sb.WriteString(", Data=")
	sb.WriteString(FormatBytes(obj.Payload()))
	return sb.String()
}

// FormatBytes 以十进制列表形式输出字节，例如 [1, 2, 3]
func FormatBytes(data []byte) string {
	parts := make([]string, len(data))
	for i, b := range data {
		parts[i] = strconv.Itoa(int(b))
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// ParsePayload 将十六进制字符串转换为最多 8 字节的报文数据。
// 支持空白分隔，每个字段可带 0x 前缀，如 "11 22 33"、"0x11 0x22"、"0x112233"。
func ParsePayload(hexStr string) ([]byte, error) {
	fields := strings.Fields(hexStr)
	for i, f := range fields {
		if strings.HasPrefix(f, "0x") || strings.HasPrefix(f, "0X") {
			if len(f) == 2 {
				return nil, fmt.Errorf("invalid hex payload: empty field %q", f)
			}
			fields[i] = f[2:]
		}
	}
	data, err := hex.DecodeString(strings.Join(fields, ""))
	if err != nil {
		return nil, fmt.Errorf("invalid hex payload: %w", err)
	}
	if len(data) > MaxDataLen {
		return nil, fmt.Errorf("payload length %d exceeds CAN maximum %d", len(data), MaxDataLen)
	}
	return data, nil
}

// NewDataFrame builds a standard data frame for VCI_Transmit.
func NewDataFrame(id uint32, data []byte) (CanObj, error) {
	if id > MaxExtendedID {
		return CanObj{}, fmt.Errorf("identifier 0x%X exceeds 29 bits", id)
	}
	if len(data) > MaxDataLen {
		return CanObj{}, fmt.Errorf("payload length %d exceeds CAN maximum %d", len(data), MaxDataLen)
	}
	obj := CanObj{ID: id, DataLen: byte(len(data))}
	if id > 0x7FF {
		obj.ExternFlag = 1
	}
	copy(obj.Data[:], data)
	return obj, nil
}

// FormatVersion renders a BCD-style VCI version word, e.g. 0x0360 -> "V3.60".
func FormatVersion(v uint16) string {
	return fmt.Sprintf("V%X.%02X", v>>8, v&0xFF)
}
