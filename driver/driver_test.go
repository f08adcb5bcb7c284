package driver

import (
	"errors"
	"sync"
	"testing"
	"time"
	"unsafe"
)

func TestStructLayout(t *testing.T) {
	if got := unsafe.Sizeof(CanObj{}); got != 24 {
		t.Errorf("VCI_CAN_OBJ size = %d, want 24", got)
	}
	if got := unsafe.Sizeof(InitConfig{}); got != 16 {
		t.Errorf("VCI_INIT_CONFIG size = %d, want 16", got)
	}
	if got := unsafe.Sizeof(BoardInfo{}); got != 80 {
		t.Errorf("VCI_BOARD_INFO size = %d, want 80", got)
	}
	if got := unsafe.Offsetof(BoardInfo{}.SerialNum); got != 11 {
		t.Errorf("str_Serial_Num offset = %d, want 11", got)
	}
}

func TestFormatFrame(t *testing.T) {
	obj := CanObj{ID: 0x123, DataLen: 3, Data: [8]byte{1, 2, 3, 9, 9}}
	if got, want := FormatFrame(&obj), "ID=0x123, Data=[1, 2, 3]"; got != want {
		t.Errorf("FormatFrame = %q, want %q", got, want)
	}

	obj = CanObj{ID: 0x18DAF1AB}
	if got, want := FormatFrame(&obj), "ID=0x18DAF1AB, Data=[]"; got != want {
		t.Errorf("FormatFrame = %q, want %q", got, want)
	}

	// DataLen beyond the array is clamped.
	obj = CanObj{ID: 0x1, DataLen: 12, Data: [8]byte{0, 1, 2, 3, 4, 5, 6, 255}}
	if got, want := FormatFrame(&obj), "ID=0x1, Data=[0, 1, 2, 3, 4, 5, 6, 255]"; got != want {
		t.Errorf("FormatFrame = %q, want %q", got, want)
	}
}

func TestBoardInfoStrings(t *testing.T) {
	var info BoardInfo
	copy(info.SerialNum[:], "ABC123")
	copy(info.HwType[:], "USBCAN-II")
	if got := info.Serial(); got != "ABC123" {
		t.Errorf("Serial = %q, want ABC123", got)
	}
	if got := info.HardwareType(); got != "USBCAN-II" {
		t.Errorf("HardwareType = %q", got)
	}

	var bad BoardInfo
	copy(bad.SerialNum[:], []byte{'A', 0xFF, 'B'})
	if got := bad.Serial(); got != "A�B" {
		t.Errorf("lossy Serial = %q", got)
	}
}

func TestParsePayload(t *testing.T) {
	cases := []struct {
		in      string
		want    []byte
		wantErr bool
	}{
		{"11 22 33", []byte{0x11, 0x22, 0x33}, false},
		{"0x0102", []byte{1, 2}, false},
		{"0x01 0x02 0X03", []byte{1, 2, 3}, false},
		{"  aa\tBB  ", []byte{0xAA, 0xBB}, false},
		{"0x", nil, true},
		{"", []byte{}, false},
		{"zz", nil, true},
		{"010203040506070809", nil, true},
	}
	for _, tc := range cases {
		got, err := ParsePayload(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("ParsePayload(%q) err = %v, wantErr %v", tc.in, err, tc.wantErr)
			continue
		}
		if !tc.wantErr && string(got) != string(tc.want) {
			t.Errorf("ParsePayload(%q) = % X, want % X", tc.in, got, tc.want)
		}
	}
}

func TestNewDataFrame(t *testing.T) {
	obj, err := NewDataFrame(0x18FF0001, []byte{0xAA})
	if err != nil {
		t.Fatal(err)
	}
	if obj.ExternFlag != 1 || obj.DataLen != 1 || obj.Data[0] != 0xAA {
		t.Errorf("unexpected frame %+v", obj)
	}
	if _, err := NewDataFrame(0x1, make([]byte, 9)); err == nil {
		t.Error("expected error for 9 byte payload")
	}
	if _, err := NewDataFrame(MaxExtendedID, nil); err != nil {
		t.Errorf("0x1FFFFFFF should be accepted: %v", err)
	}
	if _, err := NewDataFrame(MaxExtendedID+1, nil); err == nil {
		t.Error("expected error for identifier wider than 29 bits")
	}
}

func TestFormatVersion(t *testing.T) {
	if got := FormatVersion(0x0360); got != "V3.60" {
		t.Errorf("FormatVersion = %q", got)
	}
}

func TestBaudRates(t *testing.T) {
	rates := BaudRates()
	if len(rates) != 11 {
		t.Fatalf("expected 11 presets, got %d", len(rates))
	}
	def, err := BaudRateAt(DefaultBaudIndex)
	if err != nil || def.Name != "250 Kbps" || def.Timing0 != 0x01 || def.Timing1 != 0x1C {
		t.Errorf("default preset = %+v, %v", def, err)
	}
	if _, err := BaudRateAt(11); err == nil {
		t.Error("expected out of range error")
	}
	i, b, err := BaudRateByName("1000kbps")
	if err != nil || i != 10 || b.Timing1 != 0x14 {
		t.Errorf("BaudRateByName = %d %+v %v", i, b, err)
	}
	rates[0].Name = "changed"
	if r, _ := BaudRateAt(0); r.Name != "10 Kbps" {
		t.Error("BaudRates must return a copy")
	}
}

func TestMock_ReceiveTimesOutWithoutFrames(t *testing.T) {
	m := NewMock()
	m.SetReceiveWait(time.Millisecond)
	m.OpenDevice(DeviceUSBCAN2, 0, 0)

	buf := make([]CanObj, 1)
	if got := m.Receive(DeviceUSBCAN2, 0, 0, buf, 500); got != ReceiveTimeout {
		t.Errorf("Receive = %d, want %d", got, ReceiveTimeout)
	}

	m.InjectFrame(0x123, []byte{1, 2, 3})
	if got := m.Receive(DeviceUSBCAN2, 0, 0, buf, 500); got != 1 {
		t.Fatalf("Receive = %d, want 1", got)
	}
	if buf[0].ID != 0x123 || buf[0].DataLen != 3 {
		t.Errorf("unexpected frame %+v", buf[0])
	}
}

func TestMock_InjectWakesBlockedReceive(t *testing.T) {
	m := NewMock()
	m.OpenDevice(DeviceUSBCAN2, 0, 0)

	done := make(chan int32, 1)
	go func() {
		buf := make([]CanObj, 1)
		done <- m.Receive(DeviceUSBCAN2, 0, 0, buf, 5000)
	}()
	time.Sleep(20 * time.Millisecond)
	m.InjectFrame(0x7E8, []byte{0x02})

	select {
	case n := <-done:
		if n != 1 {
			t.Errorf("Receive = %d, want 1", n)
		}
	case <-time.After(time.Second):
		t.Fatal("Receive not woken by Inject")
	}
}

func TestMock_ClosedDevice(t *testing.T) {
	m := NewMock()
	buf := make([]CanObj, 1)
	if got := m.Receive(DeviceUSBCAN2, 0, 0, buf, 10); got != -1 {
		t.Errorf("Receive on closed device = %d, want -1", got)
	}
	var info BoardInfo
	if got := m.ReadBoardInfo(DeviceUSBCAN2, 0, &info); got == StatusOK {
		t.Error("ReadBoardInfo must fail while closed")
	}
}

func TestMock_ScriptStatusAndLoopback(t *testing.T) {
	m := NewMock()
	m.SetReceiveWait(time.Millisecond)
	m.ScriptStatus(CallOpenDevice, 0)
	if got := m.OpenDevice(DeviceUSBCAN2, 0, 0); got != 0 {
		t.Errorf("scripted OpenDevice = %d", got)
	}
	if got := m.OpenDevice(DeviceUSBCAN2, 0, 0); got != StatusOK {
		t.Errorf("OpenDevice after script = %d", got)
	}

	m.SetLoopback(true)
	frame, _ := NewDataFrame(0x100, []byte{7})
	if got := m.Transmit(DeviceUSBCAN2, 0, 0, []CanObj{frame}); got != 1 {
		t.Fatalf("Transmit = %d", got)
	}
	buf := make([]CanObj, 4)
	if got := m.Receive(DeviceUSBCAN2, 0, 0, buf, 10); got != 1 || buf[0].ID != 0x100 {
		t.Errorf("loopback Receive = %d %+v", got, buf[0])
	}
	if len(m.Sent()) != 1 {
		t.Errorf("Sent = %d frames", len(m.Sent()))
	}
}

func TestSerialized_ConcurrentCalls(t *testing.T) {
	m := NewMock()
	m.SetReceiveWait(time.Millisecond)
	v := Serialized(m)
	if Serialized(v) != v {
		t.Error("Serialized must not double wrap")
	}
	v.OpenDevice(DeviceUSBCAN2, 0, 0)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(ch uint32) {
			defer wg.Done()
			buf := make([]CanObj, 1)
			for j := 0; j < 10; j++ {
				v.Receive(DeviceUSBCAN2, 0, ch%2, buf, 1)
				var info BoardInfo
				v.ReadBoardInfo(DeviceUSBCAN2, 0, &info)
			}
		}(uint32(i))
	}
	wg.Wait()
	if got := m.CountCalls(CallReceive); got != 80 {
		t.Errorf("Receive calls = %d, want 80", got)
	}
}

func TestLoad_MissingLibrary(t *testing.T) {
	if _, err := Load("definitely-not-a-vci-library-xyz"); err == nil {
		t.Fatal("expected error loading a missing library")
	}
}

func TestLibrary_ResolveFreesOnMissingSymbol(t *testing.T) {
	freed := 0
	lookups := 0
	lib := &Library{path: "fake.so", handle: 42}
	err := lib.resolve(func(h uintptr, name string) (uintptr, error) {
		lookups++
		if h != 42 {
			t.Errorf("lookup handle = %d", h)
		}
		if name == "VCI_Receive" {
			return 0, errors.New("undefined symbol")
		}
		return 0x1000, nil
	}, func(h uintptr) error {
		if h != 42 {
			t.Errorf("free handle = %d", h)
		}
		freed++
		return nil
	})

	var symErr *SymbolError
	if !errors.As(err, &symErr) {
		t.Fatalf("expected *SymbolError, got %v", err)
	}
	if symErr.Symbol != "VCI_Receive" || symErr.Library != "fake.so" {
		t.Errorf("SymbolError = %+v", symErr)
	}
	if lookups != 5 {
		t.Errorf("lookups = %d, resolution should stop at the first missing symbol", lookups)
	}
	if freed != 1 {
		t.Errorf("handle freed %d times, want 1", freed)
	}
	if lib.handle != 0 {
		t.Error("handle should be cleared after free")
	}
	if err := lib.Close(); err != nil {
		t.Errorf("Close after failed resolve: %v", err)
	}
}

func TestLibrary_ResolveNilAddress(t *testing.T) {
	lib := &Library{path: "fake.so", handle: 1}
	err := lib.resolve(func(uintptr, string) (uintptr, error) { return 0, nil },
		func(uintptr) error { return nil })
	var symErr *SymbolError
	if !errors.As(err, &symErr) || symErr.Symbol != "VCI_OpenDevice" {
		t.Fatalf("expected VCI_OpenDevice SymbolError, got %v", err)
	}
}

func TestMock_ReceiveRecordsArguments(t *testing.T) {
	m := NewMock()
	m.SetReceiveWait(0)
	m.OpenDevice(DeviceUSBCAN2, 0, 0)
	m.Receive(DeviceUSBCAN2, 0, 1, make([]CanObj, 3), 250)

	calls := m.Calls()
	last := calls[len(calls)-1]
	if last.Name != CallReceive || last.Channel != 1 || last.MaxCount != 3 || last.WaitMs != 250 {
		t.Errorf("recorded %+v", last)
	}
}

func TestMock_RecordCallsOff(t *testing.T) {
	m := NewMock()
	m.SetReceiveWait(0)
	m.OpenDevice(DeviceUSBCAN2, 0, 0)
	if len(m.Calls()) != 1 {
		t.Fatalf("calls = %d, want 1", len(m.Calls()))
	}

	m.SetRecordCalls(false)
	if len(m.Calls()) != 0 {
		t.Error("turning recording off should clear the log")
	}
	buf := make([]CanObj, 1)
	for i := 0; i < 500; i++ {
		m.Receive(DeviceUSBCAN2, 0, 0, buf, 0)
	}
	m.Transmit(DeviceUSBCAN2, 0, 0, []CanObj{{ID: 1}})
	if n := len(m.Calls()); n != 0 {
		t.Errorf("calls = %d with recording off", n)
	}
	if len(m.Sent()) != 1 {
		t.Error("Transmit must still work with recording off")
	}

	m.SetRecordCalls(true)
	m.CloseDevice(DeviceUSBCAN2, 0)
	if got := m.CallNames(); len(got) != 1 || got[0] != CallCloseDevice {
		t.Errorf("CallNames = %v", got)
	}
	m.ClearCalls()
	if len(m.Calls()) != 0 {
		t.Error("ClearCalls left entries")
	}
}
