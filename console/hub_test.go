package console

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type wireMessage struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data"`
}

// readUntil reads frames until match accepts one or the deadline passes.
func readUntil(t *testing.T, conn *websocket.Conn, match func(wireMessage) bool) wireMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var msg wireMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v", err)
		}
		if match(msg) {
			return msg
		}
	}
}

func TestHub_ActionsAndSnapshots(t *testing.T) {
	s, _, _ := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := readUntil(t, conn, func(m wireMessage) bool { return m.Type == MessageTypeHello })
	if !strings.Contains(string(hello.Data), "client_id") {
		t.Errorf("hello data = %s", hello.Data)
	}

	send := func(req ActionRequest) ActionResultData {
		t.Helper()
		req.Type = "action"
		if err := conn.WriteJSON(req); err != nil {
			t.Fatalf("write: %v", err)
		}
		msg := readUntil(t, conn, func(m wireMessage) bool { return m.Type == MessageTypeActionResult })
		var res ActionResultData
		if err := json.Unmarshal(msg.Data, &res); err != nil {
			t.Fatal(err)
		}
		return res
	}

	if res := send(ActionRequest{Action: "start"}); res.OK || res.Error == "" {
		t.Errorf("start on closed device = %+v", res)
	}
	if res := send(ActionRequest{Action: "open"}); !res.OK {
		t.Fatalf("open = %+v", res)
	}
	if res := send(ActionRequest{Action: "baud"}); res.OK {
		t.Errorf("baud without index should fail: %+v", res)
	}
	if res := send(ActionRequest{Action: "transmit", ID: 0x20000000, Payload: "01"}); res.OK {
		t.Errorf("transmit with 30-bit id should fail: %+v", res)
	}
	if res := send(ActionRequest{Action: "transmit", ID: 0x1FFFFFFF, Payload: "0x01 0x02"}); !res.OK {
		t.Errorf("transmit = %+v", res)
	}
	if res := send(ActionRequest{Action: "bogus"}); res.OK {
		t.Errorf("unknown action should fail: %+v", res)
	}

	readUntil(t, conn, func(m wireMessage) bool {
		if m.Type != MessageTypeSnapshot {
			return false
		}
		var snap Snapshot
		return json.Unmarshal(m.Data, &snap) == nil && snap.DeviceOpen
	})

	if n := s.Hub().ClientCount(); n != 1 {
		t.Errorf("ClientCount = %d, want 1", n)
	}
}
