package console

import "time"

// MessageType defines the type of WebSocket message
type MessageType string

const (
	MessageTypeSnapshot     MessageType = "snapshot"
	MessageTypeActionResult MessageType = "action_result"
	MessageTypeHello        MessageType = "hello"
)

// Message is the envelope of every server to client frame.
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      any         `json:"data"`
}

// ActionRequest is what a client sends to trigger an operator action.
type ActionRequest struct {
	Type    string `json:"type"` // always "action"
	Action  string `json:"action"`
	Baud    *int   `json:"baud,omitempty"`
	ID      uint32 `json:"id,omitempty"`
	Payload string `json:"payload,omitempty"`
}

// ActionResultData answers one ActionRequest.
type ActionResultData struct {
	Action string `json:"action"`
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
}

func NewMessage(msgType MessageType, data any) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now(),
		Data:      data,
	}
}

func NewSnapshotMessage(s Snapshot) Message {
	return NewMessage(MessageTypeSnapshot, s)
}

func NewActionResultMessage(action string, err error) Message {
	d := ActionResultData{Action: action, OK: err == nil}
	if err != nil {
		d.Error = err.Error()
	}
	return NewMessage(MessageTypeActionResult, d)
}
