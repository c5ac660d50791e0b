package wsclient

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Commands exchanged with the server. Every frame is a JSON array
// [command, payload?, flag?].
const (
	CommandCall           = "CAL"
	CommandConfig         = "CFG"
	CommandExpired        = "XPR"
	CommandListCall       = "LCL"
	CommandListenersCount = "LSC"
	CommandLivefeedMap    = "LFM"
	CommandMax            = "MAX"
	CommandPin            = "PIN"
	CommandVersion        = "VER"
)

// Call flags on CAL frames.
const (
	FlagDownload = "d"
	FlagPlay     = "p"
)

// Message is one protocol frame.
type Message struct {
	Command string
	Payload json.RawMessage
	Flag    string
}

// NewMessage builds a frame, marshaling payload when non-nil.
func NewMessage(command string, payload any, flag string) (Message, error) {
	m := Message{Command: command, Flag: flag}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Message{}, fmt.Errorf("marshal %s payload: %w", command, err)
		}
		m.Payload = data
	}
	return m, nil
}

func (m Message) MarshalJSON() ([]byte, error) {
	frame := []any{m.Command}
	if m.Payload != nil || m.Flag != "" {
		payload := m.Payload
		if payload == nil {
			payload = json.RawMessage("null")
		}
		frame = append(frame, payload)
	}
	if m.Flag != "" {
		frame = append(frame, m.Flag)
	}
	return json.Marshal(frame)
}

func (m *Message) UnmarshalJSON(b []byte) error {
	var frame []json.RawMessage
	if err := json.Unmarshal(b, &frame); err != nil {
		return fmt.Errorf("frame is not an array: %w", err)
	}
	if len(frame) == 0 {
		return fmt.Errorf("empty frame")
	}
	var out Message
	if err := json.Unmarshal(frame[0], &out.Command); err != nil {
		return fmt.Errorf("command: %w", err)
	}
	if len(frame) > 1 && !bytes.Equal(bytes.TrimSpace(frame[1]), []byte("null")) {
		out.Payload = frame[1]
	}
	if len(frame) > 2 {
		// Flags are strings; anything else is ignored.
		_ = json.Unmarshal(frame[2], &out.Flag)
	}
	*m = out
	return nil
}

// Decode parses the payload into v. A missing payload leaves v untouched.
func (m Message) Decode(v any) error {
	if m.Payload == nil {
		return nil
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", m.Command, err)
	}
	return nil
}
