package wsclient

import (
	"encoding/json"
	"testing"
)

func TestMessageMarshal(t *testing.T) {
	tests := []struct {
		name    string
		command string
		payload any
		flag    string
		want    string
	}{
		{name: "command_only", command: CommandVersion, want: `["VER"]`},
		{name: "with_payload", command: CommandPin, payload: "MTIzNA==", want: `["PIN","MTIzNA=="]`},
		{name: "with_flag", command: CommandCall, payload: 42, flag: FlagPlay, want: `["CAL",42,"p"]`},
		{name: "explicit_null", command: CommandLivefeedMap, payload: json.RawMessage("null"), want: `["LFM",null]`},
		{name: "map_payload", command: CommandLivefeedMap, payload: map[int]map[int]bool{1: {100: true}}, want: `["LFM",{"1":{"100":true}}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewMessage(tt.command, tt.payload, tt.flag)
			if err != nil {
				t.Fatalf("NewMessage: %v", err)
			}
			got, err := json.Marshal(m)
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("Marshal = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestMessageUnmarshal(t *testing.T) {
	tests := []struct {
		name        string
		raw         string
		wantCommand string
		wantPayload string
		wantFlag    string
		wantErr     bool
	}{
		{name: "command_only", raw: `["PIN"]`, wantCommand: CommandPin},
		{name: "payload", raw: `["LSC", 7]`, wantCommand: CommandListenersCount, wantPayload: "7"},
		{name: "null_payload", raw: `["CFG", null]`, wantCommand: CommandConfig},
		{name: "flag", raw: `["CAL", {"id": 1}, "p"]`, wantCommand: CommandCall, wantPayload: `{"id": 1}`, wantFlag: FlagPlay},
		{name: "non_string_flag_ignored", raw: `["CAL", {"id": 1}, 3]`, wantCommand: CommandCall, wantPayload: `{"id": 1}`},
		{name: "not_array", raw: `{"cmd": "CAL"}`, wantErr: true},
		{name: "empty_array", raw: `[]`, wantErr: true},
		{name: "numeric_command", raw: `[1]`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var m Message
			err := json.Unmarshal([]byte(tt.raw), &m)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", m)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			if m.Command != tt.wantCommand {
				t.Errorf("Command = %q, want %q", m.Command, tt.wantCommand)
			}
			if string(m.Payload) != tt.wantPayload {
				t.Errorf("Payload = %s, want %s", m.Payload, tt.wantPayload)
			}
			if m.Flag != tt.wantFlag {
				t.Errorf("Flag = %q, want %q", m.Flag, tt.wantFlag)
			}
		})
	}
}

func TestMessageDecode(t *testing.T) {
	var n int
	if err := (Message{Command: CommandListenersCount, Payload: json.RawMessage("12")}).Decode(&n); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if n != 12 {
		t.Errorf("n = %d, want 12", n)
	}

	n = 5
	if err := (Message{Command: CommandListenersCount}).Decode(&n); err != nil {
		t.Fatalf("Decode without payload: %v", err)
	}
	if n != 5 {
		t.Errorf("missing payload changed value to %d", n)
	}

	if err := (Message{Command: CommandListenersCount, Payload: json.RawMessage(`"x"`)}).Decode(&n); err == nil {
		t.Error("expected decode error for string into int")
	}
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "http://scanner.local:3000/", want: "ws://scanner.local:3000/"},
		{in: "https://scanner.example.com", want: "wss://scanner.example.com"},
		{in: "ws://10.0.0.2:3000", want: "ws://10.0.0.2:3000"},
		{in: "ftp://x", wantErr: true},
		{in: "http://", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeURL(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("NormalizeURL: %v", err)
			}
			if got != tt.want {
				t.Errorf("NormalizeURL = %q, want %q", got, tt.want)
			}
		})
	}
}
