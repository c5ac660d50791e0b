package scanner

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"
)

func TestCallUnmarshal(t *testing.T) {
	raw := `{
		"audio": {"type": "Buffer", "data": [1, 2, 255]},
		"audioName": "call.m4a",
		"audioType": "audio/mp4",
		"dateTime": "2024-05-01T12:00:00Z",
		"frequencies": [{"errorCount": 1, "freq": 851012500, "len": 2.5, "pos": 0, "spikeCount": 0}],
		"frequency": 851012500,
		"id": 42,
		"patches": [],
		"source": 4001,
		"sources": [{"pos": 0, "src": 4001}, {"pos": 1.5, "src": 4002}],
		"system": 1,
		"talkgroup": 100,
		"systemData": {"id": 1, "label": "Metro", "led": "green", "talkgroups": [], "units": [{"id": 4001, "label": "Engine 1"}]},
		"talkgroupData": {"group": "Fire", "id": 100, "label": "FD Disp", "name": "Fire Dispatch", "tag": "Fire Dispatch"}
	}`

	var c Call
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !reflect.DeepEqual([]byte(c.Audio), []byte{1, 2, 255}) {
		t.Errorf("Audio = %v, want [1 2 255]", c.Audio)
	}
	if c.ID != 42 || c.System != 1 || c.Talkgroup != 100 {
		t.Errorf("ids = %d/%d/%d, want 42/1/100", c.ID, c.System, c.Talkgroup)
	}
	if !c.DateTime.Equal(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("DateTime = %v", c.DateTime)
	}
	if c.Frequency == nil || *c.Frequency != 851012500 {
		t.Errorf("Frequency = %v", c.Frequency)
	}
	if label, ok := c.SystemData.UnitLabel(4001); !ok || label != "Engine 1" {
		t.Errorf("UnitLabel(4001) = %q, %v", label, ok)
	}
	if got := c.Duration(); got != 2500*time.Millisecond {
		t.Errorf("Duration = %v, want 2.5s", got)
	}
}

func TestAudioBase64(t *testing.T) {
	var a Audio
	if err := json.Unmarshal([]byte(`"AQID"`), &a); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !reflect.DeepEqual([]byte(a), []byte{1, 2, 3}) {
		t.Errorf("Audio = %v, want [1 2 3]", a)
	}
}

func TestConfigOptionalFields(t *testing.T) {
	t.Run("false_is_absent", func(t *testing.T) {
		var cfg Config
		if err := json.Unmarshal([]byte(`{"dimmerDelay": false, "keypadBeeps": false}`), &cfg); err != nil {
			t.Fatalf("Unmarshal: %v", err)
		}
		if cfg.DimmerDelay.Present {
			t.Error("DimmerDelay should be absent")
		}
		if cfg.KeypadBeeps.Present {
			t.Error("KeypadBeeps should be absent")
		}
	})

	t.Run("values_present", func(t *testing.T) {
		var cfg Config
		raw := `{
			"dimmerDelay": 5000,
			"keypadBeeps": {"activate": [{"begin": 0, "end": 0.05, "frequency": 1200, "type": "square"}]},
			"groups": {"Fire": {"1": [100, 101]}}
		}`
		if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
			t.Fatalf("Unmarshal: %v", err)
		}
		if v, ok := cfg.DimmerDelay.Get(); !ok || v != 5000 {
			t.Errorf("DimmerDelay = %v, %v", v, ok)
		}
		if len(cfg.KeypadBeeps.Value[BeepActivate]) != 1 {
			t.Errorf("activate beeps = %d, want 1", len(cfg.KeypadBeeps.Value[BeepActivate]))
		}
		if !reflect.DeepEqual(cfg.Groups["Fire"][1], []int{100, 101}) {
			t.Errorf("Groups = %v", cfg.Groups)
		}
	})
}

func TestEventFields(t *testing.T) {
	e := Event{Call: Some[*Call](nil), Queue: Some(0), Time: Some(3.0)}
	want := []string{"call", "queue", "time"}
	if got := e.Fields(); !reflect.DeepEqual(got, want) {
		t.Errorf("Fields = %v, want %v", got, want)
	}
	if got := (Event{}).Fields(); len(got) != 0 {
		t.Errorf("empty event Fields = %v", got)
	}
}

func TestLivefeedMap(t *testing.T) {
	m := LivefeedMap{}
	m.Set(1, 100, Livefeed{Active: true})
	m.Set(1, 101, Livefeed{Active: false, Minutes: 30})

	if !m.Active(1, 100) {
		t.Error("1/100 should be active")
	}
	if m.Active(1, 101) {
		t.Error("1/101 should be inactive")
	}
	if m.Active(2, 5) {
		t.Error("absent entry should be inactive")
	}

	cp := m.Clone()
	cp.Set(1, 100, Livefeed{})
	if !m.Active(1, 100) {
		t.Error("Clone shares storage with original")
	}

	wire := m.Wire()
	if !wire[1][100] || wire[1][101] {
		t.Errorf("Wire = %v", wire)
	}
}
