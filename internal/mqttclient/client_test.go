package mqttclient

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/freescanner-live/internal/display"
	"github.com/snarg/freescanner-live/internal/scanner"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    Command
		wantErr bool
	}{
		{"bare_action", "pause", Command{Action: "pause"}, false},
		{"bare_action_whitespace", "  skip\n", Command{Action: "skip"}, false},
		{"json_no_options", `{"action":"replay"}`, Command{Action: "replay"}, false},
		{"json_with_options", `{"action":"avoid","options":{"minutes":30}}`, Command{Action: "avoid", Options: json.RawMessage(`{"minutes":30}`)}, false},
		{"empty", "   ", Command{}, true},
		{"missing_action", `{"options":{}}`, Command{}, true},
		{"malformed", `{"action":`, Command{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCommand([]byte(tt.payload))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got.Action != tt.want.Action || string(got.Options) != string(tt.want.Options) {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

type published struct {
	topic    string
	retained bool
	payload  []byte
}

type fakePublisher struct {
	msgs []published
	err  error
}

func (f *fakePublisher) Topic(name string) string { return "fs/" + name }

func (f *fakePublisher) Publish(topic string, retained bool, payload []byte) error {
	f.msgs = append(f.msgs, published{topic, retained, payload})
	return f.err
}

func TestBridge(t *testing.T) {
	when := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	playing := display.Snapshot{
		Call:               &scanner.Call{ID: 12},
		CallSystem:         "County",
		CallTalkgroup:      "FD DISP",
		CallTalkgroupID:    "100",
		CallTalkgroupName:  "Fire Dispatch",
		CallFrequency:      "851.0125 MHz",
		CallUnit:           "E1",
		CallDate:           &when,
		CallQueue:          2,
		LivefeedOnline:     true,
		Listeners:          4,
		ShowListenersCount: true,
	}

	t.Run("publishes_retained_on_call_change", func(t *testing.T) {
		pub := &fakePublisher{}
		b := NewBridge(pub, zerolog.Nop())

		b.Update(playing)
		if len(pub.msgs) != 1 {
			t.Fatalf("publishes = %d, want 1", len(pub.msgs))
		}
		m := pub.msgs[0]
		if m.topic != "fs/nowplaying" || !m.retained {
			t.Errorf("topic = %q retained = %v", m.topic, m.retained)
		}
		var np NowPlaying
		if err := json.Unmarshal(m.payload, &np); err != nil {
			t.Fatal(err)
		}
		if np.CallID != 12 || np.TalkgroupName != "Fire Dispatch" || np.Listeners != 4 || !np.LivefeedOnline {
			t.Errorf("payload = %+v", np)
		}
		if np.Date == nil || !np.Date.Equal(when) {
			t.Errorf("Date = %v, want %v", np.Date, when)
		}
	})

	t.Run("ignores_queue_and_clock_only_changes", func(t *testing.T) {
		pub := &fakePublisher{}
		b := NewBridge(pub, zerolog.Nop())

		b.Update(playing)
		next := playing
		next.CallQueue = 5
		next.Clock = when.Add(time.Minute)
		b.Update(next)
		if len(pub.msgs) != 1 {
			t.Errorf("publishes = %d, want 1", len(pub.msgs))
		}
	})

	t.Run("idle_and_pause_publish", func(t *testing.T) {
		pub := &fakePublisher{}
		b := NewBridge(pub, zerolog.Nop())

		b.Update(playing)
		paused := playing
		paused.LivefeedPaused = true
		b.Update(paused)
		idle := display.Snapshot{LivefeedOnline: true, LivefeedPaused: true}
		b.Update(idle)

		if len(pub.msgs) != 3 {
			t.Fatalf("publishes = %d, want 3", len(pub.msgs))
		}
		var np NowPlaying
		if err := json.Unmarshal(pub.msgs[2].payload, &np); err != nil {
			t.Fatal(err)
		}
		if np.CallID != 0 || np.Listeners != 0 {
			t.Errorf("idle payload = %+v", np)
		}
	})

	t.Run("publish_errors_logged", func(t *testing.T) {
		pub := &fakePublisher{err: errors.New("not connected")}
		b := NewBridge(pub, zerolog.Nop())
		b.Update(playing)
		if len(pub.msgs) != 1 {
			t.Errorf("publishes = %d, want 1", len(pub.msgs))
		}
	})
}
